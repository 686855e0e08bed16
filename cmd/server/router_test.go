package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/phrazzld/tasker-api/internal/broadcast"
	"github.com/phrazzld/tasker-api/internal/config"
	"github.com/phrazzld/tasker-api/internal/mocks"
	"github.com/phrazzld/tasker-api/internal/platform/metrics"
	"github.com/phrazzld/tasker-api/internal/service"
	"github.com/phrazzld/tasker-api/internal/service/auth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestApplication(t *testing.T) *application {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	cfg := &config.Config{
		Server: config.ServerConfig{Port: 8080, LogLevel: "error", ShutdownTimeoutSeconds: 1},
		Auth: config.AuthConfig{
			JWTSecret:            strings.Repeat("s", 32),
			TokenLifetimeMinutes: 60,
			BCryptCost:           4,
		},
	}

	jwtService, err := auth.NewJWTService(cfg.Auth)
	require.NoError(t, err)

	users := mocks.NewMockUserStore()
	authService, err := service.NewAuthService(users, mocks.NewMockTokenStore(), jwtService, auth.NewBcryptHasher(4), log)
	require.NoError(t, err)

	taskService, err := service.NewTaskService(mocks.NewMockTaskStore(), nil, nil, 0, log)
	require.NoError(t, err)

	hub := broadcast.NewHub(broadcast.DefaultConfig(), log)
	t.Cleanup(func() { _ = hub.Shutdown(context.Background()) })

	return &application{
		config:      cfg,
		logger:      log,
		userStore:   users,
		authService: authService,
		taskService: taskService,
		hub:         hub,
		metrics:     metrics.New(),
	}
}

func send(t *testing.T, h http.Handler, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestRouter_HealthAndMetrics(t *testing.T) {
	router := newTestApplication(t).setupRouter()

	w := send(t, router, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "OK", w.Body.String())

	w = send(t, router, http.MethodGet, "/metrics", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `tasker_http_requests_total{method="GET",route="/health",status="200"} 1`)
}

func TestRouter_ProtectedRoutesRequireToken(t *testing.T) {
	router := newTestApplication(t).setupRouter()

	for _, path := range []string{"/api/v1/tasks", "/api/tasks/overdue", "/api/v1/user", "/ws"} {
		t.Run(path, func(t *testing.T) {
			w := send(t, router, http.MethodGet, path, "", nil)
			assert.Equal(t, http.StatusUnauthorized, w.Code)
			assert.NotEmpty(t, w.Header().Get("X-Trace-ID"))
		})
	}
}

func TestRouter_RegisterThenManageTasks(t *testing.T) {
	router := newTestApplication(t).setupRouter()

	w := send(t, router, http.MethodPost, "/api/v1/register", "", map[string]string{
		"name": "Ana", "email": "ana@example.com", "password": "Secret123!",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var authBody struct {
		AccessToken string `json:"access_token"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &authBody))
	require.NotEmpty(t, authBody.AccessToken)
	token := authBody.AccessToken

	due := time.Now().AddDate(0, 0, 3).Format("2006-01-02")
	w = send(t, router, http.MethodPost, "/api/v1/tasks", token, map[string]string{
		"title": "Pay rent", "description": "before the 5th", "priority": "high", "due_date": due,
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var created struct {
		StatusCode int    `json:"statusCode"`
		Message    string `json:"message"`
		Data       struct {
			ID       string `json:"id"`
			Priority string `json:"priority"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	assert.Equal(t, http.StatusCreated, created.StatusCode)
	assert.Equal(t, "Task created successfully", created.Message)
	assert.Equal(t, "HIGH", created.Data.Priority)

	// The unversioned mount serves the same API.
	w = send(t, router, http.MethodGet, "/api/tasks/high-priority", token, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Contains(t, w.Body.String(), created.Data.ID)

	w = send(t, router, http.MethodPatch, "/api/v1/tasks/"+created.Data.ID+"/complete", token, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Contains(t, w.Body.String(), "Task marked as completed")

	w = send(t, router, http.MethodDelete, "/api/v1/tasks/"+created.Data.ID, token, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = send(t, router, http.MethodPost, "/api/v1/logout", token, nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = send(t, router, http.MethodGet, "/api/v1/user", token, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRouter_CORS(t *testing.T) {
	app := newTestApplication(t)
	app.config.Server.CORSAllowedOrigins = []string{"https://app.example.com"}
	router := app.setupRouter()

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/tasks", nil)
	req.Header.Set("Origin", "https://app.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, "https://app.example.com", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestParseOptions(t *testing.T) {
	opts, err := parseOptions([]string{"-send-test-email", "ops@example.com"})
	require.NoError(t, err)
	assert.True(t, opts.sendTestEmail)
	assert.Equal(t, "ops@example.com", opts.testEmailTo)

	opts, err = parseOptions([]string{"-migrate", "status"})
	require.NoError(t, err)
	assert.Equal(t, "status", opts.migrate)
	assert.False(t, opts.processJobs)

	opts, err = parseOptions([]string{"-process-jobs", "-prune-tokens"})
	require.NoError(t, err)
	assert.True(t, opts.processJobs)
	assert.True(t, opts.pruneTokens)

	_, err = parseOptions([]string{"-unknown"})
	assert.Error(t, err)
}
