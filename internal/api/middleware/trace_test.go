package middleware

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/phrazzld/tasker-api/internal/api/shared"
	"github.com/phrazzld/tasker-api/internal/platform/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTraceMiddleware(t *testing.T) {
	var logs bytes.Buffer
	base := slog.New(slog.NewJSONHandler(&logs, &slog.HandlerOptions{Level: slog.LevelDebug}))

	var seenTrace, seenRequest string
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seenTrace = shared.GetTraceID(r.Context())
		seenRequest = logger.RequestIDFromContext(r.Context())
		logger.FromContext(r.Context()).Info("inside handler")
	})

	handler := chimw.RequestID(NewTraceMiddleware(base)(next))
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/tasks", nil))

	require.Len(t, seenTrace, 32)
	assert.NotEmpty(t, seenRequest)
	assert.Equal(t, seenTrace, w.Header().Get("X-Trace-ID"))

	var lastLine map[string]interface{}
	lines := bytes.Split(bytes.TrimSpace(logs.Bytes()), []byte("\n"))
	require.NoError(t, json.Unmarshal(lines[len(lines)-1], &lastLine))
	assert.Equal(t, "inside handler", lastLine["msg"])
	assert.Equal(t, seenTrace, lastLine["trace_id"])
	assert.Equal(t, seenRequest, lastLine["request_id"])
}
