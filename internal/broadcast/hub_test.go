package broadcast

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/phrazzld/tasker-api/internal/config"
	"github.com/phrazzld/tasker-api/internal/domain"
	"github.com/phrazzld/tasker-api/internal/events"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newTestServer serves the hub with the user id taken from ?user=.
func newTestServer(t *testing.T, hub *Hub) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID, err := uuid.Parse(r.URL.Query().Get("user"))
		if err != nil {
			http.Error(w, "bad user", http.StatusBadRequest)
			return
		}
		_ = hub.ServeWS(w, r, userID)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func dial(t *testing.T, srv *httptest.Server, userID uuid.UUID) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/?user=" + userID.String()
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	_ = resp.Body.Close()
	t.Cleanup(func() { _ = conn.Close() })

	ack := readFrame(t, conn)
	require.Equal(t, SubscriptionSucceeded, ack.Event)
	require.Equal(t, Channel(userID), ack.Channel)
	return conn
}

type rawFrame struct {
	Channel string          `json:"channel"`
	Event   string          `json:"event"`
	Data    json.RawMessage `json:"data"`
}

func readFrame(t *testing.T, conn *websocket.Conn) rawFrame {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	var f rawFrame
	require.NoError(t, json.Unmarshal(data, &f))
	return f
}

func taskFor(t *testing.T, userID uuid.UUID, title string) *domain.Task {
	t.Helper()
	task, err := domain.NewTask(userID, title, "desc", "", "", nil)
	require.NoError(t, err)
	return task
}

func TestChannel(t *testing.T) {
	id := uuid.MustParse("6f1c1f8e-8a6b-4b7a-9d0e-6f1f0a7f9a11")
	assert.Equal(t, "private-user.6f1c1f8e-8a6b-4b7a-9d0e-6f1f0a7f9a11", Channel(id))
}

func TestHub_DeliversOnlyToOwner(t *testing.T) {
	hub := NewHub(DefaultConfig(), quietLogger())
	srv := newTestServer(t, hub)
	owner, other := uuid.New(), uuid.New()

	ownerConn1 := dial(t, srv, owner)
	ownerConn2 := dial(t, srv, owner)
	otherConn := dial(t, srv, other)
	assert.Equal(t, 2, hub.ConnectionCount(owner))
	assert.Equal(t, 1, hub.ConnectionCount(other))

	task := taskFor(t, owner, "Pay rent")
	require.NoError(t, hub.HandleEvent(context.Background(), events.NewTaskEvent(events.TaskCreated, task)))

	for _, conn := range []*websocket.Conn{ownerConn1, ownerConn2} {
		f := readFrame(t, conn)
		assert.Equal(t, events.TaskCreated, f.Event)
		assert.Equal(t, Channel(owner), f.Channel)

		var got domain.Task
		require.NoError(t, json.Unmarshal(f.Data, &got))
		assert.Equal(t, task.ID, got.ID)
		assert.Equal(t, "Pay rent", got.Title)
	}

	require.NoError(t, otherConn.SetReadDeadline(time.Now().Add(100*time.Millisecond)))
	_, _, err := otherConn.ReadMessage()
	require.Error(t, err)
	netErr, ok := err.(interface{ Timeout() bool })
	require.True(t, ok, "expected a timeout, got %v", err)
	assert.True(t, netErr.Timeout())
}

func TestHub_EventWithNoConnections(t *testing.T) {
	hub := NewHub(DefaultConfig(), quietLogger())
	task := taskFor(t, uuid.New(), "nobody listening")
	assert.NoError(t, hub.HandleEvent(context.Background(), events.NewTaskEvent(events.TaskDeleted, task)))
}

func TestHub_DisconnectUnregisters(t *testing.T) {
	hub := NewHub(DefaultConfig(), quietLogger())
	srv := newTestServer(t, hub)
	owner := uuid.New()

	conn := dial(t, srv, owner)
	require.Equal(t, 1, hub.ConnectionCount(owner))

	require.NoError(t, conn.Close())
	assert.Eventually(t, func() bool { return hub.ConnectionCount(owner) == 0 },
		2*time.Second, 10*time.Millisecond)
}

func TestHub_DropsSlowClient(t *testing.T) {
	hub := NewHub(Config{SendBuffer: 1}, quietLogger())
	owner := uuid.New()

	// No pumps run for this client, so its queue never drains.
	c := &client{userID: owner, send: make(chan []byte, 1)}
	require.True(t, hub.register(c))

	task := taskFor(t, owner, "flood")
	require.NoError(t, hub.HandleEvent(context.Background(), events.NewTaskEvent(events.TaskUpdated, task)))
	assert.Equal(t, 1, hub.ConnectionCount(owner))

	require.NoError(t, hub.HandleEvent(context.Background(), events.NewTaskEvent(events.TaskUpdated, task)))
	assert.Equal(t, 0, hub.ConnectionCount(owner))

	<-c.send
	_, open := <-c.send
	assert.False(t, open, "send queue is closed when the client is dropped")
}

func TestHub_Shutdown(t *testing.T) {
	hub := NewHub(DefaultConfig(), quietLogger())
	srv := newTestServer(t, hub)
	owner := uuid.New()
	conn := dial(t, srv, owner)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, hub.Shutdown(ctx))
	assert.Equal(t, 0, hub.ConnectionCount(owner))

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseGoingAway), "got %v", err)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/?user=" + owner.String()
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestHub_OriginCheck(t *testing.T) {
	hub := NewHub(ConfigFromConfig(config.BroadcastConfig{
		Enabled:        true,
		AllowedOrigins: []string{"https://app.example.com"},
	}), quietLogger())
	srv := newTestServer(t, hub)
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/?user=" + uuid.New().String()

	header := http.Header{"Origin": []string{"https://evil.example.com"}}
	_, resp, err := websocket.DefaultDialer.Dial(url, header)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	header.Set("Origin", "https://app.example.com")
	conn, resp, err := websocket.DefaultDialer.Dial(url, header)
	require.NoError(t, err)
	_ = resp.Body.Close()
	_ = conn.Close()
}

func TestNewHub_Defaults(t *testing.T) {
	hub := NewHub(Config{PongWait: 10 * time.Second, PingInterval: time.Minute}, nil)
	assert.Equal(t, DefaultConfig().SendBuffer, hub.config.SendBuffer)
	assert.Equal(t, 9*time.Second, hub.config.PingInterval)
	assert.Equal(t, DefaultConfig().WriteWait, hub.config.WriteWait)
}
