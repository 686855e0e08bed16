package broadcast

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/phrazzld/tasker-api/internal/config"
	"github.com/phrazzld/tasker-api/internal/events"
	"github.com/phrazzld/tasker-api/internal/platform/logger"
)

// SubscriptionSucceeded is the first frame sent on every accepted connection.
const SubscriptionSucceeded = "subscription_succeeded"

// ErrHubClosed is returned by ServeWS after Shutdown.
var ErrHubClosed = errors.New("broadcast hub is closed")

// Config tunes connection handling.
type Config struct {
	// AllowedOrigins lists accepted Origin headers. Empty means same-origin
	// only; "*" accepts any origin.
	AllowedOrigins []string

	// SendBuffer is the number of frames queued per connection before the
	// connection is considered too slow and dropped.
	SendBuffer int

	WriteWait    time.Duration
	PongWait     time.Duration
	PingInterval time.Duration
}

// DefaultConfig returns the default connection settings.
func DefaultConfig() Config {
	return Config{
		SendBuffer:   32,
		WriteWait:    10 * time.Second,
		PongWait:     60 * time.Second,
		PingInterval: 54 * time.Second,
	}
}

// ConfigFromConfig maps the broadcast configuration group onto a Config.
func ConfigFromConfig(cfg config.BroadcastConfig) Config {
	c := DefaultConfig()
	c.AllowedOrigins = cfg.AllowedOrigins
	return c
}

// Frame is the JSON message written to clients.
type Frame struct {
	Channel string      `json:"channel"`
	Event   string      `json:"event"`
	Data    interface{} `json:"data,omitempty"`
}

// Channel returns the private channel name for userID.
func Channel(userID uuid.UUID) string {
	return "private-user." + userID.String()
}

type client struct {
	userID uuid.UUID
	conn   *websocket.Conn
	send   chan []byte
}

// Hub tracks open connections by user and fans task events out to them.
type Hub struct {
	mu      sync.Mutex
	clients map[uuid.UUID]map[*client]struct{}
	closed  bool

	upgrader websocket.Upgrader
	config   Config
	logger   *slog.Logger
	wg       sync.WaitGroup
}

var _ events.EventHandler = (*Hub)(nil)

// NewHub creates a Hub.
func NewHub(cfg Config, log *slog.Logger) *Hub {
	def := DefaultConfig()
	if cfg.SendBuffer <= 0 {
		cfg.SendBuffer = def.SendBuffer
	}
	if cfg.WriteWait <= 0 {
		cfg.WriteWait = def.WriteWait
	}
	if cfg.PongWait <= 0 {
		cfg.PongWait = def.PongWait
	}
	if cfg.PingInterval <= 0 || cfg.PingInterval >= cfg.PongWait {
		cfg.PingInterval = cfg.PongWait * 9 / 10
	}
	if log == nil {
		log = slog.Default()
	}

	h := &Hub{
		clients: make(map[uuid.UUID]map[*client]struct{}),
		config:  cfg,
		logger:  log.With("component", "broadcast_hub"),
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     originChecker(cfg.AllowedOrigins),
	}
	return h
}

func originChecker(allowed []string) func(*http.Request) bool {
	if len(allowed) == 0 {
		// nil selects the upgrader's same-origin check.
		return nil
	}
	set := make(map[string]struct{}, len(allowed))
	for _, o := range allowed {
		if o == "*" {
			return func(*http.Request) bool { return true }
		}
		set[o] = struct{}{}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		_, ok := set[origin]
		return ok
	}
}

// ServeWS upgrades the request and subscribes the connection to userID's
// channel. On upgrade failure the upgrader has already written the HTTP error.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request, userID uuid.UUID) error {
	log := logger.FromContextOrDefault(r.Context(), h.logger)

	h.mu.Lock()
	closed := h.closed
	h.mu.Unlock()
	if closed {
		http.Error(w, "service unavailable", http.StatusServiceUnavailable)
		return ErrHubClosed
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn("websocket upgrade failed", "user_id", userID, "error", err)
		return fmt.Errorf("websocket upgrade failed: %w", err)
	}

	c := &client{
		userID: userID,
		conn:   conn,
		send:   make(chan []byte, h.config.SendBuffer),
	}

	ack, err := json.Marshal(Frame{Channel: Channel(userID), Event: SubscriptionSucceeded})
	if err != nil {
		_ = conn.Close()
		return err
	}
	c.send <- ack

	h.wg.Add(2)
	if !h.register(c) {
		h.wg.Add(-2)
		_ = conn.Close()
		return ErrHubClosed
	}

	log.Debug("websocket connected", "user_id", userID, "channel", Channel(userID))

	go h.writePump(c)
	go h.readPump(c)
	return nil
}

func (h *Hub) register(c *client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	set, ok := h.clients[c.userID]
	if !ok {
		set = make(map[*client]struct{})
		h.clients[c.userID] = set
	}
	set[c] = struct{}{}
	return true
}

// unregisterLocked removes c and closes its send queue. Callers hold h.mu.
func (h *Hub) unregisterLocked(c *client) {
	set, ok := h.clients[c.userID]
	if !ok {
		return
	}
	if _, ok := set[c]; !ok {
		return
	}
	delete(set, c)
	if len(set) == 0 {
		delete(h.clients, c.userID)
	}
	close(c.send)
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	h.unregisterLocked(c)
	h.mu.Unlock()
}

// HandleEvent implements events.EventHandler by pushing event to the owner's
// connections. A connection whose send queue is full is dropped.
func (h *Hub) HandleEvent(ctx context.Context, event *events.TaskEvent) error {
	data, err := json.Marshal(Frame{
		Channel: Channel(event.UserID),
		Event:   event.Name,
		Data:    event.Task,
	})
	if err != nil {
		return fmt.Errorf("failed to encode %s frame: %w", event.Name, err)
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	for c := range h.clients[event.UserID] {
		select {
		case c.send <- data:
		default:
			logger.FromContextOrDefault(ctx, h.logger).Warn("dropping slow websocket client",
				"user_id", event.UserID,
				"event", event.Name)
			h.unregisterLocked(c)
		}
	}
	return nil
}

// ConnectionCount returns the number of open connections for userID.
func (h *Hub) ConnectionCount(userID uuid.UUID) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients[userID])
}

// Shutdown closes every connection and waits for their goroutines to exit
// or for ctx to end.
func (h *Hub) Shutdown(ctx context.Context) error {
	h.mu.Lock()
	h.closed = true
	for _, set := range h.clients {
		for c := range set {
			h.unregisterLocked(c)
		}
	}
	h.mu.Unlock()

	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		h.logger.Info("broadcast hub stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// readPump discards client frames and keeps the read deadline moving on pongs.
func (h *Hub) readPump(c *client) {
	defer h.wg.Done()
	defer func() {
		h.unregister(c)
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(512)
	_ = c.conn.SetReadDeadline(time.Now().Add(h.config.PongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(h.config.PongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Debug("websocket read failed", "user_id", c.userID, "error", err)
			}
			return
		}
	}
}

// writePump writes queued frames and pings until the send queue is closed.
func (h *Hub) writePump(c *client) {
	defer h.wg.Done()
	ticker := time.NewTicker(h.config.PingInterval)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(h.config.WriteWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, ""))
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(h.config.WriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
