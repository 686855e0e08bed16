package api

import (
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/phrazzld/tasker-api/internal/platform/logger"
)

// SocketServer upgrades a request into a websocket subscribed to userID's
// private channel. It writes its own HTTP error on failure.
type SocketServer interface {
	ServeWS(w http.ResponseWriter, r *http.Request, userID uuid.UUID) error
}

// WebsocketHandler handles GET /ws.
type WebsocketHandler struct {
	sockets SocketServer
	logger  *slog.Logger
}

// NewWebsocketHandler creates a new WebsocketHandler.
func NewWebsocketHandler(sockets SocketServer, logger *slog.Logger) *WebsocketHandler {
	if sockets == nil {
		panic("sockets cannot be nil for WebsocketHandler") // ALLOW-PANIC
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &WebsocketHandler{
		sockets: sockets,
		logger:  logger.With(slog.String("component", "websocket_handler")),
	}
}

// Subscribe upgrades the connection for the authenticated user.
func (h *WebsocketHandler) Subscribe(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContextOrDefault(r.Context(), h.logger)

	userID, ok := requireUser(w, r, log)
	if !ok {
		return
	}

	if err := h.sockets.ServeWS(w, r, userID); err != nil {
		log.Debug("websocket subscription failed", "user_id", userID, "error", err)
	}
}
