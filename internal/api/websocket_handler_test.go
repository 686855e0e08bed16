package api

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/phrazzld/tasker-api/internal/api/shared"
	"github.com/stretchr/testify/assert"
)

type fakeSockets struct {
	served []uuid.UUID
	err    error
}

func (f *fakeSockets) ServeWS(w http.ResponseWriter, _ *http.Request, userID uuid.UUID) error {
	f.served = append(f.served, userID)
	if f.err != nil {
		http.Error(w, "upgrade failed", http.StatusBadRequest)
		return f.err
	}
	w.WriteHeader(http.StatusSwitchingProtocols)
	return nil
}

func TestWebsocketHandler_Subscribe(t *testing.T) {
	sockets := &fakeSockets{}
	h := NewWebsocketHandler(sockets, quietLogger())
	userID := uuid.New()

	req := httptest.NewRequest(http.MethodGet, "/ws", nil)
	req = req.WithContext(shared.WithUserID(req.Context(), userID))
	w := httptest.NewRecorder()
	h.Subscribe(w, req)

	assert.Equal(t, http.StatusSwitchingProtocols, w.Code)
	assert.Equal(t, []uuid.UUID{userID}, sockets.served)
}

func TestWebsocketHandler_RequiresUser(t *testing.T) {
	sockets := &fakeSockets{}
	h := NewWebsocketHandler(sockets, quietLogger())

	w := httptest.NewRecorder()
	h.Subscribe(w, httptest.NewRequest(http.MethodGet, "/ws", nil))

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Empty(t, sockets.served)
}

func TestWebsocketHandler_UpgradeFailure(t *testing.T) {
	sockets := &fakeSockets{err: errors.New("bad handshake")}
	h := NewWebsocketHandler(sockets, quietLogger())

	req := httptest.NewRequest(http.MethodGet, "/ws", nil)
	req = req.WithContext(shared.WithUserID(req.Context(), uuid.New()))
	w := httptest.NewRecorder()
	h.Subscribe(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestNewHandlers_NilDependenciesPanic(t *testing.T) {
	assert.Panics(t, func() { NewWebsocketHandler(nil, nil) })
	assert.Panics(t, func() { NewTaskHandler(nil, nil, nil) })
	assert.Panics(t, func() { NewAuthHandler(nil, nil) })
}
