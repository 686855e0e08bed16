package api

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/phrazzld/tasker-api/internal/api/shared"
	"github.com/phrazzld/tasker-api/internal/domain"
	"github.com/phrazzld/tasker-api/internal/service"
	"github.com/phrazzld/tasker-api/internal/service/auth"
	"github.com/phrazzld/tasker-api/internal/store"
	"github.com/stretchr/testify/assert"
)

func TestMapErrorToStatusCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"bad json", fmt.Errorf("%w: eof", shared.ErrInvalidJSON), http.StatusBadRequest},
		{"invalid token", auth.ErrInvalidToken, http.StatusUnauthorized},
		{"expired token", auth.ErrExpiredToken, http.StatusUnauthorized},
		{"revoked token", auth.ErrRevokedToken, http.StatusUnauthorized},
		{"bad credentials", service.ErrInvalidCredentials, http.StatusUnauthorized},
		{"not owned", service.ErrNotOwned, http.StatusForbidden},
		{"task not found", store.ErrTaskNotFound, http.StatusNotFound},
		{"user not found wrapped", fmt.Errorf("lookup: %w", store.ErrUserNotFound), http.StatusNotFound},
		{"field error", domain.NewValidationError("title", "is required", domain.ErrEmptyTaskTitle), http.StatusUnprocessableEntity},
		{"email taken", store.ErrEmailExists, http.StatusUnprocessableEntity},
		{"weak password", domain.ErrPasswordTooWeak, http.StatusUnprocessableEntity},
		{"service failure", service.NewServiceError("task", "create", errors.New("boom")), http.StatusInternalServerError},
		{"unknown", errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, MapErrorToStatusCode(tt.err))
		})
	}
}

func TestGetSafeErrorMessage_NeverLeaks(t *testing.T) {
	err := service.NewServiceError("task", "list", errors.New("pq: SELECT * FROM tasks failed"))
	assert.Equal(t, "An unexpected error occurred", GetSafeErrorMessage(err))
	assert.Equal(t, "An unexpected error occurred", GetSafeErrorMessage(nil))
	assert.Equal(t, "Task not found", GetSafeErrorMessage(store.ErrTaskNotFound))
}

func TestFieldErrors(t *testing.T) {
	fields, ok := FieldErrors(domain.ValidationErrors{
		domain.NewValidationError("title", "is required", nil),
		domain.NewValidationError("title", "may not be greater than 255 characters", nil),
		domain.NewValidationError("priority", "is invalid", nil),
	})
	assert.True(t, ok)
	assert.Equal(t, map[string][]string{
		"title":    {"is required", "may not be greater than 255 characters"},
		"priority": {"is invalid"},
	}, fields)

	fields, ok = FieldErrors(fmt.Errorf("register: %w", domain.ErrInvalidEmail))
	assert.True(t, ok)
	assert.Equal(t, map[string][]string{"email": {"must be a valid email address"}}, fields)

	_, ok = FieldErrors(errors.New("boom"))
	assert.False(t, ok)
}
