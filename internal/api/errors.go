package api

import (
	"errors"
	"net/http"

	"github.com/phrazzld/tasker-api/internal/api/shared"
	"github.com/phrazzld/tasker-api/internal/domain"
	"github.com/phrazzld/tasker-api/internal/service"
	"github.com/phrazzld/tasker-api/internal/service/auth"
	"github.com/phrazzld/tasker-api/internal/store"
)

// MapErrorToStatusCode maps internal errors to HTTP status codes without
// leaking their types or messages to clients.
func MapErrorToStatusCode(err error) int {
	switch {
	case errors.Is(err, shared.ErrInvalidJSON):
		return http.StatusBadRequest

	case errors.Is(err, auth.ErrInvalidToken),
		errors.Is(err, auth.ErrExpiredToken),
		errors.Is(err, auth.ErrTokenNotYetValid),
		errors.Is(err, auth.ErrMissingToken),
		errors.Is(err, auth.ErrRevokedToken),
		errors.Is(err, service.ErrInvalidCredentials),
		errors.Is(err, domain.ErrUnauthorized):
		return http.StatusUnauthorized

	case errors.Is(err, service.ErrNotOwned):
		return http.StatusForbidden

	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound

	case errors.Is(err, domain.ErrValidation),
		errors.Is(err, store.ErrEmailExists),
		isUserFieldError(err):
		return http.StatusUnprocessableEntity

	default:
		return http.StatusInternalServerError
	}
}

// GetSafeErrorMessage returns a client-facing message for err.
func GetSafeErrorMessage(err error) string {
	if err == nil {
		return "An unexpected error occurred"
	}

	switch {
	case errors.Is(err, shared.ErrInvalidJSON):
		return "Invalid request format"
	case errors.Is(err, auth.ErrExpiredToken):
		return "Token expired"
	case errors.Is(err, auth.ErrMissingToken):
		return "Unauthenticated."
	case errors.Is(err, auth.ErrRevokedToken),
		errors.Is(err, auth.ErrInvalidToken),
		errors.Is(err, auth.ErrTokenNotYetValid):
		return "Invalid token"
	case errors.Is(err, service.ErrInvalidCredentials):
		return "Invalid credentials"
	case errors.Is(err, domain.ErrUnauthorized):
		return "Unauthenticated."
	case errors.Is(err, service.ErrNotOwned):
		return "This action is unauthorized."
	case errors.Is(err, store.ErrTaskNotFound):
		return "Task not found"
	case errors.Is(err, store.ErrUserNotFound):
		return "User not found"
	case errors.Is(err, store.ErrNotFound):
		return "Resource not found"
	case errors.Is(err, domain.ErrValidation),
		errors.Is(err, store.ErrEmailExists),
		isUserFieldError(err):
		return "The given data was invalid."
	default:
		return "An unexpected error occurred"
	}
}

// userFieldErrors maps the bare user sentinels onto their request field.
var userFieldErrors = []struct {
	err   error
	field string
	msg   string
}{
	{domain.ErrEmptyUserName, "name", "is required"},
	{domain.ErrUserNameTooLong, "name", "may not be greater than 255 characters"},
	{domain.ErrEmptyEmail, "email", "is required"},
	{domain.ErrEmailTooLong, "email", "may not be greater than 255 characters"},
	{domain.ErrInvalidEmail, "email", "must be a valid email address"},
	{store.ErrEmailExists, "email", "has already been taken"},
	{domain.ErrEmptyPassword, "password", "is required"},
	{domain.ErrPasswordTooShort, "password", "must be at least 8 characters"},
	{domain.ErrPasswordTooLong, "password", "may not be greater than 72 characters"},
	{domain.ErrPasswordTooWeak, "password", "must contain an uppercase letter, a lowercase letter, a number and a special character (@$!%*?&)"},
}

func isUserFieldError(err error) bool {
	for _, fe := range userFieldErrors {
		if errors.Is(err, fe.err) {
			return true
		}
	}
	return false
}

// FieldErrors extracts per-field messages from err. The boolean is false when
// err carries no field information.
func FieldErrors(err error) (map[string][]string, bool) {
	var many domain.ValidationErrors
	if errors.As(err, &many) && len(many) > 0 {
		return many.Fields(), true
	}

	var one *domain.ValidationError
	if errors.As(err, &one) {
		return map[string][]string{one.Field: {one.Message}}, true
	}

	for _, fe := range userFieldErrors {
		if errors.Is(err, fe.err) {
			return map[string][]string{fe.field: {fe.msg}}, true
		}
	}
	return nil, false
}

// HandleAPIError writes the response for err. Field errors become a 422 with
// an errors map; everything else becomes an Envelope with a safe message.
// fallback replaces the generic message for 500 responses when non-empty.
func HandleAPIError(w http.ResponseWriter, r *http.Request, err error, fallback string) {
	status := MapErrorToStatusCode(err)

	if status == http.StatusUnprocessableEntity {
		if fields, ok := FieldErrors(err); ok {
			shared.RespondValidationError(w, r, fields)
			return
		}
	}

	message := GetSafeErrorMessage(err)
	if status == http.StatusInternalServerError && fallback != "" {
		message = fallback
	}

	var opts []shared.ResponseOption
	if status == http.StatusUnauthorized || status == http.StatusForbidden {
		opts = append(opts, shared.WithElevatedLogLevel())
	}
	shared.RespondWithErrorAndLog(w, r, status, message, err, opts...)
}
