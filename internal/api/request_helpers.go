package api

import (
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/phrazzld/tasker-api/internal/api/shared"
	"github.com/phrazzld/tasker-api/internal/domain"
)

// getPathUUID parses the named chi path parameter as a UUID.
func getPathUUID(r *http.Request, paramName string) (uuid.UUID, error) {
	pathParam := chi.URLParam(r, paramName)
	if pathParam == "" {
		return uuid.Nil, domain.NewValidationError(paramName, "is required", domain.ErrValidation)
	}

	id, err := uuid.Parse(pathParam)
	if err != nil {
		return uuid.Nil, domain.NewValidationError(paramName, "has invalid format", domain.ErrInvalidID)
	}
	return id, nil
}

// requireUser returns the authenticated user ID, writing a 401 when absent.
func requireUser(w http.ResponseWriter, r *http.Request, log *slog.Logger) (uuid.UUID, bool) {
	userID, ok := shared.UserIDFromContext(r.Context())
	if !ok {
		log.Warn("user ID not found or invalid in request context")
		HandleAPIError(w, r, domain.ErrUnauthorized, "")
		return uuid.Nil, false
	}
	return userID, true
}

// handleUserIDAndPathUUID extracts the user ID from the context and the task
// ID from the path, writing an error response if either is missing.
//
// An unparseable task ID is reported as not found: no task can have it.
func handleUserIDAndPathUUID(
	w http.ResponseWriter,
	r *http.Request,
	paramName string,
	log *slog.Logger,
) (uuid.UUID, uuid.UUID, bool) {
	userID, ok := requireUser(w, r, log)
	if !ok {
		return uuid.Nil, uuid.Nil, false
	}

	pathID, err := getPathUUID(r, paramName)
	if err != nil {
		log.Debug("invalid path parameter",
			slog.String("param_name", paramName),
			slog.String("value", chi.URLParam(r, paramName)))
		shared.RespondWithError(w, r, http.StatusNotFound, "Task not found")
		return uuid.Nil, uuid.Nil, false
	}

	return userID, pathID, true
}

// parseTaskFilter reads list filters from the query string. Unknown sort
// columns and directions fall back to the defaults; malformed values for the
// other parameters are field errors.
func parseTaskFilter(q url.Values) (domain.TaskFilter, error) {
	var errs domain.ValidationErrors
	filter := domain.TaskFilter{
		Search: strings.TrimSpace(q.Get("search")),
		Sort:   strings.ToLower(q.Get("sort")),
		Order:  strings.ToLower(q.Get("order")),
	}

	if v := q.Get("status"); v != "" {
		status, err := domain.ParseTaskStatus(v)
		if err != nil {
			errs = append(errs, invalidChoice("status", err))
		} else {
			filter.Status = &status
		}
	}
	if v := q.Get("priority"); v != "" {
		priority, err := domain.ParseTaskPriority(v)
		if err != nil {
			errs = append(errs, invalidChoice("priority", err))
		} else {
			filter.Priority = &priority
		}
	}
	for _, p := range []struct {
		name string
		dst  **time.Time
	}{
		{"due_from", &filter.DueFrom},
		{"due_to", &filter.DueTo},
	} {
		v := q.Get(p.name)
		if v == "" {
			continue
		}
		d, err := domain.ParseDate(v)
		if err != nil {
			errs = append(errs, domain.NewValidationError(p.name, "is not a valid date", err))
			continue
		}
		*p.dst = &d
	}
	for _, p := range []struct {
		name string
		dst  *int
	}{
		{"page", &filter.Page},
		{"per_page", &filter.PerPage},
	} {
		v := q.Get(p.name)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			errs = append(errs, domain.NewValidationError(p.name, "must be a positive integer", domain.ErrInvalidFormat))
			continue
		}
		*p.dst = n
	}

	return filter.Normalize(), errs.OrNil()
}

// mergeValidation flattens validation results into one error. A non-validation
// error is returned as is.
func mergeValidation(errs ...error) error {
	var out domain.ValidationErrors
	for _, err := range errs {
		if err == nil {
			continue
		}
		var many domain.ValidationErrors
		var one *domain.ValidationError
		switch {
		case errors.As(err, &many):
			out = append(out, many...)
		case errors.As(err, &one):
			out = append(out, one)
		default:
			return err
		}
	}
	return out.OrNil()
}
