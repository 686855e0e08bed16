package shared

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/phrazzld/tasker-api/internal/platform/logger"
	"github.com/phrazzld/tasker-api/internal/redact"
)

// Envelope wraps every task endpoint response and every error response.
type Envelope struct {
	StatusCode int                 `json:"statusCode"`
	Message    string              `json:"message"`
	Data       interface{}         `json:"data"`
	Errors     map[string][]string `json:"errors,omitempty"`
	Meta       interface{}         `json:"meta,omitempty"`
	TraceID    string              `json:"trace_id,omitempty"`
}

// DefaultSuccessMessage is used when a handler has nothing more specific to say.
const DefaultSuccessMessage = "Operation performed successfully"

// ResponseOption customizes error logging.
type ResponseOption func(*responseOptions)

type responseOptions struct {
	elevateLogLevel bool
}

// WithElevatedLogLevel logs a 4xx response at WARN instead of DEBUG.
func WithElevatedLogLevel() ResponseOption {
	return func(opts *responseOptions) {
		opts.elevateLogLevel = true
	}
}

// RespondWithJSON writes data as JSON with the given status code.
func RespondWithJSON(w http.ResponseWriter, r *http.Request, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.FromContextOrDefault(r.Context(), slog.Default()).
			Error("failed to encode JSON response", "error", err)
	}
}

// RespondSuccess writes data inside an Envelope.
func RespondSuccess(w http.ResponseWriter, r *http.Request, status int, message string, data interface{}) {
	RespondWithJSON(w, r, status, Envelope{StatusCode: status, Message: message, Data: data})
}

// RespondPaginated writes data inside an Envelope with pagination meta.
func RespondPaginated(w http.ResponseWriter, r *http.Request, message string, data, meta interface{}) {
	RespondWithJSON(w, r, http.StatusOK, Envelope{
		StatusCode: http.StatusOK,
		Message:    message,
		Data:       data,
		Meta:       meta,
	})
}

// RespondNoContent writes a 204.
func RespondNoContent(w http.ResponseWriter) {
	w.WriteHeader(http.StatusNoContent)
}

// RespondWithError writes an error Envelope carrying the request trace ID.
func RespondWithError(w http.ResponseWriter, r *http.Request, status int, message string) {
	traceID := GetTraceID(r.Context())

	logger.FromContextOrDefault(r.Context(), slog.Default()).Debug("sending error response",
		"status_code", status,
		"message", message,
		"path", r.URL.Path,
		"method", r.Method)

	RespondWithJSON(w, r, status, Envelope{StatusCode: status, Message: message, TraceID: traceID})
}

// RespondValidationError writes a 422 Envelope with per-field messages.
func RespondValidationError(w http.ResponseWriter, r *http.Request, fields map[string][]string) {
	logger.FromContextOrDefault(r.Context(), slog.Default()).Debug("validation failed",
		"path", r.URL.Path,
		"fields", len(fields))

	RespondWithJSON(w, r, http.StatusUnprocessableEntity, Envelope{
		StatusCode: http.StatusUnprocessableEntity,
		Message:    "The given data was invalid.",
		Errors:     fields,
		TraceID:    GetTraceID(r.Context()),
	})
}

// RespondWithErrorAndLog writes an error Envelope with userMessage and logs the
// redacted err. 5xx responses log at ERROR, 429 at WARN, other 4xx at DEBUG
// unless WithElevatedLogLevel is passed.
func RespondWithErrorAndLog(
	w http.ResponseWriter,
	r *http.Request,
	status int,
	userMessage string,
	err error,
	opts ...ResponseOption,
) {
	traceID := GetTraceID(r.Context())

	attrs := []slog.Attr{
		slog.String("path", r.URL.Path),
		slog.String("method", r.Method),
		slog.Int("status_code", status),
		slog.String("user_message", userMessage),
	}
	if err != nil {
		attrs = append(attrs,
			slog.String("error", redact.Error(err)),
			slog.String("error_type", fmt.Sprintf("%T", err)))
	}

	var o responseOptions
	for _, opt := range opts {
		opt(&o)
	}

	level := slog.LevelDebug
	switch {
	case status >= http.StatusInternalServerError:
		level = slog.LevelError
	case status == http.StatusTooManyRequests:
		level = slog.LevelWarn
	case o.elevateLogLevel && status >= http.StatusBadRequest:
		level = slog.LevelWarn
	}

	log := logger.FromContextOrDefault(r.Context(), slog.Default())
	log.LogAttrs(r.Context(), level, "API error response", attrs...)

	RespondWithJSON(w, r, status, Envelope{StatusCode: status, Message: userMessage, TraceID: traceID})
}
