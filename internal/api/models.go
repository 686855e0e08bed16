package api

import (
	"encoding/json"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/phrazzld/tasker-api/internal/domain"
	"github.com/phrazzld/tasker-api/internal/service"
)

// RegisterRequest defines the payload for the registration endpoint.
type RegisterRequest struct {
	Name     string `json:"name"     validate:"required,max=255"`
	Email    string `json:"email"    validate:"required,email,max=255"`
	Password string `json:"password" validate:"required,min=8,max=72"`
}

// LoginRequest defines the payload for the login endpoint.
type LoginRequest struct {
	Email    string `json:"email"    validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// AuthResponse is returned by register and login.
type AuthResponse struct {
	AccessToken string       `json:"access_token"`
	TokenType   string       `json:"token_type"`
	ExpiresIn   int          `json:"expires_in"`
	ExpiresAt   string       `json:"expires_at"`
	User        *domain.User `json:"user"`
}

func newAuthResponse(res *service.AuthResult) AuthResponse {
	return AuthResponse{
		AccessToken: res.AccessToken,
		TokenType:   "Bearer",
		ExpiresIn:   int(res.ExpiresIn / time.Second),
		ExpiresAt:   res.ExpiresAt.UTC().Format(time.RFC3339),
		User:        res.User,
	}
}

// MessageResponse carries a bare message.
type MessageResponse struct {
	Message string `json:"message"`
}

// CreateTaskRequest defines the payload for creating a task. Status and
// priority are matched case-insensitively; due_date is a calendar date or an
// RFC 3339 timestamp.
type CreateTaskRequest struct {
	Title       string  `json:"title"       validate:"required,max=255"`
	Description string  `json:"description" validate:"required"`
	Status      string  `json:"status"`
	Priority    string  `json:"priority"`
	DueDate     *string `json:"due_date"`
}

// toInput converts the request, collecting every field error.
func (req CreateTaskRequest) toInput() (service.CreateTaskInput, error) {
	var errs domain.ValidationErrors
	input := service.CreateTaskInput{
		Title:       req.Title,
		Description: req.Description,
	}

	if req.Status != "" {
		status, err := domain.ParseTaskStatus(req.Status)
		if err != nil {
			errs = append(errs, invalidChoice("status", err))
		}
		input.Status = status
	}
	if req.Priority != "" {
		priority, err := domain.ParseTaskPriority(req.Priority)
		if err != nil {
			errs = append(errs, invalidChoice("priority", err))
		}
		input.Priority = priority
	}
	if req.DueDate != nil && strings.TrimSpace(*req.DueDate) != "" {
		due, err := domain.ParseDate(*req.DueDate)
		if err != nil {
			errs = append(errs, domain.NewValidationError("due_date", "is not a valid date", err))
		} else {
			input.DueDate = &due
		}
	}

	return input, errs.OrNil()
}

// UpdateTaskRequest defines the payload for a partial update. Absent fields are
// left unchanged; fields that are present must not be empty, except due_date
// where null clears the date.
type UpdateTaskRequest struct {
	Title       *string         `json:"title"`
	Description *string         `json:"description"`
	Status      *string         `json:"status"`
	Priority    *string         `json:"priority"`
	DueDate     json.RawMessage `json:"due_date"`
}

func (req UpdateTaskRequest) toPatch() (domain.TaskPatch, error) {
	var errs domain.ValidationErrors
	var patch domain.TaskPatch

	if req.Title != nil {
		title := strings.TrimSpace(*req.Title)
		switch {
		case title == "":
			errs = append(errs, domain.NewValidationError("title", "is required", domain.ErrEmptyTaskTitle))
		case utf8.RuneCountInString(title) > domain.MaxNameLength:
			errs = append(errs, domain.NewValidationError("title", "may not be greater than 255 characters", domain.ErrTaskTitleTooLong))
		default:
			patch.Title = &title
		}
	}
	if req.Description != nil {
		if strings.TrimSpace(*req.Description) == "" {
			errs = append(errs, domain.NewValidationError("description", "is required", domain.ErrEmptyTaskDescription))
		} else {
			patch.Description = req.Description
		}
	}
	if req.Status != nil {
		status, err := domain.ParseTaskStatus(*req.Status)
		if err != nil {
			errs = append(errs, invalidChoice("status", err))
		} else {
			patch.Status = &status
		}
	}
	if req.Priority != nil {
		priority, err := domain.ParseTaskPriority(*req.Priority)
		if err != nil {
			errs = append(errs, invalidChoice("priority", err))
		} else {
			patch.Priority = &priority
		}
	}
	if len(req.DueDate) > 0 {
		due, err := parseOptionalDate(req.DueDate)
		if err != nil {
			errs = append(errs, domain.NewValidationError("due_date", "is not a valid date", err))
		} else {
			patch.DueDate = due
		}
	}

	return patch, errs.OrNil()
}

func parseOptionalDate(raw json.RawMessage) (domain.OptionalDate, error) {
	var s *string
	if err := json.Unmarshal(raw, &s); err != nil {
		return domain.OptionalDate{}, domain.ErrInvalidDate
	}
	if s == nil || strings.TrimSpace(*s) == "" {
		return domain.OptionalDate{Set: true}, nil
	}
	due, err := domain.ParseDate(*s)
	if err != nil {
		return domain.OptionalDate{}, err
	}
	return domain.OptionalDate{Set: true, Value: &due}, nil
}

func invalidChoice(field string, err error) *domain.ValidationError {
	var allowed []string
	switch field {
	case "status":
		for _, s := range domain.TaskStatuses() {
			allowed = append(allowed, string(s))
		}
	case "priority":
		for _, p := range domain.TaskPriorities() {
			allowed = append(allowed, string(p))
		}
	}
	return domain.NewValidationError(field, "must be one of: "+strings.Join(allowed, ", "), err)
}

// TaskResponse is a task with its owner embedded.
type TaskResponse struct {
	*domain.Task
	User *domain.User `json:"user,omitempty"`
}
