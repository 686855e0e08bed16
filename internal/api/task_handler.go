package api

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/phrazzld/tasker-api/internal/api/shared"
	"github.com/phrazzld/tasker-api/internal/domain"
	"github.com/phrazzld/tasker-api/internal/platform/logger"
	"github.com/phrazzld/tasker-api/internal/redact"
	"github.com/phrazzld/tasker-api/internal/service"
)

// UserLookup loads the owner embedded in single-task responses.
type UserLookup interface {
	GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error)
}

// TaskHandler handles the task endpoints. Every request is scoped to the
// authenticated user.
type TaskHandler struct {
	tasks  service.TaskService
	users  UserLookup
	logger *slog.Logger
}

// NewTaskHandler creates a new TaskHandler. users may be nil, in which case
// responses carry no embedded user.
func NewTaskHandler(tasks service.TaskService, users UserLookup, logger *slog.Logger) *TaskHandler {
	if tasks == nil {
		panic("tasks cannot be nil for TaskHandler") // ALLOW-PANIC
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &TaskHandler{
		tasks:  tasks,
		users:  users,
		logger: logger.With(slog.String("component", "task_handler")),
	}
}

// Index handles GET /tasks.
func (h *TaskHandler) Index(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContextOrDefault(r.Context(), h.logger)

	userID, ok := requireUser(w, r, log)
	if !ok {
		return
	}

	filter, err := parseTaskFilter(r.URL.Query())
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	page, err := h.tasks.List(r.Context(), userID, filter)
	if err != nil {
		HandleAPIError(w, r, err, "Failed to list tasks")
		return
	}

	shared.RespondPaginated(w, r, shared.DefaultSuccessMessage, page.Tasks, page.Pagination)
}

// Store handles POST /tasks.
func (h *TaskHandler) Store(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContextOrDefault(r.Context(), h.logger)

	userID, ok := requireUser(w, r, log)
	if !ok {
		return
	}

	var req CreateTaskRequest
	if err := shared.DecodeJSON(w, r, &req); err != nil {
		HandleAPIError(w, r, err, "")
		return
	}
	input, convErr := req.toInput()
	if err := mergeValidation(shared.ValidateRequest(req), convErr); err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	task, err := h.tasks.Create(r.Context(), userID, input)
	if err != nil {
		HandleAPIError(w, r, err, "Failed to create task")
		return
	}

	shared.RespondSuccess(w, r, http.StatusCreated, "Task created successfully", h.withUser(r.Context(), task))
}

// Show handles GET /tasks/{id}.
func (h *TaskHandler) Show(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContextOrDefault(r.Context(), h.logger)

	userID, taskID, ok := handleUserIDAndPathUUID(w, r, "id", log)
	if !ok {
		return
	}

	task, err := h.tasks.Get(r.Context(), userID, taskID)
	if err != nil {
		HandleAPIError(w, r, err, "Failed to load task")
		return
	}

	shared.RespondSuccess(w, r, http.StatusOK, shared.DefaultSuccessMessage, h.withUser(r.Context(), task))
}

// Update handles PUT and PATCH /tasks/{id}.
func (h *TaskHandler) Update(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContextOrDefault(r.Context(), h.logger)

	userID, taskID, ok := handleUserIDAndPathUUID(w, r, "id", log)
	if !ok {
		return
	}

	var req UpdateTaskRequest
	if err := shared.DecodeJSON(w, r, &req); err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	// Ownership is decided before the payload is judged.
	task, err := h.tasks.UpdateWith(r.Context(), userID, taskID, req.toPatch)
	if err != nil {
		HandleAPIError(w, r, err, "Failed to update task")
		return
	}

	shared.RespondSuccess(w, r, http.StatusOK, "Task updated successfully", h.withUser(r.Context(), task))
}

// Destroy handles DELETE /tasks/{id}.
func (h *TaskHandler) Destroy(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContextOrDefault(r.Context(), h.logger)

	userID, taskID, ok := handleUserIDAndPathUUID(w, r, "id", log)
	if !ok {
		return
	}

	if err := h.tasks.Delete(r.Context(), userID, taskID); err != nil {
		HandleAPIError(w, r, err, "Failed to delete task")
		return
	}

	shared.RespondNoContent(w)
}

// Complete handles PATCH /tasks/{id}/complete.
func (h *TaskHandler) Complete(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContextOrDefault(r.Context(), h.logger)

	userID, taskID, ok := handleUserIDAndPathUUID(w, r, "id", log)
	if !ok {
		return
	}

	task, err := h.tasks.Complete(r.Context(), userID, taskID)
	if err != nil {
		HandleAPIError(w, r, err, "Failed to complete task")
		return
	}

	shared.RespondSuccess(w, r, http.StatusOK, "Task marked as completed", h.withUser(r.Context(), task))
}

// Overdue handles GET /tasks/overdue.
func (h *TaskHandler) Overdue(w http.ResponseWriter, r *http.Request) {
	h.respondList(w, r, h.tasks.Overdue, "Failed to list overdue tasks")
}

// HighPriority handles GET /tasks/high-priority.
func (h *TaskHandler) HighPriority(w http.ResponseWriter, r *http.Request) {
	h.respondList(w, r, h.tasks.HighPriority, "Failed to list high priority tasks")
}

func (h *TaskHandler) respondList(
	w http.ResponseWriter,
	r *http.Request,
	list func(context.Context, uuid.UUID) ([]*domain.Task, error),
	failure string,
) {
	log := logger.FromContextOrDefault(r.Context(), h.logger)

	userID, ok := requireUser(w, r, log)
	if !ok {
		return
	}

	tasks, err := list(r.Context(), userID)
	if err != nil {
		HandleAPIError(w, r, err, failure)
		return
	}

	shared.RespondSuccess(w, r, http.StatusOK, shared.DefaultSuccessMessage, tasks)
}

// withUser embeds the task owner. A failed lookup is logged and the user
// omitted; the task itself has already been read or written.
func (h *TaskHandler) withUser(ctx context.Context, task *domain.Task) TaskResponse {
	resp := TaskResponse{Task: task}
	if h.users == nil {
		return resp
	}

	user, err := h.users.GetByID(ctx, task.UserID)
	if err != nil {
		logger.FromContextOrDefault(ctx, h.logger).Warn("failed to load task owner",
			"task_id", task.ID,
			"error", redact.Error(err))
		return resp
	}
	resp.User = user
	return resp
}
