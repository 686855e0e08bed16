package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/phrazzld/tasker-api/internal/domain"
	"github.com/phrazzld/tasker-api/internal/job"
)

// TaskCreatedJobType identifies SendTaskCreatedJob in the job store.
const TaskCreatedJobType = "mail.task_created"

type taskCreatedPayload struct {
	Recipient Recipient   `json:"recipient"`
	Task      domain.Task `json:"task"`
}

// SendTaskCreatedJob emails the owner of a newly created task. The payload
// carries the whole message input so a recovered job needs no lookups.
type SendTaskCreatedJob struct {
	id      uuid.UUID
	payload taskCreatedPayload
	mailer  Mailer
}

var _ job.Job = (*SendTaskCreatedJob)(nil)

// NewSendTaskCreatedJob creates the job for task, addressed to to.
func NewSendTaskCreatedJob(task domain.Task, to Recipient, mailer Mailer) *SendTaskCreatedJob {
	return &SendTaskCreatedJob{
		id:      uuid.New(),
		payload: taskCreatedPayload{Recipient: to, Task: task},
		mailer:  mailer,
	}
}

// ID implements job.Job.
func (j *SendTaskCreatedJob) ID() uuid.UUID { return j.id }

// Type implements job.Job.
func (j *SendTaskCreatedJob) Type() string { return TaskCreatedJobType }

// Payload implements job.Job.
func (j *SendTaskCreatedJob) Payload() []byte {
	data, err := json.Marshal(j.payload)
	if err != nil {
		// Task and Recipient hold only strings, times and uuids.
		panic(fmt.Sprintf("failed to encode %s payload: %v", TaskCreatedJobType, err)) // ALLOW-PANIC
	}
	return data
}

// Recipient returns who the email is addressed to.
func (j *SendTaskCreatedJob) Recipient() Recipient { return j.payload.Recipient }

// Execute implements job.Job.
func (j *SendTaskCreatedJob) Execute(ctx context.Context) error {
	msg, err := TaskCreatedMessage(j.payload.Task, j.payload.Recipient)
	if err != nil {
		return err
	}
	return j.mailer.Send(ctx, msg)
}

// RegisterJobs adds the notify job factories to registry.
func RegisterJobs(registry *job.Registry, mailer Mailer) {
	registry.Register(TaskCreatedJobType, func(id uuid.UUID, payload []byte) (job.Job, error) {
		var p taskCreatedPayload
		if err := json.Unmarshal(payload, &p); err != nil {
			return nil, fmt.Errorf("invalid %s payload: %w", TaskCreatedJobType, err)
		}
		return &SendTaskCreatedJob{id: id, payload: p, mailer: mailer}, nil
	})
}
