package notify

import (
	"context"
	"net/mail"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/tasker-api/internal/job"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSendTaskCreatedJob(t *testing.T) {
	mailer := NewLogMailer(mail.Address{Address: "noreply@tasker.test"}, quietLogger())
	task := newTask(t, nil)
	to := Recipient{Name: "Ana", Email: "ana@example.com"}

	j := NewSendTaskCreatedJob(*task, to, mailer)
	assert.NotEqual(t, uuid.Nil, j.ID())
	assert.Equal(t, TaskCreatedJobType, j.Type())
	assert.Equal(t, to, j.Recipient())

	require.NoError(t, j.Execute(context.Background()))
	sent := mailer.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, "ana@example.com", sent[0].To)
}

func TestRegisterJobs_RebuildsFromPayload(t *testing.T) {
	mailer := NewLogMailer(mail.Address{Address: "noreply@tasker.test"}, quietLogger())
	registry := job.NewRegistry()
	RegisterJobs(registry, mailer)

	original := NewSendTaskCreatedJob(*newTask(t, nil), Recipient{Name: "Ana", Email: "ana@example.com"}, mailer)
	rec := job.NewRecord(original, 3, time.Now())

	rebuilt, err := registry.Build(rec)
	require.NoError(t, err)
	assert.Equal(t, original.ID(), rebuilt.ID())
	assert.JSONEq(t, string(original.Payload()), string(rebuilt.Payload()))

	require.NoError(t, rebuilt.Execute(context.Background()))
	require.Len(t, mailer.Sent(), 1)
	assert.Equal(t, "New task created: Pay rent", mailer.Sent()[0].Subject)
}

func TestRegisterJobs_BadPayload(t *testing.T) {
	registry := job.NewRegistry()
	RegisterJobs(registry, NewLogMailer(mail.Address{}, quietLogger()))

	_, err := registry.Build(&job.Record{ID: uuid.New(), Type: TaskCreatedJobType, Payload: []byte("{")})
	assert.Error(t, err)
}
