package notify

import (
	"bytes"
	"fmt"
	"text/template"

	"github.com/phrazzld/tasker-api/internal/domain"
)

var taskCreatedBody = template.Must(template.New("task_created").Parse(`Hello {{.Name}},

A new task was added to your list.

Title:       {{.Task.Title}}
Description: {{.Task.Description}}
Priority:    {{.Task.Priority}}
Status:      {{.Task.Status}}
Due date:    {{if .Task.DueDate}}{{.Task.DueDate.Format "2006-01-02"}}{{else}}none{{end}}

Thanks for using Tasker.
`))

// Recipient is who a notification is addressed to.
type Recipient struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

// TaskCreatedMessage renders the "task created" email for task.
func TaskCreatedMessage(task domain.Task, to Recipient) (Message, error) {
	var body bytes.Buffer
	data := struct {
		Name string
		Task domain.Task
	}{Name: to.Name, Task: task}
	if err := taskCreatedBody.Execute(&body, data); err != nil {
		return Message{}, fmt.Errorf("failed to render task created email: %w", err)
	}

	return Message{
		To:      to.Email,
		ToName:  to.Name,
		Subject: "New task created: " + task.Title,
		Body:    body.String(),
	}, nil
}
