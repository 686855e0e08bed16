// Package notify sends the email a user receives when they create a task.
//
// Delivery goes through the job queue: TaskCreatedNotifier listens for
// TaskCreated events and dispatches a SendTaskCreatedJob, which renders the
// message and hands it to a Mailer when it runs.
package notify
