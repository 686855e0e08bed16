// Package job runs persisted background work.
//
// Jobs are saved through a Store before they are queued, so a crash never
// loses work: Runner.Start recovers pending and interrupted jobs, and a
// monitor resets jobs stuck in processing. Failed attempts are retried with a
// linear backoff until the record's attempt budget is spent.
//
// Dispatcher selects between executing jobs inline (the "sync" driver) and
// handing them to a Runner (the "database" driver).
package job
