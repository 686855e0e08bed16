// Package events carries task lifecycle events from the service layer to the
// components that react to them.
//
// Services emit a TaskEvent after every successful write without knowing who
// listens. Handlers registered on the emitter include the mail notifier, which
// queues the "task created" email, and the websocket hub, which pushes the
// event to the owner's open connections.
package events
