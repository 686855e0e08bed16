// Package broadcast pushes task events to the owning user's open websocket
// connections.
//
// Every user has one private channel, "private-user.{id}". A connection is
// subscribed to its user's channel when it is accepted and receives each
// TaskEvent for that user as a JSON frame:
//
//	{"channel":"private-user.{id}","event":"TaskCreated","data":{...task...}}
package broadcast
