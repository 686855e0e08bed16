// Package service contains the application use cases: registering and
// authenticating users, and managing their tasks.
//
// Services depend only on the store interfaces, the task cache and the event
// emitter. Every task write follows the same sequence: ownership check, store
// write, invalidation of the owner's cached lists, then a TaskEvent. The API
// layer maps the sentinel errors defined here and in store, domain and auth
// onto HTTP status codes.
package service
