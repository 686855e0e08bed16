// Package api handles incoming HTTP requests, request validation and response
// formatting. It adapts the HTTP surface onto the auth and task services and
// maps their errors to status codes and safe messages.
package api
