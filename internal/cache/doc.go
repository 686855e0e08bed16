// Package cache memoizes read-only task queries per user.
//
// Every key written for a user is recorded in that user's index set, so
// InvalidateUser can delete exactly the user's entries without scanning the
// keyspace.
package cache
