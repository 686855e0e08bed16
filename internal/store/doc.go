// Package store defines the persistence interfaces for users, tasks and
// access tokens, together with the sentinel errors every implementation
// returns. Services depend on these interfaces only; the Postgres
// implementations live in internal/platform/postgres.
package store
