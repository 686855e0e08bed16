// Package postgres provides PostgreSQL implementations of the storage
// interfaces defined in internal/store and internal/job.
//
// Stores run over database/sql with the pgx stdlib driver and accept a
// store.DBTX so the same code serves plain connections and transactions.
// Driver errors are translated into store sentinels by MapError; schema
// migrations are embedded and applied with goose.
package postgres
