// Package testdb provides helpers for tests that run against a real
// PostgreSQL database.
//
// Tests opt in by setting TASKER_TEST_DATABASE_URL; without it GetTestDB
// skips the calling test. The schema is migrated once per process and each
// test runs in a transaction that is rolled back afterwards, so tests can run
// in parallel without cleaning up.
package testdb
