// Package storage persists bot settings and per-user records.
//
// Backends:
//   - sqlite (default): modernc.org/sqlite, single connection, embedded schema
//   - postgres: gorm with auto-migrated models
//   - memory: process-local maps, for tests and dry runs
package storage
