// Package journal keeps a local record of broadcast transactions.
//
// Entries live in SQLite (the default, schema created with AutoMigrate) or
// PostgreSQL (schema managed by embedded goose migrations).
package journal
