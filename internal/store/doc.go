// Package store provides durable persistence for tasks and subtasks.
//
// # Architecture
//
// The package defines a single Backend interface with two implementations:
//
//   - SQLiteBackend: production storage over modernc.org/sqlite
//   - MemoryBackend: in-memory storage for tests
//
// Reads go straight through the backend and always reflect the latest
// committed state. Writes go through Backend.Update, which wraps the
// supplied function in one transaction: everything commits or nothing does.
// The backend serializes transactions, so there is a single logical writer
// per process.
//
// # Data Models
//
//   - Task: id, text, completed, createdAt
//   - SubTask: id, parentTaskId (owning back-reference), text, completed, createdAt
//
// Tasks list newest first, subtasks oldest first. Created_at ties are
// broken by insertion order (SQLite rowid, memory insertion sequence).
//
// # SQLite Configuration
//
// The SQLite backend uses WAL mode for concurrent reads:
//
//	PRAGMA journal_mode=WAL;
//	PRAGMA foreign_keys=ON;
//
// # Migrations
//
// Schema migrations are versioned Go functions applied in ascending order
// at open, each in its own transaction, with the applied version recorded
// in a schema_migrations table. Re-running against a current database is a
// no-op.
//
// # Error Handling
//
// Sentinel errors:
//
//   - ErrNotFound: requested entity does not exist
//   - ErrValidation: caller-supplied input violates a field constraint
//   - ErrMigration: a migration step failed (fatal to startup)
//   - ErrTransaction: the storage transaction failed to commit
package store
