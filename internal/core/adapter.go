package core

import "context"

// Adapter is the connection contract the engine executes compiled
// statements through. Implementations must surface backend errors to the
// caller unmodified and must not cache or reinterpret SQL.
//
// The engine sequences Begin/Commit/Rollback; adapters only expose the
// primitives and report whether a transaction is currently open.
type Adapter interface {
	// Query executes a statement and returns all result rows as maps
	// keyed by column name.
	Query(ctx context.Context, sql string, params []interface{}) ([]map[string]interface{}, error)
	// Exec executes a statement and returns the affected row count.
	Exec(ctx context.Context, sql string, params []interface{}) (int64, error)
	// Insert executes an INSERT and returns the new row id (0 when the
	// backend cannot report one).
	Insert(ctx context.Context, sql string, params []interface{}) (int64, error)
	// Begin opens a transaction.
	Begin(ctx context.Context) error
	// Commit commits the open transaction.
	Commit() error
	// Rollback rolls back the open transaction.
	Rollback() error
	// InTransaction reports whether a transaction is currently open.
	InTransaction() bool
	// Close releases the underlying connection.
	Close() error
}
