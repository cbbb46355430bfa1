// Package sqladapter implements the engine's connection adapter contract
// on top of database/sql. It executes compiled statements, manages the
// transaction primitives, and carries an LRU cache of prepared statements
// for non-transactional queries.
package sqladapter

import (
	"context"
	"database/sql"
	"errors"
	"sync"
)

// Errors returned by transaction primitives.
var (
	// ErrTxOpen is returned when Begin is called while a transaction is already open.
	ErrTxOpen = errors.New("sqladapter: transaction already open")
	// ErrNoTx is returned when Commit or Rollback is called with no open transaction.
	ErrNoTx = errors.New("sqladapter: no open transaction")
)

// Adapter executes compiled statements against a database/sql connection.
// Backend errors are surfaced to the caller unmodified; the adapter never
// caches or reinterprets SQL.
type Adapter struct {
	db         *sql.DB
	driverName string
	stmts      *stmtCache

	mu sync.Mutex
	tx *sql.Tx
}

// New wraps an existing database/sql connection.
func New(db *sql.DB, driverName string) *Adapter {
	return &Adapter{
		db:         db,
		driverName: driverName,
		stmts:      newStmtCache(defaultStmtCapacity),
	}
}

// Open opens a database/sql connection and wraps it.
func Open(driverName, dsn string) (*Adapter, error) {
	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, err
	}
	return New(db, driverName), nil
}

// DriverName returns the underlying driver name.
func (a *Adapter) DriverName() string {
	return a.driverName
}

// Close releases cached statements and the underlying connection.
func (a *Adapter) Close() error {
	a.stmts.Clear()
	return a.db.Close()
}

// prepare returns a statement for the query, preferring the cache.
// Transactions bypass the cache; the returned close function is a no-op
// for cached statements.
func (a *Adapter) prepare(ctx context.Context, query string) (*sql.Stmt, func(), error) {
	a.mu.Lock()
	tx := a.tx
	a.mu.Unlock()

	if tx != nil {
		stmt, err := tx.PrepareContext(ctx, query)
		if err != nil {
			return nil, nil, err
		}
		return stmt, func() { _ = stmt.Close() }, nil
	}

	if stmt, ok := a.stmts.Get(query); ok {
		return stmt, func() {}, nil
	}

	stmt, err := a.db.PrepareContext(ctx, query)
	if err != nil {
		return nil, nil, err
	}
	a.stmts.Set(query, stmt)
	return stmt, func() {}, nil
}

// Query executes a statement and returns all result rows as maps keyed by
// column name. []byte values are converted to string.
func (a *Adapter) Query(ctx context.Context, query string, params []interface{}) ([]map[string]interface{}, error) {
	stmt, done, err := a.prepare(ctx, query)
	if err != nil {
		return nil, err
	}
	defer done()

	rows, err := stmt.QueryContext(ctx, params...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	return scanRows(rows)
}

// Exec executes a statement and returns the affected row count.
func (a *Adapter) Exec(ctx context.Context, query string, params []interface{}) (int64, error) {
	stmt, done, err := a.prepare(ctx, query)
	if err != nil {
		return 0, err
	}
	defer done()

	res, err := stmt.ExecContext(ctx, params...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// Insert executes an INSERT and returns the new row id. Drivers without
// LastInsertId support (lib/pq) report 0.
func (a *Adapter) Insert(ctx context.Context, query string, params []interface{}) (int64, error) {
	stmt, done, err := a.prepare(ctx, query)
	if err != nil {
		return 0, err
	}
	defer done()

	res, err := stmt.ExecContext(ctx, params...)
	if err != nil {
		return 0, err
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, nil
	}
	return id, nil
}

// Begin opens a transaction. Only one transaction may be open at a time
// on an adapter; the engine's transaction manager enforces nesting on top
// of this.
func (a *Adapter) Begin(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.tx != nil {
		return ErrTxOpen
	}

	tx, err := a.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	a.tx = tx
	return nil
}

// Commit commits the open transaction.
func (a *Adapter) Commit() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.tx == nil {
		return ErrNoTx
	}
	err := a.tx.Commit()
	a.tx = nil
	return err
}

// Rollback rolls back the open transaction.
func (a *Adapter) Rollback() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.tx == nil {
		return ErrNoTx
	}
	err := a.tx.Rollback()
	a.tx = nil
	return err
}

// InTransaction reports whether a transaction is currently open.
func (a *Adapter) InTransaction() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.tx != nil
}

// scanRows drains a result set into maps keyed by column name.
func scanRows(rows *sql.Rows) ([]map[string]interface{}, error) {
	columns, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	var out []map[string]interface{}
	for rows.Next() {
		values := make([]interface{}, len(columns))
		ptrs := make([]interface{}, len(columns))
		for i := range values {
			ptrs[i] = &values[i]
		}

		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}

		row := make(map[string]interface{}, len(columns))
		for i, col := range columns {
			v := values[i]
			if b, ok := v.([]byte); ok {
				v = string(b)
			}
			row[col] = v
		}
		out = append(out, row)
	}

	return out, rows.Err()
}
