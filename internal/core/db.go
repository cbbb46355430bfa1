// Package core implements the Tabula engine: the query builder, record
// hydration and dirty tracking, the relationship resolver, the hybrid
// result cache integration, and the write queue / transaction manager.
package core

import (
	"context"
	"time"

	"github.com/coregx/tabula/internal/cache"
	"github.com/coregx/tabula/internal/dialects"
	"github.com/coregx/tabula/internal/logger"
	"github.com/coregx/tabula/internal/tracer"
)

// DB is the engine handle. It owns the connection adapter, the dialect,
// the result cache, the model registry and the write queue, and is passed
// by reference to every builder and record it creates. There is no global
// instance.
type DB struct {
	adapter    Adapter
	dialect    dialects.Dialect
	driverName string
	connID     string

	store    cache.Store
	rowStore cache.RowStore // nil when store has no row-level support
	cacheOn  bool
	cacheTTL time.Duration

	logger    logger.Logger
	sanitizer *logger.Sanitizer
	tracer    tracer.Tracer

	registry *Registry
	writes   *WriteQueue // nil when write serialization is disabled
}

// Option is a functional option for configuring DB.
type Option func(*DB)

// WithLogger sets the structured logger. Defaults to a no-op logger.
func WithLogger(l logger.Logger) Option {
	return func(db *DB) {
		db.logger = l
	}
}

// WithTracer sets the tracer. Defaults to a no-op tracer.
func WithTracer(t tracer.Tracer) Option {
	return func(db *DB) {
		db.tracer = t
	}
}

// WithResultCache configures the result cache store. Row-level caching is
// used when the store also implements cache.RowStore; otherwise caching
// degrades to query-level only. Without this option every call reaches
// the adapter directly.
func WithResultCache(s cache.Store) Option {
	return func(db *DB) {
		db.store = s
		db.rowStore, _ = s.(cache.RowStore)
		db.cacheOn = true
	}
}

// WithCacheTTL sets an absolute expiry applied to every cache entry.
// Zero (the default) means entries never expire.
func WithCacheTTL(ttl time.Duration) Option {
	return func(db *DB) {
		db.cacheTTL = ttl
	}
}

// WithCacheDisabled globally disables cache reads and writes while
// keeping the configured store (useful for tests and debugging).
func WithCacheDisabled() Option {
	return func(db *DB) {
		db.cacheOn = false
	}
}

// WithWriteSerialization enables the per-connection FIFO write queue.
// Required for single-writer backends such as embedded SQLite.
func WithWriteSerialization() Option {
	return func(db *DB) {
		db.writes = NewWriteQueue()
	}
}

// WithConnectionID overrides the connection identifier used in cache
// keys. Defaults to the driver name; set it when several engines with the
// same driver share one cache store.
func WithConnectionID(id string) Option {
	return func(db *DB) {
		db.connID = id
	}
}

// WithSensitiveFields overrides the column names whose bindings are
// masked in logs.
func WithSensitiveFields(fields []string) Option {
	return func(db *DB) {
		db.sanitizer = logger.NewSanitizer(fields)
	}
}

// New creates an engine over the given adapter. The driver name selects
// the SQL dialect and panics if no dialect is registered for it.
func New(adapter Adapter, driverName string, opts ...Option) *DB {
	db := &DB{
		adapter:    adapter,
		dialect:    dialects.GetDialect(driverName),
		driverName: driverName,
		connID:     driverName,
		logger:     &logger.NoopLogger{},
		sanitizer:  logger.NewSanitizer(nil),
		tracer:     &tracer.NoopTracer{},
		registry:   NewRegistry(),
	}

	for _, opt := range opts {
		opt(db)
	}

	return db
}

// Close releases the underlying adapter.
func (db *DB) Close() error {
	return db.adapter.Close()
}

// Register adds model definitions to the engine's registry. Definitions
// are immutable once registered; register every model before issuing
// queries against it.
func (db *DB) Register(defs ...ModelDef) {
	for _, def := range defs {
		db.registry.Register(def)
	}
}

// Registry exposes the model registry.
func (db *DB) Registry() *Registry {
	return db.registry
}

// cacheActive reports whether the cache may be consulted right now.
// Caching is skipped entirely while a transaction is open, when disabled,
// or when no store is configured.
func (db *DB) cacheActive() bool {
	return db.store != nil && db.cacheOn && !db.adapter.InTransaction()
}

// invalidate drops cached state for the given tables after a write.
func (db *DB) invalidate(tables ...string) {
	if db.store != nil {
		db.store.Invalidate(tables...)
	}
}

// Transaction runs fn inside a transaction. The outermost call owns the
// begin/commit/rollback boundary: nested calls detect the already-open
// transaction and run fn directly, so an inner failure propagates to and
// is handled by the outer scope. On error (or panic) the transaction is
// rolled back and the error rethrown.
func (db *DB) Transaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if db.adapter.InTransaction() {
		return fn(ctx)
	}

	if err := db.adapter.Begin(ctx); err != nil {
		return err
	}

	defer func() {
		if r := recover(); r != nil {
			if err := db.adapter.Rollback(); err != nil {
				db.logger.Error("rollback after panic failed", "error", err)
			}
			panic(r)
		}
	}()

	if err := fn(ctx); err != nil {
		if rbErr := db.adapter.Rollback(); rbErr != nil {
			db.logger.Error("rollback failed", "error", rbErr)
		}
		return err
	}

	return db.adapter.Commit()
}

// enqueueWrite routes a write operation through the write queue when
// serialization is enabled, otherwise runs it immediately.
func (db *DB) enqueueWrite(op func() error) error {
	if db.writes == nil {
		return op()
	}
	return db.writes.Enqueue(op)
}
