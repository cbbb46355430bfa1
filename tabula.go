// Package tabula is a database-agnostic active-record engine for Go with
// support for PostgreSQL, MySQL, and SQLite. It combines a fluent query
// builder, per-dialect SQL compilation, a hybrid query/row result cache
// with write-through invalidation, batch relationship loading, and
// serialized write scheduling for single-writer backends.
package tabula

import (
	"database/sql"

	"github.com/coregx/tabula/internal/cache"
	"github.com/coregx/tabula/internal/core"
	"github.com/coregx/tabula/internal/logger"
	"github.com/coregx/tabula/internal/sqladapter"
	"github.com/coregx/tabula/internal/tracer"
)

type (
	// DB is the engine handle: connection, dialect, cache, model
	// registry and write queue.
	DB = core.DB
	// Option is a functional option for configuring DB.
	Option = core.Option
	// Builder constructs and executes queries fluently.
	Builder = core.Builder
	// Record is a hydrated active record with dirty tracking.
	Record = core.Record
	// RelationOp is a pending asynchronous relationship load.
	RelationOp = core.RelationOp
	// Page is one page of a paginated result.
	Page = core.Page

	// ModelDef defines a registered model: table, primary key and
	// relationship descriptors.
	ModelDef = core.ModelDef
	// Relation describes a relationship between two models.
	Relation = core.Relation
	// RelationKind identifies a relationship variant.
	RelationKind = core.RelationKind

	// Adapter is the connection contract the engine executes compiled
	// statements through.
	Adapter = core.Adapter

	// Logger is the structured logging contract.
	Logger = logger.Logger
	// Tracer is the distributed tracing contract.
	Tracer = tracer.Tracer
)

// Relationship variants.
const (
	HasOne        = core.HasOne
	HasMany       = core.HasMany
	BelongsTo     = core.BelongsTo
	BelongsToMany = core.BelongsToMany
	MorphTo       = core.MorphTo
)

// Re-export core constructors and options.
var (
	NewHasOne        = core.NewHasOne
	NewHasMany       = core.NewHasMany
	NewBelongsTo     = core.NewBelongsTo
	NewBelongsToMany = core.NewBelongsToMany
	NewMorphTo       = core.NewMorphTo

	WithLogger             = core.WithLogger
	WithTracer             = core.WithTracer
	WithResultCache        = core.WithResultCache
	WithCacheTTL           = core.WithCacheTTL
	WithCacheDisabled      = core.WithCacheDisabled
	WithWriteSerialization = core.WithWriteSerialization
	WithConnectionID       = core.WithConnectionID
	WithSensitiveFields    = core.WithSensitiveFields

	// NewMemoryCache creates the in-memory hybrid result cache with
	// default capacities.
	NewMemoryCache = cache.NewMemory
	// NewMemoryCacheWithCapacity sets the query-level and row-level
	// capacities explicitly.
	NewMemoryCacheWithCapacity = cache.NewMemoryWithCapacity

	// NewSlogLogger adapts a log/slog logger.
	NewSlogLogger = logger.NewSlogAdapter
	// NewOtelTracer adapts an OpenTelemetry tracer.
	NewOtelTracer = tracer.NewOtelTracer

	// IsConstraint reports whether a backend error is a constraint
	// violation, across the supported drivers.
	IsConstraint = sqladapter.IsConstraint
)

// Sentinel errors.
var (
	ErrNoRows             = core.ErrNoRows
	ErrModelNotRegistered = core.ErrModelNotRegistered
	ErrUnknownRelation    = core.ErrUnknownRelation
	ErrRecordNotPersisted = core.ErrRecordNotPersisted
	ErrRecordGone         = core.ErrRecordGone
	ErrNoModel            = core.ErrNoModel
)

// Open opens a database by driver name and DSN and wraps it in an
// engine. The driver name selects the SQL dialect.
func Open(driverName, dsn string, opts ...Option) (*DB, error) {
	adapter, err := sqladapter.Open(driverName, dsn)
	if err != nil {
		return nil, err
	}
	return core.New(adapter, driverName, opts...), nil
}

// Wrap builds an engine over an existing *sql.DB. The caller keeps
// ownership of the pool's lifecycle settings; Close still closes it.
func Wrap(db *sql.DB, driverName string, opts ...Option) *DB {
	return core.New(sqladapter.New(db, driverName), driverName, opts...)
}
