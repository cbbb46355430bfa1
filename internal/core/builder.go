package core

import (
	"context"
	"fmt"
	"strings"

	"github.com/coregx/tabula/internal/cache"
	"github.com/coregx/tabula/internal/query"
)

// Builder accumulates a query structure through fluent, order-preserving
// calls, then executes it. The builder is mutable: calls mutate the same
// structure and Get re-executes every time with no memoization. Callers
// needing isolation must not share a builder.
type Builder struct {
	db    *DB
	model *ModelDef // nil for plain table queries
	q     *query.Structure
	with  []string
	// constraint is applied once at execution time; set when this builder
	// represents a relationship's own query.
	constraint func(*Builder)
	err        error // first configuration error, surfaced at execution
}

// Table starts a query against a raw table with no model binding.
// Resulting records carry attributes but cannot save or load relations.
func (db *DB) Table(name string) *Builder {
	return &Builder{db: db, q: &query.Structure{Table: name}}
}

// Model starts a query against a registered model. An unregistered name
// is surfaced as an error at execution time.
func (db *DB) Model(name string) *Builder {
	b := &Builder{db: db, q: &query.Structure{}}
	def, ok := db.registry.Lookup(name)
	if !ok {
		b.err = WrapError(ErrModelNotRegistered, name)
		return b
	}
	b.model = def
	b.q.Table = def.Table
	return b
}

// Where appends a basic condition. The two-argument form implies
// equality; the three-argument form takes an explicit operator:
//
//	Where("status", "active")
//	Where("age", ">", 18)
//
// Conditions combine with AND in declaration order and are never merged
// or deduplicated.
func (b *Builder) Where(column string, args ...interface{}) *Builder {
	switch len(args) {
	case 1:
		b.q.Wheres = append(b.q.Wheres, query.Condition{Column: column, Operator: query.OpEq, Value: args[0]})
	case 2:
		op, ok := args[0].(string)
		if !ok {
			b.fail(fmt.Errorf("where %s: operator must be a string, got %T", column, args[0]))
			return b
		}
		b.q.Wheres = append(b.q.Wheres, query.Condition{Column: column, Operator: op, Value: args[1]})
	default:
		b.fail(fmt.Errorf("where %s: expected 1 or 2 arguments, got %d", column, len(args)))
	}
	return b
}

// WhereIn appends a set-membership condition. The value set must be
// non-empty; each element becomes one positional parameter.
func (b *Builder) WhereIn(column string, values ...interface{}) *Builder {
	b.q.Wheres = append(b.q.Wheres, query.Condition{Column: column, Operator: query.OpIn, Value: values})
	return b
}

// WhereNotIn appends a negated set-membership condition.
func (b *Builder) WhereNotIn(column string, values ...interface{}) *Builder {
	b.q.Wheres = append(b.q.Wheres, query.Condition{Column: column, Operator: query.OpNotIn, Value: values})
	return b
}

// WhereNull appends an IS NULL test.
func (b *Builder) WhereNull(column string) *Builder {
	b.q.Wheres = append(b.q.Wheres, query.Condition{Column: column, Operator: query.OpIs})
	return b
}

// WhereNotNull appends an IS NOT NULL test.
func (b *Builder) WhereNotNull(column string) *Builder {
	b.q.Wheres = append(b.q.Wheres, query.Condition{Column: column, Operator: query.OpIsNot})
	return b
}

// WhereRaw appends a raw condition. Bindings are positional and must
// align with "?" markers in the fragment.
func (b *Builder) WhereRaw(sql string, bindings ...interface{}) *Builder {
	b.q.Wheres = append(b.q.Wheres, query.Condition{Raw: sql, Bindings: bindings})
	return b
}

// Join appends a join clause. kind is one of query.JoinInner,
// query.JoinLeft, query.JoinRight.
func (b *Builder) Join(kind, table, left, op, right string) *Builder {
	b.q.Joins = append(b.q.Joins, query.Join{Kind: kind, Table: table, Left: left, Op: op, Right: right})
	return b
}

// OrderBy appends an ascending order clause.
func (b *Builder) OrderBy(column string) *Builder {
	b.q.Orders = append(b.q.Orders, query.Order{Column: column})
	return b
}

// OrderByDesc appends a descending order clause.
func (b *Builder) OrderByDesc(column string) *Builder {
	b.q.Orders = append(b.q.Orders, query.Order{Column: column, Desc: true})
	return b
}

// OrderByRaw sets a raw ordering, which takes precedence over structured
// order clauses.
func (b *Builder) OrderByRaw(sql string) *Builder {
	b.q.RawOrder = sql
	return b
}

// Limit sets the row limit.
func (b *Builder) Limit(n int) *Builder {
	b.q.Limit = n
	return b
}

// Offset sets the row offset.
func (b *Builder) Offset(n int) *Builder {
	b.q.Offset = n
	return b
}

// Select sets the column projection.
func (b *Builder) Select(columns ...string) *Builder {
	b.q.Columns = columns
	return b
}

// SelectRaw sets a raw projection, which takes precedence over Select.
func (b *Builder) SelectRaw(sql string) *Builder {
	b.q.RawSelect = sql
	return b
}

// With records relationship names (including dot-separated nested paths)
// to batch-load after the primary rows are fetched. Names are not
// validated here; an unknown name fails at execution time.
func (b *Builder) With(relations ...string) *Builder {
	b.with = append(b.with, relations...)
	return b
}

// Constrain registers a callback applied to the builder once, at the
// start of execution. The relationship resolver uses this to scope a
// relationship's own query.
func (b *Builder) Constrain(fn func(*Builder)) *Builder {
	b.constraint = fn
	return b
}

// Structure exposes the accumulated query structure.
func (b *Builder) Structure() *query.Structure {
	return b.q
}

func (b *Builder) fail(err error) {
	if b.err == nil {
		b.err = err
	}
}

// Get executes the query and hydrates the result rows into records.
// When With was used, the named relationships are batch-loaded before
// returning.
func (b *Builder) Get(ctx context.Context) ([]*Record, error) {
	if b.constraint != nil {
		fn := b.constraint
		b.constraint = nil
		fn(b)
	}
	if b.err != nil {
		return nil, b.err
	}

	rows, err := b.fetchRows(ctx)
	if err != nil {
		return nil, err
	}

	records := make([]*Record, len(rows))
	for i, row := range rows {
		records[i] = b.db.hydrate(b.model, row)
	}

	if len(b.with) > 0 {
		if err := b.db.eagerLoadAll(ctx, records, b.with); err != nil {
			return nil, err
		}
	}

	return records, nil
}

// First limits the query to one row and returns it, or ErrNoRows when
// the result set is empty.
func (b *Builder) First(ctx context.Context) (*Record, error) {
	b.q.Limit = 1
	records, err := b.Get(ctx)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, ErrNoRows
	}
	return records[0], nil
}

// Find fetches a single record by primary key. Requires a model binding.
func (b *Builder) Find(ctx context.Context, id interface{}) (*Record, error) {
	if b.err != nil {
		return nil, b.err
	}
	if b.model == nil {
		return nil, WrapError(ErrNoModel, "find on table query")
	}
	return b.Where(b.model.PrimaryKey, id).First(ctx)
}

// Count executes a COUNT(*) query with the accumulated predicates and
// joins but no projection, ordering, limit or offset.
func (b *Builder) Count(ctx context.Context) (int64, error) {
	if b.err != nil {
		return 0, b.err
	}

	sqlStr, params, err := b.db.dialect.CompileCount(b.q)
	if err != nil {
		return 0, err
	}

	rows, err := b.cachedQuery(ctx, sqlStr, params)
	if err != nil {
		return 0, err
	}
	if len(rows) == 0 {
		return 0, nil
	}
	for _, v := range rows[0] {
		return toInt64(v), nil
	}
	return 0, nil
}

// Page is one page of a paginated result.
type Page struct {
	Records  []*Record
	Total    int64
	Page     int // 1-based
	PageSize int
}

// Paginate executes a count query with the same predicates and a
// windowed query, returning both the page of records and the total
// count. Page numbers are 1-based.
func (b *Builder) Paginate(ctx context.Context, page, pageSize int) (*Page, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 1
	}

	total, err := b.Count(ctx)
	if err != nil {
		return nil, err
	}

	b.q.Limit = pageSize
	b.q.Offset = (page - 1) * pageSize
	records, err := b.Get(ctx)
	if err != nil {
		return nil, err
	}

	return &Page{Records: records, Total: total, Page: page, PageSize: pageSize}, nil
}

// fetchRows obtains the raw rows, consulting the hybrid cache when
// active: primary-key fetches go through the row cache with partial hits
// re-merged in the caller's id order, everything else through the query
// cache tagged with all referenced tables.
func (b *Builder) fetchRows(ctx context.Context) ([]map[string]interface{}, error) {
	if ids, ok := b.primaryKeyFetch(); ok && b.db.rowStore != nil && b.db.cacheActive() {
		return b.fetchByPrimaryKey(ctx, ids)
	}

	sqlStr, params, err := b.db.dialect.CompileSelect(b.q)
	if err != nil {
		return nil, err
	}
	return b.cachedQuery(ctx, sqlStr, params)
}

// cachedQuery runs a compiled statement through the query-level cache
// when active, falling back to the adapter on a miss.
func (b *Builder) cachedQuery(ctx context.Context, sqlStr string, params []interface{}) ([]map[string]interface{}, error) {
	if !b.db.cacheActive() {
		return b.db.runQuery(ctx, sqlStr, params)
	}

	key := cache.Key(b.db.connID, sqlStr, params)
	if rows, ok := b.db.store.Get(key); ok {
		b.db.traceCacheHit(ctx, sqlStr, len(rows))
		return rows, nil
	}

	rows, err := b.db.runQuery(ctx, sqlStr, params)
	if err != nil {
		return nil, err
	}

	b.db.store.Set(key, rows, b.q.Tables(), b.db.cacheTTL)
	return rows, nil
}

// primaryKeyFetch recognizes statements eligible for the row cache: a
// full-row fetch with a single equality or set-membership predicate on
// the primary key and no joins, projection, ordering or offset.
func (b *Builder) primaryKeyFetch() ([]interface{}, bool) {
	if b.model == nil {
		return nil, false
	}
	q := b.q
	if q.RawSelect != "" || len(q.Columns) > 0 || len(q.Joins) > 0 ||
		len(q.Orders) > 0 || q.RawOrder != "" || q.Offset > 0 {
		return nil, false
	}
	if len(q.Wheres) != 1 {
		return nil, false
	}

	c := q.Wheres[0]
	if c.IsRaw() || c.Column != b.model.PrimaryKey {
		return nil, false
	}

	switch c.Operator {
	case query.OpEq:
		if q.Limit > 1 {
			return nil, false
		}
		return []interface{}{c.Value}, true
	case query.OpIn:
		if q.Limit != 0 {
			return nil, false
		}
		set, ok := c.Value.([]interface{})
		if !ok || len(set) == 0 {
			return nil, false
		}
		return set, true
	}
	return nil, false
}

// fetchByPrimaryKey serves a primary-key fetch through the row cache.
// Already-cached ids are served directly; only the missing ids are
// fetched in one batched statement, and results are re-merged into the
// caller's original id order. Absent ids are simply omitted.
func (b *Builder) fetchByPrimaryKey(ctx context.Context, ids []interface{}) ([]map[string]interface{}, error) {
	table := b.model.Table
	pk := b.model.PrimaryKey

	found := make(map[string]map[string]interface{}, len(ids))
	var missing []interface{}
	for _, id := range ids {
		if row, ok := b.db.rowStore.GetRow(table, id); ok {
			found[normKey(id)] = row
		} else {
			missing = append(missing, id)
		}
	}

	if len(missing) > 0 {
		batch := &query.Structure{
			Table:  table,
			Wheres: []query.Condition{{Column: pk, Operator: query.OpIn, Value: missing}},
		}
		sqlStr, params, err := b.db.dialect.CompileSelect(batch)
		if err != nil {
			return nil, err
		}
		rows, err := b.db.runQuery(ctx, sqlStr, params)
		if err != nil {
			return nil, err
		}
		for _, row := range rows {
			idVal := row[pk]
			b.db.rowStore.SetRow(table, idVal, row, b.db.cacheTTL)
			found[normKey(idVal)] = row
		}
	}

	out := make([]map[string]interface{}, 0, len(ids))
	for _, id := range ids {
		if row, ok := found[normKey(id)]; ok {
			out = append(out, row)
		}
	}
	return out, nil
}

// hydrate converts a raw row into a record with existence set and
// original equal to current. The row is copied so cached rows are never
// mutated through records.
func (db *DB) hydrate(def *ModelDef, row map[string]interface{}) *Record {
	attrs := make(map[string]interface{}, len(row))
	original := make(map[string]interface{}, len(row))
	for k, v := range row {
		attrs[k] = v
		original[k] = v
	}
	return &Record{
		db:        db,
		model:     def,
		attrs:     attrs,
		original:  original,
		exists:    true,
		relations: make(map[string]interface{}),
		pending:   make(map[string]*RelationOp),
	}
}

// normKey normalizes a key value for lookup-map matching, so values that
// differ only in integer width (driver int64 vs caller int) still match.
func normKey(v interface{}) string {
	return fmt.Sprintf("%v", v)
}

// toInt64 coerces driver-returned numeric values.
func toInt64(v interface{}) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case int:
		return int64(n)
	case int32:
		return int64(n)
	case uint64:
		return int64(n)
	case float64:
		return int64(n)
	case string:
		var out int64
		_, _ = fmt.Sscan(strings.TrimSpace(n), &out)
		return out
	default:
		return 0
	}
}
