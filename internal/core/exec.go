package core

import (
	"context"
	"time"

	"github.com/coregx/tabula/internal/tracer"
)

// runQuery executes a read statement through the adapter with logging and
// tracing around the round-trip.
func (db *DB) runQuery(ctx context.Context, sqlStr string, params []interface{}) ([]map[string]interface{}, error) {
	ctx, span := db.tracer.StartSpan(ctx, "tabula.query")
	defer span.End()

	start := time.Now()
	rows, err := db.adapter.Query(ctx, sqlStr, params)
	elapsed := time.Since(start)

	masked := db.sanitizer.FormatParams(db.sanitizer.MaskParams(sqlStr, params))
	if err != nil {
		db.logger.Error("query failed",
			"sql", sqlStr,
			"params", masked,
			"duration_ms", elapsed.Milliseconds(),
			"database", db.driverName,
			"error", err,
		)
	} else {
		db.logger.Debug("query executed",
			"sql", sqlStr,
			"params", masked,
			"duration_ms", elapsed.Milliseconds(),
			"rows", len(rows),
			"database", db.driverName,
		)
	}

	tracer.AddQueryAttributes(span, &tracer.QueryMetadata{
		SQL:       sqlStr,
		Args:      params,
		Duration:  elapsed,
		Error:     err,
		Database:  db.driverName,
		Operation: tracer.DetectOperation(sqlStr),
	})

	return rows, err
}

// runExec executes a write statement and returns the affected row count.
func (db *DB) runExec(ctx context.Context, sqlStr string, params []interface{}) (int64, error) {
	ctx, span := db.tracer.StartSpan(ctx, "tabula.exec")
	defer span.End()

	start := time.Now()
	affected, err := db.adapter.Exec(ctx, sqlStr, params)
	elapsed := time.Since(start)

	db.logExec(sqlStr, params, affected, elapsed, err)
	tracer.AddQueryAttributes(span, &tracer.QueryMetadata{
		SQL:          sqlStr,
		Args:         params,
		Duration:     elapsed,
		RowsAffected: affected,
		Error:        err,
		Database:     db.driverName,
		Operation:    tracer.DetectOperation(sqlStr),
	})

	return affected, err
}

// runInsert executes an INSERT and returns the new row id.
func (db *DB) runInsert(ctx context.Context, sqlStr string, params []interface{}) (int64, error) {
	ctx, span := db.tracer.StartSpan(ctx, "tabula.insert")
	defer span.End()

	start := time.Now()
	id, err := db.adapter.Insert(ctx, sqlStr, params)
	elapsed := time.Since(start)

	db.logExec(sqlStr, params, 0, elapsed, err)
	tracer.AddQueryAttributes(span, &tracer.QueryMetadata{
		SQL:       sqlStr,
		Args:      params,
		Duration:  elapsed,
		Error:     err,
		Database:  db.driverName,
		Operation: tracer.DetectOperation(sqlStr),
	})

	return id, err
}

// traceCacheHit records a cache-served read, so cache hits stay visible
// in traces alongside real round-trips.
func (db *DB) traceCacheHit(ctx context.Context, sqlStr string, rows int) {
	_, span := db.tracer.StartSpan(ctx, "tabula.query")
	defer span.End()

	db.logger.Debug("query served from cache",
		"sql", sqlStr,
		"rows", rows,
		"database", db.driverName,
	)

	tracer.AddQueryAttributes(span, &tracer.QueryMetadata{
		SQL:       sqlStr,
		Database:  db.driverName,
		Operation: tracer.DetectOperation(sqlStr),
		CacheHit:  true,
	})
}

func (db *DB) logExec(sqlStr string, params []interface{}, affected int64, elapsed time.Duration, err error) {
	masked := db.sanitizer.FormatParams(db.sanitizer.MaskParams(sqlStr, params))
	if err != nil {
		db.logger.Error("statement failed",
			"sql", sqlStr,
			"params", masked,
			"duration_ms", elapsed.Milliseconds(),
			"database", db.driverName,
			"error", err,
		)
		return
	}
	db.logger.Debug("statement executed",
		"sql", sqlStr,
		"params", masked,
		"duration_ms", elapsed.Milliseconds(),
		"rows_affected", affected,
		"database", db.driverName,
	)
}
