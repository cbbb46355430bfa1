// Package dialects provides database-specific SQL compilation for
// PostgreSQL, MySQL, and SQLite. Each dialect turns a query.Structure (or
// insert/update/delete parameters) into a parameterized statement string
// plus bound values, handling identifier quoting and placeholder format.
//
// Compilation is pure and deterministic: identical input produces a
// byte-identical statement and binding order. The result cache keys on
// compiled statements, so this property is load-bearing.
package dialects

import (
	"github.com/coregx/tabula/internal/query"
)

// Dialect defines database-specific SQL compilation behaviors.
type Dialect interface {
	// QuoteIdentifier quotes a single identifier so it cannot collide
	// with reserved words.
	QuoteIdentifier(string) string
	// Placeholder returns the positional placeholder for 1-based index n.
	Placeholder(n int) string

	// CompileSelect compiles a SELECT statement from the structure.
	CompileSelect(s *query.Structure) (string, []interface{}, error)
	// CompileCount compiles a COUNT(*) statement with the structure's
	// predicates and joins but no projection, ordering, limit or offset.
	CompileCount(s *query.Structure) (string, []interface{}, error)
	// CompileInsert compiles an INSERT for the given column values.
	// Columns are emitted in sorted order for determinism.
	CompileInsert(table string, values map[string]interface{}) (string, []interface{})
	// CompileUpdate compiles an UPDATE targeting the row(s) identified by
	// the ordered key column/value lists (composite keys supported).
	CompileUpdate(table string, values map[string]interface{}, keyCols []string, keyVals []interface{}) (string, []interface{})
	// CompileDelete compiles a DELETE targeting the row(s) identified by
	// the ordered key column/value lists.
	CompileDelete(table string, keyCols []string, keyVals []interface{}) (string, []interface{})

	// CurrentTimestamp returns the dialect's current-timestamp expression.
	CurrentTimestamp() string
}

var dialects = make(map[string]Dialect)

// RegisterDialect registers a database dialect by driver name.
func RegisterDialect(name string, d Dialect) {
	dialects[name] = d
}

// GetDialect retrieves a registered dialect by driver name, panics if not found.
func GetDialect(name string) Dialect {
	if d, ok := dialects[name]; ok {
		return d
	}
	panic("unsupported dialect: " + name)
}
