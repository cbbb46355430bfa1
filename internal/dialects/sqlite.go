package dialects

import "strings"

// SQLiteDialect implements SQLite-specific SQL compilation.
type SQLiteDialect struct {
	base
}

func init() {
	d := &SQLiteDialect{}
	d.base.q = d
	RegisterDialect("sqlite", d)
	RegisterDialect("sqlite3", d)
}

// QuoteIdentifier quotes a SQLite identifier using double quotes.
func (d *SQLiteDialect) QuoteIdentifier(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

// Placeholder returns SQLite placeholder format (always "?").
func (d *SQLiteDialect) Placeholder(_ int) string {
	return "?"
}

// CurrentTimestamp returns the SQLite current-timestamp expression.
func (d *SQLiteDialect) CurrentTimestamp() string {
	return "CURRENT_TIMESTAMP"
}
