package dialects

import "strings"

// PostgresDialect implements PostgreSQL-specific SQL compilation.
type PostgresDialect struct {
	base
}

func init() {
	d := &PostgresDialect{}
	d.base.q = d
	RegisterDialect("postgres", d)
	RegisterDialect("pgx", d)
}

// QuoteIdentifier quotes a PostgreSQL identifier using double quotes.
func (d *PostgresDialect) QuoteIdentifier(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

// Placeholder returns PostgreSQL placeholder format ($1, $2, ...).
func (d *PostgresDialect) Placeholder(n int) string {
	return placeholderAt("$", n)
}

// CurrentTimestamp returns the PostgreSQL current-timestamp expression.
func (d *PostgresDialect) CurrentTimestamp() string {
	return "CURRENT_TIMESTAMP"
}
