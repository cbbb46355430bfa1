package dialects

import "strings"

// MySQLDialect implements MySQL-specific SQL compilation.
type MySQLDialect struct {
	base
}

func init() {
	d := &MySQLDialect{}
	d.base.q = d
	RegisterDialect("mysql", d)
}

// QuoteIdentifier quotes a MySQL identifier using backticks.
func (d *MySQLDialect) QuoteIdentifier(s string) string {
	return "`" + strings.ReplaceAll(s, "`", "``") + "`"
}

// Placeholder returns MySQL placeholder format (always "?").
func (d *MySQLDialect) Placeholder(_ int) string {
	return "?"
}

// CurrentTimestamp returns the MySQL current-timestamp expression.
func (d *MySQLDialect) CurrentTimestamp() string {
	return "NOW()"
}
