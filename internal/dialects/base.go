package dialects

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/coregx/tabula/internal/query"
)

// ErrEmptyValueSet is returned when an IN / NOT IN condition carries an
// empty value set. Expanding it would produce invalid SQL.
var ErrEmptyValueSet = errors.New("dialects: IN condition requires a non-empty value set")

// quoting is the part of a dialect the shared compiler delegates to.
type quoting interface {
	QuoteIdentifier(string) string
	Placeholder(int) string
}

// base implements the compile methods shared by all dialects on top of
// the quoting and placeholder rules of a concrete dialect.
// Statements are built with "?" markers and renumbered at the end for
// dialects with positional placeholders (PostgreSQL).
type base struct {
	q quoting
}

// quoteQualified quotes a possibly table-qualified column expression,
// quoting each dotted segment separately ("books.id" -> "books"."id").
// A bare "*" is passed through.
func (b *base) quoteQualified(expr string) string {
	if expr == "*" {
		return expr
	}
	parts := strings.Split(expr, ".")
	for i, p := range parts {
		if p == "*" {
			continue
		}
		parts[i] = b.q.QuoteIdentifier(p)
	}
	return strings.Join(parts, ".")
}

// renumber replaces "?" markers with dialect-specific placeholders when
// the dialect does not use "?" itself.
func (b *base) renumber(sql string, n int) string {
	if b.q.Placeholder(1) == "?" {
		return sql
	}
	for i := 1; i <= n; i++ {
		sql = strings.Replace(sql, "?", b.q.Placeholder(i), 1)
	}
	return sql
}

// compileWheres builds the WHERE clause from the structure's conditions,
// combined with AND in declaration order. Raw fragments are appended
// verbatim with their bindings concatenated in appearance order.
func (b *base) compileWheres(wheres []query.Condition) (string, []interface{}, error) {
	if len(wheres) == 0 {
		return "", nil, nil
	}

	clauses := make([]string, 0, len(wheres))
	params := make([]interface{}, 0, len(wheres))

	for _, c := range wheres {
		if c.IsRaw() {
			clauses = append(clauses, c.Raw)
			params = append(params, c.Bindings...)
			continue
		}

		col := b.quoteQualified(c.Column)
		switch c.Operator {
		case query.OpIn, query.OpNotIn:
			set, ok := c.Value.([]interface{})
			if !ok || len(set) == 0 {
				return "", nil, ErrEmptyValueSet
			}
			marks := make([]string, len(set))
			for i := range set {
				marks[i] = "?"
			}
			clauses = append(clauses, col+" "+c.Operator+" ("+strings.Join(marks, ", ")+")")
			params = append(params, set...)

		case query.OpIs, query.OpIsNot:
			// Nullity tests bind no parameter.
			clauses = append(clauses, col+" "+c.Operator+" NULL")

		default:
			clauses = append(clauses, col+" "+c.Operator+" ?")
			params = append(params, c.Value)
		}
	}

	return " WHERE " + strings.Join(clauses, " AND "), params, nil
}

// compileJoins builds the join clauses in declaration order.
func (b *base) compileJoins(joins []query.Join) string {
	if len(joins) == 0 {
		return ""
	}

	var sb strings.Builder
	for _, j := range joins {
		sb.WriteString(" " + j.Kind + " JOIN " + b.q.QuoteIdentifier(j.Table) +
			" ON " + b.quoteQualified(j.Left) + " " + j.Op + " " + b.quoteQualified(j.Right))
	}
	return sb.String()
}

// compileOrders builds the ORDER BY clause. A raw ordering takes
// precedence over structured clauses when both are present.
func (b *base) compileOrders(s *query.Structure) string {
	if s.RawOrder != "" {
		return " ORDER BY " + s.RawOrder
	}
	if len(s.Orders) == 0 {
		return ""
	}

	clauses := make([]string, 0, len(s.Orders))
	for _, o := range s.Orders {
		if o.Raw != "" {
			clauses = append(clauses, o.Raw)
			continue
		}
		dir := " ASC"
		if o.Desc {
			dir = " DESC"
		}
		clauses = append(clauses, b.quoteQualified(o.Column)+dir)
	}
	return " ORDER BY " + strings.Join(clauses, ", ")
}

// CompileSelect compiles a SELECT statement from the structure.
func (b *base) CompileSelect(s *query.Structure) (string, []interface{}, error) {
	cols := "*"
	switch {
	case s.RawSelect != "":
		cols = s.RawSelect
	case len(s.Columns) > 0:
		quoted := make([]string, len(s.Columns))
		for i, c := range s.Columns {
			quoted[i] = b.quoteQualified(c)
		}
		cols = strings.Join(quoted, ", ")
	}

	where, params, err := b.compileWheres(s.Wheres)
	if err != nil {
		return "", nil, err
	}

	sql := "SELECT " + cols + " FROM " + b.q.QuoteIdentifier(s.Table) +
		b.compileJoins(s.Joins) + where + b.compileOrders(s)

	if s.Limit > 0 {
		sql += " LIMIT " + strconv.Itoa(s.Limit)
	}
	if s.Offset > 0 {
		sql += " OFFSET " + strconv.Itoa(s.Offset)
	}

	return b.renumber(sql, len(params)), params, nil
}

// CompileCount compiles a COUNT(*) statement with the structure's
// predicates and joins but no ordering, limit or offset.
func (b *base) CompileCount(s *query.Structure) (string, []interface{}, error) {
	where, params, err := b.compileWheres(s.Wheres)
	if err != nil {
		return "", nil, err
	}

	sql := "SELECT COUNT(*) FROM " + b.q.QuoteIdentifier(s.Table) +
		b.compileJoins(s.Joins) + where

	return b.renumber(sql, len(params)), params, nil
}

// CompileInsert compiles an INSERT statement. Columns are emitted in
// sorted order so identical value maps always compile identically.
func (b *base) CompileInsert(table string, values map[string]interface{}) (string, []interface{}) {
	keys := sortedKeys(values)

	cols := make([]string, len(keys))
	marks := make([]string, len(keys))
	params := make([]interface{}, 0, len(keys))
	for i, k := range keys {
		cols[i] = b.q.QuoteIdentifier(k)
		marks[i] = "?"
		params = append(params, values[k])
	}

	sql := "INSERT INTO " + b.q.QuoteIdentifier(table) +
		" (" + strings.Join(cols, ", ") + ") VALUES (" + strings.Join(marks, ", ") + ")"

	return b.renumber(sql, len(params)), params
}

// CompileUpdate compiles an UPDATE targeting the row(s) identified by the
// ordered key column/value lists.
func (b *base) CompileUpdate(table string, values map[string]interface{}, keyCols []string, keyVals []interface{}) (string, []interface{}) {
	keys := sortedKeys(values)

	sets := make([]string, len(keys))
	params := make([]interface{}, 0, len(keys)+len(keyVals))
	for i, k := range keys {
		sets[i] = b.q.QuoteIdentifier(k) + " = ?"
		params = append(params, values[k])
	}

	where := make([]string, len(keyCols))
	for i, k := range keyCols {
		where[i] = b.q.QuoteIdentifier(k) + " = ?"
	}
	params = append(params, keyVals...)

	sql := "UPDATE " + b.q.QuoteIdentifier(table) +
		" SET " + strings.Join(sets, ", ") +
		" WHERE " + strings.Join(where, " AND ")

	return b.renumber(sql, len(params)), params
}

// CompileDelete compiles a DELETE targeting the row(s) identified by the
// ordered key column/value lists.
func (b *base) CompileDelete(table string, keyCols []string, keyVals []interface{}) (string, []interface{}) {
	where := make([]string, len(keyCols))
	for i, k := range keyCols {
		where[i] = b.q.QuoteIdentifier(k) + " = ?"
	}

	sql := "DELETE FROM " + b.q.QuoteIdentifier(table) +
		" WHERE " + strings.Join(where, " AND ")

	return b.renumber(sql, len(keyVals)), append([]interface{}(nil), keyVals...)
}

// sortedKeys returns sorted map keys for deterministic SQL generation.
func sortedKeys(m map[string]interface{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// placeholderAt formats a numbered placeholder like $3. Shared by
// dialects with positional placeholder syntax.
func placeholderAt(prefix string, n int) string {
	return fmt.Sprintf("%s%d", prefix, n)
}
