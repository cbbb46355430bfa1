// Package query defines the declarative representation of a database query.
// A Structure is pure data: it carries no behavior beyond small accumulator
// helpers and is handed to a dialect compiler for SQL generation.
package query

// Operators supported by basic WHERE conditions.
const (
	OpEq    = "="
	OpNotEq = "!="
	OpGt    = ">"
	OpGte   = ">="
	OpLt    = "<"
	OpLte   = "<="
	OpIn    = "IN"
	OpNotIn = "NOT IN"
	OpIs    = "IS"
	OpIsNot = "IS NOT"
	OpLike  = "LIKE"
)

// Join kinds.
const (
	JoinInner = "INNER"
	JoinLeft  = "LEFT"
	JoinRight = "RIGHT"
)

// Condition is a single WHERE condition. Either a basic
// (Column, Operator, Value) triple or, when Raw is non-empty, an opaque
// SQL fragment with positional bindings.
type Condition struct {
	Column   string
	Operator string
	// Value holds the bound value. For IN / NOT IN it must be a non-empty
	// []interface{}; each element becomes one positional parameter.
	Value interface{}

	Raw      string
	Bindings []interface{}
}

// IsRaw reports whether the condition is a raw SQL fragment.
func (c Condition) IsRaw() bool {
	return c.Raw != ""
}

// Order is a single ORDER BY clause. When Raw is non-empty the fragment
// is emitted verbatim and Column/Desc are ignored.
type Order struct {
	Column string
	Desc   bool
	Raw    string
}

// Join is a join clause against another table. Left and Right are column
// expressions (possibly table-qualified) compared with Operator.
type Join struct {
	Kind  string // JoinInner, JoinLeft or JoinRight
	Table string
	Left  string
	Op    string
	Right string
}

// Structure is the declarative form of a SELECT query. Conditions are
// combined with AND in declaration order; there is no OR at the structure
// level (raw conditions are the escape hatch).
type Structure struct {
	Table     string
	Columns   []string // structured projection; empty means *
	RawSelect string   // raw projection, takes precedence over Columns
	Wheres    []Condition
	Orders    []Order
	RawOrder  string // raw ordering, takes precedence over Orders
	Joins     []Join
	Limit     int // <= 0 means no limit
	Offset    int // <= 0 means no offset
}

// Tables returns the primary table plus every joined table, in order.
// Used by the result cache to tag query entries for invalidation.
func (s *Structure) Tables() []string {
	tables := make([]string, 0, 1+len(s.Joins))
	tables = append(tables, s.Table)
	for _, j := range s.Joins {
		tables = append(tables, j.Table)
	}
	return tables
}

// Clone returns a deep copy of the structure. The builder is mutable;
// callers that need isolation (e.g. the count query in pagination) copy
// first.
func (s *Structure) Clone() *Structure {
	c := *s
	c.Columns = append([]string(nil), s.Columns...)
	c.Wheres = append([]Condition(nil), s.Wheres...)
	c.Orders = append([]Order(nil), s.Orders...)
	c.Joins = append([]Join(nil), s.Joins...)
	return &c
}
