package core

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"sync"
)

// statement is one SQL statement issued through the fake adapter.
type statement struct {
	SQL    string
	Params []interface{}
}

// fakeAdapter records every statement the engine issues and answers
// queries through a pluggable function, so tests can assert on exact
// query counts and shapes without a real database.
type fakeAdapter struct {
	mu      sync.Mutex
	queries []statement
	execs   []statement

	queryFn  func(sql string, params []interface{}) ([]map[string]interface{}, error)
	execFn   func(sql string, params []interface{}) (int64, error)
	insertID int64

	inTx      bool
	begins    int
	commits   int
	rollbacks int
	closed    bool
}

func newFakeAdapter() *fakeAdapter {
	return &fakeAdapter{insertID: 100}
}

func (f *fakeAdapter) Query(_ context.Context, sql string, params []interface{}) ([]map[string]interface{}, error) {
	f.mu.Lock()
	f.queries = append(f.queries, statement{SQL: sql, Params: params})
	fn := f.queryFn
	f.mu.Unlock()

	if fn != nil {
		return fn(sql, params)
	}
	return nil, nil
}

func (f *fakeAdapter) Exec(_ context.Context, sql string, params []interface{}) (int64, error) {
	f.mu.Lock()
	f.execs = append(f.execs, statement{SQL: sql, Params: params})
	fn := f.execFn
	f.mu.Unlock()

	if fn != nil {
		return fn(sql, params)
	}
	return 1, nil
}

func (f *fakeAdapter) Insert(_ context.Context, sql string, params []interface{}) (int64, error) {
	f.mu.Lock()
	f.execs = append(f.execs, statement{SQL: sql, Params: params})
	f.insertID++
	id := f.insertID
	f.mu.Unlock()
	return id, nil
}

func (f *fakeAdapter) Begin(_ context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.inTx = true
	f.begins++
	return nil
}

func (f *fakeAdapter) Commit() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.inTx = false
	f.commits++
	return nil
}

func (f *fakeAdapter) Rollback() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.inTx = false
	f.rollbacks++
	return nil
}

func (f *fakeAdapter) InTransaction() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.inTx
}

func (f *fakeAdapter) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeAdapter) queryCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.queries)
}

func (f *fakeAdapter) queriesMatching(substr string) []statement {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []statement
	for _, s := range f.queries {
		if strings.Contains(s.SQL, substr) {
			out = append(out, s)
		}
	}
	return out
}

func (f *fakeAdapter) lastExec() statement {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.execs) == 0 {
		return statement{}
	}
	return f.execs[len(f.execs)-1]
}

func (f *fakeAdapter) execCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.execs)
}

// condPattern matches bound predicates in compiled SQL: "col" = ? and
// "col" IN (?, ?). Matches appear in binding order for the statements
// the tests issue.
var condPattern = regexp.MustCompile(`"([a-zA-Z_]+)" (=|IN) (\?|\([?, ]*\))`)

// tableRows builds a queryFn that answers each query with the canned
// rows of the table it selects from, filtered by the statement's bound
// equality and IN predicates. That keeps the fake honest enough for
// lazy-loading and batch-loading assertions.
func tableRows(tables map[string][]map[string]interface{}) func(sql string, params []interface{}) ([]map[string]interface{}, error) {
	return func(sql string, params []interface{}) ([]map[string]interface{}, error) {
		var rows []map[string]interface{}
		found := false
		for name, canned := range tables {
			if strings.Contains(sql, `FROM "`+name+`"`) {
				rows, found = canned, true
				break
			}
		}
		if !found {
			return nil, nil
		}

		idx := 0
		for _, m := range condPattern.FindAllStringSubmatch(sql, -1) {
			col := m[1]
			switch m[2] {
			case "=":
				rows = filterRows(rows, col, params[idx:idx+1])
				idx++
			case "IN":
				n := strings.Count(m[3], "?")
				rows = filterRows(rows, col, params[idx:idx+n])
				idx += n
			}
		}
		return rows, nil
	}
}

func filterRows(rows []map[string]interface{}, col string, wanted []interface{}) []map[string]interface{} {
	want := make(map[string]struct{}, len(wanted))
	for _, v := range wanted {
		want[fmt.Sprintf("%v", v)] = struct{}{}
	}
	var out []map[string]interface{}
	for _, row := range rows {
		if _, ok := want[fmt.Sprintf("%v", row[col])]; ok {
			out = append(out, row)
		}
	}
	return out
}

// registerLibrary registers the model graph most tests share: authors
// with books and a profile, books with reviews and pivot-joined tags,
// comments attached polymorphically.
func registerLibrary(db *DB) {
	db.Register(
		ModelDef{Name: "author", Table: "authors", Relations: map[string]Relation{
			"books":   NewHasMany("book", "author_id", ""),
			"profile": NewHasOne("profile", "author_id", ""),
		}},
		ModelDef{Name: "book", Table: "books", Relations: map[string]Relation{
			"author":  NewBelongsTo("author", "author_id", ""),
			"reviews": NewHasMany("review", "book_id", ""),
			"tags":    NewBelongsToMany("tag", "book_tag", "book_id", "tag_id"),
		}},
		ModelDef{Name: "review", Table: "reviews"},
		ModelDef{Name: "profile", Table: "profiles"},
		ModelDef{Name: "tag", Table: "tags"},
		ModelDef{Name: "comment", Table: "comments", Relations: map[string]Relation{
			"commentable": NewMorphTo("commentable_type", "commentable_id"),
		}},
	)
}

func newTestDB(f *fakeAdapter, opts ...Option) *DB {
	db := New(f, "sqlite", opts...)
	registerLibrary(db)
	return db
}
