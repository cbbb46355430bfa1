package core

import (
	"context"
	"errors"
	"reflect"
	"sync"
)

// Record is an active record: a mutable attribute map, the last-persisted
// snapshot ("original"), and an existence flag. The dirty set is the keys
// where current differs from original. Loaded relationship values are
// cached per relationship name and cleared whenever the record is updated
// or refreshed.
type Record struct {
	db    *DB
	model *ModelDef // nil for records hydrated from raw table queries

	attrs    map[string]interface{}
	original map[string]interface{}
	exists   bool

	relmu     sync.Mutex
	relations map[string]interface{}
	pending   map[string]*RelationOp
}

// NewRecord constructs an empty, not-yet-persisted record for a
// registered model.
func (db *DB) NewRecord(modelName string) (*Record, error) {
	def, ok := db.registry.Lookup(modelName)
	if !ok {
		return nil, WrapError(ErrModelNotRegistered, modelName)
	}
	return &Record{
		db:        db,
		model:     def,
		attrs:     make(map[string]interface{}),
		original:  make(map[string]interface{}),
		relations: make(map[string]interface{}),
		pending:   make(map[string]*RelationOp),
	}, nil
}

// Model returns the record's model definition, nil for raw table records.
func (r *Record) Model() *ModelDef {
	return r.model
}

// Exists reports whether the record is persisted.
func (r *Record) Exists() bool {
	return r.exists
}

// Get returns the current value of a field.
func (r *Record) Get(field string) interface{} {
	return r.attrs[field]
}

// GetString returns a field coerced to string.
func (r *Record) GetString(field string) string {
	if s, ok := r.attrs[field].(string); ok {
		return s
	}
	if v := r.attrs[field]; v != nil {
		return normKey(v)
	}
	return ""
}

// GetInt returns a field coerced to int64.
func (r *Record) GetInt(field string) int64 {
	return toInt64(r.attrs[field])
}

// Set assigns a field value.
func (r *Record) Set(field string, value interface{}) *Record {
	r.attrs[field] = value
	return r
}

// Fill assigns several field values at once.
func (r *Record) Fill(values map[string]interface{}) *Record {
	for k, v := range values {
		r.attrs[k] = v
	}
	return r
}

// Attributes returns a copy of the current attribute map.
func (r *Record) Attributes() map[string]interface{} {
	out := make(map[string]interface{}, len(r.attrs))
	for k, v := range r.attrs {
		out[k] = v
	}
	return out
}

// Original returns the last-persisted value of a field.
func (r *Record) Original(field string) interface{} {
	return r.original[field]
}

// Dirty returns the fields whose current value differs from the
// last-persisted snapshot.
func (r *Record) Dirty() map[string]interface{} {
	dirty := make(map[string]interface{})
	for k, v := range r.attrs {
		if orig, ok := r.original[k]; !ok || !reflect.DeepEqual(orig, v) {
			dirty[k] = v
		}
	}
	return dirty
}

// IsDirty reports whether any field differs from the snapshot.
func (r *Record) IsDirty() bool {
	return len(r.Dirty()) > 0
}

// PrimaryKey returns the record's primary key value.
func (r *Record) PrimaryKey() interface{} {
	if r.model == nil {
		return nil
	}
	return r.attrs[r.model.PrimaryKey]
}

// persistedKey returns the key value to target writes with: the original
// snapshot's value when present, so a record whose key was mutated still
// addresses the persisted row.
func (r *Record) persistedKey() interface{} {
	if v, ok := r.original[r.model.PrimaryKey]; ok {
		return v
	}
	return r.attrs[r.model.PrimaryKey]
}

// Save inserts the record when it does not exist yet, otherwise updates
// only the dirty fields. Writes go through the write queue when
// serialization is enabled and invalidate the table's cached state.
// After a successful save the dirty set is empty and original equals
// current.
func (r *Record) Save(ctx context.Context) error {
	if r.model == nil {
		return WrapError(ErrNoModel, "save")
	}
	if !r.exists {
		return r.insert(ctx)
	}
	return r.update(ctx)
}

func (r *Record) insert(ctx context.Context) error {
	values := r.Attributes()

	return r.db.enqueueWrite(func() error {
		sqlStr, params := r.db.dialect.CompileInsert(r.model.Table, values)
		id, err := r.db.runInsert(ctx, sqlStr, params)
		if err != nil {
			return err
		}

		if id != 0 {
			if _, ok := r.attrs[r.model.PrimaryKey]; !ok {
				r.attrs[r.model.PrimaryKey] = id
			}
		}

		r.db.invalidate(r.model.Table)
		r.exists = true
		r.syncOriginal()
		r.clearRelations()
		return nil
	})
}

func (r *Record) update(ctx context.Context) error {
	dirty := r.Dirty()
	if len(dirty) == 0 {
		return nil
	}

	key := r.persistedKey()

	return r.db.enqueueWrite(func() error {
		sqlStr, params := r.db.dialect.CompileUpdate(
			r.model.Table, dirty, []string{r.model.PrimaryKey}, []interface{}{key})
		if _, err := r.db.runExec(ctx, sqlStr, params); err != nil {
			return err
		}

		r.db.invalidate(r.model.Table)
		r.syncOriginal()
		r.clearRelations()
		return nil
	})
}

// Delete removes the persisted row and clears the existence flag.
// Deleting a record that does not exist is an error.
func (r *Record) Delete(ctx context.Context) error {
	if r.model == nil {
		return WrapError(ErrNoModel, "delete")
	}
	if !r.exists {
		return WrapError(ErrRecordNotPersisted, "delete "+r.model.Name)
	}

	key := r.persistedKey()

	return r.db.enqueueWrite(func() error {
		sqlStr, params := r.db.dialect.CompileDelete(
			r.model.Table, []string{r.model.PrimaryKey}, []interface{}{key})
		if _, err := r.db.runExec(ctx, sqlStr, params); err != nil {
			return err
		}

		r.db.invalidate(r.model.Table)
		r.exists = false
		r.clearRelations()
		return nil
	})
}

// Refresh re-fetches the record by primary key, replacing current and
// original state and clearing loaded relationship values. Returns
// ErrRecordGone when the row has since disappeared.
func (r *Record) Refresh(ctx context.Context) error {
	if r.model == nil {
		return WrapError(ErrNoModel, "refresh")
	}
	if !r.exists {
		return WrapError(ErrRecordNotPersisted, "refresh "+r.model.Name)
	}

	fresh, err := r.db.Model(r.model.Name).Find(ctx, r.persistedKey())
	if err != nil {
		if errors.Is(err, ErrNoRows) {
			return WrapError(ErrRecordGone, "refresh "+r.model.Name)
		}
		return err
	}

	r.attrs = fresh.attrs
	r.original = fresh.original
	r.clearRelations()
	return nil
}

// syncOriginal snapshots current attributes as the persisted state.
func (r *Record) syncOriginal() {
	original := make(map[string]interface{}, len(r.attrs))
	for k, v := range r.attrs {
		original[k] = v
	}
	r.original = original
}

// clearRelations drops loaded relationship values. In-flight loads are
// left to settle; their results land in a fresh slot map.
func (r *Record) clearRelations() {
	r.relmu.Lock()
	r.relations = make(map[string]interface{})
	r.relmu.Unlock()
}

// setRelation stores a loaded relationship value.
func (r *Record) setRelation(name string, value interface{}) {
	r.relmu.Lock()
	r.relations[name] = value
	r.relmu.Unlock()
}

// Relation returns the loaded value of a relationship and whether it has
// been loaded. The value is *Record (possibly nil) for single-valued
// variants and []*Record for many-valued ones.
func (r *Record) Relation(name string) (interface{}, bool) {
	r.relmu.Lock()
	defer r.relmu.Unlock()
	v, ok := r.relations[name]
	return v, ok
}

// Related returns the loaded single-valued relationship as a record,
// nil when absent or not loaded.
func (r *Record) Related(name string) *Record {
	v, ok := r.Relation(name)
	if !ok {
		return nil
	}
	rec, _ := v.(*Record)
	return rec
}

// RelatedMany returns the loaded many-valued relationship, nil when not
// loaded.
func (r *Record) RelatedMany(name string) []*Record {
	v, ok := r.Relation(name)
	if !ok {
		return nil
	}
	recs, _ := v.([]*Record)
	return recs
}
