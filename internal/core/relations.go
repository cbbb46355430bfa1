package core

import (
	"context"
	"strings"

	"github.com/coregx/tabula/internal/query"
)

// RelationOp is the pending handle for an in-flight relationship load.
// Accessing an unloaded relationship starts a load and returns the op; a
// second access while loading returns the same op rather than starting a
// duplicate; once loaded the op is already settled. Callers either Await
// it or select on Done.
type RelationOp struct {
	done  chan struct{}
	value interface{}
	err   error
}

// Done is closed when the load settles.
func (op *RelationOp) Done() <-chan struct{} {
	return op.done
}

// Await blocks until the load settles or ctx is canceled. An abandoned
// await does not cancel the load itself; it settles in the background and
// the result lands in the record's relationship slot.
func (op *RelationOp) Await(ctx context.Context) (interface{}, error) {
	select {
	case <-op.done:
		return op.value, op.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// settledOp returns an already-completed op carrying a loaded value.
func settledOp(value interface{}, err error) *RelationOp {
	op := &RelationOp{done: make(chan struct{}), value: value, err: err}
	close(op.done)
	return op
}

// Load loads the named relationships (dot paths allowed) and caches the
// values on the record. This is the primary, await-style entry point; it
// issues the loads immediately and returns when they have settled.
func (r *Record) Load(ctx context.Context, names ...string) error {
	for _, name := range names {
		if strings.Contains(name, ".") {
			if err := r.db.eagerLoadPath(ctx, []*Record{r}, name); err != nil {
				return err
			}
			continue
		}

		value, err := r.loadRelation(ctx, name)
		if err != nil {
			return err
		}
		r.setRelation(name, value)
	}
	return nil
}

// LoadAsync begins loading the named relationship if it is not loaded
// yet and returns the pending op. While a load is in flight the same op
// is returned; once loaded, a settled op carrying the cached value.
func (r *Record) LoadAsync(ctx context.Context, name string) *RelationOp {
	r.relmu.Lock()
	if v, ok := r.relations[name]; ok {
		r.relmu.Unlock()
		return settledOp(v, nil)
	}
	if op, ok := r.pending[name]; ok {
		r.relmu.Unlock()
		return op
	}

	op := &RelationOp{done: make(chan struct{})}
	r.pending[name] = op
	r.relmu.Unlock()

	go func() {
		value, err := r.loadRelation(ctx, name)

		r.relmu.Lock()
		if err == nil {
			r.relations[name] = value
		}
		delete(r.pending, name)
		r.relmu.Unlock()

		op.value = value
		op.err = err
		close(op.done)
	}()

	return op
}

// loadRelation resolves a relationship for this single record.
func (r *Record) loadRelation(ctx context.Context, name string) (interface{}, error) {
	if r.model == nil {
		return nil, WrapError(ErrNoModel, "load "+name)
	}
	rel, ok := r.model.relation(name)
	if !ok {
		return nil, WrapError(ErrUnknownRelation, r.model.Name+"."+name)
	}
	return r.db.loadRelation(ctx, r, rel, name)
}

// loadRelation dispatches a single-parent load by relationship kind.
func (db *DB) loadRelation(ctx context.Context, parent *Record, rel Relation, name string) (interface{}, error) {
	switch rel.Kind {
	case HasOne:
		return db.loadHasOne(ctx, parent, rel)
	case HasMany:
		return db.loadHasMany(ctx, parent, rel)
	case BelongsTo:
		return db.loadBelongsTo(ctx, parent, rel)
	case BelongsToMany:
		return db.loadBelongsToMany(ctx, parent, rel)
	case MorphTo:
		return db.loadMorphTo(ctx, parent, rel, name)
	default:
		return nil, WrapError(ErrUnknownRelation, name)
	}
}

// localKeyOf resolves the parent-side key column, defaulting to the
// parent model's primary key.
func localKeyOf(rel Relation, parent *ModelDef) string {
	if rel.LocalKey != "" {
		return rel.LocalKey
	}
	return parent.PrimaryKey
}

// ownerKeyOf resolves the related-side key column of a BelongsTo,
// defaulting to the target model's primary key.
func ownerKeyOf(rel Relation, target *ModelDef) string {
	if rel.LocalKey != "" {
		return rel.LocalKey
	}
	return target.PrimaryKey
}

func (db *DB) loadHasOne(ctx context.Context, parent *Record, rel Relation) (interface{}, error) {
	local := parent.Get(localKeyOf(rel, parent.model))
	if local == nil {
		return (*Record)(nil), nil
	}

	records, err := db.Model(rel.Target).Constrain(func(b *Builder) {
		b.Where(rel.ForeignKey, local).Limit(1)
	}).Get(ctx)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return (*Record)(nil), nil
	}
	return records[0], nil
}

func (db *DB) loadHasMany(ctx context.Context, parent *Record, rel Relation) (interface{}, error) {
	local := parent.Get(localKeyOf(rel, parent.model))
	if local == nil {
		return []*Record{}, nil
	}
	return db.Model(rel.Target).Constrain(func(b *Builder) {
		b.Where(rel.ForeignKey, local)
	}).Get(ctx)
}

func (db *DB) loadBelongsTo(ctx context.Context, parent *Record, rel Relation) (interface{}, error) {
	fk := parent.Get(rel.ForeignKey)
	if fk == nil {
		return (*Record)(nil), nil
	}

	target, ok := db.registry.Lookup(rel.Target)
	if !ok {
		return nil, WrapError(ErrModelNotRegistered, rel.Target)
	}

	records, err := db.Model(rel.Target).Constrain(func(b *Builder) {
		b.Where(ownerKeyOf(rel, target), fk).Limit(1)
	}).Get(ctx)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return (*Record)(nil), nil
	}
	return records[0], nil
}

// loadBelongsToMany joins the related table to the pivot table on the
// related-side pivot key and filters pivot rows by the parent's key.
func (db *DB) loadBelongsToMany(ctx context.Context, parent *Record, rel Relation) (interface{}, error) {
	target, ok := db.registry.Lookup(rel.Target)
	if !ok {
		return nil, WrapError(ErrModelNotRegistered, rel.Target)
	}

	local := parent.Get(localKeyOf(rel, parent.model))
	if local == nil {
		return []*Record{}, nil
	}

	return db.Model(rel.Target).Constrain(func(b *Builder) {
		b.Select(target.Table+".*").
			Join(query.JoinInner, rel.PivotTable,
				target.Table+"."+target.PrimaryKey, "=", rel.PivotTable+"."+rel.PivotRelatedKey).
			Where(rel.PivotTable+"."+rel.PivotLocalKey, local)
	}).Get(ctx)
}

// loadMorphTo resolves the discriminator column to a registered model and
// fetches by that model's primary key. An unknown discriminator degrades
// to a nil value with a diagnostic warning instead of an error.
func (db *DB) loadMorphTo(ctx context.Context, parent *Record, rel Relation, name string) (interface{}, error) {
	typeVal := parent.GetString(rel.TypeColumn)
	if typeVal == "" {
		return (*Record)(nil), nil
	}

	target, ok := db.registry.Lookup(typeVal)
	if !ok {
		db.logger.Warn("unknown polymorphic target",
			"relation", name,
			"discriminator", typeVal,
			"model", parent.model.Name,
		)
		return (*Record)(nil), nil
	}

	fk := parent.Get(rel.ForeignKey)
	if fk == nil {
		return (*Record)(nil), nil
	}

	records, err := db.Model(target.Name).Constrain(func(b *Builder) {
		b.Where(target.PrimaryKey, fk).Limit(1)
	}).Get(ctx)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return (*Record)(nil), nil
	}
	return records[0], nil
}
