package core

import (
	"context"
	"strings"
)

// eagerLoadAll batch-loads every requested relationship path for the
// given records.
func (db *DB) eagerLoadAll(ctx context.Context, records []*Record, paths []string) error {
	for _, path := range paths {
		if err := db.eagerLoadPath(ctx, records, path); err != nil {
			return err
		}
	}
	return nil
}

// eagerLoadPath loads one dot-separated relationship path tier by tier:
// the first segment is batch-loaded for the given records, the loaded
// related records (one-to-many values flattened) become the parents of
// the next tier. An empty parent set at any tier degenerately succeeds;
// an unknown name with a non-empty parent set is a hard error.
func (db *DB) eagerLoadPath(ctx context.Context, records []*Record, path string) error {
	if len(records) == 0 {
		return nil
	}

	name, rest, nested := strings.Cut(path, ".")

	model := records[0].model
	if model == nil {
		return WrapError(ErrNoModel, "eager load "+name)
	}
	rel, ok := model.relation(name)
	if !ok {
		return WrapError(ErrUnknownRelation, model.Name+"."+name)
	}

	if err := db.eagerLoadRelation(ctx, records, model, rel, name); err != nil {
		return err
	}

	if nested {
		return db.eagerLoadPath(ctx, flattenRelated(records, name), rest)
	}
	return nil
}

// flattenRelated collects the loaded related records of one tier,
// flattening many-valued slots and skipping nil values.
func flattenRelated(records []*Record, name string) []*Record {
	var out []*Record
	for _, r := range records {
		v, ok := r.Relation(name)
		if !ok {
			continue
		}
		switch related := v.(type) {
		case *Record:
			if related != nil {
				out = append(out, related)
			}
		case []*Record:
			out = append(out, related...)
		}
	}
	return out
}

// eagerLoadRelation batch-loads one relationship for all records: collect
// the distinct non-null key values in one pass, issue one batched IN
// query (two for pivot relationships), build a lookup map keyed by the
// matching column, and assign every parent its value in a single pass.
// This is what keeps relationship loading at a constant number of queries
// regardless of the number of parents.
func (db *DB) eagerLoadRelation(ctx context.Context, records []*Record, model *ModelDef, rel Relation, name string) error {
	switch rel.Kind {
	case HasOne, HasMany:
		return db.eagerLoadHas(ctx, records, model, rel, name)
	case BelongsTo:
		return db.eagerLoadBelongsTo(ctx, records, rel, name)
	case BelongsToMany:
		return db.eagerLoadBelongsToMany(ctx, records, model, rel, name)
	case MorphTo:
		return db.eagerLoadMorphTo(ctx, records, model, rel, name)
	default:
		return WrapError(ErrUnknownRelation, name)
	}
}

// distinctKeys collects the distinct, non-null values of column across
// the records, preserving first-seen order.
func distinctKeys(records []*Record, column string) []interface{} {
	seen := make(map[string]struct{}, len(records))
	var keys []interface{}
	for _, r := range records {
		v := r.Get(column)
		if v == nil {
			continue
		}
		k := normKey(v)
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		keys = append(keys, v)
	}
	return keys
}

func (db *DB) eagerLoadHas(ctx context.Context, records []*Record, model *ModelDef, rel Relation, name string) error {
	local := localKeyOf(rel, model)
	keys := distinctKeys(records, local)

	byKey := make(map[string][]*Record)
	if len(keys) > 0 {
		related, err := db.Model(rel.Target).Constrain(func(b *Builder) {
			b.WhereIn(rel.ForeignKey, keys...)
		}).Get(ctx)
		if err != nil {
			return err
		}
		for _, rec := range related {
			k := normKey(rec.Get(rel.ForeignKey))
			byKey[k] = append(byKey[k], rec)
		}
	}

	for _, r := range records {
		matches := byKey[normKey(r.Get(local))]
		if rel.Kind == HasOne {
			if len(matches) > 0 {
				r.setRelation(name, matches[0])
			} else {
				r.setRelation(name, (*Record)(nil))
			}
			continue
		}
		if matches == nil {
			matches = []*Record{}
		}
		r.setRelation(name, matches)
	}
	return nil
}

func (db *DB) eagerLoadBelongsTo(ctx context.Context, records []*Record, rel Relation, name string) error {
	target, ok := db.registry.Lookup(rel.Target)
	if !ok {
		return WrapError(ErrModelNotRegistered, rel.Target)
	}
	owner := ownerKeyOf(rel, target)
	keys := distinctKeys(records, rel.ForeignKey)

	byKey := make(map[string]*Record)
	if len(keys) > 0 {
		related, err := db.Model(rel.Target).Constrain(func(b *Builder) {
			b.WhereIn(owner, keys...)
		}).Get(ctx)
		if err != nil {
			return err
		}
		for _, rec := range related {
			byKey[normKey(rec.Get(owner))] = rec
		}
	}

	for _, r := range records {
		fk := r.Get(rel.ForeignKey)
		if fk == nil {
			r.setRelation(name, (*Record)(nil))
			continue
		}
		if rec, ok := byKey[normKey(fk)]; ok {
			r.setRelation(name, rec)
		} else {
			r.setRelation(name, (*Record)(nil))
		}
	}
	return nil
}

// eagerLoadBelongsToMany issues one pivot query followed by one
// related-table query, then assembles per-parent slices in pivot row
// order.
func (db *DB) eagerLoadBelongsToMany(ctx context.Context, records []*Record, model *ModelDef, rel Relation, name string) error {
	target, ok := db.registry.Lookup(rel.Target)
	if !ok {
		return WrapError(ErrModelNotRegistered, rel.Target)
	}

	local := localKeyOf(rel, model)
	keys := distinctKeys(records, local)

	// Parent key -> ordered related keys, from the pivot table.
	pivotByLocal := make(map[string][]interface{})
	var relatedKeys []interface{}
	if len(keys) > 0 {
		pivotRows, err := db.Table(rel.PivotTable).Constrain(func(b *Builder) {
			b.WhereIn(rel.PivotLocalKey, keys...)
		}).Get(ctx)
		if err != nil {
			return err
		}
		seen := make(map[string]struct{})
		for _, row := range pivotRows {
			localVal := row.Get(rel.PivotLocalKey)
			relatedVal := row.Get(rel.PivotRelatedKey)
			if localVal == nil || relatedVal == nil {
				continue
			}
			pivotByLocal[normKey(localVal)] = append(pivotByLocal[normKey(localVal)], relatedVal)
			if _, ok := seen[normKey(relatedVal)]; !ok {
				seen[normKey(relatedVal)] = struct{}{}
				relatedKeys = append(relatedKeys, relatedVal)
			}
		}
	}

	byKey := make(map[string]*Record)
	if len(relatedKeys) > 0 {
		related, err := db.Model(rel.Target).Constrain(func(b *Builder) {
			b.WhereIn(target.PrimaryKey, relatedKeys...)
		}).Get(ctx)
		if err != nil {
			return err
		}
		for _, rec := range related {
			byKey[normKey(rec.Get(target.PrimaryKey))] = rec
		}
	}

	for _, r := range records {
		var matches []*Record
		for _, rk := range pivotByLocal[normKey(r.Get(local))] {
			if rec, ok := byKey[normKey(rk)]; ok {
				matches = append(matches, rec)
			}
		}
		if matches == nil {
			matches = []*Record{}
		}
		r.setRelation(name, matches)
	}
	return nil
}

// eagerLoadMorphTo groups parents by discriminator value and issues one
// batched query per distinct target model. Unknown discriminators get a
// nil value and a warning rather than an error.
func (db *DB) eagerLoadMorphTo(ctx context.Context, records []*Record, model *ModelDef, rel Relation, name string) error {
	byType := make(map[string][]*Record)
	for _, r := range records {
		byType[r.GetString(rel.TypeColumn)] = append(byType[r.GetString(rel.TypeColumn)], r)
	}

	for typeVal, group := range byType {
		if typeVal == "" {
			for _, r := range group {
				r.setRelation(name, (*Record)(nil))
			}
			continue
		}

		target, ok := db.registry.Lookup(typeVal)
		if !ok {
			db.logger.Warn("unknown polymorphic target",
				"relation", name,
				"discriminator", typeVal,
				"model", model.Name,
			)
			for _, r := range group {
				r.setRelation(name, (*Record)(nil))
			}
			continue
		}

		keys := distinctKeys(group, rel.ForeignKey)
		byKey := make(map[string]*Record)
		if len(keys) > 0 {
			related, err := db.Model(target.Name).Constrain(func(b *Builder) {
				b.WhereIn(target.PrimaryKey, keys...)
			}).Get(ctx)
			if err != nil {
				return err
			}
			for _, rec := range related {
				byKey[normKey(rec.Get(target.PrimaryKey))] = rec
			}
		}

		for _, r := range group {
			fk := r.Get(rel.ForeignKey)
			if fk == nil {
				r.setRelation(name, (*Record)(nil))
				continue
			}
			if rec, ok := byKey[normKey(fk)]; ok {
				r.setRelation(name, rec)
			} else {
				r.setRelation(name, (*Record)(nil))
			}
		}
	}
	return nil
}
