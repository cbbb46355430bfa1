package core

import "sync"

// RelationKind identifies a relationship variant.
type RelationKind int

// Relationship variants.
const (
	// HasOne: one related row carries the parent's key in ForeignKey.
	HasOne RelationKind = iota
	// HasMany: many related rows carry the parent's key in ForeignKey.
	HasMany
	// BelongsTo: the parent carries the related row's key in ForeignKey.
	BelongsTo
	// BelongsToMany: related rows are associated through a pivot table.
	BelongsToMany
	// MorphTo: the parent carries a discriminator column selecting the
	// related model and a foreign key interpreted against its primary key.
	MorphTo
)

// Relation describes a relationship between two models. Descriptors are
// created once at model-registration time and are immutable afterwards;
// they may be read by many records concurrently.
type Relation struct {
	Kind RelationKind

	// Target is the related model name. Empty for MorphTo, where the
	// discriminator value selects the model at load time.
	Target string

	// ForeignKey is the key column on the related table (HasOne/HasMany)
	// or on the parent (BelongsTo, MorphTo).
	ForeignKey string

	// LocalKey is the key column on the parent (HasOne/HasMany,
	// BelongsToMany) or the owner key on the related table (BelongsTo).
	// Defaults to the respective model's primary key when empty.
	LocalKey string

	// Pivot configuration, BelongsToMany only.
	PivotTable      string
	PivotLocalKey   string // pivot column holding the parent's key
	PivotRelatedKey string // pivot column holding the related row's key

	// TypeColumn is the discriminator column on the parent, MorphTo only.
	TypeColumn string
}

// NewHasOne describes a one-to-one relationship to target. foreignKey
// lives on the related table; localKey defaults to the parent's primary key.
func NewHasOne(target, foreignKey, localKey string) Relation {
	return Relation{Kind: HasOne, Target: target, ForeignKey: foreignKey, LocalKey: localKey}
}

// NewHasMany describes a one-to-many relationship to target.
func NewHasMany(target, foreignKey, localKey string) Relation {
	return Relation{Kind: HasMany, Target: target, ForeignKey: foreignKey, LocalKey: localKey}
}

// NewBelongsTo describes the inverse relationship: foreignKey lives on
// the parent; ownerKey defaults to the target's primary key.
func NewBelongsTo(target, foreignKey, ownerKey string) Relation {
	return Relation{Kind: BelongsTo, Target: target, ForeignKey: foreignKey, LocalKey: ownerKey}
}

// NewBelongsToMany describes a many-to-many relationship through
// pivotTable. pivotLocalKey holds the parent's key, pivotRelatedKey the
// related row's key.
func NewBelongsToMany(target, pivotTable, pivotLocalKey, pivotRelatedKey string) Relation {
	return Relation{
		Kind:            BelongsToMany,
		Target:          target,
		PivotTable:      pivotTable,
		PivotLocalKey:   pivotLocalKey,
		PivotRelatedKey: pivotRelatedKey,
	}
}

// NewMorphTo describes a polymorphic relationship: typeColumn on the
// parent selects the related model by name, foreignKey is interpreted
// against that model's primary key.
func NewMorphTo(typeColumn, foreignKey string) Relation {
	return Relation{Kind: MorphTo, TypeColumn: typeColumn, ForeignKey: foreignKey}
}

// ModelDef defines a registered model: its table, primary key and
// relationship descriptors.
type ModelDef struct {
	// Name identifies the model in the registry and in relation targets.
	Name string
	// Table is the backing table name.
	Table string
	// PrimaryKey defaults to "id".
	PrimaryKey string
	// Relations maps relationship names to descriptors.
	Relations map[string]Relation
}

// Registry maps model names to their definitions. It is populated at
// registration time; lookups after that are read-only.
type Registry struct {
	mu     sync.RWMutex
	models map[string]*ModelDef
}

// NewRegistry creates an empty model registry.
func NewRegistry() *Registry {
	return &Registry{models: make(map[string]*ModelDef)}
}

// Register stores a model definition, filling in defaults. The stored
// definition is a copy; later mutation of def has no effect.
func (r *Registry) Register(def ModelDef) {
	if def.PrimaryKey == "" {
		def.PrimaryKey = "id"
	}
	if def.Table == "" {
		def.Table = def.Name
	}

	relations := make(map[string]Relation, len(def.Relations))
	for name, rel := range def.Relations {
		relations[name] = rel
	}
	def.Relations = relations

	r.mu.Lock()
	defer r.mu.Unlock()
	r.models[def.Name] = &def
}

// Lookup returns the definition registered under name.
func (r *Registry) Lookup(name string) (*ModelDef, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	def, ok := r.models[name]
	return def, ok
}

// relation resolves a relationship descriptor by name.
func (d *ModelDef) relation(name string) (Relation, bool) {
	rel, ok := d.Relations[name]
	return rel, ok
}
