package eav

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"sync"

	"go.uber.org/zap"
)

// Registry owns the value table cache and the declared schemas. Each distinct
// canonical value type maps to exactly one *ValueTable for the registry's
// lifetime. All mutation is serialized by a single lock.
type Registry struct {
	mu           sync.Mutex
	tables       map[string]*ValueTable
	tableOrder   []*ValueTable
	schemas      map[string]*Schema
	deletePolicy DeletePolicy
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithDeletePolicy sets the policy applied by descriptors of schemas declared
// on the registry.
func WithDeletePolicy(policy DeletePolicy) RegistryOption {
	return func(r *Registry) {
		r.deletePolicy = policy
	}
}

// NewRegistry creates an empty registry.
func NewRegistry(opts ...RegistryOption) *Registry {
	r := &Registry{
		tables:       make(map[string]*ValueTable),
		schemas:      make(map[string]*Schema),
		deletePolicy: DeletePolicyIgnore,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// DeletePolicy returns the policy new schemas are declared with.
func (r *Registry) DeletePolicy() DeletePolicy {
	return r.deletePolicy
}

// GetOrCreateTable returns the value table for t, creating and caching it on
// first use. Unsupported types fail before the cache is touched.
func (r *Registry) GetOrCreateTable(t ValueType) (*ValueTable, error) {
	if err := t.Validate(); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.checkTableLocked(t, nil); err != nil {
		return nil, err
	}
	return r.getOrCreateTableLocked(t), nil
}

// checkTableLocked rejects an enum whose name is already cached, or already
// requested in pending, with a different value list. Every other kind is
// fully described by its canonical name.
func (r *Registry) checkTableLocked(t ValueType, pending map[string]ValueType) *Error {
	if t.Kind != KindEnum {
		return nil
	}
	className := t.CanonicalName()
	prior, ok := pending[className]
	if table, cached := r.tables[className]; cached {
		prior, ok = table.ValueType, true
	}
	if ok && !slices.Equal(prior.Values, t.Values) {
		return NewUnsupportedTypeError(t, fmt.Sprintf("enum %s is already declared with values %v", t.Name, prior.Values)).
			WithCode(ErrCodeEnumConflict)
	}
	if pending != nil {
		pending[className] = t
	}
	return nil
}

func (r *Registry) getOrCreateTableLocked(t ValueType) *ValueTable {
	className := t.CanonicalName()
	if table, ok := r.tables[className]; ok {
		return table
	}

	table := newValueTable(t)
	r.tables[className] = table
	r.tableOrder = append(r.tableOrder, table)
	zap.S().Debugw("registered value table", "class", className, "table", table.Name, "relationship", table.Relationship.Name)
	return table
}

// Table looks up a cached value table by canonical name.
func (r *Registry) Table(className string) (*ValueTable, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	table, ok := r.tables[className]
	return table, ok
}

// Tables returns every cached value table in creation order.
func (r *Registry) Tables() []*ValueTable {
	r.mu.Lock()
	defer r.mu.Unlock()
	tables := make([]*ValueTable, len(r.tableOrder))
	copy(tables, r.tableOrder)
	return tables
}

// Relationships returns the root entity's relationship set, one per value table.
func (r *Registry) Relationships() []*Relationship {
	tables := r.Tables()
	rels := make([]*Relationship, 0, len(tables))
	for _, table := range tables {
		rels = append(rels, table.Relationship)
	}
	return rels
}

// Schema returns a declared schema by name.
func (r *Registry) Schema(name string) (*Schema, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	schema, ok := r.schemas[name]
	return schema, ok
}

// Schemas lists declared schema names in sorted order.
func (r *Registry) Schemas() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	names := make([]string, 0, len(r.schemas))
	for name := range r.schemas {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// CreateAll creates the entity table and every cached value table.
func (r *Registry) CreateAll(ctx context.Context, storage Storage) error {
	if storage == nil {
		return NewError(ErrorTypeInternal, ErrCodeStorageRequired, "storage is required")
	}
	if err := storage.CreateEntityTable(ctx); err != nil {
		return fmt.Errorf("create entity table: %w", err)
	}
	tables := r.Tables()
	for _, table := range tables {
		if err := storage.CreateValueTable(ctx, table); err != nil {
			return fmt.Errorf("create value table %s: %w", table.Name, err)
		}
	}
	zap.S().Infow("storage bootstrapped", "valueTables", len(tables))
	return nil
}
