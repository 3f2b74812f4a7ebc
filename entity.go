package eav

import (
	"fmt"
	"sort"
)

type entityState int

const (
	stateTransient entityState = iota
	statePending
	statePersistent
	stateDeleted
)

func (s entityState) String() string {
	switch s {
	case stateTransient:
		return "transient"
	case statePending:
		return "pending"
	case statePersistent:
		return "persistent"
	case stateDeleted:
		return "deleted"
	default:
		return "unknown"
	}
}

// AttributeValue is the in-memory projection of one value row.
type AttributeValue struct {
	Name  string
	Value any

	dirty     bool
	persisted bool
}

// AttributeCollection is an entity's name-keyed view of one value table.
// Entries removed after being persisted are kept as orphans until flushed.
type AttributeCollection struct {
	rel     *Relationship
	entries map[string]*AttributeValue
	orphans map[string]*AttributeValue
}

func newAttributeCollection(rel *Relationship) *AttributeCollection {
	return &AttributeCollection{
		rel:     rel,
		entries: make(map[string]*AttributeValue),
		orphans: make(map[string]*AttributeValue),
	}
}

// Relationship returns the relationship this collection projects.
func (c *AttributeCollection) Relationship() *Relationship { return c.rel }

// Get returns the entry keyed by name.
func (c *AttributeCollection) Get(name string) (*AttributeValue, bool) {
	entry, ok := c.entries[name]
	return entry, ok
}

// Put inserts or replaces the entry keyed by v.Name.
func (c *AttributeCollection) Put(v *AttributeValue) {
	if orphan, ok := c.orphans[v.Name]; ok {
		delete(c.orphans, v.Name)
		v.persisted = orphan.persisted
		v.dirty = true
	}
	c.entries[v.Name] = v
}

// Remove drops the entry keyed by name and reports whether it existed.
func (c *AttributeCollection) Remove(name string) bool {
	entry, ok := c.entries[name]
	if !ok {
		return false
	}
	delete(c.entries, name)
	if entry.persisted {
		c.orphans[name] = entry
	}
	return true
}

// Len is the number of live entries.
func (c *AttributeCollection) Len() int { return len(c.entries) }

// Names lists live entry names in sorted order.
func (c *AttributeCollection) Names() []string {
	return sortedKeys(c.entries)
}

func (c *AttributeCollection) dirtyEntries() []*AttributeValue {
	var out []*AttributeValue
	for _, name := range sortedKeys(c.entries) {
		if entry := c.entries[name]; entry.dirty {
			out = append(out, entry)
		}
	}
	return out
}

func (c *AttributeCollection) orphanNames() []string {
	return sortedKeys(c.orphans)
}

func sortedKeys[T any](m map[string]T) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Entity is an instance of a declared schema. Its fields live in one
// AttributeCollection per value table, created on first use.
type Entity struct {
	id          int64
	schema      *Schema
	collections map[string]*AttributeCollection
	session     *Session
	state       entityState
}

func newEntity(schema *Schema) *Entity {
	return &Entity{
		schema:      schema,
		collections: make(map[string]*AttributeCollection),
		state:       stateTransient,
	}
}

// ID is the surrogate key; zero until the entity is flushed.
func (e *Entity) ID() int64 { return e.id }

// Schema returns the entity's declared schema.
func (e *Entity) Schema() *Schema { return e.schema }

// SchemaName is the discriminator value.
func (e *Entity) SchemaName() string { return e.schema.name }

// Collection returns the entity's collection for rel, creating it if needed.
func (e *Entity) Collection(rel *Relationship) *AttributeCollection {
	if coll, ok := e.collections[rel.Name]; ok {
		return coll
	}
	coll := newAttributeCollection(rel)
	e.collections[rel.Name] = coll
	return coll
}

func (e *Entity) lookupCollection(rel *Relationship) *AttributeCollection {
	return e.collections[rel.Name]
}

func (e *Entity) descriptor(field string) (*AttributeDescriptor, error) {
	desc, ok := e.schema.byName[field]
	if !ok {
		return nil, NewValidationError(field, ErrCodeUnknownField, fmt.Sprintf("%s has no field %q", e.schema.name, field)).
			WithSchema(e.schema.name)
	}
	return desc, nil
}

// Get returns the value of field, or nil when unset.
func (e *Entity) Get(field string) (any, error) {
	desc, err := e.descriptor(field)
	if err != nil {
		return nil, err
	}
	value, _ := desc.Get(e)
	return value, nil
}

// Set assigns field through its descriptor.
func (e *Entity) Set(field string, value any) error {
	desc, err := e.descriptor(field)
	if err != nil {
		return err
	}
	return desc.Set(e, value)
}

// Delete removes field through its descriptor.
func (e *Entity) Delete(field string) error {
	desc, err := e.descriptor(field)
	if err != nil {
		return err
	}
	return desc.Delete(e)
}

// Values returns the set fields. Unset fields are omitted.
func (e *Entity) Values() map[string]any {
	values := make(map[string]any, len(e.schema.fields))
	for _, desc := range e.schema.fields {
		if value, ok := desc.Get(e); ok {
			values[desc.name] = value
		}
	}
	return values
}

// IsDirty reports whether the entity has changes not yet flushed.
func (e *Entity) IsDirty() bool {
	if e.state == stateTransient || e.state == statePending {
		return true
	}
	for _, coll := range e.collections {
		if len(coll.orphans) > 0 || len(coll.dirtyEntries()) > 0 {
			return true
		}
	}
	return false
}

func (e *Entity) String() string {
	return fmt.Sprintf("%s(%d)", e.schema.name, e.id)
}

// FieldValue reads field from e as T. The boolean is false when the field is
// unset; a set value of another type is a type mismatch.
func FieldValue[T any](e *Entity, field string) (T, bool, error) {
	var zero T
	raw, err := e.Get(field)
	if err != nil || raw == nil {
		return zero, false, err
	}
	value, ok := raw.(T)
	if !ok {
		return zero, false, NewTypeMismatchError(field, fmt.Sprintf("value is %T, not %T", raw, zero)).
			WithSchema(e.schema.name)
	}
	return value, true, nil
}
