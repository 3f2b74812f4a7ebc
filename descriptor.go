package eav

import "fmt"

// DeletePolicy decides what an explicit Delete on a descriptor does.
type DeletePolicy string

const (
	// DeletePolicyIgnore removes the binding when present and is a no-op otherwise.
	DeletePolicyIgnore DeletePolicy = "ignore"
	// DeletePolicyForbid rejects explicit deletes; assigning nil still clears.
	DeletePolicyForbid DeletePolicy = "forbid"
)

// ParseDeletePolicy maps a config string to a policy.
func ParseDeletePolicy(s string) (DeletePolicy, error) {
	switch DeletePolicy(s) {
	case "", DeletePolicyIgnore:
		return DeletePolicyIgnore, nil
	case DeletePolicyForbid:
		return DeletePolicyForbid, nil
	default:
		return "", fmt.Errorf("unknown delete policy %q", s)
	}
}

// AttributeDescriptor mediates access to one declared field. It is bound to
// a schema at declaration time and shared by every entity of that schema.
type AttributeDescriptor struct {
	name   string
	schema string
	table  *ValueTable
	policy DeletePolicy
}

// Name is the field (attribute) name.
func (d *AttributeDescriptor) Name() string { return d.name }

// Table is the value table the field is stored in.
func (d *AttributeDescriptor) Table() *ValueTable { return d.table }

// ValueType is the declared type of the field.
func (d *AttributeDescriptor) ValueType() ValueType { return d.table.ValueType }

// Get returns the field's value on e. The boolean is false when no value is set.
func (d *AttributeDescriptor) Get(e *Entity) (any, bool) {
	if e == nil {
		return nil, false
	}
	coll := e.lookupCollection(d.table.Relationship)
	if coll == nil {
		return nil, false
	}
	entry, ok := coll.Get(d.name)
	if !ok {
		return nil, false
	}
	return entry.Value, true
}

// Set assigns value to the field on e. A nil value removes the binding.
// A value of the wrong type is rejected and the previous value is kept.
func (d *AttributeDescriptor) Set(e *Entity, value any) error {
	if err := d.checkOwner(e); err != nil {
		return err
	}
	if value == nil {
		d.remove(e)
		return nil
	}

	coerced, ok := d.table.ValueType.Coerce(value)
	if !ok {
		return NewValueMismatchError(d.name, d.table.ValueType, value).WithSchema(d.schema)
	}

	coll := e.Collection(d.table.Relationship)
	if entry, ok := coll.Get(d.name); ok {
		entry.Value = coerced
		entry.dirty = true
		return nil
	}
	coll.Put(&AttributeValue{Name: d.name, Value: coerced, dirty: true})
	return nil
}

// Delete removes the field's binding on e. Missing bindings are not an error
// unless the descriptor forbids deletion.
func (d *AttributeDescriptor) Delete(e *Entity) error {
	if err := d.checkOwner(e); err != nil {
		return err
	}
	if d.policy == DeletePolicyForbid {
		return NewForbiddenOperationError(d.name, fmt.Sprintf("delete is not allowed on attribute %s", d.name)).
			WithSchema(d.schema)
	}
	d.remove(e)
	return nil
}

func (d *AttributeDescriptor) remove(e *Entity) {
	if coll := e.lookupCollection(d.table.Relationship); coll != nil {
		coll.Remove(d.name)
	}
}

func (d *AttributeDescriptor) checkOwner(e *Entity) error {
	if e == nil {
		return NewError(ErrorTypeInternal, ErrCodeUnsavedEntity, "entity is nil").WithField(d.name)
	}
	if e.schema.name != d.schema {
		return NewValidationError(d.name, ErrCodeSchemaMismatch,
			fmt.Sprintf("descriptor of %s used on a %s entity", d.schema, e.schema.name)).
			WithSchema(d.schema)
	}
	return nil
}
