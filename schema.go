package eav

import (
	"fmt"
	"go/token"
	"sort"

	"go.uber.org/zap"
)

// Field declares one attribute of a schema.
type Field struct {
	Name string    `json:"name"`
	Type ValueType `json:"type"`
}

// F is shorthand for Field{Name: name, Type: t}.
func F(name string, t ValueType) Field {
	return Field{Name: name, Type: t}
}

// Schema is a declared entity subtype: a discriminator value plus one
// descriptor per field, in declaration order.
type Schema struct {
	name   string
	fields []*AttributeDescriptor
	byName map[string]*AttributeDescriptor
}

// reserved names collide with the root entity's own columns.
var reservedNames = map[string]struct{}{
	EntityIDColumn:     {},
	EntitySchemaColumn: {},
}

// interchangeKeywords are rejected on top of Go keywords: schema files are
// shared with Python tooling, where these cannot be attribute names.
var interchangeKeywords = map[string]struct{}{
	"False": {}, "None": {}, "True": {}, "and": {}, "as": {}, "assert": {},
	"async": {}, "await": {}, "class": {}, "def": {}, "del": {}, "elif": {},
	"except": {}, "finally": {}, "from": {}, "global": {}, "in": {}, "is": {},
	"lambda": {}, "nonlocal": {}, "not": {}, "or": {}, "pass": {}, "raise": {},
	"try": {}, "while": {}, "with": {}, "yield": {},
}

func isKeyword(name string) bool {
	if token.IsKeyword(name) {
		return true
	}
	_, ok := interchangeKeywords[name]
	return ok
}

func isIdentifier(name string) bool {
	return token.IsIdentifier(name)
}

func validateName(name string) *Error {
	if isKeyword(name) {
		return NewValidationError(name, ErrCodeReservedName, fmt.Sprintf("%q is a reserved keyword", name))
	}
	if !isIdentifier(name) {
		return NewValidationError(name, ErrCodeInvalidIdentifier, fmt.Sprintf("%q is not a valid identifier", name))
	}
	if _, ok := reservedNames[name]; ok {
		return NewValidationError(name, ErrCodeReservedName, fmt.Sprintf("%q is reserved by the entity table", name))
	}
	if len(name) > MaxNameLength {
		return NewValidationError(name, ErrCodeNameTooLong, fmt.Sprintf("%q exceeds %d bytes", name, MaxNameLength))
	}
	return nil
}

// DefineSchema validates name and fields, binds one descriptor per field to
// its value table and registers the schema. Validation happens before any
// value table is created. Declaring an existing name again with identical
// fields returns the existing schema.
func (r *Registry) DefineSchema(name string, fields ...Field) (*Schema, error) {
	if err := validateName(name); err != nil {
		return nil, err
	}
	if len(fields) == 0 {
		return nil, NewValidationError("", ErrCodeNoFields, "schema needs at least one field").WithSchema(name)
	}

	seen := make(map[string]struct{}, len(fields))
	for _, field := range fields {
		if err := validateName(field.Name); err != nil {
			return nil, err.WithSchema(name)
		}
		if _, dup := seen[field.Name]; dup {
			return nil, NewValidationError(field.Name, ErrCodeDuplicateField, fmt.Sprintf("duplicate field name %q", field.Name)).
				WithSchema(name)
		}
		seen[field.Name] = struct{}{}
	}
	for _, field := range fields {
		if err := field.Type.Validate(); err != nil {
			return nil, err.(*Error).WithField(field.Name).WithSchema(name)
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.schemas[name]; ok {
		if existing.sameFields(fields) {
			return existing, nil
		}
		return nil, NewValidationError("", ErrCodeSchemaConflict, "schema is already declared with different fields").
			WithSchema(name)
	}
	pending := make(map[string]ValueType, len(fields))
	for _, field := range fields {
		if err := r.checkTableLocked(field.Type, pending); err != nil {
			return nil, err.WithField(field.Name).WithSchema(name)
		}
	}

	schema := &Schema{
		name:   name,
		fields: make([]*AttributeDescriptor, 0, len(fields)),
		byName: make(map[string]*AttributeDescriptor, len(fields)),
	}
	for _, field := range fields {
		desc := &AttributeDescriptor{
			name:   field.Name,
			schema: name,
			table:  r.getOrCreateTableLocked(field.Type),
			policy: r.deletePolicy,
		}
		schema.fields = append(schema.fields, desc)
		schema.byName[field.Name] = desc
	}
	r.schemas[name] = schema

	zap.S().Infow("schema declared", "schema", name, "fields", schema.FieldNames())
	return schema, nil
}

// Name is the schema's discriminator value.
func (s *Schema) Name() string {
	return s.name
}

// Fields returns the descriptors in declaration order.
func (s *Schema) Fields() []*AttributeDescriptor {
	fields := make([]*AttributeDescriptor, len(s.fields))
	copy(fields, s.fields)
	return fields
}

// FieldNames returns the declared field names in declaration order.
func (s *Schema) FieldNames() []string {
	names := make([]string, len(s.fields))
	for i, desc := range s.fields {
		names[i] = desc.name
	}
	return names
}

// Field returns the descriptor bound to name.
func (s *Schema) Field(name string) (*AttributeDescriptor, bool) {
	desc, ok := s.byName[name]
	return desc, ok
}

// Tables returns the distinct value tables used by the schema's fields.
func (s *Schema) Tables() []*ValueTable {
	seen := make(map[*ValueTable]struct{})
	var tables []*ValueTable
	for _, desc := range s.fields {
		if _, ok := seen[desc.table]; ok {
			continue
		}
		seen[desc.table] = struct{}{}
		tables = append(tables, desc.table)
	}
	return tables
}

// New creates a transient entity of this schema, assigning each value through
// its descriptor. Unknown field names are rejected.
func (s *Schema) New(values map[string]any) (*Entity, error) {
	var unknown []string
	for key := range values {
		if _, ok := s.byName[key]; !ok {
			unknown = append(unknown, key)
		}
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return nil, NewValidationError(unknown[0], ErrCodeUnknownField, fmt.Sprintf("%s has no field %q", s.name, unknown[0])).
			WithSchema(s.name).
			WithDetail("unknown", unknown)
	}

	entity := newEntity(s)
	for _, desc := range s.fields {
		value, ok := values[desc.name]
		if !ok {
			continue
		}
		if err := desc.Set(entity, value); err != nil {
			return nil, err
		}
	}
	return entity, nil
}

func (s *Schema) sameFields(fields []Field) bool {
	if len(fields) != len(s.fields) {
		return false
	}
	for i, field := range fields {
		desc := s.fields[i]
		if desc.name != field.Name || desc.table.ClassName != field.Type.CanonicalName() {
			return false
		}
	}
	return true
}

func (s *Schema) String() string {
	return fmt.Sprintf("%s(%v)", s.name, s.FieldNames())
}
