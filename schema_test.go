package eav

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func defineEmployee(t *testing.T, r *Registry) *Schema {
	t.Helper()
	schema, err := r.DefineSchema("Employee",
		F("firstname", String(16)),
		F("lastname", String(16)),
		F("age", Integer),
	)
	require.NoError(t, err)
	return schema
}

func TestDefineSchema(t *testing.T) {
	r := NewRegistry()
	schema := defineEmployee(t, r)

	assert.Equal(t, "Employee", schema.Name())
	assert.Equal(t, []string{"firstname", "lastname", "age"}, schema.FieldNames())
	assert.Len(t, schema.Tables(), 2)
	assert.Len(t, r.Tables(), 2)

	first, ok := schema.Field("firstname")
	require.True(t, ok)
	last, ok := schema.Field("lastname")
	require.True(t, ok)
	assert.Same(t, first.Table(), last.Table())
	assert.Equal(t, String(16), first.ValueType())

	found, ok := r.Schema("Employee")
	require.True(t, ok)
	assert.Same(t, schema, found)
	assert.Equal(t, []string{"Employee"}, r.Schemas())
}

func TestDefineSchemaValidation(t *testing.T) {
	tests := []struct {
		name   string
		schema string
		fields []Field
		code   string
	}{
		{"leading digit", "1bad", []Field{F("a", Integer)}, ErrCodeInvalidIdentifier},
		{"keyword schema", "func", []Field{F("a", Integer)}, ErrCodeReservedName},
		{"keyword field", "Thing", []Field{F("type", Integer)}, ErrCodeReservedName},
		{"class field", "Ok", []Field{F("class", Integer)}, ErrCodeReservedName},
		{"def field", "Ok", []Field{F("def", Integer)}, ErrCodeReservedName},
		{"None schema", "None", []Field{F("a", Integer)}, ErrCodeReservedName},
		{"reserved column", "Thing", []Field{F("id", Integer)}, ErrCodeReservedName},
		{"discriminator column", "Thing", []Field{F("schema", Integer)}, ErrCodeReservedName},
		{"bad field name", "Thing", []Field{F("first-name", Integer)}, ErrCodeInvalidIdentifier},
		{"too long", "Thing", []Field{F(strings.Repeat("a", MaxNameLength+1), Integer)}, ErrCodeNameTooLong},
		{"duplicate field", "Thing", []Field{F("a", Integer), F("a", Float)}, ErrCodeDuplicateField},
		{"no fields", "Thing", nil, ErrCodeNoFields},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			r := NewRegistry()
			_, err := r.DefineSchema(tt.schema, tt.fields...)
			require.Error(t, err)
			assert.True(t, IsValidationError(err))

			var e *Error
			require.ErrorAs(t, err, &e)
			assert.Equal(t, tt.code, e.Code)
			assert.Empty(t, r.Tables())
			assert.Empty(t, r.Schemas())
		})
	}
}

func TestDefineSchemaIsAllOrNothing(t *testing.T) {
	r := NewRegistry()
	_, err := r.DefineSchema("Thing",
		F("name", String(16)),
		F("blob", ValueType{Kind: "Blob"}),
	)
	require.Error(t, err)
	assert.True(t, IsTypeMismatch(err))

	var e *Error
	require.ErrorAs(t, err, &e)
	assert.Equal(t, "blob", e.Field)
	assert.Equal(t, "Thing", e.Schema)
	assert.Empty(t, r.Tables())

	_, err = r.DefineSchema("Thing",
		F("name", String(16)),
		F("name", String(16)),
		F("age", Integer),
	)
	require.Error(t, err)
	assert.Empty(t, r.Tables())
}

func TestDefineSchemaRedeclare(t *testing.T) {
	r := NewRegistry()
	schema := defineEmployee(t, r)

	again := defineEmployee(t, r)
	assert.Same(t, schema, again)

	_, err := r.DefineSchema("Employee", F("firstname", String(32)))
	require.Error(t, err)
	var e *Error
	require.ErrorAs(t, err, &e)
	assert.Equal(t, ErrCodeSchemaConflict, e.Code)
	assert.Len(t, r.Tables(), 2)
}

func TestSchemasShareValueTables(t *testing.T) {
	r := NewRegistry()
	employee := defineEmployee(t, r)
	manager, err := r.DefineSchema("Manager", F("firstname", String(16)), F("reports", Integer))
	require.NoError(t, err)

	e, _ := employee.Field("firstname")
	m, _ := manager.Field("firstname")
	assert.NotSame(t, e, m)
	assert.Same(t, e.Table(), m.Table())
	assert.Len(t, r.Tables(), 2)
	assert.Equal(t, []string{"Employee", "Manager"}, r.Schemas())
}

func TestSchemaNew(t *testing.T) {
	r := NewRegistry()
	schema := defineEmployee(t, r)

	e, err := schema.New(map[string]any{"firstname": "Ada", "age": 36})
	require.NoError(t, err)
	assert.Equal(t, "Employee", e.SchemaName())
	assert.Zero(t, e.ID())
	assert.Equal(t, map[string]any{"firstname": "Ada", "age": int64(36)}, e.Values())

	_, err = schema.New(map[string]any{"salary": 10, "bonus": 1})
	require.Error(t, err)
	var ve *Error
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, ErrCodeUnknownField, ve.Code)
	assert.Equal(t, "bonus", ve.Field)

	_, err = schema.New(map[string]any{"age": "old"})
	assert.True(t, IsTypeMismatch(err))
}
