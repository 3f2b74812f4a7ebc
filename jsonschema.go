package eav

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/google/jsonschema-go/jsonschema"
)

// SchemaDefinition is the file form of a schema declaration:
//
//	{"name": "Employee", "fields": [{"name": "age", "type": "Integer"}]}
type SchemaDefinition struct {
	Name   string            `json:"name"`
	Fields []FieldDefinition `json:"fields"`
}

// FieldDefinition declares one field; Type uses the ValueType.String form.
type FieldDefinition struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

const definitionSchemaJSON = `{
  "type": "object",
  "required": ["name", "fields"],
  "additionalProperties": false,
  "properties": {
    "name": {"type": "string", "minLength": 1, "maxLength": 32},
    "fields": {
      "type": "array",
      "minItems": 1,
      "items": {
        "type": "object",
        "required": ["name", "type"],
        "additionalProperties": false,
        "properties": {
          "name": {"type": "string", "minLength": 1, "maxLength": 32},
          "type": {"type": "string", "pattern": "^\\s*[A-Za-z]+\\s*(\\(.*\\))?\\s*$"}
        }
      }
    }
  }
}`

var definitionSchema = mustResolveDefinitionSchema()

func mustResolveDefinitionSchema() *jsonschema.Resolved {
	var schema jsonschema.Schema
	if err := json.Unmarshal([]byte(definitionSchemaJSON), &schema); err != nil {
		panic(fmt.Sprintf("failed to unmarshal definition schema: %v", err))
	}
	resolved, err := schema.Resolve(&jsonschema.ResolveOptions{})
	if err != nil {
		panic(fmt.Sprintf("failed to resolve definition schema: %v", err))
	}
	return resolved
}

// ParseSchemaDefinition validates data against the definition document shape
// and decodes it. Field types are checked when the definition is declared.
func ParseSchemaDefinition(data []byte) (*SchemaDefinition, error) {
	var instance any
	if err := json.Unmarshal(data, &instance); err != nil {
		return nil, NewValidationError("", ErrCodeInvalidDefinition, "definition is not valid JSON").WithCause(err)
	}
	if err := definitionSchema.Validate(instance); err != nil {
		return nil, NewValidationError("", ErrCodeInvalidDefinition, fmt.Sprintf("definition is malformed: %v", err)).
			WithCause(err)
	}

	var def SchemaDefinition
	if err := json.Unmarshal(data, &def); err != nil {
		return nil, NewValidationError("", ErrCodeInvalidDefinition, "failed to decode definition").WithCause(err)
	}
	return &def, nil
}

// LoadSchemaFile reads and parses one definition file.
func LoadSchemaFile(path string) (*SchemaDefinition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read schema file %s: %w", path, err)
	}
	def, err := ParseSchemaDefinition(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse schema file %s: %w", path, err)
	}
	return def, nil
}

// LoadSchemaDir parses every *.json file in dir, in file name order.
func LoadSchemaDir(dir string) ([]*SchemaDefinition, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read schema directory %s: %w", dir, err)
	}
	var names []string
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		names = append(names, entry.Name())
	}
	sort.Strings(names)

	defs := make([]*SchemaDefinition, 0, len(names))
	for _, name := range names {
		def, err := LoadSchemaFile(filepath.Join(dir, name))
		if err != nil {
			return nil, err
		}
		defs = append(defs, def)
	}
	return defs, nil
}

// ToFields parses each field type.
func (d *SchemaDefinition) ToFields() ([]Field, error) {
	fields := make([]Field, 0, len(d.Fields))
	for _, fd := range d.Fields {
		t, err := ParseValueType(fd.Type)
		if err != nil {
			if e, ok := err.(*Error); ok {
				return nil, e.WithField(fd.Name).WithSchema(d.Name)
			}
			return nil, err
		}
		fields = append(fields, Field{Name: fd.Name, Type: t})
	}
	return fields, nil
}

// Define declares the schema described by def.
func (r *Registry) Define(def *SchemaDefinition) (*Schema, error) {
	fields, err := def.ToFields()
	if err != nil {
		return nil, err
	}
	return r.DefineSchema(def.Name, fields...)
}

// Definition renders s back to its file form.
func (s *Schema) Definition() *SchemaDefinition {
	def := &SchemaDefinition{Name: s.name, Fields: make([]FieldDefinition, 0, len(s.fields))}
	for _, desc := range s.fields {
		def.Fields = append(def.Fields, FieldDefinition{Name: desc.name, Type: desc.ValueType().String()})
	}
	return def
}
