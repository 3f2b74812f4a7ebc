package e2e_harness

import (
	"fmt"
	"os"
	"path/filepath"
)

// EmployeeDefinition is the schema file used by the end-to-end tests.
const EmployeeDefinition = `{
  "name": "Employee",
  "fields": [
    {"name": "firstname", "type": "String(16)"},
    {"name": "lastname", "type": "String(16)"},
    {"name": "age", "type": "Integer"},
    {"name": "badge", "type": "UUID"},
    {"name": "hired", "type": "DateTime"}
  ]
}`

// WriteSchemaDir writes the fixture definitions into dir.
func WriteSchemaDir(dir string) error {
	path := filepath.Join(dir, "employee.json")
	if err := os.WriteFile(path, []byte(EmployeeDefinition), 0o644); err != nil {
		return fmt.Errorf("write schema fixture: %w", err)
	}
	return nil
}
