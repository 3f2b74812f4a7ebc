package internal

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lychee-technology/eav"
)

// Dialect captures the SQL differences between the supported engines.
type Dialect struct {
	Name string
	// DriverName is the database/sql driver registered for the dialect.
	DriverName string

	numberedPlaceholders bool
	identityColumn       string
	// preamble runs before the entity table is created.
	preamble        []string
	valueForeignKey bool
	uuidAsText      bool
	types           map[eav.Kind]string
	unboundedString string
}

var (
	PostgresDialect = Dialect{
		Name:                 "postgres",
		DriverName:           "postgres",
		numberedPlaceholders: true,
		identityColumn:       "BIGSERIAL PRIMARY KEY",
		valueForeignKey:      true,
		types: map[eav.Kind]string{
			eav.KindText:       "TEXT",
			eav.KindInteger:    "INTEGER",
			eav.KindBigInteger: "BIGINT",
			eav.KindFloat:      "DOUBLE PRECISION",
			eav.KindBoolean:    "BOOLEAN",
			eav.KindDateTime:   "TIMESTAMPTZ",
			eav.KindUUID:       "UUID",
		},
		unboundedString: "VARCHAR",
	}

	SQLiteDialect = Dialect{
		Name:            "sqlite",
		DriverName:      "sqlite3",
		identityColumn:  "INTEGER PRIMARY KEY AUTOINCREMENT",
		valueForeignKey: true,
		uuidAsText:      true,
		types: map[eav.Kind]string{
			eav.KindText:       "TEXT",
			eav.KindInteger:    "INTEGER",
			eav.KindBigInteger: "BIGINT",
			eav.KindFloat:      "REAL",
			eav.KindBoolean:    "BOOLEAN",
			eav.KindDateTime:   "TIMESTAMP",
			eav.KindUUID:       "VARCHAR(36)",
		},
		unboundedString: "TEXT",
	}

	// DuckDBDialect has no foreign key on value tables: DuckDB cannot
	// cascade and rejects deleting a referenced row in the same transaction.
	DuckDBDialect = Dialect{
		Name:           "duckdb",
		DriverName:     "duckdb",
		identityColumn: "BIGINT PRIMARY KEY DEFAULT nextval('entity_id_seq')",
		preamble:       []string{"CREATE SEQUENCE IF NOT EXISTS entity_id_seq START 1"},
		uuidAsText:     true,
		types: map[eav.Kind]string{
			eav.KindText:       "VARCHAR",
			eav.KindInteger:    "INTEGER",
			eav.KindBigInteger: "BIGINT",
			eav.KindFloat:      "DOUBLE",
			eav.KindBoolean:    "BOOLEAN",
			eav.KindDateTime:   "TIMESTAMP",
			eav.KindUUID:       "VARCHAR",
		},
		unboundedString: "VARCHAR",
	}
)

// DialectByName resolves a dialect by its Name; "pgsql" is an alias of postgres.
func DialectByName(name string) (Dialect, error) {
	switch name {
	case "postgres", "pgsql", "postgresql":
		return PostgresDialect, nil
	case "sqlite", "sqlite3":
		return SQLiteDialect, nil
	case "duckdb":
		return DuckDBDialect, nil
	default:
		return Dialect{}, fmt.Errorf("unknown sql dialect %q", name)
	}
}

func (d Dialect) placeholder(n int) string {
	if d.numberedPlaceholders {
		return fmt.Sprintf("$%d", n)
	}
	return "?"
}

// ColumnType renders the SQL type of a value column, including any CHECK
// constraint an Enum needs.
func (d Dialect) ColumnType(t eav.ValueType) string {
	switch t.Kind {
	case eav.KindString:
		if t.Length > 0 {
			return fmt.Sprintf("VARCHAR(%d)", t.Length)
		}
		return d.unboundedString
	case eav.KindEnum:
		width := 0
		quoted := make([]string, len(t.Values))
		for i, v := range t.Values {
			width = max(width, len(v))
			quoted[i] = quoteLiteral(v)
		}
		return fmt.Sprintf("VARCHAR(%d) CHECK (%s IN (%s))", width, sanitizeIdentifier(eav.ValueColumn), strings.Join(quoted, ", "))
	default:
		if sqlType, ok := d.types[t.Kind]; ok {
			return sqlType
		}
		return d.unboundedString
	}
}

// EntityTableDDL renders the statements creating the root entity table.
func (d Dialect) EntityTableDDL() []string {
	stmts := append([]string{}, d.preamble...)
	stmts = append(stmts, fmt.Sprintf(
		"CREATE TABLE IF NOT EXISTS %s (%s %s, %s VARCHAR(%d) NOT NULL)",
		sanitizeIdentifier(eav.EntityTable),
		sanitizeIdentifier(eav.EntityIDColumn), d.identityColumn,
		sanitizeIdentifier(eav.EntitySchemaColumn), eav.MaxNameLength,
	))
	return stmts
}

// ValueTableDDL renders the statement creating one value table.
func (d Dialect) ValueTableDDL(table *eav.ValueTable) string {
	entityID := sanitizeIdentifier(eav.ValueEntityIDColumn)
	name := sanitizeIdentifier(eav.ValueNameColumn)

	entityCol := entityID + " BIGINT NOT NULL"
	if d.valueForeignKey {
		entityCol += fmt.Sprintf(" REFERENCES %s (%s) ON DELETE CASCADE",
			sanitizeIdentifier(eav.EntityTable), sanitizeIdentifier(eav.EntityIDColumn))
	}
	return fmt.Sprintf(
		"CREATE TABLE IF NOT EXISTS %s (%s, %s VARCHAR(%d) NOT NULL, %s %s NOT NULL, PRIMARY KEY (%s, %s))",
		sanitizeIdentifier(table.Name),
		entityCol,
		name, eav.MaxNameLength,
		sanitizeIdentifier(eav.ValueColumn), d.ColumnType(table.ValueType),
		entityID, name,
	)
}

// RenderDDL renders the full bootstrap script for tables.
func (d Dialect) RenderDDL(tables []*eav.ValueTable) []string {
	stmts := d.EntityTableDDL()
	for _, table := range tables {
		stmts = append(stmts, d.ValueTableDDL(table))
	}
	return stmts
}

func (d Dialect) insertEntitySQL() string {
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) RETURNING %s",
		sanitizeIdentifier(eav.EntityTable),
		sanitizeIdentifier(eav.EntitySchemaColumn),
		d.placeholder(1),
		sanitizeIdentifier(eav.EntityIDColumn))
}

func (d Dialect) loadEntitySQL() string {
	return fmt.Sprintf("SELECT %s FROM %s WHERE %s = %s",
		sanitizeIdentifier(eav.EntitySchemaColumn),
		sanitizeIdentifier(eav.EntityTable),
		sanitizeIdentifier(eav.EntityIDColumn),
		d.placeholder(1))
}

func (d Dialect) deleteEntitySQL() string {
	return fmt.Sprintf("DELETE FROM %s WHERE %s = %s",
		sanitizeIdentifier(eav.EntityTable),
		sanitizeIdentifier(eav.EntityIDColumn),
		d.placeholder(1))
}

func (d Dialect) deleteValuesSQL(table *eav.ValueTable) string {
	return fmt.Sprintf("DELETE FROM %s WHERE %s = %s",
		sanitizeIdentifier(table.Name),
		sanitizeIdentifier(eav.ValueEntityIDColumn),
		d.placeholder(1))
}

func (d Dialect) loadValuesSQL(table *eav.ValueTable) string {
	return fmt.Sprintf("SELECT %s, %s FROM %s WHERE %s = %s",
		sanitizeIdentifier(eav.ValueNameColumn),
		sanitizeIdentifier(eav.ValueColumn),
		sanitizeIdentifier(table.Name),
		sanitizeIdentifier(eav.ValueEntityIDColumn),
		d.placeholder(1))
}

func (d Dialect) upsertValueSQL(table *eav.ValueTable) string {
	entityID := sanitizeIdentifier(eav.ValueEntityIDColumn)
	name := sanitizeIdentifier(eav.ValueNameColumn)
	value := sanitizeIdentifier(eav.ValueColumn)
	return fmt.Sprintf(
		"INSERT INTO %s (%s, %s, %s) VALUES (%s, %s, %s) ON CONFLICT (%s, %s) DO UPDATE SET %s = EXCLUDED.%s",
		sanitizeIdentifier(table.Name),
		entityID, name, value,
		d.placeholder(1), d.placeholder(2), d.placeholder(3),
		entityID, name,
		value, value,
	)
}

func (d Dialect) deleteValueSQL(table *eav.ValueTable) string {
	return fmt.Sprintf("DELETE FROM %s WHERE %s = %s AND %s = %s",
		sanitizeIdentifier(table.Name),
		sanitizeIdentifier(eav.ValueEntityIDColumn), d.placeholder(1),
		sanitizeIdentifier(eav.ValueNameColumn), d.placeholder(2))
}

// bindValue converts a normalised value into a driver argument.
func (d Dialect) bindValue(value any) any {
	switch v := value.(type) {
	case uuid.UUID:
		if d.uuidAsText {
			return v.String()
		}
	case time.Time:
		if d.Name == DuckDBDialect.Name {
			return v.UTC()
		}
	}
	return value
}
