package eav

import "strings"

// Physical names shared by every storage backend.
const (
	EntityTable        = "entity"
	EntityIDColumn     = "id"
	EntitySchemaColumn = "schema"

	ValueEntityIDColumn = "entity_id"
	ValueNameColumn     = "name"
	ValueColumn         = "value"

	// MaxNameLength bounds schema and attribute names; it is the width of the
	// discriminator and attribute-name columns.
	MaxNameLength = 32

	valueTablePrefix   = "value_"
	relationPrefix     = "rel_"
	backrefPrefix      = "ref_"
	rootEntityTypeName = "Entity"
)

// CascadePolicy controls what happens to value rows when their owner goes away.
type CascadePolicy string

// CascadeAllDeleteOrphan deletes a value row when its entity is deleted or when
// the row is removed from the entity's collection.
const CascadeAllDeleteOrphan CascadePolicy = "all, delete-orphan"

// Relationship links the root entity type to one value table. Members of the
// collection are keyed by KeyColumn.
type Relationship struct {
	Name      string        `json:"name"`
	Backref   string        `json:"backref"`
	Owner     string        `json:"owner"`
	KeyColumn string        `json:"keyColumn"`
	Cascade   CascadePolicy `json:"cascade"`
	Target    *ValueTable   `json:"-"`
}

// ValueTable is the definition of the table holding every
// (entity, attribute name) -> value binding of one value type.
type ValueTable struct {
	// ClassName is the canonical type name used as the cache key.
	ClassName    string        `json:"className"`
	Name         string        `json:"name"`
	ValueType    ValueType     `json:"valueType"`
	Relationship *Relationship `json:"relationship"`
}

func newValueTable(t ValueType) *ValueTable {
	className := t.CanonicalName()
	physical := valueTablePrefix + strings.ToLower(className)
	table := &ValueTable{
		ClassName: className,
		Name:      physical,
		ValueType: t,
	}
	table.Relationship = &Relationship{
		Name:      relationPrefix + physical,
		Backref:   backrefPrefix + physical,
		Owner:     rootEntityTypeName,
		KeyColumn: ValueNameColumn,
		Cascade:   CascadeAllDeleteOrphan,
		Target:    table,
	}
	return table
}

// Columns lists the table's columns in declaration order.
func (t *ValueTable) Columns() []string {
	return []string{ValueEntityIDColumn, ValueNameColumn, ValueColumn}
}

// PrimaryKey lists the composite key columns.
func (t *ValueTable) PrimaryKey() []string {
	return []string{ValueEntityIDColumn, ValueNameColumn}
}
