package eav

import (
	"context"
)

// Storage is the relational engine the mapping layer delegates to. Table
// creation is idempotent; all row access happens inside a Tx.
type Storage interface {
	// Bootstrap
	CreateEntityTable(ctx context.Context) error
	CreateValueTable(ctx context.Context, table *ValueTable) error

	// Unit of work
	Begin(ctx context.Context) (Tx, error)
}

// Tx is one storage transaction. Implementations return driver errors as-is
// (wrapped with %w) so callers can inspect them.
type Tx interface {
	// Entity rows
	InsertEntity(ctx context.Context, schema string) (int64, error)
	LoadEntity(ctx context.Context, id int64) (schema string, found bool, err error)
	// DeleteEntity removes the entity row and its rows in every given value table.
	DeleteEntity(ctx context.Context, id int64, tables []*ValueTable) error

	// Value rows
	LoadValues(ctx context.Context, table *ValueTable, entityID int64) (map[string]any, error)
	UpsertValue(ctx context.Context, table *ValueTable, entityID int64, name string, value any) error
	DeleteValue(ctx context.Context, table *ValueTable, entityID int64, name string) error

	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}
