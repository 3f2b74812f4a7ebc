package internal

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lychee-technology/eav"
	"go.uber.org/zap"
)

type storagePool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	BeginTx(ctx context.Context, txOptions pgx.TxOptions) (pgx.Tx, error)
}

// PostgresStorage implements eav.Storage on a pgx pool.
type PostgresStorage struct {
	pool    storagePool
	dialect Dialect
}

// NewPostgresStorage wraps pool; a *pgxpool.Pool satisfies storagePool.
func NewPostgresStorage(pool storagePool) *PostgresStorage {
	return &PostgresStorage{pool: pool, dialect: PostgresDialect}
}

func (s *PostgresStorage) CreateEntityTable(ctx context.Context) error {
	for _, stmt := range s.dialect.EntityTableDDL() {
		zap.S().Debugw("create entity table", "query", stmt)
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("create entity table: %w", err)
		}
	}
	return nil
}

func (s *PostgresStorage) CreateValueTable(ctx context.Context, table *eav.ValueTable) error {
	stmt := s.dialect.ValueTableDDL(table)
	zap.S().Debugw("create value table", "table", table.Name, "query", stmt)
	if _, err := s.pool.Exec(ctx, stmt); err != nil {
		return fmt.Errorf("create value table %s: %w", table.Name, err)
	}
	return nil
}

func (s *PostgresStorage) Begin(ctx context.Context) (eav.Tx, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	return &postgresTx{tx: tx, dialect: s.dialect}, nil
}

type postgresTx struct {
	tx      pgx.Tx
	dialect Dialect
}

func (t *postgresTx) InsertEntity(ctx context.Context, schema string) (int64, error) {
	var id int64
	if err := t.tx.QueryRow(ctx, t.dialect.insertEntitySQL(), schema).Scan(&id); err != nil {
		return 0, fmt.Errorf("insert entity: %w", err)
	}
	return id, nil
}

func (t *postgresTx) LoadEntity(ctx context.Context, id int64) (string, bool, error) {
	var schema string
	err := t.tx.QueryRow(ctx, t.dialect.loadEntitySQL(), id).Scan(&schema)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("load entity: %w", err)
	}
	return schema, true, nil
}

func (t *postgresTx) DeleteEntity(ctx context.Context, id int64, tables []*eav.ValueTable) error {
	for _, table := range tables {
		if _, err := t.tx.Exec(ctx, t.dialect.deleteValuesSQL(table), id); err != nil {
			return fmt.Errorf("delete values from %s: %w", table.Name, err)
		}
	}
	if _, err := t.tx.Exec(ctx, t.dialect.deleteEntitySQL(), id); err != nil {
		return fmt.Errorf("delete entity: %w", err)
	}
	return nil
}

func (t *postgresTx) LoadValues(ctx context.Context, table *eav.ValueTable, entityID int64) (map[string]any, error) {
	rows, err := t.tx.Query(ctx, t.dialect.loadValuesSQL(table), entityID)
	if err != nil {
		return nil, fmt.Errorf("query values from %s: %w", table.Name, err)
	}
	defer rows.Close()

	values := make(map[string]any)
	for rows.Next() {
		var name string
		dest, read := table.ValueType.ScanTarget()
		if err := rows.Scan(&name, dest); err != nil {
			return nil, fmt.Errorf("scan value from %s: %w", table.Name, err)
		}
		values[name] = read()
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate values from %s: %w", table.Name, err)
	}
	return values, nil
}

func (t *postgresTx) UpsertValue(ctx context.Context, table *eav.ValueTable, entityID int64, name string, value any) error {
	query := t.dialect.upsertValueSQL(table)
	zap.S().Debugw("upsert value", "query", query, "entityId", entityID, "name", name)
	if _, err := t.tx.Exec(ctx, query, entityID, name, t.dialect.bindValue(value)); err != nil {
		return fmt.Errorf("upsert value into %s: %w", table.Name, err)
	}
	return nil
}

func (t *postgresTx) DeleteValue(ctx context.Context, table *eav.ValueTable, entityID int64, name string) error {
	if _, err := t.tx.Exec(ctx, t.dialect.deleteValueSQL(table), entityID, name); err != nil {
		return fmt.Errorf("delete value from %s: %w", table.Name, err)
	}
	return nil
}

func (t *postgresTx) Commit(ctx context.Context) error {
	if err := t.tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func (t *postgresTx) Rollback(ctx context.Context) error {
	if err := t.tx.Rollback(ctx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
		return fmt.Errorf("rollback transaction: %w", err)
	}
	return nil
}
