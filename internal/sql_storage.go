package internal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lychee-technology/eav"
	"go.uber.org/zap"

	_ "github.com/duckdb/duckdb-go/v2"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

// SQLStorage implements eav.Storage on database/sql for the postgres
// (lib/pq), sqlite (mattn/go-sqlite3) and duckdb dialects.
type SQLStorage struct {
	db      *sql.DB
	dialect Dialect
}

// NewSQLStorage wraps an open database handle.
func NewSQLStorage(db *sql.DB, dialect Dialect) *SQLStorage {
	return &SQLStorage{db: db, dialect: dialect}
}

// OpenSQLStorage opens dsn with the dialect's driver and pings it.
func OpenSQLStorage(ctx context.Context, dialect Dialect, dsn string) (*SQLStorage, error) {
	db, err := sql.Open(dialect.DriverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", dialect.Name, err)
	}
	if dialect.Name != PostgresDialect.Name {
		// in-memory sqlite and duckdb databases live on a single connection
		db.SetMaxOpenConns(1)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping %s: %w", dialect.Name, err)
	}
	return NewSQLStorage(db, dialect), nil
}

// DB exposes the underlying handle.
func (s *SQLStorage) DB() *sql.DB { return s.db }

// Dialect reports the SQL dialect in use.
func (s *SQLStorage) Dialect() Dialect { return s.dialect }

// Close closes the database handle.
func (s *SQLStorage) Close() error { return s.db.Close() }

func (s *SQLStorage) CreateEntityTable(ctx context.Context) error {
	for _, stmt := range s.dialect.EntityTableDDL() {
		zap.S().Debugw("create entity table", "dialect", s.dialect.Name, "query", stmt)
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("create entity table: %w", err)
		}
	}
	return nil
}

func (s *SQLStorage) CreateValueTable(ctx context.Context, table *eav.ValueTable) error {
	stmt := s.dialect.ValueTableDDL(table)
	zap.S().Debugw("create value table", "dialect", s.dialect.Name, "table", table.Name, "query", stmt)
	if _, err := s.db.ExecContext(ctx, stmt); err != nil {
		return fmt.Errorf("create value table %s: %w", table.Name, err)
	}
	return nil
}

func (s *SQLStorage) Begin(ctx context.Context) (eav.Tx, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	return &sqlTx{tx: tx, dialect: s.dialect}, nil
}

type sqlTx struct {
	tx      *sql.Tx
	dialect Dialect
}

func (t *sqlTx) InsertEntity(ctx context.Context, schema string) (int64, error) {
	var id int64
	if err := t.tx.QueryRowContext(ctx, t.dialect.insertEntitySQL(), schema).Scan(&id); err != nil {
		return 0, fmt.Errorf("insert entity: %w", err)
	}
	return id, nil
}

func (t *sqlTx) LoadEntity(ctx context.Context, id int64) (string, bool, error) {
	var schema string
	err := t.tx.QueryRowContext(ctx, t.dialect.loadEntitySQL(), id).Scan(&schema)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("load entity: %w", err)
	}
	return schema, true, nil
}

func (t *sqlTx) DeleteEntity(ctx context.Context, id int64, tables []*eav.ValueTable) error {
	for _, table := range tables {
		if _, err := t.tx.ExecContext(ctx, t.dialect.deleteValuesSQL(table), id); err != nil {
			return fmt.Errorf("delete values from %s: %w", table.Name, err)
		}
	}
	if _, err := t.tx.ExecContext(ctx, t.dialect.deleteEntitySQL(), id); err != nil {
		return fmt.Errorf("delete entity: %w", err)
	}
	return nil
}

func (t *sqlTx) LoadValues(ctx context.Context, table *eav.ValueTable, entityID int64) (map[string]any, error) {
	rows, err := t.tx.QueryContext(ctx, t.dialect.loadValuesSQL(table), entityID)
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

func (t *sqlTx) UpsertValue(ctx context.Context, table *eav.ValueTable, entityID int64, name string, value any) error {
	query := t.dialect.upsertValueSQL(table)
	zap.S().Debugw("upsert value", "dialect", t.dialect.Name, "query", query, "entityId", entityID, "name", name)
	if _, err := t.tx.ExecContext(ctx, query, entityID, name, t.dialect.bindValue(value)); err != nil {
		return fmt.Errorf("upsert value into %s: %w", table.Name, err)
	}
	return nil
}

func (t *sqlTx) DeleteValue(ctx context.Context, table *eav.ValueTable, entityID int64, name string) error {
	if _, err := t.tx.ExecContext(ctx, t.dialect.deleteValueSQL(table), entityID, name); err != nil {
		return fmt.Errorf("delete value from %s: %w", table.Name, err)
	}
	return nil
}

func (t *sqlTx) Commit(_ context.Context) error {
	if err := t.tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func (t *sqlTx) Rollback(_ context.Context) error {
	if err := t.tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		return fmt.Errorf("rollback transaction: %w", err)
	}
	return nil
}
