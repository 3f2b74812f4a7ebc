package internal

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lychee-technology/eav"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sqlRowCounter(storage *SQLStorage) rowCounter {
	return func(t *testing.T, table string, id int64) int {
		t.Helper()
		query := fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE %s = %s",
			sanitizeIdentifier(table), sanitizeIdentifier(eav.ValueEntityIDColumn), storage.dialect.placeholder(1))
		var n int
		require.NoError(t, storage.DB().QueryRow(query, id).Scan(&n))
		return n
	}
}

func TestSQLStorageScenario(t *testing.T) {
	for _, dialect := range []Dialect{SQLiteDialect, DuckDBDialect} {
		dialect := dialect
		t.Run(dialect.Name, func(t *testing.T) {
			storage, err := OpenSQLStorage(context.Background(), dialect, ":memory:")
			require.NoError(t, err)
			defer storage.Close()
			assert.Equal(t, dialect.Name, storage.Dialect().Name)

			runStorageScenario(t, storage, sqlRowCounter(storage))
		})
	}
}

func TestSQLStorageRejectsInvalidValues(t *testing.T) {
	ctx := context.Background()
	storage, err := OpenSQLStorage(ctx, SQLiteDialect, ":memory:")
	require.NoError(t, err)
	defer storage.Close()

	r := eav.NewRegistry()
	table, err := r.GetOrCreateTable(eav.Enum("level", "junior", "senior"))
	require.NoError(t, err)
	require.NoError(t, r.CreateAll(ctx, storage))

	tx, err := storage.Begin(ctx)
	require.NoError(t, err)
	defer tx.Rollback(ctx)
	id, err := tx.InsertEntity(ctx, "Badge")
	require.NoError(t, err)

	// the CHECK constraint backs up descriptor validation
	err = tx.UpsertValue(ctx, table, id, "level", "principal")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "upsert value into value_enum_level")
}

func TestOpenSQLStorageUnknownDriver(t *testing.T) {
	_, err := OpenSQLStorage(context.Background(), Dialect{Name: "oracle", DriverName: "oracle"}, "")
	assert.Error(t, err)
}

func newMockSQLStorage(t *testing.T) (*SQLStorage, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewSQLStorage(db, SQLiteDialect), mock
}

func TestSQLStorageFlushFailureRollsBack(t *testing.T) {
	ctx := context.Background()
	storage, mock := newMockSQLStorage(t)
	fx := newScenarioSchemas(t)
	age, _ := fx.employee.Field("age")
	injected := errors.New("database is locked")

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(SQLiteDialect.insertEntitySQL())).
		WithArgs("Employee").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(7))
	mock.ExpectExec(regexp.QuoteMeta(SQLiteDialect.upsertValueSQL(age.Table()))).
		WithArgs(int64(7), "age", int64(36)).
		WillReturnError(injected)
	mock.ExpectRollback()

	e, err := fx.employee.New(map[string]any{"age": 36})
	require.NoError(t, err)
	s := eav.NewSession(fx.registry, storage)
	require.NoError(t, s.Add(e))

	err = s.Commit(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, injected)
	assert.Zero(t, e.ID())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLStorageCommitFailure(t *testing.T) {
	ctx := context.Background()
	storage, mock := newMockSQLStorage(t)
	fx := newScenarioSchemas(t)
	first, _ := fx.employee.Field("firstname")
	injected := errors.New("disk I/O error")

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(SQLiteDialect.insertEntitySQL())).
		WithArgs("Employee").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(1))
	mock.ExpectExec(regexp.QuoteMeta(SQLiteDialect.upsertValueSQL(first.Table()))).
		WithArgs(int64(1), "firstname", "Ada").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit().WillReturnError(injected)

	e, err := fx.employee.New(map[string]any{"firstname": "Ada"})
	require.NoError(t, err)
	s := eav.NewSession(fx.registry, storage)
	require.NoError(t, s.Add(e))

	err = s.Commit(ctx)
	assert.ErrorIs(t, err, injected)
	assert.True(t, e.IsDirty())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLStorageDeleteEntity(t *testing.T) {
	ctx := context.Background()
	storage, mock := newMockSQLStorage(t)
	fx := newScenarioSchemas(t)
	tables := fx.registry.Tables()

	mock.ExpectBegin()
	for _, table := range tables {
		mock.ExpectExec(regexp.QuoteMeta(SQLiteDialect.deleteValuesSQL(table))).
			WithArgs(int64(3)).
			WillReturnResult(sqlmock.NewResult(0, 1))
	}
	mock.ExpectExec(regexp.QuoteMeta(SQLiteDialect.deleteEntitySQL())).
		WithArgs(int64(3)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	tx, err := storage.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, tx.DeleteEntity(ctx, 3, tables))
	require.NoError(t, tx.Commit(ctx))
	// rollback after commit is a no-op
	require.NoError(t, tx.Rollback(ctx))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLStorageLoadEntityNotFound(t *testing.T) {
	ctx := context.Background()
	storage, mock := newMockSQLStorage(t)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(SQLiteDialect.loadEntitySQL())).
		WithArgs(int64(9)).
		WillReturnRows(sqlmock.NewRows([]string{"schema"}))
	mock.ExpectRollback()

	tx, err := storage.Begin(ctx)
	require.NoError(t, err)
	_, found, err := tx.LoadEntity(ctx, 9)
	require.NoError(t, err)
	assert.False(t, found)
	require.NoError(t, tx.Rollback(ctx))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLStorageBeginFailure(t *testing.T) {
	storage, mock := newMockSQLStorage(t)
	injected := errors.New("too many connections")
	mock.ExpectBegin().WillReturnError(injected)

	_, err := storage.Begin(context.Background())
	assert.ErrorIs(t, err, injected)
	assert.Contains(t, err.Error(), "begin transaction")
}
