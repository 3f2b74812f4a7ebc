package factory

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/lychee-technology/eav"
	"github.com/lychee-technology/eav/internal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const employeeDefinition = `{
  "name": "Employee",
  "fields": [
    {"name": "firstname", "type": "String(16)"},
    {"name": "age", "type": "Integer"}
  ]
}`

func stubTokenGenerator(t *testing.T, fn func(ctx context.Context, endpoint, region string) (string, error)) {
	t.Helper()
	orig := tokenGenerator
	tokenGenerator = fn
	t.Cleanup(func() { tokenGenerator = orig })
}

func TestNewBackendMemory(t *testing.T) {
	cfg := eav.DefaultConfig()
	cfg.Storage.Driver = eav.DriverMemory

	backend, err := NewBackend(context.Background(), cfg)
	require.NoError(t, err)
	defer backend.Close()

	assert.IsType(t, &internal.MemoryStorage{}, backend.Storage)
	assert.Equal(t, internal.PostgresDialect.Name, backend.Dialect.Name)
}

func TestNewBackendSQLite(t *testing.T) {
	ctx := context.Background()
	cfg := eav.DefaultConfig()
	cfg.Storage.Driver = eav.DriverSQLite
	cfg.Storage.DSN = filepath.Join(t.TempDir(), "eav.db")

	backend, err := NewBackend(ctx, cfg)
	require.NoError(t, err)
	defer backend.Close()

	storage, ok := backend.Storage.(*internal.SQLStorage)
	require.True(t, ok)
	assert.Equal(t, "sqlite", storage.Dialect().Name)
	require.NoError(t, eav.NewRegistry().CreateAll(ctx, backend.Storage))
}

func TestNewBackendInvalidConfig(t *testing.T) {
	tests := []struct {
		name   string
		driver string
		field  string
	}{
		{"unknown driver", "oracle", "storage.driver"},
		{"sqlite without dsn", eav.DriverSQLite, "storage.dsn"},
		{"duckdb without dsn", eav.DriverDuckDB, "storage.dsn"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			cfg := eav.DefaultConfig()
			cfg.Storage.Driver = tt.driver

			_, err := NewBackend(context.Background(), cfg)
			var cfgErr *eav.ConfigError
			require.ErrorAs(t, err, &cfgErr)
			assert.Equal(t, tt.field, cfgErr.Field)
		})
	}
}

func TestPostgresConnString(t *testing.T) {
	ctx := context.Background()

	t.Run("dsn wins", func(t *testing.T) {
		cfg := eav.DefaultConfig()
		cfg.Storage.DSN = "postgres://app@db:5432/eav"
		cfg.Database.UseIAMAuth = true
		stubTokenGenerator(t, func(context.Context, string, string) (string, error) {
			t.Fatal("token generator should not be called")
			return "", nil
		})

		got, err := postgresConnString(ctx, cfg)
		require.NoError(t, err)
		assert.Equal(t, "postgres://app@db:5432/eav", got)
	})

	t.Run("database section", func(t *testing.T) {
		cfg := eav.DefaultConfig()
		cfg.Database.Password = "secret"

		got, err := postgresConnString(ctx, cfg)
		require.NoError(t, err)
		assert.Equal(t, cfg.Database.ConnString(""), got)
		assert.Contains(t, got, "postgres:secret@localhost:5432/eav")
	})

	t.Run("iam token", func(t *testing.T) {
		cfg := eav.DefaultConfig()
		cfg.Database.Host = "abc.dsql.us-east-1.on.aws"
		cfg.Database.UseIAMAuth = true
		cfg.Database.Region = "us-east-1"

		var gotEndpoint, gotRegion string
		stubTokenGenerator(t, func(_ context.Context, endpoint, region string) (string, error) {
			gotEndpoint, gotRegion = endpoint, region
			return "signed/token", nil
		})

		got, err := postgresConnString(ctx, cfg)
		require.NoError(t, err)
		assert.Equal(t, "abc.dsql.us-east-1.on.aws:5432", gotEndpoint)
		assert.Equal(t, "us-east-1", gotRegion)
		assert.Contains(t, got, "postgres:signed%2Ftoken@")
	})

	t.Run("iam failure", func(t *testing.T) {
		cfg := eav.DefaultConfig()
		cfg.Database.UseIAMAuth = true
		cfg.Database.Region = "us-east-1"
		injected := errors.New("no credentials")
		stubTokenGenerator(t, func(context.Context, string, string) (string, error) {
			return "", injected
		})

		_, err := postgresConnString(ctx, cfg)
		assert.ErrorIs(t, err, injected)
		assert.Contains(t, err.Error(), "generate iam auth token")
	})
}

func TestNewBackendPostgresIAMFailure(t *testing.T) {
	cfg := eav.DefaultConfig()
	cfg.Database.UseIAMAuth = true
	cfg.Database.Region = "us-east-1"
	injected := errors.New("expired credentials")
	stubTokenGenerator(t, func(context.Context, string, string) (string, error) {
		return "", injected
	})

	for _, driver := range []string{eav.DriverPostgres, eav.DriverPgSQL} {
		cfg.Storage.Driver = driver
		_, err := NewBackend(context.Background(), cfg)
		assert.ErrorIs(t, err, injected, driver)
	}
}

func TestNewRegistry(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "employee.json"), []byte(employeeDefinition), 0o644))

	cfg := eav.DefaultConfig()
	cfg.Schema.Directory = dir
	cfg.Schema.DeletePolicy = string(eav.DeletePolicyForbid)

	registry, err := NewRegistry(cfg)
	require.NoError(t, err)
	assert.Equal(t, eav.DeletePolicyForbid, registry.DeletePolicy())
	assert.Equal(t, []string{"Employee"}, registry.Schemas())
	assert.Len(t, registry.Tables(), 2)
}

func TestNewRegistryWithoutDirectory(t *testing.T) {
	registry, err := NewRegistry(eav.DefaultConfig())
	require.NoError(t, err)
	assert.Empty(t, registry.Schemas())
	assert.Equal(t, eav.DeletePolicyIgnore, registry.DeletePolicy())
}

func TestNewRegistryErrors(t *testing.T) {
	t.Run("delete policy", func(t *testing.T) {
		cfg := eav.DefaultConfig()
		cfg.Schema.DeletePolicy = "cascade"
		_, err := NewRegistry(cfg)
		assert.Error(t, err)
	})

	t.Run("missing directory", func(t *testing.T) {
		cfg := eav.DefaultConfig()
		cfg.Schema.Directory = filepath.Join(t.TempDir(), "absent")
		_, err := NewRegistry(cfg)
		assert.Error(t, err)
	})

	t.Run("conflicting schema", func(t *testing.T) {
		dir := t.TempDir()
		require.NoError(t, os.WriteFile(filepath.Join(dir, "a.json"), []byte(employeeDefinition), 0o644))
		require.NoError(t, os.WriteFile(filepath.Join(dir, "b.json"), []byte(
			`{"name": "Employee", "fields": [{"name": "age", "type": "Float"}]}`), 0o644))

		cfg := eav.DefaultConfig()
		cfg.Schema.Directory = dir
		_, err := NewRegistry(cfg)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "declare schema Employee")
	})
}
