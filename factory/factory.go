package factory

import (
	"context"
	"fmt"
	"os"

	"github.com/aws/aws-sdk-go-v2/config"
	awsCreds "github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/dsql/auth"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/lychee-technology/eav"
	"github.com/lychee-technology/eav/internal"
	"go.uber.org/zap"
)

// Backend is an opened storage together with the SQL dialect it speaks.
// Memory storage reports the postgres dialect for DDL rendering.
type Backend struct {
	Storage eav.Storage
	Dialect internal.Dialect
	close   func()
}

// Close releases the backend's connections.
func (b *Backend) Close() {
	if b.close != nil {
		b.close()
	}
}

// tokenGenerator produces a DSQL IAM auth token; replaced in tests.
var tokenGenerator = func(ctx context.Context, endpoint, region string) (string, error) {
	awsCfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return "", fmt.Errorf("load aws config: %w", err)
	}
	if region != "" {
		awsCfg.Region = region
	}
	if envKey := os.Getenv("AWS_ACCESS_KEY_ID"); envKey != "" {
		awsCfg.Credentials = awsCreds.NewStaticCredentialsProvider(envKey, os.Getenv("AWS_SECRET_ACCESS_KEY"), os.Getenv("AWS_SESSION_TOKEN"))
	}
	return auth.GenerateDbConnectAuthToken(ctx, endpoint, awsCfg.Region, awsCfg.Credentials)
}

// NewRegistry creates a registry with the configured delete policy and
// declares every schema found in Schema.Directory.
//
// Usage:
//
//	cfg, _ := eav.LoadConfig("eav.yaml")
//	registry, err := factory.NewRegistry(cfg)
//	backend, err := factory.NewBackend(ctx, cfg)
//	defer backend.Close()
//	err = registry.CreateAll(ctx, backend.Storage)
func NewRegistry(cfg *eav.Config) (*eav.Registry, error) {
	policy, err := eav.ParseDeletePolicy(cfg.Schema.DeletePolicy)
	if err != nil {
		return nil, err
	}
	registry := eav.NewRegistry(eav.WithDeletePolicy(policy))
	if cfg.Schema.Directory == "" {
		return registry, nil
	}

	defs, err := eav.LoadSchemaDir(cfg.Schema.Directory)
	if err != nil {
		return nil, err
	}
	for _, def := range defs {
		if _, err := registry.Define(def); err != nil {
			return nil, fmt.Errorf("declare schema %s: %w", def.Name, err)
		}
	}
	zap.S().Infow("schemas loaded", "directory", cfg.Schema.Directory, "schemas", registry.Schemas())
	return registry, nil
}

// NewBackend opens the storage selected by cfg.Storage.Driver.
func NewBackend(ctx context.Context, cfg *eav.Config) (*Backend, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	switch cfg.Storage.Driver {
	case eav.DriverMemory:
		return &Backend{Storage: internal.NewMemoryStorage(), Dialect: internal.PostgresDialect}, nil

	case eav.DriverPostgres:
		connString, err := postgresConnString(ctx, cfg)
		if err != nil {
			return nil, err
		}
		poolCfg, err := pgxpool.ParseConfig(connString)
		if err != nil {
			return nil, fmt.Errorf("parse postgres config: %w", err)
		}
		poolCfg.MaxConns = int32(cfg.Database.MaxConnections)
		pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
		if err != nil {
			return nil, fmt.Errorf("create postgres pool: %w", err)
		}
		if err := pool.Ping(ctx); err != nil {
			pool.Close()
			return nil, fmt.Errorf("ping postgres: %w", err)
		}
		zap.S().Infow("connected to postgres", "host", cfg.Database.Host, "database", cfg.Database.Database)
		return &Backend{Storage: internal.NewPostgresStorage(pool), Dialect: internal.PostgresDialect, close: pool.Close}, nil

	case eav.DriverPgSQL:
		connString, err := postgresConnString(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return openSQL(ctx, internal.PostgresDialect, connString)

	case eav.DriverSQLite:
		return openSQL(ctx, internal.SQLiteDialect, cfg.Storage.DSN)

	case eav.DriverDuckDB:
		return openSQL(ctx, internal.DuckDBDialect, cfg.Storage.DSN)

	default:
		return nil, fmt.Errorf("unsupported storage driver %q", cfg.Storage.Driver)
	}
}

func openSQL(ctx context.Context, dialect internal.Dialect, dsn string) (*Backend, error) {
	storage, err := internal.OpenSQLStorage(ctx, dialect, dsn)
	if err != nil {
		return nil, err
	}
	zap.S().Infow("opened sql storage", "dialect", dialect.Name)
	return &Backend{
		Storage: storage,
		Dialect: dialect,
		close: func() {
			if err := storage.Close(); err != nil {
				zap.S().Warnw("close sql storage", "dialect", dialect.Name, "err", err)
			}
		},
	}, nil
}

// postgresConnString prefers Storage.DSN, otherwise builds a URL from the
// Database section, swapping in an IAM token when UseIAMAuth is set.
func postgresConnString(ctx context.Context, cfg *eav.Config) (string, error) {
	if cfg.Storage.DSN != "" {
		return cfg.Storage.DSN, nil
	}
	db := cfg.Database
	if !db.UseIAMAuth {
		return db.ConnString(""), nil
	}

	endpoint := fmt.Sprintf("%s:%d", db.Host, db.Port)
	token, err := tokenGenerator(ctx, endpoint, db.Region)
	if err != nil {
		return "", fmt.Errorf("generate iam auth token: %w", err)
	}
	zap.S().Infow("generated IAM auth token for Postgres connection (dsql)", "endpoint", endpoint)
	return db.ConnString(token), nil
}
