package eav

import (
	"fmt"
	"net/url"
	"time"
)

// Storage drivers understood by the factory.
const (
	DriverPostgres = "postgres"
	DriverPgSQL    = "pgsql"
	DriverSQLite   = "sqlite"
	DriverDuckDB   = "duckdb"
	DriverMemory   = "memory"
)

// Config consolidates settings for storage, schemas, logging and the server.
type Config struct {
	Database DatabaseConfig `json:"database" mapstructure:"database"`
	Storage  StorageConfig  `json:"storage" mapstructure:"storage"`
	Schema   SchemaConfig   `json:"schema" mapstructure:"schema"`
	Logging  LoggingConfig  `json:"logging" mapstructure:"logging"`
	Server   ServerConfig   `json:"server" mapstructure:"server"`
}

// DatabaseConfig contains Postgres connection settings
type DatabaseConfig struct {
	Host           string        `json:"host" mapstructure:"host"`
	Port           int           `json:"port" mapstructure:"port"`
	Database       string        `json:"database" mapstructure:"database"`
	Username       string        `json:"username" mapstructure:"username"`
	Password       string        `json:"password" mapstructure:"password"`
	SSLMode        string        `json:"sslMode" mapstructure:"sslMode"`
	MaxConnections int           `json:"maxConnections" mapstructure:"maxConnections"`
	Timeout        time.Duration `json:"timeout" mapstructure:"timeout"`

	// UseIAMAuth replaces Password with a DSQL IAM auth token.
	UseIAMAuth bool   `json:"useIAMAuth" mapstructure:"useIAMAuth"`
	Region     string `json:"region" mapstructure:"region"`
}

// StorageConfig selects the storage backend.
type StorageConfig struct {
	Driver string `json:"driver" mapstructure:"driver"`
	// DSN is used by the sqlite and duckdb drivers, and by postgres drivers
	// when set; otherwise the Database section builds the connection string.
	DSN string `json:"dsn" mapstructure:"dsn"`
}

// SchemaConfig contains schema declaration settings
type SchemaConfig struct {
	DeletePolicy string `json:"deletePolicy" mapstructure:"deletePolicy"`
	// Directory holds schema definition files loaded at startup.
	Directory string `json:"directory" mapstructure:"directory"`
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	Level  string `json:"level" mapstructure:"level"`
	Format string `json:"format" mapstructure:"format"`
}

// ServerConfig contains HTTP server settings
type ServerConfig struct {
	Port int `json:"port" mapstructure:"port"`
}

// DefaultConfig returns a default configuration
func DefaultConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			Host:           "localhost",
			Port:           5432,
			Database:       "eav",
			Username:       "postgres",
			SSLMode:        "disable",
			MaxConnections: 10,
			Timeout:        30 * time.Second,
		},
		Storage: StorageConfig{
			Driver: DriverPostgres,
		},
		Schema: SchemaConfig{
			DeletePolicy: string(DeletePolicyIgnore),
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Server: ServerConfig{
			Port: 8080,
		},
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	switch c.Storage.Driver {
	case DriverPostgres, DriverPgSQL:
		if c.Storage.DSN == "" {
			if c.Database.Host == "" {
				return &ConfigError{Field: "database.host", Message: "must not be empty"}
			}
			if c.Database.Port <= 0 || c.Database.Port > 65535 {
				return &ConfigError{Field: "database.port", Message: "must be between 1 and 65535"}
			}
			if c.Database.Database == "" {
				return &ConfigError{Field: "database.database", Message: "must not be empty"}
			}
		}
		if c.Database.MaxConnections <= 0 {
			return &ConfigError{Field: "database.maxConnections", Message: "must be greater than 0"}
		}
		if c.Database.UseIAMAuth && c.Database.Region == "" {
			return &ConfigError{Field: "database.region", Message: "is required when useIAMAuth is set"}
		}
	case DriverSQLite, DriverDuckDB:
		if c.Storage.DSN == "" {
			return &ConfigError{Field: "storage.dsn", Message: "is required for driver " + c.Storage.Driver}
		}
	case DriverMemory:
	default:
		return &ConfigError{Field: "storage.driver", Message: fmt.Sprintf("unknown driver %q", c.Storage.Driver)}
	}

	if _, err := ParseDeletePolicy(c.Schema.DeletePolicy); err != nil {
		return &ConfigError{Field: "schema.deletePolicy", Message: err.Error()}
	}

	switch c.Logging.Format {
	case "json", "console":
	default:
		return &ConfigError{Field: "logging.format", Message: "must be json or console"}
	}

	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return &ConfigError{Field: "server.port", Message: "must be between 0 and 65535"}
	}
	return nil
}

// ConnString builds a Postgres URL from the Database section, using password
// in place of the configured one when it is non-empty.
func (c DatabaseConfig) ConnString(password string) string {
	if password == "" {
		password = c.Password
	}
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(c.Username, password),
		Host:   fmt.Sprintf("%s:%d", c.Host, c.Port),
		Path:   "/" + c.Database,
	}
	q := url.Values{}
	if c.SSLMode != "" {
		q.Set("sslmode", c.SSLMode)
	}
	if c.Timeout > 0 {
		q.Set("connect_timeout", fmt.Sprintf("%d", int(c.Timeout.Seconds())))
	}
	u.RawQuery = q.Encode()
	return u.String()
}

// ConfigError represents a configuration validation error
type ConfigError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (e *ConfigError) Error() string {
	return "config validation error for field '" + e.Field + "': " + e.Message
}
