package eav

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes environment overrides, e.g. EAV_STORAGE_DRIVER.
const EnvPrefix = "EAV"

// LoadConfig reads configuration from path (yaml, json or toml) layered over
// DefaultConfig, then applies EAV_* environment overrides. An empty path
// loads defaults and environment only. The result is validated.
func LoadConfig(path string) (*Config, error) {
	v := newViper()
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	}

	config := DefaultConfig()
	if err := v.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v, DefaultConfig())
	return v
}

// setDefaults registers every key so AutomaticEnv can override it.
func setDefaults(v *viper.Viper, c *Config) {
	v.SetDefault("database.host", c.Database.Host)
	v.SetDefault("database.port", c.Database.Port)
	v.SetDefault("database.database", c.Database.Database)
	v.SetDefault("database.username", c.Database.Username)
	v.SetDefault("database.password", c.Database.Password)
	v.SetDefault("database.sslMode", c.Database.SSLMode)
	v.SetDefault("database.maxConnections", c.Database.MaxConnections)
	v.SetDefault("database.timeout", c.Database.Timeout)
	v.SetDefault("database.useIAMAuth", c.Database.UseIAMAuth)
	v.SetDefault("database.region", c.Database.Region)

	v.SetDefault("storage.driver", c.Storage.Driver)
	v.SetDefault("storage.dsn", c.Storage.DSN)

	v.SetDefault("schema.deletePolicy", c.Schema.DeletePolicy)
	v.SetDefault("schema.directory", c.Schema.Directory)

	v.SetDefault("logging.level", c.Logging.Level)
	v.SetDefault("logging.format", c.Logging.Format)

	v.SetDefault("server.port", c.Server.Port)
}
