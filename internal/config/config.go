package config

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cast"
)

type Config struct {
	Port     string
	LogLevel logrus.Level

	// SchemaPath is a descriptor file or directory. DatabaseURL, when set,
	// loads descriptors from Postgres instead.
	SchemaPath  string
	DatabaseURL string

	// DataPath seeds the in-memory store used by /api/query/find.
	DataPath string

	AggregationEnabled bool
	DefaultLimit       int
	MaxLimit           int
}

// Load reads the configuration from the environment.
func Load() (*Config, error) {
	return load(os.Getenv)
}

func load(getenv func(string) string) (*Config, error) {
	get := func(key, def string) string {
		if v := getenv(key); v != "" {
			return v
		}
		return def
	}

	level, err := logrus.ParseLevel(get("LOG_LEVEL", "info"))
	if err != nil {
		return nil, fmt.Errorf("LOG_LEVEL: %w", err)
	}
	aggregation, err := cast.ToBoolE(get("AGGREGATION_ENABLED", "false"))
	if err != nil {
		return nil, fmt.Errorf("AGGREGATION_ENABLED: %w", err)
	}
	defLimit, err := cast.ToIntE(get("DEFAULT_LIMIT", "50"))
	if err != nil {
		return nil, fmt.Errorf("DEFAULT_LIMIT: %w", err)
	}
	maxLimit, err := cast.ToIntE(get("MAX_LIMIT", "200"))
	if err != nil {
		return nil, fmt.Errorf("MAX_LIMIT: %w", err)
	}
	if defLimit <= 0 || maxLimit < defLimit {
		return nil, fmt.Errorf("invalid limits: default %d, max %d", defLimit, maxLimit)
	}

	cfg := &Config{
		Port:               get("PORT", "8080"),
		LogLevel:           level,
		SchemaPath:         get("SCHEMA_PATH", "schema"),
		DatabaseURL:        getenv("DATABASE_URL"),
		DataPath:           getenv("DATA_PATH"),
		AggregationEnabled: aggregation,
		DefaultLimit:       defLimit,
		MaxLimit:           maxLimit,
	}
	return cfg, nil
}

func (c *Config) Addr() string {
	return fmt.Sprintf(":%s", c.Port)
}
