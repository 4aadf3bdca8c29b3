package config

import (
	"fmt"
	"os"

	"github.com/ilyakaznacheev/cleanenv"
)

// Config holds all configuration for the indexer.
// Configuration can come from YAML file (config.yaml) or environment variables.
// Environment variables always override YAML values for fields that support both.
// Secrets (passwords) must only come from environment variables.
type Config struct {
	Env     string `yaml:"env" env:"ENVIRONMENT" env-default:"local"`
	Version string `yaml:"-"` // Set at load time, not from config

	// Database configuration (PostgreSQL indexer storage)
	Database DatabaseConfig `yaml:"database"`

	// Redis task transport configuration
	Redis RedisConfig `yaml:"redis"`

	// Worker pool configuration
	Worker WorkerConfig `yaml:"worker"`

	// Path to a filename->ecosystem registry override. Empty means the
	// built-in registry is used.
	MetadataRegistryPath string `yaml:"metadata_registry_path" env:"METADATA_REGISTRY_PATH" env-default:""`

	// MigrationsPath is where golang-migrate finds the SQL files.
	MigrationsPath string `yaml:"migrations_path" env:"MIGRATIONS_PATH" env-default:"migrations"`
}

// DatabaseConfig holds PostgreSQL configuration.
type DatabaseConfig struct {
	Host           string `yaml:"host" env:"PGHOST" env-default:"localhost"`
	Port           int    `yaml:"port" env:"PGPORT" env-default:"5432"`
	User           string `yaml:"user" env:"PGUSER" env-default:"indexer"`
	Password       string `yaml:"-" env:"PGPASSWORD"` // Secret - not in YAML
	Database       string `yaml:"database" env:"PGDATABASE" env-default:"indexer_storage"`
	MaxConnections int32  `yaml:"max_connections" env:"PGMAX_CONNECTIONS" env-default:"25"`
	SSLMode        string `yaml:"ssl_mode" env:"PGSSLMODE" env-default:"disable"`
}

// URL builds a connection string from the parts.
func (c *DatabaseConfig) URL() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.Database, c.SSLMode)
}

// RedisConfig holds configuration for the Redis task transport.
type RedisConfig struct {
	Host     string `yaml:"host" env:"REDIS_HOST" env-default:"localhost"`
	Port     int    `yaml:"port" env:"REDIS_PORT" env-default:"6379"`
	Password string `yaml:"-" env:"REDIS_PASSWORD"` // Secret - not in YAML
	DB       int    `yaml:"db" env:"REDIS_DB" env-default:"0"`
	// QueueKey is the list key stage tasks are pushed to.
	QueueKey string `yaml:"queue_key" env:"REDIS_QUEUE_KEY" env-default:"indexer:tasks"`
}

// Addr returns host:port for the Redis client.
func (c *RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// WorkerConfig tunes the in-process worker pool.
type WorkerConfig struct {
	// MaxTranslations bounds concurrent content translation tasks.
	MaxTranslations int `yaml:"max_translations" env:"WORKER_MAX_TRANSLATIONS" env-default:"4"`
	// BatchSize bounds how many fact rows one upsert carries.
	BatchSize int `yaml:"batch_size" env:"WORKER_BATCH_SIZE" env-default:"1000"`
}

// Load reads configuration from config.yaml (if present) and the
// environment. Environment variables win.
func Load(version string) (*Config, error) {
	cfg := &Config{}

	if _, err := os.Stat("config.yaml"); err == nil {
		if err := cleanenv.ReadConfig("config.yaml", cfg); err != nil {
			return nil, fmt.Errorf("failed to read config.yaml: %w", err)
		}
	} else {
		if err := cleanenv.ReadEnv(cfg); err != nil {
			return nil, fmt.Errorf("failed to read environment config: %w", err)
		}
	}

	cfg.Version = version
	return cfg, nil
}
