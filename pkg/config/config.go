// Package config loads bindex configuration from an optional YAML file with
// BINDEX_* environment-variable overrides. Every section has a usable default,
// so the CLI runs with no config file at all.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level application configuration.
type Config struct {
	Logging    LoggingConfig    `yaml:"logging"`
	Build      BuildConfig      `yaml:"build"`
	Normalizer NormalizerConfig `yaml:"normalizer"`
	Reader     ReaderConfig     `yaml:"reader"`
	Search     SearchConfig     `yaml:"search"`
	Server     ServerConfig     `yaml:"server"`
	Metrics    MetricsConfig    `yaml:"metrics"`
	Redis      RedisConfig      `yaml:"redis"`
	Kafka      KafkaConfig      `yaml:"kafka"`
	Postgres   PostgresConfig   `yaml:"postgres"`
}

// LoggingConfig controls structured logging level and output format.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// BuildConfig controls corpus scanning and the tokenization worker pool.
type BuildConfig struct {
	Extension   string        `yaml:"extension"`
	Workers     int           `yaml:"workers"`
	BatchSize   int           `yaml:"batchSize"`
	LockTimeout time.Duration `yaml:"lockTimeout"`
}

// NormalizerConfig selects the term normalization pipeline. The same settings
// must be used for building and querying an index.
type NormalizerConfig struct {
	MinTermLength int  `yaml:"minTermLength"`
	Stem          bool `yaml:"stem"`
	StopWords     bool `yaml:"stopWords"`
}

// ReaderConfig tunes the index reader.
type ReaderConfig struct {
	PostingCacheSize int `yaml:"postingCacheSize"`
}

// SearchConfig controls query evaluation and result limits.
type SearchConfig struct {
	DefaultLimit   int  `yaml:"defaultLimit"`
	MaxResults     int  `yaml:"maxResults"`
	LegacyNegation bool `yaml:"legacyNegation"`
}

// ServerConfig holds HTTP server settings for the serve command.
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"readTimeout"`
	WriteTimeout    time.Duration `yaml:"writeTimeout"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
}

// MetricsConfig controls the Prometheus metrics endpoint.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

// RedisConfig holds Redis connection and query-cache parameters.
type RedisConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	PoolSize int           `yaml:"poolSize"`
	CacheTTL time.Duration `yaml:"cacheTTL"`
}

// KafkaConfig holds broker and topic settings for index publication events.
type KafkaConfig struct {
	Enabled       bool        `yaml:"enabled"`
	Brokers       []string    `yaml:"brokers"`
	ConsumerGroup string      `yaml:"consumerGroup"`
	Topics        KafkaTopics `yaml:"topics"`
}

// KafkaTopics maps logical topic names to their Kafka topic strings.
type KafkaTopics struct {
	IndexPublished string `yaml:"indexPublished"`
}

// PostgresConfig holds the build catalog connection parameters.
type PostgresConfig struct {
	Enabled         bool          `yaml:"enabled"`
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	Database        string        `yaml:"database"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	SSLMode         string        `yaml:"sslMode"`
	MaxOpenConns    int           `yaml:"maxOpenConns"`
	MaxIdleConns    int           `yaml:"maxIdleConns"`
	ConnMaxLifetime time.Duration `yaml:"connMaxLifetime"`
}

// DSN returns a lib/pq-compatible data source name.
func (p PostgresConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

// Load reads a YAML config file (if provided) and applies environment-variable
// overrides on top of the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}
	applyEnvOverrides(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		Build: BuildConfig{
			Extension:   ".txt",
			Workers:     4,
			BatchSize:   256,
			LockTimeout: 10 * time.Second,
		},
		Normalizer: NormalizerConfig{
			MinTermLength: 2,
		},
		Reader: ReaderConfig{
			PostingCacheSize: 1024,
		},
		Search: SearchConfig{
			DefaultLimit: 50,
			MaxResults:   1000,
		},
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 15 * time.Second,
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Port:    9090,
		},
		Redis: RedisConfig{
			Addr:     "localhost:6379",
			PoolSize: 10,
			CacheTTL: 60 * time.Second,
		},
		Kafka: KafkaConfig{
			Brokers:       []string{"localhost:9092"},
			ConsumerGroup: "bindex-serve",
			Topics: KafkaTopics{
				IndexPublished: "index-published",
			},
		},
		Postgres: PostgresConfig{
			Host:            "localhost",
			Port:            5432,
			Database:        "bindex",
			User:            "bindex",
			Password:        "localdev",
			SSLMode:         "disable",
			MaxOpenConns:    5,
			MaxIdleConns:    2,
			ConnMaxLifetime: 5 * time.Minute,
		},
	}
}

// Validate rejects settings that would make the pipeline misbehave.
func (c *Config) Validate() error {
	if c.Build.Extension != "" && !strings.HasPrefix(c.Build.Extension, ".") {
		return fmt.Errorf("build.extension must start with '.', got %q", c.Build.Extension)
	}
	if c.Build.Workers < 1 {
		return fmt.Errorf("build.workers must be at least 1, got %d", c.Build.Workers)
	}
	if c.Build.BatchSize < 1 {
		return fmt.Errorf("build.batchSize must be at least 1, got %d", c.Build.BatchSize)
	}
	if c.Normalizer.MinTermLength < 1 {
		return fmt.Errorf("normalizer.minTermLength must be at least 1, got %d", c.Normalizer.MinTermLength)
	}
	if c.Search.DefaultLimit < 1 || c.Search.MaxResults < c.Search.DefaultLimit {
		return fmt.Errorf("search limits invalid: defaultLimit=%d maxResults=%d",
			c.Search.DefaultLimit, c.Search.MaxResults)
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka.enabled requires at least one broker")
	}
	return nil
}

// applyEnvOverrides reads BINDEX_* environment variables and overrides the
// corresponding config fields.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("BINDEX_LOGGING_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("BINDEX_LOGGING_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
	if v := os.Getenv("BINDEX_BUILD_EXTENSION"); v != "" {
		cfg.Build.Extension = v
	}
	if v := os.Getenv("BINDEX_BUILD_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Build.Workers = n
		}
	}
	if v := os.Getenv("BINDEX_NORMALIZER_STEM"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Normalizer.Stem = b
		}
	}
	if v := os.Getenv("BINDEX_SEARCH_LEGACY_NEGATION"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Search.LegacyNegation = b
		}
	}
	if v := os.Getenv("BINDEX_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("BINDEX_REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
		cfg.Redis.Enabled = true
	}
	if v := os.Getenv("BINDEX_REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("BINDEX_KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Brokers = strings.Split(v, ",")
		cfg.Kafka.Enabled = true
	}
	if v := os.Getenv("BINDEX_POSTGRES_HOST"); v != "" {
		cfg.Postgres.Host = v
		cfg.Postgres.Enabled = true
	}
	if v := os.Getenv("BINDEX_POSTGRES_PASSWORD"); v != "" {
		cfg.Postgres.Password = v
	}
}
