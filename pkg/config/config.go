// Package config loads and validates configuration from YAML files with
// environment-variable overrides. It provides typed structs for the index
// store, commit discovery, compound files, locking, and the optional commit
// notification backends (Postgres, Kafka, Redis).
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level configuration.
type Config struct {
	Store     StoreConfig     `yaml:"store"`
	Discovery DiscoveryConfig `yaml:"discovery"`
	Compound  CompoundConfig  `yaml:"compound"`
	Lock      LockConfig      `yaml:"lock"`
	Postgres  PostgresConfig  `yaml:"postgres"`
	Kafka     KafkaConfig     `yaml:"kafka"`
	Redis     RedisConfig     `yaml:"redis"`
	Notify    NotifyConfig    `yaml:"notify"`
	Logging   LoggingConfig   `yaml:"logging"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

// StoreConfig describes the index directory.
type StoreConfig struct {
	Dir            string `yaml:"dir"`
	UseMMap        bool   `yaml:"useMMap"`
	// ReadBufferSize is the per-input buffer; 0 keeps the directory default.
	ReadBufferSize int    `yaml:"readBufferSize"`
}

// DiscoveryConfig bounds the retry loop that locates the current
// segments_N file while a writer may be committing.
type DiscoveryConfig struct {
	GenFileRetryCount int           `yaml:"genFileRetryCount"`
	GenFileRetryPause time.Duration `yaml:"genFileRetryPause"`
	GenLookaheadCount int           `yaml:"genLookaheadCount"`
}

// CompoundConfig controls compound-file packing.
type CompoundConfig struct {
	BufferSize      int   `yaml:"bufferSize"`
	AbortCheckBytes int64 `yaml:"abortCheckBytes"`
}

// LockConfig controls how long a writer waits for write.lock.
type LockConfig struct {
	Timeout      time.Duration `yaml:"timeout"`
	PollInterval time.Duration `yaml:"pollInterval"`
}

// PostgresConfig holds PostgreSQL connection parameters for the commit
// journal.
type PostgresConfig struct {
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

// KafkaConfig holds Kafka broker and topic settings.
type KafkaConfig struct {
	Brokers       []string `yaml:"brokers"`
	ConsumerGroup string   `yaml:"consumerGroup"`
	CommitTopic   string   `yaml:"commitTopic"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Addr      string `yaml:"addr"`
	Password  string `yaml:"password"`
	DB        int    `yaml:"db"`
	PoolSize  int    `yaml:"poolSize"`
	KeyPrefix string `yaml:"keyPrefix"`
}

// NotifyConfig selects which commit sinks are active.
type NotifyConfig struct {
	Kafka          bool          `yaml:"kafka"`
	Redis          bool          `yaml:"redis"`
	Journal        bool          `yaml:"journal"`
	PublishTimeout time.Duration `yaml:"publishTimeout"`
	// ConnectAttempts and ConnectBackoff bound the startup connects to the
	// sink backends; the delay doubles after each failure.
	ConnectAttempts int           `yaml:"connectAttempts"`
	ConnectBackoff  time.Duration `yaml:"connectBackoff"`
}

// LoggingConfig controls structured logging level and output format.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// MetricsConfig controls the Prometheus metrics server.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

// Load reads a YAML config file (if provided) and applies environment-variable
// overrides. Missing values keep their defaults.
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
		Store: StoreConfig{
			Dir: "data/index",
		},
		Discovery: DefaultDiscovery(),
		Compound:  DefaultCompound(),
		Lock: LockConfig{
			Timeout:      time.Second,
			PollInterval: time.Second,
		},
		Postgres: PostgresConfig{
			Host:            "localhost",
			Port:            5432,
			Database:        "searchindex",
			User:            "searchindex",
			Password:        "localdev",
			SSLMode:         "disable",
			MaxOpenConns:    5,
			MaxIdleConns:    2,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Kafka: KafkaConfig{
			Brokers:       []string{"localhost:9092"},
			ConsumerGroup: "search-index-watch",
			CommitTopic:   "index.commits",
		},
		Redis: RedisConfig{
			Addr:      "localhost:6379",
			PoolSize:  10,
			KeyPrefix: "searchindex",
		},
		Notify: NotifyConfig{
			PublishTimeout:  2 * time.Second,
			ConnectAttempts: 5,
			ConnectBackoff:  500 * time.Millisecond,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Port:    9090,
		},
	}
}

// DefaultDiscovery mirrors the classic segments.gen retry settings: ten
// attempts 50ms apart and a ten-generation lookahead.
func DefaultDiscovery() DiscoveryConfig {
	return DiscoveryConfig{
		GenFileRetryCount: 10,
		GenFileRetryPause: 50 * time.Millisecond,
		GenLookaheadCount: 10,
	}
}

// DefaultCompound returns a 16KiB copy buffer with an abort check roughly
// every 2MiB copied.
func DefaultCompound() CompoundConfig {
	return CompoundConfig{
		BufferSize:      16384,
		AbortCheckBytes: 2 << 20,
	}
}

// Validate rejects settings that would make the retry loops unbounded or
// the copy loop degenerate.
func (c *Config) Validate() error {
	if c.Discovery.GenFileRetryCount < 0 {
		return fmt.Errorf("discovery.genFileRetryCount must be >= 0, got %d", c.Discovery.GenFileRetryCount)
	}
	if c.Discovery.GenLookaheadCount < 0 {
		return fmt.Errorf("discovery.genLookaheadCount must be >= 0, got %d", c.Discovery.GenLookaheadCount)
	}
	if c.Discovery.GenFileRetryPause < 0 {
		return fmt.Errorf("discovery.genFileRetryPause must be >= 0, got %s", c.Discovery.GenFileRetryPause)
	}
	if c.Store.ReadBufferSize < 0 {
		return fmt.Errorf("store.readBufferSize must be >= 0, got %d", c.Store.ReadBufferSize)
	}
	if c.Compound.BufferSize <= 0 {
		return fmt.Errorf("compound.bufferSize must be > 0, got %d", c.Compound.BufferSize)
	}
	if c.Compound.AbortCheckBytes <= 0 {
		return fmt.Errorf("compound.abortCheckBytes must be > 0, got %d", c.Compound.AbortCheckBytes)
	}
	return nil
}

// applyEnvOverrides reads SIS_* environment variables and overrides the
// corresponding config fields.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("SIS_STORE_DIR"); v != "" {
		cfg.Store.Dir = v
	}
	if v := os.Getenv("SIS_STORE_USE_MMAP"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Store.UseMMap = b
		}
	}
	if v := os.Getenv("SIS_DISCOVERY_RETRY_COUNT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Discovery.GenFileRetryCount = n
		}
	}
	if v := os.Getenv("SIS_DISCOVERY_RETRY_PAUSE"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Discovery.GenFileRetryPause = d
		}
	}
	if v := os.Getenv("SIS_DISCOVERY_LOOKAHEAD"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Discovery.GenLookaheadCount = n
		}
	}
	if v := os.Getenv("SIS_POSTGRES_HOST"); v != "" {
		cfg.Postgres.Host = v
	}
	if v := os.Getenv("SIS_POSTGRES_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Postgres.Port = port
		}
	}
	if v := os.Getenv("SIS_POSTGRES_DATABASE"); v != "" {
		cfg.Postgres.Database = v
	}
	if v := os.Getenv("SIS_POSTGRES_USER"); v != "" {
		cfg.Postgres.User = v
	}
	if v := os.Getenv("SIS_POSTGRES_PASSWORD"); v != "" {
		cfg.Postgres.Password = v
	}
	if v := os.Getenv("SIS_KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("SIS_REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("SIS_REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("SIS_LOGGING_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("SIS_LOGGING_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
	if v := os.Getenv("SIS_METRICS_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Metrics.Port = port
		}
	}
}
