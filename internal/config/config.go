// Package config loads worker configuration from an optional YAML file and
// environment overrides. Environment variables take precedence over the file.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Backend names.
const (
	BackendMemory     = "memory"
	BackendRedis      = "redis"
	BackendKafka      = "kafka"
	BackendPostgres   = "postgres"
	BackendSQLite     = "sqlite"
	BackendClickHouse = "clickhouse"
)

// Config holds all worker settings.
type Config struct {
	Redis struct {
		URL string `yaml:"url"`
	} `yaml:"redis"`

	Kafka struct {
		Brokers []string `yaml:"brokers"`
	} `yaml:"kafka"`

	Stream struct {
		Backend      string        `yaml:"backend"` // redis | kafka | memory
		Key          string        `yaml:"key"`
		Group        string        `yaml:"group"`
		BlockTimeout time.Duration `yaml:"block_timeout"`
		ErrorBackoff time.Duration `yaml:"error_backoff"`
	} `yaml:"stream"`

	Store struct {
		Backend     string `yaml:"backend"` // postgres | sqlite | memory
		DatabaseURL string `yaml:"database_url"`
		SQLitePath  string `yaml:"sqlite_path"`
	} `yaml:"store"`

	DeadLetter struct {
		Sink          string `yaml:"sink"` // redis | kafka | clickhouse | memory
		RedisKey      string `yaml:"redis_key"`
		Topic         string `yaml:"topic"`
		ClickHouseDSN string `yaml:"clickhouse_dsn"`
		MaxErrorLen   int    `yaml:"max_error_len"`
	} `yaml:"dead_letter"`

	Settlement struct {
		URL     string        `yaml:"url"`
		APIKey  string        `yaml:"api_key"`
		Timeout time.Duration `yaml:"timeout"`
	} `yaml:"settlement"`

	Processing struct {
		MaxRetries       int           `yaml:"max_retries"`
		RetryDelay       time.Duration `yaml:"retry_delay"`
		BreakerThreshold int           `yaml:"circuit_breaker_threshold"`
		BreakerReset     time.Duration `yaml:"circuit_breaker_reset"`
		ShutdownTimeout  time.Duration `yaml:"shutdown_timeout"`
	} `yaml:"processing"`

	Logging struct {
		Level string `yaml:"level"`
		File  string `yaml:"file"`
	} `yaml:"logging"`

	Metrics struct {
		Addr        string        `yaml:"addr"`
		LogInterval time.Duration `yaml:"log_interval"`
	} `yaml:"metrics"`
}

// Default returns the documented defaults.
func Default() *Config {
	var cfg Config

	cfg.Redis.URL = "redis://localhost:6379/0"
	cfg.Kafka.Brokers = []string{"localhost:9092"}

	cfg.Stream.Backend = BackendRedis
	cfg.Stream.Key = "orders:stream"
	cfg.Stream.Group = "order-workers"
	cfg.Stream.BlockTimeout = 1 * time.Second
	cfg.Stream.ErrorBackoff = 5 * time.Second

	cfg.Store.Backend = BackendPostgres
	cfg.Store.SQLitePath = "data/orders.db"

	cfg.DeadLetter.Sink = BackendRedis
	cfg.DeadLetter.RedisKey = "orders:failed"
	cfg.DeadLetter.Topic = "orders.failed"
	cfg.DeadLetter.MaxErrorLen = 500

	cfg.Settlement.Timeout = 30 * time.Second

	cfg.Processing.MaxRetries = 3
	cfg.Processing.RetryDelay = 1 * time.Second
	cfg.Processing.BreakerThreshold = 5
	cfg.Processing.BreakerReset = 60 * time.Second
	cfg.Processing.ShutdownTimeout = 2 * time.Second

	cfg.Logging.Level = "info"

	cfg.Metrics.Addr = ":9090"
	cfg.Metrics.LogInterval = 60 * time.Second

	return &cfg
}

// Load reads path (if non-empty) over the defaults, applies environment
// overrides, then any overrides (flags), and validates the result.
func Load(path string, overrides ...func(*Config)) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := overrideWithEnv(cfg); err != nil {
		return nil, err
	}
	for _, apply := range overrides {
		apply(cfg)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks infrastructure selections only. Numeric tunables are
// taken as given.
func (c *Config) Validate() error {
	var errs []error

	switch c.Stream.Backend {
	case BackendRedis:
		if c.Redis.URL == "" {
			errs = append(errs, errors.New("REDIS_URL is required for the redis stream"))
		}
	case BackendKafka:
		if len(c.Kafka.Brokers) == 0 {
			errs = append(errs, errors.New("KAFKA_BROKERS is required for the kafka stream"))
		}
	case BackendMemory:
	default:
		errs = append(errs, fmt.Errorf("unknown stream backend %q", c.Stream.Backend))
	}

	switch c.Store.Backend {
	case BackendPostgres:
		if c.Store.DatabaseURL == "" {
			errs = append(errs, errors.New("DATABASE_URL is required for the postgres store"))
		}
	case BackendSQLite:
		if c.Store.SQLitePath == "" {
			errs = append(errs, errors.New("SQLITE_PATH is required for the sqlite store"))
		}
	case BackendMemory:
	default:
		errs = append(errs, fmt.Errorf("unknown order store %q", c.Store.Backend))
	}

	switch c.DeadLetter.Sink {
	case BackendRedis:
		if c.Redis.URL == "" {
			errs = append(errs, errors.New("REDIS_URL is required for the redis dead-letter sink"))
		}
	case BackendKafka:
		if len(c.Kafka.Brokers) == 0 || c.DeadLetter.Topic == "" {
			errs = append(errs, errors.New("KAFKA_BROKERS and DLQ_TOPIC are required for the kafka dead-letter sink"))
		}
	case BackendClickHouse:
		if c.DeadLetter.ClickHouseDSN == "" {
			errs = append(errs, errors.New("CLICKHOUSE_DSN is required for the clickhouse dead-letter sink"))
		}
	case BackendMemory:
	default:
		errs = append(errs, fmt.Errorf("unknown dead-letter sink %q", c.DeadLetter.Sink))
	}

	if c.Settlement.URL == "" {
		errs = append(errs, errors.New("SETTLEMENT_URL is required"))
	}

	return errors.Join(errs...)
}

// UseMemory switches every backend to its in-process implementation.
func (c *Config) UseMemory() {
	c.Stream.Backend = BackendMemory
	c.Store.Backend = BackendMemory
	c.DeadLetter.Sink = BackendMemory
}

func overrideWithEnv(cfg *Config) error {
	setString(&cfg.Redis.URL, "REDIS_URL")
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Brokers = splitList(v)
	}

	setString(&cfg.Stream.Backend, "STREAM_BACKEND")
	setString(&cfg.Stream.Key, "STREAM_KEY")
	setString(&cfg.Stream.Group, "CONSUMER_GROUP")

	setString(&cfg.Store.Backend, "ORDER_STORE")
	setString(&cfg.Store.DatabaseURL, "DATABASE_URL")
	setString(&cfg.Store.SQLitePath, "SQLITE_PATH")

	setString(&cfg.DeadLetter.Sink, "DLQ_SINK")
	setString(&cfg.DeadLetter.RedisKey, "FAILED_ORDERS_KEY")
	setString(&cfg.DeadLetter.Topic, "DLQ_TOPIC")
	setString(&cfg.DeadLetter.ClickHouseDSN, "CLICKHOUSE_DSN")

	setString(&cfg.Settlement.URL, "SETTLEMENT_URL")
	setString(&cfg.Settlement.APIKey, "UNIVERSAL_API_KEY")

	setString(&cfg.Logging.Level, "LOG_LEVEL")
	setString(&cfg.Logging.File, "LOG_FILE")
	setString(&cfg.Metrics.Addr, "METRICS_ADDR")

	var errs []error
	errs = append(errs,
		setInt(&cfg.Processing.MaxRetries, "MAX_RETRIES"),
		setInt(&cfg.Processing.BreakerThreshold, "CIRCUIT_BREAKER_THRESHOLD"),
		setMillis(&cfg.Processing.RetryDelay, "RETRY_DELAY_MS"),
		setMillis(&cfg.Processing.BreakerReset, "CIRCUIT_BREAKER_RESET_MS"),
		setMillis(&cfg.Processing.ShutdownTimeout, "SHUTDOWN_TIMEOUT_MS"),
		setMillis(&cfg.Metrics.LogInterval, "METRICS_LOG_INTERVAL_MS"),
	)
	return errors.Join(errs...)
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = n
	return nil
}

func setMillis(dst *time.Duration, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = time.Duration(n) * time.Millisecond
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
