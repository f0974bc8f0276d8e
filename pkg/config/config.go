// Package config holds the settings shared by every service. Values start
// from built-in defaults, are overlaid by an optional YAML file and then by
// BGS_* environment variables.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level application configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Postgres  PostgresConfig  `yaml:"postgres"`
	Kafka     KafkaConfig     `yaml:"kafka"`
	Redis     RedisConfig     `yaml:"redis"`
	Indexer   IndexerConfig   `yaml:"indexer"`
	Search    SearchConfig    `yaml:"search"`
	Expand    ExpandConfig    `yaml:"expand"`
	Logging   LoggingConfig   `yaml:"logging"`
	Tracing   TracingConfig   `yaml:"tracing"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Analytics AnalyticsConfig `yaml:"analytics"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port            int             `yaml:"port"`
	ReadTimeout     time.Duration   `yaml:"readTimeout"`
	WriteTimeout    time.Duration   `yaml:"writeTimeout"`
	ShutdownTimeout time.Duration   `yaml:"shutdownTimeout"`
	RateLimit       RateLimitConfig `yaml:"rateLimit"`
}

// RateLimitConfig sets the per-client token bucket. A zero rate disables
// limiting.
type RateLimitConfig struct {
	RequestsPerSecond float64 `yaml:"requestsPerSecond"`
	Burst             int     `yaml:"burst"`
}

// PostgresConfig holds PostgreSQL connection parameters.
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
	Brokers       []string    `yaml:"brokers"`
	ConsumerGroup string      `yaml:"consumerGroup"`
	Compression   string      `yaml:"compression"`
	Topics        KafkaTopics `yaml:"topics"`

	// HandlerRetries bounds redelivery of a message whose handler fails
	// before it is committed and skipped.
	HandlerRetries int `yaml:"handlerRetries"`
}

// KafkaTopics maps logical topic names to their Kafka topic strings.
type KafkaTopics struct {
	DocumentIngest  string `yaml:"documentIngest"`
	IndexComplete   string `yaml:"indexComplete"`
	CacheInvalidate string `yaml:"cacheInvalidate"`
	AnalyticsEvents string `yaml:"analyticsEvents"`
}

// RedisConfig holds Redis connection and caching parameters.
type RedisConfig struct {
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	PoolSize int           `yaml:"poolSize"`
	CacheTTL time.Duration `yaml:"cacheTTL"`
}

// IndexerConfig controls the indexing engine's memory thresholds, flush
// intervals, shard count and segment compression.
type IndexerConfig struct {
	DataDir        string        `yaml:"dataDir"`
	NumShards      int           `yaml:"numShards"`
	SegmentMaxSize int64         `yaml:"segmentMaxSize"`
	FlushInterval  time.Duration `yaml:"flushInterval"`
	ReloadInterval time.Duration `yaml:"reloadInterval"`
	Compression    string        `yaml:"compression"`
}

// SearchConfig controls query execution limits and timeouts.
type SearchConfig struct {
	MaxResults           int           `yaml:"maxResults"`
	DefaultLimit         int           `yaml:"defaultLimit"`
	TimeoutPerShard      time.Duration `yaml:"timeoutPerShard"`
	MaxConcurrentQueries int           `yaml:"maxConcurrentQueries"`
}

// ExpandConfig controls bigram query expansion.
type ExpandConfig struct {
	Scheme          string        `yaml:"scheme"`
	DefaultLimit    int           `yaml:"defaultLimit"`
	MaxLimit        int           `yaml:"maxLimit"`
	MinRelevantDocs int           `yaml:"minRelevantDocs"`
	MaxFeedbackDocs int           `yaml:"maxFeedbackDocs"`
	CacheTTL        time.Duration `yaml:"cacheTTL"`
}

// LoggingConfig controls structured logging level and output format.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// TracingConfig controls span logging for expansion requests.
type TracingConfig struct {
	Enabled    bool    `yaml:"enabled"`
	SampleRate float64 `yaml:"sampleRate"`
}

// MetricsConfig controls the Prometheus metrics server.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

// AnalyticsConfig controls the analytics service's buffering and the
// snapshots it persists to PostgreSQL.
type AnalyticsConfig struct {
	BufferSize        int           `yaml:"bufferSize"`
	BatchSize         int           `yaml:"batchSize"`
	FlushInterval     time.Duration `yaml:"flushInterval"`
	SnapshotInterval  time.Duration `yaml:"snapshotInterval"`
	SnapshotRetention time.Duration `yaml:"snapshotRetention"`
}

// Load builds the configuration from defaults, the YAML file at path (when
// path is not empty) and the environment, then validates it. Unknown YAML
// keys are rejected so that a misspelt setting does not silently fall back
// to its default.
func Load(path string) (*Config, error) {
	cfg := defaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := decode(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	if err := applyEnv(cfg, os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func decode(data []byte, cfg *Config) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// Validate reports every setting the services cannot start with.
func (c *Config) Validate() error {
	var errs []error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			errs = append(errs, fmt.Errorf(format, args...))
		}
	}
	check(c.Indexer.NumShards >= 1, "indexer.numShards must be at least 1, got %d", c.Indexer.NumShards)
	check(c.Expand.DefaultLimit >= 1, "expand.defaultLimit must be at least 1, got %d", c.Expand.DefaultLimit)
	check(c.Expand.MaxLimit >= c.Expand.DefaultLimit, "expand.maxLimit %d is below expand.defaultLimit %d", c.Expand.MaxLimit, c.Expand.DefaultLimit)
	check(c.Server.RateLimit.RequestsPerSecond >= 0, "server.rateLimit.requestsPerSecond must not be negative")
	check(c.Analytics.SnapshotInterval >= 0, "analytics.snapshotInterval must not be negative")
	check(c.Tracing.SampleRate >= 0 && c.Tracing.SampleRate <= 1, "tracing.sampleRate must be within [0, 1], got %g", c.Tracing.SampleRate)
	check(len(c.Kafka.Brokers) > 0, "kafka.brokers must not be empty")
	return errors.Join(errs...)
}

// defaultConfig matches the docker-compose development stack.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 15 * time.Second,
			RateLimit: RateLimitConfig{
				RequestsPerSecond: 50,
				Burst:             100,
			},
		},
		Postgres: PostgresConfig{
			Host:            "localhost",
			Port:            5432,
			Database:        "bigramsearch",
			User:            "bigramsearch",
			Password:        "localdev",
			SSLMode:         "disable",
			MaxOpenConns:    25,
			MaxIdleConns:    5,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Kafka: KafkaConfig{
			Brokers:        []string{"localhost:9092"},
			ConsumerGroup:  "bigramsearch-indexer",
			Compression:    "lz4",
			HandlerRetries: 3,
			Topics: KafkaTopics{
				DocumentIngest:  "document-ingest",
				IndexComplete:   "index.complete",
				CacheInvalidate: "cache-invalidate",
				AnalyticsEvents: "analytics-events",
			},
		},
		Redis: RedisConfig{
			Addr:     "localhost:6379",
			Password: "",
			DB:       0,
			PoolSize: 10,
			CacheTTL: 60 * time.Second,
		},
		Indexer: IndexerConfig{
			DataDir:        "./data/index",
			NumShards:      4,
			SegmentMaxSize: 64 << 20,
			FlushInterval:  30 * time.Second,
			ReloadInterval: 10 * time.Second,
			Compression:    "zstd",
		},
		Search: SearchConfig{
			MaxResults:           100,
			DefaultLimit:         10,
			TimeoutPerShard:      2 * time.Second,
			MaxConcurrentQueries: 64,
		},
		Expand: ExpandConfig{
			Scheme:          "trad",
			DefaultLimit:    10,
			MaxLimit:        100,
			MinRelevantDocs: 1,
			MaxFeedbackDocs: 20,
			CacheTTL:        5 * time.Minute,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Tracing: TracingConfig{
			Enabled:    false,
			SampleRate: 0.1,
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Port:    9090,
		},
		Analytics: AnalyticsConfig{
			BufferSize:        10000,
			BatchSize:         100,
			FlushInterval:     5 * time.Second,
			SnapshotInterval:  time.Minute,
			SnapshotRetention: 7 * 24 * time.Hour,
		},
	}
}

// envVar binds one BGS_* variable to the field it overrides.
type envVar struct {
	name string
	set  func(c *Config, v string) error
}

func str(field func(*Config) *string) func(*Config, string) error {
	return func(c *Config, v string) error {
		*field(c) = v
		return nil
	}
}

func integer(field func(*Config) *int) func(*Config, string) error {
	return func(c *Config, v string) error {
		n, err := strconv.Atoi(v)
		if err != nil {
			return err
		}
		*field(c) = n
		return nil
	}
}

var envVars = []envVar{
	{"BGS_SERVER_PORT", integer(func(c *Config) *int { return &c.Server.Port })},
	{"BGS_POSTGRES_HOST", str(func(c *Config) *string { return &c.Postgres.Host })},
	{"BGS_POSTGRES_PORT", integer(func(c *Config) *int { return &c.Postgres.Port })},
	{"BGS_POSTGRES_DATABASE", str(func(c *Config) *string { return &c.Postgres.Database })},
	{"BGS_POSTGRES_USER", str(func(c *Config) *string { return &c.Postgres.User })},
	{"BGS_POSTGRES_PASSWORD", str(func(c *Config) *string { return &c.Postgres.Password })},
	{"BGS_POSTGRES_SSLMODE", str(func(c *Config) *string { return &c.Postgres.SSLMode })},
	{"BGS_KAFKA_BROKERS", func(c *Config, v string) error {
		c.Kafka.Brokers = strings.Split(v, ",")
		return nil
	}},
	{"BGS_KAFKA_COMPRESSION", str(func(c *Config) *string { return &c.Kafka.Compression })},
	{"BGS_REDIS_ADDR", str(func(c *Config) *string { return &c.Redis.Addr })},
	{"BGS_REDIS_PASSWORD", str(func(c *Config) *string { return &c.Redis.Password })},
	{"BGS_LOG_LEVEL", str(func(c *Config) *string { return &c.Logging.Level })},
	{"BGS_LOG_FORMAT", str(func(c *Config) *string { return &c.Logging.Format })},
	{"BGS_INDEXER_DATA_DIR", str(func(c *Config) *string { return &c.Indexer.DataDir })},
	{"BGS_INDEXER_NUM_SHARDS", integer(func(c *Config) *int { return &c.Indexer.NumShards })},
	{"BGS_INDEXER_COMPRESSION", str(func(c *Config) *string { return &c.Indexer.Compression })},
	{"BGS_EXPAND_SCHEME", str(func(c *Config) *string { return &c.Expand.Scheme })},
	{"BGS_EXPAND_MIN_RELEVANT_DOCS", integer(func(c *Config) *int { return &c.Expand.MinRelevantDocs })},
	{"BGS_RATE_LIMIT_RPS", func(c *Config, v string) error {
		rps, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return err
		}
		c.Server.RateLimit.RequestsPerSecond = rps
		return nil
	}},
	{"BGS_TRACING_SAMPLE_RATE", func(c *Config, v string) error {
		rate, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return err
		}
		c.Tracing.Enabled = rate > 0
		c.Tracing.SampleRate = rate
		return nil
	}},
}

// applyEnv overlays every set BGS_* variable. A value that does not parse
// is an error rather than being ignored.
func applyEnv(cfg *Config, lookup func(string) (string, bool)) error {
	var errs []error
	for _, ev := range envVars {
		v, ok := lookup(ev.name)
		if !ok || v == "" {
			continue
		}
		if err := ev.set(cfg, v); err != nil {
			errs = append(errs, fmt.Errorf("%s=%q: %w", ev.name, v, err))
		}
	}
	return errors.Join(errs...)
}
