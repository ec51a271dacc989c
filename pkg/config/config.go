// Package config loads and validates application configuration from YAML files
// with environment-variable overrides. It provides typed structs for every
// subsystem (Server, Postgres, Kafka, Redis, Indexer, Search, etc.).
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
	Server   ServerConfig   `yaml:"server"`
	Postgres PostgresConfig `yaml:"postgres"`
	Kafka    KafkaConfig    `yaml:"kafka"`
	Redis    RedisConfig    `yaml:"redis"`
	Indexer  IndexerConfig  `yaml:"indexer"`
	Search   SearchConfig   `yaml:"search"`
	Logging  LoggingConfig  `yaml:"logging"`
	Tracing  TracingConfig  `yaml:"tracing"`
	Metrics  MetricsConfig  `yaml:"metrics"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"readTimeout"`
	WriteTimeout    time.Duration `yaml:"writeTimeout"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
	// AllowOrigins enables CORS for the listed origins. "*" allows any.
	AllowOrigins []string `yaml:"allowOrigins"`
}

// PostgresConfig holds PostgreSQL connection parameters. The relation
// registry is read from this database when Enabled is set.
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

// KafkaConfig holds Kafka broker and topic settings.
type KafkaConfig struct {
	Enabled       bool        `yaml:"enabled"`
	Brokers       []string    `yaml:"brokers"`
	ConsumerGroup string      `yaml:"consumerGroup"`
	Topics        KafkaTopics `yaml:"topics"`
}

// KafkaTopics maps logical topic names to their Kafka topic strings.
type KafkaTopics struct {
	DocumentIngest string `yaml:"documentIngest"`
	IndexComplete  string `yaml:"indexComplete"`
	QueryEvents    string `yaml:"queryEvents"`
}

// RedisConfig holds Redis connection and caching parameters.
type RedisConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	PoolSize int           `yaml:"poolSize"`
	CacheTTL time.Duration `yaml:"cacheTTL"`
}

// IndexerConfig controls where segments live and how often the indexer
// writes a new snapshot.
type IndexerConfig struct {
	DataDir        string        `yaml:"dataDir"`
	SegmentMaxSize int64         `yaml:"segmentMaxSize"`
	FlushInterval  time.Duration `yaml:"flushInterval"`
	KeepSegments   int           `yaml:"keepSegments"`
}

// SearchConfig controls query execution limits, timeouts and scoring.
type SearchConfig struct {
	DefaultTopN    int              `yaml:"defaultTopN"`
	MaxTopN        int              `yaml:"maxTopN"`
	QueryTimeout   time.Duration    `yaml:"queryTimeout"`
	MaxParallelism int              `yaml:"maxParallelism"`
	Similarity     string           `yaml:"similarity"`
	Relations      []RelationConfig `yaml:"relations"`
}

// RelationConfig declares one parent/child relation. It is used when the
// relation registry is not loaded from Postgres.
type RelationConfig struct {
	Name   string `yaml:"name"`
	Parent string `yaml:"parent"`
	Child  string `yaml:"child"`
}

// LoggingConfig controls structured logging level and output format.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// TracingConfig controls per-query span logging.
type TracingConfig struct {
	Enabled    bool    `yaml:"enabled"`
	SampleRate float64 `yaml:"sampleRate"`
}

// MetricsConfig controls the Prometheus metrics server.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

// Load reads a YAML config file (if provided) and applies environment-variable
// overrides. It returns a Config populated with sensible defaults for any
// missing values.
func Load(path string) (*Config, error) {
	cfg := defaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}
	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects configurations the search service cannot run with.
func (c *Config) Validate() error {
	if c.Search.DefaultTopN <= 0 {
		return fmt.Errorf("search.defaultTopN must be positive, got %d", c.Search.DefaultTopN)
	}
	if c.Search.MaxTopN < c.Search.DefaultTopN {
		return fmt.Errorf("search.maxTopN (%d) must be >= search.defaultTopN (%d)", c.Search.MaxTopN, c.Search.DefaultTopN)
	}
	if c.Search.MaxParallelism <= 0 {
		return fmt.Errorf("search.maxParallelism must be positive, got %d", c.Search.MaxParallelism)
	}
	switch c.Search.Similarity {
	case "tf", "bm25":
	default:
		return fmt.Errorf("search.similarity must be one of tf, bm25; got %q", c.Search.Similarity)
	}
	for i, r := range c.Search.Relations {
		if r.Name == "" || r.Parent == "" || r.Child == "" {
			return fmt.Errorf("search.relations[%d]: name, parent and child are required", i)
		}
	}
	return nil
}

// defaultConfig returns a Config with production-ready defaults for local
// development.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 15 * time.Second,
		},
		Postgres: PostgresConfig{
			Host:            "localhost",
			Port:            5432,
			Database:        "queryengine",
			User:            "queryengine",
			Password:        "localdev",
			SSLMode:         "disable",
			MaxOpenConns:    5,
			MaxIdleConns:    2,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Kafka: KafkaConfig{
			Brokers:       []string{"localhost:9092"},
			ConsumerGroup: "query-engine-group",
			Topics: KafkaTopics{
				DocumentIngest: "document-ingest",
				IndexComplete:  "index.complete",
				QueryEvents:    "query-events",
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
			DataDir:        "data/segments",
			SegmentMaxSize: 64 << 20,
			FlushInterval:  30 * time.Second,
			KeepSegments:   3,
		},
		Search: SearchConfig{
			DefaultTopN:    10,
			MaxTopN:        1000,
			QueryTimeout:   2 * time.Second,
			MaxParallelism: 4,
			Similarity:     "tf",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Tracing: TracingConfig{
			SampleRate: 0.01,
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Port:    9090,
		},
	}
}

type envVar struct {
	name string
	set  func(cfg *Config, v string) error
}

func intVar(dst func(*Config) *int) func(*Config, string) error {
	return func(cfg *Config, v string) error {
		n, err := strconv.Atoi(v)
		if err == nil {
			*dst(cfg) = n
		}
		return err
	}
}

func boolVar(dst func(*Config) *bool) func(*Config, string) error {
	return func(cfg *Config, v string) error {
		b, err := strconv.ParseBool(v)
		if err == nil {
			*dst(cfg) = b
		}
		return err
	}
}

func floatVar(dst func(*Config) *float64) func(*Config, string) error {
	return func(cfg *Config, v string) error {
		f, err := strconv.ParseFloat(v, 64)
		if err == nil {
			*dst(cfg) = f
		}
		return err
	}
}

func durationVar(dst func(*Config) *time.Duration) func(*Config, string) error {
	return func(cfg *Config, v string) error {
		d, err := time.ParseDuration(v)
		if err == nil {
			*dst(cfg) = d
		}
		return err
	}
}

func stringVar(dst func(*Config) *string) func(*Config, string) error {
	return func(cfg *Config, v string) error {
		*dst(cfg) = v
		return nil
	}
}

func listVar(dst func(*Config) *[]string) func(*Config, string) error {
	return func(cfg *Config, v string) error {
		var out []string
		for _, item := range strings.Split(v, ",") {
			if item = strings.TrimSpace(item); item != "" {
				out = append(out, item)
			}
		}
		*dst(cfg) = out
		return nil
	}
}

// envVars lists the SP_* variables that override file settings.
var envVars = []envVar{
	{"SP_SERVER_PORT", intVar(func(c *Config) *int { return &c.Server.Port })},
	{"SP_SERVER_ALLOW_ORIGINS", listVar(func(c *Config) *[]string { return &c.Server.AllowOrigins })},
	{"SP_POSTGRES_ENABLED", boolVar(func(c *Config) *bool { return &c.Postgres.Enabled })},
	{"SP_POSTGRES_HOST", stringVar(func(c *Config) *string { return &c.Postgres.Host })},
	{"SP_POSTGRES_PORT", intVar(func(c *Config) *int { return &c.Postgres.Port })},
	{"SP_POSTGRES_DATABASE", stringVar(func(c *Config) *string { return &c.Postgres.Database })},
	{"SP_POSTGRES_USER", stringVar(func(c *Config) *string { return &c.Postgres.User })},
	{"SP_POSTGRES_PASSWORD", stringVar(func(c *Config) *string { return &c.Postgres.Password })},
	{"SP_KAFKA_ENABLED", boolVar(func(c *Config) *bool { return &c.Kafka.Enabled })},
	{"SP_KAFKA_BROKERS", listVar(func(c *Config) *[]string { return &c.Kafka.Brokers })},
	{"SP_REDIS_ENABLED", boolVar(func(c *Config) *bool { return &c.Redis.Enabled })},
	{"SP_REDIS_ADDR", stringVar(func(c *Config) *string { return &c.Redis.Addr })},
	{"SP_REDIS_PASSWORD", stringVar(func(c *Config) *string { return &c.Redis.Password })},
	{"SP_INDEXER_DATA_DIR", stringVar(func(c *Config) *string { return &c.Indexer.DataDir })},
	{"SP_SEARCH_QUERY_TIMEOUT", durationVar(func(c *Config) *time.Duration { return &c.Search.QueryTimeout })},
	{"SP_SEARCH_MAX_PARALLELISM", intVar(func(c *Config) *int { return &c.Search.MaxParallelism })},
	{"SP_SEARCH_SIMILARITY", stringVar(func(c *Config) *string { return &c.Search.Similarity })},
	{"SP_TRACING_SAMPLE_RATE", floatVar(func(c *Config) *float64 { return &c.Tracing.SampleRate })},
	{"SP_METRICS_ENABLED", boolVar(func(c *Config) *bool { return &c.Metrics.Enabled })},
	{"SP_LOGGING_LEVEL", stringVar(func(c *Config) *string { return &c.Logging.Level })},
	{"SP_LOGGING_FORMAT", stringVar(func(c *Config) *string { return &c.Logging.Format })},
}

// applyEnvOverrides sets every field whose SP_* variable is present. A value
// that does not parse is an error rather than silently ignored.
func applyEnvOverrides(cfg *Config) error {
	for _, ev := range envVars {
		v, ok := os.LookupEnv(ev.name)
		if !ok || v == "" {
			continue
		}
		if err := ev.set(cfg, v); err != nil {
			return fmt.Errorf("environment %s=%q: %w", ev.name, v, err)
		}
	}
	return nil
}
