package config

import (
	"fmt"
	"os"
	"time"

	"github.com/creasty/defaults"
	"gopkg.in/yaml.v3"

	"CopyFabric/internal/engine"
	"CopyFabric/pkg/util"
)

// Environment variables that override the yaml file.
const (
	EnvRedisURL     = "COPYTRADE_REDIS_URL"
	EnvDatabaseURL  = "COPYTRADE_DATABASE_URL"
	EnvTerminalPath = "COPYTRADE_TERMINAL_PATH"
	EnvKafkaBrokers = "KAFKA_BROKERS"
)

type Config struct {
	Environment string `yaml:"environment" default:"development"`
	Server      struct {
		Port            int           `yaml:"port" default:"8080"`
		ReadTimeout     time.Duration `yaml:"read_timeout" default:"10s"`
		WriteTimeout    time.Duration `yaml:"write_timeout" default:"30s"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout" default:"15s"`
	} `yaml:"server"`
	Logging struct {
		Level     string `yaml:"level" default:"info"`
		Format    string `yaml:"format" default:"json"`
		Output    string `yaml:"output" default:"stdout"`
		Collector struct {
			Enabled        bool          `yaml:"enabled"`
			Topic          string        `yaml:"topic" default:"copyfabric.errors"`
			FlushInterval  time.Duration `yaml:"flush_interval" default:"30s"`
			CountThreshold int           `yaml:"count_threshold" default:"100"`
		} `yaml:"collector"`
	} `yaml:"logging"`
	Coord struct {
		Driver       string        `yaml:"driver" default:"redis"`
		URL          string        `yaml:"url"`
		Addr         string        `yaml:"addr" default:"localhost:6379"`
		Password     string        `yaml:"password"`
		DB           int           `yaml:"db"`
		Prefix       string        `yaml:"prefix"`
		PoolSize     int           `yaml:"pool_size" default:"20"`
		MinIdleConns int           `yaml:"min_idle_conns" default:"2"`
		Timeout      time.Duration `yaml:"timeout" default:"3s"`
		TicketTTL    time.Duration `yaml:"ticket_ttl" default:"720h"`
	} `yaml:"coord"`
	Subscriptions struct {
		Source      string        `yaml:"source" default:"postgres"`
		DatabaseURL string        `yaml:"database_url"`
		MaxOpen     int           `yaml:"max_open" default:"10"`
		File        string        `yaml:"file" default:"config/followers.yaml"`
		CacheTTL    time.Duration `yaml:"cache_ttl" default:"30s"`
	} `yaml:"subscriptions"`
	Terminals engine.PoolConfig `yaml:"terminals"`
	Broker    struct {
		Driver    string        `yaml:"driver" default:"bridge"`
		BridgeURL string        `yaml:"bridge_url" default:"http://127.0.0.1:8765"`
		Timeout   time.Duration `yaml:"timeout" default:"10s"`
	} `yaml:"broker"`
	Executor struct {
		SettleDelay       time.Duration `yaml:"settle_delay" default:"500ms"`
		TickRetryDelay    time.Duration `yaml:"tick_retry_delay" default:"200ms"`
		Deviation         int           `yaml:"deviation" default:"20"`
		Magic             int64         `yaml:"magic" default:"234000"`
		RotationTolerance float64       `yaml:"rotation_tolerance" default:"0.01"`
		SymbolCacheTTL    time.Duration `yaml:"symbol_cache_ttl" default:"5m"`
	} `yaml:"executor"`
	Engine struct {
		DistributedLock bool          `yaml:"distributed_lock"`
		LockTTL         time.Duration `yaml:"lock_ttl" default:"30s"`
		PopTimeout      time.Duration `yaml:"pop_timeout" default:"1s"`
	} `yaml:"engine"`
	Ingest struct {
		MaxSignalAge time.Duration `yaml:"max_signal_age" default:"60s"`
		LaneBuffer   int           `yaml:"lane_buffer" default:"256"`
		Kafka        struct {
			Enabled bool   `yaml:"enabled"`
			Topic   string `yaml:"topic" default:"copyfabric.signals"`
		} `yaml:"kafka"`
	} `yaml:"ingest"`
	Dispatch struct {
		MaxLag time.Duration `yaml:"max_lag"`
	} `yaml:"dispatch"`
	Kafka struct {
		Enabled      bool     `yaml:"enabled"`
		Brokers      []string `yaml:"brokers"`
		ResultsTopic string   `yaml:"results_topic" default:"copyfabric.executions"`
		RequiredAcks int      `yaml:"required_acks" default:"-1"`
		Compression  string   `yaml:"compression" default:"gzip"`
		Producer     struct {
			MaxAttempts  int           `yaml:"max_attempts" default:"3"`
			Linger       time.Duration `yaml:"linger" default:"50ms"`
			BatchBytes   int           `yaml:"batch_bytes" default:"1048576"`
			BatchSize    int           `yaml:"batch_size" default:"100"`
			WriteTimeout time.Duration `yaml:"write_timeout" default:"10s"`
			ReadTimeout  time.Duration `yaml:"read_timeout" default:"10s"`
			Async        bool          `yaml:"async"`
		} `yaml:"producer"`
		Consumer struct {
			GroupID    string        `yaml:"group_id" default:"copyfabric-engine"`
			Workers    int           `yaml:"workers" default:"4"`
			BufferSize int           `yaml:"buffer_size" default:"256"`
			RetryMax   int           `yaml:"retry_max" default:"3"`
			BackoffMin time.Duration `yaml:"backoff_min" default:"100ms"`
			BackoffMax time.Duration `yaml:"backoff_max" default:"2s"`
			DLQTopic   string        `yaml:"dlq_topic"`
			MinBytes   int           `yaml:"min_bytes" default:"1"`
			MaxBytes   int           `yaml:"max_bytes" default:"10485760"`
		} `yaml:"consumer"`
	} `yaml:"kafka"`
	ClickHouse struct {
		Enabled          bool          `yaml:"enabled"`
		Host             string        `yaml:"host"`
		Port             int           `yaml:"port" default:"9000"`
		Database         string        `yaml:"database" default:"copyfabric"`
		User             string        `yaml:"user" default:"default"`
		Password         string        `yaml:"password"`
		UseHTTP          bool          `yaml:"use_http"`
		AsyncInsert      bool          `yaml:"async_insert"`
		WaitForAsync     bool          `yaml:"wait_for_async_insert"`
		DialTimeout      time.Duration `yaml:"dial_timeout" default:"5s"`
		ReadTimeout      time.Duration `yaml:"read_timeout" default:"10s"`
		WriteTimeout     time.Duration `yaml:"write_timeout" default:"10s"`
		MaxExecutionTime time.Duration `yaml:"max_execution_time"`
	} `yaml:"clickhouse"`
	API struct {
		RateBurst     float64 `yaml:"rate_burst" default:"10"`
		RatePerSecond float64 `yaml:"rate_per_second" default:"5"`
		WebSocket     bool    `yaml:"websocket" default:"true"`
	} `yaml:"api"`
}

// Load reads and parses a YAML configuration file. Missing keys take their
// tag defaults.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(b)
}

// Parse decodes yaml bytes, applies defaults and validates.
func Parse(b []byte) (*Config, error) {
	var c Config
	if err := defaults.Set(&c); err != nil {
		return nil, fmt.Errorf("config defaults: %w", err)
	}
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return &c, nil
}

// LoadWithEnv loads config from YAML and overrides with environment variables.
func LoadWithEnv(path string) (*Config, error) {
	c, err := Load(path)
	if err != nil {
		return nil, err
	}
	c.ApplyEnv(os.Getenv)
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

// ApplyEnv applies the documented environment overrides using getenv.
func (c *Config) ApplyEnv(getenv func(string) string) {
	if v := getenv(EnvRedisURL); v != "" {
		c.Coord.URL = v
		c.Coord.Driver = "redis"
	}
	if v := getenv(EnvDatabaseURL); v != "" {
		c.Subscriptions.DatabaseURL = v
	}
	if v := getenv(EnvTerminalPath); v != "" {
		c.Terminals.Override = v
	}
	if v := getenv(EnvKafkaBrokers); v != "" {
		c.Kafka.Brokers = util.SplitCSV(v)
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	switch c.Coord.Driver {
	case "redis", "memory":
	default:
		return fmt.Errorf("coord.driver must be 'redis' or 'memory', got '%s'", c.Coord.Driver)
	}
	switch c.Subscriptions.Source {
	case "postgres", "static":
	default:
		return fmt.Errorf("subscriptions.source must be 'postgres' or 'static', got '%s'", c.Subscriptions.Source)
	}
	switch c.Broker.Driver {
	case "bridge", "sim":
	default:
		return fmt.Errorf("broker.driver must be 'bridge' or 'sim', got '%s'", c.Broker.Driver)
	}
	if c.Subscriptions.CacheTTL > 30*time.Second {
		return fmt.Errorf("subscriptions.cache_ttl must be at most 30s, got %s", c.Subscriptions.CacheTTL)
	}
	if c.Kafka.Enabled || c.Ingest.Kafka.Enabled || c.Logging.Collector.Enabled {
		if len(c.Kafka.Brokers) == 0 {
			return fmt.Errorf("kafka.brokers is required when kafka is enabled")
		}
	}
	if c.ClickHouse.Enabled && c.ClickHouse.Host == "" {
		return fmt.Errorf("clickhouse.host is required when clickhouse is enabled")
	}
	if c.Executor.Magic <= 0 {
		return fmt.Errorf("executor.magic must be positive")
	}
	return nil
}
