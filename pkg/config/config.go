package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Environment string `yaml:"environment"`
	Server      struct {
		Host            string        `yaml:"host"`
		Port            int           `yaml:"port"`
		ReadTimeout     time.Duration `yaml:"read_timeout"`
		WriteTimeout    time.Duration `yaml:"write_timeout"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
		CORS            bool          `yaml:"cors"`
	} `yaml:"server"`
	Logging struct {
		Level     string `yaml:"level"`
		Format    string `yaml:"format"`
		Output    string `yaml:"output"`
		Collector struct {
			Enabled   bool          `yaml:"enabled"`
			Topic     string        `yaml:"topic"`
			Interval  time.Duration `yaml:"interval"`
			Threshold int           `yaml:"threshold"`
		} `yaml:"collector"`
	} `yaml:"logging"`
	Source struct {
		Driver string `yaml:"driver"` // clickhouse, postgres, sqlite, csv, parquet
		Table  string `yaml:"table"`
		Path   string `yaml:"path"` // csv and parquet files
	} `yaml:"source"`
	ClickHouse struct {
		Host             string        `yaml:"host"`
		Port             int           `yaml:"port"`
		Database         string        `yaml:"database"`
		User             string        `yaml:"user"`
		Password         string        `yaml:"password"`
		UseHTTP          bool          `yaml:"use_http"`
		InitSchema       bool          `yaml:"init_schema"`
		DialTimeout      time.Duration `yaml:"dial_timeout"`
		ReadTimeout      time.Duration `yaml:"read_timeout"`
		WriteTimeout     time.Duration `yaml:"write_timeout"`
		MaxExecutionTime time.Duration `yaml:"max_execution_time"`
	} `yaml:"clickhouse"`
	Postgres struct {
		DSN      string `yaml:"dsn"`
		MaxConns int32  `yaml:"max_conns"`
	} `yaml:"postgres"`
	SQLite struct {
		Path string `yaml:"path"`
	} `yaml:"sqlite"`
	Loader struct {
		StrictTimestamps *bool         `yaml:"strict_timestamps"`
		MaxAttempts      int           `yaml:"max_attempts"`
		InitialInterval  time.Duration `yaml:"initial_interval"`
		MaxElapsed       time.Duration `yaml:"max_elapsed"`
	} `yaml:"loader"`
	Model struct {
		ArtifactPath string `yaml:"artifact_path"`
		Required     *bool  `yaml:"required"` // refuse to serve without a loadable artifact
		WindowSize   int    `yaml:"window_size"`
		HiddenSize   int    `yaml:"hidden_size"`
		MaxSteps     int    `yaml:"max_steps"`
		Clamp        bool   `yaml:"clamp"`
	} `yaml:"model"`
	Train struct {
		Mode         string  `yaml:"mode"` // single or multi
		FutureSteps  int     `yaml:"future_steps"`
		MaxHistory   int     `yaml:"max_history"`
		Epochs       int     `yaml:"epochs"`
		BatchSize    int     `yaml:"batch_size"`
		LearningRate float64 `yaml:"learning_rate"`
		Patience     int     `yaml:"patience"`
		ClipNorm     float64 `yaml:"clip_norm"`
		SplitSeed    int64   `yaml:"split_seed"`
		InitSeed     int64   `yaml:"init_seed"`
		Resume       bool    `yaml:"resume"`
	} `yaml:"train"`
	Redis struct {
		Enabled  bool   `yaml:"enabled"`
		Host     string `yaml:"host"`
		Port     int    `yaml:"port"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		Prefix   string `yaml:"prefix"`
	} `yaml:"redis"`
	Cache struct {
		Mode string        `yaml:"mode"` // none, memory, redis, layered
		TTL  time.Duration `yaml:"ttl"`
	} `yaml:"cache"`
	Queue struct {
		Enabled    bool          `yaml:"enabled"`
		Workers    int           `yaml:"workers"`
		RetryLimit int           `yaml:"retry_limit"`
		RetryDelay time.Duration `yaml:"retry_delay"`
	} `yaml:"queue"`
	Kafka struct {
		Enabled       bool     `yaml:"enabled"`
		Brokers       []string `yaml:"brokers"`
		ForecastTopic string   `yaml:"forecast_topic"`
		RequiredAcks  int      `yaml:"required_acks"`
		Compression   string   `yaml:"compression"`
		Producer      struct {
			MaxAttempts  int           `yaml:"max_attempts"`
			Linger       time.Duration `yaml:"linger"`
			BatchBytes   int           `yaml:"batch_bytes"`
			BatchSize    int           `yaml:"batch_size"`
			WriteTimeout time.Duration `yaml:"write_timeout"`
			Async        bool          `yaml:"async"`
		} `yaml:"producer"`
	} `yaml:"kafka"`
	RateLimit struct {
		Enabled bool    `yaml:"enabled"`
		RPS     float64 `yaml:"rps"`
		Burst   int     `yaml:"burst"`
	} `yaml:"ratelimit"`
}

// Load reads and parses a YAML configuration file.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	c.applyDefaults()

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &c, nil
}

// LoadWithEnv loads .env when present, then the YAML file, then applies
// environment overrides.
func LoadWithEnv(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	c, err := Load(path)
	if err != nil {
		return nil, err
	}

	if v := os.Getenv("SOURCE_DRIVER"); v != "" {
		c.Source.Driver = v
	}
	if v := os.Getenv("SOURCE_PATH"); v != "" {
		c.Source.Path = v
	}
	if v := os.Getenv("CLICKHOUSE_HOST"); v != "" {
		c.ClickHouse.Host = v
	}
	if v := os.Getenv("CLICKHOUSE_PASSWORD"); v != "" {
		c.ClickHouse.Password = v
	}
	if v := os.Getenv("POSTGRES_DSN"); v != "" {
		c.Postgres.DSN = v
	}
	if v := os.Getenv("MODEL_PATH"); v != "" {
		c.Model.ArtifactPath = v
	}
	if v := os.Getenv("REDIS_HOST"); v != "" {
		c.Redis.Host = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		c.Redis.Password = v
	}
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("HTTP_PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			c.Server.Port = p
		}
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}

	return c, c.Validate()
}

func (c *Config) applyDefaults() {
	if c.Environment == "" {
		c.Environment = "development"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Output == "" {
		c.Logging.Output = "stdout"
	}
	if c.Source.Table == "" {
		c.Source.Table = "market_data"
	}
	if c.Loader.StrictTimestamps == nil {
		strict := true
		c.Loader.StrictTimestamps = &strict
	}
	if c.Model.Required == nil {
		required := true
		c.Model.Required = &required
	}
	if c.Loader.MaxAttempts == 0 {
		c.Loader.MaxAttempts = 3
	}
	if c.Model.WindowSize == 0 {
		c.Model.WindowSize = 20
	}
	if c.Model.HiddenSize == 0 {
		c.Model.HiddenSize = 32
	}
	if c.Train.Mode == "" {
		c.Train.Mode = "single"
	}
	if c.Cache.Mode == "" {
		c.Cache.Mode = "none"
	}
	if c.Redis.Prefix == "" {
		c.Redis.Prefix = "fincast"
	}
	if c.Kafka.ForecastTopic == "" {
		c.Kafka.ForecastTopic = "fincast.forecasts"
	}
}

// Strict reports whether unparsable timestamps fail the load.
func (c *Config) Strict() bool {
	return c.Loader.StrictTimestamps == nil || *c.Loader.StrictTimestamps
}

// ModelRequired reports whether startup fails when the artifact cannot be loaded.
func (c *Config) ModelRequired() bool {
	return c.Model.Required == nil || *c.Model.Required
}

// RedisAddr returns host:port of the Redis server.
func (c *Config) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Redis.Host, c.Redis.Port)
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	switch c.Source.Driver {
	case "clickhouse":
		if c.ClickHouse.Host == "" {
			return fmt.Errorf("clickhouse.host is required for source.driver clickhouse")
		}
	case "postgres":
		if c.Postgres.DSN == "" {
			return fmt.Errorf("postgres.dsn is required for source.driver postgres")
		}
	case "sqlite":
		if c.SQLite.Path == "" {
			return fmt.Errorf("sqlite.path is required for source.driver sqlite")
		}
	case "csv", "parquet":
		if c.Source.Path == "" {
			return fmt.Errorf("source.path is required for source.driver %s", c.Source.Driver)
		}
	case "":
		return fmt.Errorf("source.driver is required")
	default:
		return fmt.Errorf("source.driver must be one of clickhouse, postgres, sqlite, csv, parquet, got '%s'", c.Source.Driver)
	}

	if c.Model.ArtifactPath == "" {
		return fmt.Errorf("model.artifact_path is required")
	}
	if c.Train.Mode != "single" && c.Train.Mode != "multi" {
		return fmt.Errorf("train.mode must be 'single' or 'multi', got '%s'", c.Train.Mode)
	}

	switch c.Cache.Mode {
	case "none", "memory":
	case "redis", "layered":
		if !c.Redis.Enabled {
			return fmt.Errorf("cache.mode %s requires redis.enabled", c.Cache.Mode)
		}
	default:
		return fmt.Errorf("cache.mode must be one of none, memory, redis, layered, got '%s'", c.Cache.Mode)
	}
	if c.Queue.Enabled && !c.Redis.Enabled {
		return fmt.Errorf("queue.enabled requires redis.enabled")
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka.brokers cannot be empty when kafka is enabled")
	}
	if c.RateLimit.Enabled && (c.RateLimit.RPS <= 0 || c.RateLimit.Burst <= 0) {
		return fmt.Errorf("ratelimit.rps and ratelimit.burst must be positive")
	}
	return nil
}
