package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Environment string `yaml:"environment"`
	Server      struct {
		Port            int           `yaml:"port"`
		ReadTimeout     time.Duration `yaml:"read_timeout"`
		WriteTimeout    time.Duration `yaml:"write_timeout"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
		CORS            bool          `yaml:"cors"`
	} `yaml:"server"`
	Metrics struct {
		Enabled bool   `yaml:"enabled"`
		Path    string `yaml:"path"`
	} `yaml:"metrics"`
	Engine struct {
		RefreshInterval   time.Duration `yaml:"refresh_interval"`
		SweepInterval     time.Duration `yaml:"sweep_interval"`
		RequestTimeout    time.Duration `yaml:"request_timeout"`
		DefaultSpread     float64       `yaml:"default_spread"`
		MinSpread         float64       `yaml:"min_spread"`
		MaxSpread         float64       `yaml:"max_spread"`
		SpreadTolerance   float64       `yaml:"spread_tolerance"`
		StaleAfter        time.Duration `yaml:"stale_after"`
		FailureAlertAfter int           `yaml:"failure_alert_after"`
		Pairs             []struct {
			Symbol   string `yaml:"symbol"`
			Category string `yaml:"category"`
		} `yaml:"pairs"`
		Priority map[string][]string `yaml:"priority"`
	} `yaml:"engine"`
	Hub struct {
		HeartbeatInterval time.Duration `yaml:"heartbeat_interval"`
		BatchWindow       time.Duration `yaml:"batch_window"`
		QueueSize         int           `yaml:"queue_size"`
		MaxOverflow       int           `yaml:"max_overflow"`
		InboundRate       float64       `yaml:"inbound_rate"`
		InboundBurst      float64       `yaml:"inbound_burst"`
	} `yaml:"hub"`
	Providers struct {
		Forex struct {
			BaseURL string        `yaml:"base_url"`
			Timeout time.Duration `yaml:"timeout"`
		} `yaml:"forex"`
		Crypto struct {
			BaseURL string        `yaml:"base_url"`
			APIKey  string        `yaml:"api_key"`
			Timeout time.Duration `yaml:"timeout"`
		} `yaml:"crypto"`
		Commodities struct {
			BaseURL   string        `yaml:"base_url"`
			AccessKey string        `yaml:"access_key"`
			Timeout   time.Duration `yaml:"timeout"`
		} `yaml:"commodities"`
		Yields struct {
			BaseURL string        `yaml:"base_url"`
			APIKey  string        `yaml:"api_key"`
			Timeout time.Duration `yaml:"timeout"`
		} `yaml:"yields"`
	} `yaml:"providers"`
	Redis struct {
		Enabled  bool   `yaml:"enabled"`
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
	} `yaml:"redis"`
	Kafka struct {
		Enabled      bool     `yaml:"enabled"`
		Brokers      []string `yaml:"brokers"`
		Topic        string   `yaml:"topic"`
		LogTopic     string   `yaml:"log_topic"`
		RequiredAcks int      `yaml:"required_acks"`
		Compression  string   `yaml:"compression"`
		Producer     struct {
			MaxAttempts  int           `yaml:"max_attempts"`
			Linger       time.Duration `yaml:"linger"`
			BatchBytes   int           `yaml:"batch_bytes"`
			BatchSize    int           `yaml:"batch_size"`
			WriteTimeout time.Duration `yaml:"write_timeout"`
			ReadTimeout  time.Duration `yaml:"read_timeout"`
			Async        bool          `yaml:"async"`
		} `yaml:"producer"`
	} `yaml:"kafka"`
	ClickHouse struct {
		Enabled          bool          `yaml:"enabled"`
		Host             string        `yaml:"host"`
		Port             int           `yaml:"port"`
		Database         string        `yaml:"database"`
		User             string        `yaml:"user"`
		Password         string        `yaml:"password"`
		UseHTTP          bool          `yaml:"use_http"`
		AsyncInsert      bool          `yaml:"async_insert"`
		WaitForAsync     bool          `yaml:"wait_for_async_insert"`
		DialTimeout      time.Duration `yaml:"dial_timeout"`
		ReadTimeout      time.Duration `yaml:"read_timeout"`
		WriteTimeout     time.Duration `yaml:"write_timeout"`
		MaxExecutionTime time.Duration `yaml:"max_execution_time"`
	} `yaml:"clickhouse"`
	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
		Output string `yaml:"output"`
	} `yaml:"log"`
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

	if v := os.Getenv("CRYPTO_API_KEY"); v != "" {
		c.Providers.Crypto.APIKey = v
	}
	if v := os.Getenv("COMMODITIES_ACCESS_KEY"); v != "" {
		c.Providers.Commodities.AccessKey = v
	}
	if v := os.Getenv("YIELDS_API_KEY"); v != "" {
		c.Providers.Yields.APIKey = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		c.Redis.Addr = v
		c.Redis.Enabled = true
	}
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = strings.Split(v, ",")
		c.Kafka.Enabled = true
	}
	if v := os.Getenv("KAFKA_TOPIC"); v != "" {
		c.Kafka.Topic = v
	}
	if v := os.Getenv("CLICKHOUSE_HOST"); v != "" {
		c.ClickHouse.Host = v
		c.ClickHouse.Enabled = true
	}

	return c, nil
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Environment == "" {
		return fmt.Errorf("environment is required")
	}
	if len(c.Engine.Pairs) == 0 {
		return fmt.Errorf("engine.pairs cannot be empty")
	}
	for _, p := range c.Engine.Pairs {
		if p.Symbol == "" || p.Category == "" {
			return fmt.Errorf("engine.pairs entries need symbol and category, got %+v", p)
		}
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka.brokers cannot be empty when kafka is enabled")
	}
	if c.ClickHouse.Enabled && c.ClickHouse.Host == "" {
		return fmt.Errorf("clickhouse.host is required when clickhouse is enabled")
	}
	return nil
}
