package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// PricingConfig drives the price-table derivation: list price is the mandi
// wholesale rate times the channel markup, plus a per-kg packaging premium.
type PricingConfig struct {
	MarkupB2B          float64 `yaml:"markup_b2b"`
	MarkupB2C          float64 `yaml:"markup_b2c"`
	PackagingPremium   float64 `yaml:"packaging_premium"`
	FallbackMandiPrice float64 `yaml:"fallback_mandi_price"`
}

type Config struct {
	Environment string `yaml:"environment"`
	Server      struct {
		Port            int           `yaml:"port"`
		ReadTimeout     time.Duration `yaml:"read_timeout"`
		WriteTimeout    time.Duration `yaml:"write_timeout"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	} `yaml:"server"`
	Metrics struct {
		Enabled bool   `yaml:"enabled"`
		Path    string `yaml:"path"`
	} `yaml:"metrics"`
	Backend struct {
		Type         string        `yaml:"type"`
		BatchSize    int           `yaml:"batch_size"`
		BatchTimeout time.Duration `yaml:"batch_timeout"`
	} `yaml:"backend"`
	Kafka struct {
		Brokers      []string `yaml:"brokers"`
		Topic        string   `yaml:"topic"`
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
		Consumer struct {
			GroupID    string        `yaml:"group_id"`
			Workers    int           `yaml:"workers"`
			BufferSize int           `yaml:"buffer_size"`
			RetryMax   int           `yaml:"retry_max"`
			BackoffMin time.Duration `yaml:"backoff_min"`
			BackoffMax time.Duration `yaml:"backoff_max"`
			DLQTopic   string        `yaml:"dlq_topic"`
			MinBytes   int           `yaml:"min_bytes"`
			MaxBytes   int           `yaml:"max_bytes"`
		} `yaml:"consumer"`
	} `yaml:"kafka"`
	ClickHouse struct {
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
	PosFeed struct {
		APIKey         string        `yaml:"api_key"`
		WebSocketURL   string        `yaml:"websocket_url"`
		Regions        []string      `yaml:"regions"`
		ReconnectDelay time.Duration `yaml:"reconnect_delay"`
		PingInterval   time.Duration `yaml:"ping_interval"`
	} `yaml:"posfeed"`
	Models struct {
		ServiceURL      string        `yaml:"service_url"`
		Timeout         time.Duration `yaml:"timeout"`
		FreshnessWindow time.Duration `yaml:"freshness_window"`
		DecisionTTL     time.Duration `yaml:"decision_ttl"`
		Redis           struct {
			Enabled  bool   `yaml:"enabled"`
			Addr     string `yaml:"addr"`
			Password string `yaml:"password"`
			DB       int    `yaml:"db"`
		} `yaml:"redis"`
	} `yaml:"models"`
	Pricing PricingConfig `yaml:"pricing"`
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

// LoadWithEnv loads config from YAML and overrides with environment variables.
func LoadWithEnv(path string) (*Config, error) {
	c, err := Load(path)
	if err != nil {
		return nil, err
	}

	if v := os.Getenv("POSFEED_API_KEY"); v != "" {
		c.PosFeed.APIKey = v
	}
	if v := os.Getenv("REGIONS"); v != "" {
		c.PosFeed.Regions = strings.Split(v, ",")
	}
	if v := os.Getenv("BACKEND"); v != "" {
		c.Backend.Type = v
	}
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("KAFKA_TOPIC"); v != "" {
		c.Kafka.Topic = v
	}
	if v := os.Getenv("MODEL_SERVICE_URL"); v != "" {
		c.Models.ServiceURL = v
	}

	return c, nil
}

func (c *Config) applyDefaults() {
	if c.Models.FreshnessWindow <= 0 {
		c.Models.FreshnessWindow = 15 * time.Minute
	}
	if c.Models.DecisionTTL <= 0 {
		c.Models.DecisionTTL = 5 * time.Minute
	}
	if c.Pricing.MarkupB2B <= 0 {
		c.Pricing.MarkupB2B = 1.2
	}
	if c.Pricing.MarkupB2C <= 0 {
		c.Pricing.MarkupB2C = 1.5
	}
	if c.Pricing.PackagingPremium <= 0 {
		c.Pricing.PackagingPremium = 10
	}
	if c.Pricing.FallbackMandiPrice <= 0 {
		c.Pricing.FallbackMandiPrice = 140
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Environment == "" {
		return fmt.Errorf("environment is required")
	}
	if c.Backend.Type == "" {
		return fmt.Errorf("backend.type is required")
	}
	if c.Backend.Type != "kafka" && c.Backend.Type != "clickhouse" {
		return fmt.Errorf("backend.type must be 'kafka' or 'clickhouse', got '%s'", c.Backend.Type)
	}
	if len(c.PosFeed.Regions) == 0 {
		return fmt.Errorf("posfeed.regions cannot be empty")
	}
	if c.Models.ServiceURL == "" {
		return fmt.Errorf("models.service_url is required")
	}
	return nil
}
