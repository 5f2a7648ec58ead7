package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type BrokerConfig struct {
	Name           string        `yaml:"name"`
	Type           string        `yaml:"type"` // sim | http
	BaseURL        string        `yaml:"base_url"`
	APIKey         string        `yaml:"api_key"`
	Timeout        time.Duration `yaml:"timeout"`
	PaperFallback  bool          `yaml:"paper_fallback"`
	PaperCash      float64       `yaml:"paper_cash"`
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
	Pipeline struct {
		RetryLimit int    `yaml:"retry_limit"`
		RuleSet    string `yaml:"rule_set"`
	} `yaml:"pipeline"`
	Collector struct {
		Interval time.Duration `yaml:"interval"`
	} `yaml:"collector"`
	Alerts struct {
		ProcessingTimeMS    float64       `yaml:"processing_time_ms"`
		ErrorRate           float64       `yaml:"error_rate"`
		QueueDepth          int           `yaml:"queue_depth"`
		MemoryUsage         float64       `yaml:"memory_usage"`
		CPUUsage            float64       `yaml:"cpu_usage"`
		ConsecutiveFailures int           `yaml:"consecutive_failures"`
		SuppressionWindow   time.Duration `yaml:"suppression_window"`
		EscalationWindow    time.Duration `yaml:"escalation_window"`
		EscalationInterval  time.Duration `yaml:"escalation_interval"`
	} `yaml:"alerts"`
	Broadcast struct {
		Mode string `yaml:"mode"` // ws | redis | both | none
	} `yaml:"broadcast"`
	Analytics struct {
		EnrichmentURL string        `yaml:"enrichment_url"`
		DecisionURL   string        `yaml:"decision_url"`
		Timeout       time.Duration `yaml:"timeout"`
	} `yaml:"analytics"`
	Brokers []BrokerConfig `yaml:"brokers"`
	Kafka   struct {
		Enabled         bool     `yaml:"enabled"`
		Brokers         []string `yaml:"brokers"`
		TradeTopic      string   `yaml:"trade_topic"`
		DeadLetterTopic string   `yaml:"dead_letter_topic"`
		RequiredAcks    int      `yaml:"required_acks"`
		Compression     string   `yaml:"compression"`
		Producer        struct {
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
		Table            string        `yaml:"table"`
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
	Redis struct {
		Enabled  bool   `yaml:"enabled"`
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
	} `yaml:"redis"`
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

	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = strings.Split(v, ",")
		c.Kafka.Enabled = true
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		c.Redis.Addr = v
		c.Redis.Enabled = true
	}
	if v := os.Getenv("CLICKHOUSE_HOST"); v != "" {
		c.ClickHouse.Host = v
		c.ClickHouse.Enabled = true
	}
	if v := os.Getenv("ENRICHMENT_URL"); v != "" {
		c.Analytics.EnrichmentURL = v
	}
	if v := os.Getenv("DECISION_URL"); v != "" {
		c.Analytics.DecisionURL = v
	}

	return c, nil
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Environment == "" {
		return fmt.Errorf("environment is required")
	}
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port is required")
	}
	if c.Pipeline.RetryLimit < 0 {
		return fmt.Errorf("pipeline.retry_limit cannot be negative")
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka.brokers cannot be empty when kafka is enabled")
	}
	if c.ClickHouse.Enabled && c.ClickHouse.Host == "" {
		return fmt.Errorf("clickhouse.host is required when clickhouse is enabled")
	}
	if c.Redis.Enabled && c.Redis.Addr == "" {
		return fmt.Errorf("redis.addr is required when redis is enabled")
	}
	for i, b := range c.Brokers {
		if b.Name == "" {
			return fmt.Errorf("brokers[%d].name is required", i)
		}
		if b.Type != "sim" && b.Type != "http" {
			return fmt.Errorf("brokers[%d].type must be 'sim' or 'http', got '%s'", i, b.Type)
		}
		if b.Type == "http" && b.BaseURL == "" {
			return fmt.Errorf("brokers[%d].base_url is required for http brokers", i)
		}
	}
	switch c.Broadcast.Mode {
	case "", "ws", "redis", "both", "none":
	default:
		return fmt.Errorf("broadcast.mode must be one of ws, redis, both, none")
	}
	return nil
}
