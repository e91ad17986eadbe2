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
		CORSOrigins     []string      `yaml:"cors_origins"`
	} `yaml:"server"`
	Metrics struct {
		Enabled bool   `yaml:"enabled"`
		Path    string `yaml:"path"`
	} `yaml:"metrics"`
	Evaluation struct {
		WinThreshold   float64       `yaml:"win_threshold"`  // fraction, default 0.015
		LossThreshold  float64       `yaml:"loss_threshold"` // fraction, default 0.010
		DefaultHorizon time.Duration `yaml:"default_horizon"`
		DeadlineGrace  time.Duration `yaml:"deadline_grace"`
		SweepInterval  time.Duration `yaml:"sweep_interval"`
		HistorySize    int           `yaml:"history_size"`
	} `yaml:"evaluation"`
	Ledger struct {
		BlockThreshold    int           `yaml:"block_threshold"`
		HighRiskThreshold int           `yaml:"high_risk_threshold"`
		HighRiskPenalty   float64       `yaml:"high_risk_penalty"`
		PatternExpiry     time.Duration `yaml:"pattern_expiry"`
	} `yaml:"ledger"`
	Learning struct {
		Interval time.Duration `yaml:"interval"`
		CacheTTL time.Duration `yaml:"cache_ttl"`
	} `yaml:"learning"`
	RateLimit struct {
		RegistrationsPerMinute float64 `yaml:"registrations_per_minute"`
	} `yaml:"ratelimit"`
	Feed struct {
		Type           string        `yaml:"type"` // "websocket" or "kafka"
		APIKey         string        `yaml:"api_key"`
		WebSocketURL   string        `yaml:"websocket_url"`
		Instruments    []string      `yaml:"instruments"`
		Granularity    int           `yaml:"granularity"` // candle seconds
		ReconnectDelay time.Duration `yaml:"reconnect_delay"`
		PingInterval   time.Duration `yaml:"ping_interval"`
	} `yaml:"feed"`
	Dispatch struct {
		QueueSize  int           `yaml:"queue_size"`
		RetryLimit int           `yaml:"retry_limit"`
		RetryDelay time.Duration `yaml:"retry_delay"`
		WebhookURL string        `yaml:"webhook_url"`
	} `yaml:"dispatch"`
	Kafka struct {
		Brokers      []string `yaml:"brokers"`
		OutcomeTopic string   `yaml:"outcome_topic"`
		BarsTopic    string   `yaml:"bars_topic"`
		LogsTopic    string   `yaml:"logs_topic"`
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
	c.applyDefaults()

	// Validate required fields
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

	// Override with environment variables
	if v := os.Getenv("FEED_API_KEY"); v != "" {
		c.Feed.APIKey = v
	}
	if v := os.Getenv("INSTRUMENTS"); v != "" {
		c.Feed.Instruments = strings.Split(v, ",")
	}
	if v := os.Getenv("FEED_TYPE"); v != "" {
		c.Feed.Type = v
	}
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("KAFKA_OUTCOME_TOPIC"); v != "" {
		c.Kafka.OutcomeTopic = v
	}

	return c, nil
}

// applyDefaults fills the documented policy defaults for zero values.
func (c *Config) applyDefaults() {
	if len(c.Server.CORSOrigins) == 0 {
		c.Server.CORSOrigins = []string{"*"}
	}
	if c.Evaluation.WinThreshold == 0 {
		c.Evaluation.WinThreshold = 0.015
	}
	if c.Evaluation.LossThreshold == 0 {
		c.Evaluation.LossThreshold = 0.010
	}
	if c.Evaluation.DefaultHorizon == 0 {
		c.Evaluation.DefaultHorizon = 5 * time.Minute
	}
	if c.Evaluation.SweepInterval == 0 {
		c.Evaluation.SweepInterval = 5 * time.Second
	}
	if c.Evaluation.HistorySize == 0 {
		c.Evaluation.HistorySize = 200
	}
	if c.Ledger.BlockThreshold == 0 {
		c.Ledger.BlockThreshold = 3
	}
	if c.Ledger.HighRiskThreshold == 0 {
		c.Ledger.HighRiskThreshold = 2
	}
	if c.Ledger.HighRiskPenalty == 0 {
		c.Ledger.HighRiskPenalty = 0.40
	}
	if c.Ledger.PatternExpiry == 0 {
		c.Ledger.PatternExpiry = 24 * time.Hour
	}
	if c.Learning.Interval == 0 {
		c.Learning.Interval = 30 * time.Second
	}
	if c.RateLimit.RegistrationsPerMinute == 0 {
		c.RateLimit.RegistrationsPerMinute = 10
	}
	if c.Dispatch.QueueSize == 0 {
		c.Dispatch.QueueSize = 1024
	}
	if c.Kafka.OutcomeTopic == "" {
		c.Kafka.OutcomeTopic = "pulsedeck.outcomes"
	}
	if c.Kafka.BarsTopic == "" {
		c.Kafka.BarsTopic = "pulsedeck.bars"
	}
	if c.Kafka.LogsTopic == "" {
		c.Kafka.LogsTopic = "pulsedeck.logs"
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Environment == "" {
		return fmt.Errorf("environment is required")
	}
	if c.Feed.Type != "websocket" && c.Feed.Type != "kafka" {
		return fmt.Errorf("feed.type must be 'websocket' or 'kafka', got '%s'", c.Feed.Type)
	}
	if c.Feed.Type == "websocket" {
		if len(c.Feed.Instruments) == 0 {
			return fmt.Errorf("feed.instruments cannot be empty")
		}
		if c.Feed.WebSocketURL == "" {
			return fmt.Errorf("feed.websocket_url is required")
		}
	}
	if c.Feed.Type == "kafka" && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka.brokers required for kafka feed")
	}
	if c.Evaluation.WinThreshold <= 0 || c.Evaluation.LossThreshold <= 0 {
		return fmt.Errorf("evaluation thresholds must be positive")
	}
	return nil
}
