package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the full dispatch configuration
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Log       LogConfig       `yaml:"log"`
	Database  DatabaseConfig  `yaml:"database"`
	Kafka     KafkaConfig     `yaml:"kafka"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Delivery  DeliveryConfig  `yaml:"delivery"`
	Cleanup   CleanupConfig   `yaml:"cleanup"`
	Dedup     DedupConfig     `yaml:"dedup"`
}

// ServerConfig configures the REST API listener
type ServerConfig struct {
	Addr       string `yaml:"addr"`
	AdminToken string `yaml:"admin_token"`
}

// LogConfig configures logging output
type LogConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

// DatabaseConfig configures the Postgres event store
type DatabaseConfig struct {
	DSN               string `yaml:"dsn"`
	MaxConns          int    `yaml:"max_conns"`
	PartitionHorizon  int    `yaml:"partition_horizon_days"`
	ConnectTimeoutSec int    `yaml:"connect_timeout_sec"`
}

// KafkaConfig configures the ingestion buffer
type KafkaConfig struct {
	Brokers             []string `yaml:"brokers"`
	IngestionTopic      string   `yaml:"ingestion_topic"`
	DLQTopic            string   `yaml:"dlq_topic"`
	ConsumerGroup       string   `yaml:"consumer_group"`
	IngestionPartitions int      `yaml:"ingestion_partitions"`
	ConsumerConcurrency int      `yaml:"consumer_concurrency"`
}

// SchedulerConfig configures the lease poller
type SchedulerConfig struct {
	PollIntervalMs    int `yaml:"poll_interval_ms"`
	BatchSize         int `yaml:"batch_size"`
	LeaseDurationMin  int `yaml:"lease_duration_min"`
	MaxRetriesDefault int `yaml:"max_retries_default"`
}

// DeliveryConfig configures the HTTP delivery client
type DeliveryConfig struct {
	HTTPConnectTimeoutMs int `yaml:"http_connect_timeout_ms"`
	HTTPReadTimeoutMs    int `yaml:"http_read_timeout_ms"`
}

// CleanupConfig configures the retention loop
type CleanupConfig struct {
	RetentionDays int    `yaml:"retention_days"`
	BatchSize     int    `yaml:"cleanup_batch_size"`
	Cron          string `yaml:"cleanup_cron"`
}

// DedupConfig configures the two-tier deduplicator
type DedupConfig struct {
	LRUSize int `yaml:"dedup_lru_size"`
}

// Default returns a config populated with documented defaults
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Addr: ":8080",
		},
		Log: LogConfig{
			Level: "info",
			JSON:  true,
		},
		Database: DatabaseConfig{
			MaxConns:          50,
			PartitionHorizon:  40,
			ConnectTimeoutSec: 30,
		},
		Kafka: KafkaConfig{
			IngestionTopic:      "dispatch.events.ingestion",
			DLQTopic:            "dispatch.events.dlq",
			ConsumerGroup:       "dispatch-persister",
			IngestionPartitions: 24,
			ConsumerConcurrency: 10,
		},
		Scheduler: SchedulerConfig{
			PollIntervalMs:    1000,
			BatchSize:         100,
			LeaseDurationMin:  5,
			MaxRetriesDefault: 3,
		},
		Delivery: DeliveryConfig{
			HTTPConnectTimeoutMs: 5000,
			HTTPReadTimeoutMs:    30000,
		},
		Cleanup: CleanupConfig{
			RetentionDays: 7,
			BatchSize:     10000,
			Cron:          "0 0 2 * * *",
		},
		Dedup: DedupConfig{
			LRUSize: 100000,
		},
	}
}

// Load reads configuration from a YAML file, applies environment overrides
// and validates the result. An empty path loads defaults plus environment.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv overrides secrets and endpoints from the environment so they can
// be injected without writing them into the config file.
func (c *Config) applyEnv() {
	if v := os.Getenv("DISPATCH_DATABASE_DSN"); v != "" {
		c.Database.DSN = v
	}
	if v := os.Getenv("DISPATCH_KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("DISPATCH_ADMIN_TOKEN"); v != "" {
		c.Server.AdminToken = v
	}
	if v := os.Getenv("DISPATCH_LISTEN_ADDR"); v != "" {
		c.Server.Addr = v
	}
}

// Validate checks the configuration for fatal startup errors
func (c *Config) Validate() error {
	if c.Database.DSN == "" {
		return fmt.Errorf("database.dsn is required (or DISPATCH_DATABASE_DSN)")
	}
	if len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka.brokers is required (or DISPATCH_KAFKA_BROKERS)")
	}
	if c.Scheduler.PollIntervalMs <= 0 {
		return fmt.Errorf("scheduler.poll_interval_ms must be positive")
	}
	if c.Scheduler.BatchSize <= 0 {
		return fmt.Errorf("scheduler.batch_size must be positive")
	}
	if c.Scheduler.LeaseDurationMin <= 0 {
		return fmt.Errorf("scheduler.lease_duration_min must be positive")
	}
	if c.Scheduler.MaxRetriesDefault < 0 || c.Scheduler.MaxRetriesDefault > 10 {
		return fmt.Errorf("scheduler.max_retries_default must be between 0 and 10")
	}
	if c.Cleanup.RetentionDays <= 0 {
		return fmt.Errorf("cleanup.retention_days must be positive")
	}
	if c.Cleanup.BatchSize <= 0 {
		return fmt.Errorf("cleanup.cleanup_batch_size must be positive")
	}
	if c.Kafka.ConsumerConcurrency <= 0 {
		return fmt.Errorf("kafka.consumer_concurrency must be positive")
	}
	if c.Dedup.LRUSize <= 0 {
		return fmt.Errorf("dedup.dedup_lru_size must be positive")
	}
	return nil
}

// PollInterval returns the poller tick interval
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Scheduler.PollIntervalMs) * time.Millisecond
}

// LeaseDuration returns the lease TTL
func (c *Config) LeaseDuration() time.Duration {
	return time.Duration(c.Scheduler.LeaseDurationMin) * time.Minute
}

// HTTPConnectTimeout returns the delivery client connect timeout
func (c *Config) HTTPConnectTimeout() time.Duration {
	return time.Duration(c.Delivery.HTTPConnectTimeoutMs) * time.Millisecond
}

// HTTPReadTimeout returns the delivery client read timeout
func (c *Config) HTTPReadTimeout() time.Duration {
	return time.Duration(c.Delivery.HTTPReadTimeoutMs) * time.Millisecond
}
