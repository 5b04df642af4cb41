package config

import (
	"os"

	"gopkg.in/yaml.v3"
)

var GlobalConfig *Config

// Config global configuration
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Redis    RedisConfig    `yaml:"redis"`
	Queue    QueueConfig    `yaml:"queue"`
	Cache    CacheConfig    `yaml:"cache"`
	Recovery RecoveryConfig `yaml:"recovery"`
	Monitor  MonitorConfig  `yaml:"monitor"`
	Logger   LoggerConfig   `yaml:"logger"`

	Notification NotificationConfig `yaml:"notification"`
}

// NotificationConfig alerting configuration
type NotificationConfig struct {
	FeishuWebhookURL string `yaml:"feishu_webhook_url"` // empty disables alerts
}

// ServerConfig server configuration
type ServerConfig struct {
	Port   int    `yaml:"port"`
	Mode   string `yaml:"mode"`    // debug, release
	APIKey string `yaml:"api_key"` // API key for operator endpoints (optional, if empty, auth is disabled)
}

// RedisConfig Redis configuration
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// QueueConfig broker configuration
type QueueConfig struct {
	Concurrency int            `yaml:"concurrency"`  // worker concurrency
	MaxRetry    int            `yaml:"max_retry"`    // maximum retry count per task
	TaskTimeout int            `yaml:"task_timeout"` // task timeout (seconds)
	Queues      map[string]int `yaml:"queues"`       // queue name -> priority weight
}

// CacheConfig result cache configuration
type CacheConfig struct {
	DefaultTTL      int `yaml:"default_ttl"`       // in-flight record TTL (seconds)
	CompletedTTL    int `yaml:"completed_ttl"`     // finalized record TTL (seconds)
	FailureTTL      int `yaml:"failure_ttl"`       // failure record TTL (seconds)
	StatsSampleSize int `yaml:"stats_sample_size"` // recent-results sample for the status histogram
	CleanupInterval int `yaml:"cleanup_interval"`  // index cleanup job interval (seconds)
}

// RecoveryConfig failure recovery configuration
type RecoveryConfig struct {
	MaxRetries int `yaml:"max_retries"` // fallback max retries when the broker signal does not carry one
}

// MonitorConfig metrics monitor configuration
type MonitorConfig struct {
	SampleLimit    int `yaml:"sample_limit"`    // bounded recent-results sample for windowed metrics
	StreamInterval int `yaml:"stream_interval"` // websocket report push interval (seconds)
}

// LoggerConfig logger configuration
type LoggerConfig struct {
	Level  string           `yaml:"level"`  // debug, info, warn, error
	Output string           `yaml:"output"` // console, file, both
	File   LoggerFileConfig `yaml:"file"`
}

// LoggerFileConfig logger file configuration
type LoggerFileConfig struct {
	Path string `yaml:"path"`
}

// Init initializes configuration
func Init() error {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config/config.yaml"
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return err
	}

	cfg.ApplyDefaults()
	GlobalConfig = &cfg
	return nil
}

// ApplyDefaults fills zero-valued fields with operational defaults.
func (c *Config) ApplyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.Mode == "" {
		c.Server.Mode = "release"
	}
	if c.Queue.Concurrency == 0 {
		c.Queue.Concurrency = 10
	}
	if c.Queue.MaxRetry == 0 {
		c.Queue.MaxRetry = 3
	}
	if c.Queue.TaskTimeout == 0 {
		c.Queue.TaskTimeout = 600
	}
	if len(c.Queue.Queues) == 0 {
		c.Queue.Queues = map[string]int{"default": 10}
	}
	if c.Cache.DefaultTTL == 0 {
		c.Cache.DefaultTTL = 3600
	}
	if c.Cache.CompletedTTL == 0 {
		c.Cache.CompletedTTL = 7200
	}
	if c.Cache.FailureTTL == 0 {
		c.Cache.FailureTTL = 86400
	}
	if c.Cache.StatsSampleSize == 0 {
		c.Cache.StatsSampleSize = 100
	}
	if c.Cache.CleanupInterval == 0 {
		c.Cache.CleanupInterval = 600
	}
	if c.Recovery.MaxRetries == 0 {
		c.Recovery.MaxRetries = 3
	}
	if c.Monitor.SampleLimit == 0 {
		c.Monitor.SampleLimit = 10000
	}
	if c.Monitor.StreamInterval == 0 {
		c.Monitor.StreamInterval = 15
	}
}
