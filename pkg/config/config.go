package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration options for the timeline crawler
type Config struct {
	// Platform credentials and request headers
	Twitter TwitterConfig `yaml:"twitter" json:"twitter"`

	// Request gate and retry configuration
	RateLimit RateLimitConfig `yaml:"rate_limit" json:"rate_limit"`

	// Timeline crawl settings
	Crawl CrawlConfig `yaml:"crawl" json:"crawl"`

	// Subscription lifecycle settings
	Subscription SubscriptionConfig `yaml:"subscription" json:"subscription"`

	// Backing services
	Database DatabaseConfig `yaml:"database" json:"database"`
	Redis    RedisConfig    `yaml:"redis" json:"redis"`
	Kafka    KafkaConfig    `yaml:"kafka" json:"kafka"`

	// Retained asset storage
	Storage StorageConfig `yaml:"storage" json:"storage"`

	// Job scheduling
	Jobs JobsConfig `yaml:"jobs" json:"jobs"`

	// Metrics endpoint
	Metrics MetricsConfig `yaml:"metrics" json:"metrics"`

	// Logging configuration
	Logging LoggingConfig `yaml:"logging" json:"logging"`
}

// TwitterConfig holds the fixed credential and header set forwarded with every request
type TwitterConfig struct {
	AuthToken   string `yaml:"auth_token" json:"auth_token"`
	CSRFToken   string `yaml:"csrf_token" json:"csrf_token"`
	BearerToken string `yaml:"bearer_token" json:"bearer_token"`
	UserAgent   string `yaml:"user_agent" json:"user_agent"`
	BaseURL     string `yaml:"base_url" json:"base_url"`
	Account     string `yaml:"account" json:"account"`
}

// RateLimitConfig holds request gate and retry configuration
type RateLimitConfig struct {
	MinInterval         time.Duration `yaml:"min_interval" json:"min_interval"`
	RequestTimeout      time.Duration `yaml:"request_timeout" json:"request_timeout"`
	NetworkRetries      int           `yaml:"network_retries" json:"network_retries"`
	NetworkRetryDelay   time.Duration `yaml:"network_retry_delay" json:"network_retry_delay"`
	RateLimitCooldown   time.Duration `yaml:"rate_limit_cooldown" json:"rate_limit_cooldown"`
	MaxCooldowns        int           `yaml:"max_cooldowns" json:"max_cooldowns"`
	ServerErrorCooldown time.Duration `yaml:"server_error_cooldown" json:"server_error_cooldown"`
	ServerRetries       int           `yaml:"server_retries" json:"server_retries"`
	TimestampBackend    string        `yaml:"timestamp_backend" json:"timestamp_backend"`
}

// CrawlConfig holds timeline crawl settings
type CrawlConfig struct {
	MediaPageSize          int           `yaml:"media_page_size" json:"media_page_size"`
	MediaPageSizeWithFloor int           `yaml:"media_page_size_with_floor" json:"media_page_size_with_floor"`
	SearchPageSize         int           `yaml:"search_page_size" json:"search_page_size"`
	CheckpointBackend      string        `yaml:"checkpoint_backend" json:"checkpoint_backend"`
	CheckpointDir          string        `yaml:"checkpoint_dir" json:"checkpoint_dir"`
	EntityCacheBackend     string        `yaml:"entity_cache_backend" json:"entity_cache_backend"`
	EntityCacheTTL         time.Duration `yaml:"entity_cache_ttl" json:"entity_cache_ttl"`
}

// SubscriptionConfig holds subscription lifecycle settings
type SubscriptionConfig struct {
	ExpirationDays  int           `yaml:"expiration_days" json:"expiration_days"`
	UnlinkGraceDays int           `yaml:"unlink_grace_days" json:"unlink_grace_days"`
	SweepPageSize   int           `yaml:"sweep_page_size" json:"sweep_page_size"`
	SweepMaxPages   int           `yaml:"sweep_max_pages" json:"sweep_max_pages"`
	ExpiredAction   string        `yaml:"expired_action" json:"expired_action"`
	RequeryInterval time.Duration `yaml:"requery_interval" json:"requery_interval"`
}

// DatabaseConfig holds PostgreSQL settings
type DatabaseConfig struct {
	DSN            string `yaml:"dsn" json:"dsn"`
	MaxConns       int32  `yaml:"max_conns" json:"max_conns"`
	MigrateOnStart bool   `yaml:"migrate_on_start" json:"migrate_on_start"`
}

// RedisConfig holds Redis settings
type RedisConfig struct {
	Addr      string `yaml:"addr" json:"addr"`
	KeyPrefix string `yaml:"key_prefix" json:"key_prefix"`
}

// KafkaConfig holds crawl event publishing settings
type KafkaConfig struct {
	Enabled bool     `yaml:"enabled" json:"enabled"`
	Brokers []string `yaml:"brokers" json:"brokers"`
	Topic   string   `yaml:"topic" json:"topic"`
}

// StorageConfig holds retained asset directories
type StorageConfig struct {
	AssetRoot    string `yaml:"asset_root" json:"asset_root"`
	ArchiveDir   string `yaml:"archive_dir" json:"archive_dir"`
	SaveMetadata bool   `yaml:"save_metadata" json:"save_metadata"`
}

// JobsConfig holds worker pool settings
type JobsConfig struct {
	Workers      int           `yaml:"workers" json:"workers"`
	StartsPerMin int           `yaml:"starts_per_minute" json:"starts_per_minute"`
	SweepEvery   time.Duration `yaml:"sweep_every" json:"sweep_every"`
	SyncEvery    time.Duration `yaml:"sync_every" json:"sync_every"`
}

// MetricsConfig holds the metrics endpoint settings
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" json:"enabled"`
	Listen  string `yaml:"listen" json:"listen"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level string `yaml:"level" json:"level"`
	File  string `yaml:"file" json:"file"`
}

// Backend names shared by several sections
const (
	BackendMemory   = "memory"
	BackendFile     = "file"
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
)

// DefaultConfig returns a Config instance with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Twitter: TwitterConfig{
			UserAgent: "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/109.0.0.0 Safari/537.36",
			BaseURL:   "https://x.com",
		},
		RateLimit: RateLimitConfig{
			MinInterval:         time.Second,
			RequestTimeout:      10 * time.Second,
			NetworkRetries:      3,
			NetworkRetryDelay:   5 * time.Second,
			RateLimitCooldown:   5 * time.Minute,
			MaxCooldowns:        12,
			ServerErrorCooldown: 60 * time.Second,
			ServerRetries:       3,
			TimestampBackend:    BackendMemory,
		},
		Crawl: CrawlConfig{
			MediaPageSize:          100,
			MediaPageSizeWithFloor: 20,
			SearchPageSize:         100,
			CheckpointBackend:      BackendFile,
			EntityCacheBackend:     BackendMemory,
			EntityCacheTTL:         24 * time.Hour,
		},
		Subscription: SubscriptionConfig{
			ExpirationDays:  14,
			UnlinkGraceDays: 7,
			SweepPageSize:   50,
			SweepMaxPages:   10,
			ExpiredAction:   "unlink",
			RequeryInterval: 24 * time.Hour,
		},
		Database: DatabaseConfig{
			MaxConns: 8,
		},
		Redis: RedisConfig{
			KeyPrefix: "twscraper:",
		},
		Kafka: KafkaConfig{
			Topic: "twscraper.crawls",
		},
		Storage: StorageConfig{
			AssetRoot:    "./assets",
			SaveMetadata: true,
		},
		Jobs: JobsConfig{
			Workers:      2,
			StartsPerMin: 6,
			SweepEvery:   time.Hour,
			SyncEvery:    15 * time.Minute,
		},
		Metrics: MetricsConfig{
			Listen: ":9090",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// LoadFromEnv loads configuration from environment variables
func (c *Config) LoadFromEnv() error {
	var errs []error

	setString := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	setInt := func(key string, dst *int) {
		if v := os.Getenv(key); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = n
		}
	}
	setDuration := func(key string, dst *time.Duration) {
		if v := os.Getenv(key); v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = d
		}
	}

	// Credentials
	setString("TWSCRAPER_AUTH_TOKEN", &c.Twitter.AuthToken)
	setString("TWSCRAPER_CSRF_TOKEN", &c.Twitter.CSRFToken)
	setString("TWSCRAPER_BEARER_TOKEN", &c.Twitter.BearerToken)
	setString("TWSCRAPER_USER_AGENT", &c.Twitter.UserAgent)
	setString("TWSCRAPER_ACCOUNT", &c.Twitter.Account)

	// Request gate
	setDuration("TWSCRAPER_MIN_INTERVAL", &c.RateLimit.MinInterval)
	setString("TWSCRAPER_TIMESTAMP_BACKEND", &c.RateLimit.TimestampBackend)

	// Crawl
	setString("TWSCRAPER_CHECKPOINT_BACKEND", &c.Crawl.CheckpointBackend)
	setString("TWSCRAPER_CHECKPOINT_DIR", &c.Crawl.CheckpointDir)
	setString("TWSCRAPER_ENTITY_CACHE_BACKEND", &c.Crawl.EntityCacheBackend)

	// Subscriptions
	setInt("TWSCRAPER_EXPIRATION_DAYS", &c.Subscription.ExpirationDays)
	setInt("TWSCRAPER_SWEEP_PAGE_SIZE", &c.Subscription.SweepPageSize)
	setString("TWSCRAPER_EXPIRED_ACTION", &c.Subscription.ExpiredAction)

	// Backing services
	setString("TWSCRAPER_DATABASE_DSN", &c.Database.DSN)
	setString("TWSCRAPER_REDIS_ADDR", &c.Redis.Addr)
	if brokers := os.Getenv("TWSCRAPER_KAFKA_BROKERS"); brokers != "" {
		c.Kafka.Brokers = strings.Split(brokers, ",")
		c.Kafka.Enabled = true
	}
	setString("TWSCRAPER_KAFKA_TOPIC", &c.Kafka.Topic)

	// Storage
	setString("TWSCRAPER_ASSET_ROOT", &c.Storage.AssetRoot)

	// Jobs
	setInt("TWSCRAPER_WORKERS", &c.Jobs.Workers)

	// Metrics
	if listen := os.Getenv("TWSCRAPER_METRICS_LISTEN"); listen != "" {
		c.Metrics.Listen = listen
		c.Metrics.Enabled = true
	}

	// Logging level
	setString("TWSCRAPER_LOG_LEVEL", &c.Logging.Level)

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// LoadFromFile loads configuration from a YAML file
func (c *Config) LoadFromFile(path string) error {
	// If path is empty, try default locations
	if path == "" {
		path = c.findConfigFile()
		if path == "" {
			return nil // No config file found, not an error
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	return nil
}

// findConfigFile searches for config file in standard locations
func (c *Config) findConfigFile() string {
	home := os.Getenv("HOME")
	locations := []string{
		".twscraper.yaml",
		".twscraper.yml",
		filepath.Join(home, ".config", "twscraper", "config.yaml"),
		filepath.Join(home, ".config", "twscraper", "config.yml"),
		filepath.Join(home, ".twscraper.yaml"),
	}

	for _, loc := range locations {
		if _, err := os.Stat(loc); err == nil {
			return loc
		}
	}

	return ""
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	var errs []error

	// Request gate
	if c.RateLimit.MinInterval < 0 {
		errs = append(errs, errors.New("min interval cannot be negative"))
	}
	if c.RateLimit.RequestTimeout <= 0 {
		errs = append(errs, errors.New("request timeout must be positive"))
	}
	if c.RateLimit.NetworkRetries <= 0 {
		errs = append(errs, errors.New("network retries must be positive"))
	}
	if c.RateLimit.ServerRetries <= 0 {
		errs = append(errs, errors.New("server retries must be positive"))
	}
	if c.RateLimit.MaxCooldowns < 0 {
		errs = append(errs, errors.New("max cooldowns cannot be negative"))
	}
	if !oneOf(c.RateLimit.TimestampBackend, BackendMemory, BackendRedis, BackendPostgres) {
		errs = append(errs, fmt.Errorf("invalid timestamp backend %q", c.RateLimit.TimestampBackend))
	}

	// Crawl
	if c.Crawl.MediaPageSize <= 0 || c.Crawl.MediaPageSizeWithFloor <= 0 || c.Crawl.SearchPageSize <= 0 {
		errs = append(errs, errors.New("page sizes must be positive"))
	}
	if !oneOf(c.Crawl.CheckpointBackend, BackendMemory, BackendFile, BackendPostgres) {
		errs = append(errs, fmt.Errorf("invalid checkpoint backend %q", c.Crawl.CheckpointBackend))
	}
	if !oneOf(c.Crawl.EntityCacheBackend, BackendMemory, BackendRedis, BackendPostgres) {
		errs = append(errs, fmt.Errorf("invalid entity cache backend %q", c.Crawl.EntityCacheBackend))
	}

	// Subscriptions
	if c.Subscription.ExpirationDays <= 0 {
		errs = append(errs, errors.New("expiration days must be positive"))
	}
	if c.Subscription.UnlinkGraceDays < 0 {
		errs = append(errs, errors.New("unlink grace days cannot be negative"))
	}
	if c.Subscription.SweepPageSize <= 0 {
		errs = append(errs, errors.New("sweep page size must be positive"))
	}
	if c.Subscription.SweepMaxPages <= 0 {
		errs = append(errs, errors.New("sweep max pages must be positive"))
	}
	if !oneOf(c.Subscription.ExpiredAction, "unlink", "archive", "none") {
		errs = append(errs, fmt.Errorf("invalid expired action %q", c.Subscription.ExpiredAction))
	}

	// Backends that need a connection string
	needsDB := c.RateLimit.TimestampBackend == BackendPostgres ||
		c.Crawl.CheckpointBackend == BackendPostgres ||
		c.Crawl.EntityCacheBackend == BackendPostgres
	if needsDB && c.Database.DSN == "" {
		errs = append(errs, errors.New("database dsn is required for postgres backends"))
	}
	needsRedis := c.RateLimit.TimestampBackend == BackendRedis || c.Crawl.EntityCacheBackend == BackendRedis
	if needsRedis && c.Redis.Addr == "" {
		errs = append(errs, errors.New("redis addr is required for redis backends"))
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		errs = append(errs, errors.New("kafka brokers are required when kafka is enabled"))
	}

	// Jobs
	if c.Jobs.Workers <= 0 {
		errs = append(errs, errors.New("workers must be positive"))
	}
	if c.Jobs.Workers > 16 {
		errs = append(errs, errors.New("workers should not exceed 16"))
	}

	// Storage
	if c.Storage.AssetRoot == "" {
		errs = append(errs, errors.New("asset root is required"))
	}

	// Logging
	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLogLevels[strings.ToLower(c.Logging.Level)] {
		errs = append(errs, errors.New("invalid log level"))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	return nil
}

// ValidateCredentials checks that the fixed credential set is present
func (c *Config) ValidateCredentials() error {
	var errs []error
	if c.Twitter.AuthToken == "" {
		errs = append(errs, errors.New("auth token is required"))
	}
	if c.Twitter.CSRFToken == "" {
		errs = append(errs, errors.New("csrf token is required"))
	}
	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// Save saves the configuration to a file
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	// Create directory if it doesn't exist
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// MergeCommandLineFlags merges command line flags into the configuration
func (c *Config) MergeCommandLineFlags(flags map[string]interface{}) {
	if v, ok := flags["auth-token"].(string); ok && v != "" {
		c.Twitter.AuthToken = v
	}
	if v, ok := flags["csrf-token"].(string); ok && v != "" {
		c.Twitter.CSRFToken = v
	}
	if v, ok := flags["account"].(string); ok && v != "" {
		c.Twitter.Account = v
	}
	if v, ok := flags["database-dsn"].(string); ok && v != "" {
		c.Database.DSN = v
	}
	if v, ok := flags["redis-addr"].(string); ok && v != "" {
		c.Redis.Addr = v
	}
	if v, ok := flags["checkpoint-backend"].(string); ok && v != "" {
		c.Crawl.CheckpointBackend = v
	}
	if v, ok := flags["timestamp-backend"].(string); ok && v != "" {
		c.RateLimit.TimestampBackend = v
	}
	if v, ok := flags["asset-root"].(string); ok && v != "" {
		c.Storage.AssetRoot = v
	}
	if v, ok := flags["workers"].(int); ok && v > 0 {
		c.Jobs.Workers = v
	}
	if v, ok := flags["sweep-page-size"].(int); ok && v > 0 {
		c.Subscription.SweepPageSize = v
	}
	if v, ok := flags["log-level"].(string); ok && v != "" {
		c.Logging.Level = v
	}
}

// Load loads configuration from all sources with proper precedence
// Precedence order: Command line flags > Environment variables > .env file > Config file > Defaults
func Load(configPath string, flags map[string]interface{}) (*Config, error) {
	// Try to load .env files (don't fail if they don't exist)
	_ = godotenv.Load(".env")
	_ = godotenv.Load(filepath.Join(os.Getenv("HOME"), ".twscraper.env"))

	config := DefaultConfig()

	if err := config.LoadFromFile(configPath); err != nil {
		return nil, fmt.Errorf("failed to load config file: %w", err)
	}

	if err := config.LoadFromEnv(); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	config.MergeCommandLineFlags(flags)

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return config, nil
}

func oneOf(v string, options ...string) bool {
	for _, o := range options {
		if v == o {
			return true
		}
	}
	return false
}
