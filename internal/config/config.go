// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

// Package config loads the editorial service configuration from EDITORIAL_*
// environment variables.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"

	"github.com/olegiv/ocms-editorial/internal/cache"
	"github.com/olegiv/ocms-editorial/internal/history"
	"github.com/olegiv/ocms-editorial/internal/logging"
	"github.com/olegiv/ocms-editorial/internal/promotion"
	"github.com/olegiv/ocms-editorial/internal/scheduler"
	"github.com/olegiv/ocms-editorial/internal/store"
	"github.com/olegiv/ocms-editorial/internal/webhook"
)

// knownWeakTokens contains example tokens that must be rejected in production.
var knownWeakTokens = []string{
	"change-me-to-a-long-random-token!",
	"REPLACE_WITH_YOUR_OWN_API_TOKEN!!",
}

// MinAPITokenLength is the minimum API token length accepted in production.
const MinAPITokenLength = 32

// MaxBatchSize caps EDITORIAL_SCHEDULER_BATCH_SIZE.
const MaxBatchSize = 1000

// Config holds the application configuration loaded from environment variables.
type Config struct {
	Env        string `env:"EDITORIAL_ENV" envDefault:"development"`
	LogLevel   string `env:"EDITORIAL_LOG_LEVEL" envDefault:"info"`
	ServerHost string `env:"EDITORIAL_SERVER_HOST" envDefault:"localhost"`
	ServerPort int    `env:"EDITORIAL_SERVER_PORT" envDefault:"8080"`

	// Database
	DBDriver string `env:"EDITORIAL_DB_DRIVER" envDefault:"sqlite"`
	DBDSN    string `env:"EDITORIAL_DB_DSN" envDefault:"./data/editorial.db"`

	// StorageTimeout bounds every storage call.
	StorageTimeout time.Duration `env:"EDITORIAL_STORAGE_TIMEOUT" envDefault:"5s"`

	// Scheduled publish executor
	SchedulerEnabled   bool          `env:"EDITORIAL_SCHEDULER_ENABLED" envDefault:"true"`
	SchedulerInterval  time.Duration `env:"EDITORIAL_SCHEDULER_INTERVAL" envDefault:"60s"`
	SchedulerBatchSize int           `env:"EDITORIAL_SCHEDULER_BATCH_SIZE" envDefault:"100"`
	SchedulerLockPath  string        `env:"EDITORIAL_SCHEDULER_LOCK_PATH"`
	EventRetention     time.Duration `env:"EDITORIAL_EVENT_RETENTION" envDefault:"720h"`

	// History append retry budget
	HistoryMaxRetries     uint64        `env:"EDITORIAL_HISTORY_MAX_RETRIES" envDefault:"5"`
	HistoryInitialBackoff time.Duration `env:"EDITORIAL_HISTORY_INITIAL_BACKOFF" envDefault:"50ms"`
	HistoryMaxBackoff     time.Duration `env:"EDITORIAL_HISTORY_MAX_BACKOFF" envDefault:"2s"`

	// Promotion slots
	FeaturedLimit  int           `env:"EDITORIAL_SLOT_FEATURED_LIMIT" envDefault:"6"`
	PinnedLimit    int           `env:"EDITORIAL_SLOT_PINNED_LIMIT" envDefault:"3"`
	TrendingLimit  int           `env:"EDITORIAL_SLOT_TRENDING_LIMIT" envDefault:"10"`
	SponsoredLimit int           `env:"EDITORIAL_SLOT_SPONSORED_LIMIT" envDefault:"4"`
	BoostedLimit   int           `env:"EDITORIAL_SLOT_BOOSTED_LIMIT" envDefault:"10"`
	SlotCacheTTL   time.Duration `env:"EDITORIAL_SLOT_CACHE_TTL" envDefault:"60s"`

	// Cache configuration
	RedisURL     string `env:"EDITORIAL_REDIS_URL"`                            // Optional Redis URL for a shared slot cache
	CachePrefix  string `env:"EDITORIAL_CACHE_PREFIX" envDefault:"editorial:"` // Redis key prefix
	CacheMaxSize int    `env:"EDITORIAL_CACHE_MAX_SIZE" envDefault:"10000"`    // Max memory cache entries

	// API
	APIToken       string        `env:"EDITORIAL_API_TOKEN"`
	RequestTimeout time.Duration `env:"EDITORIAL_REQUEST_TIMEOUT" envDefault:"30s"`
	APIRateLimit   float64       `env:"EDITORIAL_API_RATE_LIMIT" envDefault:"20"` // requests per second per actor, 0 disables
	APIRateBurst   int           `env:"EDITORIAL_API_RATE_BURST" envDefault:"40"`

	// Outbound webhooks
	WebhookEndpoints    string `env:"EDITORIAL_WEBHOOK_ENDPOINTS"` // JSON array of endpoints
	WebhookWorkers      int    `env:"EDITORIAL_WEBHOOK_WORKERS" envDefault:"3"`
	WebhookMaxAttempts  int    `env:"EDITORIAL_WEBHOOK_MAX_ATTEMPTS" envDefault:"5"`
	WebhookAllowPrivate bool   `env:"EDITORIAL_WEBHOOK_ALLOW_PRIVATE" envDefault:"false"`

	webhookEndpoints []webhook.Endpoint
}

// IsDevelopment returns true if the application is running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

// ServerAddr returns the full server address in host:port format.
func (c *Config) ServerAddr() string {
	return fmt.Sprintf("%s:%d", c.ServerHost, c.ServerPort)
}

// UseRedisCache returns true if Redis caching is configured.
func (c *Config) UseRedisCache() bool {
	return c.RedisURL != ""
}

// SlogLevel maps LogLevel to a slog level. Unknown values map to info.
func (c *Config) SlogLevel() slog.Level {
	return logging.ParseLevel(c.LogLevel)
}

// DBConfig returns the database settings.
func (c *Config) DBConfig() store.DBConfig {
	cfg := store.DefaultDBConfig(c.DBDSN)
	cfg.Driver = c.DBDriver
	return cfg
}

// HistoryRetry returns the history append retry budget.
func (c *Config) HistoryRetry() history.RetryConfig {
	return history.RetryConfig{
		MaxRetries:     c.HistoryMaxRetries,
		InitialBackoff: c.HistoryInitialBackoff,
		MaxBackoff:     c.HistoryMaxBackoff,
		AttemptTimeout: c.StorageTimeout,
	}
}

// SchedulerConfig returns the executor settings.
func (c *Config) SchedulerConfig() scheduler.Config {
	return scheduler.Config{
		Interval:       c.SchedulerInterval,
		BatchSize:      c.SchedulerBatchSize,
		StorageTimeout: c.StorageTimeout,
		History:        c.HistoryRetry(),
		EventRetention: c.EventRetention,
	}
}

// PromotionConfig returns the slot engine settings.
func (c *Config) PromotionConfig() promotion.Config {
	cfg := promotion.DefaultConfig()
	cfg.DefaultLimits = map[promotion.Slot]int{
		promotion.SlotFeatured:  c.FeaturedLimit,
		promotion.SlotPinned:    c.PinnedLimit,
		promotion.SlotTrending:  c.TrendingLimit,
		promotion.SlotSponsored: c.SponsoredLimit,
		promotion.SlotBoosted:   c.BoostedLimit,
	}
	cfg.CacheTTL = c.SlotCacheTTL
	cfg.QueryTimeout = c.StorageTimeout
	return cfg
}

// CacheConfig returns the slot cache settings.
func (c *Config) CacheConfig() cache.Config {
	return cache.Config{
		RedisURL:        c.RedisURL,
		Prefix:          c.CachePrefix,
		DefaultTTL:      c.SlotCacheTTL,
		MaxSize:         c.CacheMaxSize,
		CleanupInterval: 5 * time.Minute,
	}
}

// WebhookConfig returns the dispatcher settings.
func (c *Config) WebhookConfig() webhook.Config {
	cfg := webhook.DefaultConfig()
	cfg.Endpoints = c.webhookEndpoints
	cfg.Workers = c.WebhookWorkers
	cfg.MaxAttempts = c.WebhookMaxAttempts
	cfg.AllowPrivate = c.WebhookAllowPrivate
	return cfg
}

// Load parses environment variables and returns a validated Config.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	var errs []error

	switch c.DBDriver {
	case store.DriverSQLite, store.DriverMySQL:
	default:
		errs = append(errs, fmt.Errorf("EDITORIAL_DB_DRIVER must be %q or %q, got %q", store.DriverSQLite, store.DriverMySQL, c.DBDriver))
	}
	if strings.TrimSpace(c.DBDSN) == "" {
		errs = append(errs, errors.New("EDITORIAL_DB_DSN must not be empty"))
	}
	if c.StorageTimeout <= 0 {
		errs = append(errs, errors.New("EDITORIAL_STORAGE_TIMEOUT must be positive"))
	}
	if c.SchedulerInterval <= 0 {
		errs = append(errs, errors.New("EDITORIAL_SCHEDULER_INTERVAL must be positive"))
	}
	if c.SchedulerBatchSize < 1 || c.SchedulerBatchSize > MaxBatchSize {
		errs = append(errs, fmt.Errorf("EDITORIAL_SCHEDULER_BATCH_SIZE must be between 1 and %d, got %d", MaxBatchSize, c.SchedulerBatchSize))
	}
	if c.HistoryInitialBackoff <= 0 || c.HistoryMaxBackoff < c.HistoryInitialBackoff {
		errs = append(errs, errors.New("EDITORIAL_HISTORY_INITIAL_BACKOFF must be positive and not exceed EDITORIAL_HISTORY_MAX_BACKOFF"))
	}
	if c.SlotCacheTTL < 0 {
		errs = append(errs, errors.New("EDITORIAL_SLOT_CACHE_TTL must not be negative"))
	}

	limits := []struct {
		name  string
		value int
	}{
		{"EDITORIAL_SLOT_FEATURED_LIMIT", c.FeaturedLimit},
		{"EDITORIAL_SLOT_PINNED_LIMIT", c.PinnedLimit},
		{"EDITORIAL_SLOT_TRENDING_LIMIT", c.TrendingLimit},
		{"EDITORIAL_SLOT_SPONSORED_LIMIT", c.SponsoredLimit},
		{"EDITORIAL_SLOT_BOOSTED_LIMIT", c.BoostedLimit},
	}
	for _, l := range limits {
		if l.value < 1 || l.value > promotion.MaxLimit {
			errs = append(errs, fmt.Errorf("%s must be between 1 and %d, got %d", l.name, promotion.MaxLimit, l.value))
		}
	}

	if c.APIRateLimit < 0 || (c.APIRateLimit > 0 && c.APIRateBurst < 1) {
		errs = append(errs, errors.New("EDITORIAL_API_RATE_LIMIT must not be negative and EDITORIAL_API_RATE_BURST must be at least 1 when limiting"))
	}

	if c.WebhookWorkers < 1 {
		errs = append(errs, errors.New("EDITORIAL_WEBHOOK_WORKERS must be at least 1"))
	}
	if c.WebhookMaxAttempts < 1 {
		errs = append(errs, errors.New("EDITORIAL_WEBHOOK_MAX_ATTEMPTS must be at least 1"))
	}
	endpoints, err := webhook.ParseEndpoints(c.WebhookEndpoints)
	if err != nil {
		errs = append(errs, fmt.Errorf("EDITORIAL_WEBHOOK_ENDPOINTS: %w", err))
	} else {
		c.webhookEndpoints = endpoints
		if err := c.WebhookConfig().Validate(); err != nil {
			errs = append(errs, fmt.Errorf("EDITORIAL_WEBHOOK_ENDPOINTS: %w", err))
		}
	}

	if err := c.validateAPIToken(); err != nil {
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}

func (c *Config) validateAPIToken() error {
	if c.APIToken == "" {
		if !c.IsDevelopment() {
			return errors.New("EDITORIAL_API_TOKEN is required outside development; " +
				"generate one with: openssl rand -base64 32")
		}
		slog.Warn("EDITORIAL_API_TOKEN is not set; the API accepts unauthenticated requests")
		return nil
	}

	if len(c.APIToken) < MinAPITokenLength {
		return fmt.Errorf("EDITORIAL_API_TOKEN must be at least %d bytes long, got %d bytes; "+
			"generate a secure token with: openssl rand -base64 32",
			MinAPITokenLength, len(c.APIToken))
	}

	for _, weak := range knownWeakTokens {
		if c.APIToken == weak {
			return errors.New("EDITORIAL_API_TOKEN is a known example value and must not be used; " +
				"generate a secure token with: openssl rand -base64 32")
		}
	}

	if !hasMinimumEntropy(c.APIToken) {
		slog.Warn("EDITORIAL_API_TOKEN has low character diversity; " +
			"consider generating a random token with: openssl rand -base64 32")
	}
	return nil
}

// hasMinimumEntropy checks that a secret contains at least 3 character classes
// (lowercase, uppercase, digits, special characters).
func hasMinimumEntropy(s string) bool {
	charTypes := 0
	if strings.ContainsAny(s, "abcdefghijklmnopqrstuvwxyz") {
		charTypes++
	}
	if strings.ContainsAny(s, "ABCDEFGHIJKLMNOPQRSTUVWXYZ") {
		charTypes++
	}
	if strings.ContainsAny(s, "0123456789") {
		charTypes++
	}
	if strings.ContainsAny(s, "!@#$%^&*()-_=+[]{}|;:,.<>?/~`'\"\\") {
		charTypes++
	}
	return charTypes >= 3
}
