// Package config loads and validates service configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/permitdesk/permit-pipeline/internal/ai"
	"github.com/permitdesk/permit-pipeline/internal/breaker"
	"github.com/permitdesk/permit-pipeline/internal/fetch"
	"github.com/permitdesk/permit-pipeline/internal/pdf"
	"github.com/permitdesk/permit-pipeline/internal/pipeline"
	"github.com/permitdesk/permit-pipeline/internal/process"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server        ServerConfig      `mapstructure:"server"`
	HTTP          HTTPConfig        `mapstructure:"http"`
	Headless      HeadlessConfig    `mapstructure:"headless"`
	RateLimit     RateLimitConfig   `mapstructure:"rate_limit"`
	Breakers      BreakersConfig    `mapstructure:"breakers"`
	Caches        CachesConfig      `mapstructure:"caches"`
	AI            AIConfig          `mapstructure:"ai"`
	PDF           PDFConfig         `mapstructure:"pdf"`
	Integrator    IntegratorConfig  `mapstructure:"integrator"`
	Logging       LoggingConfig     `mapstructure:"logging"`
	Jurisdictions map[string]string `mapstructure:"jurisdictions"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// HTTPConfig configures outbound fetch retry behavior.
type HTTPConfig struct {
	UserAgent        string `mapstructure:"user_agent"`
	TimeoutSeconds   int    `mapstructure:"timeout_seconds"`
	MaxRetries       int    `mapstructure:"max_retries"`
	BackoffInitialMs int    `mapstructure:"backoff_initial_ms"`
	BackoffMaxMs     int    `mapstructure:"backoff_max_ms"`
	MaxBodyBytes     int    `mapstructure:"max_body_bytes"`
}

// HeadlessConfig configures the headless rendering subsystem.
type HeadlessConfig struct {
	Enabled         bool `mapstructure:"enabled"`
	MaxParallel     int  `mapstructure:"max_parallel"`
	NavTimeoutSec   int  `mapstructure:"nav_timeout_seconds"`
	PromotionThresh int  `mapstructure:"promotion_threshold"`
}

// RateLimitConfig bounds outbound scrape volume.
type RateLimitConfig struct {
	PerMinute   int     `mapstructure:"per_minute"`
	PerHour     int     `mapstructure:"per_hour"`
	DomainRPS   float64 `mapstructure:"domain_rps"`
	DomainBurst int     `mapstructure:"domain_burst"`
}

// BreakerConfig sets one circuit breaker's thresholds.
type BreakerConfig struct {
	FailureThreshold int `mapstructure:"failure_threshold"`
	ResetTimeoutSec  int `mapstructure:"reset_timeout_seconds"`
}

// BreakersConfig holds the per-dependency breaker settings.
type BreakersConfig struct {
	Jurisdiction BreakerConfig `mapstructure:"jurisdiction"`
	Scrape       BreakerConfig `mapstructure:"scrape"`
	AI           BreakerConfig `mapstructure:"ai"`
}

// CacheConfig sets one cache's TTL and capacity.
type CacheConfig struct {
	TTLSeconds int `mapstructure:"ttl_seconds"`
	MaxEntries int `mapstructure:"max_entries"`
}

// CachesConfig holds the per-cache settings.
type CachesConfig struct {
	Jurisdiction CacheConfig `mapstructure:"jurisdiction"`
	Validation   CacheConfig `mapstructure:"validation"`
	PermitData   CacheConfig `mapstructure:"permit_data"`
}

// AIConfig selects and credentials the supplementation backend. APIKey is
// opaque and never logged.
type AIConfig struct {
	Provider       string  `mapstructure:"provider"`
	APIKey         string  `mapstructure:"api_key"`
	Model          string  `mapstructure:"model"`
	BaseURL        string  `mapstructure:"base_url"`
	TimeoutSeconds int     `mapstructure:"timeout_seconds"`
	MaxTokens      int     `mapstructure:"max_tokens"`
	Temperature    float64 `mapstructure:"temperature"`
	MaxPromptHTML  int     `mapstructure:"max_prompt_html_bytes"`
}

// PDFConfig bounds PDF analysis.
type PDFConfig struct {
	MaxBytes int64 `mapstructure:"max_bytes"`
}

// IntegratorConfig points at the permitting-systems definition file.
type IntegratorConfig struct {
	SystemsFile string `mapstructure:"systems_file"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("PERMIT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("http.user_agent", "permit-pipeline/1.0")
	v.SetDefault("http.timeout_seconds", 30)
	v.SetDefault("http.max_retries", 3)
	v.SetDefault("http.backoff_initial_ms", 500)
	v.SetDefault("http.backoff_max_ms", 10000)
	v.SetDefault("http.max_body_bytes", 10<<20)
	v.SetDefault("headless.enabled", false)
	v.SetDefault("headless.max_parallel", 1)
	v.SetDefault("headless.nav_timeout_seconds", 45)
	v.SetDefault("headless.promotion_threshold", 400)
	v.SetDefault("rate_limit.per_minute", 30)
	v.SetDefault("rate_limit.per_hour", 500)
	v.SetDefault("rate_limit.domain_rps", 1)
	v.SetDefault("rate_limit.domain_burst", 2)
	v.SetDefault("breakers.jurisdiction.failure_threshold", 5)
	v.SetDefault("breakers.jurisdiction.reset_timeout_seconds", 60)
	v.SetDefault("breakers.scrape.failure_threshold", 5)
	v.SetDefault("breakers.scrape.reset_timeout_seconds", 30)
	v.SetDefault("breakers.ai.failure_threshold", 3)
	v.SetDefault("breakers.ai.reset_timeout_seconds", 120)
	v.SetDefault("caches.jurisdiction.ttl_seconds", 600)
	v.SetDefault("caches.jurisdiction.max_entries", 50)
	v.SetDefault("caches.validation.ttl_seconds", 300)
	v.SetDefault("caches.validation.max_entries", 200)
	v.SetDefault("caches.permit_data.ttl_seconds", 1800)
	v.SetDefault("caches.permit_data.max_entries", 100)
	v.SetDefault("ai.timeout_seconds", 30)
	v.SetDefault("ai.max_tokens", 2048)
	v.SetDefault("ai.max_prompt_html_bytes", 12000)
	v.SetDefault("pdf.max_bytes", 25<<20)
	v.SetDefault("logging.development", true)
}

// Validate rejects configurations no subsystem could run with.
func (c Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be 1-65535, got %d", c.Server.Port)
	}
	if c.HTTP.TimeoutSeconds <= 0 {
		return fmt.Errorf("http.timeout_seconds must be positive, got %d", c.HTTP.TimeoutSeconds)
	}
	if c.HTTP.MaxRetries < 0 {
		return fmt.Errorf("http.max_retries must be >= 0, got %d", c.HTTP.MaxRetries)
	}
	if c.Headless.Enabled && c.Headless.MaxParallel <= 0 {
		return fmt.Errorf("headless.max_parallel must be positive when headless.enabled")
	}
	if c.RateLimit.PerMinute <= 0 || c.RateLimit.PerHour <= 0 {
		return fmt.Errorf("rate_limit budgets must be positive")
	}
	switch c.AI.Provider {
	case "", "anthropic", "openai":
	default:
		return fmt.Errorf("ai.provider must be anthropic, openai, or empty, got %q", c.AI.Provider)
	}
	if c.AI.Provider != "" && c.AI.APIKey == "" {
		return fmt.Errorf("ai.api_key required when ai.provider is set")
	}
	return nil
}

// Pipeline converts the loaded knobs into the pipeline's config shape.
func (c Config) Pipeline() pipeline.Config {
	return pipeline.Config{
		Retry: fetch.RetryConfig{
			MaxRetries:     c.HTTP.MaxRetries,
			AttemptTimeout: time.Duration(c.HTTP.TimeoutSeconds) * time.Second,
			BaseDelay:      time.Duration(c.HTTP.BackoffInitialMs) * time.Millisecond,
			MaxDelay:       time.Duration(c.HTTP.BackoffMaxMs) * time.Millisecond,
			Multiplier:     2,
		},
		Static: fetch.StaticConfig{
			UserAgent:    c.HTTP.UserAgent,
			MaxBodyBytes: c.HTTP.MaxBodyBytes,
		},
		Headless: fetch.HeadlessConfig{
			MaxParallel:       c.Headless.MaxParallel,
			UserAgent:         c.HTTP.UserAgent,
			NavigationTimeout: time.Duration(c.Headless.NavTimeoutSec) * time.Second,
		},
		HeadlessEnabled:  c.Headless.Enabled,
		PromoteThreshold: c.Headless.PromotionThresh,

		ScrapePerMinute: c.RateLimit.PerMinute,
		ScrapePerHour:   c.RateLimit.PerHour,
		DomainRPS:       c.RateLimit.DomainRPS,
		DomainBurst:     c.RateLimit.DomainBurst,

		JurisdictionBreaker: c.Breakers.Jurisdiction.toBreaker("jurisdiction"),
		ScrapeBreaker:       c.Breakers.Scrape.toBreaker("scrape"),
		AIBreaker:           c.Breakers.AI.toBreaker("ai"),

		JurisdictionTTL:        time.Duration(c.Caches.Jurisdiction.TTLSeconds) * time.Second,
		JurisdictionMaxEntries: c.Caches.Jurisdiction.MaxEntries,
		ValidationTTL:          time.Duration(c.Caches.Validation.TTLSeconds) * time.Second,
		ValidationMaxEntries:   c.Caches.Validation.MaxEntries,
		DataTTL:                time.Duration(c.Caches.PermitData.TTLSeconds) * time.Second,
		DataMaxEntries:         c.Caches.PermitData.MaxEntries,

		AI: ai.Config{
			Provider: c.AI.Provider,
			APIKey:   c.AI.APIKey,
			Model:    c.AI.Model,
			BaseURL:  c.AI.BaseURL,
			Timeout:  time.Duration(c.AI.TimeoutSeconds) * time.Second,
		},
		Process: process.Config{
			MaxPromptHTMLBytes: c.AI.MaxPromptHTML,
			MaxTokens:          c.AI.MaxTokens,
			Temperature:        c.AI.Temperature,
		},
		PDF: pdf.Config{MaxBytes: c.PDF.MaxBytes},
	}
}

func (b BreakerConfig) toBreaker(name string) breaker.Config {
	return breaker.Config{
		Name:             name,
		FailureThreshold: b.FailureThreshold,
		ResetTimeout:     time.Duration(b.ResetTimeoutSec) * time.Second,
	}
}
