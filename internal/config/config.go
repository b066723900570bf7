// Package config loads and validates link checker configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/JakeFAU/linkcheck/internal/linkcheck"
)

const defaultFailFastMessage = "this site blocks automated link checks; verify this link manually"

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Checker   CheckerConfig   `mapstructure:"checker"`
	Retry     RetryConfig     `mapstructure:"retry"`
	Normalize NormalizeConfig `mapstructure:"normalize"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Progress  ProgressConfig  `mapstructure:"progress"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port            int `mapstructure:"port"`
	ShutdownSeconds int `mapstructure:"shutdown_seconds"`
	// RequestTimeoutSeconds bounds non-streaming handlers.
	RequestTimeoutSeconds int `mapstructure:"request_timeout_seconds"`
}

// AuthConfig defines API authentication toggles.
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
	// JWTSecret verifies HS256 bearer tokens issued by the upstream session
	// service. Either it or APIKey must be set when auth is enabled.
	JWTSecret string `mapstructure:"jwt_secret"`
}

// CheckerConfig governs a single link-check run.
type CheckerConfig struct {
	MaxURLs               int    `mapstructure:"max_urls"`
	MaxBodyBytes          int64  `mapstructure:"max_body_bytes"`
	Concurrency           int    `mapstructure:"concurrency"`
	DomainDelayMs         int    `mapstructure:"domain_delay_ms"`
	BudgetSeconds         int    `mapstructure:"budget_seconds"`
	RequestTimeoutSeconds int    `mapstructure:"request_timeout_seconds"`
	MaxRedirects          int    `mapstructure:"max_redirects"`
	UserAgent             string `mapstructure:"user_agent"`
	Accept                string `mapstructure:"accept"`
	AcceptLanguage        string `mapstructure:"accept_language"`
	// ProbeBodyBytes caps how much of a probed response body is drained.
	ProbeBodyBytes int64 `mapstructure:"probe_body_bytes"`
}

// FailFastDomain names a host whose transient failures are not retried.
type FailFastDomain struct {
	Domain  string `mapstructure:"domain"`
	Message string `mapstructure:"message"`
}

// RetryConfig configures retries of transient probe failures.
type RetryConfig struct {
	MaxRetries      int              `mapstructure:"max_retries"`
	BackoffMs       []int            `mapstructure:"backoff_ms"`
	FailFastDomains []FailFastDomain `mapstructure:"fail_fast_domains"`
}

// CanonicalHost maps an apex host to the host it redirects to.
type CanonicalHost struct {
	Host      string `mapstructure:"host"`
	Canonical string `mapstructure:"canonical"`
}

// NormalizeConfig lists host rewrites applied before probing.
type NormalizeConfig struct {
	CanonicalHosts []CanonicalHost `mapstructure:"canonical_hosts"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
	// Level overrides the mode's default minimum level when set.
	Level string `mapstructure:"level"`
}

// ProgressConfig configures the diagnostic event hub.
type ProgressConfig struct {
	Enabled       bool        `mapstructure:"enabled"`
	LogEnabled    bool        `mapstructure:"log_enabled"`
	BufferSize    int         `mapstructure:"buffer_size"`
	Batch         BatchConfig `mapstructure:"batch"`
	SinkTimeoutMs int         `mapstructure:"sink_timeout_ms"`
}

// BatchConfig controls hub batching.
type BatchConfig struct {
	MaxEvents int `mapstructure:"max_events"`
	MaxWaitMs int `mapstructure:"max_wait_ms"`
}

// MetricsConfig toggles Prometheus collection and the /metrics route.
type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("LINKCHECK")
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
	v.SetDefault("server.shutdown_seconds", 15)
	v.SetDefault("server.request_timeout_seconds", 30)
	v.SetDefault("auth.enabled", false)
	v.SetDefault("auth.api_key", "")
	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("checker.max_urls", linkcheck.DefaultMaxURLs)
	v.SetDefault("checker.max_body_bytes", 1<<20)
	v.SetDefault("checker.concurrency", linkcheck.DefaultConcurrency)
	v.SetDefault("checker.domain_delay_ms", int(linkcheck.DefaultDomainDelay/time.Millisecond))
	v.SetDefault("checker.budget_seconds", int(linkcheck.DefaultBudget/time.Second))
	v.SetDefault("checker.request_timeout_seconds", 10)
	v.SetDefault("checker.max_redirects", 5)
	v.SetDefault("checker.user_agent", linkcheck.DefaultUserAgent)
	v.SetDefault("checker.accept", linkcheck.DefaultAccept)
	v.SetDefault("checker.accept_language", linkcheck.DefaultAcceptLanguage)
	v.SetDefault("checker.probe_body_bytes", 64<<10)
	v.SetDefault("retry.max_retries", 2)
	v.SetDefault("retry.backoff_ms", []int{100, 200})
	v.SetDefault("retry.fail_fast_domains", defaultFailFastDomains())
	v.SetDefault("normalize.canonical_hosts", defaultCanonicalHosts())
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.level", "")
	v.SetDefault("progress.enabled", true)
	v.SetDefault("progress.log_enabled", false)
	v.SetDefault("progress.buffer_size", 2048)
	v.SetDefault("progress.batch.max_events", 256)
	v.SetDefault("progress.batch.max_wait_ms", 250)
	v.SetDefault("progress.sink_timeout_ms", 5000)
	v.SetDefault("metrics.enabled", true)
}

func defaultFailFastDomains() []map[string]string {
	out := make([]map[string]string, 0, len(linkcheck.DefaultFailFastDomains))
	for domain, msg := range linkcheck.DefaultFailFastDomains {
		out = append(out, map[string]string{"domain": domain, "message": msg})
	}
	return out
}

func defaultCanonicalHosts() []map[string]string {
	out := make([]map[string]string, 0, len(linkcheck.DefaultCanonicalHosts))
	for host, canonical := range linkcheck.DefaultCanonicalHosts {
		out = append(out, map[string]string{"host": host, "canonical": canonical})
	}
	return out
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Auth.Enabled && c.Auth.APIKey == "" && c.Auth.JWTSecret == "" {
		return fmt.Errorf("auth.api_key or auth.jwt_secret must be set when auth is enabled")
	}
	if c.Checker.MaxURLs <= 0 {
		return fmt.Errorf("checker.max_urls must be > 0")
	}
	if c.Checker.Concurrency <= 0 {
		return fmt.Errorf("checker.concurrency must be > 0")
	}
	if c.Checker.DomainDelayMs < 0 {
		return fmt.Errorf("checker.domain_delay_ms must be >= 0")
	}
	if c.Checker.BudgetSeconds <= 0 {
		return fmt.Errorf("checker.budget_seconds must be > 0")
	}
	if c.Checker.RequestTimeoutSeconds <= 0 {
		return fmt.Errorf("checker.request_timeout_seconds must be > 0")
	}
	if c.Checker.MaxRedirects <= 0 {
		return fmt.Errorf("checker.max_redirects must be > 0")
	}
	if c.Retry.MaxRetries < 0 {
		return fmt.Errorf("retry.max_retries must be >= 0")
	}
	for i, ms := range c.Retry.BackoffMs {
		if ms < 0 {
			return fmt.Errorf("retry.backoff_ms[%d] must be >= 0", i)
		}
	}
	for i, d := range c.Retry.FailFastDomains {
		if strings.TrimSpace(d.Domain) == "" {
			return fmt.Errorf("retry.fail_fast_domains[%d].domain must be set", i)
		}
	}
	for i, h := range c.Normalize.CanonicalHosts {
		if strings.TrimSpace(h.Host) == "" || strings.TrimSpace(h.Canonical) == "" {
			return fmt.Errorf("normalize.canonical_hosts[%d] needs host and canonical", i)
		}
	}
	if c.Progress.Enabled && c.Progress.BufferSize <= 0 {
		return fmt.Errorf("progress.buffer_size must be > 0 when progress is enabled")
	}
	return nil
}

// SchedulerConfig converts checker settings for linkcheck.NewScheduler.
// An explicit domain_delay_ms of 0 turns pacing off.
func (c Config) SchedulerConfig() linkcheck.SchedulerConfig {
	delay := time.Duration(c.Checker.DomainDelayMs) * time.Millisecond
	if c.Checker.DomainDelayMs == 0 {
		delay = -1
	}
	return linkcheck.SchedulerConfig{
		Concurrency: c.Checker.Concurrency,
		DomainDelay: delay,
		Budget:      time.Duration(c.Checker.BudgetSeconds) * time.Second,
	}
}

// ProberConfig converts checker settings for linkcheck.NewHTTPProber.
func (c Config) ProberConfig() linkcheck.ProberConfig {
	return linkcheck.ProberConfig{
		RequestTimeout: time.Duration(c.Checker.RequestTimeoutSeconds) * time.Second,
		MaxRedirects:   c.Checker.MaxRedirects,
		UserAgent:      c.Checker.UserAgent,
		Accept:         c.Checker.Accept,
		AcceptLanguage: c.Checker.AcceptLanguage,
		MaxBodyBytes:   c.Checker.ProbeBodyBytes,
	}
}

// RetryPolicy converts retry settings for linkcheck.NewRetrier.
func (c Config) RetryPolicy() linkcheck.RetryPolicy {
	backoff := make([]time.Duration, 0, len(c.Retry.BackoffMs))
	for _, ms := range c.Retry.BackoffMs {
		backoff = append(backoff, time.Duration(ms)*time.Millisecond)
	}
	failFast := make(map[string]string, len(c.Retry.FailFastDomains))
	for _, d := range c.Retry.FailFastDomains {
		msg := d.Message
		if msg == "" {
			msg = defaultFailFastMessage
		}
		failFast[d.Domain] = msg
	}
	return linkcheck.RetryPolicy{
		MaxRetries: c.Retry.MaxRetries,
		Backoff:    backoff,
		FailFast:   failFast,
	}
}

// CanonicalHosts converts normalize settings for linkcheck.NewNormalizer.
func (c Config) CanonicalHosts() map[string]string {
	out := make(map[string]string, len(c.Normalize.CanonicalHosts))
	for _, h := range c.Normalize.CanonicalHosts {
		out[h.Host] = h.Canonical
	}
	return out
}

// ShutdownTimeout is the grace period for in-flight requests on shutdown.
func (c Config) ShutdownTimeout() time.Duration {
	return time.Duration(c.Server.ShutdownSeconds) * time.Second
}

// RequestTimeout bounds non-streaming handlers.
func (c Config) RequestTimeout() time.Duration {
	return time.Duration(c.Server.RequestTimeoutSeconds) * time.Second
}
