package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/linkcheck/internal/linkcheck"
)

func TestLoadDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := Load("")
	require.NoError(t, err)

	require.Equal(t, 8080, cfg.Server.Port)
	require.Equal(t, linkcheck.SchedulerConfig{
		Concurrency: 10,
		DomainDelay: 100 * time.Millisecond,
		Budget:      60 * time.Second,
	}, cfg.SchedulerConfig())

	policy := cfg.RetryPolicy()
	require.Equal(t, 2, policy.MaxRetries)
	require.Equal(t, []time.Duration{100 * time.Millisecond, 200 * time.Millisecond}, policy.Backoff)
	require.Equal(t, linkcheck.DefaultFailFastDomains, policy.FailFast)

	require.Equal(t, map[string]string{"sf.gov": "www.sf.gov"}, cfg.CanonicalHosts())

	prober := cfg.ProberConfig()
	require.Equal(t, 10*time.Second, prober.RequestTimeout)
	require.Equal(t, 5, prober.MaxRedirects)
	require.Equal(t, linkcheck.DefaultUserAgent, prober.UserAgent)
	require.Equal(t, linkcheck.DefaultMaxURLs, cfg.Checker.MaxURLs)
}

func TestLoadWithFileOverrides(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	configYAML := `
server:
  port: 9090
  shutdown_seconds: 5
auth:
  enabled: true
  api_key: secret
checker:
  max_urls: 50
  concurrency: 4
  domain_delay_ms: 250
  budget_seconds: 30
  request_timeout_seconds: 3
  user_agent: test-agent
retry:
  max_retries: 1
  backoff_ms: [50]
  fail_fast_domains:
    - domain: example.social
      message: "social site; check manually"
    - domain: quiet.example
normalize:
  canonical_hosts:
    - host: example.gov
      canonical: www.example.gov
logging:
  development: false
progress:
  enabled: false
`
	require.NoError(t, os.WriteFile(path, []byte(configYAML), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	require.Equal(t, 9090, cfg.Server.Port)
	require.Equal(t, 5*time.Second, cfg.ShutdownTimeout())
	require.True(t, cfg.Auth.Enabled)
	require.Equal(t, "secret", cfg.Auth.APIKey)
	require.Equal(t, 50, cfg.Checker.MaxURLs)
	require.Equal(t, linkcheck.SchedulerConfig{
		Concurrency: 4,
		DomainDelay: 250 * time.Millisecond,
		Budget:      30 * time.Second,
	}, cfg.SchedulerConfig())
	require.Equal(t, "test-agent", cfg.ProberConfig().UserAgent)
	require.Equal(t, 3*time.Second, cfg.ProberConfig().RequestTimeout)

	policy := cfg.RetryPolicy()
	require.Equal(t, 1, policy.MaxRetries)
	require.Equal(t, []time.Duration{50 * time.Millisecond}, policy.Backoff)
	require.Equal(t, map[string]string{
		"example.social": "social site; check manually",
		"quiet.example":  defaultFailFastMessage,
	}, policy.FailFast)

	require.Equal(t, map[string]string{"example.gov": "www.example.gov"}, cfg.CanonicalHosts())
	require.False(t, cfg.Logging.Development)
	require.False(t, cfg.Progress.Enabled)
	require.True(t, cfg.Metrics.Enabled)
}

func TestSchedulerConfigZeroDelayDisablesPacing(t *testing.T) {
	t.Parallel()

	cfg, err := Load("")
	require.NoError(t, err)
	cfg.Checker.DomainDelayMs = 0

	sched := cfg.SchedulerConfig()
	require.Negative(t, sched.DomainDelay)
	require.NoError(t, cfg.Validate())
}

func TestLoadMissingFile(t *testing.T) {
	t.Parallel()

	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.ErrorContains(t, err, "read config")
}

func TestConfigValidateErrors(t *testing.T) {
	t.Parallel()

	base, err := Load("")
	require.NoError(t, err)

	tests := []struct {
		name   string
		mutate func(c *Config)
		want   string
	}{
		{"invalid port", func(c *Config) { c.Server.Port = 0 }, "server.port"},
		{"auth without key", func(c *Config) { c.Auth = AuthConfig{Enabled: true} }, "auth.api_key or auth.jwt_secret"},
		{"invalid max urls", func(c *Config) { c.Checker.MaxURLs = 0 }, "checker.max_urls"},
		{"invalid concurrency", func(c *Config) { c.Checker.Concurrency = 0 }, "checker.concurrency"},
		{"negative delay", func(c *Config) { c.Checker.DomainDelayMs = -1 }, "checker.domain_delay_ms"},
		{"invalid budget", func(c *Config) { c.Checker.BudgetSeconds = 0 }, "checker.budget_seconds"},
		{"invalid timeout", func(c *Config) { c.Checker.RequestTimeoutSeconds = 0 }, "checker.request_timeout_seconds"},
		{"invalid redirects", func(c *Config) { c.Checker.MaxRedirects = 0 }, "checker.max_redirects"},
		{"negative retries", func(c *Config) { c.Retry.MaxRetries = -1 }, "retry.max_retries"},
		{"negative backoff", func(c *Config) { c.Retry.BackoffMs = []int{100, -5} }, "retry.backoff_ms[1]"},
		{"blank fail-fast domain", func(c *Config) { c.Retry.FailFastDomains = []FailFastDomain{{Message: "x"}} }, "retry.fail_fast_domains[0]"},
		{"half canonical host", func(c *Config) { c.Normalize.CanonicalHosts = []CanonicalHost{{Host: "a.gov"}} }, "normalize.canonical_hosts[0]"},
		{"progress buffer", func(c *Config) { c.Progress = ProgressConfig{Enabled: true} }, "progress.buffer_size"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			cfg := base
			cfg.Retry.BackoffMs = append([]int(nil), base.Retry.BackoffMs...)
			tc.mutate(&cfg)
			require.ErrorContains(t, cfg.Validate(), tc.want)
		})
	}

	require.NoError(t, base.Validate())
}
