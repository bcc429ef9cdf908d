package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{"LISTEN_ADDR", "DB_PATH", "JWT_SECRET", "LOG_LEVEL", "LOG_FORMAT",
		"REDIS_ADDR", "REDIS_DB", "WALLET_URL", "POLICY_FILE", "RATE_LIMIT_RPS", "RATE_LIMIT_BURST"} {
		t.Setenv(k, "")
	}
}

func TestLoadFromEnv_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := LoadFromEnv()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.ListenAddr)
	assert.Equal(t, "./data/susu.db", cfg.DBPath)
	assert.Equal(t, "dev-secret-change-in-production", cfg.JWTSecret)
	assert.NotEmpty(t, cfg.Warnings)
	assert.Equal(t, 20.0, cfg.RateLimitRPS)
	assert.Equal(t, "Africa/Accra", cfg.Policy.TimeZone)
	assert.Equal(t, 24*time.Hour, cfg.Policy.GracePeriod())
	assert.True(t, cfg.Policy.LateFeePercent.Equal(decimal.NewFromInt(10)))
}

func TestLoadFromEnv_Overrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("LISTEN_ADDR", ":9090")
	t.Setenv("JWT_SECRET", "s3cret")
	t.Setenv("REDIS_DB", "2")
	t.Setenv("RATE_LIMIT_BURST", "not-a-number")

	cfg, err := LoadFromEnv()
	require.NoError(t, err)
	assert.Equal(t, ":9090", cfg.ListenAddr)
	assert.Equal(t, "s3cret", cfg.JWTSecret)
	assert.Equal(t, 2, cfg.RedisDB)
	assert.Equal(t, 40, cfg.RateLimitBurst)
	assert.Len(t, cfg.Warnings, 1)
}

func TestLoadFromEnv_PolicyFile(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "policy.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
time_zone: Africa/Lagos
grace_hours: 12
late_fee_percent: "5"
skip_policy: retry_same_cycle
jobs:
  open_cycles: "0 0 * * *"
`), 0o644))
	t.Setenv("POLICY_FILE", path)

	cfg, err := LoadFromEnv()
	require.NoError(t, err)
	p := cfg.Policy
	assert.Equal(t, "Africa/Lagos", p.TimeZone)
	assert.Equal(t, 12*time.Hour, p.GracePeriod())
	assert.True(t, p.LateFeePercent.Equal(decimal.NewFromInt(5)))
	assert.Equal(t, "retry_same_cycle", p.SkipPolicy)
	assert.Equal(t, "0 0 * * *", p.Jobs.OpenCycles)
	assert.Equal(t, "@every 15m", p.Jobs.GraceReminders, "unset keys keep defaults")
}

func TestPolicyValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Policy)
	}{
		{"unknown zone", func(p *Policy) { p.TimeZone = "Mars/Olympus" }},
		{"negative grace", func(p *Policy) { p.GraceHours = -1 }},
		{"fee above 100", func(p *Policy) { p.LateFeePercent = decimal.NewFromInt(101) }},
		{"unknown skip policy", func(p *Policy) { p.SkipPolicy = "never" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := DefaultPolicy()
			tt.mutate(&p)
			assert.Error(t, p.Validate())
		})
	}
	assert.NoError(t, DefaultPolicy().Validate())
}

func TestLoadPolicy_BadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "policy.yaml")
	require.NoError(t, os.WriteFile(path, []byte("grace_hours: [oops"), 0o644))
	_, err := LoadPolicy(path)
	assert.ErrorContains(t, err, "failed to parse")
}
