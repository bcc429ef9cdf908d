// Package config handles server configuration from the environment and the engine policy file.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/mmynk/susu/internal/payout"
	"github.com/mmynk/susu/pkg/logging"
)

// Config holds the server configuration.
type Config struct {
	ListenAddr string // HTTP listen address (default ":8080")
	DBPath     string // SQLite database path (default "./data/susu.db")
	JWTSecret  string // HS256 secret for caller tokens
	LogLevel   string // debug, info, warn, error (default "info")
	LogFormat  string // text or json (default "text")

	// Redis is optional; notifications fall back to the log when unset.
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// WalletURL selects the HTTP wallet gateway. When empty the in-memory sandbox is used.
	WalletURL    string
	WalletAPIKey string

	// Rate limiting
	RateLimitRPS   float64 // sustained requests per second per caller (default 20)
	RateLimitBurst int     // burst capacity (default 40)

	PolicyFile string
	Policy     Policy

	// Warnings collects non-fatal warnings generated during config loading.
	// These are logged by the caller after the logger is initialised.
	Warnings []string
}

// Policy carries the engine rules that operators may tune.
type Policy struct {
	TimeZone          string          `yaml:"time_zone"`
	GraceHours        int             `yaml:"grace_hours"`
	LateFeePercent    decimal.Decimal `yaml:"late_fee_percent"`
	SkipPolicy        string          `yaml:"skip_policy"`
	GraceReminderLead time.Duration   `yaml:"grace_reminder_lead"`
	Jobs              Jobs            `yaml:"jobs"`
}

// Jobs holds the cron specs of the background jobs. An empty spec disables the job.
type Jobs struct {
	OpenCycles     string `yaml:"open_cycles"`
	GraceReminders string `yaml:"grace_reminders"`
	PromotePayouts string `yaml:"promote_payouts"`
}

// DefaultPolicy returns the policy used when no file is configured.
func DefaultPolicy() Policy {
	return Policy{
		TimeZone:          "Africa/Accra",
		GraceHours:        24,
		LateFeePercent:    decimal.NewFromInt(10),
		SkipPolicy:        string(payout.SkipRetryNextCycle),
		GraceReminderLead: 2 * time.Hour,
		Jobs: Jobs{
			OpenCycles:     "@every 5m",
			GraceReminders: "@every 15m",
			PromotePayouts: "@every 5m",
		},
	}
}

// GracePeriod returns the grace window as a duration.
func (p Policy) GracePeriod() time.Duration {
	return time.Duration(p.GraceHours) * time.Hour
}

// Validate checks that the policy is usable.
func (p Policy) Validate() error {
	if _, err := time.LoadLocation(p.TimeZone); err != nil {
		return fmt.Errorf("invalid time_zone %q: %w", p.TimeZone, err)
	}
	if p.GraceHours < 0 {
		return fmt.Errorf("grace_hours must not be negative")
	}
	if p.LateFeePercent.IsNegative() || p.LateFeePercent.GreaterThan(decimal.NewFromInt(100)) {
		return fmt.Errorf("late_fee_percent must be between 0 and 100")
	}
	if _, err := payout.ParseSkipPolicy(p.SkipPolicy); err != nil {
		return err
	}
	if p.GraceReminderLead < 0 {
		return fmt.Errorf("grace_reminder_lead must not be negative")
	}
	return nil
}

// LoadPolicy reads a YAML policy file. Keys missing from the file keep their defaults.
func LoadPolicy(path string) (Policy, error) {
	p := DefaultPolicy()
	raw, err := os.ReadFile(path)
	if err != nil {
		return p, fmt.Errorf("failed to read policy file: %w", err)
	}
	if err := yaml.Unmarshal(raw, &p); err != nil {
		return p, fmt.Errorf("failed to parse policy file: %w", err)
	}
	if err := p.Validate(); err != nil {
		return p, fmt.Errorf("invalid policy file %s: %w", path, err)
	}
	return p, nil
}

// SlogLevel maps the LogLevel string to an slog.Level.
func (c *Config) SlogLevel() slog.Level {
	return logging.ParseLevel(c.LogLevel)
}

// LoadFromEnv loads configuration from environment variables and, when POLICY_FILE is
// set, the policy file it names.
func LoadFromEnv() (*Config, error) {
	cfg := &Config{
		ListenAddr:    getEnv("LISTEN_ADDR", ":8080"),
		DBPath:        getEnv("DB_PATH", "./data/susu.db"),
		JWTSecret:     os.Getenv("JWT_SECRET"),
		LogLevel:      getEnv("LOG_LEVEL", "info"),
		LogFormat:     getEnv("LOG_FORMAT", "text"),
		RedisAddr:     os.Getenv("REDIS_ADDR"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		WalletURL:     os.Getenv("WALLET_URL"),
		WalletAPIKey:  os.Getenv("WALLET_API_KEY"),
		PolicyFile:    os.Getenv("POLICY_FILE"),
		Policy:        DefaultPolicy(),
	}

	if v := os.Getenv("REDIS_DB"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("invalid REDIS_DB %q: %w", v, err)
		}
		cfg.RedisDB = n
	}

	// Rate limiting
	cfg.RateLimitRPS = 20
	cfg.RateLimitBurst = 40
	if v := os.Getenv("RATE_LIMIT_RPS"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.RateLimitRPS = f
		} else {
			cfg.Warnings = append(cfg.Warnings, fmt.Sprintf("ignoring invalid RATE_LIMIT_RPS %q", v))
		}
	}
	if v := os.Getenv("RATE_LIMIT_BURST"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.RateLimitBurst = n
		} else {
			cfg.Warnings = append(cfg.Warnings, fmt.Sprintf("ignoring invalid RATE_LIMIT_BURST %q", v))
		}
	}

	if cfg.JWTSecret == "" {
		cfg.JWTSecret = "dev-secret-change-in-production"
		cfg.Warnings = append(cfg.Warnings, "JWT_SECRET not set, using insecure development secret")
	}

	if cfg.PolicyFile != "" {
		p, err := LoadPolicy(cfg.PolicyFile)
		if err != nil {
			return nil, err
		}
		cfg.Policy = p
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}
