package main

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/mmynk/susu/internal/auth"
	"github.com/mmynk/susu/internal/clock"
	"github.com/mmynk/susu/internal/config"
	"github.com/mmynk/susu/internal/contribution"
	"github.com/mmynk/susu/internal/engine"
	"github.com/mmynk/susu/internal/metrics"
	"github.com/mmynk/susu/internal/notify"
	"github.com/mmynk/susu/internal/payout"
	"github.com/mmynk/susu/internal/scheduler"
	"github.com/mmynk/susu/internal/storage/sqlite"
	"github.com/mmynk/susu/internal/wallet"
	"github.com/mmynk/susu/pkg/logging"
)

const tokenTTL = 24 * time.Hour

// app holds the wired dependencies shared by the subcommands.
type app struct {
	cfg      *config.Config
	logger   *slog.Logger
	registry *prometheus.Registry
	metrics  *metrics.Metrics
	store    *sqlite.SQLiteStore
	engine   *engine.Engine
	jobs     *scheduler.Scheduler
	jwt      *auth.JWTManager

	closers []func() error
}

// loadConfig reads the environment and builds the logger. Config warnings are logged
// once the logger exists.
func loadConfig() (*config.Config, *slog.Logger, error) {
	cfg, err := config.LoadFromEnv()
	if err != nil {
		return nil, nil, err
	}
	logger := logging.New(os.Stderr, cfg.SlogLevel(), cfg.LogFormat)
	slog.SetDefault(logger)
	for _, w := range cfg.Warnings {
		logger.Warn(w)
	}
	return cfg, logger, nil
}

func newApp() (*app, error) {
	cfg, logger, err := loadConfig()
	if err != nil {
		return nil, err
	}

	a := &app{
		cfg:      cfg,
		logger:   logger,
		registry: prometheus.NewRegistry(),
		jwt:      auth.NewJWTManager(cfg.JWTSecret, tokenTTL),
	}
	a.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	a.metrics = metrics.New(a.registry)

	store, err := sqlite.New(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}
	a.store = store
	a.closers = append(a.closers, store.Close)
	logger.Info("Storage initialized", "database", cfg.DBPath)

	cal, err := clock.NewCalendar(cfg.Policy.TimeZone, cfg.Policy.GracePeriod())
	if err != nil {
		a.Close()
		return nil, err
	}
	skip, err := payout.ParseSkipPolicy(cfg.Policy.SkipPolicy)
	if err != nil {
		a.Close()
		return nil, err
	}

	notifier, err := a.notifier()
	if err != nil {
		a.Close()
		return nil, err
	}

	a.engine = engine.New(engine.Options{
		Store:             store,
		Scheduler:         contribution.NewScheduler(cal, cfg.Policy.LateFeePercent),
		Queue:             payout.NewQueue(cal, skip),
		Wallet:            a.wallet(),
		Notifier:          notifier,
		Clock:             clock.System{},
		Metrics:           a.metrics,
		Logger:            logger,
		GraceReminderLead: cfg.Policy.GraceReminderLead,
	})
	a.jobs = scheduler.New(a.engine, cfg.Policy.Jobs, a.metrics, logger)
	return a, nil
}

// notifier always logs events and also publishes them to Redis when it is configured.
func (a *app) notifier() (notify.Notifier, error) {
	n := notify.Multi{notify.NewLogNotifier(a.logger)}
	if a.cfg.RedisAddr == "" {
		return n, nil
	}
	rn, err := notify.NewRedisNotifier(a.cfg.RedisAddr, a.cfg.RedisPassword, a.cfg.RedisDB)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	a.closers = append(a.closers, rn.Close)
	a.logger.Info("Publishing notifications to redis", "addr", a.cfg.RedisAddr)
	return append(n, rn), nil
}

func (a *app) wallet() wallet.Ledger {
	if a.cfg.WalletURL == "" {
		a.logger.Warn("WALLET_URL not set, using in-memory sandbox wallet")
		return wallet.NewSandbox()
	}
	a.logger.Info("Using wallet gateway", "url", a.cfg.WalletURL)
	return wallet.NewHTTPLedger(a.cfg.WalletURL, a.cfg.WalletAPIKey, &http.Client{Timeout: 10 * time.Second})
}

// Close releases resources in reverse order of acquisition.
func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
