package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"connectrpc.com/connect"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"
	"golang.org/x/sync/errgroup"

	"github.com/mmynk/susu/internal/auth"
	"github.com/mmynk/susu/internal/engine"
	"github.com/mmynk/susu/internal/metrics"
	"github.com/mmynk/susu/internal/middleware"
	"github.com/mmynk/susu/internal/service"
)

const (
	shutdownTimeout    = 10 * time.Second
	healthCheckTimeout = 2 * time.Second
)

func newServeCmd() *cobra.Command {
	var noJobs bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the RPC server and background jobs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return a.serve(ctx, !noJobs)
		},
	}
	cmd.Flags().BoolVar(&noJobs, "no-jobs", false, "serve RPCs without starting the background jobs")
	return cmd
}

// pinger reports whether a dependency is reachable.
type pinger interface {
	Ping(ctx context.Context) error
}

// handlerDeps groups what the HTTP handler tree needs.
type handlerDeps struct {
	engine   *engine.Engine
	verifier auth.Verifier
	limiter  *middleware.RateLimiter
	metrics  *metrics.Metrics
	gatherer prometheus.Gatherer
	db       pinger
	logger   *slog.Logger
}

// newHandler builds the full HTTP handler: the Connect service behind auth, logging and
// rate limiting, plus /metrics and /healthz, wrapped for CORS and h2c.
func newHandler(d handlerDeps) http.Handler {
	mux := http.NewServeMux()

	interceptors := connect.WithInterceptors(
		middleware.RequireAuth(d.verifier),
		middleware.LoggingInterceptor(d.logger, d.metrics),
		d.limiter.Interceptor(),
	)
	path, handler := service.NewCircleService(d.engine, d.logger).Handler(interceptors)
	mux.Handle(path, handler)

	mux.Handle("/metrics", promhttp.HandlerFor(d.gatherer, promhttp.HandlerOpts{}))
	mux.HandleFunc("/healthz", healthHandler(d.db))

	// Wrap with h2c for HTTP/2 without TLS (required for Connect)
	return h2c.NewHandler(corsMiddleware(mux), &http2.Server{})
}

func (a *app) serve(ctx context.Context, withJobs bool) error {
	handler := newHandler(handlerDeps{
		engine:   a.engine,
		verifier: a.jwt,
		limiter: middleware.NewRateLimiter(middleware.RateLimitConfig{
			RequestsPerSecond: a.cfg.RateLimitRPS,
			Burst:             a.cfg.RateLimitBurst,
		}, a.metrics),
		metrics:  a.metrics,
		gatherer: a.registry,
		db:       a.store,
		logger:   a.logger,
	})

	srv := &http.Server{
		Addr:              a.cfg.ListenAddr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	if withJobs {
		if err := a.jobs.Start(gctx); err != nil {
			return err
		}
		for name, next := range a.jobs.Entries() {
			a.logger.Info("Job scheduled", "job", name, "next_run", next)
		}
		g.Go(func() error {
			<-gctx.Done()
			a.jobs.Stop()
			return nil
		})
	}

	g.Go(func() error {
		a.logger.Info("Connect server starting", "address", a.cfg.ListenAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			a.logger.Error("Graceful shutdown failed", "error", err)
			return err
		}
		a.logger.Info("Server stopped")
		return nil
	})

	return g.Wait()
}

func healthHandler(db pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
		defer cancel()

		status, code := "ok", http.StatusOK
		component := map[string]any{"status": "up"}
		if err := db.Ping(ctx); err != nil {
			status, code = "degraded", http.StatusServiceUnavailable
			component = map[string]any{"status": "down", "error": err.Error()}
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"status":     status,
			"components": map[string]any{"database": component},
			"timestamp":  time.Now().UTC().Format(time.RFC3339Nano),
		})
	}
}

// corsMiddleware adds CORS headers for browser access
func corsMiddleware(next http.Handler) http.Handler {
	return cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Authorization", "Content-Type", "Connect-Protocol-Version", "Connect-Timeout-Ms"},
		ExposedHeaders: []string{"Connect-Protocol-Version", "Connect-Timeout-Ms", "Retry-After", middleware.ErrorKindHeader},
		MaxAge:         300,
	})(next)
}
