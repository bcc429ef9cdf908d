package middleware

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"connectrpc.com/connect"
	"golang.org/x/time/rate"

	"github.com/mmynk/susu/internal/metrics"
)

// RateLimitConfig holds configuration for the rate limiter.
type RateLimitConfig struct {
	// RequestsPerSecond is the sustained rate limit (tokens added per second).
	RequestsPerSecond float64
	// Burst is the maximum number of requests allowed in a burst.
	Burst int
	// IdleTTL is how long an unused caller bucket is kept (default 10m).
	IdleTTL time.Duration
}

// clientLimiter tracks a per-caller rate limiter and when it was last seen.
type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter enforces a per-caller token bucket. Authenticated callers are keyed by
// user id, anonymous ones by peer address.
type RateLimiter struct {
	cfg     RateLimitConfig
	metrics *metrics.Metrics
	now     func() time.Time

	mu        sync.Mutex
	clients   map[string]*clientLimiter
	lastSweep time.Time
}

// NewRateLimiter creates a rate limiter.
func NewRateLimiter(cfg RateLimitConfig, m *metrics.Metrics) *RateLimiter {
	if cfg.IdleTTL <= 0 {
		cfg.IdleTTL = 10 * time.Minute
	}
	return &RateLimiter{
		cfg:     cfg,
		metrics: m,
		now:     time.Now,
		clients: make(map[string]*clientLimiter),
	}
}

// Allow reports whether the caller may proceed now. When it may not, the returned
// duration is how long until a token is available.
func (l *RateLimiter) Allow(key string) (bool, time.Duration) {
	now := l.now()
	limiter := l.limiterFor(key, now)

	reservation := limiter.ReserveN(now, 1)
	if !reservation.OK() {
		return false, 0
	}
	if delay := reservation.DelayFrom(now); delay > 0 {
		reservation.CancelAt(now)
		return false, delay
	}
	return true, 0
}

func (l *RateLimiter) limiterFor(key string, now time.Time) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	if now.Sub(l.lastSweep) > l.cfg.IdleTTL {
		for k, cl := range l.clients {
			if now.Sub(cl.lastSeen) > l.cfg.IdleTTL {
				delete(l.clients, k)
			}
		}
		l.lastSweep = now
	}

	cl, ok := l.clients[key]
	if !ok {
		cl = &clientLimiter{limiter: rate.NewLimiter(rate.Limit(l.cfg.RequestsPerSecond), l.cfg.Burst)}
		l.clients[key] = cl
	}
	cl.lastSeen = now
	return cl.limiter
}

// Interceptor returns the Connect interceptor. Place it after RequireAuth.
func (l *RateLimiter) Interceptor() connect.UnaryInterceptorFunc {
	return func(next connect.UnaryFunc) connect.UnaryFunc {
		return func(ctx context.Context, req connect.AnyRequest) (connect.AnyResponse, error) {
			key := "peer:" + req.Peer().Addr
			if actor := ActorFrom(ctx); actor.UserID != "" {
				key = "user:" + actor.UserID
			}
			ok, delay := l.Allow(key)
			if !ok {
				l.metrics.RateLimited(req.Spec().Procedure)
				err := connect.NewError(connect.CodeResourceExhausted, fmt.Errorf("rate limit exceeded"))
				if delay > 0 {
					err.Meta().Set("Retry-After", strconv.Itoa(int(delay.Seconds())+1))
				}
				return nil, err
			}
			return next(ctx, req)
		}
	}
}
