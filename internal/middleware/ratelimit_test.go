package middleware

import (
	"context"
	"testing"
	"time"

	"connectrpc.com/connect"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmynk/susu/internal/models"
)

func TestRateLimiter_Allow(t *testing.T) {
	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	l := NewRateLimiter(RateLimitConfig{RequestsPerSecond: 1, Burst: 2}, nil)
	l.now = func() time.Time { return now }

	ok, _ := l.Allow("user:u1")
	assert.True(t, ok)
	ok, _ = l.Allow("user:u1")
	assert.True(t, ok)

	ok, delay := l.Allow("user:u1")
	assert.False(t, ok, "burst exhausted")
	assert.Greater(t, delay, time.Duration(0))

	ok, _ = l.Allow("user:u2")
	assert.True(t, ok, "buckets are per caller")

	now = now.Add(time.Second)
	ok, _ = l.Allow("user:u1")
	assert.True(t, ok, "a token refills after one second")
}

func TestRateLimiter_EvictsIdleCallers(t *testing.T) {
	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	l := NewRateLimiter(RateLimitConfig{RequestsPerSecond: 1, Burst: 1, IdleTTL: time.Minute}, nil)
	l.now = func() time.Time { return now }

	l.Allow("user:u1")
	now = now.Add(2 * time.Minute)
	l.Allow("user:u2")

	l.mu.Lock()
	defer l.mu.Unlock()
	assert.NotContains(t, l.clients, "user:u1")
	assert.Contains(t, l.clients, "user:u2")
}

func TestRateLimiter_Interceptor(t *testing.T) {
	l := NewRateLimiter(RateLimitConfig{RequestsPerSecond: 0.001, Burst: 1}, nil)
	next := func(context.Context, connect.AnyRequest) (connect.AnyResponse, error) {
		return connect.NewResponse(&struct{}{}), nil
	}
	call := l.Interceptor()(next)
	ctx := WithActor(context.Background(), models.Actor{UserID: "u1", Role: models.RoleMember})

	_, err := call(ctx, connect.NewRequest(&struct{}{}))
	require.NoError(t, err)

	_, err = call(ctx, connect.NewRequest(&struct{}{}))
	require.Error(t, err)
	assert.Equal(t, connect.CodeResourceExhausted, connect.CodeOf(err))
	var connectErr *connect.Error
	require.ErrorAs(t, err, &connectErr)
	assert.NotEmpty(t, connectErr.Meta().Get("Retry-After"))
}
