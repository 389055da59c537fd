package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/slidesmith/slidesmith/internal/core"
)

type memoryRateStore struct {
	state map[string]*core.RateLimitState
}

func (m *memoryRateStore) GetRateLimit(ctx context.Context, backend string) (*core.RateLimitState, error) {
	if m.state == nil {
		return nil, nil
	}
	if val, ok := m.state[backend]; ok {
		return val, nil
	}
	return nil, nil
}

func (m *memoryRateStore) UpdateRateLimit(ctx context.Context, backend string, state *core.RateLimitState) error {
	if m.state == nil {
		m.state = make(map[string]*core.RateLimitState)
	}
	m.state[backend] = state
	return nil
}

func TestRateLimiterWindow(t *testing.T) {
	store := &memoryRateStore{}
	clock := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	limiter := &RateLimiter{
		Store: store,
		Limits: map[string]RateLimit{
			"fields-premium": {RequestsPerWindow: 1, WindowDuration: time.Minute},
		},
		Clock: func() time.Time { return clock },
	}

	allowed, _, err := limiter.Allow(context.Background(), "fields-premium")
	require.NoError(t, err)
	require.True(t, allowed)

	require.NoError(t, limiter.Record(context.Background(), "fields-premium"))

	allowed, wait, err := limiter.Allow(context.Background(), "fields-premium")
	require.NoError(t, err)
	require.False(t, allowed)
	require.Equal(t, time.Minute, wait)
}

func TestRateLimiterWindowReset(t *testing.T) {
	store := &memoryRateStore{}
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	limiter := &RateLimiter{
		Store: store,
		Limits: map[string]RateLimit{
			"imagery": {RequestsPerWindow: 1, WindowDuration: time.Minute},
		},
		Clock: func() time.Time { return now },
	}

	require.NoError(t, limiter.Record(context.Background(), "imagery"))

	allowed, _, err := limiter.Allow(context.Background(), "imagery")
	require.NoError(t, err)
	require.False(t, allowed)

	now = now.Add(2 * time.Minute)

	allowed, _, err = limiter.Allow(context.Background(), "imagery")
	require.NoError(t, err)
	require.True(t, allowed)

	// Recording in the new window resets the persisted count instead of
	// stacking on the expired one.
	require.NoError(t, limiter.Record(context.Background(), "imagery"))
	require.Equal(t, 1, store.state["imagery"].RequestCount)
}

func TestRateLimiterBackoff(t *testing.T) {
	store := &memoryRateStore{}
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	limiter := &RateLimiter{
		Store: store,
		Clock: func() time.Time { return now },
	}

	require.NoError(t, limiter.Record429(context.Background(), "hero", 30*time.Second))

	allowed, wait, err := limiter.Allow(context.Background(), "hero")
	require.NoError(t, err)
	require.False(t, allowed)
	require.Equal(t, 30*time.Second, wait)
}

func TestRateLimiterMargin(t *testing.T) {
	store := &memoryRateStore{}
	limiter := &RateLimiter{
		Store: store,
		Limits: map[string]RateLimit{
			"fields-standard": {RequestsPerWindow: 10, WindowDuration: time.Minute},
		},
		Clock: func() time.Time { return time.Now().UTC() },
	}

	limiter.ApplySafetyMargin(0.9)
	limit := limiter.getLimit("fields-standard")
	require.Equal(t, 9, limit.RequestsPerWindow)
}

func TestRateLimiterRolePrefixFallback(t *testing.T) {
	limiter := &RateLimiter{
		Store: &memoryRateStore{},
		Limits: map[string]RateLimit{
			"fields-standard": {RequestsPerWindow: 42, WindowDuration: time.Minute},
		},
	}

	limit := limiter.getLimit("fields-bulk")
	require.Equal(t, 42, limit.RequestsPerWindow)
}
