package engine

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/slidesmith/slidesmith/internal/core"
)

// RateLimiter enforces per-backend request budgets so slide generation
// throttles itself before an upstream provider starts rejecting calls.
// Backends are provider routing roles, not hostnames: the same role always
// lands on the same provider account.
type RateLimiter struct {
	Store  RateLimitStore
	Limits map[string]RateLimit
	Clock  func() time.Time
	Margin float64
}

// RateLimit represents a request budget within a rolling window.
type RateLimit struct {
	RequestsPerWindow int
	WindowDuration    time.Duration
}

// RateLimitStore persists rate limit state across requests and restarts.
type RateLimitStore interface {
	GetRateLimit(ctx context.Context, backend string) (*core.RateLimitState, error)
	UpdateRateLimit(ctx context.Context, backend string, state *core.RateLimitState) error
}

// CapacityError reports that a backend is saturated or inside a backoff
// window and the whole request should be retried later.
type CapacityError struct {
	Backend    string
	RetryAfter time.Duration
}

func (e *CapacityError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("backend %s at capacity, retry in %s", e.Backend, e.RetryAfter.Round(time.Second))
	}
	return fmt.Sprintf("backend %s at capacity", e.Backend)
}

// DefaultLimits provides conservative defaults per backend role. Image
// backends get the tightest budget; standard text models the loosest.
var DefaultLimits = map[string]RateLimit{
	"fields-standard": {RequestsPerWindow: 120, WindowDuration: time.Minute},
	"fields-premium":  {RequestsPerWindow: 60, WindowDuration: time.Minute},
	"hero":            {RequestsPerWindow: 60, WindowDuration: time.Minute},
	"imagery":         {RequestsPerWindow: 15, WindowDuration: time.Minute},
}

// Allow checks if a request against the backend is allowed and returns the
// wait duration if not.
func (r *RateLimiter) Allow(ctx context.Context, backend string) (bool, time.Duration, error) {
	if r == nil || r.Store == nil {
		return true, 0, nil
	}

	state, err := r.Store.GetRateLimit(ctx, backend)
	if err != nil {
		return true, 0, err
	}
	if state == nil {
		state = &core.RateLimitState{WindowStart: r.now()}
	}

	if state.BackoffUntil != nil && r.now().Before(*state.BackoffUntil) {
		return false, state.BackoffUntil.Sub(r.now()), nil
	}

	limit := r.getLimit(backend)
	windowEnd := state.WindowStart.Add(limit.WindowDuration)
	if r.now().After(windowEnd) {
		state.RequestCount = 0
		state.WindowStart = r.now()
	}

	if state.RequestCount >= limit.RequestsPerWindow {
		return false, windowEnd.Sub(r.now()), nil
	}

	return true, 0, nil
}

// Record increments the request count for a backend.
func (r *RateLimiter) Record(ctx context.Context, backend string) error {
	if r == nil || r.Store == nil {
		return nil
	}

	state, err := r.Store.GetRateLimit(ctx, backend)
	if err != nil {
		return err
	}
	if state == nil {
		state = &core.RateLimitState{WindowStart: r.now()}
	}

	limit := r.getLimit(backend)
	if r.now().After(state.WindowStart.Add(limit.WindowDuration)) {
		state.RequestCount = 0
		state.WindowStart = r.now()
	}

	state.RequestCount++
	if state.WindowStart.IsZero() {
		state.WindowStart = r.now()
	}

	return r.Store.UpdateRateLimit(ctx, backend, state)
}

// Record429 applies a backoff window from a provider 429 response.
func (r *RateLimiter) Record429(ctx context.Context, backend string, retryAfter time.Duration) error {
	if r == nil || r.Store == nil {
		return nil
	}

	state, err := r.Store.GetRateLimit(ctx, backend)
	if err != nil {
		return err
	}
	if state == nil {
		state = &core.RateLimitState{WindowStart: r.now()}
	}

	now := r.now()
	state.Last429At = &now
	if retryAfter > 0 {
		until := now.Add(retryAfter)
		state.BackoffUntil = &until
	}

	return r.Store.UpdateRateLimit(ctx, backend, state)
}

// ApplyOverrides merges per-backend request overrides (per minute).
func (r *RateLimiter) ApplyOverrides(overrides map[string]int) {
	if r == nil || len(overrides) == 0 {
		return
	}

	if r.Limits == nil {
		r.Limits = make(map[string]RateLimit, len(DefaultLimits))
		for key, limit := range DefaultLimits {
			r.Limits[key] = limit
		}
	}

	for backend, value := range overrides {
		backend = strings.TrimSpace(backend)
		if backend == "" || value <= 0 {
			continue
		}
		r.Limits[backend] = RateLimit{
			RequestsPerWindow: value,
			WindowDuration:    time.Minute,
		}
	}
}

// ApplySafetyMargin adjusts the effective request limits by a ratio (0-1].
func (r *RateLimiter) ApplySafetyMargin(margin float64) {
	if r == nil {
		return
	}
	if margin <= 0 || margin > 1 {
		return
	}
	r.Margin = margin
}

// EffectiveLimit reports the budget in force for a backend, with overrides
// and the safety margin applied.
func (r *RateLimiter) EffectiveLimit(backend string) RateLimit {
	return r.getLimit(backend)
}

func (r *RateLimiter) getLimit(backend string) RateLimit {
	if r == nil {
		return RateLimit{RequestsPerWindow: 1, WindowDuration: time.Minute}
	}

	limits := r.Limits
	if limits == nil {
		limits = DefaultLimits
	}

	if limit, ok := limits[backend]; ok {
		return r.applyMargin(limit)
	}

	if strings.HasPrefix(backend, "fields-") {
		if limit, ok := limits["fields-standard"]; ok {
			return r.applyMargin(limit)
		}
	}

	return r.applyMargin(RateLimit{RequestsPerWindow: 60, WindowDuration: time.Minute})
}

func (r *RateLimiter) now() time.Time {
	if r != nil && r.Clock != nil {
		return r.Clock()
	}
	return time.Now().UTC()
}

func (r *RateLimiter) applyMargin(limit RateLimit) RateLimit {
	if r == nil || r.Margin <= 0 || r.Margin > 1 {
		return limit
	}
	adjusted := int(math.Floor(float64(limit.RequestsPerWindow) * r.Margin))
	if adjusted < 1 {
		adjusted = 1
	}
	limit.RequestsPerWindow = adjusted
	return limit
}
