package engine

import (
	"context"
	"errors"
	"time"

	"github.com/slidesmith/slidesmith/internal/core"
	"github.com/slidesmith/slidesmith/internal/genlink/driver"
)

// RetryConfig bounds the retry loop around a single provider call.
type RetryConfig struct {
	MaxAttempts int           `mapstructure:"max_attempts" json:"max_attempts"`
	BaseBackoff time.Duration `mapstructure:"base_backoff" json:"base_backoff"`
	MaxBackoff  time.Duration `mapstructure:"max_backoff" json:"max_backoff"`
}

// DefaultRetry matches the provider guidance: three attempts with 1s, 2s
// exponential backoff.
func DefaultRetry() RetryConfig {
	return RetryConfig{
		MaxAttempts: 3,
		BaseBackoff: time.Second,
		MaxBackoff:  30 * time.Second,
	}
}

func (c RetryConfig) normalized() RetryConfig {
	if c.MaxAttempts < 1 {
		c.MaxAttempts = 1
	}
	if c.BaseBackoff <= 0 {
		c.BaseBackoff = time.Second
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = 30 * time.Second
	}
	return c
}

// withRetry runs fn up to MaxAttempts times, backing off exponentially on
// transient failures. A Retry-After hint longer than the computed backoff
// wins. Permanent errors and context cancellation stop the loop immediately.
// Returns the attempt count alongside the final error.
func withRetry(ctx context.Context, cfg RetryConfig, fn func(ctx context.Context) error) (int, error) {
	cfg = cfg.normalized()

	var err error
	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		err = fn(ctx)
		if err == nil {
			return attempt, nil
		}
		if !isTransient(err) || attempt == cfg.MaxAttempts {
			return attempt, err
		}

		wait := cfg.BaseBackoff * time.Duration(1<<uint(attempt-1))
		if wait > cfg.MaxBackoff {
			wait = cfg.MaxBackoff
		}
		var perr *driver.ProviderError
		if errors.As(err, &perr) && perr.RetryAfter > wait {
			wait = perr.RetryAfter
			if wait > cfg.MaxBackoff {
				wait = cfg.MaxBackoff
			}
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return attempt, ctx.Err()
		case <-timer.C:
		}
	}
	return cfg.MaxAttempts, err
}

// isTransient reports whether another attempt could plausibly succeed.
func isTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var perr *driver.ProviderError
	if errors.As(err, &perr) {
		return perr.IsTransient()
	}
	// Transport-level failures surface as wrapped ProviderErrors without a
	// status code; anything else (decode errors, schema failures) will not
	// improve on retry.
	return false
}

// classifyFailure maps a final error to the fallback reason recorded in
// metadata.
func classifyFailure(err error) core.FallbackReason {
	if err == nil {
		return ""
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return core.ReasonTimeout
	}
	var perr *driver.ProviderError
	if errors.As(err, &perr) {
		switch {
		case perr.IsRateLimit():
			return core.ReasonRateLimited
		case perr.StatusCode >= 500:
			return core.ReasonProviderDown
		case perr.StatusCode >= 400:
			return core.ReasonRejected
		default:
			return core.ReasonProviderDown
		}
	}
	return core.ReasonBadResponse
}
