package driver

import (
	"fmt"
	"net/http"
	"strconv"
	"time"
)

// ProviderError is returned when a provider responds with a non-2xx status.
//
// Drivers should populate RawResponse with the provider response body bytes.
// RawResponse must never include API keys.
type ProviderError struct {
	Provider    string
	StatusCode  int
	Message     string
	RawResponse []byte
	// RetryAfter holds the provider's Retry-After hint on 429 responses,
	// zero when absent or unparseable.
	RetryAfter time.Duration
}

func (e *ProviderError) Error() string {
	if e == nil {
		return "provider error"
	}
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s request failed: status %d: %s", e.Provider, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s request failed: %s", e.Provider, e.Message)
}

// IsRateLimit reports whether the provider rejected the call for quota or
// rate reasons.
func (e *ProviderError) IsRateLimit() bool {
	return e != nil && e.StatusCode == http.StatusTooManyRequests
}

// IsTransient reports whether retrying the call can plausibly succeed.
// Status zero means the request never got a response (transport failure),
// which is worth another attempt.
func (e *ProviderError) IsTransient() bool {
	if e == nil {
		return false
	}
	switch {
	case e.StatusCode == 0:
		return true
	case e.StatusCode == http.StatusTooManyRequests:
		return true
	case e.StatusCode == http.StatusRequestTimeout:
		return true
	case e.StatusCode >= 500 && e.StatusCode <= 599:
		return true
	default:
		return false
	}
}

// ParseRetryAfter interprets a Retry-After header value, either delta-seconds
// or an HTTP date. Returns zero when the value is absent or malformed.
func ParseRetryAfter(value string) time.Duration {
	if value == "" {
		return 0
	}
	if secs, err := strconv.Atoi(value); err == nil {
		if secs <= 0 {
			return 0
		}
		return time.Duration(secs) * time.Second
	}
	if at, err := http.ParseTime(value); err == nil {
		if d := time.Until(at); d > 0 {
			return d
		}
	}
	return 0
}
