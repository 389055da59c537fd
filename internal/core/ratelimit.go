package core

import "time"

// RateLimitState captures per-backend rate limiting state. Backends are the
// provider routing roles a slide request fans out to, so one saturated role
// does not block the others.
type RateLimitState struct {
	RequestCount int
	WindowStart  time.Time
	BackoffUntil *time.Time
	Last429At    *time.Time
}
