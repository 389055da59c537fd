package engine

import (
	"context"
	"sync"

	"github.com/slidesmith/slidesmith/internal/core"
)

// MemoryStore is a process-local RateLimitStore for deployments that run
// without a persistent store. State resets on restart, so provider backoff
// windows do not survive process boundaries.
type MemoryStore struct {
	mu    sync.Mutex
	state map[string]*core.RateLimitState
}

// NewMemoryStore returns an empty in-memory rate limit store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{state: make(map[string]*core.RateLimitState)}
}

// GetRateLimit returns a copy of the stored state so callers can mutate it
// freely before writing it back.
func (m *MemoryStore) GetRateLimit(ctx context.Context, backend string) (*core.RateLimitState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	state, ok := m.state[backend]
	if !ok {
		return nil, nil
	}
	clone := *state
	return &clone, nil
}

// UpdateRateLimit stores a copy of the supplied state.
func (m *MemoryStore) UpdateRateLimit(ctx context.Context, backend string, state *core.RateLimitState) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if state == nil {
		delete(m.state, backend)
		return nil
	}
	clone := *state
	m.state[backend] = &clone
	return nil
}
