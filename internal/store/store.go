package store

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// Store wraps the shared Redis client together with the per-operation timeout
// policy. It is constructed once by the composition root and injected into the
// managers; there is no package-level client.
type Store struct {
	client  *redis.Client
	timeout time.Duration
}

// New creates a store adapter. timeout bounds every single store operation
// independently of the caller's request deadline; zero falls back to 3s.
func New(client *redis.Client, timeout time.Duration) *Store {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &Store{client: client, timeout: timeout}
}

// Client exposes the underlying Redis client for managers.
func (s *Store) Client() *redis.Client { return s.client }

// Context derives a context bounded by the store operation timeout. A timed-out
// call is a failure, never an "unknown": callers treat it as fail-closed.
func (s *Store) Context(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, s.timeout)
}

// Ping verifies store reachability (used by the readiness endpoint).
func (s *Store) Ping(ctx context.Context) error {
	ctx, cancel := s.Context(ctx)
	defer cancel()
	return s.client.Ping(ctx).Err()
}
