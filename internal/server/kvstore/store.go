// Package kvstore defines the ephemeral key/value contract backing sessions,
// CSRF tokens, reset/undo tokens, rate-limit counters, and the list-query
// cache. Two interchangeable backends exist: Redis (shared, durable) and a
// process-local map with a periodic eviction sweep. Selection happens once
// at startup; callers never pick a backend per call.
package kvstore

import (
	"context"
	"time"
)

// Store is the ephemeral-store contract.
//
// Absent keys are reported as common.ErrorNotFound. Increment is atomic with
// respect to concurrent callers sharing a key and sets the key's expiry to
// window only when the increment creates the key; later increments inside
// the window do not refresh the TTL (fixed-window semantics).
type Store interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Increment(ctx context.Context, key string, window time.Duration) (int64, error)

	// DeleteByPrefix removes every key under the given prefix. Used for
	// broad query-cache invalidation.
	DeleteByPrefix(ctx context.Context, prefix string) error

	Close() error
}
