// Package ratelimit implements fixed-window request limiting over the
// ephemeral store, with aggregate counters for the observability endpoint.
package ratelimit

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/bashaMendi/ToDo-back/internal/logging"
	"github.com/bashaMendi/ToDo-back/internal/server/kvstore"
)

const keyPrefix = "ratelimit:"

// Stats is a snapshot of the limiter's aggregate counters.
type Stats struct {
	Total    uint64 `json:"total"`
	Blocked  uint64 `json:"blocked"`
	Failures uint64 `json:"failures"`
}

// Limiter checks fixed-window counters keyed by arbitrary strings (ip,
// ip:route, ...). Store failures default-allow unless strict mode is set.
type Limiter struct {
	store  kvstore.Store
	strict bool
	logger logging.Logger

	total    atomic.Uint64
	blocked  atomic.Uint64
	failures atomic.Uint64
}

// NewLimiter binds the limiter to a store. strict selects fail-closed
// behavior when the store errors.
func NewLimiter(store kvstore.Store, strict bool, logger logging.Logger) *Limiter {
	return &Limiter{store: store, strict: strict, logger: logger.With("module", "ratelimit")}
}

// Allow atomically increments the window counter for key and reports
// whether the call is within limit. The first increment of a window sets
// the window expiry; later ones do not slide it.
func (l *Limiter) Allow(ctx context.Context, key string, limit int, window time.Duration) bool {
	l.total.Add(1)

	count, err := l.store.Increment(ctx, keyPrefix+key, window)
	if err != nil {
		l.failures.Add(1)
		l.logger.Warn(ctx, "rate-limit store failure", "key", key, "error", err)
		if l.strict {
			l.blocked.Add(1)
			return false
		}
		return true
	}

	if count > int64(limit) {
		l.blocked.Add(1)
		return false
	}
	return true
}

// Reset clears the counter for key immediately. Administrative/test
// support.
func (l *Limiter) Reset(ctx context.Context, key string) error {
	return l.store.Delete(ctx, keyPrefix+key)
}

// Stats returns the current aggregate counters.
func (l *Limiter) Stats() Stats {
	return Stats{
		Total:    l.total.Load(),
		Blocked:  l.blocked.Load(),
		Failures: l.failures.Load(),
	}
}
