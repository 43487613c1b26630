package kvstore

import (
	"context"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/bashaMendi/ToDo-back/internal/common"
)

// DefaultSweepInterval is how often the fallback store evicts expired keys
// when no interval is configured.
const DefaultSweepInterval = 60 * time.Second

type memoryEntry struct {
	value     string
	expiresAt time.Time
}

func (e memoryEntry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && now.After(e.expiresAt)
}

// MemoryStore is the process-local fallback backend. It has no native TTL
// enforcement, so a janitor goroutine sweeps expired keys periodically;
// reads additionally check expiry lazily so a key never outlives its TTL
// between sweeps.
type MemoryStore struct {
	mu    sync.Mutex
	items map[string]memoryEntry

	done      chan struct{}
	closeOnce sync.Once
}

// NewMemoryStore creates a fallback store and starts its sweep janitor.
// A non-positive sweepInterval falls back to DefaultSweepInterval.
func NewMemoryStore(sweepInterval time.Duration) *MemoryStore {
	if sweepInterval <= 0 {
		sweepInterval = DefaultSweepInterval
	}
	s := &MemoryStore{
		items: make(map[string]memoryEntry),
		done:  make(chan struct{}),
	}
	go s.sweepLoop(sweepInterval)
	return s
}

func (s *MemoryStore) sweepLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			s.sweep(time.Now())
		}
	}
}

func (s *MemoryStore) sweep(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, e := range s.items {
		if e.expired(now) {
			delete(s.items, k)
		}
	}
}

func (s *MemoryStore) Get(ctx context.Context, key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.items[key]
	if !ok {
		return "", common.ErrorNotFound
	}
	if e.expired(time.Now()) {
		delete(s.items, key)
		return "", common.ErrorNotFound
	}
	return e.value, nil
}

func (s *MemoryStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := memoryEntry{value: value}
	if ttl > 0 {
		e.expiresAt = time.Now().Add(ttl)
	}
	s.items[key] = e
	return nil
}

func (s *MemoryStore) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.items, key)
	return nil
}

func (s *MemoryStore) Increment(ctx context.Context, key string, window time.Duration) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	e, ok := s.items[key]
	if !ok || e.expired(now) {
		// first write in the window sets the expiry
		s.items[key] = memoryEntry{value: "1", expiresAt: now.Add(window)}
		return 1, nil
	}

	n, err := strconv.ParseInt(e.value, 10, 64)
	if err != nil {
		return 0, common.ErrorInternal
	}
	n++
	// expiry is deliberately not refreshed inside the window
	e.value = strconv.FormatInt(n, 10)
	s.items[key] = e
	return n, nil
}

func (s *MemoryStore) DeleteByPrefix(ctx context.Context, prefix string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k := range s.items {
		if strings.HasPrefix(k, prefix) {
			delete(s.items, k)
		}
	}
	return nil
}

// Close stops the janitor. Safe to call multiple times.
func (s *MemoryStore) Close() error {
	s.closeOnce.Do(func() { close(s.done) })
	return nil
}

// Len reports the number of live entries. Test support.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}
