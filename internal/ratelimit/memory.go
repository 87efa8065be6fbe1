package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// DefaultMaxKeys bounds the in-memory table.
const DefaultMaxKeys = 100000

// MemoryStore is a process-local Limiter. Check and increment happen under one mutex.
type MemoryStore struct {
	mu      sync.Mutex
	records map[string]Record
	limit   int
	window  time.Duration
	maxKeys int
	now     func() time.Time
}

// MemoryOption customizes a MemoryStore.
type MemoryOption func(*MemoryStore)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) MemoryOption {
	return func(s *MemoryStore) { s.now = now }
}

// WithMaxKeys caps the number of tracked senders.
func WithMaxKeys(n int) MemoryOption {
	return func(s *MemoryStore) { s.maxKeys = n }
}

func NewMemoryStore(limit int, window time.Duration, opts ...MemoryOption) *MemoryStore {
	s := &MemoryStore{
		records: make(map[string]Record),
		limit:   limit,
		window:  window,
		maxKeys: DefaultMaxKeys,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *MemoryStore) Allow(_ context.Context, key string) (Decision, error) {
	key = NormalizeKey(key)
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[key]
	if !ok || now.After(rec.ResetAt) {
		if !ok {
			if retryAt, full := s.makeRoom(now); full {
				return Decision{Allowed: false, Count: s.limit, Limit: s.limit, ResetAt: retryAt}, nil
			}
		}
		rec = Record{Count: 1, ResetAt: now.Add(s.window)}
		s.records[key] = rec
		return Decision{Allowed: true, Count: rec.Count, Limit: s.limit, ResetAt: rec.ResetAt}, nil
	}

	if rec.Count >= s.limit {
		return Decision{Allowed: false, Count: rec.Count, Limit: s.limit, ResetAt: rec.ResetAt}, nil
	}

	rec.Count++
	s.records[key] = rec
	return Decision{Allowed: true, Count: rec.Count, Limit: s.limit, ResetAt: rec.ResetAt}, nil
}

func (s *MemoryStore) Peek(_ context.Context, key string) (Record, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[NormalizeKey(key)]
	return rec, ok, nil
}

func (s *MemoryStore) Reset(_ context.Context, key string) error {
	s.mu.Lock()
	delete(s.records, NormalizeKey(key))
	s.mu.Unlock()
	return nil
}

// Len returns the number of tracked keys.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

// Sweep drops every expired window and returns how many were removed.
func (s *MemoryStore) Sweep() int {
	now := s.now()
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sweepLocked(now)
}

func (s *MemoryStore) sweepLocked(now time.Time) int {
	removed := 0
	for key, rec := range s.records {
		if now.After(rec.ResetAt) {
			delete(s.records, key)
			removed++
		}
	}
	return removed
}

// makeRoom keeps the table under maxKeys by dropping expired windows. Live windows are
// never evicted: when the table is still full the new key is refused until the earliest
// window expires, which is returned.
func (s *MemoryStore) makeRoom(now time.Time) (time.Time, bool) {
	if s.maxKeys <= 0 || len(s.records) < s.maxKeys {
		return time.Time{}, false
	}
	if s.sweepLocked(now) > 0 && len(s.records) < s.maxKeys {
		return time.Time{}, false
	}
	var earliest time.Time
	for _, rec := range s.records {
		if earliest.IsZero() || rec.ResetAt.Before(earliest) {
			earliest = rec.ResetAt
		}
	}
	return earliest, true
}
