package events

import (
	"context"
	"sync"
	"time"
)

const sweepEvery = 256

// MemoryProcessedStore keeps processed ids in process memory with a TTL.
type MemoryProcessedStore struct {
	mu     sync.Mutex
	ttl    time.Duration
	seen   map[string]time.Time // key -> expiry
	writes int
	now    func() time.Time
}

// NewMemoryProcessedStore creates a store; ttl <= 0 keeps ids forever.
func NewMemoryProcessedStore(ttl time.Duration) *MemoryProcessedStore {
	return &MemoryProcessedStore{
		ttl:  ttl,
		seen: make(map[string]time.Time),
		now:  time.Now,
	}
}

func (s *MemoryProcessedStore) MarkProcessed(_ context.Context, provider, eventID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	key := processedKey(provider, eventID)
	if expiry, ok := s.seen[key]; ok && (expiry.IsZero() || now.Before(expiry)) {
		return false, nil
	}

	var expiry time.Time
	if s.ttl > 0 {
		expiry = now.Add(s.ttl)
	}
	s.seen[key] = expiry

	s.writes++
	if s.writes%sweepEvery == 0 {
		s.sweepLocked(now)
	}
	return true, nil
}

func (s *MemoryProcessedStore) sweepLocked(now time.Time) {
	for key, expiry := range s.seen {
		if !expiry.IsZero() && !now.Before(expiry) {
			delete(s.seen, key)
		}
	}
}

// Len reports how many ids are currently held, expired or not.
func (s *MemoryProcessedStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.seen)
}
