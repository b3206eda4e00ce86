package flowstate

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

type memoryEntry struct {
	pending   *Pending
	expiresAt time.Time
}

// MemoryStore is a thread-safe in-memory Store.
type MemoryStore struct {
	mu     sync.Mutex
	flows  map[string]memoryEntry
	now    func() time.Time
	logger zerolog.Logger
}

type MemoryOption func(*MemoryStore)

// WithClock overrides time.Now.
func WithClock(now func() time.Time) MemoryOption {
	return func(s *MemoryStore) { s.now = now }
}

func WithLogger(l zerolog.Logger) MemoryOption {
	return func(s *MemoryStore) { s.logger = l }
}

func NewMemoryStore(opts ...MemoryOption) *MemoryStore {
	s := &MemoryStore{
		flows:  make(map[string]memoryEntry),
		now:    time.Now,
		logger: zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Save stores a copy of p.
func (s *MemoryStore) Save(_ context.Context, state string, p *Pending, ttl time.Duration) error {
	if err := validate(state, p, ttl); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.flows[state] = memoryEntry{pending: p.clone(), expiresAt: s.now().Add(ttl)}
	return nil
}

func (s *MemoryStore) Take(_ context.Context, state string) (*Pending, error) {
	if state == "" {
		return nil, ErrInvalidState
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.flows[state]
	if !ok {
		return nil, ErrNotFound
	}
	delete(s.flows, state)

	if !s.now().Before(entry.expiresAt) {
		return nil, ErrNotFound
	}
	return entry.pending.clone(), nil
}

// Len counts stored flows, including expired ones not yet purged.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.flows)
}

// Purge drops expired flows and returns how many were removed.
func (s *MemoryStore) Purge() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	removed := 0
	for state, entry := range s.flows {
		if !now.Before(entry.expiresAt) {
			delete(s.flows, state)
			removed++
		}
	}
	return removed
}

// StartJanitor purges expired flows every interval until ctx is done.
func (s *MemoryStore) StartJanitor(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if n := s.Purge(); n > 0 {
					s.logger.Debug().Int("removed", n).Msg("purged expired flow states")
				}
			}
		}
	}()
}
