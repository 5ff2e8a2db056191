package recoveryinfra

import (
	"context"
	"sync"
	"time"

	"github.com/Abraxas-365/keystone/pkg/iam/recovery"
)

type memoryEntry struct {
	email   string
	expires time.Time
}

// MemoryStore keeps recovery tokens in process memory
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	now     func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: map[string]memoryEntry{}, now: time.Now}
}

// WithClock replaces the expiry clock
func (s *MemoryStore) WithClock(now func() time.Time) *MemoryStore {
	s.now = now
	return s
}

func (s *MemoryStore) Save(_ context.Context, token, email string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	for t, e := range s.entries {
		if !now.Before(e.expires) {
			delete(s.entries, t)
		}
	}
	s.entries[token] = memoryEntry{email: email, expires: now.Add(ttl)}
	return nil
}

func (s *MemoryStore) Consume(_ context.Context, token string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[token]
	if !ok {
		return "", recovery.ErrInvalidToken()
	}
	delete(s.entries, token)
	if !s.now().Before(e.expires) {
		return "", recovery.ErrInvalidToken()
	}
	return e.email, nil
}

var _ recovery.Store = (*MemoryStore)(nil)
