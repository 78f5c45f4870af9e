package auth

import (
	"sync"
	"time"
)

// TokenRevocationStore remembers the ids of logged-out tokens until they
// would have expired on their own. Safe for concurrent use.
type TokenRevocationStore struct {
	mu      sync.RWMutex
	entries map[string]time.Time // jti -> token expiry
	now     func() time.Time
	done    chan struct{}
	once    sync.Once
}

// NewTokenRevocationStore starts a goroutine that drops expired entries
// every interval. Call Close to stop it.
func NewTokenRevocationStore(interval time.Duration) *TokenRevocationStore {
	s := &TokenRevocationStore{
		entries: make(map[string]time.Time),
		now:     time.Now,
		done:    make(chan struct{}),
	}
	if interval > 0 {
		go s.cleanupLoop(interval)
	}
	return s
}

func (s *TokenRevocationStore) Revoke(jti string, expiresAt time.Time) {
	if jti == "" {
		return
	}
	s.mu.Lock()
	s.entries[jti] = expiresAt
	s.mu.Unlock()
}

func (s *TokenRevocationStore) IsRevoked(jti string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.entries[jti]
	return ok
}

// Count returns the number of currently revoked tokens.
func (s *TokenRevocationStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

func (s *TokenRevocationStore) Close() {
	s.once.Do(func() { close(s.done) })
}

func (s *TokenRevocationStore) cleanupLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			s.cleanup()
		}
	}
}

func (s *TokenRevocationStore) cleanup() {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	for jti, exp := range s.entries {
		if now.After(exp) {
			delete(s.entries, jti)
		}
	}
}
