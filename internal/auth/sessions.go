package auth

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"sync"
	"time"
)

// minSessionTTL floors configured session lifetimes.
const minSessionTTL = 60 * time.Second

// SessionStore tracks bearer tokens issued by the login endpoint.
type SessionStore struct {
	mu       sync.Mutex
	ttl      time.Duration
	sessions map[string]time.Time
	now      func() time.Time
}

// NewSessionStore returns a store issuing tokens valid for ttl, floored
// at one minute.
func NewSessionStore(ttl time.Duration) *SessionStore {
	if ttl < minSessionTTL {
		ttl = minSessionTTL
	}
	return &SessionStore{
		ttl:      ttl,
		sessions: make(map[string]time.Time),
		now:      time.Now,
	}
}

// Create issues a fresh token and returns it with its expiry.
func (s *SessionStore) Create() (string, time.Time, error) {
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return "", time.Time{}, fmt.Errorf("generate session token: %w", err)
	}
	token := base64.RawURLEncoding.EncodeToString(raw)

	s.mu.Lock()
	defer s.mu.Unlock()
	expiry := s.now().Add(s.ttl)
	s.sessions[token] = expiry
	return token, expiry, nil
}

// Validate reports whether token is live. Expired tokens are removed on
// access.
func (s *SessionStore) Validate(token string) bool {
	if token == "" {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	expiry, ok := s.sessions[token]
	if !ok {
		return false
	}
	if !s.now().Before(expiry) {
		delete(s.sessions, token)
		return false
	}
	return true
}

// Revoke drops token if present.
func (s *SessionStore) Revoke(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, token)
}

// Purge sweeps expired sessions and returns how many were removed.
func (s *SessionStore) Purge() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	removed := 0
	for token, expiry := range s.sessions {
		if !now.Before(expiry) {
			delete(s.sessions, token)
			removed++
		}
	}
	return removed
}

// Len reports the number of stored sessions, including any not yet swept.
func (s *SessionStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}
