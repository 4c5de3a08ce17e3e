package ratelimit

import (
	"strings"
	"sync"
	"time"
)

// maxKeys caps the tracked keyspace. Beyond it the limiter resets all
// buckets rather than grow without bound.
const maxKeys = 50000

// Limiter enforces a per-key sliding one-minute window.
type Limiter struct {
	mu      sync.Mutex
	limit   int
	window  time.Duration
	buckets map[string][]time.Time
	now     func() time.Time
}

// New returns a limiter allowing limit requests per key per minute.
func New(limit int) *Limiter {
	return &Limiter{
		limit:   limit,
		window:  time.Minute,
		buckets: make(map[string][]time.Time),
		now:     time.Now,
	}
}

// Key normalizes an API key header value into a bucket key. Empty or
// blank keys share the anonymous bucket.
func Key(apiKey string) string {
	k := strings.TrimSpace(apiKey)
	if k == "" {
		return "anonymous"
	}
	return k
}

// Allow records a request for key and reports whether it fits the window.
func (l *Limiter) Allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()

	if len(l.buckets) > maxKeys {
		l.buckets = make(map[string][]time.Time)
	}

	ts := l.buckets[key]
	kept := ts[:0]
	for _, t := range ts {
		if now.Sub(t) < l.window {
			kept = append(kept, t)
		}
	}
	if len(kept) >= l.limit {
		l.buckets[key] = kept
		return false
	}
	l.buckets[key] = append(kept, now)
	return true
}
