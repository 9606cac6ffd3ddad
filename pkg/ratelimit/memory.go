package ratelimit

import (
	"context"
	"sync"
	"time"
)

// MemoryLimiter owns the process-wide counter table. Create it once at
// startup and share it; it is never reset.
type MemoryLimiter struct {
	mu      sync.Mutex
	entries map[string]*Entry
	now     func() time.Time
}

// NewMemoryLimiter creates an empty in-memory limiter.
func NewMemoryLimiter() *MemoryLimiter {
	return &MemoryLimiter{
		entries: make(map[string]*Entry),
		now:     time.Now,
	}
}

// Check implements Limiter. It never returns an error.
func (l *MemoryLimiter) Check(_ context.Context, key string, maxRequests int, window time.Duration) (Decision, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if len(l.entries) > SweepThreshold {
		l.sweep(now)
	}

	entry, ok := l.entries[key]
	if !ok || entry.Expired(now) {
		l.entries[key] = &Entry{Count: 1, ResetAt: now.Add(window)}
		return Decision{Allowed: true, RetryAfter: window}, nil
	}

	if entry.Count >= maxRequests {
		return Decision{Allowed: false, RetryAfter: entry.RetryAfter(now)}, nil
	}

	entry.Count++
	return Decision{Allowed: true, RetryAfter: entry.RetryAfter(now)}, nil
}

// Len returns the number of tracked keys, expired ones included.
func (l *MemoryLimiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

func (l *MemoryLimiter) sweep(now time.Time) {
	for key, entry := range l.entries {
		if entry.Expired(now) {
			delete(l.entries, key)
		}
	}
}
