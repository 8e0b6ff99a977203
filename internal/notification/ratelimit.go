package notification

import (
	"sync"
	"time"
)

const prefixLength = 50

// RateLimiter suppresses near-duplicate messages. Two messages whose first
// 50 characters match are considered the same message; after one goes out,
// repeats inside the window are dropped.
type RateLimiter struct {
	window time.Duration
	now    func() time.Time

	mu       sync.Mutex
	lastSent map[string]time.Time
}

// NewRateLimiter creates a limiter with the given suppression window.
func NewRateLimiter(window time.Duration) *RateLimiter {
	return &RateLimiter{
		window:   window,
		now:      time.Now,
		lastSent: make(map[string]time.Time),
	}
}

// Allow reports whether a message with this content may be sent now, and if
// so records it.
func (r *RateLimiter) Allow(message string) bool {
	prefix := message
	if len(prefix) > prefixLength {
		prefix = prefix[:prefixLength]
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	if last, ok := r.lastSent[prefix]; ok && now.Sub(last) < r.window {
		return false
	}
	r.lastSent[prefix] = now

	// Drop expired entries so the map does not grow without bound.
	for key, t := range r.lastSent {
		if now.Sub(t) >= r.window {
			delete(r.lastSent, key)
		}
	}
	return true
}
