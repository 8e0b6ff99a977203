package notification

import (
	"strings"
	"testing"
	"time"
)

func TestRateLimiterWindow(t *testing.T) {
	r := NewRateLimiter(60 * time.Second)

	current := time.Date(2025, 3, 3, 10, 0, 0, 0, time.UTC)
	r.now = func() time.Time { return current }

	msg := "EURUSD H1 bullish 2CR confirmed at 1.1050"
	if !r.Allow(msg) {
		t.Fatal("First send must be allowed")
	}
	if r.Allow(msg) {
		t.Fatal("Repeat inside the window must be suppressed")
	}

	current = current.Add(59 * time.Second)
	if r.Allow(msg) {
		t.Error("Repeat just inside the window must be suppressed")
	}

	current = current.Add(1 * time.Second)
	if !r.Allow(msg) {
		t.Error("Repeat after the window must be allowed")
	}
}

func TestRateLimiterDistinctMessages(t *testing.T) {
	r := NewRateLimiter(60 * time.Second)

	current := time.Date(2025, 3, 3, 10, 0, 0, 0, time.UTC)
	r.now = func() time.Time { return current }

	if !r.Allow("EURUSD H1 bullish 2CR") {
		t.Fatal("First message must be allowed")
	}
	if !r.Allow("GBPUSD H4 bearish 2CR") {
		t.Error("Unrelated message must not be rate limited")
	}
}

func TestRateLimiterPrefixMatching(t *testing.T) {
	r := NewRateLimiter(60 * time.Second)

	current := time.Date(2025, 3, 3, 10, 0, 0, 0, time.UTC)
	r.now = func() time.Time { return current }

	// Same first 50 characters, different tails.
	prefix := strings.Repeat("a", prefixLength)
	if !r.Allow(prefix + " updated levels 1.1050") {
		t.Fatal("First message must be allowed")
	}
	if r.Allow(prefix + " updated levels 1.1060") {
		t.Error("Messages sharing the prefix must be treated as duplicates")
	}
}

func TestRateLimiterCleansExpiredEntries(t *testing.T) {
	r := NewRateLimiter(60 * time.Second)

	current := time.Date(2025, 3, 3, 10, 0, 0, 0, time.UTC)
	r.now = func() time.Time { return current }

	r.Allow("first message")
	current = current.Add(2 * time.Minute)
	r.Allow("second message")

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.lastSent["first message"]; ok {
		t.Error("Expired entry must be dropped from the map")
	}
	if len(r.lastSent) != 1 {
		t.Errorf("Expected a single live entry, got %d", len(r.lastSent))
	}
}
