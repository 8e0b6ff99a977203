// Package circuit implements a three-state circuit breaker for the broker
// bridge. Repeated request failures open the breaker so a dead bridge fails
// fast instead of burning a full retry cycle per endpoint per symbol.
package circuit

import (
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// State is the breaker state.
type State string

const (
	StateClosed   State = "closed"    // normal operation
	StateOpen     State = "open"      // requests rejected
	StateHalfOpen State = "half_open" // probing recovery
)

// Config holds breaker thresholds.
type Config struct {
	// FailureThreshold is the number of consecutive failed requests that
	// trips the breaker.
	FailureThreshold int
	// Cooldown is how long the breaker stays open before a probe request is
	// let through.
	Cooldown time.Duration
}

// DefaultConfig returns thresholds suited to a polling analysis loop.
func DefaultConfig() Config {
	return Config{
		FailureThreshold: 5,
		Cooldown:         30 * time.Second,
	}
}

// Breaker tracks consecutive request failures. After the threshold it opens
// for the cooldown period; the first request after the cooldown runs as a
// probe, and its outcome decides between closing again and re-opening.
type Breaker struct {
	cfg    Config
	logger zerolog.Logger
	now    func() time.Time

	mu       sync.Mutex
	state    State
	failures int
	openedAt time.Time
}

// NewBreaker creates a closed breaker. Zero config fields fall back to the
// defaults.
func NewBreaker(cfg Config, logger zerolog.Logger) *Breaker {
	def := DefaultConfig()
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = def.FailureThreshold
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = def.Cooldown
	}
	return &Breaker{
		cfg:    cfg,
		logger: logger.With().Str("component", "circuit").Logger(),
		now:    time.Now,
		state:  StateClosed,
	}
}

// Allow reports whether a request may go out. While open it returns an error
// naming the remaining cooldown; once the cooldown has passed the breaker
// moves to half-open and lets the request through as a probe.
func (b *Breaker) Allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state != StateOpen {
		return nil
	}

	elapsed := b.now().Sub(b.openedAt)
	if elapsed < b.cfg.Cooldown {
		return fmt.Errorf("circuit open, retry in %v", (b.cfg.Cooldown - elapsed).Round(time.Second))
	}

	b.state = StateHalfOpen
	b.logger.Info().Msg("Circuit half-open, probing bridge")
	return nil
}

// RecordSuccess clears the failure count and closes a half-open breaker.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failures = 0
	if b.state != StateClosed {
		b.state = StateClosed
		b.logger.Info().Msg("Circuit closed, bridge recovered")
	}
}

// RecordFailure counts a failed request. A half-open probe failure re-opens
// immediately; in the closed state the breaker opens once the threshold is
// reached.
func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failures++
	if b.state == StateHalfOpen {
		b.open("probe failed")
		return
	}
	if b.state == StateClosed && b.failures >= b.cfg.FailureThreshold {
		b.open(fmt.Sprintf("%d consecutive failures", b.failures))
	}
}

func (b *Breaker) open(reason string) {
	b.state = StateOpen
	b.openedAt = b.now()
	b.logger.Warn().Str("reason", reason).Dur("cooldown", b.cfg.Cooldown).Msg("Circuit opened")
}

// CurrentState returns the breaker state.
func (b *Breaker) CurrentState() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}
