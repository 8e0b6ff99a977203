package market

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// TickSource supplies the latest quote for a symbol.
type TickSource interface {
	LatestTick(ctx context.Context, symbol string) (Tick, error)
}

// TimeSync tracks the offset between the broker clock and the local clock so
// that candle-close decisions and cache day boundaries use broker time. The
// offset is computed once from the latest tick of a liquid symbol and
// recomputed on demand when it is missing.
type TimeSync struct {
	mu     sync.Mutex
	source TickSource
	symbol string
	logger zerolog.Logger

	offset    time.Duration
	hasOffset bool
}

// NewTimeSync creates a TimeSync using symbol's ticks as the broker clock
// reference.
func NewTimeSync(source TickSource, symbol string, logger zerolog.Logger) *TimeSync {
	return &TimeSync{
		source: source,
		symbol: symbol,
		logger: logger.With().Str("component", "timesync").Logger(),
	}
}

// ComputeOffset refreshes the broker-local clock offset from the latest tick.
func (ts *TimeSync) ComputeOffset(ctx context.Context) error {
	tick, err := ts.source.LatestTick(ctx, ts.symbol)
	if err != nil {
		return err
	}

	offset := tick.Time.Sub(time.Now())
	ts.mu.Lock()
	ts.offset = offset
	ts.hasOffset = true
	ts.mu.Unlock()

	ts.logger.Info().Dur("offset", offset).Msg("broker time offset computed")
	return nil
}

// Now returns the current broker time. When no offset is available it tries
// one direct tick read, and falls back to local time with a warning if that
// also fails.
func (ts *TimeSync) Now(ctx context.Context) time.Time {
	ts.mu.Lock()
	hasOffset := ts.hasOffset
	offset := ts.offset
	ts.mu.Unlock()

	if hasOffset {
		return time.Now().Add(offset)
	}

	tick, err := ts.source.LatestTick(ctx, ts.symbol)
	if err != nil {
		ts.logger.Warn().Err(err).Msg("broker time unavailable, falling back to local clock")
		return time.Now()
	}

	ts.mu.Lock()
	ts.offset = tick.Time.Sub(time.Now())
	ts.hasOffset = true
	ts.mu.Unlock()

	return tick.Time
}
