package broker

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"fvg-alert-bot/internal/market"
)

// TickStream subscribes to the bridge's websocket tick feed and keeps the
// latest quote per symbol in memory. It is an optional accelerator: when the
// stream is down or has no quote for a symbol, callers fall back to the REST
// client.
type TickStream struct {
	url     string
	symbols []string
	logger  zerolog.Logger

	mu     sync.RWMutex
	latest map[string]market.Tick
}

// NewTickStream creates a stream for the given websocket URL and symbols.
func NewTickStream(url string, symbols []string, logger zerolog.Logger) *TickStream {
	return &TickStream{
		url:     url,
		symbols: symbols,
		logger:  logger.With().Str("component", "tick_stream").Logger(),
		latest:  make(map[string]market.Tick),
	}
}

type streamTick struct {
	Symbol string  `json:"symbol"`
	Bid    float64 `json:"bid"`
	Ask    float64 `json:"ask"`
	Time   int64   `json:"time"`
}

type subscribeRequest struct {
	Action  string   `json:"action"`
	Symbols []string `json:"symbols"`
}

// Run connects and consumes ticks until ctx is cancelled, reconnecting with a
// fixed delay after any failure.
func (s *TickStream) Run(ctx context.Context) {
	const reconnectDelay = 10 * time.Second

	for {
		if err := s.consume(ctx); err != nil {
			if ctx.Err() != nil {
				return
			}
			s.logger.Warn().Err(err).Msg("tick stream disconnected, reconnecting")
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(reconnectDelay):
		}
	}
}

func (s *TickStream) consume(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, s.url, nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	if err := conn.WriteJSON(subscribeRequest{Action: "subscribe", Symbols: s.symbols}); err != nil {
		return err
	}
	s.logger.Info().Int("symbols", len(s.symbols)).Msg("tick stream connected")

	// Close the connection when ctx is cancelled so ReadMessage unblocks.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}

		var tick streamTick
		if err := json.Unmarshal(data, &tick); err != nil {
			s.logger.Debug().Err(err).Msg("skipping malformed tick")
			continue
		}

		s.mu.Lock()
		s.latest[tick.Symbol] = market.Tick{
			Symbol: tick.Symbol,
			Bid:    tick.Bid,
			Ask:    tick.Ask,
			Time:   time.Unix(tick.Time, 0).UTC(),
		}
		s.mu.Unlock()
	}
}

// Latest returns the most recent streamed tick for a symbol, if any.
func (s *TickStream) Latest(symbol string) (market.Tick, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	tick, ok := s.latest[symbol]
	return tick, ok
}

// StreamingSource layers the tick stream over a RatesSource: ticks come from
// the stream when fresh, everything else passes through to the REST client.
type StreamingSource struct {
	RatesSource
	stream *TickStream
}

// NewStreamingSource wraps base with stream-served ticks.
func NewStreamingSource(base RatesSource, stream *TickStream) *StreamingSource {
	return &StreamingSource{RatesSource: base, stream: stream}
}

// LatestTick prefers the streamed quote and falls back to REST.
func (s *StreamingSource) LatestTick(ctx context.Context, symbol string) (market.Tick, error) {
	if tick, ok := s.stream.Latest(symbol); ok {
		return tick, nil
	}
	return s.RatesSource.LatestTick(ctx, symbol)
}
