package broker

import (
	"context"
	"fmt"
	"sync"

	"fvg-alert-bot/internal/market"
)

// MockClient is an in-memory RatesSource for tests and mock mode. Candle
// series are keyed by symbol and timeframe and returned as-is.
type MockClient struct {
	mu      sync.RWMutex
	rates   map[string][]market.Candle
	ticks   map[string]market.Tick
	symbols map[string]market.SymbolInfo

	// FailRates forces GetRates to error for matching symbols.
	FailRates map[string]bool
}

// NewMockClient creates an empty mock source.
func NewMockClient() *MockClient {
	return &MockClient{
		rates:     make(map[string][]market.Candle),
		ticks:     make(map[string]market.Tick),
		symbols:   make(map[string]market.SymbolInfo),
		FailRates: make(map[string]bool),
	}
}

func ratesKey(symbol string, timeframe market.Timeframe) string {
	return symbol + ":" + timeframe.String()
}

// SetRates installs a candle series for a symbol and timeframe.
func (m *MockClient) SetRates(symbol string, timeframe market.Timeframe, candles []market.Candle) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rates[ratesKey(symbol, timeframe)] = candles
}

// SetTick installs the latest tick for a symbol.
func (m *MockClient) SetTick(tick market.Tick) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ticks[tick.Symbol] = tick
}

// SetSymbolInfo installs symbol metadata.
func (m *MockClient) SetSymbolInfo(info market.SymbolInfo) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.symbols[info.Name] = info
}

// GetRates returns the installed series, truncated to count newest bars.
func (m *MockClient) GetRates(ctx context.Context, symbol string, timeframe market.Timeframe, count int) ([]market.Candle, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.FailRates[symbol] {
		return nil, fmt.Errorf("mock: rates unavailable for %s", symbol)
	}

	candles, ok := m.rates[ratesKey(symbol, timeframe)]
	if !ok {
		return nil, nil
	}
	if count > 0 && len(candles) > count {
		candles = candles[len(candles)-count:]
	}
	out := make([]market.Candle, len(candles))
	copy(out, candles)
	return out, nil
}

// LatestTick returns the installed tick.
func (m *MockClient) LatestTick(ctx context.Context, symbol string) (market.Tick, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	tick, ok := m.ticks[symbol]
	if !ok {
		return market.Tick{}, fmt.Errorf("mock: no tick for %s", symbol)
	}
	return tick, nil
}

// SymbolInfo returns the installed metadata, defaulting to a 0.0001 point.
func (m *MockClient) SymbolInfo(ctx context.Context, symbol string) (market.SymbolInfo, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if info, ok := m.symbols[symbol]; ok {
		return info, nil
	}
	return market.SymbolInfo{Name: symbol, Point: 0.0001}, nil
}
