package analyzer

import (
	"fmt"
	"sync"

	"fvg-alert-bot/internal/market"
)

// CandleCache holds candle series fetched during one analysis cycle so each
// (symbol, timeframe) pair is requested from the broker at most once per
// cycle. The orchestrator clears it at the start of every cycle, which keeps
// memory bounded by the watchlist size.
type CandleCache struct {
	mu    sync.RWMutex
	cache map[string][]market.Candle
}

// NewCandleCache creates an empty cache.
func NewCandleCache() *CandleCache {
	return &CandleCache{cache: make(map[string][]market.Candle)}
}

func cacheKey(symbol string, timeframe market.Timeframe) string {
	return fmt.Sprintf("%s_%s", symbol, timeframe)
}

// Get returns the cached series for a (symbol, timeframe) pair.
func (cc *CandleCache) Get(symbol string, timeframe market.Timeframe) ([]market.Candle, bool) {
	cc.mu.RLock()
	defer cc.mu.RUnlock()

	candles, ok := cc.cache[cacheKey(symbol, timeframe)]
	return candles, ok
}

// Set stores a series for a (symbol, timeframe) pair.
func (cc *CandleCache) Set(symbol string, timeframe market.Timeframe, candles []market.Candle) {
	cc.mu.Lock()
	defer cc.mu.Unlock()

	cc.cache[cacheKey(symbol, timeframe)] = candles
}

// Clear drops everything. Called at the start of each cycle so no stale
// series survives into the next pass.
func (cc *CandleCache) Clear() {
	cc.mu.Lock()
	defer cc.mu.Unlock()

	cc.cache = make(map[string][]market.Candle)
}

// Len returns the number of cached series.
func (cc *CandleCache) Len() int {
	cc.mu.RLock()
	defer cc.mu.RUnlock()

	return len(cc.cache)
}
