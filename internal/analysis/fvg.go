// Package analysis implements the pattern-detection core: swing points, Fair
// Value Gaps, candle classification, two-candle rejections and PD rays. All
// functions operate on immutable candle slices and recompute their results
// from scratch; nothing here holds market state between cycles.
package analysis

import (
	"strings"
	"sync"
	"time"

	"fvg-alert-bot/internal/market"
)

// FVGType is the polarity of a Fair Value Gap.
type FVGType string

const (
	Bullish FVGType = "bullish"
	Bearish FVGType = "bearish"
)

// SwingKind distinguishes swing highs from swing lows.
type SwingKind string

const (
	SwingHigh SwingKind = "high"
	SwingLow  SwingKind = "low"
)

// SwingPoint is a directional pivot in a candle series.
type SwingPoint struct {
	Kind  SwingKind
	Price float64
	Time  time.Time
	Index int
}

// FVG is a three-candle price imbalance. Top and Bottom bound the untraded
// zone, Time is the middle candle's time, and CandlesClosed records the close
// status of the three forming candles at detection time.
type FVG struct {
	Type          FVGType
	Top           float64
	Bottom        float64
	Size          float64
	Time          time.Time
	IsConfirmed   bool
	Mitigated     bool
	CandlesClosed [3]bool
}

// ReentryFVG is a gap of the same polarity as an earlier one, formed entirely
// after the earlier gap was mitigated. ChainDepth counts how many re-entries
// deep the chain runs (the original FVG is depth 0).
type ReentryFVG struct {
	FVG
	ChainDepth int
}

// Detector finds swings and Fair Value Gaps. Minimum gap sizes are resolved
// per symbol class and memoized per symbol.
type Detector struct {
	minSizes      map[string]float64
	maxChainDepth int

	mu       sync.Mutex
	sizeByID map[string]float64
}

// NewDetector creates a detector with the given per-class minimum gap sizes
// ("default" is required; "metals" and "crypto" are optional overrides).
func NewDetector(minSizes map[string]float64, maxChainDepth int) *Detector {
	if maxChainDepth <= 0 {
		maxChainDepth = 3
	}
	return &Detector{
		minSizes:      minSizes,
		maxChainDepth: maxChainDepth,
		sizeByID:      make(map[string]float64),
	}
}

// MinSize resolves the minimum gap size for a symbol. Metals and crypto
// symbols are recognized by substring, everything else uses the default.
func (d *Detector) MinSize(symbol string) float64 {
	d.mu.Lock()
	defer d.mu.Unlock()

	if size, ok := d.sizeByID[symbol]; ok {
		return size
	}

	size := d.minSizes["default"]
	switch {
	case strings.Contains(symbol, "XAU") || strings.Contains(symbol, "XAG"):
		if s, ok := d.minSizes["metals"]; ok {
			size = s
		}
	case strings.Contains(symbol, "BTC") || strings.Contains(symbol, "ETH"):
		if s, ok := d.minSizes["crypto"]; ok {
			size = s
		}
	}

	d.sizeByID[symbol] = size
	return size
}

// FindSwing returns the swing point nearest to the end of the series,
// scanning backward from the second-to-last bar. A swing high at i needs
// high[i] > high[i+1] and either high[i] > high[i-1], or high[i] == high[i-1]
// with high[i] > high[i-2]; swing lows mirror the condition on lows. Returns
// nil for series shorter than 4 bars or when no pivot qualifies.
func (d *Detector) FindSwing(candles []market.Candle) *SwingPoint {
	if len(candles) < 4 {
		return nil
	}

	for i := len(candles) - 2; i > 2; i-- {
		next := candles[i+1].High
		pivot := candles[i].High
		prev := candles[i-1].High
		prev2 := candles[i-2].High

		if pivot > next && (pivot > prev || (pivot == prev && pivot > prev2)) {
			return &SwingPoint{
				Kind:  SwingHigh,
				Price: pivot,
				Time:  candles[i].Time,
				Index: i,
			}
		}

		nextLow := candles[i+1].Low
		pivotLow := candles[i].Low
		prevLow := candles[i-1].Low
		prev2Low := candles[i-2].Low

		if pivotLow < nextLow && (pivotLow < prevLow || (pivotLow == prevLow && pivotLow < prev2Low)) {
			return &SwingPoint{
				Kind:  SwingLow,
				Price: pivotLow,
				Time:  candles[i].Time,
				Index: i,
			}
		}
	}
	return nil
}

// FindFVGBeforeSwing scans backward from the newest candle triple down to
// (not including) swingIndex and returns the first gap of either polarity at
// least the symbol's minimum size, or nil. now is broker time, used to mark
// the forming candles as closed or still open.
func (d *Detector) FindFVGBeforeSwing(candles []market.Candle, swingIndex int, timeframe market.Timeframe, symbol string, now time.Time) *FVG {
	minSize := d.MinSize(symbol)

	for i := len(candles) - 3; i > swingIndex; i-- {
		c1, c2, c3 := candles[i], candles[i+1], candles[i+2]

		closed := [3]bool{
			timeframe.IsCandleClosed(c1.Time, now),
			timeframe.IsCandleClosed(c2.Time, now),
			timeframe.IsCandleClosed(c3.Time, now),
		}
		allClosed := closed[0] && closed[1] && closed[2]

		if c3.High < c1.Low {
			gap := c1.Low - c3.High
			if gap >= minSize {
				return &FVG{
					Type:          Bearish,
					Top:           c1.Low,
					Bottom:        c3.High,
					Size:          gap,
					Time:          c2.Time,
					IsConfirmed:   allClosed,
					CandlesClosed: closed,
				}
			}
		}

		if c3.Low > c1.High {
			gap := c3.Low - c1.High
			if gap >= minSize {
				return &FVG{
					Type:          Bullish,
					Top:           c3.Low,
					Bottom:        c1.High,
					Size:          gap,
					Time:          c2.Time,
					IsConfirmed:   allClosed,
					CandlesClosed: closed,
				}
			}
		}
	}
	return nil
}

// IsMitigated reports whether any candle strictly after the FVG's time has
// traded into the gap: a low below the top for bullish gaps, a high above the
// bottom for bearish ones. The transition is one-way; callers never clear it.
func (d *Detector) IsMitigated(candles []market.Candle, fvg *FVG) bool {
	return d.mitigationIndex(candles, fvg) >= 0
}

// mitigationIndex returns the index of the first candle that mitigates the
// FVG, or -1.
func (d *Detector) mitigationIndex(candles []market.Candle, fvg *FVG) int {
	for i, c := range candles {
		if !c.Time.After(fvg.Time) {
			continue
		}
		if fvg.Type == Bullish && c.Low < fvg.Top {
			return i
		}
		if fvg.Type == Bearish && c.High > fvg.Bottom {
			return i
		}
	}
	return -1
}

// FindReentry walks the re-entry chain starting from an original, mitigated
// FVG: each link is a same-type gap formed only from candles after the
// previous link's mitigation. The walk is an explicit loop bounded by the
// configured maximum chain depth; the deepest link found is returned, or nil
// when the original has no re-entry yet.
func (d *Detector) FindReentry(candles []market.Candle, original *FVG, timeframe market.Timeframe, symbol string, now time.Time) *ReentryFVG {
	var result *ReentryFVG

	current := *original
	for depth := 1; depth <= d.maxChainDepth; depth++ {
		mitIdx := d.mitigationIndex(candles, &current)
		if mitIdx < 0 {
			break
		}

		next := d.findGapAfter(candles, mitIdx+1, current.Type, timeframe, symbol, now)
		if next == nil {
			break
		}
		next.Mitigated = d.IsMitigated(candles, next)

		result = &ReentryFVG{FVG: *next, ChainDepth: depth}
		current = *next
	}
	return result
}

// findGapAfter returns the earliest gap of the wanted polarity formed by a
// candle triple starting at or after index from.
func (d *Detector) findGapAfter(candles []market.Candle, from int, want FVGType, timeframe market.Timeframe, symbol string, now time.Time) *FVG {
	minSize := d.MinSize(symbol)

	for i := from; i+2 < len(candles); i++ {
		c1, c2, c3 := candles[i], candles[i+1], candles[i+2]

		var gap, top, bottom float64
		switch want {
		case Bullish:
			if c3.Low <= c1.High {
				continue
			}
			gap = c3.Low - c1.High
			top, bottom = c3.Low, c1.High
		case Bearish:
			if c3.High >= c1.Low {
				continue
			}
			gap = c1.Low - c3.High
			top, bottom = c1.Low, c3.High
		}
		if gap < minSize {
			continue
		}

		closed := [3]bool{
			timeframe.IsCandleClosed(c1.Time, now),
			timeframe.IsCandleClosed(c2.Time, now),
			timeframe.IsCandleClosed(c3.Time, now),
		}
		return &FVG{
			Type:          want,
			Top:           top,
			Bottom:        bottom,
			Size:          gap,
			Time:          c2.Time,
			IsConfirmed:   closed[0] && closed[1] && closed[2],
			CandlesClosed: closed,
		}
	}
	return nil
}
