package market

import "time"

// Candle represents a single OHLC bar. Time is the bar's open time; a series
// is always ordered by strictly increasing time, newest last.
type Candle struct {
	Open  float64
	High  float64
	Low   float64
	Close float64
	Time  time.Time
}

// Body returns the absolute body size.
func (c Candle) Body() float64 {
	if c.Close > c.Open {
		return c.Close - c.Open
	}
	return c.Open - c.Close
}

// Range returns the high-low distance.
func (c Candle) Range() float64 {
	return c.High - c.Low
}

// UpperWick returns the distance from the body top to the high.
func (c Candle) UpperWick() float64 {
	if c.Open > c.Close {
		return c.High - c.Open
	}
	return c.High - c.Close
}

// LowerWick returns the distance from the low to the body bottom.
func (c Candle) LowerWick() float64 {
	if c.Open < c.Close {
		return c.Open - c.Low
	}
	return c.Close - c.Low
}

// IsBullish reports whether the candle closed above its open.
func (c Candle) IsBullish() bool {
	return c.Close > c.Open
}

// IsBearish reports whether the candle closed below its open.
func (c Candle) IsBearish() bool {
	return c.Close < c.Open
}

// Tick is the latest quote for a symbol, stamped with broker time.
type Tick struct {
	Symbol string
	Bid    float64
	Ask    float64
	Time   time.Time
}

// SymbolInfo carries per-symbol metadata from the broker.
type SymbolInfo struct {
	Name  string
	Point float64 // minimal price increment (pip size)
}
