package analysis

import (
	"testing"
	"time"

	"fvg-alert-bot/internal/market"
)

var testBase = time.Date(2025, 3, 3, 0, 0, 0, 0, time.UTC)

func hourly(i int) time.Time {
	return testBase.Add(time.Duration(i) * time.Hour)
}

func monthly(i int) time.Time {
	return testBase.AddDate(0, i, 0)
}

func defaultDetector() *Detector {
	return NewDetector(map[string]float64{"default": 0.0001}, 3)
}

// TestFindSwingNearestMatch verifies that with two qualifying swing highs the
// one nearer to the end of the series wins.
func TestFindSwingNearestMatch(t *testing.T) {
	detector := defaultDetector()

	highs := []float64{2.00, 2.01, 2.02, 2.10, 2.05, 2.06, 2.20, 2.10, 2.05}
	candles := make([]market.Candle, len(highs))
	for i, h := range highs {
		// Strictly rising lows so no bar qualifies as a swing low.
		low := 1.00 + 0.01*float64(i)
		candles[i] = market.Candle{Open: low + 0.001, High: h, Low: low, Close: low + 0.002, Time: hourly(i)}
	}

	swing := detector.FindSwing(candles)
	if swing == nil {
		t.Fatal("Expected a swing point, got none")
	}
	if swing.Kind != SwingHigh {
		t.Errorf("Expected swing high, got %s", swing.Kind)
	}
	if swing.Index != 6 {
		t.Errorf("Expected nearest swing at index 6, got %d", swing.Index)
	}
	if swing.Price != 2.20 {
		t.Errorf("Expected swing price 2.20, got %f", swing.Price)
	}
}

func TestFindSwingTooShort(t *testing.T) {
	detector := defaultDetector()

	candles := []market.Candle{
		{High: 1.2, Low: 1.0, Time: hourly(0)},
		{High: 1.3, Low: 1.1, Time: hourly(1)},
		{High: 1.2, Low: 1.0, Time: hourly(2)},
	}
	if swing := detector.FindSwing(candles); swing != nil {
		t.Errorf("Expected no swing for a 3-bar series, got %+v", swing)
	}
}

// TestGapExactMinSize checks the inclusive boundary: a gap of exactly the
// minimum size qualifies, a fraction below it does not.
func TestGapExactMinSize(t *testing.T) {
	detector := NewDetector(map[string]float64{"default": 0.5}, 3)
	now := hourly(100) // far in the future, all candles closed

	build := func(c3Low float64) []market.Candle {
		return []market.Candle{
			{Open: 109.0, High: 110.0, Low: 108.0, Close: 109.5, Time: hourly(0)},
			// c1: high caps the gap bottom at 110.0
			{Open: 109.5, High: 110.0, Low: 109.0, Close: 109.75, Time: hourly(1)},
			{Open: 110.0, High: 111.0, Low: 109.5, Close: 110.75, Time: hourly(2)},
			{Open: 111.0, High: 112.0, Low: c3Low, Close: 111.5, Time: hourly(3)},
		}
	}

	fvg := detector.FindFVGBeforeSwing(build(110.5), 0, market.H1, "XAUUSD", now)
	if fvg == nil {
		t.Fatal("Expected an FVG for a gap of exactly min size")
	}
	if fvg.Type != Bullish {
		t.Errorf("Expected bullish FVG, got %s", fvg.Type)
	}
	if fvg.Size != 0.5 {
		t.Errorf("Expected size 0.5, got %f", fvg.Size)
	}
	if !fvg.IsConfirmed {
		t.Error("Expected FVG to be confirmed with all candles closed")
	}
	if !fvg.Time.Equal(hourly(2)) {
		t.Errorf("Expected FVG time to be the middle candle's, got %v", fvg.Time)
	}

	if fvg := detector.FindFVGBeforeSwing(build(110.25), 0, market.H1, "XAUUSD", now); fvg != nil {
		t.Errorf("Expected no FVG below min size, got %+v", fvg)
	}
}

// TestMitigationMonotonic verifies that mitigation never flips back once a
// later candle entered the gap.
func TestMitigationMonotonic(t *testing.T) {
	detector := defaultDetector()

	fvg := &FVG{Type: Bullish, Top: 1.1050, Bottom: 1.1000, Size: 0.0050, Time: hourly(2)}

	series := []market.Candle{
		{High: 1.1000, Low: 1.0950, Time: hourly(0)},
		{High: 1.1030, Low: 1.0990, Time: hourly(1)},
		{High: 1.1100, Low: 1.1050, Time: hourly(2)},
		{High: 1.1120, Low: 1.1060, Time: hourly(3)},
	}
	if detector.IsMitigated(series, fvg) {
		t.Fatal("FVG should not be mitigated while price stays above the top")
	}

	series = append(series, market.Candle{High: 1.1080, Low: 1.1040, Time: hourly(4)})
	if !detector.IsMitigated(series, fvg) {
		t.Fatal("FVG should be mitigated after a candle dips into the gap")
	}

	series = append(series,
		market.Candle{High: 1.1150, Low: 1.1100, Time: hourly(5)},
		market.Candle{High: 1.1200, Low: 1.1140, Time: hourly(6)},
	)
	if !detector.IsMitigated(series, fvg) {
		t.Error("Mitigation must persist for any forward extension of the series")
	}
}

// TestMonthlyGapAfterSwing exercises the full monthly setup: a gap positioned
// after the swing index is found, the same gap region excluded by the swing
// index is not.
func TestMonthlyGapAfterSwing(t *testing.T) {
	detector := defaultDetector()
	now := monthly(24)

	candles := []market.Candle{
		{Open: 1.1950, High: 1.2000, Low: 1.1900, Close: 1.1920, Time: monthly(0)},
		{Open: 1.1920, High: 1.1950, Low: 1.1850, Close: 1.1880, Time: monthly(1)},
		{Open: 1.1880, High: 1.1900, Low: 1.1800, Close: 1.1830, Time: monthly(2)},
		{Open: 1.1830, High: 1.1850, Low: 1.1750, Close: 1.1780, Time: monthly(3)},
		{Open: 1.1780, High: 1.1700, Low: 1.1600, Close: 1.1650, Time: monthly(4)}, // swing low
		{Open: 1.0960, High: 1.1000, Low: 1.0950, Close: 1.0990, Time: monthly(5)}, // c1
		{Open: 1.0995, High: 1.1030, Low: 1.0990, Close: 1.1025, Time: monthly(6)}, // middle
		{Open: 1.1055, High: 1.1100, Low: 1.1050, Close: 1.1090, Time: monthly(7)}, // c3
		{Open: 1.1090, High: 1.1120, Low: 1.1020, Close: 1.1100, Time: monthly(8)},
		{Open: 1.1100, High: 1.1110, Low: 1.1060, Close: 1.1080, Time: monthly(9)},
	}

	fvg := detector.FindFVGBeforeSwing(candles, 4, market.Monthly, "EURUSD", now)
	if fvg == nil {
		t.Fatal("Expected a bullish FVG after the swing index")
	}
	if fvg.Type != Bullish {
		t.Errorf("Expected bullish FVG, got %s", fvg.Type)
	}
	if fvg.Top != 1.1050 {
		t.Errorf("Expected top 1.1050, got %f", fvg.Top)
	}
	if fvg.Bottom != 1.1000 {
		t.Errorf("Expected bottom 1.1000, got %f", fvg.Bottom)
	}
	if fvg.Size != fvg.Top-fvg.Bottom {
		t.Errorf("Expected size to span the gap, got %f", fvg.Size)
	}
	if !fvg.IsConfirmed {
		t.Error("Expected confirmed FVG, all three bars closed")
	}

	// The swing index bounds the scan: anchored past the gap, nothing remains.
	if fvg := detector.FindFVGBeforeSwing(candles, 7, market.Monthly, "EURUSD", now); fvg != nil {
		t.Errorf("Expected no FVG when the swing index excludes the gap, got %+v", fvg)
	}
}

func TestFVGConfirmationOpenCandle(t *testing.T) {
	detector := NewDetector(map[string]float64{"default": 0.5}, 3)

	candles := []market.Candle{
		{Open: 109.0, High: 110.0, Low: 108.0, Close: 109.5, Time: hourly(0)},
		{Open: 109.5, High: 110.0, Low: 109.0, Close: 109.75, Time: hourly(1)},
		{Open: 110.0, High: 111.0, Low: 109.5, Close: 110.75, Time: hourly(2)},
		{Open: 111.0, High: 112.0, Low: 110.5, Close: 111.5, Time: hourly(3)},
	}

	// Broker time sits inside the last forming candle's hour.
	now := hourly(3).Add(30 * time.Minute)
	fvg := detector.FindFVGBeforeSwing(candles, 0, market.H1, "EURUSD", now)
	if fvg == nil {
		t.Fatal("Expected an FVG")
	}
	if fvg.IsConfirmed {
		t.Error("FVG must not be confirmed while the third candle is still open")
	}
	if !fvg.CandlesClosed[0] || !fvg.CandlesClosed[1] || fvg.CandlesClosed[2] {
		t.Errorf("Expected closed flags [true true false], got %v", fvg.CandlesClosed)
	}
}

func TestMinSizeBySymbolClass(t *testing.T) {
	detector := NewDetector(map[string]float64{
		"default": 0.0001,
		"metals":  0.5,
		"crypto":  10,
	}, 3)

	tests := []struct {
		symbol string
		want   float64
	}{
		{"XAUUSD", 0.5},
		{"XAGUSD.r", 0.5},
		{"BTCUSD", 10},
		{"ETHUSD", 10},
		{"EURUSD", 0.0001},
	}
	for _, tt := range tests {
		if got := detector.MinSize(tt.symbol); got != tt.want {
			t.Errorf("MinSize(%s) = %v, want %v", tt.symbol, got, tt.want)
		}
	}
}

func TestFindReentryChain(t *testing.T) {
	detector := defaultDetector()
	now := hourly(100)

	original := &FVG{Type: Bullish, Top: 1.1050, Bottom: 1.1000, Size: 0.0050, Time: hourly(1), IsConfirmed: true}

	candles := []market.Candle{
		{Open: 1.0960, High: 1.1000, Low: 1.0950, Close: 1.0990, Time: hourly(0)},
		{Open: 1.0995, High: 1.1030, Low: 1.0990, Close: 1.1025, Time: hourly(1)},
		{Open: 1.1055, High: 1.1100, Low: 1.1050, Close: 1.1090, Time: hourly(2)},
		// Mitigation of the original gap.
		{Open: 1.1080, High: 1.1090, Low: 1.1040, Close: 1.1060, Time: hourly(3)},
		// Re-entry gap forms from the candles after mitigation.
		{Open: 1.1040, High: 1.1060, Low: 1.1030, Close: 1.1055, Time: hourly(4)},
		{Open: 1.1060, High: 1.1110, Low: 1.1055, Close: 1.1100, Time: hourly(5)},
		{Open: 1.1125, High: 1.1180, Low: 1.1120, Close: 1.1170, Time: hourly(6)},
		{Open: 1.1200, High: 1.1250, Low: 1.1190, Close: 1.1240, Time: hourly(7)},
		{Open: 1.1240, High: 1.1260, Low: 1.1200, Close: 1.1250, Time: hourly(8)},
		{Open: 1.1250, High: 1.1270, Low: 1.1210, Close: 1.1260, Time: hourly(9)},
	}

	reentry := detector.FindReentry(candles, original, market.H1, "EURUSD", now)
	if reentry == nil {
		t.Fatal("Expected a re-entry FVG")
	}
	if reentry.ChainDepth != 1 {
		t.Errorf("Expected chain depth 1, got %d", reentry.ChainDepth)
	}
	if reentry.Type != Bullish {
		t.Errorf("Re-entry must keep the original polarity, got %s", reentry.Type)
	}
	if reentry.Top != 1.1120 || reentry.Bottom != 1.1060 {
		t.Errorf("Expected re-entry gap 1.1060-1.1120, got %f-%f", reentry.Bottom, reentry.Top)
	}
	if reentry.Mitigated {
		t.Error("Re-entry gap was never traded into, must not be mitigated")
	}
}

func TestFindReentryRequiresMitigation(t *testing.T) {
	detector := defaultDetector()
	now := hourly(100)

	original := &FVG{Type: Bullish, Top: 1.1050, Bottom: 1.1000, Size: 0.0050, Time: hourly(1), IsConfirmed: true}

	// Price never comes back into the original gap.
	candles := []market.Candle{
		{Open: 1.0960, High: 1.1000, Low: 1.0950, Close: 1.0990, Time: hourly(0)},
		{Open: 1.0995, High: 1.1030, Low: 1.0990, Close: 1.1025, Time: hourly(1)},
		{Open: 1.1055, High: 1.1100, Low: 1.1050, Close: 1.1090, Time: hourly(2)},
		{Open: 1.1090, High: 1.1150, Low: 1.1080, Close: 1.1140, Time: hourly(3)},
		{Open: 1.1140, High: 1.1200, Low: 1.1130, Close: 1.1190, Time: hourly(4)},
	}

	if re := detector.FindReentry(candles, original, market.H1, "EURUSD", now); re != nil {
		t.Errorf("Expected no re-entry before the original gap is mitigated, got %+v", re)
	}
}

// BenchmarkFindSwing benchmarks swing detection over a long series.
func BenchmarkFindSwing(b *testing.B) {
	detector := defaultDetector()

	candles := make([]market.Candle, 1000)
	for i := range candles {
		candles[i] = market.Candle{
			Open:  float64(100 + i),
			High:  float64(105 + i),
			Low:   float64(95 + i),
			Close: float64(102 + i),
			Time:  hourly(i),
		}
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		detector.FindSwing(candles)
	}
}

// BenchmarkFindFVGBeforeSwing benchmarks gap detection over a long series.
func BenchmarkFindFVGBeforeSwing(b *testing.B) {
	detector := defaultDetector()
	now := hourly(2000)

	candles := make([]market.Candle, 1000)
	for i := range candles {
		candles[i] = market.Candle{
			Open:  float64(100 + i),
			High:  float64(105 + i),
			Low:   float64(95 + i),
			Close: float64(102 + i),
			Time:  hourly(i),
		}
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		detector.FindFVGBeforeSwing(candles, 3, market.H1, "EURUSD", now)
	}
}
