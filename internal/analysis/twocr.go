package analysis

import (
	"time"

	"fvg-alert-bot/internal/market"
)

// RejectionType tells which candle of the pair produced the rejection.
type RejectionType string

const (
	FirstCandleRejection  RejectionType = "first_candle"
	SecondCandleRejection RejectionType = "second_candle"
)

// TwoCR is a Two Candle Rejection: rejection-confirmation price action found
// after an FVG was mitigated.
type TwoCR struct {
	Type                FVGType
	RejectionType       RejectionType
	FirstCandle         market.Candle
	SecondCandle        market.Candle
	FollowThroughCandle *market.Candle
	HasFollowThrough    bool
	IsUgly              bool
	MitigationTime      time.Time
}

// TwoCRDetector finds Two Candle Rejection patterns.
type TwoCRDetector struct{}

// NewTwoCRDetector creates a TwoCRDetector.
func NewTwoCRDetector() *TwoCRDetector {
	return &TwoCRDetector{}
}

// FindPattern scans the candles that follow the FVG's mitigation instant and
// returns the earliest qualifying rejection, or nil. Scanning stops at the
// first match.
func (t *TwoCRDetector) FindPattern(candles []market.Candle, fvg *FVG) *TwoCR {
	if len(candles) < 3 {
		return nil
	}

	// Candles after the FVG formed.
	start := -1
	for i, c := range candles {
		if c.Time.After(fvg.Time) {
			start = i
			break
		}
	}
	if start < 0 || len(candles)-start < 3 {
		return nil
	}
	postFVG := candles[start:]

	// Locate the mitigation candle: the first bar whose extreme reaches the
	// gap boundary.
	mitIdx := -1
	for i, c := range postFVG {
		if fvg.Type == Bullish && c.Low <= fvg.Top {
			mitIdx = i
			break
		}
		if fvg.Type == Bearish && c.High >= fvg.Bottom {
			mitIdx = i
			break
		}
	}
	if mitIdx < 0 {
		return nil
	}

	postMit := postFVG[mitIdx:]
	if len(postMit) < 3 {
		return nil
	}
	mitigationTime := postMit[0].Time

	for i := 0; i+2 < len(postMit); i++ {
		c1, c2, c3 := postMit[i], postMit[i+1], postMit[i+2]

		firstRejects := t.firstCandleRejects(c1, fvg)

		secondRejects := false
		if !firstRejects && i > 0 {
			secondRejects = t.secondCandleRejects(c1, c2, fvg.Type)
		}

		if !firstRejects && !secondRejects {
			continue
		}

		rejectionType := FirstCandleRejection
		if secondRejects {
			rejectionType = SecondCandleRejection
		}

		pattern := &TwoCR{
			Type:           fvg.Type,
			RejectionType:  rejectionType,
			FirstCandle:    c1,
			SecondCandle:   c2,
			MitigationTime: mitigationTime,
			IsUgly:         t.isUgly(c2, c3, fvg.Type),
		}
		if t.hasFollowThrough(c2, c3, fvg.Type) {
			pattern.HasFollowThrough = true
			follow := c3
			pattern.FollowThroughCandle = &follow
		}
		return pattern
	}

	return nil
}

// firstCandleRejects checks for a long wick opposite the gap direction, a
// close back toward the gap side, and an extreme touching the gap boundary.
func (t *TwoCRDetector) firstCandleRejects(c market.Candle, fvg *FVG) bool {
	body := c.Body()

	if fvg.Type == Bullish {
		return c.IsBullish() && c.LowerWick() > body*0.7 && c.Low <= fvg.Top
	}
	return c.IsBearish() && c.UpperWick() > body*0.7 && c.High >= fvg.Bottom
}

// secondCandleRejects checks the sweep scenario: the second candle of the
// pair trades beyond the first candle's adverse extreme, then closes back
// with a wick at least half its body.
func (t *TwoCRDetector) secondCandleRejects(first, c market.Candle, fvgType FVGType) bool {
	body := c.Body()

	if fvgType == Bullish {
		swept := c.Low < first.Low
		return swept && c.IsBullish() && c.LowerWick() > body*0.5
	}
	swept := c.High > first.High
	return swept && c.IsBearish() && c.UpperWick() > body*0.5
}

// hasFollowThrough checks that the candle after the rejection closes in the
// pattern direction and expands beyond the rejection candle's extreme.
func (t *TwoCRDetector) hasFollowThrough(reject, next market.Candle, fvgType FVGType) bool {
	if fvgType == Bullish {
		return next.IsBullish() && next.High > reject.High
	}
	return next.IsBearish() && next.Low < reject.Low
}

// isUgly flags a third candle with a large opposite wick that failed to close
// past the rejection candle's extreme, which usually means consolidation
// instead of clean continuation.
func (t *TwoCRDetector) isUgly(second, third market.Candle, fvgType FVGType) bool {
	body := third.Body()

	if fvgType == Bullish {
		return third.LowerWick() > body*1.5 && third.Close < second.High
	}
	return third.UpperWick() > body*1.5 && third.Close > second.Low
}
