package analysis

import (
	"fmt"
	"time"

	"fvg-alert-bot/internal/market"
)

// CandleClass labels a bar by how much of its range the body covers.
type CandleClass string

const (
	// Disrespect candles have a dominant body: price pushed through a level
	// without hesitation.
	Disrespect CandleClass = "disrespect"
	// Respect candles are mostly wick: price probed a level and backed off.
	Respect CandleClass = "respect"
	Neutral CandleClass = "neutral"
)

// RespectDirection names which side of the range a respect candle rejected.
type RespectDirection string

const (
	RespectResistance RespectDirection = "resistance"
	RespectSupport    RespectDirection = "support"
	RespectBoth       RespectDirection = "both"
)

// Classification describes a single classified candle.
type Classification struct {
	Class            CandleClass
	Direction        FVGType // bullish or bearish, set for disrespect candles
	RespectDirection RespectDirection
	Strength         float64
	BodyRatio        float64
	UpperWick        float64
	LowerWick        float64
	IsBullish        bool
	IsBearish        bool
	Time             time.Time
}

// CandlePattern is a two-bar sequence detected over classified candles.
type CandlePattern struct {
	Name        string
	Direction   string // "bullish", "bearish" or "neutral"
	Strength    float64
	Description string
}

// Classifier labels candles and two-bar sequences.
type Classifier struct{}

// NewClassifier creates a Classifier.
func NewClassifier() *Classifier {
	return &Classifier{}
}

// Classify labels one candle. Bodies above 70% of the range are disrespect,
// below 30% respect, anything between neutral. Respect candles additionally
// report which side dominated, requiring one wick to be at least twice the
// other.
func (cl *Classifier) Classify(c market.Candle) Classification {
	result := Classification{
		UpperWick: c.UpperWick(),
		LowerWick: c.LowerWick(),
		IsBullish: c.IsBullish(),
		IsBearish: c.IsBearish(),
		Time:      c.Time,
	}

	if r := c.Range(); r > 0 {
		result.BodyRatio = c.Body() / r
	}

	switch {
	case result.BodyRatio > 0.7:
		result.Class = Disrespect
		result.Strength = result.BodyRatio
		if result.IsBullish {
			result.Direction = Bullish
		} else {
			result.Direction = Bearish
		}

	case result.BodyRatio < 0.3:
		result.Class = Respect
		result.Strength = 1 - result.BodyRatio
		switch {
		case result.UpperWick > result.LowerWick*2:
			result.RespectDirection = RespectResistance
		case result.LowerWick > result.UpperWick*2:
			result.RespectDirection = RespectSupport
		default:
			result.RespectDirection = RespectBoth
		}

	default:
		result.Class = Neutral
		result.Strength = 0.5
	}

	return result
}

// ClassifySequence labels the last lookback candles of the series, oldest
// first. Returns nil when the series is shorter than lookback.
func (cl *Classifier) ClassifySequence(candles []market.Candle, lookback int) []Classification {
	if len(candles) < lookback {
		return nil
	}

	recent := candles[len(candles)-lookback:]
	out := make([]Classification, len(recent))
	for i, c := range recent {
		out[i] = cl.Classify(c)
	}
	return out
}

// DetectPattern matches the two most recent classifications against the
// two-bar rule table. Returns nil when fewer than two candles were classified
// or no rule matches.
func (cl *Classifier) DetectPattern(classifications []Classification) *CandlePattern {
	if len(classifications) < 2 {
		return nil
	}

	prev := classifications[len(classifications)-2]
	curr := classifications[len(classifications)-1]

	// Breakout: decisive move right after a level held.
	if prev.Class == Respect && curr.Class == Disrespect {
		return &CandlePattern{
			Name:        "breakout",
			Direction:   string(curr.Direction),
			Strength:    curr.Strength * 1.5,
			Description: fmt.Sprintf("%s breakout after respect candle", curr.Direction),
		}
	}

	// Potential reversal: strong move into a level that then held.
	if prev.Class == Disrespect && curr.Class == Respect {
		if (prev.Direction == Bullish && curr.RespectDirection == RespectResistance) ||
			(prev.Direction == Bearish && curr.RespectDirection == RespectSupport) {
			direction := Bullish
			if prev.Direction == Bullish {
				direction = Bearish
			}
			return &CandlePattern{
				Name:        "potential_reversal",
				Direction:   string(direction),
				Strength:    curr.Strength,
				Description: fmt.Sprintf("potential %s to %s reversal", prev.Direction, curr.RespectDirection),
			}
		}
		return nil
	}

	if prev.Class == Disrespect && curr.Class == Disrespect && prev.Direction == curr.Direction {
		return &CandlePattern{
			Name:        "strong_trend",
			Direction:   string(curr.Direction),
			Strength:    (prev.Strength + curr.Strength) / 2,
			Description: fmt.Sprintf("strong %s trend continuation", curr.Direction),
		}
	}

	if prev.Class == Respect && curr.Class == Respect {
		return &CandlePattern{
			Name:        "consolidation",
			Direction:   "neutral",
			Strength:    (prev.Strength + curr.Strength) / 2,
			Description: "price consolidation at key level",
		}
	}

	return nil
}
