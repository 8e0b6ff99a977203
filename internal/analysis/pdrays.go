package analysis

import (
	"fmt"
	"sort"
	"time"

	"fvg-alert-bot/internal/market"
)

// RaySource names where a PD ray came from.
type RaySource string

const (
	RayFromFVG        RaySource = "fvg"
	RayFromSwing      RaySource = "swing"
	RayFromPrevCandle RaySource = "prev_candle"
)

// PDRay is a single key price level. SecondaryPrice is set for FVG rays
// (the gap bottom) and zero otherwise.
type PDRay struct {
	Source         RaySource
	Type           string
	Price          float64
	SecondaryPrice float64
	Time           time.Time
	Broken         bool
}

// PrevCandleLevel is the previous candle's high or low together with whether
// the latest candle has already traded through it.
type PrevCandleLevel struct {
	Kind   SwingKind
	Price  float64
	Time   time.Time
	Broken bool
}

// PDRaySet is every key level identified for one (symbol, timeframe),
// rebuilt fresh on each analysis.
type PDRaySet struct {
	FVGs             []FVG
	Swings           []SwingPoint
	PrevCandleLevels []PrevCandleLevel
	Combined         []PDRay // ascending by price
}

// Direction is the directional read over a PDRaySet.
type Direction struct {
	Bias              string // "bullish", "bearish" or "neutral"
	Confidence        float64
	BullishScore      int
	BearishScore      int
	Reasons           []string
	NearestSupport    *PDRay
	NearestResistance *PDRay
}

// Narrative is the trade story derived from rays, direction and the latest
// candle behavior.
type Narrative struct {
	Bias          string
	Confidence    float64
	Target        *float64
	TargetSource  RaySource
	StopLoss      *float64
	EntryStrategy string
	Description   string
}

// RiskReward is the risk/reward computation for a prospective entry.
type RiskReward struct {
	Entry       float64
	Target      float64
	StopLoss    float64
	Risk        float64
	Reward      float64
	Ratio       float64
	IsFavorable bool
}

// Aggregator merges FVGs, swings and previous-candle extremes into a ranked
// level list and derives direction and narrative from it.
type Aggregator struct {
	detector *Detector
}

// NewAggregator creates an Aggregator over the given detector.
func NewAggregator(detector *Detector) *Aggregator {
	return &Aggregator{detector: detector}
}

// Identify collects at most one swing+FVG pair and the previous candle's
// high/low, merged into a price-sorted combined list. Returns nil when the
// series is too short to say anything useful.
func (a *Aggregator) Identify(candles []market.Candle, symbol string, timeframe market.Timeframe, now time.Time) *PDRaySet {
	if len(candles) < 5 {
		return nil
	}

	set := &PDRaySet{}

	if swing := a.detector.FindSwing(candles); swing != nil {
		set.Swings = append(set.Swings, *swing)

		if fvg := a.detector.FindFVGBeforeSwing(candles, swing.Index, timeframe, symbol, now); fvg != nil {
			if fvg.IsConfirmed {
				fvg.Mitigated = a.detector.IsMitigated(candles, fvg)
			}
			set.FVGs = append(set.FVGs, *fvg)
		}
	}

	prev := candles[len(candles)-2]
	latest := candles[len(candles)-1]
	set.PrevCandleLevels = append(set.PrevCandleLevels,
		PrevCandleLevel{Kind: SwingHigh, Price: prev.High, Time: prev.Time, Broken: latest.High > prev.High},
		PrevCandleLevel{Kind: SwingLow, Price: prev.Low, Time: prev.Time, Broken: latest.Low < prev.Low},
	)

	for _, fvg := range set.FVGs {
		set.Combined = append(set.Combined, PDRay{
			Source:         RayFromFVG,
			Type:           string(fvg.Type),
			Price:          fvg.Top,
			SecondaryPrice: fvg.Bottom,
			Time:           fvg.Time,
		})
	}
	for _, swing := range set.Swings {
		set.Combined = append(set.Combined, PDRay{
			Source: RayFromSwing,
			Type:   string(swing.Kind),
			Price:  swing.Price,
			Time:   swing.Time,
		})
	}
	for _, level := range set.PrevCandleLevels {
		set.Combined = append(set.Combined, PDRay{
			Source: RayFromPrevCandle,
			Type:   string(level.Kind),
			Price:  level.Price,
			Time:   level.Time,
			Broken: level.Broken,
		})
	}

	sort.Slice(set.Combined, func(i, j int) bool {
		return set.Combined[i].Price < set.Combined[j].Price
	})
	return set
}

// DetermineDirection scores bullish against bearish signals: an unmitigated
// FVG weighs 2 for its side, a broken previous high/low weighs 1, and
// proximity to the nearest support versus resistance weighs 1 for the nearer
// side. The side with the strictly greater score wins; ties are neutral with
// 50% confidence.
func (a *Aggregator) DetermineDirection(set *PDRaySet, currentPrice float64) Direction {
	if set == nil || len(set.Combined) == 0 {
		return Direction{Bias: "neutral", Confidence: 0, Reasons: []string{"no PD rays identified"}}
	}

	dir := Direction{}

	for _, fvg := range set.FVGs {
		if fvg.Mitigated {
			continue
		}
		if fvg.Type == Bullish {
			dir.BullishScore += 2
			dir.Reasons = append(dir.Reasons, fmt.Sprintf("unmitigated bullish FVG at %g-%g", fvg.Bottom, fvg.Top))
		} else {
			dir.BearishScore += 2
			dir.Reasons = append(dir.Reasons, fmt.Sprintf("unmitigated bearish FVG at %g-%g", fvg.Bottom, fvg.Top))
		}
	}

	for _, level := range set.PrevCandleLevels {
		if !level.Broken {
			continue
		}
		if level.Kind == SwingHigh {
			dir.BullishScore++
			dir.Reasons = append(dir.Reasons, fmt.Sprintf("broke above previous candle high at %g", level.Price))
		} else {
			dir.BearishScore++
			dir.Reasons = append(dir.Reasons, fmt.Sprintf("broke below previous candle low at %g", level.Price))
		}
	}

	for i := range set.Combined {
		ray := set.Combined[i]
		if ray.Price < currentPrice {
			dir.NearestSupport = &set.Combined[i]
		} else if ray.Price > currentPrice && dir.NearestResistance == nil {
			dir.NearestResistance = &set.Combined[i]
		}
	}

	if dir.NearestSupport != nil && dir.NearestResistance != nil {
		distBelow := currentPrice - dir.NearestSupport.Price
		distAbove := dir.NearestResistance.Price - currentPrice
		if distBelow < distAbove {
			dir.BullishScore++
			dir.Reasons = append(dir.Reasons, fmt.Sprintf("price closer to support at %g than resistance at %g", dir.NearestSupport.Price, dir.NearestResistance.Price))
		} else {
			dir.BearishScore++
			dir.Reasons = append(dir.Reasons, fmt.Sprintf("price closer to resistance at %g than support at %g", dir.NearestResistance.Price, dir.NearestSupport.Price))
		}
	}

	total := dir.BullishScore + dir.BearishScore
	switch {
	case dir.BullishScore > dir.BearishScore:
		dir.Bias = "bullish"
		dir.Confidence = float64(dir.BullishScore) / float64(total) * 100
	case dir.BearishScore > dir.BullishScore:
		dir.Bias = "bearish"
		dir.Confidence = float64(dir.BearishScore) / float64(total) * 100
	default:
		dir.Bias = "neutral"
		dir.Confidence = 50
	}
	return dir
}

// EstablishNarrative derives target and stop from the nearest opposing rays
// in the bias direction (stop offset 0.2% beyond the level) and picks an
// entry strategy from the latest candle's classification.
func (a *Aggregator) EstablishNarrative(set *PDRaySet, dir Direction, classifications []Classification) Narrative {
	narrative := Narrative{
		Bias:          dir.Bias,
		Confidence:    dir.Confidence,
		EntryStrategy: "wait",
	}
	if set == nil || len(classifications) == 0 {
		return narrative
	}

	switch dir.Bias {
	case "bullish":
		if dir.NearestResistance != nil {
			target := dir.NearestResistance.Price
			narrative.Target = &target
			narrative.TargetSource = dir.NearestResistance.Source
		}
		if dir.NearestSupport != nil {
			stop := dir.NearestSupport.Price * 0.998
			narrative.StopLoss = &stop
		}
	case "bearish":
		if dir.NearestSupport != nil {
			target := dir.NearestSupport.Price
			narrative.Target = &target
			narrative.TargetSource = dir.NearestSupport.Source
		}
		if dir.NearestResistance != nil {
			stop := dir.NearestResistance.Price * 1.002
			narrative.StopLoss = &stop
		}
	}

	current := classifications[len(classifications)-1]
	switch current.Class {
	case Respect:
		narrative.EntryStrategy = "wait_for_confirmation"
		narrative.Description += "respect candle detected, wait for confirmation before entry. "
	case Disrespect:
		if string(current.Direction) == dir.Bias {
			narrative.EntryStrategy = "enter_now"
			narrative.Description += "disrespect candle in the direction of the bias, consider immediate entry. "
		} else {
			narrative.EntryStrategy = "wait_for_reversal"
			narrative.Description += "disrespect candle against the bias, wait for reversal confirmation. "
		}
	}

	if len(dir.Reasons) > 0 {
		narrative.Description += "reasons: "
		for i, r := range dir.Reasons {
			if i > 0 {
				narrative.Description += "; "
			}
			narrative.Description += r
		}
	}
	return narrative
}

// CalculateRiskReward computes reward/risk for an entry. Zero risk yields a
// zero ratio and is never favorable; a ratio of exactly 2.0 is favorable.
func (a *Aggregator) CalculateRiskReward(entry, target, stopLoss float64) RiskReward {
	rr := RiskReward{Entry: entry, Target: target, StopLoss: stopLoss}

	rr.Risk = abs(entry - stopLoss)
	rr.Reward = abs(entry - target)

	if rr.Risk == 0 {
		return rr
	}
	rr.Ratio = rr.Reward / rr.Risk
	rr.IsFavorable = rr.Ratio >= 2.0
	return rr
}

func abs(x float64) float64 {
	if x < 0 {
		return -x
	}
	return x
}
