package analyzer

import (
	"context"
	"fmt"
	"strings"

	"fvg-alert-bot/internal/analysis"
	"fvg-alert-bot/internal/market"
)

// tfWeights gives higher timeframes more say in the overall bias.
var tfWeights = map[market.Timeframe]float64{
	market.Monthly: 5.0,
	market.Weekly:  4.0,
	market.Daily:   3.0,
	market.H4:      2.0,
	market.H1:      1.5,
	market.M15:     1.0,
	market.M5:      0.8,
	market.M1:      0.5,
}

const breakevenRule = "Move stop to breakeven once a new FVG forms in the direction of the trade"

// StructureAnalysis is the full directional read of one (symbol, timeframe):
// PD rays, direction, candle behavior, narrative and risk-reward.
type StructureAnalysis struct {
	Symbol          string
	Timeframe       market.Timeframe
	CurrentPrice    float64
	Rays            *analysis.PDRaySet
	Direction       analysis.Direction
	Classifications []analysis.Classification
	Pattern         *analysis.CandlePattern
	Narrative       analysis.Narrative
	RiskReward      *analysis.RiskReward
}

// OverallBias is the weighted multi-timeframe directional consensus.
type OverallBias struct {
	Bias          string
	Strength      float64 // winning weight share, percent
	Confidence    float64 // weighted average confidence
	BullishWeight float64
	BearishWeight float64
	NeutralWeight float64
	Description   string
}

// TradePlan is a complete trade proposal for one symbol.
type TradePlan struct {
	Status          string
	Symbol          string
	CurrentPrice    float64
	OverallBias     OverallBias
	EntryTimeframe  market.Timeframe
	EntryStrategy   string
	EntryPrice      float64
	TargetPrice     float64
	StopLossPrice   float64
	BreakevenPrice  float64
	BreakevenRule   string
	RiskRewardRatio float64
	Description     string
}

// AnalyzeStructure runs the PD-ray pipeline on one timeframe: identify rays,
// score direction, classify recent candles and derive the narrative.
func (a *Analyzer) AnalyzeStructure(ctx context.Context, symbol string, tf market.Timeframe) (*StructureAnalysis, error) {
	candles, err := a.getCandles(ctx, symbol, tf)
	if err != nil {
		return nil, err
	}

	price := a.currentPrice(ctx, symbol, candles)

	rays := a.aggregator.Identify(candles, symbol, tf, a.clock.Now(ctx))
	if rays == nil {
		return nil, fmt.Errorf("insufficient data for %s %s structure analysis", symbol, tf)
	}

	direction := a.aggregator.DetermineDirection(rays, price)
	classifications := a.classifier.ClassifySequence(candles, 5)
	pattern := a.classifier.DetectPattern(classifications)
	narrative := a.aggregator.EstablishNarrative(rays, direction, classifications)

	sa := &StructureAnalysis{
		Symbol:          symbol,
		Timeframe:       tf,
		CurrentPrice:    price,
		Rays:            rays,
		Direction:       direction,
		Classifications: classifications,
		Pattern:         pattern,
		Narrative:       narrative,
	}
	if narrative.Target != nil && narrative.StopLoss != nil {
		rr := a.aggregator.CalculateRiskReward(price, *narrative.Target, *narrative.StopLoss)
		sa.RiskReward = &rr
	}
	return sa, nil
}

// GenerateTradePlan analyzes every configured timeframe from Monthly down to
// H1, weighs the per-timeframe biases into an overall bias, and builds a plan
// from the first workable entry timeframe (H4, then H1). Plans without a
// favorable risk-reward come back with Status "no_favorable_setup".
func (a *Analyzer) GenerateTradePlan(ctx context.Context, symbol string) (*TradePlan, error) {
	results := make(map[market.Timeframe]*StructureAnalysis)
	for _, tf := range a.timeframes {
		if market.H1.HigherThan(tf) {
			continue // below H1, too noisy for plan construction
		}
		sa, err := a.AnalyzeStructure(ctx, symbol, tf)
		if err != nil {
			a.logger.Debug().Err(err).Str("symbol", symbol).Str("timeframe", tf.String()).Msg("Structure analysis unavailable")
			continue
		}
		results[tf] = sa
	}

	bias := determineOverallBias(results)

	var entry *StructureAnalysis
	for _, tf := range []market.Timeframe{market.H4, market.H1} {
		if sa, ok := results[tf]; ok {
			entry = sa
			break
		}
	}
	if entry == nil {
		return &TradePlan{Status: "no_entry_timeframe", Symbol: symbol, OverallBias: bias}, nil
	}

	if entry.RiskReward == nil || !entry.RiskReward.IsFavorable {
		return &TradePlan{Status: "no_favorable_setup", Symbol: symbol, OverallBias: bias}, nil
	}

	plan := &TradePlan{
		Status:          "complete",
		Symbol:          symbol,
		CurrentPrice:    entry.CurrentPrice,
		OverallBias:     bias,
		EntryTimeframe:  entry.Timeframe,
		EntryStrategy:   entry.Narrative.EntryStrategy,
		EntryPrice:      entry.CurrentPrice,
		TargetPrice:     *entry.Narrative.Target,
		StopLossPrice:   *entry.Narrative.StopLoss,
		RiskRewardRatio: entry.RiskReward.Ratio,
		Description:     entry.Narrative.Description,
	}

	// Breakeven sits a third of the way to the target.
	if plan.TargetPrice > plan.EntryPrice {
		plan.BreakevenPrice = plan.EntryPrice + (plan.TargetPrice-plan.EntryPrice)/3
	} else {
		plan.BreakevenPrice = plan.EntryPrice - (plan.EntryPrice-plan.TargetPrice)/3
	}
	plan.BreakevenRule = breakevenRule

	return plan, nil
}

func determineOverallBias(results map[market.Timeframe]*StructureAnalysis) OverallBias {
	var bullish, bearish, neutral, totalConfidence, totalWeight float64

	for tf, sa := range results {
		weight, ok := tfWeights[tf]
		if !ok {
			weight = 1.0
		}

		switch sa.Direction.Bias {
		case "bullish":
			bullish += weight
		case "bearish":
			bearish += weight
		default:
			neutral += weight
		}
		totalConfidence += sa.Direction.Confidence * weight
		totalWeight += weight
	}

	if totalWeight == 0 {
		return OverallBias{Bias: "neutral", Description: "No valid timeframe data"}
	}

	bias := "neutral"
	strength := neutral
	switch {
	case bullish > bearish && bullish > neutral:
		bias = "bullish"
		strength = bullish
	case bearish > bullish && bearish > neutral:
		bias = "bearish"
		strength = bearish
	}

	avgConfidence := totalConfidence / totalWeight
	return OverallBias{
		Bias:          bias,
		Strength:      strength / totalWeight * 100,
		Confidence:    avgConfidence,
		BullishWeight: bullish,
		BearishWeight: bearish,
		NeutralWeight: neutral,
		Description:   fmt.Sprintf("%s bias with %.1f%% confidence across timeframes", capitalize(bias), avgConfidence),
	}
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

// appendTradePlan attaches a short plan summary to an alert message when a
// favorable setup exists. Best effort only.
func (a *Analyzer) appendTradePlan(ctx context.Context, b *strings.Builder, symbol string) {
	plan, err := a.GenerateTradePlan(ctx, symbol)
	if err != nil || plan.Status != "complete" {
		return
	}

	fmt.Fprintf(b, "\n\n📋 Trade Plan (%s, %s)\n", plan.EntryTimeframe, plan.OverallBias.Bias)
	fmt.Fprintf(b, "🎯 Entry: %.5f → Target: %.5f (RR %.1f)\n", plan.EntryPrice, plan.TargetPrice, plan.RiskRewardRatio)
	fmt.Fprintf(b, "🛑 Stop: %.5f | Breakeven: %.5f\n", plan.StopLossPrice, plan.BreakevenPrice)
	fmt.Fprintf(b, "▶️ Strategy: %s", plan.EntryStrategy)
}
