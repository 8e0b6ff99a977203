// Package analyzer walks the timeframe hierarchy per symbol, applies the
// alert decision policy and triggers each alert exactly once.
package analyzer

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"fvg-alert-bot/config"
	"fvg-alert-bot/internal/alertcache"
	"fvg-alert-bot/internal/analysis"
	"fvg-alert-bot/internal/broker"
	"fvg-alert-bot/internal/market"
	"fvg-alert-bot/internal/notification"
)

// sufficiencyRatio is the fraction of the configured lookback that must
// actually come back from the broker for a series to be analyzable.
const sufficiencyRatio = 0.8

// Clock supplies broker-synchronized time.
type Clock interface {
	Now(ctx context.Context) time.Time
}

// AlertSink receives finished alerts.
type AlertSink interface {
	Send(alert *notification.Alert) error
}

// TimeframeResult is the outcome of analyzing one (symbol, timeframe):
// the anchoring swing, the gap found before it and the series both came from.
type TimeframeResult struct {
	Symbol    string
	Timeframe market.Timeframe
	Swing     *analysis.SwingPoint
	FVG       *analysis.FVG
	Candles   []market.Candle
}

// Analyzer runs the per-cycle batch analysis over the watchlist.
type Analyzer struct {
	cfg        *config.Config
	source     broker.RatesSource
	clock      Clock
	detector   *analysis.Detector
	twoCR      *analysis.TwoCRDetector
	classifier *analysis.Classifier
	aggregator *analysis.Aggregator
	alerts     alertcache.Cache
	sink       AlertSink
	candles    *CandleCache
	logger     zerolog.Logger

	timeframes []market.Timeframe // highest to lowest, from config
}

// New builds an Analyzer from configuration. The timeframe set was already
// validated at startup, so an unparsable name here is a programming error.
func New(cfg *config.Config, source broker.RatesSource, clock Clock, alerts alertcache.Cache, sink AlertSink, logger zerolog.Logger) (*Analyzer, error) {
	var timeframes []market.Timeframe
	for _, name := range cfg.OrderedTimeframes() {
		tf, err := market.ParseTimeframe(name)
		if err != nil {
			return nil, fmt.Errorf("invalid timeframe in config: %w", err)
		}
		timeframes = append(timeframes, tf)
	}

	detector := analysis.NewDetector(cfg.FVGConfig.MinSize, cfg.FVGConfig.MaxChainDepth)
	return &Analyzer{
		cfg:        cfg,
		source:     source,
		clock:      clock,
		detector:   detector,
		twoCR:      analysis.NewTwoCRDetector(),
		classifier: analysis.NewClassifier(),
		aggregator: analysis.NewAggregator(detector),
		alerts:     alerts,
		sink:       sink,
		candles:    NewCandleCache(),
		logger:     logger.With().Str("component", "analyzer").Logger(),
		timeframes: timeframes,
	}, nil
}

// Run executes analysis cycles until ctx is cancelled. A failed cycle sleeps
// the error backoff instead of the full interval so transient broker outages
// recover quickly.
func (a *Analyzer) Run(ctx context.Context) {
	interval := time.Duration(a.cfg.AnalyzerConfig.CycleInterval) * time.Second
	backoff := time.Duration(a.cfg.AnalyzerConfig.ErrorBackoff) * time.Second

	for {
		sleep := interval
		if err := a.RunCycle(ctx); err != nil {
			if ctx.Err() != nil {
				return
			}
			a.logger.Error().Err(err).Msg("Analysis cycle failed")
			sleep = backoff
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(sleep):
		}
	}
}

// RunCycle performs one full watchlist pass.
func (a *Analyzer) RunCycle(ctx context.Context) error {
	cycleID := uuid.NewString()
	logger := a.logger.With().Str("cycle_id", cycleID).Logger()

	now := a.clock.Now(ctx)
	if a.cfg.AnalyzerConfig.SkipWeekends && isWeekend(now) {
		logger.Debug().Msg("Weekend, skipping cycle")
		return nil
	}

	a.candles.Clear()
	defer a.candles.Clear()

	symbols := a.cfg.WatchlistSymbols()
	logger.Info().Int("symbols", len(symbols)).Msg("Starting analysis cycle")

	for _, symbol := range symbols {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := a.analyzeSymbol(ctx, logger, symbol); err != nil {
			// One symbol must not abort the batch.
			logger.Error().Err(err).Str("symbol", symbol).Msg("Symbol analysis failed, continuing")
		}
	}

	logger.Info().Int("cached_series", a.candles.Len()).Msg("Analysis cycle complete")
	return nil
}

// analyzeSymbol descends the hierarchy until a timeframe yields a gap, then
// hands off to the decision policy.
func (a *Analyzer) analyzeSymbol(ctx context.Context, logger zerolog.Logger, symbol string) error {
	for _, tf := range a.timeframes {
		exhausted, result, err := a.AnalyzeTimeframe(ctx, symbol, tf)
		if err != nil {
			logger.Warn().Err(err).Str("symbol", symbol).Str("timeframe", tf.String()).Msg("Timeframe analysis failed, descending")
			continue
		}
		if exhausted {
			continue
		}
		return a.handleCompleteAnalysis(ctx, logger, result)
	}
	return nil
}

// AnalyzeTimeframe looks for a swing and a gap before it on one timeframe.
// exhausted=true means nothing to anchor on and the caller should descend.
func (a *Analyzer) AnalyzeTimeframe(ctx context.Context, symbol string, tf market.Timeframe) (exhausted bool, result *TimeframeResult, err error) {
	candles, err := a.getCandles(ctx, symbol, tf)
	if err != nil {
		return true, nil, err
	}

	swing := a.detector.FindSwing(candles)
	if swing == nil {
		return true, nil, nil
	}

	now := a.clock.Now(ctx)
	fvg := a.detector.FindFVGBeforeSwing(candles, swing.Index, tf, symbol, now)
	if fvg == nil {
		return true, nil, nil
	}
	if fvg.IsConfirmed {
		fvg.Mitigated = a.detector.IsMitigated(candles, fvg)
	}

	return false, &TimeframeResult{
		Symbol:    symbol,
		Timeframe: tf,
		Swing:     swing,
		FVG:       fvg,
		Candles:   candles,
	}, nil
}

// handleCompleteAnalysis applies the decision policy to an anchored gap:
// same-timeframe rejection first, then the first two lower timeframes, then a
// re-entry chain on the next lower timeframe, then a potential-setup alert.
func (a *Analyzer) handleCompleteAnalysis(ctx context.Context, logger zerolog.Logger, result *TimeframeResult) error {
	symbol, htf, fvg := result.Symbol, result.Timeframe, result.FVG

	if !fvg.IsConfirmed || !fvg.Mitigated {
		logger.Debug().Str("symbol", symbol).Str("timeframe", htf.String()).Msg("Anchor FVG not confirmed or not mitigated, waiting")
		return nil
	}

	if pattern := a.twoCR.FindPattern(result.Candles, fvg); pattern != nil {
		logger.Info().Str("symbol", symbol).Str("timeframe", htf.String()).Msg("Same-timeframe 2CR found")
		return a.sendSameTF2CRAlert(ctx, symbol, htf, fvg, pattern)
	}

	lower := a.lowerConfigured(htf)
	if len(lower) == 0 {
		return a.sendPotential2CRAlert(ctx, symbol, htf, fvg, []market.Timeframe{htf})
	}

	checkTFs := lower
	if max := a.cfg.AnalyzerConfig.LowerTFChecks; len(checkTFs) > max {
		checkTFs = checkTFs[:max]
	}

	for _, ltf := range checkTFs {
		_, ltfResult, err := a.AnalyzeTimeframe(ctx, symbol, ltf)
		if err != nil {
			logger.Warn().Err(err).Str("symbol", symbol).Str("timeframe", ltf.String()).Msg("Lower timeframe check failed")
			continue
		}
		if ltfResult == nil {
			continue
		}
		ltfFVG := ltfResult.FVG
		if ltfFVG.Type != fvg.Type || !ltfFVG.IsConfirmed || !ltfFVG.Mitigated {
			continue
		}
		if pattern := a.twoCR.FindPattern(ltfResult.Candles, ltfFVG); pattern != nil {
			logger.Info().Str("symbol", symbol).Str("htf", htf.String()).Str("ltf", ltf.String()).Msg("Lower-timeframe 2CR found")
			return a.sendLowerTF2CRAlert(ctx, symbol, htf, ltf, fvg, ltfFVG, pattern)
		}
	}

	if reentry := a.findReentryOnNextLower(ctx, logger, symbol, lower[0], fvg); reentry != nil {
		logger.Info().Str("symbol", symbol).Str("htf", htf.String()).Str("ltf", lower[0].String()).Int("chain_depth", reentry.ChainDepth).Msg("Re-entry FVG chain found")
		return a.sendReentryAlert(ctx, symbol, htf, lower[0], fvg, reentry)
	}

	return a.sendPotential2CRAlert(ctx, symbol, htf, fvg, checkTFs)
}

func (a *Analyzer) findReentryOnNextLower(ctx context.Context, logger zerolog.Logger, symbol string, ltf market.Timeframe, fvg *analysis.FVG) *analysis.ReentryFVG {
	candles, err := a.getCandles(ctx, symbol, ltf)
	if err != nil {
		logger.Warn().Err(err).Str("symbol", symbol).Str("timeframe", ltf.String()).Msg("Re-entry check failed")
		return nil
	}
	return a.detector.FindReentry(candles, fvg, ltf, symbol, a.clock.Now(ctx))
}

// getCandles fetches a series through the per-cycle cache and enforces the
// sufficiency ratio against the configured lookback.
func (a *Analyzer) getCandles(ctx context.Context, symbol string, tf market.Timeframe) ([]market.Candle, error) {
	if candles, ok := a.candles.Get(symbol, tf); ok {
		return candles, nil
	}

	lookback := a.cfg.MaxLookback(tf.String())
	candles, err := a.source.GetRates(ctx, symbol, tf, lookback)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s %s rates: %w", symbol, tf, err)
	}
	if required := int(float64(lookback) * sufficiencyRatio); len(candles) < required {
		return nil, fmt.Errorf("insufficient data for %s %s: got %d bars, need %d", symbol, tf, len(candles), required)
	}

	a.candles.Set(symbol, tf, candles)
	return candles, nil
}

// lowerConfigured returns the configured timeframes strictly below tf, in
// descending order.
func (a *Analyzer) lowerConfigured(tf market.Timeframe) []market.Timeframe {
	var lower []market.Timeframe
	for _, candidate := range a.timeframes {
		if tf.HigherThan(candidate) {
			lower = append(lower, candidate)
		}
	}
	return lower
}

// currentPrice returns the latest bid, falling back to the last close of any
// cached series for the symbol.
func (a *Analyzer) currentPrice(ctx context.Context, symbol string, fallback []market.Candle) float64 {
	if tick, err := a.source.LatestTick(ctx, symbol); err == nil && tick.Bid > 0 {
		return tick.Bid
	}
	if len(fallback) > 0 {
		return fallback[len(fallback)-1].Close
	}
	return 0
}

// pipSize returns the symbol's point value, defaulting to 0.0001 when the
// broker cannot say.
func (a *Analyzer) pipSize(ctx context.Context, symbol string) float64 {
	info, err := a.source.SymbolInfo(ctx, symbol)
	if err != nil || info.Point <= 0 {
		return 0.0001
	}
	return info.Point
}

// deliver runs the fingerprint check, sends, and commits the fingerprint only
// after the sink accepted the alert. A failed send leaves the fingerprint
// uncommitted so a genuinely new event may retry next cycle.
func (a *Analyzer) deliver(fp alertcache.Fingerprint, alert *notification.Alert) error {
	if a.alerts.Seen(fp) {
		a.logger.Debug().Str("symbol", fp.Symbol).Str("type", fp.AlertType).Msg("Skipping duplicate alert")
		return nil
	}

	if err := a.sink.Send(alert); err != nil {
		return fmt.Errorf("failed to deliver %s alert for %s: %w", fp.AlertType, fp.Symbol, err)
	}

	if err := a.alerts.Commit(fp); err != nil {
		a.logger.Warn().Err(err).Str("symbol", fp.Symbol).Msg("Failed to record sent alert")
	}
	a.logger.Info().Str("symbol", fp.Symbol).Str("timeframe", fp.Timeframe).Str("type", fp.AlertType).Msg("Alert sent")
	return nil
}

func isWeekend(t time.Time) bool {
	wd := t.Weekday()
	return wd == time.Saturday || wd == time.Sunday
}
