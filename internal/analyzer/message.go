package analyzer

import (
	"context"
	"fmt"
	"strings"

	"fvg-alert-bot/internal/alertcache"
	"fvg-alert-bot/internal/analysis"
	"fvg-alert-bot/internal/market"
	"fvg-alert-bot/internal/notification"
)

const alertTimeLayout = "2006-01-02 15:04"

func (a *Analyzer) sendSameTF2CRAlert(ctx context.Context, symbol string, htf market.Timeframe, fvg *analysis.FVG, pattern *analysis.TwoCR) error {
	alertType := fmt.Sprintf("same_tf_2cr_%s_%s", pattern.RejectionType, pattern.Type)
	fp := alertcache.Fingerprint{
		Symbol:    symbol,
		Timeframe: htf.String(),
		AlertType: alertType,
		FVGTime:   pattern.SecondCandle.Time,
	}
	if a.alerts.Seen(fp) {
		a.logger.Debug().Str("symbol", symbol).Str("type", alertType).Msg("Skipping duplicate alert")
		return nil
	}

	pip := a.pipSize(ctx, symbol)
	price := a.currentPrice(ctx, symbol, nil)

	var b strings.Builder
	fmt.Fprintf(&b, "%s SAME TF 2CR Setup: %s\n", rejectionEmoji(pattern.RejectionType), symbol)
	fmt.Fprintf(&b, "📈 Timeframe: %s\n", htf)
	fmt.Fprintf(&b, "📊 Pattern: %s FVG with 2CR (%s)\n", fvg.Type, rejectionLabel(pattern.RejectionType))
	writeFVGLines(&b, fvg, pip)
	writePatternLines(&b, pattern)
	writePriceLines(&b, fvg, price, pip)
	a.appendTradePlan(ctx, &b, symbol)

	return a.deliver(fp, &notification.Alert{
		Type:      notification.AlertSameTF2CR,
		Symbol:    symbol,
		Timeframe: htf.String(),
		Message:   b.String(),
		Timestamp: a.clock.Now(ctx),
	})
}

func (a *Analyzer) sendLowerTF2CRAlert(ctx context.Context, symbol string, htf, ltf market.Timeframe, htfFVG, ltfFVG *analysis.FVG, pattern *analysis.TwoCR) error {
	alertType := fmt.Sprintf("2cr_%s_%s", pattern.RejectionType, pattern.Type)
	fp := alertcache.Fingerprint{
		Symbol:    symbol,
		Timeframe: ltf.String(),
		AlertType: alertType,
		FVGTime:   pattern.SecondCandle.Time,
	}
	if a.alerts.Seen(fp) {
		a.logger.Debug().Str("symbol", symbol).Str("type", alertType).Msg("Skipping duplicate alert")
		return nil
	}

	pip := a.pipSize(ctx, symbol)
	price := a.currentPrice(ctx, symbol, nil)

	var b strings.Builder
	fmt.Fprintf(&b, "%s 2CR Setup: %s\n", rejectionEmoji(pattern.RejectionType), symbol)
	fmt.Fprintf(&b, "📈 HTF: %s %s FVG (Mitigated)\n", htf, htfFVG.Type)
	fmt.Fprintf(&b, "📉 LTF: %s 2CR Pattern (%s)\n", ltf, rejectionLabel(pattern.RejectionType))
	writeFVGLines(&b, ltfFVG, pip)
	writePatternLines(&b, pattern)
	writePriceLines(&b, ltfFVG, price, pip)
	a.appendTradePlan(ctx, &b, symbol)

	return a.deliver(fp, &notification.Alert{
		Type:      notification.AlertLowerTF2CR,
		Symbol:    symbol,
		Timeframe: ltf.String(),
		Message:   b.String(),
		Timestamp: a.clock.Now(ctx),
	})
}

func (a *Analyzer) sendReentryAlert(ctx context.Context, symbol string, htf, ltf market.Timeframe, original *analysis.FVG, reentry *analysis.ReentryFVG) error {
	alertType := fmt.Sprintf("reentry_%s_depth%d", reentry.Type, reentry.ChainDepth)
	fp := alertcache.Fingerprint{
		Symbol:    symbol,
		Timeframe: ltf.String(),
		AlertType: alertType,
		FVGTime:   reentry.Time,
	}
	if a.alerts.Seen(fp) {
		a.logger.Debug().Str("symbol", symbol).Str("type", alertType).Msg("Skipping duplicate alert")
		return nil
	}

	pip := a.pipSize(ctx, symbol)
	price := a.currentPrice(ctx, symbol, nil)

	var b strings.Builder
	fmt.Fprintf(&b, "🔁 Re-entry FVG: %s\n", symbol)
	fmt.Fprintf(&b, "📈 HTF: %s %s FVG (Mitigated)\n", htf, original.Type)
	fmt.Fprintf(&b, "📉 LTF: %s same-type re-entry, chain depth %d\n", ltf, reentry.ChainDepth)
	writeFVGLines(&b, &reentry.FVG, pip)
	fmt.Fprintf(&b, "🕒 Formed: %s\n", reentry.Time.Format(alertTimeLayout))
	if reentry.Mitigated {
		b.WriteString("⚠️ Re-entry gap already mitigated\n")
	}
	writePriceLines(&b, &reentry.FVG, price, pip)

	return a.deliver(fp, &notification.Alert{
		Type:      notification.AlertReentry,
		Symbol:    symbol,
		Timeframe: ltf.String(),
		Message:   b.String(),
		Timestamp: a.clock.Now(ctx),
	})
}

func (a *Analyzer) sendPotential2CRAlert(ctx context.Context, symbol string, htf market.Timeframe, fvg *analysis.FVG, checkTFs []market.Timeframe) error {
	alertType := fmt.Sprintf("potential_2cr_%s", fvg.Type)
	fp := alertcache.Fingerprint{
		Symbol:    symbol,
		Timeframe: htf.String(),
		AlertType: alertType,
		FVGTime:   fvg.Time,
	}
	if a.alerts.Seen(fp) {
		return nil
	}
	if !a.cfg.AlertConfig.SendPotentialAlerts {
		return nil
	}

	pip := a.pipSize(ctx, symbol)
	price := a.currentPrice(ctx, symbol, nil)

	names := make([]string, len(checkTFs))
	for i, tf := range checkTFs {
		names[i] = tf.String()
	}

	var b strings.Builder
	fmt.Fprintf(&b, "⏳ Potential 2CR Setup: %s\n", symbol)
	fmt.Fprintf(&b, "📈 HTF: %s %s FVG (Mitigated)\n", htf, fvg.Type)
	fmt.Fprintf(&b, "👀 Watch for 2CR pattern on: %s\n", strings.Join(names, ", "))
	writeFVGLines(&b, fvg, pip)
	writePriceLines(&b, fvg, price, pip)

	return a.deliver(fp, &notification.Alert{
		Type:      notification.AlertPotential2CR,
		Symbol:    symbol,
		Timeframe: htf.String(),
		Message:   b.String(),
		Timestamp: a.clock.Now(ctx),
	})
}

func rejectionEmoji(rt analysis.RejectionType) string {
	if rt == analysis.SecondCandleRejection {
		return "🔄"
	}
	return "✅"
}

func rejectionLabel(rt analysis.RejectionType) string {
	return strings.ReplaceAll(string(rt), "_", " ")
}

func writeFVGLines(b *strings.Builder, fvg *analysis.FVG, pip float64) {
	fmt.Fprintf(b, "🔍 FVG Range: %.5f - %.5f\n", fvg.Bottom, fvg.Top)
	fmt.Fprintf(b, "📏 FVG Size: %.1f pips\n", fvg.Size/pip)
}

func writePatternLines(b *strings.Builder, pattern *analysis.TwoCR) {
	fmt.Fprintf(b, "🕒 First Candle: %s\n", pattern.FirstCandle.Time.Format(alertTimeLayout))
	fmt.Fprintf(b, "🕒 Second Candle: %s\n", pattern.SecondCandle.Time.Format(alertTimeLayout))

	followThrough := "✅ Expected"
	if pattern.HasFollowThrough {
		followThrough = "✅ Confirmed"
	}
	fmt.Fprintf(b, "📊 Follow-through: %s\n", followThrough)

	if pattern.IsUgly {
		b.WriteString("⚠️ Ugly 2CR detected (consolidation likely)\n")
	}
}

// writePriceLines appends the current price and the pip distance to the side
// of the gap the pattern targets.
func writePriceLines(b *strings.Builder, fvg *analysis.FVG, price, pip float64) {
	if price <= 0 {
		return
	}

	var distance float64
	var label string
	if fvg.Type == analysis.Bullish {
		label = "to top"
		if price < fvg.Top {
			distance = (fvg.Top - price) / pip
		}
	} else {
		label = "to bottom"
		if price > fvg.Bottom {
			distance = (price - fvg.Bottom) / pip
		}
	}

	fmt.Fprintf(b, "💰 Current Price: %.5f\n", price)
	fmt.Fprintf(b, "📍 Distance %s: %.1f pips", label, distance)
}
