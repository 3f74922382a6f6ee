// Package alpha computes per-ticker signal metrics from stored sentiment.
package alpha

import (
	"math"

	"github.com/rish-kun/alphastream/config"
	"github.com/rish-kun/alphastream/internal/store"
)

// ExpectationGap measures sentiment surprise: how far the window mean sits
// from the rolling baseline. Positive = bullish surprise.
func ExpectationGap(current, baseline float64) float64 {
	return current - baseline
}

// NarrativeVelocity measures news momentum for a ticker, in [0,1].
//
// With enough history the window mention rate is normalised against the
// ticker's own historical hourly rate, so a thinly covered stock surging to
// 5x its usual coverage scores as high as a megacap doing the same. Without
// history (histHours < 24 or zero historical mentions) it falls back to the
// share-of-news shape, scaled into the same range.
func NarrativeVelocity(windowMentions int, windowHours float64, histMentions int, histHours float64, newsShare, sentMagnitude float64) float64 {
	if sentMagnitude < 0 {
		sentMagnitude = -sentMagnitude
	}
	if sentMagnitude > 1 {
		sentMagnitude = 1
	}
	if windowHours <= 0 {
		return 0
	}
	rate := float64(windowMentions) / windowHours

	if histHours >= 24 && histMentions > 0 {
		histRate := float64(histMentions) / histHours
		ratio := rate / histRate
		v := math.Min(1, ratio/5) * (1 + sentMagnitude) / 2
		return v
	}

	// share-of-news fallback, 0..1
	v := newsShare * 5 * (1 + sentMagnitude) / 10
	return math.Min(1, v)
}

// Divergence contrasts sentiment direction with realised price action, in
// [-1,1]. The price change is clamped to ±band and normalised so a ±band
// move counts as a full-strength price signal.
func Divergence(sentiment, priceChange, band float64) float64 {
	if band <= 0 {
		band = 0.10
	}
	pc := math.Max(-band, math.Min(band, priceChange)) / band
	return (sentiment - pc) / 2
}

// Composite combines the components with the configured weights. divergence
// may be nil when no price source is available; the remaining weights are
// renormalised so the score keeps its scale.
func Composite(gap, velocity float64, divergence *float64, w config.AlphaWeights) float64 {
	sum := w.ExpectationGap*gap + w.NarrativeVelocity*velocity
	total := w.ExpectationGap + w.NarrativeVelocity
	if divergence != nil {
		sum += w.Divergence * (*divergence)
		total += w.Divergence
	}
	if total == 0 {
		return 0
	}
	return sum / total
}

// SignalFor maps a composite score to its band.
func SignalFor(composite float64, t config.SignalThresholds) string {
	switch {
	case composite > t.StrongBuy:
		return store.SignalStrongBuy
	case composite > t.Buy:
		return store.SignalBuy
	case composite > t.Sell:
		return store.SignalHold
	case composite > t.StrongSell:
		return store.SignalSell
	default:
		return store.SignalStrongSell
	}
}

// Conviction scales signal strength by evidence volume into [0,100].
// confSum is the summed confidence of the window's sentiment rows; ten
// high-confidence records saturate the volume factor.
func Conviction(composite, confSum float64) int {
	mag := math.Min(1, math.Abs(composite))
	vol := math.Min(1, confSum/10)
	return int(math.Round(100 * mag * vol))
}
