package alpha

import (
	"math"
	"testing"

	"github.com/rish-kun/alphastream/config"
	"github.com/rish-kun/alphastream/internal/store"
)

func approx(t *testing.T, got, want float64) {
	t.Helper()
	if math.Abs(got-want) > 1e-9 {
		t.Fatalf("got %v want %v", got, want)
	}
}

func testWeights() config.AlphaWeights {
	return config.AlphaWeights{ExpectationGap: 0.45, NarrativeVelocity: 0.30, Divergence: 0.25}
}

func testThresholds() config.SignalThresholds {
	return config.SignalThresholds{StrongBuy: 0.5, Buy: 0.2, Sell: -0.2, StrongSell: -0.5}
}

func TestExpectationGap(t *testing.T) {
	approx(t, ExpectationGap(0.5, 0.1), 0.4)
	approx(t, ExpectationGap(-0.2, 0.3), -0.5)
	approx(t, ExpectationGap(0, 0), 0)
}

func TestNarrativeVelocityNormalized(t *testing.T) {
	// 4 mentions over 24h against 12 over 144h: rate is 2x the ticker's
	// own history, ratio/5 = 0.4, scaled by (1+0.7)/2.
	v := NarrativeVelocity(4, 24, 12, 144, 0, 0.7)
	approx(t, v, 0.4*0.85)
}

func TestNarrativeVelocitySurgeCaps(t *testing.T) {
	v := NarrativeVelocity(100, 24, 12, 144, 0, 1.0)
	approx(t, v, 1.0)
}

func TestNarrativeVelocityFallbackShare(t *testing.T) {
	// No history: share-of-news shape. 10% share, |sent| 0.5.
	v := NarrativeVelocity(5, 24, 0, 144, 0.1, 0.5)
	approx(t, v, 0.1*5*1.5/10)
}

func TestNarrativeVelocityShortHistoryUsesFallback(t *testing.T) {
	v := NarrativeVelocity(5, 24, 3, 12, 0.1, 0.5)
	approx(t, v, 0.1*5*1.5/10)
}

func TestDivergenceClampsPriceBand(t *testing.T) {
	// +25% move clamps to the band, counting as a full price signal.
	approx(t, Divergence(0.5, 0.25, 0.10), (0.5-1.0)/2)
	approx(t, Divergence(0.7, 0.02, 0.10), (0.7-0.2)/2)
	approx(t, Divergence(-0.4, -0.30, 0.10), (-0.4+1.0)/2)
}

func TestCompositeRenormalizesWithoutDivergence(t *testing.T) {
	d := 0.25
	full := Composite(0.5, 0.34, &d, testWeights())
	approx(t, full, 0.45*0.5+0.30*0.34+0.25*0.25)

	partial := Composite(0.5, 0.34, nil, testWeights())
	approx(t, partial, (0.45*0.5+0.30*0.34)/0.75)
}

func TestSignalForBands(t *testing.T) {
	cases := []struct {
		composite float64
		want      string
	}{
		{0.6, store.SignalStrongBuy},
		{0.5, store.SignalBuy}, // boundary is exclusive
		{0.21, store.SignalBuy},
		{0.0, store.SignalHold},
		{-0.2, store.SignalSell},
		{-0.3, store.SignalSell},
		{-0.6, store.SignalStrongSell},
	}
	for _, tc := range cases {
		if got := SignalFor(tc.composite, testThresholds()); got != tc.want {
			t.Fatalf("SignalFor(%v) = %s, want %s", tc.composite, got, tc.want)
		}
	}
}

func TestConviction(t *testing.T) {
	if got := Conviction(1.0, 20); got != 100 {
		t.Fatalf("saturated conviction = %d, want 100", got)
	}
	if got := Conviction(0, 10); got != 0 {
		t.Fatalf("flat composite conviction = %d, want 0", got)
	}
	// Thin evidence keeps conviction low even with a strong score.
	if got := Conviction(0.9, 0.5); got > 5 {
		t.Fatalf("thin-evidence conviction = %d, want <= 5", got)
	}
}
