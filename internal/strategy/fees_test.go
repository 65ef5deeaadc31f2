package strategy

import (
	"math"
	"testing"
)

func TestTakerFeePeaksAtHalf(t *testing.T) {
	t.Parallel()

	if got := TakerFeeRate(0.5); math.Abs(got-0.0315) > 1e-12 {
		t.Errorf("fee(0.5) = %v, want 0.0315", got)
	}
	for _, p := range []float64{0.1, 0.3, 0.45, 0.55, 0.9} {
		if TakerFeeRate(p) >= TakerFeeRate(0.5) {
			t.Errorf("fee(%v) should be below the 0.5 peak", p)
		}
	}
}

func TestTakerFeeSymmetric(t *testing.T) {
	t.Parallel()

	for _, p := range []float64{0.05, 0.1, 0.25, 0.4, 0.49} {
		a, b := TakerFeeRate(p), TakerFeeRate(1-p)
		if math.Abs(a-b) > 1e-12 {
			t.Errorf("fee(%v)=%v != fee(%v)=%v", p, a, 1-p, b)
		}
	}
}

func TestTakerFeeZeroAtExtremes(t *testing.T) {
	t.Parallel()

	if got := TakerFeeRate(0); got != 0 {
		t.Errorf("fee(0) = %v, want 0", got)
	}
	if got := TakerFeeRate(1); got != 0 {
		t.Errorf("fee(1) = %v, want 0", got)
	}
}

func TestEffectiveCost(t *testing.T) {
	t.Parallel()

	total, fee := EffectiveCost(0.5, 100)
	if math.Abs(fee-50*0.0315) > 1e-9 {
		t.Errorf("fee = %v, want %v", fee, 50*0.0315)
	}
	if math.Abs(total-(50+fee)) > 1e-9 {
		t.Errorf("total = %v, want base + fee", total)
	}
}

func TestBreakevenEdgeEqualsEntryFee(t *testing.T) {
	t.Parallel()

	for _, p := range []float64{0.1, 0.4, 0.5, 0.8} {
		if got, want := BreakevenEdge(p), TakerFeeRate(p); got != want {
			t.Errorf("breakeven(%v) = %v, want %v", p, got, want)
		}
	}
}
