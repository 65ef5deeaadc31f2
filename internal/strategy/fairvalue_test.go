package strategy

import (
	"math"
	"testing"
)

func TestFairProbAtStrikeIsHalf(t *testing.T) {
	t.Parallel()

	p := FairProbUp(90000, 90000, 600, 0.80)
	if math.Abs(p-0.5) > 1e-9 {
		t.Errorf("p(S=K) = %v, want 0.5", p)
	}
}

func TestFairProbMonotonicInSpot(t *testing.T) {
	t.Parallel()

	prev := -1.0
	for spot := 89000.0; spot <= 91000; spot += 100 {
		p := FairProbUp(spot, 90000, 600, 0.80)
		if p < prev {
			t.Fatalf("p not monotone: spot=%v p=%v prev=%v", spot, p, prev)
		}
		prev = p
	}
}

func TestFairProbClipped(t *testing.T) {
	t.Parallel()

	if p := FairProbUp(100000, 90000, 600, 0.80); p != 0.99 {
		t.Errorf("deep ITM p = %v, want clip at 0.99", p)
	}
	if p := FairProbUp(80000, 90000, 600, 0.80); p != 0.01 {
		t.Errorf("deep OTM p = %v, want clip at 0.01", p)
	}
}

func TestFairProbDegenerateCases(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name                     string
		spot, strike, tau, sigma float64
		want                     float64
	}{
		{"expired above", 90500, 90000, 0, 0.80, 1.0},
		{"expired below", 89500, 90000, -5, 0.80, 0.0},
		{"zero vol above", 90500, 90000, 600, 0, 1.0},
		{"zero vol below", 89500, 90000, 600, 0, 0.0},
		{"zero strike", 90500, 0, 600, 0.80, 1.0},
		{"zero spot", 0, 90000, 600, 0.80, 0.0},
	}
	for _, tc := range cases {
		if got := FairProbUp(tc.spot, tc.strike, tc.tau, tc.sigma); got != tc.want {
			t.Errorf("%s: p = %v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestFairProbMoreTimeMoreUncertainty(t *testing.T) {
	t.Parallel()

	// With spot above strike, more time to expiry drags p back toward 0.5.
	short := FairProbUp(90100, 90000, 60, 0.80)
	long := FairProbUp(90100, 90000, 720, 0.80)
	if !(long < short) {
		t.Errorf("p(60s)=%v should exceed p(720s)=%v for ITM spot", short, long)
	}
	if long <= 0.5 {
		t.Errorf("p = %v, should stay above 0.5 while spot > strike", long)
	}
}

func TestFairProbMatchesClosedForm(t *testing.T) {
	t.Parallel()

	spot, strike, tau, sigma := 91000.0, 90000.0, 300.0, 0.80
	sigmaT := sigma * math.Sqrt(tau/secondsPerYear)
	d := math.Log(spot/strike) / sigmaT
	want := 0.5 * (1 + math.Erf(d/math.Sqrt2))
	if want > 0.99 {
		want = 0.99
	}

	if got := FairProbUp(spot, strike, tau, sigma); math.Abs(got-want) > 1e-12 {
		t.Errorf("p = %v, want %v", got, want)
	}
}
