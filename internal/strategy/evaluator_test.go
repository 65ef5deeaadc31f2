package strategy

import (
	"log/slog"
	"math"
	"os"
	"testing"
	"time"

	"polymarket-sniper/internal/config"
	"polymarket-sniper/pkg/types"
)

func testStrategyConfig() config.StrategyConfig {
	return config.StrategyConfig{
		AnnualVolatility: 0.80,
		MinEdge:          0.10,
		MaxSpread:        0.05,
		MinRemaining:     time.Minute,
		MaxRemaining:     12 * time.Minute,
		CooldownSeconds:  10,
		EvalInterval:     2 * time.Second,
	}
}

func newTestEvaluator() *Evaluator {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	return NewEvaluator(testStrategyConfig(), logger)
}

func testMarket(now time.Time) types.Market {
	return types.Market{
		ID:        "m1",
		Slug:      "btc-updown-15m-1756181700",
		Question:  "Bitcoin Up or Down?",
		Strike:    90000,
		UpPrice:   0.40,
		DownPrice: 0.60,
		BestBid:   0.39,
		BestAsk:   0.41,
		StartTime: now.Add(-10 * time.Minute),
		EndTime:   now.Add(5 * time.Minute),
	}
}

func baseInputs(now time.Time) Inputs {
	return Inputs{
		Markets:       []types.Market{testMarket(now)},
		Spot:          91000, // far enough above strike that p_up clips at 0.99
		AnnualVol:     0.80,
		Trend:         TrendState{Trend: TrendFlat, RSI: 55},
		Balance:       10,
		SinceLastFill: time.Minute,
		Now:           now,
	}
}

func TestEvaluateEarlyExits(t *testing.T) {
	t.Parallel()

	now := time.Now()
	e := newTestEvaluator()

	cases := []struct {
		name   string
		mutate func(*Inputs)
		reason string
	}{
		{"no markets", func(in *Inputs) { in.Markets = nil }, "no markets"},
		{"no oracle", func(in *Inputs) { in.Spot = 0 }, "no oracle price"},
		{"balance exhausted", func(in *Inputs) { in.Balance = 1.50 }, "balance exhausted"},
		{"cooldown", func(in *Inputs) { in.SinceLastFill = 3 * time.Second }, "cooldown"},
		{"single position mode", func(in *Inputs) { in.OpenPositions = 1 }, "position already open"},
	}
	for _, tc := range cases {
		in := baseInputs(now)
		tc.mutate(&in)
		opp, reason := e.Evaluate(in)
		if opp != nil {
			t.Errorf("%s: got opportunity, want none", tc.name)
		}
		if reason != tc.reason {
			t.Errorf("%s: reason = %q, want %q", tc.name, reason, tc.reason)
		}
	}
}

func TestEvaluateGateChain(t *testing.T) {
	t.Parallel()

	now := time.Now()
	e := newTestEvaluator()

	cases := []struct {
		name   string
		mutate func(*types.Market, *Inputs)
	}{
		{"wide spread", func(m *types.Market, in *Inputs) { m.BestBid, m.BestAsk = 0.30, 0.40 }},
		{"too close to expiry", func(m *types.Market, in *Inputs) { m.EndTime = in.Now.Add(30 * time.Second) }},
		{"too far from expiry", func(m *types.Market, in *Inputs) { m.EndTime = in.Now.Add(13 * time.Minute) }},
		{"missing strike", func(m *types.Market, in *Inputs) { m.Strike = 0 }},
		{"coin flip confidence", func(m *types.Market, in *Inputs) { in.Spot = m.Strike }},
		{"broken quotes", func(m *types.Market, in *Inputs) { m.UpPrice, m.DownPrice = 0.40, 0.30 }},
		{"downtrend blocks up entry", func(m *types.Market, in *Inputs) { in.Trend.Trend = TrendDown }},
		{"overbought blocks up entry", func(m *types.Market, in *Inputs) { in.Trend.RSI = 75 }},
		{"edge too thin", func(m *types.Market, in *Inputs) { m.UpPrice, m.DownPrice = 0.93, 0.07 }},
	}
	for _, tc := range cases {
		in := baseInputs(now)
		tc.mutate(&in.Markets[0], &in)
		if opp, _ := e.Evaluate(in); opp != nil {
			t.Errorf("%s: got opportunity %+v, want none", tc.name, opp)
		}
	}
}

func TestEvaluateBuysUp(t *testing.T) {
	t.Parallel()

	now := time.Now()
	e := newTestEvaluator()

	opp, reason := e.Evaluate(baseInputs(now))
	if opp == nil {
		t.Fatalf("no opportunity: %s", reason)
	}
	if opp.Side != types.OutcomeUp {
		t.Errorf("side = %v, want up", opp.Side)
	}
	if opp.Entry != 0.40 {
		t.Errorf("entry = %v, want 0.40", opp.Entry)
	}
	if opp.FairProb != 0.99 {
		t.Errorf("fair = %v, want clipped 0.99", opp.FairProb)
	}
	if math.Abs(opp.Edge-0.59) > 1e-9 {
		t.Errorf("edge = %v, want 0.59", opp.Edge)
	}
	// balance 10, entry 0.40: 10 * (0.05 + 0.3*|0.5-0.4|) = 0.80
	if math.Abs(opp.SizeUSD-0.80) > 1e-9 {
		t.Errorf("size = %v, want 0.80", opp.SizeUSD)
	}
}

func TestEvaluateBuysDown(t *testing.T) {
	t.Parallel()

	now := time.Now()
	in := baseInputs(now)
	in.Spot = 89000
	in.Markets[0].UpPrice = 0.60
	in.Markets[0].DownPrice = 0.40

	opp, reason := newTestEvaluator().Evaluate(in)
	if opp == nil {
		t.Fatalf("no opportunity: %s", reason)
	}
	if opp.Side != types.OutcomeDown {
		t.Errorf("side = %v, want down", opp.Side)
	}
	if opp.Entry != 0.40 {
		t.Errorf("entry = %v, want down price 0.40", opp.Entry)
	}
}

func TestEvaluateDownEdgeWhenModelLeansUp(t *testing.T) {
	t.Parallel()

	// Spot sits just above the strike, so the model leans up (p_up about
	// 0.617, clear of the confidence band). The up quote at 0.74 is
	// overpriced, but the down quote at 0.26 trades well under its 0.383
	// fair value, and that side carries the edge.
	now := time.Now()
	in := baseInputs(now)
	in.Spot = 90066
	in.Markets[0].UpPrice = 0.74
	in.Markets[0].DownPrice = 0.26
	in.Markets[0].BestBid = 0.73
	in.Markets[0].BestAsk = 0.75

	opp, reason := newTestEvaluator().Evaluate(in)
	if opp == nil {
		t.Fatalf("no opportunity: %s", reason)
	}
	if opp.Side != types.OutcomeDown {
		t.Fatalf("side = %v, want down", opp.Side)
	}
	if opp.Entry != 0.26 {
		t.Errorf("entry = %v, want 0.26", opp.Entry)
	}
	if opp.FairProb < 0.35 || opp.FairProb > 0.42 {
		t.Errorf("fair = %v, want about 0.38", opp.FairProb)
	}
	if opp.Edge < 0.10 {
		t.Errorf("edge = %v, want at least the minimum edge", opp.Edge)
	}
}

func TestEvaluateUptrendBlocksDownEntry(t *testing.T) {
	t.Parallel()

	now := time.Now()
	in := baseInputs(now)
	in.Spot = 89000
	in.Markets[0].UpPrice = 0.60
	in.Markets[0].DownPrice = 0.40
	in.Trend.Trend = TrendUp

	if opp, _ := newTestEvaluator().Evaluate(in); opp != nil {
		t.Errorf("uptrend should block a down entry, got %+v", opp)
	}
}

func TestEvaluatePicksNearestExpiry(t *testing.T) {
	t.Parallel()

	now := time.Now()
	in := baseInputs(now)
	near := testMarket(now)
	near.ID = "near"
	near.EndTime = now.Add(3 * time.Minute)
	far := testMarket(now)
	far.ID = "far"
	far.EndTime = now.Add(9 * time.Minute)
	in.Markets = []types.Market{far, near}

	opp, reason := newTestEvaluator().Evaluate(in)
	if opp == nil {
		t.Fatalf("no opportunity: %s", reason)
	}
	if opp.Market.ID != "near" {
		t.Errorf("picked %s, want the nearest expiry", opp.Market.ID)
	}
}

func TestPositionSizeClampedToBalance(t *testing.T) {
	t.Parallel()

	if got := positionSize(10, 0.40); math.Abs(got-0.80) > 1e-9 {
		t.Errorf("size = %v, want 0.80", got)
	}
	// The fraction can never exceed 1, but the clamp guards the invariant.
	if got := positionSize(10, 0.01); got > 10 {
		t.Errorf("size = %v exceeds balance", got)
	}
}
