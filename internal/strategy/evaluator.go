// Package strategy holds the decision core of the bot: the fair-value
// model, the taker fee curve, technical indicators, and the evaluator that
// turns them into at most one trade per cycle.
package strategy

import (
	"log/slog"
	"math"
	"sort"
	"time"

	"polymarket-sniper/internal/config"
	"polymarket-sniper/pkg/types"
)

// Confidence band. Model probabilities inside (low, high) are too close to
// a coin flip to act on.
const (
	confidenceLow  = 0.40
	confidenceHigh = 0.60
)

// Quote sanity band: a binary's two outcome prices must sum close to $1.
const (
	quoteSumMin = 0.95
	quoteSumMax = 1.05
)

// Position sizing: a base fraction of balance plus a conviction bonus that
// grows as the entry price moves away from 0.5.
const (
	sizeBaseFrac       = 0.05
	sizeConvictionFrac = 0.30
)

// minTradeBalance is the floor below which the account stops trading.
const minTradeBalance = 2.0

// Inputs is everything one evaluation cycle looks at. The engine assembles
// it under its state lock so the view is consistent.
type Inputs struct {
	Markets       []types.Market
	Spot          float64       // composite BTC price, 0 = no oracle yet
	AnnualVol     float64       // current sigma for the fair-value model
	Trend         TrendState    // technical snapshot from oracle history
	Balance       float64       // free balance in USD
	OpenPositions int           // currently open position count
	SinceLastFill time.Duration // time since the last fill attempt
	Now           time.Time
}

// Opportunity is a fully sized trade decision.
type Opportunity struct {
	Market   types.Market
	Side     types.Outcome
	Entry    float64 // quoted price of the chosen side
	FairProb float64 // model probability of the chosen side
	Edge     float64 // FairProb - Entry
	SizeUSD  float64
}

// Evaluator scans the discovered markets each cycle and picks at most one
// trade: the nearest-expiry market that clears every gate.
type Evaluator struct {
	cfg    config.StrategyConfig
	logger *slog.Logger
}

func NewEvaluator(cfg config.StrategyConfig, logger *slog.Logger) *Evaluator {
	return &Evaluator{
		cfg:    cfg,
		logger: logger.With("component", "evaluator"),
	}
}

// Evaluate runs the gate chain. A nil Opportunity means no trade this
// cycle; reason says why, for the log and the dashboard.
func (e *Evaluator) Evaluate(in Inputs) (*Opportunity, string) {
	if len(in.Markets) == 0 {
		return nil, "no markets"
	}
	if in.Spot <= 0 {
		return nil, "no oracle price"
	}
	if in.Balance < minTradeBalance {
		return nil, "balance exhausted"
	}
	if cooldown := time.Duration(e.cfg.CooldownSeconds * float64(time.Second)); in.SinceLastFill < cooldown {
		return nil, "cooldown"
	}
	if in.OpenPositions > 0 {
		return nil, "position already open"
	}

	markets := make([]types.Market, len(in.Markets))
	copy(markets, in.Markets)
	sort.Slice(markets, func(i, j int) bool {
		return markets[i].EndTime.Before(markets[j].EndTime)
	})

	for i := range markets {
		m := &markets[i]
		if opp := e.evaluateMarket(m, in); opp != nil {
			return opp, ""
		}
	}
	return nil, "no market cleared the gates"
}

// evaluateMarket applies the per-market gate chain in order. Ordering
// matters: the cheap structural checks run before the model is consulted.
func (e *Evaluator) evaluateMarket(m *types.Market, in Inputs) *Opportunity {
	if m.Spread() > e.cfg.MaxSpread {
		return nil
	}

	remaining := m.RemainingSeconds(in.Now)
	if remaining <= e.cfg.MinRemaining.Seconds() || remaining > e.cfg.MaxRemaining.Seconds() {
		return nil
	}

	if m.Strike <= 0 {
		return nil
	}

	pUp := FairProbUp(in.Spot, m.Strike, remaining, in.AnnualVol)
	if pUp > confidenceLow && pUp < confidenceHigh {
		return nil
	}

	if sum := m.UpPrice + m.DownPrice; sum < quoteSumMin || sum > quoteSumMax {
		return nil
	}

	// Either side can carry the edge. Even when the model leans up, a
	// lagging quote on the down token can be cheap enough to buy, so both
	// sides are checked independently and the wider edge wins.
	var best *Opportunity
	for _, side := range []types.Outcome{types.OutcomeUp, types.OutcomeDown} {
		fair := pUp
		if side == types.OutcomeDown {
			fair = 1 - pUp
		}
		if !e.trendAllows(side, in.Trend) {
			continue
		}
		entry := m.OutcomePrice(side)
		edge := fair - entry
		if edge < e.cfg.MinEdge {
			continue
		}
		if best == nil || edge > best.Edge {
			best = &Opportunity{
				Market:   *m,
				Side:     side,
				Entry:    entry,
				FairProb: fair,
				Edge:     edge,
			}
		}
	}
	if best == nil {
		return nil
	}

	best.SizeUSD = positionSize(in.Balance, best.Entry)
	e.logger.Info("opportunity found",
		"slug", m.Slug,
		"side", best.Side,
		"fair", best.FairProb,
		"entry", best.Entry,
		"edge", best.Edge,
		"size_usd", best.SizeUSD,
		"remaining_s", remaining)
	return best
}

// trendAllows filters entries that fight the tape: no longs into a
// downtrend or overbought RSI, no shorts into an uptrend or oversold RSI.
func (e *Evaluator) trendAllows(side types.Outcome, t TrendState) bool {
	switch side {
	case types.OutcomeUp:
		if t.Trend == TrendDown || t.RSI > 70 {
			return false
		}
	case types.OutcomeDown:
		if t.Trend == TrendUp || t.RSI < 30 {
			return false
		}
	}
	return true
}

// positionSize returns the USD stake: a base fraction of balance plus a
// bonus scaling with distance of the entry from 0.5, clamped to balance.
func positionSize(balance, entry float64) float64 {
	frac := sizeBaseFrac + sizeConvictionFrac*math.Abs(0.5-entry)
	size := balance * frac
	if size > balance {
		size = balance
	}
	return size
}
