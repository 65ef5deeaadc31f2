// Package engine is the central orchestrator of the sniper.
//
// It wires together all subsystems and runs four loops:
//
//  1. Oracle loop: polls six exchanges and publishes a composite BTC price.
//  2. Discovery loop: polls the Gamma API for live 15-minute markets.
//  3. Evaluator loop: every cycle, assembles a consistent view of the world
//     (markets, spot, volatility, trend, balance) and asks the evaluator for
//     at most one trade, which it executes through risk checks.
//  4. Settlement loop: sweeps expired positions against the composite price
//     and books wins, losses, and late voids.
//
// All portfolio state lives behind one mutex and is persisted to the store
// after every mutation, so a restart resumes exactly where it left off.
//
// Lifecycle: New() → Start() → [runs until SIGINT] → Stop()
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"polymarket-sniper/internal/api"
	"polymarket-sniper/internal/config"
	"polymarket-sniper/internal/exchange"
	"polymarket-sniper/internal/market"
	"polymarket-sniper/internal/metrics"
	"polymarket-sniper/internal/oracle"
	"polymarket-sniper/internal/risk"
	"polymarket-sniper/internal/store"
	"polymarket-sniper/internal/strategy"
	"polymarket-sniper/pkg/types"
)

// Technical-analysis window sizes over the composite history.
const (
	smaPeriod = 20
	rsiPeriod = 14
)

// Engine orchestrates all components of the sniper.
// It owns the lifecycle of all goroutines and the portfolio state.
type Engine struct {
	cfg       config.Config
	client    *exchange.Client
	oracle    *oracle.Oracle
	vol       *oracle.Estimator
	discovery *market.Discovery
	evaluator *strategy.Evaluator
	riskMgr   *risk.Manager
	store     *store.Store
	logger    *slog.Logger

	// mu guards everything below. The evaluator and settlement loops both
	// mutate the portfolio, so every read-modify-write happens under it.
	mu         sync.Mutex
	running    bool
	portfolio  types.Portfolio
	positions  []types.Position
	trades     []types.Trade
	markets    []types.Market
	lastFill   time.Time
	lastReason string // most recent evaluator verdict, for the dashboard
	tradeSeq   int

	startedAt time.Time

	// events is an optional channel feeding the dashboard. Nil if disabled.
	events chan api.Event

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates and wires all engine components, restoring persisted state.
// In live mode, missing L2 API credentials are derived via L1 (EIP-712) auth.
func New(cfg config.Config, logger *slog.Logger) (*Engine, error) {
	var auth *exchange.Auth
	if cfg.Wallet.PrivateKey != "" {
		a, err := exchange.NewAuth(cfg)
		if err != nil {
			return nil, err
		}
		auth = a
	} else {
		// Paper mode with no wallet configured; the client never signs.
		auth = &exchange.Auth{}
	}

	client := exchange.NewClient(cfg, auth, logger)

	if !cfg.DryRun && !auth.HasL2Credentials() {
		logger.Info("no L2 credentials, deriving API key via L1...")
		creds, err := client.DeriveAPIKey(context.Background())
		if err != nil {
			return nil, err
		}
		auth.SetCredentials(*creds)
	}

	vol := oracle.NewEstimator(cfg.API.BinanceBaseURL, cfg.Strategy.AnnualVolatility, cfg.Strategy.VolRefresh, logger)
	orc := oracle.New(cfg.Oracle, oracle.DefaultSources(cfg.Oracle.SourceTimeout), logger)
	disc := market.NewDiscovery(cfg, vol.PriceAt, logger)
	riskMgr := risk.NewManager(cfg.Risk, logger)
	client.SetValidator(riskMgr)
	evaluator := strategy.NewEvaluator(cfg.Strategy, logger)

	st, err := store.Open(cfg.Store.DataFile)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())

	var events chan api.Event
	if cfg.Dashboard.Enabled {
		events = make(chan api.Event, 100)
	}

	e := &Engine{
		cfg:       cfg,
		client:    client,
		oracle:    orc,
		vol:       vol,
		discovery: disc,
		evaluator: evaluator,
		riskMgr:   riskMgr,
		store:     st,
		logger:    logger.With("component", "engine"),
		running:   true,
		events:    events,
		ctx:       ctx,
		cancel:    cancel,
		portfolio: types.Portfolio{
			Balance:        cfg.Settlement.InitialBalance,
			InitialBalance: cfg.Settlement.InitialBalance,
		},
		positions: []types.Position{},
		trades:    []types.Trade{},
	}

	e.restore()
	return e, nil
}

// restore loads the persisted state, if any. An unreadable state file is
// logged and ignored; the bot starts fresh rather than refusing to boot.
func (e *Engine) restore() {
	state, err := e.store.Load()
	if err != nil {
		e.logger.Warn("state file unreadable, starting fresh", "error", err)
		return
	}
	if state == nil {
		return
	}

	e.portfolio = state.Portfolio
	e.positions = state.Positions
	e.trades = state.Trades
	e.tradeSeq = state.TotalTrades + len(state.Positions)
	e.riskMgr.RestoreOpenPositions(len(state.Positions))

	e.logger.Info("state restored",
		"balance", e.portfolio.Balance,
		"open_positions", len(e.positions),
		"trades", len(e.trades))
}

// Start launches all background loops.
func (e *Engine) Start() error {
	e.startedAt = time.Now()

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		e.oracle.Run(e.ctx)
	}()

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		e.discovery.Run(e.ctx)
	}()

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		e.consumeFeeds()
	}()

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		e.evaluateLoop()
	}()

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		e.settleLoop()
	}()

	e.emit(api.NewBotStatusEvent(true, e.client.DryRun()))
	e.logger.Info("engine started", "dry_run", e.client.DryRun())
	return nil
}

// Stop gracefully shuts down: cancels all loops, sends a cancel-all to the
// exchange as a safety net in live mode, persists state, and waits.
func (e *Engine) Stop() {
	e.logger.Info("shutting down...")

	e.cancel()

	if !e.client.DryRun() {
		cancelCtx, done := context.WithTimeout(context.Background(), 10*time.Second)
		if _, err := e.client.CancelAll(cancelCtx); err != nil {
			e.logger.Error("failed to cancel all orders on shutdown", "error", err)
		}
		done()
	}

	e.mu.Lock()
	e.persistLocked()
	e.mu.Unlock()

	e.wg.Wait()
	e.store.Close()

	e.logger.Info("shutdown complete")
}

// consumeFeeds forwards oracle and discovery updates into engine state
// and onto the dashboard stream.
func (e *Engine) consumeFeeds() {
	for {
		select {
		case <-e.ctx.Done():
			return
		case price := <-e.oracle.Updates():
			metrics.BTCPrice.Set(price.Value)
			metrics.OracleSources.Set(float64(len(price.Sources)))
			e.emit(api.NewPriceEvent(price))
		case snap := <-e.discovery.Results():
			e.mu.Lock()
			e.markets = snap.Markets
			e.mu.Unlock()
			metrics.ActiveMarkets.Set(float64(len(snap.Markets)))
			e.emit(api.NewMarketsEvent(snap.Markets))
		}
	}
}

// evaluateLoop runs the entry decision on a fixed cycle.
func (e *Engine) evaluateLoop() {
	ticker := time.NewTicker(e.cfg.Strategy.EvalInterval)
	defer ticker.Stop()

	for {
		select {
		case <-e.ctx.Done():
			return
		case <-ticker.C:
			e.evaluateOnce()
		}
	}
}

// evaluateOnce assembles a consistent world view, asks the evaluator for a
// trade, and executes it. Volatility is fetched before the lock because it
// may hit the network.
func (e *Engine) evaluateOnce() {
	metrics.Evaluations.Inc()

	annualVol := e.vol.AnnualVol(e.ctx)
	metrics.AnnualVol.Set(annualVol)

	now := time.Now()
	var spot float64
	if e.oracle.Fresh(now) && e.oracle.Valid() {
		spot = e.oracle.Snapshot().Value
	}
	trend := strategy.AnalyzeTrend(e.oracle.History(), smaPeriod, rsiPeriod)

	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.running {
		e.lastReason = "bot stopped"
		return
	}

	in := strategy.Inputs{
		Markets:       e.markets,
		Spot:          spot,
		AnnualVol:     annualVol,
		Trend:         trend,
		Balance:       e.portfolio.Balance,
		OpenPositions: len(e.positions),
		SinceLastFill: now.Sub(e.lastFill),
		Now:           now,
	}

	opp, reason := e.evaluator.Evaluate(in)
	if opp == nil {
		e.lastReason = reason
		return
	}
	e.executeLocked(opp, now)
}

// executeLocked runs the risk gate, simulates or places the fill, and books
// the new position. Caller holds e.mu.
func (e *Engine) executeLocked(opp *strategy.Opportunity, now time.Time) {
	shares := opp.SizeUSD / opp.Entry

	// Limit entries rest as maker orders, so the risk check uses zero fee.
	if ok, reason := e.riskMgr.ValidateTrade(opp.Entry, shares, 0); !ok {
		e.lastReason = "risk: " + reason
		e.logger.Warn("trade blocked by risk", "reason", reason)
		return
	}

	// Paper fills miss sometimes; a resting order at the quote is not
	// guaranteed to be hit before the market moves. A live order goes to
	// the book and the venue decides its fate.
	if e.client.DryRun() && rand.Float64() > e.cfg.Settlement.FillProbability {
		e.lastFill = now
		e.lastReason = "order not filled"
		e.logger.Info("simulated order missed",
			"market", opp.Market.Slug, "side", opp.Side, "entry", opp.Entry)
		return
	}

	tokenID := opp.Market.TokenID(opp.Side)
	resp, err := e.client.PlaceLimitOrder(e.ctx, tokenID, types.BUY, opp.Entry, shares)
	if err != nil {
		e.lastReason = "order failed"
		e.logger.Error("order placement failed", "error", err)
		return
	}
	metrics.OrdersPlaced.Inc()

	e.tradeSeq++
	pos := types.Position{
		ID:         fmt.Sprintf("PT-%04d", e.tradeSeq),
		MarketID:   opp.Market.ID,
		Slug:       opp.Market.Slug,
		Question:   opp.Market.Question,
		Side:       opp.Side,
		EntryPrice: opp.Entry,
		Amount:     opp.SizeUSD,
		Shares:     shares,
		Strike:     opp.Market.Strike,
		FairProb:   opp.FairProb,
		Edge:       opp.Edge,
		OpenedAt:   now,
		ExpiresAt:  opp.Market.EndTime,
	}

	e.portfolio.Balance -= opp.SizeUSD
	e.positions = append(e.positions, pos)
	e.lastFill = now
	e.lastReason = "filled " + pos.ID
	e.riskMgr.RecordTradeOpened(opp.SizeUSD)
	metrics.TradesOpened.Inc()

	e.persistLocked()

	e.logger.Info("position opened",
		"id", pos.ID,
		"market", pos.Slug,
		"side", pos.Side,
		"entry", pos.EntryPrice,
		"amount", pos.Amount,
		"fair", pos.FairProb,
		"edge", pos.Edge,
		"order_id", resp.OrderID)

	e.emit(api.NewPortfolioEvent(e.portfolio, len(e.positions)))
	e.emit(api.NewLogEvent("info", fmt.Sprintf("opened %s %s @ %.2f for $%.2f (edge %.2f)",
		pos.ID, pos.Side, pos.EntryPrice, pos.Amount, pos.Edge)))
}

// settleLoop sweeps expired positions on a fixed cycle.
func (e *Engine) settleLoop() {
	ticker := time.NewTicker(e.cfg.Settlement.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-e.ctx.Done():
			return
		case <-ticker.C:
			e.settleExpired()
		}
	}
}

// settleExpired resolves every position past expiry against the composite
// price. The whole sweep is skipped while the oracle is stale or invalid;
// no settlement, not even a late void, happens without a usable feed.
func (e *Engine) settleExpired() {
	now := time.Now()
	if !e.oracle.Fresh(now) || !e.oracle.Valid() {
		return
	}
	spot := e.oracle.Snapshot().Value

	e.mu.Lock()
	defer e.mu.Unlock()

	var remaining []types.Position
	settled := 0
	for _, pos := range e.positions {
		if now.Before(pos.ExpiresAt) {
			remaining = append(remaining, pos)
			continue
		}

		if now.Sub(pos.ExpiresAt) > e.cfg.Settlement.LateVoidAfter {
			e.voidLocked(pos, now)
			settled++
			continue
		}

		e.resolveLocked(pos, spot, now)
		settled++
	}
	if remaining == nil {
		remaining = []types.Position{}
	}
	e.positions = remaining

	if settled > 0 {
		e.persistLocked()
	}
}

// resolveLocked books a win or loss for an expired position. Caller holds e.mu.
func (e *Engine) resolveLocked(pos types.Position, spot float64, now time.Time) {
	won := (pos.Side == types.OutcomeUp && spot > pos.Strike) ||
		(pos.Side == types.OutcomeDown && spot < pos.Strike)

	var pnl float64
	status := types.TradeLost
	if won {
		payout := pos.Shares // each share pays $1
		pnl = payout - pos.Amount
		e.portfolio.Balance += payout
		e.portfolio.WinningTrades++
		status = types.TradeWon
	} else {
		pnl = -pos.Amount
	}

	e.bookTradeLocked(pos, types.Trade{
		Status:      status,
		Type:        types.TradeTypeSnipe,
		SettlePrice: spot,
	}, pnl, now)

	e.logger.Info("position settled",
		"id", pos.ID,
		"status", status,
		"spot", spot,
		"strike", pos.Strike,
		"pnl", pnl)
}

// voidLocked refunds a position that expired too long ago to settle
// against a trustworthy price. Caller holds e.mu.
func (e *Engine) voidLocked(pos types.Position, now time.Time) {
	e.portfolio.Balance += pos.Amount

	e.bookTradeLocked(pos, types.Trade{
		Status: types.TradeVoid,
		Type:   types.TradeTypeLateVoid,
	}, 0, now)

	e.logger.Warn("position voided",
		"id", pos.ID,
		"expired_at", pos.ExpiresAt,
		"late_by", now.Sub(pos.ExpiresAt))
}

// bookTradeLocked finalizes a settlement: fills in the trade record, puts
// it at the front of the log, and updates counters. Caller holds e.mu.
func (e *Engine) bookTradeLocked(pos types.Position, trade types.Trade, pnl float64, now time.Time) {
	trade.ID = pos.ID
	trade.MarketID = pos.MarketID
	trade.Question = pos.Question
	trade.Side = pos.Side
	trade.EntryPrice = pos.EntryPrice
	trade.Amount = pos.Amount
	trade.PnL = pnl
	trade.Strike = pos.Strike
	trade.OpenedAt = pos.OpenedAt
	trade.SettledAt = now

	// Newest first; the dashboard reads the log top-down.
	e.trades = append([]types.Trade{trade}, e.trades...)

	e.portfolio.PnLToday += pnl
	e.portfolio.TotalTrades++
	e.riskMgr.RecordTradeClosed(pnl)

	metrics.TradesSettled.WithLabelValues(string(trade.Status)).Inc()
	metrics.AddRealizedPnL(pnl)
	metrics.Balance.Set(e.portfolio.Balance)
	metrics.OpenPositions.Set(float64(len(e.positions)))

	e.emit(api.NewTradeEvent(trade))
	e.emit(api.NewPortfolioEvent(e.portfolio, len(e.positions)))
	e.emit(api.NewLogEvent("info", fmt.Sprintf("%s %s: pnl $%.2f", trade.ID, trade.Status, pnl)))
}

// persistLocked saves the full state. Caller holds e.mu.
func (e *Engine) persistLocked() {
	state := &store.State{
		Portfolio: e.portfolio,
		Positions: e.positions,
		Trades:    e.trades,
	}
	if err := e.store.Save(state); err != nil {
		e.logger.Error("failed to persist state", "error", err)
	}
}

// emit sends an event to the dashboard (non-blocking).
func (e *Engine) emit(evt api.Event) {
	if e.events == nil {
		return
	}
	select {
	case e.events <- evt:
	default:
		// Dashboard can't keep up, drop event
	}
}

// ————————————————————————————————————————————————————————————————————————
// Dashboard surface (api.BotController)
// ————————————————————————————————————————————————————————————————————————

// Events returns the dashboard event channel (may be nil).
func (e *Engine) Events() <-chan api.Event {
	return e.events
}

// StartTrading resumes entries. Settlement always runs.
func (e *Engine) StartTrading() {
	e.mu.Lock()
	e.running = true
	e.mu.Unlock()

	e.logger.Info("trading started")
	e.emit(api.NewBotStatusEvent(true, e.client.DryRun()))
}

// StopTrading pauses entries. Open positions still settle.
func (e *Engine) StopTrading() {
	e.mu.Lock()
	e.running = false
	e.mu.Unlock()

	e.logger.Info("trading stopped")
	e.emit(api.NewBotStatusEvent(false, e.client.DryRun()))
}

// ToggleDryRun flips paper/live mode and returns the new dry-run state.
func (e *Engine) ToggleDryRun() bool {
	next := !e.client.DryRun()
	e.client.SetDryRun(next)

	e.mu.Lock()
	running := e.running
	e.mu.Unlock()

	e.logger.Warn("dry-run toggled", "dry_run", next)
	e.emit(api.NewBotStatusEvent(running, next))
	return next
}

// Markets returns the latest discovery snapshot.
func (e *Engine) Markets() []types.Market {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make([]types.Market, len(e.markets))
	copy(out, e.markets)
	return out
}

// Trades returns the trade log, most recent first.
func (e *Engine) Trades() []types.Trade {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make([]types.Trade, len(e.trades))
	copy(out, e.trades)
	return out
}

// Status builds the full-state document for the dashboard.
func (e *Engine) Status() api.StatusSnapshot {
	price := e.oracle.Snapshot()
	annualVol := e.vol.AnnualVol(e.ctx)
	orders := e.client.Stats()
	riskSnap := e.riskMgr.Snapshot()
	dryRun := e.client.DryRun()

	e.mu.Lock()
	defer e.mu.Unlock()

	positions := make([]types.Position, len(e.positions))
	copy(positions, e.positions)

	return api.StatusSnapshot{
		Timestamp:      time.Now(),
		Running:        e.running,
		DryRun:         dryRun,
		Uptime:         time.Since(e.startedAt).Round(time.Second).String(),
		BTCPrice:       price.Value,
		PriceSources:   len(price.Sources),
		PriceUpdated:   price.UpdatedAt,
		AnnualVol:      annualVol,
		Balance:        e.portfolio.Balance,
		InitialBalance: e.portfolio.InitialBalance,
		PnLToday:       e.portfolio.PnLToday,
		PnLPercent:     e.portfolio.PnLPercent(),
		TotalTrades:    e.portfolio.TotalTrades,
		WinningTrades:  e.portfolio.WinningTrades,
		WinRate:        e.portfolio.WinRate(),
		OpenPositions:  positions,
		ActiveMarkets:  len(e.markets),
		LastEvaluation: e.lastReason,
		Orders:         orders,
		Risk:           riskSnap,
	}
}
