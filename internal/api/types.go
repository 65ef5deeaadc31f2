package api

import (
	"time"

	"polymarket-sniper/internal/exchange"
	"polymarket-sniper/internal/risk"
	"polymarket-sniper/pkg/types"
)

// BotController is the engine surface the dashboard needs. The engine
// implements it; the server never reaches into engine internals.
type BotController interface {
	Status() StatusSnapshot
	Markets() []types.Market
	Trades() []types.Trade
	StartTrading()
	StopTrading()
	ToggleDryRun() bool
	Events() <-chan Event
}

// StatusSnapshot is the full-state document served by GET /api/status and
// pushed to every WebSocket client on connect.
type StatusSnapshot struct {
	Timestamp time.Time `json:"timestamp"`
	Running   bool      `json:"running"`
	DryRun    bool      `json:"dry_run"`
	Uptime    string    `json:"uptime"`

	// Oracle
	BTCPrice     float64   `json:"btc_price"`
	PriceSources int       `json:"price_sources"`
	PriceUpdated time.Time `json:"price_updated"`
	AnnualVol    float64   `json:"annual_vol"`

	// Portfolio
	Balance        float64 `json:"balance"`
	InitialBalance float64 `json:"initial_balance"`
	PnLToday       float64 `json:"pnl_today"`
	PnLPercent     float64 `json:"pnl_percent"`
	TotalTrades    int     `json:"total_trades"`
	WinningTrades  int     `json:"winning_trades"`
	WinRate        float64 `json:"win_rate"`

	// Activity
	OpenPositions  []types.Position    `json:"open_positions"`
	ActiveMarkets  int                 `json:"active_markets"`
	LastEvaluation string              `json:"last_evaluation"`
	Orders         exchange.OrderStats `json:"orders"`
	Risk           risk.Summary        `json:"risk"`
}
