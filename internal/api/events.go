package api

import (
	"time"

	"polymarket-sniper/pkg/types"
)

// Event types pushed over the dashboard WebSocket.
const (
	EventPriceUpdate     = "price_update"
	EventMarketsUpdate   = "markets_update"
	EventNewTrade        = "new_trade"
	EventPortfolioUpdate = "portfolio_update"
	EventBotStatus       = "bot_status"
	EventLog             = "log"
	EventStatus          = "status" // full-state hello on connect
)

// Event is the wrapper for everything sent to the dashboard.
type Event struct {
	Type      string      `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Data      interface{} `json:"data"`
}

// PriceUpdate carries the latest composite oracle price.
type PriceUpdate struct {
	Price        float64   `json:"price"`
	Contributors int       `json:"contributors"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// PortfolioUpdate carries balance and PnL after a state change.
type PortfolioUpdate struct {
	Balance        float64 `json:"balance"`
	InitialBalance float64 `json:"initial_balance"`
	PnLToday       float64 `json:"pnl_today"`
	PnLPercent     float64 `json:"pnl_percent"`
	TotalTrades    int     `json:"total_trades"`
	WinningTrades  int     `json:"winning_trades"`
	WinRate        float64 `json:"win_rate"`
	OpenPositions  int     `json:"open_positions"`
}

// BotStatus reports the engine run state.
type BotStatus struct {
	Running bool `json:"running"`
	DryRun  bool `json:"dry_run"`
}

// LogLine is a human-readable activity entry for the dashboard feed.
type LogLine struct {
	Level   string `json:"level"`
	Message string `json:"message"`
}

// NewPriceEvent wraps a composite price sample.
func NewPriceEvent(p types.CompositePrice) Event {
	return Event{
		Type:      EventPriceUpdate,
		Timestamp: time.Now(),
		Data: PriceUpdate{
			Price:        p.Value,
			Contributors: len(p.Sources),
			UpdatedAt:    p.UpdatedAt,
		},
	}
}

// NewMarketsEvent wraps the current tradeable market set.
func NewMarketsEvent(markets []types.Market) Event {
	return Event{
		Type:      EventMarketsUpdate,
		Timestamp: time.Now(),
		Data:      markets,
	}
}

// NewTradeEvent wraps a settled or opened trade.
func NewTradeEvent(trade types.Trade) Event {
	return Event{
		Type:      EventNewTrade,
		Timestamp: time.Now(),
		Data:      trade,
	}
}

// NewPortfolioEvent wraps portfolio state after a mutation.
func NewPortfolioEvent(p types.Portfolio, openPositions int) Event {
	return Event{
		Type:      EventPortfolioUpdate,
		Timestamp: time.Now(),
		Data: PortfolioUpdate{
			Balance:        p.Balance,
			InitialBalance: p.InitialBalance,
			PnLToday:       p.PnLToday,
			PnLPercent:     p.PnLPercent(),
			TotalTrades:    p.TotalTrades,
			WinningTrades:  p.WinningTrades,
			WinRate:        p.WinRate(),
			OpenPositions:  openPositions,
		},
	}
}

// NewBotStatusEvent wraps a run-state change.
func NewBotStatusEvent(running, dryRun bool) Event {
	return Event{
		Type:      EventBotStatus,
		Timestamp: time.Now(),
		Data:      BotStatus{Running: running, DryRun: dryRun},
	}
}

// NewLogEvent wraps an activity-feed line.
func NewLogEvent(level, message string) Event {
	return Event{
		Type:      EventLog,
		Timestamp: time.Now(),
		Data:      LogLine{Level: level, Message: message},
	}
}
