// Package risk enforces hard trading limits in front of every order.
//
// The manager validates each prospective trade against configured caps:
//
//   - Single trade:   notional must not exceed MaxSingleTrade
//   - Position cost:  notional plus taker fee must not exceed MaxPosition
//   - Daily loss:     trading halts once daily PnL drops past -DailyLossLimit
//   - Open positions: concurrent open count capped at MaxOpenPositions
//   - Sanity:         price inside [0.01, 0.99], size inside (0, 10000]
//
// A halt blocks every trade until the next day rollover (for daily-loss
// halts) or a manual Resume. Counters reset when the local date changes.
package risk

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"polymarket-sniper/internal/config"
)

// Size sanity bounds applied to every trade regardless of config.
const (
	minPrice = 0.01
	maxPrice = 0.99
	maxSize  = 10000.0
)

const dailyLossHaltPrefix = "daily loss limit"

// Manager tracks daily counters and the halt state. All methods are safe
// for concurrent use; the evaluator and settlement loops both call in.
type Manager struct {
	cfg    config.RiskConfig
	logger *slog.Logger

	mu            sync.Mutex
	dailyPnL      float64
	dailyTrades   int
	openPositions int
	halted        bool
	haltReason    string
	day           time.Time // midnight of the current counting day

	rejections int
	validated  int

	now func() time.Time // stubbed in tests
}

// NewManager creates a risk manager with zeroed daily counters.
func NewManager(cfg config.RiskConfig, logger *slog.Logger) *Manager {
	m := &Manager{
		cfg:    cfg,
		logger: logger.With("component", "risk"),
		now:    time.Now,
	}
	m.day = dayOf(m.now())
	return m
}

// ValidateTrade checks a prospective trade. feeRate is the taker fee rate
// at the entry price (zero for maker orders). Returns ok plus a rejection
// reason usable in logs and API responses.
func (m *Manager) ValidateTrade(price, size, feeRate float64) (bool, string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.rolloverLocked()

	if m.halted {
		m.rejections++
		return false, m.haltReason
	}

	notional := price * size
	if notional > m.cfg.MaxSingleTrade {
		m.rejections++
		return false, fmt.Sprintf("trade value $%.2f exceeds single-trade limit $%.2f",
			notional, m.cfg.MaxSingleTrade)
	}

	effective := notional * (1 + feeRate)
	if effective > m.cfg.MaxPosition {
		m.rejections++
		return false, fmt.Sprintf("effective cost $%.2f exceeds position limit $%.2f",
			effective, m.cfg.MaxPosition)
	}

	if m.dailyPnL <= -m.cfg.DailyLossLimit {
		m.haltLocked(fmt.Sprintf("%s reached: $%.2f", dailyLossHaltPrefix, m.dailyPnL))
		m.rejections++
		return false, m.haltReason
	}

	if m.openPositions >= m.cfg.MaxOpenPositions {
		m.rejections++
		return false, fmt.Sprintf("open positions at limit (%d)", m.cfg.MaxOpenPositions)
	}

	if price < minPrice || price > maxPrice {
		m.rejections++
		return false, fmt.Sprintf("price %.4f outside [%.2f, %.2f]", price, minPrice, maxPrice)
	}
	if size <= 0 || size > maxSize {
		m.rejections++
		return false, fmt.Sprintf("size %.2f outside (0, %.0f]", size, maxSize)
	}

	m.validated++
	return true, ""
}

// RestoreOpenPositions seeds the open-position counter from persisted
// state on startup, without touching the daily-trade counter.
func (m *Manager) RestoreOpenPositions(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.openPositions = n
}

// RecordTradeOpened bumps the open-position and daily-trade counters.
func (m *Manager) RecordTradeOpened(cost float64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.rolloverLocked()
	m.openPositions++
	m.dailyTrades++
	m.logger.Debug("trade opened", "cost", cost, "open", m.openPositions)
}

// RecordTradeClosed books realized PnL and halts if the close drags daily
// PnL through the loss limit.
func (m *Manager) RecordTradeClosed(pnl float64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.rolloverLocked()
	if m.openPositions > 0 {
		m.openPositions--
	}
	m.dailyPnL += pnl

	if m.dailyPnL <= -m.cfg.DailyLossLimit && !m.halted {
		m.haltLocked(fmt.Sprintf("%s reached: $%.2f", dailyLossHaltPrefix, m.dailyPnL))
	}
}

// Halt disables trading with the given reason until Resume or, for
// daily-loss halts, the next day rollover.
func (m *Manager) Halt(reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.haltLocked(reason)
}

// Resume clears any halt.
func (m *Manager) Resume() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.halted {
		m.logger.Info("trading resumed", "previous_reason", m.haltReason)
	}
	m.halted = false
	m.haltReason = ""
}

// Halted reports the halt state and reason.
func (m *Manager) Halted() (bool, string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.rolloverLocked()
	return m.halted, m.haltReason
}

// Summary is the dashboard view of risk state.
type Summary struct {
	DailyPnL       float64 `json:"daily_pnl"`
	DailyTrades    int     `json:"daily_trades"`
	OpenPositions  int     `json:"open_positions"`
	Halted         bool    `json:"halted"`
	HaltReason     string  `json:"halt_reason"`
	DailyLossLimit float64 `json:"daily_loss_limit"`
	MaxSingleTrade float64 `json:"max_single_trade"`
	Rejections     int     `json:"rejections"`
	Validated      int     `json:"validated"`
}

// Snapshot returns current risk counters.
func (m *Manager) Snapshot() Summary {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.rolloverLocked()
	return Summary{
		DailyPnL:       m.dailyPnL,
		DailyTrades:    m.dailyTrades,
		OpenPositions:  m.openPositions,
		Halted:         m.halted,
		HaltReason:     m.haltReason,
		DailyLossLimit: m.cfg.DailyLossLimit,
		MaxSingleTrade: m.cfg.MaxSingleTrade,
		Rejections:     m.rejections,
		Validated:      m.validated,
	}
}

func (m *Manager) haltLocked(reason string) {
	m.halted = true
	m.haltReason = reason
	m.logger.Error("TRADING HALTED", "reason", reason)
}

// rolloverLocked resets daily counters when the local date changes.
// Only halts caused by the daily loss limit clear automatically; manual
// halts survive the rollover.
func (m *Manager) rolloverLocked() {
	today := dayOf(m.now())
	if today.Equal(m.day) {
		return
	}

	m.logger.Info("daily rollover",
		"previous_pnl", m.dailyPnL,
		"previous_trades", m.dailyTrades)

	m.day = today
	m.dailyPnL = 0
	m.dailyTrades = 0
	if m.halted && strings.HasPrefix(m.haltReason, dailyLossHaltPrefix) {
		m.halted = false
		m.haltReason = ""
		m.logger.Info("daily-loss halt cleared by rollover")
	}
}

func dayOf(t time.Time) time.Time {
	y, mo, d := t.Date()
	return time.Date(y, mo, d, 0, 0, 0, 0, t.Location())
}
