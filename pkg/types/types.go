// Package types defines shared data structures used across all packages.
//
// This package is the common vocabulary for the bot: market metadata for the
// 15-minute BTC up/down binaries, positions and settled trades, portfolio
// state, and the CLOB order formats. It has no dependencies on internal
// packages, so it can be imported by any layer.
package types

import (
	"math/big"
	"time"
)

// ————————————————————————————————————————————————————————————————————————
// Core enums
// ————————————————————————————————————————————————————————————————————————

// Side represents the direction of a CLOB order: BUY or SELL.
type Side string

const (
	BUY  Side = "BUY"
	SELL Side = "SELL"
)

// Outcome identifies which binary outcome a position is on.
// "up" pays out when BTC settles above the strike, "down" below it.
type Outcome string

const (
	OutcomeUp   Outcome = "up"
	OutcomeDown Outcome = "down"
)

// Opposite returns the other side of the binary.
func (o Outcome) Opposite() Outcome {
	if o == OutcomeUp {
		return OutcomeDown
	}
	return OutcomeUp
}

// OrderType enumerates the supported order lifecycles.
type OrderType string

const (
	OrderTypeGTC OrderType = "GTC" // Good-Til-Cancelled: rests on book until filled or cancelled
	OrderTypeFOK OrderType = "FOK" // Fill-Or-Kill: fills immediately and completely, or not at all
)

// SignatureType identifies the signing scheme for the CTF exchange contract.
type SignatureType int

const (
	SigEOA        SignatureType = 0 // externally-owned account (standard wallet)
	SigProxy      SignatureType = 1 // Polymarket proxy / Magic wallet
	SigGnosisSafe SignatureType = 2 // Gnosis Safe multisig
)

// TradeStatus is the settlement outcome of a closed trade.
type TradeStatus string

const (
	TradeWon  TradeStatus = "won"
	TradeLost TradeStatus = "lost"
	TradeVoid TradeStatus = "void" // settled too late to trust the oracle; stake refunded
)

// TradeType records how a trade was entered or resolved.
type TradeType string

const (
	TradeTypeSnipe    TradeType = "Snipe"
	TradeTypeLateVoid TradeType = "LateVoid"
)

// StrikeSource records where a market's strike price came from.
type StrikeSource string

const (
	StrikeFromQuestion StrikeSource = "question" // parsed out of the question/description text
	StrikeFromKlines   StrikeSource = "klines"   // 1-minute open price at market start
)

// ————————————————————————————————————————————————————————————————————————
// Market metadata
// ————————————————————————————————————————————————————————————————————————

// Market is the internal representation of one 15-minute BTC up/down binary.
// Populated from the Gamma API during discovery and handed to the evaluator.
// The two outcome tokens' prices always sum to ~$1.
type Market struct {
	ID          string // Gamma market ID
	ConditionID string // CTF condition ID
	Slug        string // e.g. "btc-updown-15m-1756181700"
	Question    string // the prediction question shown to traders
	Description string // longer text, sometimes carries the strike

	UpTokenID   string // CLOB token ID for the UP outcome
	DownTokenID string // CLOB token ID for the DOWN outcome

	Strike       float64      // BTC price the market settles against
	StrikeSource StrikeSource // how Strike was resolved

	StartTime time.Time // when the 15-minute window opened
	EndTime   time.Time // when the market expires and settles

	UpPrice   float64 // current UP outcome price (0..1)
	DownPrice float64 // current DOWN outcome price (0..1)
	BestBid   float64 // top-of-book bid on the UP token
	BestAsk   float64 // top-of-book ask on the UP token

	Active          bool
	AcceptingOrders bool
}

// Spread returns bestAsk - bestBid on the UP token.
func (m *Market) Spread() float64 {
	return m.BestAsk - m.BestBid
}

// RemainingSeconds returns seconds until expiry at time now, never negative.
func (m *Market) RemainingSeconds(now time.Time) float64 {
	s := m.EndTime.Sub(now).Seconds()
	if s < 0 {
		return 0
	}
	return s
}

// OutcomePrice returns the quoted price for the given outcome.
func (m *Market) OutcomePrice(o Outcome) float64 {
	if o == OutcomeUp {
		return m.UpPrice
	}
	return m.DownPrice
}

// TokenID returns the CLOB token ID for the given outcome.
func (m *Market) TokenID(o Outcome) string {
	if o == OutcomeUp {
		return m.UpTokenID
	}
	return m.DownTokenID
}

// ————————————————————————————————————————————————————————————————————————
// Positions, trades, portfolio
// ————————————————————————————————————————————————————————————————————————

// Position is an open stake in one market. Amount is the USD committed;
// Shares is Amount/EntryPrice, what the stake pays out on a win.
type Position struct {
	ID         string    `json:"id"`
	MarketID   string    `json:"market_id"`
	Slug       string    `json:"slug"`
	Question   string    `json:"question"`
	Side       Outcome   `json:"side"`
	EntryPrice float64   `json:"entry_price"`
	Amount     float64   `json:"amount"`
	Shares     float64   `json:"shares"`
	Strike     float64   `json:"strike"`
	FairProb   float64   `json:"fair_prob"` // model probability at entry
	Edge       float64   `json:"edge"`      // fair - market at entry
	OpenedAt   time.Time `json:"opened_at"`
	ExpiresAt  time.Time `json:"expires_at"`
}

// Trade is a settled (or voided) position, kept in the trade log newest-first.
type Trade struct {
	ID          string      `json:"id"`
	MarketID    string      `json:"market_id"`
	Question    string      `json:"question"`
	Side        Outcome     `json:"side"`
	EntryPrice  float64     `json:"entry_price"`
	Amount      float64     `json:"amount"`
	PnL         float64     `json:"pnl"`
	Status      TradeStatus `json:"status"`
	Type        TradeType   `json:"trade_type"`
	Strike      float64     `json:"strike"`
	SettlePrice float64     `json:"settle_price"` // composite BTC price at settlement (0 for voids)
	OpenedAt    time.Time   `json:"opened_at"`
	SettledAt   time.Time   `json:"settled_at"`
}

// Portfolio is the paper account. Invariant maintained by the engine:
// Balance + sum of open position amounts == InitialBalance + realized PnL.
type Portfolio struct {
	Balance        float64 `json:"balance"`
	InitialBalance float64 `json:"initial_balance"`
	PnLToday       float64 `json:"pnl_today"`
	TotalTrades    int     `json:"total_trades"`
	WinningTrades  int     `json:"winning_trades"`
}

// WinRate returns winning/total, 0 when no trades have settled.
func (p Portfolio) WinRate() float64 {
	if p.TotalTrades == 0 {
		return 0
	}
	return float64(p.WinningTrades) / float64(p.TotalTrades)
}

// PnLPercent returns today's PnL relative to the initial balance.
func (p Portfolio) PnLPercent() float64 {
	if p.InitialBalance == 0 {
		return 0
	}
	return p.PnLToday / p.InitialBalance * 100
}

// ————————————————————————————————————————————————————————————————————————
// Oracle
// ————————————————————————————————————————————————————————————————————————

// PriceSample is one exchange's spot quote from a single oracle tick.
type PriceSample struct {
	Source string    `json:"source"` // "binance", "coinbase", ...
	Price  float64   `json:"price"`
	At     time.Time `json:"at"`
}

// CompositePrice is the blended BTC spot from one oracle tick: the
// arithmetic mean of every source that answered in time.
type CompositePrice struct {
	Value     float64       `json:"value"`
	Sources   []PriceSample `json:"sources"`
	UpdatedAt time.Time     `json:"updated_at"`
}

// Age returns how stale the composite is at time now.
func (c CompositePrice) Age(now time.Time) time.Duration {
	return now.Sub(c.UpdatedAt)
}

// ————————————————————————————————————————————————————————————————————————
// Orders
// ————————————————————————————————————————————————————————————————————————

// UserOrder is the high-level order representation produced by the strategy.
// The exchange client converts it to a SignedOrder for the CLOB API.
type UserOrder struct {
	TokenID    string    // which outcome token to trade
	Price      float64   // limit price (0.01 to 0.99 for binary markets)
	Size       float64   // quantity in tokens
	Side       Side      // BUY or SELL
	OrderType  OrderType // GTC or FOK
	Expiration int64     // unix timestamp, 0 = no expiry
	FeeRateBps int       // fee rate in basis points
}

// SignedOrder is the on-chain order format the CLOB API expects.
// MakerAmount and TakerAmount are in 6-decimal USDC units (1e6 = $1).
//
// For BUY:  maker gives MakerAmount USDC, receives TakerAmount tokens
// For SELL: maker gives MakerAmount tokens, receives TakerAmount USDC
type SignedOrder struct {
	Salt          string        `json:"salt"`
	Maker         string        `json:"maker"`       // funder/proxy wallet address
	Signer        string        `json:"signer"`      // EOA that signs the order
	Taker         string        `json:"taker"`       // zero address = open order
	TokenID       string        `json:"tokenId"`     // CTF token ID
	MakerAmount   *big.Int      `json:"makerAmount"` // what maker gives (scaled to 1e6)
	TakerAmount   *big.Int      `json:"takerAmount"` // what maker receives (scaled to 1e6)
	Side          Side          `json:"side"`
	Expiration    string        `json:"expiration"`    // unix timestamp as string
	Nonce         string        `json:"nonce"`         // replay protection
	FeeRateBps    string        `json:"feeRateBps"`    // fee in basis points as string
	SignatureType SignatureType `json:"signatureType"` // 0 = EOA
	Signature     string        `json:"signature"`     // EIP-712 signature hex
}

// OrderPayload is the REST API request body for POST /order.
type OrderPayload struct {
	Order     SignedOrder `json:"order"`
	Owner     string      `json:"owner"`     // API key of the order owner
	OrderType OrderType   `json:"orderType"` // GTC or FOK
}

// OrderResponse is the REST API response for a posted order.
type OrderResponse struct {
	Success  bool   `json:"success"`
	ErrorMsg string `json:"errorMsg"`
	OrderID  string `json:"orderID"`
	Status   string `json:"status"` // e.g. "live", "matched"
}

// OpenOrder represents a live resting order on the CLOB.
type OpenOrder struct {
	ID           string `json:"id"`
	Status       string `json:"status"`        // "live", "matched", etc.
	Market       string `json:"market"`        // condition ID
	AssetID      string `json:"asset_id"`      // token ID
	Side         string `json:"side"`          // "BUY" or "SELL"
	OriginalSize string `json:"original_size"` // initial size
	SizeMatched  string `json:"size_matched"`  // how much has filled
	Price        string `json:"price"`         // limit price
}

// CancelResponse is returned by DELETE /order and /cancel-all.
type CancelResponse struct {
	Canceled []string `json:"canceled"` // IDs of successfully cancelled orders
}
