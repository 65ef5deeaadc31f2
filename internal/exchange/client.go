// Package exchange implements the Polymarket CLOB REST client.
//
// The client handles order placement for the sniper:
//   - PlaceLimitOrder:  POST /order               — GTC maker order at a limit price
//   - PlaceMarketOrder: POST /order               — FOK taker order for a USDC amount
//   - CancelOrder:      DELETE /order             — cancel one order by ID
//   - CancelAll:        DELETE /cancel-all        — emergency cancel everything
//   - GetOpenOrders:    GET  /data/orders         — list live resting orders
//   - DeriveAPIKey:     GET  /auth/derive-api-key — bootstrap L2 creds from L1 wallet
//
// Every mutating request consumes a token from a shared bucket, is retried
// on 5xx errors, and carries L2 HMAC headers. In dry-run mode mutating
// methods short-circuit with synthetic DRY_ order IDs and no HTTP traffic.
package exchange

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"

	"polymarket-sniper/internal/config"
	"polymarket-sniper/pkg/types"
)

// Market orders fill at an unknown price; these estimates size the FOK
// payload before the venue reports the actual match.
const (
	marketOrderEstPrice = 0.50
	marketOrderEstFee   = 0.015
)

// TradeValidator approves or rejects a prospective trade before it is
// submitted. Satisfied by *risk.Manager.
type TradeValidator interface {
	ValidateTrade(price, size, feeRate float64) (bool, string)
}

// OrderStats counts order lifecycle events since startup.
type OrderStats struct {
	Placed   int `json:"placed"`
	Canceled int `json:"canceled"`
	Filled   int `json:"filled"`
}

// activeOrder is the client's record of a resting order it placed.
type activeOrder struct {
	TokenID  string
	Side     types.Side
	Price    float64
	Size     float64
	PlacedAt time.Time
}

// Client is the Polymarket CLOB REST API client.
// It wraps a resty HTTP client with rate limiting, retry, and auth.
type Client struct {
	http    *resty.Client // HTTP client with retry + base URL
	auth    *Auth         // L1/L2 auth provider for request signing
	limiter *TokenBucket  // shared order-operation rate limit
	logger  *slog.Logger

	mu        sync.Mutex
	dryRun    bool
	drySeq    int // counter for synthetic DRY_ order IDs
	active    map[string]activeOrder
	stats     OrderStats
	validator TradeValidator // optional; nil skips pre-trade checks
}

// NewClient creates a REST client with rate limiting and retry.
func NewClient(cfg config.Config, auth *Auth, logger *slog.Logger) *Client {
	httpClient := resty.New().
		SetBaseURL(cfg.API.CLOBBaseURL).
		SetTimeout(10 * time.Second).
		SetRetryCount(3).
		SetRetryWaitTime(500 * time.Millisecond).
		SetRetryMaxWaitTime(5 * time.Second).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			if err != nil {
				return true
			}
			return r.StatusCode() >= 500
		}).
		SetHeader("Content-Type", "application/json")

	rate := cfg.Execution.MaxOrdersPerSecond
	if rate <= 0 {
		rate = 50
	}

	return &Client{
		http:    httpClient,
		auth:    auth,
		limiter: NewTokenBucket(rate, rate),
		dryRun:  cfg.DryRun,
		logger:  logger.With("component", "exchange"),
		active:  make(map[string]activeOrder),
	}
}

// SetValidator installs a pre-trade check that market orders must pass.
func (c *Client) SetValidator(v TradeValidator) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.validator = v
}

// SetDryRun toggles paper mode. Live orders already resting are unaffected.
func (c *Client) SetDryRun(v bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.dryRun = v
}

// DryRun reports whether the client is in paper mode.
func (c *Client) DryRun() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dryRun
}

// Stats returns order lifecycle counters.
func (c *Client) Stats() OrderStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats
}

// ActiveOrderCount returns the number of orders the client believes are live.
func (c *Client) ActiveOrderCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.active)
}

// MarkFilled records a fill for an order the client placed and drops it
// from the active set.
func (c *Client) MarkFilled(orderID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.active[orderID]; ok {
		delete(c.active, orderID)
		c.stats.Filled++
	}
}

// PlaceLimitOrder places a GTC maker order. Maker orders pay no fee, so
// FeeRateBps stays zero.
func (c *Client) PlaceLimitOrder(ctx context.Context, tokenID string, side types.Side, price, size float64) (*types.OrderResponse, error) {
	order := types.UserOrder{
		TokenID:   tokenID,
		Price:     price,
		Size:      size,
		Side:      side,
		OrderType: types.OrderTypeGTC,
	}
	return c.postOrder(ctx, order)
}

// PlaceMarketOrder places a FOK taker order spending amountUSD. The fill
// price is unknown up front; size is estimated at the 0.50 midpoint and the
// venue returns the actual match.
func (c *Client) PlaceMarketOrder(ctx context.Context, tokenID string, side types.Side, amountUSD float64) (*types.OrderResponse, error) {
	size := amountUSD / marketOrderEstPrice

	c.mu.Lock()
	v := c.validator
	c.mu.Unlock()
	if v != nil {
		if ok, reason := v.ValidateTrade(marketOrderEstPrice, size, marketOrderEstFee); !ok {
			c.logger.Warn("market order blocked by risk", "token", tokenID, "reason", reason)
			return nil, fmt.Errorf("risk rejected: %s", reason)
		}
	}

	order := types.UserOrder{
		TokenID:    tokenID,
		Price:      marketOrderEstPrice,
		Size:       size,
		Side:       side,
		OrderType:  types.OrderTypeFOK,
		FeeRateBps: int(marketOrderEstFee * 10000),
	}
	return c.postOrder(ctx, order)
}

func (c *Client) postOrder(ctx context.Context, order types.UserOrder) (*types.OrderResponse, error) {
	c.mu.Lock()
	if c.dryRun {
		c.drySeq++
		id := fmt.Sprintf("DRY_%d", c.drySeq)
		c.active[id] = activeOrder{
			TokenID:  order.TokenID,
			Side:     order.Side,
			Price:    order.Price,
			Size:     order.Size,
			PlacedAt: time.Now(),
		}
		c.stats.Placed++
		c.mu.Unlock()
		c.logger.Info("DRY-RUN: would place order",
			"order_id", id,
			"token", order.TokenID,
			"side", order.Side,
			"price", order.Price,
			"size", order.Size,
			"type", order.OrderType)
		return &types.OrderResponse{Success: true, OrderID: id, Status: "live"}, nil
	}
	c.mu.Unlock()

	if _, err := c.limiter.Acquire(ctx, 1); err != nil {
		return nil, err
	}

	payload, err := c.buildOrderPayload(order)
	if err != nil {
		return nil, err
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal order: %w", err)
	}
	headers, err := c.auth.L2Headers("POST", "/order", string(body))
	if err != nil {
		return nil, fmt.Errorf("l2 headers: %w", err)
	}

	var result types.OrderResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeaders(headers).
		SetBody(json.RawMessage(body)).
		SetResult(&result).
		Post("/order")
	if err != nil {
		return nil, fmt.Errorf("post order: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("post order: status %d: %s", resp.StatusCode(), resp.String())
	}
	if !result.Success {
		return &result, fmt.Errorf("order rejected: %s", result.ErrorMsg)
	}

	c.mu.Lock()
	c.active[result.OrderID] = activeOrder{
		TokenID:  order.TokenID,
		Side:     order.Side,
		Price:    order.Price,
		Size:     order.Size,
		PlacedAt: time.Now(),
	}
	c.stats.Placed++
	c.mu.Unlock()

	c.logger.Info("order placed",
		"order_id", result.OrderID,
		"token", order.TokenID,
		"side", order.Side,
		"price", order.Price,
		"size", order.Size,
		"status", result.Status)
	return &result, nil
}

// buildOrderPayload converts a high-level UserOrder into the signed
// SignedOrder + metadata the REST API expects. It converts human-readable
// price/size to big.Int maker/taker amounts at 6-decimal USDC precision,
// sets the maker to the funder wallet (proxy), the signer to the EOA,
// and the taker to the zero address (open order, anyone can fill).
func (c *Client) buildOrderPayload(order types.UserOrder) (*types.OrderPayload, error) {
	makerAmt, takerAmt := PriceToAmounts(order.Price, order.Size, order.Side)

	signed := types.SignedOrder{
		Maker:         c.auth.FunderAddress().Hex(),
		Signer:        c.auth.Address().Hex(),
		Taker:         "0x0000000000000000000000000000000000000000",
		TokenID:       order.TokenID,
		MakerAmount:   makerAmt,
		TakerAmount:   takerAmt,
		Side:          order.Side,
		Expiration:    fmt.Sprintf("%d", order.Expiration),
		Nonce:         "0",
		FeeRateBps:    fmt.Sprintf("%d", order.FeeRateBps),
		SignatureType: c.auth.sigType,
	}
	if err := c.auth.SignOrder(&signed); err != nil {
		return nil, err
	}

	return &types.OrderPayload{
		Order:     signed,
		Owner:     c.auth.creds.ApiKey,
		OrderType: order.OrderType,
	}, nil
}

// CancelOrder cancels a single order by ID.
func (c *Client) CancelOrder(ctx context.Context, orderID string) (*types.CancelResponse, error) {
	c.mu.Lock()
	if c.dryRun {
		delete(c.active, orderID)
		c.stats.Canceled++
		c.mu.Unlock()
		c.logger.Info("DRY-RUN: would cancel order", "order_id", orderID)
		return &types.CancelResponse{Canceled: []string{orderID}}, nil
	}
	c.mu.Unlock()

	if _, err := c.limiter.Acquire(ctx, 1); err != nil {
		return nil, err
	}

	body := fmt.Sprintf(`{"orderID":"%s"}`, orderID)
	headers, err := c.auth.L2Headers("DELETE", "/order", body)
	if err != nil {
		return nil, fmt.Errorf("l2 headers: %w", err)
	}

	var result types.CancelResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeaders(headers).
		SetBody(json.RawMessage(body)).
		SetResult(&result).
		Delete("/order")
	if err != nil {
		return nil, fmt.Errorf("cancel order: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("cancel order: status %d: %s", resp.StatusCode(), resp.String())
	}

	c.mu.Lock()
	for _, id := range result.Canceled {
		delete(c.active, id)
		c.stats.Canceled++
	}
	c.mu.Unlock()

	c.logger.Info("order cancelled", "order_id", orderID)
	return &result, nil
}

// CancelAll cancels every open order across all markets.
func (c *Client) CancelAll(ctx context.Context) (*types.CancelResponse, error) {
	c.mu.Lock()
	if c.dryRun {
		n := len(c.active)
		c.active = make(map[string]activeOrder)
		c.stats.Canceled += n
		c.mu.Unlock()
		c.logger.Info("DRY-RUN: would cancel all orders", "count", n)
		return &types.CancelResponse{}, nil
	}
	c.mu.Unlock()

	if _, err := c.limiter.Acquire(ctx, 1); err != nil {
		return nil, err
	}

	headers, err := c.auth.L2Headers("DELETE", "/cancel-all", "")
	if err != nil {
		return nil, fmt.Errorf("l2 headers: %w", err)
	}

	var result types.CancelResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeaders(headers).
		SetResult(&result).
		Delete("/cancel-all")
	if err != nil {
		return nil, fmt.Errorf("cancel all: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("cancel all: status %d: %s", resp.StatusCode(), resp.String())
	}

	c.mu.Lock()
	c.stats.Canceled += len(result.Canceled)
	c.active = make(map[string]activeOrder)
	c.mu.Unlock()

	c.logger.Warn("all orders cancelled", "count", len(result.Canceled))
	return &result, nil
}

// GetOpenOrders fetches live resting orders for the authenticated wallet.
func (c *Client) GetOpenOrders(ctx context.Context) ([]types.OpenOrder, error) {
	headers, err := c.auth.L2Headers("GET", "/data/orders", "")
	if err != nil {
		return nil, fmt.Errorf("l2 headers: %w", err)
	}

	var result []types.OpenOrder
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeaders(headers).
		SetResult(&result).
		Get("/data/orders")
	if err != nil {
		return nil, fmt.Errorf("get open orders: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("get open orders: status %d: %s", resp.StatusCode(), resp.String())
	}
	return result, nil
}

// DeriveAPIKey derives L2 API credentials via L1 authentication.
func (c *Client) DeriveAPIKey(ctx context.Context) (*Credentials, error) {
	headers, err := c.auth.L1Headers(0)
	if err != nil {
		return nil, fmt.Errorf("l1 headers: %w", err)
	}

	var result Credentials
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeaders(headers).
		SetResult(&result).
		Get("/auth/derive-api-key")
	if err != nil {
		return nil, fmt.Errorf("derive api key: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("derive api key: status %d: %s", resp.StatusCode(), resp.String())
	}

	c.auth.SetCredentials(result)
	c.logger.Info("API key derived", "api_key", result.ApiKey)
	return &result, nil
}
