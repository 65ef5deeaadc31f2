package oracle

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
)

const (
	volWindow   = 60     // 1-minute closes in the lookback
	minutesYear = 525600 // minutes in a 365-day year
	volClampMin = 0.20   // floor for annualized vol
	volClampMax = 2.00   // cap for annualized vol
)

// Estimator computes annualized realized volatility from Binance 1-minute
// klines and resolves historical open prices for strike backfill. Results
// are cached so the evaluator can read every cycle without blocking on HTTP.
type Estimator struct {
	client   *resty.Client
	logger   *slog.Logger
	fallback float64
	ttl      time.Duration

	mu        sync.Mutex
	vol       float64
	fetchedAt time.Time
	priceAt   map[int64]float64 // minute-bucket unix -> 1m open price
}

// NewEstimator builds an Estimator against a Binance-compatible klines API.
// fallback is returned whenever a fresh estimate cannot be computed.
func NewEstimator(baseURL string, fallback float64, ttl time.Duration, logger *slog.Logger) *Estimator {
	return &Estimator{
		client: resty.New().
			SetBaseURL(baseURL).
			SetTimeout(10 * time.Second).
			SetRetryCount(2),
		logger:   logger.With("component", "volatility"),
		fallback: fallback,
		ttl:      ttl,
		vol:      fallback,
		priceAt:  make(map[int64]float64),
	}
}

// AnnualVol returns the cached annualized volatility, refreshing it when the
// cache has expired. Never fails: any fetch or computation problem falls
// back to the configured default.
func (e *Estimator) AnnualVol(ctx context.Context) float64 {
	e.mu.Lock()
	if time.Since(e.fetchedAt) < e.ttl {
		v := e.vol
		e.mu.Unlock()
		return v
	}
	e.mu.Unlock()

	vol, err := e.fetchRealizedVol(ctx)
	if err != nil {
		e.logger.Warn("realized vol fetch failed, using fallback",
			"fallback", e.fallback, "error", err)
		vol = e.fallback
	}

	e.mu.Lock()
	e.vol = vol
	e.fetchedAt = time.Now()
	e.mu.Unlock()
	return vol
}

func (e *Estimator) fetchRealizedVol(ctx context.Context) (float64, error) {
	closes, err := e.fetchCloses(ctx, volWindow)
	if err != nil {
		return 0, err
	}
	vol, err := AnnualizedVol(closes)
	if err != nil {
		return 0, err
	}
	e.logger.Debug("realized vol refreshed", "annual_vol", vol, "samples", len(closes))
	return vol, nil
}

// AnnualizedVol converts a series of 1-minute closes into a clamped
// annualized volatility: sample stddev of log returns scaled by sqrt of
// minutes per year.
func AnnualizedVol(closes []float64) (float64, error) {
	if len(closes) < 3 {
		return 0, fmt.Errorf("need at least 3 closes, got %d", len(closes))
	}
	returns := make([]float64, 0, len(closes)-1)
	for i := 1; i < len(closes); i++ {
		if closes[i-1] <= 0 || closes[i] <= 0 {
			return 0, fmt.Errorf("non-positive close in series")
		}
		returns = append(returns, math.Log(closes[i]/closes[i-1]))
	}

	var mean float64
	for _, r := range returns {
		mean += r
	}
	mean /= float64(len(returns))

	var variance float64
	for _, r := range returns {
		d := r - mean
		variance += d * d
	}
	variance /= float64(len(returns) - 1)

	vol := math.Sqrt(variance) * math.Sqrt(minutesYear)
	return clampVol(vol), nil
}

func clampVol(v float64) float64 {
	if v < volClampMin {
		return volClampMin
	}
	if v > volClampMax {
		return volClampMax
	}
	return v
}

// PriceAt returns the 1-minute open price covering t, for strike backfill on
// markets whose metadata omits the strike. Cached per minute bucket.
func (e *Estimator) PriceAt(ctx context.Context, t time.Time) (float64, error) {
	bucket := t.Truncate(time.Minute).Unix()

	e.mu.Lock()
	if p, ok := e.priceAt[bucket]; ok {
		e.mu.Unlock()
		return p, nil
	}
	e.mu.Unlock()

	klines, err := e.fetchKlines(ctx, bucket*1000, 1)
	if err != nil {
		return 0, err
	}
	if len(klines) == 0 {
		return 0, fmt.Errorf("no kline at %s", t.Format(time.RFC3339))
	}
	open, err := klineField(klines[0], 1)
	if err != nil {
		return 0, err
	}

	e.mu.Lock()
	e.priceAt[bucket] = open
	e.mu.Unlock()
	return open, nil
}

func (e *Estimator) fetchCloses(ctx context.Context, limit int) ([]float64, error) {
	klines, err := e.fetchKlines(ctx, 0, limit)
	if err != nil {
		return nil, err
	}
	closes := make([]float64, 0, len(klines))
	for _, k := range klines {
		c, err := klineField(k, 4)
		if err != nil {
			return nil, err
		}
		closes = append(closes, c)
	}
	return closes, nil
}

func (e *Estimator) fetchKlines(ctx context.Context, startTimeMs int64, limit int) ([][]any, error) {
	req := e.client.R().
		SetContext(ctx).
		SetQueryParam("symbol", "BTCUSDT").
		SetQueryParam("interval", "1m").
		SetQueryParam("limit", strconv.Itoa(limit))
	if startTimeMs > 0 {
		req.SetQueryParam("startTime", strconv.FormatInt(startTimeMs, 10))
	}

	var out [][]any
	resp, err := req.SetResult(&out).Get("/api/v3/klines")
	if err != nil {
		return nil, fmt.Errorf("klines: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("klines: status %d", resp.StatusCode())
	}
	return out, nil
}

// klineField pulls one numeric field out of a raw kline row. Binance encodes
// prices as JSON strings and timestamps as numbers.
func klineField(row []any, idx int) (float64, error) {
	if idx >= len(row) {
		return 0, fmt.Errorf("kline row too short (%d fields)", len(row))
	}
	switch v := row[idx].(type) {
	case string:
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return 0, fmt.Errorf("kline field %d: %w", idx, err)
		}
		return f, nil
	case float64:
		return v, nil
	default:
		return 0, fmt.Errorf("kline field %d: unexpected type %T", idx, row[idx])
	}
}
