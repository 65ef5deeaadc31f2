package oracle

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
)

// Source is one exchange's BTC/USD spot ticker.
type Source interface {
	Name() string
	Fetch(ctx context.Context) (float64, error)
}

// DefaultSources returns the six production price sources. timeout is the
// per-request deadline applied to each source's HTTP client.
func DefaultSources(timeout time.Duration) []Source {
	return []Source{
		NewBinanceSource("https://api.binance.com", timeout),
		NewCoinbaseSource("https://api.coinbase.com", timeout),
		NewKrakenSource("https://api.kraken.com", timeout),
		NewBitstampSource("https://www.bitstamp.net", timeout),
		NewGeminiSource("https://api.gemini.com", timeout),
		NewBitfinexSource("https://api-pub.bitfinex.com", timeout),
	}
}

func newSourceClient(baseURL string, timeout time.Duration) *resty.Client {
	return resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetRetryCount(1)
}

func parsePrice(source, raw string) (float64, error) {
	p, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("%s: parse price %q: %w", source, raw, err)
	}
	if p <= 0 {
		return 0, fmt.Errorf("%s: non-positive price %v", source, p)
	}
	return p, nil
}

// ————————————————————————————————————————————————————————————————————————
// Binance
// ————————————————————————————————————————————————————————————————————————

type binanceSource struct {
	client *resty.Client
}

func NewBinanceSource(baseURL string, timeout time.Duration) Source {
	return &binanceSource{client: newSourceClient(baseURL, timeout)}
}

func (s *binanceSource) Name() string { return "binance" }

func (s *binanceSource) Fetch(ctx context.Context) (float64, error) {
	var out struct {
		Price string `json:"price"`
	}
	resp, err := s.client.R().
		SetContext(ctx).
		SetQueryParam("symbol", "BTCUSDT").
		SetResult(&out).
		Get("/api/v3/ticker/price")
	if err != nil {
		return 0, fmt.Errorf("binance: %w", err)
	}
	if resp.IsError() {
		return 0, fmt.Errorf("binance: status %d", resp.StatusCode())
	}
	return parsePrice("binance", out.Price)
}

// ————————————————————————————————————————————————————————————————————————
// Coinbase
// ————————————————————————————————————————————————————————————————————————

type coinbaseSource struct {
	client *resty.Client
}

func NewCoinbaseSource(baseURL string, timeout time.Duration) Source {
	return &coinbaseSource{client: newSourceClient(baseURL, timeout)}
}

func (s *coinbaseSource) Name() string { return "coinbase" }

func (s *coinbaseSource) Fetch(ctx context.Context) (float64, error) {
	var out struct {
		Data struct {
			Amount string `json:"amount"`
		} `json:"data"`
	}
	resp, err := s.client.R().
		SetContext(ctx).
		SetResult(&out).
		Get("/v2/prices/BTC-USD/spot")
	if err != nil {
		return 0, fmt.Errorf("coinbase: %w", err)
	}
	if resp.IsError() {
		return 0, fmt.Errorf("coinbase: status %d", resp.StatusCode())
	}
	return parsePrice("coinbase", out.Data.Amount)
}

// ————————————————————————————————————————————————————————————————————————
// Kraken
// ————————————————————————————————————————————————————————————————————————

type krakenSource struct {
	client *resty.Client
}

func NewKrakenSource(baseURL string, timeout time.Duration) Source {
	return &krakenSource{client: newSourceClient(baseURL, timeout)}
}

func (s *krakenSource) Name() string { return "kraken" }

func (s *krakenSource) Fetch(ctx context.Context) (float64, error) {
	// Kraken keys the result by its internal pair name (XXBTZUSD), so the
	// map is iterated rather than indexed.
	var out struct {
		Error  []string `json:"error"`
		Result map[string]struct {
			C []string `json:"c"` // [last trade price, lot volume]
		} `json:"result"`
	}
	resp, err := s.client.R().
		SetContext(ctx).
		SetQueryParam("pair", "XBTUSD").
		SetResult(&out).
		Get("/0/public/Ticker")
	if err != nil {
		return 0, fmt.Errorf("kraken: %w", err)
	}
	if resp.IsError() {
		return 0, fmt.Errorf("kraken: status %d", resp.StatusCode())
	}
	if len(out.Error) > 0 {
		return 0, fmt.Errorf("kraken: api error: %v", out.Error)
	}
	for _, ticker := range out.Result {
		if len(ticker.C) > 0 {
			return parsePrice("kraken", ticker.C[0])
		}
	}
	return 0, fmt.Errorf("kraken: empty result")
}

// ————————————————————————————————————————————————————————————————————————
// Bitstamp
// ————————————————————————————————————————————————————————————————————————

type bitstampSource struct {
	client *resty.Client
}

func NewBitstampSource(baseURL string, timeout time.Duration) Source {
	return &bitstampSource{client: newSourceClient(baseURL, timeout)}
}

func (s *bitstampSource) Name() string { return "bitstamp" }

func (s *bitstampSource) Fetch(ctx context.Context) (float64, error) {
	var out struct {
		Last string `json:"last"`
	}
	resp, err := s.client.R().
		SetContext(ctx).
		SetResult(&out).
		Get("/api/v2/ticker/btcusd/")
	if err != nil {
		return 0, fmt.Errorf("bitstamp: %w", err)
	}
	if resp.IsError() {
		return 0, fmt.Errorf("bitstamp: status %d", resp.StatusCode())
	}
	return parsePrice("bitstamp", out.Last)
}

// ————————————————————————————————————————————————————————————————————————
// Gemini
// ————————————————————————————————————————————————————————————————————————

type geminiSource struct {
	client *resty.Client
}

func NewGeminiSource(baseURL string, timeout time.Duration) Source {
	return &geminiSource{client: newSourceClient(baseURL, timeout)}
}

func (s *geminiSource) Name() string { return "gemini" }

func (s *geminiSource) Fetch(ctx context.Context) (float64, error) {
	var out struct {
		Last string `json:"last"`
	}
	resp, err := s.client.R().
		SetContext(ctx).
		SetResult(&out).
		Get("/v1/pubticker/btcusd")
	if err != nil {
		return 0, fmt.Errorf("gemini: %w", err)
	}
	if resp.IsError() {
		return 0, fmt.Errorf("gemini: status %d", resp.StatusCode())
	}
	return parsePrice("gemini", out.Last)
}

// ————————————————————————————————————————————————————————————————————————
// Bitfinex
// ————————————————————————————————————————————————————————————————————————

type bitfinexSource struct {
	client *resty.Client
}

func NewBitfinexSource(baseURL string, timeout time.Duration) Source {
	return &bitfinexSource{client: newSourceClient(baseURL, timeout)}
}

func (s *bitfinexSource) Name() string { return "bitfinex" }

func (s *bitfinexSource) Fetch(ctx context.Context) (float64, error) {
	// Bitfinex v2 returns a bare array; LAST_PRICE is index 6.
	var out []float64
	resp, err := s.client.R().
		SetContext(ctx).
		SetResult(&out).
		Get("/v2/ticker/tBTCUSD")
	if err != nil {
		return 0, fmt.Errorf("bitfinex: %w", err)
	}
	if resp.IsError() {
		return 0, fmt.Errorf("bitfinex: status %d", resp.StatusCode())
	}
	if len(out) < 7 {
		return 0, fmt.Errorf("bitfinex: short ticker array (%d fields)", len(out))
	}
	p := out[6]
	if p <= 0 {
		return 0, fmt.Errorf("bitfinex: non-positive price %v", p)
	}
	return p, nil
}
