// Package metrics exposes Prometheus instrumentation for the sniper.
//
// Collectors are package-level and registered via promauto; the engine and
// its loops record into them directly. Serve starts the /metrics endpoint
// on its own port so the dashboard port stays free of scrape traffic.
package metrics

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	BTCPrice = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "sniper_btc_price_usd",
		Help: "Latest composite BTC price in USD.",
	})

	OracleSources = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "sniper_oracle_sources",
		Help: "Number of price sources contributing to the composite.",
	})

	AnnualVol = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "sniper_annualized_volatility",
		Help: "Annualized BTC volatility used by the fair-value model.",
	})

	Balance = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "sniper_balance_usd",
		Help: "Current paper balance in USD.",
	})

	OpenPositions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "sniper_open_positions",
		Help: "Number of currently open positions.",
	})

	ActiveMarkets = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "sniper_active_markets",
		Help: "Number of tradeable markets in the latest discovery snapshot.",
	})

	Evaluations = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sniper_evaluations_total",
		Help: "Evaluation cycles run.",
	})

	TradesOpened = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sniper_trades_opened_total",
		Help: "Positions opened.",
	})

	TradesSettled = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sniper_trades_settled_total",
		Help: "Positions settled, by outcome.",
	}, []string{"status"})

	RealizedPnL = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sniper_realized_pnl_usd_total",
		Help: "Cumulative realized PnL in USD (wins minus losses).",
	})

	OrdersPlaced = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sniper_orders_placed_total",
		Help: "Orders submitted to the CLOB (or simulated in dry-run).",
	})
)

// AddRealizedPnL records settled PnL. Counters only go up, so losses are
// tracked through the settled-by-status counter instead.
func AddRealizedPnL(pnl float64) {
	if pnl > 0 {
		RealizedPnL.Add(pnl)
	}
}

// Server serves the Prometheus scrape endpoint.
type Server struct {
	server *http.Server
	logger *slog.Logger
}

// NewServer creates a metrics server on the given port.
func NewServer(port int, logger *slog.Logger) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	return &Server{
		server: &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: mux,
		},
		logger: logger.With("component", "metrics"),
	}
}

// Start serves until Stop is called.
func (s *Server) Start() error {
	s.logger.Info("metrics server starting", "addr", s.server.Addr)
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("metrics server: %w", err)
	}
	return nil
}

// Stop shuts the scrape endpoint down.
func (s *Server) Stop() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.server.Shutdown(ctx)
}
