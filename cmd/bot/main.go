// Polymarket Sniper — an automated trader for 15-minute binary BTC
// prediction markets on Polymarket.
//
// Architecture:
//
//	main.go               — entry point: loads config, starts engine, waits for SIGINT/SIGTERM
//	engine/engine.go      — orchestrator: runs the oracle, discovery, evaluator, and settlement loops
//	oracle/oracle.go      — composite BTC price from six exchange spot feeds
//	oracle/volatility.go  — realized volatility from Binance 1-minute klines
//	strategy/fairvalue.go — fair probability of Up under driftless GBM
//	strategy/evaluator.go — gate chain that picks at most one trade per cycle
//	market/discovery.go   — polls Gamma API for live 15-minute BTC markets, resolves strikes
//	exchange/client.go    — REST client for the Polymarket CLOB (place/cancel orders)
//	exchange/auth.go      — L1 (EIP-712) and L2 (HMAC) authentication, order signing
//	risk/manager.go       — trade caps, daily loss halt, open-position limit
//	store/store.go        — single-file JSON persistence for the paper portfolio
//
// How it makes money:
//
//	Every 15 minutes Polymarket opens a fresh "Bitcoin Up or Down" market.
//	Quotes there often lag the spot market. The bot prices the binary with a
//	driftless GBM model fed by a composite of six spot feeds, and buys the
//	side whose quote is at least ten cents below the model's probability.
//	Positions are held to expiry and settle against the composite price.
package main

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"polymarket-sniper/internal/api"
	"polymarket-sniper/internal/config"
	"polymarket-sniper/internal/engine"
	"polymarket-sniper/internal/metrics"
)

func main() {
	// Secrets come from .env in development; ignore a missing file.
	_ = godotenv.Load()

	cfgPath := "configs/config.yaml"
	if p := os.Getenv("POLY_CONFIG"); p != "" {
		cfgPath = p
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		slog.Error("failed to load config", "error", err, "path", cfgPath)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "error", err)
		os.Exit(1)
	}

	// Set up logger
	var handler slog.Handler
	opts := &slog.HandlerOptions{Level: parseLogLevel(cfg.Logging.Level)}
	if cfg.Logging.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	logger := slog.New(handler)

	// Create and start engine
	eng, err := engine.New(*cfg, logger)
	if err != nil {
		logger.Error("failed to create engine", "error", err)
		os.Exit(1)
	}

	// Start dashboard API server if enabled
	var apiServer *api.Server
	if cfg.Dashboard.Enabled {
		apiServer = api.NewServer(cfg.Dashboard, eng, logger)
		go func() {
			if err := apiServer.Start(); err != nil {
				logger.Error("dashboard server failed", "error", err)
			}
		}()
		logger.Info("dashboard started", "url", fmt.Sprintf("http://localhost:%d", cfg.Dashboard.Port))
	}

	// Start Prometheus endpoint if enabled
	var metricsServer *metrics.Server
	if cfg.Metrics.Enabled {
		metricsServer = metrics.NewServer(cfg.Metrics.Port, logger)
		go func() {
			if err := metricsServer.Start(); err != nil {
				logger.Error("metrics server failed", "error", err)
			}
		}()
	}

	if err := eng.Start(); err != nil {
		logger.Error("failed to start engine", "error", err)
		os.Exit(1)
	}

	if cfg.DryRun {
		logger.Warn("DRY-RUN MODE — no real orders will be placed")
	}

	logger.Info("polymarket sniper started",
		"min_edge", cfg.Strategy.MinEdge,
		"max_single_trade", cfg.Risk.MaxSingleTrade,
		"daily_loss_limit", cfg.Risk.DailyLossLimit,
		"dry_run", cfg.DryRun,
	)

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("received shutdown signal", "signal", sig.String())

	// Stop outward-facing servers first
	if apiServer != nil {
		if err := apiServer.Stop(); err != nil {
			logger.Error("failed to stop dashboard", "error", err)
		}
	}
	if metricsServer != nil {
		if err := metricsServer.Stop(); err != nil {
			logger.Error("failed to stop metrics server", "error", err)
		}
	}

	eng.Stop()
}

func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
