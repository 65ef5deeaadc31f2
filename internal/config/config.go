// Package config defines all configuration for the trading bot.
// Config is loaded from a YAML file (default: configs/config.yaml) with
// sensitive fields overridable via POLY_* environment variables.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the top-level configuration. Maps directly to the YAML file structure.
type Config struct {
	DryRun     bool             `mapstructure:"dry_run"`
	Wallet     WalletConfig     `mapstructure:"wallet"`
	API        APIConfig        `mapstructure:"api"`
	Oracle     OracleConfig     `mapstructure:"oracle"`
	Discovery  DiscoveryConfig  `mapstructure:"discovery"`
	Strategy   StrategyConfig   `mapstructure:"strategy"`
	Risk       RiskConfig       `mapstructure:"risk"`
	Execution  ExecutionConfig  `mapstructure:"execution"`
	Settlement SettlementConfig `mapstructure:"settlement"`
	Store      StoreConfig      `mapstructure:"store"`
	Logging    LoggingConfig    `mapstructure:"logging"`
	Dashboard  DashboardConfig  `mapstructure:"dashboard"`
	Metrics    MetricsConfig    `mapstructure:"metrics"`
}

// WalletConfig holds the Ethereum wallet used for signing orders.
// PrivateKey signs L1 (EIP-712) auth and derives L2 API keys.
// FunderAddress is the on-chain address that funds orders (may differ from signer if using a proxy).
type WalletConfig struct {
	PrivateKey    string `mapstructure:"private_key"`
	SignatureType int    `mapstructure:"signature_type"`
	FunderAddress string `mapstructure:"funder_address"`
	ChainID       int    `mapstructure:"chain_id"`
	RPCURL        string `mapstructure:"rpc_url"`
}

// APIConfig holds the Polymarket and Binance endpoints plus optional
// pre-derived L2 credentials. If ApiKey/Secret/Passphrase are empty the bot
// derives them via L1 auth on startup (live mode only).
type APIConfig struct {
	CLOBBaseURL    string `mapstructure:"clob_base_url"`
	GammaBaseURL   string `mapstructure:"gamma_base_url"`
	WSMarketURL    string `mapstructure:"ws_market_url"`
	BinanceBaseURL string `mapstructure:"binance_base_url"`
	ApiKey         string `mapstructure:"api_key"`
	Secret         string `mapstructure:"secret"`
	Passphrase     string `mapstructure:"passphrase"`
}

// OracleConfig tunes the multi-exchange composite BTC price feed.
//
//   - TickInterval: how often to poll every source.
//   - SourceTimeout: per-source HTTP deadline within one tick.
//   - StaleAfter: composite older than this is unusable for settlement.
//   - HistorySize: rolling window of composite values kept for TA.
//   - MinValidPrice: composites below this are treated as garbage reads.
type OracleConfig struct {
	TickInterval  time.Duration `mapstructure:"tick_interval"`
	SourceTimeout time.Duration `mapstructure:"source_timeout"`
	StaleAfter    time.Duration `mapstructure:"stale_after"`
	HistorySize   int           `mapstructure:"history_size"`
	MinValidPrice float64       `mapstructure:"min_valid_price"`
}

// DiscoveryConfig controls polling of the Gamma API for 15-minute markets.
type DiscoveryConfig struct {
	PollInterval time.Duration `mapstructure:"poll_interval"`
	TagSlug      string        `mapstructure:"tag_slug"`
	Limit        int           `mapstructure:"limit"`
	MaxSlugAge   time.Duration `mapstructure:"max_slug_age"`
}

// StrategyConfig tunes the fair-value sniper.
//
//   - AnnualVolatility: fallback sigma when the realized estimate is unavailable.
//   - VolRefresh: how often to refresh realized volatility from klines.
//   - MinEdge: required fair-minus-market edge to enter.
//   - MaxSpread: skip markets with a wider top-of-book spread.
//   - MinRemaining/MaxRemaining: tradeable time-to-expiry window.
//   - CooldownSeconds: wait after any fill attempt before the next entry.
//   - EvalInterval: evaluator cycle period.
type StrategyConfig struct {
	AnnualVolatility float64       `mapstructure:"annual_volatility"`
	VolRefresh       time.Duration `mapstructure:"vol_refresh"`
	MinEdge          float64       `mapstructure:"min_edge"`
	MaxSpread        float64       `mapstructure:"max_spread"`
	MinRemaining     time.Duration `mapstructure:"min_remaining"`
	MaxRemaining     time.Duration `mapstructure:"max_remaining"`
	CooldownSeconds  float64       `mapstructure:"cooldown_seconds"`
	EvalInterval     time.Duration `mapstructure:"eval_interval"`
}

// RiskConfig sets hard limits enforced before every order.
//
//   - MaxSingleTrade: max USD notional per trade.
//   - MaxPosition: max USD cost including fees per position.
//   - DailyLossLimit: halt trading once daily PnL drops past -limit.
//   - MaxOpenPositions: concurrent open position cap (1 = single-position mode).
type RiskConfig struct {
	MaxSingleTrade   float64 `mapstructure:"max_single_trade"`
	MaxPosition      float64 `mapstructure:"max_position"`
	DailyLossLimit   float64 `mapstructure:"daily_loss_limit"`
	MaxOpenPositions int     `mapstructure:"max_open_positions"`
}

// ExecutionConfig controls order placement mechanics.
type ExecutionConfig struct {
	MaxOrdersPerSecond float64       `mapstructure:"max_orders_per_second"`
	OrderLifetime      time.Duration `mapstructure:"order_lifetime"`
}

// SettlementConfig controls the position settlement sweep.
//
//   - SweepInterval: how often expired positions are checked.
//   - LateVoidAfter: positions settled later than this past expiry are
//     voided and refunded instead of scored against a drifted oracle.
//   - FillProbability: simulated fill rate for paper entries.
//   - InitialBalance: paper account starting balance.
type SettlementConfig struct {
	SweepInterval   time.Duration `mapstructure:"sweep_interval"`
	LateVoidAfter   time.Duration `mapstructure:"late_void_after"`
	FillProbability float64       `mapstructure:"fill_probability"`
	InitialBalance  float64       `mapstructure:"initial_balance"`
}

// StoreConfig sets where the engine snapshot is persisted (single JSON file).
type StoreConfig struct {
	DataFile string `mapstructure:"data_file"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// DashboardConfig controls the web dashboard server.
type DashboardConfig struct {
	Enabled        bool     `mapstructure:"enabled"`
	Port           int      `mapstructure:"port"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Port    int  `mapstructure:"port"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("dry_run", true)
	v.SetDefault("wallet.chain_id", 137)
	v.SetDefault("wallet.rpc_url", "https://polygon-rpc.com")
	v.SetDefault("api.clob_base_url", "https://clob.polymarket.com")
	v.SetDefault("api.gamma_base_url", "https://gamma-api.polymarket.com")
	v.SetDefault("api.ws_market_url", "wss://ws-subscriptions-clob.polymarket.com/ws/market")
	v.SetDefault("api.binance_base_url", "https://api.binance.com")
	v.SetDefault("oracle.tick_interval", time.Second)
	v.SetDefault("oracle.source_timeout", 10*time.Second)
	v.SetDefault("oracle.stale_after", 30*time.Second)
	v.SetDefault("oracle.history_size", 200)
	v.SetDefault("oracle.min_valid_price", 1000.0)
	v.SetDefault("discovery.poll_interval", 3*time.Second)
	v.SetDefault("discovery.tag_slug", "15M")
	v.SetDefault("discovery.limit", 100)
	v.SetDefault("discovery.max_slug_age", time.Hour)
	v.SetDefault("strategy.annual_volatility", 0.80)
	v.SetDefault("strategy.vol_refresh", time.Minute)
	v.SetDefault("strategy.min_edge", 0.10)
	v.SetDefault("strategy.max_spread", 0.05)
	v.SetDefault("strategy.min_remaining", time.Minute)
	v.SetDefault("strategy.max_remaining", 12*time.Minute)
	v.SetDefault("strategy.cooldown_seconds", 10.0)
	v.SetDefault("strategy.eval_interval", 2*time.Second)
	v.SetDefault("risk.max_single_trade", 100.0)
	v.SetDefault("risk.max_position", 100.0)
	v.SetDefault("risk.daily_loss_limit", 500.0)
	v.SetDefault("risk.max_open_positions", 1)
	v.SetDefault("execution.max_orders_per_second", 50.0)
	v.SetDefault("execution.order_lifetime", 3*time.Second)
	v.SetDefault("settlement.sweep_interval", 5*time.Second)
	v.SetDefault("settlement.late_void_after", 5*time.Minute)
	v.SetDefault("settlement.fill_probability", 0.80)
	v.SetDefault("settlement.initial_balance", 10000.0)
	v.SetDefault("store.data_file", "data/paper_state.json")
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
	v.SetDefault("dashboard.enabled", true)
	v.SetDefault("dashboard.port", 8000)
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.port", 9305)
}

// Load reads config from a YAML file with env var overrides.
// Sensitive fields use env vars: POLY_PRIVATE_KEY, POLY_API_KEY, POLY_API_SECRET, POLY_PASSPHRASE.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetEnvPrefix("POLY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	// A missing file is fine, the defaults describe a runnable paper bot.
	if _, statErr := os.Stat(path); statErr == nil {
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	// Override sensitive fields from env
	if key := os.Getenv("POLY_PRIVATE_KEY"); key != "" {
		cfg.Wallet.PrivateKey = key
	}
	if key := os.Getenv("POLY_API_KEY"); key != "" {
		cfg.API.ApiKey = key
	}
	if secret := os.Getenv("POLY_API_SECRET"); secret != "" {
		cfg.API.Secret = secret
	}
	if pass := os.Getenv("POLY_PASSPHRASE"); pass != "" {
		cfg.API.Passphrase = pass
	}
	if funder := os.Getenv("POLY_FUNDER_ADDRESS"); funder != "" {
		cfg.Wallet.FunderAddress = funder
	}
	switch os.Getenv("POLY_DRY_RUN") {
	case "true", "1":
		cfg.DryRun = true
	case "false", "0":
		cfg.DryRun = false
	}

	return &cfg, nil
}

// Validate checks all required fields and value ranges.
func (c *Config) Validate() error {
	if !c.DryRun {
		if c.Wallet.PrivateKey == "" {
			return fmt.Errorf("wallet.private_key is required in live mode (set POLY_PRIVATE_KEY)")
		}
		if c.Wallet.ChainID == 0 {
			return fmt.Errorf("wallet.chain_id is required (137 for Polygon mainnet)")
		}
	}
	switch c.Wallet.SignatureType {
	case 0, 1, 2:
	default:
		return fmt.Errorf("wallet.signature_type must be one of: 0 (EOA), 1 (POLY_PROXY), 2 (GNOSIS_SAFE)")
	}
	if c.Wallet.SignatureType != 0 && c.Wallet.FunderAddress == "" {
		return fmt.Errorf("wallet.funder_address is required when wallet.signature_type is 1 or 2")
	}
	if c.API.CLOBBaseURL == "" {
		return fmt.Errorf("api.clob_base_url is required")
	}
	if c.API.GammaBaseURL == "" {
		return fmt.Errorf("api.gamma_base_url is required")
	}
	if c.Strategy.MinEdge <= 0 {
		return fmt.Errorf("strategy.min_edge must be > 0")
	}
	if c.Strategy.AnnualVolatility <= 0 {
		return fmt.Errorf("strategy.annual_volatility must be > 0")
	}
	if c.Strategy.MinRemaining >= c.Strategy.MaxRemaining {
		return fmt.Errorf("strategy.min_remaining must be < strategy.max_remaining")
	}
	if c.Risk.MaxSingleTrade <= 0 {
		return fmt.Errorf("risk.max_single_trade must be > 0")
	}
	if c.Risk.MaxPosition <= 0 {
		return fmt.Errorf("risk.max_position must be > 0")
	}
	if c.Risk.DailyLossLimit <= 0 {
		return fmt.Errorf("risk.daily_loss_limit must be > 0")
	}
	if c.Risk.MaxOpenPositions <= 0 {
		return fmt.Errorf("risk.max_open_positions must be > 0")
	}
	if c.Execution.MaxOrdersPerSecond <= 0 {
		return fmt.Errorf("execution.max_orders_per_second must be > 0")
	}
	if c.Settlement.FillProbability < 0 || c.Settlement.FillProbability > 1 {
		return fmt.Errorf("settlement.fill_probability must be in [0, 1]")
	}
	if c.Settlement.InitialBalance <= 0 {
		return fmt.Errorf("settlement.initial_balance must be > 0")
	}
	return nil
}
