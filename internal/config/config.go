// Package config defines the top-level configuration for the arbitrage
// engine and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by CROSSARB_* environment variables.
type Config struct {
	Trading   TradingConfig   `toml:"trading"`
	Fees      FeesConfig      `toml:"fees"`
	Capital   CapitalConfig   `toml:"capital"`
	Risk      RiskConfig      `toml:"risk"`
	Breaker   BreakerConfig   `toml:"breaker"`
	Matcher   MatcherConfig   `toml:"matcher"`
	Execution ExecutionConfig `toml:"execution"`
	Polling   PollingConfig   `toml:"polling"`
	Venues    VenuesConfig    `toml:"venues"`
	Paper     PaperConfig     `toml:"paper"`
	Store     StoreConfig     `toml:"store"`
	Postgres  PostgresConfig  `toml:"postgres"`
	SQLite    SQLiteConfig    `toml:"sqlite"`
	Redis     RedisConfig     `toml:"redis"`
	S3        S3Config        `toml:"s3"`
	Notify    NotifyConfig    `toml:"notify"`
	Server    ServerConfig    `toml:"server"`
	Mode      string          `toml:"mode"`
	LogLevel  string          `toml:"log_level"`
}

// TradingConfig holds detection thresholds and execution switches.
type TradingConfig struct {
	ThresholdSpread       float64 `toml:"threshold_spread" json:"threshold_spread"`
	MinTradeSizeUSD       float64 `toml:"min_trade_size_usd" json:"min_trade_size_usd"`
	MaxTradeSizePct       float64 `toml:"max_trade_size_pct" json:"max_trade_size_pct"`
	TargetLiquidityDepth  float64 `toml:"target_liquidity_depth" json:"target_liquidity_depth"`
	SlippageTolerance     float64 `toml:"slippage_tolerance" json:"slippage_tolerance"`
	SafetyBufferPct       float64 `toml:"safety_buffer_pct" json:"safety_buffer_pct"`
	WalkBook              bool    `toml:"walk_book" json:"walk_book"`
	AutoExecute           bool    `toml:"auto_execute" json:"auto_execute"`
	MaxExecutionsPerCycle int     `toml:"max_executions_per_cycle" json:"max_executions_per_cycle"`
}

// FeesConfig holds per-venue trading costs. The named Kalshi/Polymarket
// fields are shorthands; VenueFeePct and VenueFixedCostUSD generalize to any
// venue and take precedence when set.
type FeesConfig struct {
	KalshiFeePct      float64            `toml:"kalshi_fee_pct" json:"kalshi_fee_pct"`
	PolymarketFeePct  float64            `toml:"polymarket_fee_pct" json:"polymarket_fee_pct"`
	BlockchainCostUSD float64            `toml:"blockchain_cost_usd" json:"blockchain_cost_usd"`
	VenueFeePct       map[string]float64 `toml:"venue_fee_pct" json:"venue_fee_pct"`
	VenueFixedCostUSD map[string]float64 `toml:"venue_fixed_cost_usd" json:"venue_fixed_cost_usd"`
}

// FeePct returns the percentage fee charged by venue on notional.
func (f FeesConfig) FeePct(venue string) float64 {
	if v, ok := f.VenueFeePct[venue]; ok {
		return v
	}
	switch venue {
	case "kalshi":
		return f.KalshiFeePct
	case "polymarket":
		return f.PolymarketFeePct
	}
	return 0
}

// FixedCostUSD returns the flat per-trade cost on venue. Polymarket carries
// the on-chain settlement cost by default.
func (f FeesConfig) FixedCostUSD(venue string) float64 {
	if v, ok := f.VenueFixedCostUSD[venue]; ok {
		return v
	}
	if venue == "polymarket" {
		return f.BlockchainCostUSD
	}
	return 0
}

// CapitalConfig holds bankroll and capital-velocity parameters.
type CapitalConfig struct {
	InitialBankroll     float64 `toml:"initial_bankroll" json:"initial_bankroll"`
	ReservePct          float64 `toml:"reserve_pct" json:"reserve_pct"`
	MaxTotalExposurePct float64 `toml:"max_total_exposure_pct" json:"max_total_exposure_pct"`
	MaxDepthFraction    float64 `toml:"max_depth_fraction" json:"max_depth_fraction"`
	MaxDaysToResolution int     `toml:"max_days_to_resolution" json:"max_days_to_resolution"`
	HighReturnThreshold float64 `toml:"high_return_threshold" json:"high_return_threshold"`
}

// RiskWeights weights the five risk factors in the composite score.
type RiskWeights struct {
	Definition float64 `toml:"definition" json:"definition"`
	Liquidity  float64 `toml:"liquidity" json:"liquidity"`
	Edge       float64 `toml:"edge" json:"edge"`
	Timing     float64 `toml:"timing" json:"timing"`
	Regulatory float64 `toml:"regulatory" json:"regulatory"`
}

// Sum returns the total weight.
func (w RiskWeights) Sum() float64 {
	return w.Definition + w.Liquidity + w.Edge + w.Timing + w.Regulatory
}

// RiskConfig holds position limits and risk scoring weights.
type RiskConfig struct {
	MaxOpenPositions    int                `toml:"max_open_positions" json:"max_open_positions"`
	MaxExposurePerEvent float64            `toml:"max_exposure_per_event" json:"max_exposure_per_event"`
	Weights             RiskWeights        `toml:"weights" json:"weights"`
	VenueRegulatory     map[string]float64 `toml:"venue_regulatory" json:"venue_regulatory"`
}

// BreakerConfig holds circuit breaker limits.
type BreakerConfig struct {
	MaxDailyLossPct float64 `toml:"max_daily_loss_pct" json:"max_daily_loss_pct"`
	MaxDrawdownPct  float64 `toml:"max_drawdown_pct" json:"max_drawdown_pct"`
	ResetHour       int     `toml:"reset_hour" json:"reset_hour"`
}

// MatcherConfig holds cross-venue event matching parameters.
type MatcherConfig struct {
	SimilarityThreshold float64 `toml:"similarity_threshold" json:"similarity_threshold"`
	DateToleranceDays   int     `toml:"date_tolerance_days" json:"date_tolerance_days"`
}

// ExecutionConfig holds order lifecycle timeouts.
type ExecutionConfig struct {
	FillWait      duration `toml:"fill_wait" json:"fill_wait"`
	StatusTimeout duration `toml:"status_timeout" json:"status_timeout"`
	OrderTimeout  duration `toml:"order_timeout" json:"order_timeout"`
	UnwindTimeout duration `toml:"unwind_timeout" json:"unwind_timeout"`
	DedupCooldown duration `toml:"dedup_cooldown" json:"dedup_cooldown"`
}

// PollingConfig holds loop and scheduled job intervals.
type PollingConfig struct {
	Interval         duration `toml:"interval"`
	BalanceInterval  duration `toml:"balance_interval"`
	SnapshotInterval duration `toml:"snapshot_interval"`
	ArchiveEnabled   bool     `toml:"archive_enabled"`
}

// VenuesConfig holds the public market-data endpoints.
type VenuesConfig struct {
	Kalshi     KalshiConfig     `toml:"kalshi"`
	Polymarket PolymarketConfig `toml:"polymarket"`
}

// KalshiConfig holds Kalshi market-data parameters.
type KalshiConfig struct {
	BaseURL        string  `toml:"base_url"`
	MarketLimit    int     `toml:"market_limit"`
	RequestsPerSec float64 `toml:"requests_per_sec"`
	FetchBooks     bool    `toml:"fetch_books"`
}

// PolymarketConfig holds Polymarket Gamma API parameters.
type PolymarketConfig struct {
	GammaHost      string  `toml:"gamma_host"`
	ClobHost       string  `toml:"clob_host"`
	MarketLimit    int     `toml:"market_limit"`
	RequestsPerSec float64 `toml:"requests_per_sec"`
	FetchBooks     bool    `toml:"fetch_books"`
}

// PaperConfig holds dry-run venue simulation parameters.
type PaperConfig struct {
	FillProbability float64 `toml:"fill_probability"`
	Seed            int64   `toml:"seed"`
}

// StoreConfig selects the persistence backend.
type StoreConfig struct {
	Driver string `toml:"driver"` // "postgres" or "sqlite"
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// SQLiteConfig holds the embedded database path.
type SQLiteConfig struct {
	Path string `toml:"path"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Enabled      bool   `toml:"enabled"`
	Addr         string `toml:"addr"`
	Password     string `toml:"password"`
	DB           int    `toml:"db"`
	PoolSize     int    `toml:"pool_size"`
	MaxRetries   int    `toml:"max_retries"`
	TLSEnabled   bool   `toml:"tls_enabled"`
	StreamMaxLen int    `toml:"stream_max_len"`
}

// S3Config holds S3-compatible object storage parameters.
type S3Config struct {
	Enabled        bool   `toml:"enabled"`
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// duration is a wrapper around time.Duration that supports TOML string decoding
// (e.g. "5m", "30s").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "5m" or "30s".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// ServerConfig holds the admin HTTP server parameters.
type ServerConfig struct {
	Enabled bool   `toml:"enabled"`
	Port    int    `toml:"port"`
	APIKey  string `toml:"api_key"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string `toml:"telegram_token"`
	TelegramChatID    string `toml:"telegram_chat_id"`
	DiscordWebhookURL string `toml:"discord_webhook_url"`
	Console           bool   `toml:"console"`
	MinSeverity       string `toml:"min_severity"`
}

// Defaults returns a Config populated with reasonable default values.
func Defaults() Config {
	return Config{
		Trading: TradingConfig{
			ThresholdSpread:       0.01,
			MinTradeSizeUSD:       100,
			MaxTradeSizePct:       0.05,
			TargetLiquidityDepth:  5000,
			SlippageTolerance:     0.002,
			SafetyBufferPct:       0.0,
			WalkBook:              false,
			AutoExecute:           false,
			MaxExecutionsPerCycle: 5,
		},
		Fees: FeesConfig{
			KalshiFeePct:      0.007,
			PolymarketFeePct:  0.02,
			BlockchainCostUSD: 5,
		},
		Capital: CapitalConfig{
			InitialBankroll:     10000,
			ReservePct:          0.1,
			MaxTotalExposurePct: 0.9,
			MaxDepthFraction:    0.1,
			MaxDaysToResolution: 30,
			HighReturnThreshold: 0.05,
		},
		Risk: RiskConfig{
			MaxOpenPositions:    20,
			MaxExposurePerEvent: 0.10,
			Weights: RiskWeights{
				Definition: 0.35,
				Liquidity:  0.20,
				Edge:       0.20,
				Timing:     0.15,
				Regulatory: 0.10,
			},
			VenueRegulatory: map[string]float64{
				"polymarket": 0.1,
			},
		},
		Breaker: BreakerConfig{
			MaxDailyLossPct: 0.05,
			MaxDrawdownPct:  0.15,
			ResetHour:       0,
		},
		Matcher: MatcherConfig{
			SimilarityThreshold: 0.85,
			DateToleranceDays:   1,
		},
		Execution: ExecutionConfig{
			FillWait:      duration{2 * time.Second},
			StatusTimeout: duration{5 * time.Second},
			OrderTimeout:  duration{10 * time.Second},
			UnwindTimeout: duration{10 * time.Second},
			DedupCooldown: duration{10 * time.Minute},
		},
		Polling: PollingConfig{
			Interval:         duration{30 * time.Second},
			BalanceInterval:  duration{5 * time.Minute},
			SnapshotInterval: duration{15 * time.Minute},
			ArchiveEnabled:   false,
		},
		Venues: VenuesConfig{
			Kalshi: KalshiConfig{
				BaseURL:        "https://api.elections.kalshi.com/trade-api/v2",
				MarketLimit:    200,
				RequestsPerSec: 5,
			},
			Polymarket: PolymarketConfig{
				GammaHost:      "https://gamma-api.polymarket.com",
				ClobHost:       "https://clob.polymarket.com",
				MarketLimit:    200,
				RequestsPerSec: 5,
			},
		},
		Paper: PaperConfig{
			FillProbability: 1.0,
		},
		Store: StoreConfig{
			Driver: "sqlite",
		},
		Postgres: PostgresConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "crossarb",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		SQLite: SQLiteConfig{
			Path: "crossarb.db",
		},
		Redis: RedisConfig{
			Enabled:      false,
			Addr:         "localhost:6379",
			PoolSize:     10,
			MaxRetries:   3,
			StreamMaxLen: 10000,
		},
		S3: S3Config{
			Enabled:        false,
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "crossarb-archive",
			ForcePathStyle: true,
		},
		Notify: NotifyConfig{
			Console:     true,
			MinSeverity: "info",
		},
		Server: ServerConfig{
			Enabled: true,
			Port:    8080,
		},
		Mode:     "paper",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"paper": true,
	"scan":  true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks Config for obviously invalid or missing values and returns a
// combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: paper, scan)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	errs = append(errs, c.Params().Validate()...)

	if c.Capital.InitialBankroll <= 0 {
		errs = append(errs, "capital: initial_bankroll must be > 0")
	}
	if c.Capital.ReservePct < 0 || c.Capital.ReservePct >= 1 {
		errs = append(errs, "capital: reserve_pct must be in [0,1)")
	}
	if c.Polling.Interval.Duration <= 0 {
		errs = append(errs, "polling: interval must be > 0")
	}
	if c.Paper.FillProbability < 0 || c.Paper.FillProbability > 1 {
		errs = append(errs, "paper: fill_probability must be in [0,1]")
	}

	switch c.Store.Driver {
	case "postgres":
		if strings.TrimSpace(c.Postgres.DSN) == "" {
			if c.Postgres.Host == "" {
				errs = append(errs, "postgres: host must not be empty (or set postgres.dsn)")
			}
			if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
				errs = append(errs, fmt.Sprintf("postgres: port must be 1-65535, got %d", c.Postgres.Port))
			}
		}
		if c.Postgres.PoolMaxConns < 1 {
			errs = append(errs, "postgres: pool_max_conns must be >= 1")
		}
		if c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
			errs = append(errs, "postgres: pool_min_conns must not exceed pool_max_conns")
		}
	case "sqlite":
		if c.SQLite.Path == "" {
			errs = append(errs, "sqlite: path must not be empty")
		}
	default:
		errs = append(errs, fmt.Sprintf("store: unknown driver %q (valid: postgres, sqlite)", c.Store.Driver))
	}

	if c.Redis.Enabled && c.Redis.Addr == "" {
		errs = append(errs, "redis: addr must not be empty")
	}
	if c.S3.Enabled {
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty")
		}
		if c.S3.Region == "" {
			errs = append(errs, "s3: region must not be empty")
		}
	}
	if c.Server.Enabled && (c.Server.Port <= 0 || c.Server.Port > 65535) {
		errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
