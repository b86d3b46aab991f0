package config

import (
	"os"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies CROSSARB_* environment variable overrides, and
// returns the final Config. The returned Config has NOT been validated; the
// caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known CROSSARB_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject secrets at deploy time without touching
// the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Trading ──
	setFloat64(&cfg.Trading.ThresholdSpread, "CROSSARB_TRADING_THRESHOLD_SPREAD")
	setFloat64(&cfg.Trading.MinTradeSizeUSD, "CROSSARB_TRADING_MIN_TRADE_SIZE_USD")
	setFloat64(&cfg.Trading.MaxTradeSizePct, "CROSSARB_TRADING_MAX_TRADE_SIZE_PCT")
	setFloat64(&cfg.Trading.TargetLiquidityDepth, "CROSSARB_TRADING_TARGET_LIQUIDITY_DEPTH")
	setFloat64(&cfg.Trading.SlippageTolerance, "CROSSARB_TRADING_SLIPPAGE_TOLERANCE")
	setBool(&cfg.Trading.AutoExecute, "CROSSARB_TRADING_AUTO_EXECUTE")
	setInt(&cfg.Trading.MaxExecutionsPerCycle, "CROSSARB_TRADING_MAX_EXECUTIONS_PER_CYCLE")

	// ── Fees ──
	setFloat64(&cfg.Fees.KalshiFeePct, "CROSSARB_FEES_KALSHI_FEE_PCT")
	setFloat64(&cfg.Fees.PolymarketFeePct, "CROSSARB_FEES_POLYMARKET_FEE_PCT")
	setFloat64(&cfg.Fees.BlockchainCostUSD, "CROSSARB_FEES_BLOCKCHAIN_COST_USD")

	// ── Capital / risk / breaker ──
	setFloat64(&cfg.Capital.InitialBankroll, "CROSSARB_CAPITAL_INITIAL_BANKROLL")
	setInt(&cfg.Capital.MaxDaysToResolution, "CROSSARB_CAPITAL_MAX_DAYS_TO_RESOLUTION")
	setFloat64(&cfg.Capital.HighReturnThreshold, "CROSSARB_CAPITAL_HIGH_RETURN_THRESHOLD")
	setInt(&cfg.Risk.MaxOpenPositions, "CROSSARB_RISK_MAX_OPEN_POSITIONS")
	setFloat64(&cfg.Risk.MaxExposurePerEvent, "CROSSARB_RISK_MAX_EXPOSURE_PER_EVENT")
	setFloat64(&cfg.Breaker.MaxDailyLossPct, "CROSSARB_BREAKER_MAX_DAILY_LOSS_PCT")
	setFloat64(&cfg.Breaker.MaxDrawdownPct, "CROSSARB_BREAKER_MAX_DRAWDOWN_PCT")
	setInt(&cfg.Breaker.ResetHour, "CROSSARB_BREAKER_RESET_HOUR")

	// ── Polling ──
	setDuration(&cfg.Polling.Interval, "CROSSARB_POLLING_INTERVAL")

	// ── Venues ──
	setStr(&cfg.Venues.Kalshi.BaseURL, "CROSSARB_VENUES_KALSHI_BASE_URL")
	setStr(&cfg.Venues.Polymarket.GammaHost, "CROSSARB_VENUES_POLYMARKET_GAMMA_HOST")
	setStr(&cfg.Venues.Polymarket.ClobHost, "CROSSARB_VENUES_POLYMARKET_CLOB_HOST")

	// ── Store ──
	setStr(&cfg.Store.Driver, "CROSSARB_STORE_DRIVER")
	setStr(&cfg.SQLite.Path, "CROSSARB_SQLITE_PATH")
	setStr(&cfg.Postgres.DSN, "CROSSARB_POSTGRES_DSN")
	setStr(&cfg.Postgres.DSN, "DATABASE_URL") // compatibility alias
	setStr(&cfg.Postgres.Host, "CROSSARB_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "CROSSARB_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "CROSSARB_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "CROSSARB_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "CROSSARB_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "CROSSARB_POSTGRES_SSL_MODE")
	setBool(&cfg.Postgres.RunMigrations, "CROSSARB_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setBool(&cfg.Redis.Enabled, "CROSSARB_REDIS_ENABLED")
	setStr(&cfg.Redis.Addr, "CROSSARB_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "CROSSARB_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "CROSSARB_REDIS_DB")
	setBool(&cfg.Redis.TLSEnabled, "CROSSARB_REDIS_TLS_ENABLED")

	// ── S3 ──
	setBool(&cfg.S3.Enabled, "CROSSARB_S3_ENABLED")
	setStr(&cfg.S3.Endpoint, "CROSSARB_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "CROSSARB_S3_REGION")
	setStr(&cfg.S3.Bucket, "CROSSARB_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "CROSSARB_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "CROSSARB_S3_SECRET_KEY")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "CROSSARB_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "CROSSARB_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "CROSSARB_NOTIFY_DISCORD_WEBHOOK_URL")
	setStr(&cfg.Notify.MinSeverity, "CROSSARB_NOTIFY_MIN_SEVERITY")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "CROSSARB_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "CROSSARB_SERVER_PORT")
	setStr(&cfg.Server.APIKey, "CROSSARB_SERVER_API_KEY")

	// ── Top-level ──
	setStr(&cfg.Mode, "CROSSARB_MODE")
	setStr(&cfg.LogLevel, "CROSSARB_LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}
