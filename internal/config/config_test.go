package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/crossarb/internal/config"
)

func writeTOML(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestDefaults_Validate(t *testing.T) {
	cfg := config.Defaults()
	require.NoError(t, cfg.Validate())

	p := cfg.Params()
	assert.InDelta(t, 0.01, p.Trading.ThresholdSpread, 1e-12)
	assert.InDelta(t, 0.85, p.Matcher.SimilarityThreshold, 1e-12)
	assert.Equal(t, 30, p.Capital.MaxDaysToResolution)
	assert.Equal(t, 2*time.Second, p.FillWait())
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	path := writeTOML(t, `
mode = "scan"

[trading]
threshold_spread = 0.02

[fees]
kalshi_fee_pct = 0.005

[fees.venue_fee_pct]
predictit = 0.1

[execution]
fill_wait = "750ms"
`)
	cfg, err := config.Load(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "scan", cfg.Mode)
	assert.InDelta(t, 0.02, cfg.Trading.ThresholdSpread, 1e-12)
	assert.InDelta(t, 0.005, cfg.Fees.FeePct("kalshi"), 1e-12)
	assert.InDelta(t, 0.02, cfg.Fees.FeePct("polymarket"), 1e-12)
	assert.InDelta(t, 0.1, cfg.Fees.FeePct("predictit"), 1e-12)
	assert.Equal(t, 750*time.Millisecond, cfg.Params().FillWait())
	// Untouched sections keep their defaults.
	assert.Equal(t, 20, cfg.Risk.MaxOpenPositions)
}

func TestLoad_EnvOverride(t *testing.T) {
	path := writeTOML(t, `log_level = "debug"`)
	t.Setenv("CROSSARB_BREAKER_MAX_DAILY_LOSS_PCT", "0.03")
	t.Setenv("CROSSARB_MODE", "scan")

	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.InDelta(t, 0.03, cfg.Breaker.MaxDailyLossPct, 1e-12)
	assert.Equal(t, "scan", cfg.Mode)
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestValidate_CollectsEveryProblem(t *testing.T) {
	cfg := config.Defaults()
	cfg.Mode = "yolo"
	cfg.Breaker.MaxDrawdownPct = 0
	cfg.Store.Driver = "mongo"

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown mode "yolo"`)
	assert.Contains(t, err.Error(), "max_drawdown_pct")
	assert.Contains(t, err.Error(), `unknown driver "mongo"`)
}

func TestFixedCost_BlockchainCostOnPolymarket(t *testing.T) {
	f := config.Defaults().Fees
	assert.InDelta(t, 5.0, f.FixedCostUSD("polymarket"), 1e-12)
	assert.Zero(t, f.FixedCostUSD("kalshi"))
}

func TestLive_ApplyMergesAndValidates(t *testing.T) {
	cfg := config.Defaults()
	live := config.NewLive(cfg.Params())

	before := live.Snapshot()
	next, err := live.Apply([]byte(`{"trading":{"threshold_spread":0.03},"execution":{"fill_wait":"1s"}}`))
	require.NoError(t, err)
	assert.InDelta(t, 0.03, next.Trading.ThresholdSpread, 1e-12)
	assert.Equal(t, time.Second, next.FillWait())
	// Other trading fields survive the merge.
	assert.InDelta(t, 100.0, next.Trading.MinTradeSizeUSD, 1e-12)

	// The earlier snapshot is unaffected.
	assert.InDelta(t, 0.01, before.Trading.ThresholdSpread, 1e-12)

	_, err = live.Apply([]byte(`{"breaker":{"max_daily_loss_pct":2}}`))
	require.Error(t, err)
	assert.InDelta(t, 0.03, live.Snapshot().Trading.ThresholdSpread, 1e-12)
}

func TestLive_ApplyDoesNotShareMaps(t *testing.T) {
	live := config.NewLive(config.Defaults().Params())
	before := live.Snapshot()

	_, err := live.Apply([]byte(`{"risk":{"venue_regulatory":{"kalshi":0.2}}}`))
	require.NoError(t, err)

	_, ok := before.Risk.VenueRegulatory["kalshi"]
	assert.False(t, ok)
	assert.InDelta(t, 0.2, live.Snapshot().Risk.VenueRegulatory["kalshi"], 1e-12)
}

func TestRedactedConfig(t *testing.T) {
	cfg := config.Defaults()
	cfg.Postgres.Password = "hunter2"
	cfg.Notify.TelegramToken = "tok"

	red := config.RedactedConfig(&cfg)
	assert.Equal(t, "***", red.Postgres.Password)
	assert.Equal(t, "***", red.Notify.TelegramToken)
	assert.Equal(t, "hunter2", cfg.Postgres.Password)
	assert.Empty(t, red.S3.SecretKey)
}
