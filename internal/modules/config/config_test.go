package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(dir, "configs"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "configs", "values_test.yaml"), []byte(body), 0o644))
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })
	t.Setenv("CONFIG_FILE", "values_test.yaml")
}

func TestNewConfigDefaults(t *testing.T) {
	writeConfig(t, `
symbols: ["BTC/USD"]
`)
	cfg, err := NewConfig()
	require.NoError(t, err)

	assert.Equal(t, 50, cfg.HistoryLimit)
	assert.Equal(t, 250, cfg.RateLimitMS)
	assert.Equal(t, 3, cfg.MaxRecreateAttempts)
	assert.Equal(t, 30, cfg.RecreateBackoffSecs)
	assert.Equal(t, 2000, cfg.OrderCheckMS)
	assert.Equal(t, 10_000, cfg.BrokerTimeoutMS)
	assert.Equal(t, 15, cfg.MicroTrade.AccountCacheSecs)
	assert.Equal(t, 10.0, cfg.Defaults.MinOrderAmount)
}

func TestSymbolOverrides(t *testing.T) {
	writeConfig(t, `
symbols: ["BTC/USD", "ETH/USD"]
defaults:
  take_profit_pct: 1.0
  stop_loss_pct: 0.5
  min_order_amount: 10
  max_order_amount: 100
  target_balance_pct: 0.1
symbol_overrides:
  ETH/USD:
    take_profit_pct: 2.0
    max_order_amount: 250
`)
	cfg, err := NewConfig()
	require.NoError(t, err)

	tp, sl := cfg.SymbolParams("BTC/USD")
	assert.Equal(t, 1.0, tp)
	assert.Equal(t, 0.5, sl)

	tp, sl = cfg.SymbolParams("ETH/USD")
	assert.Equal(t, 2.0, tp)
	assert.Equal(t, 0.5, sl) // stop stays at default

	assert.Equal(t, 250.0, cfg.MaxOrderAmount("ETH/USD"))
	assert.Equal(t, 100.0, cfg.MaxOrderAmount("BTC/USD"))
}

func TestValidation(t *testing.T) {
	writeConfig(t, `
symbols: []
`)
	_, err := NewConfig()
	require.Error(t, err)
}

func TestSecretsFromEnv(t *testing.T) {
	writeConfig(t, `
symbols: ["BTC/USD"]
`)
	t.Setenv("BROKER_API_KEY", "k-123")
	t.Setenv("BROKER_API_SECRET", "s-456")

	cfg, err := NewConfig()
	require.NoError(t, err)
	assert.Equal(t, "k-123", cfg.Broker.Key)
	assert.Equal(t, "s-456", cfg.Broker.Secret)
}
