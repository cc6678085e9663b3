package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestGetYamlFull(t *testing.T) {
	path := writeConfig(t, `
fund: trading
max_loop_length: 5
search_interval: 30s
start_amount: "250.5"
live_trading: true
wal_dir: /tmp/looper-wal
metrics_addr: ":9090"
exchanges:
  - name: binance
    pairs: [BTC_USDT, ETH_USDT, ETH_BTC]
    fee: "0.001"
    depth_limit: 20
    balance_period: 1m
    rate_limit:
      min_interval: 50ms
      window: 1m
      budget: 6000
  - name: sim
    pairs: [BTC_USDT]
    fee: "0"
    public_only: true
`)

	cfg, err := getYaml(path)
	require.NoError(t, err)

	require.Equal(t, "trading", cfg.Fund)
	require.Equal(t, 5, cfg.MaxLoopLength)
	require.Equal(t, 30*time.Second, cfg.SearchInterval)
	require.True(t, decimal.NewFromFloat(250.5).Equal(cfg.StartAmount))
	require.True(t, cfg.LiveTrading)
	require.Len(t, cfg.Exchanges, 2)

	binance := cfg.Exchanges[0]
	require.Equal(t, "binance", binance.Name)
	require.Len(t, binance.Pairs, 3)
	require.True(t, decimal.NewFromFloat(0.001).Equal(binance.Fee))
	require.Equal(t, 20, binance.DepthLimit)
	require.Equal(t, time.Minute, binance.BalancePeriod)
	require.Equal(t, 50*time.Millisecond, binance.RateLimit.MinInterval)
	require.Equal(t, 6000, binance.RateLimit.Budget)

	sim := cfg.Exchanges[1]
	require.True(t, sim.PublicOnly)
	// omitted knobs fall back to defaults
	require.Equal(t, 50, sim.DepthLimit)
	require.Equal(t, time.Second, sim.TickPeriod)
	require.Equal(t, 1200, sim.RateLimit.Budget)
}

func TestGetYamlDefaults(t *testing.T) {
	path := writeConfig(t, `
exchanges:
  - name: sim
    pairs: [BTC_USDT]
    fee: "0"
`)

	cfg, err := getYaml(path)
	require.NoError(t, err)
	require.Equal(t, "main", cfg.Fund)
	require.Equal(t, 4, cfg.MaxLoopLength)
	require.Equal(t, 10*time.Second, cfg.SearchInterval)
	require.False(t, cfg.LiveTrading)
	require.True(t, decimal.NewFromInt(100).Equal(cfg.StartAmount))
}

func TestGetYamlValidation(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{
			name:    "no exchanges",
			content: "fund: main\n",
		},
		{
			name: "unknown exchange",
			content: `
exchanges:
  - name: kraken
    pairs: [BTC_USDT]
    fee: "0"
`,
		},
		{
			name: "duplicate exchange",
			content: `
exchanges:
  - name: sim
    pairs: [BTC_USDT]
    fee: "0"
  - name: sim
    pairs: [ETH_USDT]
    fee: "0"
`,
		},
		{
			name: "bad pair format",
			content: `
exchanges:
  - name: sim
    pairs: [BTCUSDT]
    fee: "0"
`,
		},
		{
			name: "fee out of range",
			content: `
exchanges:
  - name: sim
    pairs: [BTC_USDT]
    fee: "1.5"
`,
		},
		{
			name: "negative fee",
			content: `
exchanges:
  - name: sim
    pairs: [BTC_USDT]
    fee: "-0.1"
`,
		},
		{
			name: "loop length too small",
			content: `
max_loop_length: 1
exchanges:
  - name: sim
    pairs: [BTC_USDT]
    fee: "0"
`,
		},
		{
			name: "bad start amount",
			content: `
start_amount: "lots"
exchanges:
  - name: sim
    pairs: [BTC_USDT]
    fee: "0"
`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := getYaml(writeConfig(t, tt.content))
			require.Error(t, err)
		})
	}
}
