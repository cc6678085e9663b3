package config

import (
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

var knownExchanges = map[string]struct{}{
	"binance": {},
	"bybit":   {},
	"sim":     {},
}

// Config is the validated application configuration.
type Config struct {
	Fund           string
	MaxLoopLength  int
	SearchInterval time.Duration
	StartAmount    decimal.Decimal
	LiveTrading    bool
	WalDir         string
	MetricsAddr    string
	Exchanges      []ExchangeConfig
}

// ExchangeConfig configures one connected exchange.
type ExchangeConfig struct {
	Name             string
	Pairs            []string
	Fee              decimal.Decimal
	DepthLimit       int
	PublicOnly       bool
	TickPeriod       time.Duration
	MarketDataPeriod time.Duration
	BalancePeriod    time.Duration
	TransfersPeriod  time.Duration
	PositionsPeriod  time.Duration
	RateLimit        RateLimitConfig
}

// RateLimitConfig bounds the request rate against one exchange: a minimum
// spacing between calls plus a weight budget over a rolling window.
type RateLimitConfig struct {
	MinInterval time.Duration
	Window      time.Duration
	Budget      int
}

type configTmp struct {
	Fund           string         `yaml:"fund"`
	MaxLoopLength  int            `yaml:"max_loop_length,omitempty"`
	SearchInterval time.Duration  `yaml:"search_interval,omitempty"`
	StartAmount    string         `yaml:"start_amount,omitempty"`
	LiveTrading    bool           `yaml:"live_trading,omitempty"`
	WalDir         string         `yaml:"wal_dir,omitempty"`
	MetricsAddr    string         `yaml:"metrics_addr,omitempty"`
	Exchanges      []exchangeTmp  `yaml:"exchanges"`
}

type exchangeTmp struct {
	Name             string        `yaml:"name"`
	Pairs            []string      `yaml:"pairs"`
	Fee              string        `yaml:"fee"`
	DepthLimit       int           `yaml:"depth_limit,omitempty"`
	PublicOnly       bool          `yaml:"public_only,omitempty"`
	TickPeriod       time.Duration `yaml:"tick_period,omitempty"`
	MarketDataPeriod time.Duration `yaml:"market_data_period,omitempty"`
	BalancePeriod    time.Duration `yaml:"balance_period,omitempty"`
	TransfersPeriod  time.Duration `yaml:"transfers_period,omitempty"`
	PositionsPeriod  time.Duration `yaml:"positions_period,omitempty"`
	RateLimit        rateLimitTmp  `yaml:"rate_limit,omitempty"`
}

type rateLimitTmp struct {
	MinInterval time.Duration `yaml:"min_interval,omitempty"`
	Window      time.Duration `yaml:"window,omitempty"`
	Budget      int           `yaml:"budget,omitempty"`
}

func Get() (*Config, error) {
	path := flag.String("config", "config.yaml", "path to yaml config")
	flag.Parse()
	return getYaml(*path)
}

func getYaml(path string) (*Config, error) {
	var tmp configTmp

	f, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(f, &tmp); err != nil {
		return nil, err
	}

	cfg := &Config{
		Fund:           tmp.Fund,
		MaxLoopLength:  tmp.MaxLoopLength,
		SearchInterval: tmp.SearchInterval,
		LiveTrading:    tmp.LiveTrading,
		WalDir:         tmp.WalDir,
		MetricsAddr:    tmp.MetricsAddr,
	}
	if cfg.Fund == "" {
		cfg.Fund = "main"
	}
	if cfg.MaxLoopLength == 0 {
		cfg.MaxLoopLength = 4
	}
	if cfg.MaxLoopLength < 2 {
		return nil, fmt.Errorf("incorrect 'max_loop_length' param in yaml config: %d, a loop needs at least 2 pairs", cfg.MaxLoopLength)
	}
	if cfg.SearchInterval == 0 {
		cfg.SearchInterval = 10 * time.Second
	}
	if cfg.WalDir == "" {
		cfg.WalDir = "./wal"
	}
	if tmp.StartAmount == "" {
		cfg.StartAmount = decimal.NewFromInt(100)
	} else {
		cfg.StartAmount, err = decimal.NewFromString(tmp.StartAmount)
		if err != nil {
			return nil, fmt.Errorf("incorrect 'start_amount' param in yaml config (correct format is 100.5), error: %w", err)
		}
		if !cfg.StartAmount.IsPositive() {
			return nil, fmt.Errorf("incorrect 'start_amount' param in yaml config: %s, must be positive", tmp.StartAmount)
		}
	}

	if len(tmp.Exchanges) == 0 {
		return nil, fmt.Errorf("no exchanges configured")
	}
	seen := make(map[string]struct{}, len(tmp.Exchanges))
	for _, e := range tmp.Exchanges {
		ex, err := parseExchange(e)
		if err != nil {
			return nil, err
		}
		if _, dup := seen[ex.Name]; dup {
			return nil, fmt.Errorf("exchange %q configured twice", ex.Name)
		}
		seen[ex.Name] = struct{}{}
		cfg.Exchanges = append(cfg.Exchanges, ex)
	}

	return cfg, nil
}

func parseExchange(e exchangeTmp) (ExchangeConfig, error) {
	if _, ok := knownExchanges[e.Name]; !ok {
		return ExchangeConfig{}, fmt.Errorf("unknown exchange %q in yaml config", e.Name)
	}
	if len(e.Pairs) == 0 {
		return ExchangeConfig{}, fmt.Errorf("exchange %s has no pairs", e.Name)
	}
	for _, p := range e.Pairs {
		if parts := strings.Split(p, "_"); len(parts) != 2 || parts[0] == "" || parts[1] == "" {
			return ExchangeConfig{}, fmt.Errorf("incorrect pair %q for exchange %s (correct format is BTC_USDT)", p, e.Name)
		}
	}

	fee, err := decimal.NewFromString(e.Fee)
	if err != nil {
		return ExchangeConfig{}, fmt.Errorf("incorrect 'fee' param for exchange %s (correct format is 0.001), error: %w", e.Name, err)
	}
	if fee.IsNegative() || fee.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return ExchangeConfig{}, fmt.Errorf("incorrect 'fee' param for exchange %s: %s, must be in [0, 1)", e.Name, e.Fee)
	}

	cfg := ExchangeConfig{
		Name:             e.Name,
		Pairs:            e.Pairs,
		Fee:              fee,
		DepthLimit:       e.DepthLimit,
		PublicOnly:       e.PublicOnly,
		TickPeriod:       e.TickPeriod,
		MarketDataPeriod: e.MarketDataPeriod,
		BalancePeriod:    e.BalancePeriod,
		TransfersPeriod:  e.TransfersPeriod,
		PositionsPeriod:  e.PositionsPeriod,
		RateLimit: RateLimitConfig{
			MinInterval: e.RateLimit.MinInterval,
			Window:      e.RateLimit.Window,
			Budget:      e.RateLimit.Budget,
		},
	}
	if cfg.DepthLimit == 0 {
		cfg.DepthLimit = 50
	}
	if cfg.TickPeriod == 0 {
		cfg.TickPeriod = time.Second
	}
	if cfg.MarketDataPeriod == 0 {
		cfg.MarketDataPeriod = 5 * time.Second
	}
	if cfg.BalancePeriod == 0 {
		cfg.BalancePeriod = 30 * time.Second
	}
	if cfg.TransfersPeriod == 0 {
		cfg.TransfersPeriod = 5 * time.Minute
	}
	if cfg.PositionsPeriod == 0 {
		cfg.PositionsPeriod = 15 * time.Second
	}
	if cfg.RateLimit.MinInterval == 0 {
		cfg.RateLimit.MinInterval = 100 * time.Millisecond
	}
	if cfg.RateLimit.Window == 0 {
		cfg.RateLimit.Window = time.Minute
	}
	if cfg.RateLimit.Budget <= 0 {
		cfg.RateLimit.Budget = 1200
	}

	return cfg, nil
}
