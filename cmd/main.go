// Command looper mirrors balances, orders and order books from several
// exchanges into one in-memory ledger and continuously searches the mirrored
// pair graph for profitable arbitrage loops.
//
// Usage:
//
//	looper --config config.yaml
//
// Required environment variables:
//
//	For Binance: BINANCE_API_KEY, BINANCE_API_SECRET
//	For Bybit: BYBIT_API_KEY, BYBIT_API_SECRET
package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/vadiminshakov/looper/config"
	"github.com/vadiminshakov/looper/internal/exchange"
	"github.com/vadiminshakov/looper/internal/exchange/binance"
	"github.com/vadiminshakov/looper/internal/exchange/bybit"
	"github.com/vadiminshakov/looper/internal/exchange/sim"
	"github.com/vadiminshakov/looper/internal/ledger"
	"github.com/vadiminshakov/looper/internal/services/arbitrage"
	"github.com/vadiminshakov/looper/internal/services/executor"
	syncsvc "github.com/vadiminshakov/looper/internal/services/sync"
	"github.com/vadiminshakov/looper/internal/storage/trades"
	"github.com/vadiminshakov/looper/pkg/throttle"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Get()
	if err != nil {
		log.Fatal(err)
	}

	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatal(err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	fills, err := trades.NewWALStore(cfg.WalDir)
	if err != nil {
		logger.Fatal("failed to open trade store", zap.Error(err))
	}
	defer fills.Close()

	lgr := ledger.New(fills, logger)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		lgr.Run(ctx)
	}()

	exec := executor.New(lgr, logger)

	for _, ec := range cfg.Exchanges {
		adapter, err := buildAdapter(ec, cfg, logger)
		if err != nil {
			logger.Fatal("failed to build exchange adapter", zap.String("exchange", ec.Name), zap.Error(err))
		}

		thr := throttle.New(ec.RateLimit.MinInterval, ec.RateLimit.Window, ec.RateLimit.Budget)
		syncer := syncsvc.New(adapter, lgr, thr, syncsvc.Config{
			TickPeriod:       ec.TickPeriod,
			MarketDataPeriod: ec.MarketDataPeriod,
			BalancePeriod:    ec.BalancePeriod,
			TransfersPeriod:  ec.TransfersPeriod,
			PositionsPeriod:  ec.PositionsPeriod,
			DepthLimit:       ec.DepthLimit,
			PublicOnly:       ec.PublicOnly,
			Fee:              ec.Fee,
			Fund:             cfg.Fund,
			Pairs:            ec.Pairs,
		}, logger)

		exec.Register(adapter, syncer, thr)
		syncer.Enable()

		wg.Add(1)
		go func() {
			defer wg.Done()
			syncer.Run(ctx)
		}()
	}

	search := arbitrage.NewService(lgr, arbitrage.Config{
		MaxLoopLength: cfg.MaxLoopLength,
		Fund:          cfg.Fund,
		Interval:      cfg.SearchInterval,
	}, logger)
	search.OnOpportunity(func(op arbitrage.Opportunity) {
		if !cfg.LiveTrading {
			return
		}
		executeLoop(ctx, exec, cfg.Fund, op, logger)
	})

	wg.Add(1)
	go func() {
		defer wg.Done()
		search.Run(ctx)
	}()

	if cfg.MetricsAddr != "" {
		go serveMetrics(ctx, cfg.MetricsAddr, logger)
	}

	<-ctx.Done()
	logger.Info("shutting down")
	wg.Wait()
}

func buildAdapter(ec config.ExchangeConfig, cfg *config.Config, logger *zap.Logger) (exchange.Adapter, error) {
	switch ec.Name {
	case "binance":
		apiKey, apiSecret, err := creds("BINANCE")
		if err != nil {
			return nil, err
		}
		return binance.New(apiKey, apiSecret), nil
	case "bybit":
		apiKey, apiSecret, err := creds("BYBIT")
		if err != nil {
			return nil, err
		}
		return bybit.New(apiKey, apiSecret), nil
	default:
		return sim.New(ec.Name, simPairs(ec.Pairs), simBalances(ec.Pairs, cfg.StartAmount), ec.Fee, logger), nil
	}
}

func creds(prefix string) (string, string, error) {
	apiKey := os.Getenv(prefix + "_API_KEY")
	apiSecret := os.Getenv(prefix + "_API_SECRET")
	if apiKey == "" || apiSecret == "" {
		return "", "", errors.Errorf("%s_API_KEY and %s_API_SECRET environment variables must be set", prefix, prefix)
	}
	return apiKey, apiSecret, nil
}

func simPairs(pairs []string) []exchange.PairInfo {
	out := make([]exchange.PairInfo, 0, len(pairs))
	for _, p := range pairs {
		parts := strings.SplitN(p, "_", 2)
		out = append(out, exchange.PairInfo{
			Symbol: parts[0] + parts[1],
			Base:   parts[0],
			Quote:  parts[1],
		})
	}
	return out
}

func simBalances(pairs []string, amount decimal.Decimal) map[string]decimal.Decimal {
	out := make(map[string]decimal.Decimal)
	for _, p := range pairs {
		for _, coin := range strings.SplitN(p, "_", 2) {
			out[coin] = amount
		}
	}
	return out
}

// executeLoop fires the first leg of a profitable loop at the terms the
// profitability simulation saw. Later legs follow once the fill shows up
// through the position sync; the hold keeps the committed capital out of
// concurrent passes meanwhile.
func executeLoop(ctx context.Context, exec *executor.Executor, fund string, op arbitrage.Opportunity, logger *zap.Logger) {
	first := op.Loop.Pairs[0]
	id, err := exec.CreateOrder(ctx, executor.Request{
		Exchange: first.Exchange,
		Fund:     fund,
		Base:     first.Base.Symbol,
		Quote:    first.Quote.Symbol,
		Side:     op.FirstLegSide,
		Price:    op.FirstLegPrice,
		Amount:   op.FirstLegAmount,
	})
	if err != nil {
		logger.Warn("failed to execute loop leg", zap.Error(err))
		return
	}
	logger.Info("loop leg submitted", zap.String("order_id", id), zap.String("loop", op.Loop.String()))
}

func serveMetrics(ctx context.Context, addr string, logger *zap.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info("metrics listener started", zap.String("addr", addr))
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("metrics listener failed", zap.Error(err))
	}
}
