package sync

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/vadiminshakov/looper/internal/entity"
	"github.com/vadiminshakov/looper/internal/exchange"
	"github.com/vadiminshakov/looper/internal/ledger"
	"github.com/vadiminshakov/looper/pkg/throttle"
)

// fakeAdapter scripts exchange replies for the sync worker.
type fakeAdapter struct {
	mu sync.Mutex

	name      string
	pairs     []exchange.PairInfo
	depth     map[string]*exchange.Depth
	balances  []exchange.AccountBalance
	orders    []exchange.OrderData
	fills     map[string][]exchange.Fill
	transfers []exchange.TransferData

	balancesErr error
}

func newFakeAdapter() *fakeAdapter {
	return &fakeAdapter{
		name: "fake",
		pairs: []exchange.PairInfo{
			{Symbol: "BTCUSDT", Base: "BTC", Quote: "USDT"},
			{Symbol: "ETHUSDT", Base: "ETH", Quote: "USDT"},
		},
		depth: make(map[string]*exchange.Depth),
		fills: make(map[string][]exchange.Fill),
	}
}

func (f *fakeAdapter) Name() string { return f.name }

func (f *fakeAdapter) Pairs(ctx context.Context) ([]exchange.PairInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pairs, nil
}

func (f *fakeAdapter) Depth(ctx context.Context, symbol string, limit int) (*exchange.Depth, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if d, ok := f.depth[symbol]; ok {
		return d, nil
	}
	return &exchange.Depth{}, nil
}

func (f *fakeAdapter) Balances(ctx context.Context) ([]exchange.AccountBalance, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.balancesErr != nil {
		return nil, f.balancesErr
	}
	return f.balances, nil
}

func (f *fakeAdapter) OpenOrders(ctx context.Context) ([]exchange.OrderData, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.orders, nil
}

func (f *fakeAdapter) TradeHistory(ctx context.Context, symbol string, begin, end time.Time) ([]exchange.Fill, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.fills[symbol], nil
}

func (f *fakeAdapter) Transfers(ctx context.Context, begin, end time.Time) ([]exchange.TransferData, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.transfers, nil
}

func (f *fakeAdapter) SubmitOrder(ctx context.Context, req exchange.OrderRequest) (*exchange.OrderResult, error) {
	return nil, errors.New("not supported")
}

func (f *fakeAdapter) CancelOrder(ctx context.Context, symbol, orderID string) error {
	return nil
}

func testConfig() Config {
	return Config{
		TickPeriod:       time.Hour,
		MarketDataPeriod: time.Hour,
		BalancePeriod:    time.Hour,
		TransfersPeriod:  time.Hour,
		PositionsPeriod:  time.Hour,
		DepthLimit:       10,
		Fee:              decimal.NewFromFloat(0.001),
		Fund:             "main",
		Pairs:            []string{"BTC_USDT", "ETH_USDT"},
	}
}

func newTestSyncer(t *testing.T, adapter *fakeAdapter) (*Syncer, *ledger.Ledger) {
	t.Helper()
	lgr := ledger.New(nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go lgr.Run(ctx)

	thr := throttle.New(0, time.Minute, 0)
	return New(adapter, lgr, thr, testConfig(), nil), lgr
}

func TestCycleBuildsPairsAndBooks(t *testing.T) {
	adapter := newFakeAdapter()
	adapter.depth["BTCUSDT"] = &exchange.Depth{
		Bids: []entity.Offer{{Price: decimal.NewFromInt(100), Volume: decimal.NewFromInt(1)}},
		Asks: []entity.Offer{{Price: decimal.NewFromInt(101), Volume: decimal.NewFromInt(1)}},
	}
	s, lgr := newTestSyncer(t, adapter)

	require.NoError(t, s.cycle(context.Background()))

	require.NoError(t, lgr.Do(context.Background(), func(st *ledger.State) {
		require.Len(t, st.PairsOf("fake"), 2)

		p := st.PairBySymbol("fake", "BTCUSDT")
		require.NotNil(t, p)
		best, ok := p.Bids.Best()
		require.True(t, ok)
		require.True(t, decimal.NewFromInt(100).Equal(best.Price))

		// no depth scripted for ETHUSDT: the pair exists with empty books
		eth := st.PairBySymbol("fake", "ETHUSDT")
		require.NotNil(t, eth)
		require.True(t, eth.Bids.Empty())
	}))

	require.Equal(t, StatusOnline, s.Status())
}

func TestCycleMirrorsBalancesIntoFund(t *testing.T) {
	adapter := newFakeAdapter()
	adapter.balances = []exchange.AccountBalance{
		{Coin: "USDT", Total: decimal.NewFromInt(1000), Held: decimal.NewFromInt(50)},
	}
	s, lgr := newTestSyncer(t, adapter)

	require.NoError(t, s.cycle(context.Background()))

	require.NoError(t, lgr.Do(context.Background(), func(st *ledger.State) {
		f := st.Balance(entity.Currency{Symbol: "USDT", Exchange: "fake"}).Fund("main")
		require.True(t, decimal.NewFromInt(1000).Equal(f.Total))
		require.True(t, decimal.NewFromInt(950).Equal(f.Available()))
	}))
}

func TestAccessDeniedDegradesToPublicOnly(t *testing.T) {
	adapter := newFakeAdapter()
	adapter.balancesErr = errors.Wrap(exchange.ErrAccessDenied, "bad key")
	s, _ := newTestSyncer(t, adapter)

	var statuses []Status
	s.OnStatusChange(func(st Status) { statuses = append(statuses, st) })

	require.NoError(t, s.cycle(context.Background()))

	require.True(t, s.PublicOnly())
	require.Equal(t, StatusPublicOnly, s.Status())
	require.Contains(t, statuses, StatusPublicOnly)

	// once degraded, private categories are skipped even after the error clears
	adapter.mu.Lock()
	adapter.balancesErr = nil
	adapter.balances = []exchange.AccountBalance{{Coin: "USDT", Total: decimal.NewFromInt(1)}}
	adapter.mu.Unlock()
	s.RequestBalanceUpdate()
	require.NoError(t, s.cycle(context.Background()))
	require.Equal(t, StatusPublicOnly, s.Status())
}

func TestDirtyFlagForcesRefreshBeforePeriod(t *testing.T) {
	adapter := newFakeAdapter()
	s, lgr := newTestSyncer(t, adapter)

	require.NoError(t, s.cycle(context.Background()))

	adapter.mu.Lock()
	adapter.depth["ETHUSDT"] = &exchange.Depth{
		Asks: []entity.Offer{{Price: decimal.NewFromInt(2000), Volume: decimal.NewFromInt(1)}},
	}
	adapter.mu.Unlock()

	// periods are one hour in this config, so only the flag can trigger this
	require.NoError(t, s.cycle(context.Background()))
	require.NoError(t, lgr.Do(context.Background(), func(st *ledger.State) {
		require.True(t, st.PairBySymbol("fake", "ETHUSDT").Asks.Empty())
	}))

	s.RequestMarketDataUpdate()
	require.NoError(t, s.cycle(context.Background()))
	require.NoError(t, lgr.Do(context.Background(), func(st *ledger.State) {
		require.False(t, st.PairBySymbol("fake", "ETHUSDT").Asks.Empty())
	}))
}

func TestPositionsReconciliation(t *testing.T) {
	adapter := newFakeAdapter()
	s, lgr := newTestSyncer(t, adapter)

	require.NoError(t, s.cycle(context.Background()))

	// seed an order the next snapshot will not list
	created := time.Now().Add(-time.Minute)
	require.NoError(t, lgr.Do(context.Background(), func(st *ledger.State) {
		st.InsertOrder(&entity.Order{
			ID:        "gone",
			Exchange:  "fake",
			Remaining: decimal.NewFromInt(1),
			CreatedAt: created,
		})
	}))

	adapter.mu.Lock()
	adapter.orders = []exchange.OrderData{{
		ID:        "live",
		Symbol:    "BTCUSDT",
		Side:      entity.SideBuy,
		Price:     decimal.NewFromInt(100),
		Amount:    decimal.NewFromInt(2),
		Remaining: decimal.NewFromInt(2),
		CreatedAt: created,
		UpdatedAt: created,
	}}
	adapter.fills["BTCUSDT"] = []exchange.Fill{{
		TradeID: "t1",
		OrderID: "live",
		Symbol:  "BTCUSDT",
		Amount:  decimal.NewFromInt(1),
		Time:    time.Now().Add(-time.Second),
	}}
	adapter.mu.Unlock()

	s.RequestPositionUpdate()
	require.NoError(t, s.cycle(context.Background()))

	require.NoError(t, lgr.Do(context.Background(), func(st *ledger.State) {
		require.Nil(t, st.Order("fake", "gone"))
		require.NotNil(t, st.Order("fake", "live"))
		require.NotNil(t, st.History["fake:live"])
	}))
}

func TestCancelledContextStopsCycle(t *testing.T) {
	adapter := newFakeAdapter()
	s, _ := newTestSyncer(t, adapter)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	require.Error(t, s.cycle(ctx))
}
