package sim

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/vadiminshakov/looper/internal/entity"
	"github.com/vadiminshakov/looper/internal/exchange"
)

func newTestAdapter() *Adapter {
	return New("sim",
		[]exchange.PairInfo{{Symbol: "BTCUSDT", Base: "BTC", Quote: "USDT"}},
		map[string]decimal.Decimal{
			"USDT": decimal.NewFromInt(1000),
			"BTC":  decimal.NewFromInt(1),
		},
		decimal.NewFromFloat(0.001),
		nil)
}

func TestSubmitOrderMovesWallet(t *testing.T) {
	a := newTestAdapter()
	ctx := context.Background()

	res, err := a.SubmitOrder(ctx, exchange.OrderRequest{
		Symbol: "BTCUSDT",
		Side:   entity.SideBuy,
		Price:  decimal.NewFromInt(100),
		Amount: decimal.NewFromInt(2),
	})
	require.NoError(t, err)
	require.True(t, res.Remaining.IsZero(), "sim orders fill in full")
	require.Len(t, res.Fills, 1)

	balances, err := a.Balances(ctx)
	require.NoError(t, err)
	byCoin := make(map[string]decimal.Decimal)
	for _, b := range balances {
		byCoin[b.Coin] = b.Total
	}
	require.True(t, decimal.NewFromInt(800).Equal(byCoin["USDT"]))
	require.True(t, decimal.NewFromInt(3).Equal(byCoin["BTC"]))
}

func TestSubmitOrderRejectsOverdraft(t *testing.T) {
	a := newTestAdapter()

	_, err := a.SubmitOrder(context.Background(), exchange.OrderRequest{
		Symbol: "BTCUSDT",
		Side:   entity.SideBuy,
		Price:  decimal.NewFromInt(100),
		Amount: decimal.NewFromInt(11),
	})
	require.Error(t, err)

	_, err = a.SubmitOrder(context.Background(), exchange.OrderRequest{
		Symbol: "BTCUSDT",
		Side:   entity.SideSell,
		Price:  decimal.NewFromInt(100),
		Amount: decimal.NewFromInt(2),
	})
	require.Error(t, err)
}

func TestTradeHistoryFiltersBySymbolAndWindow(t *testing.T) {
	a := newTestAdapter()
	ctx := context.Background()

	before := time.Now()
	_, err := a.SubmitOrder(ctx, exchange.OrderRequest{
		Symbol: "BTCUSDT",
		Side:   entity.SideSell,
		Price:  decimal.NewFromInt(100),
		Amount: decimal.NewFromInt(1),
	})
	require.NoError(t, err)
	after := time.Now().Add(time.Second)

	fills, err := a.TradeHistory(ctx, "BTCUSDT", before, after)
	require.NoError(t, err)
	require.Len(t, fills, 1)
	require.Equal(t, entity.SideSell, fills[0].Side)

	fills, err = a.TradeHistory(ctx, "ETHUSDT", before, after)
	require.NoError(t, err)
	require.Empty(t, fills)

	fills, err = a.TradeHistory(ctx, "BTCUSDT", after, after.Add(time.Second))
	require.NoError(t, err)
	require.Empty(t, fills)
}

func TestDepthReturnsInstalledSnapshot(t *testing.T) {
	a := newTestAdapter()

	a.SetDepth("BTCUSDT",
		[]entity.Offer{{Price: decimal.NewFromInt(99), Volume: decimal.NewFromInt(1)}},
		[]entity.Offer{
			{Price: decimal.NewFromInt(101), Volume: decimal.NewFromInt(1)},
			{Price: decimal.NewFromInt(102), Volume: decimal.NewFromInt(1)},
		})

	depth, err := a.Depth(context.Background(), "BTCUSDT", 1)
	require.NoError(t, err)
	require.Len(t, depth.Bids, 1)
	require.Len(t, depth.Asks, 1, "limit applies per side")

	depth, err = a.Depth(context.Background(), "UNKNOWN", 10)
	require.NoError(t, err)
	require.Empty(t, depth.Bids)
}
