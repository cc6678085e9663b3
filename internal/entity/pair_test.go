package entity

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func offers(prices ...float64) []Offer {
	out := make([]Offer, 0, len(prices))
	for _, p := range prices {
		out = append(out, Offer{Price: decimal.NewFromFloat(p), Volume: decimal.NewFromInt(1)})
	}
	return out
}

func TestOrderBookReplaceValidatesOrdering(t *testing.T) {
	tests := []struct {
		name      string
		prices    []float64
		ascending bool
		wantErr   bool
	}{
		{name: "asks ascending ok", prices: []float64{100, 101, 102}, ascending: true},
		{name: "asks descending rejected", prices: []float64{102, 101}, ascending: true, wantErr: true},
		{name: "asks duplicate level rejected", prices: []float64{100, 100}, ascending: true, wantErr: true},
		{name: "bids descending ok", prices: []float64{102, 101, 100}, ascending: false},
		{name: "bids ascending rejected", prices: []float64{100, 101}, ascending: false, wantErr: true},
		{name: "empty ok", prices: nil, ascending: true},
		{name: "single level ok", prices: []float64{100}, ascending: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var b OrderBook
			err := b.Replace(offers(tt.prices...), tt.ascending)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Len(t, b.Offers(), len(tt.prices))
		})
	}
}

func TestReplaceBooksIsAtomic(t *testing.T) {
	base := NewCoin("BTC", "binance")
	quote := NewCoin("USDT", "binance")
	p := NewTradePair(base, quote, "binance", "BTCUSDT", decimal.Zero)

	require.NoError(t, p.ReplaceBooks(offers(101, 100), offers(102, 103), time.Now()))
	best, ok := p.Bids.Best()
	require.True(t, ok)
	require.True(t, decimal.NewFromInt(101).Equal(best.Price))

	// bad asks must leave both sides as they were
	err := p.ReplaceBooks(offers(99, 98), offers(103, 102), time.Now())
	require.Error(t, err)
	best, ok = p.Bids.Best()
	require.True(t, ok)
	require.True(t, decimal.NewFromInt(101).Equal(best.Price))
}

func TestOrderBookConsumeSpillsIntoDeeperLevels(t *testing.T) {
	var b OrderBook
	require.NoError(t, b.Replace([]Offer{
		{Price: decimal.NewFromInt(100), Volume: decimal.NewFromInt(2)},
		{Price: decimal.NewFromInt(101), Volume: decimal.NewFromInt(3)},
		{Price: decimal.NewFromInt(102), Volume: decimal.NewFromInt(5)},
	}, true), "setup")

	b.Consume(decimal.NewFromInt(4))

	rest := b.Offers()
	require.Len(t, rest, 2)
	require.True(t, decimal.NewFromInt(101).Equal(rest[0].Price))
	require.True(t, decimal.NewFromInt(1).Equal(rest[0].Volume))
	require.True(t, decimal.NewFromInt(5).Equal(rest[1].Volume))

	// consuming more than the whole book empties it
	b.Consume(decimal.NewFromInt(100))
	require.True(t, b.Empty())
}

func TestPairRegistersOnBothCoins(t *testing.T) {
	base := NewCoin("ETH", "bybit")
	quote := NewCoin("USDT", "bybit")
	p := NewTradePair(base, quote, "bybit", "ETHUSDT", decimal.Zero)

	require.Equal(t, []*TradePair{p}, base.Pairs())
	require.Equal(t, []*TradePair{p}, quote.Pairs())

	require.Same(t, quote, p.Other(base))
	require.Same(t, base, p.Other(quote))
	require.Nil(t, p.Other(NewCoin("BTC", "bybit")))

	require.Equal(t, "ETH_USDT@bybit", p.Key())
}
