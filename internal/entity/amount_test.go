package entity

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestAmountArithmeticRejectsCurrencyMismatch(t *testing.T) {
	btcBinance := NewAmount(decimal.NewFromInt(1), Currency{Symbol: "BTC", Exchange: "binance"})
	btcBybit := NewAmount(decimal.NewFromInt(2), Currency{Symbol: "BTC", Exchange: "bybit"})
	usdt := NewAmount(decimal.NewFromInt(3), Currency{Symbol: "USDT", Exchange: "binance"})

	_, err := btcBinance.Add(usdt)
	require.Error(t, err)

	// same symbol on another exchange is a different currency
	_, err = btcBinance.Add(btcBybit)
	require.Error(t, err)

	sum, err := btcBinance.Add(NewAmount(decimal.NewFromInt(4), btcBinance.Currency))
	require.NoError(t, err)
	require.True(t, decimal.NewFromInt(5).Equal(sum.Value))

	diff, err := sum.Sub(btcBinance)
	require.NoError(t, err)
	require.True(t, decimal.NewFromInt(4).Equal(diff.Value))
}

func TestAmountMulKeepsCurrency(t *testing.T) {
	a := NewAmount(decimal.NewFromInt(10), Currency{Symbol: "ETH", Exchange: "binance"})
	scaled := a.Mul(decimal.NewFromFloat(0.5))
	require.True(t, decimal.NewFromInt(5).Equal(scaled.Value))
	require.Equal(t, a.Currency, scaled.Currency)
	require.Equal(t, "5 ETH@binance", scaled.String())
}
