package bybit

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"

	"github.com/vadiminshakov/looper/internal/entity"
	"github.com/vadiminshakov/looper/internal/exchange"
)

func TestMsTime(t *testing.T) {
	ts := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	require.True(t, msTime("1772366400000").Equal(ts))
	require.True(t, msTime("not-a-number").IsZero())
	require.True(t, msTime("").IsZero())
}

func TestWithdrawStatusMapping(t *testing.T) {
	cases := []struct {
		status string
		want   entity.TransferStatus
	}{
		{"SecurityCheck", entity.TransferStatusPending},
		{"Pending", entity.TransferStatusPending},
		{"BlockchainConfirmed", entity.TransferStatusPending},
		{"success", entity.TransferStatusComplete},
		{"CancelByUser", entity.TransferStatusCancelled},
		{"Reject", entity.TransferStatusCancelled},
		{"MoreInformationRequired", entity.TransferStatusUnknown},
	}
	for _, c := range cases {
		require.Equal(t, c.want, withdrawStatus(c.status), c.status)
	}
}

func TestDepositStatusMapping(t *testing.T) {
	require.Equal(t, entity.TransferStatusPending, depositStatus(1))
	require.Equal(t, entity.TransferStatusComplete, depositStatus(3))
	require.Equal(t, entity.TransferStatusCancelled, depositStatus(4))
	require.Equal(t, entity.TransferStatusUnknown, depositStatus(99))
}

func TestClassify(t *testing.T) {
	err := classify(errors.New("bybit: ret_code=10003, ret_msg=API key is invalid"), "fetch balances")
	require.ErrorIs(t, err, exchange.ErrAccessDenied)

	err = classify(errors.New("bybit: ret_code=10006, ret_msg=Too many visits"), "fetch orderbook")
	require.ErrorIs(t, err, exchange.ErrTransient)

	require.ErrorIs(t, classify(context.Canceled, "fetch"), context.Canceled)

	err = classify(errors.New("ret_code=170131, insufficient balance"), "submit order")
	require.NotErrorIs(t, err, exchange.ErrTransient)
	require.NotErrorIs(t, err, exchange.ErrAccessDenied)
}

func TestParseOffer(t *testing.T) {
	offer, err := parseOffer("20000.5", "0.25")
	require.NoError(t, err)
	require.Equal(t, "20000.5", offer.Price.String())
	require.Equal(t, "0.25", offer.Volume.String())

	_, err = parseOffer("x", "1")
	require.Error(t, err)
}
