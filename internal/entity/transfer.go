package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

// TransferStatus is the lifecycle state of a fund transfer.
type TransferStatus int

const (
	TransferStatusUnknown TransferStatus = iota
	TransferStatusPending
	TransferStatusComplete
	TransferStatusCancelled
)

func (s TransferStatus) String() string {
	switch s {
	case TransferStatusPending:
		return "pending"
	case TransferStatusComplete:
		return "complete"
	case TransferStatusCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// TransferDirection distinguishes deposits from withdrawals.
type TransferDirection int

const (
	TransferDeposit TransferDirection = iota
	TransferWithdrawal
)

func (d TransferDirection) String() string {
	if d == TransferDeposit {
		return "deposit"
	}
	return "withdrawal"
}

// Transfer is a deposit or withdrawal mirrored from an exchange.
type Transfer struct {
	ID        string
	Exchange  string
	Direction TransferDirection
	Coin      Currency
	Amount    decimal.Decimal
	Time      time.Time
	Status    TransferStatus
}
