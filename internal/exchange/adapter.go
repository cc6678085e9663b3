// Package exchange defines the adapter capability every venue implements:
// normalized DTOs for pairs, depth, balances, orders, fills and transfers.
// Wire protocols and authentication live in the per-venue subpackages; the
// synchronization layer is generic over this interface.
package exchange

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/vadiminshakov/looper/internal/entity"
)

// PairInfo describes one tradable instrument and its rules.
type PairInfo struct {
	Symbol    string // exchange-native symbol
	Base      string
	Quote     string
	MinAmount decimal.Decimal
	MinPrice  decimal.Decimal
}

// Depth is a full order-book snapshot for one pair. Bids are sorted by
// descending price, asks by ascending price.
type Depth struct {
	Bids []entity.Offer
	Asks []entity.Offer
}

// AccountBalance is one coin's balance as the exchange reports it.
type AccountBalance struct {
	Coin  string
	Total decimal.Decimal
	Held  decimal.Decimal // locked by the exchange in open orders
}

// OrderData is one open order as the exchange reports it.
type OrderData struct {
	ID        string
	Symbol    string
	Side      entity.Side
	Price     decimal.Decimal
	Amount    decimal.Decimal
	Remaining decimal.Decimal
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Fill is one executed trade.
type Fill struct {
	TradeID    string
	OrderID    string
	Symbol     string
	Side       entity.Side
	Price      decimal.Decimal
	Amount     decimal.Decimal
	Commission decimal.Decimal
	Time       time.Time
}

// TransferData is one deposit or withdrawal record.
type TransferData struct {
	ID        string
	Direction entity.TransferDirection
	Coin      string
	Amount    decimal.Decimal
	Time      time.Time
	Status    entity.TransferStatus
}

// OrderRequest submits a limit order.
type OrderRequest struct {
	Symbol        string
	Side          entity.Side
	Price         decimal.Decimal
	Amount        decimal.Decimal
	ClientOrderID string
}

// OrderResult is the immediate response to an order submission. Fills holds
// trades the exchange reported in the submission response itself; the rest
// arrive with the next history snapshot.
type OrderResult struct {
	OrderID   string
	Remaining decimal.Decimal
	Fills     []Fill
}

// Adapter is the per-venue capability consumed by the sync layer and the
// executor. Every call is rate-limited by the caller and honors ctx
// cancellation. History and transfer queries cover [begin, end).
type Adapter interface {
	Name() string

	Pairs(ctx context.Context) ([]PairInfo, error)
	Depth(ctx context.Context, symbol string, limit int) (*Depth, error)
	Balances(ctx context.Context) ([]AccountBalance, error)
	OpenOrders(ctx context.Context) ([]OrderData, error)
	TradeHistory(ctx context.Context, symbol string, begin, end time.Time) ([]Fill, error)
	Transfers(ctx context.Context, begin, end time.Time) ([]TransferData, error)

	SubmitOrder(ctx context.Context, req OrderRequest) (*OrderResult, error)
	CancelOrder(ctx context.Context, symbol, orderID string) error
}

// Failure classes. Adapters wrap venue-specific errors with these sentinels
// so the sync loop can react without knowing any wire format.
var (
	// ErrTransient marks a failure worth retrying on a later cycle (5xx,
	// timeouts, connection resets).
	ErrTransient = errors.New("transient exchange failure")
	// ErrAccessDenied marks invalid or expired credentials; the exchange
	// degrades to public-API-only.
	ErrAccessDenied = errors.New("exchange access denied")
)

// Class is the classification of an adapter failure.
type Class int

const (
	ClassUnknown Class = iota
	ClassTransient
	ClassAccessDenied
	ClassCancelled
)

func (c Class) String() string {
	switch c {
	case ClassTransient:
		return "transient"
	case ClassAccessDenied:
		return "access_denied"
	case ClassCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Classify maps an adapter error to its failure class.
func Classify(err error) Class {
	switch {
	case err == nil:
		return ClassUnknown
	case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
		return ClassCancelled
	case errors.Is(err, ErrAccessDenied):
		return ClassAccessDenied
	case errors.Is(err, ErrTransient):
		return ClassTransient
	default:
		return ClassUnknown
	}
}
