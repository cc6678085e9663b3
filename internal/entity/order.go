package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

// Side represents the direction of an order in base-coin terms.
type Side int

const (
	// SideBuy buys the base coin for the quote coin
	SideBuy Side = iota
	// SideSell sells the base coin for the quote coin
	SideSell
)

func (s Side) String() string {
	if s == SideBuy {
		return "buy"
	}
	return "sell"
}

// Order is an open order mirrored from an exchange. The same struct instance
// is mutated in place on repeated sightings so that holders of the id keep
// observing the same logical order.
type Order struct {
	ID        string
	Exchange  string
	Fund      string
	Pair      *TradePair
	Side      Side
	Price     decimal.Decimal
	Amount    decimal.Decimal // requested
	Remaining decimal.Decimal
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Update folds a fresh sighting of the same order into the stored value.
func (o *Order) Update(remaining decimal.Decimal, updatedAt time.Time) {
	o.Remaining = remaining
	if updatedAt.After(o.UpdatedAt) {
		o.UpdatedAt = updatedAt
	}
}

// TradeCompleted is one fill of an order.
type TradeCompleted struct {
	TradeID    string
	OrderID    string
	Exchange   string
	Symbol     string
	Side       Side
	Price      decimal.Decimal
	Amount     decimal.Decimal // base coin
	Commission decimal.Decimal // quote coin
	Time       time.Time
}

// OrderCompleted collects the fills of one order, keyed by trade id.
type OrderCompleted struct {
	OrderID string
	Trades  map[string]TradeCompleted
}

func NewOrderCompleted(orderID string) *OrderCompleted {
	return &OrderCompleted{OrderID: orderID, Trades: make(map[string]TradeCompleted)}
}

// Merge records a fill. Re-adding a known trade id is a no-op; returns true
// only when the trade was new.
func (oc *OrderCompleted) Merge(t TradeCompleted) bool {
	if _, seen := oc.Trades[t.TradeID]; seen {
		return false
	}
	oc.Trades[t.TradeID] = t
	return true
}

// FilledAmount is the total base amount filled so far.
func (oc *OrderCompleted) FilledAmount() decimal.Decimal {
	total := decimal.Zero
	for _, t := range oc.Trades {
		total = total.Add(t.Amount)
	}
	return total
}
