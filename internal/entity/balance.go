package entity

import (
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

// ErrInsufficientBalance is returned when a hold would exceed the fund's
// available balance.
var ErrInsufficientBalance = errors.New("insufficient available balance")

// Hold reserves part of a fund's available balance between order submission
// and the balance refresh that observes the order. The stillNeeded predicate,
// when armed, is consulted on every balance review; the hold is dropped once
// it reports false.
type Hold struct {
	ID     string
	Fund   string
	Amount decimal.Decimal

	stillNeeded func() bool
}

// FundBalance is one fund's partition of a coin balance.
type FundBalance struct {
	Total           decimal.Decimal
	HeldByExchange  decimal.Decimal
	PendingWithdraw decimal.Decimal
	UpdatedAt       time.Time

	holds map[string]*Hold
}

func newFundBalance() *FundBalance {
	return &FundBalance{holds: make(map[string]*Hold)}
}

// Held is the sum of exchange-side locks and local holds.
func (f *FundBalance) Held() decimal.Decimal {
	held := f.HeldByExchange
	for _, h := range f.holds {
		held = held.Add(h.Amount)
	}
	return held
}

// Available is what new orders may still spend.
func (f *FundBalance) Available() decimal.Decimal {
	return f.Total.Sub(f.Held())
}

// Balance aggregates all fund partitions of one coin. The coin-level total is
// always the sum of the partitions, so the aggregate invariant holds by
// construction.
type Balance struct {
	Coin  Currency
	funds map[string]*FundBalance
}

func NewBalance(coin Currency) *Balance {
	return &Balance{Coin: coin, funds: make(map[string]*FundBalance)}
}

// Fund returns the named partition, creating it on first use.
func (b *Balance) Fund(name string) *FundBalance {
	f, ok := b.funds[name]
	if !ok {
		f = newFundBalance()
		b.funds[name] = f
	}
	return f
}

// Funds returns the partition names currently present.
func (b *Balance) Funds() []string {
	names := make([]string, 0, len(b.funds))
	for name := range b.funds {
		names = append(names, name)
	}
	return names
}

// Total is the coin aggregate over all funds.
func (b *Balance) Total() decimal.Decimal {
	total := decimal.Zero
	for _, f := range b.funds {
		total = total.Add(f.Total)
	}
	return total
}

// AssignFundBalance installs an exchange-reported balance figure for one
// fund. Updates not strictly newer than the partition's current timestamp are
// rejected, which makes out-of-order network replies harmless. Returns true
// when the update was applied.
func (b *Balance) AssignFundBalance(fund string, total, heldByExchange decimal.Decimal, updateTime time.Time) bool {
	f := b.Fund(fund)
	if !updateTime.After(f.UpdatedAt) {
		return false
	}
	f.Total = total
	f.HeldByExchange = heldByExchange
	f.UpdatedAt = updateTime
	return true
}

// TakeHold reserves amount against the fund's available balance and returns
// the hold id. The reservation is visible to every later availability check
// immediately, closing the double-spend window between order submission and
// the next balance refresh.
func (b *Balance) TakeHold(fund string, amount decimal.Decimal) (string, error) {
	if !amount.IsPositive() {
		return "", errors.Errorf("hold amount must be positive, got %s", amount)
	}
	f := b.Fund(fund)
	if amount.GreaterThan(f.Available()) {
		return "", errors.Wrapf(ErrInsufficientBalance, "%s fund %q: want %s, available %s",
			b.Coin, fund, amount, f.Available())
	}
	h := &Hold{ID: uuid.NewString(), Fund: fund, Amount: amount}
	f.holds[h.ID] = h
	return h.ID, nil
}

// ArmHold attaches a still-needed predicate to an existing hold. The hold is
// released on the first review where the predicate reports false.
func (b *Balance) ArmHold(holdID string, stillNeeded func() bool) bool {
	for _, f := range b.funds {
		if h, ok := f.holds[holdID]; ok {
			h.stillNeeded = stillNeeded
			return true
		}
	}
	return false
}

// ReleaseHold cancels a hold explicitly, restoring availability.
func (b *Balance) ReleaseHold(holdID string) bool {
	for _, f := range b.funds {
		if _, ok := f.holds[holdID]; ok {
			delete(f.holds, holdID)
			return true
		}
	}
	return false
}

// ReviewHolds evaluates armed predicates and drops holds no longer needed.
// Holds without a predicate stay until released explicitly.
func (b *Balance) ReviewHolds() int {
	released := 0
	for _, f := range b.funds {
		for id, h := range f.holds {
			if h.stillNeeded != nil && !h.stillNeeded() {
				delete(f.holds, id)
				released++
			}
		}
	}
	return released
}
