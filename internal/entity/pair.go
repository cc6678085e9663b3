package entity

import (
	"fmt"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

// Offer is one price level of an order book side.
type Offer struct {
	Price  decimal.Decimal
	Volume decimal.Decimal
}

// OrderBook is a snapshot of one side of a pair's book. It is refreshed by
// full replacement only, never patched in place, so readers never observe a
// half-applied update.
type OrderBook struct {
	offers []Offer
}

// Replace swaps the book contents for a fresh snapshot. The offers must
// already be sorted: ascending prices for asks, descending for bids; the
// caller states which ordering applies via ascending.
func (b *OrderBook) Replace(offers []Offer, ascending bool) error {
	for i := 1; i < len(offers); i++ {
		if ascending && offers[i].Price.LessThanOrEqual(offers[i-1].Price) {
			return errors.Errorf("ask prices not strictly increasing at level %d", i)
		}
		if !ascending && offers[i].Price.GreaterThanOrEqual(offers[i-1].Price) {
			return errors.Errorf("bid prices not strictly decreasing at level %d", i)
		}
	}
	b.offers = offers
	return nil
}

// Offers returns the current snapshot. Callers must not mutate it.
func (b *OrderBook) Offers() []Offer {
	return b.offers
}

func (b *OrderBook) Empty() bool {
	return len(b.offers) == 0
}

// Best returns the top of the book.
func (b *OrderBook) Best() (Offer, bool) {
	if len(b.offers) == 0 {
		return Offer{}, false
	}
	return b.offers[0], true
}

// Consume removes volume from the top of the book, spilling into deeper
// levels when the best offer is smaller than requested. Used after a local
// fill so the book reflects consumed liquidity until the next snapshot
// overwrites it.
func (b *OrderBook) Consume(volume decimal.Decimal) {
	remaining := volume
	i := 0
	for i < len(b.offers) && remaining.IsPositive() {
		if b.offers[i].Volume.GreaterThan(remaining) {
			b.offers[i].Volume = b.offers[i].Volume.Sub(remaining)
			remaining = decimal.Zero
			break
		}
		remaining = remaining.Sub(b.offers[i].Volume)
		i++
	}
	if i > 0 {
		b.offers = b.offers[i:]
	}
}

// TradePair is a tradable instrument linking a base and a quote coin on one
// exchange. For a cross-exchange pair the two coins carry the same symbol on
// different exchanges. Pairs are never removed or replaced while referenced;
// only their books are refreshed.
type TradePair struct {
	Base     *Coin
	Quote    *Coin
	Exchange string
	Symbol   string // exchange-native symbol, e.g. BTCUSDT
	Fee      decimal.Decimal

	Bids OrderBook // descending prices
	Asks OrderBook // ascending prices

	UpdatedAt time.Time
}

func NewTradePair(base, quote *Coin, exchange, symbol string, fee decimal.Decimal) *TradePair {
	p := &TradePair{
		Base:     base,
		Quote:    quote,
		Exchange: exchange,
		Symbol:   symbol,
		Fee:      fee,
	}
	base.AddPair(p)
	quote.AddPair(p)
	return p
}

// ReplaceBooks installs fresh depth snapshots for both sides and stamps the
// pair. Either side failing validation leaves both sides untouched.
func (p *TradePair) ReplaceBooks(bids, asks []Offer, now time.Time) error {
	var staged TradePair
	if err := staged.Bids.Replace(bids, false); err != nil {
		return errors.Wrapf(err, "bids of %s", p.Key())
	}
	if err := staged.Asks.Replace(asks, true); err != nil {
		return errors.Wrapf(err, "asks of %s", p.Key())
	}
	p.Bids = staged.Bids
	p.Asks = staged.Asks
	p.UpdatedAt = now
	return nil
}

// Other returns the opposite endpoint of the pair, or nil when the coin does
// not belong to the pair.
func (p *TradePair) Other(c *Coin) *Coin {
	switch c {
	case p.Base:
		return p.Quote
	case p.Quote:
		return p.Base
	default:
		return nil
	}
}

// Key is a stable human-readable identity, e.g. BTC_USDT@binance.
func (p *TradePair) Key() string {
	return fmt.Sprintf("%s_%s@%s", p.Base.Symbol, p.Quote.Symbol, p.Exchange)
}

func (p *TradePair) String() string {
	return p.Key()
}
