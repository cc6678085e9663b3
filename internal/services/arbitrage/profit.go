package arbitrage

import (
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/vadiminshakov/looper/internal/entity"
)

var one = decimal.NewFromInt(1)

// Opportunity is a loop whose simulated round trip ends with more of the
// starting coin than it began with.
type Opportunity struct {
	Loop        entity.Loop
	StartCoin   *entity.Coin
	StartAmount decimal.Decimal
	EndAmount   decimal.Decimal

	// terms for the loop's first order, captured against the books the
	// simulation ran on
	FirstLegSide   entity.Side
	FirstLegPrice  decimal.Decimal
	FirstLegAmount decimal.Decimal // base coin
}

// Profit is the simulated gain in the starting coin.
func (o Opportunity) Profit() decimal.Decimal {
	return o.EndAmount.Sub(o.StartAmount)
}

// Evaluate simulates converting startAmount of the loop's first coin all the
// way around, consuming order-book liquidity tier by tier and applying each
// pair's fee. It reports an opportunity only when the ending amount strictly
// exceeds the starting one. Loops touching an empty or too-shallow book are
// rejected.
func Evaluate(loop entity.Loop, startAmount decimal.Decimal) (*Opportunity, bool) {
	if loop.Len() < 2 || !startAmount.IsPositive() {
		return nil, false
	}

	current := loop.Coins[0]
	amount := startAmount

	for _, pair := range loop.Pairs {
		next := pair.Other(current)
		if next == nil {
			return nil, false
		}

		converted, err := convert(pair, current, amount)
		if err != nil {
			return nil, false
		}
		amount = converted.Mul(one.Sub(pair.Fee))
		current = next
	}

	if current != loop.Coins[0] || !amount.GreaterThan(startAmount) {
		return nil, false
	}

	op := &Opportunity{
		Loop:        loop,
		StartCoin:   loop.Coins[0],
		StartAmount: startAmount,
		EndAmount:   amount,
	}

	first := loop.Pairs[0]
	if loop.Coins[0] == first.Base {
		best, _ := first.Bids.Best()
		op.FirstLegSide = entity.SideSell
		op.FirstLegPrice = best.Price
		op.FirstLegAmount = startAmount
	} else {
		best, _ := first.Asks.Best()
		op.FirstLegSide = entity.SideBuy
		op.FirstLegPrice = best.Price
		op.FirstLegAmount = startAmount.Div(best.Price)
	}

	return op, true
}

// convert walks one pair's book, selling the base into bids or buying it out
// of asks, and mirrors real fill behavior by consuming deeper tiers when the
// best offer is too small.
func convert(pair *entity.TradePair, from *entity.Coin, amount decimal.Decimal) (decimal.Decimal, error) {
	switch from {
	case pair.Base:
		return sellIntoBids(pair.Bids.Offers(), amount)
	case pair.Quote:
		return buyFromAsks(pair.Asks.Offers(), amount)
	default:
		return decimal.Zero, errors.Errorf("coin %s is not an endpoint of %s", from, pair)
	}
}

// sellIntoBids converts a base amount into quote proceeds.
func sellIntoBids(bids []entity.Offer, amount decimal.Decimal) (decimal.Decimal, error) {
	if len(bids) == 0 {
		return decimal.Zero, errors.New("empty bid book")
	}

	remaining := amount
	proceeds := decimal.Zero
	for _, offer := range bids {
		take := decimal.Min(remaining, offer.Volume)
		proceeds = proceeds.Add(take.Mul(offer.Price))
		remaining = remaining.Sub(take)
		if !remaining.IsPositive() {
			return proceeds, nil
		}
	}
	return decimal.Zero, errors.New("insufficient bid liquidity")
}

// buyFromAsks converts a quote amount into the base it purchases.
func buyFromAsks(asks []entity.Offer, amount decimal.Decimal) (decimal.Decimal, error) {
	if len(asks) == 0 {
		return decimal.Zero, errors.New("empty ask book")
	}

	remaining := amount
	bought := decimal.Zero
	for _, offer := range asks {
		cost := offer.Price.Mul(offer.Volume)
		spend := decimal.Min(remaining, cost)
		bought = bought.Add(spend.Div(offer.Price))
		remaining = remaining.Sub(spend)
		if !remaining.IsPositive() {
			return bought, nil
		}
	}
	return decimal.Zero, errors.New("insufficient ask liquidity")
}
