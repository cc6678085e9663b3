// Package executor places and cancels orders, coordinating with the balance
// hold mechanism so that capital reserved for an in-flight order is invisible
// to concurrent order attempts from the first moment.
package executor

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/vadiminshakov/looper/internal/entity"
	"github.com/vadiminshakov/looper/internal/exchange"
	"github.com/vadiminshakov/looper/internal/ledger"
	"github.com/vadiminshakov/looper/pkg/throttle"
)

var (
	// ErrUnknownPair is returned when the pair does not belong to the exchange.
	ErrUnknownPair = errors.New("pair is not tracked on this exchange")
	// ErrUnknownOrder is returned when cancelling an order the ledger does not hold.
	ErrUnknownOrder = errors.New("unknown order")
	// ErrPrivateAPIUnavailable is returned when the exchange is offline or
	// degraded to public-API-only.
	ErrPrivateAPIUnavailable = errors.New("exchange private API unavailable")
)

// Sync is the slice of the sync state machine the executor needs: the
// capability check and the dirty-flag kicks after a trade.
type Sync interface {
	PublicOnly() bool
	RequestBalanceUpdate()
	RequestPositionUpdate()
	RequestMarketDataUpdate()
}

// Request describes one order to place.
type Request struct {
	Exchange string
	Fund     string
	Base     string
	Quote    string
	Side     entity.Side
	Amount   decimal.Decimal // base coin
	Price    decimal.Decimal // quote per base
}

// Executor submits and cancels orders for every connected exchange.
type Executor struct {
	ledger    *ledger.Ledger
	adapters  map[string]exchange.Adapter
	syncers   map[string]Sync
	throttles map[string]*throttle.Throttle
	logger    *zap.Logger
}

func New(lgr *ledger.Ledger, logger *zap.Logger) *Executor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Executor{
		ledger:    lgr,
		adapters:  make(map[string]exchange.Adapter),
		syncers:   make(map[string]Sync),
		throttles: make(map[string]*throttle.Throttle),
		logger:    logger,
	}
}

// Register wires one exchange into the executor.
func (e *Executor) Register(adapter exchange.Adapter, sync Sync, thr *throttle.Throttle) {
	name := adapter.Name()
	e.adapters[name] = adapter
	e.syncers[name] = sync
	e.throttles[name] = thr
}

// CreateOrder validates the request, reserves the spend against the fund
// before any network call, submits the order and folds the immediate result
// into the ledger. Validation and submission failures surface synchronously;
// a failed submission releases the hold it took.
func (e *Executor) CreateOrder(ctx context.Context, req Request) (string, error) {
	adapter, ok := e.adapters[req.Exchange]
	if !ok {
		return "", errors.Errorf("unknown exchange %q", req.Exchange)
	}
	if sync, ok := e.syncers[req.Exchange]; !ok || sync.PublicOnly() {
		return "", errors.Wrapf(ErrPrivateAPIUnavailable, "exchange %s", req.Exchange)
	}
	if !req.Amount.IsPositive() || !req.Price.IsPositive() {
		return "", errors.Errorf("amount and price must be positive, got %s at %s", req.Amount, req.Price)
	}

	// reserve first: the hold must be visible to any concurrent order
	// evaluation before the network call starts
	var (
		symbol   string
		holdID   string
		holdCoin entity.Currency
		pairKey  string
		reserve  error
	)
	err := e.ledger.Do(ctx, func(st *ledger.State) {
		pair := e.findPair(st, req)
		if pair == nil {
			reserve = errors.Wrapf(ErrUnknownPair, "%s_%s on %s", req.Base, req.Quote, req.Exchange)
			return
		}
		symbol = pair.Symbol
		pairKey = pair.Key()

		spend := spendFor(pair, req)
		holdCoin = spend.Currency
		holdID, reserve = st.Balance(spend.Currency).TakeHold(req.Fund, spend.Value)
	})
	if err != nil {
		return "", err
	}
	if reserve != nil {
		return "", reserve
	}

	if err := e.throttles[req.Exchange].Wait(ctx); err != nil {
		e.releaseHold(holdCoin, holdID)
		return "", err
	}

	submitTime := time.Now()
	result, err := adapter.SubmitOrder(ctx, exchange.OrderRequest{
		Symbol:        symbol,
		Side:          req.Side,
		Price:         req.Price,
		Amount:        req.Amount,
		ClientOrderID: uuid.NewString(),
	})
	if err != nil {
		e.releaseHold(holdCoin, holdID)
		return "", errors.Wrapf(err, "submit %s %s on %s", req.Side, pairKey, req.Exchange)
	}

	e.recordResult(req, result, holdCoin, holdID, submitTime)

	if sync := e.syncers[req.Exchange]; sync != nil {
		sync.RequestBalanceUpdate()
		sync.RequestPositionUpdate()
		sync.RequestMarketDataUpdate()
	}

	e.logger.Info("order submitted",
		zap.String("exchange", req.Exchange),
		zap.String("pair", pairKey),
		zap.String("side", req.Side.String()),
		zap.String("amount", req.Amount.String()),
		zap.String("price", req.Price.String()),
		zap.String("order_id", result.OrderID))
	return result.OrderID, nil
}

// recordResult folds the submission outcome into the ledger: authorship, a
// placeholder order for the unfilled remainder, immediate fills, best-effort
// local liquidity consumption, and a still-needed predicate on the hold.
func (e *Executor) recordResult(req Request, result *exchange.OrderResult, holdCoin entity.Currency, holdID string, submitTime time.Time) {
	name := req.Exchange
	fund := req.Fund

	e.ledger.Enqueue(func(st *ledger.State) {
		st.RecordOrderFund(name, result.OrderID, fund)

		pair := e.findPair(st, req)
		if pair == nil {
			return
		}

		if result.Remaining.IsPositive() {
			st.InsertOrder(&entity.Order{
				ID:        result.OrderID,
				Exchange:  name,
				Fund:      fund,
				Pair:      pair,
				Side:      req.Side,
				Price:     req.Price,
				Amount:    req.Amount,
				Remaining: result.Remaining,
				CreatedAt: submitTime,
				UpdatedAt: submitTime,
			})
		}

		for _, f := range result.Fills {
			st.MergeFill(name, f)
		}

		if filled := req.Amount.Sub(result.Remaining); filled.IsPositive() {
			// overwritten by the next depth snapshot; keeps concurrent
			// profitability checks from double-counting consumed tiers
			if req.Side == entity.SideBuy {
				pair.Asks.Consume(filled)
			} else {
				pair.Bids.Consume(filled)
			}
		}

		// the hold stays while the order still rests on the book or the fund
		// balance has not been refreshed since submission. The predicate
		// captures st but only ever runs inside ReviewHolds mutations, on the
		// owner goroutine.
		orderID := result.OrderID
		st.Balance(holdCoin).ArmHold(holdID, func() bool {
			if o := st.Order(name, orderID); o != nil && o.Remaining.IsPositive() {
				return true
			}
			return !st.Balance(holdCoin).Fund(fund).UpdatedAt.After(submitTime)
		})
	})
}

// CancelOrder removes the mirrored order immediately, so no concurrent read
// can still see a cancelled order, then tells the exchange.
func (e *Executor) CancelOrder(ctx context.Context, exchangeName, orderID string) error {
	adapter, ok := e.adapters[exchangeName]
	if !ok {
		return errors.Errorf("unknown exchange %q", exchangeName)
	}
	if sync, ok := e.syncers[exchangeName]; !ok || sync.PublicOnly() {
		return errors.Wrapf(ErrPrivateAPIUnavailable, "exchange %s", exchangeName)
	}

	var symbol string
	err := e.ledger.Do(ctx, func(st *ledger.State) {
		if o := st.Order(exchangeName, orderID); o != nil && o.Pair != nil {
			symbol = o.Pair.Symbol
			st.RemoveOrder(exchangeName, orderID)
			st.ReviewHolds()
		}
	})
	if err != nil {
		return err
	}
	if symbol == "" {
		return errors.Wrapf(ErrUnknownOrder, "%s on %s", orderID, exchangeName)
	}

	if err := e.throttles[exchangeName].Wait(ctx); err != nil {
		return err
	}
	if err := adapter.CancelOrder(ctx, symbol, orderID); err != nil {
		return errors.Wrapf(err, "cancel %s on %s", orderID, exchangeName)
	}

	if sync := e.syncers[exchangeName]; sync != nil {
		sync.RequestBalanceUpdate()
		sync.RequestPositionUpdate()
	}
	return nil
}

func (e *Executor) findPair(st *ledger.State, req Request) *entity.TradePair {
	for _, p := range st.PairsOf(req.Exchange) {
		if p.Base.Symbol == req.Base && p.Quote.Symbol == req.Quote {
			return p
		}
	}
	return nil
}

// spendFor computes the coin and amount an order consumes: quote for buys,
// base for sells. The currency tag keeps the two from being interchanged.
func spendFor(pair *entity.TradePair, req Request) entity.Amount {
	if req.Side == entity.SideBuy {
		return entity.NewAmount(req.Amount.Mul(req.Price), pair.Quote.Currency())
	}
	return entity.NewAmount(req.Amount, pair.Base.Currency())
}

// releaseHold undoes a reservation after a failed submission. Runs with its
// own context: the release must happen even when the caller's context died.
func (e *Executor) releaseHold(coin entity.Currency, holdID string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = e.ledger.Do(ctx, func(st *ledger.State) {
		st.Balance(coin).ReleaseHold(holdID)
	})
}
