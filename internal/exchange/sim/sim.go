// Package sim is an in-memory exchange used for back-testing. Orders fill
// instantly against the configured depth snapshots, balances move
// accordingly, and every query answers from local state, so the whole
// pipeline can run without touching a network.
package sim

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/vadiminshakov/looper/internal/entity"
	"github.com/vadiminshakov/looper/internal/exchange"
)

type book struct {
	bids []entity.Offer
	asks []entity.Offer
}

type Adapter struct {
	mu       sync.RWMutex
	name     string
	logger   *zap.Logger
	pairs    []exchange.PairInfo
	books    map[string]*book // by symbol
	wallet   map[string]decimal.Decimal
	fee      decimal.Decimal
	fills    []exchange.Fill
	nextID   int
	nextFill int
}

// New creates a simulated exchange with the given tradable pairs and initial
// balances. fee is the taker fee applied to every fill's commission.
func New(name string, pairs []exchange.PairInfo, balances map[string]decimal.Decimal, fee decimal.Decimal, logger *zap.Logger) *Adapter {
	if logger == nil {
		logger = zap.NewNop()
	}
	wallet := make(map[string]decimal.Decimal, len(balances))
	for coin, amount := range balances {
		wallet[coin] = amount
	}
	return &Adapter{
		name:   name,
		logger: logger,
		pairs:  pairs,
		books:  make(map[string]*book),
		wallet: wallet,
		fee:    fee,
		nextID: 1,
	}
}

// SetDepth installs the depth snapshot later queries and fills run against.
func (a *Adapter) SetDepth(symbol string, bids, asks []entity.Offer) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.books[symbol] = &book{bids: bids, asks: asks}
}

func (a *Adapter) Name() string {
	return a.name
}

func (a *Adapter) Pairs(ctx context.Context) ([]exchange.PairInfo, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make([]exchange.PairInfo, len(a.pairs))
	copy(out, a.pairs)
	return out, nil
}

func (a *Adapter) Depth(ctx context.Context, symbol string, limit int) (*exchange.Depth, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	b, ok := a.books[symbol]
	if !ok {
		return &exchange.Depth{}, nil
	}
	depth := &exchange.Depth{
		Bids: append([]entity.Offer(nil), b.bids...),
		Asks: append([]entity.Offer(nil), b.asks...),
	}
	if limit > 0 && len(depth.Bids) > limit {
		depth.Bids = depth.Bids[:limit]
	}
	if limit > 0 && len(depth.Asks) > limit {
		depth.Asks = depth.Asks[:limit]
	}
	return depth, nil
}

func (a *Adapter) Balances(ctx context.Context) ([]exchange.AccountBalance, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	coins := make([]string, 0, len(a.wallet))
	for coin := range a.wallet {
		coins = append(coins, coin)
	}
	sort.Strings(coins)

	balances := make([]exchange.AccountBalance, 0, len(coins))
	for _, coin := range coins {
		balances = append(balances, exchange.AccountBalance{
			Coin:  coin,
			Total: a.wallet[coin],
			Held:  decimal.Zero,
		})
	}
	return balances, nil
}

// OpenOrders is always empty: simulated orders fill in full on submission.
func (a *Adapter) OpenOrders(ctx context.Context) ([]exchange.OrderData, error) {
	return nil, nil
}

func (a *Adapter) TradeHistory(ctx context.Context, symbol string, begin, end time.Time) ([]exchange.Fill, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	var fills []exchange.Fill
	for _, f := range a.fills {
		if f.Symbol != symbol {
			continue
		}
		if f.Time.Before(begin) || !f.Time.Before(end) {
			continue
		}
		fills = append(fills, f)
	}
	return fills, nil
}

// Transfers is always empty: the simulation moves no funds in or out.
func (a *Adapter) Transfers(ctx context.Context, begin, end time.Time) ([]exchange.TransferData, error) {
	return nil, nil
}

func (a *Adapter) SubmitOrder(ctx context.Context, req exchange.OrderRequest) (*exchange.OrderResult, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	info, err := a.pairInfo(req.Symbol)
	if err != nil {
		return nil, err
	}

	cost := req.Amount.Mul(req.Price)
	switch req.Side {
	case entity.SideBuy:
		if a.wallet[info.Quote].LessThan(cost) {
			return nil, errors.Errorf("sim: insufficient %s balance for buy of %s", info.Quote, req.Symbol)
		}
		a.wallet[info.Quote] = a.wallet[info.Quote].Sub(cost)
		a.wallet[info.Base] = a.wallet[info.Base].Add(req.Amount)
	case entity.SideSell:
		if a.wallet[info.Base].LessThan(req.Amount) {
			return nil, errors.Errorf("sim: insufficient %s balance for sell of %s", info.Base, req.Symbol)
		}
		a.wallet[info.Base] = a.wallet[info.Base].Sub(req.Amount)
		a.wallet[info.Quote] = a.wallet[info.Quote].Add(cost)
	}

	orderID := strconv.Itoa(a.nextID)
	a.nextID++
	a.nextFill++

	fill := exchange.Fill{
		TradeID:    fmt.Sprintf("sim-%d", a.nextFill),
		OrderID:    orderID,
		Symbol:     req.Symbol,
		Side:       req.Side,
		Price:      req.Price,
		Amount:     req.Amount,
		Commission: cost.Mul(a.fee),
		Time:       time.Now(),
	}
	a.fills = append(a.fills, fill)

	a.logger.Debug("simulated fill",
		zap.String("symbol", req.Symbol),
		zap.String("side", req.Side.String()),
		zap.String("price", req.Price.String()),
		zap.String("amount", req.Amount.String()))

	return &exchange.OrderResult{
		OrderID:   orderID,
		Remaining: decimal.Zero,
		Fills:     []exchange.Fill{fill},
	}, nil
}

// CancelOrder is a no-op: simulated orders never rest on the book.
func (a *Adapter) CancelOrder(ctx context.Context, symbol, orderID string) error {
	return nil
}

func (a *Adapter) pairInfo(symbol string) (exchange.PairInfo, error) {
	for _, p := range a.pairs {
		if p.Symbol == symbol {
			return p, nil
		}
	}
	return exchange.PairInfo{}, errors.Errorf("sim: unknown symbol %q", symbol)
}
