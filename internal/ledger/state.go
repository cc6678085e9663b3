package ledger

import (
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/vadiminshakov/looper/internal/entity"
	"github.com/vadiminshakov/looper/internal/exchange"
	"github.com/vadiminshakov/looper/internal/storage/trades"
)

// FillStore is the persisted append-only fill ledger. Only newly observed
// trade ids are forwarded to it.
type FillStore interface {
	Upsert(rec trades.Record) error
	ContainsTradeID(id string) bool
}

// State holds every shared collection. Coin and pair objects are shared by
// reference and never deep-copied; pairs are appended, never removed, so
// their slice indices stay stable for the loop search.
type State struct {
	Coins     map[entity.Currency]*entity.Coin
	Pairs     []*entity.TradePair
	Balances  map[entity.Currency]*entity.Balance
	Orders    map[string]*entity.Order
	History   map[string]*entity.OrderCompleted
	Transfers map[string]*entity.Transfer

	pairsByKey map[string]*entity.TradePair
	pairsBySym map[string]*entity.TradePair // exchange+":"+symbol
	orderFunds map[string]string            // order key -> fund name

	fills  FillStore
	logger *zap.Logger
}

func NewState(fills FillStore, logger *zap.Logger) *State {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &State{
		Coins:      make(map[entity.Currency]*entity.Coin),
		Balances:   make(map[entity.Currency]*entity.Balance),
		Orders:     make(map[string]*entity.Order),
		History:    make(map[string]*entity.OrderCompleted),
		Transfers:  make(map[string]*entity.Transfer),
		pairsByKey: make(map[string]*entity.TradePair),
		pairsBySym: make(map[string]*entity.TradePair),
		orderFunds: make(map[string]string),
		fills:      fills,
		logger:     logger,
	}
}

func orderKey(exchangeName, orderID string) string {
	return exchangeName + ":" + orderID
}

// EnsureCoin returns the coin for (symbol, exchange), creating it and its
// balance entry on first sight.
func (s *State) EnsureCoin(symbol, exchangeName string) *entity.Coin {
	cur := entity.Currency{Symbol: symbol, Exchange: exchangeName}
	coin, ok := s.Coins[cur]
	if !ok {
		coin = entity.NewCoin(symbol, exchangeName)
		s.Coins[cur] = coin
	}
	if _, ok := s.Balances[cur]; !ok {
		s.Balances[cur] = entity.NewBalance(cur)
	}
	return coin
}

// Balance returns the balance entry for a currency, creating it on demand.
func (s *State) Balance(cur entity.Currency) *entity.Balance {
	b, ok := s.Balances[cur]
	if !ok {
		b = entity.NewBalance(cur)
		s.Balances[cur] = b
	}
	return b
}

// EnsurePair returns the pair for the given endpoints, registering a new one
// when unseen. Existing pairs are returned as-is: a pair is never replaced
// while referenced elsewhere.
func (s *State) EnsurePair(base, quote *entity.Coin, exchangeName, symbol string, fee decimal.Decimal) *entity.TradePair {
	key := base.Symbol + "_" + quote.Symbol + "@" + exchangeName
	if p, ok := s.pairsByKey[key]; ok {
		return p
	}
	p := entity.NewTradePair(base, quote, exchangeName, symbol, fee)
	s.Pairs = append(s.Pairs, p)
	s.pairsByKey[key] = p
	s.pairsBySym[exchangeName+":"+symbol] = p
	return p
}

// PairBySymbol resolves a pair from an exchange-native symbol.
func (s *State) PairBySymbol(exchangeName, symbol string) *entity.TradePair {
	return s.pairsBySym[exchangeName+":"+symbol]
}

// PairsOf returns the pairs belonging to one exchange.
func (s *State) PairsOf(exchangeName string) []*entity.TradePair {
	var out []*entity.TradePair
	for _, p := range s.Pairs {
		if p.Exchange == exchangeName {
			out = append(out, p)
		}
	}
	return out
}

// Order returns the mirrored open order, if any.
func (s *State) Order(exchangeName, orderID string) *entity.Order {
	return s.Orders[orderKey(exchangeName, orderID)]
}

// OrderFund returns the fund an order was submitted from, when known.
func (s *State) OrderFund(exchangeName, orderID string) (string, bool) {
	fund, ok := s.orderFunds[orderKey(exchangeName, orderID)]
	return fund, ok
}

// RecordOrderFund remembers which fund authored an order.
func (s *State) RecordOrderFund(exchangeName, orderID, fund string) {
	s.orderFunds[orderKey(exchangeName, orderID)] = fund
}

// UpsertOrder folds an open-order sighting into the state. A known order is
// mutated in place so external holders of the id keep a valid handle.
func (s *State) UpsertOrder(exchangeName string, data exchange.OrderData) *entity.Order {
	key := orderKey(exchangeName, data.ID)
	if o, ok := s.Orders[key]; ok {
		o.Update(data.Remaining, data.UpdatedAt)
		return o
	}

	fund := s.orderFunds[key]
	o := &entity.Order{
		ID:        data.ID,
		Exchange:  exchangeName,
		Fund:      fund,
		Pair:      s.PairBySymbol(exchangeName, data.Symbol),
		Side:      data.Side,
		Price:     data.Price,
		Amount:    data.Amount,
		Remaining: data.Remaining,
		CreatedAt: data.CreatedAt,
		UpdatedAt: data.UpdatedAt,
	}
	s.Orders[key] = o
	return o
}

// InsertOrder places a locally authored order into the state so concurrent
// reads cannot miss it before the next snapshot arrives.
func (s *State) InsertOrder(o *entity.Order) {
	s.Orders[orderKey(o.Exchange, o.ID)] = o
}

// RemoveOrder deletes an order unconditionally (used on explicit cancel).
func (s *State) RemoveOrder(exchangeName, orderID string) {
	delete(s.Orders, orderKey(exchangeName, orderID))
}

// RemoveStaleOrders deletes orders of one exchange that a fresh snapshot did
// not list, but only those created strictly before the snapshot's query
// start. Orders created mid-query survive: the snapshot could not have seen
// them.
func (s *State) RemoveStaleOrders(exchangeName string, seen map[string]struct{}, queryStart time.Time) int {
	removed := 0
	for key, o := range s.Orders {
		if o.Exchange != exchangeName {
			continue
		}
		if _, ok := seen[o.ID]; ok {
			continue
		}
		if !o.CreatedAt.Before(queryStart) {
			continue
		}
		delete(s.Orders, key)
		removed++
	}
	return removed
}

// MergeFill records a fill in the order history. The merge is idempotent on
// trade id; only first sightings reach the persisted fill store. Returns true
// when the fill was new.
func (s *State) MergeFill(exchangeName string, fill exchange.Fill) bool {
	key := orderKey(exchangeName, fill.OrderID)
	oc, ok := s.History[key]
	if !ok {
		oc = entity.NewOrderCompleted(fill.OrderID)
		s.History[key] = oc
	}

	trade := entity.TradeCompleted{
		TradeID:    fill.TradeID,
		OrderID:    fill.OrderID,
		Exchange:   exchangeName,
		Symbol:     fill.Symbol,
		Side:       fill.Side,
		Price:      fill.Price,
		Amount:     fill.Amount,
		Commission: fill.Commission,
		Time:       fill.Time,
	}
	if !oc.Merge(trade) {
		return false
	}

	if s.fills != nil && !s.fills.ContainsTradeID(fill.TradeID) {
		rec := trades.Record{
			TradeID:         fill.TradeID,
			OrderID:         fill.OrderID,
			Exchange:        exchangeName,
			Pair:            fill.Symbol,
			Side:            fill.Side.String(),
			Price:           fill.Price,
			AmountBase:      fill.Amount,
			CommissionQuote: fill.Commission,
			Time:            fill.Time,
		}
		if err := s.fills.Upsert(rec); err != nil {
			s.logger.Error("persist fill",
				zap.String("exchange", exchangeName),
				zap.String("trade_id", fill.TradeID),
				zap.Error(err))
		}
	}
	return true
}

// UpsertTransfer records or refreshes a transfer.
func (s *State) UpsertTransfer(exchangeName string, data exchange.TransferData) {
	key := exchangeName + ":" + data.ID
	if t, ok := s.Transfers[key]; ok {
		t.Status = data.Status
		return
	}
	s.Transfers[key] = &entity.Transfer{
		ID:        data.ID,
		Exchange:  exchangeName,
		Direction: data.Direction,
		Coin:      entity.Currency{Symbol: data.Coin, Exchange: exchangeName},
		Amount:    data.Amount,
		Time:      data.Time,
		Status:    data.Status,
	}
}

// RecalcPendingWithdrawals refreshes each coin's pending-withdraw figure from
// the transfer mirror. Attributed to the given fund, same as balance updates.
func (s *State) RecalcPendingWithdrawals(exchangeName, fund string) {
	pending := make(map[entity.Currency]decimal.Decimal)
	for _, t := range s.Transfers {
		if t.Exchange != exchangeName || t.Direction != entity.TransferWithdrawal {
			continue
		}
		if t.Status != entity.TransferStatusPending {
			continue
		}
		pending[t.Coin] = pending[t.Coin].Add(t.Amount)
	}
	for cur, b := range s.Balances {
		if cur.Exchange != exchangeName {
			continue
		}
		b.Fund(fund).PendingWithdraw = pending[cur]
	}
}

// ReviewHolds re-evaluates armed hold predicates across every balance.
// Called after each balance refresh mutation.
func (s *State) ReviewHolds() int {
	released := 0
	for _, b := range s.Balances {
		released += b.ReviewHolds()
	}
	return released
}
