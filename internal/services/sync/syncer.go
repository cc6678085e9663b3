// Package sync runs one poll state machine per exchange. The worker is the
// only goroutine talking to its exchange (nonce and ordering requirements
// forbid concurrent calls to one venue), reconciles the untrusted replies,
// and ships results to the ledger as mutation closures. Categories refresh in
// a fixed order: pairs, market data, balances, transfers, positions. Open
// orders and trade history are always fetched together so a fill is never
// observed without its history entry.
package sync

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/vadiminshakov/looper/internal/entity"
	"github.com/vadiminshakov/looper/internal/exchange"
	"github.com/vadiminshakov/looper/internal/ledger"
	"github.com/vadiminshakov/looper/pkg/retrier"
	"github.com/vadiminshakov/looper/pkg/throttle"
)

// Status is the externally visible condition of one exchange.
type Status int32

const (
	StatusOffline Status = iota
	StatusPublicOnly
	StatusOnline
)

func (s Status) String() string {
	switch s {
	case StatusPublicOnly:
		return "public_only"
	case StatusOnline:
		return "online"
	default:
		return "offline"
	}
}

// Config carries the externally supplied, immutable-during-a-session sync
// parameters of one exchange.
type Config struct {
	TickPeriod       time.Duration
	MarketDataPeriod time.Duration
	BalancePeriod    time.Duration
	TransfersPeriod  time.Duration
	PositionsPeriod  time.Duration

	DepthLimit        int
	PublicOnly        bool
	Fee               decimal.Decimal
	Fund              string
	Pairs             []string // tracked pairs as BASE_QUOTE
	TransfersLookback time.Duration
	PositionsLookback time.Duration
}

// Syncer mirrors one exchange into the ledger.
type Syncer struct {
	name     string
	adapter  exchange.Adapter
	throttle *throttle.Throttle
	ledger   *ledger.Ledger
	retry    *retrier.Retrier
	logger   *zap.Logger
	cfg      Config

	flags      *flags
	enabled    atomic.Bool
	publicOnly atomic.Bool
	status     atomic.Int32
	onStatus   func(Status)

	// worker-private timing and progress; touched only by the poll goroutine
	pairsReady         bool
	trackedSymbols     []string
	lastMarketData     time.Time
	lastBalances       time.Time
	lastTransfers      time.Time
	lastPositions      time.Time
	transfersCoveredTo time.Time
	positionsCoveredTo time.Time

	errLogged [catCount]bool
}

func New(adapter exchange.Adapter, lgr *ledger.Ledger, thr *throttle.Throttle, cfg Config, logger *zap.Logger) *Syncer {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.TransfersLookback == 0 {
		cfg.TransfersLookback = 7 * 24 * time.Hour
	}
	if cfg.PositionsLookback == 0 {
		cfg.PositionsLookback = 24 * time.Hour
	}
	s := &Syncer{
		name:     adapter.Name(),
		adapter:  adapter,
		throttle: thr,
		ledger:   lgr,
		retry:    retrier.New(retrier.WithMaxRetries(2), retrier.WithInitialInterval(time.Second)),
		logger:   logger.With(zap.String("exchange", adapter.Name())),
		cfg:      cfg,
		flags:    newFlags(),
	}
	s.publicOnly.Store(cfg.PublicOnly)
	return s
}

// Dirty-flag setters and the enable toggle are the only external control
// surface of the sync state machine.

func (s *Syncer) RequestPairsUpdate()      { s.flags.set(catPairs) }
func (s *Syncer) RequestMarketDataUpdate() { s.flags.set(catMarketData) }
func (s *Syncer) RequestBalanceUpdate()    { s.flags.set(catBalances) }
func (s *Syncer) RequestTransfersUpdate()  { s.flags.set(catTransfers) }
func (s *Syncer) RequestPositionUpdate()   { s.flags.set(catPositions) }

// Enable starts polling on the next wakeup.
func (s *Syncer) Enable() {
	s.enabled.Store(true)
	s.flags.notify()
}

// Disable stops polling after the current cycle.
func (s *Syncer) Disable() {
	s.enabled.Store(false)
	s.flags.notify()
	s.setStatus(StatusOffline)
}

func (s *Syncer) Name() string { return s.name }

// PublicOnly reports whether private API categories are skipped, either by
// configuration or after a credential failure degraded the exchange.
func (s *Syncer) PublicOnly() bool { return s.publicOnly.Load() }

func (s *Syncer) Status() Status { return Status(s.status.Load()) }

// OnStatusChange installs the status-changed notification callback. Must be
// set before Run.
func (s *Syncer) OnStatusChange(fn func(Status)) { s.onStatus = fn }

// Run is the dedicated poll worker: sequential within the exchange,
// concurrent across exchanges. It exits only on context cancellation; a
// failed cycle never terminates the loop.
func (s *Syncer) Run(ctx context.Context) {
	s.logger.Info("sync worker started", zap.Duration("tick", s.cfg.TickPeriod))
	defer s.logger.Info("sync worker stopped")

	ticker := time.NewTicker(s.cfg.TickPeriod)
	defer ticker.Stop()

	for {
		if s.enabled.Load() {
			if err := s.cycle(ctx); err != nil {
				// cancellation is a clean early exit, not an error
				if ctx.Err() != nil {
					return
				}
			}
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		case <-s.flags.wake:
		}
	}
}

// cycle runs one poll iteration in the fixed category order. Only
// cancellation is returned; every other failure is classified and absorbed.
func (s *Syncer) cycle(ctx context.Context) error {
	cyclesTotal.WithLabelValues(s.name).Inc()

	if s.flags.take(catPairs) || !s.pairsReady {
		if err := s.guard(ctx, catPairs, s.syncPairs); err != nil {
			return err
		}
	}
	if !s.pairsReady {
		return nil
	}

	if s.flags.take(catMarketData) || s.due(s.lastMarketData, s.cfg.MarketDataPeriod) {
		if err := s.guard(ctx, catMarketData, s.syncMarketData); err != nil {
			return err
		}
	}

	if !s.publicOnly.Load() {
		if s.flags.take(catBalances) || s.due(s.lastBalances, s.cfg.BalancePeriod) {
			if err := s.guard(ctx, catBalances, s.syncBalances); err != nil {
				return err
			}
		}
		if s.flags.take(catTransfers) || s.due(s.lastTransfers, s.cfg.TransfersPeriod) {
			if err := s.guard(ctx, catTransfers, s.syncTransfers); err != nil {
				return err
			}
		}
		if s.flags.take(catPositions) || s.due(s.lastPositions, s.cfg.PositionsPeriod) {
			if err := s.guard(ctx, catPositions, s.syncPositions); err != nil {
				return err
			}
		}
	}

	if s.Status() == StatusOffline {
		if s.publicOnly.Load() {
			s.setStatus(StatusPublicOnly)
		} else {
			s.setStatus(StatusOnline)
		}
	}
	return nil
}

func (s *Syncer) due(last time.Time, period time.Duration) bool {
	return time.Since(last) >= period
}

// guard classifies a category failure: cancellation propagates silently,
// access denial degrades the exchange to public-only, everything else is
// logged once per failure streak and absorbed.
func (s *Syncer) guard(ctx context.Context, cat category, fn func(context.Context) error) error {
	err := fn(ctx)
	if err == nil {
		s.errLogged[cat] = false
		categorySyncs.WithLabelValues(s.name, cat.String()).Inc()
		return nil
	}

	class := exchange.Classify(err)
	fetchErrors.WithLabelValues(s.name, class.String()).Inc()

	switch class {
	case exchange.ClassCancelled:
		return err
	case exchange.ClassAccessDenied:
		s.degradeToPublicOnly(err)
		return nil
	default:
		if !s.errLogged[cat] {
			s.errLogged[cat] = true
			s.logger.Warn("sync category failed",
				zap.String("category", cat.String()),
				zap.String("class", class.String()),
				zap.Error(err))
		}
		return nil
	}
}

func (s *Syncer) degradeToPublicOnly(err error) {
	if s.publicOnly.Swap(true) {
		return
	}
	s.logger.Error("credentials rejected, degrading to public API only", zap.Error(err))
	s.setStatus(StatusPublicOnly)
}

func (s *Syncer) setStatus(st Status) {
	if Status(s.status.Swap(int32(st))) == st {
		return
	}
	s.logger.Info("exchange status changed", zap.String("status", st.String()))
	if s.onStatus != nil {
		s.onStatus(st)
	}
}

// fetch wraps one adapter call with the rate throttle and the transient-only
// retry policy.
func fetch[T any](ctx context.Context, s *Syncer, weight int, call func(context.Context) (T, error)) (T, error) {
	return retrier.DoWithData(s.retry, ctx, func(ctx context.Context) (T, error) {
		var zero T
		if err := s.throttle.WaitWeight(ctx, weight); err != nil {
			return zero, err
		}
		out, err := call(ctx)
		if err != nil && exchange.Classify(err) != exchange.ClassTransient {
			return zero, retrier.Permanent(err)
		}
		return out, err
	})
}

func (s *Syncer) syncPairs(ctx context.Context) error {
	infos, err := fetch(ctx, s, 10, s.adapter.Pairs)
	if err != nil {
		return err
	}

	wanted := make(map[string]struct{}, len(s.cfg.Pairs))
	for _, p := range s.cfg.Pairs {
		wanted[p] = struct{}{}
	}

	var tracked []exchange.PairInfo
	for _, info := range infos {
		if _, ok := wanted[info.Base+"_"+info.Quote]; ok {
			tracked = append(tracked, info)
		}
	}
	if len(tracked) < len(wanted) {
		s.logger.Warn("some configured pairs are not tradable",
			zap.Int("configured", len(wanted)),
			zap.Int("found", len(tracked)))
	}

	symbols := make([]string, 0, len(tracked))
	for _, info := range tracked {
		symbols = append(symbols, info.Symbol)
	}

	name, fee := s.name, s.cfg.Fee
	s.ledger.Enqueue(func(st *ledger.State) {
		for _, info := range tracked {
			base := st.EnsureCoin(info.Base, name)
			quote := st.EnsureCoin(info.Quote, name)
			st.EnsurePair(base, quote, name, info.Symbol, fee)
		}
	})

	s.trackedSymbols = symbols
	s.pairsReady = true
	s.logger.Info("pairs synced", zap.Int("tracked", len(tracked)))
	return nil
}

func (s *Syncer) syncMarketData(ctx context.Context) error {
	type pairDepth struct {
		symbol string
		depth  *exchange.Depth
	}

	depths := make([]pairDepth, 0, len(s.trackedSymbols))
	for _, symbol := range s.trackedSymbols {
		sym := symbol
		depth, err := fetch(ctx, s, 1, func(ctx context.Context) (*exchange.Depth, error) {
			return s.adapter.Depth(ctx, sym, s.cfg.DepthLimit)
		})
		if err != nil {
			if exchange.Classify(err) == exchange.ClassCancelled {
				return err
			}
			// keep the book the next snapshot will overwrite anyway
			s.logger.Debug("depth fetch failed", zap.String("symbol", sym), zap.Error(err))
			continue
		}
		depths = append(depths, pairDepth{symbol: sym, depth: depth})
	}

	now := time.Now()
	name := s.name
	logger := s.logger
	s.ledger.Enqueue(func(st *ledger.State) {
		for _, pd := range depths {
			pair := st.PairBySymbol(name, pd.symbol)
			if pair == nil {
				continue
			}
			if err := pair.ReplaceBooks(pd.depth.Bids, pd.depth.Asks, now); err != nil {
				logger.Error("order book rejected", zap.String("symbol", pd.symbol), zap.Error(err))
			}
		}
	})

	s.lastMarketData = now
	return nil
}

func (s *Syncer) syncBalances(ctx context.Context) error {
	// timestamp before the call: a reply that raced a newer refresh must lose
	updateTime := time.Now()

	balances, err := fetch(ctx, s, 10, s.adapter.Balances)
	if err != nil {
		return err
	}

	name, fund := s.name, s.cfg.Fund
	s.ledger.Enqueue(func(st *ledger.State) {
		for _, b := range balances {
			st.EnsureCoin(b.Coin, name)
			cur := entity.Currency{Symbol: b.Coin, Exchange: name}
			st.Balance(cur).AssignFundBalance(fund, b.Total, b.Held, updateTime)
		}
		st.ReviewHolds()
	})

	s.lastBalances = time.Now()
	return nil
}

func (s *Syncer) syncTransfers(ctx context.Context) error {
	begin := s.transfersCoveredTo
	if begin.IsZero() {
		begin = time.Now().Add(-s.cfg.TransfersLookback)
	}
	end := time.Now()

	transfers, err := fetch(ctx, s, 5, func(ctx context.Context) ([]exchange.TransferData, error) {
		return s.adapter.Transfers(ctx, begin, end)
	})
	if err != nil {
		return err
	}

	name, fund := s.name, s.cfg.Fund
	s.ledger.Enqueue(func(st *ledger.State) {
		for _, t := range transfers {
			st.UpsertTransfer(name, t)
		}
		st.RecalcPendingWithdrawals(name, fund)
	})

	s.transfersCoveredTo = end
	s.lastTransfers = time.Now()
	return nil
}

// syncPositions fetches open orders and trade history in one pass. The query
// start is captured before the first request: orders created after it are
// never removed by this snapshot, and the next history window starts where
// this one ended.
func (s *Syncer) syncPositions(ctx context.Context) error {
	queryStart := time.Now()

	orders, err := fetch(ctx, s, 5, s.adapter.OpenOrders)
	if err != nil {
		return err
	}

	histBegin := s.positionsCoveredTo
	if histBegin.IsZero() {
		histBegin = time.Now().Add(-s.cfg.PositionsLookback)
	}

	var fills []exchange.Fill
	for _, symbol := range s.trackedSymbols {
		sym := symbol
		part, err := fetch(ctx, s, 5, func(ctx context.Context) ([]exchange.Fill, error) {
			return s.adapter.TradeHistory(ctx, sym, histBegin, queryStart)
		})
		if err != nil {
			// orders and history go together: abort the whole category so a
			// fill is never observed without its history entry
			return err
		}
		fills = append(fills, part...)
	}

	name := s.name
	s.ledger.Enqueue(func(st *ledger.State) {
		seen := make(map[string]struct{}, len(orders))
		for _, o := range orders {
			seen[o.ID] = struct{}{}
			st.UpsertOrder(name, o)
		}
		st.RemoveStaleOrders(name, seen, queryStart)

		for _, f := range fills {
			st.MergeFill(name, f)
		}
		st.ReviewHolds()
	})

	s.positionsCoveredTo = queryStart
	s.lastPositions = time.Now()
	return nil
}
