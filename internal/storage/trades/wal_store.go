// Package trades persists newly observed fills in an append-only WAL. The
// store is only ever asked two things: remember this fill, and have you seen
// this trade id. Reconciliation logic never reads it back beyond that.
package trades

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/vadiminshakov/gowal"
)

const (
	DefaultDir   = "./wal/trades"
	segmentLimit = 1000
	maxSegments  = 100

	tradeKeyPrefix = "trade_"
)

// Record is one persisted fill.
type Record struct {
	TradeID         string          `json:"trade_id"`
	OrderID         string          `json:"order_id"`
	Exchange        string          `json:"exchange"`
	Pair            string          `json:"pair"`
	Side            string          `json:"side"`
	Price           decimal.Decimal `json:"price"`
	AmountBase      decimal.Decimal `json:"amount_base"`
	CommissionQuote decimal.Decimal `json:"commission_quote"`
	Time            time.Time       `json:"time"`
}

// WALStore is a WAL-backed append-only fill ledger with trade-id dedup.
type WALStore struct {
	wal  *gowal.Wal
	mu   sync.RWMutex
	seen map[string]struct{}
}

// NewWALStore opens the WAL and rebuilds the seen-trade index from it.
func NewWALStore(dir string) (*WALStore, error) {
	if dir == "" {
		dir = DefaultDir
	}

	cfg := gowal.Config{
		Dir:              dir,
		Prefix:           "trade_",
		SegmentThreshold: segmentLimit,
		MaxSegments:      maxSegments,
		IsInSyncDiskMode: true,
	}

	wal, err := gowal.NewWAL(cfg)
	if err != nil {
		return nil, errors.Wrap(err, "init trade WAL")
	}

	s := &WALStore{wal: wal, seen: make(map[string]struct{})}
	for idx := uint64(1); idx <= wal.CurrentIndex(); idx++ {
		key, payload, err := wal.Get(idx)
		if err != nil {
			continue
		}
		if len(key) <= len(tradeKeyPrefix) {
			continue
		}
		var rec Record
		if err := json.Unmarshal(payload, &rec); err != nil {
			continue
		}
		s.seen[rec.TradeID] = struct{}{}
	}
	return s, nil
}

// Upsert persists the fill unless its trade id was seen before. Re-sending a
// known trade id is a no-op.
func (s *WALStore) Upsert(rec Record) error {
	if s == nil || s.wal == nil {
		return errors.New("trade store is not initialized")
	}
	if rec.TradeID == "" {
		return errors.New("trade id is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.seen[rec.TradeID]; ok {
		return nil
	}

	payload, err := json.Marshal(rec)
	if err != nil {
		return errors.Wrap(err, "marshal trade record")
	}

	nextIndex := s.wal.CurrentIndex() + 1
	if err := s.wal.Write(nextIndex, tradeKeyPrefix+rec.TradeID, payload); err != nil {
		return errors.Wrap(err, "write trade record")
	}
	s.seen[rec.TradeID] = struct{}{}
	return nil
}

// ContainsTradeID reports whether the trade id was persisted before.
func (s *WALStore) ContainsTradeID(id string) bool {
	if s == nil || s.wal == nil {
		return false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.seen[id]
	return ok
}

// Close closes the underlying WAL.
func (s *WALStore) Close() error {
	if s == nil || s.wal == nil {
		return errors.New("trade store is not initialized")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.wal.Close()
}
