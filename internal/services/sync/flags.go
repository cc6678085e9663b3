package sync

import "sync/atomic"

// category is one refreshable slice of exchange state. Categories are always
// synced in declaration order within a cycle.
type category int

const (
	catPairs category = iota
	catMarketData
	catBalances
	catTransfers
	catPositions
	catCount
)

func (c category) String() string {
	switch c {
	case catPairs:
		return "pairs"
	case catMarketData:
		return "market_data"
	case catBalances:
		return "balances"
	case catTransfers:
		return "transfers"
	case catPositions:
		return "positions"
	default:
		return "unknown"
	}
}

// flags holds the per-category dirty bits. Settable from any goroutine; each
// set also wakes the poll loop so a request never waits out a full tick.
type flags struct {
	dirty [catCount]atomic.Bool
	wake  chan struct{}
}

func newFlags() *flags {
	return &flags{wake: make(chan struct{}, 1)}
}

func (f *flags) set(c category) {
	f.dirty[c].Store(true)
	f.notify()
}

// take consumes the dirty bit.
func (f *flags) take(c category) bool {
	return f.dirty[c].Swap(false)
}

func (f *flags) notify() {
	select {
	case f.wake <- struct{}{}:
	default:
	}
}
