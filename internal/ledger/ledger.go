// Package ledger owns the shared in-memory trading state: coins, pairs,
// balances, orders, history and transfers mirrored from every exchange.
// All writes travel as mutation closures through a queue drained by exactly
// one goroutine, so the collections never need locks and cross-worker writes
// serialize in enqueue order.
package ledger

import (
	"context"

	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// ErrStopped is returned by Do once the owner goroutine has exited.
var ErrStopped = errors.New("ledger stopped")

// Mutation is a side-effect-only closure applied to the state by the owner
// goroutine. Mutations must not panic and must not retain the *State for use
// outside the owner goroutine; closures that outlive the call, such as hold
// predicates, run only inside later mutations.
type Mutation func(s *State)

// Ledger is the single-writer host of the shared state.
type Ledger struct {
	queue   chan Mutation
	state   *State
	stopped chan struct{}
	logger  *zap.Logger
}

func New(fills FillStore, logger *zap.Logger) *Ledger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Ledger{
		queue:   make(chan Mutation, 1024),
		state:   NewState(fills, logger),
		stopped: make(chan struct{}),
		logger:  logger,
	}
}

// Enqueue schedules a mutation for the owner goroutine. Safe to call from
// any goroutine; after shutdown the mutation is discarded instead of
// blocking the caller.
func (l *Ledger) Enqueue(m Mutation) {
	select {
	case l.queue <- m:
		queueDepth.Set(float64(len(l.queue)))
	case <-l.stopped:
	}
}

// Do runs fn on the owner goroutine and waits for it to finish. This is how
// readers outside the owner context get a consistent view, and how the
// executor takes holds synchronously before a network call.
func (l *Ledger) Do(ctx context.Context, fn Mutation) error {
	done := make(chan struct{})
	wrapped := func(s *State) {
		defer close(done)
		fn(s)
	}

	select {
	case l.queue <- wrapped:
	case <-l.stopped:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case <-done:
		return nil
	case <-l.stopped:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run drains the queue until the context is cancelled, then unblocks any
// producer still waiting on a full queue. It is the only goroutine that ever
// touches the state.
func (l *Ledger) Run(ctx context.Context) {
	l.logger.Info("ledger started")
	defer close(l.stopped)
	for {
		select {
		case <-ctx.Done():
			l.logger.Info("ledger stopped")
			return
		case m := <-l.queue:
			m(l.state)
			mutationsApplied.Inc()
			queueDepth.Set(float64(len(l.queue)))
		}
	}
}
