// Package throttle bounds the outbound request rate of one exchange
// credential. It enforces a minimum inter-request interval plus an optional
// weight budget replenished on a rolling window, matching how exchanges
// publish their API limits.
package throttle

import (
	"context"
	"sync"
	"time"
)

type stamp struct {
	at     time.Time
	weight int
}

// Throttle is private to one exchange adapter instance; the exchange worker
// and owner-context requests sharing the same credential go through it.
type Throttle struct {
	mu          sync.Mutex
	minInterval time.Duration
	window      time.Duration
	budget      int // 0 disables the weight budget
	last        time.Time
	history     []stamp

	now func() time.Time // swapped in tests
}

// New creates a throttle. minInterval spaces consecutive requests; budget
// caps the total weight started within any window of the given length.
// A budget of 0 means no weight accounting.
func New(minInterval, window time.Duration, budget int) *Throttle {
	return &Throttle{
		minInterval: minInterval,
		window:      window,
		budget:      budget,
		now:         time.Now,
	}
}

// Wait acquires permission for a weight-1 request.
func (t *Throttle) Wait(ctx context.Context) error {
	return t.WaitWeight(ctx, 1)
}

// WaitWeight blocks until a request of the given weight may start, or until
// the context is cancelled. Requests heavier than the whole budget are capped
// to it so they remain admissible.
func (t *Throttle) WaitWeight(ctx context.Context, weight int) error {
	if weight < 1 {
		weight = 1
	}
	if t.budget > 0 && weight > t.budget {
		weight = t.budget
	}

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		t.mu.Lock()
		now := t.now()
		t.trim(now)

		wait := t.readyIn(now, weight)
		if wait <= 0 {
			t.last = now
			if t.budget > 0 {
				t.history = append(t.history, stamp{at: now, weight: weight})
			}
			t.mu.Unlock()
			return nil
		}
		t.mu.Unlock()

		timer := time.NewTimer(wait)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		}
	}
}

// readyIn reports how long until a request of the given weight may start.
// Called under the lock.
func (t *Throttle) readyIn(now time.Time, weight int) time.Duration {
	var wait time.Duration
	if !t.last.IsZero() {
		if since := now.Sub(t.last); since < t.minInterval {
			wait = t.minInterval - since
		}
	}

	if t.budget > 0 {
		used := 0
		for _, s := range t.history {
			used += s.weight
		}
		if used+weight > t.budget {
			// capacity frees up when the oldest stamps fall out of the window
			need := used + weight - t.budget
			freed := 0
			for _, s := range t.history {
				freed += s.weight
				if freed >= need {
					if until := s.at.Add(t.window).Sub(now); until > wait {
						wait = until
					}
					break
				}
			}
		}
	}

	return wait
}

// trim drops stamps that left the rolling window. Called under the lock.
func (t *Throttle) trim(now time.Time) {
	cut := 0
	for cut < len(t.history) && now.Sub(t.history[cut].at) >= t.window {
		cut++
	}
	if cut > 0 {
		t.history = t.history[cut:]
	}
}
