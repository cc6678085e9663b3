package throttle

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// fakeClock drives the throttle without sleeping.
type fakeClock struct {
	t time.Time
}

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func TestWaitEnforcesMinInterval(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1000, 0)}
	thr := New(100*time.Millisecond, time.Minute, 0)
	thr.now = clock.now

	require.Equal(t, time.Duration(0), thr.readyIn(clock.now(), 1))
	require.NoError(t, thr.Wait(context.Background()))

	// immediately after a request the full interval remains
	require.Equal(t, 100*time.Millisecond, thr.readyIn(clock.now(), 1))

	clock.advance(40 * time.Millisecond)
	require.Equal(t, 60*time.Millisecond, thr.readyIn(clock.now(), 1))

	clock.advance(60 * time.Millisecond)
	require.Equal(t, time.Duration(0), thr.readyIn(clock.now(), 1))
}

func TestWaitWeightEnforcesWindowBudget(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1000, 0)}
	thr := New(0, time.Second, 10)
	thr.now = clock.now

	require.NoError(t, thr.WaitWeight(context.Background(), 6))
	clock.advance(100 * time.Millisecond)
	require.NoError(t, thr.WaitWeight(context.Background(), 4))
	clock.advance(100 * time.Millisecond)

	// budget exhausted: capacity returns when the first stamp leaves the window
	thr.trim(clock.now())
	wait := thr.readyIn(clock.now(), 1)
	require.Equal(t, 800*time.Millisecond, wait)

	clock.advance(800 * time.Millisecond)
	thr.trim(clock.now())
	require.Equal(t, time.Duration(0), thr.readyIn(clock.now(), 6))
	// but the second stamp still blocks anything heavier
	require.True(t, thr.readyIn(clock.now(), 7) > 0)
}

func TestWaitWeightCapsOversizedRequests(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1000, 0)}
	thr := New(0, time.Second, 5)
	thr.now = clock.now

	// weight above the whole budget must still be admissible
	require.NoError(t, thr.WaitWeight(context.Background(), 50))
}

func TestWaitHonorsCancellation(t *testing.T) {
	thr := New(time.Hour, time.Minute, 0)
	require.NoError(t, thr.Wait(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := thr.Wait(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}
