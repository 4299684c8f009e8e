package tick_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/tnicklin/metronome/tick"
)

func TestWaitUntil(t *testing.T) {
	c := tick.New(testTickRate)

	require.NoError(t, c.WaitUntil(5))

	ticks, err := c.TicksSinceStarted()
	require.NoError(t, err)
	assert.Equal(t, uint64(5), ticks)
}

func TestWaitUntil_AlreadyPast(t *testing.T) {
	c := tick.New(testTickRate)
	require.NoError(t, c.WaitForTicks(3))

	err := c.WaitUntil(1)
	require.ErrorIs(t, err, tick.ErrAlreadyPast)

	var past *tick.AlreadyPastError
	require.True(t, errors.As(err, &past))
	assert.Equal(t, uint64(1), past.Target)
	assert.Equal(t, uint64(3), past.Current)
	assert.False(t, c.IsPaused(), "a failed wait does not change the clock")
}

func TestWaitForTick(t *testing.T) {
	c := tick.New(testTickRate)
	require.NoError(t, c.WaitForTick())

	ticks, err := c.TicksSinceStarted()
	require.NoError(t, err)
	assert.Equal(t, uint64(1), ticks)
}

func TestWaitForTicks_Zero(t *testing.T) {
	c := tick.New(testTickRate)
	assert.ErrorIs(t, c.WaitForTicks(0), tick.ErrAlreadyPast)
}

func TestWaitForTicks_Duration(t *testing.T) {
	start := time.Now()
	c := tick.New(testTickRate)

	require.NoError(t, c.WaitForTicks(3))
	elapsed := time.Since(start)

	assert.GreaterOrEqual(t, elapsed, ms(3*testTickRate))
	assert.Less(t, elapsed, ms(4*testTickRate))
}

func TestTimeSinceLastTick(t *testing.T) {
	c := tick.New(testTickRate)
	require.NoError(t, c.WaitForTick())
	time.Sleep(ms(2))

	since, err := c.TimeSinceLastTick()
	require.NoError(t, err)
	assert.GreaterOrEqual(t, since, ms(2))
	assert.Less(t, since, ms(testTickRate))

	until, err := c.TimeUntilNextTick()
	require.NoError(t, err)
	assert.LessOrEqual(t, until, ms(testTickRate-2))
	assert.Greater(t, until, time.Duration(0))
}

func TestTimeSinceStarted(t *testing.T) {
	c := tick.New(testTickRate)
	require.NoError(t, c.WaitUntil(2))

	since, err := c.TimeSinceStarted()
	require.NoError(t, err)
	assert.GreaterOrEqual(t, since, ms(2*testTickRate))
	assert.Less(t, since, ms(3*testTickRate))
}

func TestWaitsDoNotDrift(t *testing.T) {
	c := tick.New(testTickRate)

	for i := 0; i < 10; i++ {
		require.NoError(t, c.WaitForTick())
		// Work done between waits comes out of the next wait, not on top of it.
		time.Sleep(ms(3))
	}

	ticks, err := c.TicksSinceStarted()
	require.NoError(t, err)
	assert.Equal(t, uint64(10), ticks)
}

func TestPauseResumeAcrossClocks(t *testing.T) {
	c := tick.New(testTickRate)
	other := tick.New(testTickRate)

	require.NoError(t, c.WaitForTicks(3))
	c.Pause()
	require.NoError(t, other.WaitForTicks(3))
	require.NoError(t, c.Unpause())

	ticks, err := c.TicksSinceStarted()
	require.NoError(t, err)
	assert.Equal(t, uint64(3), ticks)

	require.NoError(t, c.WaitForTick())
	ticks, err = c.TicksSinceStarted()
	require.NoError(t, err)
	assert.Equal(t, uint64(4), ticks)
}

func TestPausingCloneFailsWaits(t *testing.T) {
	c := tick.New(testTickRate)
	clone := c.Clone()
	clone.Pause()

	assert.ErrorIs(t, c.WaitForTick(), tick.ErrPaused)
}

func TestConcurrentWaitersWakeTogether(t *testing.T) {
	c := tick.New(testTickRate)

	const workers = 8
	var (
		mu    sync.Mutex
		wakes []time.Time
	)
	var g errgroup.Group
	for i := 0; i < workers; i++ {
		var r tick.Reader = c.Clone()
		if i%2 == 0 {
			r = c.ReadOnly()
		}
		g.Go(func() error {
			if err := r.WaitUntil(5); err != nil {
				return err
			}
			mu.Lock()
			wakes = append(wakes, time.Now())
			mu.Unlock()
			return nil
		})
	}
	require.NoError(t, g.Wait())
	require.Len(t, wakes, workers)

	first, last := wakes[0], wakes[0]
	for _, w := range wakes {
		if w.Before(first) {
			first = w
		}
		if w.After(last) {
			last = w
		}
	}
	assert.Less(t, last.Sub(first), ms(testTickRate))
}

func TestConcurrentMutation(t *testing.T) {
	c := tick.New(1)
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < 4; i++ {
		i := i
		h := c.Clone()
		g.Go(func() error {
			for ctx.Err() == nil {
				h.Pause()
				h.ChangeTickRate(1 + i)
				if err := h.Unpause(); err != nil {
					return err
				}
			}
			return nil
		})
	}
	for i := 0; i < 4; i++ {
		r := c.ReadOnly()
		g.Go(func() error {
			for ctx.Err() == nil {
				if _, err := r.TicksSinceStarted(); err != nil && !errors.Is(err, tick.ErrPaused) {
					return err
				}
				_ = r.IsPaused()
				_, _ = r.Snapshot()
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())
}

func TestWaitReleasesLock(t *testing.T) {
	c := tick.New(testTickRate)
	done := make(chan error, 1)
	go func() { done <- c.WaitUntil(30) }()

	time.Sleep(ms(10))
	start := time.Now()
	c.Pause()
	assert.Less(t, time.Since(start), ms(50), "Pause blocked behind a sleeping waiter")

	select {
	case err := <-done:
		require.NoError(t, err, "a wait in progress runs its original duration")
	case <-time.After(2 * time.Second):
		t.Fatal("waiter never woke")
	}
	assert.True(t, c.IsPaused())
}

func TestUntil(t *testing.T) {
	c := tick.New(testTickRate)
	ch, err := c.Until(2)
	require.NoError(t, err)

	select {
	case <-ch:
	case <-time.After(time.Second):
		t.Fatal("Until channel never fired")
	}

	ticks, err := c.TicksSinceStarted()
	require.NoError(t, err)
	assert.Equal(t, uint64(2), ticks)
}

func TestWaitContext(t *testing.T) {
	c := tick.New(testTickRate)
	ctx := context.Background()

	require.NoError(t, c.WaitUntilContext(ctx, 2))
	require.NoError(t, c.WaitForTickContext(ctx))
	require.NoError(t, c.WaitForTicksContext(ctx, 2))

	ticks, err := c.TicksSinceStarted()
	require.NoError(t, err)
	assert.Equal(t, uint64(5), ticks)

	assert.ErrorIs(t, c.WaitUntilContext(ctx, 1), tick.ErrAlreadyPast)
}

func TestWaitContext_Cancelled(t *testing.T) {
	c := tick.New(1000)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, c.WaitForTickContext(ctx), context.Canceled)

	ctx, cancel = context.WithTimeout(context.Background(), ms(20))
	defer cancel()
	start := time.Now()
	assert.ErrorIs(t, c.ReadOnly().WaitForTicksContext(ctx, 3), context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 500*time.Millisecond)
}

func TestWaitContext_Paused(t *testing.T) {
	c := tick.NewPaused(testTickRate)
	assert.ErrorIs(t, c.WaitUntilContext(context.Background(), 1), tick.ErrPaused)
}
