package tick

import (
	"context"
	"time"
)

// WaitUntil blocks until tick n has elapsed since the clock started.
//
// The wait is computed against the absolute tick, so repeated waits do not
// accumulate scheduling delay. The lock is released before sleeping; a
// pause, restart or rate change made by another handle while waiting does
// not shorten or extend the sleep.
func (h handle) WaitUntil(n uint64) error {
	d, err := h.waitDuration(absolute(n))
	if err != nil {
		return err
	}
	h.s.source.Sleep(d)
	return nil
}

// WaitForTick blocks until the next tick boundary.
func (h handle) WaitForTick() error {
	return h.WaitForTicks(1)
}

// WaitForTicks blocks until n more tick boundaries have passed. A partly
// elapsed current tick counts towards the first one.
func (h handle) WaitForTicks(n uint64) error {
	d, err := h.waitDuration(relative(n))
	if err != nil {
		return err
	}
	h.s.source.Sleep(d)
	return nil
}

// WaitUntilContext is WaitUntil that returns ctx.Err() if ctx is done first.
func (h handle) WaitUntilContext(ctx context.Context, n uint64) error {
	return h.waitContext(ctx, absolute(n))
}

// WaitForTickContext is WaitForTick that returns ctx.Err() if ctx is done first.
func (h handle) WaitForTickContext(ctx context.Context) error {
	return h.waitContext(ctx, relative(1))
}

// WaitForTicksContext is WaitForTicks that returns ctx.Err() if ctx is done first.
func (h handle) WaitForTicksContext(ctx context.Context, n uint64) error {
	return h.waitContext(ctx, relative(n))
}

// Until returns a channel that receives once tick n has elapsed, for callers
// selecting over other events.
func (h handle) Until(n uint64) (<-chan time.Time, error) {
	d, err := h.waitDuration(absolute(n))
	if err != nil {
		return nil, err
	}
	return h.s.source.After(d), nil
}

func (h handle) waitDuration(target func(uint64) uint64) (time.Duration, error) {
	st, now := h.s.load()
	return remaining(st, now, target)
}

func (h handle) waitContext(ctx context.Context, target func(uint64) uint64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	d, err := h.waitDuration(target)
	if err != nil {
		return err
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-h.s.source.After(d):
		return nil
	}
}
