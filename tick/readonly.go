package tick

import (
	"context"
	"time"
)

// Reader is the set of operations that observe a clock without changing it.
// Both *Clock and ReadOnly implement it.
type Reader interface {
	IsPaused() bool
	TickRate() uint32
	TicksSinceStarted() (uint64, error)
	TimeSinceStarted() (time.Duration, error)
	TimeSinceLastTick() (time.Duration, error)
	TimeUntilNextTick() (time.Duration, error)
	TimeUntilTick(n uint64) (time.Duration, error)
	Elapsed() (time.Duration, error)
	Snapshot() (Snapshot, error)

	WaitUntil(n uint64) error
	WaitForTick() error
	WaitForTicks(n uint64) error
	WaitUntilContext(ctx context.Context, n uint64) error
	WaitForTickContext(ctx context.Context) error
	WaitForTicksContext(ctx context.Context, n uint64) error
	Until(n uint64) (<-chan time.Time, error)
}

// ReadOnly is a handle that can query and wait on a clock but not control
// it. Changes made through a *Clock sharing its state are visible through it.
// Copies of a ReadOnly alias the same clock. The zero ReadOnly reads as a
// paused clock at DefaultTickRateMS.
type ReadOnly struct {
	handle
}

var _ Reader = ReadOnly{}
