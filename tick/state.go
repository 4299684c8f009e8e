package tick

import (
	"fmt"
	"math"
	"time"
)

// DefaultTickRateMS is the tick rate used by Default.
const DefaultTickRateMS = 10

// minReference is the earliest reference point a running clock may hold.
// A reference at or before it is indistinguishable from an unset time.
var minReference = time.Time{}

// state is the value shared by every handle to one clock. Exactly one of
// reference (running) or accumulated (paused) is meaningful at a time.
type state struct {
	tickRateMS  uint32
	running     bool
	reference   time.Time
	accumulated time.Duration
}

func clampRate(ms int) uint32 {
	if ms < 1 {
		return 1
	}
	if int64(ms) > math.MaxUint32 {
		return math.MaxUint32
	}
	return uint32(ms)
}

func (s state) period() time.Duration {
	return time.Duration(s.tickRateMS) * time.Millisecond
}

func (s state) isPaused() bool {
	return !s.running
}

func (s *state) pause(now time.Time) {
	if !s.running {
		return
	}
	elapsed := now.Sub(s.reference)
	if elapsed < 0 {
		elapsed = 0
	}
	*s = state{tickRateMS: s.tickRateMS, accumulated: elapsed}
}

// unpause re-anchors the reference point so the accumulated duration has
// already elapsed at now. On failure the state is left paused and intact.
func (s *state) unpause(now time.Time) error {
	if s.running {
		return nil
	}
	ref := now.Add(-s.accumulated)
	if !ref.After(minReference) || now.Sub(ref) != s.accumulated {
		return fmt.Errorf("%w: %v before %v is not representable", ErrStart, s.accumulated, now)
	}
	*s = state{tickRateMS: s.tickRateMS, running: true, reference: ref}
	return nil
}

func (s *state) restart(now time.Time) {
	*s = state{tickRateMS: s.tickRateMS, running: true, reference: now}
}

func (s *state) restartPaused() {
	*s = state{tickRateMS: s.tickRateMS}
}

func (s *state) changeTickRate(ms int) {
	s.tickRateMS = clampRate(ms)
}

// elapsed is the running time as of now, or the frozen duration if paused.
func (s state) elapsed(now time.Time) (time.Duration, error) {
	if !s.running {
		return s.accumulated, nil
	}
	d := now.Sub(s.reference)
	if d < 0 {
		return 0, fmt.Errorf("%w: reading is %v behind the reference point", ErrTimeReversed, -d)
	}
	return d, nil
}

// runningElapsed is elapsed for queries that refuse to observe a paused clock.
func (s state) runningElapsed(now time.Time) (time.Duration, error) {
	if !s.running {
		return 0, ErrPaused
	}
	return s.elapsed(now)
}

func (s state) ticks(elapsed time.Duration) uint64 {
	return uint64(elapsed.Milliseconds()) / uint64(s.tickRateMS)
}

func (s state) sinceLastTick(elapsed time.Duration) time.Duration {
	return elapsed % s.period()
}

func (s state) untilNextTick(elapsed time.Duration) time.Duration {
	d := s.period() - s.sinceLastTick(elapsed)
	if d < 0 {
		return 0
	}
	return d
}

// tickOffset is the time from the reference point at which tick n occurs,
// saturating at the largest representable duration.
func (s state) tickOffset(n uint64) time.Duration {
	if n > uint64(math.MaxInt64/s.period()) {
		return math.MaxInt64
	}
	return time.Duration(n) * s.period()
}

func (s state) untilTick(elapsed time.Duration, n uint64) (time.Duration, error) {
	if current := s.ticks(elapsed); current >= n {
		return 0, &AlreadyPastError{Target: n, Current: current}
	}
	return s.tickOffset(n) - elapsed, nil
}

// remaining is the drift-free wait computation shared by every wait
// variant: the time left until absolute tick target(current) is reached,
// measured from the reference point rather than from the caller's last
// wake-up. It never mutates the state.
func remaining(s state, now time.Time, target func(current uint64) uint64) (time.Duration, error) {
	elapsed, err := s.runningElapsed(now)
	if err != nil {
		return 0, err
	}
	return s.untilTick(elapsed, target(s.ticks(elapsed)))
}

func absolute(tick uint64) func(uint64) uint64 {
	return func(uint64) uint64 { return tick }
}

func relative(n uint64) func(uint64) uint64 {
	return func(current uint64) uint64 {
		if current > math.MaxUint64-n {
			return math.MaxUint64
		}
		return current + n
	}
}
