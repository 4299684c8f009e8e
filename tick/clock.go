package tick

import (
	"fmt"
	"sync"
	"time"

	"github.com/tnicklin/metronome/clock"
)

// Logger is the subset of logger.Logger a clock reports transitions to.
type Logger interface {
	DebugW(msg string, keysAndValues ...any)
	WarnW(msg string, keysAndValues ...any)
}

// Option configures a clock at construction.
type Option func(*shared)

// WithSource sets the time source the clock measures against.
// Defaults to clock.System().
func WithSource(src clock.Clock) Option {
	return func(s *shared) { s.source = src }
}

// WithLogger sets the logger state transitions are reported to.
func WithLogger(l Logger) Option {
	return func(s *shared) { s.logger = l }
}

// shared is the single allocation every alias of a clock points at.
type shared struct {
	mu sync.RWMutex
	st state

	source clock.Clock
	logger Logger
}

func newShared(opts []Option) *shared {
	s := &shared{}
	for _, o := range opts {
		o(s)
	}
	if s.source == nil {
		s.source = clock.System()
	}
	return s
}

func (s *shared) log() Logger {
	if s == nil || s.logger == nil {
		return nopLogger{}
	}
	return s.logger
}

type nopLogger struct{}

func (nopLogger) DebugW(_ string, _ ...any) {}
func (nopLogger) WarnW(_ string, _ ...any)  {}

// load returns a copy of the state and a reading of the time source taken
// under the read lock. A nil shared reads as a paused clock at tick zero.
func (s *shared) load() (state, time.Time) {
	if s == nil {
		return state{tickRateMS: DefaultTickRateMS}, time.Time{}
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.st, s.source.Now()
}

func (s *shared) update(fn func(st *state, now time.Time) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(&s.st, s.source.Now())
}

// Clock is a handle to a shared tick clock. Clones alias the same state, so
// pausing, resuming or re-rating through any handle is observed by all of
// them. A Clock is safe for concurrent use.
//
// The zero Clock reads as a paused clock at DefaultTickRateMS. It gets its
// own state on the first call to a mutator, Clone or ReadOnly, so it must
// not be shared between goroutines before then.
type Clock struct {
	handle
}

var (
	_ Controller = (*Clock)(nil)
	_ Reader     = (*Clock)(nil)
)

// Controller is the full set of operations on a clock.
type Controller interface {
	Reader
	Pause()
	Unpause() error
	Restart()
	RestartPaused()
	ChangeTickRate(ms int)
}

// New returns a running clock at tick zero. Tick rates below 1ms are
// treated as 1ms.
func New(tickRateMS int, opts ...Option) *Clock {
	return newClock(clampRate(tickRateMS), 0, false, opts)
}

// NewPaused returns a paused clock at tick zero.
func NewPaused(tickRateMS int, opts ...Option) *Clock {
	return newClock(clampRate(tickRateMS), 0, true, opts)
}

// Default returns a running clock with a tick rate of DefaultTickRateMS.
func Default(opts ...Option) *Clock {
	return New(DefaultTickRateMS, opts...)
}

// FromStartingTick returns a clock on which n ticks have already elapsed.
func FromStartingTick(tickRateMS int, n uint64, startPaused bool, opts ...Option) *Clock {
	rate := clampRate(tickRateMS)
	return newClock(rate, state{tickRateMS: rate}.tickOffset(n), startPaused, opts)
}

// FromStartingTime returns a clock on which d has already elapsed.
// Negative durations are treated as zero.
func FromStartingTime(tickRateMS int, d time.Duration, startPaused bool, opts ...Option) *Clock {
	if d < 0 {
		d = 0
	}
	return newClock(clampRate(tickRateMS), d, startPaused, opts)
}

// newClock never fails: if the elapsed duration cannot be anchored on the
// time source, the clock is returned paused with that duration intact.
func newClock(rate uint32, elapsed time.Duration, paused bool, opts []Option) *Clock {
	s := newShared(opts)
	s.st = state{tickRateMS: rate, accumulated: elapsed}
	if !paused {
		if err := s.st.unpause(s.source.Now()); err != nil {
			s.log().WarnW("clock created paused", "elapsed", elapsed, "error", err)
		}
	}
	return &Clock{handle{s: s}}
}

// ensure gives a zero Clock its own state.
func (c *Clock) ensure() *shared {
	if c.s == nil {
		c.s = newShared(nil)
		c.s.st = state{tickRateMS: DefaultTickRateMS}
	}
	return c.s
}

// Clone returns another handle to the same clock.
func (c *Clock) Clone() *Clock {
	c.ensure()
	return &Clock{c.handle}
}

// ReadOnly returns a view of the same clock that cannot pause, resume,
// restart or re-rate it.
func (c *Clock) ReadOnly() ReadOnly {
	c.ensure()
	return ReadOnly{c.handle}
}

// Pause freezes elapsed time. Pausing a paused clock does nothing.
func (c *Clock) Pause() {
	_ = c.ensure().update(func(st *state, now time.Time) error {
		if st.isPaused() {
			return nil
		}
		st.pause(now)
		c.s.log().DebugW("clock paused", "elapsed", st.accumulated)
		return nil
	})
}

// Unpause resumes a paused clock with its elapsed time preserved. It returns
// an error wrapping ErrStart, and leaves the clock paused, if the time source
// cannot represent the resulting reference point.
func (c *Clock) Unpause() error {
	return c.ensure().update(func(st *state, now time.Time) error {
		if !st.isPaused() {
			return nil
		}
		elapsed := st.accumulated
		if err := st.unpause(now); err != nil {
			c.s.log().WarnW("clock unpause failed", "elapsed", elapsed, "error", err)
			return err
		}
		c.s.log().DebugW("clock unpaused", "elapsed", elapsed)
		return nil
	})
}

// Restart discards elapsed time and runs the clock from tick zero.
func (c *Clock) Restart() {
	_ = c.ensure().update(func(st *state, now time.Time) error {
		st.restart(now)
		c.s.log().DebugW("clock restarted")
		return nil
	})
}

// RestartPaused discards elapsed time and leaves the clock paused at tick zero.
func (c *Clock) RestartPaused() {
	_ = c.ensure().update(func(st *state, _ time.Time) error {
		st.restartPaused()
		c.s.log().DebugW("clock restarted paused")
		return nil
	})
}

// ChangeTickRate sets the tick duration. Elapsed time is kept, so the
// current tick number changes with the rate.
func (c *Clock) ChangeTickRate(ms int) {
	_ = c.ensure().update(func(st *state, _ time.Time) error {
		old := st.tickRateMS
		st.changeTickRate(ms)
		c.s.log().DebugW("clock tick rate changed", "from_ms", old, "to_ms", st.tickRateMS)
		return nil
	})
}

// handle carries the operations shared by Clock and ReadOnly.
type handle struct {
	s *shared
}

func (h handle) IsPaused() bool {
	st, _ := h.s.load()
	return st.isPaused()
}

// TickRate returns the duration of one tick in milliseconds.
func (h handle) TickRate() uint32 {
	st, _ := h.s.load()
	return st.tickRateMS
}

// TicksSinceStarted returns the number of whole ticks elapsed.
func (h handle) TicksSinceStarted() (uint64, error) {
	st, now := h.s.load()
	elapsed, err := st.runningElapsed(now)
	if err != nil {
		return 0, err
	}
	return st.ticks(elapsed), nil
}

// TimeSinceStarted returns the running time elapsed since the clock started.
func (h handle) TimeSinceStarted() (time.Duration, error) {
	st, now := h.s.load()
	return st.runningElapsed(now)
}

// TimeSinceLastTick returns how far into the current tick the clock is.
func (h handle) TimeSinceLastTick() (time.Duration, error) {
	st, now := h.s.load()
	elapsed, err := st.runningElapsed(now)
	if err != nil {
		return 0, err
	}
	return st.sinceLastTick(elapsed), nil
}

// TimeUntilNextTick returns how long until the next tick boundary.
func (h handle) TimeUntilNextTick() (time.Duration, error) {
	st, now := h.s.load()
	elapsed, err := st.runningElapsed(now)
	if err != nil {
		return 0, err
	}
	return st.untilNextTick(elapsed), nil
}

// TimeUntilTick returns how long until tick n occurs.
func (h handle) TimeUntilTick(n uint64) (time.Duration, error) {
	st, now := h.s.load()
	return remaining(st, now, absolute(n))
}

// Elapsed returns the running time elapsed, including while paused, in which
// case the duration frozen at the moment of pausing is returned.
func (h handle) Elapsed() (time.Duration, error) {
	st, now := h.s.load()
	return st.elapsed(now)
}

// Equal reports whether other is a handle to a clock in the same state: the
// same tick rate and the same reference point or frozen duration. Handles to
// distinct clocks compare equal only if their states happen to match.
func (h handle) Equal(other Reader) bool {
	o, ok := other.(interface{ sharedState() *shared })
	if !ok {
		return false
	}
	a, _ := h.s.load()
	b, _ := o.sharedState().load()
	return a.tickRateMS == b.tickRateMS &&
		a.running == b.running &&
		a.reference.Equal(b.reference) &&
		a.accumulated == b.accumulated
}

func (h handle) sharedState() *shared {
	return h.s
}

func (h handle) String() string {
	st, now := h.s.load()
	elapsed, err := st.elapsed(now)
	if err != nil {
		return fmt.Sprintf("tick.Clock(%v)", err)
	}
	if st.isPaused() {
		return fmt.Sprintf("%v (paused, %dms/tick)", elapsed, st.tickRateMS)
	}
	return fmt.Sprintf("%v (%dms/tick)", elapsed, st.tickRateMS)
}
