package tick

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/tnicklin/metronome/codec"
	"gopkg.in/yaml.v3"
)

// Snapshot is the portable form of a clock: its tick rate and the running
// time elapsed when it was taken. It never holds a time source reading,
// which would be meaningless in another process.
type Snapshot struct {
	TickRateMS uint32        `json:"tick_rate_ms" yaml:"tick_rate_ms" cbor:"tick_rate_ms"`
	Elapsed    time.Duration `json:"elapsed_ns" yaml:"elapsed" cbor:"elapsed_ns"`
}

// Validate reports whether s describes a clock.
func (s Snapshot) Validate() error {
	if s.TickRateMS < 1 {
		return fmt.Errorf("%w: tick rate %dms", ErrInvalidSnapshot, s.TickRateMS)
	}
	if s.Elapsed < 0 {
		return fmt.Errorf("%w: negative elapsed time %v", ErrInvalidSnapshot, s.Elapsed)
	}
	return nil
}

// Ticks returns the number of whole ticks elapsed in the snapshot.
func (s Snapshot) Ticks() uint64 {
	if s.TickRateMS < 1 || s.Elapsed < 0 {
		return 0
	}
	return state{tickRateMS: s.TickRateMS}.ticks(s.Elapsed)
}

// Snapshot captures the clock as if it were paused now. A running clock
// keeps running; a paused clock reports its frozen duration unchanged.
func (h handle) Snapshot() (Snapshot, error) {
	st, now := h.s.load()
	elapsed, err := st.elapsed(now)
	if err != nil {
		return Snapshot{}, err
	}
	return Snapshot{TickRateMS: st.tickRateMS, Elapsed: elapsed}, nil
}

// FromSnapshot returns a paused clock holding the snapshot's elapsed time.
// Call Unpause to resume it from where the snapshot was taken.
func FromSnapshot(s Snapshot, opts ...Option) (*Clock, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return newClock(s.TickRateMS, s.Elapsed, true, opts), nil
}

// restore points c at a new paused clock built from s. Handles previously
// aliasing c are left on the old clock. The time source and logger of c, if
// any, carry over.
func (c *Clock) restore(s Snapshot) error {
	if err := s.Validate(); err != nil {
		return err
	}
	var opts []Option
	if c.s != nil {
		opts = append(opts, WithSource(c.s.source), WithLogger(c.s.logger))
	}
	*c = *newClock(s.TickRateMS, s.Elapsed, true, opts)
	return nil
}

func (h handle) MarshalJSON() ([]byte, error) {
	s, err := h.Snapshot()
	if err != nil {
		return nil, err
	}
	return json.Marshal(s)
}

// UnmarshalJSON decodes a snapshot into a paused clock.
func (c *Clock) UnmarshalJSON(data []byte) error {
	var s Snapshot
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	return c.restore(s)
}

func (h handle) MarshalYAML() (any, error) {
	return h.Snapshot()
}

// UnmarshalYAML decodes a snapshot into a paused clock.
func (c *Clock) UnmarshalYAML(node *yaml.Node) error {
	var s Snapshot
	if err := node.Decode(&s); err != nil {
		return err
	}
	return c.restore(s)
}

func (h handle) MarshalCBOR() ([]byte, error) {
	s, err := h.Snapshot()
	if err != nil {
		return nil, err
	}
	return codec.Marshal(codec.CBOR, s)
}

// UnmarshalCBOR decodes a snapshot into a paused clock.
func (c *Clock) UnmarshalCBOR(data []byte) error {
	var s Snapshot
	if err := codec.Unmarshal(codec.CBOR, data, &s); err != nil {
		return err
	}
	return c.restore(s)
}
