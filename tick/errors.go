package tick

import (
	"errors"
	"fmt"
)

var (
	// ErrAlreadyPast is returned when waiting for, or measuring the time
	// until, a tick that has already elapsed.
	ErrAlreadyPast = errors.New("tick: that tick has already elapsed")

	// ErrPaused is returned by time-based queries and waits on a paused clock.
	ErrPaused = errors.New("tick: clock is paused")

	// ErrStart is returned by Unpause when the accumulated duration cannot be
	// turned back into a reference point on the clock's time source.
	ErrStart = errors.New("tick: failed to resume clock")

	// ErrTimeReversed is returned when the time source reports a reading
	// earlier than the clock's reference point.
	ErrTimeReversed = errors.New("tick: time source moved backwards")

	// ErrInvalidSnapshot is returned when decoding a snapshot that does not
	// describe a valid clock.
	ErrInvalidSnapshot = errors.New("tick: invalid snapshot")
)

// AlreadyPastError reports the requested and current tick for a wait that
// could not be satisfied. It matches ErrAlreadyPast with errors.Is.
type AlreadyPastError struct {
	Target  uint64
	Current uint64
}

func (e *AlreadyPastError) Error() string {
	return fmt.Sprintf("tick: tick %d has already elapsed (current tick %d)", e.Target, e.Current)
}

func (e *AlreadyPastError) Is(target error) bool {
	return target == ErrAlreadyPast
}
