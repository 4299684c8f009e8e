// Package clock provides the time sources tick clocks measure against.
package clock

import (
	"time"

	bclock "github.com/benbjohnson/clock"
)

// Clock provides the current time and the ability to suspend until a
// duration has passed. Readings from Now are compared with each other to
// measure elapsed time, so implementations should carry a monotonic
// reading when they can.
type Clock interface {
	Now() time.Time
	Sleep(d time.Duration)
	After(d time.Duration) <-chan time.Time
}

var (
	_ Clock = bclock.New()
	_ Clock = (*bclock.Mock)(nil)
)

// System returns a Clock backed by the standard time package.
func System() Clock { return bclock.New() }

// Mock returns a Clock that only moves when Add or Set is called on it.
// It starts at the Unix epoch.
func Mock() *bclock.Mock { return bclock.NewMock() }

// Since returns the time elapsed on c since t.
func Since(c Clock, t time.Time) time.Duration {
	return c.Now().Sub(t)
}
