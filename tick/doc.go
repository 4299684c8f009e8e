// Package tick implements a drift-free virtual clock that divides time into
// fixed-length ticks.
//
// A Clock is a handle to shared state. Any number of goroutines may hold
// clones of it and block until an absolute tick number has elapsed:
//
//	c := tick.New(10) // 10ms ticks
//	go func(r tick.ReadOnly) {
//	    for {
//	        if err := r.WaitForTick(); err != nil {
//	            return
//	        }
//	        // runs on every tick boundary of c
//	    }
//	}(c.ReadOnly())
//
// Every wait is measured from the clock's reference point rather than from
// the waiter's last wake-up, so delays in one wait do not carry into the
// next.
//
// # Pausing
//
// Pause freezes elapsed time and Unpause resumes it where it stopped. While
// paused, time-based queries and waits return ErrPaused; Elapsed is the one
// query that reports the frozen duration.
//
// # Serialization
//
// Clocks encode as a Snapshot (tick rate and elapsed time) in JSON, YAML and
// CBOR, and always decode paused. The receiver calls Unpause to continue
// from where the encoded clock was.
package tick
