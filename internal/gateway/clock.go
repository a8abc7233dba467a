package gateway

import "time"

// SystemClock reads the wall clock as Unix nanoseconds, for use outside
// of tests and replay (where determinism requires an injected clock).
// cmd/orbitald does not use it; it defines its own realClock.
type SystemClock struct{}

func (SystemClock) Now() uint64 { return uint64(time.Now().UnixNano()) }

// FixedClock returns a constant reading every call, for Genesis-at-zero
// style tests.
type FixedClock uint64

func (c FixedClock) Now() uint64 { return uint64(c) }

// SteppedClock increments by one on every read, giving every syscall a
// distinct logical timestamp without depending on wall-clock resolution
// — useful for tests that assert strict commit ordering.
type SteppedClock struct{ next uint64 }

func (c *SteppedClock) Now() uint64 {
	v := c.next
	c.next++
	return v
}
