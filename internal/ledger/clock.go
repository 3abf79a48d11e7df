// clock.go - Ledger clock abstraction.
//
// Auction deadlines are evaluated lazily against wall time at call time;
// there is no server-side timer. Injecting the clock keeps deadline logic
// testable without sleeping.

package ledger

import "time"

// Clock supplies the ledger's notion of current wall time.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// SystemClock returns the real wall clock.
func SystemClock() Clock { return systemClock{} }

// FixedClock is a settable clock for tests and deterministic replay.
type FixedClock struct {
	T time.Time
}

func (c *FixedClock) Now() time.Time { return c.T }

// Advance moves the fixed clock forward by d.
func (c *FixedClock) Advance(d time.Duration) { c.T = c.T.Add(d) }
