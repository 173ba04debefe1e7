package engine

import "time"

// Clock abstracts wall time so schedule evaluation and heartbeat
// arithmetic are testable with pinned instants.
type Clock interface {
	// Now returns the current instant.
	Now() time.Time

	// LocalNow returns the current instant in the host's local zone.
	// Schedule windows are civil times, so evaluation uses this.
	LocalNow() time.Time
}

// RealClock reads the system clock.
type RealClock struct{}

func (RealClock) Now() time.Time { return time.Now() }

func (RealClock) LocalNow() time.Time { return time.Now().Local() }
