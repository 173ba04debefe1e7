// Package engine is the orchestration core: the runtime state store,
// credential allocator, per-profile supervision loops, schedule
// evaluator, and the facade the daemon and transport consume.
package engine

import "time"

// Supervision and scheduling constants.
const (
	// HeartbeatTimeout is how stale a runtime's last heartbeat may grow
	// before surveillance counts a miss.
	HeartbeatTimeout = 30 * time.Second

	// MaxMissedHeartbeats is the miss count that forces a stop.
	MaxMissedHeartbeats = 3

	// HeartbeatPollInterval is the surveillance sampling cadence.
	HeartbeatPollInterval = 10 * time.Second

	// MonitorPollInterval is the supervision loop's exit-detection cadence.
	MonitorPollInterval = 1 * time.Second

	// MaxCrashRetries bounds consecutive crash relaunches.
	MaxCrashRetries = 5

	// CrashBackoff is the delay before a crash relaunch.
	CrashBackoff = 5 * time.Second

	// GracefulStopTimeout is the terminate grace before a hard kill.
	GracefulStopTimeout = 5 * time.Second

	// LaunchReadyTimeout bounds the launch collaborator call.
	LaunchReadyTimeout = 30 * time.Second

	// ScheduleTick is the schedule evaluator's cadence.
	ScheduleTick = 60 * time.Second

	// LogRingCapacity is how many log events RecentLogs retains.
	LogRingCapacity = 100000
)

// Timings parameterizes every supervision and scheduling interval.
// The zero value means "use the production constants"; tests shrink
// individual fields to drive the loops in milliseconds.
type Timings struct {
	HeartbeatTimeout      time.Duration
	HeartbeatPollInterval time.Duration
	MonitorPollInterval   time.Duration
	CrashBackoff          time.Duration
	GracefulStopTimeout   time.Duration
	LaunchReadyTimeout    time.Duration
	ScheduleTick          time.Duration
}

// withDefaults fills zero fields with the production constants.
func (t Timings) withDefaults() Timings {
	if t.HeartbeatTimeout == 0 {
		t.HeartbeatTimeout = HeartbeatTimeout
	}
	if t.HeartbeatPollInterval == 0 {
		t.HeartbeatPollInterval = HeartbeatPollInterval
	}
	if t.MonitorPollInterval == 0 {
		t.MonitorPollInterval = MonitorPollInterval
	}
	if t.CrashBackoff == 0 {
		t.CrashBackoff = CrashBackoff
	}
	if t.GracefulStopTimeout == 0 {
		t.GracefulStopTimeout = GracefulStopTimeout
	}
	if t.LaunchReadyTimeout == 0 {
		t.LaunchReadyTimeout = LaunchReadyTimeout
	}
	if t.ScheduleTick == 0 {
		t.ScheduleTick = ScheduleTick
	}
	return t
}
