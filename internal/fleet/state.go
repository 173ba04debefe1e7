package fleet

import "time"

// State represents the supervision lifecycle state of one profile.
// Valid transitions:
//
//	Stopped  -> Starting
//	Starting -> Running, Error
//	Running  -> Stopping, Error
//	Stopping -> Stopped
//	Error    -> Starting, Stopping, Stopped
type State string

const (
	// StateStopped indicates no supervision task exists for the profile.
	StateStopped State = "stopped"
	// StateStarting indicates a supervision task is launching the process.
	StateStarting State = "starting"
	// StateRunning indicates the process is up and monitored.
	StateRunning State = "running"
	// StateStopping indicates an orderly shutdown is in progress.
	StateStopping State = "stopping"
	// StateError indicates the last run ended in a terminal failure.
	StateError State = "error"
)

// validTransitions defines the allowed state transitions.
// The key is the current state, the value is a set of valid target states.
var validTransitions = map[State]map[State]bool{
	StateStopped: {
		StateStarting: true,
	},
	StateStarting: {
		StateRunning: true,
		StateError:   true,
	},
	StateRunning: {
		StateStopping: true,
		StateError:    true,
	},
	StateStopping: {
		StateStopped: true,
	},
	StateError: {
		StateStarting: true,
		StateStopping: true,
		StateStopped:  true,
	},
}

// String returns the string representation of the State.
func (s State) String() string {
	return string(s)
}

// IsValid returns true if this is a recognized State value.
func (s State) IsValid() bool {
	_, ok := validTransitions[s]
	return ok
}

// IsActive returns true while a supervision task may exist for the
// profile (anything but Stopped and Error).
func (s State) IsActive() bool {
	return s == StateStarting || s == StateRunning || s == StateStopping
}

// CanTransitionTo returns true if transitioning from the current state
// to the target state is valid according to the state machine.
func (s State) CanTransitionTo(target State) bool {
	allowed, ok := validTransitions[s]
	if !ok {
		return false
	}
	return allowed[target]
}

// ValidTargets returns all states reachable from the current state.
func (s State) ValidTargets() []State {
	allowed, ok := validTransitions[s]
	if !ok {
		return nil
	}
	targets := make([]State, 0, len(allowed))
	for target := range allowed {
		targets = append(targets, target)
	}
	return targets
}

// RuntimeState is the transient, in-memory supervision record for one
// profile. Snapshots are value copies; the engine's state store owns the
// canonical record and serializes every mutation per profile.
type RuntimeState struct {
	State State `json:"state"`

	// Status is the last thing the runtime reported via updateStatus,
	// or a supervisor-set note ("no available keys", "crashed (exit 1)").
	Status string `json:"status,omitempty"`

	// Pid of the launched process, 0 when none.
	Pid int `json:"pid,omitempty"`

	StartedAt time.Time `json:"started_at,omitzero"`

	// LastHeartbeat is zero until the first beat of the current run.
	LastHeartbeat time.Time `json:"last_heartbeat,omitzero"`

	// CrashCount counts consecutive failed runs; zeroed at each
	// successful Running transition.
	CrashCount int `json:"crash_count"`

	// MissedHeartbeats counts surveillance intervals without a beat;
	// zeroed on every heartbeat.
	MissedHeartbeats int `json:"missed_heartbeats"`

	// KeyName is the credential currently assigned, empty when none.
	KeyName string `json:"key_name,omitempty"`

	// WindowVisible mirrors the last show/hide command.
	WindowVisible bool `json:"window_visible"`
}
