package fleet

import (
	"testing"

	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

// === State Tests ===

func TestState_String(t *testing.T) {
	tests := []struct {
		state    State
		expected string
	}{
		{StateStopped, "stopped"},
		{StateStarting, "starting"},
		{StateRunning, "running"},
		{StateStopping, "stopping"},
		{StateError, "error"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			require.Equal(t, tt.expected, tt.state.String())
		})
	}
}

func TestState_IsValid(t *testing.T) {
	tests := []struct {
		state State
		valid bool
	}{
		{StateStopped, true},
		{StateStarting, true},
		{StateRunning, true},
		{StateStopping, true},
		{StateError, true},
		{State("paused"), false},
		{State(""), false},
	}

	for _, tt := range tests {
		t.Run(string(tt.state), func(t *testing.T) {
			require.Equal(t, tt.valid, tt.state.IsValid())
		})
	}
}

func TestState_IsActive(t *testing.T) {
	tests := []struct {
		state  State
		active bool
	}{
		{StateStopped, false},
		{StateStarting, true},
		{StateRunning, true},
		{StateStopping, true},
		{StateError, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.state), func(t *testing.T) {
			require.Equal(t, tt.active, tt.state.IsActive(),
				"IsActive() should return %v for state %s", tt.active, tt.state)
		})
	}
}

func TestState_CanTransitionTo_ValidTransitions(t *testing.T) {
	tests := []struct {
		from State
		to   State
	}{
		// From Stopped
		{StateStopped, StateStarting},
		// From Starting
		{StateStarting, StateRunning},
		{StateStarting, StateError},
		// From Running
		{StateRunning, StateStopping},
		{StateRunning, StateError},
		// From Stopping
		{StateStopping, StateStopped},
		// From Error
		{StateError, StateStarting},
		{StateError, StateStopping},
		{StateError, StateStopped},
	}

	for _, tt := range tests {
		t.Run(tt.from.String()+"->"+tt.to.String(), func(t *testing.T) {
			require.True(t, tt.from.CanTransitionTo(tt.to),
				"transition from %s to %s should be valid", tt.from, tt.to)
		})
	}
}

func TestState_CanTransitionTo_InvalidTransitions(t *testing.T) {
	tests := []struct {
		from State
		to   State
	}{
		// Stopped can only begin a launch
		{StateStopped, StateStopped},
		{StateStopped, StateRunning},
		{StateStopped, StateStopping},
		{StateStopped, StateError},
		// Starting cannot skip back or short-circuit shutdown
		{StateStarting, StateStopped},
		{StateStarting, StateStarting},
		{StateStarting, StateStopping},
		// Running must pass through Stopping to reach Stopped
		{StateRunning, StateStopped},
		{StateRunning, StateStarting},
		{StateRunning, StateRunning},
		// Stopping only settles into Stopped
		{StateStopping, StateStarting},
		{StateStopping, StateRunning},
		{StateStopping, StateStopping},
		{StateStopping, StateError},
		// Error cannot jump straight to Running
		{StateError, StateRunning},
		{StateError, StateError},
		// Unknown state
		{State("paused"), StateRunning},
	}

	for _, tt := range tests {
		t.Run(tt.from.String()+"->"+tt.to.String(), func(t *testing.T) {
			require.False(t, tt.from.CanTransitionTo(tt.to),
				"transition from %s to %s should be invalid", tt.from, tt.to)
		})
	}
}

func TestState_ValidTargets(t *testing.T) {
	tests := []struct {
		state    State
		expected []State
	}{
		{StateStopped, []State{StateStarting}},
		{StateStarting, []State{StateRunning, StateError}},
		{StateRunning, []State{StateStopping, StateError}},
		{StateStopping, []State{StateStopped}},
		{StateError, []State{StateStarting, StateStopping, StateStopped}},
		{State("paused"), nil},
	}

	for _, tt := range tests {
		t.Run(string(tt.state), func(t *testing.T) {
			targets := tt.state.ValidTargets()
			if tt.expected == nil {
				require.Nil(t, targets)
			} else {
				require.ElementsMatch(t, tt.expected, targets)
			}
		})
	}
}

// TestProperty_TransitionTableIsConsistent verifies ValidTargets and
// CanTransitionTo agree for every state pair.
func TestProperty_TransitionTableIsConsistent(t *testing.T) {
	all := []State{StateStopped, StateStarting, StateRunning, StateStopping, StateError}

	rapid.Check(t, func(t *rapid.T) {
		from := rapid.SampledFrom(all).Draw(t, "from")
		to := rapid.SampledFrom(all).Draw(t, "to")

		inTargets := false
		for _, target := range from.ValidTargets() {
			if target == to {
				inTargets = true
				break
			}
		}

		require.Equal(t, inTargets, from.CanTransitionTo(to),
			"ValidTargets and CanTransitionTo disagree on %s -> %s", from, to)
	})
}

// === RuntimeState Tests ===

func TestRuntimeState_ZeroValue(t *testing.T) {
	var rs RuntimeState

	require.Empty(t, rs.State)
	require.Empty(t, rs.Status)
	require.Zero(t, rs.Pid)
	require.True(t, rs.LastHeartbeat.IsZero())
	require.Zero(t, rs.CrashCount)
	require.Zero(t, rs.MissedHeartbeats)
	require.Empty(t, rs.KeyName)
}
