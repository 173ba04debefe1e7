package events

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/zjrosen/warden/internal/fleet"
)

func TestEventTypeConstants(t *testing.T) {
	tests := []struct {
		name     string
		event    EventType
		expected string
	}{
		// Snapshots
		{"ProfilesSnapshot", EventProfilesSnapshot, "profiles.snapshot"},
		{"KeyPoolsSnapshot", EventKeyPoolsSnapshot, "keypools.snapshot"},
		{"SchedulesSnapshot", EventSchedulesSnapshot, "schedules.snapshot"},
		{"SettingsSnapshot", EventSettingsSnapshot, "settings.snapshot"},
		// Profile lifecycle
		{"ProfileStateChanged", EventProfileStateChanged, "profile.state_changed"},
		{"ProfileStatus", EventProfileStatus, "profile.status"},
		// Log streaming
		{"LogLine", EventLogLine, "log.line"},
		// Infrastructure
		{"EntitiesChanged", EventEntitiesChanged, "entities.changed"},
		// Unknown
		{"Unknown", EventUnknown, "unknown"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.expected, string(tc.event))
			require.Equal(t, tc.expected, tc.event.String())
		})
	}
}

func TestNew_SetsTimestampAndPayload(t *testing.T) {
	payload := StatusPayload{Status: "in town"}

	e := New(EventProfileStatus, payload)

	require.Equal(t, EventProfileStatus, e.Type)
	require.False(t, e.Timestamp.IsZero())
	require.Equal(t, payload, e.Payload)
	require.Empty(t, e.Profile)
}

func TestEvent_WithProfile(t *testing.T) {
	e := New(EventProfileStateChanged, StateChangedPayload{
		Runtime: fleet.RuntimeState{State: fleet.StateRunning},
	}).WithProfile("sorc-east", fleet.StateRunning)

	require.Equal(t, "sorc-east", e.Profile)
	require.Equal(t, fleet.StateRunning, e.State)
}

func TestEventType_IsSnapshot(t *testing.T) {
	tests := []struct {
		event    EventType
		snapshot bool
	}{
		{EventProfilesSnapshot, true},
		{EventKeyPoolsSnapshot, true},
		{EventSchedulesSnapshot, true},
		{EventSettingsSnapshot, true},
		{EventProfileStateChanged, false},
		{EventLogLine, false},
		{EventEntitiesChanged, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.event), func(t *testing.T) {
			require.Equal(t, tt.snapshot, tt.event.IsSnapshot())
		})
	}
}

func TestEventType_IsProfileEvent(t *testing.T) {
	tests := []struct {
		event   EventType
		profile bool
	}{
		{EventProfileStateChanged, true},
		{EventProfileStatus, true},
		{EventProfilesSnapshot, false},
		{EventLogLine, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.event), func(t *testing.T) {
			require.Equal(t, tt.profile, tt.event.IsProfileEvent())
		})
	}
}

// === Filter Tests ===

func TestFilter_EmptyMatchesAll(t *testing.T) {
	f := &Filter{}

	require.True(t, f.IsEmpty())
	require.True(t, f.Matches(New(EventLogLine, nil)))
	require.True(t, f.Matches(New(EventProfileStateChanged, nil).WithProfile("a", fleet.StateRunning)))
}

func TestFilter_TypeInclusion(t *testing.T) {
	f := &Filter{Types: []EventType{EventLogLine}}

	require.True(t, f.Matches(New(EventLogLine, nil)))
	require.False(t, f.Matches(New(EventProfileStateChanged, nil)))
}

func TestFilter_ProfileInclusion(t *testing.T) {
	f := &Filter{Profiles: []string{"sorc-east"}}

	require.True(t, f.Matches(New(EventProfileStateChanged, nil).WithProfile("sorc-east", fleet.StateStarting)))
	require.False(t, f.Matches(New(EventProfileStateChanged, nil).WithProfile("pala-west", fleet.StateStarting)))
	// Events without profile context always pass a profile filter.
	require.True(t, f.Matches(New(EventSettingsSnapshot, nil)))
}

func TestFilter_TypeExclusion(t *testing.T) {
	f := &Filter{ExcludeTypes: []EventType{EventLogLine}}

	require.False(t, f.Matches(New(EventLogLine, nil)))
	require.True(t, f.Matches(New(EventProfileStateChanged, nil)))
}

func TestFilter_ExclusionWinsOverInclusion(t *testing.T) {
	f := &Filter{
		Types:        []EventType{EventLogLine, EventProfileStateChanged},
		ExcludeTypes: []EventType{EventLogLine},
	}

	require.False(t, f.Matches(New(EventLogLine, nil)))
	require.True(t, f.Matches(New(EventProfileStateChanged, nil)))
}
