// Package events defines the event envelope published on the engine bus.
package events

import (
	"slices"
	"time"

	"github.com/zjrosen/warden/internal/fleet"
)

// EventType categorizes engine events.
type EventType string

const (
	// Snapshot events, delivered once per subscriber at join and again
	// whenever the underlying collection changes.
	EventProfilesSnapshot  EventType = "profiles.snapshot"
	EventKeyPoolsSnapshot  EventType = "keypools.snapshot"
	EventSchedulesSnapshot EventType = "schedules.snapshot"
	EventSettingsSnapshot  EventType = "settings.snapshot"

	// Profile lifecycle events
	EventProfileStateChanged EventType = "profile.state_changed"
	EventProfileStatus       EventType = "profile.status"

	// Log streaming
	EventLogLine EventType = "log.line"

	// Infrastructure events
	EventEntitiesChanged EventType = "entities.changed"

	// Unknown event type for unclassified events
	EventUnknown EventType = "unknown"
)

// Event is the envelope for all engine events.
type Event struct {
	// Type identifies the kind of event.
	Type EventType
	// Timestamp when the event was published.
	Timestamp time.Time

	// Profile context (present for profile-scoped events)
	Profile string
	State   fleet.State

	// Event-specific payload (depends on Type)
	Payload any
}

// New creates an event with the current timestamp.
func New(eventType EventType, payload any) Event {
	return Event{
		Type:      eventType,
		Timestamp: time.Now(),
		Payload:   payload,
	}
}

// WithProfile adds profile context to the event.
func (e Event) WithProfile(name string, state fleet.State) Event {
	e.Profile = name
	e.State = state
	return e
}

// ProfileStatus pairs a profile with its runtime state for snapshots.
type ProfileStatus struct {
	Profile fleet.Profile      `json:"profile"`
	Runtime fleet.RuntimeState `json:"runtime"`
}

// ProfilesSnapshotPayload carries every profile and its runtime state,
// in persisted display order.
type ProfilesSnapshotPayload struct {
	Profiles []ProfileStatus `json:"profiles"`
}

// KeyPoolsSnapshotPayload carries every key pool plus the derived
// key-name to profile-name usage map.
type KeyPoolsSnapshotPayload struct {
	Pools []fleet.KeyPool   `json:"pools"`
	InUse map[string]string `json:"in_use,omitempty"`
}

// SchedulesSnapshotPayload carries every schedule.
type SchedulesSnapshotPayload struct {
	Schedules []fleet.Schedule `json:"schedules"`
}

// SettingsSnapshotPayload carries the global settings.
type SettingsSnapshotPayload struct {
	Settings fleet.Settings `json:"settings"`
}

// StateChangedPayload carries the runtime state after a transition and,
// when the change was triggered by a profile mutation, the full profile.
type StateChangedPayload struct {
	Runtime fleet.RuntimeState `json:"runtime"`
	Profile *fleet.Profile     `json:"profile,omitempty"`
}

// StatusPayload carries a raw status string reported by the runtime.
// The engine stores it verbatim and passes it through.
type StatusPayload struct {
	Status string `json:"status"`
}

// LogLinePayload is a log line streamed to observers.
type LogLinePayload struct {
	Source     string `json:"source"`
	Content    string `json:"content"`
	Color      string `json:"color,omitempty"`
	Attachment any    `json:"attachment,omitempty"`
}

// EntitiesChangedPayload announces that persisted entities changed
// outside the engine and consumers should refresh.
type EntitiesChangedPayload struct {
	Kind string `json:"kind"`
}

// IsSnapshot returns true if the event type is one of the snapshot variants.
func (t EventType) IsSnapshot() bool {
	switch t {
	case EventProfilesSnapshot,
		EventKeyPoolsSnapshot,
		EventSchedulesSnapshot,
		EventSettingsSnapshot:
		return true
	default:
		return false
	}
}

// IsProfileEvent returns true if the event type is scoped to a single profile.
func (t EventType) IsProfileEvent() bool {
	switch t {
	case EventProfileStateChanged, EventProfileStatus:
		return true
	default:
		return false
	}
}

// String returns the string representation of the EventType.
func (t EventType) String() string {
	return string(t)
}

// Filter defines criteria for filtering events in subscriptions.
// All criteria are AND'd together - an event must match all specified
// criteria to pass the filter.
type Filter struct {
	// Types limits events to these specific types. If empty, all types are allowed.
	Types []EventType

	// Profiles limits profile-scoped events to these names. If empty, all
	// profiles are allowed. Events without profile context always pass.
	Profiles []string

	// ExcludeTypes excludes events of these types. Applied after Types.
	ExcludeTypes []EventType
}

// Matches returns true if the event matches the filter criteria.
// An empty filter matches all events.
func (f *Filter) Matches(event Event) bool {
	if len(f.Types) > 0 {
		if !slices.Contains(f.Types, event.Type) {
			return false
		}
	}

	if len(f.Profiles) > 0 && event.Profile != "" {
		if !slices.Contains(f.Profiles, event.Profile) {
			return false
		}
	}

	if len(f.ExcludeTypes) > 0 {
		if slices.Contains(f.ExcludeTypes, event.Type) {
			return false
		}
	}

	return true
}

// IsEmpty returns true if the filter has no criteria set.
func (f *Filter) IsEmpty() bool {
	return len(f.Types) == 0 && len(f.Profiles) == 0 && len(f.ExcludeTypes) == 0
}
