// Package fleet defines the domain model for warden: the profiles it
// manages, the license key pools it allocates from, the daily schedules
// that activate profiles, and the per-profile runtime supervision state.
package fleet

import (
	"fmt"
	"time"
)

// Profile is a persistently configured, managed external process.
// It is the unit of orchestration: warden launches the profile's
// executable, supervises it, and accounts its counters.
type Profile struct {
	// Identity. Name is unique across the fleet and stable except through
	// an explicit rename.
	Name  string `json:"name"`
	Group string `json:"group,omitempty"`

	// Launch configuration.
	Executable string   `json:"executable"`
	Args       []string `json:"args,omitempty"`
	GamePath   string   `json:"game_path,omitempty"`

	// Runtime identity handed to the scripting runtime via getProfile /
	// setProfile frames.
	Account    string `json:"account,omitempty"`
	Password   string `json:"password,omitempty"`
	Character  string `json:"character,omitempty"`
	Realm      string `json:"realm,omitempty"`
	Difficulty string `json:"difficulty,omitempty"`
	InfoTag    string `json:"info_tag,omitempty"`

	// Coordination bindings. Empty means unbound.
	KeyPool  string `json:"key_pool,omitempty"`
	Schedule string `json:"schedule,omitempty"`

	// ScheduleEnabled arms the schedule evaluator for this profile.
	// It is durably cleared when crash retries are exhausted.
	ScheduleEnabled bool `json:"schedule_enabled"`

	// Window placement and visibility, applied at launch.
	Window  *WindowRect `json:"window,omitempty"`
	Visible bool        `json:"visible"`

	Counters Counters `json:"counters"`

	// Position is the profile's index in the store's global ordering.
	Position  int       `json:"position"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Validate checks that the Profile has the fields launch requires.
func (p *Profile) Validate() error {
	if p.Name == "" {
		return fmt.Errorf("name is required")
	}
	if p.Executable == "" {
		return fmt.Errorf("executable is required")
	}
	return nil
}

// WindowRect is a window placement in screen coordinates.
type WindowRect struct {
	X int `json:"x"`
	Y int `json:"y"`
	W int `json:"w"`
	H int `json:"h"`
}

// Counters are the accumulated per-profile statistics. They only grow;
// the explicit reset operation is the single path that zeroes them.
type Counters struct {
	Runs     int `json:"runs"`
	Chickens int `json:"chickens"`
	Deaths   int `json:"deaths"`
	Crashes  int `json:"crashes"`
	Restarts int `json:"restarts"`
}

// Credential is one opaque, scarce license token inside a pool.
// The payload is the classic/expansion key pair consumed by the launch
// collaborator; warden never parses it.
type Credential struct {
	Name      string `json:"name"`
	Classic   string `json:"classic"`
	Expansion string `json:"expansion"`

	// Held marks the credential administratively disabled. Persistent.
	Held bool `json:"held"`
}

// KeyPool is a named, ordered set of credentials allocated round-robin.
// The in-use view is not part of the pool; it is derived from the runtime
// states holding credential names.
type KeyPool struct {
	Name string       `json:"name"`
	Keys []Credential `json:"keys"`
}

// Find returns the index of the credential with the given name, or -1.
func (p *KeyPool) Find(name string) int {
	for i := range p.Keys {
		if p.Keys[i].Name == name {
			return i
		}
	}
	return -1
}

// Settings is the fleet-wide settings document.
type Settings struct {
	GamePath             string `json:"game_path,omitempty"`
	LaunchStaggerSeconds int    `json:"launch_stagger_seconds"`
	AutoStart            bool   `json:"auto_start"`
	CheckForUpdates      bool   `json:"check_for_updates"`
}
