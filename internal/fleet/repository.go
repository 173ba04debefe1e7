package fleet

import "fmt"

// ProfileNotFoundError indicates no profile with the given name exists.
type ProfileNotFoundError struct {
	Name string
}

func (e *ProfileNotFoundError) Error() string {
	return fmt.Sprintf("profile %q not found", e.Name)
}

// KeyPoolNotFoundError indicates no key pool with the given name exists.
type KeyPoolNotFoundError struct {
	Name string
}

func (e *KeyPoolNotFoundError) Error() string {
	return fmt.Sprintf("key pool %q not found", e.Name)
}

// KeyNotFoundError indicates a pool exists but holds no credential with
// the given name.
type KeyNotFoundError struct {
	Pool string
	Name string
}

func (e *KeyNotFoundError) Error() string {
	return fmt.Sprintf("key %q not found in pool %q", e.Name, e.Pool)
}

// ScheduleNotFoundError indicates no schedule with the given name exists.
type ScheduleNotFoundError struct {
	Name string
}

func (e *ScheduleNotFoundError) Error() string {
	return fmt.Sprintf("schedule %q not found", e.Name)
}

// ProfileRepository defines the persistence interface for Profile entities.
// Implementations may use SQLite, in-memory storage, or other backends.
type ProfileRepository interface {
	// List retrieves all profiles ordered by position ascending.
	List() ([]Profile, error)

	// GetByName retrieves a profile by its unique name.
	// Returns ProfileNotFoundError if no matching profile exists.
	GetByName(name string) (*Profile, error)

	// Create persists a new profile. Position is assigned at the end of
	// the current ordering regardless of the value on the entity.
	Create(profile *Profile) error

	// Update rewrites all mutable fields of an existing profile,
	// matched by name. Position is not changed; use MoveToIndex.
	// Returns ProfileNotFoundError if no matching profile exists.
	Update(profile *Profile) error

	// Rename changes a profile's name. The new name must be unused.
	// Returns ProfileNotFoundError if no matching profile exists.
	Rename(oldName, newName string) error

	// Delete removes a profile and compacts the position ordering.
	// Returns ProfileNotFoundError if no matching profile exists.
	Delete(name string) error

	// MoveToIndex moves a profile to the given index in the global
	// ordering, shifting the profiles in between. Indexes are clamped to
	// the valid range. When group is non-empty the profile's group is
	// updated in the same write.
	// Returns ProfileNotFoundError if no matching profile exists.
	MoveToIndex(name string, index int, group string) error
}

// KeyPoolRepository defines the persistence interface for KeyPool
// entities and the credentials they hold.
type KeyPoolRepository interface {
	// List retrieves all pools ordered by name, each with its
	// credentials in pool order.
	List() ([]KeyPool, error)

	// GetByName retrieves a pool with its credentials in pool order.
	// Returns KeyPoolNotFoundError if no matching pool exists.
	GetByName(name string) (*KeyPool, error)

	// Create persists a new, empty pool.
	Create(name string) error

	// Delete removes a pool and all of its credentials.
	// Returns KeyPoolNotFoundError if no matching pool exists.
	Delete(name string) error

	// AddKey appends a credential to the end of a pool's ordering.
	// Returns KeyPoolNotFoundError if no matching pool exists.
	AddKey(pool string, key Credential) error

	// RemoveKey removes a credential from a pool by name.
	// Returns KeyNotFoundError if the pool has no such credential.
	RemoveKey(pool, name string) error

	// SetHeld updates the persistent held flag of a credential.
	// Returns KeyNotFoundError if the pool has no such credential.
	SetHeld(pool, name string, held bool) error
}

// ScheduleRepository defines the persistence interface for Schedule
// entities and their periods.
type ScheduleRepository interface {
	// List retrieves all schedules ordered by name, each with its
	// periods in definition order.
	List() ([]Schedule, error)

	// GetByName retrieves a schedule with its periods in definition order.
	// Returns ScheduleNotFoundError if no matching schedule exists.
	GetByName(name string) (*Schedule, error)

	// Create persists a new schedule with its periods.
	Create(schedule *Schedule) error

	// Update replaces the periods of an existing schedule.
	// Returns ScheduleNotFoundError if no matching schedule exists.
	Update(schedule *Schedule) error

	// Delete removes a schedule and its periods.
	// Returns ScheduleNotFoundError if no matching schedule exists.
	Delete(name string) error
}

// SettingsRepository defines the persistence interface for the
// fleet-wide settings document.
type SettingsRepository interface {
	// Get retrieves the settings document.
	Get() (Settings, error)

	// Save rewrites the settings document.
	Save(settings Settings) error
}
