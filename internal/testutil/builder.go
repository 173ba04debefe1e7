package testutil

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/zjrosen/warden/internal/fleet"
	"github.com/zjrosen/warden/internal/infrastructure/sqlite"
)

// Builder accumulates fleet fixtures and inserts them through the
// repositories in dependency order.
type Builder struct {
	t         *testing.T
	db        *sqlite.DB
	profiles  []fleet.Profile
	pools     []fleet.KeyPool
	schedules []fleet.Schedule
	settings  *fleet.Settings
}

// NewBuilder creates a builder for the given test database.
func NewBuilder(t *testing.T, db *sqlite.DB) *Builder {
	t.Helper()
	return &Builder{t: t, db: db}
}

// WithProfile adds a profile with optional configuration.
func (b *Builder) WithProfile(name string, opts ...ProfileOption) *Builder {
	profile := defaultProfile(name)
	for _, opt := range opts {
		opt(&profile)
	}
	b.profiles = append(b.profiles, profile)
	return b
}

// WithKeyPool adds a key pool with its credentials in order.
func (b *Builder) WithKeyPool(name string, keys ...fleet.Credential) *Builder {
	b.pools = append(b.pools, fleet.KeyPool{Name: name, Keys: keys})
	return b
}

// WithSchedule adds a schedule with its periods in order.
func (b *Builder) WithSchedule(name string, periods ...fleet.Period) *Builder {
	b.schedules = append(b.schedules, fleet.Schedule{Name: name, Periods: periods})
	return b
}

// WithSettings sets the fleet settings document.
func (b *Builder) WithSettings(settings fleet.Settings) *Builder {
	b.settings = &settings
	return b
}

// Build inserts all accumulated fixtures into the database.
func (b *Builder) Build() {
	b.t.Helper()

	// Pools and schedules first so profile bindings resolve immediately
	for _, pool := range b.pools {
		require.NoError(b.t, b.db.KeyPoolRepository().Create(pool.Name))
		for _, key := range pool.Keys {
			require.NoError(b.t, b.db.KeyPoolRepository().AddKey(pool.Name, key))
		}
	}
	for i := range b.schedules {
		require.NoError(b.t, b.db.ScheduleRepository().Create(&b.schedules[i]))
	}
	for i := range b.profiles {
		require.NoError(b.t, b.db.ProfileRepository().Create(&b.profiles[i]))
	}
	if b.settings != nil {
		require.NoError(b.t, b.db.SettingsRepository().Save(*b.settings))
	}
}
