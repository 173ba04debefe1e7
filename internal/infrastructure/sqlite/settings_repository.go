package sqlite

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/zjrosen/warden/internal/fleet"
)

// settingsRepository implements fleet.SettingsRepository using SQLite.
// Settings live in a single row with id 1, seeded by the migration.
type settingsRepository struct {
	db *sql.DB
}

// newSettingsRepository creates a new settingsRepository instance.
func newSettingsRepository(db *sql.DB) *settingsRepository {
	return &settingsRepository{db: db}
}

// Ensure settingsRepository implements fleet.SettingsRepository.
var _ fleet.SettingsRepository = (*settingsRepository)(nil)

// Get retrieves the settings document. A missing row yields the
// defaults rather than an error.
func (r *settingsRepository) Get() (fleet.Settings, error) {
	var s fleet.Settings
	err := r.db.QueryRow(
		`SELECT game_path, launch_stagger_seconds, auto_start, check_for_updates FROM settings WHERE id = 1`,
	).Scan(&s.GamePath, &s.LaunchStaggerSeconds, &s.AutoStart, &s.CheckForUpdates)
	if errors.Is(err, sql.ErrNoRows) {
		return fleet.Settings{CheckForUpdates: true}, nil
	}
	if err != nil {
		return fleet.Settings{}, fmt.Errorf("failed to read settings: %w", err)
	}
	return s, nil
}

// Save rewrites the settings document.
func (r *settingsRepository) Save(settings fleet.Settings) error {
	_, err := r.db.Exec(
		`INSERT INTO settings (id, game_path, launch_stagger_seconds, auto_start, check_for_updates, updated_at)
		 VALUES (1, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
			game_path = excluded.game_path,
			launch_stagger_seconds = excluded.launch_stagger_seconds,
			auto_start = excluded.auto_start,
			check_for_updates = excluded.check_for_updates,
			updated_at = excluded.updated_at`,
		settings.GamePath, settings.LaunchStaggerSeconds, settings.AutoStart, settings.CheckForUpdates,
		time.Now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to save settings: %w", err)
	}
	return nil
}
