package sqlite

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/zjrosen/warden/internal/fleet"
)

// profileRepository implements fleet.ProfileRepository using SQLite.
type profileRepository struct {
	db *sql.DB
}

// newProfileRepository creates a new profileRepository instance.
func newProfileRepository(db *sql.DB) *profileRepository {
	return &profileRepository{db: db}
}

// Ensure profileRepository implements fleet.ProfileRepository.
var _ fleet.ProfileRepository = (*profileRepository)(nil)

// List retrieves all profiles ordered by position ascending.
func (r *profileRepository) List() ([]fleet.Profile, error) {
	rows, err := r.db.Query(`SELECT ` + profileColumns + ` FROM profiles ORDER BY position ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list profiles: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var profiles []fleet.Profile
	for rows.Next() {
		model, err := scanProfile(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan profile row: %w", err)
		}
		profiles = append(profiles, *model.toDomain())
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating profile rows: %w", err)
	}

	return profiles, nil
}

// GetByName retrieves a profile by its unique name.
// Returns ProfileNotFoundError if no matching profile exists.
func (r *profileRepository) GetByName(name string) (*fleet.Profile, error) {
	row := r.db.QueryRow(`SELECT `+profileColumns+` FROM profiles WHERE name = ?`, name)
	model, err := scanProfile(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &fleet.ProfileNotFoundError{Name: name}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find profile by name: %w", err)
	}
	return model.toDomain(), nil
}

// Create persists a new profile at the end of the global ordering.
// The entity's Position, CreatedAt and UpdatedAt are set as a side effect.
func (r *profileRepository) Create(profile *fleet.Profile) error {
	now := time.Now()
	if profile.CreatedAt.IsZero() {
		profile.CreatedAt = now
	}
	profile.UpdatedAt = now

	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var position int64
	if err := tx.QueryRow(`SELECT COALESCE(MAX(position) + 1, 0) FROM profiles`).Scan(&position); err != nil {
		return fmt.Errorf("failed to compute profile position: %w", err)
	}
	profile.Position = int(position)

	model := toProfileModel(profile)
	_, err = tx.Exec(
		`INSERT INTO profiles (
			name, group_name, executable, args, game_path,
			account, password, character, realm, difficulty, info_tag,
			key_pool, schedule, schedule_enabled,
			window_x, window_y, window_w, window_h, visible,
			runs, chickens, deaths, crashes, restarts,
			position, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		model.Name, model.GroupName, model.Executable, model.Args, model.GamePath,
		model.Account, model.Password, model.Character, model.Realm, model.Difficulty, model.InfoTag,
		model.KeyPool, model.Schedule, model.ScheduleEnabled,
		model.WindowX, model.WindowY, model.WindowW, model.WindowH, model.Visible,
		model.Runs, model.Chickens, model.Deaths, model.Crashes, model.Restarts,
		model.Position, model.CreatedAt, model.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert profile: %w", err)
	}

	return tx.Commit()
}

// Update rewrites all mutable fields of an existing profile, matched by
// name. Position and created_at are preserved.
func (r *profileRepository) Update(profile *fleet.Profile) error {
	profile.UpdatedAt = time.Now()
	model := toProfileModel(profile)

	result, err := r.db.Exec(
		`UPDATE profiles SET
			group_name = ?, executable = ?, args = ?, game_path = ?,
			account = ?, password = ?, character = ?, realm = ?, difficulty = ?, info_tag = ?,
			key_pool = ?, schedule = ?, schedule_enabled = ?,
			window_x = ?, window_y = ?, window_w = ?, window_h = ?, visible = ?,
			runs = ?, chickens = ?, deaths = ?, crashes = ?, restarts = ?,
			updated_at = ?
		WHERE name = ?`,
		model.GroupName, model.Executable, model.Args, model.GamePath,
		model.Account, model.Password, model.Character, model.Realm, model.Difficulty, model.InfoTag,
		model.KeyPool, model.Schedule, model.ScheduleEnabled,
		model.WindowX, model.WindowY, model.WindowW, model.WindowH, model.Visible,
		model.Runs, model.Chickens, model.Deaths, model.Crashes, model.Restarts,
		model.UpdatedAt,
		model.Name,
	)
	if err != nil {
		return fmt.Errorf("failed to update profile: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return &fleet.ProfileNotFoundError{Name: profile.Name}
	}
	return nil
}

// Rename changes a profile's name. The new name must be unused.
func (r *profileRepository) Rename(oldName, newName string) error {
	result, err := r.db.Exec(
		`UPDATE profiles SET name = ?, updated_at = ? WHERE name = ?`,
		newName, time.Now().Unix(), oldName,
	)
	if err != nil {
		return fmt.Errorf("failed to rename profile: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return &fleet.ProfileNotFoundError{Name: oldName}
	}
	return nil
}

// Delete removes a profile and closes the gap in the position ordering.
func (r *profileRepository) Delete(name string) error {
	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var position int64
	err = tx.QueryRow(`SELECT position FROM profiles WHERE name = ?`, name).Scan(&position)
	if errors.Is(err, sql.ErrNoRows) {
		return &fleet.ProfileNotFoundError{Name: name}
	}
	if err != nil {
		return fmt.Errorf("failed to find profile position: %w", err)
	}

	if _, err := tx.Exec(`DELETE FROM profiles WHERE name = ?`, name); err != nil {
		return fmt.Errorf("failed to delete profile: %w", err)
	}
	if _, err := tx.Exec(`UPDATE profiles SET position = position - 1 WHERE position > ?`, position); err != nil {
		return fmt.Errorf("failed to compact profile positions: %w", err)
	}

	return tx.Commit()
}

// MoveToIndex moves a profile to the given index in the global ordering,
// shifting the profiles in between. Indexes are clamped to the valid
// range. When group is non-empty the profile's group is updated in the
// same write.
func (r *profileRepository) MoveToIndex(name string, index int, group string) error {
	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var current int64
	err = tx.QueryRow(`SELECT position FROM profiles WHERE name = ?`, name).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		return &fleet.ProfileNotFoundError{Name: name}
	}
	if err != nil {
		return fmt.Errorf("failed to find profile position: %w", err)
	}

	var count int64
	if err := tx.QueryRow(`SELECT COUNT(*) FROM profiles`).Scan(&count); err != nil {
		return fmt.Errorf("failed to count profiles: %w", err)
	}

	target := int64(index)
	if target < 0 {
		target = 0
	}
	if target > count-1 {
		target = count - 1
	}

	switch {
	case target > current:
		_, err = tx.Exec(
			`UPDATE profiles SET position = position - 1 WHERE position > ? AND position <= ?`,
			current, target,
		)
	case target < current:
		_, err = tx.Exec(
			`UPDATE profiles SET position = position + 1 WHERE position >= ? AND position < ?`,
			target, current,
		)
	}
	if err != nil {
		return fmt.Errorf("failed to shift profile positions: %w", err)
	}

	if group != "" {
		_, err = tx.Exec(
			`UPDATE profiles SET position = ?, group_name = ?, updated_at = ? WHERE name = ?`,
			target, group, time.Now().Unix(), name,
		)
	} else {
		_, err = tx.Exec(
			`UPDATE profiles SET position = ?, updated_at = ? WHERE name = ?`,
			target, time.Now().Unix(), name,
		)
	}
	if err != nil {
		return fmt.Errorf("failed to move profile: %w", err)
	}

	return tx.Commit()
}
