package sqlite

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/zjrosen/warden/internal/fleet"
)

// scheduleRepository implements fleet.ScheduleRepository using SQLite.
type scheduleRepository struct {
	db *sql.DB
}

// newScheduleRepository creates a new scheduleRepository instance.
func newScheduleRepository(db *sql.DB) *scheduleRepository {
	return &scheduleRepository{db: db}
}

// Ensure scheduleRepository implements fleet.ScheduleRepository.
var _ fleet.ScheduleRepository = (*scheduleRepository)(nil)

// List retrieves all schedules ordered by name, each with its periods in
// definition order.
func (r *scheduleRepository) List() ([]fleet.Schedule, error) {
	rows, err := r.db.Query(`SELECT id, name FROM schedules ORDER BY name ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list schedules: %w", err)
	}
	defer func() { _ = rows.Close() }()

	type scheduleRow struct {
		id   int64
		name string
	}
	var scheduleRows []scheduleRow
	for rows.Next() {
		var s scheduleRow
		if err := rows.Scan(&s.id, &s.name); err != nil {
			return nil, fmt.Errorf("failed to scan schedule row: %w", err)
		}
		scheduleRows = append(scheduleRows, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating schedule rows: %w", err)
	}

	var schedules []fleet.Schedule
	for _, s := range scheduleRows {
		periods, err := r.loadPeriods(s.id)
		if err != nil {
			return nil, err
		}
		schedules = append(schedules, fleet.Schedule{Name: s.name, Periods: periods})
	}

	return schedules, nil
}

// GetByName retrieves a schedule with its periods in definition order.
func (r *scheduleRepository) GetByName(name string) (*fleet.Schedule, error) {
	var id int64
	err := r.db.QueryRow(`SELECT id FROM schedules WHERE name = ?`, name).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &fleet.ScheduleNotFoundError{Name: name}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find schedule: %w", err)
	}

	periods, err := r.loadPeriods(id)
	if err != nil {
		return nil, err
	}
	return &fleet.Schedule{Name: name, Periods: periods}, nil
}

// Create persists a new schedule with its periods.
func (r *scheduleRepository) Create(schedule *fleet.Schedule) error {
	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().Unix()
	result, err := tx.Exec(
		`INSERT INTO schedules (name, created_at, updated_at) VALUES (?, ?, ?)`,
		schedule.Name, now, now,
	)
	if err != nil {
		return fmt.Errorf("failed to insert schedule: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}

	if err := r.insertPeriods(tx, id, schedule.Periods); err != nil {
		return err
	}

	return tx.Commit()
}

// Update replaces the periods of an existing schedule.
func (r *scheduleRepository) Update(schedule *fleet.Schedule) error {
	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var id int64
	err = tx.QueryRow(`SELECT id FROM schedules WHERE name = ?`, schedule.Name).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return &fleet.ScheduleNotFoundError{Name: schedule.Name}
	}
	if err != nil {
		return fmt.Errorf("failed to find schedule: %w", err)
	}

	if _, err := tx.Exec(`DELETE FROM periods WHERE schedule_id = ?`, id); err != nil {
		return fmt.Errorf("failed to clear schedule periods: %w", err)
	}
	if err := r.insertPeriods(tx, id, schedule.Periods); err != nil {
		return err
	}
	if _, err := tx.Exec(
		`UPDATE schedules SET updated_at = ? WHERE id = ?`, time.Now().Unix(), id,
	); err != nil {
		return fmt.Errorf("failed to touch schedule: %w", err)
	}

	return tx.Commit()
}

// Delete removes a schedule; its periods go with it via the foreign key
// cascade.
func (r *scheduleRepository) Delete(name string) error {
	result, err := r.db.Exec(`DELETE FROM schedules WHERE name = ?`, name)
	if err != nil {
		return fmt.Errorf("failed to delete schedule: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return &fleet.ScheduleNotFoundError{Name: name}
	}
	return nil
}

// insertPeriods writes a schedule's periods with their definition order.
func (r *scheduleRepository) insertPeriods(tx *sql.Tx, scheduleID int64, periods []fleet.Period) error {
	for i, p := range periods {
		if _, err := tx.Exec(
			`INSERT INTO periods (schedule_id, start_hour, start_minute, end_hour, end_minute, position)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			scheduleID, p.StartHour, p.StartMinute, p.EndHour, p.EndMinute, i,
		); err != nil {
			return fmt.Errorf("failed to insert period: %w", err)
		}
	}
	return nil
}

// loadPeriods reads a schedule's periods in position order.
func (r *scheduleRepository) loadPeriods(scheduleID int64) ([]fleet.Period, error) {
	rows, err := r.db.Query(
		`SELECT start_hour, start_minute, end_hour, end_minute
		 FROM periods WHERE schedule_id = ? ORDER BY position ASC`, scheduleID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list periods: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var periods []fleet.Period
	for rows.Next() {
		var p fleet.Period
		if err := rows.Scan(&p.StartHour, &p.StartMinute, &p.EndHour, &p.EndMinute); err != nil {
			return nil, fmt.Errorf("failed to scan period row: %w", err)
		}
		periods = append(periods, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating period rows: %w", err)
	}

	return periods, nil
}
