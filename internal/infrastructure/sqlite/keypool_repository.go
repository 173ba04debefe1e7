package sqlite

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/zjrosen/warden/internal/fleet"
)

// keyPoolRepository implements fleet.KeyPoolRepository using SQLite.
type keyPoolRepository struct {
	db *sql.DB
}

// newKeyPoolRepository creates a new keyPoolRepository instance.
func newKeyPoolRepository(db *sql.DB) *keyPoolRepository {
	return &keyPoolRepository{db: db}
}

// Ensure keyPoolRepository implements fleet.KeyPoolRepository.
var _ fleet.KeyPoolRepository = (*keyPoolRepository)(nil)

// List retrieves all pools ordered by name, each with its credentials in
// pool order.
func (r *keyPoolRepository) List() ([]fleet.KeyPool, error) {
	rows, err := r.db.Query(`SELECT id, name FROM key_pools ORDER BY name ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list key pools: %w", err)
	}
	defer func() { _ = rows.Close() }()

	type poolRow struct {
		id   int64
		name string
	}
	var poolRows []poolRow
	for rows.Next() {
		var p poolRow
		if err := rows.Scan(&p.id, &p.name); err != nil {
			return nil, fmt.Errorf("failed to scan key pool row: %w", err)
		}
		poolRows = append(poolRows, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating key pool rows: %w", err)
	}

	var pools []fleet.KeyPool
	for _, p := range poolRows {
		keys, err := r.loadKeys(p.id)
		if err != nil {
			return nil, err
		}
		pools = append(pools, fleet.KeyPool{Name: p.name, Keys: keys})
	}

	return pools, nil
}

// GetByName retrieves a pool with its credentials in pool order.
func (r *keyPoolRepository) GetByName(name string) (*fleet.KeyPool, error) {
	id, err := r.poolID(r.db, name)
	if err != nil {
		return nil, err
	}
	keys, err := r.loadKeys(id)
	if err != nil {
		return nil, err
	}
	return &fleet.KeyPool{Name: name, Keys: keys}, nil
}

// Create persists a new, empty pool.
func (r *keyPoolRepository) Create(name string) error {
	now := time.Now().Unix()
	if _, err := r.db.Exec(
		`INSERT INTO key_pools (name, created_at, updated_at) VALUES (?, ?, ?)`, name, now, now,
	); err != nil {
		return fmt.Errorf("failed to create key pool: %w", err)
	}
	return nil
}

// Delete removes a pool; its credentials go with it via the foreign key
// cascade.
func (r *keyPoolRepository) Delete(name string) error {
	result, err := r.db.Exec(`DELETE FROM key_pools WHERE name = ?`, name)
	if err != nil {
		return fmt.Errorf("failed to delete key pool: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return &fleet.KeyPoolNotFoundError{Name: name}
	}
	return nil
}

// AddKey appends a credential to the end of a pool's ordering.
func (r *keyPoolRepository) AddKey(pool string, key fleet.Credential) error {
	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	id, err := r.poolID(tx, pool)
	if err != nil {
		return err
	}

	var position int64
	if err := tx.QueryRow(
		`SELECT COALESCE(MAX(position) + 1, 0) FROM credentials WHERE pool_id = ?`, id,
	).Scan(&position); err != nil {
		return fmt.Errorf("failed to compute key position: %w", err)
	}

	if _, err := tx.Exec(
		`INSERT INTO credentials (pool_id, name, classic, expansion, held, position) VALUES (?, ?, ?, ?, ?, ?)`,
		id, key.Name, key.Classic, key.Expansion, key.Held, position,
	); err != nil {
		return fmt.Errorf("failed to insert key: %w", err)
	}
	if err := r.touchPool(tx, id); err != nil {
		return err
	}

	return tx.Commit()
}

// RemoveKey removes a credential from a pool by name and closes the gap
// in the pool ordering.
func (r *keyPoolRepository) RemoveKey(pool, name string) error {
	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	id, err := r.poolID(tx, pool)
	if err != nil {
		return err
	}

	var position int64
	err = tx.QueryRow(
		`SELECT position FROM credentials WHERE pool_id = ? AND name = ?`, id, name,
	).Scan(&position)
	if errors.Is(err, sql.ErrNoRows) {
		return &fleet.KeyNotFoundError{Pool: pool, Name: name}
	}
	if err != nil {
		return fmt.Errorf("failed to find key position: %w", err)
	}

	if _, err := tx.Exec(
		`DELETE FROM credentials WHERE pool_id = ? AND name = ?`, id, name,
	); err != nil {
		return fmt.Errorf("failed to delete key: %w", err)
	}
	if _, err := tx.Exec(
		`UPDATE credentials SET position = position - 1 WHERE pool_id = ? AND position > ?`, id, position,
	); err != nil {
		return fmt.Errorf("failed to compact key positions: %w", err)
	}
	if err := r.touchPool(tx, id); err != nil {
		return err
	}

	return tx.Commit()
}

// SetHeld updates the persistent held flag of a credential.
func (r *keyPoolRepository) SetHeld(pool, name string, held bool) error {
	id, err := r.poolID(r.db, pool)
	if err != nil {
		return err
	}

	result, err := r.db.Exec(
		`UPDATE credentials SET held = ? WHERE pool_id = ? AND name = ?`, held, id, name,
	)
	if err != nil {
		return fmt.Errorf("failed to update key hold: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return &fleet.KeyNotFoundError{Pool: pool, Name: name}
	}
	return nil
}

// querier covers both *sql.DB and *sql.Tx for single-row lookups.
type querier interface {
	QueryRow(query string, args ...any) *sql.Row
	Exec(query string, args ...any) (sql.Result, error)
}

// poolID resolves a pool name to its row id.
// Returns KeyPoolNotFoundError if no matching pool exists.
func (r *keyPoolRepository) poolID(q querier, name string) (int64, error) {
	var id int64
	err := q.QueryRow(`SELECT id FROM key_pools WHERE name = ?`, name).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, &fleet.KeyPoolNotFoundError{Name: name}
	}
	if err != nil {
		return 0, fmt.Errorf("failed to find key pool: %w", err)
	}
	return id, nil
}

// touchPool bumps the pool's updated_at timestamp.
func (r *keyPoolRepository) touchPool(q querier, id int64) error {
	if _, err := q.Exec(`UPDATE key_pools SET updated_at = ? WHERE id = ?`, time.Now().Unix(), id); err != nil {
		return fmt.Errorf("failed to touch key pool: %w", err)
	}
	return nil
}

// loadKeys reads a pool's credentials in position order.
func (r *keyPoolRepository) loadKeys(poolID int64) ([]fleet.Credential, error) {
	rows, err := r.db.Query(
		`SELECT name, classic, expansion, held FROM credentials WHERE pool_id = ? ORDER BY position ASC`, poolID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list keys: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var keys []fleet.Credential
	for rows.Next() {
		var key fleet.Credential
		if err := rows.Scan(&key.Name, &key.Classic, &key.Expansion, &key.Held); err != nil {
			return nil, fmt.Errorf("failed to scan key row: %w", err)
		}
		keys = append(keys, key)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating key rows: %w", err)
	}

	return keys, nil
}
