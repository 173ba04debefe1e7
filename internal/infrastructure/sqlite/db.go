// Package sqlite provides the persistent store for warden: database
// bootstrap with embedded schema migrations, and the repositories the
// engine reads and writes fleet configuration through.
package sqlite

import (
	"database/sql"
	"fmt"
	"io"
	"os"
	"path/filepath"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"

	"github.com/zjrosen/warden/internal/fleet"
	"github.com/zjrosen/warden/internal/log"
)

// DB owns the sqlite connection and the repository instances bound to it.
type DB struct {
	conn      *sql.DB
	profiles  *profileRepository
	keyPools  *keyPoolRepository
	schedules *scheduleRepository
	settings  *settingsRepository
}

// NewDB opens (creating if necessary) the warden database at path and
// applies any pending migrations. An existing database file is copied to
// path+".bak" first so a bad migration never eats the only copy. The
// connection runs in WAL mode with foreign keys on and a 5s busy timeout.
func NewDB(path string) (*DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	if _, err := os.Stat(path); err == nil {
		if err := backupFile(path, path+".bak"); err != nil {
			return nil, fmt.Errorf("failed to back up database: %w", err)
		}
		log.Debug(log.CatDB, "pre-migration backup written", "path", path+".bak")
	}

	dsn := "file:" + path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(wal)&_pragma=foreign_keys(on)"
	conn, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := conn.Ping(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := migrateUp(conn); err != nil {
		_ = conn.Close()
		return nil, err
	}

	log.Debug(log.CatDB, "database ready", "path", path)

	return &DB{
		conn:      conn,
		profiles:  newProfileRepository(conn),
		keyPools:  newKeyPoolRepository(conn),
		schedules: newScheduleRepository(conn),
		settings:  newSettingsRepository(conn),
	}, nil
}

// Close closes the underlying database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

// Connection returns the underlying *sql.DB.
func (db *DB) Connection() *sql.DB {
	return db.conn
}

// ProfileRepository returns the profile persistence interface.
func (db *DB) ProfileRepository() fleet.ProfileRepository {
	return db.profiles
}

// KeyPoolRepository returns the key pool persistence interface.
func (db *DB) KeyPoolRepository() fleet.KeyPoolRepository {
	return db.keyPools
}

// ScheduleRepository returns the schedule persistence interface.
func (db *DB) ScheduleRepository() fleet.ScheduleRepository {
	return db.schedules
}

// SettingsRepository returns the settings persistence interface.
func (db *DB) SettingsRepository() fleet.SettingsRepository {
	return db.settings
}

// backupFile copies src to dst, truncating any previous backup.
func backupFile(src, dst string) error {
	in, err := os.Open(src) // #nosec G304 -- database path comes from validated config
	if err != nil {
		return err
	}
	defer func() { _ = in.Close() }()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600) // #nosec G304
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return err
	}
	return out.Close()
}
