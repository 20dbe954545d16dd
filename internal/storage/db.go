// Package storage persists planned/actual events, raw evidence, user
// places, app overrides, and pattern snapshots in SQLite.
package storage

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

const (
	SchemaVersion = 2
)

// DB represents the database connection.
type DB struct {
	conn *sql.DB
}

// NewDB opens (or creates) the database at dbPath and applies migrations.
func NewDB(dbPath string) (*DB, error) {
	conn, err := sql.Open("sqlite3", dbPath+"?_busy_timeout=10000&_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, wrapErr("open", err)
	}
	conn.SetMaxOpenConns(1) // one writer at a time under SQLite

	db := &DB{conn: conn}
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, err
	}
	return db, nil
}

// migrate applies schema migrations incrementally via PRAGMA user_version.
func (db *DB) migrate() error {
	tx, err := db.conn.Begin()
	if err != nil {
		return wrapErr("migrate", err)
	}
	defer tx.Rollback()

	var version int
	if err := tx.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return wrapErr("migrate", err)
	}

	for version < SchemaVersion {
		version++
		switch version {
		case 1:
			if err := applySchemaV1(tx); err != nil {
				return wrapErr("migrate", fmt.Errorf("failed to apply schema v%d: %w", version, err))
			}
		case 2:
			if err := applySchemaV2(tx); err != nil {
				return wrapErr("migrate", fmt.Errorf("failed to apply schema v%d: %w", version, err))
			}
		default:
			return wrapErr("migrate", fmt.Errorf("unknown schema version: %d", version))
		}
	}

	if _, err := tx.Exec(fmt.Sprintf("PRAGMA user_version = %d", SchemaVersion)); err != nil {
		return wrapErr("migrate", err)
	}
	if err := tx.Commit(); err != nil {
		return wrapErr("migrate", err)
	}
	return nil
}

// applySchemaV1 creates the event and evidence tables.
func applySchemaV1(tx *sql.Tx) error {
	_, err := tx.Exec(`
		CREATE TABLE IF NOT EXISTS events (
			id TEXT PRIMARY KEY,
			ymd TEXT NOT NULL,
			role TEXT NOT NULL CHECK(role IN ('planned', 'actual')),
			title TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			category TEXT NOT NULL,
			start_minutes INTEGER NOT NULL CHECK(start_minutes >= 0 AND start_minutes < 1440),
			duration INTEGER NOT NULL CHECK(duration > 0),
			location TEXT NOT NULL DEFAULT '',
			source TEXT NOT NULL DEFAULT '',
			kind TEXT NOT NULL DEFAULT '',
			confidence REAL NOT NULL DEFAULT 0,
			source_id TEXT NOT NULL DEFAULT '',
			learned_from TEXT NOT NULL DEFAULT '',
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return err
	}
	if _, err := tx.Exec(`CREATE INDEX IF NOT EXISTS idx_events_day ON events(ymd, role)`); err != nil {
		return err
	}

	_, err = tx.Exec(`
		CREATE TABLE IF NOT EXISTS location_hourly (
			ymd TEXT NOT NULL,
			hour INTEGER NOT NULL CHECK(hour >= 0 AND hour < 24),
			place_id TEXT NOT NULL DEFAULT '',
			place_label TEXT NOT NULL DEFAULT '',
			sample_count INTEGER NOT NULL DEFAULT 0,
			confidence REAL NOT NULL DEFAULT 0,
			PRIMARY KEY (ymd, hour)
		)
	`)
	if err != nil {
		return err
	}

	_, err = tx.Exec(`
		CREATE TABLE IF NOT EXISTS location_samples (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			ymd TEXT NOT NULL,
			ts DATETIME NOT NULL,
			lat REAL NOT NULL,
			lon REAL NOT NULL,
			accuracy REAL NOT NULL DEFAULT 0,
			place_id TEXT NOT NULL DEFAULT ''
		)
	`)
	if err != nil {
		return err
	}

	_, err = tx.Exec(`
		CREATE TABLE IF NOT EXISTS screen_sessions (
			id TEXT PRIMARY KEY,
			ymd TEXT NOT NULL,
			app TEXT NOT NULL,
			started DATETIME NOT NULL,
			ended DATETIME NOT NULL
		)
	`)
	if err != nil {
		return err
	}

	_, err = tx.Exec(`
		CREATE TABLE IF NOT EXISTS health_workouts (
			id TEXT PRIMARY KEY,
			ymd TEXT NOT NULL,
			activity TEXT NOT NULL,
			started DATETIME NOT NULL,
			ended DATETIME NOT NULL
		)
	`)
	if err != nil {
		return err
	}

	_, err = tx.Exec(`
		CREATE TABLE IF NOT EXISTS health_daily (
			ymd TEXT PRIMARY KEY,
			asleep_seconds INTEGER,
			hrv_ms REAL,
			resting_bpm REAL,
			average_bpm REAL,
			steps INTEGER,
			active_kj REAL
		)
	`)
	if err != nil {
		return err
	}

	_, err = tx.Exec(`
		CREATE TABLE IF NOT EXISTS user_places (
			id TEXT PRIMARY KEY,
			label TEXT NOT NULL,
			lat REAL NOT NULL,
			lon REAL NOT NULL,
			radius_m REAL NOT NULL DEFAULT 150
		)
	`)
	return err
}

// applySchemaV2 adds app overrides and pattern snapshots.
func applySchemaV2(tx *sql.Tx) error {
	_, err := tx.Exec(`
		CREATE TABLE IF NOT EXISTS app_overrides (
			app_name TEXT PRIMARY KEY,
			title TEXT NOT NULL DEFAULT '',
			category TEXT NOT NULL,
			confidence REAL NOT NULL DEFAULT 0
		)
	`)
	if err != nil {
		return err
	}

	_, err = tx.Exec(`
		CREATE TABLE IF NOT EXISTS pattern_slots (
			window_start_ymd TEXT NOT NULL,
			window_end_ymd TEXT NOT NULL,
			generated_at DATETIME NOT NULL,
			weekday INTEGER NOT NULL CHECK(weekday >= 0 AND weekday < 7),
			slot_start INTEGER NOT NULL,
			category TEXT NOT NULL,
			title TEXT NOT NULL,
			confidence REAL NOT NULL,
			sample_count INTEGER NOT NULL,
			avg_duration INTEGER NOT NULL,
			PRIMARY KEY (weekday, slot_start)
		)
	`)
	return err
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

// Conn returns the underlying connection.
func (db *DB) Conn() *sql.DB {
	return db.conn
}

// Ping verifies database connectivity.
func (db *DB) Ping() error {
	return wrapErr("ping", db.conn.Ping())
}
