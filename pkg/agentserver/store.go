/*
 * Copyright 2026 Isolapurr Project.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package agentserver implements the desktop companion agent: an HTTP
// storage service backed by SQLite that owns the device list and settings
// when multiple monitor clients share one machine.
package agentserver

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/isolapurr/hubmon/pkg/logger"
	"github.com/isolapurr/hubmon/pkg/models"
)

// SchemaVersion is bumped whenever the on-disk layout changes.
const SchemaVersion = 1

const schema = `
CREATE TABLE IF NOT EXISTS devices (
	id           TEXT PRIMARY KEY,
	name         TEXT NOT NULL,
	base_url     TEXT NOT NULL UNIQUE,
	last_seen_at TEXT NOT NULL DEFAULT ''
);
CREATE TABLE IF NOT EXISTS settings (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS meta (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
);
`

const (
	metaInitialized          = "initialized"
	metaMigratedAt           = "migrated_from_localstorage_at"
	metaLastCorruptAt        = "last_corrupt_at"
	metaLastCorruptReason    = "last_corrupt_reason"
	metaCorruptNoticePending = "corrupt_notice_pending"

	settingTheme = "theme"
)

// ErrNotFound is returned when a device id has no row.
var ErrNotFound = errors.New("device not found")

// ConflictError is a uniqueness violation in the device table.
type ConflictError struct {
	Message string
}

func (e *ConflictError) Error() string {
	return e.Message
}

const (
	conflictBaseURL = "Base URL already exists"
	conflictID      = "ID already exists"
)

// SQLStore is the agent's SQLite-backed storage.
type SQLStore struct {
	db     *sql.DB
	logger logger.Logger
}

// OpenStore opens (or creates) the database at path. A database that fails
// to open or migrate is moved aside and recreated empty; the event is
// recorded in meta so clients can warn the user once.
func OpenStore(path string, log logger.Logger) (*SQLStore, error) {
	db, err := openAndMigrate(path)
	if err != nil {
		log.Warn().Err(err).Str("path", path).Msg("storage database unusable, recreating")

		corruptPath := fmt.Sprintf("%s.corrupt-%d", path, time.Now().Unix())
		if renameErr := os.Rename(path, corruptPath); renameErr != nil {
			return nil, fmt.Errorf("failed to move corrupt database aside: %w", renameErr)
		}

		db, err = openAndMigrate(path)
		if err != nil {
			return nil, fmt.Errorf("failed to recreate database: %w", err)
		}

		store := &SQLStore{db: db, logger: log.WithComponent("store")}

		now := time.Now().UTC().Format(time.RFC3339)
		_ = store.setMeta(context.Background(), metaLastCorruptAt, now)
		_ = store.setMeta(context.Background(), metaLastCorruptReason, "open_failed")
		_ = store.setMeta(context.Background(), metaCorruptNoticePending, "1")

		return store, nil
	}

	return &SQLStore{db: db, logger: log.WithComponent("store")}, nil
}

func openAndMigrate(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, err
	}

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()

		return nil, err
	}

	// A quick read proves the file is actually a usable database, not
	// just openable bytes.
	var count int
	if err := db.QueryRow("SELECT COUNT(*) FROM devices").Scan(&count); err != nil {
		_ = db.Close()

		return nil, err
	}

	return db, nil
}

// Close releases the database handle.
func (s *SQLStore) Close() error {
	return s.db.Close()
}

// Devices returns all stored devices ordered by name.
func (s *SQLStore) Devices(ctx context.Context) ([]models.Device, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, name, base_url, last_seen_at FROM devices ORDER BY name, id")
	if err != nil {
		return nil, err
	}

	defer func() { _ = rows.Close() }()

	devices := make([]models.Device, 0)

	for rows.Next() {
		var d models.Device
		if err := rows.Scan(&d.ID, &d.Name, &d.BaseURL, &d.LastSeenAt); err != nil {
			return nil, err
		}

		devices = append(devices, d)
	}

	return devices, rows.Err()
}

// UpsertDevice stores a device. A device with a known id updates that row;
// a device without an id whose base URL matches an existing row renames
// that row; anything else inserts. Uniqueness violations surface as
// *ConflictError.
func (s *SQLStore) UpsertDevice(ctx context.Context, id, name, baseURL string) (models.Device, error) {
	if id != "" {
		var existingID string

		err := s.db.QueryRowContext(ctx,
			"SELECT id FROM devices WHERE id = ?", id).Scan(&existingID)

		switch {
		case err == nil:
			return s.updateDevice(ctx, id, name, baseURL)
		case errors.Is(err, sql.ErrNoRows):
			return s.insertDevice(ctx, id, name, baseURL)
		default:
			return models.Device{}, err
		}
	}

	// No id: adopt an existing row with the same base URL instead of
	// conflicting with it.
	var existingID string

	err := s.db.QueryRowContext(ctx,
		"SELECT id FROM devices WHERE base_url = ?", baseURL).Scan(&existingID)

	switch {
	case err == nil:
		return s.updateDevice(ctx, existingID, name, baseURL)
	case errors.Is(err, sql.ErrNoRows):
		return s.insertDevice(ctx, uuid.NewString(), name, baseURL)
	default:
		return models.Device{}, err
	}
}

func (s *SQLStore) insertDevice(ctx context.Context, id, name, baseURL string) (models.Device, error) {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO devices (id, name, base_url) VALUES (?, ?, ?)", id, name, baseURL)
	if err != nil {
		if conflict := classifyConstraint(err); conflict != nil {
			return models.Device{}, conflict
		}

		return models.Device{}, err
	}

	return s.deviceByID(ctx, id)
}

func (s *SQLStore) updateDevice(ctx context.Context, id, name, baseURL string) (models.Device, error) {
	var owner string

	err := s.db.QueryRowContext(ctx,
		"SELECT id FROM devices WHERE base_url = ? AND id != ?", baseURL, id).Scan(&owner)
	if err == nil {
		return models.Device{}, &ConflictError{Message: conflictBaseURL}
	} else if !errors.Is(err, sql.ErrNoRows) {
		return models.Device{}, err
	}

	if _, err := s.db.ExecContext(ctx,
		"UPDATE devices SET name = ?, base_url = ? WHERE id = ?", name, baseURL, id); err != nil {
		return models.Device{}, err
	}

	return s.deviceByID(ctx, id)
}

func (s *SQLStore) deviceByID(ctx context.Context, id string) (models.Device, error) {
	var d models.Device

	err := s.db.QueryRowContext(ctx,
		"SELECT id, name, base_url, last_seen_at FROM devices WHERE id = ?", id).
		Scan(&d.ID, &d.Name, &d.BaseURL, &d.LastSeenAt)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Device{}, ErrNotFound
	}

	return d, err
}

// DeleteDevice removes one device by id.
func (s *SQLStore) DeleteDevice(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, "DELETE FROM devices WHERE id = ?", id)
	if err != nil {
		return err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}

	if affected == 0 {
		return ErrNotFound
	}

	return nil
}

// Theme reads the stored theme; absent reads as the empty string.
func (s *SQLStore) Theme(ctx context.Context) (string, error) {
	var value string

	err := s.db.QueryRowContext(ctx,
		"SELECT value FROM settings WHERE key = ?", settingTheme).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}

	return value, err
}

// SaveTheme stores the theme preference.
func (s *SQLStore) SaveTheme(ctx context.Context, theme string) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO settings (key, value) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value",
		settingTheme, theme)

	return err
}

// Initialized reports whether the store has ever accepted data. Used to
// make the localStorage migration a one-time import.
func (s *SQLStore) Initialized(ctx context.Context) (bool, error) {
	value, err := s.getMeta(ctx, metaInitialized)
	if err != nil {
		return false, err
	}

	return value == "1", nil
}

// MarkInitialized records that the store now owns data.
func (s *SQLStore) MarkInitialized(ctx context.Context) error {
	return s.setMeta(ctx, metaInitialized, "1")
}

// MarkMigrated timestamps the localStorage import.
func (s *SQLStore) MarkMigrated(ctx context.Context) error {
	return s.setMeta(ctx, metaMigratedAt, time.Now().UTC().Format(time.RFC3339))
}

// Meta returns the bookkeeping entries for export.
func (s *SQLStore) Meta(ctx context.Context) (migratedAt, corruptAt, corruptReason string, err error) {
	if migratedAt, err = s.getMeta(ctx, metaMigratedAt); err != nil {
		return "", "", "", err
	}

	if corruptAt, err = s.getMeta(ctx, metaLastCorruptAt); err != nil {
		return "", "", "", err
	}

	if corruptReason, err = s.getMeta(ctx, metaLastCorruptReason); err != nil {
		return "", "", "", err
	}

	return migratedAt, corruptAt, corruptReason, nil
}

// ConsumeCorruptNotice reports, once, that the database was recreated
// after a corruption. Subsequent calls return false.
func (s *SQLStore) ConsumeCorruptNotice(ctx context.Context) (bool, error) {
	value, err := s.getMeta(ctx, metaCorruptNoticePending)
	if err != nil {
		return false, err
	}

	if value != "1" {
		return false, nil
	}

	_, err = s.db.ExecContext(ctx, "DELETE FROM meta WHERE key = ?", metaCorruptNoticePending)

	return true, err
}

// Reset wipes devices and settings but keeps the corruption bookkeeping.
func (s *SQLStore) Reset(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}

	for _, stmt := range []string{
		"DELETE FROM devices",
		"DELETE FROM settings",
		"DELETE FROM meta WHERE key IN (?, ?)",
	} {
		if strings.HasPrefix(stmt, "DELETE FROM meta") {
			_, err = tx.ExecContext(ctx, stmt, metaInitialized, metaMigratedAt)
		} else {
			_, err = tx.ExecContext(ctx, stmt)
		}

		if err != nil {
			_ = tx.Rollback()

			return err
		}
	}

	return tx.Commit()
}

func (s *SQLStore) getMeta(ctx context.Context, key string) (string, error) {
	var value string

	err := s.db.QueryRowContext(ctx, "SELECT value FROM meta WHERE key = ?", key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}

	return value, err
}

func (s *SQLStore) setMeta(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO meta (key, value) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value",
		key, value)

	return err
}

func classifyConstraint(err error) *ConflictError {
	msg := err.Error()
	if !strings.Contains(msg, "UNIQUE constraint failed") {
		return nil
	}

	if strings.Contains(msg, "devices.base_url") {
		return &ConflictError{Message: conflictBaseURL}
	}

	if strings.Contains(msg, "devices.id") {
		return &ConflictError{Message: conflictID}
	}

	return &ConflictError{Message: conflictBaseURL}
}
