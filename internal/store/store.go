// Package store is the agent's local durable storage: the persisted session,
// UI preferences, and a cache of the last good dashboard snapshot so a
// restart without connectivity still has something consistent to show.
package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

// Well-known preference keys.
const (
	PrefTheme     = "ui_theme"
	PrefInstallID = "install_id"
)

// sessionKey is the single row under which the session record lives.
const sessionKey = "session"

type Store struct {
	*sql.DB
	logger *zap.Logger
}

// Open opens (or creates) the local database and runs migrations.
func Open(storagePath string, logger *zap.Logger) (*Store, error) {
	db, err := sql.Open("sqlite", storagePath+"?_foreign_keys=1&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	s := &Store{
		DB:     db,
		logger: logger,
	}

	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	logger.Info("Local store opened", zap.String("path", storagePath))
	return s, nil
}

func (s *Store) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS session (
			key TEXT PRIMARY KEY,
			data TEXT NOT NULL,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS preferences (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS snapshot_cache (
			key TEXT PRIMARY KEY,
			data TEXT NOT NULL,
			cached_at TIMESTAMP NOT NULL
		)`,
	}

	for _, migration := range migrations {
		if _, err := s.Exec(migration); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}

	s.logger.Debug("Store migrations completed")
	return nil
}

// SaveSession persists the serialized session record.
func (s *Store) SaveSession(data []byte) error {
	_, err := s.Exec(`
		INSERT INTO session (key, data, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET data = excluded.data, updated_at = excluded.updated_at
	`, sessionKey, string(data), time.Now())
	if err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	return nil
}

// LoadSession returns the persisted session record, if any.
func (s *Store) LoadSession() ([]byte, bool, error) {
	var data string
	err := s.QueryRow(`SELECT data FROM session WHERE key = ?`, sessionKey).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to load session: %w", err)
	}
	return []byte(data), true, nil
}

// ClearSession removes the persisted session record.
func (s *Store) ClearSession() error {
	if _, err := s.Exec(`DELETE FROM session WHERE key = ?`, sessionKey); err != nil {
		return fmt.Errorf("failed to clear session: %w", err)
	}
	return nil
}

// SetPreference stores a UI preference value.
func (s *Store) SetPreference(key, value string) error {
	_, err := s.Exec(`
		INSERT INTO preferences (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`, key, value, time.Now())
	if err != nil {
		return fmt.Errorf("failed to set preference %s: %w", key, err)
	}
	return nil
}

// GetPreference reads a UI preference value.
func (s *Store) GetPreference(key string) (string, bool, error) {
	var value string
	err := s.QueryRow(`SELECT value FROM preferences WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to get preference %s: %w", key, err)
	}
	return value, true, nil
}

// InstallID returns the stable identifier for this installation, generating
// and persisting one on first use.
func (s *Store) InstallID() (string, error) {
	id, found, err := s.GetPreference(PrefInstallID)
	if err != nil {
		return "", err
	}
	if found {
		return id, nil
	}

	id = uuid.New().String()
	if err := s.SetPreference(PrefInstallID, id); err != nil {
		return "", err
	}
	s.logger.Info("Generated installation ID", zap.String("install_id", id))
	return id, nil
}

// SaveSnapshot caches the last good serialized dashboard snapshot.
func (s *Store) SaveSnapshot(key string, data []byte, cachedAt time.Time) error {
	_, err := s.Exec(`
		INSERT INTO snapshot_cache (key, data, cached_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET data = excluded.data, cached_at = excluded.cached_at
	`, key, string(data), cachedAt)
	if err != nil {
		return fmt.Errorf("failed to cache snapshot %s: %w", key, err)
	}
	return nil
}

// LoadSnapshot returns a cached snapshot and the time it was taken.
func (s *Store) LoadSnapshot(key string) ([]byte, time.Time, bool, error) {
	var data string
	var cachedAt time.Time
	err := s.QueryRow(`SELECT data, cached_at FROM snapshot_cache WHERE key = ?`, key).Scan(&data, &cachedAt)
	if err == sql.ErrNoRows {
		return nil, time.Time{}, false, nil
	}
	if err != nil {
		return nil, time.Time{}, false, fmt.Errorf("failed to load snapshot %s: %w", key, err)
	}
	return []byte(data), cachedAt, true, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	if err := s.DB.Close(); err != nil {
		return fmt.Errorf("failed to close store: %w", err)
	}
	s.logger.Info("Local store closed")
	return nil
}
