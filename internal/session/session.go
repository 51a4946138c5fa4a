// Package session holds the authenticated user and token. It is the only
// cross-component shared mutable state; all mutation goes through SetAuth
// and Clear so the send-time token read in the API client never sees a
// half-written record.
package session

import (
	"encoding/json"
	"fmt"
	"sync"

	"backupcontrol/internal/models"

	"go.uber.org/zap"
)

// Persister is the durable storage the session survives restarts in.
type Persister interface {
	SaveSession(data []byte) error
	LoadSession() ([]byte, bool, error)
	ClearSession() error
	SetPreference(key, value string) error
	GetPreference(key string) (string, bool, error)
}

// record is the single durable-storage representation of a session.
type record struct {
	Token string              `json:"token"`
	User  *models.UserProfile `json:"user,omitempty"`
}

type Store struct {
	mu        sync.RWMutex
	token     string
	user      *models.UserProfile
	persister Persister
	logger    *zap.Logger
}

// New creates a session store, restoring any persisted session.
func New(persister Persister, logger *zap.Logger) (*Store, error) {
	s := &Store{
		persister: persister,
		logger:    logger,
	}

	data, found, err := persister.LoadSession()
	if err != nil {
		return nil, fmt.Errorf("failed to restore session: %w", err)
	}
	if found {
		var rec record
		if err := json.Unmarshal(data, &rec); err != nil {
			// A corrupt record is treated as logged out.
			logger.Warn("Discarding unreadable persisted session", zap.Error(err))
			_ = persister.ClearSession()
		} else if rec.Token != "" {
			s.token = rec.Token
			s.user = rec.User
			logger.Info("Session restored")
		}
	}

	return s, nil
}

// SetAuth installs a new token and user, persisting them. An empty token is
// rejected: a session without a token is not a session.
func (s *Store) SetAuth(token string, user *models.UserProfile) error {
	if token == "" {
		return fmt.Errorf("cannot set auth with empty token")
	}

	rec := record{Token: token, User: user}
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to serialize session: %w", err)
	}
	if err := s.persister.SaveSession(data); err != nil {
		return err
	}

	s.mu.Lock()
	s.token = token
	s.user = user
	s.mu.Unlock()

	s.logger.Info("Session established")
	return nil
}

// Clear drops the session from memory and durable storage. Safe to call
// when already logged out.
func (s *Store) Clear() error {
	s.mu.Lock()
	hadSession := s.token != ""
	s.token = ""
	s.user = nil
	s.mu.Unlock()

	if err := s.persister.ClearSession(); err != nil {
		return err
	}
	if hadSession {
		s.logger.Info("Session cleared")
	}
	return nil
}

// Token returns the current bearer token, empty when logged out. The API
// client calls this on every request so a token set after client
// construction is honored and a cleared one is never reused.
func (s *Store) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token
}

// User returns the current user profile, nil when logged out.
func (s *Store) User() *models.UserProfile {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.user
}

// Authenticated reports whether a token is present.
func (s *Store) Authenticated() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token != ""
}

// Theme preference, persisted separately from the session record.
const themeKey = "ui_theme"

// Theme returns the stored UI theme, defaulting to "light".
func (s *Store) Theme() string {
	value, found, err := s.persister.GetPreference(themeKey)
	if err != nil {
		s.logger.Warn("Failed to read theme preference", zap.Error(err))
		return "light"
	}
	if !found {
		return "light"
	}
	return value
}

// SetTheme stores the UI theme preference.
func (s *Store) SetTheme(theme string) error {
	return s.persister.SetPreference(themeKey, theme)
}
