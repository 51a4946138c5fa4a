package session

import (
	"testing"

	"backupcontrol/internal/models"

	"go.uber.org/zap"
)

// memPersister is an in-memory Persister for tests.
type memPersister struct {
	session []byte
	prefs   map[string]string
}

func newMemPersister() *memPersister {
	return &memPersister{prefs: make(map[string]string)}
}

func (m *memPersister) SaveSession(data []byte) error {
	m.session = append([]byte(nil), data...)
	return nil
}

func (m *memPersister) LoadSession() ([]byte, bool, error) {
	if m.session == nil {
		return nil, false, nil
	}
	return m.session, true, nil
}

func (m *memPersister) ClearSession() error {
	m.session = nil
	return nil
}

func (m *memPersister) SetPreference(key, value string) error {
	m.prefs[key] = value
	return nil
}

func (m *memPersister) GetPreference(key string) (string, bool, error) {
	value, ok := m.prefs[key]
	return value, ok, nil
}

func TestSetAuthAndClear(t *testing.T) {
	p := newMemPersister()
	s, err := New(p, zap.NewNop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if s.Authenticated() {
		t.Fatal("expected logged-out store")
	}

	user := &models.UserProfile{ID: 1, Email: "tech@example.com"}
	if err := s.SetAuth("token-123", user); err != nil {
		t.Fatalf("SetAuth: %v", err)
	}
	if !s.Authenticated() || s.Token() != "token-123" {
		t.Errorf("expected authenticated with token-123, got %q", s.Token())
	}
	if s.User() == nil || s.User().Email != "tech@example.com" {
		t.Errorf("unexpected user: %+v", s.User())
	}

	if err := s.Clear(); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if s.Authenticated() || s.Token() != "" || s.User() != nil {
		t.Error("expected fully cleared session")
	}
	if p.session != nil {
		t.Error("expected persisted session removed")
	}
}

func TestSetAuthRejectsEmptyToken(t *testing.T) {
	s, err := New(newMemPersister(), zap.NewNop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := s.SetAuth("", &models.UserProfile{ID: 1}); err == nil {
		t.Fatal("expected error for empty token")
	}
}

func TestSessionRestoredAcrossInstances(t *testing.T) {
	p := newMemPersister()
	first, err := New(p, zap.NewNop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := first.SetAuth("persisted-token", &models.UserProfile{ID: 7, Username: "ops"}); err != nil {
		t.Fatalf("SetAuth: %v", err)
	}

	second, err := New(p, zap.NewNop())
	if err != nil {
		t.Fatalf("New second: %v", err)
	}
	if second.Token() != "persisted-token" {
		t.Errorf("expected restored token, got %q", second.Token())
	}
	if second.User() == nil || second.User().Username != "ops" {
		t.Errorf("expected restored user, got %+v", second.User())
	}
}

func TestCorruptPersistedSessionTreatedAsLoggedOut(t *testing.T) {
	p := newMemPersister()
	p.session = []byte("{not json")

	s, err := New(p, zap.NewNop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if s.Authenticated() {
		t.Error("expected logged-out store for corrupt record")
	}
	if p.session != nil {
		t.Error("expected corrupt record discarded")
	}
}

func TestThemeDefaultAndRoundTrip(t *testing.T) {
	s, err := New(newMemPersister(), zap.NewNop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if s.Theme() != "light" {
		t.Errorf("expected default theme light, got %q", s.Theme())
	}
	if err := s.SetTheme("dark"); err != nil {
		t.Fatalf("SetTheme: %v", err)
	}
	if s.Theme() != "dark" {
		t.Errorf("expected dark, got %q", s.Theme())
	}
}
