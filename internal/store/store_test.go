package store

import (
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/zap"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "test.db"), zap.NewNop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSessionRoundTrip(t *testing.T) {
	s := openTestStore(t)

	if _, found, err := s.LoadSession(); err != nil || found {
		t.Fatalf("expected no session initially, found=%v err=%v", found, err)
	}

	payload := []byte(`{"token":"abc","user":{"id":1}}`)
	if err := s.SaveSession(payload); err != nil {
		t.Fatalf("SaveSession: %v", err)
	}

	data, found, err := s.LoadSession()
	if err != nil || !found {
		t.Fatalf("LoadSession: found=%v err=%v", found, err)
	}
	if string(data) != string(payload) {
		t.Errorf("unexpected session data: %s", data)
	}

	// Saving again replaces, not duplicates.
	if err := s.SaveSession([]byte(`{"token":"def"}`)); err != nil {
		t.Fatalf("SaveSession overwrite: %v", err)
	}
	data, _, _ = s.LoadSession()
	if string(data) != `{"token":"def"}` {
		t.Errorf("expected overwrite, got %s", data)
	}

	if err := s.ClearSession(); err != nil {
		t.Fatalf("ClearSession: %v", err)
	}
	if _, found, _ := s.LoadSession(); found {
		t.Error("expected session cleared")
	}
}

func TestPreferences(t *testing.T) {
	s := openTestStore(t)

	if _, found, err := s.GetPreference(PrefTheme); err != nil || found {
		t.Fatalf("expected no theme initially, found=%v err=%v", found, err)
	}

	if err := s.SetPreference(PrefTheme, "dark"); err != nil {
		t.Fatalf("SetPreference: %v", err)
	}
	value, found, err := s.GetPreference(PrefTheme)
	if err != nil || !found || value != "dark" {
		t.Fatalf("GetPreference = %q found=%v err=%v", value, found, err)
	}

	if err := s.SetPreference(PrefTheme, "light"); err != nil {
		t.Fatalf("SetPreference update: %v", err)
	}
	value, _, _ = s.GetPreference(PrefTheme)
	if value != "light" {
		t.Errorf("expected updated preference, got %q", value)
	}
}

func TestInstallIDStable(t *testing.T) {
	s := openTestStore(t)

	first, err := s.InstallID()
	if err != nil {
		t.Fatalf("InstallID: %v", err)
	}
	if first == "" {
		t.Fatal("expected non-empty install ID")
	}

	second, err := s.InstallID()
	if err != nil {
		t.Fatalf("InstallID second call: %v", err)
	}
	if first != second {
		t.Errorf("install ID not stable: %q vs %q", first, second)
	}
}

func TestSnapshotCache(t *testing.T) {
	s := openTestStore(t)

	if _, _, found, err := s.LoadSnapshot("dashboard"); err != nil || found {
		t.Fatalf("expected empty cache, found=%v err=%v", found, err)
	}

	cachedAt := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	if err := s.SaveSnapshot("dashboard", []byte(`{"total_clients":3}`), cachedAt); err != nil {
		t.Fatalf("SaveSnapshot: %v", err)
	}

	data, when, found, err := s.LoadSnapshot("dashboard")
	if err != nil || !found {
		t.Fatalf("LoadSnapshot: found=%v err=%v", found, err)
	}
	if string(data) != `{"total_clients":3}` {
		t.Errorf("unexpected cached data: %s", data)
	}
	if !when.Equal(cachedAt) {
		t.Errorf("unexpected cached_at: %v", when)
	}
}
