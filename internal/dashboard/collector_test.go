package dashboard

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"backupcontrol/internal/api"
	"backupcontrol/internal/models"
	"backupcontrol/internal/status"

	"go.uber.org/zap"
)

// fakeBackend serves canned aggregates, optionally failing one source.
type fakeBackend struct {
	summary models.DashboardSummary
	alerts  []models.Alert
	failing bool
}

func (f *fakeBackend) DashboardSummary(ctx context.Context) (*models.DashboardSummary, error) {
	if f.failing {
		return nil, errors.New("connection refused")
	}
	s := f.summary
	return &s, nil
}

func (f *fakeBackend) StatusOverview(ctx context.Context) ([]models.ClientOverview, error) {
	return []models.ClientOverview{{ClientID: 1, ClientName: "Acme", GlobalStatus: "critical"}}, nil
}

func (f *fakeBackend) RecentEvents(ctx context.Context, limit int) ([]models.RecentEvent, error) {
	return []models.RecentEvent{{ID: 1, EventType: "failure", BackupName: "NAS quotidien", ClientName: "Acme"}}, nil
}

func (f *fakeBackend) ListAlerts(ctx context.Context, filter api.AlertFilter) ([]models.Alert, error) {
	return f.alerts, nil
}

func (f *fakeBackend) Trends(ctx context.Context, days int) ([]models.TrendPoint, error) {
	return []models.TrendPoint{{Date: "2026-08-31", Success: 12, Failure: 2}}, nil
}

// memCache is an in-memory snapshot cache.
type memCache struct {
	data     []byte
	cachedAt time.Time
}

func (m *memCache) SaveSnapshot(key string, data []byte, cachedAt time.Time) error {
	m.data = append([]byte(nil), data...)
	m.cachedAt = cachedAt
	return nil
}

func (m *memCache) LoadSnapshot(key string) ([]byte, time.Time, bool, error) {
	if m.data == nil {
		return nil, time.Time{}, false, nil
	}
	return m.data, m.cachedAt, true, nil
}

func testSummary() models.DashboardSummary {
	return models.DashboardSummary{
		TotalClients:    3,
		TotalBackups:    10,
		BackupsOK:       7,
		BackupsWarning:  1,
		BackupsCritical: 2,
	}
}

func TestRefreshAssemblesSnapshot(t *testing.T) {
	backend := &fakeBackend{
		summary: testSummary(),
		alerts: []models.Alert{
			{ID: 1, Severity: "info"},
			{ID: 2, Severity: "critical"},
			{ID: 3, Severity: "high"},
		},
	}
	c := New(backend, nil, time.Minute, 20, 7, zap.NewNop())

	c.Refresh(context.Background())

	snapshot, ok := c.Snapshot()
	if !ok {
		t.Fatal("expected snapshot")
	}
	if !snapshot.SourceOnline || snapshot.Stale {
		t.Errorf("expected fresh online snapshot: %+v", snapshot)
	}
	if snapshot.Summary.TotalBackups != 10 {
		t.Errorf("unexpected summary: %+v", snapshot.Summary)
	}
	// 2 critical among 10 dominates even though ok < total.
	if snapshot.OverallHealth != status.HealthCritical {
		t.Errorf("expected critical overall health, got %q", snapshot.OverallHealth)
	}
	// Alerts ordered by severity.
	if snapshot.Alerts[0].Severity != "critical" || snapshot.Alerts[1].Severity != "high" {
		t.Errorf("alerts not ordered by severity: %+v", snapshot.Alerts)
	}
	if len(snapshot.Overview) != 1 || len(snapshot.RecentEvents) != 1 || len(snapshot.Trends) != 1 {
		t.Errorf("expected all sources present: %+v", snapshot)
	}
}

func TestRefreshFailureKeepsLastGood(t *testing.T) {
	backend := &fakeBackend{summary: testSummary()}
	c := New(backend, nil, time.Minute, 20, 7, zap.NewNop())

	c.Refresh(context.Background())
	backend.failing = true
	c.Refresh(context.Background())

	snapshot, ok := c.Snapshot()
	if !ok {
		t.Fatal("expected snapshot")
	}
	if snapshot.SourceOnline {
		t.Error("expected source offline after failure")
	}
	if !snapshot.Stale {
		t.Error("expected stale snapshot after failure")
	}
	if snapshot.SourceError == nil {
		t.Error("expected source error recorded")
	}
	// Prior data retained: stale-but-consistent display.
	if snapshot.Summary.TotalBackups != 10 {
		t.Errorf("expected last good data retained: %+v", snapshot.Summary)
	}
}

func TestRefreshFailureWithoutHistory(t *testing.T) {
	backend := &fakeBackend{failing: true}
	c := New(backend, nil, time.Minute, 20, 7, zap.NewNop())

	c.Refresh(context.Background())

	snapshot, ok := c.Snapshot()
	if !ok {
		t.Fatal("expected an error snapshot even without history")
	}
	if snapshot.SourceOnline || !snapshot.Stale {
		t.Errorf("expected offline stale snapshot: %+v", snapshot)
	}
	if snapshot.OverallHealth != status.HealthUnknown {
		t.Errorf("expected unknown health, got %q", snapshot.OverallHealth)
	}
}

func TestSnapshotBecomesStaleByAge(t *testing.T) {
	c := New(&fakeBackend{}, nil, time.Minute, 20, 7, zap.NewNop())
	c.snapshot = Snapshot{
		GeneratedAt:  time.Now().UTC().Add(-3 * time.Minute),
		SourceOnline: true,
	}
	c.hasSnapshot = true

	snapshot, ok := c.Snapshot()
	if !ok {
		t.Fatal("expected snapshot")
	}
	if !snapshot.Stale {
		t.Error("expected snapshot older than 2 refresh intervals to be stale")
	}
}

func TestSnapshotPersistedAndRestored(t *testing.T) {
	cache := &memCache{}
	backend := &fakeBackend{summary: testSummary()}

	first := New(backend, cache, time.Minute, 20, 7, zap.NewNop())
	first.Refresh(context.Background())
	if cache.data == nil {
		t.Fatal("expected snapshot persisted to cache")
	}

	var persisted Snapshot
	if err := json.Unmarshal(cache.data, &persisted); err != nil {
		t.Fatalf("cached snapshot not valid JSON: %v", err)
	}

	// A new collector restores the cached snapshot before any refresh.
	second := New(&fakeBackend{failing: true}, cache, time.Minute, 20, 7, zap.NewNop())
	second.restoreCached()

	snapshot, ok := second.Snapshot()
	if !ok {
		t.Fatal("expected restored snapshot")
	}
	if !snapshot.Stale {
		t.Error("restored snapshot must be marked stale")
	}
	if snapshot.Summary.TotalBackups != 10 {
		t.Errorf("expected restored summary data: %+v", snapshot.Summary)
	}
}
