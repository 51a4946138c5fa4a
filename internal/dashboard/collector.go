// Package dashboard keeps an in-memory snapshot of the backend's dashboard
// aggregates, refreshed on a fixed interval and cached locally so a restart
// without connectivity still shows the last good state.
package dashboard

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"backupcontrol/internal/api"
	"backupcontrol/internal/models"
	"backupcontrol/internal/status"

	"go.uber.org/zap"
)

// cacheKey identifies the persisted snapshot record.
const cacheKey = "dashboard"

// alertFetchLimit caps the unresolved alerts shown on the dashboard.
const alertFetchLimit = 100

// Backend is the slice of the API client the collector consumes.
type Backend interface {
	DashboardSummary(ctx context.Context) (*models.DashboardSummary, error)
	StatusOverview(ctx context.Context) ([]models.ClientOverview, error)
	RecentEvents(ctx context.Context, limit int) ([]models.RecentEvent, error)
	ListAlerts(ctx context.Context, filter api.AlertFilter) ([]models.Alert, error)
	Trends(ctx context.Context, days int) ([]models.TrendPoint, error)
}

// Cache persists the last good snapshot across restarts.
type Cache interface {
	SaveSnapshot(key string, data []byte, cachedAt time.Time) error
	LoadSnapshot(key string) ([]byte, time.Time, bool, error)
}

// Snapshot is the assembled dashboard state handed to the view layer.
type Snapshot struct {
	GeneratedAt   time.Time               `json:"generated_at"`
	SourceOnline  bool                    `json:"source_online"`
	SourceError   *string                 `json:"source_error"`
	Stale         bool                    `json:"stale"`
	OverallHealth status.Health           `json:"overall_health"`
	Summary       models.DashboardSummary `json:"summary"`
	Overview      []models.ClientOverview `json:"overview"`
	RecentEvents  []models.RecentEvent    `json:"recent_events"`
	Alerts        []models.Alert          `json:"alerts"`
	Trends        []models.TrendPoint     `json:"trends"`
}

type Collector struct {
	backend         Backend
	cache           Cache
	refreshInterval time.Duration
	recentLimit     int
	trendDays       int
	logger          *zap.Logger

	mu          sync.RWMutex
	snapshot    Snapshot
	hasSnapshot bool
	lastGood    Snapshot
	hasLastGood bool
}

func New(backend Backend, cache Cache, refreshInterval time.Duration, recentLimit, trendDays int, logger *zap.Logger) *Collector {
	return &Collector{
		backend:         backend,
		cache:           cache,
		refreshInterval: refreshInterval,
		recentLimit:     recentLimit,
		trendDays:       trendDays,
		logger:          logger,
	}
}

// Start restores any cached snapshot, refreshes once, then refreshes on the
// interval until ctx is cancelled.
func (c *Collector) Start(ctx context.Context) {
	c.restoreCached()
	c.Refresh(ctx)

	ticker := time.NewTicker(c.refreshInterval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				c.logger.Debug("Dashboard refresh loop stopped")
				return
			case <-ticker.C:
				c.Refresh(ctx)
			}
		}
	}()

	c.logger.Info("Dashboard collector started",
		zap.Duration("refresh_interval", c.refreshInterval),
	)
}

// Ready reports whether any snapshot (fresh or cached) is available.
func (c *Collector) Ready() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.hasSnapshot
}

// Snapshot returns the current state, marking it stale when it has outlived
// two refresh intervals or the source is offline.
func (c *Collector) Snapshot() (Snapshot, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if !c.hasSnapshot {
		return Snapshot{}, false
	}

	out := c.snapshot
	if !out.GeneratedAt.IsZero() && time.Since(out.GeneratedAt) > 2*c.refreshInterval {
		out.Stale = true
	}
	if !out.SourceOnline {
		out.Stale = true
	}
	return out, true
}

// Refresh fetches all dashboard sources and publishes a new snapshot. The
// whole refresh is gated on every fetch succeeding: one slow or failing
// source blocks the rest, matching how the pages behave today.
func (c *Collector) Refresh(ctx context.Context) {
	now := time.Now().UTC()
	snapshot, err := c.collect(ctx, now)
	if err == nil {
		c.mu.Lock()
		c.snapshot = snapshot
		c.lastGood = snapshot
		c.hasSnapshot = true
		c.hasLastGood = true
		c.mu.Unlock()

		c.persist(snapshot)
		return
	}

	if ctx.Err() != nil {
		return
	}
	c.logger.Warn("Dashboard refresh failed", zap.Error(err))
	errText := err.Error()

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.hasLastGood {
		fallback := c.lastGood
		fallback.SourceOnline = false
		fallback.SourceError = &errText
		fallback.Stale = true
		c.snapshot = fallback
		c.hasSnapshot = true
		return
	}

	c.snapshot = Snapshot{
		GeneratedAt:   now,
		SourceOnline:  false,
		SourceError:   &errText,
		Stale:         true,
		OverallHealth: status.HealthUnknown,
	}
	c.hasSnapshot = true
}

func (c *Collector) collect(ctx context.Context, now time.Time) (Snapshot, error) {
	var (
		summary  *models.DashboardSummary
		overview []models.ClientOverview
		events   []models.RecentEvent
		alerts   []models.Alert
		trends   []models.TrendPoint
	)
	errs := make([]error, 5)

	// Independent fetches resolve in any order; the join below is the
	// single combined gate.
	var wg sync.WaitGroup
	wg.Add(5)
	go func() {
		defer wg.Done()
		summary, errs[0] = c.backend.DashboardSummary(ctx)
	}()
	go func() {
		defer wg.Done()
		overview, errs[1] = c.backend.StatusOverview(ctx)
	}()
	go func() {
		defer wg.Done()
		events, errs[2] = c.backend.RecentEvents(ctx, c.recentLimit)
	}()
	go func() {
		defer wg.Done()
		alerts, errs[3] = c.backend.ListAlerts(ctx, api.AlertFilter{Status: models.AlertStatusNew, Limit: alertFetchLimit})
	}()
	go func() {
		defer wg.Done()
		trends, errs[4] = c.backend.Trends(ctx, c.trendDays)
	}()
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return Snapshot{}, err
		}
	}

	sort.SliceStable(alerts, func(i, j int) bool {
		return status.SeverityRank(alerts[i].Severity) < status.SeverityRank(alerts[j].Severity)
	})

	overallHealth := status.FromCounts(status.Counts{
		Total:    summary.TotalBackups,
		OK:       summary.BackupsOK,
		Critical: summary.BackupsCritical + summary.BackupsFailed,
	})

	return Snapshot{
		GeneratedAt:   now,
		SourceOnline:  true,
		Stale:         false,
		OverallHealth: overallHealth,
		Summary:       *summary,
		Overview:      overview,
		RecentEvents:  events,
		Alerts:        alerts,
		Trends:        trends,
	}, nil
}

func (c *Collector) persist(snapshot Snapshot) {
	if c.cache == nil {
		return
	}
	data, err := json.Marshal(snapshot)
	if err != nil {
		c.logger.Error("Failed to serialize snapshot for cache", zap.Error(err))
		return
	}
	if err := c.cache.SaveSnapshot(cacheKey, data, snapshot.GeneratedAt); err != nil {
		c.logger.Error("Failed to cache snapshot", zap.Error(err))
	}
}

// restoreCached seeds the collector with the last persisted snapshot so the
// UI has a stale-but-consistent view before the first refresh completes.
func (c *Collector) restoreCached() {
	if c.cache == nil {
		return
	}
	data, cachedAt, found, err := c.cache.LoadSnapshot(cacheKey)
	if err != nil {
		c.logger.Warn("Failed to load cached snapshot", zap.Error(err))
		return
	}
	if !found {
		return
	}

	var snapshot Snapshot
	if err := json.Unmarshal(data, &snapshot); err != nil {
		c.logger.Warn("Discarding unreadable cached snapshot", zap.Error(err))
		return
	}
	snapshot.Stale = true

	c.mu.Lock()
	c.snapshot = snapshot
	c.lastGood = snapshot
	c.hasSnapshot = true
	c.hasLastGood = true
	c.mu.Unlock()

	c.logger.Info("Restored cached dashboard snapshot", zap.Time("cached_at", cachedAt))
}
