// Package analysis drives the backend's long-running email fetch-and-analyze
// job and polls its progress on a fixed interval until the job reports
// complete or error.
package analysis

import (
	"context"
	"errors"
	"sync"
	"time"

	"backupcontrol/internal/models"

	"go.uber.org/zap"
)

// ErrAnalysisRunning is returned when Start is called while a previous run
// is still polling. Only one poll loop may be active per monitor.
var ErrAnalysisRunning = errors.New("an analysis is already running")

// JobSource triggers the job and reports its progress.
type JobSource interface {
	StartAnalysis(ctx context.Context) (*models.AnalysisResult, error)
	AnalysisProgress(ctx context.Context) (*models.AnalysisProgress, error)
}

// Monitor owns the poll loop lifecycle for one view.
type Monitor struct {
	source       JobSource
	pollInterval time.Duration
	logger       *zap.Logger

	mu     sync.Mutex
	active bool
	latest models.AnalysisProgress
}

func NewMonitor(source JobSource, pollInterval time.Duration, logger *zap.Logger) *Monitor {
	return &Monitor{
		source:       source,
		pollInterval: pollInterval,
		logger:       logger,
		latest:       models.AnalysisProgress{Status: models.AnalysisIdle},
	}
}

// Handle controls one running analysis. Cancel is idempotent and guarantees
// no further requests are issued by this run; it must be invoked on view
// teardown even if the job never reported completion.
type Handle struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// Cancel stops the poll loop and the in-flight trigger request.
func (h *Handle) Cancel() {
	h.cancel()
}

// Done is closed when the poll loop has fully stopped.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Running reports whether a poll loop is active.
func (m *Monitor) Running() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.active
}

// Latest returns the most recently observed progress.
func (m *Monitor) Latest() models.AnalysisProgress {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.latest
}

// Start triggers the analysis job and begins polling. onUpdate is invoked
// from the poll goroutine with each observed progress value, including the
// terminal one.
func (m *Monitor) Start(ctx context.Context, onUpdate func(models.AnalysisProgress)) (*Handle, error) {
	m.mu.Lock()
	if m.active {
		m.mu.Unlock()
		return nil, ErrAnalysisRunning
	}
	m.active = true
	m.latest = models.AnalysisProgress{Status: models.AnalysisFetching, CurrentStep: "starting"}
	m.mu.Unlock()

	runCtx, cancel := context.WithCancel(ctx)
	handle := &Handle{
		cancel: cancel,
		done:   make(chan struct{}),
	}

	// The trigger call blocks server-side until the whole batch finishes;
	// the poll loop below is what feeds the UI in the meantime.
	go func() {
		if _, err := m.source.StartAnalysis(runCtx); err != nil && runCtx.Err() == nil {
			m.logger.Warn("Analysis trigger returned error", zap.Error(err))
		}
	}()

	go m.pollLoop(runCtx, handle, onUpdate)

	m.logger.Info("Analysis started", zap.Duration("poll_interval", m.pollInterval))
	return handle, nil
}

func (m *Monitor) pollLoop(ctx context.Context, handle *Handle, onUpdate func(models.AnalysisProgress)) {
	defer close(handle.done)
	defer func() {
		m.mu.Lock()
		m.active = false
		m.mu.Unlock()
	}()

	ticker := time.NewTicker(m.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			m.logger.Debug("Analysis poll loop cancelled")
			return
		case <-ticker.C:
			progress, err := m.source.AnalysisProgress(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				// A failed tick is not job failure; keep polling.
				m.logger.Warn("Progress poll failed", zap.Error(err))
				continue
			}

			m.mu.Lock()
			m.latest = *progress
			m.mu.Unlock()

			if onUpdate != nil {
				onUpdate(*progress)
			}

			if progress.Status == models.AnalysisComplete || progress.Status == models.AnalysisError {
				m.logger.Info("Analysis finished",
					zap.String("status", progress.Status),
					zap.Int("total_analyzed", progress.TotalAnalyzed),
				)
				return
			}
		}
	}
}
