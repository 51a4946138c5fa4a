// Package tray shows the overall backup health in the system tray and
// offers shortcuts into the dashboard. It is optional and disabled on
// headless installs.
package tray

import (
	"context"
	"fmt"
	"os/exec"
	"runtime"

	"backupcontrol/internal/dashboard"
	"backupcontrol/internal/status"

	"github.com/getlantern/systray"
	"go.uber.org/zap"
)

type snapshotReader interface {
	Snapshot() (dashboard.Snapshot, bool)
}

type refresher interface {
	Refresh(ctx context.Context)
}

// Indicator drives the tray icon. Run blocks until Quit is chosen or the
// context ends, so the caller runs it on a dedicated goroutine.
type Indicator struct {
	reader       snapshotReader
	refresher    refresher
	dashboardURL string
	logger       *zap.Logger
}

func New(reader snapshotReader, refresher refresher, dashboardURL string, logger *zap.Logger) *Indicator {
	return &Indicator{
		reader:       reader,
		refresher:    refresher,
		dashboardURL: dashboardURL,
		logger:       logger,
	}
}

// Run starts the tray loop. It returns when the user quits from the menu
// or ctx is cancelled.
func (i *Indicator) Run(ctx context.Context) {
	systray.Run(func() { i.onReady(ctx) }, func() {
		i.logger.Info("Tray indicator stopped")
	})
}

func (i *Indicator) onReady(ctx context.Context) {
	systray.SetTitle("Backup Control")
	i.updateTooltip()

	openItem := systray.AddMenuItem("Open dashboard", "Open the dashboard in a browser")
	refreshItem := systray.AddMenuItem("Refresh now", "Refresh backup status immediately")
	systray.AddSeparator()
	quitItem := systray.AddMenuItem("Quit", "Stop the agent")

	go func() {
		for {
			select {
			case <-ctx.Done():
				systray.Quit()
				return
			case <-openItem.ClickedCh:
				if err := openBrowser(i.dashboardURL); err != nil {
					i.logger.Warn("Failed to open dashboard", zap.Error(err))
				}
			case <-refreshItem.ClickedCh:
				i.refresher.Refresh(ctx)
				i.updateTooltip()
			case <-quitItem.ClickedCh:
				systray.Quit()
				return
			}
		}
	}()
}

// updateTooltip reflects the current snapshot health in the hover text.
func (i *Indicator) updateTooltip() {
	snapshot, ok := i.reader.Snapshot()
	if !ok {
		systray.SetTooltip("Backup Control: waiting for data")
		return
	}

	var text string
	switch snapshot.OverallHealth {
	case status.HealthOK:
		text = fmt.Sprintf("Backup Control: all %d backups OK", snapshot.Summary.TotalBackups)
	case status.HealthCritical:
		text = fmt.Sprintf("Backup Control: %d backups in critical state",
			snapshot.Summary.BackupsCritical+snapshot.Summary.BackupsFailed)
	case status.HealthWarning:
		text = fmt.Sprintf("Backup Control: %d backups need attention",
			snapshot.Summary.BackupsWarning)
	default:
		text = "Backup Control: status unknown"
	}
	if !snapshot.SourceOnline {
		text += " (offline)"
	}
	systray.SetTooltip(text)
}

func openBrowser(url string) error {
	switch runtime.GOOS {
	case "darwin":
		return exec.Command("open", url).Start()
	case "windows":
		return exec.Command("rundll32", "url.dll,FileProtocolHandler", url).Start()
	default:
		return exec.Command("xdg-open", url).Start()
	}
}
