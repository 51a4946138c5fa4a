package export

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"backupcontrol/internal/models"
)

func strPtr(s string) *string { return &s }

func int64Ptr(n int64) *int64 { return &n }

func TestFilename(t *testing.T) {
	now := time.Date(2026, 9, 1, 15, 30, 0, 0, time.UTC)
	if got := Filename("clients", now); got != "clients-2026-09-01.csv" {
		t.Errorf("Filename = %q", got)
	}
}

func TestClientsExport(t *testing.T) {
	clients := []models.Client{
		{Name: "Acme", ShortName: "ACM", SLAHours: 24, BackupsCount: 10, BackupsOK: 7, BackupsWarning: 1, BackupsCritical: 2},
		{Name: "Globex", ShortName: "GLX", SLAHours: 48, BackupsCount: 5, BackupsOK: 5},
		{Name: "Initech", ShortName: "INI", SLAHours: 24},
	}

	var buf bytes.Buffer
	if err := Clients(&buf, clients); err != nil {
		t.Fatalf("Clients: %v", err)
	}

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	if len(lines) != 4 {
		t.Fatalf("expected header + 3 data lines, got %d: %q", len(lines), lines)
	}
	if !strings.HasPrefix(lines[0], "Nom;Nom court;") {
		t.Errorf("unexpected header: %s", lines[0])
	}

	// Critical dominates even with ok < total.
	if !strings.HasSuffix(lines[1], ";critical") {
		t.Errorf("expected critical health for Acme: %s", lines[1])
	}
	if !strings.HasSuffix(lines[2], ";ok") {
		t.Errorf("expected ok health for Globex: %s", lines[2])
	}
	if !strings.HasSuffix(lines[3], ";unknown") {
		t.Errorf("expected unknown health for Initech: %s", lines[3])
	}

	for _, line := range lines[1:] {
		if got := strings.Count(line, ";"); got != len(clientHeader)-1 {
			t.Errorf("expected %d delimiters, got %d in %q", len(clientHeader)-1, got, line)
		}
	}
}

func TestClientsExportQuotesDelimiter(t *testing.T) {
	clients := []models.Client{
		{Name: "Acme; Fils & Co", ShortName: "ACM", SLAHours: 24},
	}

	var buf bytes.Buffer
	if err := Clients(&buf, clients); err != nil {
		t.Fatalf("Clients: %v", err)
	}

	if !strings.Contains(buf.String(), `"Acme; Fils & Co"`) {
		t.Errorf("delimiter-containing field must be quoted: %s", buf.String())
	}
}

func TestBackupsExportHumanizesSizes(t *testing.T) {
	lastEvent := time.Date(2026, 8, 30, 3, 0, 0, 0, time.UTC)
	backups := []models.Backup{
		{ClientName: "Acme", Name: "NAS quotidien", BackupType: "nas", CurrentStatus: strPtr("OK"),
			LastEventAt: &lastEvent, LastSizeBytes: int64Ptr(1500000), TotalSuccessCount: 42},
		{ClientName: "Globex", Name: "VM hebdo", BackupType: "vm", CurrentStatus: strPtr("failed"),
			LastErrorMessage: strPtr("disk full"), TotalFailureCount: 3},
	}

	var buf bytes.Buffer
	if err := Backups(&buf, backups); err != nil {
		t.Fatalf("Backups: %v", err)
	}
	out := buf.String()

	if !strings.Contains(out, "1.5 MB") {
		t.Errorf("expected humanized size, got: %s", out)
	}
	if strings.Contains(out, "1500000") {
		t.Errorf("raw byte count must not appear: %s", out)
	}
	// Statuses are normalized, not raw server strings.
	if !strings.Contains(out, ";success;") || !strings.Contains(out, ";failure;") {
		t.Errorf("expected normalized statuses: %s", out)
	}
}

func TestHumanSizeNil(t *testing.T) {
	if got := HumanSize(nil); got != "" {
		t.Errorf("HumanSize(nil) = %q, want empty", got)
	}
}
