// Package export serializes the currently visible row sets to delimited
// files for download. Semicolon-delimited to match the French-locale
// spreadsheets the exports are opened in.
package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"time"

	"backupcontrol/internal/models"
	"backupcontrol/internal/status"

	"github.com/dustin/go-humanize"
)

// Delimiter used for all exports.
const Delimiter = ';'

// Filename builds the download name, e.g. "clients-2026-09-01.csv".
func Filename(prefix string, now time.Time) string {
	return fmt.Sprintf("%s-%s.csv", prefix, now.Format("2006-01-02"))
}

var clientHeader = []string{
	"Nom", "Nom court", "Contact", "Téléphone", "SLA (h)",
	"Sauvegardes", "OK", "Avertissement", "Critique", "État",
}

// Clients writes the client roster in display order. Fields containing the
// delimiter, quotes or newlines are quoted by the writer.
func Clients(w io.Writer, clients []models.Client) error {
	cw := csv.NewWriter(w)
	cw.Comma = Delimiter

	if err := cw.Write(clientHeader); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	for _, client := range clients {
		health := status.FromCounts(status.Counts{
			Total:    client.BackupsCount,
			OK:       client.BackupsOK,
			Critical: client.BackupsCritical,
		})
		row := []string{
			client.Name,
			client.ShortName,
			stringOrEmpty(client.ContactEmail),
			stringOrEmpty(client.ContactPhone),
			strconv.Itoa(client.SLAHours),
			strconv.Itoa(client.BackupsCount),
			strconv.Itoa(client.BackupsOK),
			strconv.Itoa(client.BackupsWarning),
			strconv.Itoa(client.BackupsCritical),
			string(health),
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("failed to write row for %s: %w", client.Name, err)
		}
	}

	cw.Flush()
	return cw.Error()
}

var backupHeader = []string{
	"Client", "Sauvegarde", "Type", "Statut", "Dernier événement",
	"Taille", "Succès", "Échecs", "Dernière erreur",
}

// Backups writes the backup list with humanized sizes, not raw byte counts.
func Backups(w io.Writer, backups []models.Backup) error {
	cw := csv.NewWriter(w)
	cw.Comma = Delimiter

	if err := cw.Write(backupHeader); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	for _, backup := range backups {
		row := []string{
			backup.ClientName,
			backup.Name,
			backup.BackupType,
			string(status.NormalizePtr(backup.CurrentStatus)),
			formatTime(backup.LastEventAt),
			HumanSize(backup.LastSizeBytes),
			strconv.Itoa(backup.TotalSuccessCount),
			strconv.Itoa(backup.TotalFailureCount),
			stringOrEmpty(backup.LastErrorMessage),
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("failed to write row for %s: %w", backup.Name, err)
		}
	}

	cw.Flush()
	return cw.Error()
}

// HumanSize renders a byte count as "1.5 MB"; empty for absent sizes.
func HumanSize(size *int64) string {
	if size == nil {
		return ""
	}
	return humanize.Bytes(uint64(*size))
}

func formatTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format("2006-01-02 15:04")
}

func stringOrEmpty(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
