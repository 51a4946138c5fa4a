// Package status derives health categories from raw backup counts and
// normalizes the status strings the backend emits. Every page renders health
// through these functions so the categorization is identical everywhere.
package status

import "strings"

// Health is the derived category for a client or for the whole fleet.
type Health string

const (
	HealthUnknown  Health = "unknown"
	HealthOK       Health = "ok"
	HealthWarning  Health = "warning"
	HealthCritical Health = "critical"
)

// Counts are the server-computed aggregates for one client. OK+Critical is
// not guaranteed to equal Total: backups with unknown status are counted in
// Total only.
type Counts struct {
	Total    int
	OK       int
	Critical int
}

// FromCounts computes the health category. Precedence is fixed:
// any critical dominates, then fully-ok, then warning for partial data,
// unknown only when no backups are configured. The Critical branch wins even
// for transiently inconsistent data such as OK > Total.
func FromCounts(c Counts) Health {
	switch {
	case c.Critical > 0:
		return HealthCritical
	case c.Total == 0:
		return HealthUnknown
	case c.OK == c.Total:
		return HealthOK
	default:
		return HealthWarning
	}
}

// UnknownCount derives the number of backups that are neither ok, warning
// nor critical. Display-only; it never feeds the health decision.
func UnknownCount(total, ok, warning, critical int) int {
	n := total - ok - warning - critical
	if n < 0 {
		return 0
	}
	return n
}

// Category classifies a single backup's raw status string.
type Category string

const (
	CategorySuccess Category = "success"
	CategoryFailure Category = "failure"
	CategoryWarning Category = "warning"
	CategoryUnknown Category = "unknown"
)

// Normalize maps the backend's synonym sets onto one category. The backend
// is not consistent across variants: "ok" and "success" both mean success,
// "failed"/"error"/"critical" all mean failure. Case-insensitive; the empty
// string (missing status) maps to unknown.
func Normalize(raw string) Category {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "ok", "success":
		return CategorySuccess
	case "failed", "error", "critical", "failure":
		return CategoryFailure
	case "warning", "alert":
		return CategoryWarning
	default:
		return CategoryUnknown
	}
}

// NormalizePtr is Normalize for optional status fields.
func NormalizePtr(raw *string) Category {
	if raw == nil {
		return CategoryUnknown
	}
	return Normalize(*raw)
}

// severityRank orders alert severities for display, highest first.
var severityRank = map[string]int{
	"critical": 0,
	"high":     1,
	"medium":   2,
	"warning":  2,
	"low":      3,
	"info":     4,
}

// SeverityRank returns the sort rank of an alert severity; unknown
// severities sort last.
func SeverityRank(severity string) int {
	if rank, ok := severityRank[strings.ToLower(strings.TrimSpace(severity))]; ok {
		return rank
	}
	return len(severityRank)
}
