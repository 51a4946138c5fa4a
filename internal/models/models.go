package models

import "time"

// UserProfile is the authenticated user as returned by /auth/me.
type UserProfile struct {
	ID       int64  `json:"id"`
	Email    string `json:"email"`
	Username string `json:"username"`
	FullName string `json:"full_name,omitempty"`
	Role     string `json:"role,omitempty"`
	IsActive bool   `json:"is_active"`
}

// LoginRequest is the credential payload for /auth/login.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginResponse is the token envelope returned on successful login.
type LoginResponse struct {
	AccessToken string      `json:"access_token"`
	TokenType   string      `json:"token_type"`
	ExpiresIn   int         `json:"expires_in"`
	User        UserProfile `json:"user"`
}

// Client is a managed customer whose backups are monitored.
// The four count fields are server-computed aggregates; they are not
// guaranteed to sum to BackupsCount (unknown-status backups are uncounted).
type Client struct {
	ID              int64     `json:"id"`
	Name            string    `json:"name"`
	ShortName       string    `json:"short_name"`
	Description     *string   `json:"description,omitempty"`
	ContactName     *string   `json:"contact_name,omitempty"`
	ContactEmail    *string   `json:"contact_email,omitempty"`
	ContactPhone    *string   `json:"contact_phone,omitempty"`
	ContractType    *string   `json:"contract_type,omitempty"`
	SLAHours        int       `json:"sla_hours"`
	EmailPatterns   []string  `json:"email_patterns"`
	NASIdentifiers  []string  `json:"nas_identifiers"`
	Notes           *string   `json:"notes,omitempty"`
	IsActive        bool      `json:"is_active"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       *time.Time `json:"updated_at,omitempty"`
	BackupsCount    int       `json:"backups_count"`
	BackupsOK       int       `json:"backups_ok"`
	BackupsWarning  int       `json:"backups_warning"`
	BackupsCritical int       `json:"backups_critical"`
}

// CreateClientRequest carries the writable client fields.
type CreateClientRequest struct {
	Name           string   `json:"name"`
	ShortName      string   `json:"short_name"`
	ContactEmail   *string  `json:"contact_email,omitempty"`
	ContactPhone   *string  `json:"contact_phone,omitempty"`
	SLAHours       int      `json:"sla_hours"`
	EmailPatterns  []string `json:"email_patterns,omitempty"`
	NASIdentifiers []string `json:"nas_identifiers,omitempty"`
	Notes          *string  `json:"notes,omitempty"`
}

// MergeClientsRequest transfers all backups from source to target, then
// deletes source. NAS identifiers and email patterns are unioned server-side.
type MergeClientsRequest struct {
	SourceClientID int64 `json:"source_client_id"`
	TargetClientID int64 `json:"target_client_id"`
}

// Backup is one monitored backup definition. CurrentStatus is the raw server
// string and is NOT normalized across backend variants ("ok"/"success",
// "failed"/"error" both occur); use status.Normalize before comparing.
type Backup struct {
	ID                int64      `json:"id"`
	ClientID          int64      `json:"client_id"`
	ClientName        string     `json:"client_name,omitempty"`
	Name              string     `json:"name"`
	BackupType        string     `json:"backup_type"`
	CurrentStatus     *string    `json:"current_status"`
	LastEventAt       *time.Time `json:"last_event_at,omitempty"`
	LastSizeBytes     *int64     `json:"last_size_bytes,omitempty"`
	LastErrorMessage  *string    `json:"last_error_message,omitempty"`
	IsMaintenance     bool       `json:"is_maintenance"`
	TotalSuccessCount int        `json:"total_success_count"`
	TotalFailureCount int        `json:"total_failure_count"`
}

// BackupEvent is one historical run of a backup, newest first from the API.
type BackupEvent struct {
	ID                   int64     `json:"id"`
	BackupID             int64     `json:"backup_id"`
	EventType            string    `json:"event_type"`
	EventDate            time.Time `json:"event_date"`
	DurationSeconds      *int64    `json:"duration_seconds,omitempty"`
	TransferredSizeBytes *int64    `json:"transferred_size_bytes,omitempty"`
	ErrorMessage         *string   `json:"error_message,omitempty"`
}

// Alert lifecycle is monotonic: new -> acknowledged -> resolved.
type Alert struct {
	ID             int64      `json:"id"`
	Severity       string     `json:"severity"`
	Status         string     `json:"status"`
	Title          string     `json:"title"`
	Message        string     `json:"message"`
	ClientID       *int64     `json:"client_id,omitempty"`
	ClientName     *string    `json:"client_name,omitempty"`
	BackupID       *int64     `json:"backup_id,omitempty"`
	BackupName     *string    `json:"backup_name,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	AcknowledgedAt *time.Time `json:"acknowledged_at,omitempty"`
	ResolvedAt     *time.Time `json:"resolved_at,omitempty"`
}

// Alert status constants.
const (
	AlertStatusNew          = "new"
	AlertStatusAcknowledged = "acknowledged"
	AlertStatusResolved     = "resolved"
)

// AnalyzedEmail is immutable once produced by the backend classifier.
type AnalyzedEmail struct {
	ID                   int64      `json:"id"`
	MessageID            string     `json:"message_id"`
	Subject              string     `json:"subject"`
	Sender               string     `json:"sender"`
	ReceivedAt           *time.Time `json:"received_at,omitempty"`
	IsBackupNotification bool       `json:"is_backup_notification"`
	DetectedType         *string    `json:"detected_type,omitempty"`
	DetectedStatus       *string    `json:"detected_status,omitempty"`
	DetectedNAS          *string    `json:"detected_nas,omitempty"`
	AIConfidence         *int       `json:"ai_confidence,omitempty"`
	BodyPreview          *string    `json:"body_preview,omitempty"`
	BodyText             *string    `json:"body_text,omitempty"`
}

// AnalyzedEmailList is the paginated envelope of /emails/analyzed.
type AnalyzedEmailList struct {
	Emails []AnalyzedEmail `json:"emails"`
	Total  int             `json:"total"`
}

// AnalysisProgress is the transient server-held state of a batch analysis
// job. Polled; only the latest value matters.
type AnalysisProgress struct {
	Status        string `json:"status"`
	Progress      int    `json:"progress"`
	CurrentStep   string `json:"current_step"`
	TotalFetched  int    `json:"total_fetched"`
	TotalAnalyzed int    `json:"total_analyzed"`
}

// Analysis job status constants.
const (
	AnalysisIdle      = "idle"
	AnalysisFetching  = "fetching"
	AnalysisAnalyzing = "analyzing"
	AnalysisComplete  = "complete"
	AnalysisError     = "error"
)

// AnalysisResult summarizes a completed fetch-and-analyze batch.
type AnalysisResult struct {
	TotalFetched   int    `json:"total_fetched"`
	TotalAnalyzed  int    `json:"total_analyzed"`
	BackupDetected int    `json:"backup_detected"`
	Message        string `json:"message,omitempty"`
}

// DashboardSummary mirrors /dashboard/summary.
type DashboardSummary struct {
	TotalClients     int        `json:"total_clients"`
	TotalBackups     int        `json:"total_backups"`
	BackupsOK        int        `json:"backups_ok"`
	BackupsWarning   int        `json:"backups_warning"`
	BackupsCritical  int        `json:"backups_critical"`
	BackupsFailed    int        `json:"backups_failed"`
	BackupsUnknown   int        `json:"backups_unknown"`
	UnresolvedAlerts int        `json:"unresolved_alerts"`
	LastUpdate       *time.Time `json:"last_update,omitempty"`
	HealthPercentage float64    `json:"health_percentage"`
}

// ClientOverview is one row of /dashboard/status-overview.
type ClientOverview struct {
	ClientID        int64  `json:"client_id"`
	ClientName      string `json:"client_name"`
	ShortName       string `json:"short_name"`
	GlobalStatus    string `json:"global_status"`
	BackupsOK       int    `json:"backups_ok"`
	BackupsWarning  int    `json:"backups_warning"`
	BackupsCritical int    `json:"backups_critical"`
	TotalBackups    int    `json:"total_backups"`
}

// RecentEvent is one row of /dashboard/recent-events.
type RecentEvent struct {
	ID                   int64     `json:"id"`
	EventType            string    `json:"event_type"`
	EventDate            time.Time `json:"event_date"`
	BackupName           string    `json:"backup_name"`
	ClientName           string    `json:"client_name"`
	DurationSeconds      *int64    `json:"duration_seconds,omitempty"`
	TransferredSizeBytes *int64    `json:"transferred_size_bytes,omitempty"`
	ErrorMessage         *string   `json:"error_message,omitempty"`
}

// TrendPoint is one day of /dashboard/trends.
type TrendPoint struct {
	Date    string `json:"date"`
	Success int    `json:"success"`
	Failure int    `json:"failure"`
	Warning int    `json:"warning"`
}

// SecretSentinel is what the server returns in place of a stored secret
// value. Sending it back on update means "keep the current value".
const SecretSentinel = "********"

// Setting is one key/value configuration entry. Secret values are always
// masked with SecretSentinel on reads.
type Setting struct {
	Key      string `json:"key"`
	Value    string `json:"value"`
	Category string `json:"category,omitempty"`
	IsSecret bool   `json:"is_secret,omitempty"`
}

// TestNotificationRequest triggers a test message on one channel.
type TestNotificationRequest struct {
	Channel    string `json:"channel"`
	WebhookURL string `json:"webhook_url,omitempty"`
}

// TestNotificationResponse reports the outcome of a test notification.
type TestNotificationResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}
