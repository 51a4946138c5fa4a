// Package api is the single point of HTTP egress to the BackupControl
// backend. The bearer token is read from the session at send-time for every
// request, and a 401 response clears the session exactly once.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"backupcontrol/internal/models"

	"go.uber.org/zap"
)

// Session is the slice of the session store the client depends on.
type Session interface {
	Token() string
	Authenticated() bool
	SetAuth(token string, user *models.UserProfile) error
	Clear() error
}

// HTTPError is a non-2xx response from the backend. Message carries the
// server-provided detail when the body was parseable.
type HTTPError struct {
	StatusCode int
	Body       string
	Message    string
}

func (e *HTTPError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("backend returned status %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("backend returned status %d", e.StatusCode)
}

// IsUnauthorized reports whether err is an HTTP 401 from the backend.
func IsUnauthorized(err error) bool {
	httpErr, ok := err.(*HTTPError)
	return ok && httpErr.StatusCode == http.StatusUnauthorized
}

// IsNotFound reports whether err is an HTTP 404 from the backend.
func IsNotFound(err error) bool {
	httpErr, ok := err.(*HTTPError)
	return ok && httpErr.StatusCode == http.StatusNotFound
}

// Client wraps all backend calls.
type Client struct {
	baseURL        string
	session        Session
	httpClient     *http.Client
	analysisClient *http.Client
	logger         *zap.Logger
	onUnauthorized func()
}

// NewClient creates a backend client. timeout covers regular calls;
// analysisTimeout covers the fetch-and-analyze trigger, which runs a long
// batch job server-side.
func NewClient(baseURL string, sess Session, timeout, analysisTimeout time.Duration, logger *zap.Logger) *Client {
	return &Client{
		baseURL:        strings.TrimRight(baseURL, "/"),
		session:        sess,
		httpClient:     &http.Client{Timeout: timeout},
		analysisClient: &http.Client{Timeout: analysisTimeout},
		logger:         logger,
	}
}

// SetUnauthorizedHandler registers the hook invoked after a 401 clears the
// session (the redirect-to-login equivalent).
func (c *Client) SetUnauthorizedHandler(fn func()) {
	c.onUnauthorized = fn
}

func (c *Client) do(ctx context.Context, httpClient *http.Client, method, path string, query url.Values, body, out any) error {
	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var reqBody io.Reader
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reqBody = bytes.NewBuffer(jsonData)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reqBody)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	// Token is read at send-time, never cached at construction, so a login
	// after client creation is honored and a cleared session is never
	// signed for.
	if token := c.session.Token(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	startTime := time.Now()
	resp, err := httpClient.Do(req)
	duration := time.Since(startTime)

	if err != nil {
		c.logger.Error("Request failed",
			zap.String("method", method),
			zap.String("path", path),
			zap.Duration("duration", duration),
			zap.Error(err),
		)
		return fmt.Errorf("request %s %s failed: %w", method, path, err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		c.logger.Debug("Request completed",
			zap.String("method", method),
			zap.String("path", path),
			zap.Int("status_code", resp.StatusCode),
			zap.Duration("duration", duration),
		)
		if out != nil && len(respBody) > 0 {
			if err := json.Unmarshal(respBody, out); err != nil {
				return fmt.Errorf("failed to parse response from %s: %w", path, err)
			}
		}
		return nil
	}

	if resp.StatusCode == http.StatusUnauthorized {
		c.handleUnauthorized(path)
	}

	httpErr := &HTTPError{
		StatusCode: resp.StatusCode,
		Body:       string(respBody),
		Message:    serverDetail(respBody),
	}
	c.logger.Warn("Backend error",
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("status_code", resp.StatusCode),
		zap.Duration("duration", duration),
	)
	return httpErr
}

// handleUnauthorized clears the session and fires the redirect hook, but
// only when a session was actually present. Hitting a protected endpoint
// while already logged out must not loop.
func (c *Client) handleUnauthorized(path string) {
	if path == "/auth/login" {
		// Bad credentials, not an expired session.
		return
	}
	if !c.session.Authenticated() {
		return
	}

	c.logger.Warn("Session rejected by backend, logging out", zap.String("path", path))
	if err := c.session.Clear(); err != nil {
		c.logger.Error("Failed to clear session", zap.Error(err))
	}
	if c.onUnauthorized != nil {
		c.onUnauthorized()
	}
}

// serverDetail extracts the human-readable message FastAPI-style backends
// put under "detail" or "message".
func serverDetail(body []byte) string {
	var envelope struct {
		Detail  string `json:"detail"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return ""
	}
	if envelope.Detail != "" {
		return envelope.Detail
	}
	return envelope.Message
}

// --- Auth ---

// Login exchanges credentials for a session and installs it in the session
// store on success.
func (c *Client) Login(ctx context.Context, email, password string) (*models.LoginResponse, error) {
	var resp models.LoginResponse
	err := c.do(ctx, c.httpClient, http.MethodPost, "/auth/login", nil,
		models.LoginRequest{Email: email, Password: password}, &resp)
	if err != nil {
		return nil, err
	}
	if resp.AccessToken == "" {
		return nil, fmt.Errorf("login response missing access token")
	}

	user := resp.User
	if err := c.session.SetAuth(resp.AccessToken, &user); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Logout drops the local session. The backend holds no server-side session
// state for bearer tokens.
func (c *Client) Logout() error {
	return c.session.Clear()
}

// Me fetches the current user profile.
func (c *Client) Me(ctx context.Context) (*models.UserProfile, error) {
	var user models.UserProfile
	if err := c.do(ctx, c.httpClient, http.MethodGet, "/auth/me", nil, nil, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// --- Clients ---

func (c *Client) ListClients(ctx context.Context, activeOnly bool) ([]models.Client, error) {
	query := url.Values{}
	query.Set("active_only", strconv.FormatBool(activeOnly))

	var clients []models.Client
	if err := c.do(ctx, c.httpClient, http.MethodGet, "/clients", query, nil, &clients); err != nil {
		return nil, err
	}
	return clients, nil
}

func (c *Client) GetClient(ctx context.Context, id int64) (*models.Client, error) {
	var client models.Client
	if err := c.do(ctx, c.httpClient, http.MethodGet, fmt.Sprintf("/clients/%d", id), nil, nil, &client); err != nil {
		return nil, err
	}
	return &client, nil
}

func (c *Client) CreateClient(ctx context.Context, req models.CreateClientRequest) (*models.Client, error) {
	var client models.Client
	if err := c.do(ctx, c.httpClient, http.MethodPost, "/clients", nil, req, &client); err != nil {
		return nil, err
	}
	return &client, nil
}

func (c *Client) UpdateClient(ctx context.Context, id int64, req models.CreateClientRequest) (*models.Client, error) {
	var client models.Client
	if err := c.do(ctx, c.httpClient, http.MethodPut, fmt.Sprintf("/clients/%d", id), nil, req, &client); err != nil {
		return nil, err
	}
	return &client, nil
}

func (c *Client) DeleteClient(ctx context.Context, id int64) error {
	return c.do(ctx, c.httpClient, http.MethodDelete, fmt.Sprintf("/clients/%d", id), nil, nil, nil)
}

// MergeClients transfers all backups from the source client to the target,
// unions NAS identifiers and email patterns, then deletes the source.
func (c *Client) MergeClients(ctx context.Context, sourceID, targetID int64) (*models.Client, error) {
	var client models.Client
	err := c.do(ctx, c.httpClient, http.MethodPost, "/clients/merge", nil,
		models.MergeClientsRequest{SourceClientID: sourceID, TargetClientID: targetID}, &client)
	if err != nil {
		return nil, err
	}
	return &client, nil
}

// --- Backups ---

// BackupFilter narrows ListBackups. Zero values mean no filter.
type BackupFilter struct {
	ClientID   int64
	Status     string
	BackupType string
}

func (c *Client) ListBackups(ctx context.Context, filter BackupFilter) ([]models.Backup, error) {
	query := url.Values{}
	if filter.ClientID != 0 {
		query.Set("client_id", strconv.FormatInt(filter.ClientID, 10))
	}
	if filter.Status != "" {
		query.Set("status", filter.Status)
	}
	if filter.BackupType != "" {
		query.Set("backup_type", filter.BackupType)
	}

	var backups []models.Backup
	if err := c.do(ctx, c.httpClient, http.MethodGet, "/backups", query, nil, &backups); err != nil {
		return nil, err
	}
	return backups, nil
}

// BackupEvents returns the event history for one backup, newest first.
func (c *Client) BackupEvents(ctx context.Context, backupID int64) ([]models.BackupEvent, error) {
	var events []models.BackupEvent
	if err := c.do(ctx, c.httpClient, http.MethodGet, fmt.Sprintf("/backups/%d/events", backupID), nil, nil, &events); err != nil {
		return nil, err
	}
	return events, nil
}

// --- Dashboard aggregates ---

func (c *Client) DashboardSummary(ctx context.Context) (*models.DashboardSummary, error) {
	var summary models.DashboardSummary
	if err := c.do(ctx, c.httpClient, http.MethodGet, "/dashboard/summary", nil, nil, &summary); err != nil {
		return nil, err
	}
	return &summary, nil
}

func (c *Client) StatusOverview(ctx context.Context) ([]models.ClientOverview, error) {
	var overview []models.ClientOverview
	if err := c.do(ctx, c.httpClient, http.MethodGet, "/dashboard/status-overview", nil, nil, &overview); err != nil {
		return nil, err
	}
	return overview, nil
}

func (c *Client) RecentEvents(ctx context.Context, limit int) ([]models.RecentEvent, error) {
	query := url.Values{}
	if limit > 0 {
		query.Set("limit", strconv.Itoa(limit))
	}

	var events []models.RecentEvent
	if err := c.do(ctx, c.httpClient, http.MethodGet, "/dashboard/recent-events", query, nil, &events); err != nil {
		return nil, err
	}
	return events, nil
}

func (c *Client) Trends(ctx context.Context, days int) ([]models.TrendPoint, error) {
	query := url.Values{}
	if days > 0 {
		query.Set("days", strconv.Itoa(days))
	}

	var trends []models.TrendPoint
	if err := c.do(ctx, c.httpClient, http.MethodGet, "/dashboard/trends", query, nil, &trends); err != nil {
		return nil, err
	}
	return trends, nil
}

// --- Alerts ---

// AlertFilter narrows ListAlerts. Zero values mean no filter.
type AlertFilter struct {
	Status   string
	Severity string
	Limit    int
}

func (c *Client) ListAlerts(ctx context.Context, filter AlertFilter) ([]models.Alert, error) {
	query := url.Values{}
	if filter.Status != "" {
		query.Set("status", filter.Status)
	}
	if filter.Severity != "" {
		query.Set("severity", filter.Severity)
	}
	if filter.Limit > 0 {
		query.Set("limit", strconv.Itoa(filter.Limit))
	}

	var alerts []models.Alert
	if err := c.do(ctx, c.httpClient, http.MethodGet, "/alerts", query, nil, &alerts); err != nil {
		return nil, err
	}
	return alerts, nil
}

func (c *Client) AcknowledgeAlert(ctx context.Context, id int64) (*models.Alert, error) {
	var alert models.Alert
	if err := c.do(ctx, c.httpClient, http.MethodPost, fmt.Sprintf("/alerts/%d/acknowledge", id), nil, nil, &alert); err != nil {
		return nil, err
	}
	return &alert, nil
}

func (c *Client) ResolveAlert(ctx context.Context, id int64) (*models.Alert, error) {
	var alert models.Alert
	if err := c.do(ctx, c.httpClient, http.MethodPost, fmt.Sprintf("/alerts/%d/resolve", id), nil, nil, &alert); err != nil {
		return nil, err
	}
	return &alert, nil
}

// BatchResult reports a best-effort batch operation. The calls are
// sequential and non-atomic: a failure does not roll back or stop the
// remaining items, and every failure is reported.
type BatchResult struct {
	Succeeded []int64
	Failed    map[int64]error
}

// Err returns nil when every item succeeded.
func (r *BatchResult) Err() error {
	if len(r.Failed) == 0 {
		return nil
	}
	return fmt.Errorf("%d of %d items failed", len(r.Failed), len(r.Failed)+len(r.Succeeded))
}

// ResolveAlerts resolves each alert in order, best-effort.
func (c *Client) ResolveAlerts(ctx context.Context, ids []int64) *BatchResult {
	result := &BatchResult{Failed: make(map[int64]error)}
	for _, id := range ids {
		if _, err := c.ResolveAlert(ctx, id); err != nil {
			result.Failed[id] = err
			continue
		}
		result.Succeeded = append(result.Succeeded, id)
	}
	return result
}

// --- Email analysis ---

// StartAnalysis triggers the backend's fetch-and-analyze batch job. The
// call blocks until the job finishes server-side, which can take minutes;
// track interim state through AnalysisProgress.
func (c *Client) StartAnalysis(ctx context.Context) (*models.AnalysisResult, error) {
	var result models.AnalysisResult
	if err := c.do(ctx, c.analysisClient, http.MethodPost, "/emails/fetch-and-analyze", nil, nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *Client) AnalysisProgress(ctx context.Context) (*models.AnalysisProgress, error) {
	var progress models.AnalysisProgress
	if err := c.do(ctx, c.httpClient, http.MethodGet, "/emails/analysis-progress", nil, nil, &progress); err != nil {
		return nil, err
	}
	return &progress, nil
}

func (c *Client) AnalyzedEmails(ctx context.Context, backupOnly bool, limit, offset int) (*models.AnalyzedEmailList, error) {
	query := url.Values{}
	query.Set("backup_only", strconv.FormatBool(backupOnly))
	query.Set("limit", strconv.Itoa(limit))
	query.Set("offset", strconv.Itoa(offset))

	var list models.AnalyzedEmailList
	if err := c.do(ctx, c.httpClient, http.MethodGet, "/emails/analyzed", query, nil, &list); err != nil {
		return nil, err
	}
	return &list, nil
}

func (c *Client) AnalyzedEmailDetail(ctx context.Context, id int64) (*models.AnalyzedEmail, error) {
	var email models.AnalyzedEmail
	if err := c.do(ctx, c.httpClient, http.MethodGet, fmt.Sprintf("/emails/analyzed/%d", id), nil, nil, &email); err != nil {
		return nil, err
	}
	return &email, nil
}

// --- Settings & notifications ---

// GetSettings returns all settings grouped by category. Secret values come
// back masked with models.SecretSentinel, never the real value.
func (c *Client) GetSettings(ctx context.Context) (map[string]map[string]string, error) {
	var settings map[string]map[string]string
	if err := c.do(ctx, c.httpClient, http.MethodGet, "/settings", nil, nil, &settings); err != nil {
		return nil, err
	}
	return settings, nil
}

func (c *Client) UpdateSetting(ctx context.Context, key, value string) error {
	body := struct {
		Value string `json:"value"`
	}{Value: value}
	return c.do(ctx, c.httpClient, http.MethodPut, "/settings/"+url.PathEscape(key), nil, body, nil)
}

// UpdateSettings writes several settings in one batch call. Values equal to
// models.SecretSentinel are skipped: sending the mask back would overwrite
// the stored secret with the sentinel.
func (c *Client) UpdateSettings(ctx context.Context, values map[string]string) error {
	filtered := make(map[string]string, len(values))
	for key, value := range values {
		if value == models.SecretSentinel {
			continue
		}
		filtered[key] = value
	}
	if len(filtered) == 0 {
		return nil
	}
	return c.do(ctx, c.httpClient, http.MethodPut, "/settings", nil, filtered, nil)
}

func (c *Client) TestNotification(ctx context.Context, channel, webhookURL string) (*models.TestNotificationResponse, error) {
	var resp models.TestNotificationResponse
	err := c.do(ctx, c.httpClient, http.MethodPost, "/notifications/test", nil,
		models.TestNotificationRequest{Channel: channel, WebhookURL: webhookURL}, &resp)
	if err != nil {
		return nil, err
	}
	return &resp, nil
}
