// Package server hosts the local view layer: a small JSON API over the
// collector snapshot and the backend client, one route per page the
// dashboard renders.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"backupcontrol/internal/analysis"
	"backupcontrol/internal/api"
	"backupcontrol/internal/dashboard"
	"backupcontrol/internal/export"
	"backupcontrol/internal/models"

	"go.uber.org/zap"
)

// loginRoute is the redirect hint handed to unauthenticated callers.
const loginRoute = "/login"

type snapshotReader interface {
	Snapshot() (dashboard.Snapshot, bool)
	Ready() bool
}

type sessionInfo interface {
	Authenticated() bool
	User() *models.UserProfile
	Theme() string
	SetTheme(theme string) error
}

// Server routes view requests. It owns the analysis monitor handle so the
// poll loop is torn down with the server.
type Server struct {
	backend   *api.Client
	reader    snapshotReader
	session   sessionInfo
	monitor   *analysis.Monitor
	collector *dashboard.Collector
	logger    *zap.Logger
	mux       *http.ServeMux

	mu             sync.Mutex
	analysisHandle *analysis.Handle
}

func New(backend *api.Client, reader snapshotReader, sess sessionInfo, monitor *analysis.Monitor, collector *dashboard.Collector, logger *zap.Logger) *Server {
	s := &Server{
		backend:   backend,
		reader:    reader,
		session:   sess,
		monitor:   monitor,
		collector: collector,
		logger:    logger,
		mux:       http.NewServeMux(),
	}

	s.mux.HandleFunc("/healthz", s.handleHealthz)
	s.mux.HandleFunc("/readyz", s.handleReadyz)

	s.mux.HandleFunc("/api/v1/session", s.handleSession)
	s.mux.HandleFunc("/api/v1/session/theme", s.requireAuth(s.handleTheme))

	s.mux.HandleFunc("/api/v1/dashboard", s.requireAuth(s.handleDashboard))
	s.mux.HandleFunc("/api/v1/clients", s.requireAuth(s.handleClients))
	s.mux.HandleFunc("/api/v1/clients/merge", s.requireAuth(s.handleMergeClients))
	s.mux.HandleFunc("/api/v1/backups", s.requireAuth(s.handleBackups))
	s.mux.HandleFunc("/api/v1/backups/", s.requireAuth(s.handleBackupEvents))
	s.mux.HandleFunc("/api/v1/alerts", s.requireAuth(s.handleAlerts))
	s.mux.HandleFunc("/api/v1/alerts/", s.requireAuth(s.handleAlertAction))
	s.mux.HandleFunc("/api/v1/alerts-resolve-batch", s.requireAuth(s.handleBatchResolve))
	s.mux.HandleFunc("/api/v1/emails", s.requireAuth(s.handleEmails))
	s.mux.HandleFunc("/api/v1/analysis/start", s.requireAuth(s.handleAnalysisStart))
	s.mux.HandleFunc("/api/v1/analysis/progress", s.requireAuth(s.handleAnalysisProgress))
	s.mux.HandleFunc("/api/v1/analysis/cancel", s.requireAuth(s.handleAnalysisCancel))
	s.mux.HandleFunc("/api/v1/settings", s.requireAuth(s.handleSettings))
	s.mux.HandleFunc("/api/v1/notifications/test", s.requireAuth(s.handleTestNotification))
	s.mux.HandleFunc("/api/v1/export/clients.csv", s.requireAuth(s.handleExportClients))
	s.mux.HandleFunc("/api/v1/export/backups.csv", s.requireAuth(s.handleExportBackups))

	return s
}

// ServeHTTP implements http.Handler with request logging.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	s.mux.ServeHTTP(w, r)
	s.logger.Debug("View request",
		zap.String("method", r.Method),
		zap.String("path", r.URL.Path),
		zap.Duration("duration", time.Since(start)),
	)
}

// Close cancels any running analysis poll loop.
func (s *Server) Close() {
	s.mu.Lock()
	handle := s.analysisHandle
	s.analysisHandle = nil
	s.mu.Unlock()
	if handle != nil {
		handle.Cancel()
	}
}

// requireAuth gates protected views: without a session the caller gets 401
// and the login redirect hint, and no backend call is made.
func (s *Server) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !s.session.Authenticated() {
			writeJSON(w, http.StatusUnauthorized, map[string]string{
				"error":    "not authenticated",
				"redirect": loginRoute,
			})
			return
		}
		next(w, r)
	}
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	if !s.reader.Ready() {
		writeJSON(w, http.StatusServiceUnavailable, map[string]bool{"ready": false})
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ready": true})
}

// handleSession covers login (POST), logout (DELETE) and session state (GET).
func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, map[string]any{
			"authenticated": s.session.Authenticated(),
			"user":          s.session.User(),
			"theme":         s.session.Theme(),
		})
	case http.MethodPost:
		var req models.LoginRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
			return
		}
		resp, err := s.backend.Login(r.Context(), req.Email, req.Password)
		if err != nil {
			// A 401 here means bad credentials, not an expired session,
			// so no redirect hint is attached.
			if httpErr, ok := err.(*api.HTTPError); ok {
				message := httpErr.Message
				if message == "" {
					message = "login failed"
				}
				writeJSON(w, httpErr.StatusCode, map[string]string{"error": message})
				return
			}
			s.logger.Error("Login request failed", zap.Error(err))
			writeJSON(w, http.StatusBadGateway, map[string]string{"error": "backend unreachable"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"user": resp.User})
	case http.MethodDelete:
		if err := s.backend.Logout(); err != nil {
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to clear session"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"redirect": loginRoute})
	default:
		methodNotAllowed(w)
	}
}

func (s *Server) handleTheme(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPut {
		methodNotAllowed(w)
		return
	}
	var req struct {
		Theme string `json:"theme"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Theme == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if err := s.session.SetTheme(req.Theme); err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to store theme"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"theme": req.Theme})
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	if r.URL.Query().Get("refresh") == "true" {
		s.collector.Refresh(r.Context())
	}

	snapshot, ok := s.reader.Snapshot()
	if !ok {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "snapshot unavailable"})
		return
	}
	w.Header().Set("Cache-Control", "no-store")
	writeJSON(w, http.StatusOK, snapshot)
}

func (s *Server) handleClients(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		activeOnly := r.URL.Query().Get("active_only") != "false"
		clients, err := s.backend.ListClients(r.Context(), activeOnly)
		if err != nil {
			s.writeBackendError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, clients)
	case http.MethodPost:
		var req models.CreateClientRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
			return
		}
		client, err := s.backend.CreateClient(r.Context(), req)
		if err != nil {
			s.writeBackendError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, client)
	default:
		methodNotAllowed(w)
	}
}

func (s *Server) handleMergeClients(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	var req models.MergeClientsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if req.SourceClientID == req.TargetClientID {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "cannot merge a client into itself"})
		return
	}
	client, err := s.backend.MergeClients(r.Context(), req.SourceClientID, req.TargetClientID)
	if err != nil {
		s.writeBackendError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, client)
}

func (s *Server) handleBackups(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	filter := api.BackupFilter{
		Status:     r.URL.Query().Get("status"),
		BackupType: r.URL.Query().Get("backup_type"),
	}
	if clientID := r.URL.Query().Get("client_id"); clientID != "" {
		id, err := strconv.ParseInt(clientID, 10, 64)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid client_id"})
			return
		}
		filter.ClientID = id
	}

	backups, err := s.backend.ListBackups(r.Context(), filter)
	if err != nil {
		s.writeBackendError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, backups)
}

// handleBackupEvents serves /api/v1/backups/{id}/events.
func (s *Server) handleBackupEvents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	rest := strings.TrimPrefix(r.URL.Path, "/api/v1/backups/")
	parts := strings.Split(rest, "/")
	if len(parts) != 2 || parts[1] != "events" {
		http.NotFound(w, r)
		return
	}
	id, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid backup id"})
		return
	}

	events, err := s.backend.BackupEvents(r.Context(), id)
	if err != nil {
		s.writeBackendError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, events)
}

func (s *Server) handleAlerts(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	filter := api.AlertFilter{
		Status:   r.URL.Query().Get("status"),
		Severity: r.URL.Query().Get("severity"),
	}
	if limit := r.URL.Query().Get("limit"); limit != "" {
		if n, err := strconv.Atoi(limit); err == nil {
			filter.Limit = n
		}
	}

	alerts, err := s.backend.ListAlerts(r.Context(), filter)
	if err != nil {
		s.writeBackendError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, alerts)
}

// handleAlertAction serves /api/v1/alerts/{id}/acknowledge and /resolve.
func (s *Server) handleAlertAction(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	rest := strings.TrimPrefix(r.URL.Path, "/api/v1/alerts/")
	parts := strings.Split(rest, "/")
	if len(parts) != 2 {
		http.NotFound(w, r)
		return
	}
	id, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid alert id"})
		return
	}

	var alert *models.Alert
	switch parts[1] {
	case "acknowledge":
		alert, err = s.backend.AcknowledgeAlert(r.Context(), id)
	case "resolve":
		alert, err = s.backend.ResolveAlert(r.Context(), id)
	default:
		http.NotFound(w, r)
		return
	}
	if err != nil {
		s.writeBackendError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, alert)
}

// handleBatchResolve resolves several alerts best-effort and reports every
// failure instead of pretending the batch is atomic.
func (s *Server) handleBatchResolve(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	var req struct {
		IDs []int64 `json:"ids"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || len(req.IDs) == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	result := s.backend.ResolveAlerts(r.Context(), req.IDs)
	failed := make(map[string]string, len(result.Failed))
	for id, err := range result.Failed {
		failed[strconv.FormatInt(id, 10)] = err.Error()
	}

	code := http.StatusOK
	if len(failed) > 0 {
		code = http.StatusMultiStatus
	}
	writeJSON(w, code, map[string]any{
		"resolved": result.Succeeded,
		"failed":   failed,
	})
}

func (s *Server) handleEmails(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	query := r.URL.Query()
	backupOnly := query.Get("backup_only") == "true"
	limit := 50
	offset := 0
	if v := query.Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	if v := query.Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			offset = n
		}
	}

	list, err := s.backend.AnalyzedEmails(r.Context(), backupOnly, limit, offset)
	if err != nil {
		s.writeBackendError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleAnalysisStart(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}

	// The monitor outlives the request: its lifetime is bound to the
	// server, not to this handler's context.
	handle, err := s.monitor.Start(context.Background(), nil)
	if err != nil {
		writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
		return
	}

	s.mu.Lock()
	s.analysisHandle = handle
	s.mu.Unlock()

	writeJSON(w, http.StatusAccepted, map[string]string{"status": "started"})
}

func (s *Server) handleAnalysisProgress(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"running":  s.monitor.Running(),
		"progress": s.monitor.Latest(),
	})
}

func (s *Server) handleAnalysisCancel(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	s.Close()
	writeJSON(w, http.StatusOK, map[string]string{"status": "cancelled"})
}

func (s *Server) handleSettings(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		settings, err := s.backend.GetSettings(r.Context())
		if err != nil {
			s.writeBackendError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, settings)
	case http.MethodPut:
		var values map[string]string
		if err := json.NewDecoder(r.Body).Decode(&values); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
			return
		}
		if err := s.backend.UpdateSettings(r.Context(), values); err != nil {
			s.writeBackendError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "saved"})
	default:
		methodNotAllowed(w)
	}
}

func (s *Server) handleTestNotification(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	var req models.TestNotificationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Channel == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	resp, err := s.backend.TestNotification(r.Context(), req.Channel, req.WebhookURL)
	if err != nil {
		s.writeBackendError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleExportClients(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	clients, err := s.backend.ListClients(r.Context(), true)
	if err != nil {
		s.writeBackendError(w, err)
		return
	}

	serveCSV(w, export.Filename("clients", time.Now()), func(w2 http.ResponseWriter) error {
		return export.Clients(w2, clients)
	})
}

func (s *Server) handleExportBackups(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	filter := api.BackupFilter{Status: r.URL.Query().Get("status")}
	if clientID := r.URL.Query().Get("client_id"); clientID != "" {
		if id, err := strconv.ParseInt(clientID, 10, 64); err == nil {
			filter.ClientID = id
		}
	}
	backups, err := s.backend.ListBackups(r.Context(), filter)
	if err != nil {
		s.writeBackendError(w, err)
		return
	}

	serveCSV(w, export.Filename("backups", time.Now()), func(w2 http.ResponseWriter) error {
		return export.Backups(w2, backups)
	})
}

func serveCSV(w http.ResponseWriter, filename string, write func(http.ResponseWriter) error) {
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	_ = write(w)
}

// writeBackendError maps a backend failure onto the view response:
// server-provided messages are forwarded, transport failures become 502.
func (s *Server) writeBackendError(w http.ResponseWriter, err error) {
	if httpErr, ok := err.(*api.HTTPError); ok {
		message := httpErr.Message
		if message == "" {
			message = "request failed"
		}
		if httpErr.StatusCode == http.StatusUnauthorized {
			writeJSON(w, http.StatusUnauthorized, map[string]string{
				"error":    message,
				"redirect": loginRoute,
			})
			return
		}
		writeJSON(w, httpErr.StatusCode, map[string]string{"error": message})
		return
	}

	s.logger.Error("Backend call failed", zap.Error(err))
	writeJSON(w, http.StatusBadGateway, map[string]string{"error": "backend unreachable"})
}

func methodNotAllowed(w http.ResponseWriter) {
	writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
}

func writeJSON(w http.ResponseWriter, code int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(payload)
}
