package api

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"runtime"
	"strconv"
	"strings"
	"time"

	"classlock/pkg/interfaces"
	"classlock/pkg/types"
)

// Querier runs fn where relay state may be read consistently (the hub loop)
type Querier interface {
	Query(ctx context.Context, fn func()) error
}

// SessionSource is the read side of the session registry
type SessionSource interface {
	List() []types.ClassSession
	Get(code string) (types.ClassSession, bool)
}

// RoleCounter reports bound connections per role
type RoleCounter interface {
	CountByRole() map[types.Role]int
}

// StatsSource reports transport statistics
type StatsSource interface {
	GetStats() map[string]int
}

// ARCHITECTURAL DISCOVERY: HTTP API layer serves as pure interface between operators and relay state
// Read-only: nothing here mutates sessions, so the WebSocket protocol stays the only writer
type Server struct {
	loop     Querier
	sessions SessionSource
	roles    RoleCounter
	journal  interfaces.Journal
	stats    StatsSource
	token    string
	started  time.Time
	router   *http.ServeMux
	logger   *slog.Logger
}

// NewServer wires the admin API. An empty token leaves only /health mounted.
func NewServer(loop Querier, sessions SessionSource, roles RoleCounter, journal interfaces.Journal, stats StatsSource, token string, logger *slog.Logger) *Server {
	s := &Server{
		loop:     loop,
		sessions: sessions,
		roles:    roles,
		journal:  journal,
		stats:    stats,
		token:    token,
		started:  time.Now(),
		router:   http.NewServeMux(),
		logger:   logger.With("component", "api"),
	}

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.Handle("/health", s.corsMiddleware(s.jsonMiddleware(http.HandlerFunc(s.healthCheck))))

	if s.token == "" {
		s.logger.Info("admin API disabled, no token configured")
		return
	}
	s.router.Handle("/api/sessions", s.corsMiddleware(s.jsonMiddleware(s.authMiddleware(http.HandlerFunc(s.handleSessions)))))
	s.router.Handle("/api/sessions/", s.corsMiddleware(s.jsonMiddleware(s.authMiddleware(http.HandlerFunc(s.handleSessionByCode)))))
}

// FUNCTIONAL DISCOVERY: Implement http.Handler interface for integration with standard HTTP server
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Response types for JSON serialization

type SessionSummary struct {
	ClassCode    string         `json:"classCode"`
	TeacherName  string         `json:"teacherName"`
	StudentCount int            `json:"studentCount"`
	Settings     types.Settings `json:"settings"`
	CreatedAt    time.Time      `json:"createdAt"`
}

type ListSessionsResponse struct {
	Sessions []SessionSummary `json:"sessions"`
}

type SessionResponse struct {
	Session types.ClassSession `json:"session"`
}

type JournalResponse struct {
	ClassCode string               `json:"classCode"`
	Entries   []types.JournalEntry `json:"entries"`
}

type HealthResponse struct {
	Status      string                 `json:"status"`
	Timestamp   time.Time              `json:"timestamp"`
	Journal     string                 `json:"journal"`
	Sessions    int                    `json:"sessions"`
	Connections map[string]int         `json:"connections"`
	Roles       map[types.Role]int     `json:"roles"`
	System      map[string]interface{} `json:"system"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// GET /api/sessions
func (s *Server) handleSessions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.sendError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var sessions []types.ClassSession
	if err := s.loop.Query(r.Context(), func() { sessions = s.sessions.List() }); err != nil {
		s.sendError(w, "Relay unavailable", http.StatusServiceUnavailable)
		return
	}

	summaries := make([]SessionSummary, 0, len(sessions))
	for _, session := range sessions {
		summaries = append(summaries, SessionSummary{
			ClassCode:    session.Code,
			TeacherName:  session.TeacherName,
			StudentCount: len(session.Students),
			Settings:     session.Settings,
			CreatedAt:    session.CreatedAt,
		})
	}

	s.writeJSON(w, http.StatusOK, ListSessionsResponse{Sessions: summaries})
}

// GET /api/sessions/{code} and GET /api/sessions/{code}/journal
func (s *Server) handleSessionByCode(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.sendError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	parts := strings.Split(strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/sessions/"), "/"), "/")
	code := parts[0]
	if !types.IsValidClassCode(code) {
		s.sendError(w, "Invalid class code", http.StatusBadRequest)
		return
	}

	switch {
	case len(parts) == 1:
		s.getSession(w, r, code)
	case len(parts) == 2 && parts[1] == "journal":
		s.getJournal(w, r, code)
	default:
		s.sendError(w, "Not found", http.StatusNotFound)
	}
}

func (s *Server) getSession(w http.ResponseWriter, r *http.Request, code string) {
	var (
		session types.ClassSession
		found   bool
	)
	if err := s.loop.Query(r.Context(), func() { session, found = s.sessions.Get(code) }); err != nil {
		s.sendError(w, "Relay unavailable", http.StatusServiceUnavailable)
		return
	}
	if !found {
		s.sendError(w, "Session not found", http.StatusNotFound)
		return
	}

	s.writeJSON(w, http.StatusOK, SessionResponse{Session: session})
}

// FUNCTIONAL DISCOVERY: Journal history is served for ended sessions too
func (s *Server) getJournal(w http.ResponseWriter, r *http.Request, code string) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			s.sendError(w, "limit must be a non-negative integer", http.StatusBadRequest)
			return
		}
		limit = n
	}

	entries, err := s.journal.History(r.Context(), code, limit)
	if err != nil {
		s.logger.Error("journal history failed", "class_code", code, "error", err)
		s.sendError(w, "Failed to read journal", http.StatusInternalServerError)
		return
	}
	if entries == nil {
		entries = []types.JournalEntry{}
	}

	s.writeJSON(w, http.StatusOK, JournalResponse{ClassCode: code, Entries: entries})
}

// GET /health - relay and journal health
func (s *Server) healthCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := "healthy"
	journalStatus := "healthy"

	if err := s.journal.HealthCheck(ctx); err != nil {
		status = "unhealthy"
		journalStatus = fmt.Sprintf("error: %v", err)
	}

	sessions := 0
	var roles map[types.Role]int
	if err := s.loop.Query(ctx, func() {
		sessions = len(s.sessions.List())
		roles = s.roles.CountByRole()
	}); err != nil {
		status = "unhealthy"
	}

	response := HealthResponse{
		Status:      status,
		Timestamp:   time.Now(),
		Journal:     journalStatus,
		Sessions:    sessions,
		Connections: s.stats.GetStats(),
		Roles:       roles,
		System: map[string]interface{}{
			"goroutines": runtime.NumGoroutine(),
			"uptime":     time.Since(s.started).Round(time.Second).String(),
		},
	}

	// FUNCTIONAL DISCOVERY: Return 503 if any component is unhealthy
	code := http.StatusOK
	if status == "unhealthy" {
		code = http.StatusServiceUnavailable
	}
	s.writeJSON(w, code, response)
}

func (s *Server) writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Warn("failed to encode response", "error", err)
	}
}

// FUNCTIONAL DISCOVERY: Consistent error response format
func (s *Server) sendError(w http.ResponseWriter, message string, code int) {
	s.writeJSON(w, code, ErrorResponse{
		Error:   http.StatusText(code),
		Code:    code,
		Message: message,
	})
}

// authMiddleware requires "Authorization: Bearer <token>"
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		supplied := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		if subtle.ConstantTimeCompare([]byte(supplied), []byte(s.token)) != 1 {
			s.sendError(w, "Invalid or missing token", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// ARCHITECTURAL DISCOVERY: CORS middleware enables browser dashboards
func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Max-Age", "86400")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// FUNCTIONAL DISCOVERY: JSON middleware ensures proper content-type headers
func (s *Server) jsonMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		next.ServeHTTP(w, r)
	})
}
