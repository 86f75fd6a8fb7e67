// Package web exposes the operational HTTP surface: health, diagnostics,
// status, the task listing API, and member authentication.
package web

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/puppylog/pawbot/internal/database"
	"github.com/puppylog/pawbot/internal/member"
)

// healthTables are the tables probed by the database diagnostics endpoint.
var healthTables = []string{"members", "tasks", "task_history", "task_reminders", "system_settings"}

// EnvFlags reports which required configuration is present, without
// revealing values.
type EnvFlags struct {
	ChannelSecret bool
	ChannelToken  bool
	StoreURL      bool
}

// Handler serves the operational endpoints.
type Handler struct {
	db      *database.DB
	members *member.Service
	flags   EnvFlags
	now     func() time.Time
}

// NewHandler creates a web handler. The member service may be nil; the
// auth routes then respond 404.
func NewHandler(db *database.DB, members *member.Service, flags EnvFlags) *Handler {
	return &Handler{db: db, members: members, flags: flags, now: time.Now}
}

// RegisterRoutes registers the operational routes.
func (h *Handler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/health", h.handleHealth).Methods("GET")
	r.HandleFunc("/health/db", h.handleHealthDB).Methods("GET")
	r.HandleFunc("/status", h.handleStatus).Methods("GET")
	r.HandleFunc("/api/tasks/{userId}", h.handleUserTasks).Methods("GET")

	if h.members != nil {
		r.HandleFunc("/api/auth/line", h.handleLineAuth).Methods("POST")
		r.Handle("/api/member/me", h.members.Middleware(http.HandlerFunc(h.handleMemberMe))).Methods("GET")
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func checkmark(ok bool) string {
	if ok {
		return "✅ 已設定"
	}
	return "❌ 未設定"
}

// handleHealth reports liveness, configuration flags, store connectivity,
// and aggregate statistics. 503 only when the store is unreachable.
func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	body := map[string]any{
		"status":    "🐕 小汪記記正在運行中！",
		"message":   "Webhook 準備就緒！汪汪～",
		"timestamp": h.now().UTC().Format(time.RFC3339),
		"env_check": map[string]string{
			"channel_secret": checkmark(h.flags.ChannelSecret),
			"channel_token":  checkmark(h.flags.ChannelToken),
			"store":          checkmark(h.flags.StoreURL),
		},
	}

	status := http.StatusOK
	if err := h.db.TestConnection(r.Context()); err != nil {
		logrus.WithError(err).Warn("health check: store unreachable")
		body["database"] = "down"
		status = http.StatusServiceUnavailable
	} else {
		body["database"] = "up"
		if stats, err := h.db.GetSystemStats(r.Context()); err == nil {
			body["stats"] = stats
		}
	}

	writeJSON(w, status, body)
}

// handleHealthDB probes every entity table: accessibility, row count, and
// query latency.
func (h *Handler) handleHealthDB(w http.ResponseWriter, r *http.Request) {
	type tableReport struct {
		Accessible bool   `json:"accessible"`
		Rows       int    `json:"rows"`
		LatencyMS  int64  `json:"latency_ms"`
		Error      string `json:"error,omitempty"`
	}

	tables := make(map[string]tableReport, len(healthTables))
	healthy := true
	for _, table := range healthTables {
		start := h.now()
		count, err := h.db.TableCount(r.Context(), table)
		report := tableReport{
			Accessible: err == nil,
			Rows:       count,
			LatencyMS:  time.Since(start).Milliseconds(),
		}
		if err != nil {
			report.Error = err.Error()
			healthy = false
		}
		tables[table] = report
	}

	status := http.StatusOK
	if !healthy {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, map[string]any{
		"healthy":   healthy,
		"tables":    tables,
		"timestamp": h.now().UTC().Format(time.RFC3339),
	})
}

func (h *Handler) handleStatus(w http.ResponseWriter, r *http.Request) {
	dbStatus := "up"
	if err := h.db.TestConnection(r.Context()); err != nil {
		dbStatus = "down"
	}
	lineStatus := "not configured"
	if h.flags.ChannelToken {
		lineStatus = "configured"
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status": "operational",
		"services": map[string]string{
			"web":      "up",
			"database": dbStatus,
			"lineApi":  lineStatus,
		},
		"timestamp": h.now().UTC().Format(time.RFC3339),
	})
}

// handleUserTasks returns one user's tasks, optionally filtered to a date
// via ?date=YYYY-MM-DD.
func (h *Handler) handleUserTasks(w http.ResponseWriter, r *http.Request) {
	userID := mux.Vars(r)["userId"]

	filter := database.TaskFilter{Date: r.URL.Query().Get("date")}
	tasks, err := h.db.GetUserTasks(r.Context(), userID, filter)
	if err != nil {
		logrus.WithError(err).Error("task listing failed")
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to load tasks"})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"userId": userID,
		"count":  len(tasks),
		"tasks":  tasks,
	})
}

// handleLineAuth exchanges a LINE access token for a member record and a
// signed auth token.
func (h *Handler) handleLineAuth(w http.ResponseWriter, r *http.Request) {
	var req struct {
		AccessToken string `json:"accessToken"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.AccessToken == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "accessToken is required"})
		return
	}

	m, token, err := h.members.AuthenticateWithLineToken(r.Context(), req.AccessToken)
	if err != nil {
		logrus.WithError(err).Warn("line authentication failed")
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "authentication failed"})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"token":  token,
		"member": m,
	})
}

func (h *Handler) handleMemberMe(w http.ResponseWriter, r *http.Request) {
	claims, ok := member.ClaimsFromContext(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		return
	}

	m, err := h.db.GetMemberByID(r.Context(), claims.MemberID)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to load member"})
		return
	}
	if m == nil || !m.IsActive {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "member not found"})
		return
	}
	writeJSON(w, http.StatusOK, m)
}
