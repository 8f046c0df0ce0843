package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"gorm.io/gorm"
)

// SessionCounter reports how many sessions are currently live.
type SessionCounter interface {
	ConnectedCount() int
}

// KeyChecker verifies the synthesis upstream accepts our API key.
type KeyChecker interface {
	CheckAPIKey(ctx context.Context) error
}

// HealthHandler serves liveness and readiness probes
type HealthHandler struct {
	db       *gorm.DB
	sessions SessionCounter
	synth    KeyChecker
}

// NewHealthHandler creates a new health handler. db and synth may be nil.
func NewHealthHandler(db *gorm.DB, sessions SessionCounter, synth KeyChecker) *HealthHandler {
	return &HealthHandler{
		db:       db,
		sessions: sessions,
		synth:    synth,
	}
}

// GetHealth is the basic liveness probe
func (h *HealthHandler) GetHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// GetReadiness checks the database link before declaring the pod ready
func (h *HealthHandler) GetReadiness(w http.ResponseWriter, r *http.Request) {
	if !h.databaseUp(r.Context()) {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status":   "error",
			"database": "disconnected",
		})
		return
	}

	active := 0
	if h.sessions != nil {
		active = h.sessions.ConnectedCount()
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":          "ready",
		"database":        "connected",
		"active_sessions": active,
	})
}

// GetDetailedHealth checks every upstream the service depends on
func (h *HealthHandler) GetDetailedHealth(w http.ResponseWriter, r *http.Request) {
	dbOk := h.databaseUp(r.Context())

	synthOk := true
	if h.synth != nil {
		synthOk = h.synth.CheckAPIKey(r.Context()) == nil
	}

	status := "healthy"
	if !dbOk || !synthOk {
		status = "degraded"
	}

	active := 0
	if h.sessions != nil {
		active = h.sessions.ConnectedCount()
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status": status,
		"components": map[string]string{
			"database":  healthWord(dbOk),
			"synthesis": healthWord(synthOk),
		},
		"sessions": map[string]int{
			"connected": active,
		},
	})
}

func (h *HealthHandler) databaseUp(ctx context.Context) bool {
	if h.db == nil {
		return true
	}
	sqlDB, err := h.db.DB()
	if err != nil {
		return false
	}
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	return sqlDB.PingContext(ctx) == nil
}

func healthWord(ok bool) string {
	if ok {
		return "connected"
	}
	return "error"
}

// SetupHealthRoutes sets up health probe routes
func (h *HealthHandler) SetupHealthRoutes(router *mux.Router) {
	router.HandleFunc("/health", h.GetHealth).Methods("GET")
	router.HandleFunc("/health/ready", h.GetReadiness).Methods("GET")
	router.HandleFunc("/health/detailed", h.GetDetailedHealth).Methods("GET")
}
