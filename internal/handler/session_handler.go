package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/jinzhu/copier"
	"github.com/voicereply/voice-service/internal/domain"
	"github.com/voicereply/voice-service/internal/session"
	"github.com/voicereply/voice-service/pkg/logger"
	"go.uber.org/zap"
)

// SessionController is the slice of the orchestrator the HTTP surface drives.
type SessionController interface {
	CreateSession(ctx context.Context, tenantID string) (*session.PairingPayload, error)
	Status(tenantID string) session.Status
	PairingToken(tenantID string) *session.PairingPayload
	IsConnected(tenantID string) bool
	PairingTTL() time.Duration
	DisconnectSession(ctx context.Context, tenantID string) error
	LogoutSession(ctx context.Context, tenantID string) error
}

// TenantReader looks up tenant records for the status endpoint.
type TenantReader interface {
	GetByID(ctx context.Context, id string) (*domain.Tenant, error)
}

// SessionHandler handles HTTP requests for tenant messaging sessions
type SessionHandler struct {
	controller SessionController
	tenants    TenantReader
}

// NewSessionHandler creates a new session handler
func NewSessionHandler(controller SessionController, tenants TenantReader) *SessionHandler {
	return &SessionHandler{
		controller: controller,
		tenants:    tenants,
	}
}

type pairingResponse struct {
	PairingToken string    `json:"pairing_token"`
	Status       string    `json:"status"`
	ExpiresAt    time.Time `json:"expires_at"`
	Message      string    `json:"message"`
}

type sessionUsage struct {
	DailyCharsUsed  int `json:"daily_chars_used"`
	DailyCharsLimit int `json:"daily_chars_limit"`
	Remaining       int `json:"remaining"`
}

type sessionStatusResponse struct {
	Status            string       `json:"status"`
	PhoneNumber       *string      `json:"phone_number"`
	LinkedAccountID   *string      `json:"linked_account_id"`
	LastConnectedAt   *time.Time   `json:"last_connected_at"`
	ReconnectAttempts int          `json:"reconnect_attempts"`
	Usage             sessionUsage `json:"usage"`
}

// CreateSession starts (or restores) the tenant's messaging session. A fresh
// link returns the pairing token; a restore from stored credentials returns
// the connected status directly.
func (h *SessionHandler) CreateSession(w http.ResponseWriter, r *http.Request) {
	tenantID := mux.Vars(r)["tenantID"]

	if _, err := h.tenants.GetByID(r.Context(), tenantID); err != nil {
		if isNotFound(err) {
			http.Error(w, "Tenant not found", http.StatusNotFound)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	payload, err := h.controller.CreateSession(r.Context(), tenantID)
	if err != nil {
		logger.Base().Error("failed to create session",
			zap.String("tenant_id", tenantID),
			zap.Error(err))
		http.Error(w, "Failed to create session", http.StatusInternalServerError)
		return
	}

	if payload == nil {
		if h.controller.IsConnected(tenantID) {
			writeJSON(w, http.StatusOK, map[string]string{
				"status":  "connected",
				"message": "Session restored, already connected",
			})
			return
		}
		http.Error(w, "Failed to generate pairing token", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusCreated, pairingResponse{
		PairingToken: payload.Token,
		Status:       string(session.StatusPairingReady),
		ExpiresAt:    payload.IssuedAt.Add(h.controller.PairingTTL()),
		Message:      "Scan this code with WhatsApp",
	})
}

// GetPairingToken returns the current pairing token, generating a session if
// none is pending yet.
func (h *SessionHandler) GetPairingToken(w http.ResponseWriter, r *http.Request) {
	tenantID := mux.Vars(r)["tenantID"]

	if h.controller.IsConnected(tenantID) {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error":  "Already connected",
			"status": "connected",
		})
		return
	}

	if payload := h.controller.PairingToken(tenantID); payload != nil {
		writeJSON(w, http.StatusOK, pairingResponse{
			PairingToken: payload.Token,
			Status:       string(session.StatusPairingReady),
			ExpiresAt:    payload.IssuedAt.Add(h.controller.PairingTTL()),
			Message:      "Scan this code with WhatsApp",
		})
		return
	}

	h.CreateSession(w, r)
}

// GetSessionStatus reports the live session state overlaid on the stored
// tenant record.
func (h *SessionHandler) GetSessionStatus(w http.ResponseWriter, r *http.Request) {
	tenantID := mux.Vars(r)["tenantID"]

	tenant, err := h.tenants.GetByID(r.Context(), tenantID)
	if err != nil {
		if isNotFound(err) {
			http.Error(w, "Tenant not found", http.StatusNotFound)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	var resp sessionStatusResponse
	if err := copier.CopyWithOption(&resp, tenant, copier.Option{DeepCopy: true}); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	// The in-memory state wins over the persisted one while a session is
	// being tracked on this instance.
	if status := h.controller.Status(tenantID); status != session.StatusNone {
		resp.Status = string(status)
	} else {
		resp.Status = string(tenant.Status)
	}

	remaining := tenant.DailyCharsLimit - tenant.DailyCharsUsed
	if remaining < 0 {
		remaining = 0
	}
	resp.Usage = sessionUsage{
		DailyCharsUsed:  tenant.DailyCharsUsed,
		DailyCharsLimit: tenant.DailyCharsLimit,
		Remaining:       remaining,
	}

	writeJSON(w, http.StatusOK, resp)
}

// DisconnectSession tears down the live link but keeps credentials for a
// later restore.
func (h *SessionHandler) DisconnectSession(w http.ResponseWriter, r *http.Request) {
	tenantID := mux.Vars(r)["tenantID"]

	if err := h.controller.DisconnectSession(r.Context(), tenantID); err != nil {
		logger.Base().Error("failed to disconnect session",
			zap.String("tenant_id", tenantID),
			zap.Error(err))
		http.Error(w, "Failed to disconnect session", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "disconnected",
		"message": "Messaging session disconnected",
	})
}

// LogoutSession unlinks the account and purges credentials. A new pairing
// flow is required afterwards.
func (h *SessionHandler) LogoutSession(w http.ResponseWriter, r *http.Request) {
	tenantID := mux.Vars(r)["tenantID"]

	if err := h.controller.LogoutSession(r.Context(), tenantID); err != nil {
		logger.Base().Error("failed to logout session",
			zap.String("tenant_id", tenantID),
			zap.Error(err))
		http.Error(w, "Failed to logout session", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "logged_out",
		"message": "Logged out. You will need to pair again.",
	})
}

// SetupSessionRoutes sets up all session-related routes
func (h *SessionHandler) SetupSessionRoutes(router *mux.Router) {
	router.HandleFunc("/sessions/{tenantID}", h.CreateSession).Methods("POST")
	router.HandleFunc("/sessions/{tenantID}", h.LogoutSession).Methods("DELETE")
	router.HandleFunc("/sessions/{tenantID}/status", h.GetSessionStatus).Methods("GET")
	router.HandleFunc("/sessions/{tenantID}/qr", h.GetPairingToken).Methods("GET")
	router.HandleFunc("/sessions/{tenantID}/disconnect", h.DisconnectSession).Methods("POST")

	logger.Base().Info("session routes registered")
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func isNotFound(err error) bool {
	return err != nil && strings.Contains(err.Error(), "not found")
}
