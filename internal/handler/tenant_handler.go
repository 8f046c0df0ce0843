package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/gorilla/mux"
	"github.com/voicereply/voice-service/internal/domain"
	"github.com/voicereply/voice-service/pkg/logger"
)

const defaultDailyCharsLimit = 10000

// TenantStore is the tenant CRUD surface consumed by the handler.
type TenantStore interface {
	Create(ctx context.Context, email string, dailyLimit int) (*domain.Tenant, error)
	GetByID(ctx context.Context, id string) (*domain.Tenant, error)
	GetByEmail(ctx context.Context, email string) (*domain.Tenant, error)
}

// TenantHandler handles HTTP requests for tenants
type TenantHandler struct {
	tenants TenantStore
}

// NewTenantHandler creates a new tenant handler
func NewTenantHandler(tenants TenantStore) *TenantHandler {
	return &TenantHandler{tenants: tenants}
}

type createTenantRequest struct {
	Email           string `json:"email"`
	DailyCharsLimit int    `json:"daily_chars_limit"`
}

// CreateTenant registers a new tenant record
func (h *TenantHandler) CreateTenant(w http.ResponseWriter, r *http.Request) {
	var req createTenantRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	req.Email = strings.TrimSpace(req.Email)
	if req.Email == "" {
		http.Error(w, "email is required", http.StatusBadRequest)
		return
	}
	if req.DailyCharsLimit <= 0 {
		req.DailyCharsLimit = defaultDailyCharsLimit
	}

	tenant, err := h.tenants.Create(r.Context(), req.Email, req.DailyCharsLimit)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusCreated, tenant)
}

// GetTenant retrieves a tenant by ID
func (h *TenantHandler) GetTenant(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	tenant, err := h.tenants.GetByID(r.Context(), id)
	if err != nil {
		if isNotFound(err) {
			http.Error(w, "Tenant not found", http.StatusNotFound)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, tenant)
}

// GetTenantByEmail retrieves a tenant by email
func (h *TenantHandler) GetTenantByEmail(w http.ResponseWriter, r *http.Request) {
	email := mux.Vars(r)["email"]

	tenant, err := h.tenants.GetByEmail(r.Context(), email)
	if err != nil {
		if isNotFound(err) {
			http.Error(w, "Tenant not found", http.StatusNotFound)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, tenant)
}

// SetupTenantRoutes sets up all tenant-related routes
func (h *TenantHandler) SetupTenantRoutes(router *mux.Router) {
	router.HandleFunc("/tenants", h.CreateTenant).Methods("POST")
	router.HandleFunc("/tenants/{id}", h.GetTenant).Methods("GET")
	router.HandleFunc("/tenants/by-email/{email}", h.GetTenantByEmail).Methods("GET")

	logger.Base().Info("tenant routes registered")
}
