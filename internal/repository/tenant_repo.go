package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/voicereply/voice-service/internal/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// TenantRepository defines the directory operations consumed by the session
// orchestrator plus the basic CRUD the admin surface needs.
type TenantRepository interface {
	Create(ctx context.Context, email string, dailyLimit int) (*domain.Tenant, error)
	GetByID(ctx context.Context, id string) (*domain.Tenant, error)
	GetByEmail(ctx context.Context, email string) (*domain.Tenant, error)

	ListActiveTenants(ctx context.Context) ([]string, error)
	SetStatus(ctx context.Context, tenantID string, status domain.TenantStatus) error
	RecordLinkedAccount(ctx context.Context, tenantID, phoneNumber, accountID string) error
	IncrementReconnectAttempts(ctx context.Context, tenantID string) (int, error)
}

// GormTenantRepository implements TenantRepository using GORM
type GormTenantRepository struct {
	db *gorm.DB
}

// NewGormTenantRepository creates a new GORM tenant repository
func NewGormTenantRepository(db *gorm.DB) *GormTenantRepository {
	return &GormTenantRepository{db: db}
}

// Create creates a new tenant record
func (r *GormTenantRepository) Create(ctx context.Context, email string, dailyLimit int) (*domain.Tenant, error) {
	tenant := &domain.Tenant{
		Email:           email,
		Status:          domain.TenantStatusPending,
		DailyCharsLimit: dailyLimit,
		DailyResetDate:  time.Now(),
	}

	if err := r.db.WithContext(ctx).Create(tenant).Error; err != nil {
		return nil, fmt.Errorf("failed to create tenant: %w", err)
	}

	return tenant, nil
}

// GetByID retrieves a tenant by ID
func (r *GormTenantRepository) GetByID(ctx context.Context, id string) (*domain.Tenant, error) {
	var tenant domain.Tenant
	if err := r.db.WithContext(ctx).First(&tenant, "id = ?", id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, fmt.Errorf("tenant not found: %s", id)
		}
		return nil, fmt.Errorf("failed to get tenant: %w", err)
	}

	return &tenant, nil
}

// GetByEmail retrieves a tenant by email
func (r *GormTenantRepository) GetByEmail(ctx context.Context, email string) (*domain.Tenant, error) {
	var tenant domain.Tenant
	if err := r.db.WithContext(ctx).First(&tenant, "email = ?", email).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, fmt.Errorf("tenant not found with email: %s", email)
		}
		return nil, fmt.Errorf("failed to get tenant by email: %w", err)
	}

	return &tenant, nil
}

// ListActiveTenants returns the ids of tenants that were previously linked
// (connected or disconnected) and are not disabled.
func (r *GormTenantRepository) ListActiveTenants(ctx context.Context) ([]string, error) {
	var ids []string
	err := r.db.WithContext(ctx).
		Model(&domain.Tenant{}).
		Where("status IN ?", []domain.TenantStatus{domain.TenantStatusConnected, domain.TenantStatusDisconnected}).
		Where("disabled = ?", false).
		Pluck("id", &ids).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list active tenants: %w", err)
	}

	return ids, nil
}

// SetStatus updates the externally visible status. Reaching connected resets
// the reconnect counter and stamps last_connected_at; pairing_ready stamps
// last_pairing_at.
func (r *GormTenantRepository) SetStatus(ctx context.Context, tenantID string, status domain.TenantStatus) error {
	updates := map[string]interface{}{"status": status}

	switch status {
	case domain.TenantStatusPairingReady:
		updates["last_pairing_at"] = time.Now()
	case domain.TenantStatusConnected:
		updates["last_connected_at"] = time.Now()
		updates["reconnect_attempts"] = 0
	}

	if err := r.db.WithContext(ctx).
		Model(&domain.Tenant{}).
		Where("id = ?", tenantID).
		Updates(updates).Error; err != nil {
		return fmt.Errorf("failed to set tenant status: %w", err)
	}

	return nil
}

// RecordLinkedAccount stores the linked phone number and account id
func (r *GormTenantRepository) RecordLinkedAccount(ctx context.Context, tenantID, phoneNumber, accountID string) error {
	if err := r.db.WithContext(ctx).
		Model(&domain.Tenant{}).
		Where("id = ?", tenantID).
		Updates(map[string]interface{}{
			"phone_number":      phoneNumber,
			"linked_account_id": accountID,
		}).Error; err != nil {
		return fmt.Errorf("failed to record linked account: %w", err)
	}

	return nil
}

// IncrementReconnectAttempts bumps the persisted counter and returns the new value
func (r *GormTenantRepository) IncrementReconnectAttempts(ctx context.Context, tenantID string) (int, error) {
	var tenant domain.Tenant
	err := r.db.WithContext(ctx).
		Model(&tenant).
		Clauses(clause.Returning{Columns: []clause.Column{{Name: "reconnect_attempts"}}}).
		Where("id = ?", tenantID).
		UpdateColumn("reconnect_attempts", gorm.Expr("reconnect_attempts + ?", 1)).Error
	if err != nil {
		return 0, fmt.Errorf("failed to increment reconnect attempts: %w", err)
	}

	return tenant.ReconnectAttempts, nil
}
