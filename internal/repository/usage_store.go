package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/voicereply/voice-service/internal/domain"
	"gorm.io/gorm"
)

// GormUsageStore implements quota.Store on top of the tenants and usage_logs tables.
type GormUsageStore struct {
	db *gorm.DB
}

// NewGormUsageStore creates a new GORM usage store
func NewGormUsageStore(db *gorm.DB) *GormUsageStore {
	return &GormUsageStore{db: db}
}

// GetUsage reads the daily budget projection for a tenant
func (s *GormUsageStore) GetUsage(ctx context.Context, tenantID string) (*domain.UsageRecord, error) {
	var tenant domain.Tenant
	if err := s.db.WithContext(ctx).
		Select("id", "daily_chars_used", "daily_chars_limit", "daily_reset_date").
		First(&tenant, "id = ?", tenantID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, fmt.Errorf("tenant not found: %s", tenantID)
		}
		return nil, fmt.Errorf("failed to get usage: %w", err)
	}

	return &domain.UsageRecord{
		TenantID:  tenant.ID,
		Used:      tenant.DailyCharsUsed,
		Limit:     tenant.DailyCharsLimit,
		ResetDate: tenant.DailyResetDate,
	}, nil
}

// SaveUsage writes back the used counter and reset date
func (s *GormUsageStore) SaveUsage(ctx context.Context, record *domain.UsageRecord) error {
	if err := s.db.WithContext(ctx).
		Model(&domain.Tenant{}).
		Where("id = ?", record.TenantID).
		Updates(map[string]interface{}{
			"daily_chars_used": record.Used,
			"daily_reset_date": record.ResetDate,
		}).Error; err != nil {
		return fmt.Errorf("failed to save usage: %w", err)
	}

	return nil
}

// AppendAuditLog inserts one usage audit entry
func (s *GormUsageStore) AppendAuditLog(ctx context.Context, entry *domain.UsageLog) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if err := s.db.WithContext(ctx).Create(entry).Error; err != nil {
		return fmt.Errorf("failed to append usage log: %w", err)
	}

	return nil
}
