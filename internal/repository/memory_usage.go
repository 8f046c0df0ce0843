package repository

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/voicereply/voice-service/internal/domain"
)

// MemoryUsageStore is an in-memory quota.Store. It backs tests and local
// development runs that have no database configured.
type MemoryUsageStore struct {
	mu      sync.RWMutex
	records map[string]*domain.UsageRecord
	logs    []*domain.UsageLog

	defaultLimit int
}

// NewMemoryUsageStore creates an empty in-memory usage store. Unknown tenants
// are materialized on first access with the given daily limit.
func NewMemoryUsageStore(defaultLimit int) *MemoryUsageStore {
	return &MemoryUsageStore{
		records:      make(map[string]*domain.UsageRecord),
		defaultLimit: defaultLimit,
	}
}

// Seed installs a usage record, overwriting any existing one.
func (s *MemoryUsageStore) Seed(record *domain.UsageRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	copy := *record
	s.records[record.TenantID] = &copy
}

// GetUsage returns a copy of the tenant's record, creating it if missing.
func (s *MemoryUsageStore) GetUsage(_ context.Context, tenantID string) (*domain.UsageRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.records[tenantID]
	if !ok {
		record = &domain.UsageRecord{
			TenantID:  tenantID,
			Limit:     s.defaultLimit,
			ResetDate: time.Now(),
		}
		s.records[tenantID] = record
	}

	copy := *record
	return &copy, nil
}

// SaveUsage writes back the record.
func (s *MemoryUsageStore) SaveUsage(_ context.Context, record *domain.UsageRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.records[record.TenantID]; !ok {
		return fmt.Errorf("tenant not found: %s", record.TenantID)
	}
	copy := *record
	s.records[record.TenantID] = &copy
	return nil
}

// AppendAuditLog records an audit entry.
func (s *MemoryUsageStore) AppendAuditLog(_ context.Context, entry *domain.UsageLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	entry.CreatedAt = time.Now()
	s.logs = append(s.logs, entry)
	return nil
}

// AuditLogs returns the recorded audit entries, oldest first.
func (s *MemoryUsageStore) AuditLogs() []*domain.UsageLog {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*domain.UsageLog, len(s.logs))
	copy(out, s.logs)
	return out
}
