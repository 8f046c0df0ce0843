package quota

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/voicereply/voice-service/internal/domain"
	"github.com/voicereply/voice-service/pkg/logger"
	"go.uber.org/zap"
)

// Store is the persistence capability consumed by the ledger.
type Store interface {
	GetUsage(ctx context.Context, tenantID string) (*domain.UsageRecord, error)
	SaveUsage(ctx context.Context, record *domain.UsageRecord) error
	AppendAuditLog(ctx context.Context, entry *domain.UsageLog) error
}

// Result is the outcome of a charge attempt.
type Result struct {
	Allowed   bool `json:"allowed"`
	Remaining int  `json:"remaining"`
}

// Ledger enforces the per-tenant daily character budget. Check-then-commit is
// serialized per tenant; charges for different tenants run in parallel.
type Ledger struct {
	store Store

	mu      sync.Mutex
	tenants map[string]*sync.Mutex

	now func() time.Time
}

// NewLedger creates a ledger backed by the given store.
func NewLedger(store Store) *Ledger {
	return &Ledger{
		store:   store,
		tenants: make(map[string]*sync.Mutex),
		now:     time.Now,
	}
}

func (l *Ledger) tenantLock(tenantID string) *sync.Mutex {
	l.mu.Lock()
	defer l.mu.Unlock()

	lock, ok := l.tenants[tenantID]
	if !ok {
		lock = &sync.Mutex{}
		l.tenants[tenantID] = lock
	}
	return lock
}

// Charge authorizes and records a character spend for the tenant. The daily
// counter rolls over lazily: if the stored reset date is before today, usage
// is zeroed first. A rejected attempt charges nothing.
func (l *Ledger) Charge(ctx context.Context, tenantID string, characters int, contextText, styleKey string) (Result, error) {
	lock := l.tenantLock(tenantID)
	lock.Lock()
	defer lock.Unlock()

	record, err := l.store.GetUsage(ctx, tenantID)
	if err != nil {
		return Result{}, fmt.Errorf("failed to load usage for tenant %s: %w", tenantID, err)
	}

	today := dateOnly(l.now())
	if record.ResetDate.Before(today) {
		record.Used = 0
		record.ResetDate = today
	}

	if record.Used+characters > record.Limit {
		remaining := record.Limit - record.Used
		if remaining < 0 {
			remaining = 0
		}
		// Persist the rollover even on rejection so the stored record
		// stays consistent with what was checked.
		if err := l.store.SaveUsage(ctx, record); err != nil {
			return Result{}, fmt.Errorf("failed to save usage for tenant %s: %w", tenantID, err)
		}
		logger.Base().Info("Quota charge rejected",
			zap.String("tenant_id", tenantID),
			zap.Int("characters", characters),
			zap.Int("remaining", remaining))
		return Result{Allowed: false, Remaining: remaining}, nil
	}

	record.Used += characters
	if err := l.store.SaveUsage(ctx, record); err != nil {
		return Result{}, fmt.Errorf("failed to save usage for tenant %s: %w", tenantID, err)
	}

	if err := l.store.AppendAuditLog(ctx, &domain.UsageLog{
		TenantID:    tenantID,
		MessageText: contextText,
		Characters:  characters,
		StyleKey:    styleKey,
	}); err != nil {
		// The charge already committed; a failed audit write is logged,
		// not surfaced to the caller.
		logger.Base().Error("Failed to append usage audit log",
			zap.String("tenant_id", tenantID),
			zap.Error(err))
	}

	return Result{Allowed: true, Remaining: record.Limit - record.Used}, nil
}

// Remaining returns the balance left today without charging anything.
func (l *Ledger) Remaining(ctx context.Context, tenantID string) (int, error) {
	lock := l.tenantLock(tenantID)
	lock.Lock()
	defer lock.Unlock()

	record, err := l.store.GetUsage(ctx, tenantID)
	if err != nil {
		return 0, fmt.Errorf("failed to load usage for tenant %s: %w", tenantID, err)
	}

	if record.ResetDate.Before(dateOnly(l.now())) {
		return record.Limit, nil
	}
	remaining := record.Limit - record.Used
	if remaining < 0 {
		remaining = 0
	}
	return remaining, nil
}

func dateOnly(t time.Time) time.Time {
	year, month, day := t.Date()
	return time.Date(year, month, day, 0, 0, 0, 0, t.Location())
}
