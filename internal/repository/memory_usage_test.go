package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/voicereply/voice-service/internal/domain"
	"github.com/voicereply/voice-service/internal/quota"
)

func TestMemoryUsageStoreMaterializesUnknownTenants(t *testing.T) {
	store := NewMemoryUsageStore(500)

	record, err := store.GetUsage(context.Background(), "tenant-1")
	require.NoError(t, err)
	assert.Equal(t, 0, record.Used)
	assert.Equal(t, 500, record.Limit)
}

func TestMemoryUsageStoreReturnsCopies(t *testing.T) {
	store := NewMemoryUsageStore(500)

	record, err := store.GetUsage(context.Background(), "tenant-1")
	require.NoError(t, err)
	record.Used = 9999

	again, err := store.GetUsage(context.Background(), "tenant-1")
	require.NoError(t, err)
	assert.Equal(t, 0, again.Used)
}

func TestMemoryUsageStoreSaveRejectsUnknownTenant(t *testing.T) {
	store := NewMemoryUsageStore(500)

	err := store.SaveUsage(context.Background(), &domain.UsageRecord{TenantID: "ghost"})
	assert.Error(t, err)
}

func TestMemoryUsageStoreBacksLedger(t *testing.T) {
	store := NewMemoryUsageStore(100)
	store.Seed(&domain.UsageRecord{
		TenantID:  "tenant-1",
		Used:      95,
		Limit:     100,
		ResetDate: time.Now(),
	})
	ledger := quota.NewLedger(store)

	result, err := ledger.Charge(context.Background(), "tenant-1", 10, "too long", "pirate")
	require.NoError(t, err)
	assert.False(t, result.Allowed)
	assert.Equal(t, 5, result.Remaining)
	assert.Empty(t, store.AuditLogs())

	result, err = ledger.Charge(context.Background(), "tenant-1", 5, "just fits", "pirate")
	require.NoError(t, err)
	assert.True(t, result.Allowed)

	logs := store.AuditLogs()
	require.Len(t, logs, 1)
	assert.Equal(t, "just fits", logs[0].MessageText)
	assert.NotEmpty(t, logs[0].ID)
	assert.False(t, logs[0].CreatedAt.IsZero())
}
