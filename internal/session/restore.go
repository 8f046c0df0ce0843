package session

import (
	"context"
	"fmt"

	"github.com/voicereply/voice-service/pkg/logger"
	"go.uber.org/zap"
)

// RestoreReport tallies the outcome of a restore pass.
type RestoreReport struct {
	Total    int `json:"total"`
	Restored int `json:"restored"`
	Failed   int `json:"failed"`
}

// RestoreAll reconnects every previously active tenant that still has
// durable credentials. Tenants without credentials are skipped, not
// counted as failed.
func (o *Orchestrator) RestoreAll(ctx context.Context) (RestoreReport, error) {
	tenantIDs, err := o.directory.ListActiveTenants(ctx)
	if err != nil {
		return RestoreReport{}, fmt.Errorf("failed to list active tenants: %w", err)
	}

	report := RestoreReport{Total: len(tenantIDs)}
	for _, tenantID := range tenantIDs {
		creds, err := o.creds.Load(tenantID)
		if err != nil {
			logger.Base().Error("Failed to load credentials during restore",
				zap.String("tenant_id", tenantID), zap.Error(err))
			report.Failed++
			continue
		}
		if len(creds) == 0 {
			logger.Base().Info("Skipping tenant without stored credentials",
				zap.String("tenant_id", tenantID))
			continue
		}

		if _, err := o.CreateSession(ctx, tenantID); err != nil {
			logger.Base().Error("Failed to restore session",
				zap.String("tenant_id", tenantID), zap.Error(err))
			report.Failed++
			continue
		}
		report.Restored++
	}

	logger.Base().Info("Session restore complete",
		zap.Int("total", report.Total),
		zap.Int("restored", report.Restored),
		zap.Int("failed", report.Failed))
	return report, nil
}
