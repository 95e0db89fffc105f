package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/quantpulse/pulse/internal/contracts"
	"github.com/quantpulse/pulse/internal/cycle"
	"github.com/quantpulse/pulse/pkg/logger"
)

// MaintenanceJob prunes aged step-log rows and funnel snapshots.
type MaintenanceJob struct {
	repo   *cycle.Repository
	logger *logger.Logger

	stepLogRetention  time.Duration
	snapshotRetention time.Duration
}

// NewMaintenanceJob creates the nightly maintenance job.
func NewMaintenanceJob(repo *cycle.Repository, log *logger.Logger) *MaintenanceJob {
	return &MaintenanceJob{
		repo:              repo,
		logger:            log,
		stepLogRetention:  30 * 24 * time.Hour,
		snapshotRetention: 7 * 24 * time.Hour,
	}
}

func (j *MaintenanceJob) Name() string {
	return "storage_maintenance"
}

// Schedule runs at 3 AM daily, outside trading hours.
func (j *MaintenanceJob) Schedule() string {
	return "0 0 3 * * *"
}

func (j *MaintenanceJob) Run(ctx context.Context) error {
	now := time.Now()

	steps, err := j.repo.PruneStepLog(ctx, now.Add(-j.stepLogRetention))
	if err != nil {
		return fmt.Errorf("prune step log: %w", err)
	}

	cutoff := contracts.ScanIDCutoff(now.Add(-j.snapshotRetention))
	snapshots, err := j.repo.PruneFunnelSnapshots(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("prune funnel snapshots: %w", err)
	}

	j.logger.WithFields(map[string]interface{}{
		"step_rows":     steps,
		"snapshot_rows": snapshots,
	}).Info("Storage maintenance completed")

	return nil
}
