package service

import (
	"context"
	"time"

	"github.com/vaultiq/mediavault/common/cleanup"
	"github.com/vaultiq/mediavault/common/logger"
	"github.com/vaultiq/mediavault/common/metrics"
	"github.com/vaultiq/mediavault/common/quarantine"
	"github.com/vaultiq/mediavault/common/scan"
)

// MaintenanceService backs the admin endpoints: quarantine pruning, stale
// cleanup payload purging, and breaker resets. The cleanup worker's sweeper
// runs the same operations on a schedule.
type MaintenanceService struct {
	quarantine *quarantine.Store
	scheduler  *cleanup.Scheduler
	breaker    *scan.Breaker

	quarantineMaxAge time.Duration
	payloadTTL       time.Duration
	sweepBatch       int

	log *logger.Logger
}

// MaintenanceServiceOpts contains options for creating a MaintenanceService
type MaintenanceServiceOpts struct {
	Quarantine       *quarantine.Store
	Scheduler        *cleanup.Scheduler
	Breaker          *scan.Breaker
	QuarantineMaxAge time.Duration
	PayloadTTL       time.Duration
	SweepBatch       int
	Logger           *logger.Logger
}

// NewMaintenanceService creates a maintenance service with options pattern
func NewMaintenanceService(opts *MaintenanceServiceOpts) *MaintenanceService {
	return &MaintenanceService{
		quarantine:       opts.Quarantine,
		scheduler:        opts.Scheduler,
		breaker:          opts.Breaker,
		quarantineMaxAge: opts.QuarantineMaxAge,
		payloadTTL:       opts.PayloadTTL,
		sweepBatch:       opts.SweepBatch,
		log:              opts.Logger,
	}
}

// PruneQuarantine removes staged entries older than the configured max age
// and any orphaned metadata sidecars.
func (s *MaintenanceService) PruneQuarantine(ctx context.Context) (pruned, orphans int, err error) {
	pruned, err = s.quarantine.PruneStale(ctx, s.quarantineMaxAge)
	if err != nil {
		return 0, 0, err
	}
	if pruned > 0 {
		metrics.QuarantinePruned.Add(float64(pruned))
	}

	orphans, err = s.quarantine.CleanupOrphanSidecars(ctx)
	if err != nil {
		return pruned, 0, err
	}

	s.log.Info("quarantine pruned", "removed", pruned, "orphan_sidecars", orphans)
	return pruned, orphans, nil
}

// PurgeCleanupStates force-flushes cleanup payloads older than the TTL.
func (s *MaintenanceService) PurgeCleanupStates(ctx context.Context) (int, error) {
	return s.scheduler.PurgeExpired(ctx, s.payloadTTL, s.sweepBatch)
}

// ResetBreaker clears a scanner's failure counter. Operator escape hatch
// after a fixed dependency; normal healing is by decay window expiry.
func (s *MaintenanceService) ResetBreaker(ctx context.Context, scannerID string) error {
	return s.breaker.Reset(ctx, scannerID)
}
