package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/vaultiq/mediavault/common/cleanup"
	"github.com/vaultiq/mediavault/common/config"
	"github.com/vaultiq/mediavault/common/logger"
	"github.com/vaultiq/mediavault/common/metrics"
	"github.com/vaultiq/mediavault/common/quarantine"
	"github.com/vaultiq/mediavault/common/queue"
	rediscommon "github.com/vaultiq/mediavault/common/redis"
	commonworker "github.com/vaultiq/mediavault/common/worker"
)

// CleanupWorker owns the deferred side of the media lifecycle. It runs
// three loops:
//  1. completion signals - pops conversion signals and advances cleanup
//     state; a terminal failure force-flushes the state so old artifacts
//     do not wait for renditions that will never arrive
//  2. cleanup jobs - executes flushed payloads against the disks
//  3. sweeper - periodically purges expired payloads and prunes stale
//     quarantine entries
type CleanupWorker struct {
	redis      *rediscommon.Client
	scheduler  *cleanup.Scheduler
	executor   *cleanup.Executor
	quarantine *quarantine.Store
	cfg        *config.Config
	log        *logger.Logger

	group    string
	consumer string
}

// CleanupWorkerOpts contains options for creating a CleanupWorker
type CleanupWorkerOpts struct {
	Redis      *redis.Client
	Scheduler  *cleanup.Scheduler
	Executor   *cleanup.Executor
	Quarantine *quarantine.Store
	Config     *config.Config
	Logger     *logger.Logger
}

// NewCleanupWorker creates a new cleanup worker
func NewCleanupWorker(opts *CleanupWorkerOpts) *CleanupWorker {
	return &CleanupWorker{
		redis:      rediscommon.NewClient(opts.Redis, opts.Logger),
		scheduler:  opts.Scheduler,
		executor:   opts.Executor,
		quarantine: opts.Quarantine,
		cfg:        opts.Config,
		log:        opts.Logger,
		group:      "cleanup_workers",
		consumer:   fmt.Sprintf("cleanup_worker_%s", uuid.New().String()[:8]),
	}
}

// Start runs all three loops until the context is cancelled.
func (w *CleanupWorker) Start(ctx context.Context) error {
	w.log.Info("starting cleanup worker",
		"jobs_stream", queue.CleanupJobsStream,
		"signals_list", commonworker.ConversionSignalsList,
		"consumer", w.consumer)

	if err := w.redis.CreateStreamGroup(ctx, queue.CleanupJobsStream, w.group); err != nil {
		return fmt.Errorf("failed to create consumer group: %w", err)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	errChan := make(chan error, 3)

	go func() {
		errChan <- w.processSignals(ctx)
	}()
	go func() {
		errChan <- w.processJobs(ctx)
	}()
	go func() {
		errChan <- w.runSweeper(ctx)
	}()

	select {
	case <-ctx.Done():
		w.log.Info("cleanup worker stopping")
		return nil
	case err := <-errChan:
		w.log.Error("cleanup worker goroutine failed", "error", err)
		cancel()
		return err
	}
}

// processSignals consumes conversion completion signals.
func (w *CleanupWorker) processSignals(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			w.log.Info("signal handler stopping")
			return nil
		default:
			if err := w.popSignal(ctx); err != nil {
				w.log.Error("failed to process conversion signal", "error", err)
				time.Sleep(1 * time.Second) // Back off on error
			}
		}
	}
}

func (w *CleanupWorker) popSignal(ctx context.Context) error {
	result, err := w.redis.BlockingPopList(ctx, 5*time.Second, commonworker.ConversionSignalsList)
	if err != nil {
		return err
	}
	if len(result) < 2 {
		// Timeout, no signals
		return nil
	}

	var signal commonworker.ConversionSignal
	if err := json.Unmarshal([]byte(result[1]), &signal); err != nil {
		return fmt.Errorf("unmarshal conversion signal: %w", err)
	}
	if err := signal.Validate(); err != nil {
		return fmt.Errorf("invalid conversion signal: %w", err)
	}

	mediaID, err := uuid.Parse(signal.MediaID)
	if err != nil {
		return fmt.Errorf("signal carries invalid media id %q: %w", signal.MediaID, err)
	}

	switch signal.Status {
	case commonworker.StatusCompleted:
		return w.scheduler.HandleConversionEvent(ctx, mediaID, signal.Conversion)
	case commonworker.StatusFailed:
		// The rendition will never arrive; holding the old artifacts
		// any longer only leaks them.
		w.log.Warn("conversion failed terminally, force-flushing cleanup",
			"media_id", mediaID,
			"conversion", signal.Conversion,
			"error", signal.Error)
		return w.scheduler.FlushExpired(ctx, mediaID)
	}
	return nil
}

// processJobs consumes flushed cleanup payloads and runs the executor.
func (w *CleanupWorker) processJobs(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			w.log.Info("job handler stopping")
			return nil
		default:
			if err := w.popJob(ctx); err != nil {
				w.log.Error("failed to process cleanup job", "error", err)
				time.Sleep(1 * time.Second) // Back off on error
			}
		}
	}
}

func (w *CleanupWorker) popJob(ctx context.Context) error {
	streams, err := w.redis.ReadFromStreamGroup(ctx, w.group, w.consumer, queue.CleanupJobsStream, 1, 5*time.Second)
	if err != nil {
		return fmt.Errorf("XREADGROUP error: %w", err)
	}
	if streams == nil {
		// Timeout, no messages
		return nil
	}

	for _, stream := range streams {
		for _, message := range stream.Messages {
			if err := w.handleJob(ctx, message); err != nil {
				w.log.Error("failed to handle cleanup job", "message_id", message.ID, "error", err)
			}

			if err := w.redis.AckStreamMessage(ctx, queue.CleanupJobsStream, w.group, message.ID); err != nil {
				w.log.Error("failed to ACK cleanup message", "message_id", message.ID, "error", err)
			}
		}
	}
	return nil
}

func (w *CleanupWorker) handleJob(ctx context.Context, message redis.XMessage) error {
	raw, ok := message.Values["job"].(string)
	if !ok {
		return fmt.Errorf("message %s has no job field", message.ID)
	}

	var job queue.Job
	if err := json.Unmarshal([]byte(raw), &job); err != nil {
		return fmt.Errorf("unmarshal job: %w", err)
	}

	var payload queue.CleanupJobPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return fmt.Errorf("unmarshal cleanup payload: %w", err)
	}

	stats := w.executor.Run(ctx, payload.ArtifactsByDisk, payload.PreserveMediaIDs)
	w.log.Info("cleanup job executed",
		"job_key", job.Key,
		"deleted", stats.Deleted,
		"skipped_legacy_unparsable", stats.SkippedLegacyUnparsable,
		"skipped_invalid", stats.SkippedInvalid,
		"errors", stats.Errors)
	return nil
}

// runSweeper periodically purges expired cleanup payloads and prunes the
// quarantine area.
func (w *CleanupWorker) runSweeper(ctx context.Context) error {
	ticker := time.NewTicker(w.cfg.Cleanup.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Info("sweeper stopping")
			return nil
		case <-ticker.C:
			w.sweep(ctx)
		}
	}
}

func (w *CleanupWorker) sweep(ctx context.Context) {
	purged, err := w.scheduler.PurgeExpired(ctx, w.cfg.Cleanup.PayloadTTL, w.cfg.Cleanup.SweepBatch)
	if err != nil {
		w.log.Error("failed to purge expired cleanup states", "error", err)
	}

	pruned, err := w.quarantine.PruneStale(ctx, w.cfg.Quarantine.MaxAge)
	if err != nil {
		w.log.Error("failed to prune quarantine", "error", err)
	}
	if pruned > 0 {
		metrics.QuarantinePruned.Add(float64(pruned))
	}

	orphans, err := w.quarantine.CleanupOrphanSidecars(ctx)
	if err != nil {
		w.log.Error("failed to clean orphan sidecars", "error", err)
	}

	w.log.Info("sweep complete", "purged_payloads", purged, "pruned_quarantine", pruned, "orphan_sidecars", orphans)
}
