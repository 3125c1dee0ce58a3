package cleanup

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/vaultiq/mediavault/common/clock"
	"github.com/vaultiq/mediavault/common/db"
	"github.com/vaultiq/mediavault/common/logger"
	"github.com/vaultiq/mediavault/common/metrics"
	"github.com/vaultiq/mediavault/common/models"
	"github.com/vaultiq/mediavault/common/queue"
)

// ErrStateNotFound is returned by a StateStore when no payload exists for
// a media id.
var ErrStateNotFound = errors.New("cleanup state not found")

// StateStore is the durable cleanup state surface the scheduler needs.
type StateStore interface {
	Upsert(ctx context.Context, mediaID uuid.UUID, payload *models.CleanupStatePayload) error
	Get(ctx context.Context, mediaID uuid.UUID) (*models.CleanupStatePayload, error)
	Delete(ctx context.Context, mediaID uuid.UUID) error
	ListExpired(ctx context.Context, cutoff time.Time, limit int) ([]uuid.UUID, error)
}

// Scheduler advances durable cleanup state as renditions complete and
// hands drained payloads to the cleanup executor via the job stream.
// Deletion never races ahead of conversion generation: a payload flushes
// only when its pending set drains, on an explicit terminal flush, or when
// the stale sweep expires it.
type Scheduler struct {
	states     StateStore
	dispatcher queue.Dispatcher
	clock      clock.Clock
	log        *logger.Logger
}

// SchedulerOpts contains options for creating a Scheduler
type SchedulerOpts struct {
	States     StateStore
	Dispatcher queue.Dispatcher
	Clock      clock.Clock
	Logger     *logger.Logger
}

// NewScheduler creates a cleanup scheduler with options pattern
func NewScheduler(opts *SchedulerOpts) *Scheduler {
	return &Scheduler{
		states:     opts.States,
		dispatcher: opts.Dispatcher,
		clock:      opts.Clock,
		log:        opts.Logger,
	}
}

// ScheduleCleanup records the prior artifact set superseded by newMediaID.
// Nothing is deleted here: if no renditions are expected the payload
// flushes to the executor immediately, otherwise it waits for conversion
// events.
func (s *Scheduler) ScheduleCleanup(ctx context.Context, newMediaID uuid.UUID, snapshot *models.ReplacementSnapshot, conversions []string) error {
	if snapshot == nil || snapshot.Empty() {
		s.log.Debug("no prior artifacts to clean up", "media_id", newMediaID)
		return nil
	}

	payload := models.NewCleanupStatePayload(newMediaID, snapshot, conversions, s.clock.Now())

	if err := s.states.Upsert(ctx, newMediaID, payload); err != nil {
		return fmt.Errorf("persist cleanup state: %w", err)
	}

	if payload.Drained() {
		// No renditions expected. The dispatch still must not outrun the
		// enclosing transaction: a rollback after an eager dispatch would
		// let the executor delete files whose rows were restored. The
		// persisted row lets the stale sweep retry a failed dispatch.
		db.AfterCommit(ctx, func(ctx context.Context) {
			if err := s.flush(ctx, newMediaID, payload, false); err != nil {
				s.log.Error("immediate cleanup flush failed", "media_id", newMediaID, "error", err)
			}
		})
		return nil
	}

	s.log.Info("cleanup scheduled",
		"media_id", newMediaID,
		"pending_conversions", len(payload.ExpectedConversions),
		"origins", len(payload.OriginMediaIDs))
	return nil
}

// FlagPendingConversions re-declares which renditions a payload is still
// waiting for, e.g. after a profile change re-dispatched the jobs. A
// payload whose new pending set is empty flushes.
func (s *Scheduler) FlagPendingConversions(ctx context.Context, mediaID uuid.UUID, conversions []string) error {
	payload, err := s.states.Get(ctx, mediaID)
	if err != nil {
		if errors.Is(err, ErrStateNotFound) {
			return nil
		}
		return err
	}

	payload.ExpectedConversions = append([]string(nil), conversions...)

	if payload.Drained() {
		return s.flush(ctx, mediaID, payload, false)
	}
	return s.states.Upsert(ctx, mediaID, payload)
}

// HandleConversionEvent removes a completed rendition from the pending
// set. A signal with no matching state, or for an already removed
// rendition, is a no-op so repeated delivery stays safe.
func (s *Scheduler) HandleConversionEvent(ctx context.Context, mediaID uuid.UUID, conversion string) error {
	payload, err := s.states.Get(ctx, mediaID)
	if err != nil {
		if errors.Is(err, ErrStateNotFound) {
			s.log.Debug("conversion signal without cleanup state", "media_id", mediaID, "conversion", conversion)
			return nil
		}
		return err
	}

	if !payload.MarkConversionDone(conversion) {
		return nil
	}

	if payload.Drained() {
		s.log.Info("all expected conversions done, flushing cleanup", "media_id", mediaID)
		return s.flush(ctx, mediaID, payload, false)
	}

	return s.states.Upsert(ctx, mediaID, payload)
}

// FlushExpired force-flushes a payload regardless of its pending set.
// Used when the owning artifact was deleted or a conversion failed
// terminally and the remaining renditions will never arrive.
func (s *Scheduler) FlushExpired(ctx context.Context, mediaID uuid.UUID) error {
	payload, err := s.states.Get(ctx, mediaID)
	if err != nil {
		if errors.Is(err, ErrStateNotFound) {
			return nil
		}
		return err
	}
	return s.flush(ctx, mediaID, payload, true)
}

// PurgeExpired force-flushes payloads older than ttl, at most batch at a
// time, and returns how many were flushed. A second run with no new
// payloads returns 0.
func (s *Scheduler) PurgeExpired(ctx context.Context, ttl time.Duration, batch int) (int, error) {
	cutoff := s.clock.Now().Add(-ttl)

	ids, err := s.states.ListExpired(ctx, cutoff, batch)
	if err != nil {
		return 0, fmt.Errorf("list expired cleanup states: %w", err)
	}

	purged := 0
	for _, id := range ids {
		if err := s.FlushExpired(ctx, id); err != nil {
			// One stuck payload must not block the rest of the sweep.
			s.log.Error("failed to flush expired cleanup state", "media_id", id, "error", err)
			continue
		}
		purged++
	}

	if purged > 0 {
		metrics.CleanupPayloadsPurged.Add(float64(purged))
		s.log.Info("purged expired cleanup states", "count", purged, "ttl", ttl)
	}
	return purged, nil
}

// flush hands the payload's artifact set to the executor stream and
// removes the durable record. The record is deleted only after a
// successful dispatch, so a failed dispatch is retried by the stale sweep.
func (s *Scheduler) flush(ctx context.Context, mediaID uuid.UUID, payload *models.CleanupStatePayload, forced bool) error {
	job, err := queue.NewJob(queue.JobTypeCleanup, payload.UniqueKey(), &queue.CleanupJobPayload{
		ArtifactsByDisk:  payload.ArtifactsByDisk,
		PreserveMediaIDs: payload.PreserveMediaIDs,
	})
	if err != nil {
		return err
	}

	if err := s.dispatcher.Dispatch(ctx, queue.CleanupJobsStream, job, 0); err != nil {
		return fmt.Errorf("dispatch cleanup job: %w", err)
	}

	if err := s.states.Delete(ctx, mediaID); err != nil {
		return fmt.Errorf("delete cleanup state: %w", err)
	}

	s.log.Info("cleanup flushed", "media_id", mediaID, "forced", forced, "job_key", job.Key)
	return nil
}
