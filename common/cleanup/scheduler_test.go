package cleanup

import (
	"context"
	"encoding/json"
	"sort"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/vaultiq/mediavault/common/clock"
	"github.com/vaultiq/mediavault/common/logger"
	"github.com/vaultiq/mediavault/common/models"
	"github.com/vaultiq/mediavault/common/queue"
)

// memoryStateStore keeps cleanup payloads in a map.
type memoryStateStore struct {
	states  map[uuid.UUID]*models.CleanupStatePayload
	upserts int
}

func newMemoryStateStore() *memoryStateStore {
	return &memoryStateStore{states: make(map[uuid.UUID]*models.CleanupStatePayload)}
}

func (s *memoryStateStore) Upsert(ctx context.Context, mediaID uuid.UUID, payload *models.CleanupStatePayload) error {
	copied := *payload
	s.states[mediaID] = &copied
	s.upserts++
	return nil
}

func (s *memoryStateStore) Get(ctx context.Context, mediaID uuid.UUID) (*models.CleanupStatePayload, error) {
	payload, ok := s.states[mediaID]
	if !ok {
		return nil, ErrStateNotFound
	}
	copied := *payload
	return &copied, nil
}

func (s *memoryStateStore) Delete(ctx context.Context, mediaID uuid.UUID) error {
	delete(s.states, mediaID)
	return nil
}

func (s *memoryStateStore) ListExpired(ctx context.Context, cutoff time.Time, limit int) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	for id, payload := range s.states {
		if payload.QueuedAt.Before(cutoff) {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i].String() < ids[j].String() })
	if len(ids) > limit {
		ids = ids[:limit]
	}
	return ids, nil
}

// failingDispatcher rejects every job.
type failingDispatcher struct{}

func (d *failingDispatcher) Dispatch(ctx context.Context, stream string, job *queue.Job, delay time.Duration) error {
	return context.DeadlineExceeded
}

type schedulerFixture struct {
	scheduler  *Scheduler
	states     *memoryStateStore
	dispatcher *queue.MemoryDispatcher
	clock      *clock.Fake
}

func newSchedulerFixture(t *testing.T) *schedulerFixture {
	t.Helper()
	states := newMemoryStateStore()
	dispatcher := queue.NewMemoryDispatcher()
	clk := clock.NewFake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))

	return &schedulerFixture{
		scheduler: NewScheduler(&SchedulerOpts{
			States:     states,
			Dispatcher: dispatcher,
			Clock:      clk,
			Logger:     logger.New("error", "json"),
		}),
		states:     states,
		dispatcher: dispatcher,
		clock:      clk,
	}
}

func testSnapshot(oldID uuid.UUID) *models.ReplacementSnapshot {
	return &models.ReplacementSnapshot{
		ArtifactsByDisk: map[string][]models.CleanupArtifactEntry{
			"local": {{Directory: "tenants/acme/users/a/avatars/" + oldID.String(), OriginMediaID: &oldID}},
		},
		OriginMediaIDs: []uuid.UUID{oldID},
	}
}

func (f *schedulerFixture) drainCleanupJobs(t *testing.T) []*queue.CleanupJobPayload {
	t.Helper()
	dispatched := f.dispatcher.Drain(queue.CleanupJobsStream)
	payloads := make([]*queue.CleanupJobPayload, 0, len(dispatched))
	for _, d := range dispatched {
		if d.Job.Type != queue.JobTypeCleanup {
			t.Fatalf("unexpected job type %s", d.Job.Type)
		}
		payload := &queue.CleanupJobPayload{}
		if err := json.Unmarshal(d.Job.Payload, payload); err != nil {
			t.Fatalf("decode cleanup payload: %v", err)
		}
		payloads = append(payloads, payload)
	}
	return payloads
}

func TestScheduleCleanup_EmptySnapshotIsNoOp(t *testing.T) {
	f := newSchedulerFixture(t)
	newID := uuid.New()

	err := f.scheduler.ScheduleCleanup(context.Background(), newID, nil, []string{"thumb"})
	if err != nil {
		t.Fatalf("ScheduleCleanup failed: %v", err)
	}
	err = f.scheduler.ScheduleCleanup(context.Background(), newID,
		&models.ReplacementSnapshot{ArtifactsByDisk: map[string][]models.CleanupArtifactEntry{}}, []string{"thumb"})
	if err != nil {
		t.Fatalf("ScheduleCleanup failed: %v", err)
	}

	if len(f.states.states) != 0 {
		t.Error("nothing to clean means no state")
	}
	if len(f.drainCleanupJobs(t)) != 0 {
		t.Error("nothing to clean means no dispatch")
	}
}

func TestScheduleCleanup_NoConversionsFlushesImmediately(t *testing.T) {
	f := newSchedulerFixture(t)
	newID := uuid.New()
	oldID := uuid.New()

	err := f.scheduler.ScheduleCleanup(context.Background(), newID, testSnapshot(oldID), nil)
	if err != nil {
		t.Fatalf("ScheduleCleanup failed: %v", err)
	}

	jobs := f.drainCleanupJobs(t)
	if len(jobs) != 1 {
		t.Fatalf("expected immediate flush, got %d jobs", len(jobs))
	}
	if f.states.upserts != 1 {
		t.Errorf("drained payload must be persisted before dispatch, got %d upserts", f.states.upserts)
	}
	if len(f.states.states) != 0 {
		t.Error("flushed payload must not linger in the store")
	}
}

func TestScheduleCleanup_DrainedDispatchFailureKeepsState(t *testing.T) {
	f := newSchedulerFixture(t)
	f.scheduler.dispatcher = &failingDispatcher{}
	newID := uuid.New()

	err := f.scheduler.ScheduleCleanup(context.Background(), newID, testSnapshot(uuid.New()), nil)
	if err != nil {
		t.Fatalf("ScheduleCleanup failed: %v", err)
	}

	// The persisted row is what the stale sweep retries from.
	if _, ok := f.states.states[newID]; !ok {
		t.Error("failed dispatch must leave the cleanup state for the sweep")
	}
}

func TestScheduleCleanup_WaitsForConversions(t *testing.T) {
	f := newSchedulerFixture(t)
	newID := uuid.New()

	err := f.scheduler.ScheduleCleanup(context.Background(), newID, testSnapshot(uuid.New()), []string{"thumb", "medium"})
	if err != nil {
		t.Fatalf("ScheduleCleanup failed: %v", err)
	}

	if len(f.drainCleanupJobs(t)) != 0 {
		t.Fatal("payload with pending conversions must not flush")
	}
	if _, err := f.states.Get(context.Background(), newID); err != nil {
		t.Fatalf("state must be persisted: %v", err)
	}
}

func TestHandleConversionEvent_FlushesWhenDrained(t *testing.T) {
	f := newSchedulerFixture(t)
	ctx := context.Background()
	newID := uuid.New()
	oldID := uuid.New()

	f.scheduler.ScheduleCleanup(ctx, newID, testSnapshot(oldID), []string{"thumb", "medium"})

	if err := f.scheduler.HandleConversionEvent(ctx, newID, "thumb"); err != nil {
		t.Fatalf("HandleConversionEvent failed: %v", err)
	}
	if len(f.drainCleanupJobs(t)) != 0 {
		t.Fatal("payload must not flush while medium is pending")
	}

	// Duplicate signal delivery is harmless
	if err := f.scheduler.HandleConversionEvent(ctx, newID, "thumb"); err != nil {
		t.Fatalf("duplicate signal failed: %v", err)
	}

	if err := f.scheduler.HandleConversionEvent(ctx, newID, "medium"); err != nil {
		t.Fatalf("HandleConversionEvent failed: %v", err)
	}

	jobs := f.drainCleanupJobs(t)
	if len(jobs) != 1 {
		t.Fatalf("expected flush after last conversion, got %d jobs", len(jobs))
	}
	if !containsID(jobs[0].PreserveMediaIDs, newID) {
		t.Error("flushed payload must preserve the new media id")
	}
	if len(f.states.states) != 0 {
		t.Error("flushed state must be deleted")
	}
}

func TestHandleConversionEvent_NoStateIsNoOp(t *testing.T) {
	f := newSchedulerFixture(t)

	if err := f.scheduler.HandleConversionEvent(context.Background(), uuid.New(), "thumb"); err != nil {
		t.Errorf("signal without state must be a no-op: %v", err)
	}
}

func TestFlagPendingConversions_EmptySetFlushes(t *testing.T) {
	f := newSchedulerFixture(t)
	ctx := context.Background()
	newID := uuid.New()

	f.scheduler.ScheduleCleanup(ctx, newID, testSnapshot(uuid.New()), []string{"thumb"})

	if err := f.scheduler.FlagPendingConversions(ctx, newID, nil); err != nil {
		t.Fatalf("FlagPendingConversions failed: %v", err)
	}
	if len(f.drainCleanupJobs(t)) != 1 {
		t.Error("an empty pending set must flush")
	}
}

func TestFlushExpired_IgnoresPendingSet(t *testing.T) {
	f := newSchedulerFixture(t)
	ctx := context.Background()
	newID := uuid.New()

	f.scheduler.ScheduleCleanup(ctx, newID, testSnapshot(uuid.New()), []string{"thumb", "medium"})

	if err := f.scheduler.FlushExpired(ctx, newID); err != nil {
		t.Fatalf("FlushExpired failed: %v", err)
	}
	if len(f.drainCleanupJobs(t)) != 1 {
		t.Error("forced flush must dispatch regardless of pending conversions")
	}
	if err := f.scheduler.FlushExpired(ctx, newID); err != nil {
		t.Errorf("second flush must be a no-op: %v", err)
	}
}

func TestPurgeExpired(t *testing.T) {
	f := newSchedulerFixture(t)
	ctx := context.Background()

	stale := uuid.New()
	f.scheduler.ScheduleCleanup(ctx, stale, testSnapshot(uuid.New()), []string{"thumb"})

	f.clock.Advance(49 * time.Hour)

	fresh := uuid.New()
	f.scheduler.ScheduleCleanup(ctx, fresh, testSnapshot(uuid.New()), []string{"thumb"})

	purged, err := f.scheduler.PurgeExpired(ctx, 48*time.Hour, 100)
	if err != nil {
		t.Fatalf("PurgeExpired failed: %v", err)
	}
	if purged != 1 {
		t.Errorf("expected 1 purge, got %d", purged)
	}
	if len(f.drainCleanupJobs(t)) != 1 {
		t.Error("purge must flush the stale payload")
	}

	// Second sweep has nothing left to do
	purged, err = f.scheduler.PurgeExpired(ctx, 48*time.Hour, 100)
	if err != nil {
		t.Fatalf("second PurgeExpired failed: %v", err)
	}
	if purged != 0 {
		t.Errorf("second sweep must purge nothing, got %d", purged)
	}
}

func containsID(ids []uuid.UUID, id uuid.UUID) bool {
	for _, candidate := range ids {
		if candidate == id {
			return true
		}
	}
	return false
}
