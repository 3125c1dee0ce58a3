package quarantine

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/go-git/go-billy/v5/memfs"
	"github.com/google/uuid"
	"github.com/vaultiq/mediavault/common/clock"
	"github.com/vaultiq/mediavault/common/logger"
	"github.com/vaultiq/mediavault/common/models"
)

func newTestStore(t *testing.T) (*Store, *clock.Fake) {
	t.Helper()
	clk := clock.NewFake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	return NewStore(memfs.New(), clk, logger.New("error", "json")), clk
}

func stage(t *testing.T, s *Store, content string) *models.QuarantineRecord {
	t.Helper()
	record, err := s.Put(context.Background(), strings.NewReader(content), "req-1", "avatar")
	if err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	return record
}

func TestPut_RoundTrip(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	record := stage(t, s, "staged bytes")

	if record.State != models.QuarantinePending {
		t.Errorf("fresh record must be pending, got %s", record.State)
	}

	loaded, err := s.Get(ctx, record.Token)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if loaded.CorrelationID != "req-1" || loaded.DeclaredProfile != "avatar" {
		t.Errorf("sidecar does not round-trip: %+v", loaded)
	}

	rc, err := s.Open(ctx, record.Token)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer rc.Close()

	data, _ := io.ReadAll(rc)
	if string(data) != "staged bytes" {
		t.Errorf("payload does not round-trip: %q", data)
	}
}

func TestGet_UnknownToken(t *testing.T) {
	s, _ := newTestStore(t)

	if _, err := s.Get(context.Background(), uuid.New()); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestUpdateState_RejectsIllegalTransition(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	record := stage(t, s, "x")

	if _, err := s.UpdateState(ctx, record.Token, models.QuarantineClean); err == nil {
		t.Fatal("pending -> clean must be rejected")
	}

	// The rejected transition must not have been persisted
	loaded, err := s.Get(ctx, record.Token)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if loaded.State != models.QuarantinePending {
		t.Errorf("state leaked through a rejected transition: %s", loaded.State)
	}
}

func TestPromote_OnlyFromClean(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	record := stage(t, s, "payload")

	sink := func(r io.Reader) (string, error) {
		data, _ := io.ReadAll(r)
		return "final/" + string(data), nil
	}

	if _, err := s.Promote(ctx, record.Token, sink); err == nil {
		t.Fatal("promote from pending must be rejected")
	}

	s.UpdateState(ctx, record.Token, models.QuarantineScanning)
	s.UpdateState(ctx, record.Token, models.QuarantineClean)

	location, err := s.Promote(ctx, record.Token, sink)
	if err != nil {
		t.Fatalf("Promote failed: %v", err)
	}
	if location != "final/payload" {
		t.Errorf("sink result not returned: %s", location)
	}

	// Both the payload and the sidecar are gone after promotion
	if _, err := s.Get(ctx, record.Token); !errors.Is(err, ErrNotFound) {
		t.Errorf("record must be removed after promote, got %v", err)
	}
	if _, err := s.Open(ctx, record.Token); !errors.Is(err, ErrNotFound) {
		t.Errorf("payload must be removed after promote, got %v", err)
	}
}

func TestDelete_RemovesRecord(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	record := stage(t, s, "x")

	if err := s.Delete(ctx, record.Token); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, err := s.Get(ctx, record.Token); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound after delete, got %v", err)
	}
	if err := s.Delete(ctx, record.Token); !errors.Is(err, ErrNotFound) {
		t.Errorf("double delete must report not found, got %v", err)
	}
}

func TestOpen_RejectsEscapedLocation(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	record := stage(t, s, "x")

	// Simulate a tampered sidecar pointing outside the quarantine root
	record.PhysicalLocation = "../../etc/passwd"
	if err := s.writeSidecar(record); err != nil {
		t.Fatalf("writeSidecar failed: %v", err)
	}

	_, err := s.Open(ctx, record.Token)
	var integrity *IntegrityError
	if !errors.As(err, &integrity) {
		t.Errorf("expected IntegrityError, got %v", err)
	}
}

func TestPruneStale(t *testing.T) {
	s, clk := newTestStore(t)
	ctx := context.Background()

	old := stage(t, s, "old")
	clk.Advance(25 * time.Hour)
	fresh := stage(t, s, "fresh")

	pruned, err := s.PruneStale(ctx, 24*time.Hour)
	if err != nil {
		t.Fatalf("PruneStale failed: %v", err)
	}
	if pruned != 1 {
		t.Errorf("expected 1 pruned entry, got %d", pruned)
	}

	if _, err := s.Get(ctx, old.Token); !errors.Is(err, ErrNotFound) {
		t.Error("stale entry must be gone")
	}
	if _, err := s.Get(ctx, fresh.Token); err != nil {
		t.Errorf("fresh entry must survive: %v", err)
	}
}

func TestCleanupOrphanSidecars(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	orphan := stage(t, s, "x")
	intact := stage(t, s, "y")

	// Crash between payload delete and sidecar delete leaves an orphan
	if err := s.fs.Remove(orphan.PhysicalLocation); err != nil {
		t.Fatalf("remove payload: %v", err)
	}

	removed, err := s.CleanupOrphanSidecars(ctx)
	if err != nil {
		t.Fatalf("CleanupOrphanSidecars failed: %v", err)
	}
	if removed != 1 {
		t.Errorf("expected 1 orphan removed, got %d", removed)
	}

	if _, err := s.Get(ctx, orphan.Token); !errors.Is(err, ErrNotFound) {
		t.Error("orphan sidecar must be gone")
	}
	if _, err := s.Get(ctx, intact.Token); err != nil {
		t.Errorf("intact entry must survive: %v", err)
	}
}
