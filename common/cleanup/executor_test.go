package cleanup

import (
	"context"
	"strings"
	"testing"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/memfs"
	"github.com/go-git/go-billy/v5/util"
	"github.com/google/uuid"
	"github.com/vaultiq/mediavault/common/logger"
	"github.com/vaultiq/mediavault/common/models"
	"github.com/vaultiq/mediavault/common/storage"
	"github.com/vaultiq/mediavault/common/tenantpath"
)

type executorFixture struct {
	executor *Executor
	fs       billy.Filesystem
	disk     storage.Disk
}

func newExecutorFixture(t *testing.T) *executorFixture {
	t.Helper()
	fs := memfs.New()
	disk := storage.NewLocalDisk("local", fs)
	return &executorFixture{
		executor: NewExecutor(storage.NewRegistry(disk), logger.New("error", "json")),
		fs:       fs,
		disk:     disk,
	}
}

func (f *executorFixture) write(t *testing.T, dir string) {
	t.Helper()
	if err := f.disk.Put(context.Background(), dir+"/original.jpg", strings.NewReader("bytes")); err != nil {
		t.Fatalf("seed %s: %v", dir, err)
	}
}

func (f *executorFixture) exists(t *testing.T, dir string) bool {
	t.Helper()
	ok, err := f.disk.DirExists(context.Background(), dir)
	if err != nil {
		t.Fatalf("stat %s: %v", dir, err)
	}
	return ok
}

func mediaDir(tenant string, mediaID uuid.UUID) string {
	return tenantpath.MediaDir(tenant, "user", uuid.MustParse("99999999-9999-9999-9999-999999999999"), "avatar", mediaID)
}

func TestExecutor_DeletesSupersededDirectories(t *testing.T) {
	f := newExecutorFixture(t)
	oldID := uuid.New()
	dir := mediaDir("acme", oldID)
	f.write(t, dir)

	stats := f.executor.Run(context.Background(), map[string][]models.CleanupArtifactEntry{
		"local": {{Directory: dir, OriginMediaID: &oldID}},
	}, nil)

	if stats.Deleted != 1 {
		t.Errorf("expected 1 deletion, got %+v", stats)
	}
	if f.exists(t, dir) {
		t.Error("directory must be gone")
	}
}

func TestExecutor_PreservedMediaNeverDeleted(t *testing.T) {
	f := newExecutorFixture(t)
	newID := uuid.New()
	oldID := uuid.New()
	keep := mediaDir("acme", newID)
	drop := mediaDir("acme", oldID)
	f.write(t, keep)
	f.write(t, drop)

	stats := f.executor.Run(context.Background(), map[string][]models.CleanupArtifactEntry{
		"local": {
			{Directory: keep, OriginMediaID: &newID},
			{Directory: drop, OriginMediaID: &oldID},
		},
	}, []uuid.UUID{newID})

	if stats.Deleted != 1 {
		t.Errorf("expected 1 deletion, got %+v", stats)
	}
	if !f.exists(t, keep) {
		t.Error("preserved directory must survive")
	}
	if f.exists(t, drop) {
		t.Error("superseded directory must be gone")
	}
}

func TestExecutor_DuplicateEntriesDeleteOnce(t *testing.T) {
	f := newExecutorFixture(t)
	oldID := uuid.New()
	dir := mediaDir("acme", oldID)
	f.write(t, dir)

	stats := f.executor.Run(context.Background(), map[string][]models.CleanupArtifactEntry{
		"local": {
			{Directory: dir, OriginMediaID: &oldID},
			{Directory: dir, OriginMediaID: &oldID},
			{Directory: dir + "/", OriginMediaID: &oldID},
		},
	}, nil)

	// The trailing-slash variant dedups to a distinct raw entry but the
	// second pass finds the directory already gone
	if stats.Deleted != 1 || stats.Errors != 0 {
		t.Errorf("expected exactly 1 deletion, got %+v", stats)
	}
}

func TestExecutor_UnattributedCanonicalDirParsesOrigin(t *testing.T) {
	f := newExecutorFixture(t)
	oldID := uuid.New()
	dir := mediaDir("acme", oldID)
	f.write(t, dir)

	stats := f.executor.Run(context.Background(), map[string][]models.CleanupArtifactEntry{
		"local": {{Directory: dir, OriginMediaID: nil}},
	}, nil)

	if stats.Deleted != 1 {
		t.Errorf("canonical directory must attribute via its path, got %+v", stats)
	}
}

func TestExecutor_UnattributedCanonicalDirHonorsPreserve(t *testing.T) {
	f := newExecutorFixture(t)
	newID := uuid.New()
	dir := mediaDir("acme", newID)
	f.write(t, dir)

	stats := f.executor.Run(context.Background(), map[string][]models.CleanupArtifactEntry{
		"local": {{Directory: dir, OriginMediaID: nil}},
	}, []uuid.UUID{newID})

	if stats.Deleted != 0 {
		t.Errorf("parsed origin must respect the preserve set, got %+v", stats)
	}
	if !f.exists(t, dir) {
		t.Error("preserved directory must survive")
	}
}

func TestExecutor_LegacyUnparsableSkipped(t *testing.T) {
	f := newExecutorFixture(t)
	dir := "tenants/acme/legacy-import"
	if err := util.WriteFile(f.fs, dir+"/old.jpg", []byte("bytes"), 0o644); err != nil {
		t.Fatalf("seed legacy dir: %v", err)
	}

	stats := f.executor.Run(context.Background(), map[string][]models.CleanupArtifactEntry{
		"local": {{Directory: dir, OriginMediaID: nil}},
	}, nil)

	if stats.SkippedLegacyUnparsable != 1 || stats.Deleted != 0 {
		t.Errorf("ambiguous directory must be skipped, got %+v", stats)
	}
	if _, err := f.fs.Stat(dir + "/old.jpg"); err != nil {
		t.Error("legacy files must be untouched")
	}
}

func TestExecutor_UnsafeDirectoryRejected(t *testing.T) {
	f := newExecutorFixture(t)
	id := uuid.New()

	stats := f.executor.Run(context.Background(), map[string][]models.CleanupArtifactEntry{
		"local": {
			{Directory: "tenants/acme/../../etc", OriginMediaID: &id},
			{Directory: "uploads/pre-tenant/123", OriginMediaID: &id},
		},
	}, nil)

	if stats.SkippedInvalid != 2 || stats.Deleted != 0 {
		t.Errorf("unsafe directories must be skipped, got %+v", stats)
	}
}

func TestExecutor_UnknownDiskCountsErrors(t *testing.T) {
	f := newExecutorFixture(t)
	id := uuid.New()

	stats := f.executor.Run(context.Background(), map[string][]models.CleanupArtifactEntry{
		"cold": {{Directory: mediaDir("acme", id), OriginMediaID: &id}},
	}, nil)

	if stats.Errors != 1 {
		t.Errorf("unknown disk must count as error, got %+v", stats)
	}
}

func TestExecutor_RerunIsIdempotent(t *testing.T) {
	f := newExecutorFixture(t)
	oldID := uuid.New()
	dir := mediaDir("acme", oldID)
	f.write(t, dir)

	entries := map[string][]models.CleanupArtifactEntry{
		"local": {{Directory: dir, OriginMediaID: &oldID}},
	}

	first := f.executor.Run(context.Background(), entries, nil)
	second := f.executor.Run(context.Background(), entries, nil)

	if first.Deleted != 1 {
		t.Errorf("first run deletes, got %+v", first)
	}
	if second.Deleted != 0 || second.Errors != 0 {
		t.Errorf("second run must be a no-op, got %+v", second)
	}
}
