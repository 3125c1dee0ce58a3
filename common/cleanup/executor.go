package cleanup

import (
	"context"
	"sort"

	"github.com/google/uuid"
	"github.com/vaultiq/mediavault/common/logger"
	"github.com/vaultiq/mediavault/common/metrics"
	"github.com/vaultiq/mediavault/common/models"
	"github.com/vaultiq/mediavault/common/storage"
	"github.com/vaultiq/mediavault/common/tenantpath"
)

// Stats aggregates one executor run for observability.
type Stats struct {
	Deleted                 int `json:"deleted"`
	SkippedLegacyUnparsable int `json:"skipped_legacy_unparsable"`
	SkippedInvalid          int `json:"skipped_invalid"`
	Errors                  int `json:"errors"`
}

// Executor performs the idempotent, safety-checked deletion of superseded
// artifact trees. Directories are re-validated against the tenant path
// invariant even though they were validated at write time: this job can
// run days later against records that may have been tampered with or
// never migrated.
type Executor struct {
	disks *storage.Registry
	log   *logger.Logger
}

// NewExecutor creates a cleanup executor
func NewExecutor(disks *storage.Registry, log *logger.Logger) *Executor {
	return &Executor{disks: disks, log: log}
}

// Run deletes every deduplicated (disk, directory, origin) triple that can
// be safely attributed to a non-preserved media id. Ambiguous directories
// are skipped, never deleted. Re-running against an already-cleaned set is
// a no-op.
func (e *Executor) Run(ctx context.Context, artifactsByDisk map[string][]models.CleanupArtifactEntry, preserve []uuid.UUID) Stats {
	stats := Stats{}

	preserved := make(map[uuid.UUID]struct{}, len(preserve))
	for _, id := range preserve {
		preserved[id] = struct{}{}
	}

	deduped := models.DedupArtifacts(artifactsByDisk)

	diskNames := make([]string, 0, len(deduped))
	for name := range deduped {
		diskNames = append(diskNames, name)
	}
	sort.Strings(diskNames)

	for _, diskName := range diskNames {
		disk, err := e.disks.Get(diskName)
		if err != nil {
			e.log.Warn("cleanup references unknown disk", "disk", diskName, "error", err)
			stats.Errors += len(deduped[diskName])
			continue
		}

		for _, entry := range deduped[diskName] {
			e.runEntry(ctx, disk, entry, preserved, &stats)
		}
	}

	metrics.CleanupOutcomes.WithLabelValues("deleted").Add(float64(stats.Deleted))
	metrics.CleanupOutcomes.WithLabelValues("skipped_legacy_unparsable").Add(float64(stats.SkippedLegacyUnparsable))
	metrics.CleanupOutcomes.WithLabelValues("skipped_invalid").Add(float64(stats.SkippedInvalid))
	metrics.CleanupOutcomes.WithLabelValues("errors").Add(float64(stats.Errors))

	e.log.Info("cleanup run finished",
		"deleted", stats.Deleted,
		"skipped_legacy_unparsable", stats.SkippedLegacyUnparsable,
		"skipped_invalid", stats.SkippedInvalid,
		"errors", stats.Errors)
	return stats
}

func (e *Executor) runEntry(ctx context.Context, disk storage.Disk, entry models.CleanupArtifactEntry, preserved map[uuid.UUID]struct{}, stats *Stats) {
	clean, err := tenantpath.Sanitize(entry.Directory)
	if err != nil {
		e.log.Security("cleanup rejected unsafe directory", "disk", disk.Name(), "error", err)
		stats.SkippedInvalid++
		return
	}

	originID := entry.OriginMediaID
	if originID == nil {
		// No explicit attribution. Only a strictly canonical directory
		// maps back to a media id; anything else is ambiguous and
		// ambiguity biases toward not deleting.
		info, parseErr := tenantpath.ParseMediaDir(clean)
		if parseErr != nil {
			e.log.Warn("cleanup skipping unparsable legacy directory", "disk", disk.Name(), "dir", clean)
			stats.SkippedLegacyUnparsable++
			return
		}
		originID = &info.MediaID
	}

	if _, pinned := preserved[*originID]; pinned {
		e.log.Debug("cleanup preserving directory", "disk", disk.Name(), "dir", clean, "media_id", originID)
		return
	}

	exists, err := disk.DirExists(ctx, clean)
	if err != nil {
		e.log.Warn("cleanup stat failed", "disk", disk.Name(), "dir", clean, "error", err)
		stats.Errors++
		return
	}
	if !exists {
		// Already cleaned on a previous run
		return
	}

	if err := disk.DeleteDir(ctx, clean); err != nil {
		e.log.Warn("cleanup delete failed", "disk", disk.Name(), "dir", clean, "error", err)
		stats.Errors++
		return
	}

	e.log.Info("cleanup deleted artifact directory", "disk", disk.Name(), "dir", clean, "media_id", originID)
	stats.Deleted++
}
