package service

import (
	"context"
	"fmt"
	"io"
	"regexp"
	"strings"

	"github.com/google/uuid"
	"github.com/vaultiq/mediavault/cmd/mediavault/models"
	"github.com/vaultiq/mediavault/common/cleanup"
	"github.com/vaultiq/mediavault/common/clock"
	"github.com/vaultiq/mediavault/common/db"
	"github.com/vaultiq/mediavault/common/logger"
	commonmodels "github.com/vaultiq/mediavault/common/models"
	"github.com/vaultiq/mediavault/common/queue"
	"github.com/vaultiq/mediavault/common/storage"
	"github.com/vaultiq/mediavault/common/tenantpath"
)

// OwnerStore is the owner repository surface the replacement flow needs.
// LockAndFindByID serializes concurrent replacements for the same owner.
type OwnerStore interface {
	LockAndFindByID(ctx context.Context, id uuid.UUID) (*models.MediaOwner, error)
	GetByID(ctx context.Context, id uuid.UUID) (*models.MediaOwner, error)
}

// MediaStore is the artifact repository surface the replacement flow needs.
type MediaStore interface {
	Create(ctx context.Context, artifact *commonmodels.MediaArtifact) error
	GetByID(ctx context.Context, id uuid.UUID) (*commonmodels.MediaArtifact, error)
	ListByOwnerSlot(ctx context.Context, ownerID uuid.UUID, collectionKey string) ([]*commonmodels.MediaArtifact, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

// TxRunner runs a function inside a database transaction.
type TxRunner interface {
	Transactional(ctx context.Context, fn func(ctx context.Context) error) error
}

// QuarantineRelease promotes or discards a staged upload.
type QuarantineRelease interface {
	Promote(ctx context.Context, token uuid.UUID, sink func(r io.Reader) (string, error)) (string, error)
	Delete(ctx context.Context, token uuid.UUID) error
}

// MediaReplacementService swaps an owner's media slot: snapshot the prior
// artifacts, commit the new one, and defer deletion of the old set until
// every expected rendition of the new one exists.
type MediaReplacementService struct {
	owners      OwnerStore
	media       MediaStore
	tx          TxRunner
	quarantine  QuarantineRelease
	scheduler   *cleanup.Scheduler
	dispatcher  queue.Dispatcher
	disks       *storage.Registry
	defaultDisk string
	clock       clock.Clock
	log         *logger.Logger
}

// MediaReplacementOpts contains options for creating a MediaReplacementService
type MediaReplacementOpts struct {
	Owners      OwnerStore
	Media       MediaStore
	Tx          TxRunner
	Quarantine  QuarantineRelease
	Scheduler   *cleanup.Scheduler
	Dispatcher  queue.Dispatcher
	Disks       *storage.Registry
	DefaultDisk string
	Clock       clock.Clock
	Logger      *logger.Logger
}

// NewMediaReplacementService creates a media replacement service with options pattern
func NewMediaReplacementService(opts *MediaReplacementOpts) *MediaReplacementService {
	return &MediaReplacementService{
		owners:      opts.Owners,
		media:       opts.Media,
		tx:          opts.Tx,
		quarantine:  opts.Quarantine,
		scheduler:   opts.Scheduler,
		dispatcher:  opts.Dispatcher,
		disks:       opts.Disks,
		defaultDisk: opts.DefaultDisk,
		clock:       opts.Clock,
		log:         opts.Logger,
	}
}

// ReplaceRequest describes a scanned, clean upload ready to commit into an
// owner's slot.
type ReplaceRequest struct {
	OwnerID       uuid.UUID
	CollectionKey string

	// Quarantine token of the staged file, already in state CLEAN.
	Token uuid.UUID

	FileName string
	MimeType string
	Profile  commonmodels.UploadProfile
}

// Replace commits the staged upload as the owner's new slot artifact.
//
// Inside one transaction: lock the owner row, snapshot the slot's prior
// artifacts grouped by disk, promote the quarantined file into the tenant
// path, insert the artifact row, and schedule deferred cleanup of the
// snapshot. Conversion dispatch and the replaced event run only after the
// transaction commits.
func (s *MediaReplacementService) Replace(ctx context.Context, req *ReplaceRequest) (*commonmodels.MediaArtifact, error) {
	disk, err := s.disks.Get(s.defaultDisk)
	if err != nil {
		return nil, err
	}

	var artifact *commonmodels.MediaArtifact

	err = s.tx.Transactional(ctx, func(ctx context.Context) error {
		owner, err := s.owners.LockAndFindByID(ctx, req.OwnerID)
		if err != nil {
			return err
		}

		prior, err := s.media.ListByOwnerSlot(ctx, owner.ID, req.CollectionKey)
		if err != nil {
			return fmt.Errorf("list prior artifacts: %w", err)
		}

		// Snapshot before the new artifact exists, so it can never
		// appear in its own cleanup set.
		snapshot := snapshotArtifacts(prior)

		mediaID := uuid.New()
		fileName := sanitizeFileName(req.FileName)
		prefix := tenantpath.MediaDir(owner.TenantID, owner.Kind, owner.ID, req.CollectionKey, mediaID)

		artifact = &commonmodels.MediaArtifact{
			ID:               mediaID,
			OwnerKind:        owner.Kind,
			OwnerID:          owner.ID,
			TenantID:         owner.TenantID,
			Disk:             disk.Name(),
			CollectionKey:    req.CollectionKey,
			FileName:         fileName,
			MimeType:         req.MimeType,
			StorageKeyPrefix: prefix,
			CreatedAt:        s.clock.Now(),
		}

		if _, err := s.quarantine.Promote(ctx, req.Token, func(r io.Reader) (string, error) {
			key := artifact.OriginalPath()
			if err := disk.Put(ctx, key, r); err != nil {
				return "", err
			}
			return key, nil
		}); err != nil {
			return fmt.Errorf("promote quarantined file: %w", err)
		}

		info, err := disk.Stat(ctx, artifact.OriginalPath())
		if err != nil {
			return fmt.Errorf("stat promoted file: %w", err)
		}
		artifact.SizeBytes = info.Size()

		if err := s.media.Create(ctx, artifact); err != nil {
			return fmt.Errorf("create artifact record: %w", err)
		}

		for _, old := range prior {
			if err := s.media.Delete(ctx, old.ID); err != nil {
				return fmt.Errorf("supersede artifact %s: %w", old.ID, err)
			}
		}

		// A lost cleanup payload leaks the old files but the new
		// artifact is fully usable, so this never fails the request.
		if err := s.scheduler.ScheduleCleanup(ctx, mediaID, snapshot, req.Profile.ConversionNames()); err != nil {
			s.log.Warn("failed to schedule cleanup, prior artifacts may leak",
				"media_id", mediaID,
				"owner_id", owner.ID,
				"error", err)
		}

		db.AfterCommit(ctx, func(ctx context.Context) {
			s.dispatchConversions(ctx, artifact, req.Profile)
			s.emitReplaced(ctx, artifact, len(prior))
		})

		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("media replaced",
		"media_id", artifact.ID,
		"owner_id", artifact.OwnerID,
		"collection", artifact.CollectionKey,
		"size_bytes", artifact.SizeBytes)
	return artifact, nil
}

// dispatchConversions queues one job per profile rendition. A failed
// dispatch logs and continues; the rendition never signals completion, so
// the stale sweep eventually force-flushes the payload.
func (s *MediaReplacementService) dispatchConversions(ctx context.Context, artifact *commonmodels.MediaArtifact, profile commonmodels.UploadProfile) {
	for _, spec := range profile.Conversions {
		job, err := queue.NewJob(queue.JobTypeConvert, artifact.ID.String()+":"+spec.Name, &queue.ConversionJobPayload{
			MediaID:    artifact.ID,
			Disk:       artifact.Disk,
			SourceKey:  artifact.OriginalPath(),
			TargetKey:  artifact.ConversionPath(spec.Name),
			Conversion: spec,
			MimeType:   artifact.MimeType,
		})
		if err == nil {
			err = s.dispatcher.Dispatch(ctx, queue.ConversionJobsStream, job, 0)
		}
		if err != nil {
			s.log.Error("failed to dispatch conversion job",
				"media_id", artifact.ID,
				"conversion", spec.Name,
				"error", err)
		}
	}
}

func (s *MediaReplacementService) emitReplaced(ctx context.Context, artifact *commonmodels.MediaArtifact, priorCount int) {
	job, err := queue.NewJob(queue.JobTypeReplaced, artifact.ID.String(), &queue.MediaReplacedEvent{
		MediaID:       artifact.ID,
		OwnerID:       artifact.OwnerID,
		CollectionKey: artifact.CollectionKey,
		PriorCount:    priorCount,
	})
	if err == nil {
		err = s.dispatcher.Dispatch(ctx, queue.EventsStream, job, 0)
	}
	if err != nil {
		s.log.Warn("failed to emit replaced event", "media_id", artifact.ID, "error", err)
	}
}

// snapshotArtifacts groups an owner's current slot artifacts by disk,
// tagging each directory with the media id that produced it.
func snapshotArtifacts(prior []*commonmodels.MediaArtifact) *commonmodels.ReplacementSnapshot {
	snapshot := &commonmodels.ReplacementSnapshot{
		ArtifactsByDisk: make(map[string][]commonmodels.CleanupArtifactEntry),
	}
	for _, a := range prior {
		id := a.ID
		snapshot.ArtifactsByDisk[a.Disk] = append(snapshot.ArtifactsByDisk[a.Disk], commonmodels.CleanupArtifactEntry{
			Directory:     a.StorageKeyPrefix,
			OriginMediaID: &id,
		})
		snapshot.OriginMediaIDs = append(snapshot.OriginMediaIDs, a.ID)
	}
	return snapshot
}

var unsafeFileNameChars = regexp.MustCompile(`[^a-zA-Z0-9._-]`)

// sanitizeFileName reduces a client-supplied name to a safe base name.
// Storage keys never depend on it structurally; the directory comes from
// the tenant path resolver.
func sanitizeFileName(name string) string {
	name = strings.ReplaceAll(name, "\\", "/")
	if i := strings.LastIndex(name, "/"); i >= 0 {
		name = name[i+1:]
	}
	name = unsafeFileNameChars.ReplaceAllString(name, "_")
	name = strings.Trim(name, "._")
	if len(name) > 128 {
		name = name[len(name)-128:]
	}
	if name == "" {
		return "file"
	}
	return name
}
