package service

import (
	"context"
	"io"
	"path"

	"github.com/google/uuid"
	"github.com/vaultiq/mediavault/common/cache"
	"github.com/vaultiq/mediavault/common/logger"
	"github.com/vaultiq/mediavault/common/models"
	"github.com/vaultiq/mediavault/common/storage"
	"github.com/vaultiq/mediavault/common/tenantpath"
)

// MediaService serves committed artifacts. Every read re-validates the
// stored prefix through the tenant path resolver, so a tampered or legacy
// row can never make the service read outside tenant storage.
type MediaService struct {
	media MediaStore
	disks *storage.Registry
	cache *cache.ArtifactCache
	log   *logger.Logger
}

// MediaServiceOpts contains options for creating a MediaService
type MediaServiceOpts struct {
	Media  MediaStore
	Disks  *storage.Registry
	Cache  *cache.ArtifactCache
	Logger *logger.Logger
}

// NewMediaService creates a media service with options pattern
func NewMediaService(opts *MediaServiceOpts) *MediaService {
	return &MediaService{
		media: opts.Media,
		disks: opts.Disks,
		cache: opts.Cache,
		log:   opts.Logger,
	}
}

// GetMedia returns an artifact's metadata.
func (s *MediaService) GetMedia(ctx context.Context, id uuid.UUID) (*models.MediaArtifact, error) {
	return s.lookup(ctx, id)
}

// lookup reads through the metadata cache. The cache is optional; workers
// and tests that serve nothing run without one.
func (s *MediaService) lookup(ctx context.Context, id uuid.UUID) (*models.MediaArtifact, error) {
	if s.cache != nil {
		if artifact, ok := s.cache.Get(id); ok {
			return artifact, nil
		}
	}

	artifact, err := s.media.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		s.cache.Set(artifact)
	}
	return artifact, nil
}

// OpenOriginal streams the original file of an artifact.
func (s *MediaService) OpenOriginal(ctx context.Context, id uuid.UUID) (*models.MediaArtifact, io.ReadCloser, error) {
	artifact, err := s.lookup(ctx, id)
	if err != nil {
		return nil, nil, err
	}

	rc, err := s.open(ctx, artifact, artifact.FileName)
	if err != nil {
		return nil, nil, err
	}
	return artifact, rc, nil
}

// OpenConversion streams a named rendition of an artifact. The conversion
// name comes straight from the URL, so it must stay a single segment:
// joined into the key unchecked, a crafted name walks out of the
// artifact's directory before the prefix check can catch it.
func (s *MediaService) OpenConversion(ctx context.Context, id uuid.UUID, conversion string) (*models.MediaArtifact, io.ReadCloser, error) {
	if err := tenantpath.SafeSegment(conversion); err != nil {
		s.log.Security("rejected unsafe conversion name",
			"media_id", id,
			"error", err)
		return nil, nil, err
	}

	artifact, err := s.lookup(ctx, id)
	if err != nil {
		return nil, nil, err
	}

	rc, err := s.open(ctx, artifact, path.Join("conversions", conversion+"_"+artifact.FileName))
	if err != nil {
		return nil, nil, err
	}
	return artifact, rc, nil
}

func (s *MediaService) open(ctx context.Context, artifact *models.MediaArtifact, rel string) (io.ReadCloser, error) {
	prefix, err := tenantpath.Sanitize(artifact.StorageKeyPrefix)
	if err != nil {
		s.log.Security("artifact row carries an unsafe storage prefix",
			"media_id", artifact.ID,
			"error", err)
		return nil, err
	}

	disk, err := s.disks.Get(artifact.Disk)
	if err != nil {
		return nil, err
	}
	return disk.Open(ctx, path.Join(prefix, rel))
}
