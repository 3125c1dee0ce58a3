package service

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/google/uuid"
	"github.com/vaultiq/mediavault/common/logger"
	"github.com/vaultiq/mediavault/common/models"
	"github.com/vaultiq/mediavault/common/quarantine"
	"github.com/vaultiq/mediavault/common/scan"
)

// QuarantineIntake stages untrusted uploads.
type QuarantineIntake interface {
	Put(ctx context.Context, r io.Reader, correlationID, declaredProfile string) (*models.QuarantineRecord, error)
	Delete(ctx context.Context, token uuid.UUID) error
}

// Scanner validates a staged upload.
type Scanner interface {
	AssertAvailable(ctx context.Context) error
	Scan(ctx context.Context, token uuid.UUID, declared scan.Declared) error
}

// Replacer commits a clean staged upload into an owner's slot.
type Replacer interface {
	Replace(ctx context.Context, req *ReplaceRequest) (*models.MediaArtifact, error)
}

// UploadService drives the foreground upload path: stage the stream in
// quarantine, scan it, and on a clean verdict replace the owner's slot
// artifact. A staged file that does not end up committed is deleted.
type UploadService struct {
	quarantine QuarantineIntake
	scanner    Scanner
	replacer   Replacer
	maxBytes   int64
	log        *logger.Logger
}

// UploadServiceOpts contains options for creating an UploadService
type UploadServiceOpts struct {
	Quarantine QuarantineIntake
	Scanner    Scanner
	Replacer   Replacer
	MaxBytes   int64
	Logger     *logger.Logger
}

// NewUploadService creates an upload service with options pattern
func NewUploadService(opts *UploadServiceOpts) *UploadService {
	return &UploadService{
		quarantine: opts.Quarantine,
		scanner:    opts.Scanner,
		replacer:   opts.Replacer,
		maxBytes:   opts.MaxBytes,
		log:        opts.Logger,
	}
}

// UploadRequest describes one incoming upload.
type UploadRequest struct {
	OwnerID       uuid.UUID
	CollectionKey string
	ProfileName   string
	FileName      string
	MimeType      string
	Body          io.Reader

	// CorrelationID ties quarantine records and logs back to the request.
	CorrelationID string
}

// Upload stages, scans, and commits one upload. Any failure after staging
// deletes the quarantine entry best-effort before the error propagates.
func (s *UploadService) Upload(ctx context.Context, req *UploadRequest) (*models.MediaArtifact, error) {
	profile, ok := models.ProfileByName(req.ProfileName)
	if !ok {
		return nil, &scan.ValidationError{Code: "unknown_profile", Detail: req.ProfileName}
	}

	// Shed load before touching disk when the scanner is known bad.
	if err := s.scanner.AssertAvailable(ctx); err != nil {
		return nil, err
	}

	limit := s.maxBytes
	if profile.MaxBytes > 0 && profile.MaxBytes < limit {
		limit = profile.MaxBytes
	}
	body := &countingReader{r: io.LimitReader(req.Body, limit+1)}

	record, err := s.quarantine.Put(ctx, body, req.CorrelationID, profile.Name)
	if err != nil {
		return nil, fmt.Errorf("stage upload: %w", err)
	}

	log := s.log.WithMediaID(record.Token.String())
	log.Info("upload staged", "profile", profile.Name, "size_bytes", body.n)

	if body.n > limit {
		s.discard(ctx, record.Token)
		return nil, &scan.ValidationError{Code: "file_too_large"}
	}

	declared := scan.Declared{
		FileName:  req.FileName,
		MimeType:  req.MimeType,
		SizeBytes: body.n,
		Profile:   profile,
	}

	if err := s.scanner.Scan(ctx, record.Token, declared); err != nil {
		// The coordinator already drove the record to a terminal
		// state; the staged bytes have no further use.
		s.discard(ctx, record.Token)
		return nil, err
	}

	artifact, err := s.replacer.Replace(ctx, &ReplaceRequest{
		OwnerID:       req.OwnerID,
		CollectionKey: req.CollectionKey,
		Token:         record.Token,
		FileName:      req.FileName,
		MimeType:      req.MimeType,
		Profile:       profile,
	})
	if err != nil {
		s.discard(ctx, record.Token)
		return nil, err
	}

	return artifact, nil
}

func (s *UploadService) discard(ctx context.Context, token uuid.UUID) {
	err := s.quarantine.Delete(ctx, token)
	if err != nil && !errors.Is(err, quarantine.ErrNotFound) {
		s.log.Warn("failed to delete quarantine entry", "token", token, "error", err)
	}
}

type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}

var _ QuarantineIntake = (*quarantine.Store)(nil)
