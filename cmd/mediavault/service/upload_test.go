package service

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vaultiq/mediavault/common/logger"
	commonmodels "github.com/vaultiq/mediavault/common/models"
	"github.com/vaultiq/mediavault/common/scan"
)

// fakeIntake stages bodies in memory and records deletions.
type fakeIntake struct {
	staged  map[uuid.UUID]string
	deleted []uuid.UUID
}

func newFakeIntake() *fakeIntake {
	return &fakeIntake{staged: make(map[uuid.UUID]string)}
}

func (q *fakeIntake) Put(ctx context.Context, r io.Reader, correlationID, declaredProfile string) (*commonmodels.QuarantineRecord, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	token := uuid.New()
	q.staged[token] = string(data)
	return &commonmodels.QuarantineRecord{
		Token:           token,
		CorrelationID:   correlationID,
		DeclaredProfile: declaredProfile,
		State:           commonmodels.QuarantinePending,
	}, nil
}

func (q *fakeIntake) Delete(ctx context.Context, token uuid.UUID) error {
	q.deleted = append(q.deleted, token)
	delete(q.staged, token)
	return nil
}

// fakeScanner is scripted per test.
type fakeScanner struct {
	availableErr error
	scanErr      error
	scans        int
}

func (s *fakeScanner) AssertAvailable(ctx context.Context) error { return s.availableErr }

func (s *fakeScanner) Scan(ctx context.Context, token uuid.UUID, declared scan.Declared) error {
	s.scans++
	return s.scanErr
}

// fakeReplacer records the commit request.
type fakeReplacer struct {
	req *ReplaceRequest
	err error
}

func (r *fakeReplacer) Replace(ctx context.Context, req *ReplaceRequest) (*commonmodels.MediaArtifact, error) {
	r.req = req
	if r.err != nil {
		return nil, r.err
	}
	return &commonmodels.MediaArtifact{ID: uuid.New(), FileName: req.FileName}, nil
}

type uploadFixture struct {
	service  *UploadService
	intake   *fakeIntake
	scanner  *fakeScanner
	replacer *fakeReplacer
}

func newUploadFixture(t *testing.T, maxBytes int64) *uploadFixture {
	t.Helper()
	intake := newFakeIntake()
	scanner := &fakeScanner{}
	replacer := &fakeReplacer{}

	return &uploadFixture{
		service: NewUploadService(&UploadServiceOpts{
			Quarantine: intake,
			Scanner:    scanner,
			Replacer:   replacer,
			MaxBytes:   maxBytes,
			Logger:     logger.New("error", "json"),
		}),
		intake:   intake,
		scanner:  scanner,
		replacer: replacer,
	}
}

func uploadReq(body string) *UploadRequest {
	return &UploadRequest{
		OwnerID:       uuid.New(),
		CollectionKey: "avatar",
		ProfileName:   "avatar",
		FileName:      "me.png",
		MimeType:      "image/png",
		Body:          strings.NewReader(body),
		CorrelationID: "req-1",
	}
}

func TestUpload_HappyPath(t *testing.T) {
	f := newUploadFixture(t, 1<<20)

	artifact, err := f.service.Upload(context.Background(), uploadReq("image bytes"))
	require.NoError(t, err)
	require.NotNil(t, artifact)

	assert.Equal(t, 1, f.scanner.scans)
	require.NotNil(t, f.replacer.req)
	assert.Equal(t, "me.png", f.replacer.req.FileName)
	assert.Empty(t, f.intake.deleted, "committed upload must not be discarded")
}

func TestUpload_UnknownProfile(t *testing.T) {
	f := newUploadFixture(t, 1<<20)

	req := uploadReq("x")
	req.ProfileName = "banner"

	_, err := f.service.Upload(context.Background(), req)
	var verr *scan.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "unknown_profile", verr.Code)
	assert.Empty(t, f.intake.staged, "nothing may be staged for an unknown profile")
}

func TestUpload_ShedsLoadWhenScannerDown(t *testing.T) {
	f := newUploadFixture(t, 1<<20)
	f.scanner.availableErr = &scan.UnavailableError{ScannerID: "clamav", Failures: 5}

	_, err := f.service.Upload(context.Background(), uploadReq("x"))
	var unavailable *scan.UnavailableError
	require.ErrorAs(t, err, &unavailable)

	assert.Empty(t, f.intake.staged, "nothing may touch disk while the breaker is open")
	assert.Equal(t, 0, f.scanner.scans)
}

func TestUpload_OversizeDiscarded(t *testing.T) {
	f := newUploadFixture(t, 8)

	_, err := f.service.Upload(context.Background(), uploadReq("way more than eight bytes"))
	var verr *scan.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "file_too_large", verr.Code)

	assert.Len(t, f.intake.deleted, 1, "oversize staging must be discarded")
	assert.Equal(t, 0, f.scanner.scans, "oversize uploads are never scanned")
}

func TestUpload_ScanFailureDiscards(t *testing.T) {
	f := newUploadFixture(t, 1<<20)
	f.scanner.scanErr = &scan.Rejection{ScannerID: "clamav", Signature: "Eicar-Test"}

	_, err := f.service.Upload(context.Background(), uploadReq("payload"))
	var rejection *scan.Rejection
	require.ErrorAs(t, err, &rejection)

	assert.Len(t, f.intake.deleted, 1, "rejected upload must be discarded")
	assert.Nil(t, f.replacer.req, "rejected upload must never commit")
}

func TestUpload_ReplaceFailureDiscards(t *testing.T) {
	f := newUploadFixture(t, 1<<20)
	f.replacer.err = errors.New("owner vanished")

	_, err := f.service.Upload(context.Background(), uploadReq("payload"))
	require.Error(t, err)

	assert.Len(t, f.intake.deleted, 1, "failed commit must discard the staging")
}
