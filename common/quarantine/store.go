package quarantine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"strings"
	"time"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/util"
	"github.com/google/uuid"
	"github.com/vaultiq/mediavault/common/clock"
	"github.com/vaultiq/mediavault/common/logger"
	"github.com/vaultiq/mediavault/common/models"
)

const (
	binSuffix  = ".bin"
	metaSuffix = ".meta.json"
)

// IntegrityError signals a failed write verification or an operation that
// tried to reach outside the quarantine root.
type IntegrityError struct {
	Op     string
	Detail string
}

func (e *IntegrityError) Error() string {
	return fmt.Sprintf("quarantine integrity: %s: %s", e.Op, e.Detail)
}

// ErrNotFound is returned when no staged artifact exists for a token.
var ErrNotFound = errors.New("quarantine record not found")

// Store is the isolated staging area for unvalidated uploads. The
// filesystem is rooted at the quarantine directory; staged files live at
// <shard>/<token>.bin with a JSON sidecar holding the record.
type Store struct {
	fs    billy.Filesystem
	clock clock.Clock
	log   *logger.Logger
}

// NewStore creates a quarantine store over the given filesystem
func NewStore(fs billy.Filesystem, clk clock.Clock, log *logger.Logger) *Store {
	return &Store{fs: fs, clock: clk, log: log}
}

// Put stages an uploaded stream under a fresh unpredictable token. The
// location is derived from the token alone, never from client-supplied
// names. The write is verified by a read-back stat before returning.
func (s *Store) Put(ctx context.Context, r io.Reader, correlationID, declaredProfile string) (*models.QuarantineRecord, error) {
	token := uuid.New()
	shard := token.String()[:2]
	binPath := path.Join(shard, token.String()+binSuffix)

	if err := s.fs.MkdirAll(shard, 0o700); err != nil {
		return nil, fmt.Errorf("create quarantine shard: %w", err)
	}

	f, err := s.fs.Create(binPath)
	if err != nil {
		return nil, fmt.Errorf("create staged file: %w", err)
	}

	written, err := io.Copy(f, r)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		s.removeQuietly(binPath)
		return nil, fmt.Errorf("write staged file: %w", err)
	}

	// Read-back check: a silent write failure must not masquerade as a
	// successful upload.
	info, err := s.fs.Stat(binPath)
	if err != nil || info.Size() != written {
		s.removeQuietly(binPath)
		return nil, &IntegrityError{Op: "put", Detail: "write verification failed"}
	}

	record := &models.QuarantineRecord{
		Token:            token,
		PhysicalLocation: binPath,
		CorrelationID:    correlationID,
		DeclaredProfile:  declaredProfile,
		State:            models.QuarantinePending,
		CreatedAt:        s.clock.Now(),
	}

	if err := s.writeSidecar(record); err != nil {
		s.removeQuietly(binPath)
		return nil, fmt.Errorf("write quarantine sidecar: %w", err)
	}

	s.log.Debug("staged upload", "token", token, "bytes", written)
	return record, nil
}

// Get loads the record for a token.
func (s *Store) Get(ctx context.Context, token uuid.UUID) (*models.QuarantineRecord, error) {
	return s.readSidecar(token)
}

// Open opens the staged payload for reading.
func (s *Store) Open(ctx context.Context, token uuid.UUID) (io.ReadCloser, error) {
	record, err := s.readSidecar(token)
	if err != nil {
		return nil, err
	}

	loc, err := s.resolve("open", record.PhysicalLocation)
	if err != nil {
		return nil, err
	}

	f, err := s.fs.Open(loc)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("open staged file: %w", err)
	}
	return f, nil
}

// UpdateState advances the record's state through the transition table.
func (s *Store) UpdateState(ctx context.Context, token uuid.UUID, next models.QuarantineState) (*models.QuarantineRecord, error) {
	record, err := s.readSidecar(token)
	if err != nil {
		return nil, err
	}

	if err := record.TransitionTo(next); err != nil {
		return nil, err
	}

	if err := s.writeSidecar(record); err != nil {
		return nil, fmt.Errorf("persist state transition: %w", err)
	}
	return record, nil
}

// Promote streams a CLEAN staged file into the provided sink and removes
// it from quarantine. The sink returns the final storage location.
func (s *Store) Promote(ctx context.Context, token uuid.UUID, sink func(r io.Reader) (string, error)) (string, error) {
	record, err := s.readSidecar(token)
	if err != nil {
		return "", err
	}

	// PROMOTED is only legal from CLEAN; check before touching storage
	if err := record.TransitionTo(models.QuarantinePromoted); err != nil {
		return "", err
	}

	loc, err := s.resolve("promote", record.PhysicalLocation)
	if err != nil {
		return "", err
	}

	f, err := s.fs.Open(loc)
	if err != nil {
		return "", fmt.Errorf("open staged file: %w", err)
	}

	finalLocation, err := sink(f)
	f.Close()
	if err != nil {
		return "", fmt.Errorf("promote staged file: %w", err)
	}

	s.removeRecord(token, record)
	s.log.Info("promoted staged upload", "token", token, "location", finalLocation)
	return finalLocation, nil
}

// Delete removes a staged artifact and its sidecar.
func (s *Store) Delete(ctx context.Context, token uuid.UUID) error {
	record, err := s.readSidecar(token)
	if err != nil {
		return err
	}

	if _, err := s.resolve("delete", record.PhysicalLocation); err != nil {
		return err
	}

	s.removeRecord(token, record)
	return nil
}

// PruneStale removes staged entries older than maxAge and returns the
// count. Operates file by file, so concurrent Put calls are unaffected.
func (s *Store) PruneStale(ctx context.Context, maxAge time.Duration) (int, error) {
	cutoff := s.clock.Now().Add(-maxAge)
	pruned := 0

	err := s.eachSidecar(func(record *models.QuarantineRecord) {
		if record.CreatedAt.Before(cutoff) {
			s.removeRecord(record.Token, record)
			pruned++
		}
	})
	if err != nil {
		return pruned, err
	}

	if pruned > 0 {
		s.log.Info("pruned stale quarantine entries", "count", pruned)
	}
	return pruned, nil
}

// CleanupOrphanSidecars removes sidecars whose payload file is gone
// (a crash between delete steps leaves these behind) and returns the count.
func (s *Store) CleanupOrphanSidecars(ctx context.Context) (int, error) {
	removed := 0

	err := s.eachSidecar(func(record *models.QuarantineRecord) {
		if _, statErr := s.fs.Stat(record.PhysicalLocation); errors.Is(statErr, os.ErrNotExist) {
			s.removeQuietly(sidecarPath(record.Token))
			s.pruneEmptyParents(sidecarPath(record.Token))
			removed++
		}
	})
	if err != nil {
		return removed, err
	}

	if removed > 0 {
		s.log.Info("removed orphan quarantine sidecars", "count", removed)
	}
	return removed, nil
}

// resolve rejects any stored location that escapes the quarantine root.
func (s *Store) resolve(op, location string) (string, error) {
	clean := path.Clean(strings.ReplaceAll(location, "\\", "/"))
	if path.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, "../") {
		s.log.Security("quarantine path escape rejected", "op", op, "path", location)
		return "", &IntegrityError{Op: op, Detail: "path resolves outside quarantine root"}
	}
	return clean, nil
}

func sidecarPath(token uuid.UUID) string {
	return path.Join(token.String()[:2], token.String()+metaSuffix)
}

func (s *Store) writeSidecar(record *models.QuarantineRecord) error {
	data, err := json.Marshal(record)
	if err != nil {
		return err
	}
	return util.WriteFile(s.fs, sidecarPath(record.Token), data, 0o600)
}

func (s *Store) readSidecar(token uuid.UUID) (*models.QuarantineRecord, error) {
	data, err := util.ReadFile(s.fs, sidecarPath(token))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("read quarantine sidecar: %w", err)
	}

	record := &models.QuarantineRecord{}
	if err := json.Unmarshal(data, record); err != nil {
		return nil, fmt.Errorf("decode quarantine sidecar: %w", err)
	}
	return record, nil
}

func (s *Store) eachSidecar(fn func(record *models.QuarantineRecord)) error {
	shards, err := s.fs.ReadDir(".")
	if err != nil {
		return fmt.Errorf("read quarantine root: %w", err)
	}

	for _, shard := range shards {
		if !shard.IsDir() {
			continue
		}
		entries, err := s.fs.ReadDir(shard.Name())
		if err != nil {
			continue
		}
		for _, entry := range entries {
			if !strings.HasSuffix(entry.Name(), metaSuffix) {
				continue
			}
			tokenStr := strings.TrimSuffix(entry.Name(), metaSuffix)
			token, err := uuid.Parse(tokenStr)
			if err != nil {
				continue
			}
			record, err := s.readSidecar(token)
			if err != nil {
				continue
			}
			fn(record)
		}
	}
	return nil
}

func (s *Store) removeRecord(token uuid.UUID, record *models.QuarantineRecord) {
	s.removeQuietly(record.PhysicalLocation)
	s.removeQuietly(sidecarPath(token))
	s.pruneEmptyParents(record.PhysicalLocation)
}

func (s *Store) removeQuietly(location string) {
	if err := s.fs.Remove(location); err != nil && !errors.Is(err, os.ErrNotExist) {
		s.log.Warn("quarantine remove failed", "path", location, "error", err)
	}
}

// pruneEmptyParents removes now-empty shard directories, walking upward
// only while still inside the quarantine root.
func (s *Store) pruneEmptyParents(location string) {
	for dir := path.Dir(location); dir != "." && dir != "/"; dir = path.Dir(dir) {
		entries, err := s.fs.ReadDir(dir)
		if err != nil || len(entries) > 0 {
			return
		}
		if err := s.fs.Remove(dir); err != nil {
			return
		}
	}
}
