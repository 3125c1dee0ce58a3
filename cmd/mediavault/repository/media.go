package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/vaultiq/mediavault/common/db"
	"github.com/vaultiq/mediavault/common/models"
)

// ErrMediaNotFound is returned when no artifact row matches the id.
var ErrMediaNotFound = errors.New("media artifact not found")

// MediaRepository handles database operations for media artifacts
type MediaRepository struct {
	db *db.DB
}

// NewMediaRepository creates a new media repository
func NewMediaRepository(db *db.DB) *MediaRepository {
	return &MediaRepository{db: db}
}

// Create inserts a new media artifact
func (r *MediaRepository) Create(ctx context.Context, artifact *models.MediaArtifact) error {
	query := `
		INSERT INTO media_artifact (
			id, owner_kind, owner_id, tenant_id, disk, collection_key,
			file_name, mime_type, size_bytes, storage_key_prefix, created_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11
		)
	`

	_, err := r.db.Querier(ctx).Exec(ctx, query,
		artifact.ID,
		artifact.OwnerKind,
		artifact.OwnerID,
		artifact.TenantID,
		artifact.Disk,
		artifact.CollectionKey,
		artifact.FileName,
		artifact.MimeType,
		artifact.SizeBytes,
		artifact.StorageKeyPrefix,
		artifact.CreatedAt,
	)

	if err != nil {
		return fmt.Errorf("failed to create media artifact: %w", err)
	}

	return nil
}

// GetByID retrieves a media artifact by its ID
func (r *MediaRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.MediaArtifact, error) {
	query := `
		SELECT
			id, owner_kind, owner_id, tenant_id, disk, collection_key,
			file_name, mime_type, size_bytes, storage_key_prefix, created_at
		FROM media_artifact
		WHERE id = $1
	`

	artifact := &models.MediaArtifact{}
	err := r.db.Querier(ctx).QueryRow(ctx, query, id).Scan(
		&artifact.ID,
		&artifact.OwnerKind,
		&artifact.OwnerID,
		&artifact.TenantID,
		&artifact.Disk,
		&artifact.CollectionKey,
		&artifact.FileName,
		&artifact.MimeType,
		&artifact.SizeBytes,
		&artifact.StorageKeyPrefix,
		&artifact.CreatedAt,
	)

	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrMediaNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get media artifact: %w", err)
	}

	return artifact, nil
}

// ListByOwnerSlot lists an owner's current artifacts for one slot
func (r *MediaRepository) ListByOwnerSlot(ctx context.Context, ownerID uuid.UUID, collectionKey string) ([]*models.MediaArtifact, error) {
	query := `
		SELECT
			id, owner_kind, owner_id, tenant_id, disk, collection_key,
			file_name, mime_type, size_bytes, storage_key_prefix, created_at
		FROM media_artifact
		WHERE owner_id = $1 AND collection_key = $2
		ORDER BY created_at ASC
	`

	rows, err := r.db.Querier(ctx).Query(ctx, query, ownerID, collectionKey)
	if err != nil {
		return nil, fmt.Errorf("failed to list media artifacts: %w", err)
	}
	defer rows.Close()

	var artifacts []*models.MediaArtifact
	for rows.Next() {
		artifact := &models.MediaArtifact{}
		err := rows.Scan(
			&artifact.ID,
			&artifact.OwnerKind,
			&artifact.OwnerID,
			&artifact.TenantID,
			&artifact.Disk,
			&artifact.CollectionKey,
			&artifact.FileName,
			&artifact.MimeType,
			&artifact.SizeBytes,
			&artifact.StorageKeyPrefix,
			&artifact.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan media artifact: %w", err)
		}
		artifacts = append(artifacts, artifact)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating media artifacts: %w", err)
	}

	return artifacts, nil
}

// Delete removes the artifact row. The physical tree is the cleanup
// executor's job, never this method's.
func (r *MediaRepository) Delete(ctx context.Context, id uuid.UUID) error {
	query := `DELETE FROM media_artifact WHERE id = $1`

	if _, err := r.db.Querier(ctx).Exec(ctx, query, id); err != nil {
		return fmt.Errorf("failed to delete media artifact: %w", err)
	}
	return nil
}
