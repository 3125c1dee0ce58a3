package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/vaultiq/mediavault/common/cleanup"
	"github.com/vaultiq/mediavault/common/db"
	"github.com/vaultiq/mediavault/common/models"
)

// ErrCleanupStateNotFound is returned when no payload exists for a media id.
// Aliases the scheduler's sentinel so errors.Is matches on both sides.
var ErrCleanupStateNotFound = cleanup.ErrStateNotFound

// CleanupStateRepository persists the durable cleanup payloads that drive
// deferred deletion
type CleanupStateRepository struct {
	db *db.DB
}

// NewCleanupStateRepository creates a new cleanup state repository
func NewCleanupStateRepository(db *db.DB) *CleanupStateRepository {
	return &CleanupStateRepository{db: db}
}

// Upsert writes the payload keyed by the new media id.
func (r *CleanupStateRepository) Upsert(ctx context.Context, mediaID uuid.UUID, payload *models.CleanupStatePayload) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal cleanup payload: %w", err)
	}

	query := `
		INSERT INTO media_cleanup_state (media_id, payload, queued_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (media_id) DO UPDATE SET payload = $2
	`

	if _, err := r.db.Querier(ctx).Exec(ctx, query, mediaID, data, payload.QueuedAt); err != nil {
		return fmt.Errorf("failed to upsert cleanup state: %w", err)
	}
	return nil
}

// Get loads the payload for a media id.
func (r *CleanupStateRepository) Get(ctx context.Context, mediaID uuid.UUID) (*models.CleanupStatePayload, error) {
	query := `SELECT payload FROM media_cleanup_state WHERE media_id = $1`

	var data []byte
	err := r.db.Querier(ctx).QueryRow(ctx, query, mediaID).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrCleanupStateNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get cleanup state: %w", err)
	}

	payload := &models.CleanupStatePayload{}
	if err := json.Unmarshal(data, payload); err != nil {
		return nil, fmt.Errorf("failed to decode cleanup payload: %w", err)
	}
	return payload, nil
}

// Delete removes the payload once cleanup has been dispatched.
func (r *CleanupStateRepository) Delete(ctx context.Context, mediaID uuid.UUID) error {
	query := `DELETE FROM media_cleanup_state WHERE media_id = $1`

	if _, err := r.db.Querier(ctx).Exec(ctx, query, mediaID); err != nil {
		return fmt.Errorf("failed to delete cleanup state: %w", err)
	}
	return nil
}

// ListExpired returns up to limit media ids whose payload was queued
// before the cutoff and never flushed.
func (r *CleanupStateRepository) ListExpired(ctx context.Context, cutoff time.Time, limit int) ([]uuid.UUID, error) {
	query := `
		SELECT media_id
		FROM media_cleanup_state
		WHERE queued_at < $1
		ORDER BY queued_at ASC
		LIMIT $2
	`

	rows, err := r.db.Querier(ctx).Query(ctx, query, cutoff, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list expired cleanup states: %w", err)
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan cleanup state id: %w", err)
		}
		ids = append(ids, id)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating cleanup states: %w", err)
	}

	return ids, nil
}
