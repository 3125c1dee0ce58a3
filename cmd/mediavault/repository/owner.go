package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/vaultiq/mediavault/cmd/mediavault/models"
	"github.com/vaultiq/mediavault/common/db"
)

// ErrOwnerNotFound is returned when no owner row matches the id.
var ErrOwnerNotFound = errors.New("media owner not found")

// OwnerRepository handles database operations for media owners
type OwnerRepository struct {
	db *db.DB
}

// NewOwnerRepository creates a new owner repository
func NewOwnerRepository(db *db.DB) *OwnerRepository {
	return &OwnerRepository{db: db}
}

// Create inserts a new owner row
func (r *OwnerRepository) Create(ctx context.Context, owner *models.MediaOwner) error {
	query := `
		INSERT INTO media_owner (id, kind, tenant_id, name, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`

	_, err := r.db.Querier(ctx).Exec(ctx, query,
		owner.ID,
		owner.Kind,
		owner.TenantID,
		owner.Name,
		owner.CreatedAt,
		owner.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create owner: %w", err)
	}
	return nil
}

// LockAndFindByID loads the owner row under a pessimistic lock. Two
// concurrent replacements for the same owner serialize on this row, so
// neither can capture an inconsistent snapshot. Must run inside a
// transaction; the lock is released at commit/rollback.
func (r *OwnerRepository) LockAndFindByID(ctx context.Context, id uuid.UUID) (*models.MediaOwner, error) {
	query := `
		SELECT id, kind, tenant_id, name, created_at, updated_at
		FROM media_owner
		WHERE id = $1
		FOR UPDATE
	`

	owner := &models.MediaOwner{}
	err := r.db.Querier(ctx).QueryRow(ctx, query, id).Scan(
		&owner.ID,
		&owner.Kind,
		&owner.TenantID,
		&owner.Name,
		&owner.CreatedAt,
		&owner.UpdatedAt,
	)

	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrOwnerNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to lock owner: %w", err)
	}

	return owner, nil
}

// GetByID loads the owner row without locking.
func (r *OwnerRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.MediaOwner, error) {
	query := `
		SELECT id, kind, tenant_id, name, created_at, updated_at
		FROM media_owner
		WHERE id = $1
	`

	owner := &models.MediaOwner{}
	err := r.db.Querier(ctx).QueryRow(ctx, query, id).Scan(
		&owner.ID,
		&owner.Kind,
		&owner.TenantID,
		&owner.Name,
		&owner.CreatedAt,
		&owner.UpdatedAt,
	)

	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrOwnerNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get owner: %w", err)
	}

	return owner, nil
}

// Save updates the owner's mutable fields.
func (r *OwnerRepository) Save(ctx context.Context, owner *models.MediaOwner) error {
	query := `
		UPDATE media_owner
		SET name = $2, updated_at = now()
		WHERE id = $1
	`

	if _, err := r.db.Querier(ctx).Exec(ctx, query, owner.ID, owner.Name); err != nil {
		return fmt.Errorf("failed to save owner: %w", err)
	}
	return nil
}
