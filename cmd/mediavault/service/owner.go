package service

import (
	"context"

	"github.com/google/uuid"
	"github.com/vaultiq/mediavault/cmd/mediavault/models"
	"github.com/vaultiq/mediavault/cmd/mediavault/repository"
	"github.com/vaultiq/mediavault/common/clock"
	"github.com/vaultiq/mediavault/common/logger"
)

// OwnerService manages the entities that own media slots.
type OwnerService struct {
	owners *repository.OwnerRepository
	clock  clock.Clock
	log    *logger.Logger
}

// OwnerServiceOpts contains options for creating an OwnerService
type OwnerServiceOpts struct {
	Owners *repository.OwnerRepository
	Clock  clock.Clock
	Logger *logger.Logger
}

// NewOwnerService creates an owner service with options pattern
func NewOwnerService(opts *OwnerServiceOpts) *OwnerService {
	return &OwnerService{
		owners: opts.Owners,
		clock:  opts.Clock,
		log:    opts.Logger,
	}
}

// RegisterOwner creates a new media owner.
func (s *OwnerService) RegisterOwner(ctx context.Context, kind, tenantID, name string) (*models.MediaOwner, error) {
	now := s.clock.Now()
	owner := &models.MediaOwner{
		ID:        uuid.New(),
		Kind:      kind,
		TenantID:  tenantID,
		Name:      name,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.owners.Create(ctx, owner); err != nil {
		return nil, err
	}

	s.log.Info("owner registered", "owner_id", owner.ID, "kind", kind, "tenant_id", tenantID)
	return owner, nil
}

// GetOwner loads an owner by id.
func (s *OwnerService) GetOwner(ctx context.Context, id uuid.UUID) (*models.MediaOwner, error) {
	return s.owners.GetByID(ctx, id)
}
