package cache

import (
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/vaultiq/mediavault/common/models"
)

// ArtifactCache is a small read-through cache for artifact metadata on the
// serving path. Entries are valid only for their TTL: a replaced slot
// points at a new media id anyway, so stale entries can only describe
// artifacts that no longer resolve.
type ArtifactCache struct {
	lru *expirable.LRU[uuid.UUID, *models.MediaArtifact]
}

// New creates an artifact cache holding at most size entries
func New(size int, ttl time.Duration) *ArtifactCache {
	return &ArtifactCache{
		lru: expirable.NewLRU[uuid.UUID, *models.MediaArtifact](size, nil, ttl),
	}
}

// Get returns the cached artifact for id, if present and fresh.
func (c *ArtifactCache) Get(id uuid.UUID) (*models.MediaArtifact, bool) {
	return c.lru.Get(id)
}

// Set stores an artifact.
func (c *ArtifactCache) Set(artifact *models.MediaArtifact) {
	c.lru.Add(artifact.ID, artifact)
}

// Delete evicts an artifact.
func (c *ArtifactCache) Delete(id uuid.UUID) {
	c.lru.Remove(id)
}

// Len returns the number of cached entries.
func (c *ArtifactCache) Len() int {
	return c.lru.Len()
}
