package queue

import (
	"github.com/google/uuid"
	"github.com/vaultiq/mediavault/common/models"
)

// Stream names shared by the API service and the background workers.
const (
	// ConversionJobsStream carries rendition generation jobs, consumed by
	// the conversion worker.
	ConversionJobsStream = "media.convert.jobs"

	// CleanupJobsStream carries deferred deletion jobs, consumed by the
	// cleanup worker.
	CleanupJobsStream = "media.cleanup.jobs"

	// EventsStream carries informational lifecycle events.
	EventsStream = "media.events"
)

// Job types.
const (
	JobTypeConvert  = "media.convert"
	JobTypeCleanup  = "media.cleanup"
	JobTypeReplaced = "media.replaced"
)

// ConversionJobPayload tells the conversion worker to produce one rendition
// from an already committed original.
type ConversionJobPayload struct {
	MediaID    uuid.UUID             `json:"media_id"`
	Disk       string                `json:"disk"`
	SourceKey  string                `json:"source_key"`
	TargetKey  string                `json:"target_key"`
	Conversion models.ConversionSpec `json:"conversion"`
	MimeType   string                `json:"mime_type"`
}

// CleanupJobPayload tells the cleanup worker which artifact directories a
// drained or expired cleanup state released for deletion.
type CleanupJobPayload struct {
	ArtifactsByDisk  map[string][]models.CleanupArtifactEntry `json:"artifacts"`
	PreserveMediaIDs []uuid.UUID                              `json:"preserve"`
}

// MediaReplacedEvent announces that an owner's slot now points at a new
// artifact. Informational; nothing consumes it on the critical path.
type MediaReplacedEvent struct {
	MediaID       uuid.UUID `json:"media_id"`
	OwnerID       uuid.UUID `json:"owner_id"`
	CollectionKey string    `json:"collection_key"`
	PriorCount    int       `json:"prior_count"`
}
