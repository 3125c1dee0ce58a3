package models

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

// CleanupArtifactEntry is one directory queued for deferred deletion,
// annotated with the media id that originally produced it.
type CleanupArtifactEntry struct {
	Directory     string     `json:"dir"`
	OriginMediaID *uuid.UUID `json:"mediaId"`
}

// DedupKey identifies an entry regardless of how it was collected.
func (e CleanupArtifactEntry) DedupKey() string {
	id := ""
	if e.OriginMediaID != nil {
		id = e.OriginMediaID.String()
	}
	return e.Directory + "|" + id
}

// ReplacementSnapshot captures an owner's prior artifact set per disk,
// taken before the replacement write. It never contains the artifact
// currently being written.
type ReplacementSnapshot struct {
	ArtifactsByDisk map[string][]CleanupArtifactEntry
	OriginMediaIDs  []uuid.UUID
}

// Empty reports whether there is anything to clean up later.
func (s *ReplacementSnapshot) Empty() bool {
	for _, entries := range s.ArtifactsByDisk {
		if len(entries) > 0 {
			return false
		}
	}
	return true
}

// CleanupStatePayload is the durable record driving deferred cleanup.
// Keyed by the new media id that superseded the snapshotted artifacts.
// Maps to: media_cleanup_state table (payload column)
type CleanupStatePayload struct {
	ArtifactsByDisk map[string][]CleanupArtifactEntry `json:"artifacts"`

	// Media ids the executor must never delete. Always contains the id
	// of the media that triggered this payload.
	PreserveMediaIDs []uuid.UUID `json:"preserve"`

	// Renditions still outstanding; cleanup waits for all of them
	ExpectedConversions []string `json:"conversions"`

	OriginMediaIDs []uuid.UUID `json:"origins"`

	QueuedAt time.Time `json:"queued_at"`
}

// NewCleanupStatePayload builds a payload for a replacement, deduplicating
// snapshot entries and pinning the new media id into the preserve set.
func NewCleanupStatePayload(newMediaID uuid.UUID, snapshot *ReplacementSnapshot, conversions []string, queuedAt time.Time) *CleanupStatePayload {
	return &CleanupStatePayload{
		ArtifactsByDisk:     DedupArtifacts(snapshot.ArtifactsByDisk),
		PreserveMediaIDs:    []uuid.UUID{newMediaID},
		ExpectedConversions: append([]string(nil), conversions...),
		OriginMediaIDs:      append([]uuid.UUID(nil), snapshot.OriginMediaIDs...),
		QueuedAt:            queuedAt,
	}
}

// MarkConversionDone removes a completed rendition from the pending set.
// Returns true when the payload changed.
func (p *CleanupStatePayload) MarkConversionDone(name string) bool {
	for i, pending := range p.ExpectedConversions {
		if pending == name {
			p.ExpectedConversions = append(p.ExpectedConversions[:i], p.ExpectedConversions[i+1:]...)
			return true
		}
	}
	return false
}

// Drained reports whether every expected rendition has completed.
func (p *CleanupStatePayload) Drained() bool {
	return len(p.ExpectedConversions) == 0
}

// Preserves reports whether the given media id is pinned.
func (p *CleanupStatePayload) Preserves(id uuid.UUID) bool {
	for _, preserved := range p.PreserveMediaIDs {
		if preserved == id {
			return true
		}
	}
	return false
}

// DedupArtifacts removes duplicate (directory, origin) entries per disk
// and sorts deterministically, so payloads built from the same artifact
// set compare equal regardless of collection order.
func DedupArtifacts(byDisk map[string][]CleanupArtifactEntry) map[string][]CleanupArtifactEntry {
	out := make(map[string][]CleanupArtifactEntry, len(byDisk))
	for disk, entries := range byDisk {
		seen := make(map[string]struct{}, len(entries))
		unique := make([]CleanupArtifactEntry, 0, len(entries))
		for _, e := range entries {
			key := e.DedupKey()
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			unique = append(unique, e)
		}
		sort.Slice(unique, func(i, j int) bool {
			return unique[i].DedupKey() < unique[j].DedupKey()
		})
		out[disk] = unique
	}
	return out
}

// UniqueKey derives a stable identity for a cleanup job built from this
// artifact set. Disk iteration order does not affect the result.
func (p *CleanupStatePayload) UniqueKey() string {
	disks := make([]string, 0, len(p.ArtifactsByDisk))
	for disk := range p.ArtifactsByDisk {
		disks = append(disks, disk)
	}
	sort.Strings(disks)

	var b strings.Builder
	for _, disk := range disks {
		entries := DedupArtifacts(map[string][]CleanupArtifactEntry{disk: p.ArtifactsByDisk[disk]})[disk]
		for _, e := range entries {
			b.WriteString(disk)
			b.WriteString(":")
			b.WriteString(e.DedupKey())
			b.WriteString(";")
		}
	}

	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:16])
}
