package models

import (
	"path"
	"time"

	"github.com/google/uuid"
)

// MediaArtifact represents one committed asset in tenant storage
// Maps to: media_artifact table
type MediaArtifact struct {
	// Unique media ID
	ID uuid.UUID `db:"id" json:"id"`

	// Owning entity ("user", future kinds)
	OwnerKind string    `db:"owner_kind" json:"owner_kind"`
	OwnerID   uuid.UUID `db:"owner_id" json:"owner_id"`

	// Tenant that owns the storage namespace
	TenantID string `db:"tenant_id" json:"tenant_id"`

	// Storage disk this artifact lives on
	Disk string `db:"disk" json:"disk"`

	// Media slot on the owner, e.g. "avatar"
	CollectionKey string `db:"collection_key" json:"collection_key"`

	// Original file name after sanitization
	FileName string `db:"file_name" json:"file_name"`

	MimeType  string `db:"mime_type" json:"mime_type"`
	SizeBytes int64  `db:"size_bytes" json:"size_bytes"`

	// Tenant-first directory prefix all of this artifact's files live under
	StorageKeyPrefix string `db:"storage_key_prefix" json:"storage_key_prefix"`

	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// OriginalPath returns the storage key of the original file.
func (a *MediaArtifact) OriginalPath() string {
	return path.Join(a.StorageKeyPrefix, a.FileName)
}

// ConversionsDir returns the directory renditions are written under.
func (a *MediaArtifact) ConversionsDir() string {
	return path.Join(a.StorageKeyPrefix, "conversions")
}

// ConversionPath returns the storage key of a named rendition.
func (a *MediaArtifact) ConversionPath(name string) string {
	return path.Join(a.ConversionsDir(), name+"_"+a.FileName)
}

// ConversionSpec describes one rendition derived from an original.
type ConversionSpec struct {
	Name   string `json:"name"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

// UploadProfile declares what an upload slot accepts and which renditions
// it is expected to produce.
type UploadProfile struct {
	Name        string
	MaxBytes    int64
	AllowedMIME []string
	Conversions []ConversionSpec
}

// ConversionNames returns the normalized list of expected rendition names.
func (p UploadProfile) ConversionNames() []string {
	names := make([]string, 0, len(p.Conversions))
	for _, c := range p.Conversions {
		names = append(names, c.Name)
	}
	return names
}

// AcceptsMIME reports whether the profile allows the given content type.
func (p UploadProfile) AcceptsMIME(mime string) bool {
	for _, m := range p.AllowedMIME {
		if m == mime {
			return true
		}
	}
	return false
}

var profiles = map[string]UploadProfile{
	"avatar": {
		Name:        "avatar",
		MaxBytes:    10 << 20,
		AllowedMIME: []string{"image/jpeg", "image/png", "image/gif", "image/webp"},
		Conversions: []ConversionSpec{
			{Name: "thumb", Width: 64, Height: 64},
			{Name: "medium", Width: 256, Height: 256},
			{Name: "large", Width: 1024, Height: 1024},
		},
	},
}

// ProfileByName looks up a declared upload profile.
func ProfileByName(name string) (UploadProfile, bool) {
	p, ok := profiles[name]
	return p, ok
}
