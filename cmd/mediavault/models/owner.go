package models

import (
	"time"

	"github.com/google/uuid"
)

// MediaOwner is an entity that owns replaceable media slots. Today that
// is users; the owner kind keeps the door open for other entities.
// Maps to: media_owner table
type MediaOwner struct {
	ID        uuid.UUID `db:"id" json:"id"`
	Kind      string    `db:"kind" json:"kind"`
	TenantID  string    `db:"tenant_id" json:"tenant_id"`
	Name      string    `db:"name" json:"name"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// Key returns the owner's storage identity (kind + id).
func (o *MediaOwner) Key() string {
	return o.Kind + ":" + o.ID.String()
}
