package repository

import (
	"context"
	_ "embed"
	"fmt"

	"github.com/vaultiq/mediavault/common/db"
)

//go:embed schema.sql
var schemaSQL string

// InitSchema applies the table definitions. All statements are
// idempotent so it is safe to run on every startup.
func InitSchema(ctx context.Context, database *db.DB) error {
	if _, err := database.Pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("applying schema: %w", err)
	}
	return nil
}
