// Package migrations creates the journey and audit tables.
package migrations

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"

	auditpg "jornada/pkg/platform/audit/store/postgres"
)

//go:embed schema.sql
var schema string

// Apply is idempotent; every statement uses IF NOT EXISTS.
func Apply(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("apply journey schema: %w", err)
	}
	if _, err := db.ExecContext(ctx, auditpg.Schema); err != nil {
		return fmt.Errorf("apply audit schema: %w", err)
	}
	return nil
}
