package database

import (
	"context"
	"fmt"

	"github.com/uptrace/bun"
)

// CreateSchema creates the tables and indexes if they do not exist yet.
// Runs at startup, mirroring the schema the bun models describe.
func CreateSchema(ctx context.Context, db *bun.DB) error {
	models := []any{
		(*User)(nil),
		(*Contact)(nil),
	}

	for _, model := range models {
		if _, err := db.NewCreateTable().
			Model(model).
			IfNotExists().
			Exec(ctx); err != nil {
			return fmt.Errorf("failed to create table for %T: %w", model, err)
		}
	}

	// Token lookups during verification and reset are by token value
	indexes := []struct {
		name   string
		model  any
		column string
	}{
		{"users_verification_token_idx", (*User)(nil), "verification_token"},
		{"users_reset_token_idx", (*User)(nil), "reset_token"},
		{"contacts_user_id_idx", (*Contact)(nil), "user_id"},
	}

	for _, idx := range indexes {
		if _, err := db.NewCreateIndex().
			Model(idx.model).
			Index(idx.name).
			Column(idx.column).
			IfNotExists().
			Exec(ctx); err != nil {
			return fmt.Errorf("failed to create index %s: %w", idx.name, err)
		}
	}

	return nil
}
