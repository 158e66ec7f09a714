package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

var migrations = []string{
	`CREATE TABLE IF NOT EXISTS notifications (
		id           TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
		seq          BIGSERIAL,
		recipient_id TEXT NOT NULL,
		title        TEXT NOT NULL DEFAULT '',
		body         TEXT NOT NULL DEFAULT '',
		link         TEXT,
		is_read      BOOLEAN,
		read_at      TIMESTAMPTZ,
		created_at   TIMESTAMPTZ,
		event_id     TEXT UNIQUE
	);`,
	`CREATE INDEX IF NOT EXISTS notifications_recipient_idx ON notifications (recipient_id, is_read);`,
}

// RunMigrations creates the notifications table if it does not exist.
func RunMigrations(ctx context.Context, db *pgxpool.Pool) error {
	for _, m := range migrations {
		if _, err := db.Exec(ctx, m); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}
	return nil
}
