package database

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// schemaStatements create the tables the booking core reads and writes.
// The bookings table carries both historical shapes: legacy rows use
// tour_id/start_date/participants, modern rows use item_id/item_date/quantity.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id         TEXT PRIMARY KEY,
		email      TEXT,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS tours (
		id             TEXT PRIMARY KEY,
		name           TEXT NOT NULL,
		max_group_size INTEGER NOT NULL CHECK (max_group_size > 0),
		price          NUMERIC(12,2) NOT NULL DEFAULT 0,
		created_at     TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at     TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS bookings (
		id           TEXT PRIMARY KEY,
		tour_id      TEXT,
		start_date   TIMESTAMPTZ,
		participants INTEGER,
		item_id      TEXT,
		item_date    TEXT,
		quantity     INTEGER,
		user_id      TEXT,
		status       TEXT NOT NULL DEFAULT 'pending',
		price        NUMERIC(12,2),
		provenance   TEXT NOT NULL DEFAULT 'admin',
		payment_ref  TEXT UNIQUE,
		created_at   TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at   TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		cancelled_at TIMESTAMPTZ,
		hold_expires_at TIMESTAMPTZ
	)`,
	`ALTER TABLE bookings ADD COLUMN IF NOT EXISTS hold_expires_at TIMESTAMPTZ`,
	`CREATE INDEX IF NOT EXISTS idx_bookings_legacy_slot ON bookings (tour_id, start_date) WHERE item_date IS NULL`,
	`CREATE INDEX IF NOT EXISTS idx_bookings_modern_slot ON bookings (item_id, item_date)`,
	`CREATE INDEX IF NOT EXISTS idx_bookings_holds ON bookings (hold_expires_at) WHERE status = 'pending' AND hold_expires_at IS NOT NULL`,
	`CREATE INDEX IF NOT EXISTS idx_bookings_user ON bookings (user_id)`,
	`CREATE TABLE IF NOT EXISTS booking_audit_logs (
		id          BIGSERIAL PRIMARY KEY,
		actor_id    TEXT,
		action      TEXT NOT NULL,
		booking_id  TEXT,
		tour_id     TEXT,
		ip_address  TEXT,
		user_agent  TEXT,
		details     JSONB,
		created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
}

// EnsureSchema creates missing tables and indexes
func EnsureSchema(ctx context.Context, db *sqlx.DB) error {
	for _, stmt := range schemaStatements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply schema: %w", err)
		}
	}
	return nil
}
