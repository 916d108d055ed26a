package postgres

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// migration holds a single schema migration with its target version and SQL.
type migration struct {
	version int
	sql     string
}

// migrations is the ordered list of schema migrations. The DDL sticks to
// types both PostgreSQL and SQLite accept.
var migrations = []migration{
	{
		version: 1,
		sql: `
CREATE TABLE IF NOT EXISTS users (
	id             UUID PRIMARY KEY,
	username       VARCHAR(64) NOT NULL UNIQUE,
	display_name   VARCHAR(128) NOT NULL DEFAULT '',
	email          VARCHAR(255) NOT NULL DEFAULT '',
	avatar_url     TEXT NOT NULL DEFAULT '',
	last_active_at TIMESTAMP NULL,
	created_at     TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS projects (
	id         UUID PRIMARY KEY,
	author_id  UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
	title      VARCHAR(255) NOT NULL,
	slug       VARCHAR(255) NOT NULL DEFAULT '',
	created_at TIMESTAMP NOT NULL
);`,
	},
	{
		version: 2,
		sql: `
CREATE TABLE IF NOT EXISTS notifications (
	id              UUID PRIMARY KEY,
	user_id         UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
	title           VARCHAR(255) NOT NULL,
	message         TEXT NOT NULL,
	type            VARCHAR(32) NOT NULL,
	data            TEXT NULL,
	is_read         BOOLEAN NOT NULL DEFAULT FALSE,
	project_id      UUID NULL REFERENCES projects(id) ON DELETE SET NULL,
	review_id       UUID NULL,
	triggered_by_id UUID NULL REFERENCES users(id) ON DELETE SET NULL,
	created_at      TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_notifications_user_created ON notifications (user_id, created_at);
CREATE INDEX IF NOT EXISTS idx_notifications_user_read ON notifications (user_id, is_read);`,
	},
	{
		version: 3,
		sql: `
CREATE TABLE IF NOT EXISTS outbox_events (
	id            UUID PRIMARY KEY,
	event_type    VARCHAR(64) NOT NULL,
	payload       TEXT NOT NULL,
	status        VARCHAR(16) NOT NULL DEFAULT 'pending',
	error_message TEXT NULL,
	created_at    TIMESTAMP NOT NULL,
	updated_at    TIMESTAMP NOT NULL,
	processed_at  TIMESTAMP NULL
);

CREATE INDEX IF NOT EXISTS idx_outbox_events_status_created ON outbox_events (status, created_at);`,
	},
}

// Migrate applies outstanding migrations in order, each in its own
// transaction, and records them in schema_version.
func Migrate(ctx context.Context, db *sqlx.DB) error {
	if _, err := db.ExecContext(ctx,
		`CREATE TABLE IF NOT EXISTS schema_version (version INTEGER NOT NULL)`); err != nil {
		return fmt.Errorf("creating schema_version table: %w", err)
	}

	var currentVersion int
	if err := db.GetContext(ctx, &currentVersion,
		`SELECT COALESCE(MAX(version), 0) FROM schema_version`); err != nil {
		return fmt.Errorf("reading schema version: %w", err)
	}

	for _, m := range migrations {
		if m.version <= currentVersion {
			continue
		}

		tx, err := db.BeginTxx(ctx, nil)
		if err != nil {
			return fmt.Errorf("applying migration v%d: %w", m.version, err)
		}
		if _, err := tx.ExecContext(ctx, m.sql); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("applying migration v%d: %w", m.version, err)
		}
		if _, err := tx.ExecContext(ctx,
			tx.Rebind(`INSERT INTO schema_version (version) VALUES (?)`), m.version); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("recording migration v%d: %w", m.version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("committing migration v%d: %w", m.version, err)
		}
	}

	return nil
}
