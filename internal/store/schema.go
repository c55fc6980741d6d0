package store

import (
	"context"
	"database/sql"
	"log"
)

// Migrate applies the schema. Statements are idempotent so the server can run
// this on every start.
func Migrate(ctx context.Context, db *sql.DB) error {
	log.Println("applying database schema...")
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS users (
			id            TEXT PRIMARY KEY,
			email         TEXT NOT NULL UNIQUE,
			password_hash TEXT NOT NULL,
			full_name     TEXT NOT NULL,
			role          TEXT NOT NULL,
			student_id    TEXT UNIQUE,
			grade         TEXT,
			category      TEXT,
			section       TEXT,
			photo_url     TEXT,
			created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE TABLE IF NOT EXISTS parent_links (
			id                 TEXT PRIMARY KEY,
			user_id            TEXT NOT NULL UNIQUE,
			phone              TEXT,
			notification_email TEXT
		)`,
		`CREATE TABLE IF NOT EXISTS parent_students (
			parent_id  TEXT NOT NULL REFERENCES parent_links(id) ON DELETE CASCADE,
			student_id TEXT NOT NULL,
			PRIMARY KEY (parent_id, student_id)
		)`,
		// The UNIQUE (user_id, date) pair is the serialization point for
		// concurrent scans of one badge.
		`CREATE TABLE IF NOT EXISTS attendance (
			id             TEXT PRIMARY KEY,
			user_id        TEXT NOT NULL,
			user_name      TEXT NOT NULL,
			user_role      TEXT NOT NULL,
			check_in_time  TIMESTAMPTZ NOT NULL,
			check_out_time TIMESTAMPTZ,
			date           TEXT NOT NULL,
			status         TEXT NOT NULL,
			recorded_by    TEXT NOT NULL,
			UNIQUE (user_id, date)
		)`,
		`CREATE INDEX IF NOT EXISTS attendance_date_idx ON attendance (date)`,
		`CREATE TABLE IF NOT EXISTS audit_log (
			id          TEXT PRIMARY KEY,
			action      TEXT NOT NULL,
			target_user TEXT,
			detail      TEXT,
			created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
	}
	for _, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	log.Println("database schema up to date")
	return nil
}
