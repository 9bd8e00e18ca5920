// Package postgres implements the store driver on lib/pq.
package postgres

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"
	"github.com/pkg/errors"
)

// DB is the postgres store driver.
type DB struct {
	db *sql.DB
}

// NewDB connects to the database at dsn.
func NewDB(dsn string) (*DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, errors.Wrap(err, "open postgres")
	}
	if err := db.Ping(); err != nil {
		return nil, errors.Wrap(err, "ping postgres")
	}
	return &DB{db: db}, nil
}

// Close closes the database handle.
func (d *DB) Close() error {
	return d.db.Close()
}

func placeholder(n int) string {
	return fmt.Sprintf("$%d", n)
}

// EnsureTables creates the schema when missing.
func (d *DB) EnsureTables(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS character (
			id            SERIAL PRIMARY KEY,
			uid           TEXT    NOT NULL UNIQUE,
			name          TEXT    NOT NULL,
			description   TEXT    NOT NULL DEFAULT '',
			first_message TEXT    NOT NULL DEFAULT '',
			created_ts    BIGINT  NOT NULL DEFAULT EXTRACT(EPOCH FROM NOW()),
			updated_ts    BIGINT  NOT NULL DEFAULT EXTRACT(EPOCH FROM NOW())
		)`,
		`CREATE TABLE IF NOT EXISTS persona (
			id          SERIAL PRIMARY KEY,
			uid         TEXT    NOT NULL UNIQUE,
			name        TEXT    NOT NULL,
			description TEXT    NOT NULL DEFAULT '',
			created_ts  BIGINT  NOT NULL DEFAULT EXTRACT(EPOCH FROM NOW()),
			updated_ts  BIGINT  NOT NULL DEFAULT EXTRACT(EPOCH FROM NOW())
		)`,
		`CREATE TABLE IF NOT EXISTS chat (
			id             SERIAL PRIMARY KEY,
			uid            TEXT    NOT NULL UNIQUE,
			title          TEXT    NOT NULL DEFAULT 'New Chat',
			chat_type      TEXT    NOT NULL DEFAULT 'normal',
			reply_strategy TEXT    NOT NULL DEFAULT 'round_robin',
			created_ts     BIGINT  NOT NULL DEFAULT EXTRACT(EPOCH FROM NOW()),
			updated_ts     BIGINT  NOT NULL DEFAULT EXTRACT(EPOCH FROM NOW())
		)`,
		`CREATE TABLE IF NOT EXISTS chat_character (
			chat_id      INTEGER NOT NULL REFERENCES chat(id) ON DELETE CASCADE,
			character_id INTEGER NOT NULL REFERENCES character(id) ON DELETE CASCADE,
			position     INTEGER NOT NULL DEFAULT 0,
			is_active    BOOLEAN NOT NULL DEFAULT TRUE,
			PRIMARY KEY (chat_id, character_id)
		)`,
		`CREATE TABLE IF NOT EXISTS chat_persona (
			chat_id    INTEGER NOT NULL REFERENCES chat(id) ON DELETE CASCADE,
			persona_id INTEGER NOT NULL REFERENCES persona(id) ON DELETE CASCADE,
			position   INTEGER NOT NULL DEFAULT 0,
			PRIMARY KEY (chat_id, persona_id)
		)`,
		`CREATE TABLE IF NOT EXISTS chat_message (
			id            SERIAL PRIMARY KEY,
			chat_id       INTEGER NOT NULL REFERENCES chat(id) ON DELETE CASCADE,
			role          TEXT    NOT NULL,
			character_id  INTEGER,
			persona_id    INTEGER,
			content       TEXT    NOT NULL DEFAULT '',
			is_generating BOOLEAN NOT NULL DEFAULT FALSE,
			generation_id TEXT,
			is_hidden     BOOLEAN NOT NULL DEFAULT FALSE,
			metadata      JSONB   NOT NULL DEFAULT '{}',
			created_ts    BIGINT  NOT NULL DEFAULT EXTRACT(EPOCH FROM NOW()),
			updated_ts    BIGINT  NOT NULL DEFAULT EXTRACT(EPOCH FROM NOW())
		)`,
		`CREATE INDEX IF NOT EXISTS idx_chat_message_chat ON chat_message(chat_id)`,
		`CREATE TABLE IF NOT EXISTS connection_profile (
			id         SERIAL PRIMARY KEY,
			uid        TEXT    NOT NULL UNIQUE,
			name       TEXT    NOT NULL,
			base_url   TEXT    NOT NULL DEFAULT '',
			api_key    TEXT    NOT NULL DEFAULT '',
			model      TEXT    NOT NULL DEFAULT '',
			is_default BOOLEAN NOT NULL DEFAULT FALSE,
			created_ts BIGINT  NOT NULL DEFAULT EXTRACT(EPOCH FROM NOW()),
			updated_ts BIGINT  NOT NULL DEFAULT EXTRACT(EPOCH FROM NOW())
		)`,
		`CREATE TABLE IF NOT EXISTS lorebook (
			id         SERIAL PRIMARY KEY,
			uid        TEXT    NOT NULL UNIQUE,
			name       TEXT    NOT NULL,
			created_ts BIGINT  NOT NULL DEFAULT EXTRACT(EPOCH FROM NOW())
		)`,
		`CREATE TABLE IF NOT EXISTS lorebook_entry (
			id           SERIAL PRIMARY KEY,
			lorebook_id  INTEGER NOT NULL REFERENCES lorebook(id) ON DELETE CASCADE,
			trigger_keys TEXT    NOT NULL DEFAULT '',
			content      TEXT    NOT NULL DEFAULT '',
			created_ts   BIGINT  NOT NULL DEFAULT EXTRACT(EPOCH FROM NOW())
		)`,
	}
	for _, stmt := range stmts {
		if _, err := d.db.ExecContext(ctx, stmt); err != nil {
			return errors.Wrap(err, "ensure tables")
		}
	}
	return nil
}
