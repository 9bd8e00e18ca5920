// Package sqlite implements the store driver on modernc.org/sqlite.
package sqlite

import (
	"context"
	"database/sql"

	"github.com/pkg/errors"
	_ "modernc.org/sqlite"
)

// DB is the sqlite store driver.
type DB struct {
	db *sql.DB
}

// NewDB opens (or creates) the database at dsn.
func NewDB(dsn string) (*DB, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, errors.Wrap(err, "open sqlite")
	}
	// modernc sqlite serializes writes itself; a single connection avoids
	// SQLITE_BUSY under concurrent generation streams.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		return nil, errors.Wrap(err, "enable foreign keys")
	}
	return &DB{db: db}, nil
}

// Close closes the database handle.
func (d *DB) Close() error {
	return d.db.Close()
}

// EnsureTables creates the schema when missing.
func (d *DB) EnsureTables(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS character (
			id            INTEGER PRIMARY KEY AUTOINCREMENT,
			uid           TEXT    NOT NULL UNIQUE,
			name          TEXT    NOT NULL,
			description   TEXT    NOT NULL DEFAULT '',
			first_message TEXT    NOT NULL DEFAULT '',
			created_ts    BIGINT  NOT NULL DEFAULT (strftime('%s', 'now')),
			updated_ts    BIGINT  NOT NULL DEFAULT (strftime('%s', 'now'))
		)`,
		`CREATE TABLE IF NOT EXISTS persona (
			id          INTEGER PRIMARY KEY AUTOINCREMENT,
			uid         TEXT    NOT NULL UNIQUE,
			name        TEXT    NOT NULL,
			description TEXT    NOT NULL DEFAULT '',
			created_ts  BIGINT  NOT NULL DEFAULT (strftime('%s', 'now')),
			updated_ts  BIGINT  NOT NULL DEFAULT (strftime('%s', 'now'))
		)`,
		`CREATE TABLE IF NOT EXISTS chat (
			id             INTEGER PRIMARY KEY AUTOINCREMENT,
			uid            TEXT    NOT NULL UNIQUE,
			title          TEXT    NOT NULL DEFAULT 'New Chat',
			chat_type      TEXT    NOT NULL DEFAULT 'normal',
			reply_strategy TEXT    NOT NULL DEFAULT 'round_robin',
			created_ts     BIGINT  NOT NULL DEFAULT (strftime('%s', 'now')),
			updated_ts     BIGINT  NOT NULL DEFAULT (strftime('%s', 'now'))
		)`,
		`CREATE TABLE IF NOT EXISTS chat_character (
			chat_id      INTEGER NOT NULL REFERENCES chat(id) ON DELETE CASCADE,
			character_id INTEGER NOT NULL REFERENCES character(id) ON DELETE CASCADE,
			position     INTEGER NOT NULL DEFAULT 0,
			is_active    INTEGER NOT NULL DEFAULT 1,
			PRIMARY KEY (chat_id, character_id)
		)`,
		`CREATE TABLE IF NOT EXISTS chat_persona (
			chat_id    INTEGER NOT NULL REFERENCES chat(id) ON DELETE CASCADE,
			persona_id INTEGER NOT NULL REFERENCES persona(id) ON DELETE CASCADE,
			position   INTEGER NOT NULL DEFAULT 0,
			PRIMARY KEY (chat_id, persona_id)
		)`,
		`CREATE TABLE IF NOT EXISTS chat_message (
			id            INTEGER PRIMARY KEY AUTOINCREMENT,
			chat_id       INTEGER NOT NULL REFERENCES chat(id) ON DELETE CASCADE,
			role          TEXT    NOT NULL,
			character_id  INTEGER,
			persona_id    INTEGER,
			content       TEXT    NOT NULL DEFAULT '',
			is_generating INTEGER NOT NULL DEFAULT 0,
			generation_id TEXT,
			is_hidden     INTEGER NOT NULL DEFAULT 0,
			metadata      TEXT    NOT NULL DEFAULT '{}',
			created_ts    BIGINT  NOT NULL DEFAULT (strftime('%s', 'now')),
			updated_ts    BIGINT  NOT NULL DEFAULT (strftime('%s', 'now'))
		)`,
		`CREATE INDEX IF NOT EXISTS idx_chat_message_chat ON chat_message(chat_id)`,
		`CREATE TABLE IF NOT EXISTS connection_profile (
			id         INTEGER PRIMARY KEY AUTOINCREMENT,
			uid        TEXT    NOT NULL UNIQUE,
			name       TEXT    NOT NULL,
			base_url   TEXT    NOT NULL DEFAULT '',
			api_key    TEXT    NOT NULL DEFAULT '',
			model      TEXT    NOT NULL DEFAULT '',
			is_default INTEGER NOT NULL DEFAULT 0,
			created_ts BIGINT  NOT NULL DEFAULT (strftime('%s', 'now')),
			updated_ts BIGINT  NOT NULL DEFAULT (strftime('%s', 'now'))
		)`,
		`CREATE TABLE IF NOT EXISTS lorebook (
			id         INTEGER PRIMARY KEY AUTOINCREMENT,
			uid        TEXT    NOT NULL UNIQUE,
			name       TEXT    NOT NULL,
			created_ts BIGINT  NOT NULL DEFAULT (strftime('%s', 'now'))
		)`,
		`CREATE TABLE IF NOT EXISTS lorebook_entry (
			id           INTEGER PRIMARY KEY AUTOINCREMENT,
			lorebook_id  INTEGER NOT NULL REFERENCES lorebook(id) ON DELETE CASCADE,
			trigger_keys TEXT    NOT NULL DEFAULT '',
			content      TEXT    NOT NULL DEFAULT '',
			created_ts   BIGINT  NOT NULL DEFAULT (strftime('%s', 'now'))
		)`,
	}
	for _, stmt := range stmts {
		if _, err := d.db.ExecContext(ctx, stmt); err != nil {
			return errors.Wrap(err, "ensure tables")
		}
	}
	return nil
}
