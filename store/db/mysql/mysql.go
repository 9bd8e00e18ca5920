// Package mysql implements the store driver on go-sql-driver/mysql.
package mysql

import (
	"context"
	"database/sql"

	_ "github.com/go-sql-driver/mysql"
	"github.com/pkg/errors"
)

// DB is the mysql store driver.
type DB struct {
	db *sql.DB
}

// NewDB connects to the database at dsn.
func NewDB(dsn string) (*DB, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, errors.Wrap(err, "open mysql")
	}
	if err := db.Ping(); err != nil {
		return nil, errors.Wrap(err, "ping mysql")
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
		"CREATE TABLE IF NOT EXISTS `character` (" + `
			id            INT NOT NULL AUTO_INCREMENT PRIMARY KEY,
			uid           VARCHAR(256) NOT NULL UNIQUE,
			name          VARCHAR(256) NOT NULL,
			description   TEXT NOT NULL,
			first_message TEXT NOT NULL,
			created_ts    BIGINT NOT NULL DEFAULT (UNIX_TIMESTAMP()),
			updated_ts    BIGINT NOT NULL DEFAULT (UNIX_TIMESTAMP())
		)`,
		`CREATE TABLE IF NOT EXISTS persona (
			id          INT NOT NULL AUTO_INCREMENT PRIMARY KEY,
			uid         VARCHAR(256) NOT NULL UNIQUE,
			name        VARCHAR(256) NOT NULL,
			description TEXT NOT NULL,
			created_ts  BIGINT NOT NULL DEFAULT (UNIX_TIMESTAMP()),
			updated_ts  BIGINT NOT NULL DEFAULT (UNIX_TIMESTAMP())
		)`,
		`CREATE TABLE IF NOT EXISTS chat (
			id             INT NOT NULL AUTO_INCREMENT PRIMARY KEY,
			uid            VARCHAR(256) NOT NULL UNIQUE,
			title          TEXT NOT NULL,
			chat_type      VARCHAR(32) NOT NULL DEFAULT 'normal',
			reply_strategy VARCHAR(32) NOT NULL DEFAULT 'round_robin',
			created_ts     BIGINT NOT NULL DEFAULT (UNIX_TIMESTAMP()),
			updated_ts     BIGINT NOT NULL DEFAULT (UNIX_TIMESTAMP())
		)`,
		`CREATE TABLE IF NOT EXISTS chat_character (
			chat_id      INT NOT NULL,
			character_id INT NOT NULL,
			position     INT NOT NULL DEFAULT 0,
			is_active    BOOLEAN NOT NULL DEFAULT TRUE,
			PRIMARY KEY (chat_id, character_id),
			CONSTRAINT fk_chat_character_chat FOREIGN KEY (chat_id) REFERENCES chat(id) ON DELETE CASCADE,
			CONSTRAINT fk_chat_character_character FOREIGN KEY (character_id) REFERENCES ` + "`character`" + `(id) ON DELETE CASCADE
		)`,
		`CREATE TABLE IF NOT EXISTS chat_persona (
			chat_id    INT NOT NULL,
			persona_id INT NOT NULL,
			position   INT NOT NULL DEFAULT 0,
			PRIMARY KEY (chat_id, persona_id),
			CONSTRAINT fk_chat_persona_chat FOREIGN KEY (chat_id) REFERENCES chat(id) ON DELETE CASCADE,
			CONSTRAINT fk_chat_persona_persona FOREIGN KEY (persona_id) REFERENCES persona(id) ON DELETE CASCADE
		)`,
		`CREATE TABLE IF NOT EXISTS chat_message (
			id            INT NOT NULL AUTO_INCREMENT PRIMARY KEY,
			chat_id       INT NOT NULL,
			role          VARCHAR(32) NOT NULL,
			character_id  INT,
			persona_id    INT,
			content       MEDIUMTEXT NOT NULL,
			is_generating BOOLEAN NOT NULL DEFAULT FALSE,
			generation_id VARCHAR(256),
			is_hidden     BOOLEAN NOT NULL DEFAULT FALSE,
			metadata      JSON NOT NULL,
			created_ts    BIGINT NOT NULL DEFAULT (UNIX_TIMESTAMP()),
			updated_ts    BIGINT NOT NULL DEFAULT (UNIX_TIMESTAMP()),
			INDEX idx_chat_message_chat (chat_id),
			CONSTRAINT fk_chat_message_chat FOREIGN KEY (chat_id) REFERENCES chat(id) ON DELETE CASCADE
		)`,
		`CREATE TABLE IF NOT EXISTS connection_profile (
			id         INT NOT NULL AUTO_INCREMENT PRIMARY KEY,
			uid        VARCHAR(256) NOT NULL UNIQUE,
			name       VARCHAR(256) NOT NULL,
			base_url   TEXT NOT NULL,
			api_key    TEXT NOT NULL,
			model      VARCHAR(256) NOT NULL DEFAULT '',
			is_default BOOLEAN NOT NULL DEFAULT FALSE,
			created_ts BIGINT NOT NULL DEFAULT (UNIX_TIMESTAMP()),
			updated_ts BIGINT NOT NULL DEFAULT (UNIX_TIMESTAMP())
		)`,
		`CREATE TABLE IF NOT EXISTS lorebook (
			id         INT NOT NULL AUTO_INCREMENT PRIMARY KEY,
			uid        VARCHAR(256) NOT NULL UNIQUE,
			name       VARCHAR(256) NOT NULL,
			created_ts BIGINT NOT NULL DEFAULT (UNIX_TIMESTAMP())
		)`,
		`CREATE TABLE IF NOT EXISTS lorebook_entry (
			id           INT NOT NULL AUTO_INCREMENT PRIMARY KEY,
			lorebook_id  INT NOT NULL,
			trigger_keys TEXT NOT NULL,
			content      TEXT NOT NULL,
			created_ts   BIGINT NOT NULL DEFAULT (UNIX_TIMESTAMP()),
			CONSTRAINT fk_lorebook_entry_lorebook FOREIGN KEY (lorebook_id) REFERENCES lorebook(id) ON DELETE CASCADE
		)`,
	}
	for _, stmt := range stmts {
		if _, err := d.db.ExecContext(ctx, stmt); err != nil {
			return errors.Wrap(err, "ensure tables")
		}
	}
	return nil
}
