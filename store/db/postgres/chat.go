package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/parleyhq/parley/store"
)

func (d *DB) CreateChat(ctx context.Context, create *store.Chat) (*store.Chat, error) {
	stmt := `INSERT INTO chat (uid, title, chat_type, reply_strategy)
	         VALUES ($1, $2, $3, $4)
	         RETURNING id, created_ts, updated_ts`
	if err := d.db.QueryRowContext(ctx, stmt, create.UID, create.Title, create.ChatType, create.ReplyStrategy).
		Scan(&create.ID, &create.CreatedTs, &create.UpdatedTs); err != nil {
		return nil, err
	}
	return create, nil
}

func (d *DB) ListChats(ctx context.Context, find *store.FindChat) ([]*store.Chat, error) {
	where, args := []string{"1 = 1"}, []any{}
	if v := find.ID; v != nil {
		where, args = append(where, "id = "+placeholder(len(args)+1)), append(args, *v)
	}
	if v := find.UID; v != nil {
		where, args = append(where, "uid = "+placeholder(len(args)+1)), append(args, *v)
	}
	query := fmt.Sprintf(
		`SELECT id, uid, title, chat_type, reply_strategy, created_ts, updated_ts
		 FROM chat WHERE %s ORDER BY updated_ts DESC, id DESC`,
		strings.Join(where, " AND "),
	)
	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var list []*store.Chat
	for rows.Next() {
		c := &store.Chat{}
		if err := rows.Scan(&c.ID, &c.UID, &c.Title, &c.ChatType, &c.ReplyStrategy, &c.CreatedTs, &c.UpdatedTs); err != nil {
			return nil, err
		}
		list = append(list, c)
	}
	return list, rows.Err()
}

func (d *DB) UpdateChat(ctx context.Context, update *store.UpdateChat) (*store.Chat, error) {
	set, args := []string{}, []any{}
	if v := update.Title; v != nil {
		set, args = append(set, "title = "+placeholder(len(args)+1)), append(args, *v)
	}
	if v := update.ChatType; v != nil {
		set, args = append(set, "chat_type = "+placeholder(len(args)+1)), append(args, *v)
	}
	if v := update.ReplyStrategy; v != nil {
		set, args = append(set, "reply_strategy = "+placeholder(len(args)+1)), append(args, *v)
	}
	set = append(set, "updated_ts = EXTRACT(EPOCH FROM NOW())")
	args = append(args, update.UID)
	stmt := fmt.Sprintf(
		`UPDATE chat SET %s WHERE uid = %s
		 RETURNING id, uid, title, chat_type, reply_strategy, created_ts, updated_ts`,
		strings.Join(set, ", "), placeholder(len(args)),
	)
	c := &store.Chat{}
	if err := d.db.QueryRowContext(ctx, stmt, args...).
		Scan(&c.ID, &c.UID, &c.Title, &c.ChatType, &c.ReplyStrategy, &c.CreatedTs, &c.UpdatedTs); err != nil {
		return nil, err
	}
	return c, nil
}

func (d *DB) DeleteChat(ctx context.Context, uid string) error {
	_, err := d.db.ExecContext(ctx, `DELETE FROM chat WHERE uid = $1`, uid)
	return err
}

func (d *DB) UpsertChatCharacter(ctx context.Context, upsert *store.ChatCharacter) error {
	stmt := `INSERT INTO chat_character (chat_id, character_id, position, is_active)
	         VALUES ($1, $2, $3, $4)
	         ON CONFLICT (chat_id, character_id)
	         DO UPDATE SET position = EXCLUDED.position, is_active = EXCLUDED.is_active`
	_, err := d.db.ExecContext(ctx, stmt, upsert.ChatID, upsert.CharacterID, upsert.Position, upsert.IsActive)
	return err
}

func (d *DB) ListChatCharacters(ctx context.Context, chatID int32) ([]*store.ChatCharacter, error) {
	rows, err := d.db.QueryContext(ctx,
		`SELECT chat_id, character_id, position, is_active
		 FROM chat_character WHERE chat_id = $1 ORDER BY position, character_id`, chatID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var list []*store.ChatCharacter
	for rows.Next() {
		cc := &store.ChatCharacter{}
		if err := rows.Scan(&cc.ChatID, &cc.CharacterID, &cc.Position, &cc.IsActive); err != nil {
			return nil, err
		}
		list = append(list, cc)
	}
	return list, rows.Err()
}

func (d *DB) UpsertChatPersona(ctx context.Context, upsert *store.ChatPersona) error {
	stmt := `INSERT INTO chat_persona (chat_id, persona_id, position)
	         VALUES ($1, $2, $3)
	         ON CONFLICT (chat_id, persona_id)
	         DO UPDATE SET position = EXCLUDED.position`
	_, err := d.db.ExecContext(ctx, stmt, upsert.ChatID, upsert.PersonaID, upsert.Position)
	return err
}

func (d *DB) ListChatPersonas(ctx context.Context, chatID int32) ([]*store.ChatPersona, error) {
	rows, err := d.db.QueryContext(ctx,
		`SELECT chat_id, persona_id, position
		 FROM chat_persona WHERE chat_id = $1 ORDER BY position, persona_id`, chatID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var list []*store.ChatPersona
	for rows.Next() {
		cp := &store.ChatPersona{}
		if err := rows.Scan(&cp.ChatID, &cp.PersonaID, &cp.Position); err != nil {
			return nil, err
		}
		list = append(list, cp)
	}
	return list, rows.Err()
}
