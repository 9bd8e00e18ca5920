package mysql

import (
	"context"
	"fmt"
	"strings"

	"github.com/parleyhq/parley/store"
)

func (d *DB) CreateChat(ctx context.Context, create *store.Chat) (*store.Chat, error) {
	stmt := `INSERT INTO chat (uid, title, chat_type, reply_strategy) VALUES (?, ?, ?, ?)`
	if _, err := d.db.ExecContext(ctx, stmt, create.UID, create.Title, create.ChatType, create.ReplyStrategy); err != nil {
		return nil, err
	}
	list, err := d.ListChats(ctx, &store.FindChat{UID: &create.UID})
	if err != nil || len(list) == 0 {
		return nil, err
	}
	return list[0], nil
}

func (d *DB) ListChats(ctx context.Context, find *store.FindChat) ([]*store.Chat, error) {
	where, args := []string{"1 = 1"}, []any{}
	if v := find.ID; v != nil {
		where, args = append(where, "id = ?"), append(args, *v)
	}
	if v := find.UID; v != nil {
		where, args = append(where, "uid = ?"), append(args, *v)
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
	set, args := []string{"updated_ts = UNIX_TIMESTAMP()"}, []any{}
	if v := update.Title; v != nil {
		set, args = append(set, "title = ?"), append(args, *v)
	}
	if v := update.ChatType; v != nil {
		set, args = append(set, "chat_type = ?"), append(args, *v)
	}
	if v := update.ReplyStrategy; v != nil {
		set, args = append(set, "reply_strategy = ?"), append(args, *v)
	}
	args = append(args, update.UID)
	stmt := fmt.Sprintf(`UPDATE chat SET %s WHERE uid = ?`, strings.Join(set, ", "))
	if _, err := d.db.ExecContext(ctx, stmt, args...); err != nil {
		return nil, err
	}
	list, err := d.ListChats(ctx, &store.FindChat{UID: &update.UID})
	if err != nil || len(list) == 0 {
		return nil, err
	}
	return list[0], nil
}

func (d *DB) DeleteChat(ctx context.Context, uid string) error {
	_, err := d.db.ExecContext(ctx, `DELETE FROM chat WHERE uid = ?`, uid)
	return err
}

func (d *DB) UpsertChatCharacter(ctx context.Context, upsert *store.ChatCharacter) error {
	stmt := `INSERT INTO chat_character (chat_id, character_id, position, is_active)
	         VALUES (?, ?, ?, ?)
	         ON DUPLICATE KEY UPDATE position = VALUES(position), is_active = VALUES(is_active)`
	_, err := d.db.ExecContext(ctx, stmt, upsert.ChatID, upsert.CharacterID, upsert.Position, upsert.IsActive)
	return err
}

func (d *DB) ListChatCharacters(ctx context.Context, chatID int32) ([]*store.ChatCharacter, error) {
	rows, err := d.db.QueryContext(ctx,
		`SELECT chat_id, character_id, position, is_active
		 FROM chat_character WHERE chat_id = ? ORDER BY position, character_id`, chatID)
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
	         VALUES (?, ?, ?)
	         ON DUPLICATE KEY UPDATE position = VALUES(position)`
	_, err := d.db.ExecContext(ctx, stmt, upsert.ChatID, upsert.PersonaID, upsert.Position)
	return err
}

func (d *DB) ListChatPersonas(ctx context.Context, chatID int32) ([]*store.ChatPersona, error) {
	rows, err := d.db.QueryContext(ctx,
		`SELECT chat_id, persona_id, position
		 FROM chat_persona WHERE chat_id = ? ORDER BY position, persona_id`, chatID)
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
