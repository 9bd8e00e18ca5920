package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/pkg/errors"

	"github.com/parleyhq/parley/store"
)

func (d *DB) CreateChatMessage(ctx context.Context, create *store.ChatMessage) (*store.ChatMessage, error) {
	metadata, err := json.Marshal(create.Metadata)
	if err != nil {
		return nil, errors.Wrap(err, "marshal metadata")
	}
	var generationID any
	if create.GenerationID != "" {
		generationID = create.GenerationID
	}
	stmt := `INSERT INTO chat_message (chat_id, role, character_id, persona_id, content, is_generating, generation_id, is_hidden, metadata)
	         VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	         RETURNING id, created_ts, updated_ts`
	if err := d.db.QueryRowContext(ctx, stmt,
		create.ChatID, create.Role, create.CharacterID, create.PersonaID,
		create.Content, create.IsGenerating, generationID, create.IsHidden, string(metadata)).
		Scan(&create.ID, &create.CreatedTs, &create.UpdatedTs); err != nil {
		return nil, err
	}
	return create, nil
}

func (d *DB) ListChatMessages(ctx context.Context, find *store.FindChatMessage) ([]*store.ChatMessage, error) {
	where, args := []string{"1 = 1"}, []any{}
	if v := find.ID; v != nil {
		where, args = append(where, "id = ?"), append(args, *v)
	}
	if v := find.ChatID; v != nil {
		where, args = append(where, "chat_id = ?"), append(args, *v)
	}
	if v := find.IsGenerating; v != nil {
		where, args = append(where, "is_generating = ?"), append(args, *v)
	}
	query := fmt.Sprintf(
		`SELECT id, chat_id, role, character_id, persona_id, content, is_generating, generation_id, is_hidden, metadata, created_ts, updated_ts
		 FROM chat_message WHERE %s ORDER BY id`,
		strings.Join(where, " AND "),
	)
	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var list []*store.ChatMessage
	for rows.Next() {
		m := &store.ChatMessage{}
		var generationID sql.NullString
		var metadata string
		if err := rows.Scan(&m.ID, &m.ChatID, &m.Role, &m.CharacterID, &m.PersonaID,
			&m.Content, &m.IsGenerating, &generationID, &m.IsHidden, &metadata,
			&m.CreatedTs, &m.UpdatedTs); err != nil {
			return nil, err
		}
		m.GenerationID = generationID.String
		if err := json.Unmarshal([]byte(metadata), &m.Metadata); err != nil {
			return nil, errors.Wrapf(err, "unmarshal metadata of message %d", m.ID)
		}
		list = append(list, m)
	}
	return list, rows.Err()
}

func (d *DB) UpdateChatMessage(ctx context.Context, update *store.UpdateChatMessage) (bool, error) {
	set, args := []string{"updated_ts = strftime('%s', 'now')"}, []any{}
	if v := update.Content; v != nil {
		set, args = append(set, "content = ?"), append(args, *v)
	}
	if v := update.IsGenerating; v != nil {
		set, args = append(set, "is_generating = ?"), append(args, *v)
	}
	if v := update.GenerationID; v != nil {
		if *v == "" {
			set = append(set, "generation_id = NULL")
		} else {
			set, args = append(set, "generation_id = ?"), append(args, *v)
		}
	}
	if v := update.IsHidden; v != nil {
		set, args = append(set, "is_hidden = ?"), append(args, *v)
	}
	if v := update.Metadata; v != nil {
		metadata, err := json.Marshal(v)
		if err != nil {
			return false, errors.Wrap(err, "marshal metadata")
		}
		set, args = append(set, "metadata = ?"), append(args, string(metadata))
	}
	where := "id = ?"
	if update.ExpectGenerating {
		where = "id = ? AND is_generating = 1"
	}
	args = append(args, update.ID)
	stmt := fmt.Sprintf(`UPDATE chat_message SET %s WHERE %s`, strings.Join(set, ", "), where)
	result, err := d.db.ExecContext(ctx, stmt, args...)
	if err != nil {
		return false, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

func (d *DB) DeleteChatMessage(ctx context.Context, id int32) error {
	_, err := d.db.ExecContext(ctx, `DELETE FROM chat_message WHERE id = ?`, id)
	return err
}
