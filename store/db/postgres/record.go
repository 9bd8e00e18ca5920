package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/parleyhq/parley/store"
)

func (d *DB) CreateCharacter(ctx context.Context, create *store.Character) (*store.Character, error) {
	stmt := `INSERT INTO character (uid, name, description, first_message)
	         VALUES ($1, $2, $3, $4)
	         RETURNING id, created_ts, updated_ts`
	if err := d.db.QueryRowContext(ctx, stmt, create.UID, create.Name, create.Description, create.FirstMessage).
		Scan(&create.ID, &create.CreatedTs, &create.UpdatedTs); err != nil {
		return nil, err
	}
	return create, nil
}

func (d *DB) ListCharacters(ctx context.Context, find *store.FindCharacter) ([]*store.Character, error) {
	where, args := []string{"1 = 1"}, []any{}
	if v := find.ID; v != nil {
		where, args = append(where, "id = "+placeholder(len(args)+1)), append(args, *v)
	}
	if v := find.UID; v != nil {
		where, args = append(where, "uid = "+placeholder(len(args)+1)), append(args, *v)
	}
	if v := find.Name; v != nil {
		where, args = append(where, "name = "+placeholder(len(args)+1)), append(args, *v)
	}
	query := fmt.Sprintf(
		`SELECT id, uid, name, description, first_message, created_ts, updated_ts
		 FROM character WHERE %s ORDER BY id`,
		strings.Join(where, " AND "),
	)
	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var list []*store.Character
	for rows.Next() {
		c := &store.Character{}
		if err := rows.Scan(&c.ID, &c.UID, &c.Name, &c.Description, &c.FirstMessage, &c.CreatedTs, &c.UpdatedTs); err != nil {
			return nil, err
		}
		list = append(list, c)
	}
	return list, rows.Err()
}

func (d *DB) UpdateCharacter(ctx context.Context, update *store.UpdateCharacter) (*store.Character, error) {
	set, args := []string{}, []any{}
	if v := update.Name; v != nil {
		set, args = append(set, "name = "+placeholder(len(args)+1)), append(args, *v)
	}
	if v := update.Description; v != nil {
		set, args = append(set, "description = "+placeholder(len(args)+1)), append(args, *v)
	}
	if v := update.FirstMessage; v != nil {
		set, args = append(set, "first_message = "+placeholder(len(args)+1)), append(args, *v)
	}
	set = append(set, "updated_ts = EXTRACT(EPOCH FROM NOW())")
	args = append(args, update.UID)
	stmt := fmt.Sprintf(
		`UPDATE character SET %s WHERE uid = %s
		 RETURNING id, uid, name, description, first_message, created_ts, updated_ts`,
		strings.Join(set, ", "), placeholder(len(args)),
	)
	c := &store.Character{}
	if err := d.db.QueryRowContext(ctx, stmt, args...).
		Scan(&c.ID, &c.UID, &c.Name, &c.Description, &c.FirstMessage, &c.CreatedTs, &c.UpdatedTs); err != nil {
		return nil, err
	}
	return c, nil
}

func (d *DB) DeleteCharacter(ctx context.Context, uid string) error {
	_, err := d.db.ExecContext(ctx, `DELETE FROM character WHERE uid = $1`, uid)
	return err
}

func (d *DB) CreatePersona(ctx context.Context, create *store.Persona) (*store.Persona, error) {
	stmt := `INSERT INTO persona (uid, name, description)
	         VALUES ($1, $2, $3)
	         RETURNING id, created_ts, updated_ts`
	if err := d.db.QueryRowContext(ctx, stmt, create.UID, create.Name, create.Description).
		Scan(&create.ID, &create.CreatedTs, &create.UpdatedTs); err != nil {
		return nil, err
	}
	return create, nil
}

func (d *DB) ListPersonas(ctx context.Context, find *store.FindPersona) ([]*store.Persona, error) {
	where, args := []string{"1 = 1"}, []any{}
	if v := find.ID; v != nil {
		where, args = append(where, "id = "+placeholder(len(args)+1)), append(args, *v)
	}
	if v := find.UID; v != nil {
		where, args = append(where, "uid = "+placeholder(len(args)+1)), append(args, *v)
	}
	query := fmt.Sprintf(
		`SELECT id, uid, name, description, created_ts, updated_ts
		 FROM persona WHERE %s ORDER BY id`,
		strings.Join(where, " AND "),
	)
	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var list []*store.Persona
	for rows.Next() {
		p := &store.Persona{}
		if err := rows.Scan(&p.ID, &p.UID, &p.Name, &p.Description, &p.CreatedTs, &p.UpdatedTs); err != nil {
			return nil, err
		}
		list = append(list, p)
	}
	return list, rows.Err()
}

func (d *DB) UpdatePersona(ctx context.Context, update *store.UpdatePersona) (*store.Persona, error) {
	set, args := []string{}, []any{}
	if v := update.Name; v != nil {
		set, args = append(set, "name = "+placeholder(len(args)+1)), append(args, *v)
	}
	if v := update.Description; v != nil {
		set, args = append(set, "description = "+placeholder(len(args)+1)), append(args, *v)
	}
	set = append(set, "updated_ts = EXTRACT(EPOCH FROM NOW())")
	args = append(args, update.UID)
	stmt := fmt.Sprintf(
		`UPDATE persona SET %s WHERE uid = %s
		 RETURNING id, uid, name, description, created_ts, updated_ts`,
		strings.Join(set, ", "), placeholder(len(args)),
	)
	p := &store.Persona{}
	if err := d.db.QueryRowContext(ctx, stmt, args...).
		Scan(&p.ID, &p.UID, &p.Name, &p.Description, &p.CreatedTs, &p.UpdatedTs); err != nil {
		return nil, err
	}
	return p, nil
}

func (d *DB) DeletePersona(ctx context.Context, uid string) error {
	_, err := d.db.ExecContext(ctx, `DELETE FROM persona WHERE uid = $1`, uid)
	return err
}

func (d *DB) CreateConnectionProfile(ctx context.Context, create *store.ConnectionProfile) (*store.ConnectionProfile, error) {
	stmt := `INSERT INTO connection_profile (uid, name, base_url, api_key, model, is_default)
	         VALUES ($1, $2, $3, $4, $5, $6)
	         RETURNING id, created_ts, updated_ts`
	if err := d.db.QueryRowContext(ctx, stmt,
		create.UID, create.Name, create.BaseURL, create.APIKey, create.Model, create.IsDefault).
		Scan(&create.ID, &create.CreatedTs, &create.UpdatedTs); err != nil {
		return nil, err
	}
	return create, nil
}

func (d *DB) ListConnectionProfiles(ctx context.Context, find *store.FindConnectionProfile) ([]*store.ConnectionProfile, error) {
	where, args := []string{"1 = 1"}, []any{}
	if v := find.UID; v != nil {
		where, args = append(where, "uid = "+placeholder(len(args)+1)), append(args, *v)
	}
	if v := find.IsDefault; v != nil {
		where, args = append(where, "is_default = "+placeholder(len(args)+1)), append(args, *v)
	}
	query := fmt.Sprintf(
		`SELECT id, uid, name, base_url, api_key, model, is_default, created_ts, updated_ts
		 FROM connection_profile WHERE %s ORDER BY id`,
		strings.Join(where, " AND "),
	)
	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var list []*store.ConnectionProfile
	for rows.Next() {
		p := &store.ConnectionProfile{}
		if err := rows.Scan(&p.ID, &p.UID, &p.Name, &p.BaseURL, &p.APIKey, &p.Model, &p.IsDefault, &p.CreatedTs, &p.UpdatedTs); err != nil {
			return nil, err
		}
		list = append(list, p)
	}
	return list, rows.Err()
}

func (d *DB) UpdateConnectionProfile(ctx context.Context, update *store.UpdateConnectionProfile) (*store.ConnectionProfile, error) {
	set, args := []string{}, []any{}
	if v := update.Name; v != nil {
		set, args = append(set, "name = "+placeholder(len(args)+1)), append(args, *v)
	}
	if v := update.BaseURL; v != nil {
		set, args = append(set, "base_url = "+placeholder(len(args)+1)), append(args, *v)
	}
	if v := update.APIKey; v != nil {
		set, args = append(set, "api_key = "+placeholder(len(args)+1)), append(args, *v)
	}
	if v := update.Model; v != nil {
		set, args = append(set, "model = "+placeholder(len(args)+1)), append(args, *v)
	}
	if v := update.IsDefault; v != nil {
		set, args = append(set, "is_default = "+placeholder(len(args)+1)), append(args, *v)
	}
	set = append(set, "updated_ts = EXTRACT(EPOCH FROM NOW())")
	args = append(args, update.UID)
	stmt := fmt.Sprintf(
		`UPDATE connection_profile SET %s WHERE uid = %s
		 RETURNING id, uid, name, base_url, api_key, model, is_default, created_ts, updated_ts`,
		strings.Join(set, ", "), placeholder(len(args)),
	)
	p := &store.ConnectionProfile{}
	if err := d.db.QueryRowContext(ctx, stmt, args...).
		Scan(&p.ID, &p.UID, &p.Name, &p.BaseURL, &p.APIKey, &p.Model, &p.IsDefault, &p.CreatedTs, &p.UpdatedTs); err != nil {
		return nil, err
	}
	return p, nil
}

func (d *DB) DeleteConnectionProfile(ctx context.Context, uid string) error {
	_, err := d.db.ExecContext(ctx, `DELETE FROM connection_profile WHERE uid = $1`, uid)
	return err
}

func (d *DB) CreateLorebook(ctx context.Context, create *store.Lorebook) (*store.Lorebook, error) {
	stmt := `INSERT INTO lorebook (uid, name) VALUES ($1, $2) RETURNING id, created_ts`
	if err := d.db.QueryRowContext(ctx, stmt, create.UID, create.Name).
		Scan(&create.ID, &create.CreatedTs); err != nil {
		return nil, err
	}
	return create, nil
}

func (d *DB) ListLorebooks(ctx context.Context, find *store.FindLorebook) ([]*store.Lorebook, error) {
	where, args := []string{"1 = 1"}, []any{}
	if v := find.ID; v != nil {
		where, args = append(where, "id = "+placeholder(len(args)+1)), append(args, *v)
	}
	if v := find.UID; v != nil {
		where, args = append(where, "uid = "+placeholder(len(args)+1)), append(args, *v)
	}
	query := fmt.Sprintf(
		`SELECT id, uid, name, created_ts FROM lorebook WHERE %s ORDER BY id`,
		strings.Join(where, " AND "),
	)
	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var list []*store.Lorebook
	for rows.Next() {
		lb := &store.Lorebook{}
		if err := rows.Scan(&lb.ID, &lb.UID, &lb.Name, &lb.CreatedTs); err != nil {
			return nil, err
		}
		list = append(list, lb)
	}
	return list, rows.Err()
}

func (d *DB) DeleteLorebook(ctx context.Context, uid string) error {
	_, err := d.db.ExecContext(ctx, `DELETE FROM lorebook WHERE uid = $1`, uid)
	return err
}

func (d *DB) CreateLorebookEntry(ctx context.Context, create *store.LorebookEntry) (*store.LorebookEntry, error) {
	stmt := `INSERT INTO lorebook_entry (lorebook_id, trigger_keys, content)
	         VALUES ($1, $2, $3)
	         RETURNING id, created_ts`
	if err := d.db.QueryRowContext(ctx, stmt, create.LorebookID, create.Keys, create.Content).
		Scan(&create.ID, &create.CreatedTs); err != nil {
		return nil, err
	}
	return create, nil
}

func (d *DB) ListLorebookEntries(ctx context.Context, lorebookID int32) ([]*store.LorebookEntry, error) {
	rows, err := d.db.QueryContext(ctx,
		`SELECT id, lorebook_id, trigger_keys, content, created_ts
		 FROM lorebook_entry WHERE lorebook_id = $1 ORDER BY id`, lorebookID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var list []*store.LorebookEntry
	for rows.Next() {
		e := &store.LorebookEntry{}
		if err := rows.Scan(&e.ID, &e.LorebookID, &e.Keys, &e.Content, &e.CreatedTs); err != nil {
			return nil, err
		}
		list = append(list, e)
	}
	return list, rows.Err()
}

func (d *DB) DeleteLorebookEntry(ctx context.Context, id int32) error {
	_, err := d.db.ExecContext(ctx, `DELETE FROM lorebook_entry WHERE id = $1`, id)
	return err
}
