package store

import (
	"context"
)

// Store is the storage facade. It delegates to a Driver and is the only type
// the rest of the server talks to.
type Store struct {
	driver Driver
}

// New creates a Store backed by the given driver.
func New(driver Driver) *Store {
	return &Store{driver: driver}
}

// EnsureTables runs the driver's schema migration.
func (s *Store) EnsureTables(ctx context.Context) error {
	return s.driver.EnsureTables(ctx)
}

// Close closes the underlying driver.
func (s *Store) Close() error {
	return s.driver.Close()
}

// ── Characters ───────────────────────────────────────────────────────────────

func (s *Store) CreateCharacter(ctx context.Context, create *Character) (*Character, error) {
	return s.driver.CreateCharacter(ctx, create)
}

func (s *Store) ListCharacters(ctx context.Context, find *FindCharacter) ([]*Character, error) {
	return s.driver.ListCharacters(ctx, find)
}

// GetCharacter returns the first character matching the given filter, or nil.
func (s *Store) GetCharacter(ctx context.Context, find *FindCharacter) (*Character, error) {
	list, err := s.driver.ListCharacters(ctx, find)
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, nil
	}
	return list[0], nil
}

func (s *Store) UpdateCharacter(ctx context.Context, update *UpdateCharacter) (*Character, error) {
	return s.driver.UpdateCharacter(ctx, update)
}

func (s *Store) DeleteCharacter(ctx context.Context, uid string) error {
	return s.driver.DeleteCharacter(ctx, uid)
}

// ── Personas ─────────────────────────────────────────────────────────────────

func (s *Store) CreatePersona(ctx context.Context, create *Persona) (*Persona, error) {
	return s.driver.CreatePersona(ctx, create)
}

func (s *Store) ListPersonas(ctx context.Context, find *FindPersona) ([]*Persona, error) {
	return s.driver.ListPersonas(ctx, find)
}

func (s *Store) GetPersona(ctx context.Context, find *FindPersona) (*Persona, error) {
	list, err := s.driver.ListPersonas(ctx, find)
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, nil
	}
	return list[0], nil
}

func (s *Store) UpdatePersona(ctx context.Context, update *UpdatePersona) (*Persona, error) {
	return s.driver.UpdatePersona(ctx, update)
}

func (s *Store) DeletePersona(ctx context.Context, uid string) error {
	return s.driver.DeletePersona(ctx, uid)
}

// ── Chats ────────────────────────────────────────────────────────────────────

func (s *Store) CreateChat(ctx context.Context, create *Chat) (*Chat, error) {
	return s.driver.CreateChat(ctx, create)
}

func (s *Store) ListChats(ctx context.Context, find *FindChat) ([]*Chat, error) {
	return s.driver.ListChats(ctx, find)
}

func (s *Store) GetChat(ctx context.Context, find *FindChat) (*Chat, error) {
	list, err := s.driver.ListChats(ctx, find)
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, nil
	}
	return list[0], nil
}

func (s *Store) UpdateChat(ctx context.Context, update *UpdateChat) (*Chat, error) {
	return s.driver.UpdateChat(ctx, update)
}

// DeleteChat deletes a chat and all its messages and participant links.
func (s *Store) DeleteChat(ctx context.Context, uid string) error {
	return s.driver.DeleteChat(ctx, uid)
}

func (s *Store) UpsertChatCharacter(ctx context.Context, upsert *ChatCharacter) error {
	return s.driver.UpsertChatCharacter(ctx, upsert)
}

// ListChatCharacters returns the chat's characters ordered by position.
func (s *Store) ListChatCharacters(ctx context.Context, chatID int32) ([]*ChatCharacter, error) {
	return s.driver.ListChatCharacters(ctx, chatID)
}

func (s *Store) UpsertChatPersona(ctx context.Context, upsert *ChatPersona) error {
	return s.driver.UpsertChatPersona(ctx, upsert)
}

func (s *Store) ListChatPersonas(ctx context.Context, chatID int32) ([]*ChatPersona, error) {
	return s.driver.ListChatPersonas(ctx, chatID)
}

// ── Messages ─────────────────────────────────────────────────────────────────

func (s *Store) CreateChatMessage(ctx context.Context, create *ChatMessage) (*ChatMessage, error) {
	return s.driver.CreateChatMessage(ctx, create)
}

// ListChatMessages returns messages matching the filter, oldest first.
func (s *Store) ListChatMessages(ctx context.Context, find *FindChatMessage) ([]*ChatMessage, error) {
	return s.driver.ListChatMessages(ctx, find)
}

func (s *Store) GetChatMessage(ctx context.Context, id int32) (*ChatMessage, error) {
	list, err := s.driver.ListChatMessages(ctx, &FindChatMessage{ID: &id})
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, nil
	}
	return list[0], nil
}

// UpdateChatMessage applies the update and returns the current row plus
// whether this writer changed it. The returned row is authoritative either
// way, so a losing writer can observe what the winner persisted.
func (s *Store) UpdateChatMessage(ctx context.Context, update *UpdateChatMessage) (*ChatMessage, bool, error) {
	updated, err := s.driver.UpdateChatMessage(ctx, update)
	if err != nil {
		return nil, false, err
	}
	msg, err := s.GetChatMessage(ctx, update.ID)
	if err != nil {
		return nil, updated, err
	}
	return msg, updated, nil
}

func (s *Store) DeleteChatMessage(ctx context.Context, id int32) error {
	return s.driver.DeleteChatMessage(ctx, id)
}

// ── Connection profiles ──────────────────────────────────────────────────────

func (s *Store) CreateConnectionProfile(ctx context.Context, create *ConnectionProfile) (*ConnectionProfile, error) {
	return s.driver.CreateConnectionProfile(ctx, create)
}

func (s *Store) ListConnectionProfiles(ctx context.Context, find *FindConnectionProfile) ([]*ConnectionProfile, error) {
	return s.driver.ListConnectionProfiles(ctx, find)
}

func (s *Store) GetConnectionProfile(ctx context.Context, find *FindConnectionProfile) (*ConnectionProfile, error) {
	list, err := s.driver.ListConnectionProfiles(ctx, find)
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, nil
	}
	return list[0], nil
}

func (s *Store) UpdateConnectionProfile(ctx context.Context, update *UpdateConnectionProfile) (*ConnectionProfile, error) {
	return s.driver.UpdateConnectionProfile(ctx, update)
}

func (s *Store) DeleteConnectionProfile(ctx context.Context, uid string) error {
	return s.driver.DeleteConnectionProfile(ctx, uid)
}

// ── Lorebooks ────────────────────────────────────────────────────────────────

func (s *Store) CreateLorebook(ctx context.Context, create *Lorebook) (*Lorebook, error) {
	return s.driver.CreateLorebook(ctx, create)
}

func (s *Store) ListLorebooks(ctx context.Context, find *FindLorebook) ([]*Lorebook, error) {
	return s.driver.ListLorebooks(ctx, find)
}

func (s *Store) GetLorebook(ctx context.Context, find *FindLorebook) (*Lorebook, error) {
	list, err := s.driver.ListLorebooks(ctx, find)
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, nil
	}
	return list[0], nil
}

func (s *Store) DeleteLorebook(ctx context.Context, uid string) error {
	return s.driver.DeleteLorebook(ctx, uid)
}

func (s *Store) CreateLorebookEntry(ctx context.Context, create *LorebookEntry) (*LorebookEntry, error) {
	return s.driver.CreateLorebookEntry(ctx, create)
}

func (s *Store) ListLorebookEntries(ctx context.Context, lorebookID int32) ([]*LorebookEntry, error) {
	return s.driver.ListLorebookEntries(ctx, lorebookID)
}

func (s *Store) DeleteLorebookEntry(ctx context.Context, id int32) error {
	return s.driver.DeleteLorebookEntry(ctx, id)
}
