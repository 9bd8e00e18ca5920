package store

import "context"

// Driver is the storage backend contract. Each SQL driver owns its schema
// migration and raw queries; everything above operates on the typed structs.
type Driver interface {
	EnsureTables(ctx context.Context) error
	Close() error

	CreateCharacter(ctx context.Context, create *Character) (*Character, error)
	ListCharacters(ctx context.Context, find *FindCharacter) ([]*Character, error)
	UpdateCharacter(ctx context.Context, update *UpdateCharacter) (*Character, error)
	DeleteCharacter(ctx context.Context, uid string) error

	CreatePersona(ctx context.Context, create *Persona) (*Persona, error)
	ListPersonas(ctx context.Context, find *FindPersona) ([]*Persona, error)
	UpdatePersona(ctx context.Context, update *UpdatePersona) (*Persona, error)
	DeletePersona(ctx context.Context, uid string) error

	CreateChat(ctx context.Context, create *Chat) (*Chat, error)
	ListChats(ctx context.Context, find *FindChat) ([]*Chat, error)
	UpdateChat(ctx context.Context, update *UpdateChat) (*Chat, error)
	DeleteChat(ctx context.Context, uid string) error

	UpsertChatCharacter(ctx context.Context, upsert *ChatCharacter) error
	ListChatCharacters(ctx context.Context, chatID int32) ([]*ChatCharacter, error)
	UpsertChatPersona(ctx context.Context, upsert *ChatPersona) error
	ListChatPersonas(ctx context.Context, chatID int32) ([]*ChatPersona, error)

	CreateChatMessage(ctx context.Context, create *ChatMessage) (*ChatMessage, error)
	ListChatMessages(ctx context.Context, find *FindChatMessage) ([]*ChatMessage, error)
	// UpdateChatMessage applies the update and reports whether any row
	// changed. With ExpectGenerating set, a row already finalized by another
	// writer is left untouched and reported as not updated.
	UpdateChatMessage(ctx context.Context, update *UpdateChatMessage) (bool, error)
	DeleteChatMessage(ctx context.Context, id int32) error

	CreateConnectionProfile(ctx context.Context, create *ConnectionProfile) (*ConnectionProfile, error)
	ListConnectionProfiles(ctx context.Context, find *FindConnectionProfile) ([]*ConnectionProfile, error)
	UpdateConnectionProfile(ctx context.Context, update *UpdateConnectionProfile) (*ConnectionProfile, error)
	DeleteConnectionProfile(ctx context.Context, uid string) error

	CreateLorebook(ctx context.Context, create *Lorebook) (*Lorebook, error)
	ListLorebooks(ctx context.Context, find *FindLorebook) ([]*Lorebook, error)
	DeleteLorebook(ctx context.Context, uid string) error
	CreateLorebookEntry(ctx context.Context, create *LorebookEntry) (*LorebookEntry, error)
	ListLorebookEntries(ctx context.Context, lorebookID int32) ([]*LorebookEntry, error)
	DeleteLorebookEntry(ctx context.Context, id int32) error
}
