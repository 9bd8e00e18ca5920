package store

// ChatType distinguishes an ordinary roleplay chat from an assistant chat.
// Assistant chats enable the reasoning-format hand-off during generation.
type ChatType string

const (
	ChatTypeNormal    ChatType = "normal"
	ChatTypeAssistant ChatType = "assistant"
)

// Chat represents a single conversation shared by characters and personas.
type Chat struct {
	ID            int32
	UID           string
	Title         string
	ChatType      ChatType
	ReplyStrategy string // multi-character turn strategy, e.g. "round_robin"
	CreatedTs     int64
	UpdatedTs     int64
}

// ChatCharacter links a character into a chat with a stable speaking order.
type ChatCharacter struct {
	ChatID      int32
	CharacterID int32
	Position    int32
	IsActive    bool
}

// ChatPersona links a human persona into a chat.
type ChatPersona struct {
	ChatID    int32
	PersonaID int32
	Position  int32
}

// FindChat filters for ListChats / GetChat.
type FindChat struct {
	ID  *int32
	UID *string
}

// UpdateChat carries fields accepted by UpdateChat.
type UpdateChat struct {
	UID           string
	Title         *string
	ChatType      *ChatType
	ReplyStrategy *string
}
