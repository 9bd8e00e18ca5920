package store

// Role is the author role of a chat message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// ChatMessage is a single message slot within a chat. Exactly one of
// CharacterID / PersonaID is set, matching the Role.
type ChatMessage struct {
	ID           int32
	ChatID       int32
	Role         Role
	CharacterID  *int32
	PersonaID    *int32
	Content      string
	IsGenerating bool
	// GenerationID correlates the row with a live generation session so a
	// concurrent cancel request can find its abort handle. Empty when no
	// session owns the row.
	GenerationID string
	IsHidden     bool
	Metadata     MessageMetadata
	CreatedTs    int64
	UpdatedTs    int64
}

// MessageMetadata is the typed view of the per-message metadata column.
// Drivers serialize it to JSON at the storage boundary; everything above the
// driver operates on these fields directly.
type MessageMetadata struct {
	Swipes    *SwipeState     `json:"swipes,omitempty"`
	Reasoning *ReasoningPause `json:"reasoning,omitempty"`
}

// SwipeState is the per-message alternative-response ledger. When CurrentIdx
// is non-nil the message content equals History[*CurrentIdx]. History only
// grows or is traversed; it is never compacted.
type SwipeState struct {
	CurrentIdx *int     `json:"currentIdx"`
	History    []string `json:"history"`
}

// ReasoningPause is recorded when a generation hands off into the tool-call
// protocol instead of producing a chat reply.
type ReasoningPause struct {
	Reasoning                   string `json:"reasoning"`
	WaitingForFunctionSelection bool   `json:"waitingForFunctionSelection"`
	// FunctionResult holds the executor's outcome once selection resolves;
	// the resumed generation reads it from here.
	FunctionResult string `json:"functionResult,omitempty"`
}

// IsEmpty reports whether the metadata would serialize to an empty object.
func (m MessageMetadata) IsEmpty() bool {
	return m.Swipes == nil && m.Reasoning == nil
}

// FindChatMessage filters for ListChatMessages / GetChatMessage.
type FindChatMessage struct {
	ID           *int32
	ChatID       *int32
	IsGenerating *bool
}

// UpdateChatMessage carries fields accepted by UpdateChatMessage.
//
// When ExpectGenerating is true the update only applies while the row is
// still marked generating; a concurrent finalizer winning the race leaves
// the row untouched and the caller is told so.
type UpdateChatMessage struct {
	ID           int32
	Content      *string
	IsGenerating *bool
	// GenerationID set to the empty string clears the column.
	GenerationID *string
	IsHidden     *bool
	Metadata     *MessageMetadata

	ExpectGenerating bool
}
