package engine

import (
	"github.com/parleyhq/parley/server/broker"
	"github.com/parleyhq/parley/store"
)

// MessageEvent is the wire shape of a message row carried on
// message_updated broadcasts.
type MessageEvent struct {
	ID           int32                 `json:"id"`
	ChatUID      string                `json:"chatUid"`
	Role         store.Role            `json:"role"`
	CharacterID  *int32                `json:"characterId,omitempty"`
	PersonaID    *int32                `json:"personaId,omitempty"`
	Content      string                `json:"content"`
	IsGenerating bool                  `json:"isGenerating"`
	GenerationID string                `json:"generationId,omitempty"`
	IsHidden     bool                  `json:"isHidden,omitempty"`
	Metadata     store.MessageMetadata `json:"metadata"`
	CreatedTs    int64                 `json:"createdTs"`
	UpdatedTs    int64                 `json:"updatedTs"`
}

// NewMessageEvent converts a stored row to its broadcast shape.
func NewMessageEvent(chat *store.Chat, msg *store.ChatMessage) MessageEvent {
	return MessageEvent{
		ID:           msg.ID,
		ChatUID:      chat.UID,
		Role:         msg.Role,
		CharacterID:  msg.CharacterID,
		PersonaID:    msg.PersonaID,
		Content:      msg.Content,
		IsGenerating: msg.IsGenerating,
		GenerationID: msg.GenerationID,
		IsHidden:     msg.IsHidden,
		Metadata:     msg.Metadata,
		CreatedTs:    msg.CreatedTs,
		UpdatedTs:    msg.UpdatedTs,
	}
}

func (e *Engine) broadcastMessage(chat *store.Chat, msg *store.ChatMessage) {
	e.broker.Publish(broker.Event{
		Type:    broker.EventMessageUpdated,
		ChatUID: chat.UID,
		Payload: NewMessageEvent(chat, msg),
	})
}
