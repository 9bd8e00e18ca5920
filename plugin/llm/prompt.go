package llm

import (
	"fmt"
	"strings"

	"github.com/parleyhq/parley/store"
)

// PromptContext is everything needed to assemble a Request for one speaker.
type PromptContext struct {
	Chat       *store.Chat
	Speaker    *store.Character
	Characters map[int32]*store.Character
	Personas   map[int32]*store.Persona
	History    []*store.ChatMessage
	// Lore holds lorebook snippets already selected for this turn.
	Lore []string
}

// BuildRequest assembles the prompt for one generation call. Multi-party
// turns are flattened into the OpenAI chat shape by prefixing every turn
// with its speaker's display name; the model is primed to answer as the
// target character, whose own past replies keep the assistant role.
func BuildRequest(pc *PromptContext, stream bool) *Request {
	var sb strings.Builder
	fmt.Fprintf(&sb, "You are %s in a group chat.\n\n%s", pc.Speaker.Name, pc.Speaker.Description)
	if len(pc.Lore) > 0 {
		sb.WriteString("\n\nWorld information:\n")
		for _, snippet := range pc.Lore {
			sb.WriteString("- " + snippet + "\n")
		}
	}
	if pc.Chat.ChatType == store.ChatTypeAssistant {
		sb.WriteString("\n\nWhen the user asks you to act rather than chat, reply with exactly:\n" +
			`{reasoning: "<why>", functions?: [name(arg: "value")]}` + "\n" +
			"and nothing else. Otherwise reply in plain text.")
	}
	fmt.Fprintf(&sb, "\n\nStay in character. Reply only as %s and do not prefix your reply with your name.", pc.Speaker.Name)

	req := &Request{
		System:      sb.String(),
		SpeakerName: pc.Speaker.Name,
		Stream:      stream,
	}
	for _, msg := range pc.History {
		if msg.IsHidden || msg.IsGenerating || msg.Content == "" {
			continue
		}
		req.Messages = append(req.Messages, promptMessage(pc, msg))
	}
	return req
}

func promptMessage(pc *PromptContext, msg *store.ChatMessage) Message {
	name := speakerName(pc, msg)
	switch {
	case msg.Role == store.RoleAssistant && msg.CharacterID != nil && *msg.CharacterID == pc.Speaker.ID:
		return Message{Role: "assistant", Content: msg.Content}
	case msg.Role == store.RoleAssistant:
		// Another character's line; present it as user input so the model
		// does not confuse it with its own voice.
		return Message{Role: "user", Content: name + ": " + msg.Content}
	default:
		return Message{Role: "user", Content: name + ": " + msg.Content}
	}
}

func speakerName(pc *PromptContext, msg *store.ChatMessage) string {
	if msg.CharacterID != nil {
		if ch, ok := pc.Characters[*msg.CharacterID]; ok {
			return ch.Name
		}
	}
	if msg.PersonaID != nil {
		if persona, ok := pc.Personas[*msg.PersonaID]; ok {
			return persona.Name
		}
	}
	return string(msg.Role)
}
