package engine

import (
	"context"
	"log/slog"

	"github.com/pkg/errors"

	"github.com/parleyhq/parley/plugin/llm"
	"github.com/parleyhq/parley/store"
)

// TurnOptions controls one RunTurn invocation.
type TurnOptions struct {
	// CharacterUID explicitly targets the first reply instead of asking the
	// scheduler.
	CharacterUID string
	// Once stops after the first completed session.
	Once bool
	// Triggered marks an out-of-rotation, event-driven request.
	Triggered bool
}

// ErrChatNotFound is returned when the chat uid does not resolve.
var ErrChatNotFound = errors.New("chat not found")

// RunTurn drives a bounded sequence of generation sessions for one chat
// turn: ask the scheduler who speaks, create the placeholder reply, run a
// session for it, and repeat until the rotation completes, a stop condition
// fires, or the iteration cap is reached.
func (e *Engine) RunTurn(ctx context.Context, chatUID string, opts TurnOptions) error {
	for turn := 0; turn < e.maxTurns; turn++ {
		chat, err := e.store.GetChat(ctx, &store.FindChat{UID: &chatUID})
		if err != nil {
			return errors.Wrap(err, "load chat")
		}
		if chat == nil {
			return ErrChatNotFound
		}
		history, err := e.store.ListChatMessages(ctx, &store.FindChatMessage{ChatID: &chat.ID})
		if err != nil {
			return errors.Wrap(err, "load history")
		}
		e.reconcileOrphans(ctx, chat, history)
		if anyGenerating(history) {
			slog.Info("generation already in flight, not starting another", "chat", chat.UID)
			return nil
		}
		participants, err := e.store.ListChatCharacters(ctx, chat.ID)
		if err != nil {
			return errors.Wrap(err, "load chat characters")
		}
		personas, err := e.store.ListChatPersonas(ctx, chat.ID)
		if err != nil {
			return errors.Wrap(err, "load chat personas")
		}

		var speakerID int32
		if turn == 0 && opts.CharacterUID != "" {
			target, err := e.store.GetCharacter(ctx, &store.FindCharacter{UID: &opts.CharacterUID})
			if err != nil {
				return errors.Wrap(err, "load target character")
			}
			if target == nil {
				return errors.Errorf("character %q not found", opts.CharacterUID)
			}
			speakerID = target.ID
		} else {
			var ok bool
			speakerID, ok = e.policy(history, participants, personas, ScheduleOptions{Triggered: opts.Triggered})
			if !ok {
				// Rotation complete or no eligible character; a normal stop.
				return nil
			}
		}

		if opts.Triggered && !opts.Once {
			// A triggered reply on top of a complete rotation must stay
			// single-shot so it cannot cascade into an unbounded exchange.
			if _, ok := e.policy(history, participants, personas, ScheduleOptions{}); !ok {
				opts.Once = true
			}
		}

		speaker, err := e.store.GetCharacter(ctx, &store.FindCharacter{ID: &speakerID})
		if err != nil {
			return errors.Wrap(err, "load speaker")
		}
		if speaker == nil {
			return errors.Errorf("character %d not found", speakerID)
		}

		msg, err := e.store.CreateChatMessage(ctx, &store.ChatMessage{
			ChatID:      chat.ID,
			Role:        store.RoleAssistant,
			CharacterID: &speaker.ID,
		})
		if err != nil {
			return errors.Wrap(err, "create placeholder message")
		}
		e.broadcastMessage(chat, msg)

		req, err := e.buildRequest(ctx, chat, speaker, history)
		if err != nil {
			return err
		}
		outcome, err := e.runSession(ctx, chat, msg, req)
		if err != nil {
			return err
		}
		switch outcome {
		case OutcomeAborted, OutcomePaused, OutcomeSuperseded:
			return nil
		}
		if opts.Once {
			return nil
		}
	}
	slog.Warn("turn iteration cap reached", "chat", chatUID, "cap", e.maxTurns)
	return nil
}

// GenerateInto runs one generation session for an existing message slot.
// Swipe-right past the end, regenerate, and resume-after-function-selection
// all land here.
func (e *Engine) GenerateInto(ctx context.Context, messageID int32) error {
	msg, err := e.store.GetChatMessage(ctx, messageID)
	if err != nil {
		return errors.Wrap(err, "load message")
	}
	if msg == nil {
		return errors.Errorf("message %d not found", messageID)
	}
	if msg.CharacterID == nil {
		return errors.New("only character messages can be generated")
	}
	// A slot claimed via BeginGeneration must not leave its placeholder
	// registry entry behind when the session never starts. Removal is
	// idempotent, so this is a no-op on the normal path where runSession
	// adopts the id and removes it itself.
	if claimed := msg.GenerationID; claimed != "" {
		defer e.registry.remove(claimed)
	}
	chat, err := e.store.GetChat(ctx, &store.FindChat{ID: &msg.ChatID})
	if err != nil {
		return errors.Wrap(err, "load chat")
	}
	if chat == nil {
		return ErrChatNotFound
	}
	speaker, err := e.store.GetCharacter(ctx, &store.FindCharacter{ID: msg.CharacterID})
	if err != nil || speaker == nil {
		return errors.Wrap(err, "load speaker")
	}
	history, err := e.store.ListChatMessages(ctx, &store.FindChatMessage{ChatID: &chat.ID})
	if err != nil {
		return errors.Wrap(err, "load history")
	}
	// The target slot itself is excluded from its own prompt.
	prompt := make([]*store.ChatMessage, 0, len(history))
	for _, m := range history {
		if m.ID != msg.ID {
			prompt = append(prompt, m)
		}
	}
	req, err := e.buildRequest(ctx, chat, speaker, prompt)
	if err != nil {
		return err
	}
	// Resuming after tool execution: surface the recorded rationale and
	// outcome to the model, since the paused slot itself carries no content.
	if pause := msg.Metadata.Reasoning; pause != nil && pause.FunctionResult != "" {
		req.Messages = append(req.Messages,
			llm.Message{Role: "assistant", Content: pause.Reasoning},
			llm.Message{Role: "user", Content: "Function result: " + pause.FunctionResult},
		)
	}
	_, err = e.runSession(ctx, chat, msg, req)
	return err
}

// buildRequest assembles the prompt context for one speaker.
func (e *Engine) buildRequest(ctx context.Context, chat *store.Chat, speaker *store.Character, history []*store.ChatMessage) (*llm.Request, error) {
	characters, err := e.store.ListCharacters(ctx, &store.FindCharacter{})
	if err != nil {
		return nil, errors.Wrap(err, "load characters")
	}
	personas, err := e.store.ListPersonas(ctx, &store.FindPersona{})
	if err != nil {
		return nil, errors.Wrap(err, "load personas")
	}
	charsByID := make(map[int32]*store.Character, len(characters))
	for _, c := range characters {
		charsByID[c.ID] = c
	}
	personasByID := make(map[int32]*store.Persona, len(personas))
	for _, p := range personas {
		personasByID[p.ID] = p
	}

	var lore []string
	if e.lore != nil {
		if query := latestVisibleContent(history); query != "" {
			lore, err = e.lore.Search(ctx, query, 4)
			if err != nil {
				slog.Warn("lore retrieval failed", "chat", chat.UID, "err", err)
				lore = nil
			}
		}
	}

	return llm.BuildRequest(&llm.PromptContext{
		Chat:       chat,
		Speaker:    speaker,
		Characters: charsByID,
		Personas:   personasByID,
		History:    history,
		Lore:       lore,
	}, true), nil
}

// reconcileOrphans finalizes rows left generating by a crashed or restarted
// process: a generating message with no live registry entry is settled in
// place rather than assumed active.
func (e *Engine) reconcileOrphans(ctx context.Context, chat *store.Chat, history []*store.ChatMessage) {
	for _, m := range history {
		if !m.IsGenerating || e.registry.Has(m.GenerationID) {
			continue
		}
		slog.Warn("reconciling orphaned generating message", "chat", chat.UID, "message", m.ID)
		row, _, err := e.finalize(ctx, m, true)
		if err != nil {
			slog.Error("failed to reconcile orphaned message", "message", m.ID, "err", err)
			continue
		}
		if row != nil {
			*m = *row
			e.broadcastMessage(chat, m)
		}
	}
}

func anyGenerating(history []*store.ChatMessage) bool {
	for _, m := range history {
		if m.IsGenerating {
			return true
		}
	}
	return false
}

func latestVisibleContent(history []*store.ChatMessage) string {
	for i := len(history) - 1; i >= 0; i-- {
		if m := history[i]; !m.IsHidden && m.Content != "" {
			return m.Content
		}
	}
	return ""
}
