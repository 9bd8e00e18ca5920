package engine

import (
	"context"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/parleyhq/parley/plugin/llm"
	"github.com/parleyhq/parley/plugin/reasoning"
	"github.com/parleyhq/parley/server/broker"
	"github.com/parleyhq/parley/store"
)

// Outcome is the terminal state of one generation session.
type Outcome int

const (
	// OutcomeCompleted: the reply finished normally.
	OutcomeCompleted Outcome = iota
	// OutcomePaused: the generation handed off into the tool-call protocol
	// and is waiting for an external executor.
	OutcomePaused
	// OutcomeAborted: a cancel request terminated the stream.
	OutcomeAborted
	// OutcomeSuperseded: another writer finalized the message first; this
	// session stopped without overwriting it.
	OutcomeSuperseded
	// OutcomeFailed: the backend or persistence failed.
	OutcomeFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeCompleted:
		return "completed"
	case OutcomePaused:
		return "paused"
	case OutcomeAborted:
		return "aborted"
	case OutcomeSuperseded:
		return "superseded"
	default:
		return "failed"
	}
}

// Stream-stopping sentinels for the per-increment callback.
var (
	errHandOff  = errors.New("tool-call hand-off detected")
	errOverrun  = errors.New("message finalized by another writer")
	errVanished = errors.New("message row vanished mid-generation")
)

// runSession executes exactly one generation call end-to-end for one message
// slot. Whatever happens, the session leaves the registry and the message
// reaches a terminal persisted state; a stuck generating flag is a bug, not
// degraded behavior.
func (e *Engine) runSession(ctx context.Context, chat *store.Chat, msg *store.ChatMessage, req *llm.Request) (Outcome, error) {
	// A slot claimed via BeginGeneration already carries its correlation id;
	// registering under the same id swaps the placeholder for the live
	// cancel handle.
	generationID := msg.GenerationID
	if generationID == "" {
		generationID = uuid.New().String()
	}

	// A resumed generation already carries finalized reasoning metadata and
	// must not re-enter hand-off detection.
	resumed := msg.Metadata.Reasoning != nil
	detect := chat.ChatType == store.ChatTypeAssistant && !resumed

	sctx, cancel := context.WithCancel(ctx)
	defer cancel()
	// Registered before the row is marked so no observer can ever see a
	// generating message without a live registry entry.
	e.registry.register(&liveSession{id: generationID, chatID: chat.ID, messageID: msg.ID, cancel: cancel})
	defer e.registry.remove(generationID)

	msg.Content = ""
	msg.IsGenerating = true
	msg.GenerationID = generationID
	generating := true
	if _, _, err := e.store.UpdateChatMessage(ctx, &store.UpdateChatMessage{
		ID:           msg.ID,
		Content:      &msg.Content,
		IsGenerating: &generating,
		GenerationID: &generationID,
		Metadata:     &msg.Metadata,
	}); err != nil {
		return OutcomeFailed, errors.Wrap(err, "mark message generating")
	}
	e.broadcastMessage(chat, msg)

	slog.Info("[GEN START]", "chat", chat.UID, "message", msg.ID, "generation", generationID)

	completion, err := e.provider.Generate(sctx, req)
	if err != nil {
		// An honored abort surfaces here too when the backend call was
		// still in flight; that is a cancellation, not a failure.
		if sctx.Err() != nil || errors.Is(err, context.Canceled) {
			return e.finishAborted(ctx, chat, msg, generationID, "")
		}
		return e.finishFailed(ctx, chat, msg, errors.Wrap(err, "backend generate"))
	}

	var accumulated strings.Builder
	var detected *reasoning.Parsed

	if completion.Stream != nil {
		streamErr := completion.Stream(sctx, func(delta string) error {
			accumulated.WriteString(delta)
			text := stripSpeakerPrefix(accumulated.String(), req.SpeakerName)
			if detect {
				if parsed := reasoning.Parse(text); parsed != nil {
					detected = parsed
					return errHandOff
				}
			}
			return e.persistIncrement(ctx, chat, msg, text)
		})
		switch {
		case streamErr == nil || errors.Is(streamErr, errHandOff):
		case errors.Is(streamErr, errOverrun):
			return OutcomeSuperseded, nil
		case errors.Is(streamErr, errVanished):
			return OutcomeFailed, streamErr
		case errors.Is(streamErr, context.Canceled) || sctx.Err() != nil:
			return e.finishAborted(ctx, chat, msg, generationID, stripSpeakerPrefix(accumulated.String(), req.SpeakerName))
		default:
			return e.finishFailed(ctx, chat, msg, errors.Wrap(streamErr, "backend stream"))
		}
	} else {
		accumulated.WriteString(completion.Text)
		if detect {
			detected = reasoning.Parse(stripSpeakerPrefix(completion.Text, req.SpeakerName))
		}
	}

	if detected != nil {
		return e.finishHandOff(ctx, chat, msg, detected)
	}
	return e.finishCompleted(ctx, chat, msg, stripSpeakerPrefix(accumulated.String(), req.SpeakerName))
}

// persistIncrement stores and broadcasts one streamed increment. A transient
// persistence failure is logged and streaming continues; a row that is no
// longer generating stops the stream via a sentinel instead.
func (e *Engine) persistIncrement(ctx context.Context, chat *store.Chat, msg *store.ChatMessage, text string) error {
	applyIncrement(msg, text)
	row, updated, err := e.store.UpdateChatMessage(ctx, &store.UpdateChatMessage{
		ID:               msg.ID,
		Content:          &msg.Content,
		Metadata:         &msg.Metadata,
		ExpectGenerating: true,
	})
	if err != nil {
		slog.Warn("failed to persist generation increment", "message", msg.ID, "err", err)
		return nil
	}
	if !updated {
		if row == nil {
			return errVanished
		}
		// Someone else finished this slot; show observers their row.
		e.broadcastMessage(chat, row)
		return errOverrun
	}
	e.broadcastMessage(chat, msg)
	return nil
}

func (e *Engine) finishCompleted(ctx context.Context, chat *store.Chat, msg *store.ChatMessage, text string) (Outcome, error) {
	applyIncrement(msg, text)
	row, updated, err := e.finalize(ctx, msg, true)
	if err != nil {
		return OutcomeFailed, errors.Wrap(err, "finalize message")
	}
	if !updated {
		if row != nil {
			e.broadcastMessage(chat, row)
		}
		return OutcomeSuperseded, nil
	}
	e.broadcastMessage(chat, row)
	slog.Info("[GEN DONE]", "chat", chat.UID, "message", msg.ID, "chars", len(text))
	return OutcomeCompleted, nil
}

// finishHandOff persists the paused state and emits a distinguishable event
// carrying the parsed calls so an external executor can run them and resume
// the conversation later. The in-progress content is discarded on purpose.
func (e *Engine) finishHandOff(ctx context.Context, chat *store.Chat, msg *store.ChatMessage, parsed *reasoning.Parsed) (Outcome, error) {
	applyIncrement(msg, "")
	msg.Metadata.Reasoning = &store.ReasoningPause{
		Reasoning:                   parsed.Reasoning,
		WaitingForFunctionSelection: true,
	}
	row, updated, err := e.finalize(ctx, msg, true)
	if err != nil {
		return OutcomeFailed, errors.Wrap(err, "persist hand-off")
	}
	if !updated {
		if row != nil {
			e.broadcastMessage(chat, row)
		}
		return OutcomeSuperseded, nil
	}
	e.broadcastMessage(chat, row)
	e.broker.Publish(broker.Event{
		Type:    broker.EventFunctionSelection,
		ChatUID: chat.UID,
		Payload: map[string]any{
			"messageId":     msg.ID,
			"reasoning":     parsed.Reasoning,
			"functionCalls": parsed.Calls,
		},
	})
	slog.Info("[GEN HANDOFF]", "chat", chat.UID, "message", msg.ID, "calls", len(parsed.Calls))
	return OutcomePaused, nil
}

// finishAborted settles the message with whatever had accumulated and
// acknowledges the cancellation to observers.
func (e *Engine) finishAborted(ctx context.Context, chat *store.Chat, msg *store.ChatMessage, generationID, text string) (Outcome, error) {
	applyIncrement(msg, text)
	row, _, err := e.finalize(ctx, msg, true)
	if err != nil {
		return OutcomeFailed, errors.Wrap(err, "finalize aborted message")
	}
	if row != nil {
		e.broadcastMessage(chat, row)
	}
	e.broker.Publish(broker.Event{
		Type:    broker.EventGenerationCancelled,
		ChatUID: chat.UID,
		Payload: map[string]any{"messageId": msg.ID, "generationId": generationID},
	})
	slog.Info("[GEN ABORT]", "chat", chat.UID, "message", msg.ID)
	return OutcomeAborted, nil
}

// finishFailed resolves the generating flag without touching content beyond
// what increments already persisted, and surfaces the failure to observers.
func (e *Engine) finishFailed(ctx context.Context, chat *store.Chat, msg *store.ChatMessage, cause error) (Outcome, error) {
	generating := false
	clear := ""
	row, _, err := e.store.UpdateChatMessage(ctx, &store.UpdateChatMessage{
		ID:               msg.ID,
		IsGenerating:     &generating,
		GenerationID:     &clear,
		ExpectGenerating: true,
	})
	if err != nil {
		slog.Error("failed to resolve generating flag after error", "message", msg.ID, "err", err)
	}
	if row != nil {
		e.broadcastMessage(chat, row)
	}
	e.broker.Publish(broker.Event{
		Type:    broker.EventGenerationFailed,
		ChatUID: chat.UID,
		Payload: map[string]any{"messageId": msg.ID, "error": cause.Error()},
	})
	slog.Warn("[GEN FAIL]", "chat", chat.UID, "message", msg.ID, "err", cause)
	return OutcomeFailed, cause
}

// finalize writes the message's terminal state, optionally guarded on the
// row still being marked generating.
func (e *Engine) finalize(ctx context.Context, msg *store.ChatMessage, expectGenerating bool) (*store.ChatMessage, bool, error) {
	generating := false
	clear := ""
	msg.IsGenerating = false
	msg.GenerationID = ""
	return e.store.UpdateChatMessage(ctx, &store.UpdateChatMessage{
		ID:               msg.ID,
		Content:          &msg.Content,
		IsGenerating:     &generating,
		GenerationID:     &clear,
		Metadata:         &msg.Metadata,
		ExpectGenerating: expectGenerating,
	})
}

// stripSpeakerPrefix drops a leading "Name:" the model sometimes insists on
// echoing despite instructions.
func stripSpeakerPrefix(text, name string) string {
	if name == "" {
		return text
	}
	trimmed := strings.TrimLeft(text, " \t\n")
	if rest, ok := strings.CutPrefix(trimmed, name+":"); ok {
		return strings.TrimLeft(rest, " ")
	}
	return text
}
