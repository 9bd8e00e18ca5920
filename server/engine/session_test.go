package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/parleyhq/parley/plugin/llm"
	"github.com/parleyhq/parley/server/broker"
	"github.com/parleyhq/parley/store"
)

func drainEvents(ch <-chan broker.Event) []broker.Event {
	var events []broker.Event
	for {
		select {
		case evt := <-ch:
			events = append(events, evt)
		default:
			return events
		}
	}
}

func eventTypes(events []broker.Event) []broker.EventType {
	types := make([]broker.EventType, 0, len(events))
	for _, evt := range events {
		types = append(types, evt.Type)
	}
	return types
}

func (te *testEngine) placeholder(ctx context.Context, chat *store.Chat, speaker *store.Character) *store.ChatMessage {
	msg, _ := te.store.CreateChatMessage(ctx, &store.ChatMessage{
		ChatID:      chat.ID,
		Role:        store.RoleAssistant,
		CharacterID: &speaker.ID,
	})
	return msg
}

func TestRunSessionCompletedStream(t *testing.T) {
	ctx := context.Background()
	te := newTestEngine()
	chat, chars := te.seedChat(ctx, store.ChatTypeNormal, "Ava")
	msg := te.placeholder(ctx, chat, chars[0])

	events, unsubscribe := te.broker.Subscribe(chat.UID)
	defer unsubscribe()

	te.provider.completions = []*llm.Completion{streamOf("Hel", "lo ", "there!")}
	outcome, err := te.engine.runSession(ctx, chat, msg, &llm.Request{SpeakerName: "Ava", Stream: true})
	require.NoError(t, err)
	require.Equal(t, OutcomeCompleted, outcome)

	row, err := te.store.GetChatMessage(ctx, msg.ID)
	require.NoError(t, err)
	require.Equal(t, "Hello there!", row.Content)
	require.False(t, row.IsGenerating)
	require.Empty(t, row.GenerationID, "correlation id is cleared on finalization")
	require.Equal(t, 0, te.registry.CancelByChat(chat.ID), "session left the registry")

	got := drainEvents(events)
	require.NotEmpty(t, got)
	for _, evt := range got {
		require.Equal(t, broker.EventMessageUpdated, evt.Type)
	}
	final := got[len(got)-1].Payload.(MessageEvent)
	require.Equal(t, "Hello there!", final.Content)
	require.False(t, final.IsGenerating)
}

func TestRunSessionStripsSpeakerPrefix(t *testing.T) {
	ctx := context.Background()
	te := newTestEngine()
	chat, chars := te.seedChat(ctx, store.ChatTypeNormal, "Ava")
	msg := te.placeholder(ctx, chat, chars[0])

	te.provider.completions = []*llm.Completion{streamOf("Ava: sure, ", "I can help")}
	outcome, err := te.engine.runSession(ctx, chat, msg, &llm.Request{SpeakerName: "Ava", Stream: true})
	require.NoError(t, err)
	require.Equal(t, OutcomeCompleted, outcome)

	row, _ := te.store.GetChatMessage(ctx, msg.ID)
	require.Equal(t, "sure, I can help", row.Content)
}

func TestRunSessionHandOffInAssistantChat(t *testing.T) {
	ctx := context.Background()
	te := newTestEngine()
	chat, chars := te.seedChat(ctx, store.ChatTypeAssistant, "Helper")
	msg := te.placeholder(ctx, chat, chars[0])

	events, unsubscribe := te.broker.Subscribe(chat.UID)
	defer unsubscribe()

	// The envelope arrives split across deltas; the first increment persists
	// as ordinary partial content before detection fires on the second.
	te.provider.completions = []*llm.Completion{
		streamOf(`{reasoning: "need the forecast", `, `functions: [get_weather(city: "Oslo")]}`),
	}
	outcome, err := te.engine.runSession(ctx, chat, msg, &llm.Request{SpeakerName: "Helper", Stream: true})
	require.NoError(t, err)
	require.Equal(t, OutcomePaused, outcome)

	row, _ := te.store.GetChatMessage(ctx, msg.ID)
	require.Equal(t, "", row.Content, "hand-off discards in-progress content")
	require.False(t, row.IsGenerating)
	require.NotNil(t, row.Metadata.Reasoning)
	require.Equal(t, "need the forecast", row.Metadata.Reasoning.Reasoning)
	require.True(t, row.Metadata.Reasoning.WaitingForFunctionSelection)

	types := eventTypes(drainEvents(events))
	require.Contains(t, types, broker.EventFunctionSelection)
}

func TestRunSessionNoDetectionInNormalChat(t *testing.T) {
	ctx := context.Background()
	te := newTestEngine()
	chat, chars := te.seedChat(ctx, store.ChatTypeNormal, "Ava")
	msg := te.placeholder(ctx, chat, chars[0])

	envelope := `{reasoning: "just text", functions: []}`
	te.provider.completions = []*llm.Completion{streamOf(envelope)}
	outcome, err := te.engine.runSession(ctx, chat, msg, &llm.Request{SpeakerName: "Ava", Stream: true})
	require.NoError(t, err)
	require.Equal(t, OutcomeCompleted, outcome)

	row, _ := te.store.GetChatMessage(ctx, msg.ID)
	require.Equal(t, envelope, row.Content, "normal chats treat the envelope as plain content")
	require.Nil(t, row.Metadata.Reasoning)
}

func TestRunSessionResumedSkipsDetection(t *testing.T) {
	ctx := context.Background()
	te := newTestEngine()
	chat, chars := te.seedChat(ctx, store.ChatTypeAssistant, "Helper")
	msg := te.placeholder(ctx, chat, chars[0])
	msg.Metadata.Reasoning = &store.ReasoningPause{Reasoning: "earlier rationale", FunctionResult: "42"}

	envelope := `{reasoning: "should not re-trigger"}`
	te.provider.completions = []*llm.Completion{streamOf(envelope)}
	outcome, err := te.engine.runSession(ctx, chat, msg, &llm.Request{SpeakerName: "Helper", Stream: true})
	require.NoError(t, err)
	require.Equal(t, OutcomeCompleted, outcome)

	row, _ := te.store.GetChatMessage(ctx, msg.ID)
	require.Equal(t, envelope, row.Content)
}

func TestRunSessionCancelledMidStream(t *testing.T) {
	ctx := context.Background()
	te := newTestEngine()
	chat, chars := te.seedChat(ctx, store.ChatTypeNormal, "Ava")
	msg := te.placeholder(ctx, chat, chars[0])

	events, unsubscribe := te.broker.Subscribe(chat.UID)
	defer unsubscribe()

	te.provider.completions = []*llm.Completion{{
		Stream: func(sctx context.Context, onDelta func(string) error) error {
			if err := onDelta("partial reply"); err != nil {
				return err
			}
			require.Equal(t, 1, te.registry.CancelByChat(chat.ID))
			<-sctx.Done()
			return sctx.Err()
		},
	}}
	outcome, err := te.engine.runSession(ctx, chat, msg, &llm.Request{SpeakerName: "Ava", Stream: true})
	require.NoError(t, err)
	require.Equal(t, OutcomeAborted, outcome)

	row, _ := te.store.GetChatMessage(ctx, msg.ID)
	require.Equal(t, "partial reply", row.Content, "accumulated text survives the abort")
	require.False(t, row.IsGenerating)
	require.Empty(t, row.GenerationID)
	require.Equal(t, 0, te.registry.CancelByChat(chat.ID), "session left the registry")

	types := eventTypes(drainEvents(events))
	require.Contains(t, types, broker.EventGenerationCancelled)
}

func TestRunSessionSupersededByConcurrentFinalizer(t *testing.T) {
	ctx := context.Background()
	te := newTestEngine()
	chat, chars := te.seedChat(ctx, store.ChatTypeNormal, "Ava")
	msg := te.placeholder(ctx, chat, chars[0])

	winner := "the winner's reply"
	notGenerating := false
	te.provider.completions = []*llm.Completion{{
		Stream: func(_ context.Context, onDelta func(string) error) error {
			if err := onDelta("first increment"); err != nil {
				return err
			}
			// Another writer settles the slot between increments.
			_, err := te.driver.UpdateChatMessage(ctx, &store.UpdateChatMessage{
				ID:           msg.ID,
				Content:      &winner,
				IsGenerating: &notGenerating,
			})
			require.NoError(t, err)
			return onDelta("first increment plus more")
		},
	}}
	outcome, err := te.engine.runSession(ctx, chat, msg, &llm.Request{SpeakerName: "Ava", Stream: true})
	require.NoError(t, err)
	require.Equal(t, OutcomeSuperseded, outcome)

	row, _ := te.store.GetChatMessage(ctx, msg.ID)
	require.Equal(t, winner, row.Content, "the losing stream must not overwrite the winner")
	require.False(t, row.IsGenerating)
}

type providerFunc func(ctx context.Context, req *llm.Request) (*llm.Completion, error)

func (f providerFunc) Generate(ctx context.Context, req *llm.Request) (*llm.Completion, error) {
	return f(ctx, req)
}

func TestRunSessionCancelledDuringBackendCall(t *testing.T) {
	ctx := context.Background()
	te := newTestEngine()
	chat, chars := te.seedChat(ctx, store.ChatTypeNormal, "Ava")
	msg := te.placeholder(ctx, chat, chars[0])

	events, unsubscribe := te.broker.Subscribe(chat.UID)
	defer unsubscribe()

	blocking := providerFunc(func(gctx context.Context, _ *llm.Request) (*llm.Completion, error) {
		require.Equal(t, 1, te.registry.CancelByChat(chat.ID))
		<-gctx.Done()
		return nil, gctx.Err()
	})
	eng := New(te.store, te.registry, te.broker, blocking)

	outcome, err := eng.runSession(ctx, chat, msg, &llm.Request{SpeakerName: "Ava"})
	require.NoError(t, err, "an honored abort is not a failure")
	require.Equal(t, OutcomeAborted, outcome)

	row, _ := te.store.GetChatMessage(ctx, msg.ID)
	require.False(t, row.IsGenerating)
	require.Empty(t, row.GenerationID)

	types := eventTypes(drainEvents(events))
	require.Contains(t, types, broker.EventGenerationCancelled)
	require.NotContains(t, types, broker.EventGenerationFailed)
}

func TestRunSessionNonStreamingCompletion(t *testing.T) {
	ctx := context.Background()
	te := newTestEngine()
	chat, chars := te.seedChat(ctx, store.ChatTypeNormal, "Ava")
	msg := te.placeholder(ctx, chat, chars[0])

	te.provider.completions = []*llm.Completion{{Text: "one-shot reply"}}
	outcome, err := te.engine.runSession(ctx, chat, msg, &llm.Request{SpeakerName: "Ava"})
	require.NoError(t, err)
	require.Equal(t, OutcomeCompleted, outcome)

	row, _ := te.store.GetChatMessage(ctx, msg.ID)
	require.Equal(t, "one-shot reply", row.Content)
	require.False(t, row.IsGenerating)
}

func TestRunSessionKeepsSwipeSlotInStep(t *testing.T) {
	ctx := context.Background()
	te := newTestEngine()
	chat, chars := te.seedChat(ctx, store.ChatTypeNormal, "Ava")
	msg := te.placeholder(ctx, chat, chars[0])
	msg.Content = "original"
	require.True(t, SwipeRight(msg))
	generating := true
	_, _, err := te.store.UpdateChatMessage(ctx, &store.UpdateChatMessage{
		ID:           msg.ID,
		Content:      &msg.Content,
		IsGenerating: &generating,
		Metadata:     &msg.Metadata,
	})
	require.NoError(t, err)

	te.provider.completions = []*llm.Completion{streamOf("an alternative")}
	outcome, err := te.engine.runSession(ctx, chat, msg, &llm.Request{SpeakerName: "Ava", Stream: true})
	require.NoError(t, err)
	require.Equal(t, OutcomeCompleted, outcome)

	row, _ := te.store.GetChatMessage(ctx, msg.ID)
	require.Equal(t, "an alternative", row.Content)
	sw := row.Metadata.Swipes
	require.NotNil(t, sw)
	require.Equal(t, []string{"original", "an alternative"}, sw.History)
	require.Equal(t, 1, *sw.CurrentIdx)
	require.Equal(t, row.Content, sw.History[*sw.CurrentIdx])
}
