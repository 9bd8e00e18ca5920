package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/parleyhq/parley/plugin/llm"
	"github.com/parleyhq/parley/store"
)

func (te *testEngine) assistantRows(ctx context.Context, chatID int32) []*store.ChatMessage {
	all, _ := te.store.ListChatMessages(ctx, &store.FindChatMessage{ChatID: &chatID})
	var out []*store.ChatMessage
	for _, m := range all {
		if m.Role == store.RoleAssistant {
			out = append(out, m)
		}
	}
	return out
}

func TestRunTurnRoundRobinRotation(t *testing.T) {
	ctx := context.Background()
	te := newTestEngine()
	chat, chars := te.seedChat(ctx, store.ChatTypeNormal, "Ava", "Ben")

	te.provider.completions = []*llm.Completion{
		streamOf("first reply"),
		streamOf("second reply"),
	}
	require.NoError(t, te.engine.RunTurn(ctx, chat.UID, TurnOptions{}))

	replies := te.assistantRows(ctx, chat.ID)
	require.Len(t, replies, 2, "one reply per active character, then stop")
	require.Equal(t, chars[0].ID, *replies[0].CharacterID)
	require.Equal(t, chars[1].ID, *replies[1].CharacterID)
	require.Equal(t, "first reply", replies[0].Content)
	require.Equal(t, "second reply", replies[1].Content)
	for _, m := range replies {
		require.False(t, m.IsGenerating)
	}

	require.Len(t, te.provider.requests, 2)
	require.Equal(t, "Ava", te.provider.requests[0].SpeakerName)
	require.Equal(t, "Ben", te.provider.requests[1].SpeakerName)
}

func TestRunTurnOnce(t *testing.T) {
	ctx := context.Background()
	te := newTestEngine()
	chat, _ := te.seedChat(ctx, store.ChatTypeNormal, "Ava", "Ben")

	te.provider.completions = []*llm.Completion{streamOf("just one")}
	require.NoError(t, te.engine.RunTurn(ctx, chat.UID, TurnOptions{Once: true}))

	require.Len(t, te.assistantRows(ctx, chat.ID), 1)
}

func TestRunTurnTargetsCharacter(t *testing.T) {
	ctx := context.Background()
	te := newTestEngine()
	chat, chars := te.seedChat(ctx, store.ChatTypeNormal, "Ava", "Ben")

	te.provider.completions = []*llm.Completion{
		streamOf("Ben speaks first"),
		streamOf("then Ava"),
	}
	require.NoError(t, te.engine.RunTurn(ctx, chat.UID, TurnOptions{CharacterUID: chars[1].UID}))

	replies := te.assistantRows(ctx, chat.ID)
	require.Len(t, replies, 2, "the rotation still completes for the remaining character")
	require.Equal(t, chars[1].ID, *replies[0].CharacterID)
	require.Equal(t, chars[0].ID, *replies[1].CharacterID)
}

func TestRunTurnSkipsWhenGenerationInFlight(t *testing.T) {
	ctx := context.Background()
	te := newTestEngine()
	chat, chars := te.seedChat(ctx, store.ChatTypeNormal, "Ava")

	busy, err := te.store.CreateChatMessage(ctx, &store.ChatMessage{
		ChatID:       chat.ID,
		Role:         store.RoleAssistant,
		CharacterID:  &chars[0].ID,
		IsGenerating: true,
		GenerationID: "live-gen",
	})
	require.NoError(t, err)
	te.registry.register(&liveSession{id: "live-gen", chatID: chat.ID, messageID: busy.ID, cancel: func() {}})
	defer te.registry.remove("live-gen")

	require.NoError(t, te.engine.RunTurn(ctx, chat.UID, TurnOptions{}))

	require.Len(t, te.assistantRows(ctx, chat.ID), 1, "no new placeholder while one is in flight")
	require.Empty(t, te.provider.requests)
}

func TestRunTurnReconcilesOrphans(t *testing.T) {
	ctx := context.Background()
	te := newTestEngine()
	chat, chars := te.seedChat(ctx, store.ChatTypeNormal, "Ava", "Ben")

	orphan, err := te.store.CreateChatMessage(ctx, &store.ChatMessage{
		ChatID:       chat.ID,
		Role:         store.RoleAssistant,
		CharacterID:  &chars[0].ID,
		Content:      "stranded partial",
		IsGenerating: true,
		GenerationID: "dead-gen",
	})
	require.NoError(t, err)

	te.provider.completions = []*llm.Completion{streamOf("carrying on")}
	require.NoError(t, te.engine.RunTurn(ctx, chat.UID, TurnOptions{}))

	settled, err := te.store.GetChatMessage(ctx, orphan.ID)
	require.NoError(t, err)
	require.False(t, settled.IsGenerating, "a generating row with no live session is settled in place")
	require.Empty(t, settled.GenerationID)
	require.Equal(t, "stranded partial", settled.Content)

	replies := te.assistantRows(ctx, chat.ID)
	require.Len(t, replies, 2, "the turn proceeds once the orphan is settled")
	require.Equal(t, chars[1].ID, *replies[1].CharacterID)
	require.Equal(t, "carrying on", replies[1].Content)
}

func TestRunTurnTriggeredPastCompleteRotation(t *testing.T) {
	ctx := context.Background()
	te := newTestEngine()
	chat, chars := te.seedChat(ctx, store.ChatTypeNormal, "Ava")

	_, err := te.store.CreateChatMessage(ctx, &store.ChatMessage{
		ChatID:      chat.ID,
		Role:        store.RoleAssistant,
		CharacterID: &chars[0].ID,
		Content:     "already replied",
	})
	require.NoError(t, err)

	te.provider.completions = []*llm.Completion{streamOf("one more thing")}
	require.NoError(t, te.engine.RunTurn(ctx, chat.UID, TurnOptions{Triggered: true}))

	replies := te.assistantRows(ctx, chat.ID)
	require.Len(t, replies, 2, "a triggered request past a complete rotation stays single-shot")
	require.Equal(t, "one more thing", replies[1].Content)
}

func TestRunTurnChatNotFound(t *testing.T) {
	te := newTestEngine()
	err := te.engine.RunTurn(context.Background(), "no-such-chat", TurnOptions{})
	require.ErrorIs(t, err, ErrChatNotFound)
}

func TestGenerateIntoStreamsIntoSwipeSlot(t *testing.T) {
	ctx := context.Background()
	te := newTestEngine()
	chat, chars := te.seedChat(ctx, store.ChatTypeNormal, "Ava")

	msg, err := te.store.CreateChatMessage(ctx, &store.ChatMessage{
		ChatID:      chat.ID,
		Role:        store.RoleAssistant,
		CharacterID: &chars[0].ID,
		Content:     "original",
	})
	require.NoError(t, err)
	require.True(t, SwipeRight(msg))
	generating := true
	_, _, err = te.store.UpdateChatMessage(ctx, &store.UpdateChatMessage{
		ID:           msg.ID,
		Content:      &msg.Content,
		IsGenerating: &generating,
		Metadata:     &msg.Metadata,
	})
	require.NoError(t, err)

	te.provider.completions = []*llm.Completion{streamOf("fresh take")}
	require.NoError(t, te.engine.GenerateInto(ctx, msg.ID))

	row, err := te.store.GetChatMessage(ctx, msg.ID)
	require.NoError(t, err)
	require.Equal(t, "fresh take", row.Content)
	require.False(t, row.IsGenerating)
	sw := row.Metadata.Swipes
	require.NotNil(t, sw)
	require.Equal(t, []string{"original", "fresh take"}, sw.History, "the first alternative survives the new generation")
	require.Equal(t, 1, *sw.CurrentIdx)

	// The slot being generated is not part of its own prompt.
	require.Len(t, te.provider.requests, 1)
	for _, m := range te.provider.requests[0].Messages {
		require.NotContains(t, m.Content, "original")
	}
}

func TestGenerateIntoResumesWithFunctionResult(t *testing.T) {
	ctx := context.Background()
	te := newTestEngine()
	chat, chars := te.seedChat(ctx, store.ChatTypeAssistant, "Helper")

	msg, err := te.store.CreateChatMessage(ctx, &store.ChatMessage{
		ChatID:      chat.ID,
		Role:        store.RoleAssistant,
		CharacterID: &chars[0].ID,
		Metadata: store.MessageMetadata{
			Reasoning: &store.ReasoningPause{
				Reasoning:      "need the forecast before answering",
				FunctionResult: "sunny, 21C",
			},
		},
	})
	require.NoError(t, err)

	te.provider.completions = []*llm.Completion{streamOf("It is sunny and 21C out.")}
	require.NoError(t, te.engine.GenerateInto(ctx, msg.ID))

	row, err := te.store.GetChatMessage(ctx, msg.ID)
	require.NoError(t, err)
	require.Equal(t, "It is sunny and 21C out.", row.Content)
	require.False(t, row.IsGenerating)

	require.Len(t, te.provider.requests, 1)
	msgs := te.provider.requests[0].Messages
	require.GreaterOrEqual(t, len(msgs), 2)
	require.Equal(t, llm.Message{Role: "assistant", Content: "need the forecast before answering"}, msgs[len(msgs)-2])
	require.Equal(t, llm.Message{Role: "user", Content: "Function result: sunny, 21C"}, msgs[len(msgs)-1])
}

func TestClaimedSlotSurvivesOrphanReconcile(t *testing.T) {
	ctx := context.Background()
	te := newTestEngine()
	chat, chars := te.seedChat(ctx, store.ChatTypeNormal, "Ava")

	msg, err := te.store.CreateChatMessage(ctx, &store.ChatMessage{
		ChatID:      chat.ID,
		Role:        store.RoleAssistant,
		CharacterID: &chars[0].ID,
		Content:     "original",
	})
	require.NoError(t, err)

	// A swipe handler claims the slot, then persists it generating before
	// its session has started.
	require.True(t, SwipeRight(msg))
	gid := te.engine.BeginGeneration(chat.ID, msg.ID)
	generating := true
	_, _, err = te.store.UpdateChatMessage(ctx, &store.UpdateChatMessage{
		ID:           msg.ID,
		Content:      &msg.Content,
		IsGenerating: &generating,
		GenerationID: &gid,
		Metadata:     &msg.Metadata,
	})
	require.NoError(t, err)

	history, err := te.store.ListChatMessages(ctx, &store.FindChatMessage{ChatID: &chat.ID})
	require.NoError(t, err)
	te.engine.reconcileOrphans(ctx, chat, history)

	row, err := te.store.GetChatMessage(ctx, msg.ID)
	require.NoError(t, err)
	require.True(t, row.IsGenerating, "a claimed slot is not an orphan")
	require.Equal(t, gid, row.GenerationID)

	// A concurrently requested turn defers to the claimed slot.
	require.NoError(t, te.engine.RunTurn(ctx, chat.UID, TurnOptions{}))
	require.Empty(t, te.provider.requests)

	events, unsubscribe := te.broker.Subscribe(chat.UID)
	defer unsubscribe()

	// The session adopts the claimed id rather than minting a second one.
	te.provider.completions = []*llm.Completion{streamOf("an alternative")}
	require.NoError(t, te.engine.GenerateInto(ctx, msg.ID))

	got := drainEvents(events)
	require.NotEmpty(t, got)
	first := got[0].Payload.(MessageEvent)
	require.Equal(t, gid, first.GenerationID)

	row, err = te.store.GetChatMessage(ctx, msg.ID)
	require.NoError(t, err)
	require.Equal(t, "an alternative", row.Content)
	require.False(t, row.IsGenerating)
	require.Empty(t, row.GenerationID)
	require.Equal(t, 0, te.registry.CancelByChat(chat.ID), "claim and session both left the registry")
}

func TestGenerateIntoRejectsNonCharacterMessage(t *testing.T) {
	ctx := context.Background()
	te := newTestEngine()
	chat, _ := te.seedChat(ctx, store.ChatTypeNormal, "Ava")

	msgs, err := te.store.ListChatMessages(ctx, &store.FindChatMessage{ChatID: &chat.ID})
	require.NoError(t, err)
	require.NotEmpty(t, msgs)
	require.Error(t, te.engine.GenerateInto(ctx, msgs[0].ID))
}
