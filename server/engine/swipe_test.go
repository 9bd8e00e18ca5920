package engine

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/parleyhq/parley/store"
)

func swipedMessage(history []string, idx int) *store.ChatMessage {
	i := idx
	return &store.ChatMessage{
		ID:      1,
		Role:    store.RoleAssistant,
		Content: history[idx],
		Metadata: store.MessageMetadata{
			Swipes: &store.SwipeState{CurrentIdx: &i, History: history},
		},
	}
}

func TestSwipeLeftMovesToPreviousAlternative(t *testing.T) {
	m := swipedMessage([]string{"first", "second"}, 1)
	require.NoError(t, SwipeLeft(m))
	require.Equal(t, "first", m.Content)
	require.Equal(t, 0, *m.Metadata.Swipes.CurrentIdx)
	require.Equal(t, []string{"first", "second"}, m.Metadata.Swipes.History)
}

func TestSwipeLeftAtFirstAlternativeFails(t *testing.T) {
	m := swipedMessage([]string{"first", "second"}, 0)
	err := SwipeLeft(m)
	require.ErrorIs(t, err, ErrAlreadyOnFirstSwipe)
	require.Equal(t, "first", m.Content, "failed swipe must not mutate the message")
	require.Equal(t, 0, *m.Metadata.Swipes.CurrentIdx)
}

func TestSwipeLeftWithoutSwipeStateFails(t *testing.T) {
	m := &store.ChatMessage{ID: 1, Role: store.RoleAssistant, Content: "only reply"}
	require.ErrorIs(t, SwipeLeft(m), ErrAlreadyOnFirstSwipe)
	require.Equal(t, "only reply", m.Content)
	require.Nil(t, m.Metadata.Swipes)
}

func TestSwipeRightTraversesExistingAlternatives(t *testing.T) {
	m := swipedMessage([]string{"first", "second"}, 0)
	needsGeneration := SwipeRight(m)
	require.False(t, needsGeneration)
	require.Equal(t, "second", m.Content)
	require.Equal(t, 1, *m.Metadata.Swipes.CurrentIdx)
	require.False(t, m.IsGenerating)
	require.Len(t, m.Metadata.Swipes.History, 2, "traversal must not grow history")
}

func TestSwipeRightPastEndOpensEmptySlot(t *testing.T) {
	m := swipedMessage([]string{"first", "second"}, 1)
	needsGeneration := SwipeRight(m)
	require.True(t, needsGeneration)
	require.Equal(t, "", m.Content)
	require.True(t, m.IsGenerating)
	require.Equal(t, []string{"first", "second", ""}, m.Metadata.Swipes.History)
	require.Equal(t, 2, *m.Metadata.Swipes.CurrentIdx)
}

func TestSwipeRightSeedsUntrackedBaseContent(t *testing.T) {
	m := &store.ChatMessage{ID: 1, Role: store.RoleAssistant, Content: "original reply"}
	needsGeneration := SwipeRight(m)
	require.True(t, needsGeneration)
	require.Equal(t, "", m.Content)
	require.True(t, m.IsGenerating)
	// The base content survives as slot zero; swiping back left recovers it.
	require.Equal(t, []string{"original reply", ""}, m.Metadata.Swipes.History)
	require.Equal(t, 1, *m.Metadata.Swipes.CurrentIdx)

	require.NoError(t, SwipeLeft(m))
	require.Equal(t, "original reply", m.Content)
}

func TestPrepareRegenerateClearsSlotInPlace(t *testing.T) {
	m := swipedMessage([]string{"first", "second"}, 1)
	PrepareRegenerate(m)
	require.Equal(t, "", m.Content)
	require.True(t, m.IsGenerating)
	require.Equal(t, []string{"first", ""}, m.Metadata.Swipes.History, "regenerate overwrites the current slot")
	require.Equal(t, 1, *m.Metadata.Swipes.CurrentIdx)
}

func TestPrepareRegenerateWithoutSwipeState(t *testing.T) {
	m := &store.ChatMessage{ID: 1, Role: store.RoleAssistant, Content: "reply"}
	PrepareRegenerate(m)
	require.Equal(t, "", m.Content)
	require.True(t, m.IsGenerating)
	require.Nil(t, m.Metadata.Swipes)
}

func TestApplyIncrementKeepsSlotInStep(t *testing.T) {
	m := swipedMessage([]string{"old", ""}, 1)
	applyIncrement(m, "stream")
	require.Equal(t, "stream", m.Content)
	require.Equal(t, "stream", m.Metadata.Swipes.History[1])

	applyIncrement(m, "streamed more")
	require.Equal(t, "streamed more", m.Content)
	require.Equal(t, []string{"old", "streamed more"}, m.Metadata.Swipes.History)
}
