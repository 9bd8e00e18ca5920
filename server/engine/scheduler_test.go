package engine

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/parleyhq/parley/store"
)

func participant(charID, position int32) *store.ChatCharacter {
	return &store.ChatCharacter{ChatID: 1, CharacterID: charID, Position: position, IsActive: true}
}

func userMsg(id int32) *store.ChatMessage {
	return &store.ChatMessage{ID: id, ChatID: 1, Role: store.RoleUser, Content: "hi"}
}

func assistantMsg(id, charID int32) *store.ChatMessage {
	return &store.ChatMessage{ID: id, ChatID: 1, Role: store.RoleAssistant, CharacterID: &charID, Content: "reply"}
}

func TestRoundRobinRotationInPositionOrder(t *testing.T) {
	// Positions deliberately out of slice order.
	active := []*store.ChatCharacter{participant(30, 2), participant(10, 0), participant(20, 1)}
	history := []*store.ChatMessage{userMsg(1)}

	next, ok := RoundRobin(history, active, nil, ScheduleOptions{})
	require.True(t, ok)
	require.Equal(t, int32(10), next)

	history = append(history, assistantMsg(2, 10))
	next, ok = RoundRobin(history, active, nil, ScheduleOptions{})
	require.True(t, ok)
	require.Equal(t, int32(20), next)

	history = append(history, assistantMsg(3, 20))
	next, ok = RoundRobin(history, active, nil, ScheduleOptions{})
	require.True(t, ok)
	require.Equal(t, int32(30), next)

	history = append(history, assistantMsg(4, 30))
	_, ok = RoundRobin(history, active, nil, ScheduleOptions{})
	require.False(t, ok, "rotation complete, nobody else is due")
}

func TestRoundRobinRestartsAfterHumanTurn(t *testing.T) {
	active := []*store.ChatCharacter{participant(1, 0), participant(2, 1)}
	history := []*store.ChatMessage{
		userMsg(1),
		assistantMsg(2, 1),
		assistantMsg(3, 2),
		userMsg(4),
	}
	next, ok := RoundRobin(history, active, nil, ScheduleOptions{})
	require.True(t, ok)
	require.Equal(t, int32(1), next)
}

func TestRoundRobinSkipsInactive(t *testing.T) {
	active := []*store.ChatCharacter{
		participant(1, 0),
		{ChatID: 1, CharacterID: 2, Position: 1, IsActive: false},
		participant(3, 2),
	}
	history := []*store.ChatMessage{userMsg(1), assistantMsg(2, 1)}
	next, ok := RoundRobin(history, active, nil, ScheduleOptions{})
	require.True(t, ok)
	require.Equal(t, int32(3), next)
}

func TestRoundRobinNoActiveCharacters(t *testing.T) {
	_, ok := RoundRobin([]*store.ChatMessage{userMsg(1)}, nil, nil, ScheduleOptions{})
	require.False(t, ok)
}

func TestRoundRobinHiddenMessagesDoNotCount(t *testing.T) {
	active := []*store.ChatCharacter{participant(1, 0), participant(2, 1)}
	hidden := assistantMsg(3, 2)
	hidden.IsHidden = true
	history := []*store.ChatMessage{userMsg(1), assistantMsg(2, 1), hidden}

	next, ok := RoundRobin(history, active, nil, ScheduleOptions{})
	require.True(t, ok)
	require.Equal(t, int32(2), next)
}

func TestRoundRobinTriggeredContinuesPastCompleteRotation(t *testing.T) {
	active := []*store.ChatCharacter{participant(1, 0), participant(2, 1), participant(3, 2)}
	history := []*store.ChatMessage{
		userMsg(1),
		assistantMsg(2, 1),
		assistantMsg(3, 2),
		assistantMsg(4, 3),
	}
	_, ok := RoundRobin(history, active, nil, ScheduleOptions{})
	require.False(t, ok)

	// Triggered continues from the speaker after the last one, wrapping.
	next, ok := RoundRobin(history, active, nil, ScheduleOptions{Triggered: true})
	require.True(t, ok)
	require.Equal(t, int32(1), next)
}

func TestRoundRobinTriggeredOnEmptyHistory(t *testing.T) {
	active := []*store.ChatCharacter{participant(7, 0)}
	next, ok := RoundRobin(nil, active, nil, ScheduleOptions{Triggered: true})
	require.True(t, ok)
	require.Equal(t, int32(7), next)
}
