package engine

import (
	"sort"

	"github.com/parleyhq/parley/store"
)

// ScheduleOptions tunes one scheduling decision.
type ScheduleOptions struct {
	// Triggered marks an out-of-rotation request (e.g. an explicit mention)
	// that may pick a speaker even when the normal rotation is complete.
	Triggered bool
}

// SchedulePolicy computes which character should produce the next message,
// given the chat history, the chat's active characters ordered by position,
// and the chat's personas. It returns (0, false) when no character is due to
// speak; callers treat that as "stop", not as an error. Policies are pure
// functions so alternate tie-break rules can be swapped in without touching
// the loop.
type SchedulePolicy func(history []*store.ChatMessage, active []*store.ChatCharacter, personas []*store.ChatPersona, opts ScheduleOptions) (int32, bool)

// RoundRobin is the default policy: characters speak once each in position
// order after every human turn, with human turns recognized by role rather
// than persona membership, so the personas parameter goes unused here.
// A triggered request continues the rotation past its end instead of
// stopping.
func RoundRobin(history []*store.ChatMessage, active []*store.ChatCharacter, _ []*store.ChatPersona, opts ScheduleOptions) (int32, bool) {
	ordered := activeByPosition(active)
	if len(ordered) == 0 {
		return 0, false
	}

	spoken, lastSpeaker := repliesSinceLastHumanTurn(history)

	for _, cc := range ordered {
		if !spoken[cc.CharacterID] {
			return cc.CharacterID, true
		}
	}
	if !opts.Triggered {
		// Every active character has replied since the last human turn.
		return 0, false
	}

	// Triggered past a complete rotation: continue round robin from the
	// character after the last assistant speaker.
	for i, cc := range ordered {
		if cc.CharacterID == lastSpeaker {
			return ordered[(i+1)%len(ordered)].CharacterID, true
		}
	}
	return ordered[0].CharacterID, true
}

// activeByPosition filters to active characters and orders them by position.
func activeByPosition(all []*store.ChatCharacter) []*store.ChatCharacter {
	active := make([]*store.ChatCharacter, 0, len(all))
	for _, cc := range all {
		if cc.IsActive {
			active = append(active, cc)
		}
	}
	sort.SliceStable(active, func(i, j int) bool {
		return active[i].Position < active[j].Position
	})
	return active
}

// repliesSinceLastHumanTurn walks the trailing run of assistant messages and
// returns the set of characters that already replied plus the most recent
// assistant speaker. Hidden messages do not count.
func repliesSinceLastHumanTurn(history []*store.ChatMessage) (map[int32]bool, int32) {
	spoken := map[int32]bool{}
	var lastSpeaker int32
	for i := len(history) - 1; i >= 0; i-- {
		msg := history[i]
		if msg.IsHidden {
			continue
		}
		if msg.Role != store.RoleAssistant {
			break
		}
		if msg.CharacterID == nil {
			continue
		}
		spoken[*msg.CharacterID] = true
		if lastSpeaker == 0 {
			lastSpeaker = *msg.CharacterID
		}
	}
	return spoken, lastSpeaker
}
