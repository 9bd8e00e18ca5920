package engine

import (
	"errors"

	"github.com/parleyhq/parley/store"
)

// ErrAlreadyOnFirstSwipe is returned by SwipeLeft when there is no earlier
// alternative to move to.
var ErrAlreadyOnFirstSwipe = errors.New("already on first swipe")

// SwipeLeft moves the message to the previous alternative. The message must
// not be mutated on failure.
func SwipeLeft(m *store.ChatMessage) error {
	sw := m.Metadata.Swipes
	if sw == nil || sw.CurrentIdx == nil || *sw.CurrentIdx == 0 || len(sw.History) == 0 {
		return ErrAlreadyOnFirstSwipe
	}
	idx := *sw.CurrentIdx - 1
	sw.CurrentIdx = &idx
	m.Content = sw.History[idx]
	return nil
}

// SwipeRight moves the message to the next alternative. Past the last
// alternative it opens a fresh empty slot, marks the message generating, and
// reports that a brand-new completion must be requested for it. A message
// whose base content was never tracked as an alternative gets it recorded as
// slot zero first, so no reply is lost to the new generation; in that one
// case the history grows by two entries instead of one.
func SwipeRight(m *store.ChatMessage) (needsGeneration bool) {
	if m.Metadata.Swipes == nil {
		m.Metadata.Swipes = &store.SwipeState{}
	}
	sw := m.Metadata.Swipes
	if sw.CurrentIdx != nil && *sw.CurrentIdx < len(sw.History)-1 {
		idx := *sw.CurrentIdx + 1
		sw.CurrentIdx = &idx
		m.Content = sw.History[idx]
		return false
	}
	if sw.CurrentIdx == nil {
		sw.History = append(sw.History, m.Content)
	}
	sw.History = append(sw.History, "")
	idx := len(sw.History) - 1
	sw.CurrentIdx = &idx
	m.Content = ""
	m.IsGenerating = true
	return true
}

// PrepareRegenerate clears the message for an in-place regeneration: the
// current alternative slot (when one is tracked) is overwritten as the new
// content streams in rather than a new slot being appended.
func PrepareRegenerate(m *store.ChatMessage) {
	m.Content = ""
	m.IsGenerating = true
	if sw := m.Metadata.Swipes; sw != nil && sw.CurrentIdx != nil && *sw.CurrentIdx < len(sw.History) {
		sw.History[*sw.CurrentIdx] = ""
	}
}

// applyIncrement records streamed content on the message, keeping the
// current swipe slot in step with it so the content/history invariant holds
// at every persisted increment.
func applyIncrement(m *store.ChatMessage, text string) {
	m.Content = text
	if sw := m.Metadata.Swipes; sw != nil && sw.CurrentIdx != nil && *sw.CurrentIdx < len(sw.History) {
		sw.History[*sw.CurrentIdx] = text
	}
}
