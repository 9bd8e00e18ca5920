// Package engine owns generation orchestration: deciding which participant
// speaks next, driving cancellable streaming calls against a text-generation
// backend, persisting and broadcasting partial output, maintaining swipe
// history, and recognizing the embedded tool-call protocol.
package engine

import (
	"context"

	"github.com/google/uuid"

	"github.com/parleyhq/parley/plugin/llm"
	"github.com/parleyhq/parley/server/broker"
	"github.com/parleyhq/parley/store"
)

const defaultMaxTurns = 10

// LoreRetriever supplies world-info snippets for prompt building.
type LoreRetriever interface {
	Search(ctx context.Context, query string, limit int) ([]string, error)
}

// Engine coordinates turn scheduling and generation sessions for all chats.
type Engine struct {
	store    *store.Store
	registry *Registry
	broker   *broker.Broker
	provider llm.Provider
	policy   SchedulePolicy
	lore     LoreRetriever
	maxTurns int
}

// Option configures an Engine.
type Option func(*Engine)

// WithPolicy swaps the turn-scheduling policy.
func WithPolicy(p SchedulePolicy) Option {
	return func(e *Engine) { e.policy = p }
}

// WithMaxTurns caps the number of sessions one RunTurn call may drive.
func WithMaxTurns(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.maxTurns = n
		}
	}
}

// WithLore enables lorebook retrieval during prompt building.
func WithLore(l LoreRetriever) Option {
	return func(e *Engine) { e.lore = l }
}

// New assembles an Engine. The registry is injected rather than owned so the
// cancellation-request path and the streaming path share one instance
// without package-level state.
func New(st *store.Store, registry *Registry, b *broker.Broker, provider llm.Provider, opts ...Option) *Engine {
	e := &Engine{
		store:    st,
		registry: registry,
		broker:   b,
		provider: provider,
		policy:   RoundRobin,
		maxTurns: defaultMaxTurns,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// BeginGeneration reserves a correlation id for a message slot that is about
// to be persisted as generating ahead of its session starting. The registry
// entry exists before the row is marked, so the orphan reconciler cannot
// finalize the slot in the window before runSession takes over under the
// same id.
func (e *Engine) BeginGeneration(chatID, messageID int32) string {
	id := uuid.New().String()
	e.registry.register(&liveSession{id: id, chatID: chatID, messageID: messageID, cancel: func() {}})
	return id
}

// EndGeneration releases a claim obtained from BeginGeneration whose session
// never started. Safe to call for ids the registry no longer holds.
func (e *Engine) EndGeneration(id string) {
	e.registry.remove(id)
}

// Cancel aborts either one session by correlation id or every session
// generating for a chat, returning the number aborted. Unknown ids and
// chats with nothing in flight yield zero.
func (e *Engine) Cancel(ctx context.Context, chatUID, generationID string) (int, error) {
	if generationID != "" {
		return e.registry.CancelByID(generationID), nil
	}
	chat, err := e.store.GetChat(ctx, &store.FindChat{UID: &chatUID})
	if err != nil {
		return 0, err
	}
	if chat == nil {
		return 0, nil
	}
	return e.registry.CancelByChat(chat.ID), nil
}
