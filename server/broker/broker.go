// Package broker fans generation lifecycle events out to chat observers.
package broker

import (
	"sync"
)

// EventType names the generation lifecycle events pushed to observers.
type EventType string

const (
	// EventMessageUpdated carries the full message row on every persisted
	// increment and on finalization.
	EventMessageUpdated EventType = "message_updated"
	// EventFunctionSelection carries {messageId, reasoning, functionCalls}
	// when a generation hands off into the tool-call protocol.
	EventFunctionSelection EventType = "function_selection"
	// EventGenerationCancelled acknowledges an honored abort request.
	EventGenerationCancelled EventType = "generation_cancelled"
	// EventGenerationFailed surfaces a backend or persistence failure.
	EventGenerationFailed EventType = "generation_failed"
)

// Event is one broadcast to the observers of a chat.
type Event struct {
	Type    EventType `json:"type"`
	ChatUID string    `json:"chatUid"`
	Payload any       `json:"payload,omitempty"`
}

const subscriberBuffer = 64

// Broker routes events to per-chat subscriber channels. Slow subscribers
// lose events rather than stalling a generation stream.
type Broker struct {
	mu   sync.RWMutex
	subs map[string]map[chan Event]struct{}
}

// New creates an empty broker.
func New() *Broker {
	return &Broker{subs: map[string]map[chan Event]struct{}{}}
}

// Subscribe registers an observer for one chat. The returned cancel func
// must be called when the observer goes away; it closes the channel.
func (b *Broker) Subscribe(chatUID string) (<-chan Event, func()) {
	ch := make(chan Event, subscriberBuffer)
	b.mu.Lock()
	if b.subs[chatUID] == nil {
		b.subs[chatUID] = map[chan Event]struct{}{}
	}
	b.subs[chatUID][ch] = struct{}{}
	b.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			if set, ok := b.subs[chatUID]; ok {
				delete(set, ch)
				if len(set) == 0 {
					delete(b.subs, chatUID)
				}
			}
			b.mu.Unlock()
			close(ch)
		})
	}
	return ch, cancel
}

// Publish delivers the event to every subscriber of its chat without
// blocking; a full subscriber buffer drops the event for that subscriber.
func (b *Broker) Publish(evt Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for ch := range b.subs[evt.ChatUID] {
		select {
		case ch <- evt:
		default:
		}
	}
}
