// Package llm defines the pluggable text-generation backend contract and an
// OpenAI-compatible chat-completions adapter.
package llm

import "context"

// Message is one prompt turn sent to a backend.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Request is the prompt context handed to a Provider. Prompt templating and
// token budgeting are the adapter's concern, not the caller's.
type Request struct {
	System   string
	Messages []Message
	// SpeakerName is the display name the reply is expected to be written
	// as; adapters may prime the model with it and callers strip it from
	// streamed output.
	SpeakerName string
	Stream      bool
}

// StreamFunc delivers generated text incrementally. It invokes onDelta once
// per increment, in production order, and returns when the stream ends, the
// callback errors, or ctx is cancelled.
type StreamFunc func(ctx context.Context, onDelta func(delta string) error) error

// Completion is the result of a Generate call: either a complete Text or a
// Stream to be consumed, never both.
type Completion struct {
	Text   string
	Stream StreamFunc
}

// Provider is one text-generation backend.
type Provider interface {
	Generate(ctx context.Context, req *Request) (*Completion, error)
}
