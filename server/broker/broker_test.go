package broker

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPublishReachesOnlyChatSubscribers(t *testing.T) {
	b := New()
	chA, cancelA := b.Subscribe("chat-a")
	defer cancelA()
	chB, cancelB := b.Subscribe("chat-b")
	defer cancelB()

	b.Publish(Event{Type: EventMessageUpdated, ChatUID: "chat-a", Payload: "hi"})

	select {
	case evt := <-chA:
		require.Equal(t, EventMessageUpdated, evt.Type)
		require.Equal(t, "hi", evt.Payload)
	default:
		t.Fatal("subscriber of chat-a received nothing")
	}
	select {
	case evt := <-chB:
		t.Fatalf("subscriber of chat-b received foreign event %v", evt)
	default:
	}
}

func TestPublishDropsForFullSubscriber(t *testing.T) {
	b := New()
	ch, cancel := b.Subscribe("chat")
	defer cancel()

	for i := 0; i < subscriberBuffer+10; i++ {
		b.Publish(Event{Type: EventMessageUpdated, ChatUID: "chat", Payload: i})
	}
	require.Len(t, ch, subscriberBuffer, "overflow is dropped, not blocked on")
}

func TestCancelClosesChannelAndIsIdempotent(t *testing.T) {
	b := New()
	ch, cancel := b.Subscribe("chat")
	cancel()
	cancel()

	_, open := <-ch
	require.False(t, open)

	// Publishing after the last subscriber left is a no-op.
	b.Publish(Event{Type: EventMessageUpdated, ChatUID: "chat"})
}

func TestStreamSendWritesEventFrame(t *testing.T) {
	var buf bytes.Buffer
	s := NewStreamWriter(&buf)

	require.NoError(t, s.Send(Event{Type: EventGenerationCancelled, ChatUID: "chat-1"}))

	out := buf.String()
	require.Contains(t, out, "event: generation_cancelled\n")
	require.Contains(t, out, `data: {"type":"generation_cancelled","chatUid":"chat-1"}`)
	require.True(t, bytes.HasSuffix(buf.Bytes(), []byte("\n\n")))
}
