package engine

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRegistryCancelByID(t *testing.T) {
	r := NewRegistry()
	ctx, cancel := context.WithCancel(context.Background())
	r.register(&liveSession{id: "g1", chatID: 1, messageID: 1, cancel: cancel})

	require.True(t, r.Has("g1"))
	require.Equal(t, 1, r.CancelByID("g1"))
	require.Error(t, ctx.Err(), "cancel must abort the session context")
}

func TestRegistryCancelUnknownIDIsNoOp(t *testing.T) {
	r := NewRegistry()
	require.Equal(t, 0, r.CancelByID("never-registered"))
	require.False(t, r.Has("never-registered"))
}

func TestRegistryCancelByChat(t *testing.T) {
	r := NewRegistry()
	ctx1, cancel1 := context.WithCancel(context.Background())
	ctx2, cancel2 := context.WithCancel(context.Background())
	ctx3, cancel3 := context.WithCancel(context.Background())
	r.register(&liveSession{id: "a", chatID: 1, cancel: cancel1})
	r.register(&liveSession{id: "b", chatID: 1, cancel: cancel2})
	r.register(&liveSession{id: "c", chatID: 2, cancel: cancel3})

	require.Equal(t, 2, r.CancelByChat(1))
	require.Error(t, ctx1.Err())
	require.Error(t, ctx2.Err())
	require.NoError(t, ctx3.Err(), "other chats keep streaming")

	require.Equal(t, 0, r.CancelByChat(99))
}

func TestRegistryRemoveIsIdempotent(t *testing.T) {
	r := NewRegistry()
	_, cancel := context.WithCancel(context.Background())
	r.register(&liveSession{id: "g", chatID: 1, cancel: cancel})
	r.remove("g")
	r.remove("g")
	require.False(t, r.Has("g"))
	require.Equal(t, 0, r.CancelByID("g"))
}

func TestRegistryConcurrentAccess(t *testing.T) {
	r := NewRegistry()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			_, cancel := context.WithCancel(context.Background())
			id := string(rune('a' + n%26))
			r.register(&liveSession{id: id, chatID: int32(n % 3), cancel: cancel})
			r.Has(id)
			r.CancelByChat(int32(n % 3))
			r.remove(id)
		}(i)
	}
	wg.Wait()
}
