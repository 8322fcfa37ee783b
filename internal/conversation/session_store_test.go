package conversation

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemorySessionStore_UnknownSenderHasNoHistory(t *testing.T) {
	store := NewMemorySessionStore()

	assert.Nil(t, store.History("+15550001111"))
	assert.Equal(t, 0, store.Len())
}

func TestMemorySessionStore_GetOrCreate(t *testing.T) {
	fixed := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	store := NewMemorySessionStore(withClock(func() time.Time { return fixed }))

	sess := store.GetOrCreate("alice")
	assert.Equal(t, "alice", sess.Sender)
	assert.Empty(t, sess.History)
	assert.Equal(t, fixed, sess.CreatedAt)
	assert.Equal(t, 1, store.Len())

	store.Append("alice", UserTurn("hi"))
	again := store.GetOrCreate("alice")
	require.Len(t, again.History, 1)
	assert.Equal(t, 1, store.Len())
}

func TestMemorySessionStore_AlternatingTurnsKeepOrder(t *testing.T) {
	store := NewMemorySessionStore()

	const exchanges = 5
	for i := 0; i < exchanges; i++ {
		store.Append("alice", UserTurn(fmt.Sprintf("question %d", i)))
		store.Append("alice", AssistantTurn(fmt.Sprintf("answer %d", i)))
	}

	history := store.History("alice")
	require.Len(t, history, 2*exchanges)
	for i := 0; i < exchanges; i++ {
		assert.Equal(t, RoleUser, history[2*i].Role)
		assert.Equal(t, fmt.Sprintf("question %d", i), history[2*i].Content)
		assert.Equal(t, RoleAssistant, history[2*i+1].Role)
		assert.Equal(t, fmt.Sprintf("answer %d", i), history[2*i+1].Content)
	}
}

func TestMemorySessionStore_AppendStampsCreatedAt(t *testing.T) {
	fixed := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	store := NewMemorySessionStore(withClock(func() time.Time { return fixed }))

	preset := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	store.Append("alice", UserTurn("hi"), Turn{Role: RoleAssistant, Content: "hello", CreatedAt: preset})

	history := store.History("alice")
	require.Len(t, history, 2)
	assert.Equal(t, fixed, history[0].CreatedAt)
	assert.Equal(t, preset, history[1].CreatedAt)
}

func TestMemorySessionStore_HistoryIsACopy(t *testing.T) {
	store := NewMemorySessionStore()
	store.Append("alice", UserTurn("original"))

	history := store.History("alice")
	history[0].Content = "mutated"
	_ = append(history, UserTurn("extra"))

	snap := store.GetOrCreate("alice")
	snap.History[0].Content = "also mutated"

	fresh := store.History("alice")
	require.Len(t, fresh, 1)
	assert.Equal(t, "original", fresh[0].Content)
}

func TestMemorySessionStore_SendersAreIsolated(t *testing.T) {
	store := NewMemorySessionStore()

	var wg sync.WaitGroup
	senders := []string{"alice", "bob", "carol", "dave"}
	const perSender = 50
	for _, sender := range senders {
		wg.Add(1)
		go func(sender string) {
			defer wg.Done()
			for i := 0; i < perSender; i++ {
				store.Append(sender, UserTurn(fmt.Sprintf("%s-%d", sender, i)))
			}
		}(sender)
	}
	wg.Wait()

	for _, sender := range senders {
		history := store.History(sender)
		require.Len(t, history, perSender, sender)
		for i, turn := range history {
			assert.Equal(t, fmt.Sprintf("%s-%d", sender, i), turn.Content)
		}
	}
}

func TestMemorySessionStore_EvictsLeastRecentlyUsedSender(t *testing.T) {
	var evicted []string
	store := NewMemorySessionStore(
		WithMaxSenders(2),
		WithEvictionHook(func(sender string) { evicted = append(evicted, sender) }),
	)

	store.Append("alice", UserTurn("a"))
	store.Append("bob", UserTurn("b"))
	// Reading alice makes bob the least recently used.
	_ = store.History("alice")
	store.Append("carol", UserTurn("c"))

	assert.Equal(t, 2, store.Len())
	assert.Equal(t, []string{"bob"}, evicted)
	assert.Nil(t, store.History("bob"))
	assert.Len(t, store.History("alice"), 1)
	assert.Len(t, store.History("carol"), 1)
}

func TestMemorySessionStore_TrimsOldestTurns(t *testing.T) {
	store := NewMemorySessionStore(WithMaxTurns(4))

	for i := 0; i < 6; i++ {
		store.Append("alice", UserTurn(fmt.Sprintf("m%d", i)))
	}

	history := store.History("alice")
	require.Len(t, history, 4)
	assert.Equal(t, "m2", history[0].Content)
	assert.Equal(t, "m5", history[3].Content)
}

func TestMemorySessionStore_ZeroBoundsAreUnlimited(t *testing.T) {
	store := NewMemorySessionStore(WithMaxSenders(0), WithMaxTurns(0))

	for i := 0; i < 100; i++ {
		store.Append(fmt.Sprintf("sender-%d", i), UserTurn("hi"), AssistantTurn("hello"))
	}
	assert.Equal(t, 100, store.Len())
	assert.Len(t, store.History("sender-0"), 2)
}

func TestMemorySessionStore_AppendWithoutTurnsIsNoop(t *testing.T) {
	store := NewMemorySessionStore()
	store.Append("alice")
	assert.Equal(t, 0, store.Len())
}
