package state

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStoreMatchRoundTrip(t *testing.T) {
	s := NewMemoryStore(time.Minute)
	ctx := context.Background()

	_, err := s.GetMatch(ctx, "m1")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, s.PutMatch(ctx, "m1", []byte(`{"id":"m1"}`)))
	data, err := s.GetMatch(ctx, "m1")
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":"m1"}`, string(data))

	require.NoError(t, s.DeleteMatch(ctx, "m1"))
	_, err = s.GetMatch(ctx, "m1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStoreMatchExpiry(t *testing.T) {
	s := NewMemoryStore(20 * time.Millisecond)
	ctx := context.Background()

	require.NoError(t, s.PutMatch(ctx, "m1", []byte("{}")))
	time.Sleep(40 * time.Millisecond)

	_, err := s.GetMatch(ctx, "m1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestTryClaimWinnerExactlyOnce(t *testing.T) {
	s := NewMemoryStore(time.Minute)
	ctx := context.Background()

	const callers = 32
	var wg sync.WaitGroup
	wins := make(chan string, callers)

	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			playerID := fmt.Sprintf("p%d", n)
			ok, err := s.TryClaimWinner(ctx, "m1", playerID)
			assert.NoError(t, err)
			if ok {
				wins <- playerID
			}
		}(i)
	}
	wg.Wait()
	close(wins)

	var winners []string
	for w := range wins {
		winners = append(winners, w)
	}
	require.Len(t, winners, 1, "exactly one caller may claim the win")

	claim, err := s.ReadWinner(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, winners[0], claim.PlayerID)
}

func TestTryClaimWinnerIsPerMatch(t *testing.T) {
	s := NewMemoryStore(time.Minute)
	ctx := context.Background()

	ok, err := s.TryClaimWinner(ctx, "m1", "alice")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.TryClaimWinner(ctx, "m2", "bob")
	require.NoError(t, err)
	assert.True(t, ok, "claims on different matches are independent")

	ok, err = s.TryClaimWinner(ctx, "m1", "bob")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestQueueEntryLiveness(t *testing.T) {
	s := NewMemoryStore(time.Minute)
	ctx := context.Background()

	alive, err := s.QueueEntryAlive(ctx, "p1")
	require.NoError(t, err)
	assert.False(t, alive)

	require.NoError(t, s.TouchQueueEntry(ctx, "p1", 20*time.Millisecond))
	alive, err = s.QueueEntryAlive(ctx, "p1")
	require.NoError(t, err)
	assert.True(t, alive)

	time.Sleep(40 * time.Millisecond)
	alive, err = s.QueueEntryAlive(ctx, "p1")
	require.NoError(t, err)
	assert.False(t, alive, "entry expires without a touch")

	require.NoError(t, s.TouchQueueEntry(ctx, "p2", time.Minute))
	require.NoError(t, s.DropQueueEntry(ctx, "p2"))
	alive, err = s.QueueEntryAlive(ctx, "p2")
	require.NoError(t, err)
	assert.False(t, alive)
}
