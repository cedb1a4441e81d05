package matchmaking

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wordrush/backend/internal/bot"
	"github.com/wordrush/backend/internal/game"
	"github.com/wordrush/backend/internal/state"
)

type fakeSender struct {
	mu     sync.Mutex
	events map[string][]string // playerID -> event types
}

func newFakeSender() *fakeSender {
	return &fakeSender{events: make(map[string][]string)}
}

func (s *fakeSender) SendToPlayer(playerID string, event string, data interface{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events[playerID] = append(s.events[playerID], event)
}

func (s *fakeSender) got(playerID, event string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.events[playerID] {
		if e == event {
			return true
		}
	}
	return false
}

type pairing struct{ a, b game.PlayerInfo }

type capture struct {
	mu    sync.Mutex
	pairs []pairing
	bots  []struct {
		p game.PlayerInfo
		d bot.Difficulty
	}
}

func (c *capture) matchFn(a, b game.PlayerInfo) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pairs = append(c.pairs, pairing{a: a, b: b})
}

func (c *capture) botFn(p game.PlayerInfo, d bot.Difficulty) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.bots = append(c.bots, struct {
		p game.PlayerInfo
		d bot.Difficulty
	}{p, d})
}

const (
	testBudget = 15 * time.Second
	testRetry  = 2 * time.Second
)

func newTestQueue(t *testing.T) (*Queue, *capture, *fakeSender, *state.MemoryStore) {
	t.Helper()
	store := state.NewMemoryStore(time.Minute)
	sender := newFakeSender()
	cap := &capture{}
	q := NewQueue(store, sender, cap.matchFn, cap.botFn, testBudget, testRetry, 100, 400)
	return q, cap, sender, store
}

func player(id string, elo int) game.PlayerInfo {
	return game.PlayerInfo{ID: id, DisplayName: id, Rating: elo}
}

func TestBandExpandsLinearly(t *testing.T) {
	q, _, _, _ := newTestQueue(t)

	assert.Equal(t, 100, q.Band(0))
	assert.Equal(t, 250, q.Band(testBudget/2))
	assert.Equal(t, 400, q.Band(testBudget))
	assert.Equal(t, 400, q.Band(testBudget*2), "band caps at the max")
}

func TestEnqueuePairsCompatiblePlayersImmediately(t *testing.T) {
	q, cap, sender, _ := newTestQueue(t)

	require.NoError(t, q.Enqueue(player("u:1", 1200)))
	assert.True(t, sender.got("u:1", EventSearching))
	assert.Equal(t, 1, q.Waiting())

	require.NoError(t, q.Enqueue(player("u:2", 1250)))

	require.Len(t, cap.pairs, 1)
	ids := []string{cap.pairs[0].a.ID, cap.pairs[0].b.ID}
	assert.ElementsMatch(t, []string{"u:1", "u:2"}, ids)
	assert.Equal(t, 0, q.Waiting())
}

func TestEnqueueRejectsDuplicate(t *testing.T) {
	q, _, _, _ := newTestQueue(t)

	require.NoError(t, q.Enqueue(player("u:1", 1200)))
	assert.ErrorIs(t, q.Enqueue(player("u:1", 1200)), ErrAlreadyQueued)
}

func TestNoPairOutsideInitialBand(t *testing.T) {
	q, cap, _, _ := newTestQueue(t)

	require.NoError(t, q.Enqueue(player("u:1", 1200)))
	require.NoError(t, q.Enqueue(player("u:2", 1450)))

	assert.Empty(t, cap.pairs, "gap 250 exceeds the initial band of 100")
	assert.Equal(t, 2, q.Waiting())
}

func TestWidenedBandPairsLater(t *testing.T) {
	q, cap, _, _ := newTestQueue(t)

	require.NoError(t, q.Enqueue(player("u:1", 1200)))
	require.NoError(t, q.Enqueue(player("u:2", 1450)))
	require.Empty(t, cap.pairs)

	// Both bands admit a 250 gap once roughly ten seconds have passed.
	q.scan(time.Now().Add(10 * time.Second))

	require.Len(t, cap.pairs, 1)
	assert.Equal(t, 0, q.Waiting())
}

func TestSeatedPlayersLeaveTheQueue(t *testing.T) {
	q, cap, _, _ := newTestQueue(t)

	require.NoError(t, q.Enqueue(player("u:1", 1200)))
	require.NoError(t, q.Enqueue(player("u:2", 1290)))
	require.Len(t, cap.pairs, 1)

	// u:3 is closer to u:1 than u:2 was, but u:1 is already seated.
	require.NoError(t, q.Enqueue(player("u:3", 1210)))
	assert.Len(t, cap.pairs, 1)
	assert.Equal(t, 1, q.Waiting())
}

func TestBotFallbackAfterWaitBudget(t *testing.T) {
	q, cap, _, _ := newTestQueue(t)

	require.NoError(t, q.Enqueue(player("u:1", 1350)))
	require.Empty(t, cap.bots)

	q.scan(time.Now().Add(testBudget))

	require.Len(t, cap.bots, 1)
	assert.Equal(t, "u:1", cap.bots[0].p.ID)
	assert.Equal(t, bot.Hard, cap.bots[0].d)
	assert.Equal(t, 0, q.Waiting())
}

func TestBotFallbackDifficultyFollowsRating(t *testing.T) {
	tests := []struct {
		elo  int
		want bot.Difficulty
	}{
		{700, bot.Easy},
		{1000, bot.Medium},
		{1350, bot.Hard},
		{1800, bot.Impossible},
	}
	for _, tt := range tests {
		q, cap, _, _ := newTestQueue(t)
		require.NoError(t, q.Enqueue(player("u:1", tt.elo)))
		q.scan(time.Now().Add(testBudget))
		require.Len(t, cap.bots, 1, "elo %d", tt.elo)
		assert.Equal(t, tt.want, cap.bots[0].d, "elo %d", tt.elo)
	}
}

func TestFarApartPlayersBothFallBackToBots(t *testing.T) {
	q, cap, _, _ := newTestQueue(t)

	require.NoError(t, q.Enqueue(player("u:1", 1200)))
	require.NoError(t, q.Enqueue(player("u:2", 1700)))

	q.scan(time.Now().Add(testBudget))

	assert.Empty(t, cap.pairs, "gap 500 never fits the max band")
	require.Len(t, cap.bots, 2)
}

func TestCancel(t *testing.T) {
	q, _, sender, _ := newTestQueue(t)

	require.NoError(t, q.Enqueue(player("u:1", 1200)))
	assert.True(t, q.Cancel("u:1"))
	assert.True(t, sender.got("u:1", EventCancelled))
	assert.Equal(t, 0, q.Waiting())

	assert.False(t, q.Cancel("u:1"), "second cancel is a no-op")
	assert.False(t, q.Cancel("u:9"), "unknown player is a no-op")
}

func TestStaleEntriesAreDropped(t *testing.T) {
	q, cap, _, store := newTestQueue(t)

	require.NoError(t, q.Enqueue(player("u:1", 1200)))
	// The liveness key vanishing means the owning connection went away.
	require.NoError(t, store.DropQueueEntry(context.Background(), "u:1"))

	q.scan(time.Now())

	assert.Equal(t, 0, q.Waiting())
	assert.Empty(t, cap.pairs)

	// A compatible player arriving later must not be paired with the ghost.
	require.NoError(t, q.Enqueue(player("u:2", 1200)))
	assert.Empty(t, cap.pairs)
}

// slowLivenessStore stalls QueueEntryAlive to mimic a laggy store.
type slowLivenessStore struct {
	*state.MemoryStore
	mu    sync.Mutex
	delay time.Duration
}

func (s *slowLivenessStore) QueueEntryAlive(ctx context.Context, playerID string) (bool, error) {
	s.mu.Lock()
	d := s.delay
	s.mu.Unlock()
	if d > 0 {
		time.Sleep(d)
	}
	return s.MemoryStore.QueueEntryAlive(ctx, playerID)
}

func TestScanLivenessChecksDoNotBlockCancel(t *testing.T) {
	store := &slowLivenessStore{MemoryStore: state.NewMemoryStore(time.Minute)}
	sender := newFakeSender()
	cap := &capture{}
	q := NewQueue(store, sender, cap.matchFn, cap.botFn, testBudget, testRetry, 100, 400)

	require.NoError(t, q.Enqueue(player("u:1", 1200)))
	require.NoError(t, q.Enqueue(player("u:2", 1900)))

	store.mu.Lock()
	store.delay = 150 * time.Millisecond
	store.mu.Unlock()

	scanning := make(chan struct{})
	go func() {
		close(scanning)
		q.scan(time.Now())
	}()
	<-scanning
	// Give the scan time to reach its first liveness round-trip.
	time.Sleep(20 * time.Millisecond)

	done := make(chan bool, 1)
	go func() { done <- q.Cancel("u:2") }()
	select {
	case ok := <-done:
		assert.True(t, ok)
	case <-time.After(100 * time.Millisecond):
		t.Fatal("Cancel stalled behind the scan's liveness checks")
	}
}
