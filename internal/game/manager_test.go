package game

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wordrush/backend/internal/bot"
	"github.com/wordrush/backend/internal/rating"
	"github.com/wordrush/backend/internal/state"
)

func startBotMatch(t *testing.T, f *fixture, d bot.Difficulty) *Match {
	t.Helper()
	m, err := f.mm.CreateBotMatch(
		PlayerInfo{ID: "u:1", UserID: 1, DisplayName: "alice", Rating: 1200},
		d,
	)
	require.NoError(t, err)
	f.rec.waitFor(t, "u:1", EventGameStart)
	return m
}

func TestBotMatchStartPayload(t *testing.T) {
	f := newFixture(t, time.Minute, time.Second)
	startBotMatch(t, f, bot.Hard)

	data := f.rec.waitFor(t, "u:1", EventGameStart)
	opp := data["opponent"].(map[string]interface{})
	assert.Equal(t, true, opp["isBot"])
	assert.Equal(t, "RushBot Pro", opp["username"])
	assert.Equal(t, 1400, opp["elo"])
}

func TestBotGuessReachesHumanMasked(t *testing.T) {
	f := newFixture(t, time.Minute, time.Second)
	m := startBotMatch(t, f, bot.Hard)

	// Fire the bot's turn directly instead of waiting out the pacing timer.
	actor := f.mm.actorFor(m.ID)
	require.NotNil(t, actor)
	actor.post(command{kind: cmdBotTick})

	masked := f.rec.waitFor(t, "u:1", EventOpponentGuess)
	assert.NotContains(t, masked, "word")
	assert.Equal(t, 1, masked["guessNumber"])
}

func TestBotMatchSurvivesHumanDisconnect(t *testing.T) {
	f := newFixture(t, time.Minute, 20*time.Millisecond)
	m := startBotMatch(t, f, bot.Medium)

	f.mm.HandleDisconnect("u:1")
	time.Sleep(60 * time.Millisecond)

	assert.Empty(t, f.rec.of("u:1", EventGameEnd), "bot matches wait for the player to return")
	assert.Equal(t, StatusActive, f.loadMatch(t, m.ID).Status)
}

func TestExplicitForfeitWorksAgainstBot(t *testing.T) {
	f := newFixture(t, time.Minute, time.Second)
	m := startBotMatch(t, f, bot.Easy)

	f.mm.Forfeit("u:1", m.ID)

	end := f.rec.waitFor(t, "u:1", EventGameEnd)
	assert.Equal(t, "loss", end["result"])
	assert.Equal(t, "forfeit", end["reason"])
	// Losing as the favorite against the 800-rated bot costs 15 at half K.
	assert.Equal(t, -15, end["eloChange"])
}

func TestMatchForPlayerTracksBothHumans(t *testing.T) {
	f := newFixture(t, time.Minute, time.Second)
	m := f.startMatch(t)

	for _, id := range []string{"u:1", "u:2"} {
		got, ok := f.mm.MatchForPlayer(id)
		assert.True(t, ok)
		assert.Equal(t, m.ID, got)
	}
	_, ok := f.mm.MatchForPlayer("bot:" + m.ID)
	assert.False(t, ok, "synthetic players are not indexed")
}

// flakyStore fails the next n GetMatch calls, then recovers.
type flakyStore struct {
	*state.MemoryStore
	mu       sync.Mutex
	failGets int
}

func (s *flakyStore) GetMatch(ctx context.Context, matchID string) ([]byte, error) {
	s.mu.Lock()
	fail := s.failGets > 0
	if fail {
		s.failGets--
	}
	s.mu.Unlock()
	if fail {
		return nil, errors.New("state store unavailable")
	}
	return s.MemoryStore.GetMatch(ctx, matchID)
}

func TestRejoinRevivesDeadBotTickChain(t *testing.T) {
	store := &flakyStore{MemoryStore: state.NewMemoryStore(time.Minute)}
	rec := &recorder{}
	mm := NewMatchManager(store, testDict(t), rec, rating.NewService(nil), time.Minute, time.Second)

	m, err := mm.CreateBotMatch(PlayerInfo{ID: "u:1", UserID: 1, DisplayName: "alice", Rating: 1200}, bot.Medium)
	require.NoError(t, err)
	rec.waitFor(t, "u:1", EventGameStart)

	actor := mm.actorFor(m.ID)
	require.NotNil(t, actor)

	// Kill the tick chain: the tick's load and its retry both fail.
	store.mu.Lock()
	store.failGets = 2
	store.mu.Unlock()
	actor.post(command{kind: cmdBotTick})

	mm.SubmitGuess("u:1", m.ID, "slate")
	rec.waitFor(t, "u:1", EventGuessResult)
	assert.Nil(t, actor.botTimer, "a failed tick must leave the chain idle")
	assert.Empty(t, rec.of("u:1", EventOpponentGuess))

	mm.Rejoin("u:1", m.ID)
	rec.waitFor(t, "u:1", EventRejoined)

	mm.SubmitGuess("u:1", m.ID, "trace")
	rec.waitForN(t, "u:1", EventGuessResult, 2)
	assert.NotNil(t, actor.botTimer, "rejoin must re-arm the bot tick")
}

// scriptedStore serves queued GetMatch snapshots before falling through to
// the backing store.
type scriptedStore struct {
	*state.MemoryStore
	mu   sync.Mutex
	gets [][]byte
}

func (s *scriptedStore) GetMatch(ctx context.Context, matchID string) ([]byte, error) {
	s.mu.Lock()
	if len(s.gets) > 0 {
		data := s.gets[0]
		s.gets = s.gets[1:]
		s.mu.Unlock()
		return data, nil
	}
	s.mu.Unlock()
	return s.MemoryStore.GetMatch(ctx, matchID)
}

func TestRejectedBotGuessLeavesKnowledgeUntouched(t *testing.T) {
	store := &scriptedStore{MemoryStore: state.NewMemoryStore(time.Minute)}
	rec := &recorder{}
	mm := NewMatchManager(store, testDict(t), rec, rating.NewService(nil), time.Minute, time.Second)

	m, err := mm.CreateBotMatch(PlayerInfo{ID: "u:1", UserID: 1, DisplayName: "alice", Rating: 1200}, bot.Hard)
	require.NoError(t, err)
	rec.waitFor(t, "u:1", EventGameStart)

	actor := mm.actorFor(m.ID)
	require.NotNil(t, actor)

	active, err := store.MemoryStore.GetMatch(context.Background(), m.ID)
	require.NoError(t, err)
	var ended Match
	require.NoError(t, json.Unmarshal(active, &ended))
	ended.Status = StatusFinished
	endedData, err := json.Marshal(&ended)
	require.NoError(t, err)

	// The tick sees a live match, but the guess pipeline reloads and finds it
	// finished, so the bot's guess is rejected.
	store.mu.Lock()
	store.gets = [][]byte{active, endedData}
	store.mu.Unlock()
	actor.post(command{kind: cmdBotTick})

	invalid := rec.waitFor(t, "bot:"+m.ID, EventGuessInvalid)
	assert.Equal(t, ErrMatchNotActive.Error(), invalid["error"])

	// Barrier: once the rejoin answer arrives, the tick has fully completed.
	mm.Rejoin("u:1", m.ID)
	rec.waitFor(t, "u:1", EventRejoined)

	assert.Zero(t, actor.botState.GuessCount, "rejected guess must not advance the bot")
	assert.Empty(t, actor.botState.Constraints)
}

func TestRestoreActorFromStore(t *testing.T) {
	f := newFixture(t, time.Minute, time.Second)
	m := f.startMatch(t)

	// Simulate a process that lost its in-memory registry.
	f.mm.mu.Lock()
	for id, a := range f.mm.actors {
		a.stop()
		delete(f.mm.actors, id)
	}
	f.mm.playerMatch = map[string]string{}
	f.mm.mu.Unlock()

	f.mm.SubmitGuess("u:1", m.ID, "crane")

	end := f.rec.waitFor(t, "u:1", EventGameEnd)
	assert.Equal(t, "win", end["result"])
}
