package game

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/wordrush/backend/internal/bot"
	"github.com/wordrush/backend/internal/dictionary"
	"github.com/wordrush/backend/internal/rating"
	"github.com/wordrush/backend/internal/state"
)

// Manager is the process-wide match registry, set up once at startup.
var Manager *MatchManager

// PlayerInfo is what the manager needs to seat a human in a match.
type PlayerInfo struct {
	ID          string
	UserID      int64
	DisplayName string
	Rating      int
}

// MatchManager owns the live actors and the player-to-match index. Everything
// else about a match lives in the state store; the manager only routes.
type MatchManager struct {
	mu          sync.RWMutex
	actors      map[string]*Actor
	playerMatch map[string]string

	store   state.Store
	dict    *dictionary.Dictionary
	bots    *bot.Engine
	sender  Sender
	ratings *rating.Service

	matchTTL        time.Duration
	disconnectGrace time.Duration
}

func NewMatchManager(store state.Store, dict *dictionary.Dictionary, sender Sender, ratings *rating.Service, matchTTL, disconnectGrace time.Duration) *MatchManager {
	return &MatchManager{
		actors:          make(map[string]*Actor),
		playerMatch:     make(map[string]string),
		store:           store,
		dict:            dict,
		bots:            bot.NewEngine(dict),
		sender:          sender,
		ratings:         ratings,
		matchTTL:        matchTTL,
		disconnectGrace: disconnectGrace,
	}
}

// InitializeManager installs the global manager.
func InitializeManager(store state.Store, dict *dictionary.Dictionary, sender Sender, ratings *rating.Service, matchTTL, disconnectGrace time.Duration) {
	Manager = NewMatchManager(store, dict, sender, ratings, matchTTL, disconnectGrace)
	log.Printf("[GAME] Match manager initialized (ttl=%s grace=%s)", matchTTL, disconnectGrace)
}

func generateMatchID() string {
	b := make([]byte, 8)
	if _, err := rand.Read(b); err != nil {
		return fmt.Sprintf("m_%d", time.Now().UnixNano())
	}
	return "m_" + hex.EncodeToString(b)
}

// CreateMatch seats two humans on a fresh target word, persists the match and
// starts its actor. Both players get game:start.
func (mm *MatchManager) CreateMatch(p1, p2 PlayerInfo) (*Match, error) {
	m := mm.buildMatch(
		&PlayerSlot{ID: p1.ID, UserID: p1.UserID, DisplayName: p1.DisplayName, RatingAtStart: p1.Rating},
		&PlayerSlot{ID: p2.ID, UserID: p2.UserID, DisplayName: p2.DisplayName, RatingAtStart: p2.Rating},
	)
	if err := mm.launch(m); err != nil {
		return nil, err
	}

	mm.sender.SendToPlayer(p1.ID, EventGameStart, startPayload(m, p1.ID))
	mm.sender.SendToPlayer(p2.ID, EventGameStart, startPayload(m, p2.ID))
	log.Printf("[GAME] Match %s started: %s vs %s", m.ID, p1.ID, p2.ID)
	return m, nil
}

// CreateBotMatch seats a human against a synthetic opponent of the given
// difficulty. The bot's first guess is scheduled by the actor.
func (mm *MatchManager) CreateBotMatch(p PlayerInfo, difficulty bot.Difficulty) (*Match, error) {
	profile := bot.ProfileFor(difficulty)
	matchID := generateMatchID()
	botSlot := &PlayerSlot{
		ID:            "bot:" + matchID,
		DisplayName:   botName(difficulty),
		RatingAtStart: profile.Rating,
		Synthetic:     true,
		Difficulty:    difficulty,
	}
	m := mm.buildMatch(
		&PlayerSlot{ID: p.ID, UserID: p.UserID, DisplayName: p.DisplayName, RatingAtStart: p.Rating},
		botSlot,
	)
	m.ID = matchID

	if err := mm.launch(m); err != nil {
		return nil, err
	}

	mm.sender.SendToPlayer(p.ID, EventGameStart, startPayload(m, p.ID))
	log.Printf("[GAME] Bot match %s started: %s vs %s (%s)", m.ID, p.ID, botSlot.ID, difficulty)
	return m, nil
}

func (mm *MatchManager) buildMatch(a, b *PlayerSlot) *Match {
	now := time.Now()
	m := &Match{
		ID:        generateMatchID(),
		Target:    mm.dict.RandomAnswer(),
		Status:    StatusActive,
		StartedAt: now.UnixMilli(),
		ExpiresAt: now.Add(mm.matchTTL).UnixMilli(),
		Players:   map[string]*PlayerSlot{a.ID: a, b.ID: b},
		Order:     [2]string{a.ID, b.ID},
		ReplayLog: []ReplayEvent{},
	}
	return m
}

func (mm *MatchManager) launch(m *Match) error {
	data, err := json.Marshal(m)
	if err != nil {
		return err
	}
	if err := mm.store.PutMatch(context.Background(), m.ID, data); err != nil {
		return fmt.Errorf("persist match: %w", err)
	}

	actor := newActor(m, mm.deps())

	mm.mu.Lock()
	mm.actors[m.ID] = actor
	for id, p := range m.Players {
		if !p.Synthetic {
			mm.playerMatch[id] = m.ID
		}
	}
	mm.mu.Unlock()
	return nil
}

func (mm *MatchManager) deps() actorDeps {
	return actorDeps{
		store:           mm.store,
		dict:            mm.dict,
		bots:            mm.bots,
		sender:          mm.sender,
		ratings:         mm.ratings,
		disconnectGrace: mm.disconnectGrace,
		onFinished:      mm.retire,
	}
}

func (mm *MatchManager) retire(matchID string) {
	mm.mu.Lock()
	delete(mm.actors, matchID)
	for pid, mid := range mm.playerMatch {
		if mid == matchID {
			delete(mm.playerMatch, pid)
		}
	}
	mm.mu.Unlock()
	log.Printf("[GAME] Match %s retired", matchID)
}

func (mm *MatchManager) actorFor(matchID string) *Actor {
	mm.mu.RLock()
	defer mm.mu.RUnlock()
	return mm.actors[matchID]
}

// MatchForPlayer returns the live match id a player is seated in, if any.
func (mm *MatchManager) MatchForPlayer(playerID string) (string, bool) {
	mm.mu.RLock()
	defer mm.mu.RUnlock()
	id, ok := mm.playerMatch[playerID]
	return id, ok
}

// SubmitGuess routes a guess to the match actor.
func (mm *MatchManager) SubmitGuess(playerID, matchID, word string) {
	actor, err := mm.lookupOrRestore(playerID, matchID)
	if err != nil {
		mm.reportRouteError(playerID, matchID, err)
		return
	}
	actor.SubmitGuess(playerID, word)
}

// Forfeit routes an explicit resignation.
func (mm *MatchManager) Forfeit(playerID, matchID string) {
	actor, err := mm.lookupOrRestore(playerID, matchID)
	if err != nil {
		mm.reportRouteError(playerID, matchID, err)
		return
	}
	actor.Forfeit(playerID)
}

// Rejoin reattaches a returning player to their match, restoring the actor
// from the state store if this process lost it (restart, failover).
func (mm *MatchManager) Rejoin(playerID, matchID string) {
	actor, err := mm.lookupOrRestore(playerID, matchID)
	if err != nil {
		mm.reportRouteError(playerID, matchID, err)
		return
	}
	actor.Rejoin(playerID)
}

func (mm *MatchManager) reportRouteError(playerID, matchID string, err error) {
	if errors.Is(err, ErrMatchNotFound) {
		mm.sender.SendToPlayer(playerID, EventNotFound, map[string]interface{}{"gameId": matchID})
		return
	}
	mm.sender.SendToPlayer(playerID, EventGuessInvalid, map[string]interface{}{"error": err.Error()})
}

// HandleDisconnect is called by the gateway when a player's last connection
// drops. The actor decides whether a grace timer applies.
func (mm *MatchManager) HandleDisconnect(playerID string) {
	if matchID, ok := mm.MatchForPlayer(playerID); ok {
		if actor := mm.actorFor(matchID); actor != nil {
			actor.Disconnect(playerID)
		}
	}
}

// HandleReconnect cancels any pending disconnect grace.
func (mm *MatchManager) HandleReconnect(playerID string) {
	if matchID, ok := mm.MatchForPlayer(playerID); ok {
		if actor := mm.actorFor(matchID); actor != nil {
			actor.Reconnect(playerID)
		}
	}
}

// lookupOrRestore finds the live actor, or rebuilds one from persisted state
// when the match exists in the store but not in this process.
func (mm *MatchManager) lookupOrRestore(playerID, matchID string) (*Actor, error) {
	if actor := mm.actorFor(matchID); actor != nil {
		return actor, nil
	}

	data, err := mm.store.GetMatch(context.Background(), matchID)
	if err != nil {
		if !errors.Is(err, state.ErrNotFound) {
			log.Printf("[GAME] restore %s: %v", matchID, err)
		}
		return nil, ErrMatchNotFound
	}
	var m Match
	if err := json.Unmarshal(data, &m); err != nil {
		log.Printf("[GAME] restore %s: corrupt state: %v", matchID, err)
		return nil, ErrMatchNotFound
	}
	if _, ok := m.Players[playerID]; !ok {
		return nil, ErrNotYourMatch
	}
	if m.Status != StatusActive {
		return nil, ErrMatchNotActive
	}

	mm.mu.Lock()
	defer mm.mu.Unlock()
	if actor, ok := mm.actors[matchID]; ok {
		return actor, nil
	}
	actor := newActor(&m, mm.deps())
	mm.actors[matchID] = actor
	for id, p := range m.Players {
		if !p.Synthetic {
			mm.playerMatch[id] = matchID
		}
	}
	log.Printf("[GAME] Match %s restored from state store", matchID)
	return actor, nil
}

func startPayload(m *Match, playerID string) map[string]interface{} {
	opp := m.Players[m.Opponent(playerID)]
	return map[string]interface{}{
		"gameId":   m.ID,
		"opponent": opponentInfo(opp),
	}
}

func botName(d bot.Difficulty) string {
	switch d {
	case bot.Easy:
		return "RushBot Rookie"
	case bot.Medium:
		return "RushBot"
	case bot.Hard:
		return "RushBot Pro"
	default:
		return "RushBot Max"
	}
}
