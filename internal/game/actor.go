package game

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/wordrush/backend/internal/bot"
	"github.com/wordrush/backend/internal/dictionary"
	"github.com/wordrush/backend/internal/rating"
	"github.com/wordrush/backend/internal/state"
)

// Event names pushed through the realtime gateway.
const (
	EventGameStart     = "game:start"
	EventGuessResult   = "game:guess:result"
	EventGuessInvalid  = "game:guess:invalid"
	EventOpponentGuess = "game:opponent:guess"
	EventRejoined      = "game:rejoined"
	EventNotFound      = "game:notfound"
	EventGameEnd       = "game:end"
)

// Sender delivers an event to every connection a player currently holds.
type Sender interface {
	SendToPlayer(playerID string, event string, data interface{})
}

type cmdKind int

const (
	cmdGuess cmdKind = iota
	cmdBotTick
	cmdForfeit
	cmdDisconnect
	cmdReconnect
	cmdRejoin
	cmdExpire
	cmdGraceExpired
)

type command struct {
	kind     cmdKind
	playerID string
	word     string
}

// Actor drives a single match. All state transitions go through its inbox,
// one at a time, so the match behaves as a serial process; the state store's
// win-claim key remains the only cross-process coordination point.
type Actor struct {
	matchID string
	store   state.Store
	dict    *dictionary.Dictionary
	bots    *bot.Engine
	sender  Sender
	ratings *rating.Service

	disconnectGrace time.Duration

	inbox    chan command
	done     chan struct{}
	stopOnce sync.Once

	onFinished func(matchID string)

	// Bot bookkeeping, owned by the actor goroutine.
	botPlayerID string
	botState    *bot.State
	botTimer    *time.Timer

	graceTimers map[string]*time.Timer
	expireTimer *time.Timer
}

func newActor(m *Match, deps actorDeps) *Actor {
	a := &Actor{
		matchID:         m.ID,
		store:           deps.store,
		dict:            deps.dict,
		bots:            deps.bots,
		sender:          deps.sender,
		ratings:         deps.ratings,
		disconnectGrace: deps.disconnectGrace,
		inbox:           make(chan command, 32),
		done:            make(chan struct{}),
		onFinished:      deps.onFinished,
		graceTimers:     make(map[string]*time.Timer),
	}

	if botSlot := m.BotSlot(); botSlot != nil {
		a.botPlayerID = botSlot.ID
		st := bot.NewState(botSlot.Difficulty, m.Target, deps.dict)
		// Replay any guesses the bot already made (rehydration path).
		for _, g := range botSlot.Guesses {
			st = bot.Advance(st, g.Word)
		}
		a.botState = &st
	}

	if m.ExpiresAt > 0 {
		until := time.Until(time.UnixMilli(m.ExpiresAt))
		if until <= 0 {
			// Restored after its deadline; close it out immediately.
			until = time.Millisecond
		}
		a.expireTimer = time.AfterFunc(until, func() { a.post(command{kind: cmdExpire}) })
	}

	if a.botPlayerID != "" && len(m.Players[a.botPlayerID].Guesses) < MaxGuesses {
		a.scheduleBotTick()
	}

	go a.run()

	return a
}

type actorDeps struct {
	store           state.Store
	dict            *dictionary.Dictionary
	bots            *bot.Engine
	sender          Sender
	ratings         *rating.Service
	disconnectGrace time.Duration
	onFinished      func(matchID string)
}

func (a *Actor) run() {
	for {
		select {
		case <-a.done:
			// Drain anything enqueued during shutdown so callers still get
			// a terminal answer.
			for {
				select {
				case c := <-a.inbox:
					a.afterStop(c)
				default:
					return
				}
			}
		case c := <-a.inbox:
			a.handle(c)
		}
	}
}

func (a *Actor) post(c command) {
	select {
	case <-a.done:
		a.afterStop(c)
		return
	default:
	}
	select {
	case <-a.done:
		a.afterStop(c)
	case a.inbox <- c:
	}
}

// afterStop answers commands that raced the actor's shutdown. The match is
// finished by then, so player-facing commands get MATCH_NOT_ACTIVE.
func (a *Actor) afterStop(c command) {
	switch c.kind {
	case cmdGuess, cmdForfeit, cmdRejoin:
		a.sendInvalid(c.playerID, ErrMatchNotActive.Error())
	}
}

// SubmitGuess, Forfeit, Rejoin, Disconnect and Reconnect are the actor's
// public surface; each just enqueues work for the match goroutine.
func (a *Actor) SubmitGuess(playerID, word string) {
	a.post(command{kind: cmdGuess, playerID: playerID, word: word})
}

func (a *Actor) Forfeit(playerID string) {
	a.post(command{kind: cmdForfeit, playerID: playerID})
}

func (a *Actor) Rejoin(playerID string) {
	a.post(command{kind: cmdRejoin, playerID: playerID})
}

func (a *Actor) Disconnect(playerID string) {
	a.post(command{kind: cmdDisconnect, playerID: playerID})
}

func (a *Actor) Reconnect(playerID string) {
	a.post(command{kind: cmdReconnect, playerID: playerID})
}

func (a *Actor) stop() {
	a.stopOnce.Do(func() {
		if a.botTimer != nil {
			a.botTimer.Stop()
		}
		if a.expireTimer != nil {
			a.expireTimer.Stop()
		}
		for _, t := range a.graceTimers {
			t.Stop()
		}
		close(a.done)
	})
}

func (a *Actor) handle(c command) {
	switch c.kind {
	case cmdGuess:
		a.handleGuess(c.playerID, c.word)
	case cmdBotTick:
		a.handleBotTick()
	case cmdForfeit:
		a.handleForfeit(c.playerID, EndReasonForfeit)
	case cmdGraceExpired:
		a.handleGraceExpired(c.playerID)
	case cmdDisconnect:
		a.handleDisconnect(c.playerID)
	case cmdReconnect:
		if t, ok := a.graceTimers[c.playerID]; ok {
			t.Stop()
			delete(a.graceTimers, c.playerID)
		}
	case cmdRejoin:
		a.handleRejoin(c.playerID)
	case cmdExpire:
		a.handleExpire()
	}
}

// loadMatch reads the match through the store, retrying once on transient
// store failure per the error policy.
func (a *Actor) loadMatch(ctx context.Context) (*Match, error) {
	data, err := a.store.GetMatch(ctx, a.matchID)
	if err != nil && !errors.Is(err, state.ErrNotFound) {
		data, err = a.store.GetMatch(ctx, a.matchID)
	}
	if err != nil {
		return nil, err
	}
	var m Match
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

func (a *Actor) saveMatch(ctx context.Context, m *Match) error {
	data, err := json.Marshal(m)
	if err != nil {
		return err
	}
	if err := a.store.PutMatch(ctx, m.ID, data); err != nil {
		// One local retry before surfacing.
		if err = a.store.PutMatch(ctx, m.ID, data); err != nil {
			return err
		}
	}
	return nil
}

func (a *Actor) sendInvalid(playerID, code string) {
	a.sender.SendToPlayer(playerID, EventGuessInvalid, map[string]interface{}{"error": code})
}

func (a *Actor) handleGuess(playerID, word string) {
	ctx := context.Background()
	m, err := a.loadMatch(ctx)
	if err != nil {
		if errors.Is(err, state.ErrNotFound) {
			a.sender.SendToPlayer(playerID, EventNotFound, map[string]interface{}{"gameId": a.matchID})
			return
		}
		log.Printf("[MATCH] %s: load failed: %v", a.matchID, err)
		a.sendInvalid(playerID, "INTERNAL")
		return
	}

	slot, ok := m.Players[playerID]
	if !ok {
		a.sendInvalid(playerID, ErrNotYourMatch.Error())
		return
	}
	now := time.Now()
	if m.Status != StatusActive || m.Expired(now) {
		a.sendInvalid(playerID, ErrMatchNotActive.Error())
		return
	}
	if len(slot.Guesses) >= MaxGuesses {
		a.sendInvalid(playerID, ErrNoGuessesRemaining.Error())
		return
	}

	guess := strings.ToUpper(strings.TrimSpace(word))
	if len(guess) != dictionary.WordLength || !a.dict.IsValidGuess(guess) {
		a.sendInvalid(playerID, ErrInvalidGuess.Error())
		return
	}

	colors := dictionary.Evaluate(guess, m.Target)
	ts := now.UnixMilli()
	if n := len(slot.Guesses); n > 0 && ts <= slot.Guesses[n-1].Timestamp {
		ts = slot.Guesses[n-1].Timestamp + 1
	}
	record := GuessRecord{
		Word:      guess,
		Ordinal:   len(slot.Guesses) + 1,
		Timestamp: ts,
		Colors:    colors,
	}
	slot.Guesses = append(slot.Guesses, record)
	m.ReplayLog = append(m.ReplayLog, ReplayEvent{Type: "guess", PlayerID: playerID, Timestamp: ts, Word: guess})

	correct := guess == m.Target
	if correct {
		// First writer wins; a lost race means the opponent's correct guess
		// already committed on another path, so adopt that winner.
		claimed, err := a.store.TryClaimWinner(ctx, m.ID, playerID)
		if err != nil {
			claimed, err = a.store.TryClaimWinner(ctx, m.ID, playerID)
		}
		winnerID := playerID
		if err != nil {
			log.Printf("[MATCH] %s: win claim failed, keeping local winner: %v", m.ID, err)
		} else if !claimed {
			if claim, rerr := a.store.ReadWinner(ctx, m.ID); rerr == nil && claim != nil {
				winnerID = claim.PlayerID
			}
		}
		m.Status = StatusFinished
		m.WinnerID = winnerID
		m.EndReason = EndReasonSolve
		m.EndedAt = ts
	} else if m.bothExhausted() {
		m.Status = StatusFinished
		m.EndReason = EndReasonDraw
		m.EndedAt = ts
	}

	if err := a.saveMatch(ctx, m); err != nil {
		log.Printf("[MATCH] %s: persist failed: %v", m.ID, err)
		a.sendInvalid(playerID, "INTERNAL")
		return
	}

	// Full result to the guesser, masked colors-only view to the opponent.
	a.sender.SendToPlayer(playerID, EventGuessResult, map[string]interface{}{
		"word":             record.Word,
		"colors":           dictionary.ColorStrings(record.Colors),
		"guessNumber":      record.Ordinal,
		"isCorrect":        correct,
		"remainingGuesses": MaxGuesses - record.Ordinal,
	})
	oppID := m.Opponent(playerID)
	if opp := m.Players[oppID]; opp != nil && !opp.Synthetic {
		a.sender.SendToPlayer(oppID, EventOpponentGuess, map[string]interface{}{
			"colors":      dictionary.ColorStrings(record.Colors),
			"guessNumber": record.Ordinal,
		})
	}

	if m.Status == StatusFinished {
		a.finish(ctx, m)
	}
}

func (a *Actor) handleBotTick() {
	// The scheduled timer has fired; nothing is pending until rescheduled, so
	// a rejoin can tell a dead chain from a ticking one.
	a.botTimer = nil

	ctx := context.Background()
	m, err := a.loadMatch(ctx)
	if err != nil || m.Status != StatusActive || a.botState == nil {
		return
	}
	botSlot := m.Players[a.botPlayerID]
	if botSlot == nil || len(botSlot.Guesses) >= MaxGuesses {
		return
	}

	guess := a.bots.NextGuess(*a.botState)
	recorded := len(botSlot.Guesses)

	a.handleGuess(a.botPlayerID, guess)

	m2, err := a.loadMatch(ctx)
	if err != nil {
		return
	}
	slot := m2.Players[a.botPlayerID]
	if slot == nil {
		return
	}
	// Only a guess that actually landed narrows the bot's knowledge; a
	// rejected one must not leave a phantom constraint behind.
	if len(slot.Guesses) > recorded && slot.Guesses[len(slot.Guesses)-1].Word == guess {
		next := bot.Advance(*a.botState, guess)
		a.botState = &next
	}

	// Chain the next tick while the match is still running.
	if m2.Status == StatusActive && len(slot.Guesses) < MaxGuesses {
		a.scheduleBotTick()
	}
}

func (a *Actor) scheduleBotTick() {
	if a.botState == nil {
		return
	}
	delay := a.bots.PacingDelay(a.botState.Difficulty)
	if a.botTimer != nil {
		a.botTimer.Stop()
	}
	a.botTimer = time.AfterFunc(delay, func() { a.post(command{kind: cmdBotTick}) })
}

func (a *Actor) handleForfeit(playerID string, reason EndReason) {
	ctx := context.Background()
	m, err := a.loadMatch(ctx)
	if err != nil {
		if errors.Is(err, state.ErrNotFound) {
			a.sender.SendToPlayer(playerID, EventNotFound, map[string]interface{}{"gameId": a.matchID})
		}
		return
	}
	if _, ok := m.Players[playerID]; !ok {
		a.sendInvalid(playerID, ErrNotYourMatch.Error())
		return
	}
	if m.Status != StatusActive {
		a.sendInvalid(playerID, ErrMatchNotActive.Error())
		return
	}

	now := time.Now().UnixMilli()
	m.ReplayLog = append(m.ReplayLog, ReplayEvent{Type: "forfeit", PlayerID: playerID, Timestamp: now})
	m.Status = StatusFinished
	m.WinnerID = m.Opponent(playerID)
	m.EndReason = reason
	m.EndedAt = now

	if err := a.saveMatch(ctx, m); err != nil {
		log.Printf("[MATCH] %s: persist forfeit failed: %v", m.ID, err)
	}
	a.finish(ctx, m)
}

func (a *Actor) handleDisconnect(playerID string) {
	ctx := context.Background()
	m, err := a.loadMatch(ctx)
	if err != nil || m.Status != StatusActive {
		return
	}
	slot, ok := m.Players[playerID]
	if !ok || slot.Synthetic {
		return
	}
	// Bot matches never forfeit on disconnect: the human can rejoin any time
	// before the TTL, and the rating path needs a played-out result.
	if opp := m.Players[m.Opponent(playerID)]; opp != nil && opp.Synthetic {
		return
	}
	if _, pending := a.graceTimers[playerID]; pending {
		return
	}
	log.Printf("[MATCH] %s: player %s disconnected, grace %s", m.ID, playerID, a.disconnectGrace)
	a.graceTimers[playerID] = time.AfterFunc(a.disconnectGrace, func() {
		a.post(command{kind: cmdGraceExpired, playerID: playerID})
	})
}

func (a *Actor) handleGraceExpired(playerID string) {
	delete(a.graceTimers, playerID)
	a.handleForfeit(playerID, EndReasonForfeit)
}

func (a *Actor) handleRejoin(playerID string) {
	ctx := context.Background()
	m, err := a.loadMatch(ctx)
	if err != nil {
		a.sender.SendToPlayer(playerID, EventNotFound, map[string]interface{}{"gameId": a.matchID})
		return
	}
	slot, ok := m.Players[playerID]
	if !ok {
		a.sendInvalid(playerID, ErrNotYourMatch.Error())
		return
	}
	if m.Status != StatusActive {
		a.sendInvalid(playerID, ErrMatchNotActive.Error())
		return
	}

	if t, pending := a.graceTimers[playerID]; pending {
		t.Stop()
		delete(a.graceTimers, playerID)
	}

	oppID := m.Opponent(playerID)
	opp := m.Players[oppID]

	a.sender.SendToPlayer(playerID, EventRejoined, map[string]interface{}{
		"gameId":           m.ID,
		"guesses":          guessViews(slot.Guesses),
		"opponentProgress": maskedViews(opp.Guesses),
		"opponent":         opponentInfo(opp),
	})

	// A rejoining human may have slept through the bot's timer.
	if opp.Synthetic && len(opp.Guesses) < MaxGuesses && a.botTimer == nil {
		a.scheduleBotTick()
	}
}

func (a *Actor) handleExpire() {
	ctx := context.Background()
	m, err := a.loadMatch(ctx)
	if err != nil || m.Status != StatusActive {
		return
	}
	log.Printf("[MATCH] %s: TTL expired, closing as draw", m.ID)
	m.Status = StatusFinished
	m.EndReason = EndReasonExpired
	m.EndedAt = time.Now().UnixMilli()
	if err := a.saveMatch(ctx, m); err != nil {
		log.Printf("[MATCH] %s: persist expiry failed: %v", m.ID, err)
	}
	a.finish(ctx, m)
}

// finish runs the rating update and emits the terminal events, then retires
// the actor. Rating failures degrade to delta 0; players are never left
// without a game:end.
func (a *Actor) finish(ctx context.Context, m *Match) {
	var applied *rating.Applied
	if m.EndReason != EndReasonExpired {
		report := a.buildReport(m)
		var err error
		applied, err = a.ratings.Apply(ctx, report)
		if err != nil {
			log.Printf("[MATCH] %s: rating update failed: %v", m.ID, err)
			applied = nil
		}
	}

	for id, slot := range m.Players {
		if slot.Synthetic {
			continue
		}
		result := "draw"
		if m.WinnerID == id {
			result = "win"
		} else if m.WinnerID != "" {
			result = "loss"
		}

		delta, newElo := 0, slot.RatingAtStart
		if applied != nil {
			if winner, loser := a.reportSides(m); winner == id {
				delta, newElo = applied.WinnerDelta, applied.WinnerAfter
			} else if loser == id {
				delta, newElo = applied.LoserDelta, applied.LoserAfter
			}
		}

		opp := m.Players[m.Opponent(id)]
		a.sender.SendToPlayer(id, EventGameEnd, map[string]interface{}{
			"gameId":     m.ID,
			"result":     result,
			"reason":     string(m.EndReason),
			"targetWord": m.Target,
			"opponent": map[string]interface{}{
				"username": opp.DisplayName,
				"guesses":  guessViews(opp.Guesses),
			},
			"myGuesses": guessViews(slot.Guesses),
			"eloChange": delta,
			"newElo":    newElo,
		})
	}

	a.stop()
	if a.onFinished != nil {
		a.onFinished(m.ID)
	}
}

// reportSides returns (winnerID, loserID) as the rating report ordered them.
func (a *Actor) reportSides(m *Match) (string, string) {
	if m.WinnerID != "" {
		return m.WinnerID, m.Opponent(m.WinnerID)
	}
	return m.Order[0], m.Order[1]
}

func (a *Actor) buildReport(m *Match) rating.Report {
	winnerID, loserID := a.reportSides(m)
	winner, loser := m.Players[winnerID], m.Players[loserID]

	replay, err := json.Marshal(m.ReplayLog)
	if err != nil {
		replay = json.RawMessage("[]")
	}

	report := rating.Report{
		Winner:     participant(winner),
		Loser:      participant(loser),
		Draw:       m.WinnerID == "",
		TargetWord: m.Target,
		ReplayLog:  replay,
		Duration:   time.Duration(m.EndedAt-m.StartedAt) * time.Millisecond,
	}
	if botSlot := m.BotSlot(); botSlot != nil {
		report.BotDifficulty = string(botSlot.Difficulty)
	}
	return report
}

func participant(p *PlayerSlot) rating.Participant {
	return rating.Participant{
		UserID:       p.UserID,
		Synthetic:    p.Synthetic,
		RatingBefore: p.RatingAtStart,
	}
}

// guessViews is the full projection a player may see of their own guesses
// (and of anyone's once the match is over).
func guessViews(guesses []GuessRecord) []map[string]interface{} {
	out := make([]map[string]interface{}, len(guesses))
	for i, g := range guesses {
		out[i] = map[string]interface{}{
			"word":        g.Word,
			"colors":      dictionary.ColorStrings(g.Colors),
			"guessNumber": g.Ordinal,
		}
	}
	return out
}

// maskedViews is the opponent-facing projection: colors and ordinal only.
func maskedViews(guesses []GuessRecord) []map[string]interface{} {
	out := make([]map[string]interface{}, len(guesses))
	for i, g := range guesses {
		out[i] = map[string]interface{}{
			"colors":      dictionary.ColorStrings(g.Colors),
			"guessNumber": g.Ordinal,
		}
	}
	return out
}

func opponentInfo(p *PlayerSlot) map[string]interface{} {
	return map[string]interface{}{
		"username": p.DisplayName,
		"elo":      p.RatingAtStart,
		"isBot":    p.Synthetic,
	}
}
