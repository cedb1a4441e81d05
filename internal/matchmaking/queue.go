package matchmaking

import (
	"context"
	"errors"
	"log"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/wordrush/backend/internal/bot"
	"github.com/wordrush/backend/internal/game"
	"github.com/wordrush/backend/internal/state"
)

// Events emitted while a player sits in the queue.
const (
	EventSearching = "matchmaking:searching"
	EventCancelled = "matchmaking:cancelled"
)

// ErrAlreadyQueued rejects a second matchmaking:start from the same player.
var ErrAlreadyQueued = errors.New("player already queued")

// Candidate is one waiting player.
type Candidate struct {
	Player     game.PlayerInfo
	EnqueuedAt time.Time
}

// MatchFunc seats two paired humans. BotFunc seats one human against a bot.
type MatchFunc func(a, b game.PlayerInfo)
type BotFunc func(p game.PlayerInfo, d bot.Difficulty)

// Queue pairs waiting players by rating, widening the acceptable gap the
// longer they wait, and falls back to a bot once the wait budget is spent.
// One scan loop owns all pairing decisions; Enqueue and Cancel just edit
// the waiting set.
type Queue struct {
	mu      sync.Mutex
	waiting map[string]*Candidate

	store  state.Store
	sender game.Sender

	matchFn MatchFunc
	botFn   BotFunc

	waitBudget    time.Duration
	retryInterval time.Duration
	initialBand   int
	maxBand       int

	stop     chan struct{}
	stopOnce sync.Once
}

func NewQueue(store state.Store, sender game.Sender, matchFn MatchFunc, botFn BotFunc, waitBudget, retryInterval time.Duration, initialBand, maxBand int) *Queue {
	return &Queue{
		waiting:       make(map[string]*Candidate),
		store:         store,
		sender:        sender,
		matchFn:       matchFn,
		botFn:         botFn,
		waitBudget:    waitBudget,
		retryInterval: retryInterval,
		initialBand:   initialBand,
		maxBand:       maxBand,
		stop:          make(chan struct{}),
	}
}

// Run drives the periodic scan until Stop.
func (q *Queue) Run() {
	ticker := time.NewTicker(q.retryInterval)
	defer ticker.Stop()
	log.Printf("[MATCHMAKING] Queue worker started (retry=%s budget=%s band=%d..%d)",
		q.retryInterval, q.waitBudget, q.initialBand, q.maxBand)
	for {
		select {
		case <-q.stop:
			return
		case <-ticker.C:
			q.scan(time.Now())
		}
	}
}

func (q *Queue) Stop() {
	q.stopOnce.Do(func() { close(q.stop) })
}

// Enqueue adds a player and tries an immediate pairing pass so two compatible
// players do not wait out a full retry interval.
func (q *Queue) Enqueue(p game.PlayerInfo) error {
	q.mu.Lock()
	if _, dup := q.waiting[p.ID]; dup {
		q.mu.Unlock()
		return ErrAlreadyQueued
	}
	q.waiting[p.ID] = &Candidate{Player: p, EnqueuedAt: time.Now()}
	q.mu.Unlock()

	if err := q.store.TouchQueueEntry(context.Background(), p.ID, q.waitBudget*2); err != nil {
		log.Printf("[MATCHMAKING] liveness touch failed for %s: %v", p.ID, err)
	}

	q.sender.SendToPlayer(p.ID, EventSearching, map[string]interface{}{
		"estimatedWait": q.waitBudget.Milliseconds(),
	})
	log.Printf("[MATCHMAKING] %s queued (elo=%d)", p.ID, p.Rating)

	q.scan(time.Now())
	return nil
}

// Cancel removes a player; returns false if they were not waiting (already
// matched or never queued).
func (q *Queue) Cancel(playerID string) bool {
	q.mu.Lock()
	_, ok := q.waiting[playerID]
	if ok {
		delete(q.waiting, playerID)
	}
	q.mu.Unlock()
	if !ok {
		return false
	}

	if err := q.store.DropQueueEntry(context.Background(), playerID); err != nil {
		log.Printf("[MATCHMAKING] drop liveness for %s: %v", playerID, err)
	}
	q.sender.SendToPlayer(playerID, EventCancelled, map[string]interface{}{})
	log.Printf("[MATCHMAKING] %s cancelled", playerID)
	return true
}

// Waiting reports the current queue depth.
func (q *Queue) Waiting() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.waiting)
}

// Band returns the acceptable rating gap after a given wait: linear from the
// initial band to the max band over the wait budget, capped there.
func (q *Queue) Band(waited time.Duration) int {
	if waited >= q.waitBudget {
		return q.maxBand
	}
	frac := float64(waited) / float64(q.waitBudget)
	return q.initialBand + int(math.Round(frac*float64(q.maxBand-q.initialBand)))
}

// scan pairs compatible candidates oldest-first, then resolves exhausted
// waits with bot matches. Pairing and fallback decisions all happen under
// one lock pass; the seat callbacks run outside it.
func (q *Queue) scan(now time.Time) {
	// Liveness checks round-trip to the store, so they run unlocked; Enqueue
	// and Cancel must not stall behind them.
	q.mu.Lock()
	ids := make([]string, 0, len(q.waiting))
	for id := range q.waiting {
		ids = append(ids, id)
	}
	q.mu.Unlock()

	stale := make(map[string]bool)
	for _, id := range ids {
		if !q.alive(id) {
			stale[id] = true
		}
	}

	type pair struct{ a, b game.PlayerInfo }
	var pairs []pair
	var botSeats []game.PlayerInfo

	q.mu.Lock()
	for id := range stale {
		if _, ok := q.waiting[id]; ok {
			log.Printf("[MATCHMAKING] %s stale, dropping", id)
			delete(q.waiting, id)
		}
	}

	candidates := make([]*Candidate, 0, len(q.waiting))
	for _, c := range q.waiting {
		candidates = append(candidates, c)
	}
	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].EnqueuedAt.Before(candidates[j].EnqueuedAt)
	})

	taken := make(map[string]bool)
	for i, c := range candidates {
		if taken[c.Player.ID] {
			continue
		}

		cBand := q.Band(now.Sub(c.EnqueuedAt))
		var best *Candidate
		bestGap := math.MaxInt32
		for _, o := range candidates[i+1:] {
			if taken[o.Player.ID] {
				continue
			}
			gap := abs(c.Player.Rating - o.Player.Rating)
			oBand := q.Band(now.Sub(o.EnqueuedAt))
			// Both bands must admit the gap.
			if gap <= cBand && gap <= oBand && gap < bestGap {
				best, bestGap = o, gap
			}
		}
		if best != nil {
			taken[c.Player.ID], taken[best.Player.ID] = true, true
			delete(q.waiting, c.Player.ID)
			delete(q.waiting, best.Player.ID)
			pairs = append(pairs, pair{a: c.Player, b: best.Player})
			continue
		}

		if now.Sub(c.EnqueuedAt) >= q.waitBudget {
			taken[c.Player.ID] = true
			delete(q.waiting, c.Player.ID)
			botSeats = append(botSeats, c.Player)
		}
	}
	q.mu.Unlock()

	ctx := context.Background()
	for _, p := range pairs {
		q.store.DropQueueEntry(ctx, p.a.ID)
		q.store.DropQueueEntry(ctx, p.b.ID)
		log.Printf("[MATCHMAKING] Paired %s (%d) with %s (%d)", p.a.ID, p.a.Rating, p.b.ID, p.b.Rating)
		q.matchFn(p.a, p.b)
	}
	for _, p := range botSeats {
		q.store.DropQueueEntry(ctx, p.ID)
		d := bot.DifficultyForRating(p.Rating)
		log.Printf("[MATCHMAKING] %s waited out the budget, seating bot (%s)", p.ID, d)
		q.botFn(p, d)
	}
}

// alive checks the Redis liveness key; a missing key means the owning
// connection or process went away without cancelling.
func (q *Queue) alive(playerID string) bool {
	ok, err := q.store.QueueEntryAlive(context.Background(), playerID)
	if err != nil {
		// Store trouble should not evict waiting players.
		return true
	}
	return ok
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
