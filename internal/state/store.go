package state

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrNotFound is returned when a key has no live value (missing or expired).
var ErrNotFound = errors.New("state: key not found")

// WinClaim records which player first claimed victory for a match.
type WinClaim struct {
	PlayerID  string `json:"playerId"`
	ClaimedAt int64  `json:"claimedAt"`
}

// Store is the live match state store. It is the single coordination point
// between processes: all match mutations read-modify-write through it, and
// TryClaimWinner arbitrates simultaneous correct guesses.
type Store interface {
	GetMatch(ctx context.Context, matchID string) ([]byte, error)
	PutMatch(ctx context.Context, matchID string, data []byte) error
	DeleteMatch(ctx context.Context, matchID string) error

	// TryClaimWinner is atomic first-writer-wins: it returns true exactly
	// once per matchID across all concurrent callers.
	TryClaimWinner(ctx context.Context, matchID, playerID string) (bool, error)
	ReadWinner(ctx context.Context, matchID string) (*WinClaim, error)

	// TouchQueueEntry refreshes the liveness key for a queued player;
	// QueueEntryAlive reports whether it has not yet expired.
	TouchQueueEntry(ctx context.Context, playerID string, ttl time.Duration) error
	DropQueueEntry(ctx context.Context, playerID string) error
	QueueEntryAlive(ctx context.Context, playerID string) (bool, error)
}

const winClaimTTL = 2 * time.Minute

// RedisStore implements Store on a Redis client, the same way the rest of
// the system persists transient state: JSON values with a TTL.
type RedisStore struct {
	rdb      *redis.Client
	matchTTL time.Duration
}

func NewRedisStore(rdb *redis.Client, matchTTL time.Duration) *RedisStore {
	if matchTTL <= 0 {
		matchTTL = time.Hour
	}
	return &RedisStore{rdb: rdb, matchTTL: matchTTL}
}

func matchKey(matchID string) string  { return "match:" + matchID + ":state" }
func winnerKey(matchID string) string { return "match:" + matchID + ":winner" }
func queueKey(playerID string) string { return "queue:player:" + playerID }

func (s *RedisStore) GetMatch(ctx context.Context, matchID string) ([]byte, error) {
	data, err := s.rdb.Get(ctx, matchKey(matchID)).Bytes()
	if err == redis.Nil {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return data, nil
}

func (s *RedisStore) PutMatch(ctx context.Context, matchID string, data []byte) error {
	return s.rdb.SetEx(ctx, matchKey(matchID), data, s.matchTTL).Err()
}

func (s *RedisStore) DeleteMatch(ctx context.Context, matchID string) error {
	return s.rdb.Del(ctx, matchKey(matchID), winnerKey(matchID)).Err()
}

func (s *RedisStore) TryClaimWinner(ctx context.Context, matchID, playerID string) (bool, error) {
	claim := WinClaim{PlayerID: playerID, ClaimedAt: time.Now().UnixMilli()}
	payload, err := json.Marshal(claim)
	if err != nil {
		return false, err
	}
	return s.rdb.SetNX(ctx, winnerKey(matchID), payload, winClaimTTL).Result()
}

func (s *RedisStore) ReadWinner(ctx context.Context, matchID string) (*WinClaim, error) {
	data, err := s.rdb.Get(ctx, winnerKey(matchID)).Bytes()
	if err == redis.Nil {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var claim WinClaim
	if err := json.Unmarshal(data, &claim); err != nil {
		return nil, err
	}
	return &claim, nil
}

func (s *RedisStore) TouchQueueEntry(ctx context.Context, playerID string, ttl time.Duration) error {
	return s.rdb.Set(ctx, queueKey(playerID), "1", ttl).Err()
}

func (s *RedisStore) DropQueueEntry(ctx context.Context, playerID string) error {
	return s.rdb.Del(ctx, queueKey(playerID)).Err()
}

func (s *RedisStore) QueueEntryAlive(ctx context.Context, playerID string) (bool, error) {
	n, err := s.rdb.Exists(ctx, queueKey(playerID)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// MemoryStore is an in-process Store used by tests and single-node runs
// without Redis. Expiry is checked lazily on read.
type MemoryStore struct {
	mu       sync.Mutex
	matches  map[string]memEntry
	winners  map[string]WinClaim
	queue    map[string]time.Time
	matchTTL time.Duration
}

type memEntry struct {
	data      []byte
	expiresAt time.Time
}

func NewMemoryStore(matchTTL time.Duration) *MemoryStore {
	if matchTTL <= 0 {
		matchTTL = time.Hour
	}
	return &MemoryStore{
		matches:  make(map[string]memEntry),
		winners:  make(map[string]WinClaim),
		queue:    make(map[string]time.Time),
		matchTTL: matchTTL,
	}
}

func (s *MemoryStore) GetMatch(ctx context.Context, matchID string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.matches[matchID]
	if !ok || time.Now().After(e.expiresAt) {
		delete(s.matches, matchID)
		return nil, ErrNotFound
	}
	out := make([]byte, len(e.data))
	copy(out, e.data)
	return out, nil
}

func (s *MemoryStore) PutMatch(ctx context.Context, matchID string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := make([]byte, len(data))
	copy(cp, data)
	s.matches[matchID] = memEntry{data: cp, expiresAt: time.Now().Add(s.matchTTL)}
	return nil
}

func (s *MemoryStore) DeleteMatch(ctx context.Context, matchID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.matches, matchID)
	delete(s.winners, matchID)
	return nil
}

func (s *MemoryStore) TryClaimWinner(ctx context.Context, matchID, playerID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, claimed := s.winners[matchID]; claimed {
		return false, nil
	}
	s.winners[matchID] = WinClaim{PlayerID: playerID, ClaimedAt: time.Now().UnixMilli()}
	return true, nil
}

func (s *MemoryStore) ReadWinner(ctx context.Context, matchID string) (*WinClaim, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	claim, ok := s.winners[matchID]
	if !ok {
		return nil, ErrNotFound
	}
	return &claim, nil
}

func (s *MemoryStore) TouchQueueEntry(ctx context.Context, playerID string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queue[playerID] = time.Now().Add(ttl)
	return nil
}

func (s *MemoryStore) DropQueueEntry(ctx context.Context, playerID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.queue, playerID)
	return nil
}

func (s *MemoryStore) QueueEntryAlive(ctx context.Context, playerID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	exp, ok := s.queue[playerID]
	if !ok || time.Now().After(exp) {
		delete(s.queue, playerID)
		return false, nil
	}
	return true, nil
}
