package game

import (
	"errors"
	"time"

	"github.com/wordrush/backend/internal/bot"
	"github.com/wordrush/backend/internal/dictionary"
)

// MaxGuesses is the per-player guess quota.
const MaxGuesses = 6

// Status is the externally observable match lifecycle state. Matches are
// published only once active, so there is no visible waiting state.
type Status string

const (
	StatusActive   Status = "ACTIVE"
	StatusFinished Status = "FINISHED"
)

// EndReason explains how a finished match terminated.
type EndReason string

const (
	EndReasonSolve   EndReason = "solve"
	EndReasonDraw    EndReason = "draw"
	EndReasonForfeit EndReason = "forfeit"
	EndReasonExpired EndReason = "expired"
)

// Guess validation errors, surfaced to clients by code (see gateway).
var (
	ErrInvalidGuess       = errors.New("INVALID_GUESS")
	ErrNotYourMatch       = errors.New("NOT_YOUR_MATCH")
	ErrMatchNotActive     = errors.New("MATCH_NOT_ACTIVE")
	ErrNoGuessesRemaining = errors.New("NO_GUESSES_REMAINING")
	ErrMatchNotFound      = errors.New("MATCH_NOT_FOUND")
)

// GuessRecord is one evaluated guess in a player's slot.
type GuessRecord struct {
	Word      string                              `json:"word"`
	Ordinal   int                                 `json:"ordinal"`
	Timestamp int64                               `json:"timestamp"`
	Colors    [dictionary.WordLength]dictionary.Color `json:"colors"`
}

// PlayerSlot is one side of a match.
type PlayerSlot struct {
	ID            string         `json:"id"`
	UserID        int64          `json:"userId,omitempty"`
	DisplayName   string         `json:"displayName"`
	RatingAtStart int            `json:"ratingAtStart"`
	Guesses       []GuessRecord  `json:"guesses"`
	Synthetic     bool           `json:"synthetic,omitempty"`
	Difficulty    bot.Difficulty `json:"difficulty,omitempty"`
}

// ReplayEvent is one entry in the ordered match replay log.
type ReplayEvent struct {
	Type      string `json:"type"` // "guess" or "forfeit"
	PlayerID  string `json:"playerId"`
	Timestamp int64  `json:"timestamp"`
	Word      string `json:"word,omitempty"`
}

// Match is the authoritative live state persisted in the state store.
type Match struct {
	ID        string                 `json:"id"`
	Target    string                 `json:"target"`
	Status    Status                 `json:"status"`
	StartedAt int64                  `json:"startedAt"`
	EndedAt   int64                  `json:"endedAt,omitempty"`
	ExpiresAt int64                  `json:"expiresAt"`
	Players   map[string]*PlayerSlot `json:"players"`
	Order     [2]string              `json:"order"`
	WinnerID  string                 `json:"winnerId,omitempty"`
	EndReason EndReason              `json:"endReason,omitempty"`
	ReplayLog []ReplayEvent          `json:"replayLog"`
}

// Opponent returns the other slot's player id.
func (m *Match) Opponent(playerID string) string {
	if m.Order[0] == playerID {
		return m.Order[1]
	}
	return m.Order[0]
}

// BotSlot returns the synthetic slot, if any.
func (m *Match) BotSlot() *PlayerSlot {
	for _, p := range m.Players {
		if p.Synthetic {
			return p
		}
	}
	return nil
}

// Expired reports whether the match has outlived its TTL.
func (m *Match) Expired(now time.Time) bool {
	return m.ExpiresAt > 0 && now.UnixMilli() >= m.ExpiresAt
}

// bothExhausted reports whether both players have used the full quota.
func (m *Match) bothExhausted() bool {
	for _, p := range m.Players {
		if len(p.Guesses) < MaxGuesses {
			return false
		}
	}
	return true
}
