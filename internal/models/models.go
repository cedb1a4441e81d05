package models

import (
	"database/sql"
	"encoding/json"
	"time"
)

// User represents a registered player
type User struct {
	ID           int          `db:"id" json:"id"`
	Username     string       `db:"username" json:"username"`
	PasswordHash string       `db:"password_hash" json:"-"`
	Elo          int          `db:"elo" json:"elo"`
	Wins         int          `db:"wins" json:"wins"`
	Losses       int          `db:"losses" json:"losses"`
	GamesPlayed  int          `db:"games_played" json:"games_played"`
	CreatedAt    time.Time    `db:"created_at" json:"created_at"`
	LastActive   sql.NullTime `db:"last_active" json:"last_active,omitempty"`
}

// MatchRecord is the persisted row for a completed match.
// A null winner/loser id marks the synthetic side of a bot match.
type MatchRecord struct {
	ID              int             `db:"id" json:"id"`
	WinnerID        sql.NullInt64   `db:"winner_id" json:"winner_id,omitempty"`
	LoserID         sql.NullInt64   `db:"loser_id" json:"loser_id,omitempty"`
	WinnerEloBefore int             `db:"winner_elo_before" json:"winner_elo_before"`
	WinnerEloAfter  int             `db:"winner_elo_after" json:"winner_elo_after"`
	LoserEloBefore  int             `db:"loser_elo_before" json:"loser_elo_before"`
	LoserEloAfter   int             `db:"loser_elo_after" json:"loser_elo_after"`
	IsDraw          bool            `db:"is_draw" json:"is_draw"`
	TargetWord      string          `db:"target_word" json:"target_word"`
	ReplayLog       json.RawMessage `db:"replay_log" json:"replay_log"`
	DurationMs      int64           `db:"duration_ms" json:"duration_ms"`
	IsBotMatch      bool            `db:"is_bot_match" json:"is_bot_match"`
	BotDifficulty   sql.NullString  `db:"bot_difficulty" json:"bot_difficulty,omitempty"`
	PlayedAt        time.Time       `db:"played_at" json:"played_at"`
}
