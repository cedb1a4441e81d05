package rating

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/jmoiron/sqlx"
)

// ErrPersistence marks a failed rating commit. The match engine still reports
// the match as finished; only the rating write is lost.
var ErrPersistence = errors.New("rating: persistence error")

// Participant is one side of a finished match as the rating update sees it:
// the identity plus the rating captured at match creation. Intervening rating
// changes are deliberately not observed.
type Participant struct {
	UserID       int64
	Synthetic    bool
	RatingBefore int
}

// Report describes a finished match. On a draw, Winner and Loser are just
// the two slots; Draw disambiguates.
type Report struct {
	Winner        Participant
	Loser         Participant
	Draw          bool
	TargetWord    string
	ReplayLog     json.RawMessage
	Duration      time.Duration
	BotDifficulty string
}

// Applied carries the committed outcome back to the engine for the terminal
// event payloads.
type Applied struct {
	WinnerAfter int
	WinnerDelta int
	LoserAfter  int
	LoserDelta  int
}

// Service owns the ELO update protocol and its transactional coupling to
// match history.
type Service struct {
	db *sqlx.DB
}

func NewService(db *sqlx.DB) *Service {
	return &Service{db: db}
}

// Apply computes both new ratings from the pre-match pair and commits the
// user updates together with the match history row in one transaction.
// Bot matches move only the human's rating, at half K.
func (s *Service) Apply(ctx context.Context, r Report) (*Applied, error) {
	k := KFactor
	if r.Winner.Synthetic || r.Loser.Synthetic {
		k = KFactorBot
	}

	winnerOutcome, loserOutcome := OutcomeWin, OutcomeLoss
	if r.Draw {
		winnerOutcome, loserOutcome = OutcomeDraw, OutcomeDraw
	}

	applied := &Applied{
		WinnerAfter: NewRating(r.Winner.RatingBefore, r.Loser.RatingBefore, winnerOutcome, k),
		LoserAfter:  NewRating(r.Loser.RatingBefore, r.Winner.RatingBefore, loserOutcome, k),
	}
	// A synthetic opponent's rating is fixed table stance; it never moves.
	if r.Winner.Synthetic {
		applied.WinnerAfter = r.Winner.RatingBefore
	}
	if r.Loser.Synthetic {
		applied.LoserAfter = r.Loser.RatingBefore
	}
	applied.WinnerDelta = applied.WinnerAfter - r.Winner.RatingBefore
	applied.LoserDelta = applied.LoserAfter - r.Loser.RatingBefore

	if s.db == nil {
		log.Printf("[RATING] No DB configured; skipping persistence")
		return applied, nil
	}

	if err := s.commit(ctx, r, applied); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	return applied, nil
}

func (s *Service) commit(ctx context.Context, r Report, applied *Applied) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if !r.Winner.Synthetic {
		col := "wins"
		if r.Draw {
			col = "" // draws touch neither counter
		}
		if err := updateUser(tx, r.Winner.UserID, applied.WinnerAfter, col); err != nil {
			return err
		}
	}
	if !r.Loser.Synthetic {
		col := "losses"
		if r.Draw {
			col = ""
		}
		if err := updateUser(tx, r.Loser.UserID, applied.LoserAfter, col); err != nil {
			return err
		}
	}

	replay := r.ReplayLog
	if len(replay) == 0 {
		replay = json.RawMessage("[]")
	}

	isBotMatch := r.Winner.Synthetic || r.Loser.Synthetic
	_, err = tx.ExecContext(ctx, `
		INSERT INTO matches (
			winner_id, loser_id,
			winner_elo_before, winner_elo_after, loser_elo_before, loser_elo_after,
			is_draw, target_word, replay_log, duration_ms, is_bot_match, bot_difficulty, played_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9::jsonb,$10,$11,$12,NOW())`,
		nullableID(r.Winner), nullableID(r.Loser),
		r.Winner.RatingBefore, applied.WinnerAfter, r.Loser.RatingBefore, applied.LoserAfter,
		r.Draw, r.TargetWord, string(replay), r.Duration.Milliseconds(),
		isBotMatch, nullableString(r.BotDifficulty),
	)
	if err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return err
	}

	log.Printf("[RATING] Committed: winner %d->%d loser %d->%d draw=%v bot=%v",
		r.Winner.RatingBefore, applied.WinnerAfter, r.Loser.RatingBefore, applied.LoserAfter, r.Draw, isBotMatch)
	return nil
}

func updateUser(tx *sqlx.Tx, userID int64, newElo int, counter string) error {
	query := `UPDATE users SET elo=$1, games_played=games_played+1, last_active=NOW() WHERE id=$2`
	if counter == "wins" {
		query = `UPDATE users SET elo=$1, wins=wins+1, games_played=games_played+1, last_active=NOW() WHERE id=$2`
	} else if counter == "losses" {
		query = `UPDATE users SET elo=$1, losses=losses+1, games_played=games_played+1, last_active=NOW() WHERE id=$2`
	}
	res, err := tx.Exec(query, newElo, userID)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("user %d not found", userID)
	}
	return nil
}

func nullableID(p Participant) sql.NullInt64 {
	if p.Synthetic {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: p.UserID, Valid: true}
}

func nullableString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
