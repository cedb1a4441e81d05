package accounts

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/wordrush/backend/internal/models"
	"github.com/wordrush/backend/internal/rating"
)

var (
	ErrUsernameTaken = errors.New("username already taken")
	ErrNotFound      = errors.New("user not found")
)

const userColumns = `id, username, password_hash, elo, wins, losses, games_played, created_at, last_active`

// CreateUser inserts a new user at the default rating.
func CreateUser(db *sqlx.DB, username, passwordHash string) (*models.User, error) {
	if db == nil {
		return nil, fmt.Errorf("db is nil")
	}

	var u models.User
	err := db.Get(&u, `
		INSERT INTO users (username, password_hash, elo, created_at)
		VALUES ($1, $2, $3, NOW())
		RETURNING `+userColumns,
		username, passwordHash, rating.DefaultRating)
	if err != nil {
		if strings.Contains(err.Error(), "duplicate key") {
			return nil, ErrUsernameTaken
		}
		return nil, err
	}
	return &u, nil
}

// GetByID fetches a user by primary key.
func GetByID(db *sqlx.DB, id int) (*models.User, error) {
	var u models.User
	if err := db.Get(&u, `SELECT `+userColumns+` FROM users WHERE id=$1`, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &u, nil
}

// GetByUsername fetches a user for login.
func GetByUsername(db *sqlx.DB, username string) (*models.User, error) {
	var u models.User
	if err := db.Get(&u, `SELECT `+userColumns+` FROM users WHERE username=$1`, username); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &u, nil
}

// Leaderboard returns the top players by rating.
func Leaderboard(db *sqlx.DB, limit int) ([]models.User, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	users := []models.User{}
	err := db.Select(&users, `
		SELECT `+userColumns+` FROM users
		ORDER BY elo DESC, games_played DESC, username ASC
		LIMIT $1`, limit)
	return users, err
}

// RecentMatches returns a user's most recent finished matches.
func RecentMatches(db *sqlx.DB, userID, limit int) ([]models.MatchRecord, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	matches := []models.MatchRecord{}
	err := db.Select(&matches, `
		SELECT id, winner_id, loser_id,
		       winner_elo_before, winner_elo_after, loser_elo_before, loser_elo_after,
		       is_draw, target_word, replay_log, duration_ms, is_bot_match, bot_difficulty, played_at
		FROM matches
		WHERE winner_id=$1 OR loser_id=$1
		ORDER BY played_at DESC
		LIMIT $2`, userID, limit)
	return matches, err
}
