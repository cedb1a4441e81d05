package rating

import "math"

const (
	// KFactor applies to human-vs-human matches; bot matches use half.
	KFactor    = 32
	KFactorBot = 16

	Scale         = 400
	FloorRating   = 100
	DefaultRating = 1200
)

// Outcome is the score S in the ELO update.
type Outcome float64

const (
	OutcomeLoss Outcome = 0
	OutcomeDraw Outcome = 0.5
	OutcomeWin  Outcome = 1
)

// ExpectedScore is E = 1 / (1 + 10^((opponent - rating) / 400)).
func ExpectedScore(rating, opponent int) float64 {
	exponent := float64(opponent-rating) / Scale
	return 1.0 / (1.0 + math.Pow(10, exponent))
}

// NewRating applies round(r + K*(S - E)) clamped to the floor.
func NewRating(rating, opponent int, outcome Outcome, k int) int {
	change := float64(k) * (float64(outcome) - ExpectedScore(rating, opponent))
	updated := rating + int(math.Round(change))
	if updated < FloorRating {
		updated = FloorRating
	}
	return updated
}

// Delta returns just the rating change for a player.
func Delta(rating, opponent int, outcome Outcome, k int) int {
	return NewRating(rating, opponent, outcome, k) - rating
}
