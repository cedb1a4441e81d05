package bot

import "time"

// Difficulty selects a behavior profile for the synthetic opponent.
type Difficulty string

const (
	Easy       Difficulty = "easy"
	Medium     Difficulty = "medium"
	Hard       Difficulty = "hard"
	Impossible Difficulty = "impossible"
)

// Profile tunes how the bot picks and paces its guesses.
type Profile struct {
	// TopN is the size of the entropy shortlist the bot picks from.
	// 0 means greedy-random: skip entropy ranking and pick a random
	// candidate outright.
	TopN int

	// CommonFilter restricts candidate answers to the common-words subset
	// so the bot's guesses look like something a person would play.
	CommonFilter bool

	// EarliestSolve is the first guess ordinal on which the bot is allowed
	// to play the actual answer.
	EarliestSolve int

	// PacingMin/PacingMax bound the think-time delay before submitting.
	PacingMin time.Duration
	PacingMax time.Duration

	// Noise perturbs entropy scores; WasteChance occasionally swaps the
	// pick for an information-only throwaway word.
	Noise       float64
	WasteChance float64

	// Rating is the fixed ELO the synthetic opponent plays at.
	Rating int
}

var profiles = map[Difficulty]Profile{
	Easy: {
		TopN:          0,
		CommonFilter:  true,
		EarliestSolve: 4,
		PacingMin:     30 * time.Second,
		PacingMax:     35 * time.Second,
		Noise:         0.20,
		WasteChance:   0.20,
		Rating:        800,
	},
	Medium: {
		TopN:          20,
		CommonFilter:  true,
		EarliestSolve: 3,
		PacingMin:     22 * time.Second,
		PacingMax:     30 * time.Second,
		Noise:         0.10,
		WasteChance:   0.10,
		Rating:        1100,
	},
	Hard: {
		TopN:          5,
		CommonFilter:  false,
		EarliestSolve: 2,
		PacingMin:     18 * time.Second,
		PacingMax:     22 * time.Second,
		Noise:         0.05,
		WasteChance:   0,
		Rating:        1400,
	},
	Impossible: {
		TopN:          1,
		CommonFilter:  false,
		EarliestSolve: 1,
		PacingMin:     10 * time.Second,
		PacingMax:     20 * time.Second,
		Noise:         0,
		WasteChance:   0,
		Rating:        1800,
	},
}

// ProfileFor returns the behavior profile for a difficulty.
func ProfileFor(d Difficulty) Profile {
	if p, ok := profiles[d]; ok {
		return p
	}
	return profiles[Medium]
}

// DifficultyForRating picks the bot tier a player falls back to when
// matchmaking times out.
func DifficultyForRating(rating int) Difficulty {
	switch {
	case rating < 900:
		return Easy
	case rating < 1200:
		return Medium
	case rating < 1500:
		return Hard
	default:
		return Impossible
	}
}
