package bot

import (
	"math"
	"math/rand"
	"sort"
	"time"

	"github.com/wordrush/backend/internal/dictionary"
)

// Openers are precomputed high-entropy first guesses for the non-easy tiers.
var Openers = []string{"SALET", "CRANE", "SLATE", "TRACE", "CRATE"}

const (
	samplePoolSize = 500
	wasteTopSize   = 50
)

// Constraint is one observed (guess, pattern) pair.
type Constraint struct {
	Guess   string `json:"guess"`
	Pattern string `json:"pattern"`
}

// State is the bot's knowledge for one match. It is a value: Advance returns
// a new State and never mutates the receiver, so ownership can stay with the
// match actor driving the bot.
type State struct {
	Difficulty  Difficulty   `json:"difficulty"`
	Target      string       `json:"target"`
	Remaining   []string     `json:"remaining"`
	Constraints []Constraint `json:"constraints"`
	GuessCount  int          `json:"guessCount"`
}

// NewState seeds a bot for a match; Remaining starts as the full answer list.
func NewState(d Difficulty, target string, dict *dictionary.Dictionary) State {
	remaining := make([]string, len(dict.Answers()))
	copy(remaining, dict.Answers())
	return State{
		Difficulty: d,
		Target:     target,
		Remaining:  remaining,
	}
}

// Consistent reports whether answer could still be the target given history:
// every past guess must produce the recorded pattern against it.
func Consistent(answer string, constraints []Constraint) bool {
	for _, c := range constraints {
		if dictionary.Pattern(c.Guess, answer) != c.Pattern {
			return false
		}
	}
	return true
}

// Entropy is the expected information gain of playing candidate against the
// remaining answer set: partition the set by resulting pattern and take the
// Shannon entropy of the bucket sizes.
func Entropy(candidate string, remaining []string) float64 {
	if len(remaining) == 0 {
		return 0
	}
	buckets := make(map[string]int)
	for _, answer := range remaining {
		buckets[dictionary.Pattern(candidate, answer)]++
	}
	total := float64(len(remaining))
	var h float64
	for _, n := range buckets {
		p := float64(n) / total
		h -= p * math.Log2(p)
	}
	return h
}

// Advance applies one played guess: record the constraint it produced and
// filter the remaining answers through it.
func Advance(s State, guess string) State {
	pattern := dictionary.Pattern(guess, s.Target)
	next := State{
		Difficulty: s.Difficulty,
		Target:     s.Target,
		GuessCount: s.GuessCount + 1,
	}

	next.Constraints = make([]Constraint, len(s.Constraints), len(s.Constraints)+1)
	copy(next.Constraints, s.Constraints)
	next.Constraints = append(next.Constraints, Constraint{Guess: guess, Pattern: pattern})

	for _, answer := range s.Remaining {
		if dictionary.Pattern(guess, answer) == pattern {
			next.Remaining = append(next.Remaining, answer)
		}
	}
	return next
}

// Engine selects guesses. It is safe for use by one match actor at a time;
// the shared dictionary is immutable.
type Engine struct {
	dict *dictionary.Dictionary
	rng  *rand.Rand
}

func NewEngine(dict *dictionary.Dictionary) *Engine {
	return &Engine{
		dict: dict,
		rng:  rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// NewEngineWithSeed is for deterministic tests.
func NewEngineWithSeed(dict *dictionary.Dictionary, seed int64) *Engine {
	return &Engine{dict: dict, rng: rand.New(rand.NewSource(seed))}
}

// PacingDelay samples the human-like think time before a guess lands.
func (e *Engine) PacingDelay(d Difficulty) time.Duration {
	p := ProfileFor(d)
	span := p.PacingMax - p.PacingMin
	if span <= 0 {
		return p.PacingMin
	}
	return p.PacingMin + time.Duration(e.rng.Int63n(int64(span)))
}

// NextGuess produces the bot's next word. The caller records it with Advance.
func (e *Engine) NextGuess(s State) string {
	profile := ProfileFor(s.Difficulty)
	ordinal := s.GuessCount + 1

	// Opening book.
	if ordinal == 1 && len(s.Constraints) == 0 {
		if s.Difficulty == Easy {
			common := e.dict.CommonWords()
			w := common[e.rng.Intn(len(common))]
			// The opener must not luck into the answer before the tier is
			// allowed to solve.
			for profile.EarliestSolve > 1 && w == s.Target && len(common) > 1 {
				w = common[e.rng.Intn(len(common))]
			}
			return w
		}
		return Openers[e.rng.Intn(len(Openers))]
	}

	candidates := s.Remaining
	if profile.CommonFilter {
		filtered := make([]string, 0, len(candidates))
		for _, w := range candidates {
			if e.dict.IsCommon(w) {
				filtered = append(filtered, w)
			}
		}
		if len(filtered) > 0 {
			candidates = filtered
		}
	}

	var guess string
	switch {
	case len(candidates) == 1 && ordinal >= profile.EarliestSolve:
		guess = candidates[0]
	case len(candidates) == 2 && ordinal >= profile.EarliestSolve:
		guess = candidates[e.rng.Intn(2)]
	default:
		guess = e.pickScored(s, candidates, profile)
	}

	// Hold back any live candidate when solving is not yet allowed, and
	// sometimes burn a guess on an information-only word regardless.
	if (ordinal < profile.EarliestSolve && containsWord(s.Remaining, guess)) ||
		(profile.WasteChance > 0 && e.rng.Float64() < profile.WasteChance) {
		if waste := e.wasteWord(s.Constraints, s.Target); waste != "" {
			guess = waste
		}
	}
	if ordinal < profile.EarliestSolve && guess == s.Target {
		if alt := e.anyOtherWord(s.Target); alt != "" {
			guess = alt
		}
	}

	return guess
}

// anyOtherWord is the last-resort burner when every consistent word is the
// target itself.
func (e *Engine) anyOtherWord(target string) string {
	valid := e.dict.ValidWords()
	for i := 0; i < 20; i++ {
		if w := valid[e.rng.Intn(len(valid))]; w != target {
			return w
		}
	}
	return ""
}

// pickScored ranks a candidate pool by noisy entropy and picks per profile.
func (e *Engine) pickScored(s State, candidates []string, profile Profile) string {
	// Greedy-random tier skips entropy entirely.
	if profile.TopN == 0 {
		return candidates[e.rng.Intn(len(candidates))]
	}

	pool := make([]string, 0, len(candidates)+samplePoolSize)
	pool = append(pool, candidates...)
	seen := make(map[string]struct{}, len(pool))
	for _, w := range pool {
		seen[w] = struct{}{}
	}

	// Sprinkle in random valid guesses for diversity; non-answers can still
	// split the remaining set better than any answer does.
	valid := e.dict.ValidWords()
	for i := 0; i < samplePoolSize && len(valid) > 0; i++ {
		w := valid[e.rng.Intn(len(valid))]
		if _, dup := seen[w]; dup {
			continue
		}
		seen[w] = struct{}{}
		pool = append(pool, w)
	}

	type scored struct {
		word  string
		score float64
	}
	ranked := make([]scored, 0, len(pool))
	for _, w := range pool {
		score := Entropy(w, s.Remaining)
		if profile.Noise > 0 {
			score += profile.Noise * (e.rng.Float64() - 0.5)
		}
		ranked = append(ranked, scored{word: w, score: score})
	}
	sort.Slice(ranked, func(i, j int) bool { return ranked[i].score > ranked[j].score })

	topN := profile.TopN
	if topN > len(ranked) {
		topN = len(ranked)
	}
	top := ranked[:topN]

	if topN == 1 {
		return top[0].word
	}

	// When the common filter is on, prefer a common word from the shortlist.
	if profile.CommonFilter {
		var commonTop []string
		for _, c := range top {
			if e.dict.IsCommon(c.word) {
				commonTop = append(commonTop, c.word)
			}
		}
		if len(commonTop) > 0 {
			return commonTop[e.rng.Intn(len(commonTop))]
		}
	}

	return top[e.rng.Intn(len(top))].word
}

// wasteWord picks a throwaway guess: still consistent with everything seen,
// but chosen for letter coverage rather than solving. The exclude word is
// never returned.
func (e *Engine) wasteWord(constraints []Constraint, exclude string) string {
	type scored struct {
		word     string
		distinct int
	}
	var pool []scored
	for _, w := range e.dict.ValidWords() {
		if w == exclude || !Consistent(w, constraints) {
			continue
		}
		pool = append(pool, scored{word: w, distinct: distinctLetters(w)})
	}
	if len(pool) == 0 {
		return ""
	}
	sort.Slice(pool, func(i, j int) bool { return pool[i].distinct > pool[j].distinct })

	top := wasteTopSize
	if top > len(pool) {
		top = len(pool)
	}
	return pool[e.rng.Intn(top)].word
}

func containsWord(words []string, w string) bool {
	for _, x := range words {
		if x == w {
			return true
		}
	}
	return false
}

func distinctLetters(word string) int {
	var seen [26]bool
	n := 0
	for i := 0; i < len(word); i++ {
		idx := word[i] - 'A'
		if idx < 26 && !seen[idx] {
			seen[idx] = true
			n++
		}
	}
	return n
}
