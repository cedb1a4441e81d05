package dictionary

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
)

// Color is the per-position outcome of a guess letter.
type Color int

const (
	Grey Color = iota
	Yellow
	Green
)

// String returns the wire value used by the realtime protocol.
func (c Color) String() string {
	switch c {
	case Green:
		return "green"
	case Yellow:
		return "yellow"
	default:
		return "grey"
	}
}

func (c Color) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.String())
}

func (c *Color) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	switch s {
	case "green":
		*c = Green
	case "yellow":
		*c = Yellow
	case "grey":
		*c = Grey
	default:
		return fmt.Errorf("unknown color %q", s)
	}
	return nil
}

// patternRune is the compact single-letter form used for constraint matching.
func (c Color) patternRune() byte {
	switch c {
	case Green:
		return 'G'
	case Yellow:
		return 'Y'
	default:
		return 'X'
	}
}

const WordLength = 5

var ErrEmptyAnswerList = errors.New("answer list is empty")

// Dictionary holds the immutable word lists. Loaded once at startup and
// safe for concurrent use afterwards.
type Dictionary struct {
	answers     []string
	validSet    map[string]struct{}
	validWords  []string
	commonWords []string
	commonSet   map[string]struct{}
}

// Load reads answers.json, valid_guesses.json and common_words.json from dir.
// Words on disk are lowercase; everything is uppercased in memory.
// common_words.json is optional; the answer list stands in when it is absent.
func Load(dir string) (*Dictionary, error) {
	answers, err := loadWordFile(filepath.Join(dir, "answers.json"))
	if err != nil {
		return nil, fmt.Errorf("load answers: %w", err)
	}
	valid, err := loadWordFile(filepath.Join(dir, "valid_guesses.json"))
	if err != nil {
		return nil, fmt.Errorf("load valid guesses: %w", err)
	}

	common, err := loadWordFile(filepath.Join(dir, "common_words.json"))
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("load common words: %w", err)
		}
		common = nil
	}

	return New(answers, valid, common)
}

// New builds a dictionary from already-loaded word lists. The valid set
// always includes the answers.
func New(answers, validGuesses, commonWords []string) (*Dictionary, error) {
	d := &Dictionary{
		validSet:  make(map[string]struct{}, len(validGuesses)+len(answers)),
		commonSet: make(map[string]struct{}, len(commonWords)),
	}

	for _, w := range answers {
		w = normalize(w)
		if len(w) != WordLength {
			continue
		}
		d.answers = append(d.answers, w)
		d.validSet[w] = struct{}{}
	}
	for _, w := range validGuesses {
		w = normalize(w)
		if len(w) != WordLength {
			continue
		}
		if _, seen := d.validSet[w]; !seen {
			d.validSet[w] = struct{}{}
		}
	}
	for w := range d.validSet {
		d.validWords = append(d.validWords, w)
	}
	for _, w := range commonWords {
		w = normalize(w)
		if _, ok := d.validSet[w]; ok {
			d.commonWords = append(d.commonWords, w)
			d.commonSet[w] = struct{}{}
		}
	}
	if len(d.commonWords) == 0 {
		d.commonWords = d.answers
		for _, w := range d.answers {
			d.commonSet[w] = struct{}{}
		}
	}

	if len(d.answers) == 0 {
		return nil, ErrEmptyAnswerList
	}
	return d, nil
}

func loadWordFile(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var words []string
	if err := json.Unmarshal(data, &words); err != nil {
		return nil, fmt.Errorf("parse %s: %w", filepath.Base(path), err)
	}
	return words, nil
}

func normalize(word string) string {
	return strings.ToUpper(strings.TrimSpace(word))
}

// RandomAnswer picks a target word uniformly from the answer list.
func (d *Dictionary) RandomAnswer() string {
	return d.answers[rand.Intn(len(d.answers))]
}

// IsValidGuess reports whether word is an acceptable guess (case-insensitive).
func (d *Dictionary) IsValidGuess(word string) bool {
	w := normalize(word)
	if len(w) != WordLength {
		return false
	}
	_, ok := d.validSet[w]
	return ok
}

// IsCommon reports whether word belongs to the curated common-words subset.
func (d *Dictionary) IsCommon(word string) bool {
	_, ok := d.commonSet[normalize(word)]
	return ok
}

// Answers returns the full answer list. Callers must not mutate it.
func (d *Dictionary) Answers() []string { return d.answers }

// ValidWords returns every acceptable guess. Callers must not mutate it.
func (d *Dictionary) ValidWords() []string { return d.validWords }

// CommonWords returns the curated common subset. Callers must not mutate it.
func (d *Dictionary) CommonWords() []string { return d.commonWords }

// Evaluate computes the color feedback for guess against target.
// First pass marks exact positions green and consumes them; second pass marks
// a position yellow only if an unconsumed target position holds the letter,
// consuming the leftmost such position. This is what makes duplicate letters
// come out right (ALLOY vs LLAMA -> Y,G,Y,X,X).
func Evaluate(guess, target string) [WordLength]Color {
	var colors [WordLength]Color
	var used [WordLength]bool

	g := normalize(guess)
	t := normalize(target)

	for i := 0; i < WordLength; i++ {
		if g[i] == t[i] {
			colors[i] = Green
			used[i] = true
		}
	}

	for i := 0; i < WordLength; i++ {
		if colors[i] == Green {
			continue
		}
		for j := 0; j < WordLength; j++ {
			if !used[j] && g[i] == t[j] {
				colors[i] = Yellow
				used[j] = true
				break
			}
		}
	}

	return colors
}

// Pattern flattens Evaluate's result into a 5-char string over {G,Y,X},
// the form the bot engine keys its constraint buckets by.
func Pattern(guess, target string) string {
	colors := Evaluate(guess, target)
	var b [WordLength]byte
	for i, c := range colors {
		b[i] = c.patternRune()
	}
	return string(b[:])
}

// ColorStrings converts an evaluation to its wire representation.
func ColorStrings(colors [WordLength]Color) []string {
	out := make([]string, WordLength)
	for i, c := range colors {
		out[i] = c.String()
	}
	return out
}
