package dictionary

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testDict(t *testing.T) *Dictionary {
	t.Helper()
	d, err := New(
		[]string{"llama", "crane", "slate", "plumb", "alloy"},
		[]string{"salet", "trace", "adieu", "quart"},
		[]string{"crane", "slate"},
	)
	require.NoError(t, err)
	return d
}

func TestEvaluate(t *testing.T) {
	tests := []struct {
		name   string
		guess  string
		target string
		want   [WordLength]Color
	}{
		{
			name:   "all green on exact match",
			guess:  "CRANE",
			target: "CRANE",
			want:   [WordLength]Color{Green, Green, Green, Green, Green},
		},
		{
			name:   "all grey on disjoint letters",
			guess:  "PLUMB",
			target: "CRANE",
			want:   [WordLength]Color{Grey, Grey, Grey, Grey, Grey},
		},
		{
			name:   "duplicate letters consume target positions",
			guess:  "ALLOY",
			target: "LLAMA",
			want:   [WordLength]Color{Yellow, Green, Yellow, Grey, Grey},
		},
		{
			name:   "duplicates go grey once the target copy is consumed",
			guess:  "GEESE",
			target: "THOSE",
			want:   [WordLength]Color{Grey, Grey, Grey, Green, Green},
		},
		{
			name:   "green consumes before yellow",
			guess:  "SLATE",
			target: "STALE",
			want:   [WordLength]Color{Green, Yellow, Green, Yellow, Green},
		},
		{
			name:   "lowercase input is normalized",
			guess:  "crane",
			target: "CRANE",
			want:   [WordLength]Color{Green, Green, Green, Green, Green},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Evaluate(tt.guess, tt.target))
		})
	}
}

func TestEvaluateSelfIsAlwaysGreen(t *testing.T) {
	d := testDict(t)
	for _, w := range d.Answers() {
		colors := Evaluate(w, w)
		for i, c := range colors {
			assert.Equal(t, Green, c, "word %s position %d", w, i)
		}
	}
}

func TestPattern(t *testing.T) {
	assert.Equal(t, "YGYXX", Pattern("ALLOY", "LLAMA"))
	assert.Equal(t, "GGGGG", Pattern("CRANE", "CRANE"))
	assert.Equal(t, "XXXXX", Pattern("PLUMB", "CRANE"))
}

func TestIsValidGuess(t *testing.T) {
	d := testDict(t)

	assert.True(t, d.IsValidGuess("CRANE"), "answers are valid guesses")
	assert.True(t, d.IsValidGuess("ADIEU"), "guess-only words are valid")
	assert.True(t, d.IsValidGuess("adieu"), "case-insensitive")
	assert.False(t, d.IsValidGuess("ZZZZZ"))
	assert.False(t, d.IsValidGuess("CRAN"))
	assert.False(t, d.IsValidGuess("CRANES"))
}

func TestIsCommon(t *testing.T) {
	d := testDict(t)
	assert.True(t, d.IsCommon("CRANE"))
	assert.False(t, d.IsCommon("PLUMB"))
	assert.False(t, d.IsCommon("ADIEU"), "non-answer words cannot be common")
}

func TestCommonFallsBackToAnswers(t *testing.T) {
	d, err := New([]string{"llama"}, nil, nil)
	require.NoError(t, err)
	assert.True(t, d.IsCommon("LLAMA"))
}

func TestNewRejectsEmptyAnswers(t *testing.T) {
	_, err := New(nil, []string{"adieu"}, nil)
	assert.ErrorIs(t, err, ErrEmptyAnswerList)
}

func TestRandomAnswerIsAnAnswer(t *testing.T) {
	d := testDict(t)
	for i := 0; i < 50; i++ {
		w := d.RandomAnswer()
		assert.Contains(t, d.Answers(), w)
	}
}

func TestColorJSONRoundTrip(t *testing.T) {
	colors := [WordLength]Color{Green, Yellow, Grey, Green, Yellow}

	data, err := json.Marshal(colors)
	require.NoError(t, err)
	assert.JSONEq(t, `["green","yellow","grey","green","yellow"]`, string(data))

	var back [WordLength]Color
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, colors, back)
}

func TestColorUnmarshalRejectsUnknown(t *testing.T) {
	var c Color
	assert.Error(t, json.Unmarshal([]byte(`"purple"`), &c))
}

func TestColorStrings(t *testing.T) {
	got := ColorStrings([WordLength]Color{Green, Grey, Yellow, Grey, Grey})
	assert.Equal(t, []string{"green", "grey", "yellow", "grey", "grey"}, got)
}
