// Package keyword scores the words appearing in recent event titles. Three
// recency windows ending today are queried — the last week, the last month
// and the last three months — and each occurrence contributes the weight of
// the window it falls in, so recent words rank higher.
package keyword

import (
	"context"
	"strings"
	"time"
	"unicode"

	"calman/internal/datemath"
	"calman/internal/eventstore"
)

// DefaultMinWordLength drops single-rune tokens, which are rarely useful as
// keywords.
const DefaultMinWordLength = 2

// Source is the slice of the calendar façade the extractor reads from.
type Source interface {
	Calendars(ctx context.Context) ([]eventstore.Calendar, error)
	Events(ctx context.Context, r eventstore.Range, calendars []eventstore.Calendar) ([]eventstore.Event, error)
}

// Extractor computes keyword scores from event titles.
type Extractor struct {
	source Source

	// MinWordLength is the minimum token length in runes; zero means
	// DefaultMinWordLength.
	MinWordLength int

	// Now exists so tests can pin the clock. Nil means time.Now.
	Now func() time.Time
}

// NewExtractor creates an Extractor over the given source.
func NewExtractor(source Source) *Extractor {
	return &Extractor{source: source}
}

type window struct {
	r      eventstore.Range
	weight float64
}

// Keywords tokenizes the titles of every event in the three recency windows
// and returns each token's accumulated score.
func (e *Extractor) Keywords(ctx context.Context) (map[string]float64, error) {
	now := time.Now()
	if e.Now != nil {
		now = e.Now()
	}
	minLength := e.MinWordLength
	if minLength <= 0 {
		minLength = DefaultMinWordLength
	}

	calendars, err := e.source.Calendars(ctx)
	if err != nil {
		return nil, err
	}

	todayEnd := datemath.EndOfDay(now)
	weekStart := datemath.StartOfDay(datemath.Shift(now, datemath.UnitDay, -7))
	monthStart := datemath.StartOfDay(datemath.Shift(now, datemath.UnitMonth, -1))
	threeMonthStart := datemath.StartOfDay(datemath.Shift(now, datemath.UnitMonth, -3))

	// Adjacent windows abut without overlapping: each older window ends one
	// second before the younger one starts.
	windows := []window{
		{eventstore.NewRange(weekStart, todayEnd), 1.0},
		{eventstore.NewRange(monthStart, datemath.Shift(weekStart, datemath.UnitSecond, -1)), 0.5},
		{eventstore.NewRange(threeMonthStart, datemath.Shift(monthStart, datemath.UnitSecond, -1)), 0.25},
	}

	scores := make(map[string]float64)
	for _, w := range windows {
		events, err := e.source.Events(ctx, w.r, calendars)
		if err != nil {
			return nil, err
		}
		for _, ev := range events {
			for _, token := range Tokenize(ev.Title, minLength) {
				scores[token] += w.weight
			}
		}
	}

	return scores, nil
}

// Tokenize splits text into lowercased words, dropping tokens shorter than
// minLength runes. A word is a maximal run of letters and digits.
func Tokenize(text string, minLength int) []string {
	fields := strings.FieldsFunc(text, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})

	var tokens []string
	for _, field := range fields {
		if len([]rune(field)) < minLength {
			continue
		}
		tokens = append(tokens, strings.ToLower(field))
	}
	return tokens
}
