package keyword

import (
	"context"
	"reflect"
	"testing"
	"time"

	"calman/internal/eventstore"
)

func TestTokenize(t *testing.T) {
	tests := []struct {
		name      string
		text      string
		minLength int
		want      []string
	}{
		{
			name:      "splits on punctuation and whitespace",
			text:      "1:1 with Dana / Planning",
			minLength: 2,
			want:      []string{"with", "dana", "planning"},
		},
		{
			name:      "lowercases",
			text:      "Sprint Review",
			minLength: 2,
			want:      []string{"sprint", "review"},
		},
		{
			name:      "drops short tokens by rune count",
			text:      "go to gym",
			minLength: 3,
			want:      []string{"gym"},
		},
		{
			name:      "empty title",
			text:      "",
			minLength: 2,
			want:      nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Tokenize(tt.text, tt.minLength)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Expected %v, got %v", tt.want, got)
			}
		})
	}
}

// seededSource wraps a MemoryStore as a keyword Source without the
// authorization gate, which the extractor does not own.
type seededSource struct {
	store *eventstore.MemoryStore
}

func (s seededSource) Calendars(ctx context.Context) ([]eventstore.Calendar, error) {
	return s.store.Calendars(ctx)
}

func (s seededSource) Events(ctx context.Context, r eventstore.Range, calendars []eventstore.Calendar) ([]eventstore.Event, error) {
	return s.store.Events(ctx, r, calendars)
}

func TestKeywords_WeightsByRecency(t *testing.T) {
	ctx := context.Background()
	cal := eventstore.Calendar{ID: "cal-a", Title: "A", Writable: true}
	store := eventstore.NewMemoryStore(true, cal)

	now := time.Date(2024, time.June, 15, 12, 0, 0, 0, time.UTC)
	seed := func(title string, start time.Time) {
		t.Helper()
		_, err := store.CreateEvent(ctx, eventstore.Event{
			Title:      title,
			Start:      start,
			End:        start.Add(time.Hour),
			CalendarID: cal.ID,
		})
		if err != nil {
			t.Fatalf("CreateEvent() returned an error: %v", err)
		}
	}

	seed("Standup", now.AddDate(0, 0, -1))      // last week: weight 1.0
	seed("Standup", now.AddDate(0, 0, -14))     // last month: weight 0.5
	seed("Standup", now.AddDate(0, 0, -60))     // last three months: weight 0.25
	seed("Retro", now.AddDate(0, 0, -2))        // last week only
	seed("Archived", now.AddDate(0, 0, -200))   // outside all windows
	seed("Planning", now.AddDate(0, 0, 30))     // future, outside all windows

	extractor := NewExtractor(seededSource{store})
	extractor.Now = func() time.Time { return now }

	scores, err := extractor.Keywords(ctx)
	if err != nil {
		t.Fatalf("Keywords() returned an error: %v", err)
	}

	if got := scores["standup"]; got != 1.75 {
		t.Errorf("Expected standup to score 1.75, got %v", got)
	}
	if got := scores["retro"]; got != 1.0 {
		t.Errorf("Expected retro to score 1.0, got %v", got)
	}
	if _, ok := scores["archived"]; ok {
		t.Error("Expected events outside all windows to be ignored")
	}
	if _, ok := scores["planning"]; ok {
		t.Error("Expected future events to be ignored")
	}
}

func TestKeywords_EventCountedOncePerWindow(t *testing.T) {
	ctx := context.Background()
	cal := eventstore.Calendar{ID: "cal-a", Title: "A", Writable: true}
	store := eventstore.NewMemoryStore(true, cal)

	now := time.Date(2024, time.June, 15, 12, 0, 0, 0, time.UTC)

	// Exactly seven days ago at midnight: the boundary belongs to the
	// one-week window, and the older windows end a second earlier.
	boundary := time.Date(2024, time.June, 8, 0, 0, 0, 0, time.UTC)
	_, err := store.CreateEvent(ctx, eventstore.Event{
		Title:      "Boundary",
		Start:      boundary,
		End:        boundary.Add(time.Minute),
		CalendarID: cal.ID,
	})
	if err != nil {
		t.Fatalf("CreateEvent() returned an error: %v", err)
	}

	extractor := NewExtractor(seededSource{store})
	extractor.Now = func() time.Time { return now }

	scores, err := extractor.Keywords(ctx)
	if err != nil {
		t.Fatalf("Keywords() returned an error: %v", err)
	}
	if got := scores["boundary"]; got != 1.0 {
		t.Errorf("Expected the boundary event to score exactly 1.0, got %v", got)
	}
}
