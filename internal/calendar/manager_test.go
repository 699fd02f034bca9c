package calendar

import (
	"context"
	"errors"
	"testing"
	"time"

	"calman/internal/eventstore"
)

func newAuthorizedManager(t *testing.T, store *eventstore.MemoryStore) *Manager {
	t.Helper()
	gate := NewGate(store, configWithUsageDescription())
	mgr := NewManager(store, gate)
	granted, err := mgr.Authorize(context.Background())
	if err != nil {
		t.Fatalf("Authorize() returned an error: %v", err)
	}
	if !granted {
		t.Fatal("Expected access to be granted")
	}
	return mgr
}

func testCalendars() []eventstore.Calendar {
	return []eventstore.Calendar{
		{ID: "cal-a", Title: "CalA", SourceTitle: "Local", Writable: true},
		{ID: "cal-b", Title: "CalB", SourceTitle: "Local", Writable: true},
	}
}

func TestManager_NotAuthorized(t *testing.T) {
	ctx := context.Background()
	store := eventstore.NewMemoryStore(true, testCalendars()...)
	gate := NewGate(store, configWithUsageDescription())
	mgr := NewManager(store, gate)

	// No Authorize call yet: every operation must refuse.
	if _, err := mgr.Calendars(ctx); !errors.Is(err, ErrNotAuthorized) {
		t.Errorf("Expected ErrNotAuthorized from Calendars, got %v", err)
	}
	day := time.Date(2024, time.March, 1, 0, 0, 0, 0, time.UTC)
	if _, err := mgr.EventsOnDay(ctx, day, nil); !errors.Is(err, ErrNotAuthorized) {
		t.Errorf("Expected ErrNotAuthorized from EventsOnDay, got %v", err)
	}
	if _, err := mgr.AddEvent(ctx, "X", day, time.Time{}); !errors.Is(err, ErrNotAuthorized) {
		t.Errorf("Expected ErrNotAuthorized from AddEvent, got %v", err)
	}
}

func TestManager_DeniedYieldsNotAuthorized(t *testing.T) {
	ctx := context.Background()
	store := eventstore.NewMemoryStore(false, testCalendars()...)
	gate := NewGate(store, configWithUsageDescription())
	mgr := NewManager(store, gate)

	granted, err := mgr.Authorize(ctx)
	if err != nil {
		t.Fatalf("Authorize() returned an error: %v", err)
	}
	if granted {
		t.Fatal("Expected access to be denied")
	}

	if _, err := mgr.Calendars(ctx); !errors.Is(err, ErrNotAuthorized) {
		t.Errorf("Expected ErrNotAuthorized after denial, got %v", err)
	}
}

func TestManager_CalendarsCachedOnce(t *testing.T) {
	ctx := context.Background()
	store := eventstore.NewMemoryStore(true, testCalendars()...)
	mgr := newAuthorizedManager(t, store)

	for i := 0; i < 3; i++ {
		calendars, err := mgr.Calendars(ctx)
		if err != nil {
			t.Fatalf("Calendars() returned an error: %v", err)
		}
		if len(calendars) != 2 {
			t.Fatalf("Expected 2 calendars, got %d", len(calendars))
		}
	}

	if store.CalendarFetchCount() != 1 {
		t.Errorf("Expected exactly 1 store fetch, got %d", store.CalendarFetchCount())
	}

	mgr.InvalidateCalendars()
	if _, err := mgr.Calendars(ctx); err != nil {
		t.Fatalf("Calendars() returned an error: %v", err)
	}
	if store.CalendarFetchCount() != 2 {
		t.Errorf("Expected a fresh fetch after invalidation, got %d fetches", store.CalendarFetchCount())
	}
}

func TestManager_EventsRejectsInvalidRange(t *testing.T) {
	ctx := context.Background()
	store := eventstore.NewMemoryStore(true, testCalendars()...)
	mgr := newAuthorizedManager(t, store)

	end := time.Date(2024, time.March, 1, 0, 0, 0, 0, time.UTC)
	_, err := mgr.Events(ctx, eventstore.NewRange(end.Add(time.Hour), end), nil)
	if err == nil {
		t.Error("Expected an error for an inverted range, got nil")
	}
}

func TestManager_DayQueryMatchesExplicitRange(t *testing.T) {
	ctx := context.Background()
	store := eventstore.NewMemoryStore(true, testCalendars()...)
	mgr := newAuthorizedManager(t, store)
	calendars, _ := mgr.Calendars(ctx)

	day := time.Date(2024, time.March, 1, 0, 0, 0, 0, time.UTC)
	seed := []time.Time{
		day.Add(0 * time.Hour),  // starts exactly at 00:00:00
		day.Add(12 * time.Hour), // mid-day
		day.Add(30 * time.Hour), // next day, excluded
	}
	for _, start := range seed {
		if _, err := mgr.AddEvent(ctx, "e", start, start.Add(30*time.Minute)); err != nil {
			t.Fatalf("AddEvent() returned an error: %v", err)
		}
	}

	byDay, err := mgr.EventsOnDay(ctx, day, calendars)
	if err != nil {
		t.Fatalf("EventsOnDay() returned an error: %v", err)
	}

	explicit := eventstore.NewRange(
		time.Date(2024, time.March, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2024, time.March, 1, 23, 59, 59, 0, time.UTC),
	)
	byRange, err := mgr.Events(ctx, explicit, calendars)
	if err != nil {
		t.Fatalf("Events() returned an error: %v", err)
	}

	if len(byDay) != 2 {
		t.Errorf("Expected 2 events on the day, got %d", len(byDay))
	}
	if len(byDay) != len(byRange) {
		t.Fatalf("Expected day query and explicit range to agree, got %d vs %d", len(byDay), len(byRange))
	}
	for i := range byDay {
		if byDay[i].ID != byRange[i].ID {
			t.Errorf("Event %d differs: %q vs %q", i, byDay[i].ID, byRange[i].ID)
		}
	}
}

func TestManager_MonthQueryBoundaries(t *testing.T) {
	ctx := context.Background()
	store := eventstore.NewMemoryStore(true, testCalendars()...)
	mgr := newAuthorizedManager(t, store)
	calendars, _ := mgr.Calendars(ctx)

	// Last second of February 2024 (leap year) is included; the first
	// instant of March is not.
	lastSecond := time.Date(2024, time.February, 29, 23, 59, 59, 0, time.UTC)
	firstOfNext := time.Date(2024, time.March, 1, 0, 0, 0, 0, time.UTC)

	if _, err := mgr.AddEvent(ctx, "in", lastSecond, lastSecond.Add(time.Hour)); err != nil {
		t.Fatalf("AddEvent() returned an error: %v", err)
	}
	if _, err := mgr.AddEvent(ctx, "out", firstOfNext, firstOfNext.Add(time.Hour)); err != nil {
		t.Fatalf("AddEvent() returned an error: %v", err)
	}

	events, err := mgr.EventsInMonth(ctx, time.Date(2024, time.February, 10, 12, 0, 0, 0, time.UTC), calendars)
	if err != nil {
		t.Fatalf("EventsInMonth() returned an error: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("Expected 1 event in February, got %d", len(events))
	}
	if events[0].Title != "in" {
		t.Errorf("Expected the event starting at the month's last second, got %q", events[0].Title)
	}
}

func TestMonthRange(t *testing.T) {
	r := MonthRange(time.Date(2024, time.February, 10, 12, 34, 56, 0, time.UTC))

	wantStart := time.Date(2024, time.February, 1, 0, 0, 0, 0, time.UTC)
	wantEnd := time.Date(2024, time.February, 29, 23, 59, 59, 0, time.UTC)
	if !r.Start.Equal(wantStart) {
		t.Errorf("Expected start %v, got %v", wantStart, r.Start)
	}
	if !r.End.Equal(wantEnd) {
		t.Errorf("Expected end %v, got %v", wantEnd, r.End)
	}
}

func TestManager_AddEventDefaultDuration(t *testing.T) {
	ctx := context.Background()
	store := eventstore.NewMemoryStore(true, testCalendars()...)
	mgr := newAuthorizedManager(t, store)

	start := time.Date(2024, time.March, 1, 10, 0, 0, 0, time.UTC)

	created, err := mgr.AddEvent(ctx, "Meeting", start, time.Time{})
	if err != nil {
		t.Fatalf("AddEvent() returned an error: %v", err)
	}
	if want := start.Add(2 * time.Hour); !created.End.Equal(want) {
		t.Errorf("Expected default end %v, got %v", want, created.End)
	}
	if created.CalendarID != "cal-a" {
		t.Errorf("Expected the default calendar cal-a, got %q", created.CalendarID)
	}

	explicit, err := mgr.AddEvent(ctx, "Short", start, start.Add(30*time.Minute))
	if err != nil {
		t.Fatalf("AddEvent() returned an error: %v", err)
	}
	if want := start.Add(30 * time.Minute); !explicit.End.Equal(want) {
		t.Errorf("Expected explicit end %v to be preserved, got %v", want, explicit.End)
	}
}

func TestManager_AddEventPersistenceError(t *testing.T) {
	ctx := context.Background()
	// Only a read-only calendar: DefaultCalendar fails.
	store := eventstore.NewMemoryStore(true, eventstore.Calendar{ID: "ro", Title: "RO", Writable: false})
	mgr := newAuthorizedManager(t, store)

	start := time.Date(2024, time.March, 1, 10, 0, 0, 0, time.UTC)
	_, err := mgr.AddEvent(ctx, "X", start, time.Time{})

	var perr *PersistenceError
	if !errors.As(err, &perr) {
		t.Fatalf("Expected a PersistenceError, got %v", err)
	}
	if perr.Unwrap() == nil {
		t.Error("Expected the persistence error to wrap a cause")
	}
}

func TestManager_EndToEnd(t *testing.T) {
	ctx := context.Background()
	store := eventstore.NewMemoryStore(true, testCalendars()...)
	gate := NewGate(store, configWithUsageDescription())
	mgr := NewManager(store, gate)

	granted, err := mgr.Authorize(ctx)
	if err != nil {
		t.Fatalf("Authorize() returned an error: %v", err)
	}
	if !granted {
		t.Fatal("Expected access to be granted")
	}

	calendars, err := mgr.Calendars(ctx)
	if err != nil {
		t.Fatalf("Calendars() returned an error: %v", err)
	}
	if len(calendars) != 2 || calendars[0].Title != "CalA" || calendars[1].Title != "CalB" {
		t.Fatalf("Expected [CalA CalB], got %v", calendars)
	}

	start := time.Date(2024, time.March, 1, 10, 0, 0, 0, time.UTC)
	created, err := mgr.AddEvent(ctx, "Meeting", start, time.Time{})
	if err != nil {
		t.Fatalf("AddEvent() returned an error: %v", err)
	}
	if want := time.Date(2024, time.March, 1, 12, 0, 0, 0, time.UTC); !created.End.Equal(want) {
		t.Errorf("Expected end %v, got %v", want, created.End)
	}

	events, err := mgr.EventsOnDay(ctx, time.Date(2024, time.March, 1, 0, 0, 0, 0, time.UTC), calendars)
	if err != nil {
		t.Fatalf("EventsOnDay() returned an error: %v", err)
	}
	found := false
	for _, ev := range events {
		if ev.ID == created.ID {
			found = true
		}
	}
	if !found {
		t.Error("Expected the created event to appear in the day query")
	}
}
