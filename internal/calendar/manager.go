// Package calendar is the application-facing façade over an event store: an
// authorization gate, a cached calendar list, range/day/month event queries
// and event creation.
package calendar

import (
	"context"
	"sync"
	"time"

	"calman/internal/datemath"
	"calman/internal/eventstore"
)

// defaultEventDuration is applied when AddEvent is called without an end time.
const defaultEventDuration = 2 * time.Hour

// Manager exposes calendar queries and event creation over an event store,
// refusing every operation until its Gate has resolved to Authorized.
//
// The calendar list is fetched once and cached for the life of the process;
// calendars added or removed externally are not observed until
// InvalidateCalendars is called or the process restarts.
type Manager struct {
	store eventstore.Store
	gate  *Gate

	mu        sync.Mutex
	calendars []eventstore.Calendar
	loaded    bool
}

// NewManager creates a Manager over the given store and gate. The gate must
// wrap the same store's authorization state.
func NewManager(store eventstore.Store, gate *Gate) *Manager {
	return &Manager{store: store, gate: gate}
}

// Authorize resolves the authorization gate. See Gate.Authorize.
func (m *Manager) Authorize(ctx context.Context) (bool, error) {
	return m.gate.Authorize(ctx)
}

func (m *Manager) requireAuthorized() error {
	if m.gate.Status() != eventstore.StatusAuthorized {
		return ErrNotAuthorized
	}
	return nil
}

// Calendars returns the store's calendars, fetching them on first use and
// serving the cached list afterwards. Concurrent first calls perform a single
// fetch.
func (m *Manager) Calendars(ctx context.Context) ([]eventstore.Calendar, error) {
	if err := m.requireAuthorized(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.loaded {
		calendars, err := m.store.Calendars(ctx)
		if err != nil {
			return nil, err
		}
		m.calendars = calendars
		m.loaded = true
	}

	return append([]eventstore.Calendar(nil), m.calendars...), nil
}

// InvalidateCalendars drops the cached calendar list so the next Calendars
// call fetches a fresh one.
func (m *Manager) InvalidateCalendars() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calendars = nil
	m.loaded = false
}

// Events returns all events in the given calendars intersecting r. The range
// is treated as a closed interval: events starting exactly at r.End or ending
// exactly at r.Start are included.
func (m *Manager) Events(ctx context.Context, r eventstore.Range, calendars []eventstore.Calendar) ([]eventstore.Event, error) {
	if err := m.requireAuthorized(); err != nil {
		return nil, err
	}
	if err := r.Validate(); err != nil {
		return nil, err
	}
	return m.store.Events(ctx, r, calendars)
}

// DayRange is the closed range covering one day: [00:00:00, 23:59:59].
func DayRange(day time.Time) eventstore.Range {
	return eventstore.NewRange(datemath.StartOfDay(day), datemath.EndOfDay(day))
}

// MonthRange is the closed range covering one month: from the first instant
// of the month to the first instant of the next month minus one second. An
// event starting exactly at the next month's first instant is outside it.
func MonthRange(month time.Time) eventstore.Range {
	start := datemath.StartOfMonth(month)
	end := datemath.Shift(datemath.Shift(start, datemath.UnitMonth, 1), datemath.UnitSecond, -1)
	return eventstore.NewRange(start, end)
}

// EventsOnDay returns the events of a single day, equivalent to Events over
// DayRange(day).
func (m *Manager) EventsOnDay(ctx context.Context, day time.Time, calendars []eventstore.Calendar) ([]eventstore.Event, error) {
	return m.Events(ctx, DayRange(day), calendars)
}

// EventsInMonth returns the events of a whole month, equivalent to Events
// over MonthRange(month).
func (m *Manager) EventsInMonth(ctx context.Context, month time.Time, calendars []eventstore.Calendar) ([]eventstore.Event, error) {
	return m.Events(ctx, MonthRange(month), calendars)
}

// AddEvent creates an event on the store's default calendar. A zero end time
// defaults to start plus two hours. Store rejections surface as a
// *PersistenceError wrapping the cause; the save is not retried.
func (m *Manager) AddEvent(ctx context.Context, title string, start time.Time, end time.Time) (eventstore.Event, error) {
	if err := m.requireAuthorized(); err != nil {
		return eventstore.Event{}, err
	}

	if end.IsZero() {
		end = start.Add(defaultEventDuration)
	}

	target, err := m.store.DefaultCalendar(ctx)
	if err != nil {
		return eventstore.Event{}, &PersistenceError{Err: err}
	}

	created, err := m.store.CreateEvent(ctx, eventstore.Event{
		Title:      title,
		Start:      start,
		End:        end,
		CalendarID: target.ID,
	})
	if err != nil {
		return eventstore.Event{}, &PersistenceError{Err: err}
	}

	return created, nil
}
