package eventstore

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// MemoryStore is an in-memory Store. It backs the demo CLI when no real
// backend is configured and doubles as the deterministic fixture for tests:
// the consent outcome is scripted at construction and the number of prompts
// is observable.
type MemoryStore struct {
	mu        sync.Mutex
	status    Status
	grant     bool
	prompts   int
	listCalls int
	calendars []Calendar
	events    map[string][]Event
	nextID    int
}

// NewMemoryStore creates a MemoryStore whose RequestAccess resolves to grant.
// The store starts in StatusNotDetermined with the given calendars.
func NewMemoryStore(grant bool, calendars ...Calendar) *MemoryStore {
	return &MemoryStore{
		grant:     grant,
		calendars: append([]Calendar(nil), calendars...),
		events:    make(map[string][]Event),
	}
}

// SetStatus forces the authorization state, e.g. to model a policy-restricted
// store.
func (s *MemoryStore) SetStatus(status Status) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status = status
}

// PromptCount reports how many times RequestAccess actually prompted.
func (s *MemoryStore) PromptCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.prompts
}

// CalendarFetchCount reports how many times Calendars was called.
func (s *MemoryStore) CalendarFetchCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.listCalls
}

func (s *MemoryStore) AuthorizationStatus(ctx context.Context) (Status, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status, nil
}

func (s *MemoryStore) RequestAccess(ctx context.Context) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.status != StatusNotDetermined {
		return s.status == StatusAuthorized, nil
	}

	s.prompts++
	if s.grant {
		s.status = StatusAuthorized
	} else {
		s.status = StatusDenied
	}
	return s.status == StatusAuthorized, nil
}

func (s *MemoryStore) Calendars(ctx context.Context) ([]Calendar, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listCalls++
	return append([]Calendar(nil), s.calendars...), nil
}

func (s *MemoryStore) Events(ctx context.Context, r Range, calendars []Calendar) ([]Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []Event
	for _, cal := range calendars {
		for _, ev := range s.events[cal.ID] {
			if r.Intersects(ev) {
				out = append(out, ev)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Start.Before(out[j].Start) })
	return out, nil
}

func (s *MemoryStore) DefaultCalendar(ctx context.Context) (Calendar, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, cal := range s.calendars {
		if cal.Writable {
			return cal, nil
		}
	}
	return Calendar{}, fmt.Errorf("no writable calendar available")
}

func (s *MemoryStore) CreateEvent(ctx context.Context, ev Event) (Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var target *Calendar
	for i := range s.calendars {
		if s.calendars[i].ID == ev.CalendarID {
			target = &s.calendars[i]
			break
		}
	}
	if target == nil {
		return Event{}, fmt.Errorf("unknown calendar %q", ev.CalendarID)
	}
	if !target.Writable {
		return Event{}, fmt.Errorf("calendar %q is read-only", target.Title)
	}

	s.nextID++
	ev.ID = fmt.Sprintf("evt-%d", s.nextID)
	s.events[ev.CalendarID] = append(s.events[ev.CalendarID], ev)
	return ev, nil
}
