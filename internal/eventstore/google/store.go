// Package google implements the event store over the Google Calendar API.
//
// Authorization maps onto the OAuth flow: no stored token means the user has
// never been asked (not determined), the interactive consent flow is the one
// user-facing prompt, and a completed or failed exchange is the terminal
// outcome.
package google

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	calendar "google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"

	"calman/internal/auth"
	"calman/internal/eventstore"
)

const sourceTitle = "Google"

// Store is an eventstore.Store backed by the Google Calendar API.
type Store struct {
	flow *auth.Flow

	mu      sync.Mutex
	service *calendar.Service
	status  eventstore.Status
}

// New creates a Store that authorizes through the given OAuth flow. No
// network traffic happens until the store is used.
func New(flow *auth.Flow) *Store {
	return &Store{flow: flow}
}

// AuthorizationStatus reports Authorized when a token is already stored,
// NotDetermined when the user has never completed the consent flow. It never
// prompts.
func (s *Store) AuthorizationStatus(ctx context.Context) (eventstore.Status, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.status != eventstore.StatusNotDetermined {
		return s.status, nil
	}

	has, err := s.flow.HasToken()
	if err != nil {
		return eventstore.StatusNotDetermined, err
	}
	if !has {
		return eventstore.StatusNotDetermined, nil
	}

	if err := s.connectLocked(ctx); err != nil {
		return eventstore.StatusNotDetermined, err
	}
	s.status = eventstore.StatusAuthorized
	return s.status, nil
}

// RequestAccess runs the interactive consent flow when the state is not yet
// determined. A failed or abandoned flow records Denied; it is not retried.
func (s *Store) RequestAccess(ctx context.Context) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.status != eventstore.StatusNotDetermined {
		return s.status == eventstore.StatusAuthorized, nil
	}

	if err := s.connectLocked(ctx); err != nil {
		s.status = eventstore.StatusDenied
		return false, err
	}

	s.status = eventstore.StatusAuthorized
	return true, nil
}

func (s *Store) connectLocked(ctx context.Context) error {
	if s.service != nil {
		return nil
	}

	httpClient, err := s.flow.Client(ctx)
	if err != nil {
		return err
	}

	service, err := calendar.NewService(ctx, option.WithHTTPClient(httpClient))
	if err != nil {
		return fmt.Errorf("failed to create calendar service: %w", err)
	}

	s.service = service
	return nil
}

func (s *Store) ready() (*calendar.Service, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.service == nil {
		return nil, fmt.Errorf("calendar service not connected: request access first")
	}
	return s.service, nil
}

// Calendars lists the user's calendars.
func (s *Store) Calendars(ctx context.Context) ([]eventstore.Calendar, error) {
	service, err := s.ready()
	if err != nil {
		return nil, err
	}

	list, err := service.CalendarList.List().Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("failed to list calendars: %w", err)
	}

	calendars := make([]eventstore.Calendar, 0, len(list.Items))
	for _, item := range list.Items {
		calendars = append(calendars, eventstore.Calendar{
			ID:          item.Id,
			Title:       item.Summary,
			SourceTitle: sourceTitle,
			Writable:    item.AccessRole == "owner" || item.AccessRole == "writer",
		})
	}
	return calendars, nil
}

// Events searches each calendar with SingleEvents=true so recurring events
// arrive as expanded instances. The API treats timeMin/timeMax as exclusive
// bounds on the opposite ends of an event, so the request window is widened
// by a second on each side and the results are re-filtered against the
// closed-interval contract.
func (s *Store) Events(ctx context.Context, r eventstore.Range, calendars []eventstore.Calendar) ([]eventstore.Event, error) {
	service, err := s.ready()
	if err != nil {
		return nil, err
	}

	var out []eventstore.Event
	for _, cal := range calendars {
		list, err := service.Events.List(cal.ID).
			TimeMin(r.Start.Add(-time.Second).Format(time.RFC3339)).
			TimeMax(r.End.Add(time.Second).Format(time.RFC3339)).
			SingleEvents(true).
			OrderBy("startTime").
			Context(ctx).
			Do()
		if err != nil {
			return nil, fmt.Errorf("failed to list events for %q: %w", cal.Title, err)
		}

		for _, item := range list.Items {
			ev, err := convertEvent(item, cal.ID)
			if err != nil {
				log.Printf("Warning: skipping event %q: %v", item.Id, err)
				continue
			}
			if r.Intersects(ev) {
				out = append(out, ev)
			}
		}
	}
	return out, nil
}

// DefaultCalendar returns the entry Google marks as primary, falling back to
// the well-known "primary" alias.
func (s *Store) DefaultCalendar(ctx context.Context) (eventstore.Calendar, error) {
	service, err := s.ready()
	if err != nil {
		return eventstore.Calendar{}, err
	}

	list, err := service.CalendarList.List().Context(ctx).Do()
	if err != nil {
		return eventstore.Calendar{}, fmt.Errorf("failed to list calendars: %w", err)
	}

	for _, item := range list.Items {
		if item.Primary {
			return eventstore.Calendar{
				ID:          item.Id,
				Title:       item.Summary,
				SourceTitle: sourceTitle,
				Writable:    true,
			}, nil
		}
	}

	return eventstore.Calendar{ID: "primary", Title: "Primary", SourceTitle: sourceTitle, Writable: true}, nil
}

// CreateEvent inserts the event with notifications disabled.
func (s *Store) CreateEvent(ctx context.Context, ev eventstore.Event) (eventstore.Event, error) {
	service, err := s.ready()
	if err != nil {
		return eventstore.Event{}, err
	}

	created, err := service.Events.Insert(ev.CalendarID, toAPIEvent(ev)).
		SendUpdates("none").
		Context(ctx).
		Do()
	if err != nil {
		return eventstore.Event{}, fmt.Errorf("failed to insert event: %w", err)
	}

	ev.ID = created.Id
	return ev, nil
}

// convertEvent maps an API event onto the store model. All-day events carry
// dates instead of datetimes; per the API their end date is exclusive.
func convertEvent(item *calendar.Event, calendarID string) (eventstore.Event, error) {
	if item.Start == nil || item.End == nil {
		return eventstore.Event{}, fmt.Errorf("event has no start or end")
	}

	ev := eventstore.Event{
		ID:         item.Id,
		Title:      item.Summary,
		CalendarID: calendarID,
	}

	if item.Start.Date != "" {
		ev.AllDay = true
		start, err := time.Parse("2006-01-02", item.Start.Date)
		if err != nil {
			return eventstore.Event{}, fmt.Errorf("bad all-day start: %w", err)
		}
		end, err := time.Parse("2006-01-02", item.End.Date)
		if err != nil {
			return eventstore.Event{}, fmt.Errorf("bad all-day end: %w", err)
		}
		ev.Start = start
		// The API's all-day end is the day after the last day; close the
		// interval at the final second instead.
		ev.End = end.Add(-time.Second)
		return ev, nil
	}

	start, err := time.Parse(time.RFC3339, item.Start.DateTime)
	if err != nil {
		return eventstore.Event{}, fmt.Errorf("bad start time: %w", err)
	}
	end, err := time.Parse(time.RFC3339, item.End.DateTime)
	if err != nil {
		return eventstore.Event{}, fmt.Errorf("bad end time: %w", err)
	}
	ev.Start = start
	ev.End = end
	return ev, nil
}

func toAPIEvent(ev eventstore.Event) *calendar.Event {
	item := &calendar.Event{Summary: ev.Title}

	if ev.AllDay {
		item.Start = &calendar.EventDateTime{Date: ev.Start.Format("2006-01-02")}
		item.End = &calendar.EventDateTime{Date: ev.End.AddDate(0, 0, 1).Format("2006-01-02")}
		return item
	}

	item.Start = &calendar.EventDateTime{DateTime: ev.Start.Format(time.RFC3339)}
	item.End = &calendar.EventDateTime{DateTime: ev.End.Format(time.RFC3339)}
	return item
}
