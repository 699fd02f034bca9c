// Package eventstore defines the calendar store abstraction the rest of the
// application is built against. A Store is any backend that can report its
// authorization state, list calendars, search events by time range and
// persist new events.
package eventstore

import (
	"context"
	"fmt"
	"time"
)

// Status is the authorization state of a store.
type Status int

const (
	// StatusNotDetermined means the user has not yet been asked for access.
	StatusNotDetermined Status = iota
	// StatusAuthorized means access was granted.
	StatusAuthorized
	// StatusDenied means the user declined access.
	StatusDenied
	// StatusRestricted means access is blocked by external policy and cannot
	// be requested.
	StatusRestricted
)

func (s Status) String() string {
	switch s {
	case StatusNotDetermined:
		return "not determined"
	case StatusAuthorized:
		return "authorized"
	case StatusDenied:
		return "denied"
	case StatusRestricted:
		return "restricted"
	}
	return fmt.Sprintf("status(%d)", int(s))
}

// Calendar identifies a calendar in the backing store. Calendars are owned by
// the store and read-only here.
type Calendar struct {
	ID          string
	Title       string
	SourceTitle string
	Writable    bool
}

// Event is a single calendar entry.
type Event struct {
	ID         string
	Title      string
	Start      time.Time
	End        time.Time
	AllDay     bool
	CalendarID string
}

// Range is the closed time interval [Start, End] used as the query key for
// event searches.
type Range struct {
	Start time.Time
	End   time.Time
}

// NewRange builds a Range from explicit bounds.
func NewRange(start, end time.Time) Range {
	return Range{Start: start, End: end}
}

// Validate reports an error when Start is after End.
func (r Range) Validate() error {
	if r.Start.After(r.End) {
		return fmt.Errorf("invalid range: start %v is after end %v", r.Start, r.End)
	}
	return nil
}

// Intersects reports whether the event's [Start, End] interval overlaps the
// range. Both bounds are inclusive: an event ending exactly at r.Start or
// starting exactly at r.End is a match.
func (r Range) Intersects(ev Event) bool {
	return !ev.End.Before(r.Start) && !ev.Start.After(r.End)
}

// Store is the set of operations a calendar backend must provide.
type Store interface {
	// AuthorizationStatus reports the store's current authorization state
	// without prompting the user.
	AuthorizationStatus(ctx context.Context) (Status, error)

	// RequestAccess asks the user for consent. It is only meaningful when the
	// status is StatusNotDetermined; in any terminal state it returns the
	// existing outcome without prompting again.
	RequestAccess(ctx context.Context) (bool, error)

	// Calendars lists the calendars visible to the store.
	Calendars(ctx context.Context) ([]Calendar, error)

	// Events returns every event in the union of the given calendars whose
	// interval intersects r, per Range.Intersects.
	Events(ctx context.Context, r Range, calendars []Calendar) ([]Event, error)

	// DefaultCalendar returns the calendar new events are assigned to: the
	// designated default, or the first writable one.
	DefaultCalendar(ctx context.Context) (Calendar, error)

	// CreateEvent persists ev and returns the stored copy with its assigned
	// identifier.
	CreateEvent(ctx context.Context, ev Event) (Event, error)
}
