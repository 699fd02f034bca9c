// Package caldav implements the event store over a CalDAV server such as
// iCloud. Calendars are discovered with PROPFIND, events with REPORT
// calendar-query, and creation is a PUT of an iCalendar body.
//
// CalDAV servers return recurring events as their master definition, so
// recurrence rules are expanded client-side into concrete instances.
package caldav

import (
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/emersion/go-ical"

	"calman/internal/eventstore"
)

const sourceTitle = "CalDAV"

// Store is an eventstore.Store backed by a CalDAV server.
type Store struct {
	httpClient *http.Client
	serverURL  string
	username   string
	password   string
	basePath   string

	mu     sync.Mutex
	status eventstore.Status
}

// New creates a Store for the given CalDAV server. For iCloud the server URL
// is "https://caldav.icloud.com" and the password must be an app-specific
// password.
func New(serverURL, username, password string) *Store {
	return &Store{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		serverURL:  serverURL,
		username:   username,
		password:   password,
		basePath:   fmt.Sprintf("/%s/calendars/", username),
	}
}

func (s *Store) makeRequest(ctx context.Context, method, path string, body io.Reader) (*http.Response, error) {
	url := strings.TrimSuffix(s.serverURL, "/") + path
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, err
	}

	req.SetBasicAuth(s.username, s.password)
	if body != nil {
		req.Header.Set("Content-Type", "application/xml; charset=utf-8")
	}
	req.Header.Set("Depth", "1")

	return s.httpClient.Do(req)
}

// AuthorizationStatus reports the cached probe outcome. Until RequestAccess
// has probed the server (or when no credentials are configured) the state is
// not determined.
func (s *Store) AuthorizationStatus(ctx context.Context) (eventstore.Status, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status, nil
}

// RequestAccess probes the server with the configured credentials and caches
// the terminal outcome: 401 is a denial, 403 a policy restriction.
func (s *Store) RequestAccess(ctx context.Context) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.status != eventstore.StatusNotDetermined {
		return s.status == eventstore.StatusAuthorized, nil
	}

	if s.username == "" || s.password == "" {
		return false, fmt.Errorf("caldav credentials not configured")
	}

	resp, err := s.makeRequest(ctx, "PROPFIND", s.basePath, strings.NewReader(propfindBody))
	if err != nil {
		return false, fmt.Errorf("failed to probe caldav server: %w", err)
	}
	resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		s.status = eventstore.StatusDenied
	case resp.StatusCode == http.StatusForbidden:
		s.status = eventstore.StatusRestricted
	case resp.StatusCode == http.StatusMultiStatus || resp.StatusCode == http.StatusOK:
		s.status = eventstore.StatusAuthorized
	default:
		return false, fmt.Errorf("unexpected caldav probe response: HTTP %d", resp.StatusCode)
	}

	return s.status == eventstore.StatusAuthorized, nil
}

const propfindBody = `<?xml version="1.0" encoding="utf-8" ?>
<d:propfind xmlns:d="DAV:" xmlns:c="urn:ietf:params:xml:ns:caldav">
  <d:prop>
    <d:displayname/>
    <d:resourcetype/>
  </d:prop>
</d:propfind>`

// Calendars lists the calendar collections under the account's base path.
func (s *Store) Calendars(ctx context.Context) ([]eventstore.Calendar, error) {
	resp, err := s.makeRequest(ctx, "PROPFIND", s.basePath, strings.NewReader(propfindBody))
	if err != nil {
		return nil, fmt.Errorf("failed to list calendars: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusMultiStatus && resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to list calendars: HTTP %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	var ms multistatus
	if err := xml.Unmarshal(body, &ms); err != nil {
		return nil, fmt.Errorf("failed to parse XML: %w", err)
	}

	var calendars []eventstore.Calendar
	for _, r := range ms.Responses {
		p := r.prop()
		if p == nil || p.ResourceType.Calendar == nil {
			continue
		}
		calendars = append(calendars, eventstore.Calendar{
			ID:          r.Href,
			Title:       p.DisplayName,
			SourceTitle: sourceTitle,
			Writable:    true,
		})
	}
	return calendars, nil
}

// Events runs a REPORT calendar-query against each calendar and converts the
// returned iCalendar payloads, expanding recurrence rules into instances
// within the range.
func (s *Store) Events(ctx context.Context, r eventstore.Range, calendars []eventstore.Calendar) ([]eventstore.Event, error) {
	var out []eventstore.Event
	for _, cal := range calendars {
		queryBody := fmt.Sprintf(reportBodyFormat,
			r.Start.UTC().Format("20060102T150405Z"),
			r.End.UTC().Format("20060102T150405Z"))

		resp, err := s.makeRequest(ctx, "REPORT", cal.ID, strings.NewReader(queryBody))
		if err != nil {
			return nil, fmt.Errorf("failed to query calendar %q: %w", cal.Title, err)
		}

		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			return nil, fmt.Errorf("failed to read response: %w", err)
		}
		if resp.StatusCode != http.StatusMultiStatus && resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("failed to query calendar %q: HTTP %d", cal.Title, resp.StatusCode)
		}

		var ms multistatus
		if err := xml.Unmarshal(body, &ms); err != nil {
			return nil, fmt.Errorf("failed to parse XML: %w", err)
		}

		for _, response := range ms.Responses {
			p := response.prop()
			if p == nil || p.CalendarData == "" {
				continue
			}

			parsed, err := ical.NewDecoder(strings.NewReader(p.CalendarData)).Decode()
			if err != nil {
				log.Printf("Warning: failed to parse iCalendar data: %v", err)
				continue
			}

			events, err := eventsFromICal(parsed, cal.ID, r)
			if err != nil {
				log.Printf("Warning: failed to convert event: %v", err)
				continue
			}
			out = append(out, events...)
		}
	}
	return out, nil
}

const reportBodyFormat = `<?xml version="1.0" encoding="utf-8" ?>
<C:calendar-query xmlns:D="DAV:" xmlns:C="urn:ietf:params:xml:ns:caldav">
  <D:prop>
    <D:getetag/>
    <C:calendar-data/>
  </D:prop>
  <C:filter>
    <C:comp-filter name="VCALENDAR">
      <C:comp-filter name="VEVENT">
        <C:time-range start="%s" end="%s"/>
      </C:comp-filter>
    </C:comp-filter>
  </C:filter>
</C:calendar-query>`

// DefaultCalendar returns the first calendar collection. CalDAV has no
// designated default; iCloud lists the user's primary calendar first.
func (s *Store) DefaultCalendar(ctx context.Context) (eventstore.Calendar, error) {
	calendars, err := s.Calendars(ctx)
	if err != nil {
		return eventstore.Calendar{}, err
	}
	for _, cal := range calendars {
		if cal.Writable {
			return cal, nil
		}
	}
	return eventstore.Calendar{}, fmt.Errorf("no writable calendar available")
}

// CreateEvent PUTs a new iCalendar object into the calendar collection.
func (s *Store) CreateEvent(ctx context.Context, ev eventstore.Event) (eventstore.Event, error) {
	uid := fmt.Sprintf("%d@calman", time.Now().UnixNano())

	cal, err := icalFromEvent(ev, uid)
	if err != nil {
		return eventstore.Event{}, fmt.Errorf("failed to convert event: %w", err)
	}

	var buf bytes.Buffer
	if err := ical.NewEncoder(&buf).Encode(cal); err != nil {
		return eventstore.Event{}, fmt.Errorf("failed to encode iCalendar: %w", err)
	}

	resp, err := s.makeRequest(ctx, "PUT", ev.CalendarID+uid+".ics", &buf)
	if err != nil {
		return eventstore.Event{}, fmt.Errorf("failed to insert event: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusNoContent {
		return eventstore.Event{}, fmt.Errorf("failed to insert event: HTTP %d", resp.StatusCode)
	}

	ev.ID = uid
	return ev, nil
}

// multistatus models the subset of a DAV multistatus response we consume.
// encoding/xml matches on local names, so the server's namespace prefixes do
// not matter.
type multistatus struct {
	XMLName   xml.Name      `xml:"multistatus"`
	Responses []davResponse `xml:"response"`
}

type davResponse struct {
	Href      string     `xml:"href"`
	Propstats []propstat `xml:"propstat"`
}

type propstat struct {
	Prop   davProp `xml:"prop"`
	Status string  `xml:"status"`
}

type davProp struct {
	DisplayName  string       `xml:"displayname"`
	ResourceType resourceType `xml:"resourcetype"`
	CalendarData string       `xml:"calendar-data"`
}

type resourceType struct {
	Calendar *struct{} `xml:"calendar"`
}

// prop returns the first successful propstat's properties.
func (r davResponse) prop() *davProp {
	for i := range r.Propstats {
		status := r.Propstats[i].Status
		if status == "" || strings.Contains(status, "200") {
			return &r.Propstats[i].Prop
		}
	}
	return nil
}
