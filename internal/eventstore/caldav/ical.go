package caldav

import (
	"fmt"
	"strings"
	"time"

	"github.com/emersion/go-ical"
	"github.com/teambition/rrule-go"

	"calman/internal/eventstore"
)

// maxOccurrences caps recurrence expansion per event so a malformed rule
// cannot blow up a query.
const maxOccurrences = 1000

// eventsFromICal converts every VEVENT in the calendar into store events,
// expanding recurrence rules into the instances that fall inside r.
func eventsFromICal(cal *ical.Calendar, calendarID string, r eventstore.Range) ([]eventstore.Event, error) {
	var out []eventstore.Event

	for _, comp := range cal.Children {
		if comp.Name != ical.CompEvent {
			continue
		}

		base, rruleStr, exdates, err := parseVEvent(comp, calendarID)
		if err != nil {
			return nil, err
		}

		if rruleStr == "" {
			if r.Intersects(base) {
				out = append(out, base)
			}
			continue
		}

		instances, err := expandRecurrence(base, rruleStr, exdates, r)
		if err != nil {
			return nil, err
		}
		out = append(out, instances...)
	}

	return out, nil
}

// parseVEvent maps a VEVENT component onto the store model and returns the
// raw RRULE and EXDATE values alongside it.
func parseVEvent(comp *ical.Component, calendarID string) (eventstore.Event, string, []time.Time, error) {
	ev := eventstore.Event{CalendarID: calendarID}

	if uid := comp.Props.Get(ical.PropUID); uid != nil {
		ev.ID = uid.Value
	}
	if summary := comp.Props.Get(ical.PropSummary); summary != nil {
		ev.Title = summary.Value
	}

	dtstart := comp.Props.Get(ical.PropDateTimeStart)
	if dtstart == nil {
		return eventstore.Event{}, "", nil, fmt.Errorf("event %q has no DTSTART", ev.ID)
	}
	start, err := dtstart.DateTime(time.UTC)
	if err != nil {
		return eventstore.Event{}, "", nil, fmt.Errorf("event %q: bad DTSTART: %w", ev.ID, err)
	}
	ev.Start = start
	ev.AllDay = dtstart.Params.Get("VALUE") == "DATE"

	if dtend := comp.Props.Get(ical.PropDateTimeEnd); dtend != nil {
		end, err := dtend.DateTime(time.UTC)
		if err != nil {
			return eventstore.Event{}, "", nil, fmt.Errorf("event %q: bad DTEND: %w", ev.ID, err)
		}
		if ev.AllDay {
			// The ICS all-day end date is exclusive; close the interval at
			// the final second instead.
			end = end.Add(-time.Second)
		}
		ev.End = end
	} else if ev.AllDay {
		ev.End = start.AddDate(0, 0, 1).Add(-time.Second)
	} else {
		ev.End = start
	}

	var rruleStr string
	if prop := comp.Props.Get(ical.PropRecurrenceRule); prop != nil {
		rruleStr = prop.Value
	}

	var exdates []time.Time
	for _, prop := range comp.Props.Values(ical.PropExceptionDates) {
		for _, value := range strings.Split(prop.Value, ",") {
			t, err := parseICalTime(strings.TrimSpace(value))
			if err != nil {
				return eventstore.Event{}, "", nil, fmt.Errorf("event %q: bad EXDATE %q: %w", ev.ID, value, err)
			}
			exdates = append(exdates, t)
		}
	}

	return ev, rruleStr, exdates, nil
}

func parseICalTime(value string) (time.Time, error) {
	for _, layout := range []string{"20060102T150405Z", "20060102T150405", "20060102"} {
		if t, err := time.Parse(layout, value); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized time value %q", value)
}

// expandRecurrence materializes the instances of a recurring event that fall
// inside r. Every instance keeps the master's duration; EXDATE instances are
// dropped.
func expandRecurrence(base eventstore.Event, rruleStr string, exdates []time.Time, r eventstore.Range) ([]eventstore.Event, error) {
	opt, err := rrule.StrToROption(rruleStr)
	if err != nil {
		return nil, fmt.Errorf("event %q: bad RRULE %q: %w", base.ID, rruleStr, err)
	}
	opt.Dtstart = base.Start

	rule, err := rrule.NewRRule(*opt)
	if err != nil {
		return nil, fmt.Errorf("event %q: bad RRULE %q: %w", base.ID, rruleStr, err)
	}

	duration := base.End.Sub(base.Start)

	// An instance that starts before the range can still reach into it, so
	// widen the lower bound by the event duration before asking the rule.
	times := rule.Between(r.Start.Add(-duration), r.End, true)
	if len(times) > maxOccurrences {
		times = times[:maxOccurrences]
	}

	excluded := make(map[int64]bool, len(exdates))
	for _, ex := range exdates {
		excluded[ex.Unix()] = true
	}

	var out []eventstore.Event
	for _, start := range times {
		if excluded[start.Unix()] {
			continue
		}
		instance := base
		instance.ID = fmt.Sprintf("%s/%s", base.ID, start.UTC().Format("20060102T150405Z"))
		instance.Start = start
		instance.End = start.Add(duration)
		if r.Intersects(instance) {
			out = append(out, instance)
		}
	}
	return out, nil
}

// icalFromEvent builds a single-VEVENT calendar for a PUT request.
func icalFromEvent(ev eventstore.Event, uid string) (*ical.Calendar, error) {
	cal := ical.NewCalendar()
	cal.Props.SetText(ical.PropVersion, "2.0")
	cal.Props.SetText(ical.PropProductID, "-//calman//EN")

	vevent := ical.NewComponent(ical.CompEvent)
	cal.Children = append(cal.Children, vevent)

	vevent.Props.SetText(ical.PropUID, uid)
	if ev.Title != "" {
		vevent.Props.SetText(ical.PropSummary, ev.Title)
	}

	if ev.AllDay {
		dtstart := ical.NewProp(ical.PropDateTimeStart)
		dtstart.SetDate(ev.Start)
		vevent.Props.Set(dtstart)

		dtend := ical.NewProp(ical.PropDateTimeEnd)
		dtend.SetDate(ev.End.AddDate(0, 0, 1))
		vevent.Props.Set(dtend)
	} else {
		vevent.Props.SetDateTime(ical.PropDateTimeStart, ev.Start)
		vevent.Props.SetDateTime(ical.PropDateTimeEnd, ev.End)
	}

	now := time.Now()
	vevent.Props.SetDateTime(ical.PropDateTimeStamp, now)
	vevent.Props.SetDateTime(ical.PropCreated, now)
	vevent.Props.SetDateTime(ical.PropLastModified, now)

	return cal, nil
}
