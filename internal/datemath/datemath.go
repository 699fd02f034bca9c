package datemath

import "time"

// Unit is a calendar unit accepted by Shift.
type Unit int

const (
	UnitSecond Unit = iota
	UnitDay
	UnitMonth
)

type field int

const (
	fieldDay field = iota
	fieldHour
	fieldMinute
	fieldSecond
)

// Override replaces a single date field with a literal value. Build overrides
// with Day, Hour, Minute and Second.
type Override struct {
	field field
	value int
}

// Day overrides the day-of-month field.
func Day(v int) Override { return Override{field: fieldDay, value: v} }

// Hour overrides the hour field.
func Hour(v int) Override { return Override{field: fieldHour, value: v} }

// Minute overrides the minute field.
func Minute(v int) Override { return Override{field: fieldMinute, value: v} }

// Second overrides the second field.
func Second(v int) Override { return Override{field: fieldSecond, value: v} }

// Fixed returns t with only the overridden fields replaced. All other fields,
// including nanoseconds and the location, keep t's values. Values outside the
// field's valid range are normalized by the calendar (e.g. Day(32) rolls into
// the next month).
//
// Composing Fixed with Shift is order-independent only when the shifted unit
// is not among the fixed fields: Fixed(Shift(t, UnitDay, 1), Hour(0)) equals
// Shift(Fixed(t, Hour(0)), UnitDay, 1), but fixing the day and shifting by
// days do not commute.
func Fixed(t time.Time, overrides ...Override) time.Time {
	year, month, day := t.Date()
	hour, minute, sec := t.Clock()

	for _, o := range overrides {
		switch o.field {
		case fieldDay:
			day = o.value
		case fieldHour:
			hour = o.value
		case fieldMinute:
			minute = o.value
		case fieldSecond:
			sec = o.value
		}
	}

	return time.Date(year, month, day, hour, minute, sec, t.Nanosecond(), t.Location())
}

// Shift returns t offset by amount units. Second and day shifts use plain
// calendar arithmetic. Month shifts clamp the day-of-month to the last valid
// day of the target month: Jan 31 shifted by +1 month yields Feb 28 (or
// Feb 29 in a leap year), never Mar 2/3.
func Shift(t time.Time, unit Unit, amount int) time.Time {
	switch unit {
	case UnitSecond:
		return t.Add(time.Duration(amount) * time.Second)
	case UnitDay:
		return t.AddDate(0, 0, amount)
	case UnitMonth:
		return shiftMonth(t, amount)
	}
	return t
}

func shiftMonth(t time.Time, amount int) time.Time {
	year, month, day := t.Date()
	hour, minute, sec := t.Clock()

	// Months since year zero, so negative shifts divide cleanly.
	total := year*12 + int(month) - 1 + amount
	y := total / 12
	m := total % 12
	if m < 0 {
		m += 12
		y--
	}

	if last := daysIn(y, time.Month(m+1)); day > last {
		day = last
	}

	return time.Date(y, time.Month(m+1), day, hour, minute, sec, t.Nanosecond(), t.Location())
}

// daysIn returns the number of days in the given month. Day zero of the next
// month is the last day of this one.
func daysIn(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// StartOfDay returns midnight at the start of t's day. Sub-second fields are
// zeroed.
func StartOfDay(t time.Time) time.Time {
	year, month, day := t.Date()
	return time.Date(year, month, day, 0, 0, 0, 0, t.Location())
}

// EndOfDay returns 23:59:59 on t's day. Sub-second fields are zeroed.
func EndOfDay(t time.Time) time.Time {
	year, month, day := t.Date()
	return time.Date(year, month, day, 23, 59, 59, 0, t.Location())
}

// StartOfMonth returns midnight on the first day of t's month.
func StartOfMonth(t time.Time) time.Time {
	year, month, _ := t.Date()
	return time.Date(year, month, 1, 0, 0, 0, 0, t.Location())
}

// EndOfMonth returns the last second of t's month: the first instant of the
// next month minus one second.
func EndOfMonth(t time.Time) time.Time {
	return Shift(Shift(StartOfMonth(t), UnitMonth, 1), UnitSecond, -1)
}
