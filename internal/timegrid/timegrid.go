// Package timegrid holds the pure civil-time arithmetic the booking engine
// is built on: converting wall-clock dates to instants in a provider's
// timezone and enumerating fixed-length sub-intervals of a window.
package timegrid

import (
	"fmt"
	"time"
)

const dateLayout = "2006-01-02"

// Span is a half-open interval [Start, End).
type Span struct {
	Start time.Time
	End   time.Time
}

// Weekday maps t's weekday to the Monday=0 .. Sunday=6 convention used by
// availability rules.
func Weekday(t time.Time) int {
	return (int(t.Weekday()) + 6) % 7
}

// ParseDate parses a YYYY-MM-DD civil date as local midnight in loc.
func ParseDate(s string, loc *time.Location) (time.Time, error) {
	d, err := time.ParseInLocation(dateLayout, s, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q (want YYYY-MM-DD)", s)
	}
	return d, nil
}

// FormatDate renders the civil date of t in its own location.
func FormatDate(t time.Time) string {
	return t.Format(dateLayout)
}

// DayStart normalizes t to midnight of its civil day in loc.
func DayStart(t time.Time, loc *time.Location) time.Time {
	local := t.In(loc)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
}

// DayBounds returns the local [midnight, next midnight) window containing
// the civil day that starts at day.
func DayBounds(day time.Time) (time.Time, time.Time) {
	return day, day.AddDate(0, 0, 1)
}

// AtMinutes anchors minutes-from-midnight onto the day starting at day.
func AtMinutes(day time.Time, minutes int) time.Time {
	return day.Add(time.Duration(minutes) * time.Minute)
}

// SameDay reports whether a and b fall on the same civil day in loc.
func SameDay(a, b time.Time, loc *time.Location) bool {
	al, bl := a.In(loc), b.In(loc)
	return al.Year() == bl.Year() && al.Month() == bl.Month() && al.Day() == bl.Day()
}

// Grid returns the consecutive non-overlapping sub-intervals of length step
// covering [windowStart, windowEnd), stopping once the next interval would
// cross windowEnd. Pure function of its inputs.
func Grid(windowStart, windowEnd time.Time, step time.Duration) []Span {
	if step <= 0 || !windowEnd.After(windowStart) {
		return nil
	}
	var spans []Span
	for t := windowStart; !t.Add(step).After(windowEnd); t = t.Add(step) {
		spans = append(spans, Span{Start: t, End: t.Add(step)})
	}
	return spans
}
