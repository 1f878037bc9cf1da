// Package availability derives bookable slots from weekly rules, day-off
// exceptions and existing bookings, and validates candidate intervals
// against the same constraints. All functions are pure; callers pass "now"
// explicitly so tests can pin the clock.
package availability

import (
	"errors"
	"sort"
	"time"

	"github.com/thinhgangg/medibook/internal/model"
	"github.com/thinhgangg/medibook/internal/timegrid"
)

var (
	ErrNoWorkingHours      = errors.New("doctor does not work on this day")
	ErrOutsideWorkingHours = errors.New("interval is outside working hours")
	ErrOffGrid             = errors.New("interval does not match the slot grid")
	ErrBlocked             = errors.New("doctor is off during this interval")
	ErrCrossDay            = errors.New("interval must start and end on the same day")
)

type Interval struct {
	Start time.Time
	End   time.Time
}

// Overlaps reports whether the half-open intervals [iv.Start, iv.End) and
// [o.Start, o.End) intersect.
func (iv Interval) Overlaps(o Interval) bool {
	return iv.Start.Before(o.End) && o.Start.Before(iv.End)
}

func overlapsAny(iv Interval, set []Interval) bool {
	for _, o := range set {
		if iv.Overlaps(o) {
			return true
		}
	}
	return false
}

// RuleWindow anchors a rule's minute bounds onto the day starting at local
// midnight day.
func RuleWindow(day time.Time, r model.AvailabilityRule) Interval {
	return Interval{
		Start: timegrid.AtMinutes(day, r.StartMinute),
		End:   timegrid.AtMinutes(day, r.EndMinute),
	}
}

// Blocked converts the day-off exceptions of a single date into blocked
// intervals anchored on day. A full-day exception short-circuits everything
// else: the whole date is unbookable.
func Blocked(day time.Time, offs []model.DayOff) (blocked []Interval, fullDay bool) {
	for _, off := range offs {
		if off.FullDay() {
			return nil, true
		}
		if off.StartMinute == nil || off.EndMinute == nil {
			// Malformed rows are rejected at write time; skip defensively.
			continue
		}
		iv := Interval{
			Start: timegrid.AtMinutes(day, *off.StartMinute),
			End:   timegrid.AtMinutes(day, *off.EndMinute),
		}
		if iv.End.After(iv.Start) {
			blocked = append(blocked, iv)
		}
	}
	return blocked, false
}

// FreeSlots enumerates the free slots of the day starting at local midnight
// day: for each active rule the slot grid is walked at the rule's
// granularity, and candidates already over (end <= now), overlapping a busy
// booking, or overlapping a blocked interval are dropped. Slots from all
// rules are returned in ascending start order. Overlapping rules are
// rejected at rule-creation time, so no de-duplication happens here.
func FreeSlots(day time.Time, rules []model.AvailabilityRule, busy, blocked []Interval, now time.Time) []Interval {
	var slots []Interval
	for _, r := range rules {
		if !r.IsActive || r.SlotMinutes <= 0 {
			continue
		}
		win := RuleWindow(day, r)
		for _, span := range timegrid.Grid(win.Start, win.End, time.Duration(r.SlotMinutes)*time.Minute) {
			iv := Interval{Start: span.Start, End: span.End}
			if !iv.End.After(now) {
				continue
			}
			if overlapsAny(iv, busy) || overlapsAny(iv, blocked) {
				continue
			}
			slots = append(slots, iv)
		}
	}
	sort.Slice(slots, func(i, j int) bool {
		if !slots[i].Start.Equal(slots[j].Start) {
			return slots[i].Start.Before(slots[j].Start)
		}
		return slots[i].End.Before(slots[j].End)
	})
	return slots
}

// ValidateBookable checks that the candidate [start, end) lies inside one
// active rule window of the day starting at day, is a whole multiple of
// that rule's slot length, starts on the rule's grid, and avoids blocked
// intervals. It mirrors what FreeSlots would emit, so a slot listed as free
// always validates.
func ValidateBookable(day time.Time, rules []model.AvailabilityRule, blocked []Interval, start, end time.Time) error {
	var match *model.AvailabilityRule
	for i, r := range rules {
		if !r.IsActive {
			continue
		}
		win := RuleWindow(day, r)
		if !start.Before(win.Start) && !end.After(win.End) {
			match = &rules[i]
			break
		}
	}
	if match == nil {
		if len(rules) == 0 {
			return ErrNoWorkingHours
		}
		return ErrOutsideWorkingHours
	}

	slot := time.Duration(match.SlotMinutes) * time.Minute
	if slot <= 0 {
		return ErrOffGrid
	}
	dur := end.Sub(start)
	if dur <= 0 || dur%slot != 0 {
		return ErrOffGrid
	}
	if start.Sub(RuleWindow(day, *match).Start)%slot != 0 {
		return ErrOffGrid
	}

	if overlapsAny(Interval{Start: start, End: end}, blocked) {
		return ErrBlocked
	}
	return nil
}
