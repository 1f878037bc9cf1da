package availability

import (
	"errors"
	"testing"
	"time"

	"github.com/thinhgangg/medibook/internal/model"
)

func monday(t *testing.T) time.Time {
	t.Helper()
	// 2026-02-02 is a Monday.
	return time.Date(2026, 2, 2, 0, 0, 0, 0, time.UTC)
}

func rule(weekday, startMin, endMin, slot int) model.AvailabilityRule {
	return model.AvailabilityRule{
		ID:          "rule-1",
		DoctorID:    "doc-1",
		Weekday:     weekday,
		StartMinute: startMin,
		EndMinute:   endMin,
		SlotMinutes: slot,
		IsActive:    true,
	}
}

func intPtr(v int) *int { return &v }

func TestFreeSlotsMorningShift(t *testing.T) {
	day := monday(t)
	rules := []model.AvailabilityRule{rule(0, 9*60, 12*60, 30)}
	now := day.Add(-24 * time.Hour)

	slots := FreeSlots(day, rules, nil, nil, now)
	if len(slots) != 6 {
		t.Fatalf("expected 6 slots, got %d", len(slots))
	}
	if !slots[0].Start.Equal(day.Add(9 * time.Hour)) {
		t.Fatalf("first slot = %s, want 09:00", slots[0].Start)
	}
	if !slots[5].End.Equal(day.Add(12 * time.Hour)) {
		t.Fatalf("last slot end = %s, want 12:00", slots[5].End)
	}
}

func TestFreeSlotsExcludesBusy(t *testing.T) {
	day := monday(t)
	rules := []model.AvailabilityRule{rule(0, 9*60, 12*60, 30)}
	busy := []Interval{{Start: day.Add(10 * time.Hour), End: day.Add(10*time.Hour + 30*time.Minute)}}
	now := day.Add(-24 * time.Hour)

	slots := FreeSlots(day, rules, busy, nil, now)
	if len(slots) != 5 {
		t.Fatalf("expected 5 slots after booking 10:00-10:30, got %d", len(slots))
	}
	for _, s := range slots {
		if s.Start.Equal(day.Add(10 * time.Hour)) {
			t.Fatal("booked slot still listed")
		}
	}
}

func TestFreeSlotsExcludesBlockedAndPast(t *testing.T) {
	day := monday(t)
	rules := []model.AvailabilityRule{rule(0, 9*60, 12*60, 30)}
	blocked := []Interval{{Start: day.Add(11 * time.Hour), End: day.Add(12 * time.Hour)}}
	// At 09:31 the 09:00 and 09:30 slots are not over yet only if end > now.
	now := day.Add(9*time.Hour + 31*time.Minute)

	slots := FreeSlots(day, rules, nil, blocked, now)
	// 09:30, 10:00, 10:30 survive; 09:00 is over, 11:00+ is blocked.
	if len(slots) != 3 {
		t.Fatalf("expected 3 slots, got %d", len(slots))
	}
	if !slots[0].Start.Equal(day.Add(9*time.Hour + 30*time.Minute)) {
		t.Fatalf("first slot = %s, want 09:30", slots[0].Start)
	}
}

func TestFreeSlotsMultipleRulesSorted(t *testing.T) {
	day := monday(t)
	rules := []model.AvailabilityRule{
		rule(0, 14*60, 16*60, 60),
		rule(0, 9*60, 10*60, 30),
	}
	now := day.Add(-time.Hour)

	slots := FreeSlots(day, rules, nil, nil, now)
	if len(slots) != 4 {
		t.Fatalf("expected 4 slots, got %d", len(slots))
	}
	for i := 1; i < len(slots); i++ {
		if slots[i].Start.Before(slots[i-1].Start) {
			t.Fatal("slots are not time-sorted across rules")
		}
	}
}

func TestFreeSlotsSkipsInactiveRules(t *testing.T) {
	day := monday(t)
	r := rule(0, 9*60, 12*60, 30)
	r.IsActive = false
	if got := FreeSlots(day, []model.AvailabilityRule{r}, nil, nil, day); len(got) != 0 {
		t.Fatalf("expected no slots from inactive rule, got %d", len(got))
	}
}

func TestBlockedFullDayWins(t *testing.T) {
	day := monday(t)
	offs := []model.DayOff{
		{DoctorID: "doc-1", Date: day, StartMinute: intPtr(9 * 60), EndMinute: intPtr(10 * 60)},
		{DoctorID: "doc-1", Date: day},
	}
	_, fullDay := Blocked(day, offs)
	if !fullDay {
		t.Fatal("expected full-day exception to dominate")
	}
}

func TestBlockedPartial(t *testing.T) {
	day := monday(t)
	offs := []model.DayOff{
		{DoctorID: "doc-1", Date: day, StartMinute: intPtr(13 * 60), EndMinute: intPtr(14 * 60), Reason: "lunch"},
	}
	blocked, fullDay := Blocked(day, offs)
	if fullDay {
		t.Fatal("unexpected full-day flag")
	}
	if len(blocked) != 1 || !blocked[0].Start.Equal(day.Add(13*time.Hour)) {
		t.Fatalf("unexpected blocked intervals: %+v", blocked)
	}
}

func TestValidateBookable(t *testing.T) {
	day := monday(t)
	rules := []model.AvailabilityRule{rule(0, 9*60, 12*60, 30)}

	cases := []struct {
		name    string
		start   time.Duration
		length  time.Duration
		blocked []Interval
		wantErr error
	}{
		{name: "on grid", start: 10 * time.Hour, length: 30 * time.Minute},
		{name: "double length on grid", start: 10 * time.Hour, length: time.Hour},
		{name: "off grid start", start: 10*time.Hour + 10*time.Minute, length: 30 * time.Minute, wantErr: ErrOffGrid},
		{name: "not a slot multiple", start: 10 * time.Hour, length: 45 * time.Minute, wantErr: ErrOffGrid},
		{name: "before opening", start: 8 * time.Hour, length: 30 * time.Minute, wantErr: ErrOutsideWorkingHours},
		{name: "past closing", start: 11*time.Hour + 30*time.Minute, length: time.Hour, wantErr: ErrOutsideWorkingHours},
		{
			name:    "blocked window",
			start:   10 * time.Hour,
			length:  30 * time.Minute,
			blocked: []Interval{{Start: day.Add(10 * time.Hour), End: day.Add(11 * time.Hour)}},
			wantErr: ErrBlocked,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			start := day.Add(tc.start)
			err := ValidateBookable(day, rules, tc.blocked, start, start.Add(tc.length))
			if tc.wantErr == nil && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if tc.wantErr != nil && !errors.Is(err, tc.wantErr) {
				t.Fatalf("got %v, want %v", err, tc.wantErr)
			}
		})
	}
}

func TestValidateBookableNoRules(t *testing.T) {
	day := monday(t)
	start := day.Add(10 * time.Hour)
	err := ValidateBookable(day, nil, nil, start, start.Add(30*time.Minute))
	if !errors.Is(err, ErrNoWorkingHours) {
		t.Fatalf("got %v, want ErrNoWorkingHours", err)
	}
}

func TestFreeSlotsMatchValidate(t *testing.T) {
	// Every slot FreeSlots emits must pass ValidateBookable with the same
	// inputs, otherwise a listed slot could be rejected at booking time.
	day := monday(t)
	rules := []model.AvailabilityRule{rule(0, 9*60, 12*60, 30)}
	blocked := []Interval{{Start: day.Add(11 * time.Hour), End: day.Add(11*time.Hour + 30*time.Minute)}}
	now := day.Add(-time.Hour)

	for _, s := range FreeSlots(day, rules, nil, blocked, now) {
		if err := ValidateBookable(day, rules, blocked, s.Start, s.End); err != nil {
			t.Fatalf("free slot [%s, %s) failed validation: %v", s.Start, s.End, err)
		}
	}
}
