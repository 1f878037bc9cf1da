package timegrid

import (
	"testing"
	"time"
)

func TestWeekdayMondayZero(t *testing.T) {
	// 2026-02-02 is a Monday, 2026-02-08 a Sunday.
	cases := []struct {
		day  int
		want int
	}{
		{2, 0}, {3, 1}, {4, 2}, {5, 3}, {6, 4}, {7, 5}, {8, 6},
	}
	for _, tc := range cases {
		d := time.Date(2026, 2, tc.day, 12, 0, 0, 0, time.UTC)
		if got := Weekday(d); got != tc.want {
			t.Fatalf("Weekday(Feb %d) = %d, want %d", tc.day, got, tc.want)
		}
	}
}

func TestParseDate(t *testing.T) {
	loc, err := time.LoadLocation("Asia/Ho_Chi_Minh")
	if err != nil {
		t.Fatalf("LoadLocation failed: %v", err)
	}
	d, err := ParseDate("2026-03-09", loc)
	if err != nil {
		t.Fatalf("ParseDate failed: %v", err)
	}
	if d.Hour() != 0 || d.Location() != loc {
		t.Fatalf("expected local midnight, got %s", d)
	}
	if _, err := ParseDate("09-03-2026", loc); err == nil {
		t.Fatal("expected error for wrong layout")
	}
	if _, err := ParseDate("2026-13-40", loc); err == nil {
		t.Fatal("expected error for impossible date")
	}
}

func TestGridCoversWindow(t *testing.T) {
	start := time.Date(2026, 1, 5, 9, 0, 0, 0, time.UTC)
	end := start.Add(3 * time.Hour)

	spans := Grid(start, end, 30*time.Minute)
	if len(spans) != 6 {
		t.Fatalf("expected 6 spans, got %d", len(spans))
	}
	for i, s := range spans {
		wantStart := start.Add(time.Duration(i) * 30 * time.Minute)
		if !s.Start.Equal(wantStart) || !s.End.Equal(wantStart.Add(30*time.Minute)) {
			t.Fatalf("span %d = [%s, %s)", i, s.Start, s.End)
		}
	}
	if spans[len(spans)-1].End.After(end) {
		t.Fatal("last span crosses the window end")
	}
}

func TestGridStopsBeforePartialInterval(t *testing.T) {
	start := time.Date(2026, 1, 5, 9, 0, 0, 0, time.UTC)
	// 70-minute window with 30-minute step: only two full intervals fit.
	spans := Grid(start, start.Add(70*time.Minute), 30*time.Minute)
	if len(spans) != 2 {
		t.Fatalf("expected 2 spans, got %d", len(spans))
	}
}

func TestGridPure(t *testing.T) {
	start := time.Date(2026, 1, 5, 9, 0, 0, 0, time.UTC)
	end := start.Add(2 * time.Hour)

	first := Grid(start, end, 15*time.Minute)
	second := Grid(start, end, 15*time.Minute)
	if len(first) != len(second) {
		t.Fatalf("lengths differ: %d vs %d", len(first), len(second))
	}
	for i := range first {
		if !first[i].Start.Equal(second[i].Start) || !first[i].End.Equal(second[i].End) {
			t.Fatalf("span %d differs between runs", i)
		}
	}
}

func TestGridDegenerateInputs(t *testing.T) {
	start := time.Date(2026, 1, 5, 9, 0, 0, 0, time.UTC)
	if Grid(start, start, 30*time.Minute) != nil {
		t.Fatal("empty window should yield no spans")
	}
	if Grid(start.Add(time.Hour), start, 30*time.Minute) != nil {
		t.Fatal("inverted window should yield no spans")
	}
	if Grid(start, start.Add(time.Hour), 0) != nil {
		t.Fatal("zero step should yield no spans")
	}
}

func TestSameDayAcrossZones(t *testing.T) {
	loc, err := time.LoadLocation("Asia/Ho_Chi_Minh")
	if err != nil {
		t.Fatalf("LoadLocation failed: %v", err)
	}
	// 23:30 local and 00:30 next day local are different civil days even
	// though they are one hour apart.
	a := time.Date(2026, 4, 1, 23, 30, 0, 0, loc)
	b := a.Add(time.Hour)
	if SameDay(a, b, loc) {
		t.Fatal("expected different civil days")
	}
	if !SameDay(a, a.Add(10*time.Minute), loc) {
		t.Fatal("expected same civil day")
	}
}
