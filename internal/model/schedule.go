package model

import "time"

// Doctor is the bookable provider. Identity and profile data live elsewhere;
// the booking engine reads only what it needs to admit or reject bookings.
type Doctor struct {
	ID       string
	FullName string
	Email    string
	Timezone string
	IsActive bool
}

type Patient struct {
	ID       string
	FullName string
	Email    string
}

// AvailabilityRule is a recurring weekly open window for a doctor.
// Weekday follows the Monday=0 .. Sunday=6 convention. Start/End are
// minutes from local midnight, half-open [StartMinute, EndMinute).
type AvailabilityRule struct {
	ID          string
	DoctorID    string
	Weekday     int
	StartMinute int
	EndMinute   int
	SlotMinutes int
	IsActive    bool
	CreatedAt   time.Time
}

// DayOff blocks part or all of a single date on top of the weekly rules.
// Both minute bounds nil means the whole date is blocked.
type DayOff struct {
	ID          string
	DoctorID    string
	Date        time.Time // civil date, midnight UTC as stored
	StartMinute *int
	EndMinute   *int
	Reason      string
	CreatedAt   time.Time
}

// FullDay reports whether the exception blocks the entire date.
func (d DayOff) FullDay() bool {
	return d.StartMinute == nil && d.EndMinute == nil
}
