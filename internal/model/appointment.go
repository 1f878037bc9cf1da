package model

import "time"

type Status string

const (
	StatusPending   Status = "PENDING"
	StatusConfirmed Status = "CONFIRMED"
	StatusCompleted Status = "COMPLETED"
	StatusCancelled Status = "CANCELLED"
)

// Terminal reports whether no further transitions are allowed from s.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

type Appointment struct {
	ID          string
	DoctorID    string
	PatientID   string
	StartAt     time.Time
	EndAt       time.Time
	Reason      string
	Status      Status
	CreatedAt   time.Time
	CancelledAt *time.Time
}
