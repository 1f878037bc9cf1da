package model

type Role string

const (
	RolePatient Role = "patient"
	RoleDoctor  Role = "doctor"
	RoleAdmin   Role = "admin"
)

// Actor is the caller descriptor resolved once at the transport boundary.
// The engine re-checks ownership on every state-mutating call instead of
// trusting the outer permission layer alone.
type Actor struct {
	ID        string
	Role      Role
	DoctorID  string
	PatientID string
}

func (a Actor) IsAdmin() bool {
	return a.Role == RoleAdmin
}

func (a Actor) OwnsDoctor(doctorID string) bool {
	return a.Role == RoleDoctor && a.DoctorID != "" && a.DoctorID == doctorID
}

func (a Actor) OwnsPatient(patientID string) bool {
	return a.Role == RolePatient && a.PatientID != "" && a.PatientID == patientID
}

// Party reports whether the actor is a participant of the appointment
// (its patient or its doctor) or an admin.
func (a Actor) Party(appt Appointment) bool {
	return a.IsAdmin() || a.OwnsDoctor(appt.DoctorID) || a.OwnsPatient(appt.PatientID)
}
