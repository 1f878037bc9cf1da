package outbox

// Event is the domain event envelope written to the outbox table in the
// same transaction as the state change it describes. The Kafka topic name
// equals EventType.
type Event struct {
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
}

// Event types emitted by the booking engine. Notification and reporting
// consumers subscribe to these; delivery failures never affect the
// committed transition.
const (
	EventAppointmentBooked      = "appointment.booked.v1"
	EventAppointmentConfirmed   = "appointment.confirmed.v1"
	EventAppointmentCompleted   = "appointment.completed.v1"
	EventAppointmentCancelled   = "appointment.cancelled.v1"
	EventAppointmentRescheduled = "appointment.rescheduled.v1"
)
