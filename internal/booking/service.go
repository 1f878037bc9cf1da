// Package booking is the availability and booking engine: it derives free
// slots, admits or rejects candidate intervals under per-doctor mutual
// exclusion, and drives the appointment state machine.
package booking

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/thinhgangg/medibook/internal/availability"
	"github.com/thinhgangg/medibook/internal/model"
	"github.com/thinhgangg/medibook/internal/outbox"
	"github.com/thinhgangg/medibook/internal/timegrid"
)

// maxSlotRangeDays caps a slot listing request to keep it a cheap read.
const maxSlotRangeDays = 31

// Store is the persistence surface the engine needs. Reads outside
// WithDoctorLock see a consistent snapshot but take no locks; everything
// inside the lock callback runs in one transaction that holds an exclusive
// per-doctor lock, so concurrent admissions for the same doctor serialize.
type Store interface {
	GetDoctor(ctx context.Context, id string) (model.Doctor, error)
	GetAppointment(ctx context.Context, id string) (model.Appointment, error)
	ListAppointments(ctx context.Context, f ListFilter) ([]model.Appointment, error)
	ActiveRules(ctx context.Context, doctorID string, weekday int) ([]model.AvailabilityRule, error)
	DayOffsOn(ctx context.Context, doctorID, date string) ([]model.DayOff, error)
	BusyIntervals(ctx context.Context, doctorID string, from, to time.Time) ([]availability.Interval, error)
	WithDoctorLock(ctx context.Context, doctorID string, fn func(tx Tx) error) error
}

// Tx is the view available inside a doctor-locked transaction. The lock is
// never held across external I/O; only overlap re-checks and row writes
// happen here.
type Tx interface {
	GetAppointmentForUpdate(ctx context.Context, id string) (model.Appointment, error)
	HasOverlap(ctx context.Context, doctorID string, from, to time.Time, excludeID string) (bool, error)
	InsertAppointment(ctx context.Context, appt *model.Appointment) error
	UpdateAppointmentWindow(ctx context.Context, id string, start, end time.Time) error
	UpdateAppointmentStatus(ctx context.Context, id string, status model.Status, cancelledAt *time.Time) error
	IdempotentAppointmentID(ctx context.Context, doctorID, key string) (string, bool, error)
	SaveIdempotencyKey(ctx context.Context, doctorID, key, appointmentID string) error
	InsertEvent(ctx context.Context, evt outbox.Event) error
}

type Config struct {
	// BufferMinutes pads every candidate interval symmetrically during
	// conflict checks.
	BufferMinutes int
	// Now is injected so tests can pin the clock; defaults to time.Now.
	Now func() time.Time
}

type Service struct {
	store  Store
	logger *slog.Logger
	buffer time.Duration
	now    func() time.Time
}

func NewService(store Store, logger *slog.Logger, cfg Config) *Service {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	if cfg.BufferMinutes < 0 {
		cfg.BufferMinutes = 0
	}
	return &Service{
		store:  store,
		logger: logger,
		buffer: time.Duration(cfg.BufferMinutes) * time.Minute,
		now:    now,
	}
}

type CreateRequest struct {
	DoctorID       string
	Reason         string
	StartAt        time.Time
	EndAt          time.Time
	IdempotencyKey string
}

// Create books a new PENDING appointment for the acting patient. The
// interval must sit on the doctor's slot grid inside working hours, avoid
// day-off blocks, and not overlap any non-cancelled appointment once
// expanded by the buffer. The overlap check and insert run as one atomic
// unit under the per-doctor lock.
func (s *Service) Create(ctx context.Context, actor model.Actor, req CreateRequest) (model.Appointment, error) {
	if actor.Role != model.RolePatient || actor.PatientID == "" {
		return model.Appointment{}, forbiddenf("only patients can book appointments")
	}
	if req.DoctorID == "" {
		return model.Appointment{}, invalidRequestf("doctor_id is required")
	}
	now := s.now()
	if !req.EndAt.After(req.StartAt) {
		return model.Appointment{}, invalidRequestf("end_at must be after start_at")
	}
	if req.StartAt.Before(now) {
		return model.Appointment{}, invalidRequestf("cannot book in the past")
	}

	doc, err := s.store.GetDoctor(ctx, req.DoctorID)
	if err != nil {
		return model.Appointment{}, err
	}
	if !doc.IsActive {
		return model.Appointment{}, ErrProviderInactive
	}

	if err := s.validateWithinAvailability(ctx, doc, req.StartAt, req.EndAt); err != nil {
		return model.Appointment{}, err
	}

	appt := model.Appointment{
		DoctorID:  req.DoctorID,
		PatientID: actor.PatientID,
		StartAt:   req.StartAt.UTC(),
		EndAt:     req.EndAt.UTC(),
		Reason:    req.Reason,
		Status:    model.StatusPending,
	}
	var replayID string
	err = s.store.WithDoctorLock(ctx, req.DoctorID, func(tx Tx) error {
		if req.IdempotencyKey != "" {
			id, ok, err := tx.IdempotentAppointmentID(ctx, req.DoctorID, req.IdempotencyKey)
			if err != nil {
				return err
			}
			if ok {
				replayID = id
				return nil
			}
		}

		clash, err := tx.HasOverlap(ctx, req.DoctorID, appt.StartAt.Add(-s.buffer), appt.EndAt.Add(s.buffer), "")
		if err != nil {
			return err
		}
		if clash {
			return s.conflict()
		}
		if err := tx.InsertAppointment(ctx, &appt); err != nil {
			return err
		}
		if req.IdempotencyKey != "" {
			if err := tx.SaveIdempotencyKey(ctx, req.DoctorID, req.IdempotencyKey, appt.ID); err != nil {
				return err
			}
		}
		return tx.InsertEvent(ctx, s.appointmentEvent(outbox.EventAppointmentBooked, appt))
	})
	if err != nil {
		if errors.Is(err, ErrOverlap) {
			return model.Appointment{}, s.conflict()
		}
		return model.Appointment{}, err
	}
	if replayID != "" {
		return s.store.GetAppointment(ctx, replayID)
	}
	return appt, nil
}

// Confirm moves a pending appointment to CONFIRMED. Only the appointment's
// doctor may confirm; confirming an already-confirmed appointment is a
// no-op success.
func (s *Service) Confirm(ctx context.Context, actor model.Actor, apptID string) (model.Appointment, error) {
	return s.transition(ctx, apptID, func(tx Tx, cur model.Appointment) (model.Appointment, error) {
		if !actor.OwnsDoctor(cur.DoctorID) {
			return cur, forbiddenf("only the appointment's doctor can confirm")
		}
		if cur.Status == model.StatusConfirmed {
			return cur, nil
		}
		if cur.Status.Terminal() {
			return cur, transitionf("cannot confirm a %s appointment", cur.Status)
		}
		if err := tx.UpdateAppointmentStatus(ctx, cur.ID, model.StatusConfirmed, nil); err != nil {
			return cur, err
		}
		cur.Status = model.StatusConfirmed
		if err := tx.InsertEvent(ctx, s.appointmentEvent(outbox.EventAppointmentConfirmed, cur)); err != nil {
			return cur, err
		}
		return cur, nil
	})
}

// Complete marks a confirmed appointment as COMPLETED once its start time
// has passed. Only the appointment's doctor may complete.
func (s *Service) Complete(ctx context.Context, actor model.Actor, apptID string) (model.Appointment, error) {
	return s.transition(ctx, apptID, func(tx Tx, cur model.Appointment) (model.Appointment, error) {
		if !actor.OwnsDoctor(cur.DoctorID) {
			return cur, forbiddenf("only the appointment's doctor can complete")
		}
		if cur.Status == model.StatusCompleted {
			return cur, nil
		}
		if cur.Status != model.StatusConfirmed {
			return cur, transitionf("only confirmed appointments can be completed")
		}
		if s.now().Before(cur.StartAt) {
			return cur, deadlinef("cannot complete before the appointment starts")
		}
		if err := tx.UpdateAppointmentStatus(ctx, cur.ID, model.StatusCompleted, nil); err != nil {
			return cur, err
		}
		cur.Status = model.StatusCompleted
		if err := tx.InsertEvent(ctx, s.appointmentEvent(outbox.EventAppointmentCompleted, cur)); err != nil {
			return cur, err
		}
		return cur, nil
	})
}

// Cancel cancels a pending or confirmed appointment before it starts.
// Either party or an admin may cancel; cancelling an already-cancelled
// appointment is a no-op success. Cancellation is a status, not a delete.
func (s *Service) Cancel(ctx context.Context, actor model.Actor, apptID string) (model.Appointment, error) {
	return s.transition(ctx, apptID, func(tx Tx, cur model.Appointment) (model.Appointment, error) {
		if !actor.Party(cur) {
			return cur, forbiddenf("not a party to this appointment")
		}
		if cur.Status == model.StatusCancelled {
			return cur, nil
		}
		if cur.Status == model.StatusCompleted {
			return cur, transitionf("cannot cancel a completed appointment")
		}
		now := s.now()
		if !now.Before(cur.StartAt) {
			return cur, deadlinef("cannot cancel after the appointment has started")
		}
		cancelledAt := now.UTC()
		if err := tx.UpdateAppointmentStatus(ctx, cur.ID, model.StatusCancelled, &cancelledAt); err != nil {
			return cur, err
		}
		cur.Status = model.StatusCancelled
		cur.CancelledAt = &cancelledAt
		if err := tx.InsertEvent(ctx, s.appointmentEvent(outbox.EventAppointmentCancelled, cur)); err != nil {
			return cur, err
		}
		return cur, nil
	})
}

// Reschedule moves a non-terminal appointment to a new interval and resets
// it to PENDING. The new interval revalidates against the grid and the
// conflict guard, excluding the appointment itself from the overlap check.
// On conflict the appointment is left untouched.
func (s *Service) Reschedule(ctx context.Context, actor model.Actor, apptID string, newStart, newEnd time.Time) (model.Appointment, error) {
	appt, err := s.store.GetAppointment(ctx, apptID)
	if err != nil {
		return model.Appointment{}, err
	}
	if !actor.Party(appt) {
		return model.Appointment{}, forbiddenf("not a party to this appointment")
	}
	if appt.Status.Terminal() {
		return model.Appointment{}, transitionf("cannot reschedule a %s appointment", appt.Status)
	}
	now := s.now()
	if !newEnd.After(newStart) {
		return model.Appointment{}, invalidRequestf("end_at must be after start_at")
	}
	if newStart.Before(now) {
		return model.Appointment{}, invalidRequestf("cannot reschedule into the past")
	}

	doc, err := s.store.GetDoctor(ctx, appt.DoctorID)
	if err != nil {
		return model.Appointment{}, err
	}
	if !doc.IsActive {
		return model.Appointment{}, ErrProviderInactive
	}
	if err := s.validateWithinAvailability(ctx, doc, newStart, newEnd); err != nil {
		return model.Appointment{}, err
	}

	var out model.Appointment
	err = s.store.WithDoctorLock(ctx, appt.DoctorID, func(tx Tx) error {
		cur, err := tx.GetAppointmentForUpdate(ctx, apptID)
		if err != nil {
			return err
		}
		if cur.Status.Terminal() {
			return transitionf("cannot reschedule a %s appointment", cur.Status)
		}
		clash, err := tx.HasOverlap(ctx, cur.DoctorID, newStart.Add(-s.buffer), newEnd.Add(s.buffer), cur.ID)
		if err != nil {
			return err
		}
		if clash {
			return s.conflict()
		}
		if err := tx.UpdateAppointmentWindow(ctx, cur.ID, newStart.UTC(), newEnd.UTC()); err != nil {
			return err
		}
		cur.StartAt = newStart.UTC()
		cur.EndAt = newEnd.UTC()
		cur.Status = model.StatusPending
		out = cur
		return tx.InsertEvent(ctx, s.appointmentEvent(outbox.EventAppointmentRescheduled, cur))
	})
	if err != nil {
		if errors.Is(err, ErrOverlap) {
			return model.Appointment{}, s.conflict()
		}
		return model.Appointment{}, err
	}
	return out, nil
}

type ListFilter struct {
	DoctorID  string
	PatientID string
	Status    model.Status
	DateFrom  string
	DateTo    string
	Limit     int
}

// List returns appointments visible to the actor, newest first. Admins see
// everything; doctors and patients are pinned to their own records.
func (s *Service) List(ctx context.Context, actor model.Actor, f ListFilter) ([]model.Appointment, error) {
	switch actor.Role {
	case model.RoleAdmin:
	case model.RoleDoctor:
		f.DoctorID = actor.DoctorID
	case model.RolePatient:
		f.PatientID = actor.PatientID
	default:
		return nil, forbiddenf("unknown role %q", actor.Role)
	}
	if f.Status != "" {
		switch f.Status {
		case model.StatusPending, model.StatusConfirmed, model.StatusCompleted, model.StatusCancelled:
		default:
			return nil, invalidRequestf("unknown status %q", f.Status)
		}
	}
	return s.store.ListAppointments(ctx, f)
}

// DaySlots is the derived free-slot list of one civil date. Slots are never
// persisted or cached; each call recomputes from current state.
type DaySlots struct {
	Date  string
	Slots []availability.Interval
}

// Slots lists free slots for a doctor over one date or an inclusive date
// range, interpreted in the doctor's timezone. Pure read: it takes no locks
// and the result is advisory until a reservation attempt is made.
func (s *Service) Slots(ctx context.Context, doctorID, dateFrom, dateTo string) ([]DaySlots, error) {
	if doctorID == "" {
		return nil, invalidRequestf("doctor_id is required")
	}
	if dateFrom == "" {
		return nil, invalidRequestf("date is required")
	}
	doc, err := s.store.GetDoctor(ctx, doctorID)
	if err != nil {
		return nil, err
	}
	if !doc.IsActive {
		return nil, ErrProviderInactive
	}
	loc := s.doctorLocation(doc)

	from, err := timegrid.ParseDate(dateFrom, loc)
	if err != nil {
		return nil, invalidRequestf("%s", err)
	}
	to := from
	if dateTo != "" {
		if to, err = timegrid.ParseDate(dateTo, loc); err != nil {
			return nil, invalidRequestf("%s", err)
		}
	}
	if to.Before(from) {
		return nil, invalidRequestf("date_to is before date_from")
	}
	if from.AddDate(0, 0, maxSlotRangeDays).Before(to.AddDate(0, 0, 1)) {
		return nil, invalidRequestf("date range exceeds %d days", maxSlotRangeDays)
	}

	now := s.now()
	var out []DaySlots
	for day := from; !day.After(to); day = day.AddDate(0, 0, 1) {
		slots, err := s.slotsForDay(ctx, doctorID, day, now)
		if err != nil {
			return nil, err
		}
		out = append(out, DaySlots{Date: timegrid.FormatDate(day), Slots: slots})
	}
	return out, nil
}

func (s *Service) slotsForDay(ctx context.Context, doctorID string, day time.Time, now time.Time) ([]availability.Interval, error) {
	offs, err := s.store.DayOffsOn(ctx, doctorID, timegrid.FormatDate(day))
	if err != nil {
		return nil, err
	}
	blocked, fullDay := availability.Blocked(day, offs)
	if fullDay {
		return nil, nil
	}

	rules, err := s.store.ActiveRules(ctx, doctorID, timegrid.Weekday(day))
	if err != nil {
		return nil, err
	}
	if len(rules) == 0 {
		return nil, nil
	}

	dayStart, dayEnd := timegrid.DayBounds(day)
	busy, err := s.store.BusyIntervals(ctx, doctorID, dayStart, dayEnd)
	if err != nil {
		return nil, err
	}
	return availability.FreeSlots(day, rules, busy, blocked, now), nil
}

// validateWithinAvailability checks the grid and blackout legality of a
// candidate interval in the doctor's timezone. Runs before the lock is
// taken so rule and exception fetches never extend lock hold time.
func (s *Service) validateWithinAvailability(ctx context.Context, doc model.Doctor, start, end time.Time) error {
	loc := s.doctorLocation(doc)
	if !timegrid.SameDay(start, end.Add(-time.Nanosecond), loc) {
		return invalidRequestf("%s", availability.ErrCrossDay)
	}
	day := timegrid.DayStart(start, loc)

	offs, err := s.store.DayOffsOn(ctx, doc.ID, timegrid.FormatDate(day))
	if err != nil {
		return err
	}
	blocked, fullDay := availability.Blocked(day, offs)
	if fullDay {
		return invalidRequestf("doctor is off on %s", timegrid.FormatDate(day))
	}

	rules, err := s.store.ActiveRules(ctx, doc.ID, timegrid.Weekday(day))
	if err != nil {
		return err
	}
	if err := availability.ValidateBookable(day, rules, blocked, start, end); err != nil {
		return invalidRequestf("%s", err)
	}
	return nil
}

func (s *Service) doctorLocation(doc model.Doctor) *time.Location {
	loc, err := time.LoadLocation(doc.Timezone)
	if err != nil {
		if s.logger != nil {
			s.logger.Warn("invalid doctor timezone; falling back to UTC", "doctor_id", doc.ID, "timezone", doc.Timezone)
		}
		return time.UTC
	}
	return loc
}

func (s *Service) conflict() error {
	return &ConflictError{BufferMinutes: int(s.buffer / time.Minute)}
}

// transition runs fn against the FOR UPDATE snapshot of the appointment
// under its doctor's lock, so state checks and the write are atomic.
func (s *Service) transition(ctx context.Context, apptID string, fn func(tx Tx, cur model.Appointment) (model.Appointment, error)) (model.Appointment, error) {
	appt, err := s.store.GetAppointment(ctx, apptID)
	if err != nil {
		return model.Appointment{}, err
	}
	var out model.Appointment
	err = s.store.WithDoctorLock(ctx, appt.DoctorID, func(tx Tx) error {
		cur, err := tx.GetAppointmentForUpdate(ctx, apptID)
		if err != nil {
			return err
		}
		out, err = fn(tx, cur)
		return err
	})
	if err != nil {
		return model.Appointment{}, err
	}
	return out, nil
}

func (s *Service) appointmentEvent(eventType string, appt model.Appointment) outbox.Event {
	payload, err := json.Marshal(map[string]any{
		"appointment_id": appt.ID,
		"doctor_id":      appt.DoctorID,
		"patient_id":     appt.PatientID,
		"start_at":       appt.StartAt.UTC().Format(time.RFC3339),
		"end_at":         appt.EndAt.UTC().Format(time.RFC3339),
		"status":         string(appt.Status),
	})
	if err != nil && s.logger != nil {
		s.logger.Error("failed to build event payload", "err", err, "event_type", eventType)
	}
	return outbox.Event{
		AggregateType: "appointment",
		AggregateID:   appt.ID,
		EventType:     eventType,
		Payload:       payload,
	}
}
