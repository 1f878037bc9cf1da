package booking

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/thinhgangg/medibook/internal/availability"
	"github.com/thinhgangg/medibook/internal/model"
	"github.com/thinhgangg/medibook/internal/outbox"
	"github.com/thinhgangg/medibook/internal/timegrid"
)

// memStore is an in-memory Store with a real per-doctor mutex, so the
// concurrency tests exercise the same serialization contract the Postgres
// repository provides with row locks.
type memStore struct {
	mu      sync.Mutex
	locks   map[string]*sync.Mutex
	doctors map[string]model.Doctor
	rules   []model.AvailabilityRule
	offs    []model.DayOff
	appts   map[string]*model.Appointment
	idem    map[string]string
	events  []outbox.Event
	nextID  int
}

func newMemStore() *memStore {
	return &memStore{
		locks:   make(map[string]*sync.Mutex),
		doctors: make(map[string]model.Doctor),
		appts:   make(map[string]*model.Appointment),
		idem:    make(map[string]string),
	}
}

func (m *memStore) GetDoctor(_ context.Context, id string) (model.Doctor, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	doc, ok := m.doctors[id]
	if !ok {
		return model.Doctor{}, ErrDoctorNotFound
	}
	return doc, nil
}

func (m *memStore) GetAppointment(_ context.Context, id string) (model.Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	appt, ok := m.appts[id]
	if !ok {
		return model.Appointment{}, ErrNotFound
	}
	return *appt, nil
}

func (m *memStore) ListAppointments(_ context.Context, f ListFilter) ([]model.Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Appointment
	for _, a := range m.appts {
		if f.DoctorID != "" && a.DoctorID != f.DoctorID {
			continue
		}
		if f.PatientID != "" && a.PatientID != f.PatientID {
			continue
		}
		if f.Status != "" && a.Status != f.Status {
			continue
		}
		out = append(out, *a)
	}
	return out, nil
}

func (m *memStore) ActiveRules(_ context.Context, doctorID string, weekday int) ([]model.AvailabilityRule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.AvailabilityRule
	for _, r := range m.rules {
		if r.DoctorID == doctorID && r.Weekday == weekday && r.IsActive {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *memStore) DayOffsOn(_ context.Context, doctorID, date string) ([]model.DayOff, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.DayOff
	for _, off := range m.offs {
		if off.DoctorID == doctorID && timegrid.FormatDate(off.Date) == date {
			out = append(out, off)
		}
	}
	return out, nil
}

func (m *memStore) BusyIntervals(_ context.Context, doctorID string, from, to time.Time) ([]availability.Interval, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []availability.Interval
	for _, a := range m.appts {
		if a.DoctorID != doctorID || a.Status == model.StatusCancelled {
			continue
		}
		if from.Before(a.EndAt) && a.StartAt.Before(to) {
			out = append(out, availability.Interval{Start: a.StartAt, End: a.EndAt})
		}
	}
	return out, nil
}

func (m *memStore) WithDoctorLock(_ context.Context, doctorID string, fn func(tx Tx) error) error {
	m.mu.Lock()
	lock, ok := m.locks[doctorID]
	if !ok {
		lock = &sync.Mutex{}
		m.locks[doctorID] = lock
	}
	m.mu.Unlock()

	lock.Lock()
	defer lock.Unlock()
	return fn(&memTx{store: m})
}

type memTx struct {
	store *memStore
}

func (t *memTx) GetAppointmentForUpdate(ctx context.Context, id string) (model.Appointment, error) {
	return t.store.GetAppointment(ctx, id)
}

func (t *memTx) HasOverlap(_ context.Context, doctorID string, from, to time.Time, excludeID string) (bool, error) {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	for _, a := range t.store.appts {
		if a.DoctorID != doctorID || a.Status == model.StatusCancelled || a.ID == excludeID {
			continue
		}
		if from.Before(a.EndAt) && a.StartAt.Before(to) {
			return true, nil
		}
	}
	return false, nil
}

func (t *memTx) InsertAppointment(_ context.Context, appt *model.Appointment) error {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	t.store.nextID++
	appt.ID = fmt.Sprintf("appt-%d", t.store.nextID)
	appt.CreatedAt = time.Now()
	cp := *appt
	t.store.appts[appt.ID] = &cp
	return nil
}

func (t *memTx) UpdateAppointmentWindow(_ context.Context, id string, start, end time.Time) error {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	a, ok := t.store.appts[id]
	if !ok {
		return ErrNotFound
	}
	a.StartAt = start
	a.EndAt = end
	a.Status = model.StatusPending
	return nil
}

func (t *memTx) UpdateAppointmentStatus(_ context.Context, id string, status model.Status, cancelledAt *time.Time) error {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	a, ok := t.store.appts[id]
	if !ok {
		return ErrNotFound
	}
	a.Status = status
	a.CancelledAt = cancelledAt
	return nil
}

func (t *memTx) IdempotentAppointmentID(_ context.Context, doctorID, key string) (string, bool, error) {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	id, ok := t.store.idem[doctorID+"|"+key]
	return id, ok, nil
}

func (t *memTx) SaveIdempotencyKey(_ context.Context, doctorID, key, appointmentID string) error {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	t.store.idem[doctorID+"|"+key] = appointmentID
	return nil
}

func (t *memTx) InsertEvent(_ context.Context, evt outbox.Event) error {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	t.store.events = append(t.store.events, evt)
	return nil
}

// testNow is 08:00 UTC on Monday 2026-02-02.
var testNow = time.Date(2026, 2, 2, 8, 0, 0, 0, time.UTC)

func at(hour, min int) time.Time {
	return time.Date(2026, 2, 2, hour, min, 0, 0, time.UTC)
}

// newFixture builds a service over a store seeded with one active doctor
// working Mondays 09:00-12:00 in 30-minute slots.
func newFixture(t *testing.T, bufferMinutes int) (*Service, *memStore) {
	t.Helper()
	store := newMemStore()
	store.doctors["doc-1"] = model.Doctor{ID: "doc-1", FullName: "Dr. Ada", Timezone: "UTC", IsActive: true}
	store.rules = append(store.rules, model.AvailabilityRule{
		ID: "rule-1", DoctorID: "doc-1", Weekday: 0,
		StartMinute: 9 * 60, EndMinute: 12 * 60, SlotMinutes: 30, IsActive: true,
	})
	svc := NewService(store, nil, Config{BufferMinutes: bufferMinutes, Now: func() time.Time { return testNow }})
	return svc, store
}

var (
	patient      = model.Actor{ID: "u-1", Role: model.RolePatient, PatientID: "pat-1"}
	otherPatient = model.Actor{ID: "u-2", Role: model.RolePatient, PatientID: "pat-2"}
	doctor       = model.Actor{ID: "u-3", Role: model.RoleDoctor, DoctorID: "doc-1"}
	otherDoctor  = model.Actor{ID: "u-4", Role: model.RoleDoctor, DoctorID: "doc-2"}
	admin        = model.Actor{ID: "u-5", Role: model.RoleAdmin}
)

func mustCreate(t *testing.T, svc *Service, actor model.Actor, start, end time.Time) model.Appointment {
	t.Helper()
	appt, err := svc.Create(context.Background(), actor, CreateRequest{
		DoctorID: "doc-1", StartAt: start, EndAt: end,
	})
	if err != nil {
		t.Fatalf("create %s-%s: %v", start.Format("15:04"), end.Format("15:04"), err)
	}
	return appt
}

func TestCreateBooksFreeSlot(t *testing.T) {
	svc, store := newFixture(t, 0)

	appt := mustCreate(t, svc, patient, at(9, 0), at(9, 30))
	if appt.Status != model.StatusPending {
		t.Fatalf("status = %s, want PENDING", appt.Status)
	}
	if appt.PatientID != "pat-1" || appt.DoctorID != "doc-1" {
		t.Fatalf("wrong parties: %+v", appt)
	}
	if len(store.events) != 1 || store.events[0].EventType != outbox.EventAppointmentBooked {
		t.Fatalf("events = %+v, want one booked event", store.events)
	}

	// A one-hour interval spanning two grid slots is still legal.
	if _, err := svc.Create(context.Background(), patient, CreateRequest{
		DoctorID: "doc-1", StartAt: at(10, 0), EndAt: at(11, 0),
	}); err != nil {
		t.Fatalf("hour-long create: %v", err)
	}
}

func TestCreateRejections(t *testing.T) {
	svc, _ := newFixture(t, 0)

	cases := []struct {
		name       string
		actor      model.Actor
		start, end time.Time
		want       error
	}{
		{"doctor cannot book", doctor, at(9, 0), at(9, 30), ErrForbidden},
		{"end before start", patient, at(9, 30), at(9, 0), ErrInvalidRequest},
		{"in the past", patient, at(7, 0), at(7, 30), ErrInvalidRequest},
		{"off grid start", patient, at(9, 10), at(9, 40), ErrInvalidRequest},
		{"not a slot multiple", patient, at(9, 0), at(9, 45), ErrInvalidRequest},
		{"outside working hours", patient, at(12, 0), at(12, 30), ErrInvalidRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Create(context.Background(), tc.actor, CreateRequest{
				DoctorID: "doc-1", StartAt: tc.start, EndAt: tc.end,
			})
			if !errors.Is(err, tc.want) {
				t.Fatalf("err = %v, want %v", err, tc.want)
			}
		})
	}
}

func TestCreateInactiveDoctor(t *testing.T) {
	svc, store := newFixture(t, 0)
	doc := store.doctors["doc-1"]
	doc.IsActive = false
	store.doctors["doc-1"] = doc

	_, err := svc.Create(context.Background(), patient, CreateRequest{
		DoctorID: "doc-1", StartAt: at(9, 0), EndAt: at(9, 30),
	})
	if !errors.Is(err, ErrProviderInactive) {
		t.Fatalf("err = %v, want ErrProviderInactive", err)
	}
}

func TestCreateConflict(t *testing.T) {
	svc, _ := newFixture(t, 0)
	mustCreate(t, svc, patient, at(9, 0), at(9, 30))

	_, err := svc.Create(context.Background(), otherPatient, CreateRequest{
		DoctorID: "doc-1", StartAt: at(9, 0), EndAt: at(9, 30),
	})
	if !IsConflict(err) {
		t.Fatalf("err = %v, want conflict", err)
	}

	// Adjacent slot shares only the boundary instant and must succeed.
	mustCreate(t, svc, otherPatient, at(9, 30), at(10, 0))
}

func TestCreateBufferConflict(t *testing.T) {
	svc, _ := newFixture(t, 10)
	mustCreate(t, svc, patient, at(9, 0), at(9, 30))

	_, err := svc.Create(context.Background(), otherPatient, CreateRequest{
		DoctorID: "doc-1", StartAt: at(9, 30), EndAt: at(10, 0),
	})
	if !IsConflict(err) {
		t.Fatalf("adjacent slot inside buffer: err = %v, want conflict", err)
	}
	var ce *ConflictError
	if !errors.As(err, &ce) || ce.BufferMinutes != 10 {
		t.Fatalf("conflict buffer = %+v, want 10 minutes", ce)
	}

	// 10:00 starts 30 minutes after the booking ends, clear of the buffer.
	mustCreate(t, svc, otherPatient, at(10, 0), at(10, 30))
}

func TestCreateIdempotencyReplay(t *testing.T) {
	svc, store := newFixture(t, 0)

	req := CreateRequest{DoctorID: "doc-1", StartAt: at(9, 0), EndAt: at(9, 30), IdempotencyKey: "key-1"}
	first, err := svc.Create(context.Background(), patient, req)
	if err != nil {
		t.Fatalf("first create: %v", err)
	}
	second, err := svc.Create(context.Background(), patient, req)
	if err != nil {
		t.Fatalf("replay create: %v", err)
	}
	if first.ID != second.ID {
		t.Fatalf("replay returned %s, want %s", second.ID, first.ID)
	}
	if len(store.appts) != 1 {
		t.Fatalf("appointments = %d, want 1", len(store.appts))
	}
	if len(store.events) != 1 {
		t.Fatalf("events = %d, want 1 (replay must not re-emit)", len(store.events))
	}
}

func TestConcurrentCreateSingleAdmission(t *testing.T) {
	svc, store := newFixture(t, 0)

	const n = 16
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			actor := model.Actor{Role: model.RolePatient, PatientID: fmt.Sprintf("pat-%d", i)}
			_, errs[i] = svc.Create(context.Background(), actor, CreateRequest{
				DoctorID: "doc-1", StartAt: at(9, 0), EndAt: at(9, 30),
			})
		}(i)
	}
	wg.Wait()

	var won, lost int
	for _, err := range errs {
		switch {
		case err == nil:
			won++
		case IsConflict(err):
			lost++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if won != 1 || lost != n-1 {
		t.Fatalf("admissions = %d, conflicts = %d; want exactly one admission", won, lost)
	}
	if len(store.appts) != 1 {
		t.Fatalf("appointments = %d, want 1", len(store.appts))
	}
}

func TestConfirm(t *testing.T) {
	svc, store := newFixture(t, 0)
	appt := mustCreate(t, svc, patient, at(9, 0), at(9, 30))
	ctx := context.Background()

	if _, err := svc.Confirm(ctx, otherDoctor, appt.ID); !errors.Is(err, ErrForbidden) {
		t.Fatalf("other doctor confirm: err = %v, want ErrForbidden", err)
	}
	if _, err := svc.Confirm(ctx, patient, appt.ID); !errors.Is(err, ErrForbidden) {
		t.Fatalf("patient confirm: err = %v, want ErrForbidden", err)
	}

	got, err := svc.Confirm(ctx, doctor, appt.ID)
	if err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if got.Status != model.StatusConfirmed {
		t.Fatalf("status = %s, want CONFIRMED", got.Status)
	}

	// Repeat confirm is a no-op success and emits no second event.
	events := len(store.events)
	if _, err := svc.Confirm(ctx, doctor, appt.ID); err != nil {
		t.Fatalf("repeat confirm: %v", err)
	}
	if len(store.events) != events {
		t.Fatalf("repeat confirm emitted an event")
	}

	if _, err := svc.Cancel(ctx, doctor, appt.ID); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if _, err := svc.Confirm(ctx, doctor, appt.ID); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("confirm cancelled: err = %v, want ErrInvalidTransition", err)
	}
}

func TestComplete(t *testing.T) {
	svc, _ := newFixture(t, 0)
	appt := mustCreate(t, svc, patient, at(9, 0), at(9, 30))
	ctx := context.Background()

	if _, err := svc.Complete(ctx, doctor, appt.ID); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("complete pending: err = %v, want ErrInvalidTransition", err)
	}
	if _, err := svc.Confirm(ctx, doctor, appt.ID); err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if _, err := svc.Complete(ctx, doctor, appt.ID); !errors.Is(err, ErrPastDeadline) {
		t.Fatalf("complete before start: err = %v, want ErrPastDeadline", err)
	}

	// Move the clock past the start time.
	svc.now = func() time.Time { return at(9, 5) }
	got, err := svc.Complete(ctx, doctor, appt.ID)
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if got.Status != model.StatusCompleted {
		t.Fatalf("status = %s, want COMPLETED", got.Status)
	}
	if _, err := svc.Complete(ctx, doctor, appt.ID); err != nil {
		t.Fatalf("repeat complete: %v", err)
	}
	if _, err := svc.Complete(ctx, patient, appt.ID); !errors.Is(err, ErrForbidden) {
		t.Fatalf("patient complete: err = %v, want ErrForbidden", err)
	}
}

func TestCancel(t *testing.T) {
	svc, _ := newFixture(t, 0)
	appt := mustCreate(t, svc, patient, at(9, 0), at(9, 30))
	ctx := context.Background()

	if _, err := svc.Cancel(ctx, otherPatient, appt.ID); !errors.Is(err, ErrForbidden) {
		t.Fatalf("stranger cancel: err = %v, want ErrForbidden", err)
	}

	got, err := svc.Cancel(ctx, patient, appt.ID)
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if got.Status != model.StatusCancelled || got.CancelledAt == nil {
		t.Fatalf("cancel result = %+v, want CANCELLED with timestamp", got)
	}
	if _, err := svc.Cancel(ctx, patient, appt.ID); err != nil {
		t.Fatalf("repeat cancel: %v", err)
	}

	// A cancelled slot frees up immediately.
	mustCreate(t, svc, otherPatient, at(9, 0), at(9, 30))
}

func TestCancelDeadlines(t *testing.T) {
	svc, _ := newFixture(t, 0)
	appt := mustCreate(t, svc, patient, at(9, 0), at(9, 30))
	ctx := context.Background()

	svc.now = func() time.Time { return at(9, 0) }
	if _, err := svc.Cancel(ctx, patient, appt.ID); !errors.Is(err, ErrPastDeadline) {
		t.Fatalf("cancel at start: err = %v, want ErrPastDeadline", err)
	}

	// Admins are bound by the same deadline; completed is terminal for all.
	svc.now = func() time.Time { return testNow }
	if _, err := svc.Confirm(ctx, doctor, appt.ID); err != nil {
		t.Fatalf("confirm: %v", err)
	}
	svc.now = func() time.Time { return at(10, 0) }
	if _, err := svc.Complete(ctx, doctor, appt.ID); err != nil {
		t.Fatalf("complete: %v", err)
	}
	if _, err := svc.Cancel(ctx, admin, appt.ID); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("cancel completed: err = %v, want ErrInvalidTransition", err)
	}
}

func TestReschedule(t *testing.T) {
	svc, store := newFixture(t, 0)
	ctx := context.Background()
	appt := mustCreate(t, svc, patient, at(9, 0), at(9, 30))
	if _, err := svc.Confirm(ctx, doctor, appt.ID); err != nil {
		t.Fatalf("confirm: %v", err)
	}
	blocker := mustCreate(t, svc, otherPatient, at(10, 0), at(10, 30))

	// Conflicting target leaves the appointment untouched.
	if _, err := svc.Reschedule(ctx, patient, appt.ID, at(10, 0), at(10, 30)); !IsConflict(err) {
		t.Fatalf("reschedule into busy slot: err = %v, want conflict", err)
	}
	unchanged, _ := store.GetAppointment(ctx, appt.ID)
	if unchanged.Status != model.StatusConfirmed || !unchanged.StartAt.Equal(at(9, 0)) {
		t.Fatalf("appointment changed after failed reschedule: %+v", unchanged)
	}

	// Moving onto its own old window is allowed (self excluded from overlap).
	got, err := svc.Reschedule(ctx, patient, appt.ID, at(9, 30), at(10, 0))
	if err != nil {
		t.Fatalf("reschedule: %v", err)
	}
	if got.Status != model.StatusPending {
		t.Fatalf("status = %s, want PENDING after reschedule", got.Status)
	}
	if !got.StartAt.Equal(at(9, 30)) || !got.EndAt.Equal(at(10, 0)) {
		t.Fatalf("window = %s-%s, want 09:30-10:00", got.StartAt, got.EndAt)
	}

	if _, err := svc.Cancel(ctx, patient, blocker.ID); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if _, err := svc.Cancel(ctx, patient, got.ID); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if _, err := svc.Reschedule(ctx, patient, got.ID, at(11, 0), at(11, 30)); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("reschedule cancelled: err = %v, want ErrInvalidTransition", err)
	}
}

func TestSlots(t *testing.T) {
	svc, store := newFixture(t, 0)
	ctx := context.Background()

	days, err := svc.Slots(ctx, "doc-1", "2026-02-02", "")
	if err != nil {
		t.Fatalf("slots: %v", err)
	}
	if len(days) != 1 || len(days[0].Slots) != 6 {
		t.Fatalf("slots = %+v, want 6 on 2026-02-02", days)
	}
	if !days[0].Slots[0].Start.Equal(at(9, 0)) || !days[0].Slots[5].End.Equal(at(12, 0)) {
		t.Fatalf("slot bounds wrong: %+v", days[0].Slots)
	}

	mustCreate(t, svc, patient, at(10, 0), at(10, 30))
	days, err = svc.Slots(ctx, "doc-1", "2026-02-02", "")
	if err != nil {
		t.Fatalf("slots after booking: %v", err)
	}
	if len(days[0].Slots) != 5 {
		t.Fatalf("slots after booking = %d, want 5", len(days[0].Slots))
	}
	for _, s := range days[0].Slots {
		if s.Start.Equal(at(10, 0)) {
			t.Fatalf("booked slot still listed: %+v", s)
		}
	}

	// Full-day exception empties the date.
	store.offs = append(store.offs, model.DayOff{
		ID: "off-1", DoctorID: "doc-1", Date: time.Date(2026, 2, 9, 0, 0, 0, 0, time.UTC),
	})
	days, err = svc.Slots(ctx, "doc-1", "2026-02-09", "")
	if err != nil {
		t.Fatalf("slots on day off: %v", err)
	}
	if len(days[0].Slots) != 0 {
		t.Fatalf("slots on full day off = %d, want 0", len(days[0].Slots))
	}

	// Range query spans the working Monday and a closed Tuesday.
	days, err = svc.Slots(ctx, "doc-1", "2026-02-02", "2026-02-03")
	if err != nil {
		t.Fatalf("range slots: %v", err)
	}
	if len(days) != 2 || len(days[1].Slots) != 0 {
		t.Fatalf("range = %+v, want Monday slots and empty Tuesday", days)
	}
}

func TestSlotsPartialDayOff(t *testing.T) {
	svc, store := newFixture(t, 0)
	from, to := 600, 660 // 10:00-11:00 blocked
	store.offs = append(store.offs, model.DayOff{
		ID: "off-1", DoctorID: "doc-1",
		Date:        time.Date(2026, 2, 2, 0, 0, 0, 0, time.UTC),
		StartMinute: &from, EndMinute: &to,
	})

	days, err := svc.Slots(context.Background(), "doc-1", "2026-02-02", "")
	if err != nil {
		t.Fatalf("slots: %v", err)
	}
	if len(days[0].Slots) != 4 {
		t.Fatalf("slots = %d, want 4 with 10:00-11:00 blocked", len(days[0].Slots))
	}

	_, err = svc.Create(context.Background(), patient, CreateRequest{
		DoctorID: "doc-1", StartAt: at(10, 0), EndAt: at(10, 30),
	})
	if !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("booking into day off: err = %v, want ErrInvalidRequest", err)
	}
}

func TestSlotsValidation(t *testing.T) {
	svc, store := newFixture(t, 0)
	ctx := context.Background()

	if _, err := svc.Slots(ctx, "doc-1", "not-a-date", ""); !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("bad date: err = %v, want ErrInvalidRequest", err)
	}
	if _, err := svc.Slots(ctx, "doc-1", "2026-02-02", "2026-01-01"); !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("reversed range: err = %v, want ErrInvalidRequest", err)
	}
	if _, err := svc.Slots(ctx, "doc-1", "2026-02-02", "2026-04-01"); !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("oversized range: err = %v, want ErrInvalidRequest", err)
	}
	if _, err := svc.Slots(ctx, "missing", "2026-02-02", ""); !errors.Is(err, ErrDoctorNotFound) {
		t.Fatalf("unknown doctor: err = %v, want ErrDoctorNotFound", err)
	}

	doc := store.doctors["doc-1"]
	doc.IsActive = false
	store.doctors["doc-1"] = doc
	if _, err := svc.Slots(ctx, "doc-1", "2026-02-02", ""); !errors.Is(err, ErrProviderInactive) {
		t.Fatalf("inactive doctor: err = %v, want ErrProviderInactive", err)
	}
}

func TestListScoping(t *testing.T) {
	svc, store := newFixture(t, 0)
	store.doctors["doc-2"] = model.Doctor{ID: "doc-2", Timezone: "UTC", IsActive: true}
	ctx := context.Background()
	mustCreate(t, svc, patient, at(9, 0), at(9, 30))
	mustCreate(t, svc, otherPatient, at(9, 30), at(10, 0))

	got, err := svc.List(ctx, patient, ListFilter{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 1 || got[0].PatientID != "pat-1" {
		t.Fatalf("patient list = %+v, want own appointment only", got)
	}

	// A doctor asking for another doctor's records is pinned back to their own.
	got, err = svc.List(ctx, doctor, ListFilter{DoctorID: "doc-2"})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("doctor list = %d, want 2", len(got))
	}

	got, err = svc.List(ctx, admin, ListFilter{Status: model.StatusPending})
	if err != nil {
		t.Fatalf("admin list: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("admin list = %d, want 2", len(got))
	}

	if _, err := svc.List(ctx, admin, ListFilter{Status: "UNKNOWN"}); !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("bad status: err = %v, want ErrInvalidRequest", err)
	}
}

func TestDoctorTimezone(t *testing.T) {
	svc, store := newFixture(t, 0)
	doc := store.doctors["doc-1"]
	doc.Timezone = "America/New_York"
	store.doctors["doc-1"] = doc

	// 09:00 New York on 2026-02-02 is 14:00 UTC.
	start := time.Date(2026, 2, 2, 14, 0, 0, 0, time.UTC)
	appt, err := svc.Create(context.Background(), patient, CreateRequest{
		DoctorID: "doc-1", StartAt: start, EndAt: start.Add(30 * time.Minute),
	})
	if err != nil {
		t.Fatalf("create in doctor tz: %v", err)
	}
	if appt.Status != model.StatusPending {
		t.Fatalf("status = %s, want PENDING", appt.Status)
	}

	// 09:00 UTC is 04:00 New York, outside working hours there.
	_, err = svc.Create(context.Background(), otherPatient, CreateRequest{
		DoctorID: "doc-1", StartAt: at(9, 0), EndAt: at(9, 30),
	})
	if !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("utc-morning create: err = %v, want ErrInvalidRequest", err)
	}
}
