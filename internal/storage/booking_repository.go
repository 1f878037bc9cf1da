// Package storage holds the Postgres repositories. Conflict semantics rely
// on two database-level guards: a FOR UPDATE lock on the doctor row
// serializes admissions per doctor, and an exclusion constraint on
// non-cancelled appointment ranges backstops any path that skips the lock.
package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/thinhgangg/medibook/internal/availability"
	"github.com/thinhgangg/medibook/internal/booking"
	"github.com/thinhgangg/medibook/internal/model"
	"github.com/thinhgangg/medibook/internal/outbox"
	"github.com/thinhgangg/medibook/libs/db"
)

type BookingRepository struct {
	pool   *db.Pool
	outbox *outbox.Repository
}

var _ booking.Store = (*BookingRepository)(nil)

func NewBookingRepository(pool *db.Pool, outboxRepo *outbox.Repository) *BookingRepository {
	return &BookingRepository{pool: pool, outbox: outboxRepo}
}

const appointmentColumns = `id, doctor_id, patient_id, start_at, end_at, COALESCE(reason, ''), status, created_at, cancelled_at`

func scanAppointment(row pgx.Row) (model.Appointment, error) {
	var appt model.Appointment
	err := row.Scan(
		&appt.ID,
		&appt.DoctorID,
		&appt.PatientID,
		&appt.StartAt,
		&appt.EndAt,
		&appt.Reason,
		&appt.Status,
		&appt.CreatedAt,
		&appt.CancelledAt,
	)
	return appt, err
}

func (r *BookingRepository) GetDoctor(ctx context.Context, id string) (model.Doctor, error) {
	var doc model.Doctor
	err := r.pool.QueryRow(ctx, `
		SELECT id, full_name, email, timezone, is_active
		FROM doctors
		WHERE id = $1
	`, id).Scan(&doc.ID, &doc.FullName, &doc.Email, &doc.Timezone, &doc.IsActive)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Doctor{}, booking.ErrDoctorNotFound
	}
	if err != nil {
		return model.Doctor{}, err
	}
	return doc, nil
}

func (r *BookingRepository) GetAppointment(ctx context.Context, id string) (model.Appointment, error) {
	appt, err := scanAppointment(r.pool.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE id = $1
	`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Appointment{}, booking.ErrNotFound
	}
	if err != nil {
		return model.Appointment{}, err
	}
	return appt, nil
}

func (r *BookingRepository) ListAppointments(ctx context.Context, f booking.ListFilter) ([]model.Appointment, error) {
	conds := []string{"1 = 1"}
	args := []any{}
	add := func(cond string, arg any) {
		args = append(args, arg)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}
	if f.DoctorID != "" {
		add("doctor_id = $%d", f.DoctorID)
	}
	if f.PatientID != "" {
		add("patient_id = $%d", f.PatientID)
	}
	if f.Status != "" {
		add("status = $%d", string(f.Status))
	}
	if f.DateFrom != "" {
		add("start_at >= $%d::date", f.DateFrom)
	}
	if f.DateTo != "" {
		add("start_at < $%d::date + interval '1 day'", f.DateTo)
	}
	limit := f.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	args = append(args, limit)

	rows, err := r.pool.Query(ctx, fmt.Sprintf(`
		SELECT %s
		FROM appointments
		WHERE %s
		ORDER BY start_at DESC
		LIMIT $%d
	`, appointmentColumns, strings.Join(conds, " AND "), len(args)), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var appts []model.Appointment
	for rows.Next() {
		appt, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		appts = append(appts, appt)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return appts, nil
}

func (r *BookingRepository) ActiveRules(ctx context.Context, doctorID string, weekday int) ([]model.AvailabilityRule, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, doctor_id, weekday, start_minute, end_minute, slot_minutes, is_active, created_at
		FROM availability_rules
		WHERE doctor_id = $1 AND weekday = $2 AND is_active
		ORDER BY start_minute
	`, doctorID, weekday)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rules []model.AvailabilityRule
	for rows.Next() {
		var rule model.AvailabilityRule
		if err := rows.Scan(&rule.ID, &rule.DoctorID, &rule.Weekday, &rule.StartMinute,
			&rule.EndMinute, &rule.SlotMinutes, &rule.IsActive, &rule.CreatedAt); err != nil {
			return nil, err
		}
		rules = append(rules, rule)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return rules, nil
}

func (r *BookingRepository) DayOffsOn(ctx context.Context, doctorID, date string) ([]model.DayOff, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, doctor_id, date, start_minute, end_minute, COALESCE(reason, ''), created_at
		FROM day_offs
		WHERE doctor_id = $1 AND date = $2::date
	`, doctorID, date)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectDayOffs(rows)
}

func (r *BookingRepository) BusyIntervals(ctx context.Context, doctorID string, from, to time.Time) ([]availability.Interval, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT start_at, end_at
		FROM appointments
		WHERE doctor_id = $1
			AND status <> 'CANCELLED'
			AND start_at < $3
			AND end_at > $2
		ORDER BY start_at
	`, doctorID, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var busy []availability.Interval
	for rows.Next() {
		var iv availability.Interval
		if err := rows.Scan(&iv.Start, &iv.End); err != nil {
			return nil, err
		}
		busy = append(busy, iv)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return busy, nil
}

// WithDoctorLock runs fn in a transaction that holds a FOR UPDATE lock on
// the doctor row, so concurrent writes for the same doctor serialize while
// other doctors proceed unimpeded.
func (r *BookingRepository) WithDoctorLock(ctx context.Context, doctorID string, fn func(tx booking.Tx) error) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var locked string
	err = tx.QueryRow(ctx, `SELECT id FROM doctors WHERE id = $1 FOR UPDATE`, doctorID).Scan(&locked)
	if errors.Is(err, pgx.ErrNoRows) {
		return booking.ErrDoctorNotFound
	}
	if err != nil {
		return err
	}

	if err := fn(&bookingTx{tx: tx, outbox: r.outbox}); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

type bookingTx struct {
	tx     pgx.Tx
	outbox *outbox.Repository
}

var _ booking.Tx = (*bookingTx)(nil)

func (t *bookingTx) GetAppointmentForUpdate(ctx context.Context, id string) (model.Appointment, error) {
	appt, err := scanAppointment(t.tx.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE id = $1
		FOR UPDATE
	`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Appointment{}, booking.ErrNotFound
	}
	if err != nil {
		return model.Appointment{}, err
	}
	return appt, nil
}

func (t *bookingTx) HasOverlap(ctx context.Context, doctorID string, from, to time.Time, excludeID string) (bool, error) {
	var exclude any
	if excludeID != "" {
		exclude = excludeID
	}
	var clash bool
	err := t.tx.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1
			FROM appointments
			WHERE doctor_id = $1
				AND status <> 'CANCELLED'
				AND start_at < $3
				AND end_at > $2
				AND ($4::uuid IS NULL OR id <> $4::uuid)
		)
	`, doctorID, from, to, exclude).Scan(&clash)
	return clash, err
}

func (t *bookingTx) InsertAppointment(ctx context.Context, appt *model.Appointment) error {
	err := t.tx.QueryRow(ctx, `
		INSERT INTO appointments (doctor_id, patient_id, start_at, end_at, reason, status)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at
	`, appt.DoctorID, appt.PatientID, appt.StartAt, appt.EndAt, appt.Reason, appt.Status).
		Scan(&appt.ID, &appt.CreatedAt)
	if isExclusion(err) {
		return booking.ErrOverlap
	}
	return err
}

func (t *bookingTx) UpdateAppointmentWindow(ctx context.Context, id string, start, end time.Time) error {
	tag, err := t.tx.Exec(ctx, `
		UPDATE appointments
		SET start_at = $2,
			end_at = $3,
			status = 'PENDING'
		WHERE id = $1
	`, id, start, end)
	if isExclusion(err) {
		return booking.ErrOverlap
	}
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return booking.ErrNotFound
	}
	return nil
}

func (t *bookingTx) UpdateAppointmentStatus(ctx context.Context, id string, status model.Status, cancelledAt *time.Time) error {
	tag, err := t.tx.Exec(ctx, `
		UPDATE appointments
		SET status = $2,
			cancelled_at = $3
		WHERE id = $1
	`, id, status, cancelledAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return booking.ErrNotFound
	}
	return nil
}

func (t *bookingTx) IdempotentAppointmentID(ctx context.Context, doctorID, key string) (string, bool, error) {
	var apptID string
	err := t.tx.QueryRow(ctx, `
		SELECT appointment_id
		FROM booking_idempotency_keys
		WHERE doctor_id = $1 AND idempotency_key = $2
		FOR UPDATE
	`, doctorID, key).Scan(&apptID)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return apptID, true, nil
}

func (t *bookingTx) SaveIdempotencyKey(ctx context.Context, doctorID, key, appointmentID string) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO booking_idempotency_keys (doctor_id, idempotency_key, appointment_id)
		VALUES ($1, $2, $3)
		ON CONFLICT (doctor_id, idempotency_key) DO NOTHING
	`, doctorID, key, appointmentID)
	return err
}

func (t *bookingTx) InsertEvent(ctx context.Context, evt outbox.Event) error {
	return t.outbox.Insert(ctx, t.tx, evt)
}

// isExclusion matches the appointments_no_overlap exclusion constraint.
func isExclusion(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23P01"
}

func collectDayOffs(rows pgx.Rows) ([]model.DayOff, error) {
	var offs []model.DayOff
	for rows.Next() {
		var off model.DayOff
		if err := rows.Scan(&off.ID, &off.DoctorID, &off.Date, &off.StartMinute,
			&off.EndMinute, &off.Reason, &off.CreatedAt); err != nil {
			return nil, err
		}
		offs = append(offs, off)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return offs, nil
}
