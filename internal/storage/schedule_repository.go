package storage

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/thinhgangg/medibook/internal/model"
	"github.com/thinhgangg/medibook/internal/schedule"
	"github.com/thinhgangg/medibook/libs/db"
)

type ScheduleRepository struct {
	pool *db.Pool
}

var _ schedule.Store = (*ScheduleRepository)(nil)

func NewScheduleRepository(pool *db.Pool) *ScheduleRepository {
	return &ScheduleRepository{pool: pool}
}

func (r *ScheduleRepository) GetDoctor(ctx context.Context, id string) (model.Doctor, error) {
	var doc model.Doctor
	err := r.pool.QueryRow(ctx, `
		SELECT id, full_name, email, timezone, is_active
		FROM doctors
		WHERE id = $1
	`, id).Scan(&doc.ID, &doc.FullName, &doc.Email, &doc.Timezone, &doc.IsActive)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Doctor{}, schedule.ErrDoctorNotFound
	}
	if err != nil {
		return model.Doctor{}, err
	}
	return doc, nil
}

func (r *ScheduleRepository) RulesForDoctor(ctx context.Context, doctorID string) ([]model.AvailabilityRule, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, doctor_id, weekday, start_minute, end_minute, slot_minutes, is_active, created_at
		FROM availability_rules
		WHERE doctor_id = $1
		ORDER BY weekday, start_minute
	`, doctorID)
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

func (r *ScheduleRepository) InsertRule(ctx context.Context, rule *model.AvailabilityRule) error {
	return r.pool.QueryRow(ctx, `
		INSERT INTO availability_rules (doctor_id, weekday, start_minute, end_minute, slot_minutes, is_active)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at
	`, rule.DoctorID, rule.Weekday, rule.StartMinute, rule.EndMinute, rule.SlotMinutes, rule.IsActive).
		Scan(&rule.ID, &rule.CreatedAt)
}

func (r *ScheduleRepository) DeactivateRule(ctx context.Context, doctorID, ruleID string) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE availability_rules
		SET is_active = false
		WHERE id = $1 AND doctor_id = $2
	`, ruleID, doctorID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return schedule.ErrNotFound
	}
	return nil
}

func (r *ScheduleRepository) DayOffsBetween(ctx context.Context, doctorID string, from, to time.Time) ([]model.DayOff, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, doctor_id, date, start_minute, end_minute, COALESCE(reason, ''), created_at
		FROM day_offs
		WHERE doctor_id = $1 AND date BETWEEN $2::date AND $3::date
		ORDER BY date
	`, doctorID, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectDayOffs(rows)
}

func (r *ScheduleRepository) InsertDayOff(ctx context.Context, off *model.DayOff) error {
	return r.pool.QueryRow(ctx, `
		INSERT INTO day_offs (doctor_id, date, start_minute, end_minute, reason)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at
	`, off.DoctorID, off.Date, off.StartMinute, off.EndMinute, off.Reason).
		Scan(&off.ID, &off.CreatedAt)
}

func (r *ScheduleRepository) DeleteDayOff(ctx context.Context, doctorID, dayOffID string) error {
	tag, err := r.pool.Exec(ctx, `
		DELETE FROM day_offs
		WHERE id = $1 AND doctor_id = $2
	`, dayOffID, doctorID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return schedule.ErrNotFound
	}
	return nil
}
