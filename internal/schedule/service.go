// Package schedule manages the weekly availability rules and day-off
// exceptions that the booking engine derives slots from.
package schedule

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/thinhgangg/medibook/internal/model"
	"github.com/thinhgangg/medibook/internal/timegrid"
)

const minutesPerDay = 24 * 60

var (
	ErrInvalidRule    = errors.New("invalid availability rule")
	ErrRuleOverlap    = errors.New("rule overlaps an existing rule for this weekday")
	ErrInvalidDayOff  = errors.New("invalid day off")
	ErrForbidden      = errors.New("forbidden")
	ErrDoctorNotFound = errors.New("doctor not found")
	ErrNotFound       = errors.New("not found")
)

type Store interface {
	GetDoctor(ctx context.Context, id string) (model.Doctor, error)
	RulesForDoctor(ctx context.Context, doctorID string) ([]model.AvailabilityRule, error)
	InsertRule(ctx context.Context, rule *model.AvailabilityRule) error
	DeactivateRule(ctx context.Context, doctorID, ruleID string) error
	DayOffsBetween(ctx context.Context, doctorID string, from, to time.Time) ([]model.DayOff, error)
	InsertDayOff(ctx context.Context, off *model.DayOff) error
	DeleteDayOff(ctx context.Context, doctorID, dayOffID string) error
}

type Service struct {
	store  Store
	logger *slog.Logger
}

func NewService(store Store, logger *slog.Logger) *Service {
	return &Service{store: store, logger: logger}
}

type AddRuleRequest struct {
	DoctorID    string
	Weekday     int
	StartMinute int
	EndMinute   int
	SlotMinutes int
}

// AddRule creates a weekly open window for the doctor. Rules for the same
// weekday must not overlap, so slot derivation never has to de-duplicate.
func (s *Service) AddRule(ctx context.Context, actor model.Actor, req AddRuleRequest) (model.AvailabilityRule, error) {
	if !actor.IsAdmin() && !actor.OwnsDoctor(req.DoctorID) {
		return model.AvailabilityRule{}, fmt.Errorf("%w: only the doctor or an admin can manage the schedule", ErrForbidden)
	}
	if req.Weekday < 0 || req.Weekday > 6 {
		return model.AvailabilityRule{}, fmt.Errorf("%w: weekday must be 0 (Monday) to 6 (Sunday)", ErrInvalidRule)
	}
	if req.StartMinute < 0 || req.EndMinute > minutesPerDay || req.EndMinute <= req.StartMinute {
		return model.AvailabilityRule{}, fmt.Errorf("%w: window must satisfy 0 <= start < end <= %d", ErrInvalidRule, minutesPerDay)
	}
	if req.SlotMinutes <= 0 {
		return model.AvailabilityRule{}, fmt.Errorf("%w: slot_minutes must be positive", ErrInvalidRule)
	}
	if (req.EndMinute-req.StartMinute)%req.SlotMinutes != 0 {
		return model.AvailabilityRule{}, fmt.Errorf("%w: window length must be a multiple of slot_minutes", ErrInvalidRule)
	}

	if _, err := s.store.GetDoctor(ctx, req.DoctorID); err != nil {
		return model.AvailabilityRule{}, err
	}

	existing, err := s.store.RulesForDoctor(ctx, req.DoctorID)
	if err != nil {
		return model.AvailabilityRule{}, err
	}
	for _, r := range existing {
		if !r.IsActive || r.Weekday != req.Weekday {
			continue
		}
		if req.StartMinute < r.EndMinute && r.StartMinute < req.EndMinute {
			return model.AvailabilityRule{}, fmt.Errorf("%w: clashes with rule %s", ErrRuleOverlap, r.ID)
		}
	}

	rule := model.AvailabilityRule{
		DoctorID:    req.DoctorID,
		Weekday:     req.Weekday,
		StartMinute: req.StartMinute,
		EndMinute:   req.EndMinute,
		SlotMinutes: req.SlotMinutes,
		IsActive:    true,
	}
	if err := s.store.InsertRule(ctx, &rule); err != nil {
		return model.AvailabilityRule{}, err
	}
	if s.logger != nil {
		s.logger.Info("availability rule added",
			"doctor_id", rule.DoctorID, "rule_id", rule.ID, "weekday", rule.Weekday)
	}
	return rule, nil
}

// Rules lists all rules of a doctor, active and inactive.
func (s *Service) Rules(ctx context.Context, actor model.Actor, doctorID string) ([]model.AvailabilityRule, error) {
	if !actor.IsAdmin() && !actor.OwnsDoctor(doctorID) {
		return nil, fmt.Errorf("%w: only the doctor or an admin can view the schedule", ErrForbidden)
	}
	return s.store.RulesForDoctor(ctx, doctorID)
}

// RemoveRule deactivates a rule. Existing appointments booked under it are
// untouched; the window just stops producing slots.
func (s *Service) RemoveRule(ctx context.Context, actor model.Actor, doctorID, ruleID string) error {
	if !actor.IsAdmin() && !actor.OwnsDoctor(doctorID) {
		return fmt.Errorf("%w: only the doctor or an admin can manage the schedule", ErrForbidden)
	}
	return s.store.DeactivateRule(ctx, doctorID, ruleID)
}

type AddDayOffRequest struct {
	DoctorID    string
	Date        string
	StartMinute *int
	EndMinute   *int
	Reason      string
}

// AddDayOff blocks a date, fully when both minute bounds are absent or
// partially when both are present.
func (s *Service) AddDayOff(ctx context.Context, actor model.Actor, req AddDayOffRequest) (model.DayOff, error) {
	if !actor.IsAdmin() && !actor.OwnsDoctor(req.DoctorID) {
		return model.DayOff{}, fmt.Errorf("%w: only the doctor or an admin can manage the schedule", ErrForbidden)
	}
	date, err := timegrid.ParseDate(req.Date, time.UTC)
	if err != nil {
		return model.DayOff{}, fmt.Errorf("%w: %s", ErrInvalidDayOff, err)
	}
	if (req.StartMinute == nil) != (req.EndMinute == nil) {
		return model.DayOff{}, fmt.Errorf("%w: start_minute and end_minute must be given together", ErrInvalidDayOff)
	}
	if req.StartMinute != nil {
		if *req.StartMinute < 0 || *req.EndMinute > minutesPerDay || *req.EndMinute <= *req.StartMinute {
			return model.DayOff{}, fmt.Errorf("%w: window must satisfy 0 <= start < end <= %d", ErrInvalidDayOff, minutesPerDay)
		}
	}

	if _, err := s.store.GetDoctor(ctx, req.DoctorID); err != nil {
		return model.DayOff{}, err
	}

	off := model.DayOff{
		DoctorID:    req.DoctorID,
		Date:        date,
		StartMinute: req.StartMinute,
		EndMinute:   req.EndMinute,
		Reason:      req.Reason,
	}
	if err := s.store.InsertDayOff(ctx, &off); err != nil {
		return model.DayOff{}, err
	}
	if s.logger != nil {
		s.logger.Info("day off added",
			"doctor_id", off.DoctorID, "day_off_id", off.ID, "date", req.Date, "full_day", off.FullDay())
	}
	return off, nil
}

// DayOffs lists the exceptions of a doctor over an inclusive date range.
func (s *Service) DayOffs(ctx context.Context, actor model.Actor, doctorID, dateFrom, dateTo string) ([]model.DayOff, error) {
	if !actor.IsAdmin() && !actor.OwnsDoctor(doctorID) {
		return nil, fmt.Errorf("%w: only the doctor or an admin can view the schedule", ErrForbidden)
	}
	from, err := timegrid.ParseDate(dateFrom, time.UTC)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidDayOff, err)
	}
	to := from
	if dateTo != "" {
		if to, err = timegrid.ParseDate(dateTo, time.UTC); err != nil {
			return nil, fmt.Errorf("%w: %s", ErrInvalidDayOff, err)
		}
	}
	if to.Before(from) {
		return nil, fmt.Errorf("%w: date_to is before date_from", ErrInvalidDayOff)
	}
	return s.store.DayOffsBetween(ctx, doctorID, from, to)
}

// RemoveDayOff deletes an exception, reopening whatever the weekly rules
// allow on that date.
func (s *Service) RemoveDayOff(ctx context.Context, actor model.Actor, doctorID, dayOffID string) error {
	if !actor.IsAdmin() && !actor.OwnsDoctor(doctorID) {
		return fmt.Errorf("%w: only the doctor or an admin can manage the schedule", ErrForbidden)
	}
	return s.store.DeleteDayOff(ctx, doctorID, dayOffID)
}
