package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/thinhgangg/medibook/internal/model"
	"github.com/thinhgangg/medibook/internal/schedule"
	"github.com/thinhgangg/medibook/internal/timegrid"
)

type ScheduleHandler struct {
	svc    *schedule.Service
	logger *slog.Logger
}

func NewScheduleHandler(svc *schedule.Service, logger *slog.Logger) *ScheduleHandler {
	return &ScheduleHandler{svc: svc, logger: logger}
}

type addRuleRequest struct {
	DoctorID    string `json:"doctor_id"`
	Weekday     int    `json:"weekday"`
	StartMinute int    `json:"start_minute"`
	EndMinute   int    `json:"end_minute"`
	SlotMinutes int    `json:"slot_minutes"`
}

type ruleResponse struct {
	RuleID      string `json:"rule_id"`
	DoctorID    string `json:"doctor_id"`
	Weekday     int    `json:"weekday"`
	StartMinute int    `json:"start_minute"`
	EndMinute   int    `json:"end_minute"`
	SlotMinutes int    `json:"slot_minutes"`
	IsActive    bool   `json:"is_active"`
	CreatedAt   string `json:"created_at"`
}

func toRuleResponse(rule model.AvailabilityRule) ruleResponse {
	return ruleResponse{
		RuleID:      rule.ID,
		DoctorID:    rule.DoctorID,
		Weekday:     rule.Weekday,
		StartMinute: rule.StartMinute,
		EndMinute:   rule.EndMinute,
		SlotMinutes: rule.SlotMinutes,
		IsActive:    rule.IsActive,
		CreatedAt:   rule.CreatedAt.UTC().Format(time.RFC3339),
	}
}

// Rules multiplexes the availability rule collection: POST adds, GET lists,
// DELETE deactivates.
func (h *ScheduleHandler) Rules(w http.ResponseWriter, r *http.Request) {
	actor, ok := ActorFrom(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	switch r.Method {
	case http.MethodPost:
		var req addRuleRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid json body", http.StatusBadRequest)
			return
		}
		rule, err := h.svc.AddRule(r.Context(), actor, schedule.AddRuleRequest{
			DoctorID:    strings.TrimSpace(req.DoctorID),
			Weekday:     req.Weekday,
			StartMinute: req.StartMinute,
			EndMinute:   req.EndMinute,
			SlotMinutes: req.SlotMinutes,
		})
		if err != nil {
			writeScheduleError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, toRuleResponse(rule))

	case http.MethodGet:
		doctorID := strings.TrimSpace(r.URL.Query().Get("doctor_id"))
		if doctorID == "" {
			doctorID = actor.DoctorID
		}
		rules, err := h.svc.Rules(r.Context(), actor, doctorID)
		if err != nil {
			writeScheduleError(w, err)
			return
		}
		items := make([]ruleResponse, 0, len(rules))
		for _, rule := range rules {
			items = append(items, toRuleResponse(rule))
		}
		writeJSON(w, http.StatusOK, items)

	case http.MethodDelete:
		q := r.URL.Query()
		doctorID := strings.TrimSpace(q.Get("doctor_id"))
		ruleID := strings.TrimSpace(q.Get("rule_id"))
		if doctorID == "" {
			doctorID = actor.DoctorID
		}
		if ruleID == "" {
			http.Error(w, "rule_id required", http.StatusBadRequest)
			return
		}
		if err := h.svc.RemoveRule(r.Context(), actor, doctorID, ruleID); err != nil {
			writeScheduleError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)

	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

type addDayOffRequest struct {
	DoctorID    string `json:"doctor_id"`
	Date        string `json:"date"`
	StartMinute *int   `json:"start_minute"`
	EndMinute   *int   `json:"end_minute"`
	Reason      string `json:"reason"`
}

type dayOffResponse struct {
	DayOffID    string `json:"day_off_id"`
	DoctorID    string `json:"doctor_id"`
	Date        string `json:"date"`
	StartMinute *int   `json:"start_minute,omitempty"`
	EndMinute   *int   `json:"end_minute,omitempty"`
	Reason      string `json:"reason,omitempty"`
	CreatedAt   string `json:"created_at"`
}

func toDayOffResponse(off model.DayOff) dayOffResponse {
	return dayOffResponse{
		DayOffID:    off.ID,
		DoctorID:    off.DoctorID,
		Date:        timegrid.FormatDate(off.Date),
		StartMinute: off.StartMinute,
		EndMinute:   off.EndMinute,
		Reason:      off.Reason,
		CreatedAt:   off.CreatedAt.UTC().Format(time.RFC3339),
	}
}

// DayOffs multiplexes the day-off collection: POST adds, GET lists over a
// date range, DELETE removes.
func (h *ScheduleHandler) DayOffs(w http.ResponseWriter, r *http.Request) {
	actor, ok := ActorFrom(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	switch r.Method {
	case http.MethodPost:
		var req addDayOffRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid json body", http.StatusBadRequest)
			return
		}
		off, err := h.svc.AddDayOff(r.Context(), actor, schedule.AddDayOffRequest{
			DoctorID:    strings.TrimSpace(req.DoctorID),
			Date:        strings.TrimSpace(req.Date),
			StartMinute: req.StartMinute,
			EndMinute:   req.EndMinute,
			Reason:      strings.TrimSpace(req.Reason),
		})
		if err != nil {
			writeScheduleError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, toDayOffResponse(off))

	case http.MethodGet:
		q := r.URL.Query()
		doctorID := strings.TrimSpace(q.Get("doctor_id"))
		if doctorID == "" {
			doctorID = actor.DoctorID
		}
		offs, err := h.svc.DayOffs(r.Context(), actor, doctorID,
			strings.TrimSpace(q.Get("date_from")), strings.TrimSpace(q.Get("date_to")))
		if err != nil {
			writeScheduleError(w, err)
			return
		}
		items := make([]dayOffResponse, 0, len(offs))
		for _, off := range offs {
			items = append(items, toDayOffResponse(off))
		}
		writeJSON(w, http.StatusOK, items)

	case http.MethodDelete:
		q := r.URL.Query()
		doctorID := strings.TrimSpace(q.Get("doctor_id"))
		dayOffID := strings.TrimSpace(q.Get("day_off_id"))
		if doctorID == "" {
			doctorID = actor.DoctorID
		}
		if dayOffID == "" {
			http.Error(w, "day_off_id required", http.StatusBadRequest)
			return
		}
		if err := h.svc.RemoveDayOff(r.Context(), actor, doctorID, dayOffID); err != nil {
			writeScheduleError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)

	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}
