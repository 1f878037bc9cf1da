package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/thinhgangg/medibook/internal/booking"
	"github.com/thinhgangg/medibook/internal/metrics"
	"github.com/thinhgangg/medibook/internal/model"
)

type AppointmentsHandler struct {
	svc     *booking.Service
	logger  *slog.Logger
	metrics *metrics.BookingMetrics
}

func NewAppointmentsHandler(svc *booking.Service, logger *slog.Logger, m *metrics.BookingMetrics) *AppointmentsHandler {
	return &AppointmentsHandler{svc: svc, logger: logger, metrics: m}
}

type createAppointmentRequest struct {
	DoctorID string `json:"doctor_id"`
	StartAt  string `json:"start_at"`
	EndAt    string `json:"end_at"`
	Reason   string `json:"reason"`
}

type transitionRequest struct {
	AppointmentID string `json:"appointment_id"`
}

type rescheduleRequest struct {
	AppointmentID string `json:"appointment_id"`
	StartAt       string `json:"start_at"`
	EndAt         string `json:"end_at"`
}

func (h *AppointmentsHandler) Create(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	actor, ok := ActorFrom(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	var req createAppointmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	startAt, err := time.Parse(time.RFC3339, req.StartAt)
	if err != nil {
		http.Error(w, "invalid start_at", http.StatusBadRequest)
		return
	}
	endAt, err := time.Parse(time.RFC3339, req.EndAt)
	if err != nil {
		http.Error(w, "invalid end_at", http.StatusBadRequest)
		return
	}

	appt, err := h.svc.Create(r.Context(), actor, booking.CreateRequest{
		DoctorID:       strings.TrimSpace(req.DoctorID),
		Reason:         strings.TrimSpace(req.Reason),
		StartAt:        startAt,
		EndAt:          endAt,
		IdempotencyKey: strings.TrimSpace(r.Header.Get("Idempotency-Key")),
	})
	if err != nil {
		h.metrics.ObserveCreate(createOutcome(err))
		writeBookingError(w, err)
		return
	}
	h.metrics.ObserveCreate(metrics.OutcomeOK)
	writeJSON(w, http.StatusCreated, toAppointmentResponse(appt))
}

func (h *AppointmentsHandler) Confirm(w http.ResponseWriter, r *http.Request) {
	h.handleTransition(w, r, "confirm", h.svc.Confirm)
}

func (h *AppointmentsHandler) Complete(w http.ResponseWriter, r *http.Request) {
	h.handleTransition(w, r, "complete", h.svc.Complete)
}

func (h *AppointmentsHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	h.handleTransition(w, r, "cancel", h.svc.Cancel)
}

func (h *AppointmentsHandler) handleTransition(w http.ResponseWriter, r *http.Request, action string,
	fn func(ctx context.Context, actor model.Actor, apptID string) (model.Appointment, error)) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	actor, ok := ActorFrom(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	var req transitionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.AppointmentID = strings.TrimSpace(req.AppointmentID)
	if req.AppointmentID == "" {
		http.Error(w, "appointment_id required", http.StatusBadRequest)
		return
	}

	appt, err := fn(r.Context(), actor, req.AppointmentID)
	if err != nil {
		h.metrics.ObserveTransition(action, transitionOutcome(err))
		writeBookingError(w, err)
		return
	}
	h.metrics.ObserveTransition(action, metrics.OutcomeOK)
	writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
}

func (h *AppointmentsHandler) Reschedule(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	actor, ok := ActorFrom(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	var req rescheduleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.AppointmentID = strings.TrimSpace(req.AppointmentID)
	if req.AppointmentID == "" {
		http.Error(w, "appointment_id required", http.StatusBadRequest)
		return
	}
	startAt, err := time.Parse(time.RFC3339, req.StartAt)
	if err != nil {
		http.Error(w, "invalid start_at", http.StatusBadRequest)
		return
	}
	endAt, err := time.Parse(time.RFC3339, req.EndAt)
	if err != nil {
		http.Error(w, "invalid end_at", http.StatusBadRequest)
		return
	}

	appt, err := h.svc.Reschedule(r.Context(), actor, req.AppointmentID, startAt, endAt)
	if err != nil {
		h.metrics.ObserveTransition("reschedule", transitionOutcome(err))
		writeBookingError(w, err)
		return
	}
	h.metrics.ObserveTransition("reschedule", metrics.OutcomeOK)
	writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
}

func (h *AppointmentsHandler) List(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	actor, ok := ActorFrom(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	q := r.URL.Query()
	filter := booking.ListFilter{
		DoctorID:  strings.TrimSpace(q.Get("doctor_id")),
		PatientID: strings.TrimSpace(q.Get("patient_id")),
		Status:    model.Status(strings.TrimSpace(q.Get("status"))),
		DateFrom:  strings.TrimSpace(q.Get("date_from")),
		DateTo:    strings.TrimSpace(q.Get("date_to")),
	}
	if raw := strings.TrimSpace(q.Get("limit")); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 && n <= 200 {
			filter.Limit = n
		}
	}

	appts, err := h.svc.List(r.Context(), actor, filter)
	if err != nil {
		writeBookingError(w, err)
		return
	}
	items := make([]appointmentResponse, 0, len(appts))
	for _, appt := range appts {
		items = append(items, toAppointmentResponse(appt))
	}
	writeJSON(w, http.StatusOK, items)
}

func createOutcome(err error) string {
	switch {
	case booking.IsConflict(err):
		return metrics.OutcomeConflict
	case errors.Is(err, booking.ErrInvalidRequest),
		errors.Is(err, booking.ErrForbidden),
		errors.Is(err, booking.ErrProviderInactive),
		errors.Is(err, booking.ErrDoctorNotFound):
		return metrics.OutcomeRejected
	default:
		return metrics.OutcomeError
	}
}

func transitionOutcome(err error) string {
	switch {
	case booking.IsConflict(err):
		return metrics.OutcomeConflict
	case errors.Is(err, booking.ErrInvalidTransition),
		errors.Is(err, booking.ErrPastDeadline),
		errors.Is(err, booking.ErrInvalidRequest),
		errors.Is(err, booking.ErrForbidden),
		errors.Is(err, booking.ErrNotFound):
		return metrics.OutcomeRejected
	default:
		return metrics.OutcomeError
	}
}
