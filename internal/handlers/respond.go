package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/thinhgangg/medibook/internal/booking"
	"github.com/thinhgangg/medibook/internal/model"
	"github.com/thinhgangg/medibook/internal/schedule"
)

type appointmentResponse struct {
	AppointmentID string `json:"appointment_id"`
	DoctorID      string `json:"doctor_id"`
	PatientID     string `json:"patient_id"`
	StartAt       string `json:"start_at"`
	EndAt         string `json:"end_at"`
	Reason        string `json:"reason,omitempty"`
	Status        string `json:"status"`
	CancelledAt   string `json:"cancelled_at,omitempty"`
	CreatedAt     string `json:"created_at"`
}

func toAppointmentResponse(appt model.Appointment) appointmentResponse {
	resp := appointmentResponse{
		AppointmentID: appt.ID,
		DoctorID:      appt.DoctorID,
		PatientID:     appt.PatientID,
		StartAt:       appt.StartAt.UTC().Format(time.RFC3339),
		EndAt:         appt.EndAt.UTC().Format(time.RFC3339),
		Reason:        appt.Reason,
		Status:        string(appt.Status),
		CreatedAt:     appt.CreatedAt.UTC().Format(time.RFC3339),
	}
	if appt.CancelledAt != nil {
		resp.CancelledAt = appt.CancelledAt.UTC().Format(time.RFC3339)
	}
	return resp
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		http.Error(w, "failed to build response", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

// writeBookingError maps engine errors onto HTTP statuses. Unrecognized
// errors become opaque 500s so internals never leak to clients.
func writeBookingError(w http.ResponseWriter, err error) {
	switch {
	case booking.IsConflict(err):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, booking.ErrInvalidTransition):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, booking.ErrInvalidRequest), errors.Is(err, booking.ErrPastDeadline):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, booking.ErrForbidden):
		http.Error(w, err.Error(), http.StatusForbidden)
	case errors.Is(err, booking.ErrNotFound), errors.Is(err, booking.ErrDoctorNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, booking.ErrProviderInactive):
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
	default:
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

func writeScheduleError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, schedule.ErrRuleOverlap):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, schedule.ErrInvalidRule), errors.Is(err, schedule.ErrInvalidDayOff):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, schedule.ErrForbidden):
		http.Error(w, err.Error(), http.StatusForbidden)
	case errors.Is(err, schedule.ErrDoctorNotFound), errors.Is(err, schedule.ErrNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	default:
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}
