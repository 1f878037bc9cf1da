package handlers

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/thinhgangg/medibook/internal/booking"
	"github.com/thinhgangg/medibook/internal/metrics"
)

// SlotsHandler serves the public free-slot listing. No auth: patients
// browse availability before they hold an account session.
type SlotsHandler struct {
	svc     *booking.Service
	logger  *slog.Logger
	metrics *metrics.BookingMetrics
}

func NewSlotsHandler(svc *booking.Service, logger *slog.Logger, m *metrics.BookingMetrics) *SlotsHandler {
	return &SlotsHandler{svc: svc, logger: logger, metrics: m}
}

type slotItem struct {
	StartAt string `json:"start_at"`
	EndAt   string `json:"end_at"`
}

type daySlotsResponse struct {
	Date  string     `json:"date"`
	Slots []slotItem `json:"slots"`
}

func (h *SlotsHandler) Slots(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	q := r.URL.Query()
	doctorID := strings.TrimSpace(q.Get("doctor_id"))
	dateFrom := strings.TrimSpace(q.Get("date"))
	dateTo := strings.TrimSpace(q.Get("date_to"))
	if dateFrom == "" {
		dateFrom = strings.TrimSpace(q.Get("date_from"))
	}

	started := time.Now()
	days, err := h.svc.Slots(r.Context(), doctorID, dateFrom, dateTo)
	if err != nil {
		h.metrics.ObserveSlotQuery(metrics.OutcomeRejected, time.Since(started).Seconds())
		writeBookingError(w, err)
		return
	}
	h.metrics.ObserveSlotQuery(metrics.OutcomeOK, time.Since(started).Seconds())

	resp := make([]daySlotsResponse, 0, len(days))
	for _, day := range days {
		items := make([]slotItem, 0, len(day.Slots))
		for _, s := range day.Slots {
			items = append(items, slotItem{
				StartAt: s.Start.UTC().Format(time.RFC3339),
				EndAt:   s.End.UTC().Format(time.RFC3339),
			})
		}
		resp = append(resp, daySlotsResponse{Date: day.Date, Slots: items})
	}
	writeJSON(w, http.StatusOK, resp)
}
