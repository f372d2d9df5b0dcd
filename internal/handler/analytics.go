package handler

import (
	"net/http"

	"github.com/soberly/recovery/internal/ctxkeys"
	"github.com/soberly/recovery/internal/service"
)

var seriesPeriods = map[string]int{"7d": 7, "30d": 30}

type AnalyticsHandler struct {
	analyticsService *service.AnalyticsService
}

func NewAnalyticsHandler(analyticsService *service.AnalyticsService) *AnalyticsHandler {
	return &AnalyticsHandler{analyticsService: analyticsService}
}

func (h *AnalyticsHandler) Overview(w http.ResponseWriter, r *http.Request) {
	overview, err := h.analyticsService.Overview(ctxkeys.UserID(r.Context()))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, overview)
}

// TimeSeries takes ?period=7d|30d and defaults to 7d.
func (h *AnalyticsHandler) TimeSeries(w http.ResponseWriter, r *http.Request) {
	period := r.URL.Query().Get("period")
	if period == "" {
		period = "7d"
	}
	days, ok := seriesPeriods[period]
	if !ok {
		writeServiceError(w, r, service.ErrInvalidPeriod)
		return
	}

	points, err := h.analyticsService.TimeSeries(ctxkeys.UserID(r.Context()), days)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, points)
}

func (h *AnalyticsHandler) Trends(w http.ResponseWriter, r *http.Request) {
	trends, err := h.analyticsService.Trends(ctxkeys.UserID(r.Context()), r.URL.Query().Get("duration"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, trends)
}
