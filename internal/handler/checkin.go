package handler

import (
	"net/http"
	"time"

	"github.com/soberly/recovery/internal/calendar"
	"github.com/soberly/recovery/internal/ctxkeys"
	"github.com/soberly/recovery/internal/service"
)

const defaultCheckInRangeDays = 30

type CheckInHandler struct {
	checkInService *service.CheckInService
}

func NewCheckInHandler(checkInService *service.CheckInService) *CheckInHandler {
	return &CheckInHandler{checkInService: checkInService}
}

// Create records today's check-in. The response carries the milestone
// evaluation it triggered.
func (h *CheckInHandler) Create(w http.ResponseWriter, r *http.Request) {
	var in service.CheckInInput
	err := decodeJSON(w, r, &in)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	result, err := h.checkInService.CreateToday(ctxkeys.UserID(r.Context()), in)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeMessage(w, http.StatusCreated, "Daily check-in saved", result)
}

// Backfill takes a JSON array of past check-ins. It answers 207 when any of
// them was rejected.
func (h *CheckInHandler) Backfill(w http.ResponseWriter, r *http.Request) {
	var entries []service.CheckInInput
	err := decodeJSON(w, r, &entries)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	result, err := h.checkInService.Backfill(ctxkeys.UserID(r.Context()), entries)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	if result.Partial() {
		writeMessage(w, http.StatusMultiStatus, "Some backfills succeeded, some failed.", result)
		return
	}
	writeMessage(w, http.StatusCreated, "All backfills created successfully.", result)
}

// List returns check-ins between from and to (YYYY-MM-DD, inclusive). The
// default range is the last 30 days.
func (h *CheckInHandler) List(w http.ResponseWriter, r *http.Request) {
	to := calendar.Today(time.Now())
	from := calendar.AddDays(to, -(defaultCheckInRangeDays - 1))

	var err error
	if v := r.URL.Query().Get("from"); v != "" {
		from, err = calendar.Parse(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "from must be a YYYY-MM-DD date")
			return
		}
	}
	if v := r.URL.Query().Get("to"); v != "" {
		to, err = calendar.Parse(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "to must be a YYYY-MM-DD date")
			return
		}
	}

	checkIns, err := h.checkInService.List(ctxkeys.UserID(r.Context()), from, to)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, checkIns)
}
