package handler

import (
	"net/http"

	"github.com/soberly/recovery/internal/ctxkeys"
	"github.com/soberly/recovery/internal/service"
)

// ProgressHandler serves streaks and milestones.
type ProgressHandler struct {
	streakService    *service.StreakService
	milestoneService *service.MilestoneService
}

func NewProgressHandler(streakService *service.StreakService, milestoneService *service.MilestoneService) *ProgressHandler {
	return &ProgressHandler{
		streakService:    streakService,
		milestoneService: milestoneService,
	}
}

func (h *ProgressHandler) CheckInStreak(w http.ResponseWriter, r *http.Request) {
	streak, err := h.streakService.CheckInStreak(ctxkeys.UserID(r.Context()))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, map[string]int{"streak": streak})
}

func (h *ProgressHandler) NonRelapseStreak(w http.ResponseWriter, r *http.Request) {
	streak, err := h.streakService.NonRelapseStreak(ctxkeys.UserID(r.Context()))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, map[string]int{"streak": streak})
}

func (h *ProgressHandler) StreakSummary(w http.ResponseWriter, r *http.Request) {
	summary, err := h.streakService.Summary(ctxkeys.UserID(r.Context()))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, summary)
}

func (h *ProgressHandler) MilestoneProgress(w http.ResponseWriter, r *http.Request) {
	progress, err := h.milestoneService.CurrentProgress(ctxkeys.UserID(r.Context()))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, progress)
}

func (h *ProgressHandler) MilestoneHistory(w http.ResponseWriter, r *http.Request) {
	history, err := h.milestoneService.History(ctxkeys.UserID(r.Context()))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, history)
}

func (h *ProgressHandler) MilestoneStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.milestoneService.Stats(ctxkeys.UserID(r.Context()))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, stats)
}

// CheckMilestones runs an evaluation on demand.
func (h *ProgressHandler) CheckMilestones(w http.ResponseWriter, r *http.Request) {
	result, err := h.milestoneService.Evaluate(ctxkeys.UserID(r.Context()))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, result)
}
