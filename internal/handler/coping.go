package handler

import (
	"net/http"
	"time"

	"github.com/soberly/recovery/internal/ctxkeys"
	"github.com/soberly/recovery/internal/service"
)

type CopingHandler struct {
	copingService *service.CopingService
}

func NewCopingHandler(copingService *service.CopingService) *CopingHandler {
	return &CopingHandler{copingService: copingService}
}

// Strategies lists catalog and private strategies, optionally filtered by
// ?category=.
func (h *CopingHandler) Strategies(w http.ResponseWriter, r *http.Request) {
	strategies, err := h.copingService.Strategies(ctxkeys.UserID(r.Context()), r.URL.Query().Get("category"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, strategies)
}

func (h *CopingHandler) Strategy(w http.ResponseWriter, r *http.Request) {
	strategy, err := h.copingService.Strategy(ctxkeys.UserID(r.Context()), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, strategy)
}

func (h *CopingHandler) CreateStrategy(w http.ResponseWriter, r *http.Request) {
	var in service.StrategyInput
	err := decodeJSON(w, r, &in)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	strategy, err := h.copingService.CreateStrategy(ctxkeys.UserID(r.Context()), in)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeMessage(w, http.StatusCreated, "Coping strategy created", strategy)
}

func (h *CopingHandler) LogUsage(w http.ResponseWriter, r *http.Request) {
	var in service.UsageInput
	err := decodeJSON(w, r, &in)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	usage, err := h.copingService.LogUsage(ctxkeys.UserID(r.Context()), in)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeMessage(w, http.StatusCreated, "Coping usage logged", usage)
}

// Usages lists usage, newest first. ?since= takes an RFC 3339 timestamp.
func (h *CopingHandler) Usages(w http.ResponseWriter, r *http.Request) {
	var since time.Time
	if v := r.URL.Query().Get("since"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "since must be an RFC 3339 timestamp")
			return
		}
		since = t
	}

	usages, err := h.copingService.Usages(ctxkeys.UserID(r.Context()), since)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, usages)
}

func (h *CopingHandler) Usage(w http.ResponseWriter, r *http.Request) {
	usage, err := h.copingService.Usage(ctxkeys.UserID(r.Context()), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, usage)
}

func (h *CopingHandler) CompleteUsage(w http.ResponseWriter, r *http.Request) {
	var in service.CompleteUsageInput
	err := decodeJSON(w, r, &in)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	usage, err := h.copingService.CompleteUsage(ctxkeys.UserID(r.Context()), r.PathValue("id"), in)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, usage)
}

func (h *CopingHandler) DeleteUsage(w http.ResponseWriter, r *http.Request) {
	err := h.copingService.DeleteUsage(ctxkeys.UserID(r.Context()), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeMessage(w, http.StatusOK, "Coping usage deleted", nil)
}
