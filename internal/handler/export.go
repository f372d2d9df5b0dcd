package handler

import (
	"net/http"

	"github.com/soberly/recovery/internal/ctxkeys"
	"github.com/soberly/recovery/internal/service"
)

type ExportHandler struct {
	exportService *service.ExportService
}

func NewExportHandler(exportService *service.ExportService) *ExportHandler {
	return &ExportHandler{exportService: exportService}
}

func (h *ExportHandler) Create(w http.ResponseWriter, r *http.Request) {
	file, err := h.exportService.Create(r.Context(), ctxkeys.UserID(r.Context()))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeMessage(w, http.StatusCreated, "Export ready", file)
}

func (h *ExportHandler) List(w http.ResponseWriter, r *http.Request) {
	files, err := h.exportService.List(r.Context(), ctxkeys.UserID(r.Context()))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, files)
}
