package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/soberly/recovery/internal/repository"
	"github.com/soberly/recovery/internal/service"
	"github.com/soberly/recovery/internal/service/payment"
)

const maxBodyBytes = 1 << 20

// envelope is the shape of every JSON response.
type envelope struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, body envelope) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	err := json.NewEncoder(w).Encode(body)
	if err != nil {
		slog.Error("failed to write response", "error", err)
	}
}

func writeData(w http.ResponseWriter, status int, data any) {
	writeJSON(w, status, envelope{Success: true, Data: data})
}

func writeMessage(w http.ResponseWriter, status int, message string, data any) {
	writeJSON(w, status, envelope{Success: true, Message: message, Data: data})
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, envelope{Success: false, Message: message})
}

// errorStatus maps domain errors to HTTP status codes. Matching is done with
// errors.Is in order.
var errorStatus = []struct {
	err    error
	status int
}{
	{service.ErrInvalidCheckIn, http.StatusBadRequest},
	{service.ErrInvalidBackfill, http.StatusBadRequest},
	{service.ErrInvalidDateRange, http.StatusBadRequest},
	{service.ErrInvalidPeriod, http.StatusBadRequest},
	{service.ErrInvalidStrategy, http.StatusBadRequest},
	{service.ErrInvalidUsage, http.StatusBadRequest},
	{service.ErrInvalidEmail, http.StatusBadRequest},
	{service.ErrInvalidUsername, http.StatusBadRequest},
	{service.ErrWeakPassword, http.StatusBadRequest},
	{payment.ErrUnknownInterval, http.StatusBadRequest},
	{service.ErrInvalidCredentials, http.StatusUnauthorized},
	{service.ErrInvalidToken, http.StatusUnauthorized},
	{service.ErrPasswordlessLogin, http.StatusUnauthorized},
	// a token that outlives its account no longer authenticates anyone
	{repository.ErrUserNotFound, http.StatusUnauthorized},
	{service.ErrPremiumRequired, http.StatusForbidden},
	{repository.ErrCheckInNotFound, http.StatusNotFound},
	{repository.ErrStrategyNotFound, http.StatusNotFound},
	{repository.ErrCopingUsageNotFound, http.StatusNotFound},
	{repository.ErrMilestoneNotFound, http.StatusNotFound},
	{repository.ErrFileNotFound, http.StatusNotFound},
	{repository.ErrDuplicateCheckIn, http.StatusConflict},
	{repository.ErrDuplicateStrategy, http.StatusConflict},
	{service.ErrEmailAlreadyExists, http.StatusConflict},
	{service.ErrActiveSubscription, http.StatusConflict},
	{payment.ErrNoCustomer, http.StatusConflict},
	{service.ErrExportUnavailable, http.StatusServiceUnavailable},
	{service.ErrLockTimeout, http.StatusServiceUnavailable},
}

// writeServiceError answers with the status mapped to err. Unmapped errors
// are logged and answered with a generic 500.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	for _, e := range errorStatus {
		if errors.Is(err, e.err) {
			if e.status == http.StatusUnauthorized {
				w.Header().Set("WWW-Authenticate", `Bearer realm="api"`)
			}
			writeError(w, e.status, err.Error())
			return
		}
	}
	slog.Error("request failed", "error", err, "method", r.Method, "path", r.URL.Path)
	writeError(w, http.StatusInternalServerError, "Internal server error")
}

// NotFound answers unmatched routes with the JSON envelope.
func NotFound(w http.ResponseWriter, r *http.Request) {
	writeError(w, http.StatusNotFound, "Not found")
}

var errBadBody = errors.New("request body must be valid JSON")

// decodeJSON reads a single JSON value into dst, rejecting unknown fields.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	err := dec.Decode(dst)
	if err != nil {
		return fmt.Errorf("%w: %v", errBadBody, err)
	}
	if dec.Decode(&struct{}{}) != io.EOF {
		return fmt.Errorf("%w: trailing data", errBadBody)
	}
	return nil
}
