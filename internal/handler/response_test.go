package handler

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/soberly/recovery/internal/repository"
	"github.com/soberly/recovery/internal/service"
)

func TestWriteServiceError(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantAuth   bool
	}{
		{"deleted user", fmt.Errorf("failed to get user: %w", repository.ErrUserNotFound), http.StatusUnauthorized, true},
		{"bad credentials", service.ErrInvalidCredentials, http.StatusUnauthorized, true},
		{"premium", service.ErrPremiumRequired, http.StatusForbidden, false},
		{"missing strategy", repository.ErrStrategyNotFound, http.StatusNotFound, false},
		{"duplicate check-in", repository.ErrDuplicateCheckIn, http.StatusConflict, false},
		{"unmapped", errors.New("disk on fire"), http.StatusInternalServerError, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			req := httptest.NewRequest("GET", "/api/me", nil)
			writeServiceError(rec, req, tt.err)

			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if got := rec.Header().Get("WWW-Authenticate") != ""; got != tt.wantAuth {
				t.Errorf("WWW-Authenticate set = %v, want %v", got, tt.wantAuth)
			}
		})
	}
}
