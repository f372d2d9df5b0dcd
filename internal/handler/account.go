package handler

import (
	"log/slog"
	"net/http"

	"github.com/soberly/recovery/internal/ctxkeys"
	"github.com/soberly/recovery/internal/model"
	"github.com/soberly/recovery/internal/service"
)

type AccountHandler struct {
	userService         *service.UserService
	subscriptionService *service.SubscriptionService
}

func NewAccountHandler(userService *service.UserService, subscriptionService *service.SubscriptionService) *AccountHandler {
	return &AccountHandler{
		userService:         userService,
		subscriptionService: subscriptionService,
	}
}

type meResponse struct {
	User         *model.User         `json:"user"`
	Subscription *model.Subscription `json:"subscription"`
}

func (h *AccountHandler) Me(w http.ResponseWriter, r *http.Request) {
	userID := ctxkeys.UserID(r.Context())

	user, err := h.userService.ByID(userID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	sub, err := h.subscriptionService.Subscription(userID)
	if err != nil {
		slog.Warn("user has no subscription", "error", err, "user_id", userID)
	}
	writeData(w, http.StatusOK, meResponse{User: user, Subscription: sub})
}

// DeleteAccount removes the user and everything they recorded.
func (h *AccountHandler) DeleteAccount(w http.ResponseWriter, r *http.Request) {
	userID := ctxkeys.UserID(r.Context())

	err := h.userService.DeleteAccount(r.Context(), userID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeMessage(w, http.StatusOK, "Account deleted", nil)
}
