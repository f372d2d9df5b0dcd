package handler

import (
	"io"
	"log/slog"
	"net/http"

	"github.com/soberly/recovery/internal/ctxkeys"
	"github.com/soberly/recovery/internal/model"
	"github.com/soberly/recovery/internal/service"
	"github.com/soberly/recovery/internal/service/payment"
)

type BillingHandler struct {
	subscriptionService *service.SubscriptionService
	userService         *service.UserService
	paymentService      payment.Provider
}

// NewBillingHandler accepts a nil provider; checkout, portal and webhooks
// then answer 503.
func NewBillingHandler(subscriptionService *service.SubscriptionService, userService *service.UserService, paymentService payment.Provider) *BillingHandler {
	return &BillingHandler{
		subscriptionService: subscriptionService,
		userService:         userService,
		paymentService:      paymentService,
	}
}

func (h *BillingHandler) Subscription(w http.ResponseWriter, r *http.Request) {
	sub, err := h.subscriptionService.Subscription(ctxkeys.UserID(r.Context()))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, sub)
}

type checkoutRequest struct {
	Interval string `json:"interval"`
}

func (h *BillingHandler) CreateCheckout(w http.ResponseWriter, r *http.Request) {
	if !h.enabled(w) {
		return
	}
	userID := ctxkeys.UserID(r.Context())

	var req checkoutRequest
	err := decodeJSON(w, r, &req)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Interval == "" {
		req.Interval = model.SubscriptionIntervalMonthly
	}

	user, err := h.userService.ByID(userID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	checkoutURL, err := h.paymentService.CreateCheckoutURL(userID, req.Interval, user.Email)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, map[string]string{"url": checkoutURL})
}

func (h *BillingHandler) CustomerPortal(w http.ResponseWriter, r *http.Request) {
	if !h.enabled(w) {
		return
	}

	portalURL, err := h.paymentService.CustomerPortalURL(ctxkeys.UserID(r.Context()))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, map[string]string{"url": portalURL})
}

func (h *BillingHandler) Webhook(w http.ResponseWriter, r *http.Request) {
	if !h.enabled(w) {
		return
	}

	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		slog.Error("failed to read webhook payload", "error", err)
		writeError(w, http.StatusBadRequest, "Failed to read payload")
		return
	}

	err = h.paymentService.HandleWebhook(payload, r.Header)
	if err != nil {
		slog.Error("failed to handle webhook", "error", err, "provider", h.paymentService.Name())
		writeError(w, http.StatusBadRequest, "Failed to process webhook")
		return
	}

	writeData(w, http.StatusOK, map[string]bool{"received": true})
}

func (h *BillingHandler) enabled(w http.ResponseWriter) bool {
	if h.paymentService == nil {
		writeError(w, http.StatusServiceUnavailable, "Billing is not configured")
		return false
	}
	return true
}
