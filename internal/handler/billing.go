package handler

import (
	"encoding/json"
	"net/http"

	"github.com/bankr-ai/assistant-client/internal/middleware"
	"github.com/bankr-ai/assistant-client/internal/model"
	"github.com/bankr-ai/assistant-client/internal/service"
	"github.com/bankr-ai/assistant-client/pkg/logger"
)

// BillingHandler handles payment and bank-link endpoints.
type BillingHandler struct {
	users       *service.UserService
	checkoutURL string
	portalURL   string
	logger      *logger.Logger
}

// NewBillingHandler creates a new billing handler. checkoutURL and
// portalURL are the hosted payment pages the stub hands out.
func NewBillingHandler(users *service.UserService, checkoutURL, portalURL string, log *logger.Logger) *BillingHandler {
	return &BillingHandler{
		users:       users,
		checkoutURL: checkoutURL,
		portalURL:   portalURL,
		logger:      log,
	}
}

// CreateCheckoutSession handles POST /stripe/create-checkout-session
func (h *BillingHandler) CreateCheckoutSession(w http.ResponseWriter, r *http.Request) {
	var req struct {
		PriceID string `json:"priceId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.PriceID == "" {
		writeError(w, http.StatusBadRequest, "priceId is required")
		return
	}

	writeJSON(w, http.StatusOK, model.CheckoutSession{
		URL: h.checkoutURL + "?price=" + req.PriceID,
	})
}

// GetSubscription handles GET /stripe/subscription
func (h *BillingHandler) GetSubscription(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	user, err := h.users.Get(userID)
	if err != nil {
		writeError(w, http.StatusNotFound, "user not found")
		return
	}
	if user.Subscription == nil {
		writeError(w, http.StatusNotFound, "no subscription on record")
		return
	}
	writeJSON(w, http.StatusOK, user.Subscription)
}

// CreatePortalSession handles POST /stripe/create-portal-session
func (h *BillingHandler) CreatePortalSession(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	user, err := h.users.Get(userID)
	if err != nil {
		writeError(w, http.StatusNotFound, "user not found")
		return
	}
	if user.Subscription == nil {
		writeError(w, http.StatusNotFound, "no subscription to manage")
		return
	}
	writeJSON(w, http.StatusOK, model.PortalSession{
		URL: h.portalURL + "?customer=" + user.ID,
	})
}

// CancelSubscription handles POST /stripe/cancel-subscription
func (h *BillingHandler) CancelSubscription(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	if err := h.users.CancelSubscription(userID); err != nil {
		writeError(w, http.StatusNotFound, "user not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "canceled"})
}

// FetchBankData handles GET /plaid/fetch. The stub acknowledges; a real
// backend kicks off a provider pull here.
func (h *BillingHandler) FetchBankData(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "syncing"})
}

// DisconnectBank handles DELETE /plaid/disconnect
func (h *BillingHandler) DisconnectBank(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	if err := h.users.DisconnectPlaid(userID); err != nil {
		writeError(w, http.StatusNotFound, "user not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
