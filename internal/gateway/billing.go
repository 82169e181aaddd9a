package gateway

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/innovatehubph/inno-ai-gateway/internal/auth"
	"github.com/innovatehubph/inno-ai-gateway/internal/billing"
	"github.com/innovatehubph/inno-ai-gateway/internal/pricing"
)

type createSubscriptionRequest struct {
	Plan  string `json:"plan"`
	Cycle string `json:"cycle"`
}

func (h *Handler) HandleCreateSubscription(w http.ResponseWriter, r *http.Request) {
	if h.billing == nil {
		writeError(w, http.StatusServiceUnavailable, "provider_unconfigured", "billing is not configured")
		return
	}

	var req createSubscriptionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid request body")
		return
	}

	result, err := h.billing.CreateSubscription(r.Context(), auth.GetCustomerID(r.Context()), req.Plan, req.Cycle)
	if err != nil {
		if errors.Is(err, billing.ErrInvalidPlan) {
			writeError(w, http.StatusBadRequest, "bad_request", err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *Handler) HandleGetSubscription(w http.ResponseWriter, r *http.Request) {
	if h.billing == nil {
		writeError(w, http.StatusServiceUnavailable, "provider_unconfigured", "billing is not configured")
		return
	}
	sub, err := h.billing.GetSubscription(r.Context(), auth.GetCustomerID(r.Context()))
	if err != nil {
		if errors.Is(err, billing.ErrNoSubscription) {
			writeError(w, http.StatusNotFound, "not_found", "no subscription")
			return
		}
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, sub)
}

func (h *Handler) HandleCancelSubscription(w http.ResponseWriter, r *http.Request) {
	if h.billing == nil {
		writeError(w, http.StatusServiceUnavailable, "provider_unconfigured", "billing is not configured")
		return
	}
	sub, err := h.billing.CancelSubscription(r.Context(), auth.GetCustomerID(r.Context()))
	if err != nil {
		if errors.Is(err, billing.ErrNoSubscription) {
			writeError(w, http.StatusNotFound, "not_found", "no subscription")
			return
		}
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, sub)
}

func (h *Handler) HandleBillingHistory(w http.ResponseWriter, r *http.Request) {
	if h.billing == nil {
		writeError(w, http.StatusServiceUnavailable, "provider_unconfigured", "billing is not configured")
		return
	}
	invoices, err := h.billing.BillingHistory(r.Context(), auth.GetCustomerID(r.Context()))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
		return
	}
	if invoices == nil {
		invoices = []*billing.Invoice{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"object": "list", "data": invoices})
}

func (h *Handler) HandlePlans(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"object":     "list",
		"data":       pricing.Plans(),
		"currencies": pricing.Currencies(),
	})
}

// stripeEvent is the slice of the webhook payload the gateway needs:
// the event type and the checkout session's invoice reference.
type stripeEvent struct {
	Type string `json:"type"`
	Data struct {
		Object struct {
			ClientReferenceID string `json:"client_reference_id"`
			PaymentIntent     string `json:"payment_intent"`
		} `json:"object"`
	} `json:"data"`
}

// HandleStripeWebhook settles invoices from checkout.session.completed
// events. Other event types are acknowledged and ignored.
func (h *Handler) HandleStripeWebhook(w http.ResponseWriter, r *http.Request) {
	if h.billing == nil {
		writeError(w, http.StatusServiceUnavailable, "provider_unconfigured", "billing is not configured")
		return
	}

	var event stripeEvent
	if err := json.NewDecoder(r.Body).Decode(&event); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid webhook payload")
		return
	}
	if event.Type != "checkout.session.completed" {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ignored"})
		return
	}
	if event.Data.Object.ClientReferenceID == "" {
		writeError(w, http.StatusBadRequest, "bad_request", "missing client_reference_id")
		return
	}

	if _, err := h.billing.HandlePaymentSuccess(r.Context(), event.Data.Object.ClientReferenceID, event.Data.Object.PaymentIntent); err != nil {
		if errors.Is(err, billing.ErrInvoiceNotFound) {
			writeError(w, http.StatusNotFound, "not_found", "unknown invoice")
			return
		}
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "processed"})
}
