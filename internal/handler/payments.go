package handler

import (
	"net/http"

	"github.com/nfsuisse/intake/internal/payment"
)

type paymentIntentRequest struct {
	Amount      int64             `json:"amount"`
	Currency    string            `json:"currency"`
	Email       string            `json:"email"`
	Name        string            `json:"name"`
	Description string            `json:"description"`
	Metadata    map[string]string `json:"metadata"`
}

// CreatePaymentIntent создаёт платёжное намерение. Сумма передаётся в сантимах.
func (h *Handler) CreatePaymentIntent(w http.ResponseWriter, r *http.Request) {
	var req paymentIntentRequest
	if !h.decode(w, r, &req) {
		return
	}

	intent, err := h.service.CreatePaymentIntent(r.Context(), payment.IntentRequest{
		AmountCents: req.Amount,
		Currency:    req.Currency,
		Email:       req.Email,
		Name:        req.Name,
		Description: req.Description,
		Metadata:    req.Metadata,
	})
	if err != nil {
		h.writeServiceError(w, r, "create payment intent", err)
		return
	}

	h.writeJSON(w, http.StatusOK, intent)
}

type checkoutRequest struct {
	Amount      int64  `json:"amount"`
	Currency    string `json:"currency"`
	ServiceName string `json:"serviceName"`
	Email       string `json:"email"`
	Reference   string `json:"reference"`
}

// CreateCheckoutSession создаёт страницу оплаты.
func (h *Handler) CreateCheckoutSession(w http.ResponseWriter, r *http.Request) {
	var req checkoutRequest
	if !h.decode(w, r, &req) {
		return
	}

	session, err := h.service.CreateCheckoutSession(r.Context(), payment.CheckoutRequest{
		AmountCents: req.Amount,
		Currency:    req.Currency,
		ServiceName: req.ServiceName,
		Email:       req.Email,
		Reference:   req.Reference,
	})
	if err != nil {
		h.writeServiceError(w, r, "create checkout session", err)
		return
	}

	h.writeJSON(w, http.StatusOK, session)
}

// ListPayments возвращает платежи и статистику для администратора.
func (h *Handler) ListPayments(w http.ResponseWriter, r *http.Request) {
	overview, err := h.service.ListPayments(r.Context())
	if err != nil {
		h.writeServiceError(w, r, "list payments", err)
		return
	}

	h.writeJSON(w, http.StatusOK, overview)
}
