package service

import (
	"context"
	"errors"
	"fmt"
	"net/url"

	"go.uber.org/zap"

	"github.com/nfsuisse/intake/internal/model"
	"github.com/nfsuisse/intake/internal/payment"
	"github.com/nfsuisse/intake/internal/repository"
	"github.com/nfsuisse/intake/internal/validation"
)

const defaultServiceName = "Prestation NF Fiduciaire"

// PaymentsOverview - список платежей для администратора.
type PaymentsOverview struct {
	Payments []model.PaymentRecord `json:"payments"`
	Stats    model.PaymentStats    `json:"stats"`
	Demo     bool                  `json:"demo"`
}

func amountError(err error) error {
	if errors.Is(err, payment.ErrAmountTooSmall) {
		return invalid("Le montant minimum est de 1.00 CHF", err)
	}
	if errors.Is(err, payment.ErrMissingEmail) {
		return invalid("Adresse email requise", err)
	}
	return invalid("Paiement invalide", err)
}

// CreatePaymentIntent создаёт платёжное намерение. Если в метаданных указан номер
// налоговой заявки, идентификатор платежа сохраняется в заявке.
func (s *Service) CreatePaymentIntent(ctx context.Context, req payment.IntentRequest) (*payment.Intent, error) {
	req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, amountError(err)
	}
	if req.Email != "" && !validation.IsValidEmail(req.Email) {
		return nil, invalid("Adresse email invalide", nil)
	}

	intent, err := s.payments.CreatePaymentIntent(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("create payment intent: %w", err)
	}

	if ref := req.TaxRequestReference(); ref != "" {
		if err := s.repo.AttachTaxRequestPayment(ctx, ref, intent.ID); err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				s.logger.Warn("payment metadata names unknown tax request", zap.String("reference", ref), zap.String("paymentId", intent.ID))
			} else {
				s.logger.Error("attach payment to tax request error", zap.Error(err), zap.String("reference", ref))
			}
		}
	}

	return intent, nil
}

// CreateCheckoutSession создаёт страницу оплаты с адресами возврата на сайт.
func (s *Service) CreateCheckoutSession(ctx context.Context, req payment.CheckoutRequest) (*payment.CheckoutSession, error) {
	req.Normalize()
	if req.ServiceName == "" {
		req.ServiceName = defaultServiceName
	}
	if err := req.Validate(); err != nil {
		return nil, amountError(err)
	}
	if !validation.IsValidEmail(req.Email) {
		return nil, invalid("Adresse email invalide", nil)
	}

	success := url.Values{}
	success.Set("session_id", "{CHECKOUT_SESSION_ID}")
	if req.Reference != "" {
		success.Set("reference", req.Reference)
	}
	// Stripe подставляет идентификатор только в неэкранированный шаблон.
	req.SuccessURL = s.baseURL + "/paiement/succes?" + unescapeTemplate(success.Encode())
	req.CancelURL = s.baseURL + "/paiement/annule"

	session, err := s.payments.CreateCheckoutSession(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("create checkout session: %w", err)
	}
	return session, nil
}

// ListPayments возвращает платежи провайдера и агрегированную статистику.
func (s *Service) ListPayments(ctx context.Context) (*PaymentsOverview, error) {
	list, err := s.payments.ListPayments(ctx)
	if err != nil {
		return nil, fmt.Errorf("list payments: %w", err)
	}
	if list == nil {
		list = []model.PaymentRecord{}
	}

	return &PaymentsOverview{
		Payments: list,
		Stats:    payment.Summarize(list),
		Demo:     !s.payments.Live(),
	}, nil
}

func unescapeTemplate(q string) string {
	if u, err := url.QueryUnescape(q); err == nil {
		return u
	}
	return q
}
