package payment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
	"go.uber.org/zap"

	"github.com/nfsuisse/intake/internal/model"
)

// StripeProvider работает с платежами через Stripe API.
type StripeProvider struct {
	api    *client.API
	logger *zap.Logger
}

// NewStripeProvider создаёт провайдер с указанным секретным ключом. Если backend не задан,
// используется стандартный API Stripe без повторных попыток.
func NewStripeProvider(secretKey string, backend stripe.Backend, logger *zap.Logger) *StripeProvider {
	if backend == nil {
		backend = stripe.GetBackendWithConfig(stripe.APIBackend, &stripe.BackendConfig{
			MaxNetworkRetries: stripe.Int64(0),
			LeveledLogger:     &stripe.LeveledLogger{Level: stripe.LevelNull},
		})
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	api := &client.API{}
	api.Init(secretKey, &stripe.Backends{
		API:     backend,
		Connect: backend,
		Uploads: backend,
	})

	return &StripeProvider{api: api, logger: logger}
}

// Live всегда возвращает true.
func (p *StripeProvider) Live() bool {
	return true
}

// CreatePaymentIntent создаёт платёжное намерение с автоматическим выбором способа оплаты.
func (p *StripeProvider) CreatePaymentIntent(ctx context.Context, req IntentRequest) (*Intent, error) {
	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(req.AmountCents),
		Currency: stripe.String(req.Currency),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	}
	params.Context = ctx

	if req.Email != "" {
		params.ReceiptEmail = stripe.String(req.Email)
		params.AddMetadata("customerEmail", req.Email)
	}
	if req.Description != "" {
		params.Description = stripe.String(req.Description)
	}
	if req.Name != "" {
		params.AddMetadata("customerName", req.Name)
	}
	for k, v := range req.Metadata {
		params.AddMetadata(k, v)
	}

	pi, err := p.api.PaymentIntents.New(params)
	if err != nil {
		return nil, translateError("create payment intent", err)
	}

	p.logger.Info("payment intent created", zap.String("id", pi.ID), zap.Int64("amount", req.AmountCents))

	return &Intent{ID: pi.ID, ClientSecret: pi.ClientSecret}, nil
}

// CreateCheckoutSession создаёт страницу оплаты Stripe Checkout с одной позицией.
func (p *StripeProvider) CreateCheckoutSession(ctx context.Context, req CheckoutRequest) (*CheckoutSession, error) {
	params := &stripe.CheckoutSessionParams{
		Mode:          stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL:    stripe.String(req.SuccessURL),
		CancelURL:     stripe.String(req.CancelURL),
		CustomerEmail: stripe.String(req.Email),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
					Currency: stripe.String(req.Currency),
					ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
						Name: stripe.String(req.ServiceName),
					},
					UnitAmount: stripe.Int64(req.AmountCents),
				},
				Quantity: stripe.Int64(1),
			},
		},
	}
	params.Context = ctx

	if req.Reference != "" {
		params.ClientReferenceID = stripe.String(req.Reference)
		params.AddMetadata("reference", req.Reference)
	}

	s, err := p.api.CheckoutSessions.New(params)
	if err != nil {
		return nil, translateError("create checkout session", err)
	}

	return &CheckoutSession{ID: s.ID, URL: s.URL}, nil
}

// ListPayments возвращает последние платёжные намерения.
func (p *StripeProvider) ListPayments(ctx context.Context) ([]model.PaymentRecord, error) {
	params := &stripe.PaymentIntentListParams{}
	params.Context = ctx
	params.Limit = stripe.Int64(listLimit)

	var res []model.PaymentRecord
	iter := p.api.PaymentIntents.List(params)
	for len(res) < listLimit && iter.Next() {
		pi := iter.PaymentIntent()
		res = append(res, model.PaymentRecord{
			ID:            pi.ID,
			AmountCents:   pi.Amount,
			Currency:      string(pi.Currency),
			Status:        string(pi.Status),
			CustomerEmail: firstNonEmpty(pi.ReceiptEmail, pi.Metadata["customerEmail"]),
			CustomerName:  pi.Metadata["customerName"],
			Description:   pi.Description,
			Reference:     firstNonEmpty(pi.Metadata[MetadataTaxRequestReference], pi.Metadata["reference"]),
			CreatedAt:     time.Unix(pi.Created, 0).UTC(),
		})
	}
	if err := iter.Err(); err != nil {
		return nil, translateError("list payment intents", err)
	}

	return res, nil
}

func translateError(op string, err error) error {
	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) {
		return &ProviderError{
			Op:         op,
			StatusCode: stripeErr.HTTPStatusCode,
			Err:        fmt.Errorf("%s: %s", stripeErr.Code, stripeErr.Msg),
		}
	}
	return &ProviderError{Op: op, Err: err}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
