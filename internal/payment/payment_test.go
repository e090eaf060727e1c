package payment

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nfsuisse/intake/internal/model"
)

func TestIntentRequestValidate(t *testing.T) {
	tests := []struct {
		name    string
		amount  int64
		wantErr error
	}{
		{name: "below minimum", amount: 50, wantErr: ErrAmountTooSmall},
		{name: "zero", amount: 0, wantErr: ErrAmountTooSmall},
		{name: "exact minimum", amount: MinAmountCents},
		{name: "regular", amount: 14900},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := IntentRequest{AmountCents: tt.amount}.Validate()
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestNormalizeDefaultsCurrency(t *testing.T) {
	req := IntentRequest{Currency: " EUR "}
	req.Normalize()
	assert.Equal(t, "eur", req.Currency)

	req = IntentRequest{}
	req.Normalize()
	assert.Equal(t, DefaultCurrency, req.Currency)
}

func TestCheckoutRequestValidate(t *testing.T) {
	err := CheckoutRequest{AmountCents: 14900}.Validate()
	assert.ErrorIs(t, err, ErrMissingEmail)

	err = CheckoutRequest{AmountCents: 99, Email: "a@b.ch"}.Validate()
	assert.ErrorIs(t, err, ErrAmountTooSmall)
}

func TestSummarize(t *testing.T) {
	stats := Summarize([]model.PaymentRecord{
		{Status: "succeeded", AmountCents: 14900},
		{Status: "succeeded", AmountCents: 100},
		{Status: "processing", AmountCents: 8900},
		{Status: "canceled", AmountCents: 500},
	})

	assert.Equal(t, model.PaymentStats{Total: 4, Succeeded: 2, Pending: 1, Failed: 1, TotalAmountCents: 15000}, stats)
}

func TestProviderErrorUnwrap(t *testing.T) {
	inner := errors.New("boom")
	err := error(&ProviderError{Op: "create payment intent", Err: inner})

	assert.ErrorIs(t, err, inner)
	assert.Contains(t, err.Error(), "create payment intent")
}

func TestDemoProvider(t *testing.T) {
	now := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	p := NewDemoProvider().WithClock(func() time.Time { return now })
	ctx := context.Background()

	assert.False(t, p.Live())

	intent, err := p.CreatePaymentIntent(ctx, IntentRequest{
		AmountCents: 14900,
		Currency:    DefaultCurrency,
		Email:       "anna@example.ch",
		Metadata:    map[string]string{MetadataTaxRequestReference: "NF-ABCD2345"},
	})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(intent.ID, "pi_demo_"))
	assert.True(t, strings.HasPrefix(intent.ClientSecret, intent.ID))

	payments, err := p.ListPayments(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, payments)
	assert.Equal(t, intent.ID, payments[0].ID)
	assert.Equal(t, "NF-ABCD2345", payments[0].Reference)

	session, err := p.CreateCheckoutSession(ctx, CheckoutRequest{SuccessURL: "https://nf.example/merci?ref=NF-ABCD2345"})
	require.NoError(t, err)
	assert.Contains(t, session.URL, "demo=true")
	assert.Contains(t, session.URL, "ref=NF-ABCD2345")
}
