// Package payment содержит адаптеры платёжного провайдера: Stripe и демонстрационный режим.
package payment

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/nfsuisse/intake/internal/model"
)

const (
	// MinAmountCents - минимальная сумма платежа в сантимах.
	MinAmountCents = 100
	// DefaultCurrency - валюта платежей по умолчанию.
	DefaultCurrency = "chf"

	// MetadataTaxRequestReference - ключ метаданных, связывающий платёж с налоговой заявкой.
	MetadataTaxRequestReference = "taxRequestReference"

	listLimit = 100
)

var (
	// ErrAmountTooSmall возвращается, если сумма меньше минимальной.
	ErrAmountTooSmall = errors.New("amount below minimum")
	// ErrMissingEmail возвращается, если не указан email плательщика.
	ErrMissingEmail = errors.New("customer email is required")
)

// ProviderError оборачивает ошибку, полученную от платёжного провайдера.
type ProviderError struct {
	Op         string
	StatusCode int
	Err        error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("payment provider %s: %v", e.Op, e.Err)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// IntentRequest описывает параметры создания платёжного намерения.
type IntentRequest struct {
	AmountCents int64
	Currency    string
	Email       string
	Name        string
	Description string
	Metadata    map[string]string
}

// Normalize приводит валюту к нижнему регистру и подставляет значение по умолчанию.
func (r *IntentRequest) Normalize() {
	r.Currency = normalizeCurrency(r.Currency)
	r.Email = strings.TrimSpace(r.Email)
}

// Validate проверяет сумму платежа.
func (r IntentRequest) Validate() error {
	if r.AmountCents < MinAmountCents {
		return fmt.Errorf("%w: %d < %d", ErrAmountTooSmall, r.AmountCents, MinAmountCents)
	}
	return nil
}

// TaxRequestReference возвращает номер налоговой заявки из метаданных, если он указан.
func (r IntentRequest) TaxRequestReference() string {
	return strings.TrimSpace(r.Metadata[MetadataTaxRequestReference])
}

// Intent - созданное платёжное намерение.
type Intent struct {
	ID           string `json:"paymentIntentId"`
	ClientSecret string `json:"clientSecret"`
}

// CheckoutRequest описывает параметры создания страницы оплаты.
type CheckoutRequest struct {
	AmountCents int64
	Currency    string
	ServiceName string
	Email       string
	Reference   string
	SuccessURL  string
	CancelURL   string
}

// Normalize приводит валюту к нижнему регистру и подставляет значение по умолчанию.
func (r *CheckoutRequest) Normalize() {
	r.Currency = normalizeCurrency(r.Currency)
	r.Email = strings.TrimSpace(r.Email)
	r.ServiceName = strings.TrimSpace(r.ServiceName)
}

// Validate проверяет сумму и обязательные поля.
func (r CheckoutRequest) Validate() error {
	if r.AmountCents < MinAmountCents {
		return fmt.Errorf("%w: %d < %d", ErrAmountTooSmall, r.AmountCents, MinAmountCents)
	}
	if r.Email == "" {
		return ErrMissingEmail
	}
	return nil
}

// CheckoutSession - созданная страница оплаты.
type CheckoutSession struct {
	ID  string `json:"sessionId"`
	URL string `json:"url"`
}

// Provider описывает операции платёжного провайдера.
type Provider interface {
	CreatePaymentIntent(ctx context.Context, req IntentRequest) (*Intent, error)
	CreateCheckoutSession(ctx context.Context, req CheckoutRequest) (*CheckoutSession, error)
	ListPayments(ctx context.Context) ([]model.PaymentRecord, error)
	// Live сообщает, подключён ли настоящий провайдер.
	Live() bool
}

// Summarize подсчитывает агрегированные показатели по списку платежей.
func Summarize(records []model.PaymentRecord) model.PaymentStats {
	var stats model.PaymentStats
	for _, p := range records {
		stats.Total++
		switch p.Status {
		case "succeeded":
			stats.Succeeded++
			stats.TotalAmountCents += p.AmountCents
		case "canceled", "failed":
			stats.Failed++
		default:
			stats.Pending++
		}
	}
	return stats
}

func normalizeCurrency(c string) string {
	c = strings.ToLower(strings.TrimSpace(c))
	if c == "" {
		return DefaultCurrency
	}
	return c
}
