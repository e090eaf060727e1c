package payment

import (
	"context"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nfsuisse/intake/internal/model"
)

// DemoProvider имитирует платёжного провайдера, когда ключ Stripe не настроен.
// Созданные намерения хранятся в памяти процесса вместе с фиксированным набором примеров.
type DemoProvider struct {
	mu      sync.Mutex
	created []model.PaymentRecord
	now     func() time.Time
}

// NewDemoProvider создаёт демонстрационный провайдер.
func NewDemoProvider() *DemoProvider {
	return &DemoProvider{now: time.Now}
}

// WithClock подменяет источник времени, используется в тестах.
func (p *DemoProvider) WithClock(now func() time.Time) *DemoProvider {
	if now != nil {
		p.now = now
	}
	return p
}

// Live всегда возвращает false.
func (p *DemoProvider) Live() bool {
	return false
}

// CreatePaymentIntent запоминает намерение и возвращает фиктивный client secret.
func (p *DemoProvider) CreatePaymentIntent(_ context.Context, req IntentRequest) (*Intent, error) {
	id := "pi_demo_" + uuid.NewString()

	p.mu.Lock()
	p.created = append([]model.PaymentRecord{{
		ID:            id,
		AmountCents:   req.AmountCents,
		Currency:      req.Currency,
		Status:        "requires_payment_method",
		CustomerEmail: req.Email,
		CustomerName:  req.Name,
		Description:   req.Description,
		Reference:     req.TaxRequestReference(),
		CreatedAt:     p.now().UTC(),
	}}, p.created...)
	p.mu.Unlock()

	return &Intent{ID: id, ClientSecret: id + "_secret_demo"}, nil
}

// CreateCheckoutSession возвращает адрес успешной оплаты с пометкой демонстрационного режима.
func (p *DemoProvider) CreateCheckoutSession(_ context.Context, req CheckoutRequest) (*CheckoutSession, error) {
	id := "cs_demo_" + uuid.NewString()

	target := req.SuccessURL
	if u, err := url.Parse(req.SuccessURL); err == nil {
		q := u.Query()
		q.Set("demo", "true")
		q.Set("session_id", id)
		u.RawQuery = q.Encode()
		target = u.String()
	}

	return &CheckoutSession{ID: id, URL: target}, nil
}

// ListPayments возвращает созданные в процессе намерения и набор примеров.
func (p *DemoProvider) ListPayments(_ context.Context) ([]model.PaymentRecord, error) {
	p.mu.Lock()
	res := append([]model.PaymentRecord{}, p.created...)
	p.mu.Unlock()

	return append(res, demoPayments(p.now())...), nil
}

func demoPayments(now time.Time) []model.PaymentRecord {
	day := 24 * time.Hour
	return []model.PaymentRecord{
		{
			ID:            "pi_demo_001",
			AmountCents:   14900,
			Currency:      DefaultCurrency,
			Status:        "succeeded",
			CustomerEmail: "marie.dubois@example.ch",
			CustomerName:  "Marie Dubois",
			Description:   "Déclaration d'impôts - Standard",
			Reference:     "NF-K7M2P9QX",
			CreatedAt:     now.Add(-1 * day).UTC(),
		},
		{
			ID:            "pi_demo_002",
			AmountCents:   24900,
			Currency:      DefaultCurrency,
			Status:        "succeeded",
			CustomerEmail: "luca.rossi@example.ch",
			CustomerName:  "Luca Rossi",
			Description:   "Déclaration d'impôts - Premium",
			Reference:     "NF-H4N8W3ZT",
			CreatedAt:     now.Add(-3 * day).UTC(),
		},
		{
			ID:            "pi_demo_003",
			AmountCents:   8900,
			Currency:      DefaultCurrency,
			Status:        "processing",
			CustomerEmail: "anna.mueller@example.ch",
			CustomerName:  "Anna Müller",
			Description:   "Déclaration d'impôts - Essentiel",
			CreatedAt:     now.Add(-4 * day).UTC(),
		},
		{
			ID:            "pi_demo_004",
			AmountCents:   14900,
			Currency:      DefaultCurrency,
			Status:        "canceled",
			CustomerEmail: "pierre.favre@example.ch",
			CustomerName:  "Pierre Favre",
			Description:   "Déclaration d'impôts - Standard",
			CreatedAt:     now.Add(-6 * day).UTC(),
		},
	}
}
