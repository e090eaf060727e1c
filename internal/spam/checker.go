package spam

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// BlockedReference - номер, возвращаемый вместо настоящего при блокировке отправки.
const BlockedReference = "SPAM-BLOCKED"

// Submission содержит метаданные отправленной формы.
type Submission struct {
	IP           string
	Honeypot     string
	FormLoadedAt time.Time
}

// Verdict - итог проверки отправки.
type Verdict struct {
	IsSpam bool
	Reason string
}

// Checker объединяет проверки скрытого поля, частоты запросов и времени заполнения.
type Checker struct {
	limiter *RateLimiter
	blocked *prometheus.CounterVec
	now     func() time.Time
}

// NewChecker создаёт проверку и регистрирует счётчик заблокированных отправок.
func NewChecker(limiter *RateLimiter, reg prometheus.Registerer) (*Checker, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	blocked := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "intake",
		Subsystem: "spam",
		Name:      "blocked_total",
		Help:      "Number of form submissions blocked by the spam filter, partitioned by reason.",
	}, []string{"reason"})

	if err := reg.Register(blocked); err != nil {
		already, ok := err.(prometheus.AlreadyRegisteredError)
		if !ok {
			return nil, fmt.Errorf("register spam collector: %w", err)
		}
		existing, ok := already.ExistingCollector.(*prometheus.CounterVec)
		if !ok {
			return nil, fmt.Errorf("existing spam collector has unexpected type %T", already.ExistingCollector)
		}
		blocked = existing
	}

	return &Checker{
		limiter: limiter,
		blocked: blocked,
		now:     time.Now,
	}, nil
}

// WithClock подменяет источник времени, используется в тестах.
func (c *Checker) WithClock(now func() time.Time) *Checker {
	if now != nil {
		c.now = now
	}
	return c
}

// Check выполняет проверки в порядке: скрытое поле, частота запросов, время заполнения.
// Возвращается первая сработавшая причина.
func (c *Checker) Check(ctx context.Context, sub Submission) Verdict {
	v := c.evaluate(ctx, sub)
	if v.IsSpam {
		c.blocked.WithLabelValues(v.Reason).Inc()
	}
	return v
}

func (c *Checker) evaluate(ctx context.Context, sub Submission) Verdict {
	if CheckHoneypot(sub.Honeypot) {
		return Verdict{IsSpam: true, Reason: ReasonHoneypot}
	}

	if c.limiter != nil {
		if res := c.limiter.Check(ctx, sub.IP); res.Limited {
			return Verdict{IsSpam: true, Reason: res.Reason}
		}
	}

	if spam, reason := CheckTimestamp(sub.FormLoadedAt, c.now()); spam {
		return Verdict{IsSpam: true, Reason: reason}
	}

	return Verdict{}
}

// Sweep удаляет истёкшие окна ограничителя частоты.
func (c *Checker) Sweep(ctx context.Context) (int, error) {
	if c.limiter == nil {
		return 0, nil
	}
	return c.limiter.Sweep(ctx)
}
