package mail

import (
	"context"

	"go.uber.org/zap"
)

// LogMailer пишет письма в лог вместо отправки. Используется, когда ключ Resend не задан.
type LogMailer struct {
	logger *zap.Logger
}

// NewLogMailer создаёт демонстрационного отправителя.
func NewLogMailer(logger *zap.Logger) *LogMailer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogMailer{logger: logger}
}

// Live всегда возвращает false.
func (m *LogMailer) Live() bool {
	return false
}

// Send записывает замаскированных получателей и тему письма в лог.
func (m *LogMailer) Send(_ context.Context, msg Message) error {
	if len(msg.To) == 0 {
		return ErrNoRecipients
	}

	masked := make([]string, 0, len(msg.To))
	for _, to := range msg.To {
		masked = append(masked, MaskEmail(to))
	}

	m.logger.Info("email not sent, mailer in demo mode",
		zap.Strings("to", masked),
		zap.String("subject", msg.Subject),
	)
	return nil
}
