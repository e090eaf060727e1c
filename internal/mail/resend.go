package mail

import (
	"context"
	"fmt"

	"github.com/resend/resend-go/v2"
	"go.uber.org/zap"
)

// ResendMailer отправляет письма через Resend API.
type ResendMailer struct {
	client *resend.Client
	from   string
	logger *zap.Logger
}

// NewResendMailer создаёт отправителя с ключом API и адресом отправителя.
func NewResendMailer(apiKey, from string, logger *zap.Logger) *ResendMailer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ResendMailer{
		client: resend.NewClient(apiKey),
		from:   from,
		logger: logger,
	}
}

// Live всегда возвращает true.
func (m *ResendMailer) Live() bool {
	return true
}

// Send отправляет письмо. Повторные попытки не выполняются.
func (m *ResendMailer) Send(ctx context.Context, msg Message) error {
	if len(msg.To) == 0 {
		return ErrNoRecipients
	}

	resp, err := m.client.Emails.SendWithContext(ctx, &resend.SendEmailRequest{
		From:    m.from,
		To:      msg.To,
		ReplyTo: msg.ReplyTo,
		Subject: msg.Subject,
		Html:    msg.HTML,
		Text:    msg.Text,
	})
	if err != nil {
		return fmt.Errorf("resend send email: %w", err)
	}

	m.logger.Info("email sent",
		zap.String("id", resp.Id),
		zap.String("to", MaskEmail(msg.To[0])),
		zap.String("subject", msg.Subject),
	)
	return nil
}
