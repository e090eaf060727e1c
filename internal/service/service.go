// Package service реализует бизнес-логику сервиса приёма заявок.
package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/nfsuisse/intake/internal/mail"
	"github.com/nfsuisse/intake/internal/model"
	"github.com/nfsuisse/intake/internal/payment"
	"github.com/nfsuisse/intake/internal/spam"
	"github.com/nfsuisse/intake/internal/storage"
)

var (
	// ErrSpamBlocked возвращается, если отправка формы признана спамом.
	// Клиенту отвечают успехом с номером spam.BlockedReference.
	ErrSpamBlocked = errors.New("submission blocked by spam filter")
	// ErrAccessDenied возвращается, если доступ к заявке не подтверждён кодом.
	ErrAccessDenied = errors.New("access not verified")
	// ErrValidation совпадает с любой ValidationError через errors.Is.
	ErrValidation = errors.New("validation failed")
)

// ValidationError содержит сообщение для клиента о некорректных входных данных.
type ValidationError struct {
	Message string
	Err     error
}

func (e *ValidationError) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// Is позволяет сопоставлять ошибку с ErrValidation.
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

func invalid(message string, err error) error {
	return &ValidationError{Message: message, Err: err}
}

// Repository описывает контракт доступа к данным, используемый сервисом.
type Repository interface {
	Close() error

	CreateTaxRequest(ctx context.Context, req *model.TaxRequest) error
	FindTaxRequest(ctx context.Context, ref string) (*model.TaxRequest, error)
	ListTaxRequests(ctx context.Context) ([]model.TaxRequest, error)
	UpdateTaxRequestStatus(ctx context.Context, ref string, status model.TaxStatus, paidAt *time.Time) (*model.TaxRequest, error)
	AttachTaxRequestPayment(ctx context.Context, ref, paymentID string) error
	AddTaxRequestDocuments(ctx context.Context, ref string, docs []model.Document) error
	TaxRequestStats(ctx context.Context) (model.TaxRequestStats, error)

	CreateServiceRequest(ctx context.Context, req *model.ServiceRequest) error
	FindServiceRequest(ctx context.Context, ref string) (*model.ServiceRequest, error)
	ListServiceRequests(ctx context.Context) ([]model.ServiceRequest, error)
	UpdateServiceRequestStatus(ctx context.Context, ref string, status model.RequestStatus) (*model.ServiceRequest, error)
	AddServiceRequestDocuments(ctx context.Context, ref string, docs []model.Document) error
	ServiceRequestStats(ctx context.Context) (model.RequestStats, error)

	CreateExtensionRequest(ctx context.Context, req *model.ExtensionRequest) error
	ListExtensionRequests(ctx context.Context) ([]model.ExtensionRequest, error)
}

// SpamChecker проверяет отправки форм.
type SpamChecker interface {
	Check(ctx context.Context, sub spam.Submission) spam.Verdict
	Sweep(ctx context.Context) (int, error)
}

// Verifier выдаёт и проверяет коды подтверждения доступа.
type Verifier interface {
	Issue(ctx context.Context, reference, email string) (string, error)
	Verify(ctx context.Context, reference, email, code string) error
	IsAuthorized(ctx context.Context, reference, email string) bool
	Sweep(ctx context.Context) (int, error)
}

// Deps содержит зависимости сервиса, выбранные при запуске.
type Deps struct {
	Repo     Repository
	Spam     SpamChecker
	Verifier Verifier
	Payments payment.Provider
	Files    storage.FileHost
	Mailer   mail.Mailer
	Logger   *zap.Logger

	// OfficeEmail получает уведомления о новых заявках и сообщениях.
	OfficeEmail string
	// PublicBaseURL используется в ссылках писем и адресах возврата после оплаты.
	PublicBaseURL string
}

// Service содержит бизнес-логику сервиса приёма заявок.
type Service struct {
	repo     Repository
	spam     SpamChecker
	verifier Verifier
	payments payment.Provider
	files    storage.FileHost
	mailer   mail.Mailer
	logger   *zap.Logger

	officeEmail string
	baseURL     string
	now         func() time.Time
}

// NewService создаёт сервис с указанными зависимостями.
func NewService(d Deps) *Service {
	logger := d.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Service{
		repo:        d.Repo,
		spam:        d.Spam,
		verifier:    d.Verifier,
		payments:    d.Payments,
		files:       d.Files,
		mailer:      d.Mailer,
		logger:      logger,
		officeEmail: strings.TrimSpace(d.OfficeEmail),
		baseURL:     strings.TrimRight(d.PublicBaseURL, "/"),
		now:         time.Now,
	}
}

// WithClock подменяет источник времени, используется в тестах.
func (s *Service) WithClock(now func() time.Time) *Service {
	if now != nil {
		s.now = now
	}
	return s
}

// Close закрывает ресурсы сервиса.
func (s *Service) Close() error {
	if s.repo != nil {
		return s.repo.Close()
	}
	return nil
}

// checkSpam возвращает ErrSpamBlocked, если отправка признана спамом.
func (s *Service) checkSpam(ctx context.Context, sub spam.Submission) error {
	if s.spam == nil {
		return nil
	}
	if v := s.spam.Check(ctx, sub); v.IsSpam {
		s.logger.Info("submission blocked", zap.String("reason", v.Reason), zap.String("ip", sub.IP))
		return ErrSpamBlocked
	}
	return nil
}

// StartCleanup запускает фоновую очистку истёкших окон ограничителя частоты и кодов подтверждения.
func (s *Service) StartCleanup(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.cleanup(ctx)
			}
		}
	}()
}

func (s *Service) cleanup(ctx context.Context) {
	if s.spam != nil {
		if n, err := s.spam.Sweep(ctx); err != nil {
			s.logger.Warn("rate limit sweep error", zap.Error(err))
		} else if n > 0 {
			s.logger.Debug("rate limit windows removed", zap.Int("count", n))
		}
	}

	if s.verifier != nil {
		if n, err := s.verifier.Sweep(ctx); err != nil {
			s.logger.Warn("verification sweep error", zap.Error(err))
		} else if n > 0 {
			s.logger.Debug("verification codes removed", zap.Int("count", n))
		}
	}
}

// notify отправляет письмо, не прерывая операцию при ошибке.
func (s *Service) notify(ctx context.Context, msg mail.Message, render error) {
	if render != nil {
		s.logger.Error("render email error", zap.Error(render))
		return
	}
	if s.mailer == nil || len(msg.To) == 0 || msg.To[0] == "" {
		return
	}
	if err := s.mailer.Send(ctx, msg); err != nil {
		s.logger.Error("send notification error",
			zap.Error(err),
			zap.String("to", mail.MaskEmail(msg.To[0])),
			zap.String("subject", msg.Subject),
		)
	}
}

func (s *Service) trackingURL(reference string) string {
	if s.baseURL == "" {
		return ""
	}
	return s.baseURL + "/suivi?reference=" + reference
}
