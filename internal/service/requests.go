package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/nfsuisse/intake/internal/mail"
	"github.com/nfsuisse/intake/internal/model"
	"github.com/nfsuisse/intake/internal/repository"
	"github.com/nfsuisse/intake/internal/spam"
	"github.com/nfsuisse/intake/internal/validation"
)

const (
	maxReferenceAttempts = 5

	minTaxYear = 2000
	maxTaxYear = 2100
)

// TaxRequestInput - данные формы налоговой декларации.
type TaxRequestInput struct {
	Contact model.Contact
	Details model.TaxDetails
	Spam    spam.Submission
}

// ServiceRequestInput - данные формы бухгалтерского обслуживания или управления недвижимостью.
type ServiceRequestInput struct {
	Type    model.ServiceType
	Contact model.Contact
	Details map[string]string
	Message string
	Spam    spam.Submission
}

// ExtensionRequestInput - данные формы продления срока подачи декларации.
type ExtensionRequestInput struct {
	Contact model.Contact
	TaxYear int
	Reason  string
	Spam    spam.Submission
}

// ContactInput - данные формы обратной связи.
type ContactInput struct {
	Form mail.ContactForm
	Spam spam.Submission
}

func normalizeContact(c model.Contact) model.Contact {
	c.FirstName = strings.TrimSpace(c.FirstName)
	c.LastName = strings.TrimSpace(c.LastName)
	c.Email = validation.NormalizeEmail(c.Email)
	c.Phone = strings.TrimSpace(c.Phone)
	c.Address = strings.TrimSpace(c.Address)
	c.PostalCode = strings.TrimSpace(c.PostalCode)
	c.City = strings.TrimSpace(c.City)
	c.Canton = strings.TrimSpace(c.Canton)
	return c
}

func validateContact(c model.Contact) error {
	if c.FirstName == "" || c.LastName == "" || c.Email == "" {
		return invalid("Prénom, nom et email sont requis", nil)
	}
	if !validation.IsValidEmail(c.Email) {
		return invalid("Adresse email invalide", nil)
	}
	return nil
}

func validateTaxYear(year int) error {
	if year < minTaxYear || year > maxTaxYear {
		return invalid("Année fiscale invalide", fmt.Errorf("tax year %d", year))
	}
	return nil
}

// withReference вызывает create с новым номером и повторяет попытку при коллизии.
func withReference(create func(ref string) error) (string, error) {
	for i := 0; i < maxReferenceAttempts; i++ {
		ref, err := validation.NewReference()
		if err != nil {
			return "", err
		}

		err = create(ref)
		if err == nil {
			return ref, nil
		}
		if !errors.Is(err, repository.ErrReferenceExists) {
			return "", err
		}
	}
	return "", fmt.Errorf("generate unique reference: %w", repository.ErrReferenceExists)
}

// CreateTaxRequest проверяет форму на спам и сохраняет новую налоговую заявку.
func (s *Service) CreateTaxRequest(ctx context.Context, in TaxRequestInput) (*model.TaxRequest, error) {
	if err := s.checkSpam(ctx, in.Spam); err != nil {
		return nil, err
	}

	contact := normalizeContact(in.Contact)
	if err := validateContact(contact); err != nil {
		return nil, err
	}
	if err := validateTaxYear(in.Details.TaxYear); err != nil {
		return nil, err
	}
	if in.Details.Children < 0 || in.Details.PriceCents < 0 {
		return nil, invalid("Données de la déclaration invalides", nil)
	}

	var req *model.TaxRequest
	_, err := withReference(func(ref string) error {
		req = &model.TaxRequest{
			Reference: ref,
			Status:    model.TaxStatusPending,
			Contact:   contact,
			Details:   in.Details,
		}
		return s.repo.CreateTaxRequest(ctx, req)
	})
	if err != nil {
		return nil, fmt.Errorf("create tax request: %w", err)
	}

	s.logger.Info("tax request created", zap.String("reference", req.Reference), zap.Int("taxYear", req.Details.TaxYear))

	msg, err := mail.ConfirmationEmail(contact.Email, contact.FullName(), "Déclaration d'impôts", req.Reference, s.trackingURL(req.Reference))
	s.notify(ctx, msg, err)
	s.notifyOffice(ctx, "Nouvelle déclaration d'impôts "+req.Reference, contact, fmt.Sprintf("Année fiscale %d, forfait %s", req.Details.TaxYear, req.Details.Package))

	return req, nil
}

// CreateServiceRequest проверяет форму на спам и сохраняет общую заявку.
func (s *Service) CreateServiceRequest(ctx context.Context, in ServiceRequestInput) (*model.ServiceRequest, error) {
	if err := s.checkSpam(ctx, in.Spam); err != nil {
		return nil, err
	}

	if !in.Type.Valid() {
		return nil, invalid("Type de service invalide", fmt.Errorf("service type %q", in.Type))
	}
	contact := normalizeContact(in.Contact)
	if err := validateContact(contact); err != nil {
		return nil, err
	}

	var req *model.ServiceRequest
	_, err := withReference(func(ref string) error {
		req = &model.ServiceRequest{
			Reference: ref,
			Type:      in.Type,
			Status:    model.RequestStatusReceived,
			Contact:   contact,
			Details:   in.Details,
			Message:   strings.TrimSpace(in.Message),
		}
		return s.repo.CreateServiceRequest(ctx, req)
	})
	if err != nil {
		return nil, fmt.Errorf("create service request: %w", err)
	}

	s.logger.Info("service request created", zap.String("reference", req.Reference), zap.String("type", string(req.Type)))

	subject := serviceTitle(req.Type)
	msg, err := mail.ConfirmationEmail(contact.Email, contact.FullName(), subject, req.Reference, s.trackingURL(req.Reference))
	s.notify(ctx, msg, err)
	s.notifyOffice(ctx, "Nouvelle demande "+subject+" "+req.Reference, contact, req.Message)

	return req, nil
}

// CreateExtensionRequest сохраняет заявку на продление срока подачи декларации.
func (s *Service) CreateExtensionRequest(ctx context.Context, in ExtensionRequestInput) (*model.ExtensionRequest, error) {
	if err := s.checkSpam(ctx, in.Spam); err != nil {
		return nil, err
	}

	contact := normalizeContact(in.Contact)
	if err := validateContact(contact); err != nil {
		return nil, err
	}
	if err := validateTaxYear(in.TaxYear); err != nil {
		return nil, err
	}

	var req *model.ExtensionRequest
	_, err := withReference(func(ref string) error {
		req = &model.ExtensionRequest{
			Reference: ref,
			Status:    model.RequestStatusReceived,
			Contact:   contact,
			TaxYear:   in.TaxYear,
			Reason:    strings.TrimSpace(in.Reason),
		}
		return s.repo.CreateExtensionRequest(ctx, req)
	})
	if err != nil {
		return nil, fmt.Errorf("create extension request: %w", err)
	}

	s.logger.Info("extension request created", zap.String("reference", req.Reference), zap.Int("taxYear", req.TaxYear))
	s.notifyOffice(ctx, "Demande de prolongation "+req.Reference, contact, fmt.Sprintf("Année fiscale %d. %s", req.TaxYear, req.Reason))

	return req, nil
}

// ListTaxRequests возвращает все налоговые заявки и статистику по статусам.
func (s *Service) ListTaxRequests(ctx context.Context) ([]model.TaxRequest, model.TaxRequestStats, error) {
	list, err := s.repo.ListTaxRequests(ctx)
	if err != nil {
		return nil, model.TaxRequestStats{}, fmt.Errorf("list tax requests: %w", err)
	}
	stats, err := s.repo.TaxRequestStats(ctx)
	if err != nil {
		return nil, model.TaxRequestStats{}, fmt.Errorf("tax request stats: %w", err)
	}
	return list, stats, nil
}

// ListServiceRequests возвращает все общие заявки и статистику по статусам.
func (s *Service) ListServiceRequests(ctx context.Context) ([]model.ServiceRequest, model.RequestStats, error) {
	list, err := s.repo.ListServiceRequests(ctx)
	if err != nil {
		return nil, model.RequestStats{}, fmt.Errorf("list service requests: %w", err)
	}
	stats, err := s.repo.ServiceRequestStats(ctx)
	if err != nil {
		return nil, model.RequestStats{}, fmt.Errorf("service request stats: %w", err)
	}
	return list, stats, nil
}

// ListExtensionRequests возвращает все заявки на продление.
func (s *Service) ListExtensionRequests(ctx context.Context) ([]model.ExtensionRequest, error) {
	list, err := s.repo.ListExtensionRequests(ctx)
	if err != nil {
		return nil, fmt.Errorf("list extension requests: %w", err)
	}
	return list, nil
}

// UpdateTaxRequestStatus переводит налоговую заявку в новый статус. Переход в paid
// фиксирует время оплаты.
func (s *Service) UpdateTaxRequestStatus(ctx context.Context, ref, status string) (*model.TaxRequest, error) {
	next, err := model.ParseTaxStatus(strings.TrimSpace(status))
	if err != nil {
		return nil, invalid("Statut inconnu", err)
	}

	var paidAt *time.Time
	if next == model.TaxStatusPaid {
		at := s.now().UTC()
		paidAt = &at
	}

	req, err := s.repo.UpdateTaxRequestStatus(ctx, ref, next, paidAt)
	if err != nil {
		if errors.Is(err, model.ErrInvalidTransition) {
			return nil, invalid("Changement de statut non autorisé", err)
		}
		return nil, err
	}

	s.logger.Info("tax request status updated", zap.String("reference", req.Reference), zap.String("status", string(req.Status)))
	return req, nil
}

// UpdateServiceRequestStatus переводит общую заявку в новый статус.
func (s *Service) UpdateServiceRequestStatus(ctx context.Context, ref, status string) (*model.ServiceRequest, error) {
	next, err := model.ParseRequestStatus(strings.TrimSpace(status))
	if err != nil {
		return nil, invalid("Statut inconnu", err)
	}

	req, err := s.repo.UpdateServiceRequestStatus(ctx, ref, next)
	if err != nil {
		if errors.Is(err, model.ErrInvalidTransition) {
			return nil, invalid("Changement de statut non autorisé", err)
		}
		return nil, err
	}

	s.logger.Info("service request status updated", zap.String("reference", req.Reference), zap.String("status", string(req.Status)))
	return req, nil
}

// SubmitContact проверяет форму обратной связи и пересылает сообщение в офис.
func (s *Service) SubmitContact(ctx context.Context, in ContactInput) error {
	if err := s.checkSpam(ctx, in.Spam); err != nil {
		return err
	}

	f := in.Form
	f.FirstName = strings.TrimSpace(f.FirstName)
	f.LastName = strings.TrimSpace(f.LastName)
	f.Email = validation.NormalizeEmail(f.Email)
	f.Message = strings.TrimSpace(f.Message)

	if f.FirstName == "" || f.LastName == "" || f.Email == "" || f.Message == "" {
		return invalid("Prénom, nom, email et message sont requis", nil)
	}
	if !validation.IsValidEmail(f.Email) {
		return invalid("Adresse email invalide", nil)
	}

	if s.officeEmail == "" {
		s.logger.Warn("contact message dropped, office email not configured", zap.String("from", mail.MaskEmail(f.Email)))
		return nil
	}

	msg, err := mail.ContactEmail(s.officeEmail, f)
	if err != nil {
		return err
	}
	if err := s.mailer.Send(ctx, msg); err != nil {
		return fmt.Errorf("send contact email: %w", err)
	}

	s.logger.Info("contact message sent", zap.String("from", mail.MaskEmail(f.Email)))
	return nil
}

func (s *Service) notifyOffice(ctx context.Context, subject string, c model.Contact, body string) {
	if s.officeEmail == "" {
		return
	}
	msg, err := mail.ContactEmail(s.officeEmail, mail.ContactForm{
		FirstName: c.FirstName,
		LastName:  c.LastName,
		Email:     c.Email,
		Phone:     c.Phone,
		Canton:    c.Canton,
		Service:   subject,
		Message:   body,
	})
	msg.Subject = subject
	s.notify(ctx, msg, err)
}

func serviceTitle(t model.ServiceType) string {
	switch t {
	case model.ServiceTypeAccounting:
		return "Comptabilité"
	case model.ServiceTypePropertyManagement:
		return "Gérance immobilière"
	default:
		return string(t)
	}
}
