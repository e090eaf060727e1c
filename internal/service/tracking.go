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
	"github.com/nfsuisse/intake/internal/validation"
	"github.com/nfsuisse/intake/internal/verification"
)

const (
	kindTax     = "tax"
	codeMinutes = int(verification.CodeTTL / time.Minute)
)

// SendCodeResult - результат отправки кода подтверждения.
type SendCodeResult struct {
	MaskedEmail string
	DemoMode    bool
	// Code заполняется только в демо-режиме, когда письма не отправляются.
	Code string
}

// record - найденная заявка любого вида.
type record struct {
	tax     *model.TaxRequest
	service *model.ServiceRequest
}

func (r record) reference() string {
	if r.service != nil {
		return r.service.Reference
	}
	return r.tax.Reference
}

func (r record) contact() model.Contact {
	if r.service != nil {
		return r.service.Contact
	}
	return r.tax.Contact
}

func (r record) documents() []model.Document {
	var docs []model.Document
	if r.service != nil {
		docs = r.service.Documents
	} else {
		docs = r.tax.Documents
	}
	if docs == nil {
		docs = []model.Document{}
	}
	return docs
}

func (r record) view() *model.TrackingView {
	if r.service != nil {
		s := r.service
		return &model.TrackingView{
			Reference:    s.Reference,
			Kind:         string(s.Type),
			Status:       string(s.Status),
			StatusLabel:  s.Status.Label(),
			CustomerName: s.Contact.FullName(),
			Documents:    r.documents(),
			CreatedAt:    s.CreatedAt,
			UpdatedAt:    s.UpdatedAt,
		}
	}

	t := r.tax
	return &model.TrackingView{
		Reference:    t.Reference,
		Kind:         kindTax,
		Status:       string(t.Status),
		StatusLabel:  t.Status.Label(),
		CustomerName: t.Contact.FullName(),
		Documents:    r.documents(),
		CreatedAt:    t.CreatedAt,
		UpdatedAt:    t.UpdatedAt,
		PaidAt:       t.PaidAt,
	}
}

// findRecord ищет заявку сначала среди общих, затем среди налоговых.
func (s *Service) findRecord(ctx context.Context, ref string) (record, error) {
	svc, err := s.repo.FindServiceRequest(ctx, ref)
	if err == nil {
		return record{service: svc}, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return record{}, fmt.Errorf("find service request: %w", err)
	}

	tax, err := s.repo.FindTaxRequest(ctx, ref)
	if err == nil {
		return record{tax: tax}, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return record{}, fmt.Errorf("find tax request: %w", err)
	}

	return record{}, repository.ErrNotFound
}

// findOwned ищет заявку и проверяет, что она принадлежит указанному email.
func (s *Service) findOwned(ctx context.Context, ref, email string) (record, error) {
	rec, err := s.findRecord(ctx, ref)
	if err != nil {
		return record{}, err
	}
	if validation.NormalizeEmail(rec.contact().Email) != validation.NormalizeEmail(email) {
		return record{}, repository.ErrNotFound
	}
	return rec, nil
}

func validateAccessInput(ref, email string) error {
	if strings.TrimSpace(ref) == "" || strings.TrimSpace(email) == "" {
		return invalid("Référence et email requis", nil)
	}
	if !validation.IsValidEmail(validation.NormalizeEmail(email)) {
		return invalid("Adresse email invalide", nil)
	}
	return nil
}

// authorize проверяет, подтверждён ли доступ к заявке, и возвращает её.
func (s *Service) authorize(ctx context.Context, ref, email string) (record, error) {
	if err := validateAccessInput(ref, email); err != nil {
		return record{}, err
	}

	rec, err := s.findOwned(ctx, ref, email)
	if err != nil {
		return record{}, err
	}

	if !s.verifier.IsAuthorized(ctx, rec.reference(), email) {
		return record{}, ErrAccessDenied
	}
	return rec, nil
}

// Track возвращает представление заявки для страницы отслеживания. Доступ должен быть
// предварительно подтверждён кодом.
func (s *Service) Track(ctx context.Context, ref, email string) (*model.TrackingView, error) {
	rec, err := s.authorize(ctx, ref, email)
	if err != nil {
		return nil, err
	}
	return rec.view(), nil
}

// SendCode выдаёт код подтверждения и отправляет его на email владельца заявки.
// В демо-режиме код возвращается в ответе.
func (s *Service) SendCode(ctx context.Context, ref, email string) (*SendCodeResult, error) {
	if err := validateAccessInput(ref, email); err != nil {
		return nil, err
	}

	rec, err := s.findOwned(ctx, ref, email)
	if err != nil {
		return nil, err
	}

	reference := rec.reference()
	code, err := s.verifier.Issue(ctx, reference, email)
	if err != nil {
		return nil, fmt.Errorf("issue code: %w", err)
	}

	msg, err := mail.CodeEmail(validation.NormalizeEmail(email), reference, code, codeMinutes)
	if err != nil {
		return nil, err
	}
	if err := s.mailer.Send(ctx, msg); err != nil {
		return nil, fmt.Errorf("send code email: %w", err)
	}

	res := &SendCodeResult{MaskedEmail: mail.MaskEmail(validation.NormalizeEmail(email))}
	if !s.mailer.Live() {
		res.DemoMode = true
		res.Code = code
	}

	s.logger.Info("verification code sent", zap.String("reference", reference), zap.String("email", res.MaskedEmail), zap.Bool("demo", res.DemoMode))
	return res, nil
}

// VerifyCode проверяет код подтверждения.
func (s *Service) VerifyCode(ctx context.Context, ref, email, code string) error {
	if err := validateAccessInput(ref, email); err != nil {
		return err
	}

	// Код выдаётся на каноничный номер, поэтому ввод без префикса сначала разрешается в заявку.
	reference := strings.TrimSpace(ref)
	if rec, err := s.findRecord(ctx, ref); err == nil {
		reference = rec.reference()
	} else if !errors.Is(err, repository.ErrNotFound) {
		return err
	}

	err := s.verifier.Verify(ctx, reference, email, code)
	var codeErr *verification.InvalidCodeError
	switch {
	case err == nil:
		s.logger.Info("verification code accepted", zap.String("reference", reference))
		return nil
	case errors.Is(err, verification.ErrMalformedCode):
		return invalid("Le code doit contenir 6 chiffres", err)
	case errors.Is(err, verification.ErrNoCode):
		return invalid("Aucun code envoyé", err)
	case errors.Is(err, verification.ErrExpired):
		return invalid("Code expiré, veuillez en demander un nouveau", err)
	case errors.Is(err, verification.ErrTooManyAttempts):
		return invalid("Trop de tentatives, veuillez demander un nouveau code", err)
	case errors.As(err, &codeErr):
		if codeErr.Remaining == 0 {
			return invalid("Code incorrect. Trop de tentatives, veuillez demander un nouveau code", err)
		}
		return invalid(fmt.Sprintf("Code incorrect. %d tentative(s) restante(s)", codeErr.Remaining), err)
	default:
		return fmt.Errorf("verify code: %w", err)
	}
}
