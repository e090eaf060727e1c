package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/nfsuisse/intake/internal/model"
	"github.com/nfsuisse/intake/internal/storage"
)

// UploadInput - файлы, загружаемые к заявке.
type UploadInput struct {
	Reference string
	FirstName string
	LastName  string
	// Email обязателен при RequireAccess: загрузка из личного кабинета клиента.
	Email         string
	RequireAccess bool
	Files         []storage.File
}

func fileError(err error, f storage.File) error {
	switch {
	case errors.Is(err, storage.ErrFileTooLarge):
		return invalid(fmt.Sprintf("Le fichier %s dépasse la taille maximale de 10 Mo", f.Name), err)
	case errors.Is(err, storage.ErrUnsupportedType):
		return invalid(fmt.Sprintf("Type de fichier non autorisé : %s", f.Name), err)
	default:
		return invalid(fmt.Sprintf("Fichier invalide : %s", f.Name), err)
	}
}

// UploadDocuments проверяет все файлы, размещает их на хостинге в папке заявки и
// добавляет метаданные к заявке. Ни один файл не отправляется, пока не проверены все.
func (s *Service) UploadDocuments(ctx context.Context, in UploadInput) ([]model.Document, error) {
	if strings.TrimSpace(in.Reference) == "" {
		return nil, invalid("Référence requise", nil)
	}
	if len(in.Files) == 0 {
		return nil, invalid("Aucun fichier fourni", nil)
	}
	for _, f := range in.Files {
		if err := storage.Validate(f); err != nil {
			return nil, fileError(err, f)
		}
	}

	var (
		rec record
		err error
	)
	if in.RequireAccess {
		rec, err = s.authorize(ctx, in.Reference, in.Email)
	} else {
		rec, err = s.findRecord(ctx, in.Reference)
	}
	if err != nil {
		return nil, err
	}

	contact := rec.contact()
	first, last := strings.TrimSpace(in.FirstName), strings.TrimSpace(in.LastName)
	if first == "" && last == "" {
		first, last = contact.FirstName, contact.LastName
	}
	folder := storage.FolderPath(rec.reference(), first, last, s.now())

	docs := make([]model.Document, 0, len(in.Files))
	for _, f := range in.Files {
		doc, err := s.files.Upload(ctx, folder, f)
		if err != nil {
			return nil, fmt.Errorf("upload %s: %w", f.Name, err)
		}
		docs = append(docs, doc)
	}

	if rec.service != nil {
		err = s.repo.AddServiceRequestDocuments(ctx, rec.reference(), docs)
	} else {
		err = s.repo.AddTaxRequestDocuments(ctx, rec.reference(), docs)
	}
	if err != nil {
		return nil, fmt.Errorf("attach documents: %w", err)
	}

	s.logger.Info("documents uploaded",
		zap.String("reference", rec.reference()),
		zap.Int("count", len(docs)),
		zap.Bool("simulated", !s.files.Live()),
	)
	return docs, nil
}

// ListDocuments возвращает документы заявки после подтверждения доступа.
func (s *Service) ListDocuments(ctx context.Context, ref, email string) ([]model.Document, error) {
	rec, err := s.authorize(ctx, ref, email)
	if err != nil {
		return nil, err
	}
	return rec.documents(), nil
}
