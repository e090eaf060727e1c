package storage

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/cloudinary/cloudinary-go/v2"
	"github.com/cloudinary/cloudinary-go/v2/api/uploader"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/nfsuisse/intake/internal/model"
)

// CloudinaryHost загружает документы в Cloudinary.
type CloudinaryHost struct {
	cld    *cloudinary.Cloudinary
	logger *zap.Logger
	now    func() time.Time
}

// NewCloudinaryHost создаёт клиента Cloudinary по имени облака и паре ключей.
func NewCloudinaryHost(cloudName, apiKey, apiSecret string, logger *zap.Logger) (*CloudinaryHost, error) {
	cld, err := cloudinary.NewFromParams(cloudName, apiKey, apiSecret)
	if err != nil {
		return nil, fmt.Errorf("create cloudinary client: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CloudinaryHost{cld: cld, logger: logger, now: time.Now}, nil
}

// Live всегда возвращает true.
func (h *CloudinaryHost) Live() bool {
	return true
}

// Upload загружает файл в указанную папку.
func (h *CloudinaryHost) Upload(ctx context.Context, folder string, f File) (model.Document, error) {
	id := uuid.NewString()

	resp, err := h.cld.Upload.Upload(ctx, f.Content, uploader.UploadParams{
		Folder:       folder,
		PublicID:     publicID(f.Name, id),
		ResourceType: "auto",
	})
	if err != nil {
		return model.Document{}, fmt.Errorf("cloudinary upload %s: %w", f.Name, err)
	}
	if resp.Error.Message != "" {
		return model.Document{}, fmt.Errorf("cloudinary upload %s: %w", f.Name, errors.New(resp.Error.Message))
	}

	h.logger.Info("document uploaded",
		zap.String("folder", folder),
		zap.String("publicId", resp.PublicID),
		zap.Int64("size", f.Size),
	)

	return model.Document{
		ID:          id,
		Name:        f.Name,
		ContentType: f.ContentType,
		Size:        f.Size,
		URL:         resp.SecureURL,
		PublicID:    resp.PublicID,
		UploadedAt:  h.now().UTC(),
	}, nil
}

// publicID строит идентификатор файла из имени без расширения и короткого суффикса.
func publicID(name, id string) string {
	base := strings.TrimSuffix(path.Base(name), path.Ext(name))
	base = Sanitize(base)
	if base == "" {
		base = "document"
	}
	return base + "_" + id[:8]
}
