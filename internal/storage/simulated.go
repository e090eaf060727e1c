package storage

import (
	"context"
	"path"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/nfsuisse/intake/internal/model"
)

// SimulatedHost используется, когда хостинг не настроен: файл не сохраняется,
// возвращаются только метаданные с пометкой Simulated.
type SimulatedHost struct {
	logger *zap.Logger
	now    func() time.Time
}

// NewSimulatedHost создаёт демонстрационный хостинг.
func NewSimulatedHost(logger *zap.Logger) *SimulatedHost {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SimulatedHost{logger: logger, now: time.Now}
}

// WithClock подменяет источник времени, используется в тестах.
func (h *SimulatedHost) WithClock(now func() time.Time) *SimulatedHost {
	if now != nil {
		h.now = now
	}
	return h
}

// Live всегда возвращает false.
func (h *SimulatedHost) Live() bool {
	return false
}

// Upload возвращает метаданные файла без обращения к внешнему сервису.
func (h *SimulatedHost) Upload(_ context.Context, folder string, f File) (model.Document, error) {
	id := uuid.NewString()

	h.logger.Info("simulated document upload", zap.String("folder", folder), zap.String("name", f.Name))

	return model.Document{
		ID:          id,
		Name:        f.Name,
		ContentType: f.ContentType,
		Size:        f.Size,
		PublicID:    path.Join(folder, publicID(f.Name, id)),
		Simulated:   true,
		UploadedAt:  h.now().UTC(),
	}, nil
}
