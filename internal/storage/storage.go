// Package storage отвечает за проверку и размещение документов клиентов на файловом хостинге.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/nfsuisse/intake/internal/model"
)

// MaxFileSize - максимальный размер одного файла.
const MaxFileSize = 10 << 20

var (
	// ErrFileTooLarge возвращается, если файл больше MaxFileSize.
	ErrFileTooLarge = errors.New("file exceeds maximum size")
	// ErrUnsupportedType возвращается для типов файлов вне списка разрешённых.
	ErrUnsupportedType = errors.New("unsupported file type")
	// ErrEmptyFile возвращается для пустого файла.
	ErrEmptyFile = errors.New("empty file")
)

var allowedTypes = map[string]struct{}{
	"application/pdf":    {},
	"image/jpeg":         {},
	"image/png":          {},
	"image/webp":         {},
	"application/msword": {},
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document": {},
	"application/vnd.ms-excel": {},
	"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet": {},
}

// File - загружаемый файл вместе с метаданными из multipart-формы.
type File struct {
	Name        string
	ContentType string
	Size        int64
	Content     io.Reader
}

// Validate проверяет размер и тип файла до обращения к хостингу.
func Validate(f File) error {
	if f.Size <= 0 {
		return fmt.Errorf("%w: %s", ErrEmptyFile, f.Name)
	}
	if f.Size > MaxFileSize {
		return fmt.Errorf("%w: %s (%d bytes)", ErrFileTooLarge, f.Name, f.Size)
	}
	if !AllowedType(f.ContentType) {
		return fmt.Errorf("%w: %s (%s)", ErrUnsupportedType, f.Name, f.ContentType)
	}
	return nil
}

// AllowedType сообщает, разрешён ли MIME-тип. Параметры типа игнорируются.
func AllowedType(contentType string) bool {
	ct := strings.ToLower(strings.TrimSpace(contentType))
	if i := strings.IndexByte(ct, ';'); i >= 0 {
		ct = strings.TrimSpace(ct[:i])
	}
	_, ok := allowedTypes[ct]
	return ok
}

// FileHost размещает файлы во внешнем хранилище.
type FileHost interface {
	Upload(ctx context.Context, folder string, f File) (model.Document, error)
	// Live сообщает, подключён ли настоящий хостинг.
	Live() bool
}
