package handler

import (
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/nfsuisse/intake/internal/model"
	"github.com/nfsuisse/intake/internal/service"
	"github.com/nfsuisse/intake/internal/storage"
)

const (
	maxUploadMemory = 32 << 20
	maxUploadFiles  = 10
	maxUploadBody   = maxUploadFiles*storage.MaxFileSize + 1<<20
)

type accessRequest struct {
	Reference string `json:"reference"`
	Email     string `json:"email"`
	Code      string `json:"code"`
}

type sendCodeResponse struct {
	Success     bool   `json:"success"`
	MaskedEmail string `json:"maskedEmail"`
	DemoMode    bool   `json:"demoMode,omitempty"`
	Code        string `json:"code,omitempty"`
}

type documentsResponse struct {
	Success   bool             `json:"success"`
	Documents []model.Document `json:"documents"`
}

// Track возвращает состояние заявки после подтверждения доступа.
func (h *Handler) Track(w http.ResponseWriter, r *http.Request) {
	view, err := h.service.Track(r.Context(), chi.URLParam(r, "reference"), r.URL.Query().Get("email"))
	if err != nil {
		h.writeServiceError(w, r, "track request", err)
		return
	}
	h.writeJSON(w, http.StatusOK, view)
}

// SendCode отправляет код подтверждения владельцу заявки.
func (h *Handler) SendCode(w http.ResponseWriter, r *http.Request) {
	var req accessRequest
	if !h.decode(w, r, &req) {
		return
	}

	res, err := h.service.SendCode(r.Context(), req.Reference, req.Email)
	if err != nil {
		h.writeServiceError(w, r, "send verification code", err)
		return
	}

	h.writeJSON(w, http.StatusOK, sendCodeResponse{
		Success:     true,
		MaskedEmail: res.MaskedEmail,
		DemoMode:    res.DemoMode,
		Code:        res.Code,
	})
}

// VerifyCode проверяет код подтверждения.
func (h *Handler) VerifyCode(w http.ResponseWriter, r *http.Request) {
	var req accessRequest
	if !h.decode(w, r, &req) {
		return
	}

	if err := h.service.VerifyCode(r.Context(), req.Reference, req.Email, req.Code); err != nil {
		h.writeServiceError(w, r, "verify code", err)
		return
	}
	h.writeJSON(w, http.StatusOK, successResponse{Success: true})
}

// Upload принимает документы из формы заявки. Подтверждение доступа не требуется:
// форма отправляется сразу после создания заявки.
func (h *Handler) Upload(w http.ResponseWriter, r *http.Request) {
	files, cleanup, ok := h.parseUpload(w, r)
	if !ok {
		return
	}
	defer cleanup()

	docs, err := h.service.UploadDocuments(r.Context(), service.UploadInput{
		Reference: r.FormValue("reference"),
		FirstName: r.FormValue("firstName"),
		LastName:  r.FormValue("lastName"),
		Files:     files,
	})
	if err != nil {
		h.writeServiceError(w, r, "upload documents", err)
		return
	}
	h.writeJSON(w, http.StatusOK, documentsResponse{Success: true, Documents: docs})
}

// UploadRequestDocuments добавляет документы к заявке из личного кабинета клиента.
func (h *Handler) UploadRequestDocuments(w http.ResponseWriter, r *http.Request) {
	files, cleanup, ok := h.parseUpload(w, r)
	if !ok {
		return
	}
	defer cleanup()

	docs, err := h.service.UploadDocuments(r.Context(), service.UploadInput{
		Reference:     chi.URLParam(r, "reference"),
		Email:         r.FormValue("email"),
		RequireAccess: true,
		Files:         files,
	})
	if err != nil {
		h.writeServiceError(w, r, "upload request documents", err)
		return
	}
	h.writeJSON(w, http.StatusOK, documentsResponse{Success: true, Documents: docs})
}

// ListRequestDocuments возвращает документы заявки.
func (h *Handler) ListRequestDocuments(w http.ResponseWriter, r *http.Request) {
	docs, err := h.service.ListDocuments(r.Context(), chi.URLParam(r, "reference"), r.URL.Query().Get("email"))
	if err != nil {
		h.writeServiceError(w, r, "list request documents", err)
		return
	}
	h.writeJSON(w, http.StatusOK, documentsResponse{Success: true, Documents: docs})
}

// parseUpload разбирает multipart-форму и открывает переданные файлы. Возвращаемая
// функция закрывает файлы и удаляет временные данные формы.
func (h *Handler) parseUpload(w http.ResponseWriter, r *http.Request) ([]storage.File, func(), bool) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBody)
	if err := r.ParseMultipartForm(maxUploadMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.writeError(w, http.StatusBadRequest, msgUploadTooLarge)
			return nil, nil, false
		}
		h.writeError(w, http.StatusBadRequest, msgInvalidBody)
		return nil, nil, false
	}

	headers := append(r.MultipartForm.File["files"], r.MultipartForm.File["file"]...)
	if len(headers) > maxUploadFiles {
		_ = r.MultipartForm.RemoveAll()
		h.writeError(w, http.StatusBadRequest, msgUploadTooLarge)
		return nil, nil, false
	}

	var (
		files   []storage.File
		closers []io.Closer
	)
	cleanup := func() {
		for _, c := range closers {
			_ = c.Close()
		}
		if err := r.MultipartForm.RemoveAll(); err != nil {
			h.logger.Warn("remove multipart files error", zap.Error(err))
		}
	}

	for _, fh := range headers {
		f, err := fh.Open()
		if err != nil {
			cleanup()
			h.writeError(w, http.StatusBadRequest, msgInvalidBody)
			return nil, nil, false
		}
		closers = append(closers, f)
		files = append(files, storage.File{
			Name:        fileName(fh),
			ContentType: fh.Header.Get("Content-Type"),
			Size:        fh.Size,
			Content:     f,
		})
	}

	return files, cleanup, true
}

func fileName(fh *multipart.FileHeader) string {
	name := strings.TrimSpace(fh.Filename)
	if name == "" {
		return "document"
	}
	return name
}
