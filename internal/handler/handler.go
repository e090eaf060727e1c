// Package handler содержит HTTP-обработчики API сервиса приёма заявок.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/nfsuisse/intake/internal/middleware"
	"github.com/nfsuisse/intake/internal/model"
	"github.com/nfsuisse/intake/internal/payment"
	"github.com/nfsuisse/intake/internal/repository"
	"github.com/nfsuisse/intake/internal/service"
	"github.com/nfsuisse/intake/internal/spam"
)

const (
	msgInvalidBody    = "Données invalides"
	msgNotFound       = "Demande introuvable"
	msgAccessDenied   = "Accès non vérifié, veuillez confirmer votre email"
	msgProcessing     = "Erreur lors du traitement de la demande"
	msgWrongPassword  = "Mot de passe incorrect"
	msgUploadTooLarge = "Fichiers trop volumineux"
)

// Service определяет контракт бизнес-логики, используемой HTTP-обработчиками.
type Service interface {
	CreateTaxRequest(ctx context.Context, in service.TaxRequestInput) (*model.TaxRequest, error)
	ListTaxRequests(ctx context.Context) ([]model.TaxRequest, model.TaxRequestStats, error)
	UpdateTaxRequestStatus(ctx context.Context, ref, status string) (*model.TaxRequest, error)

	CreateServiceRequest(ctx context.Context, in service.ServiceRequestInput) (*model.ServiceRequest, error)
	ListServiceRequests(ctx context.Context) ([]model.ServiceRequest, model.RequestStats, error)
	UpdateServiceRequestStatus(ctx context.Context, ref, status string) (*model.ServiceRequest, error)

	CreateExtensionRequest(ctx context.Context, in service.ExtensionRequestInput) (*model.ExtensionRequest, error)
	ListExtensionRequests(ctx context.Context) ([]model.ExtensionRequest, error)

	SubmitContact(ctx context.Context, in service.ContactInput) error

	CreatePaymentIntent(ctx context.Context, req payment.IntentRequest) (*payment.Intent, error)
	CreateCheckoutSession(ctx context.Context, req payment.CheckoutRequest) (*payment.CheckoutSession, error)
	ListPayments(ctx context.Context) (*service.PaymentsOverview, error)

	Track(ctx context.Context, ref, email string) (*model.TrackingView, error)
	SendCode(ctx context.Context, ref, email string) (*service.SendCodeResult, error)
	VerifyCode(ctx context.Context, ref, email, code string) error

	UploadDocuments(ctx context.Context, in service.UploadInput) ([]model.Document, error)
	ListDocuments(ctx context.Context, ref, email string) ([]model.Document, error)
}

// Handler реализует HTTP-обработчики API сервиса приёма заявок.
type Handler struct {
	service Service
	logger  *zap.Logger
	session *middleware.SessionAuth
	admin   *middleware.AdminAuth

	metrics  *middleware.HTTPMetrics
	gatherer prometheus.Gatherer
}

// NewHandler создаёт новый экземпляр обработчика HTTP-запросов.
func NewHandler(s Service, logger *zap.Logger, session *middleware.SessionAuth, admin *middleware.AdminAuth) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		service: s,
		logger:  logger,
		session: session,
		admin:   admin,
	}
}

// WithMetrics включает сбор метрик HTTP-запросов и маршрут /metrics.
func (h *Handler) WithMetrics(m *middleware.HTTPMetrics, g prometheus.Gatherer) *Handler {
	h.metrics = m
	h.gatherer = g
	return h
}

type errorResponse struct {
	Error string `json:"error"`
}

type successResponse struct {
	Success   bool   `json:"success"`
	Reference string `json:"reference,omitempty"`
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Warn("encode response error", zap.Error(err))
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, errorResponse{Error: message})
}

// writeServiceError переводит ошибку сервиса в JSON-ответ с подходящим статусом.
func (h *Handler) writeServiceError(w http.ResponseWriter, r *http.Request, op string, err error) {
	var verr *service.ValidationError
	switch {
	case errors.As(err, &verr):
		h.writeError(w, http.StatusBadRequest, verr.Message)
	case errors.Is(err, repository.ErrNotFound):
		h.writeError(w, http.StatusNotFound, msgNotFound)
	case errors.Is(err, service.ErrAccessDenied):
		h.writeError(w, http.StatusUnauthorized, msgAccessDenied)
	default:
		h.logger.Error(op+" error",
			zap.Error(err),
			zap.String("request_id", middleware.GetRequestID(r.Context())),
		)
		h.writeError(w, http.StatusInternalServerError, msgProcessing)
	}
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		h.writeError(w, http.StatusBadRequest, msgInvalidBody)
		return false
	}
	return true
}

// spamFields - служебные поля форм для фильтра спама.
type spamFields struct {
	Website      string `json:"website"`
	FormLoadedAt int64  `json:"formLoadedAt"`
}

func (f spamFields) submission(r *http.Request) spam.Submission {
	return spam.Submission{
		IP:           clientIP(r),
		Honeypot:     f.Website,
		FormLoadedAt: spam.FromUnixMilli(f.FormLoadedAt),
	}
}

// clientIP возвращает адрес клиента. RemoteAddr уже переписан chi RealIP, если
// запрос пришёл через прокси.
func clientIP(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	if r.RemoteAddr == "" {
		return "unknown"
	}
	return r.RemoteAddr
}

func secureRequest(r *http.Request) bool {
	return r.TLS != nil || strings.EqualFold(r.Header.Get("X-Forwarded-Proto"), "https")
}

type authRequest struct {
	Password string `json:"password"`
}

type authResponse struct {
	Authenticated bool `json:"authenticated"`
}

// Login проверяет общий пароль сайта и выдаёт cookie сессии.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req authRequest
	if !h.decode(w, r, &req) {
		return
	}

	if !h.session.Enabled() {
		h.writeJSON(w, http.StatusOK, successResponse{Success: true})
		return
	}

	if !h.session.CheckPassword(req.Password) {
		h.logger.Info("site login rejected", zap.String("ip", clientIP(r)))
		h.writeError(w, http.StatusUnauthorized, msgWrongPassword)
		return
	}

	if err := h.session.SetSessionCookie(w, secureRequest(r)); err != nil {
		h.writeServiceError(w, r, "set session cookie", err)
		return
	}
	h.writeJSON(w, http.StatusOK, successResponse{Success: true})
}

// AuthStatus сообщает, есть ли у клиента действующая сессия.
func (h *Handler) AuthStatus(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, authResponse{Authenticated: h.session.Authenticated(r)})
}

// Logout удаляет cookie сессии.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	h.session.ClearSessionCookie(w)
	h.writeJSON(w, http.StatusOK, successResponse{Success: true})
}

// Health сообщает, что сервис запущен.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
