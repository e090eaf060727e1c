package handler

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nfsuisse/intake/internal/mail"
	"github.com/nfsuisse/intake/internal/model"
	"github.com/nfsuisse/intake/internal/service"
	"github.com/nfsuisse/intake/internal/spam"
)

type taxRequestBody struct {
	model.Contact
	model.TaxDetails
	spamFields
}

type createdResponse struct {
	Success   bool   `json:"success"`
	Reference string `json:"reference"`
	Request   any    `json:"request,omitempty"`
}

type taxRequestsResponse struct {
	Requests []model.TaxRequest   `json:"requests"`
	Stats    model.TaxRequestStats `json:"stats"`
}

type serviceRequestsResponse struct {
	Requests []model.ServiceRequest `json:"requests"`
	Stats    model.RequestStats     `json:"stats"`
}

type extensionRequestsResponse struct {
	Requests []model.ExtensionRequest `json:"requests"`
}

type statusRequest struct {
	Status string `json:"status"`
}

// writeCreated отвечает успехом. Для отправки, признанной спамом, возвращается
// номер-заглушка, чтобы не подсказывать роботу о блокировке.
func (h *Handler) writeCreated(w http.ResponseWriter, r *http.Request, op, reference string, v any, err error) {
	if errors.Is(err, service.ErrSpamBlocked) {
		h.writeJSON(w, http.StatusCreated, createdResponse{Success: true, Reference: spam.BlockedReference})
		return
	}
	if err != nil {
		h.writeServiceError(w, r, op, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, createdResponse{Success: true, Reference: reference, Request: v})
}

// CreateTaxRequest принимает форму налоговой декларации.
func (h *Handler) CreateTaxRequest(w http.ResponseWriter, r *http.Request) {
	var body taxRequestBody
	if !h.decode(w, r, &body) {
		return
	}

	req, err := h.service.CreateTaxRequest(r.Context(), service.TaxRequestInput{
		Contact: body.Contact,
		Details: body.TaxDetails,
		Spam:    body.submission(r),
	})

	var ref string
	if req != nil {
		ref = req.Reference
	}
	h.writeCreated(w, r, "create tax request", ref, req, err)
}

// ListTaxRequests возвращает налоговые заявки для администратора.
func (h *Handler) ListTaxRequests(w http.ResponseWriter, r *http.Request) {
	list, stats, err := h.service.ListTaxRequests(r.Context())
	if err != nil {
		h.writeServiceError(w, r, "list tax requests", err)
		return
	}
	h.writeJSON(w, http.StatusOK, taxRequestsResponse{Requests: list, Stats: stats})
}

// UpdateTaxRequestStatus меняет статус налоговой заявки.
func (h *Handler) UpdateTaxRequestStatus(w http.ResponseWriter, r *http.Request) {
	var body statusRequest
	if !h.decode(w, r, &body) {
		return
	}

	req, err := h.service.UpdateTaxRequestStatus(r.Context(), chi.URLParam(r, "reference"), body.Status)
	if err != nil {
		h.writeServiceError(w, r, "update tax request status", err)
		return
	}
	h.writeJSON(w, http.StatusOK, req)
}

type serviceRequestBody struct {
	Type    model.ServiceType `json:"type"`
	Details map[string]string `json:"details"`
	Message string            `json:"message"`
	model.Contact
	spamFields
}

// CreateServiceRequest принимает заявку на бухгалтерское обслуживание или управление недвижимостью.
func (h *Handler) CreateServiceRequest(w http.ResponseWriter, r *http.Request) {
	var body serviceRequestBody
	if !h.decode(w, r, &body) {
		return
	}

	req, err := h.service.CreateServiceRequest(r.Context(), service.ServiceRequestInput{
		Type:    body.Type,
		Contact: body.Contact,
		Details: body.Details,
		Message: body.Message,
		Spam:    body.submission(r),
	})

	var ref string
	if req != nil {
		ref = req.Reference
	}
	h.writeCreated(w, r, "create service request", ref, req, err)
}

// ListServiceRequests возвращает общие заявки для администратора.
func (h *Handler) ListServiceRequests(w http.ResponseWriter, r *http.Request) {
	list, stats, err := h.service.ListServiceRequests(r.Context())
	if err != nil {
		h.writeServiceError(w, r, "list service requests", err)
		return
	}
	h.writeJSON(w, http.StatusOK, serviceRequestsResponse{Requests: list, Stats: stats})
}

// UpdateServiceRequestStatus меняет статус общей заявки.
func (h *Handler) UpdateServiceRequestStatus(w http.ResponseWriter, r *http.Request) {
	var body statusRequest
	if !h.decode(w, r, &body) {
		return
	}

	req, err := h.service.UpdateServiceRequestStatus(r.Context(), chi.URLParam(r, "reference"), body.Status)
	if err != nil {
		h.writeServiceError(w, r, "update service request status", err)
		return
	}
	h.writeJSON(w, http.StatusOK, req)
}

type extensionRequestBody struct {
	TaxYear int    `json:"taxYear"`
	Reason  string `json:"reason"`
	model.Contact
	spamFields
}

// CreateExtensionRequest принимает заявку на продление срока подачи декларации.
func (h *Handler) CreateExtensionRequest(w http.ResponseWriter, r *http.Request) {
	var body extensionRequestBody
	if !h.decode(w, r, &body) {
		return
	}

	req, err := h.service.CreateExtensionRequest(r.Context(), service.ExtensionRequestInput{
		Contact: body.Contact,
		TaxYear: body.TaxYear,
		Reason:  body.Reason,
		Spam:    body.submission(r),
	})

	var ref string
	if req != nil {
		ref = req.Reference
	}
	h.writeCreated(w, r, "create extension request", ref, req, err)
}

// ListExtensionRequests возвращает заявки на продление для администратора.
func (h *Handler) ListExtensionRequests(w http.ResponseWriter, r *http.Request) {
	list, err := h.service.ListExtensionRequests(r.Context())
	if err != nil {
		h.writeServiceError(w, r, "list extension requests", err)
		return
	}
	h.writeJSON(w, http.StatusOK, extensionRequestsResponse{Requests: list})
}

type contactBody struct {
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Email     string `json:"email"`
	Phone     string `json:"phone"`
	Canton    string `json:"canton"`
	Service   string `json:"service"`
	Message   string `json:"message"`
	spamFields
}

// Contact пересылает сообщение из формы обратной связи в офис.
func (h *Handler) Contact(w http.ResponseWriter, r *http.Request) {
	var body contactBody
	if !h.decode(w, r, &body) {
		return
	}

	err := h.service.SubmitContact(r.Context(), service.ContactInput{
		Form: mail.ContactForm{
			FirstName: body.FirstName,
			LastName:  body.LastName,
			Email:     body.Email,
			Phone:     body.Phone,
			Canton:    body.Canton,
			Service:   body.Service,
			Message:   body.Message,
		},
		Spam: body.submission(r),
	})
	if err != nil && !errors.Is(err, service.ErrSpamBlocked) {
		h.writeServiceError(w, r, "submit contact", err)
		return
	}

	h.writeJSON(w, http.StatusOK, successResponse{Success: true})
}
