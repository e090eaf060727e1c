package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/nfsuisse/intake/internal/middleware"
	"github.com/nfsuisse/intake/internal/model"
	"github.com/nfsuisse/intake/internal/payment"
	"github.com/nfsuisse/intake/internal/repository"
	"github.com/nfsuisse/intake/internal/service"
	"github.com/nfsuisse/intake/internal/spam"
)

type stubService struct {
	taxResp   *model.TaxRequest
	taxErr    error
	taxInput  service.TaxRequestInput
	taxList   []model.TaxRequest
	taxStats  model.TaxRequestStats
	statusErr error

	serviceResp *model.ServiceRequest
	serviceErr  error

	extensionResp *model.ExtensionRequest
	extensionErr  error

	contactErr   error
	contactInput service.ContactInput

	intentResp  *payment.Intent
	intentErr   error
	intentInput payment.IntentRequest

	checkoutResp *payment.CheckoutSession
	checkoutErr  error

	paymentsResp *service.PaymentsOverview
	paymentsErr  error

	trackResp *model.TrackingView
	trackErr  error

	sendCodeResp *service.SendCodeResult
	sendCodeErr  error

	verifyErr error

	uploadResp  []model.Document
	uploadErr   error
	uploadInput service.UploadInput
	uploadNames []string

	documentsResp []model.Document
	documentsErr  error
}

func (s *stubService) CreateTaxRequest(ctx context.Context, in service.TaxRequestInput) (*model.TaxRequest, error) {
	s.taxInput = in
	return s.taxResp, s.taxErr
}

func (s *stubService) ListTaxRequests(ctx context.Context) ([]model.TaxRequest, model.TaxRequestStats, error) {
	return s.taxList, s.taxStats, nil
}

func (s *stubService) UpdateTaxRequestStatus(ctx context.Context, ref, status string) (*model.TaxRequest, error) {
	if s.statusErr != nil {
		return nil, s.statusErr
	}
	return &model.TaxRequest{Reference: ref, Status: model.TaxStatus(status)}, nil
}

func (s *stubService) CreateServiceRequest(ctx context.Context, in service.ServiceRequestInput) (*model.ServiceRequest, error) {
	return s.serviceResp, s.serviceErr
}

func (s *stubService) ListServiceRequests(ctx context.Context) ([]model.ServiceRequest, model.RequestStats, error) {
	return []model.ServiceRequest{}, model.RequestStats{}, nil
}

func (s *stubService) UpdateServiceRequestStatus(ctx context.Context, ref, status string) (*model.ServiceRequest, error) {
	if s.statusErr != nil {
		return nil, s.statusErr
	}
	return &model.ServiceRequest{Reference: ref, Status: model.RequestStatus(status)}, nil
}

func (s *stubService) CreateExtensionRequest(ctx context.Context, in service.ExtensionRequestInput) (*model.ExtensionRequest, error) {
	return s.extensionResp, s.extensionErr
}

func (s *stubService) ListExtensionRequests(ctx context.Context) ([]model.ExtensionRequest, error) {
	return []model.ExtensionRequest{}, nil
}

func (s *stubService) SubmitContact(ctx context.Context, in service.ContactInput) error {
	s.contactInput = in
	return s.contactErr
}

func (s *stubService) CreatePaymentIntent(ctx context.Context, req payment.IntentRequest) (*payment.Intent, error) {
	s.intentInput = req
	return s.intentResp, s.intentErr
}

func (s *stubService) CreateCheckoutSession(ctx context.Context, req payment.CheckoutRequest) (*payment.CheckoutSession, error) {
	return s.checkoutResp, s.checkoutErr
}

func (s *stubService) ListPayments(ctx context.Context) (*service.PaymentsOverview, error) {
	return s.paymentsResp, s.paymentsErr
}

func (s *stubService) Track(ctx context.Context, ref, email string) (*model.TrackingView, error) {
	return s.trackResp, s.trackErr
}

func (s *stubService) SendCode(ctx context.Context, ref, email string) (*service.SendCodeResult, error) {
	return s.sendCodeResp, s.sendCodeErr
}

func (s *stubService) VerifyCode(ctx context.Context, ref, email, code string) error {
	return s.verifyErr
}

func (s *stubService) UploadDocuments(ctx context.Context, in service.UploadInput) ([]model.Document, error) {
	s.uploadInput = in
	for _, f := range in.Files {
		s.uploadNames = append(s.uploadNames, f.Name+"|"+f.ContentType)
	}
	return s.uploadResp, s.uploadErr
}

func (s *stubService) ListDocuments(ctx context.Context, ref, email string) ([]model.Document, error) {
	return s.documentsResp, s.documentsErr
}

const (
	testSitePassword  = "site-pass"
	testAdminPassword = "admin-pass"
)

func newTestHandler(t *testing.T, svc Service) *Handler {
	t.Helper()

	logger, err := zap.NewDevelopment()
	if err != nil {
		t.Fatalf("new logger: %v", err)
	}

	session := middleware.NewSessionAuth("", "test-secret")
	admin := middleware.NewAdminAuth(testAdminPassword)

	return NewHandler(svc, logger, session, admin)
}

func jsonBody(t *testing.T, v any) *bytes.Reader {
	t.Helper()
	body, err := json.Marshal(v)
	require.NoError(t, err)
	return bytes.NewReader(body)
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var resp errorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	return resp.Error
}

func TestCreateTaxRequest_Success(t *testing.T) {
	svc := &stubService{
		taxResp: &model.TaxRequest{Reference: "NF-ABCD2345", Status: model.TaxStatusPending},
	}
	h := newTestHandler(t, svc)

	req := httptest.NewRequest(http.MethodPost, "/api/tax-requests", jsonBody(t, map[string]any{
		"firstName":    "Marie",
		"lastName":     "Dubois",
		"email":        "marie@example.ch",
		"taxYear":      2024,
		"formLoadedAt": 1700000000000,
	}))
	req.RemoteAddr = "203.0.113.9:52100"
	rec := httptest.NewRecorder()

	h.CreateTaxRequest(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusCreated)
	}

	var resp createdResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.True(t, resp.Success)
	assert.Equal(t, "NF-ABCD2345", resp.Reference)

	assert.Equal(t, "Marie", svc.taxInput.Contact.FirstName)
	assert.Equal(t, 2024, svc.taxInput.Details.TaxYear)
	assert.Equal(t, "203.0.113.9", svc.taxInput.Spam.IP)
	assert.Equal(t, int64(1700000000000), svc.taxInput.Spam.FormLoadedAt.UnixMilli())
}

func TestCreateTaxRequest_SpamBlocked(t *testing.T) {
	svc := &stubService{taxErr: service.ErrSpamBlocked}
	h := newTestHandler(t, svc)

	req := httptest.NewRequest(http.MethodPost, "/api/tax-requests", jsonBody(t, map[string]any{
		"firstName": "Bot",
		"website":   "http://spam.example",
	}))
	rec := httptest.NewRecorder()

	h.CreateTaxRequest(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusCreated)
	}

	var resp createdResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, spam.BlockedReference, resp.Reference)
	assert.Equal(t, "http://spam.example", svc.taxInput.Spam.Honeypot)
}

func TestCreateTaxRequest_BadJSON(t *testing.T) {
	h := newTestHandler(t, &stubService{})

	req := httptest.NewRequest(http.MethodPost, "/api/tax-requests", strings.NewReader("{"))
	rec := httptest.NewRecorder()

	h.CreateTaxRequest(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
	assert.Equal(t, msgInvalidBody, decodeError(t, rec))
}

func TestCreatePaymentIntent_MinimumAmount(t *testing.T) {
	svc := &stubService{
		intentErr: &service.ValidationError{Message: "Le montant minimum est de 1.00 CHF", Err: payment.ErrAmountTooSmall},
	}
	h := newTestHandler(t, svc)

	req := httptest.NewRequest(http.MethodPost, "/api/create-payment-intent", jsonBody(t, map[string]any{
		"amount": 50,
		"email":  "x@y.com",
	}))
	rec := httptest.NewRecorder()

	h.CreatePaymentIntent(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
	assert.Equal(t, "Le montant minimum est de 1.00 CHF", decodeError(t, rec))
	assert.Equal(t, int64(50), svc.intentInput.AmountCents)
}

func TestCreatePaymentIntent_Success(t *testing.T) {
	svc := &stubService{
		intentResp: &payment.Intent{ID: "pi_1", ClientSecret: "pi_1_secret"},
	}
	h := newTestHandler(t, svc)

	req := httptest.NewRequest(http.MethodPost, "/api/create-payment-intent", jsonBody(t, map[string]any{
		"amount":   14900,
		"metadata": map[string]string{"taxRequestReference": "NF-ABCD2345"},
	}))
	rec := httptest.NewRecorder()

	h.CreatePaymentIntent(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	assert.JSONEq(t, `{"paymentIntentId":"pi_1","clientSecret":"pi_1_secret"}`, rec.Body.String())
	assert.Equal(t, "NF-ABCD2345", svc.intentInput.Metadata[payment.MetadataTaxRequestReference])
}

func TestCreateCheckoutSession_UpstreamError(t *testing.T) {
	svc := &stubService{
		checkoutErr: &payment.ProviderError{Op: "create checkout session", StatusCode: 502},
	}
	h := newTestHandler(t, svc)

	req := httptest.NewRequest(http.MethodPost, "/api/create-checkout-session", jsonBody(t, map[string]any{"amount": 14900}))
	rec := httptest.NewRecorder()

	h.CreateCheckoutSession(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusInternalServerError)
	}
	assert.Equal(t, msgProcessing, decodeError(t, rec))
}

func TestContact_SpamBlockedLooksSuccessful(t *testing.T) {
	svc := &stubService{contactErr: service.ErrSpamBlocked}
	h := newTestHandler(t, svc)

	req := httptest.NewRequest(http.MethodPost, "/api/contact", jsonBody(t, map[string]any{
		"firstName": "Marie",
		"message":   "Bonjour",
		"canton":    "VD",
	}))
	rec := httptest.NewRecorder()

	h.Contact(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	assert.Equal(t, "VD", svc.contactInput.Form.Canton)
}

func TestSendCode(t *testing.T) {
	tests := []struct {
		name       string
		svc        *stubService
		wantStatus int
		wantCode   string
	}{
		{
			name:       "unknown reference",
			svc:        &stubService{sendCodeErr: repository.ErrNotFound},
			wantStatus: http.StatusNotFound,
		},
		{
			name: "demo mode",
			svc: &stubService{sendCodeResp: &service.SendCodeResult{
				MaskedEmail: "x***@y.com",
				DemoMode:    true,
				Code:        "123456",
			}},
			wantStatus: http.StatusOK,
			wantCode:   "123456",
		},
		{
			name:       "live mode hides code",
			svc:        &stubService{sendCodeResp: &service.SendCodeResult{MaskedEmail: "x***@y.com"}},
			wantStatus: http.StatusOK,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newTestHandler(t, tt.svc)

			req := httptest.NewRequest(http.MethodPost, "/api/requests/send-code", jsonBody(t, accessRequest{
				Reference: "NF-AB12CD34",
				Email:     "x@y.com",
			}))
			rec := httptest.NewRecorder()

			h.SendCode(rec, req)

			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if tt.wantStatus != http.StatusOK {
				return
			}

			var resp sendCodeResponse
			require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
			assert.True(t, resp.Success)
			assert.Equal(t, "x***@y.com", resp.MaskedEmail)
			assert.Equal(t, tt.wantCode, resp.Code)
			assert.Equal(t, tt.wantCode != "", resp.DemoMode)
		})
	}
}

func TestVerifyCode_NoCodeSent(t *testing.T) {
	svc := &stubService{verifyErr: &service.ValidationError{Message: "Aucun code envoyé"}}
	h := newTestHandler(t, svc)

	req := httptest.NewRequest(http.MethodPost, "/api/requests/verify-code", jsonBody(t, accessRequest{
		Reference: "NF-AB12CD34",
		Email:     "x@y.com",
		Code:      "123456",
	}))
	rec := httptest.NewRecorder()

	h.VerifyCode(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
	assert.Equal(t, "Aucun code envoyé", decodeError(t, rec))
}

func TestTrack_ThroughRouter(t *testing.T) {
	svc := &stubService{trackErr: service.ErrAccessDenied}
	h := newTestHandler(t, svc)
	r := h.SetupRouter()

	req := httptest.NewRequest(http.MethodGet, "/api/requests/NF-AB12CD34?email=x@y.com", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusUnauthorized)
	}

	svc.trackErr = nil
	svc.trackResp = &model.TrackingView{Reference: "NF-AB12CD34", Kind: "tax", Status: "paid", StatusLabel: "Paiement reçu"}

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	assert.Contains(t, rec.Body.String(), `"statusLabel":"Paiement reçu"`)
	assert.Contains(t, rec.Body.String(), `"type":"tax"`)
}

func newMultipartRequest(t *testing.T, target string, fields map[string]string, files map[string]string) *http.Request {
	t.Helper()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	for name, contentType := range files {
		hdr := make(textproto.MIMEHeader)
		hdr.Set("Content-Disposition", `form-data; name="files"; filename="`+name+`"`)
		hdr.Set("Content-Type", contentType)
		part, err := mw.CreatePart(hdr)
		require.NoError(t, err)
		_, err = part.Write([]byte("%PDF-1.4 test"))
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, target, &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func TestUpload(t *testing.T) {
	svc := &stubService{
		uploadResp: []model.Document{{ID: "doc-1", Name: "salaire.pdf", Simulated: true}},
	}
	h := newTestHandler(t, svc)

	req := newMultipartRequest(t, "/api/upload",
		map[string]string{"reference": "NF-AB12CD34", "firstName": "Marie", "lastName": "Dubois"},
		map[string]string{"salaire.pdf": "application/pdf"},
	)
	rec := httptest.NewRecorder()

	h.Upload(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	assert.Equal(t, "NF-AB12CD34", svc.uploadInput.Reference)
	assert.Equal(t, "Dubois", svc.uploadInput.LastName)
	assert.False(t, svc.uploadInput.RequireAccess)
	assert.Equal(t, []string{"salaire.pdf|application/pdf"}, svc.uploadNames)
}

func TestUploadRequestDocuments_RequiresAccess(t *testing.T) {
	svc := &stubService{uploadErr: service.ErrAccessDenied}
	h := newTestHandler(t, svc)
	r := h.SetupRouter()

	req := newMultipartRequest(t, "/api/requests/NF-AB12CD34/documents",
		map[string]string{"email": "x@y.com"},
		map[string]string{"scan.png": "image/png"},
	)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusUnauthorized)
	}
	assert.Equal(t, "NF-AB12CD34", svc.uploadInput.Reference)
	assert.Equal(t, "x@y.com", svc.uploadInput.Email)
	assert.True(t, svc.uploadInput.RequireAccess)
}

func TestUpload_NotMultipart(t *testing.T) {
	h := newTestHandler(t, &stubService{})

	req := httptest.NewRequest(http.MethodPost, "/api/upload", strings.NewReader("plain"))
	rec := httptest.NewRecorder()

	h.Upload(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
}

func TestRouter_AdminRoutes(t *testing.T) {
	svc := &stubService{
		taxList:  []model.TaxRequest{{Reference: "NF-AB12CD34", Status: model.TaxStatusPending}},
		taxStats: model.TaxRequestStats{Total: 1, Pending: 1},
	}
	h := newTestHandler(t, svc)
	r := h.SetupRouter()

	req := httptest.NewRequest(http.MethodGet, "/api/tax-requests", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status without password = %d, want %d", rec.Code, http.StatusUnauthorized)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/tax-requests", nil)
	req.Header.Set(middleware.AdminPasswordHeader, testAdminPassword)
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status with password = %d, want %d", rec.Code, http.StatusOK)
	}

	var resp taxRequestsResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Len(t, resp.Requests, 1)
	assert.Equal(t, 1, resp.Stats.Pending)

	req = httptest.NewRequest(http.MethodGet, "/api/extension-requests?key="+testAdminPassword, nil)
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("extension list status = %d, want %d", rec.Code, http.StatusOK)
	}
}

func TestRouter_UpdateTaxRequestStatus(t *testing.T) {
	svc := &stubService{}
	h := newTestHandler(t, svc)
	r := h.SetupRouter()

	req := httptest.NewRequest(http.MethodPatch, "/api/tax-requests/NF-AB12CD34/status", jsonBody(t, statusRequest{Status: "paid"}))
	req.Header.Set(middleware.AdminPasswordHeader, testAdminPassword)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	assert.Contains(t, rec.Body.String(), `"status":"paid"`)

	svc.statusErr = &service.ValidationError{Message: "Changement de statut non autorisé", Err: model.ErrInvalidTransition}
	req = httptest.NewRequest(http.MethodPatch, "/api/tax-requests/NF-AB12CD34/status", jsonBody(t, statusRequest{Status: "pending"}))
	req.Header.Set(middleware.AdminPasswordHeader, testAdminPassword)
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
}

func TestRouter_SitePassword(t *testing.T) {
	logger := zap.NewNop()
	svc := &stubService{}
	h := NewHandler(svc, logger, middleware.NewSessionAuth(testSitePassword, "test-secret"), middleware.NewAdminAuth(testAdminPassword))
	r := h.SetupRouter()

	contact := func() *http.Request {
		return httptest.NewRequest(http.MethodPost, "/api/contact", jsonBody(t, map[string]string{"firstName": "Marie"}))
	}

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, contact())
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status without session = %d, want %d", rec.Code, http.StatusUnauthorized)
	}

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/auth", jsonBody(t, authRequest{Password: "wrong"})))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("wrong password status = %d, want %d", rec.Code, http.StatusUnauthorized)
	}

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/auth", jsonBody(t, authRequest{Password: testSitePassword})))
	if rec.Code != http.StatusOK {
		t.Fatalf("login status = %d, want %d", rec.Code, http.StatusOK)
	}

	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, middleware.SessionCookieName, cookies[0].Name)
	assert.True(t, cookies[0].HttpOnly)

	req := contact()
	req.AddCookie(cookies[0])
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status with session = %d, want %d", rec.Code, http.StatusOK)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/auth", nil)
	req.AddCookie(cookies[0])
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.JSONEq(t, `{"authenticated":true}`, rec.Body.String())
}

func TestRouter_HealthMetricsAndNotFound(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics, err := middleware.NewHTTPMetrics(reg)
	require.NoError(t, err)

	h := newTestHandler(t, &stubService{}).WithMetrics(metrics, reg)
	r := h.SetupRouter()

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/unknown", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "intake_http_requests_total")
}
