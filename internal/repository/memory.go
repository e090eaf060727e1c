package repository

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/nfsuisse/intake/internal/model"
	"github.com/nfsuisse/intake/internal/validation"
)

// MemoryRepository хранит заявки в памяти процесса. Используется, когда база данных
// не настроена; данные теряются при перезапуске.
type MemoryRepository struct {
	mu         sync.RWMutex
	tax        []*model.TaxRequest
	services   []*model.ServiceRequest
	extensions []*model.ExtensionRequest
	now        func() time.Time
}

// NewMemoryRepository создаёт пустое хранилище заявок.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{now: time.Now}
}

// WithClock подменяет источник времени, используется в тестах.
func (r *MemoryRepository) WithClock(now func() time.Time) *MemoryRepository {
	if now != nil {
		r.now = now
	}
	return r
}

// Close ничего не делает.
func (r *MemoryRepository) Close() error {
	return nil
}

// referenceTaken проверяет занятость номера во всех коллекциях. Вызывается под блокировкой.
func (r *MemoryRepository) referenceTaken(ref string) bool {
	for _, t := range r.tax {
		if t.Reference == ref {
			return true
		}
	}
	for _, s := range r.services {
		if s.Reference == ref {
			return true
		}
	}
	for _, e := range r.extensions {
		if e.Reference == ref {
			return true
		}
	}
	return false
}

// CreateTaxRequest сохраняет новую налоговую заявку в начало коллекции.
func (r *MemoryRepository) CreateTaxRequest(_ context.Context, req *model.TaxRequest) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.referenceTaken(req.Reference) {
		return fmt.Errorf("%w: %s", ErrReferenceExists, req.Reference)
	}

	now := r.now()
	req.CreatedAt = now
	req.UpdatedAt = now
	if req.Documents == nil {
		req.Documents = []model.Document{}
	}

	stored := cloneTaxRequest(req)
	r.tax = append([]*model.TaxRequest{stored}, r.tax...)
	return nil
}

func (r *MemoryRepository) findTax(ref string) *model.TaxRequest {
	for _, t := range r.tax {
		if validation.MatchReference(t.Reference, ref) {
			return t
		}
	}
	return nil
}

// FindTaxRequest ищет налоговую заявку по номеру.
func (r *MemoryRepository) FindTaxRequest(_ context.Context, ref string) (*model.TaxRequest, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	t := r.findTax(ref)
	if t == nil {
		return nil, ErrNotFound
	}
	return cloneTaxRequest(t), nil
}

// ListTaxRequests возвращает налоговые заявки, начиная с самой новой.
func (r *MemoryRepository) ListTaxRequests(_ context.Context) ([]model.TaxRequest, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	res := make([]model.TaxRequest, 0, len(r.tax))
	for _, t := range r.tax {
		res = append(res, *cloneTaxRequest(t))
	}
	return res, nil
}

// UpdateTaxRequestStatus переводит заявку в новый статус, если переход допустим.
func (r *MemoryRepository) UpdateTaxRequestStatus(_ context.Context, ref string, status model.TaxStatus, paidAt *time.Time) (*model.TaxRequest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	t := r.findTax(ref)
	if t == nil {
		return nil, ErrNotFound
	}
	if !t.Status.CanTransition(status) {
		return nil, fmt.Errorf("%w: %s -> %s", model.ErrInvalidTransition, t.Status, status)
	}

	t.Status = status
	t.UpdatedAt = r.now()
	if paidAt != nil {
		at := *paidAt
		t.PaidAt = &at
	}
	return cloneTaxRequest(t), nil
}

// AttachTaxRequestPayment связывает заявку с идентификатором платежа.
func (r *MemoryRepository) AttachTaxRequestPayment(_ context.Context, ref, paymentID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	t := r.findTax(ref)
	if t == nil {
		return ErrNotFound
	}
	t.PaymentID = paymentID
	t.UpdatedAt = r.now()
	return nil
}

// AddTaxRequestDocuments добавляет метаданные документов к заявке.
func (r *MemoryRepository) AddTaxRequestDocuments(_ context.Context, ref string, docs []model.Document) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	t := r.findTax(ref)
	if t == nil {
		return ErrNotFound
	}
	t.Documents = append(t.Documents, docs...)
	t.UpdatedAt = r.now()
	return nil
}

// TaxRequestStats подсчитывает налоговые заявки по статусам.
func (r *MemoryRepository) TaxRequestStats(_ context.Context) (model.TaxRequestStats, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var stats model.TaxRequestStats
	for _, t := range r.tax {
		stats.Add(t.Status, 1)
	}
	return stats, nil
}

// CreateServiceRequest сохраняет новую общую заявку.
func (r *MemoryRepository) CreateServiceRequest(_ context.Context, req *model.ServiceRequest) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.referenceTaken(req.Reference) {
		return fmt.Errorf("%w: %s", ErrReferenceExists, req.Reference)
	}

	now := r.now()
	req.CreatedAt = now
	req.UpdatedAt = now
	if req.Documents == nil {
		req.Documents = []model.Document{}
	}

	stored := cloneServiceRequest(req)
	r.services = append([]*model.ServiceRequest{stored}, r.services...)
	return nil
}

func (r *MemoryRepository) findService(ref string) *model.ServiceRequest {
	for _, s := range r.services {
		if validation.MatchReference(s.Reference, ref) {
			return s
		}
	}
	return nil
}

// FindServiceRequest ищет общую заявку по номеру.
func (r *MemoryRepository) FindServiceRequest(_ context.Context, ref string) (*model.ServiceRequest, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s := r.findService(ref)
	if s == nil {
		return nil, ErrNotFound
	}
	return cloneServiceRequest(s), nil
}

// ListServiceRequests возвращает общие заявки, начиная с самой новой.
func (r *MemoryRepository) ListServiceRequests(_ context.Context) ([]model.ServiceRequest, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	res := make([]model.ServiceRequest, 0, len(r.services))
	for _, s := range r.services {
		res = append(res, *cloneServiceRequest(s))
	}
	return res, nil
}

// UpdateServiceRequestStatus переводит общую заявку в новый статус, если переход допустим.
func (r *MemoryRepository) UpdateServiceRequestStatus(_ context.Context, ref string, status model.RequestStatus) (*model.ServiceRequest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s := r.findService(ref)
	if s == nil {
		return nil, ErrNotFound
	}
	if !s.Status.CanTransition(status) {
		return nil, fmt.Errorf("%w: %s -> %s", model.ErrInvalidTransition, s.Status, status)
	}

	s.Status = status
	s.UpdatedAt = r.now()
	return cloneServiceRequest(s), nil
}

// AddServiceRequestDocuments добавляет метаданные документов к общей заявке.
func (r *MemoryRepository) AddServiceRequestDocuments(_ context.Context, ref string, docs []model.Document) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	s := r.findService(ref)
	if s == nil {
		return ErrNotFound
	}
	s.Documents = append(s.Documents, docs...)
	s.UpdatedAt = r.now()
	return nil
}

// ServiceRequestStats подсчитывает общие заявки по статусам.
func (r *MemoryRepository) ServiceRequestStats(_ context.Context) (model.RequestStats, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var stats model.RequestStats
	for _, s := range r.services {
		stats.Add(s.Status, 1)
	}
	return stats, nil
}

// CreateExtensionRequest сохраняет заявку на продление срока.
func (r *MemoryRepository) CreateExtensionRequest(_ context.Context, req *model.ExtensionRequest) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.referenceTaken(req.Reference) {
		return fmt.Errorf("%w: %s", ErrReferenceExists, req.Reference)
	}

	now := r.now()
	req.CreatedAt = now
	req.UpdatedAt = now

	stored := *req
	r.extensions = append([]*model.ExtensionRequest{&stored}, r.extensions...)
	return nil
}

// ListExtensionRequests возвращает заявки на продление, начиная с самой новой.
func (r *MemoryRepository) ListExtensionRequests(_ context.Context) ([]model.ExtensionRequest, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	res := make([]model.ExtensionRequest, 0, len(r.extensions))
	for _, e := range r.extensions {
		res = append(res, *e)
	}
	return res, nil
}

func cloneTaxRequest(t *model.TaxRequest) *model.TaxRequest {
	c := *t
	c.Documents = append([]model.Document{}, t.Documents...)
	if t.PaidAt != nil {
		at := *t.PaidAt
		c.PaidAt = &at
	}
	return &c
}

func cloneServiceRequest(s *model.ServiceRequest) *model.ServiceRequest {
	c := *s
	c.Documents = append([]model.Document{}, s.Documents...)
	if s.Details != nil {
		c.Details = make(map[string]string, len(s.Details))
		for k, v := range s.Details {
			c.Details[k] = v
		}
	}
	return &c
}
