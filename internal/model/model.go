// Package model содержит доменные сущности сервиса приёма заявок.
package model

import (
	"strings"
	"time"
)

// Contact содержит контактные данные клиента.
type Contact struct {
	FirstName  string `json:"firstName"`
	LastName   string `json:"lastName"`
	Email      string `json:"email"`
	Phone      string `json:"phone,omitempty"`
	Address    string `json:"address,omitempty"`
	PostalCode string `json:"postalCode,omitempty"`
	City       string `json:"city,omitempty"`
	Canton     string `json:"canton,omitempty"`
}

// FullName возвращает имя и фамилию клиента через пробел.
func (c Contact) FullName() string {
	return strings.TrimSpace(c.FirstName + " " + c.LastName)
}

// Document описывает метаданные приложенного к заявке файла.
type Document struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	ContentType string    `json:"contentType"`
	Size        int64     `json:"size"`
	URL         string    `json:"url,omitempty"`
	PublicID    string    `json:"publicId,omitempty"`
	Simulated   bool      `json:"simulated,omitempty"`
	UploadedAt  time.Time `json:"uploadedAt"`
}

// TaxDetails содержит сведения, необходимые для подготовки налоговой декларации.
type TaxDetails struct {
	TaxYear        int    `json:"taxYear"`
	CivilStatus    string `json:"civilStatus,omitempty"`
	Children       int    `json:"children,omitempty"`
	EmploymentType string `json:"employmentType,omitempty"`
	HasProperty    bool   `json:"hasProperty,omitempty"`
	HasSecurities  bool   `json:"hasSecurities,omitempty"`
	Package        string `json:"package,omitempty"`
	PriceCents     int64  `json:"priceCents,omitempty"`
	Notes          string `json:"notes,omitempty"`
}

// TaxRequest описывает заявку на подготовку налоговой декларации.
type TaxRequest struct {
	Reference string     `json:"reference"`
	Status    TaxStatus  `json:"status"`
	Contact   Contact    `json:"contact"`
	Details   TaxDetails `json:"details"`
	Documents []Document `json:"documents"`
	PaymentID string     `json:"paymentId,omitempty"`
	CreatedAt time.Time  `json:"createdAt"`
	UpdatedAt time.Time  `json:"updatedAt"`
	PaidAt    *time.Time `json:"paidAt,omitempty"`
}

// ServiceType описывает вид услуги по общей заявке.
type ServiceType string

const (
	ServiceTypeAccounting         ServiceType = "accounting"
	ServiceTypePropertyManagement ServiceType = "property_management"
)

// Valid сообщает, известен ли вид услуги.
func (t ServiceType) Valid() bool {
	return t == ServiceTypeAccounting || t == ServiceTypePropertyManagement
}

// ServiceRequest описывает заявку на бухгалтерское обслуживание или управление недвижимостью.
type ServiceRequest struct {
	Reference string            `json:"reference"`
	Type      ServiceType       `json:"type"`
	Status    RequestStatus     `json:"status"`
	Contact   Contact           `json:"contact"`
	Details   map[string]string `json:"details,omitempty"`
	Message   string            `json:"message,omitempty"`
	Documents []Document        `json:"documents"`
	CreatedAt time.Time         `json:"createdAt"`
	UpdatedAt time.Time         `json:"updatedAt"`
}

// ExtensionRequest описывает заявку на продление срока подачи декларации.
type ExtensionRequest struct {
	Reference string        `json:"reference"`
	Status    RequestStatus `json:"status"`
	Contact   Contact       `json:"contact"`
	TaxYear   int           `json:"taxYear"`
	Reason    string        `json:"reason,omitempty"`
	CreatedAt time.Time     `json:"createdAt"`
	UpdatedAt time.Time     `json:"updatedAt"`
}

// TaxRequestStats содержит количество налоговых заявок по статусам.
type TaxRequestStats struct {
	Total      int `json:"total"`
	Pending    int `json:"pending"`
	Paid       int `json:"paid"`
	InProgress int `json:"inProgress"`
	Completed  int `json:"completed"`
	Delivered  int `json:"delivered"`
}

// Add учитывает заявку с указанным статусом.
func (s *TaxRequestStats) Add(status TaxStatus, n int) {
	s.Total += n
	switch status {
	case TaxStatusPending:
		s.Pending += n
	case TaxStatusPaid:
		s.Paid += n
	case TaxStatusInProgress:
		s.InProgress += n
	case TaxStatusCompleted:
		s.Completed += n
	case TaxStatusDelivered:
		s.Delivered += n
	}
}

// RequestStats содержит количество общих заявок по статусам.
type RequestStats struct {
	Total      int `json:"total"`
	Received   int `json:"received"`
	Processing int `json:"processing"`
	Done       int `json:"done"`
}

// Add учитывает заявку с указанным статусом.
func (s *RequestStats) Add(status RequestStatus, n int) {
	s.Total += n
	switch status {
	case RequestStatusReceived:
		s.Received += n
	case RequestStatusProcessing:
		s.Processing += n
	case RequestStatusDone:
		s.Done += n
	}
}

// PaymentRecord описывает платёж, полученный от платёжного провайдера.
type PaymentRecord struct {
	ID            string    `json:"id"`
	AmountCents   int64     `json:"amount"`
	Currency      string    `json:"currency"`
	Status        string    `json:"status"`
	CustomerEmail string    `json:"customerEmail,omitempty"`
	CustomerName  string    `json:"customerName,omitempty"`
	Description   string    `json:"description,omitempty"`
	Reference     string    `json:"reference,omitempty"`
	CreatedAt     time.Time `json:"createdAt"`
}

// PaymentStats содержит агрегированные показатели по платежам.
type PaymentStats struct {
	Total            int   `json:"total"`
	Succeeded        int   `json:"succeeded"`
	Pending          int   `json:"pending"`
	Failed           int   `json:"failed"`
	TotalAmountCents int64 `json:"totalAmount"`
}

// TrackingView - нормализованное представление заявки для страницы отслеживания.
type TrackingView struct {
	Reference    string     `json:"reference"`
	Kind         string     `json:"type"`
	Status       string     `json:"status"`
	StatusLabel  string     `json:"statusLabel"`
	CustomerName string     `json:"customerName"`
	Documents    []Document `json:"documents"`
	CreatedAt    time.Time  `json:"createdAt"`
	UpdatedAt    time.Time  `json:"updatedAt"`
	PaidAt       *time.Time `json:"paidAt,omitempty"`
}
