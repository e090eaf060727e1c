package model

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidTransition возвращается при попытке перевести заявку в недопустимый статус.
	ErrInvalidTransition = errors.New("invalid status transition")
	// ErrUnknownStatus возвращается для неизвестного значения статуса.
	ErrUnknownStatus = errors.New("unknown status")
)

// TaxStatus описывает этап обработки налоговой заявки.
type TaxStatus string

const (
	TaxStatusPending    TaxStatus = "pending"
	TaxStatusPaid       TaxStatus = "paid"
	TaxStatusInProgress TaxStatus = "in_progress"
	TaxStatusCompleted  TaxStatus = "completed"
	TaxStatusDelivered  TaxStatus = "delivered"
)

// Оплату можно пропустить, если клиент рассчитался вне сайта.
var taxTransitions = map[TaxStatus][]TaxStatus{
	TaxStatusPending:    {TaxStatusPaid, TaxStatusInProgress},
	TaxStatusPaid:       {TaxStatusInProgress},
	TaxStatusInProgress: {TaxStatusCompleted},
	TaxStatusCompleted:  {TaxStatusDelivered},
}

var taxLabels = map[TaxStatus]string{
	TaxStatusPending:    "En attente de paiement",
	TaxStatusPaid:       "Paiement reçu",
	TaxStatusInProgress: "En cours de traitement",
	TaxStatusCompleted:  "Déclaration terminée",
	TaxStatusDelivered:  "Déclaration livrée",
}

// ParseTaxStatus разбирает строковое значение статуса налоговой заявки.
func ParseTaxStatus(s string) (TaxStatus, error) {
	status := TaxStatus(s)
	if _, ok := taxLabels[status]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownStatus, s)
	}
	return status, nil
}

// CanTransition сообщает, допустим ли переход из текущего статуса в указанный.
func (s TaxStatus) CanTransition(to TaxStatus) bool {
	for _, next := range taxTransitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

// Label возвращает человекочитаемое название статуса.
func (s TaxStatus) Label() string {
	if l, ok := taxLabels[s]; ok {
		return l
	}
	return string(s)
}

// RequestStatus описывает этап обработки общей заявки.
type RequestStatus string

const (
	RequestStatusReceived   RequestStatus = "received"
	RequestStatusProcessing RequestStatus = "processing"
	RequestStatusDone       RequestStatus = "done"
)

var requestTransitions = map[RequestStatus][]RequestStatus{
	RequestStatusReceived:   {RequestStatusProcessing},
	RequestStatusProcessing: {RequestStatusDone},
}

var requestLabels = map[RequestStatus]string{
	RequestStatusReceived:   "Demande reçue",
	RequestStatusProcessing: "En cours de traitement",
	RequestStatusDone:       "Terminée",
}

// ParseRequestStatus разбирает строковое значение статуса общей заявки.
func ParseRequestStatus(s string) (RequestStatus, error) {
	status := RequestStatus(s)
	if _, ok := requestLabels[status]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownStatus, s)
	}
	return status, nil
}

// CanTransition сообщает, допустим ли переход из текущего статуса в указанный.
func (s RequestStatus) CanTransition(to RequestStatus) bool {
	for _, next := range requestTransitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

// Label возвращает человекочитаемое название статуса.
func (s RequestStatus) Label() string {
	if l, ok := requestLabels[s]; ok {
		return l
	}
	return string(s)
}
