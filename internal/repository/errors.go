package repository

import "errors"

var (
	// ErrNotFound возвращается, если заявка с указанным номером не найдена.
	ErrNotFound = errors.New("request not found")
	// ErrReferenceExists возвращается при попытке сохранить заявку с уже занятым номером.
	ErrReferenceExists = errors.New("reference already exists")
)
