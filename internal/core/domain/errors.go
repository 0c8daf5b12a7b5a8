package domain

import "errors"

var (
	ErrValidation        = errors.New("validation failed")
	ErrNotFound          = errors.New("not found")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrDuplicateBatch    = errors.New("duplicate batch code")
	ErrUnknownEventType  = errors.New("unknown event type")
	ErrEventNotResettable = errors.New("event cannot be reset from its current status")
)
