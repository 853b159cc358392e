package store

import "errors"

var (
	ErrValidation       = errors.New("invalid request")
	ErrServiceNotFound  = errors.New("service not found")
	ErrDuplicateService = errors.New("service name already exists")
	ErrWindowNotFound   = errors.New("window not found")
	ErrDeviceNotFound   = errors.New("device not found")
	ErrPrinterNotFound  = errors.New("printer not found")
	ErrTicketNotFound   = errors.New("ticket not found")
	ErrNoTicket         = errors.New("no ticket available")
	ErrInvalidState     = errors.New("invalid ticket state")
	ErrTransient        = errors.New("store temporarily unavailable")
)
