package domain

import "errors"

var (
	ErrInvalidInvoice  = errors.New("invalid_invoice")
	ErrInvalidStatus   = errors.New("invalid_payment_status")
	ErrInvalidAmount   = errors.New("invalid_amount")
	ErrInvalidCurrency = errors.New("invalid_currency")
)
