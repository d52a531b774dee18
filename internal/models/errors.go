package models

import "errors"

var (
	ErrOrderNotFound            = errors.New("order not found")
	ErrPaymentNotFound          = errors.New("payment not found")
	ErrPaymentMethodUnsupported = errors.New("payment method not supported")
	ErrSignatureInvalid         = errors.New("invalid signature")
	ErrInvalidTransition        = errors.New("payment already in a terminal state")
)
