package services

import "errors"

// Domain errors surfaced by the transaction lifecycle engine. Handlers
// translate these into HTTP responses; everything else is an internal
// failure.
var (
	ErrTransactionNotFound = errors.New("transaction not found")
	ErrWrongPaymentMethod  = errors.New("wrong payment method")
	ErrAlreadyProcessed    = errors.New("transaction already processed")
	ErrCourseNotFound      = errors.New("course not found")
	ErrPromoCodeInvalid    = errors.New("promo code is invalid or expired")
)
