package orders

import "errors"

var (
	// ErrNotFound is returned when the order does not exist or does not
	// belong to the requesting customer.
	ErrNotFound = errors.New("order not found")

	ErrValidation           = errors.New("invalid order input")
	ErrForbiddenTransition  = errors.New("transition not allowed for customer")
	ErrInvalidTransition    = errors.New("invalid status transition")
	ErrOrderNumberTaken     = errors.New("order number already taken")
	ErrPaymentFailed        = errors.New("payment failed")
	ErrUnsupportedPayment   = errors.New("unsupported payment method")
)
