package payment

import "errors"

var (
	ErrGatewayUnavailable = errors.New("payment gateway unavailable")
	ErrInvalidSignature   = errors.New("invalid webhook signature")
	ErrAmountChanged      = errors.New("amount changed while the checkout was opened, retry")
)
