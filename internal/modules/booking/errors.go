package booking

import "errors"

var (
	ErrAlreadyPaid = errors.New("booking is already paid")
	ErrNotEditable = errors.New("booking can no longer be edited")
)
