package booking

import "errors"

var (
	ErrValidation       = errors.New("validation error")
	ErrSlotNotFound     = errors.New("slot not found")
	ErrSlotUnavailable  = errors.New("slot unavailable")
	ErrBookingNotFound  = errors.New("booking not found")
	ErrAlreadyCancelled = errors.New("booking already cancelled")
)
