package catalog

import "errors"

var (
	ErrValidation        = errors.New("validation error")
	ErrSlotNotFound      = errors.New("slot not found")
	ErrTariffNotFound    = errors.New("tariff not found")
	ErrSlotExists        = errors.New("slot already exists")
	ErrSlotHasBookings   = errors.New("slot has active bookings")
	ErrCapacityBelowHeld = errors.New("capacity below tickets already held")
	ErrNoTariff          = errors.New("no active tariff")
	ErrScheduleNotFound  = errors.New("schedule not found")
)
