package appointment

import "errors"

// Common errors returned by the appointment lifecycle.
var (
	ErrNotFound         = errors.New("appointment not found")
	ErrSlotTaken        = errors.New("slot is already taken")
	ErrOutsideHours     = errors.New("slot is outside the doctor's hours")
	ErrPatientLocked    = errors.New("patient is locked out of booking")
	ErrCutoff           = errors.New("too close to the appointment start")
	ErrWrongState       = errors.New("transition not allowed from the current status")
	ErrDuplicateRequest = errors.New("a request is already pending")
	ErrBookingLimit     = errors.New("patient already has an active upcoming appointment")
	ErrValidation       = errors.New("validation failed")
	ErrWrongPatient     = errors.New("appointment belongs to another patient")
)
