package service

import "errors"

// Domain error taxonomy. Precondition and state-machine violations are
// reported synchronously and never retried server-side; ErrLockUnavailable
// and plain errors are transport failures the caller may retry.
var (
	ErrNotFound               = errors.New("not found")
	ErrConflict               = errors.New("conflict")
	ErrExpired                = errors.New("expired")
	ErrForbidden              = errors.New("forbidden")
	ErrPaymentDeclined        = errors.New("payment declined")
	ErrLockUnavailable        = errors.New("lock store unavailable")
	ErrUserAlreadyReserved    = errors.New("user already has a reservation")
	ErrChargerAlreadyReserved = errors.New("charger already reserved")
)
