package auth

import "errors"

// Sentinel errors forming the failure taxonomy of the engine. Callers match
// with errors.Is; anything else is a storage failure propagated as-is.
//
// ErrInvalidCredentials covers both an unknown email and a wrong password so
// the two cases stay indistinguishable to the caller.
var (
	ErrNotFound            = errors.New("auth: not found")
	ErrDuplicateUser       = errors.New("auth: user already exists")
	ErrInvalidCredentials  = errors.New("auth: invalid email or password")
	ErrLockedOut           = errors.New("auth: account temporarily locked")
	ErrUnverified          = errors.New("auth: email not verified")
	ErrInvalidToken        = errors.New("auth: invalid token")
	ErrInvalidVerification = errors.New("auth: invalid or expired verification token")
	ErrUnauthenticated     = errors.New("auth: unauthenticated")
	ErrForbidden           = errors.New("auth: forbidden")
	ErrInvalidInput        = errors.New("auth: invalid input")
)
