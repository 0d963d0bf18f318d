package auth

import "errors"

// Typed error surface exposed to HTTP handlers. Status-code mapping is a
// glue-layer concern; the service only distinguishes the policy states.
var (
	ErrInvalidCredentials     = errors.New("auth: invalid credentials")
	ErrUserNotActive          = errors.New("auth: user not active")
	ErrInvalidRefresh         = errors.New("auth: invalid refresh token")
	ErrRefreshExpiredAbsolute = errors.New("auth: refresh token past absolute expiry")
	ErrRefreshExpiredIdle     = errors.New("auth: refresh token past idle expiry")
	ErrUAMismatch             = errors.New("auth: user-agent binding mismatch")
	ErrIPMismatch             = errors.New("auth: ip binding mismatch")
	ErrReused                 = errors.New("auth: refresh token reuse detected")
	ErrRotationFailed         = errors.New("auth: rotation failed")
	ErrInvalidTOTP            = errors.New("auth: invalid one-time code")
	ErrWeakPassword           = errors.New("auth: password too weak")
	ErrRateLimited            = errors.New("auth: rate limited")
	ErrNotAllowed             = errors.New("auth: not allowed")
	ErrUnknown                = errors.New("auth: unknown failure")
)
