package common

import "errors"

// Domain errors surfaced by the session manager and the user directory.
// Callers branch with errors.Is; messages never include token or code values.
var (
	ErrInvalidOtp          = errors.New("invalid otp")
	ErrUserNotFound        = errors.New("user not found")
	ErrDuplicatePhone      = errors.New("phone already registered")
	ErrInvalidRefreshToken = errors.New("invalid refresh token")
	ErrSessionExpired      = errors.New("session expired")
	ErrTokenRevoked        = errors.New("token revoked")
	ErrUnauthorized        = errors.New("unauthorized")
)
