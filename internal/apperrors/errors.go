package apperrors

import (
	"errors"
)

// Credential validation errors
// Returned by the validate package before any network call is made
var (
	ErrMissingUsername  = errors.New("username must not be empty")
	ErrUsernameTooShort = errors.New("username is too short")
	ErrMissingPassword  = errors.New("password must not be empty")
	ErrPasswordTooShort = errors.New("password is too short")
)

// Session lifecycle errors
var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrNoSession          = errors.New("no session stored")
	ErrNoRefreshToken     = errors.New("no refresh token available")
	ErrRefreshFailed      = errors.New("token refresh failed")
	ErrStoreUnavailable   = errors.New("session store unavailable")
	ErrNetworkUnreachable = errors.New("network unreachable")
	ErrRateLimited        = errors.New("rate limited")
)

// Backend-side errors
var (
	ErrUserAlreadyExists = errors.New("user already exists")
	ErrUserNotFound      = errors.New("user not found")

	ErrSessionRecordNotFound = errors.New("session record not found")
	ErrRefreshTokenExpired   = errors.New("refresh token is expired")
	ErrRefreshTokenReused    = errors.New("refresh token reuse detected")
)
