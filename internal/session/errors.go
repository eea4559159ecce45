package session

import "errors"

// Session error types
var (
	// ErrAuthenticationFailed is the only error Authenticate returns to callers;
	// the underlying cause is logged, never exposed
	ErrAuthenticationFailed = errors.New("authentication failed")
	ErrInvalidLogin         = errors.New("invalid name or password")
	ErrUserNotFound         = errors.New("user not found")
	ErrMissingSecret        = errors.New("session secret must not be empty")
)
