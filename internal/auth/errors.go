package auth

import "errors"

var (
	ErrInvalidToken       = errors.New("invalid token")
	ErrInvalidClaims      = errors.New("claims need a positive user id and a known role")
	ErrExpiredToken       = errors.New("expired token")
	ErrTokenFromFuture    = errors.New("token issued in the future")
	ErrWeakPassword       = errors.New("password must be at least 8 characters")
	ErrInvalidCredentials = errors.New("invalid credentials")
)
