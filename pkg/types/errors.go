package types

import "errors"

// ARCHITECTURAL DISCOVERY: Specific error types enable proper error handling
// and user-friendly error messages throughout the system
var (
	ErrInvalidRole      = errors.New("role must be one of principal, teacher, student")
	ErrInvalidTopic     = errors.New("topic must be room:<id> or material:<id> with a positive id")
	ErrInvalidUserName  = errors.New("user name must be 1-100 characters")
	ErrInvalidRoomName  = errors.New("room name must be 1-200 characters")
	ErrInvalidTitle     = errors.New("material title must be 1-200 characters")
	ErrInvalidReference = errors.New("referenced id must be positive")
)
