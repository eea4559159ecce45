package database

import "errors"

var (
	ErrManagerClosed       = errors.New("database manager is closed")
	ErrWriteTimeout        = errors.New("write operation timeout")
	ErrMissingPasswordHash = errors.New("password hash is required")
	ErrNotATeacher         = errors.New("room teacher must be an existing user with the teacher role")
)
