package websocket

import "errors"

// Connection-related errors
var (
	ErrConnectionClosed = errors.New("connection closed")
	ErrSendBufferFull   = errors.New("send buffer full, frame dropped")
	ErrInvalidJSON      = errors.New("invalid JSON data")
	ErrNilUser          = errors.New("credentials require a user")
)

// Handler-related errors
var (
	ErrInvalidTopicParameter = errors.New("kelas and materi must be positive integers and are mutually exclusive")
	ErrAuthenticationFailed  = errors.New("authentication failed")
)
