package router

import "errors"

// Router error types
var (
	ErrUnknownFrameType  = errors.New("unknown frame type")
	ErrMalformedFrame    = errors.New("malformed frame")
	ErrRateLimitExceeded = errors.New("rate limit exceeded")
)

// MalformedError carries the client-facing reason a frame was rejected
type MalformedError struct {
	Reason string
}

func (e *MalformedError) Error() string {
	return "malformed frame: " + e.Reason
}

// Is lets errors.Is(err, ErrMalformedFrame) match every MalformedError
func (e *MalformedError) Is(target error) bool {
	return target == ErrMalformedFrame
}

func malformed(reason string) error {
	return &MalformedError{Reason: reason}
}
