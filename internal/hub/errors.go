package hub

import (
	"errors"
	"fmt"

	"ruangkelas/pkg/interfaces"
)

// Hub error types
var (
	ErrHubAlreadyRunning = errors.New("hub is already running")
	ErrHubNotRunning     = errors.New("hub is not running")
	ErrEventChannelFull  = fmt.Errorf("event channel is full: %w", interfaces.ErrBusy)
	ErrNilConnection     = errors.New("connection cannot be nil")
	ErrConnNotAuthorized = errors.New("connection is not authenticated")
)

// Client-facing error frame texts
const (
	msgTopicNotFound    = "Topic not found"
	msgNoTopic          = "Join a kelas or materi first"
	msgRateLimited      = "Too many messages, please slow down"
	msgNotAllowed       = "You are not allowed to post here"
	msgInvalidPrefix    = "Invalid message: "
	msgTopicUnavailable = "Topic is temporarily unavailable"
)
