package interfaces

import "ruangkelas/pkg/types"

// Connection represents a live client socket handle
// ARCHITECTURAL DISCOVERY: Pure abstraction without implementation details
// lets the registry, hub and presence tracker run against fakes in tests
type Connection interface {
	// ID returns a process-unique identifier for this socket
	ID() string

	// WriteJSON queues a JSON frame for the client without blocking the caller.
	// FUNCTIONAL DISCOVERY: Implementations must serialize writes (single writer)
	// and fail fast when the outbound buffer is full
	WriteJSON(v interface{}) error

	// Close closes the connection and cleans up resources; safe to call repeatedly
	Close() error

	// IsOpen reports whether the transport is still in the open state
	IsOpen() bool

	// GetUserID returns the authenticated user's ID (0 before authentication)
	GetUserID() int64

	// GetRole returns the authenticated user's role
	GetRole() types.Role

	// GetName returns the display name resolved at handshake time
	GetName() string

	// IsAuthenticated returns true once SetCredentials succeeded
	IsAuthenticated() bool

	// SetCredentials binds the connection to exactly one authenticated user
	SetCredentials(user *types.User) error
}
