package interfaces

import (
	"context"

	"ruangkelas/pkg/types"
)

// UserDirectory resolves users by id or name.
// FUNCTIONAL DISCOVERY: Read-only from the discussion subsystem's point of view;
// only the CLI and the HTTP API create users
type UserDirectory interface {
	GetUser(ctx context.Context, userID int64) (*types.User, error)
	GetUserByName(ctx context.Context, name string) (*types.User, error)
}

// Catalog resolves the rooms and materials that scope discussion topics
type Catalog interface {
	GetRoom(ctx context.Context, roomID int64) (*types.Room, error)
	GetMaterial(ctx context.Context, materialID int64) (*types.Material, error)
}

// DatabaseManager handles all persistence operations
// ARCHITECTURAL DISCOVERY: Single interface for all persistence operations
// enables consistent transaction handling and connection management
type DatabaseManager interface {
	UserDirectory
	Catalog

	// CreateUser persists a new user and fills in its ID
	CreateUser(ctx context.Context, user *types.User) error

	// UpdateUserPassword replaces the stored bcrypt hash
	UpdateUserPassword(ctx context.Context, userID int64, passwordHash string) error

	// ListUsers returns every user ordered by ID
	ListUsers(ctx context.Context) ([]*types.User, error)

	// CreateRoom persists a new room and fills in its ID
	CreateRoom(ctx context.Context, room *types.Room) error

	// ListRooms returns every room ordered by ID
	ListRooms(ctx context.Context) ([]*types.Room, error)

	// CreateMaterial persists a new material and fills in its ID
	CreateMaterial(ctx context.Context, material *types.Material) error

	// ListMaterials returns the materials of one room ordered by ID
	ListMaterials(ctx context.Context, roomID int64) ([]*types.Material, error)

	// HealthCheck verifies database connectivity and basic operations
	HealthCheck(ctx context.Context) error

	// Close closes the database connection and cleans up resources
	Close() error
}

// SessionAuthenticator turns a presented session token into a directory user
type SessionAuthenticator interface {
	Authenticate(ctx context.Context, token string) (*types.User, error)
}

// EventSink receives connection lifecycle events from the WebSocket layer.
// TECHNICAL DISCOVERY: Declared here so the websocket package never imports the hub
type EventSink interface {
	Connect(conn Connection, topic *types.TopicKey) error
	Receive(conn Connection, data []byte) error
	Disconnect(conn Connection) error
}
