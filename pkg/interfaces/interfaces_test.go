package interfaces_test

import (
	"context"
	"testing"

	"ruangkelas/pkg/interfaces"
	"ruangkelas/pkg/types"
)

// Mock implementations for testing

type mockConnection struct{}

func (m *mockConnection) ID() string                            { return "" }
func (m *mockConnection) WriteJSON(v interface{}) error         { return nil }
func (m *mockConnection) Close() error                          { return nil }
func (m *mockConnection) IsOpen() bool                          { return false }
func (m *mockConnection) GetUserID() int64                      { return 0 }
func (m *mockConnection) GetRole() types.Role                   { return "" }
func (m *mockConnection) GetName() string                       { return "" }
func (m *mockConnection) IsAuthenticated() bool                 { return false }
func (m *mockConnection) SetCredentials(user *types.User) error { return nil }

type mockDB struct{}

func (m *mockDB) GetUser(ctx context.Context, userID int64) (*types.User, error) { return nil, nil }
func (m *mockDB) GetUserByName(ctx context.Context, name string) (*types.User, error) {
	return nil, nil
}
func (m *mockDB) GetRoom(ctx context.Context, roomID int64) (*types.Room, error) { return nil, nil }
func (m *mockDB) GetMaterial(ctx context.Context, materialID int64) (*types.Material, error) {
	return nil, nil
}
func (m *mockDB) CreateUser(ctx context.Context, user *types.User) error { return nil }
func (m *mockDB) UpdateUserPassword(ctx context.Context, userID int64, passwordHash string) error {
	return nil
}
func (m *mockDB) ListUsers(ctx context.Context) ([]*types.User, error)               { return nil, nil }
func (m *mockDB) CreateRoom(ctx context.Context, room *types.Room) error             { return nil }
func (m *mockDB) ListRooms(ctx context.Context) ([]*types.Room, error)               { return nil, nil }
func (m *mockDB) CreateMaterial(ctx context.Context, material *types.Material) error { return nil }
func (m *mockDB) ListMaterials(ctx context.Context, roomID int64) ([]*types.Material, error) {
	return nil, nil
}
func (m *mockDB) HealthCheck(ctx context.Context) error { return nil }
func (m *mockDB) Close() error                          { return nil }

type mockSink struct{}

func (m *mockSink) Connect(conn interfaces.Connection, topic *types.TopicKey) error { return nil }
func (m *mockSink) Receive(conn interfaces.Connection, data []byte) error           { return nil }
func (m *mockSink) Disconnect(conn interfaces.Connection) error                     { return nil }

// Architectural Validation Tests - Ensure interfaces are properly defined

func TestInterfaces_ArchitecturalCompliance(t *testing.T) {
	var _ interfaces.Connection = &mockConnection{}
	var _ interfaces.DatabaseManager = &mockDB{}
	var _ interfaces.UserDirectory = &mockDB{}
	var _ interfaces.Catalog = &mockDB{}
	var _ interfaces.EventSink = &mockSink{}
}

// DatabaseManager must be usable wherever only the read-only directory is needed
func TestDatabaseManager_NarrowsToDirectory(t *testing.T) {
	var db interfaces.DatabaseManager = &mockDB{}
	var dir interfaces.UserDirectory = db
	ctx := context.Background()

	if _, err := dir.GetUser(ctx, 1); err != nil {
		t.Errorf("GetUser through narrowed interface failed: %v", err)
	}
}
