package session

import (
	"context"
	"testing"
	"time"

	"ruangkelas/internal/auth"
	"ruangkelas/pkg/interfaces"
	"ruangkelas/pkg/types"
)

type mockDirectory struct {
	users map[int64]*types.User
}

func (m *mockDirectory) GetUser(ctx context.Context, userID int64) (*types.User, error) {
	if u, ok := m.users[userID]; ok {
		return u, nil
	}
	return nil, interfaces.ErrNotFound
}

func (m *mockDirectory) GetUserByName(ctx context.Context, name string) (*types.User, error) {
	for _, u := range m.users {
		if u.Name == name {
			return u, nil
		}
	}
	return nil, interfaces.ErrNotFound
}

var testSecret = []byte("0123456789abcdef0123456789abcdef")

func newTestManager(t *testing.T, ttl time.Duration) (*Manager, *mockDirectory) {
	t.Helper()
	hash, err := auth.HashPassword("rahasia123")
	if err != nil {
		t.Fatalf("HashPassword failed: %v", err)
	}
	dir := &mockDirectory{users: map[int64]*types.User{
		1: {ID: 1, Name: "Bu Sari", Role: types.RoleTeacher, PasswordHash: hash},
		2: {ID: 2, Name: "Budi", Role: types.RoleStudent, PasswordHash: hash},
	}}
	m, err := NewManager(dir, testSecret, ttl)
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}
	return m, dir
}

func TestNewManager_RequiresSecret(t *testing.T) {
	if _, err := NewManager(&mockDirectory{}, nil, time.Hour); err != ErrMissingSecret {
		t.Errorf("got %v, want ErrMissingSecret", err)
	}
}

func TestManager_LoginAndAuthenticate(t *testing.T) {
	m, _ := newTestManager(t, time.Hour)
	ctx := context.Background()

	token, user, err := m.Login(ctx, " Budi ", "rahasia123")
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	if user.ID != 2 {
		t.Errorf("logged in as %d", user.ID)
	}

	got, err := m.Authenticate(ctx, token)
	if err != nil {
		t.Fatalf("Authenticate failed: %v", err)
	}
	if got.ID != 2 || got.Role != types.RoleStudent || got.Name != "Budi" {
		t.Errorf("authenticated user = %+v", got)
	}
}

func TestManager_LoginFailures(t *testing.T) {
	m, _ := newTestManager(t, time.Hour)
	ctx := context.Background()

	if _, _, err := m.Login(ctx, "Budi", "salah-sandi"); err != ErrInvalidLogin {
		t.Errorf("wrong password: got %v", err)
	}
	if _, _, err := m.Login(ctx, "Nobody", "rahasia123"); err != ErrInvalidLogin {
		t.Errorf("unknown user: got %v", err)
	}
}

func TestManager_AuthenticateFailuresCollapse(t *testing.T) {
	m, dir := newTestManager(t, time.Hour)
	ctx := context.Background()

	otherSecret, _ := auth.IssueToken([]byte("another-secret-entirely"), auth.Claims{UserID: 2, Role: types.RoleStudent, IssuedAt: time.Now().UnixMilli()})
	ghost, _ := auth.IssueToken(testSecret, auth.Claims{UserID: 99, Role: types.RoleStudent, IssuedAt: time.Now().UnixMilli()})
	promoted, _ := auth.IssueToken(testSecret, auth.Claims{UserID: 2, Role: types.RolePrincipal, IssuedAt: time.Now().UnixMilli()})

	for name, token := range map[string]string{
		"empty":        "",
		"garbage":      "not-a-token",
		"wrong secret": otherSecret,
		"unknown user": ghost,
		"role forged":  promoted,
	} {
		t.Run(name, func(t *testing.T) {
			if _, err := m.Authenticate(ctx, token); err != ErrAuthenticationFailed {
				t.Errorf("got %v, want ErrAuthenticationFailed", err)
			}
		})
	}

	// A role change in the directory invalidates old tokens
	token, _ := m.IssueToken(ctx, 2)
	dir.users[2].Role = types.RoleTeacher
	if _, err := m.Authenticate(ctx, token); err != ErrAuthenticationFailed {
		t.Errorf("stale role: got %v", err)
	}
}

func TestManager_TokenExpiry(t *testing.T) {
	m, _ := newTestManager(t, time.Hour)
	ctx := context.Background()
	start := time.Date(2024, 7, 15, 7, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return start }

	token, err := m.IssueToken(ctx, 1)
	if err != nil {
		t.Fatalf("IssueToken failed: %v", err)
	}

	m.now = func() time.Time { return start.Add(59 * time.Minute) }
	if _, err := m.Authenticate(ctx, token); err != nil {
		t.Errorf("fresh token rejected: %v", err)
	}

	m.now = func() time.Time { return start.Add(61 * time.Minute) }
	if _, err := m.Authenticate(ctx, token); err != ErrAuthenticationFailed {
		t.Errorf("expired token: got %v", err)
	}
}

func TestManager_IssueTokenUnknownUser(t *testing.T) {
	m, _ := newTestManager(t, 0)
	if _, err := m.IssueToken(context.Background(), 77); err != ErrUserNotFound {
		t.Errorf("got %v, want ErrUserNotFound", err)
	}
}
