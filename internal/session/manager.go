package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"ruangkelas/internal/auth"
	"ruangkelas/internal/logging"
	"ruangkelas/pkg/interfaces"
	"ruangkelas/pkg/types"
)

var log = logging.ForService("session")

// Manager issues and checks session tokens against the user directory
// ARCHITECTURAL DISCOVERY: Stateless tokens mean the manager holds no session
// table; the directory stays the source of truth for names and roles
type Manager struct {
	directory interfaces.UserDirectory
	secret    []byte
	ttl       time.Duration
	now       func() time.Time
}

// NewManager creates a session manager. A non-positive ttl disables expiry.
func NewManager(directory interfaces.UserDirectory, secret []byte, ttl time.Duration) (*Manager, error) {
	if len(secret) == 0 {
		return nil, ErrMissingSecret
	}
	return &Manager{
		directory: directory,
		secret:    secret,
		ttl:       ttl,
		now:       time.Now,
	}, nil
}

// Login checks a name and password and issues a token for the user
func (m *Manager) Login(ctx context.Context, name, password string) (string, *types.User, error) {
	user, err := m.directory.GetUserByName(ctx, strings.TrimSpace(name))
	if err != nil {
		if errors.Is(err, interfaces.ErrNotFound) {
			return "", nil, ErrInvalidLogin
		}
		return "", nil, fmt.Errorf("lookup user: %w", err)
	}

	if err := auth.CheckPassword(user.PasswordHash, password); err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			return "", nil, ErrInvalidLogin
		}
		return "", nil, err
	}

	token, err := m.sign(user)
	if err != nil {
		return "", nil, err
	}
	log.Infof("User %d (%s) logged in", user.ID, user.Role)
	return token, user, nil
}

// IssueToken signs a token for an existing user without a password check
func (m *Manager) IssueToken(ctx context.Context, userID int64) (string, error) {
	user, err := m.directory.GetUser(ctx, userID)
	if err != nil {
		if errors.Is(err, interfaces.ErrNotFound) {
			return "", ErrUserNotFound
		}
		return "", fmt.Errorf("lookup user: %w", err)
	}
	return m.sign(user)
}

func (m *Manager) sign(user *types.User) (string, error) {
	return auth.IssueToken(m.secret, auth.Claims{
		UserID:   user.ID,
		Role:     user.Role,
		IssuedAt: m.now().UnixMilli(),
	})
}

// Authenticate resolves a token to its directory user
// FUNCTIONAL DISCOVERY: Every failure collapses into ErrAuthenticationFailed so
// clients cannot tell which check rejected them
func (m *Manager) Authenticate(ctx context.Context, token string) (*types.User, error) {
	user, err := m.authenticate(ctx, token)
	if err != nil {
		log.Debugf("Token rejected: %v", err)
		return nil, ErrAuthenticationFailed
	}
	return user, nil
}

func (m *Manager) authenticate(ctx context.Context, token string) (*types.User, error) {
	if token == "" {
		return nil, auth.ErrInvalidToken
	}

	claims, err := auth.ParseToken(m.secret, token)
	if err != nil {
		return nil, err
	}
	if err := auth.CheckFreshness(claims, m.ttl, m.now()); err != nil {
		return nil, err
	}

	user, err := m.directory.GetUser(ctx, claims.UserID)
	if err != nil {
		return nil, fmt.Errorf("lookup user %d: %w", claims.UserID, err)
	}
	if user.Role != claims.Role {
		return nil, fmt.Errorf("role changed for user %d: token %s, directory %s", user.ID, claims.Role, user.Role)
	}
	return user, nil
}
