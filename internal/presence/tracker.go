package presence

import (
	"context"

	"ruangkelas/internal/logging"
	"ruangkelas/pkg/interfaces"
	"ruangkelas/pkg/types"
)

// UnknownName is shown when a directory lookup fails
const UnknownName = "Unknown"

var log = logging.ForService("presence")

// Index is the read side of the connection registry the tracker needs
type Index interface {
	OnlineUserIDs() []int64
	UserRole(userID int64) (types.Role, bool)
}

// Tracker derives the online-user list from the registry's user index
// FUNCTIONAL DISCOVERY: Presence is never stored separately; it is the set of
// users with at least one live connection, resolved against the directory
type Tracker struct {
	index     Index
	directory interfaces.UserDirectory
}

// NewTracker creates a presence tracker
func NewTracker(index Index, directory interfaces.UserDirectory) *Tracker {
	return &Tracker{index: index, directory: directory}
}

// OnlineUsers lists every online user in the order they came online
func (t *Tracker) OnlineUsers(ctx context.Context) []types.OnlineUser {
	ids := t.index.OnlineUserIDs()
	users := make([]types.OnlineUser, 0, len(ids))
	for _, id := range ids {
		users = append(users, t.Resolve(ctx, id))
	}
	return users
}

// Resolve describes one user, degrading to "Unknown" when the directory misses
func (t *Tracker) Resolve(ctx context.Context, userID int64) types.OnlineUser {
	role, _ := t.index.UserRole(userID)

	user, err := t.directory.GetUser(ctx, userID)
	if err != nil || user == nil {
		if err != nil {
			log.Debugf("Directory lookup for user %d failed: %v", userID, err)
		}
		return types.OnlineUser{ID: userID, Name: UnknownName, Role: role}
	}
	return types.OnlineUser{ID: user.ID, Name: user.Name, Role: user.Role}
}
