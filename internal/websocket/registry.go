package websocket

import (
	"sync"

	"ruangkelas/pkg/interfaces"
	"ruangkelas/pkg/types"
)

// Registry indexes live connections by topic and by user
// ARCHITECTURAL DISCOVERY: Pure connection management without business logic
// maintains clean separation between connection tracking and connection operations
type Registry struct {
	mu         sync.RWMutex                                        // TECHNICAL DISCOVERY: RWMutex optimizes for read-heavy lookup patterns
	topics     map[types.TopicKey]map[string]interfaces.Connection // topic -> connID -> Connection
	connTopics map[string]map[types.TopicKey]struct{}              // connID -> joined topics, for O(topics) removal
	users      map[int64]map[string]interfaces.Connection          // userID -> connID -> Connection
	userOrder  []int64                                             // users in the order they came online
}

// NewRegistry creates a new connection registry
// FUNCTIONAL DISCOVERY: Initialize all maps to prevent nil pointer access during concurrent operations
func NewRegistry() *Registry {
	return &Registry{
		topics:     make(map[types.TopicKey]map[string]interfaces.Connection),
		connTopics: make(map[string]map[types.TopicKey]struct{}),
		users:      make(map[int64]map[string]interfaces.Connection),
	}
}

// Join subscribes a connection to a topic. Joining twice is a no-op.
func (r *Registry) Join(topic types.TopicKey, conn interfaces.Connection) {
	if conn == nil {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	members, ok := r.topics[topic]
	if !ok {
		members = make(map[string]interfaces.Connection)
		r.topics[topic] = members
	}
	members[conn.ID()] = conn

	joined, ok := r.connTopics[conn.ID()]
	if !ok {
		joined = make(map[types.TopicKey]struct{})
		r.connTopics[conn.ID()] = joined
	}
	joined[topic] = struct{}{}
}

// Leave unsubscribes a connection from a topic; empty topics are pruned
func (r *Registry) Leave(topic types.TopicKey, conn interfaces.Connection) {
	if conn == nil {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.leaveLocked(topic, conn.ID())
}

func (r *Registry) leaveLocked(topic types.TopicKey, connID string) {
	// TECHNICAL DISCOVERY: Clean up empty maps to prevent memory leaks
	if members, ok := r.topics[topic]; ok {
		delete(members, connID)
		if len(members) == 0 {
			delete(r.topics, topic)
		}
	}
	if joined, ok := r.connTopics[connID]; ok {
		delete(joined, topic)
		if len(joined) == 0 {
			delete(r.connTopics, connID)
		}
	}
}

// TrackUser records conn as one of userID's live connections.
// It reports true when this is the user's first live connection.
func (r *Registry) TrackUser(userID int64, conn interfaces.Connection) bool {
	if conn == nil {
		return false
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	conns, ok := r.users[userID]
	if !ok {
		conns = make(map[string]interfaces.Connection)
		r.users[userID] = conns
		r.userOrder = append(r.userOrder, userID)
	}
	conns[conn.ID()] = conn
	return !ok
}

// UntrackUser removes conn from userID's live connections.
// It reports true when the user has no live connections left.
func (r *Registry) UntrackUser(userID int64, conn interfaces.Connection) bool {
	if conn == nil {
		return false
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	return r.untrackLocked(userID, conn.ID())
}

func (r *Registry) untrackLocked(userID int64, connID string) bool {
	conns, ok := r.users[userID]
	if !ok {
		return false
	}
	if _, present := conns[connID]; !present {
		return false
	}
	delete(conns, connID)
	if len(conns) > 0 {
		return false
	}

	delete(r.users, userID)
	for i, id := range r.userOrder {
		if id == userID {
			r.userOrder = append(r.userOrder[:i], r.userOrder[i+1:]...)
			break
		}
	}
	return true
}

// Remove leaves every topic the connection joined and untracks its user.
// It returns the user id and whether that was the user's last connection.
// FUNCTIONAL DISCOVERY: Idempotent so both the read pump and shutdown can call it
func (r *Registry) Remove(conn interfaces.Connection) (int64, bool) {
	if conn == nil {
		return 0, false
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	connID := conn.ID()
	for topic := range r.connTopics[connID] {
		r.leaveLocked(topic, connID)
	}

	userID := conn.GetUserID()
	return userID, r.untrackLocked(userID, connID)
}

// TopicConnections returns a snapshot of the connections joined to a topic
func (r *Registry) TopicConnections(topic types.TopicKey) []interfaces.Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()

	members := r.topics[topic]
	conns := make([]interfaces.Connection, 0, len(members))
	for _, conn := range members {
		conns = append(conns, conn)
	}
	return conns
}

// IsJoined reports whether conn is subscribed to topic
func (r *Registry) IsJoined(topic types.TopicKey, conn interfaces.Connection) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, ok := r.topics[topic][conn.ID()]
	return ok
}

// AllConnections returns a snapshot of every tracked connection
func (r *Registry) AllConnections() []interfaces.Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var conns []interfaces.Connection
	for _, userID := range r.userOrder {
		for _, conn := range r.users[userID] {
			conns = append(conns, conn)
		}
	}
	return conns
}

// OnlineUserIDs returns the users with at least one live connection, in the
// order they came online
func (r *Registry) OnlineUserIDs() []int64 {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]int64, len(r.userOrder))
	copy(ids, r.userOrder)
	return ids
}

// UserRole returns the role carried by any of the user's live connections
func (r *Registry) UserRole(userID int64) (types.Role, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, conn := range r.users[userID] {
		return conn.GetRole(), true
	}
	return "", false
}

// GetStats returns registry statistics for monitoring and debugging
func (r *Registry) GetStats() map[string]int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	total := 0
	for _, conns := range r.users {
		total += len(conns)
	}

	return map[string]int{
		"total_connections": total,
		"online_users":      len(r.users),
		"active_topics":     len(r.topics),
	}
}
