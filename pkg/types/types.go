package types

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Role is the school role carried by a user and by every session token.
type Role string

// ARCHITECTURAL DISCOVERY: Role constants are shared by the token payload, the user
// directory and the RBAC table so a role string never has two spellings
const (
	RolePrincipal Role = "principal"
	RoleTeacher   Role = "teacher"
	RoleStudent   Role = "student"
)

// ParseRole converts a raw role string, rejecting anything outside the three school roles
func ParseRole(s string) (Role, error) {
	switch Role(strings.ToLower(strings.TrimSpace(s))) {
	case RolePrincipal:
		return RolePrincipal, nil
	case RoleTeacher:
		return RoleTeacher, nil
	case RoleStudent:
		return RoleStudent, nil
	default:
		return "", ErrInvalidRole
	}
}

// Valid reports whether r is one of the known roles
func (r Role) Valid() bool {
	switch r {
	case RolePrincipal, RoleTeacher, RoleStudent:
		return true
	default:
		return false
	}
}

// TopicKind separates room chat from material discussion
type TopicKind string

const (
	TopicRoom     TopicKind = "room"
	TopicMaterial TopicKind = "material"
)

// TopicKey identifies a room or material discussion.
// FUNCTIONAL DISCOVERY: Explicit kind tag keeps room 7 and material 7 apart
// without encoding materials as negative ids
type TopicKey struct {
	Kind TopicKind `json:"kind"`
	ID   int64     `json:"id"`
}

// RoomTopic returns the topic key for a room chat
func RoomTopic(roomID int64) TopicKey {
	return TopicKey{Kind: TopicRoom, ID: roomID}
}

// MaterialTopic returns the topic key for a material discussion
func MaterialTopic(materialID int64) TopicKey {
	return TopicKey{Kind: TopicMaterial, ID: materialID}
}

// Valid reports whether the key has a known kind and a positive id
func (k TopicKey) Valid() bool {
	return (k.Kind == TopicRoom || k.Kind == TopicMaterial) && k.ID > 0
}

func (k TopicKey) String() string {
	return fmt.Sprintf("%s:%d", k.Kind, k.ID)
}

// ParseTopicKey parses the "room:<id>" / "material:<id>" form produced by String
func ParseTopicKey(s string) (TopicKey, error) {
	kind, rawID, ok := strings.Cut(s, ":")
	if !ok {
		return TopicKey{}, ErrInvalidTopic
	}
	id, err := strconv.ParseInt(rawID, 10, 64)
	if err != nil {
		return TopicKey{}, ErrInvalidTopic
	}
	key := TopicKey{Kind: TopicKind(kind), ID: id}
	if !key.Valid() {
		return TopicKey{}, ErrInvalidTopic
	}
	return key, nil
}

// User is a member of the school directory
type User struct {
	ID           int64     `json:"id" db:"id"`
	Name         string    `json:"name" db:"name"`
	Role         Role      `json:"role" db:"role"`
	PasswordHash string    `json:"-" db:"password_hash"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
}

// Room is a class ("kelas") that owns a room chat
type Room struct {
	ID        int64     `json:"id" db:"id"`
	Name      string    `json:"name" db:"name"`
	TeacherID int64     `json:"teacher_id" db:"teacher_id"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// Material is a learning material ("materi") that owns a discussion thread
type Material struct {
	ID        int64     `json:"id" db:"id"`
	RoomID    int64     `json:"room_id" db:"room_id"`
	Title     string    `json:"title" db:"title"`
	Body      string    `json:"body" db:"body"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// DiscussionEntry is one chat or discussion message.
// FUNCTIONAL DISCOVERY: Entries are immutable once appended to the history store
type DiscussionEntry struct {
	ID         int64     `json:"id"`
	Topic      TopicKey  `json:"topic"`
	AuthorID   int64     `json:"author_id"`
	AuthorRole Role      `json:"author_role"`
	Text       string    `json:"text"`
	CreatedAt  time.Time `json:"created_at"`
}

// OnlineUser is one row of the presence list
type OnlineUser struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
	Role Role   `json:"role"`
}
