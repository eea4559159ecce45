package types

import "time"

// Inbound frame types accepted from clients.
// FUNCTIONAL DISCOVERY: "chat" is the room chat dialect, "message" the material
// discussion dialect; both are normalized into one ChatCommand by the router
const (
	InboundChat           = "chat"
	InboundMessage        = "message"
	InboundHistoryRequest = "history_request"
	InboundPing           = "ping"
)

// Outbound frame types sent to clients
const (
	OutboundConnected   = "connected"
	OutboundOnlineUsers = "online_users"
	OutboundHistory     = "history"
	OutboundNewMessage  = "new_message"
	OutboundChat        = "chat"
	OutboundUserJoined  = "user_joined"
	OutboundPong        = "pong"
	OutboundError       = "error"
)

// InboundFrame is the raw wire shape of a client frame before it is narrowed
// into a Command. Pointer fields distinguish "absent" from zero values.
type InboundFrame struct {
	Type     string  `json:"type"`
	Content  *string `json:"content,omitempty"`
	Isi      *string `json:"isi,omitempty"`
	Kelas    *int64  `json:"kelas,omitempty"`
	MateriID *int64  `json:"materiId,omitempty"`
}

// Command is the tagged union produced by decoding an InboundFrame
type Command interface {
	commandType() string
}

// ChatCommand posts text to a topic. Topic is nil when the frame named no topic
// and the connection's current topic should be used.
type ChatCommand struct {
	Topic *TopicKey
	Text  string
}

// HistoryCommand joins a topic (if needed) and replays its recent history
type HistoryCommand struct {
	Topic *TopicKey
}

// PingCommand asks for an application-level pong
type PingCommand struct{}

func (ChatCommand) commandType() string    { return InboundChat }
func (HistoryCommand) commandType() string { return InboundHistoryRequest }
func (PingCommand) commandType() string    { return InboundPing }

// MessageView is the outbound rendering of a DiscussionEntry with the author resolved
type MessageView struct {
	ID        int64     `json:"id"`
	Topic     TopicKind `json:"topic"`
	Kelas     *int64    `json:"kelas,omitempty"`
	MateriID  *int64    `json:"materi_id,omitempty"`
	UserID    int64     `json:"user_id"`
	UserNama  string    `json:"user_nama"`
	UserRole  Role      `json:"user_role"`
	Isi       string    `json:"isi"`
	CreatedAt time.Time `json:"created_at"`
}

// ConnectedFrame acknowledges a successful handshake
type ConnectedFrame struct {
	Type string     `json:"type"`
	User OnlineUser `json:"user"`
}

// OnlineUsersFrame carries the full presence list
type OnlineUsersFrame struct {
	Type  string       `json:"type"`
	Users []OnlineUser `json:"users"`
}

// UserJoinedFrame carries the presence delta plus the full list
type UserJoinedFrame struct {
	Type  string       `json:"type"`
	User  OnlineUser   `json:"user"`
	Users []OnlineUser `json:"users"`
}

// HistoryFrame replays the recent entries of one topic
type HistoryFrame struct {
	Type     string        `json:"type"`
	Topic    TopicKind     `json:"topic"`
	Kelas    *int64        `json:"kelas,omitempty"`
	MateriID *int64        `json:"materi_id,omitempty"`
	Messages []MessageView `json:"messages"`
}

// MessageFrame carries one broadcast entry (type "chat" or "new_message")
type MessageFrame struct {
	Type    string      `json:"type"`
	Message MessageView `json:"message"`
}

// PongFrame answers an application-level ping
type PongFrame struct {
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`
}

// ErrorFrame reports authentication failures and malformed input
type ErrorFrame struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// NewErrorFrame builds an error frame with the given message
func NewErrorFrame(message string) ErrorFrame {
	return ErrorFrame{Type: OutboundError, Message: message}
}

// TopicRefs splits a topic into the kelas / materi_id wire fields
func TopicRefs(topic TopicKey) (kelas *int64, materiID *int64) {
	id := topic.ID
	if topic.Kind == TopicRoom {
		return &id, nil
	}
	return nil, &id
}

// NewMessageView renders an entry with an already-resolved author name
func NewMessageView(entry DiscussionEntry, authorName string) MessageView {
	kelas, materiID := TopicRefs(entry.Topic)
	return MessageView{
		ID:        entry.ID,
		Topic:     entry.Topic.Kind,
		Kelas:     kelas,
		MateriID:  materiID,
		UserID:    entry.AuthorID,
		UserNama:  authorName,
		UserRole:  entry.AuthorRole,
		Isi:       entry.Text,
		CreatedAt: entry.CreatedAt,
	}
}
