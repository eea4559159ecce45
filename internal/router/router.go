package router

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"ruangkelas/internal/validate"
	"ruangkelas/pkg/types"
)

// MaxTextLength is the longest chat text accepted, in characters
const MaxTextLength = 2000

// Router turns raw client frames into commands and meters chat traffic
// ARCHITECTURAL DISCOVERY: Pure decoding and policy; delivery stays in the hub
type Router struct {
	rateLimiter *RateLimiter
}

// NewRouter creates a router with the given rate limiter (nil disables limiting)
func NewRouter(rateLimiter *RateLimiter) *Router {
	if rateLimiter == nil {
		rateLimiter = NewRateLimiter(0, 0)
	}
	return &Router{rateLimiter: rateLimiter}
}

// chatTextTag expands to the rules for chat text
const chatTextTag = "chat_text"

func init() {
	validate.Validate.RegisterAlias(chatTextTag, fmt.Sprintf("notblank,max=%d", MaxTextLength))
}

// textPayload is validated after trimming
type textPayload struct {
	Text string `json:"isi" validate:"chat_text"`
}

// Decode parses one text frame into a Command.
// Unknown frame types return ErrUnknownFrameType; every other rejection
// is a *MalformedError.
func (r *Router) Decode(data []byte) (types.Command, error) {
	var frame types.InboundFrame
	if err := json.Unmarshal(data, &frame); err != nil {
		return nil, malformed("invalid JSON")
	}

	switch frame.Type {
	case types.InboundChat, types.InboundMessage:
		topic, err := frameTopic(frame)
		if err != nil {
			return nil, err
		}
		text, err := frameText(frame)
		if err != nil {
			return nil, err
		}
		return types.ChatCommand{Topic: topic, Text: text}, nil

	case types.InboundHistoryRequest:
		topic, err := frameTopic(frame)
		if err != nil {
			return nil, err
		}
		return types.HistoryCommand{Topic: topic}, nil

	case types.InboundPing:
		return types.PingCommand{}, nil

	default:
		return nil, ErrUnknownFrameType
	}
}

// Allow applies the per-user chat rate limit
func (r *Router) Allow(userID int64) error {
	if !r.rateLimiter.Allow(userID) {
		return ErrRateLimitExceeded
	}
	return nil
}

// Cleanup drops idle rate limiter state
func (r *Router) Cleanup() {
	r.rateLimiter.Cleanup()
}

// frameTopic resolves the optional kelas / materiId fields
func frameTopic(frame types.InboundFrame) (*types.TopicKey, error) {
	switch {
	case frame.Kelas != nil && frame.MateriID != nil:
		return nil, malformed("kelas and materiId are mutually exclusive")
	case frame.Kelas != nil:
		key := types.RoomTopic(*frame.Kelas)
		if !key.Valid() {
			return nil, malformed("kelas must be a positive id")
		}
		return &key, nil
	case frame.MateriID != nil:
		key := types.MaterialTopic(*frame.MateriID)
		if !key.Valid() {
			return nil, malformed("materiId must be a positive id")
		}
		return &key, nil
	default:
		return nil, nil
	}
}

// frameText picks isi, falling back to content, then trims and validates it
func frameText(frame types.InboundFrame) (string, error) {
	raw := frame.Isi
	if raw == nil {
		raw = frame.Content
	}
	if raw == nil {
		return "", malformed("isi is required")
	}

	payload := textPayload{Text: strings.TrimSpace(*raw)}
	if err := validate.Struct(payload); err != nil {
		var fe validate.FieldErrors
		if errors.As(err, &fe) {
			return "", malformed(fe.Error())
		}
		return "", malformed(err.Error())
	}
	return payload.Text, nil
}
