package router

import (
	"errors"
	"strings"
	"testing"
	"time"

	"ruangkelas/pkg/types"
)

// Functional Validation Tests - Decode

func TestRouter_DecodeChat(t *testing.T) {
	r := NewRouter(nil)

	cmd, err := r.Decode([]byte(`{"type":"chat","isi":"  Selamat pagi  ","kelas":3}`))
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	chat, ok := cmd.(types.ChatCommand)
	if !ok {
		t.Fatalf("got %T, want ChatCommand", cmd)
	}
	if chat.Text != "Selamat pagi" {
		t.Errorf("text not trimmed: %q", chat.Text)
	}
	if chat.Topic == nil || *chat.Topic != types.RoomTopic(3) {
		t.Errorf("topic = %v", chat.Topic)
	}
}

func TestRouter_DecodeMaterialMessage(t *testing.T) {
	r := NewRouter(nil)

	cmd, err := r.Decode([]byte(`{"type":"message","content":"Apa itu pecahan?","materiId":12}`))
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	chat := cmd.(types.ChatCommand)
	if chat.Text != "Apa itu pecahan?" || *chat.Topic != types.MaterialTopic(12) {
		t.Errorf("got %+v", chat)
	}
}

func TestRouter_DecodeWithoutTopicUsesCurrent(t *testing.T) {
	r := NewRouter(nil)

	cmd, err := r.Decode([]byte(`{"type":"chat","isi":"hai"}`))
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if cmd.(types.ChatCommand).Topic != nil {
		t.Error("topic should be nil when the frame names none")
	}
}

func TestRouter_DecodeHistoryAndPing(t *testing.T) {
	r := NewRouter(nil)

	cmd, err := r.Decode([]byte(`{"type":"history_request","materiId":4}`))
	if err != nil {
		t.Fatalf("history decode failed: %v", err)
	}
	if h := cmd.(types.HistoryCommand); *h.Topic != types.MaterialTopic(4) {
		t.Errorf("history topic = %v", h.Topic)
	}

	cmd, err = r.Decode([]byte(`{"type":"ping"}`))
	if err != nil {
		t.Fatalf("ping decode failed: %v", err)
	}
	if _, ok := cmd.(types.PingCommand); !ok {
		t.Errorf("got %T, want PingCommand", cmd)
	}
}

func TestRouter_DecodeUnknownType(t *testing.T) {
	r := NewRouter(nil)

	if _, err := r.Decode([]byte(`{"type":"quiz_answer"}`)); err != ErrUnknownFrameType {
		t.Errorf("got %v, want ErrUnknownFrameType", err)
	}
}

func TestRouter_DecodeMalformed(t *testing.T) {
	r := NewRouter(nil)

	tests := []struct {
		name   string
		frame  string
		reason string
	}{
		{"invalid json", `{"type":`, "invalid JSON"},
		{"missing text", `{"type":"chat","kelas":1}`, "isi is required"},
		{"blank text", `{"type":"chat","isi":"   "}`, "cannot be blank"},
		{"too long", `{"type":"chat","isi":"` + strings.Repeat("a", MaxTextLength+1) + `"}`, "maximum"},
		{"both topics", `{"type":"chat","isi":"x","kelas":1,"materiId":1}`, "mutually exclusive"},
		{"zero room", `{"type":"history_request","kelas":0}`, "positive"},
		{"negative material", `{"type":"message","isi":"x","materiId":-2}`, "positive"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := r.Decode([]byte(tt.frame))
			if !errors.Is(err, ErrMalformedFrame) {
				t.Fatalf("got %v, want ErrMalformedFrame", err)
			}
			var me *MalformedError
			if !errors.As(err, &me) || !strings.Contains(me.Reason, tt.reason) {
				t.Errorf("reason = %q, want it to contain %q", me.Reason, tt.reason)
			}
		})
	}
}

func TestRouter_DecodeLengthBoundary(t *testing.T) {
	r := NewRouter(nil)

	if _, err := r.Decode([]byte(`{"type":"chat","isi":"` + strings.Repeat("é", MaxTextLength) + `"}`)); err != nil {
		t.Errorf("text of exactly %d characters rejected: %v", MaxTextLength, err)
	}

	_, err := r.Decode([]byte(`{"type":"chat","isi":"` + strings.Repeat("é", MaxTextLength+1) + `"}`))
	var me *MalformedError
	if !errors.As(err, &me) {
		t.Fatalf("text of %d characters accepted: %v", MaxTextLength+1, err)
	}
	if !strings.Contains(me.Reason, "maximum") {
		t.Errorf("reason = %q, want a maximum length message", me.Reason)
	}
}

// Functional Validation Tests - RateLimiter

func TestRateLimiter_WindowAndReset(t *testing.T) {
	now := time.Date(2024, 7, 15, 8, 0, 0, 0, time.UTC)
	rl := NewRateLimiter(3, 10*time.Second)
	rl.now = func() time.Time { return now }

	for i := 0; i < 3; i++ {
		if !rl.Allow(1) {
			t.Fatalf("message %d should be allowed", i+1)
		}
	}
	if rl.Allow(1) {
		t.Error("fourth message inside the window should be refused")
	}
	if !rl.Allow(2) {
		t.Error("limits are per user")
	}

	now = now.Add(10 * time.Second)
	if !rl.Allow(1) {
		t.Error("new window should allow again")
	}
}

func TestRateLimiter_Cleanup(t *testing.T) {
	now := time.Now()
	rl := NewRateLimiter(5, time.Second)
	rl.now = func() time.Time { return now }

	rl.Allow(1)
	now = now.Add(6 * time.Second)
	rl.Allow(2)
	rl.Cleanup()

	if rl.Tracked() != 1 {
		t.Errorf("tracked = %d, want 1", rl.Tracked())
	}
}

func TestRouter_AllowDisabled(t *testing.T) {
	r := NewRouter(NewRateLimiter(0, time.Second))
	for i := 0; i < 100; i++ {
		if err := r.Allow(1); err != nil {
			t.Fatalf("disabled limiter refused message %d", i)
		}
	}
}

func TestRouter_AllowExceeded(t *testing.T) {
	r := NewRouter(NewRateLimiter(1, time.Minute))
	_ = r.Allow(1)
	if err := r.Allow(1); err != ErrRateLimitExceeded {
		t.Errorf("got %v, want ErrRateLimitExceeded", err)
	}
}
