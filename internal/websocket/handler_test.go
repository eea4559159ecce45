package websocket

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"ruangkelas/pkg/interfaces"
	"ruangkelas/pkg/types"
)

type mockAuthenticator struct {
	users map[string]*types.User
}

func (m *mockAuthenticator) Authenticate(ctx context.Context, token string) (*types.User, error) {
	if user, ok := m.users[token]; ok {
		return user, nil
	}
	return nil, errors.New("bad token")
}

type recordingSink struct {
	mu           sync.Mutex
	connected    []*types.TopicKey
	received     []string
	disconnected int
	events       chan string
	receiveErr   error
}

func newRecordingSink() *recordingSink {
	return &recordingSink{events: make(chan string, 16)}
}

func (s *recordingSink) Connect(conn interfaces.Connection, topic *types.TopicKey) error {
	s.mu.Lock()
	s.connected = append(s.connected, topic)
	s.mu.Unlock()
	s.events <- "connect"
	return conn.WriteJSON(types.ConnectedFrame{Type: types.OutboundConnected, User: types.OnlineUser{ID: conn.GetUserID(), Name: conn.GetName(), Role: conn.GetRole()}})
}

func (s *recordingSink) Receive(conn interfaces.Connection, data []byte) error {
	s.mu.Lock()
	s.received = append(s.received, string(data))
	err := s.receiveErr
	s.mu.Unlock()
	s.events <- "receive"
	return err
}

func (s *recordingSink) Disconnect(conn interfaces.Connection) error {
	s.mu.Lock()
	s.disconnected++
	s.mu.Unlock()
	s.events <- "disconnect"
	return nil
}

func (s *recordingSink) waitFor(t *testing.T, event string) {
	t.Helper()
	for {
		select {
		case got := <-s.events:
			if got == event {
				return
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for %s", event)
		}
	}
}

func newTestHandlerServer(t *testing.T, sink *recordingSink, opts Options) *httptest.Server {
	t.Helper()
	auth := &mockAuthenticator{users: map[string]*types.User{
		"good": {ID: 11, Name: "Budi", Role: types.RoleStudent},
	}}
	handler := NewHandler(auth, sink, opts)
	server := httptest.NewServer(http.HandlerFunc(handler.HandleWebSocket))
	t.Cleanup(server.Close)
	return server
}

func wsURL(server *httptest.Server, query string) string {
	return "ws" + strings.TrimPrefix(server.URL, "http") + "/ws" + query
}

// Functional Validation Tests

func TestHandler_AuthenticationFailureSendsErrorAndCloses(t *testing.T) {
	sink := newRecordingSink()
	server := newTestHandlerServer(t, sink, Options{})

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(server, "?token=forged&kelas=1"), nil)
	if err != nil {
		t.Fatalf("upgrade should succeed even for bad tokens: %v", err)
	}
	defer conn.Close()

	var frame types.ErrorFrame
	if err := conn.ReadJSON(&frame); err != nil {
		t.Fatalf("expected error frame: %v", err)
	}
	if frame.Type != "error" || frame.Message != "Authentication failed" {
		t.Errorf("frame = %+v", frame)
	}

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, _, err := conn.ReadMessage(); err == nil {
		t.Error("connection should be closed after auth failure")
	}

	sink.mu.Lock()
	defer sink.mu.Unlock()
	if len(sink.connected) != 0 {
		t.Error("unauthenticated socket reached the sink")
	}
}

func TestHandler_MissingTokenIsRejected(t *testing.T) {
	sink := newRecordingSink()
	server := newTestHandlerServer(t, sink, Options{})

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(server, ""), nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	defer conn.Close()

	var frame types.ErrorFrame
	if err := conn.ReadJSON(&frame); err != nil || frame.Message != "Authentication failed" {
		t.Errorf("frame = %+v, err = %v", frame, err)
	}
}

func TestHandler_ConnectReceiveDisconnect(t *testing.T) {
	sink := newRecordingSink()
	server := newTestHandlerServer(t, sink, Options{})

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(server, "?token=good&materi=4"), nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}

	sink.waitFor(t, "connect")

	var connected types.ConnectedFrame
	if err := conn.ReadJSON(&connected); err != nil {
		t.Fatalf("read connected frame: %v", err)
	}
	if connected.User.ID != 11 || connected.User.Name != "Budi" {
		t.Errorf("connected frame = %+v", connected)
	}

	sink.mu.Lock()
	topic := sink.connected[0]
	sink.mu.Unlock()
	if topic == nil || *topic != types.MaterialTopic(4) {
		t.Errorf("topic = %v, want material:4", topic)
	}

	if err := conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"ping"}`)); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	sink.waitFor(t, "receive")

	_ = conn.Close()
	sink.waitFor(t, "disconnect")
}

func TestHandler_BusySinkSendsErrorFrame(t *testing.T) {
	sink := newRecordingSink()
	sink.receiveErr = fmt.Errorf("queue full: %w", interfaces.ErrBusy)
	server := newTestHandlerServer(t, sink, Options{})

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(server, "?token=good&kelas=1"), nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	defer conn.Close()

	var connected types.ConnectedFrame
	if err := conn.ReadJSON(&connected); err != nil {
		t.Fatalf("read connected frame: %v", err)
	}

	if err := conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"chat","isi":"halo"}`)); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	sink.waitFor(t, "receive")

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var frame types.ErrorFrame
	if err := conn.ReadJSON(&frame); err != nil {
		t.Fatalf("expected busy error frame: %v", err)
	}
	if frame.Type != "error" || frame.Message != busyMessage {
		t.Errorf("frame = %+v", frame)
	}
}

func TestHandler_TokenFromCookie(t *testing.T) {
	sink := newRecordingSink()
	server := newTestHandlerServer(t, sink, Options{})

	header := http.Header{}
	header.Set("Cookie", SessionCookieName+"=good")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL(server, ""), header)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	defer conn.Close()

	sink.waitFor(t, "connect")
	sink.mu.Lock()
	defer sink.mu.Unlock()
	if sink.connected[0] != nil {
		t.Errorf("no topic requested, got %v", sink.connected[0])
	}
}

func TestHandler_InvalidTopicParameters(t *testing.T) {
	sink := newRecordingSink()
	server := newTestHandlerServer(t, sink, Options{})

	for _, query := range []string{"?token=good&kelas=abc", "?token=good&kelas=0", "?token=good&kelas=1&materi=2"} {
		_, resp, err := websocket.DefaultDialer.Dial(wsURL(server, query), nil)
		if err == nil {
			t.Errorf("%s: expected handshake failure", query)
			continue
		}
		if resp == nil || resp.StatusCode != http.StatusBadRequest {
			t.Errorf("%s: expected 400, got %v", query, resp)
		}
	}
}

func TestTopicFromRequest(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/ws?kelas=3", nil)
	topic, err := TopicFromRequest(r)
	if err != nil || topic == nil || *topic != types.RoomTopic(3) {
		t.Errorf("TopicFromRequest = %v, %v", topic, err)
	}
}

// Technical Validation Tests

func TestHandler_PongTimeoutUnregisters(t *testing.T) {
	sink := newRecordingSink()
	server := newTestHandlerServer(t, sink, Options{PingInterval: 50 * time.Millisecond, PongTimeout: 50 * time.Millisecond})

	dialer := websocket.Dialer{}
	conn, _, err := dialer.Dial(wsURL(server, "?token=good"), nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	defer conn.Close()

	// Swallow pings without answering; the client never reads so gorilla's
	// default ping handler never runs either
	conn.SetPingHandler(func(string) error { return nil })

	sink.waitFor(t, "connect")
	sink.waitFor(t, "disconnect")
}
