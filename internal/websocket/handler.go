package websocket

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/websocket"

	"ruangkelas/internal/logging"
	"ruangkelas/pkg/interfaces"
	"ruangkelas/pkg/types"
)

// SessionCookieName carries the session token for browser clients
const SessionCookieName = "ruangkelas_session"

// authFailedMessage is the exact text clients match on
const authFailedMessage = "Authentication failed"

// busyMessage tells the client its frame was dropped under load
const busyMessage = "Server busy, message dropped"

var log = logging.ForService("websocket")

// Handler upgrades authenticated requests and feeds their frames to an EventSink
// ARCHITECTURAL DISCOVERY: Clean separation of WebSocket handling from business logic;
// the handler owns sockets, the sink owns registry, history and presence
type Handler struct {
	auth     interfaces.SessionAuthenticator
	sink     interfaces.EventSink
	opts     Options
	upgrader websocket.Upgrader
}

// NewHandler creates a new WebSocket handler with dependency injection
func NewHandler(auth interfaces.SessionAuthenticator, sink interfaces.EventSink, opts Options) *Handler {
	return &Handler{
		auth: auth,
		sink: sink,
		opts: opts.withDefaults(),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				// FUNCTIONAL DISCOVERY: The token, not the origin, gates access
				return true
			},
			HandshakeTimeout: 10 * time.Second,
		},
	}
}

// TokenFromRequest reads the session token from the query string or the session cookie
func TokenFromRequest(r *http.Request) string {
	if token := r.URL.Query().Get("token"); token != "" {
		return token
	}
	if cookie, err := r.Cookie(SessionCookieName); err == nil {
		return cookie.Value
	}
	return ""
}

// TopicFromRequest reads the optional kelas / materi query parameters.
// It returns nil when neither is present.
func TopicFromRequest(r *http.Request) (*types.TopicKey, error) {
	q := r.URL.Query()
	kelas, materi := q.Get("kelas"), q.Get("materi")

	switch {
	case kelas != "" && materi != "":
		return nil, ErrInvalidTopicParameter
	case kelas != "":
		return parseTopic(types.TopicRoom, kelas)
	case materi != "":
		return parseTopic(types.TopicMaterial, materi)
	default:
		return nil, nil
	}
}

func parseTopic(kind types.TopicKind, raw string) (*types.TopicKey, error) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return nil, ErrInvalidTopicParameter
	}
	return &types.TopicKey{Kind: kind, ID: id}, nil
}

// HandleWebSocket authenticates, upgrades and starts serving one client
// ARCHITECTURAL DISCOVERY: Multi-stage flow (parameters -> token -> upgrade -> sink)
// keeps unauthenticated sockets out of the registry entirely
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	topic, err := TopicFromRequest(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	// Authenticate before the upgrade while the request context is still live
	user, authErr := h.auth.Authenticate(r.Context(), TokenFromRequest(r))

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warnf("WebSocket upgrade failed: %v", err)
		return
	}

	if authErr != nil || user == nil {
		log.Debugf("Rejecting socket from %s: %v", r.RemoteAddr, authErr)
		h.rejectUnauthenticated(conn)
		return
	}

	wsConn := NewConnection(conn, h.opts)
	if err := wsConn.SetCredentials(user); err != nil {
		log.Errorf("Failed to set credentials: %v", err)
		_ = wsConn.Close()
		return
	}

	// Keep-alive handlers are installed before the sink can queue frames
	h.installKeepAlive(wsConn)

	if err := h.sink.Connect(wsConn, topic); err != nil {
		log.Errorf("Failed to admit connection for user %d: %v", user.ID, err)
		_ = wsConn.Close()
		return
	}

	go h.pingLoop(wsConn)
	go h.readPump(wsConn)
}

// rejectUnauthenticated sends the error frame and closes a socket that never
// became a Connection
func (h *Handler) rejectUnauthenticated(conn *websocket.Conn) {
	deadline := time.Now().Add(h.opts.WriteTimeout)
	_ = conn.SetWriteDeadline(deadline)
	if err := conn.WriteJSON(types.NewErrorFrame(authFailedMessage)); err != nil {
		log.Debugf("Failed to send auth error frame: %v", err)
	}
	closeMsg := websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "authentication failed")
	_ = conn.WriteControl(websocket.CloseMessage, closeMsg, deadline)
	_ = conn.Close()
}

// installKeepAlive arms the read deadline and extends it on every pong
// TECHNICAL DISCOVERY: A peer that misses a pong for PongTimeout after the
// last ping interval fails its next read and is unregistered
func (h *Handler) installKeepAlive(conn *Connection) {
	window := h.opts.PingInterval + h.opts.PongTimeout
	conn.conn.SetReadLimit(h.opts.MaxMessageSize)
	if err := conn.conn.SetReadDeadline(time.Now().Add(window)); err != nil {
		log.Warnf("Failed to set read deadline: %v", err)
	}
	conn.conn.SetPongHandler(func(string) error {
		return conn.conn.SetReadDeadline(time.Now().Add(window))
	})
}

// pingLoop sends protocol pings until the connection closes
func (h *Handler) pingLoop(conn *Connection) {
	ticker := time.NewTicker(h.opts.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			// WriteControl is safe to call concurrently with the writer goroutine
			deadline := time.Now().Add(h.opts.WriteTimeout)
			if err := conn.conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				_ = conn.Close()
				return
			}
		case <-conn.ctx.Done():
			return
		}
	}
}

// readPump forwards text frames to the sink and unregisters on exit
func (h *Handler) readPump(conn *Connection) {
	defer func() {
		// FUNCTIONAL DISCOVERY: Deferred cleanup ensures the sink always sees the
		// disconnect, whatever ended the read loop
		if err := h.sink.Disconnect(conn); err != nil {
			log.Warnf("Disconnect for user %d failed: %v", conn.GetUserID(), err)
		}
		_ = conn.Close()
	}()

	for {
		messageType, data, err := conn.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				log.Warnf("WebSocket error for user %d: %v", conn.GetUserID(), err)
			}
			return
		}

		if messageType != websocket.TextMessage {
			continue
		}
		if err := h.sink.Receive(conn, data); err != nil {
			if !errors.Is(err, interfaces.ErrBusy) {
				log.Debugf("Frame from user %d not delivered: %v", conn.GetUserID(), err)
				continue
			}
			log.Warnf("Frame from user %d dropped: %v", conn.GetUserID(), err)
			if werr := conn.WriteJSON(types.NewErrorFrame(busyMessage)); werr != nil {
				log.Debugf("Busy notice to user %d not sent: %v", conn.GetUserID(), werr)
			}
		}
	}
}
