package websocket

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"ruangkelas/pkg/types"
)

// Options tunes per-connection buffering and keep-alive timing
type Options struct {
	// BufferSize is the outbound frame buffer; frames beyond it are dropped
	BufferSize int
	// WriteTimeout bounds a single socket write
	WriteTimeout time.Duration
	// PingInterval is the keep-alive ping period
	PingInterval time.Duration
	// PongTimeout is how long a peer may stay silent after a ping
	PongTimeout time.Duration
	// MaxMessageSize caps inbound frame size in bytes
	MaxMessageSize int64
}

// DefaultOptions returns the production connection settings
func DefaultOptions() Options {
	return Options{
		BufferSize:     256,
		WriteTimeout:   10 * time.Second,
		PingInterval:   30 * time.Second,
		PongTimeout:    60 * time.Second,
		MaxMessageSize: 16 * 1024,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.BufferSize <= 0 {
		o.BufferSize = d.BufferSize
	}
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = d.WriteTimeout
	}
	if o.PingInterval <= 0 {
		o.PingInterval = d.PingInterval
	}
	if o.PongTimeout <= 0 {
		o.PongTimeout = d.PongTimeout
	}
	if o.MaxMessageSize <= 0 {
		o.MaxMessageSize = d.MaxMessageSize
	}
	return o
}

// Connection implements the interfaces.Connection interface
// ARCHITECTURAL DISCOVERY: WebSocket writes must be serialized to prevent race conditions
// Interface boundary maintained - no business logic in connection wrapper
type Connection struct {
	id            string
	conn          *websocket.Conn
	opts          Options
	writeCh       chan []byte        // FUNCTIONAL DISCOVERY: bounded so a stalled peer cannot grow memory
	userID        int64              // Set after authentication
	role          types.Role         // Set after authentication
	name          string             // Set after authentication
	authenticated bool               // Authentication status
	ctx           context.Context    // For cancellation
	cancel        context.CancelFunc // For cleanup
	closeOnce     sync.Once          // Ensure single close
	mu            sync.RWMutex       // Protect auth fields
}

// NewConnection creates a new WebSocket connection wrapper
func NewConnection(conn *websocket.Conn, opts Options) *Connection {
	opts = opts.withDefaults()
	ctx, cancel := context.WithCancel(context.Background())
	c := &Connection{
		id:      uuid.NewString(),
		conn:    conn,
		opts:    opts,
		writeCh: make(chan []byte, opts.BufferSize),
		ctx:     ctx,
		cancel:  cancel,
	}

	// Start the single writer goroutine
	go c.writeLoop()

	return c
}

// ARCHITECTURAL DISCOVERY: Single writer goroutine pattern eliminates races.
// writeCh is never closed; the loop exits on cancellation so late senders never panic.
func (c *Connection) writeLoop() {
	for {
		select {
		case data := <-c.writeCh:
			if err := c.conn.SetWriteDeadline(time.Now().Add(c.opts.WriteTimeout)); err != nil {
				_ = c.Close()
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				// A failed write means the transport is gone; closing wakes the read pump
				_ = c.Close()
				return
			}
		case <-c.ctx.Done():
			return
		}
	}
}

// ID returns the connection's process-unique identifier
func (c *Connection) ID() string {
	return c.id
}

// WriteJSON queues a frame without blocking.
// FUNCTIONAL DISCOVERY: A full buffer drops the frame for this recipient only,
// so one slow client never stalls a broadcast
func (c *Connection) WriteJSON(v interface{}) error {
	select {
	case <-c.ctx.Done():
		return ErrConnectionClosed
	default:
	}

	data, err := json.Marshal(v)
	if err != nil {
		return ErrInvalidJSON
	}

	select {
	case c.writeCh <- data:
		return nil
	case <-c.ctx.Done():
		return ErrConnectionClosed
	default:
		return ErrSendBufferFull
	}
}

// IsOpen reports whether Close has not yet been called
func (c *Connection) IsOpen() bool {
	select {
	case <-c.ctx.Done():
		return false
	default:
		return true
	}
}

// ARCHITECTURAL DISCOVERY: Clean shutdown requires careful goroutine coordination
func (c *Connection) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.cancel()
		if c.conn != nil {
			err = c.conn.Close()
		}
	})
	return err
}

// SetCredentials binds the connection to an authenticated directory user
func (c *Connection) SetCredentials(user *types.User) error {
	if user == nil {
		return ErrNilUser
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.userID = user.ID
	c.role = user.Role
	c.name = user.Name
	c.authenticated = true

	return nil
}

func (c *Connection) IsAuthenticated() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.authenticated
}

func (c *Connection) GetUserID() int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.userID
}

func (c *Connection) GetRole() types.Role {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.role
}

func (c *Connection) GetName() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.name
}
