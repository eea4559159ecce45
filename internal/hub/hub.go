package hub

import (
	"context"
	"errors"
	"sync"
	"time"

	"ruangkelas/internal/history"
	"ruangkelas/internal/logging"
	"ruangkelas/internal/presence"
	"ruangkelas/internal/rbac"
	"ruangkelas/internal/router"
	"ruangkelas/internal/websocket"
	"ruangkelas/pkg/interfaces"
	"ruangkelas/pkg/types"
)

var log = logging.ForService("hub")

// Config holds the hub's tunables
type Config struct {
	RoomHistoryLimit     int
	MaterialHistoryLimit int
	// EventBuffer sizes the inbound event queue
	EventBuffer int
	// LookupTimeout bounds directory and catalog calls made on the hub goroutine
	LookupTimeout time.Duration
}

// DefaultConfig returns the production hub settings
func DefaultConfig() Config {
	return Config{
		RoomHistoryLimit:     20,
		MaterialHistoryLimit: 50,
		EventBuffer:          1000,
		LookupTimeout:        5 * time.Second,
	}
}

// Hub is the discussion engine: one goroutine owns registry mutation,
// history appends and fan-out
// ARCHITECTURAL DISCOVERY: Central coordination point for all message flow
// maintains clean separation between WebSocket handling and message routing
type Hub struct {
	// FUNCTIONAL DISCOVERY: One FIFO channel for all event kinds keeps a
	// connection's connect, messages and disconnect in order
	events          chan event
	shutdownChannel chan struct{}
	done            chan struct{}

	registry  *websocket.Registry
	router    *router.Router
	history   *history.Store
	presence  *presence.Tracker
	catalog   interfaces.Catalog
	directory interfaces.UserDirectory
	cfg       Config

	// current is each connection's active topic; touched only by the hub goroutine
	current map[string]types.TopicKey

	ctx     context.Context
	running bool
	mu      sync.RWMutex
}

type eventKind int

const (
	eventConnect eventKind = iota
	eventMessage
	eventDisconnect
	eventFlush
)

type event struct {
	kind  eventKind
	conn  interfaces.Connection
	topic *types.TopicKey
	data  []byte
	ack   chan struct{}
}

// NewHub creates a new hub
func NewHub(registry *websocket.Registry, rtr *router.Router, store *history.Store, tracker *presence.Tracker, catalog interfaces.Catalog, directory interfaces.UserDirectory, cfg Config) *Hub {
	d := DefaultConfig()
	if cfg.RoomHistoryLimit <= 0 {
		cfg.RoomHistoryLimit = d.RoomHistoryLimit
	}
	if cfg.MaterialHistoryLimit <= 0 {
		cfg.MaterialHistoryLimit = d.MaterialHistoryLimit
	}
	if cfg.EventBuffer <= 0 {
		cfg.EventBuffer = d.EventBuffer
	}
	if cfg.LookupTimeout <= 0 {
		cfg.LookupTimeout = d.LookupTimeout
	}

	return &Hub{
		events:          make(chan event, cfg.EventBuffer),
		shutdownChannel: make(chan struct{}),
		done:            make(chan struct{}),
		registry:        registry,
		router:          rtr,
		history:         store,
		presence:        tracker,
		catalog:         catalog,
		directory:       directory,
		cfg:             cfg,
		current:         make(map[string]types.TopicKey),
		ctx:             context.Background(),
	}
}

// Start begins hub processing
// FUNCTIONAL DISCOVERY: Single hub goroutine prevents race conditions
// while maintaining high throughput message processing
func (h *Hub) Start(ctx context.Context) error {
	h.mu.Lock()
	if h.running {
		h.mu.Unlock()
		return ErrHubAlreadyRunning
	}
	h.running = true
	h.ctx = ctx
	h.mu.Unlock()

	log.Infof("Starting discussion hub")
	go h.run(ctx)

	return nil
}

// Stop shuts the hub down and closes every live connection
func (h *Hub) Stop() error {
	h.mu.Lock()
	if !h.running {
		h.mu.Unlock()
		return ErrHubNotRunning
	}
	h.running = false
	close(h.shutdownChannel)
	h.mu.Unlock()

	log.Infof("Stopping discussion hub")
	<-h.done

	for _, conn := range h.registry.AllConnections() {
		_ = conn.Close()
	}
	return nil
}

// IsRunning reports whether Start has been called without a matching Stop
func (h *Hub) IsRunning() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.running
}

// Connect admits an authenticated connection, optionally into a topic
func (h *Hub) Connect(conn interfaces.Connection, topic *types.TopicKey) error {
	if conn == nil {
		return ErrNilConnection
	}
	if !conn.IsAuthenticated() {
		return ErrConnNotAuthorized
	}
	return h.enqueue(event{kind: eventConnect, conn: conn, topic: topic}, true)
}

// Receive queues one raw client frame
// TECHNICAL DISCOVERY: Non-blocking send keeps a flooding client from
// stalling its own read pump behind a full queue
func (h *Hub) Receive(conn interfaces.Connection, data []byte) error {
	return h.enqueue(event{kind: eventMessage, conn: conn, data: data}, false)
}

// Disconnect queues removal of a connection. When the hub is stopped the
// registry is cleaned up directly.
func (h *Hub) Disconnect(conn interfaces.Connection) error {
	if conn == nil {
		return ErrNilConnection
	}
	err := h.enqueue(event{kind: eventDisconnect, conn: conn}, true)
	if errors.Is(err, ErrHubNotRunning) {
		h.registry.Remove(conn)
		return nil
	}
	return err
}

// Flush waits until every event queued before the call has been handled
func (h *Hub) Flush(ctx context.Context) error {
	ack := make(chan struct{})
	if err := h.enqueue(event{kind: eventFlush, ack: ack}, true); err != nil {
		return err
	}
	select {
	case <-ack:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (h *Hub) enqueue(ev event, wait bool) error {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if !h.running {
		return ErrHubNotRunning
	}

	if !wait {
		select {
		case h.events <- ev:
			return nil
		default:
			return ErrEventChannelFull
		}
	}

	select {
	case h.events <- ev:
		return nil
	case <-h.shutdownChannel:
		return ErrHubNotRunning
	case <-h.done:
		return ErrHubNotRunning
	}
}

// run is the main hub processing loop
// TECHNICAL DISCOVERY: Single select loop handles all coordination
// preventing race conditions while maintaining high throughput
func (h *Hub) run(ctx context.Context) {
	defer close(h.done)
	defer log.Infof("Hub processing stopped")

	cleanup := time.NewTicker(time.Minute)
	defer cleanup.Stop()

	for {
		select {
		case ev := <-h.events:
			h.handle(ev)

		case <-cleanup.C:
			h.router.Cleanup()

		case <-h.shutdownChannel:
			return

		case <-ctx.Done():
			log.Infof("Hub context cancelled")
			return
		}
	}
}

func (h *Hub) handle(ev event) {
	switch ev.kind {
	case eventConnect:
		h.handleConnect(ev.conn, ev.topic)
	case eventMessage:
		h.handleMessage(ev.conn, ev.data)
	case eventDisconnect:
		h.handleDisconnect(ev.conn)
	case eventFlush:
		close(ev.ack)
	}
}

func (h *Hub) lookupContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(h.ctx, h.cfg.LookupTimeout)
}

// handleConnect registers the connection, greets it and announces the user
func (h *Hub) handleConnect(conn interfaces.Connection, topic *types.TopicKey) {
	ctx, cancel := h.lookupContext()
	defer cancel()

	userID := conn.GetUserID()
	first := h.registry.TrackUser(userID, conn)
	self := types.OnlineUser{ID: userID, Name: conn.GetName(), Role: conn.GetRole()}

	h.send(conn, types.ConnectedFrame{Type: types.OutboundConnected, User: self})
	online := h.presence.OnlineUsers(ctx)
	h.send(conn, types.OnlineUsersFrame{Type: types.OutboundOnlineUsers, Users: online})

	if topic != nil {
		if h.enterTopic(ctx, conn, *topic) {
			h.sendHistory(ctx, conn, *topic)
		}
	}

	log.Debugf("Connection %s admitted: user=%d role=%s first=%v", conn.ID(), userID, conn.GetRole(), first)

	// FUNCTIONAL DISCOVERY: Only the first connection of a user announces them,
	// so a second browser tab does not re-notify the class
	if first {
		joined := types.UserJoinedFrame{Type: types.OutboundUserJoined, User: self, Users: online}
		for _, other := range h.registry.AllConnections() {
			if other.ID() == conn.ID() {
				continue
			}
			h.deliver(other, joined)
		}
	}
}

// handleDisconnect unregisters the connection and refreshes presence when the
// user's last connection is gone
func (h *Hub) handleDisconnect(conn interfaces.Connection) {
	delete(h.current, conn.ID())

	userID, last := h.registry.Remove(conn)
	log.Debugf("Connection %s removed: user=%d last=%v", conn.ID(), userID, last)
	if !last {
		return
	}

	ctx, cancel := h.lookupContext()
	defer cancel()

	frame := types.OnlineUsersFrame{Type: types.OutboundOnlineUsers, Users: h.presence.OnlineUsers(ctx)}
	for _, other := range h.registry.AllConnections() {
		h.deliver(other, frame)
	}
}

// handleMessage decodes and executes one client frame
func (h *Hub) handleMessage(conn interfaces.Connection, data []byte) {
	cmd, err := h.router.Decode(data)
	if err != nil {
		var me *router.MalformedError
		switch {
		case errors.Is(err, router.ErrUnknownFrameType):
			log.Debugf("Ignoring unknown frame from user %d", conn.GetUserID())
		case errors.As(err, &me):
			h.send(conn, types.NewErrorFrame(msgInvalidPrefix+me.Reason))
		default:
			h.send(conn, types.NewErrorFrame(msgInvalidPrefix+err.Error()))
		}
		return
	}

	ctx, cancel := h.lookupContext()
	defer cancel()

	switch c := cmd.(type) {
	case types.ChatCommand:
		h.handleChat(ctx, conn, c)
	case types.HistoryCommand:
		h.handleHistory(ctx, conn, c)
	case types.PingCommand:
		h.send(conn, types.PongFrame{Type: types.OutboundPong, Timestamp: time.Now()})
	}
}

func (h *Hub) handleChat(ctx context.Context, conn interfaces.Connection, cmd types.ChatCommand) {
	if !rbac.Can(conn.GetRole(), rbac.ActionDiscuss) {
		h.send(conn, types.NewErrorFrame(msgNotAllowed))
		return
	}

	topic, switched, ok := h.resolveTopic(ctx, conn, cmd.Topic)
	if !ok {
		return
	}
	// FUNCTIONAL DISCOVERY: A chat frame that moves the connection replays the
	// new topic's history before the message itself goes out
	if switched {
		h.sendHistory(ctx, conn, topic)
	}
	if err := h.router.Allow(conn.GetUserID()); err != nil {
		h.send(conn, types.NewErrorFrame(msgRateLimited))
		return
	}

	entry, err := h.history.Append(types.DiscussionEntry{
		Topic:      topic,
		AuthorID:   conn.GetUserID(),
		AuthorRole: conn.GetRole(),
		Text:       cmd.Text,
	})
	if err != nil {
		log.Errorf("History append failed for %s: %v", topic, err)
		return
	}

	author := h.presence.Resolve(ctx, entry.AuthorID)
	frameType := types.OutboundChat
	if topic.Kind == types.TopicMaterial {
		frameType = types.OutboundNewMessage
	}
	h.Broadcast(topic, types.MessageFrame{Type: frameType, Message: types.NewMessageView(entry, author.Name)})
}

func (h *Hub) handleHistory(ctx context.Context, conn interfaces.Connection, cmd types.HistoryCommand) {
	topic, _, ok := h.resolveTopic(ctx, conn, cmd.Topic)
	if !ok {
		return
	}
	h.sendHistory(ctx, conn, topic)
}

// resolveTopic picks the named topic (entering it if needed) or the
// connection's current one. switched is true when the connection moved to a
// new topic; ok is false after an error frame was sent.
func (h *Hub) resolveTopic(ctx context.Context, conn interfaces.Connection, named *types.TopicKey) (topic types.TopicKey, switched, ok bool) {
	if named == nil {
		current, found := h.current[conn.ID()]
		if !found {
			h.send(conn, types.NewErrorFrame(msgNoTopic))
			return types.TopicKey{}, false, false
		}
		return current, false, true
	}

	if current, found := h.current[conn.ID()]; found && current == *named {
		return current, false, true
	}
	if !h.enterTopic(ctx, conn, *named) {
		return types.TopicKey{}, false, false
	}
	return *named, true, true
}

// enterTopic validates the topic against the catalog and makes it the
// connection's current topic, leaving the previous one
func (h *Hub) enterTopic(ctx context.Context, conn interfaces.Connection, topic types.TopicKey) bool {
	if err := h.topicExists(ctx, topic); err != nil {
		if errors.Is(err, interfaces.ErrNotFound) {
			h.send(conn, types.NewErrorFrame(msgTopicNotFound))
		} else {
			log.Errorf("Catalog lookup for %s failed: %v", topic, err)
			h.send(conn, types.NewErrorFrame(msgTopicUnavailable))
		}
		return false
	}

	if previous, ok := h.current[conn.ID()]; ok && previous != topic {
		h.registry.Leave(previous, conn)
	}
	h.registry.Join(topic, conn)
	h.current[conn.ID()] = topic
	return true
}

func (h *Hub) topicExists(ctx context.Context, topic types.TopicKey) error {
	if !topic.Valid() {
		return interfaces.ErrNotFound
	}
	var err error
	switch topic.Kind {
	case types.TopicRoom:
		_, err = h.catalog.GetRoom(ctx, topic.ID)
	case types.TopicMaterial:
		_, err = h.catalog.GetMaterial(ctx, topic.ID)
	}
	return err
}

// HistoryLimit returns the replay window for a topic kind
func (h *Hub) HistoryLimit(kind types.TopicKind) int {
	if kind == types.TopicMaterial {
		return h.cfg.MaterialHistoryLimit
	}
	return h.cfg.RoomHistoryLimit
}

// RecentViews renders the recent entries of a topic with author names resolved
func (h *Hub) RecentViews(ctx context.Context, topic types.TopicKey, limit int) []types.MessageView {
	entries := h.history.Recent(topic, limit)
	names := make(map[int64]string)
	views := make([]types.MessageView, 0, len(entries))
	for _, entry := range entries {
		name, ok := names[entry.AuthorID]
		if !ok {
			name = h.presence.Resolve(ctx, entry.AuthorID).Name
			names[entry.AuthorID] = name
		}
		views = append(views, types.NewMessageView(entry, name))
	}
	return views
}

func (h *Hub) sendHistory(ctx context.Context, conn interfaces.Connection, topic types.TopicKey) {
	kelas, materiID := types.TopicRefs(topic)
	h.send(conn, types.HistoryFrame{
		Type:     types.OutboundHistory,
		Topic:    topic.Kind,
		Kelas:    kelas,
		MateriID: materiID,
		Messages: h.RecentViews(ctx, topic, h.HistoryLimit(topic.Kind)),
	})
}

// Broadcast sends frame to every open connection joined to topic and returns
// how many accepted it
// FUNCTIONAL DISCOVERY: Fire-and-forget; one failing recipient never stops
// delivery to the rest
func (h *Hub) Broadcast(topic types.TopicKey, frame interface{}) int {
	delivered := 0
	for _, conn := range h.registry.TopicConnections(topic) {
		if h.deliver(conn, frame) {
			delivered++
		}
	}
	return delivered
}

// deliver skips closed connections silently and logs send failures
func (h *Hub) deliver(conn interfaces.Connection, frame interface{}) bool {
	if !conn.IsOpen() {
		return false
	}
	if err := conn.WriteJSON(frame); err != nil {
		log.Warnf("Dropping frame for connection %s (user %d): %v", conn.ID(), conn.GetUserID(), err)
		return false
	}
	return true
}

// send replies to a single connection
func (h *Hub) send(conn interfaces.Connection, frame interface{}) {
	h.deliver(conn, frame)
}
