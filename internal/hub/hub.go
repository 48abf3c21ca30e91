// Package hub fans transcript frames out to the WebSocket listeners of
// replay views.
//
// Frames carry the view revision they were rendered at. Each connection
// only ever receives increasing revisions, so a frame computed before a
// newer one can never overtake it on the wire.
package hub

import (
	"encoding/json"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// ErrBufferFull is returned when a connection's send buffer is full.
var ErrBufferFull = errors.New("send buffer full")

// Connection is a single WebSocket listener bound to one view.
type Connection struct {
	ID     string
	ViewID string
	Conn   *websocket.Conn
	Send   chan []byte

	writeMu sync.Mutex

	sendMu  sync.Mutex
	sent    bool
	lastRev uint64
	closed  bool

	registered chan struct{}
}

// offer queues data unless a frame at rev or later was already queued.
func (c *Connection) offer(rev uint64, data []byte) error {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if c.closed || (c.sent && rev <= c.lastRev) {
		return nil
	}
	select {
	case c.Send <- data:
		c.sent = true
		c.lastRev = rev
		return nil
	default:
		return ErrBufferFull
	}
}

func (c *Connection) closeSend() {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.Send)
	}
}

// LastRevision returns the revision of the newest frame queued so far.
func (c *Connection) LastRevision() uint64 {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	return c.lastRev
}

type frame struct {
	viewID string
	rev    uint64
	data   []byte
}

// Hub tracks the listeners of every view.
type Hub struct {
	mu          sync.RWMutex
	connections map[string]*Connection
	// views maps view_id to the ids of its connections
	views map[string]map[string]bool

	register   chan *Connection
	unregister chan *Connection
	broadcast  chan frame
	done       chan struct{}
}

// NewHub creates a new Hub.
func NewHub() *Hub {
	return &Hub{
		connections: make(map[string]*Connection),
		views:       make(map[string]map[string]bool),
		register:    make(chan *Connection),
		unregister:  make(chan *Connection),
		broadcast:   make(chan frame, 256),
		done:        make(chan struct{}),
	}
}

// Run starts the hub's main loop. It returns after Stop.
func (h *Hub) Run() {
	for {
		select {
		case conn := <-h.register:
			h.add(conn)
			close(conn.registered)
			log.Printf("Connection registered: %s (view: %s)", conn.ID, conn.ViewID)

		case conn := <-h.unregister:
			if h.remove(conn) {
				conn.closeSend()
				log.Printf("Connection unregistered: %s", conn.ID)
			}

		case f := <-h.broadcast:
			for _, conn := range h.listeners(f.viewID) {
				if err := conn.offer(f.rev, f.data); err != nil {
					log.Printf("WARN: connection %s buffer full, closing", conn.ID)
					go h.Unregister(conn)
				}
			}

		case <-h.done:
			return
		}
	}
}

// Stop ends the main loop.
func (h *Hub) Stop() {
	close(h.done)
}

// NewConnection creates a connection for viewID. Call Register to start
// receiving frames.
func (h *Hub) NewConnection(ws *websocket.Conn, viewID string) *Connection {
	return &Connection{
		ID:         uuid.New().String(),
		ViewID:     viewID,
		Conn:       ws,
		Send:       make(chan []byte, 256),
		registered: make(chan struct{}),
	}
}

// Register adds conn to its view. Once it returns, every later Publish
// for the view reaches conn.
func (h *Hub) Register(conn *Connection) {
	select {
	case h.register <- conn:
	case <-h.done:
		return
	}
	select {
	case <-conn.registered:
	case <-h.done:
	}
}

// Unregister removes conn and closes its send channel.
func (h *Hub) Unregister(conn *Connection) {
	select {
	case h.unregister <- conn:
	case <-h.done:
	}
}

// Publish sends v, rendered at view revision rev, to every listener of
// viewID. Views without listeners are skipped.
func (h *Hub) Publish(viewID string, rev uint64, v interface{}) error {
	if !h.HasActiveConnections(viewID) {
		return nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	select {
	case h.broadcast <- frame{viewID: viewID, rev: rev, data: data}:
	case <-h.done:
	}
	return nil
}

// Deliver sends v, rendered at view revision rev, to conn alone. It is a
// no-op when conn already holds a newer frame.
func (h *Hub) Deliver(conn *Connection, rev uint64, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return conn.offer(rev, data)
}

// GetConnectionCount returns the number of active connections.
func (h *Hub) GetConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.connections)
}

// HasActiveConnections checks if a view has any active connections.
func (h *Hub) HasActiveConnections(viewID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.views[viewID]) > 0
}

func (h *Hub) add(conn *Connection) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.connections[conn.ID] = conn
	if h.views[conn.ViewID] == nil {
		h.views[conn.ViewID] = make(map[string]bool)
	}
	h.views[conn.ViewID][conn.ID] = true
}

func (h *Hub) remove(conn *Connection) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.connections[conn.ID]; !ok {
		return false
	}
	delete(h.connections, conn.ID)
	delete(h.views[conn.ViewID], conn.ID)
	if len(h.views[conn.ViewID]) == 0 {
		delete(h.views, conn.ViewID)
	}
	return true
}

func (h *Hub) listeners(viewID string) []*Connection {
	h.mu.RLock()
	defer h.mu.RUnlock()
	conns := make([]*Connection, 0, len(h.views[viewID]))
	for id := range h.views[viewID] {
		if conn, ok := h.connections[id]; ok {
			conns = append(conns, conn)
		}
	}
	return conns
}

// WriteMessage writes a message to the connection with proper locking.
func (c *Connection) WriteMessage(messageType int, data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.Conn.WriteMessage(messageType, data)
}

// SetWriteDeadline sets the write deadline for the connection.
func (c *Connection) SetWriteDeadline(t time.Time) error {
	return c.Conn.SetWriteDeadline(t)
}

// SetReadDeadline sets the read deadline for the connection.
func (c *Connection) SetReadDeadline(t time.Time) error {
	return c.Conn.SetReadDeadline(t)
}

// Close closes the connection.
func (c *Connection) Close() error {
	return c.Conn.Close()
}
