package relay

import (
	"encoding/json"
	"log"
	"sync"

	"github.com/gorilla/websocket"
)

// Role distinguishes the two connection kinds the relay accepts.
type Role string

const (
	RoleDevice Role = "device"
	RoleClient Role = "client"
)

// Valid reports whether the role is one the relay accepts.
func (r Role) Valid() bool {
	return r == RoleDevice || r == RoleClient
}

// DeviceInfo carries the handshake metadata of a device connection.
// Client connections carry none of these fields.
type DeviceInfo struct {
	Name    string
	OS      string
	Version string
	UserID  string
}

// Conn represents one live relay connection of either role.
type Conn struct {
	id     string
	role   Role
	conn   *websocket.Conn
	device DeviceInfo
	send   chan []byte
	mu     sync.Mutex
	closed bool
}

// NewConn creates a connection wrapper around an upgraded WebSocket.
func NewConn(conn *websocket.Conn, id string, role Role, info DeviceInfo) *Conn {
	return &Conn{
		id:     id,
		role:   role,
		conn:   conn,
		device: info,
		send:   make(chan []byte, 256),
	}
}

// ID returns the caller-supplied connection identifier.
func (c *Conn) ID() string {
	return c.id
}

// Role returns the connection role.
func (c *Conn) Role() Role {
	return c.role
}

// Device returns the handshake metadata of a device connection.
func (c *Conn) Device() DeviceInfo {
	return c.device
}

// Conn returns the underlying WebSocket connection.
func (c *Conn) Conn() *websocket.Conn {
	return c.conn
}

// SendChan returns the outbound channel for the connection.
func (c *Conn) SendChan() <-chan []byte {
	return c.send
}

// Send queues a raw frame for delivery. A connection whose outbound buffer
// is full is closed rather than letting a slow peer grow memory unbounded.
func (c *Conn) Send(data []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}

	select {
	case c.send <- data:
	default:
		// Buffer full, close the connection
		c.closeLocked()
	}
}

// SendMessage marshals a message and queues it for delivery.
func (c *Conn) SendMessage(msg *Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		log.Printf("[%s] %s: failed to marshal message: %v", c.role, c.id, err)
		return
	}
	c.Send(data)
}

// Close closes the outbound channel. Safe to call more than once.
func (c *Conn) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closeLocked()
}

func (c *Conn) closeLocked() {
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}

// IsClosed returns true if the connection is closed.
func (c *Conn) IsClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}
