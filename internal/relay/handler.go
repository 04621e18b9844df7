package relay

import (
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer. Screenshot frames carry
	// base64 image payloads, so the limit is generous.
	maxMessageSize = 8 << 20
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// TODO: Implement proper origin checking in production
		return true
	},
}

// Handler upgrades HTTP requests to relay connections and runs their
// read/write pumps.
type Handler struct {
	router *Router
}

// NewHandler creates a WebSocket handler feeding the given router.
func NewHandler(router *Router) *Handler {
	return &Handler{router: router}
}

// HandleConnection upgrades the request and starts relaying for the
// identified connection. Identity parameters are validated by the HTTP
// layer before this is called.
func (h *Handler) HandleConnection(w http.ResponseWriter, r *http.Request, id string, role Role, info DeviceInfo) error {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return err
	}

	c := NewConn(conn, id, role, info)
	h.router.HandleOpen(c)

	go h.writePump(c)
	go h.readPump(c)

	return nil
}

// readPump pumps frames from the WebSocket connection into the router.
// Registry and subscription cleanup completes before the pump returns, so
// the identifier is free for reuse once the socket is gone.
func (h *Handler) readPump(c *Conn) {
	defer func() {
		h.router.HandleClose(c)
		c.Close()
		c.Conn().Close()
	}()

	c.Conn().SetReadLimit(maxMessageSize)
	c.Conn().SetReadDeadline(time.Now().Add(pongWait))
	c.Conn().SetPongHandler(func(string) error {
		c.Conn().SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.Conn().ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("WebSocket error: %v", err)
			}
			break
		}

		h.router.HandleFrame(c, message)
	}
}

// writePump pumps queued frames to the WebSocket connection.
func (h *Handler) writePump(c *Conn) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Conn().Close()
	}()

	for {
		select {
		case message, ok := <-c.SendChan():
			c.Conn().SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The router closed the connection
				c.Conn().WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			// Send each message in a separate WebSocket frame
			// This ensures JSON.parse() works correctly on the frontend
			if err := c.Conn().WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

			// Process any queued messages, sending each in its own frame
			n := len(c.SendChan())
			for i := 0; i < n; i++ {
				queuedMsg := <-c.SendChan()
				c.Conn().SetWriteDeadline(time.Now().Add(writeWait))
				if err := c.Conn().WriteMessage(websocket.TextMessage, queuedMsg); err != nil {
					return
				}
			}
		case <-ticker.C:
			c.Conn().SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn().WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// SetCheckOrigin sets a custom origin checker for the WebSocket upgrader.
func SetCheckOrigin(fn func(r *http.Request) bool) {
	upgrader.CheckOrigin = fn
}
