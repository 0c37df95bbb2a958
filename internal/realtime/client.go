package realtime

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	// PingInterval and PongWait are used for heartbeat.
	PingInterval = 30
	PongWait     = 60
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // allow all origins in dev; restrict in production
	},
}

// WSMessage is the WebSocket message envelope.
type WSMessage struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// EventRouter dispatches inbound client events and connection teardown.
type EventRouter interface {
	HandleEvent(c *Client, msg WSMessage)
	HandleDisconnect(c *Client)
}

// Client represents a single WebSocket connection.
type Client struct {
	ID     string
	hub    *Hub
	conn   *websocket.Conn
	send   chan WSMessage
	logger *zap.Logger

	// guarded by hub.mu
	closed        bool
	sessionID     string
	participantID string
}

// enqueueLocked queues a message for delivery. Caller holds hub.mu.
func (c *Client) enqueueLocked(msg WSMessage) {
	if c.closed {
		return
	}
	select {
	case c.send <- msg:
	default:
		// buffer full, skip
	}
}

// closeLocked closes the send channel so writePump flushes and exits.
// Caller holds hub.mu exclusively.
func (c *Client) closeLocked() {
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}

// ServeWs handles the WebSocket upgrade and runs the client loop. No
// authentication: participants are identified only by the session-scoped
// bindings established through join events.
func ServeWs(hub *Hub, router EventRouter, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			logger.Warn("websocket upgrade failed", zap.Error(err))
			return
		}

		client := &Client{
			ID:     uuid.New().String(),
			hub:    hub,
			conn:   conn,
			send:   make(chan WSMessage, 256),
			logger: logger,
		}
		go client.writePump()
		client.readPump(router)
	}
}

func (c *Client) readPump(router EventRouter) {
	defer func() {
		router.HandleDisconnect(c)
		c.hub.mu.Lock()
		c.closeLocked()
		c.hub.mu.Unlock()
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(65536)
	_ = c.conn.SetReadDeadline(time.Now().Add(PongWait * time.Second))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(PongWait * time.Second))
		return nil
	})

	for {
		var msg WSMessage
		if err := c.conn.ReadJSON(&msg); err != nil {
			break
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(PongWait * time.Second))
		router.HandleEvent(c, msg)
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(PingInterval * time.Second)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			_ = c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteJSON(msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
