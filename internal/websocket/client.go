package websocket

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512
	sendBuffer     = 256
)

// Command is the only message a client may send. A connection that watches
// no document receives progress for all of its user's documents.
type Command struct {
	Action     string    `json:"action"` // "watch" or "unwatch"
	DocumentID uuid.UUID `json:"document_id"`
}

// Client is one websocket connection of a user.
type Client struct {
	Hub    *Hub
	Conn   *websocket.Conn
	UserID uuid.UUID
	Send   chan []byte

	mu      sync.RWMutex
	watched map[uuid.UUID]struct{}
}

func newClient(hub *Hub, conn *websocket.Conn, userID uuid.UUID) *Client {
	return &Client{Hub: hub, Conn: conn, UserID: userID, Send: make(chan []byte, sendBuffer)}
}

// Wants reports whether a frame about documentID should reach this client.
// uuid.Nil marks frames that are not about one document.
func (c *Client) Wants(documentID uuid.UUID) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if documentID == uuid.Nil || len(c.watched) == 0 {
		return true
	}
	_, ok := c.watched[documentID]
	return ok
}

func (c *Client) apply(cmd Command) bool {
	if cmd.DocumentID == uuid.Nil {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	switch cmd.Action {
	case "watch":
		if c.watched == nil {
			c.watched = make(map[uuid.UUID]struct{})
		}
		c.watched[cmd.DocumentID] = struct{}{}
	case "unwatch":
		delete(c.watched, cmd.DocumentID)
	default:
		return false
	}
	return true
}

func (c *Client) readPump() {
	defer func() {
		c.Hub.Unregister(c)
		c.Conn.Close()
	}()
	c.Conn.SetReadLimit(maxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.Hub.logger.Warn("HUB", "Unexpected websocket close", map[string]interface{}{"user_id": c.UserID, "error": err.Error()})
			}
			return
		}
		var cmd Command
		if err := json.Unmarshal(raw, &cmd); err != nil || !c.apply(cmd) {
			c.Hub.logger.Debug("HUB", "Ignored client message", map[string]interface{}{"user_id": c.UserID})
		}
	}
}

// writePump writes one frame per websocket message so clients can JSON
// decode each message on its own.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
