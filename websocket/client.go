package websocket

import (
	"albumgrab/config"
	"albumgrab/types"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

// Upgrader accepts same-origin requests and the configured CORS origins
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     allowedOrigin,
}

func allowedOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, allowed := range config.GetCORSOrigins() {
		if allowed == "*" || allowed == origin {
			return true
		}
	}
	log.Printf("[websocket] Rejected connection from origin %s", origin)
	return false
}

// Client represents a WebSocket client connection
type Client struct {
	hub       Hub
	conn      *websocket.Conn
	send      chan types.ControlMessage
	controlID string
}

// NewClient creates a client following one control, or AllControls
func NewClient(hub Hub, conn *websocket.Conn, controlID string) *Client {
	return &Client{
		hub:       hub,
		conn:      conn,
		send:      make(chan types.ControlMessage, 256),
		controlID: controlID,
	}
}

// StartPumps starts the read and write pumps for the client
func (c *Client) StartPumps() {
	go c.writePump()
	go c.readPump()
}

// readPump handles reading from the WebSocket connection
func (c *Client) readPump() {
	defer func() {
		c.hub.UnregisterClient(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(512)
	c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		_, _, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("[websocket] Read error on control %s: %v", c.controlID, err)
			}
			break
		}
	}
}

// writePump handles writing to the WebSocket connection
func (c *Client) writePump() {
	ticker := time.NewTicker(54 * time.Second)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.conn.WriteJSON(message); err != nil {
				log.Printf("[websocket] Write error on control %s: %v", c.controlID, err)
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// GetUpgrader returns the WebSocket upgrader
func GetUpgrader() websocket.Upgrader {
	return upgrader
}