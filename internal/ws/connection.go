package ws

import (
	"encoding/json"
	"time"

	"github.com/gofiber/websocket/v2"

	"github.com/fathima-sithara/conversation-service/internal/models"
)

const (
	readLimit    = 32 * 1024
	pongWait     = 60 * time.Second
	pingInterval = 30 * time.Second
	writeWait    = 10 * time.Second
)

// clientFrame is what a connected client may send upstream. The only
// supported action is an explicit read acknowledgment; everything else a
// client does goes through the REST surface.
type clientFrame struct {
	Type          string `json:"type"`
	UpToMessageID string `json:"up_to_message_id,omitempty"`
}

// Connection pumps one subscriber's messages over a websocket.
type Connection struct {
	ws   *websocket.Conn
	sub  *Subscription
	conv string
	uid  string
	role models.Role

	onMarkRead func(conversationID string, role models.Role, upTo string)
}

func (c *Connection) readPump() {
	defer func() {
		c.sub.Cancel()
		_ = c.ws.Close()
	}()
	c.ws.SetReadLimit(readLimit)
	_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			return
		}
		var frame clientFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			// ignore invalid JSON from client, don't disconnect
			continue
		}
		if frame.Type == "mark_read" && frame.UpToMessageID != "" && c.onMarkRead != nil {
			c.onMarkRead(c.conv, c.role, frame.UpToMessageID)
		}
	}
}

func (c *Connection) writePump() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		_ = c.ws.Close()
	}()
	for {
		select {
		case m, ok := <-c.sub.C:
			if !ok {
				_ = c.ws.WriteControl(websocket.CloseMessage, []byte{}, time.Now().Add(time.Second))
				return
			}
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteJSON(m); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteControl(websocket.PingMessage, []byte("ping"), time.Now().Add(time.Second)); err != nil {
				return
			}
		}
	}
}
