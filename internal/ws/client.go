package ws

import (
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/greeterhq/chat-server-go/internal/config"
)

// Client is one live widget connection. The hub owns the registration
// lifecycle; the client owns its read and write pumps.
type Client struct {
	id        string
	sessionID string
	hub       *Hub
	conn      *websocket.Conn
	send      chan []byte
}

func newClient(id, sessionID string, hub *Hub, conn *websocket.Conn) *Client {
	return &Client{
		id:        id,
		sessionID: sessionID,
		hub:       hub,
		conn:      conn,
		send:      make(chan []byte, config.WSSendBuffer),
	}
}

// enqueue hands a marshalled frame to the write pump. Slow consumers
// are dropped rather than allowed to stall the hub.
func (c *Client) enqueue(payload []byte) {
	select {
	case c.send <- payload:
	default:
		log.Warn().Str("conn_id", c.id).Msg("send buffer full, dropping connection")
		c.hub.unregister(c)
	}
}

func (c *Client) sendEvent(event any) {
	payload, err := json.Marshal(event)
	if err != nil {
		log.Error().Err(err).Str("conn_id", c.id).Msg("event marshal failed")
		return
	}
	c.enqueue(payload)
}

// readPump consumes frames until the connection dies, then triggers the
// hub's disconnect handling. Runs in the connection's goroutine.
func (c *Client) readPump() {
	defer func() {
		c.hub.unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(config.WSMaxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(config.WSPongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(config.WSPongWait))
		return nil
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Warn().Err(err).Str("conn_id", c.id).Msg("websocket read error")
			}
			return
		}

		var event inboundEvent
		if err := json.Unmarshal(raw, &event); err != nil {
			log.Warn().Err(err).Str("conn_id", c.id).Msg("malformed frame rejected")
			c.sendEvent(sessionErrorEvent{Type: eventSessionError, Error: "invalid message format"})
			continue
		}

		c.hub.handleEvent(c, event)
	}
}

// writePump serializes all writes to the connection and keeps it alive
// with periodic pings.
func (c *Client) writePump() {
	ticker := time.NewTicker(config.WSPingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case payload, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(config.WSWriteWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(config.WSWriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
