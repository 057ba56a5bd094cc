package api

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/hearth-home/hearth-core/internal/auth"
	"github.com/hearth-home/hearth-core/internal/infrastructure/config"
)

// wsOutboxSize is the per-client outbound buffer. A client that falls
// this far behind starts losing events rather than stalling broadcasts.
const wsOutboxSize = 256

// WSClient is one connected WebSocket client: a read loop dispatching
// inbound requests and a write loop draining the outbox.
type WSClient struct {
	hub    *Hub
	conn   *websocket.Conn
	outbox chan []byte

	mu   sync.RWMutex
	subs map[string]struct{}

	// Identity carried over from the redeemed ticket.
	username string
	role     auth.Role
}

// wsHeartbeat holds the derived ping/pong timing for one connection.
type wsHeartbeat struct {
	interval time.Duration // ping cadence
	grace    time.Duration // allowance beyond the cadence before giving up
}

func wsHeartbeatFor(cfg config.WebSocketConfig) wsHeartbeat {
	return wsHeartbeat{
		interval: time.Duration(cfg.PingInterval) * time.Second,
		grace:    time.Duration(cfg.PongTimeout) * time.Second,
	}
}

// readDeadline is the instant after which a silent peer counts as gone.
func (hb wsHeartbeat) readDeadline() time.Time {
	return time.Now().Add(hb.interval + hb.grace)
}

// writeDeadline bounds a single frame write.
func (hb wsHeartbeat) writeDeadline() time.Time {
	return time.Now().Add(hb.grace)
}

// readLoop consumes inbound frames until the connection drops, then
// detaches the client from the hub.
func (c *WSClient) readLoop(hb wsHeartbeat, maxBytes int64) {
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxBytes)
	//nolint:errcheck // Best-effort deadline on connection setup
	c.conn.SetReadDeadline(hb.readDeadline())
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(hb.readDeadline())
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Warn("websocket read error", "error", err)
			} else {
				c.hub.logger.Debug("websocket closed", "error", err)
			}
			return
		}

		// Any inbound traffic proves the peer is alive, including
		// browsers that never answer protocol-level pings.
		//nolint:errcheck // Best-effort deadline reset
		c.conn.SetReadDeadline(hb.readDeadline())
		c.dispatch(raw)
	}
}

// writeLoop drains the outbox and keeps the connection alive with
// pings. It owns all writes to the connection.
func (c *WSClient) writeLoop(hb wsHeartbeat) {
	ticker := time.NewTicker(hb.interval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case data, ok := <-c.outbox:
			if !ok {
				// Hub detached us.
				//nolint:errcheck // Best-effort close frame
				c.conn.WriteMessage(websocket.CloseMessage, nil)
				return
			}
			//nolint:errcheck // Best-effort deadline; write error caught below
			c.conn.SetWriteDeadline(hb.writeDeadline())
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			//nolint:errcheck // Best-effort deadline; ping error caught below
			c.conn.SetWriteDeadline(hb.writeDeadline())
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// dispatch routes one inbound message by type.
func (c *WSClient) dispatch(raw []byte) {
	var msg WSMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		c.replyError("", "invalid JSON message")
		return
	}

	switch msg.Type {
	case WSTypeSubscribe:
		c.subscribe(msg)
	case WSTypeUnsubscribe:
		c.unsubscribe(msg)
	case WSTypePing:
		c.reply(WSMessage{Type: WSTypePong, ID: msg.ID})
	default:
		c.replyError(msg.ID, "unknown message type: "+msg.Type)
	}
}

// subscribe adds the named channels. Unknown event names reject the
// whole request, so typos fail loudly instead of producing a silent
// never-firing subscription.
func (c *WSClient) subscribe(msg WSMessage) {
	channels, ok := channelsOf(msg.Payload)
	if !ok {
		c.replyError(msg.ID, "invalid subscribe payload")
		return
	}
	for _, ch := range channels {
		if _, known := knownEvents[ch]; !known {
			c.replyError(msg.ID, "unknown event: "+ch)
			return
		}
	}

	c.mu.Lock()
	for _, ch := range channels {
		c.subs[ch] = struct{}{}
	}
	c.mu.Unlock()

	c.hub.logger.Info("websocket client subscribed", "user", c.username, "channels", channels)
	c.reply(WSMessage{
		Type:    WSTypeResponse,
		ID:      msg.ID,
		Payload: map[string]any{"subscribed": channels},
	})
}

// unsubscribe removes the named channels. Channels never subscribed to
// are ignored.
func (c *WSClient) unsubscribe(msg WSMessage) {
	channels, ok := channelsOf(msg.Payload)
	if !ok {
		c.replyError(msg.ID, "invalid unsubscribe payload")
		return
	}

	c.mu.Lock()
	for _, ch := range channels {
		delete(c.subs, ch)
	}
	c.mu.Unlock()

	c.reply(WSMessage{
		Type:    WSTypeResponse,
		ID:      msg.ID,
		Payload: map[string]any{"unsubscribed": channels},
	})
}

// channelsOf re-decodes the free-form payload as a subscription
// request.
func channelsOf(payload any) ([]string, bool) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, false
	}
	var sub WSSubscribePayload
	if err := json.Unmarshal(raw, &sub); err != nil {
		return nil, false
	}
	return sub.Channels, true
}

func (c *WSClient) subscribedTo(event string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.subs[event]
	return ok
}

// enqueue offers data to the outbox without blocking. A full buffer
// drops the message, and the recover absorbs the send-on-closed race
// when a broadcast crosses a disconnect.
func (c *WSClient) enqueue(data []byte) {
	defer func() {
		recover() //nolint:errcheck // send on closed outbox during disconnect
	}()

	select {
	case c.outbox <- data:
	default:
	}
}

// reply stamps and marshals a message, then queues it to this client.
func (c *WSClient) reply(msg WSMessage) {
	msg.Timestamp = time.Now().UTC().Format(time.RFC3339)
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}
	c.enqueue(data)
}

func (c *WSClient) replyError(id, message string) {
	c.reply(WSMessage{
		Type:    WSTypeError,
		ID:      id,
		Payload: map[string]any{"message": message},
	})
}
