package ws

import (
	"context"
	"errors"
	"time"

	"shramsaathi-backend/pkg/apperror"
	"shramsaathi-backend/pkg/logger"
	"shramsaathi-backend/pkg/realtime"

	"github.com/gorilla/websocket"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait
	pingPeriod = (pongWait * 9) / 10

	// Maximum frame size allowed from peer
	maxMessageSize = 16 * 1024

	sendBuffer = 256
)

// Client is one authenticated websocket connection.
type Client struct {
	hub    *Hub
	conn   *websocket.Conn
	userID int64
	role   string
	send   chan []byte
	ctx    context.Context

	// subscription id → destination, guarded by hub.mu
	subs map[string]string
}

func newClient(h *Hub, conn *websocket.Conn, userID int64, role string) *Client {
	return &Client{
		hub:    h,
		conn:   conn,
		userID: userID,
		role:   role,
		send:   make(chan []byte, sendBuffer),
		subs:   make(map[string]string),
	}
}

// readPump reads frames until the connection fails, then unregisters.
func (c *Client) readPump() {
	defer c.hub.wg.Done()
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				logger.Log.Warn("Realtime read error", "user_id", c.userID, "error", err)
			}
			return
		}

		f, err := realtime.Decode(data)
		if err != nil {
			c.hub.reply(c, realtime.Frame{Command: realtime.CommandError, Message: "Malformed frame"})
			continue
		}
		c.handle(f)
	}
}

func (c *Client) handle(f realtime.Frame) {
	switch f.Command {
	case realtime.CommandSubscribe:
		if f.ID == "" {
			c.fail(f, apperror.BadRequest("Subscription id is required"))
			return
		}
		if err := c.hub.authorize(c.ctx, c, f.Destination); err != nil {
			c.fail(f, err)
			return
		}
		c.hub.subscribe(c, f.ID, f.Destination)

	case realtime.CommandUnsubscribe:
		c.hub.unsubscribe(c, f.ID)

	case realtime.CommandSend:
		if err := c.hub.relay(c.ctx, c, f); err != nil {
			c.fail(f, err)
		}

	default:
		c.fail(f, apperror.BadRequest("Unsupported command"))
	}
}

// fail answers a frame with an ERROR frame. Internal failures are logged and
// reported generically.
func (c *Client) fail(f realtime.Frame, err error) {
	message := "Internal Server Error"
	var appErr *apperror.AppError
	if errors.As(err, &appErr) && appErr.Code < 500 {
		message = appErr.Message
	} else {
		logger.Log.Error("Realtime frame failed", "user_id", c.userID, "command", f.Command, "destination", f.Destination, "error", err)
	}
	c.hub.reply(c, realtime.Frame{
		Command:     realtime.CommandError,
		Destination: f.Destination,
		ID:          f.ID,
		Message:     message,
	})
}

// writePump writes queued frames, one per websocket message, and keeps the
// connection alive with pings.
func (c *Client) writePump() {
	defer c.hub.wg.Done()
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The hub closed the channel
				c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
