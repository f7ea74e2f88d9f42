package realtime

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Transport opens connections to the broker.
type Transport interface {
	Dial(ctx context.Context) (Conn, error)
}

// Conn is one live connection. WriteFrame may be called concurrently with
// ReadFrame; ReadFrame is only called from one goroutine.
type Conn interface {
	ReadFrame() (Frame, error)
	WriteFrame(f Frame) error
	Close() error
}

const writeWait = 10 * time.Second

// WebsocketTransport dials the API server's /api/ws endpoint.
type WebsocketTransport struct {
	URL    string
	Header http.Header
	Dialer *websocket.Dialer
}

func NewWebsocketTransport(url string, header http.Header) *WebsocketTransport {
	return &WebsocketTransport{URL: url, Header: header, Dialer: websocket.DefaultDialer}
}

func (t *WebsocketTransport) Dial(ctx context.Context) (Conn, error) {
	dialer := t.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	ws, resp, err := dialer.DialContext(ctx, t.URL, t.Header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("realtime: dial %s: %s: %w", t.URL, resp.Status, err)
		}
		return nil, fmt.Errorf("realtime: dial %s: %w", t.URL, err)
	}
	return &wsConn{ws: ws}, nil
}

type wsConn struct {
	ws *websocket.Conn
	mu sync.Mutex // one writer at a time
}

func (c *wsConn) ReadFrame() (Frame, error) {
	_, data, err := c.ws.ReadMessage()
	if err != nil {
		return Frame{}, err
	}
	return Decode(data)
}

func (c *wsConn) WriteFrame(f Frame) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ws.SetWriteDeadline(time.Now().Add(writeWait))
	return c.ws.WriteJSON(f)
}

func (c *wsConn) Close() error {
	c.mu.Lock()
	c.ws.SetWriteDeadline(time.Now().Add(time.Second))
	_ = c.ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	c.mu.Unlock()
	return c.ws.Close()
}
