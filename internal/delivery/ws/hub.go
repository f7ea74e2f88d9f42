// Package ws is the server side of the realtime channel: a websocket hub that
// relays chat messages and worker location pings to authorised subscribers.
package ws

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"time"

	"shramsaathi-backend/internal/domain"
	"shramsaathi-backend/pkg/apperror"
	"shramsaathi-backend/pkg/logger"
	"shramsaathi-backend/pkg/metrics"
	"shramsaathi-backend/pkg/realtime"

	"github.com/gorilla/websocket"
)

// Kinds used for the published-messages metric.
const (
	kindChat     = "chat"
	kindLocation = "location"
)

const (
	maxChatLength = 2000
	authTimeout   = 5 * time.Second
)

var errHubStopped = errors.New("ws: hub stopped")

type subscriber struct {
	c  *Client
	id string
}

// Hub tracks connected clients and their subscriptions. Run must be running for
// clients to be served.
type Hub struct {
	chat      domain.ChatUsecase
	metrics   *metrics.Collector
	backplane Backplane

	register   chan *Client
	unregister chan *Client
	done       chan struct{}

	mu      sync.RWMutex
	clients map[*Client]struct{}
	topics  map[string]map[subscriber]struct{}

	wg sync.WaitGroup
}

type Option func(*Hub)

// WithBackplane fans published messages out to other API instances.
func WithBackplane(b Backplane) Option {
	return func(h *Hub) { h.backplane = b }
}

func WithMetrics(c *metrics.Collector) Option {
	return func(h *Hub) { h.metrics = c }
}

func NewHub(chat domain.ChatUsecase, opts ...Option) *Hub {
	h := &Hub{
		chat:       chat,
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		clients:    make(map[*Client]struct{}),
		topics:     make(map[string]map[subscriber]struct{}),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Run serves registrations until ctx is cancelled, then closes every client and
// returns once their pumps have exited.
func (h *Hub) Run(ctx context.Context) {
	if h.backplane != nil {
		h.wg.Add(1)
		go func() {
			defer h.wg.Done()
			err := h.backplane.Subscribe(ctx, func(dest string, body json.RawMessage) {
				h.deliver(dest, body)
			})
			if err != nil && ctx.Err() == nil {
				logger.Log.Error("Realtime backplane stopped", "error", err)
			}
		}()
	}

	for {
		select {
		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = struct{}{}
			h.mu.Unlock()
			h.metrics.ConnectionOpened()
			c.ctx = ctx
			h.wg.Add(2)
			go c.writePump()
			go c.readPump()
			logger.Log.Debug("Realtime client registered", "user_id", c.userID, "role", c.role)

		case c := <-h.unregister:
			h.remove(c)
			logger.Log.Debug("Realtime client unregistered", "user_id", c.userID)

		case <-ctx.Done():
			close(h.done)
			h.mu.RLock()
			clients := make([]*Client, 0, len(h.clients))
			for c := range h.clients {
				clients = append(clients, c)
			}
			h.mu.RUnlock()
			for _, c := range clients {
				h.remove(c)
			}
			h.wg.Wait()
			return
		}
	}
}

// Serve hands an upgraded connection to the hub.
func (h *Hub) Serve(conn *websocket.Conn, userID int64, role string) error {
	c := newClient(h, conn, userID, role)
	select {
	case h.register <- c:
		return nil
	case <-h.done:
		conn.Close()
		return errHubStopped
	}
}

// remove drops a client and its subscriptions, closing its send queue.
func (h *Hub) remove(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; !ok {
		return
	}
	for id, dest := range c.subs {
		h.dropLocked(dest, subscriber{c: c, id: id})
	}
	c.subs = nil
	delete(h.clients, c)
	close(c.send)
	h.metrics.ConnectionClosed()
}

func (h *Hub) dropLocked(dest string, s subscriber) {
	subs := h.topics[dest]
	delete(subs, s)
	if len(subs) == 0 {
		delete(h.topics, dest)
	}
}

func (h *Hub) subscribe(c *Client, id, dest string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; !ok {
		return
	}
	if old, ok := c.subs[id]; ok {
		h.dropLocked(old, subscriber{c: c, id: id})
	}
	c.subs[id] = dest
	if h.topics[dest] == nil {
		h.topics[dest] = make(map[subscriber]struct{})
	}
	h.topics[dest][subscriber{c: c, id: id}] = struct{}{}
}

func (h *Hub) unsubscribe(c *Client, id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	dest, ok := c.subs[id]
	if !ok {
		return
	}
	delete(c.subs, id)
	h.dropLocked(dest, subscriber{c: c, id: id})
}

// Subscribers returns how many subscriptions dest has on this instance.
func (h *Hub) Subscribers(dest string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.topics[dest])
}

// Publish delivers body to local subscribers of every destination and forwards
// it over the backplane.
func (h *Hub) Publish(ctx context.Context, kind string, body json.RawMessage, dests ...string) {
	for _, dest := range dests {
		h.deliver(dest, body)
		if h.backplane != nil {
			if err := h.backplane.Publish(ctx, dest, body); err != nil {
				logger.Log.Warn("Realtime backplane publish failed", "destination", dest, "error", err)
			}
		}
	}
	h.metrics.RecordPublished(kind)
}

func (h *Hub) deliver(dest string, body json.RawMessage) {
	if !json.Valid(body) {
		logger.Log.Error("Dropping realtime message with invalid body", "destination", dest)
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for s := range h.topics[dest] {
		data, err := json.Marshal(realtime.Frame{
			Command:     realtime.CommandMessage,
			Destination: dest,
			ID:          s.id,
			Body:        body,
		})
		if err != nil {
			logger.Log.Error("Encoding realtime frame failed", "destination", dest, "error", err)
			continue
		}
		select {
		case s.c.send <- data:
		default:
			logger.Log.Warn("Realtime send buffer full, dropping message", "user_id", s.c.userID, "destination", dest)
		}
	}
}

// reply queues a frame for one client, unless it has already been removed.
func (h *Hub) reply(c *Client, f realtime.Frame) {
	data, err := json.Marshal(f)
	if err != nil {
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	if _, ok := h.clients[c]; !ok {
		return
	}
	select {
	case c.send <- data:
	default:
		logger.Log.Warn("Realtime send buffer full, dropping reply", "user_id", c.userID)
	}
}

// authorize checks the client may follow dest.
func (h *Hub) authorize(ctx context.Context, c *Client, dest string) error {
	kind, id, ok := realtime.ParseTopic(dest)
	if !ok {
		return apperror.BadRequest("Unknown destination")
	}

	ctx, cancel := context.WithTimeout(ctx, authTimeout)
	defer cancel()

	switch kind {
	case realtime.TopicChat:
		if _, err := h.chat.Conversation(ctx, c.userID, id); err != nil {
			return err
		}
	case realtime.TopicLocation:
		allowed, err := h.chat.CanTrack(ctx, c.userID, c.role, id)
		if err != nil {
			return err
		}
		if !allowed {
			return apperror.Forbidden("You cannot follow this worker's location")
		}
	}
	return nil
}

// relay handles a SEND frame from c.
func (h *Hub) relay(ctx context.Context, c *Client, f realtime.Frame) error {
	if f.Destination == realtime.DestinationChat {
		return h.relayChat(ctx, c, f.Body)
	}
	if workerID, ok := realtime.ParseLocationDestination(f.Destination); ok {
		return h.relayLocation(ctx, c, workerID, f.Body)
	}
	return apperror.BadRequest("Unknown destination")
}

func (h *Hub) relayChat(ctx context.Context, c *Client, body json.RawMessage) error {
	var msg domain.ChatMessage
	if err := json.Unmarshal(body, &msg); err != nil {
		return apperror.BadRequest("Invalid chat message")
	}
	msg.Message = strings.TrimSpace(msg.Message)
	if msg.Message == "" || len(msg.Message) > maxChatLength {
		return apperror.BadRequest("Message must be between 1 and 2000 characters")
	}

	authCtx, cancel := context.WithTimeout(ctx, authTimeout)
	conv, err := h.chat.Conversation(authCtx, c.userID, msg.ApplicationID)
	cancel()
	if err != nil {
		return err
	}

	receiver := conv.Counterpart(c.userID)
	msg.ID = 0
	msg.SenderID = c.userID
	msg.ReceiverID = &receiver
	if msg.SentAt.IsZero() {
		msg.SentAt = time.Now().UTC()
	}

	out, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	h.Publish(ctx, kindChat, out, realtime.ChatQueue(msg.ApplicationID), realtime.ChatTopic(msg.ApplicationID))
	return nil
}

func (h *Hub) relayLocation(ctx context.Context, c *Client, workerID int64, body json.RawMessage) error {
	if workerID != c.userID {
		return apperror.Forbidden("You can only publish your own location")
	}
	var ping domain.LocationPing
	if err := json.Unmarshal(body, &ping); err != nil {
		return apperror.BadRequest("Invalid location ping")
	}
	if ping.Lat < -90 || ping.Lat > 90 || ping.Lon < -180 || ping.Lon > 180 {
		return apperror.BadRequest("Coordinates out of range")
	}
	ping.WorkerID = workerID
	if ping.Timestamp == 0 {
		ping.Timestamp = time.Now().UnixMilli()
	}

	out, err := json.Marshal(ping)
	if err != nil {
		return err
	}
	h.Publish(ctx, kindLocation, out, realtime.LocationTopic(workerID))
	return nil
}
