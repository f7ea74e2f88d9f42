package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"shramsaathi-backend/pkg/apperror"
	"shramsaathi-backend/pkg/logger"

	"github.com/google/uuid"
)

// DefaultReconnectDelay is the fixed wait between reconnect attempts.
const DefaultReconnectDelay = 5 * time.Second

const defaultDialTimeout = 10 * time.Second

var errDisconnected = errors.New("realtime: disconnected while connecting")

// Handler receives the body of each message on a subscribed topic.
type Handler func(body json.RawMessage)

type Option func(*Channel)

func WithReconnectDelay(d time.Duration) Option {
	return func(c *Channel) { c.reconnectDelay = d }
}

func WithDialTimeout(d time.Duration) Option {
	return func(c *Channel) { c.dialTimeout = d }
}

func WithLogger(l *slog.Logger) Option {
	return func(c *Channel) { c.log = l }
}

// Channel is one shared pub/sub session. Create one per process and hand it to
// everything that needs realtime delivery; Disconnect affects every subscriber.
//
// Delivery is at-most-once. Messages on one topic reach a handler in the order
// the transport delivers them, and handlers run on the channel's read goroutine.
type Channel struct {
	transport      Transport
	reconnectDelay time.Duration
	dialTimeout    time.Duration
	log            *slog.Logger

	dialMu sync.Mutex // serializes dials

	mu      sync.Mutex
	conn    Conn
	subs    map[string]*Subscription
	gen     uint64 // bumped by Disconnect; stale dials and loops compare against it
	session context.Context
	cancel  context.CancelFunc
	looping bool
	wg      sync.WaitGroup
}

func NewChannel(t Transport, opts ...Option) *Channel {
	c := &Channel{
		transport:      t,
		reconnectDelay: DefaultReconnectDelay,
		dialTimeout:    defaultDialTimeout,
		log:            logger.Log,
		subs:           make(map[string]*Subscription),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.session, c.cancel = context.WithCancel(context.Background())
	return c
}

// Subscription is the handle returned by Subscribe.
type Subscription struct {
	ch      *Channel
	id      string
	topic   string
	handler Handler
	active  bool // guarded by ch.mu
}

func (s *Subscription) Topic() string { return s.topic }

// Unsubscribe removes the subscription whether it is still queued or live.
// It is safe to call more than once and after Disconnect.
func (s *Subscription) Unsubscribe() {
	c := s.ch
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.subs[s.id] != s {
		return
	}
	delete(c.subs, s.id)
	if s.active && c.conn != nil {
		if err := c.conn.WriteFrame(Frame{Command: CommandUnsubscribe, Destination: s.topic, ID: s.id}); err != nil {
			c.log.Debug("Realtime unsubscribe not sent", "topic", s.topic, "error", err)
		}
	}
	s.active = false
}

// Connected reports whether a live session exists.
func (c *Channel) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil
}

// Connect establishes the session. It returns immediately when already connected.
func (c *Channel) Connect(ctx context.Context) error {
	c.mu.Lock()
	gen := c.gen
	c.mu.Unlock()
	return c.connect(ctx, gen, false)
}

func (c *Channel) connect(ctx context.Context, gen uint64, fromLoop bool) error {
	c.dialMu.Lock()
	defer c.dialMu.Unlock()

	c.mu.Lock()
	if c.gen != gen {
		c.mu.Unlock()
		return errDisconnected
	}
	if c.conn != nil {
		if fromLoop {
			c.looping = false
		}
		c.mu.Unlock()
		return nil
	}
	session := c.session
	c.mu.Unlock()

	dialCtx, cancel := context.WithTimeout(ctx, c.dialTimeout)
	defer cancel()
	stop := context.AfterFunc(session, cancel)
	defer stop()

	conn, err := c.transport.Dial(dialCtx)
	if err != nil {
		return fmt.Errorf("%w: %v", apperror.ErrTransientNetworkFailure, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gen != gen {
		conn.Close()
		return errDisconnected
	}
	if fromLoop {
		c.looping = false
	}
	c.attach(conn)
	return nil
}

// attach installs conn and re-arms every subscription. c.mu must be held.
func (c *Channel) attach(conn Conn) {
	c.conn = conn
	for _, s := range c.subs {
		if err := conn.WriteFrame(Frame{Command: CommandSubscribe, Destination: s.topic, ID: s.id}); err != nil {
			// the read loop notices the broken connection and reconnects
			c.log.Warn("Realtime subscribe failed", "topic", s.topic, "error", err)
			continue
		}
		s.active = true
	}

	c.wg.Add(1)
	go c.readLoop(conn, c.gen)
	c.log.Info("Realtime channel connected", "subscriptions", len(c.subs))
}

// startLoop launches the background connect loop unless one is running.
// c.mu must be held.
func (c *Channel) startLoop(delay time.Duration) {
	if c.looping {
		return
	}
	c.looping = true
	c.wg.Add(1)
	go c.reconnect(c.gen, c.session, delay)
}

func (c *Channel) reconnect(gen uint64, session context.Context, delay time.Duration) {
	defer c.wg.Done()
	for {
		if delay > 0 {
			t := time.NewTimer(delay)
			select {
			case <-t.C:
			case <-session.Done():
				t.Stop()
				return
			}
		}

		err := c.connect(session, gen, true)
		if err == nil || session.Err() != nil || errors.Is(err, errDisconnected) {
			return
		}
		c.log.Warn("Realtime connect failed", "error", err, "retry_in", c.reconnectDelay)
		delay = c.reconnectDelay
	}
}

func (c *Channel) readLoop(conn Conn, gen uint64) {
	defer c.wg.Done()
	for {
		f, err := conn.ReadFrame()
		if err != nil {
			if errors.Is(err, ErrMalformedFrame) {
				c.log.Warn("Dropping malformed realtime frame", "error", err)
				continue
			}
			c.lost(conn, gen, err)
			return
		}

		switch f.Command {
		case CommandMessage:
			c.deliver(f)
		case CommandError:
			c.log.Warn("Realtime server error", "destination", f.Destination, "message", f.Message)
		default:
			c.log.Debug("Ignoring realtime frame", "command", f.Command)
		}
	}
}

func (c *Channel) deliver(f Frame) {
	var handlers []Handler
	c.mu.Lock()
	if f.ID != "" {
		if s, ok := c.subs[f.ID]; ok {
			handlers = append(handlers, s.handler)
		}
	} else {
		for _, s := range c.subs {
			if s.topic == f.Destination {
				handlers = append(handlers, s.handler)
			}
		}
	}
	c.mu.Unlock()

	for _, h := range handlers {
		c.invoke(h, f)
	}
}

// invoke isolates one handler call so a panicking handler drops only its message.
func (c *Channel) invoke(h Handler, f Frame) {
	defer func() {
		if r := recover(); r != nil {
			c.log.Error("Realtime handler panicked", "destination", f.Destination, "panic", r)
		}
	}()
	h(f.Body)
}

func (c *Channel) lost(conn Conn, gen uint64, err error) {
	conn.Close()

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gen != gen || c.conn != conn {
		return
	}
	c.conn = nil
	for _, s := range c.subs {
		s.active = false
	}
	c.log.Warn("Realtime connection lost", "error", err, "reconnect_in", c.reconnectDelay)
	c.startLoop(c.reconnectDelay)
}

// Subscribe registers handler for topic. While disconnected the subscription is
// queued and activated once the session is up; the call also starts connecting.
func (c *Channel) Subscribe(topic string, handler Handler) *Subscription {
	s := &Subscription{ch: c, id: uuid.NewString(), topic: topic, handler: handler}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.subs[s.id] = s
	if c.conn == nil {
		c.startLoop(0)
		return s
	}
	if err := c.conn.WriteFrame(Frame{Command: CommandSubscribe, Destination: topic, ID: s.id}); err != nil {
		c.log.Warn("Realtime subscribe failed", "topic", topic, "error", err)
		return s
	}
	s.active = true
	return s
}

// Send publishes payload to destination. Nothing is buffered: while disconnected
// the message is dropped and ErrChannelNotConnected returned.
func (c *Channel) Send(destination string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("realtime: encode payload: %w", err)
	}

	c.mu.Lock()
	conn := c.conn
	if conn == nil {
		c.startLoop(0)
	}
	c.mu.Unlock()

	if conn == nil {
		c.log.Warn("Realtime channel not connected, dropping message", "destination", destination)
		return apperror.ErrChannelNotConnected
	}
	if err := conn.WriteFrame(Frame{Command: CommandSend, Destination: destination, Body: body}); err != nil {
		c.log.Warn("Realtime send failed, dropping message", "destination", destination, "error", err)
		return errors.Join(apperror.ErrChannelNotConnected, err)
	}
	return nil
}

// Disconnect closes the session and forgets every subscription, live or queued.
// It blocks until the channel's goroutines have exited, so it must not be
// called from a Handler. With no session it does nothing.
func (c *Channel) Disconnect() {
	c.mu.Lock()
	if c.conn == nil && !c.looping && len(c.subs) == 0 {
		c.mu.Unlock()
		return
	}
	c.cancel()
	c.session, c.cancel = context.WithCancel(context.Background())
	c.gen++
	conn := c.conn
	c.conn = nil
	c.looping = false
	c.subs = make(map[string]*Subscription)
	c.mu.Unlock()

	if conn != nil {
		conn.Close()
	}
	c.wg.Wait()
	c.log.Info("Realtime channel disconnected")
}
