// Package realtimetest provides an in-process broker implementing
// realtime.Transport for tests.
package realtimetest

import (
	"context"
	"errors"
	"io"
	"sync"

	"shramsaathi-backend/pkg/realtime"
)

// ErrDialRefused is returned by Dial while dials are set to fail.
var ErrDialRefused = errors.New("realtimetest: dial refused")

type item struct {
	f   realtime.Frame
	err error
}

// Broker routes SEND frames to the subscribers of the routed destinations.
type Broker struct {
	// Route maps a SEND frame to the destinations it is delivered on. The default
	// delivers on the frame's own destination.
	Route func(f realtime.Frame) []string

	mu        sync.Mutex
	conns     map[*Conn]struct{}
	dials     int
	failDials int
	sent      []realtime.Frame
}

func NewBroker() *Broker {
	return &Broker{conns: make(map[*Conn]struct{})}
}

func (b *Broker) Dial(ctx context.Context) (realtime.Conn, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.dials++
	if b.failDials > 0 {
		b.failDials--
		return nil, ErrDialRefused
	}
	c := &Conn{
		b:     b,
		inbox: make(chan item, 64),
		done:  make(chan struct{}),
		subs:  make(map[string]string),
	}
	b.conns[c] = struct{}{}
	return c, nil
}

// FailNextDials makes the next n dials fail.
func (b *Broker) FailNextDials(n int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failDials = n
}

func (b *Broker) Dials() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.dials
}

// Sent returns every SEND frame received so far.
func (b *Broker) Sent() []realtime.Frame {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]realtime.Frame(nil), b.sent...)
}

// Subscribers counts live subscriptions on destination across connections.
func (b *Broker) Subscribers(destination string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for c := range b.conns {
		for _, d := range c.subs {
			if d == destination {
				n++
			}
		}
	}
	return n
}

// Publish delivers body to every subscriber of destination.
func (b *Broker) Publish(destination string, body []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.publish(destination, body)
}

func (b *Broker) publish(destination string, body []byte) {
	for c := range b.conns {
		for id, d := range c.subs {
			if d == destination {
				c.push(item{f: realtime.Frame{Command: realtime.CommandMessage, Destination: d, ID: id, Body: body}})
			}
		}
	}
}

// InjectMalformed makes every connection read one undecodable frame.
func (b *Broker) InjectMalformed() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for c := range b.conns {
		c.push(item{err: realtime.ErrMalformedFrame})
	}
}

// Drop closes every connection from the broker side.
func (b *Broker) Drop() {
	b.mu.Lock()
	conns := make([]*Conn, 0, len(b.conns))
	for c := range b.conns {
		conns = append(conns, c)
	}
	b.mu.Unlock()

	for _, c := range conns {
		c.Close()
	}
}

// Conn is one client connection to the Broker.
type Conn struct {
	b     *Broker
	inbox chan item
	done  chan struct{}
	once  sync.Once
	subs  map[string]string // subscription id -> destination, guarded by b.mu
}

func (c *Conn) push(it item) {
	select {
	case c.inbox <- it:
	default: // a full inbox drops, like a slow websocket client
	}
}

func (c *Conn) ReadFrame() (realtime.Frame, error) {
	select {
	case <-c.done:
		return realtime.Frame{}, io.EOF
	default:
	}
	select {
	case it := <-c.inbox:
		return it.f, it.err
	case <-c.done:
		return realtime.Frame{}, io.EOF
	}
}

func (c *Conn) WriteFrame(f realtime.Frame) error {
	select {
	case <-c.done:
		return io.ErrClosedPipe
	default:
	}

	b := c.b
	b.mu.Lock()
	defer b.mu.Unlock()
	switch f.Command {
	case realtime.CommandSubscribe:
		c.subs[f.ID] = f.Destination
	case realtime.CommandUnsubscribe:
		delete(c.subs, f.ID)
	case realtime.CommandSend:
		b.sent = append(b.sent, f)
		destinations := []string{f.Destination}
		if b.Route != nil {
			destinations = b.Route(f)
		}
		for _, d := range destinations {
			b.publish(d, f.Body)
		}
	}
	return nil
}

func (c *Conn) Close() error {
	c.once.Do(func() {
		close(c.done)
		c.b.mu.Lock()
		delete(c.b.conns, c)
		c.b.mu.Unlock()
	})
	return nil
}
