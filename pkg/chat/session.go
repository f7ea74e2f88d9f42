// Package chat runs one application's conversation on the client side: durable
// sends through the REST API, live delivery over the realtime channel, and
// history polling while the channel is down.
package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"shramsaathi-backend/internal/domain"
	"shramsaathi-backend/pkg/apperror"
	"shramsaathi-backend/pkg/logger"
	"shramsaathi-backend/pkg/realtime"

	"github.com/google/uuid"
)

// DefaultPollInterval is how often history is refreshed while the channel is unavailable.
const DefaultPollInterval = 3 * time.Second

// DefaultEchoWait is how long a session waits for the relayed copy of its own
// published message before showing the persisted copy instead.
const DefaultEchoWait = 5 * time.Second

// Store persists and lists messages. *client.Client implements it.
type Store interface {
	SendChat(ctx context.Context, in domain.SendMessageInput) (*domain.ChatMessage, error)
	ChatHistory(ctx context.Context, applicationID int64) ([]domain.ChatMessage, error)
}

// Channel is the realtime side. *realtime.Channel implements it.
type Channel interface {
	Subscribe(topic string, handler realtime.Handler) *realtime.Subscription
	Send(destination string, payload any) error
	Connected() bool
}

// Outgoing is a message about to be sent.
type Outgoing struct {
	ApplicationID int64
	SenderID      int64
	ReceiverID    *int64
	Text          string
}

// Send publishes msg on the realtime channel and persists it. Both paths are
// attempted. A persist failure is returned wrapping ErrPersistenceFailure; a
// publish failure is only logged. published reports whether the realtime path
// took the message.
func Send(ctx context.Context, store Store, ch Channel, msg Outgoing) (stored *domain.ChatMessage, published bool, err error) {
	return send(ctx, store, ch, msg, uuid.NewString())
}

func send(ctx context.Context, store Store, ch Channel, msg Outgoing, clientMessageID string) (stored *domain.ChatMessage, published bool, err error) {
	text := strings.TrimSpace(msg.Text)
	if text == "" {
		return nil, false, errors.New("chat: empty message")
	}

	in := domain.SendMessageInput{
		ApplicationID:   msg.ApplicationID,
		SenderID:        msg.SenderID,
		ReceiverID:      msg.ReceiverID,
		Message:         text,
		ClientMessageID: clientMessageID,
	}

	if ch != nil {
		live := domain.ChatMessage{
			ApplicationID:   in.ApplicationID,
			SenderID:        in.SenderID,
			ReceiverID:      in.ReceiverID,
			Message:         in.Message,
			ClientMessageID: in.ClientMessageID,
			SentAt:          time.Now().UTC(),
		}
		if err := ch.Send(realtime.DestinationChat, live); err != nil {
			logger.Log.Warn("Chat publish failed, relying on persisted copy", "application_id", in.ApplicationID, "error", err)
		} else {
			published = true
		}
	}

	stored, err = store.SendChat(ctx, in)
	if err != nil {
		return nil, published, fmt.Errorf("%w: %w", apperror.ErrPersistenceFailure, err)
	}
	return stored, published, nil
}

// LoadHistory returns the persisted messages of an application, oldest first.
func LoadHistory(ctx context.Context, store Store, applicationID int64) ([]domain.ChatMessage, error) {
	msgs, err := store.ChatHistory(ctx, applicationID)
	if err != nil {
		return nil, err
	}
	sortMessages(msgs)
	return msgs, nil
}

func sortMessages(msgs []domain.ChatMessage) {
	sort.SliceStable(msgs, func(i, j int) bool {
		if !msgs[i].SentAt.Equal(msgs[j].SentAt) {
			return msgs[i].SentAt.Before(msgs[j].SentAt)
		}
		return msgs[i].ID < msgs[j].ID
	})
}

type Option func(*Session)

func WithPollInterval(d time.Duration) Option {
	return func(s *Session) { s.interval = d }
}

// WithOnChange registers a callback invoked with a snapshot after every change
// to the message view. It runs on the goroutine that caused the change.
func WithOnChange(fn func([]domain.ChatMessage)) Option {
	return func(s *Session) { s.onChange = fn }
}

// WithEchoWait sets how long Send waits for the relayed copy of a published
// message before appending the persisted one.
func WithEchoWait(d time.Duration) Option {
	return func(s *Session) { s.echoWait = d }
}

func WithLogger(l *slog.Logger) Option {
	return func(s *Session) { s.log = l }
}

// Session is an open conversation view. Live messages are appended as they
// arrive without re-fetching history. There is no deduplication against a
// concurrent history refresh, so a message can briefly show twice.
type Session struct {
	applicationID int64
	store         Store
	ch            Channel
	interval      time.Duration
	echoWait      time.Duration
	onChange      func([]domain.ChatMessage)
	log           *slog.Logger

	mu       sync.Mutex
	messages []domain.ChatMessage
	closed   bool
	sub      *realtime.Subscription
	// client message ids of published sends whose relayed copy has not arrived
	awaiting map[string]struct{}

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Open loads history and starts live delivery for applicationID. ch may be nil,
// in which case the session only polls.
func Open(ctx context.Context, applicationID int64, store Store, ch Channel, opts ...Option) (*Session, error) {
	s := &Session{
		applicationID: applicationID,
		store:         store,
		ch:            ch,
		interval:      DefaultPollInterval,
		echoWait:      DefaultEchoWait,
		log:           logger.Log,
		awaiting:      make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}

	history, err := LoadHistory(ctx, store, applicationID)
	if err != nil {
		return nil, err
	}
	s.messages = history

	if ch != nil {
		s.sub = ch.Subscribe(realtime.ChatQueue(applicationID), s.receive)
	}

	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.wg.Add(1)
	go s.poll(s.ctx)

	s.notify()
	return s, nil
}

// Messages returns a snapshot of the current view.
func (s *Session) Messages() []domain.ChatMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.ChatMessage(nil), s.messages...)
}

// Send sends text from senderID. When the realtime path took the message the
// relayed copy arrives through the subscription; otherwise, or when no relayed
// copy arrives within the echo wait, the persisted copy is appended.
func (s *Session) Send(ctx context.Context, senderID int64, receiverID *int64, text string) (*domain.ChatMessage, error) {
	id := uuid.NewString()
	s.mu.Lock()
	s.awaiting[id] = struct{}{}
	s.mu.Unlock()

	stored, published, err := send(ctx, s.store, s.ch, Outgoing{
		ApplicationID: s.applicationID,
		SenderID:      senderID,
		ReceiverID:    receiverID,
		Text:          text,
	}, id)
	if err != nil {
		s.settle(id)
		return nil, err
	}
	if !published {
		if s.settle(id) {
			s.append(*stored)
		}
		return stored, nil
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return stored, nil
	}
	s.wg.Add(1)
	s.mu.Unlock()
	go s.awaitEcho(id, *stored)
	return stored, nil
}

// settle stops waiting for id and reports whether it was still awaited.
func (s *Session) settle(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.awaiting[id]
	delete(s.awaiting, id)
	return ok
}

func (s *Session) awaitEcho(id string, stored domain.ChatMessage) {
	defer s.wg.Done()
	timer := time.NewTimer(s.echoWait)
	defer timer.Stop()

	select {
	case <-s.ctx.Done():
		return
	case <-timer.C:
	}
	if s.settle(id) {
		s.log.Warn("No relayed copy of sent chat message, showing persisted copy", "application_id", s.applicationID, "client_message_id", id)
		s.append(stored)
	}
}

// Close stops polling and live delivery. Results arriving afterwards are ignored.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	sub := s.sub
	s.sub = nil
	s.mu.Unlock()

	if sub != nil {
		sub.Unsubscribe()
	}
	s.cancel()
	s.wg.Wait()
}

func (s *Session) receive(body json.RawMessage) {
	var msg domain.ChatMessage
	if err := json.Unmarshal(body, &msg); err != nil {
		s.log.Warn("Dropping malformed chat message", "application_id", s.applicationID, "error", err)
		return
	}
	if msg.ApplicationID != s.applicationID {
		s.log.Warn("Dropping chat message for another application", "application_id", s.applicationID, "got", msg.ApplicationID)
		return
	}
	if msg.ClientMessageID != "" {
		s.settle(msg.ClientMessageID)
	}
	s.append(msg)
}

func (s *Session) append(msg domain.ChatMessage) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.messages = append(s.messages, msg)
	s.mu.Unlock()
	s.notify()
}

func (s *Session) poll(ctx context.Context) {
	defer s.wg.Done()
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		if s.ch != nil && s.ch.Connected() {
			continue
		}

		history, err := LoadHistory(ctx, s.store, s.applicationID)
		if err != nil {
			if ctx.Err() == nil {
				s.log.Warn("Chat history refresh failed", "application_id", s.applicationID, "error", err)
			}
			continue
		}

		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			return
		}
		s.messages = history
		s.mu.Unlock()
		s.notify()
	}
}

func (s *Session) notify() {
	if s.onChange == nil {
		return
	}
	s.onChange(s.Messages())
}
