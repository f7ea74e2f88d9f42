package chat_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"shramsaathi-backend/internal/domain"
	"shramsaathi-backend/pkg/apperror"
	"shramsaathi-backend/pkg/chat"
	"shramsaathi-backend/pkg/realtime"
	"shramsaathi-backend/pkg/realtime/realtimetest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const wait = 2 * time.Second
const tick = 5 * time.Millisecond

var errStoreDown = errors.New("store down")

type memStore struct {
	mu      sync.Mutex
	next    int64
	clock   time.Time
	msgs    []domain.ChatMessage
	failing bool
}

func newMemStore() *memStore {
	return &memStore{clock: time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)}
}

func (s *memStore) SendChat(_ context.Context, in domain.SendMessageInput) (*domain.ChatMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failing {
		return nil, errStoreDown
	}
	s.next++
	s.clock = s.clock.Add(time.Second)
	msg := domain.ChatMessage{
		ID:              s.next,
		ApplicationID:   in.ApplicationID,
		SenderID:        in.SenderID,
		ReceiverID:      in.ReceiverID,
		Message:         in.Message,
		ClientMessageID: in.ClientMessageID,
		SentAt:          s.clock,
	}
	s.msgs = append(s.msgs, msg)
	return &msg, nil
}

func (s *memStore) ChatHistory(_ context.Context, applicationID int64) ([]domain.ChatMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failing {
		return nil, errStoreDown
	}
	var out []domain.ChatMessage
	// newest first, so callers must sort
	for i := len(s.msgs) - 1; i >= 0; i-- {
		if s.msgs[i].ApplicationID == applicationID {
			out = append(out, s.msgs[i])
		}
	}
	return out, nil
}

func (s *memStore) setFailing(v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failing = v
}

// chatBroker relays /app/chat to the application's queue, like the server does.
func chatBroker() *realtimetest.Broker {
	b := realtimetest.NewBroker()
	b.Route = func(f realtime.Frame) []string {
		if f.Destination != realtime.DestinationChat {
			return []string{f.Destination}
		}
		var msg domain.ChatMessage
		if err := json.Unmarshal(f.Body, &msg); err != nil {
			return nil
		}
		return []string{realtime.ChatQueue(msg.ApplicationID)}
	}
	return b
}

func connected(t *testing.T, b *realtimetest.Broker) *realtime.Channel {
	t.Helper()
	ch := realtime.NewChannel(b, realtime.WithReconnectDelay(20*time.Millisecond))
	require.NoError(t, ch.Connect(context.Background()))
	return ch
}

func texts(msgs []domain.ChatMessage) []string {
	out := make([]string, len(msgs))
	for i, m := range msgs {
		out[i] = m.Message
	}
	return out
}

func TestSendThenLoadHistory(t *testing.T) {
	store := newMemStore()
	ctx := context.Background()

	_, _, err := chat.Send(ctx, store, nil, chat.Outgoing{ApplicationID: 9, SenderID: 2, Text: "earlier"})
	require.NoError(t, err)
	stored, published, err := chat.Send(ctx, store, nil, chat.Outgoing{ApplicationID: 9, SenderID: 1, Text: "hi"})
	require.NoError(t, err)
	assert.False(t, published)
	assert.NotEmpty(t, stored.ClientMessageID)

	history, err := chat.LoadHistory(ctx, store, 9)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, "hi", history[1].Message)
	assert.Equal(t, int64(1), history[1].SenderID)
}

func TestLoadHistoryBreaksTiesByID(t *testing.T) {
	at := time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)
	store := newMemStore()
	store.msgs = []domain.ChatMessage{
		{ID: 3, ApplicationID: 1, Message: "c", SentAt: at},
		{ID: 1, ApplicationID: 1, Message: "a", SentAt: at},
		{ID: 2, ApplicationID: 1, Message: "z", SentAt: at.Add(-time.Minute)},
	}

	history, err := chat.LoadHistory(context.Background(), store, 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"z", "a", "c"}, texts(history))
}

func TestSendSurfacesPersistenceFailure(t *testing.T) {
	b := chatBroker()
	ch := connected(t, b)
	defer ch.Disconnect()

	store := newMemStore()
	store.setFailing(true)

	_, published, err := chat.Send(context.Background(), store, ch, chat.Outgoing{ApplicationID: 4, SenderID: 1, Text: "hello"})
	assert.ErrorIs(t, err, apperror.ErrPersistenceFailure)
	assert.ErrorIs(t, err, errStoreDown)
	assert.True(t, published)
	assert.Len(t, b.Sent(), 1)
}

func TestSendRejectsEmptyText(t *testing.T) {
	_, _, err := chat.Send(context.Background(), newMemStore(), nil, chat.Outgoing{ApplicationID: 1, SenderID: 1, Text: "  "})
	assert.Error(t, err)
}

func TestSessionLiveAppend(t *testing.T) {
	b := chatBroker()
	ch := connected(t, b)
	defer ch.Disconnect()

	store := newMemStore()
	_, _, err := chat.Send(context.Background(), store, nil, chat.Outgoing{ApplicationID: 5, SenderID: 2, Text: "first"})
	require.NoError(t, err)

	s, err := chat.Open(context.Background(), 5, store, ch, chat.WithPollInterval(time.Hour))
	require.NoError(t, err)
	defer s.Close()
	require.Eventually(t, func() bool { return b.Subscribers(realtime.ChatQueue(5)) == 1 }, wait, tick)

	_, err = s.Send(context.Background(), 1, nil, "second")
	require.NoError(t, err)

	// the relayed copy is appended; history is not re-fetched
	require.Eventually(t, func() bool { return len(s.Messages()) == 2 }, wait, tick)
	assert.Equal(t, []string{"first", "second"}, texts(s.Messages()))

	// messages for other applications never reach this view
	b.Publish(realtime.ChatQueue(6), []byte(`{"applicationId":6,"message":"elsewhere"}`))
	b.Publish(realtime.ChatQueue(5), []byte(`{"applicationId":6,"message":"misrouted"}`))
	b.Publish(realtime.ChatQueue(5), []byte(`not json`))
	b.Publish(realtime.ChatQueue(5), []byte(`{"applicationId":5,"senderId":2,"message":"third"}`))
	require.Eventually(t, func() bool { return len(s.Messages()) == 3 }, wait, tick)
	assert.Equal(t, "third", s.Messages()[2].Message)
}

func TestSessionAppendsPersistedCopyWhenPublishFails(t *testing.T) {
	b := chatBroker()
	b.FailNextDials(1000)
	ch := realtime.NewChannel(b, realtime.WithReconnectDelay(20*time.Millisecond))
	defer ch.Disconnect()

	s, err := chat.Open(context.Background(), 8, newMemStore(), ch, chat.WithPollInterval(time.Hour))
	require.NoError(t, err)
	defer s.Close()

	msg, err := s.Send(context.Background(), 1, nil, "offline")
	require.NoError(t, err)
	assert.Equal(t, []string{"offline"}, texts(s.Messages()))
	assert.Equal(t, msg.ID, s.Messages()[0].ID)
}

func TestSessionShowsPersistedCopyWhenEchoNeverArrives(t *testing.T) {
	b := realtimetest.NewBroker()
	// the server refuses the relay, so nothing comes back on the queue
	b.Route = func(f realtime.Frame) []string { return nil }
	ch := connected(t, b)
	defer ch.Disconnect()

	s, err := chat.Open(context.Background(), 9, newMemStore(), ch,
		chat.WithPollInterval(time.Hour), chat.WithEchoWait(20*time.Millisecond))
	require.NoError(t, err)
	defer s.Close()

	msg, err := s.Send(context.Background(), 1, nil, "unrelayed")
	require.NoError(t, err)
	require.Eventually(t, func() bool { return len(s.Messages()) == 1 }, wait, tick)
	assert.Equal(t, msg.ID, s.Messages()[0].ID)
}

func TestSessionRelayedCopySuppressesPersistedCopy(t *testing.T) {
	b := chatBroker()
	ch := connected(t, b)
	defer ch.Disconnect()

	s, err := chat.Open(context.Background(), 10, newMemStore(), ch,
		chat.WithPollInterval(time.Hour), chat.WithEchoWait(200*time.Millisecond))
	require.NoError(t, err)
	defer s.Close()
	require.Eventually(t, func() bool { return b.Subscribers(realtime.ChatQueue(10)) == 1 }, wait, tick)

	_, err = s.Send(context.Background(), 1, nil, "relayed")
	require.NoError(t, err)
	require.Eventually(t, func() bool { return len(s.Messages()) == 1 }, wait, tick)

	time.Sleep(300 * time.Millisecond)
	assert.Equal(t, []string{"relayed"}, texts(s.Messages()))
}

func TestSessionPollsWithoutChannel(t *testing.T) {
	store := newMemStore()
	changes := make(chan int, 16)

	s, err := chat.Open(context.Background(), 3, store, nil,
		chat.WithPollInterval(10*time.Millisecond),
		chat.WithOnChange(func(m []domain.ChatMessage) {
			select {
			case changes <- len(m):
			default:
			}
		}))
	require.NoError(t, err)
	defer s.Close()
	assert.Empty(t, s.Messages())

	// another client persists a message
	_, _, err = chat.Send(context.Background(), store, nil, chat.Outgoing{ApplicationID: 3, SenderID: 2, Text: "polled"})
	require.NoError(t, err)

	require.Eventually(t, func() bool { return len(s.Messages()) == 1 }, wait, tick)
	assert.Equal(t, "polled", s.Messages()[0].Message)
	assert.NotEmpty(t, changes)
}

func TestSessionPollSurvivesStoreOutage(t *testing.T) {
	store := newMemStore()
	s, err := chat.Open(context.Background(), 3, store, nil, chat.WithPollInterval(10*time.Millisecond))
	require.NoError(t, err)
	defer s.Close()

	store.setFailing(true)
	time.Sleep(30 * time.Millisecond)
	store.setFailing(false)

	_, _, err = chat.Send(context.Background(), store, nil, chat.Outgoing{ApplicationID: 3, SenderID: 2, Text: "back"})
	require.NoError(t, err)
	require.Eventually(t, func() bool { return len(s.Messages()) == 1 }, wait, tick)
}

func TestOpenFailsWhenHistoryFails(t *testing.T) {
	store := newMemStore()
	store.setFailing(true)

	_, err := chat.Open(context.Background(), 1, store, nil)
	assert.ErrorIs(t, err, errStoreDown)
}

func TestCloseTearsDown(t *testing.T) {
	b := chatBroker()
	ch := connected(t, b)
	defer ch.Disconnect()

	s, err := chat.Open(context.Background(), 12, newMemStore(), ch, chat.WithPollInterval(10*time.Millisecond))
	require.NoError(t, err)
	require.Eventually(t, func() bool { return b.Subscribers(realtime.ChatQueue(12)) == 1 }, wait, tick)

	s.Close()
	s.Close()
	assert.Equal(t, 0, b.Subscribers(realtime.ChatQueue(12)))

	b.Publish(realtime.ChatQueue(12), []byte(`{"applicationId":12,"message":"late"}`))
	time.Sleep(20 * time.Millisecond)
	assert.Empty(t, s.Messages())
}
