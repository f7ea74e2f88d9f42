package realtime_test

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"shramsaathi-backend/pkg/apperror"
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

// recorder collects message bodies delivered to a handler.
type recorder struct {
	mu   sync.Mutex
	msgs []string
}

func (r *recorder) handle(body json.RawMessage) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, string(body))
}

func (r *recorder) got() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.msgs...)
}

func newChannel(b *realtimetest.Broker) *realtime.Channel {
	return realtime.NewChannel(b, realtime.WithReconnectDelay(20*time.Millisecond))
}

func TestSubscribeBeforeConnectIsQueued(t *testing.T) {
	b := realtimetest.NewBroker()
	ch := newChannel(b)
	defer ch.Disconnect()

	chat := &recorder{}
	other := &recorder{}
	ch.Subscribe(realtime.ChatQueue(7), chat.handle)
	ch.Subscribe(realtime.ChatQueue(8), other.handle)

	require.NoError(t, ch.Connect(context.Background()))
	require.Eventually(t, func() bool { return b.Subscribers(realtime.ChatQueue(7)) == 1 }, wait, tick)

	b.Publish(realtime.ChatQueue(7), []byte(`{"message":"hi"}`))
	b.Publish(realtime.ChatQueue(7), []byte(`{"message":"second"}`))

	require.Eventually(t, func() bool { return len(chat.got()) == 2 }, wait, tick)
	assert.Equal(t, []string{`{"message":"hi"}`, `{"message":"second"}`}, chat.got())
	assert.Empty(t, other.got())
}

func TestSubscribeTriggersLazyConnect(t *testing.T) {
	b := realtimetest.NewBroker()
	ch := newChannel(b)
	defer ch.Disconnect()

	assert.False(t, ch.Connected())
	ch.Subscribe(realtime.LocationTopic(3), func(json.RawMessage) {})

	require.Eventually(t, ch.Connected, wait, tick)
	assert.Equal(t, 1, b.Subscribers(realtime.LocationTopic(3)))
}

func TestConnectIsIdempotent(t *testing.T) {
	b := realtimetest.NewBroker()
	ch := newChannel(b)
	defer ch.Disconnect()

	require.NoError(t, ch.Connect(context.Background()))
	require.NoError(t, ch.Connect(context.Background()))
	assert.Equal(t, 1, b.Dials())
}

func TestSendWhileDisconnectedIsDropped(t *testing.T) {
	b := realtimetest.NewBroker()
	b.FailNextDials(1000)
	ch := newChannel(b)
	defer ch.Disconnect()

	err := ch.Send(realtime.DestinationChat, map[string]string{"message": "lost"})
	assert.ErrorIs(t, err, apperror.ErrChannelNotConnected)
	assert.Empty(t, b.Sent())
}

func TestSendPublishes(t *testing.T) {
	b := realtimetest.NewBroker()
	ch := newChannel(b)
	defer ch.Disconnect()

	rec := &recorder{}
	ch.Subscribe(realtime.LocationTopic(4), rec.handle)
	require.NoError(t, ch.Connect(context.Background()))
	require.Eventually(t, func() bool { return b.Subscribers(realtime.LocationTopic(4)) == 1 }, wait, tick)

	require.NoError(t, ch.Send(realtime.LocationTopic(4), map[string]float64{"lat": 17.4}))
	require.Eventually(t, func() bool { return len(rec.got()) == 1 }, wait, tick)
	assert.JSONEq(t, `{"lat":17.4}`, rec.got()[0])
}

func TestUnsubscribeBeforeActivation(t *testing.T) {
	b := realtimetest.NewBroker()
	b.FailNextDials(1000)
	ch := newChannel(b)
	defer ch.Disconnect()

	sub := ch.Subscribe(realtime.ChatQueue(1), func(json.RawMessage) {})
	sub.Unsubscribe()
	sub.Unsubscribe()

	b.FailNextDials(0)
	require.NoError(t, ch.Connect(context.Background()))
	assert.Equal(t, 0, b.Subscribers(realtime.ChatQueue(1)))
}

func TestUnsubscribeLive(t *testing.T) {
	b := realtimetest.NewBroker()
	ch := newChannel(b)
	defer ch.Disconnect()

	rec := &recorder{}
	sub := ch.Subscribe(realtime.ChatQueue(2), rec.handle)
	require.NoError(t, ch.Connect(context.Background()))
	require.Eventually(t, func() bool { return b.Subscribers(realtime.ChatQueue(2)) == 1 }, wait, tick)

	sub.Unsubscribe()
	assert.Equal(t, 0, b.Subscribers(realtime.ChatQueue(2)))

	b.Publish(realtime.ChatQueue(2), []byte(`{}`))
	time.Sleep(20 * time.Millisecond)
	assert.Empty(t, rec.got())
}

func TestMalformedFrameDoesNotEndSubscription(t *testing.T) {
	b := realtimetest.NewBroker()
	ch := newChannel(b)
	defer ch.Disconnect()

	rec := &recorder{}
	ch.Subscribe(realtime.ChatQueue(5), rec.handle)
	require.NoError(t, ch.Connect(context.Background()))
	require.Eventually(t, func() bool { return b.Subscribers(realtime.ChatQueue(5)) == 1 }, wait, tick)

	b.InjectMalformed()
	b.Publish(realtime.ChatQueue(5), []byte(`"after"`))

	require.Eventually(t, func() bool { return len(rec.got()) == 1 }, wait, tick)
	assert.True(t, ch.Connected())
	assert.Equal(t, 1, b.Dials())
}

func TestPanickingHandlerDropsOnlyItsMessage(t *testing.T) {
	b := realtimetest.NewBroker()
	ch := newChannel(b)
	defer ch.Disconnect()

	rec := &recorder{}
	ch.Subscribe(realtime.ChatQueue(6), func(body json.RawMessage) {
		if string(body) == `"boom"` {
			panic("bad payload")
		}
		rec.handle(body)
	})
	require.NoError(t, ch.Connect(context.Background()))
	require.Eventually(t, func() bool { return b.Subscribers(realtime.ChatQueue(6)) == 1 }, wait, tick)

	b.Publish(realtime.ChatQueue(6), []byte(`"boom"`))
	b.Publish(realtime.ChatQueue(6), []byte(`"ok"`))
	require.Eventually(t, func() bool { return len(rec.got()) == 1 }, wait, tick)
	assert.Equal(t, `"ok"`, rec.got()[0])
}

func TestReconnectRearmsSubscriptions(t *testing.T) {
	b := realtimetest.NewBroker()
	ch := newChannel(b)
	defer ch.Disconnect()

	rec := &recorder{}
	ch.Subscribe(realtime.LocationTopic(9), rec.handle)
	require.NoError(t, ch.Connect(context.Background()))
	require.Eventually(t, func() bool { return b.Subscribers(realtime.LocationTopic(9)) == 1 }, wait, tick)

	b.FailNextDials(1)
	b.Drop()

	// one failed attempt, then a successful one
	require.Eventually(t, func() bool {
		return ch.Connected() && b.Subscribers(realtime.LocationTopic(9)) == 1
	}, wait, tick)
	assert.Equal(t, 3, b.Dials())

	b.Publish(realtime.LocationTopic(9), []byte(`{"workerId":9}`))
	require.Eventually(t, func() bool { return len(rec.got()) == 1 }, wait, tick)
}

func TestDisconnectClearsState(t *testing.T) {
	b := realtimetest.NewBroker()
	ch := newChannel(b)

	rec := &recorder{}
	sub := ch.Subscribe(realtime.ChatQueue(11), rec.handle)
	require.NoError(t, ch.Connect(context.Background()))
	require.Eventually(t, func() bool { return b.Subscribers(realtime.ChatQueue(11)) == 1 }, wait, tick)

	ch.Disconnect()
	assert.False(t, ch.Connected())
	assert.Equal(t, 0, b.Subscribers(realtime.ChatQueue(11)))

	// the old handle is inert, and a fresh connect restores nothing
	sub.Unsubscribe()
	require.NoError(t, ch.Connect(context.Background()))
	assert.Equal(t, 0, b.Subscribers(realtime.ChatQueue(11)))
	ch.Disconnect()
}

func TestDisconnectWhenIdleIsNoop(t *testing.T) {
	ch := newChannel(realtimetest.NewBroker())
	ch.Disconnect()
	ch.Disconnect()
	assert.False(t, ch.Connected())
}

func TestDisconnectStopsReconnectLoop(t *testing.T) {
	b := realtimetest.NewBroker()
	b.FailNextDials(1000)
	ch := newChannel(b)

	ch.Subscribe(realtime.ChatQueue(1), func(json.RawMessage) {})
	require.Eventually(t, func() bool { return b.Dials() >= 2 }, wait, tick)

	ch.Disconnect()
	dials := b.Dials()
	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, dials, b.Dials())
}

func TestDecode(t *testing.T) {
	f, err := realtime.Decode([]byte(`{"command":"MESSAGE","destination":"/topic/location/1","id":"a","body":{"lat":1}}`))
	require.NoError(t, err)
	assert.Equal(t, realtime.CommandMessage, f.Command)
	assert.JSONEq(t, `{"lat":1}`, string(f.Body))

	_, err = realtime.Decode([]byte(`not json`))
	assert.ErrorIs(t, err, realtime.ErrMalformedFrame)
	_, err = realtime.Decode([]byte(`{"destination":"/x"}`))
	assert.ErrorIs(t, err, realtime.ErrMalformedFrame)
}

func TestDestinations(t *testing.T) {
	assert.Equal(t, "/user/12/queue/messages", realtime.ChatQueue(12))
	assert.Equal(t, "/topic/chat/12", realtime.ChatTopic(12))
	assert.Equal(t, "/topic/location/4", realtime.LocationTopic(4))
	assert.Equal(t, "/app/location/4", realtime.LocationDestination(4))
}

func TestParseTopic(t *testing.T) {
	kind, id, ok := realtime.ParseTopic(realtime.ChatQueue(12))
	assert.True(t, ok)
	assert.Equal(t, realtime.TopicChat, kind)
	assert.Equal(t, int64(12), id)

	kind, id, ok = realtime.ParseTopic(realtime.ChatTopic(5))
	assert.True(t, ok)
	assert.Equal(t, realtime.TopicChat, kind)
	assert.Equal(t, int64(5), id)

	kind, id, ok = realtime.ParseTopic(realtime.LocationTopic(3))
	assert.True(t, ok)
	assert.Equal(t, realtime.TopicLocation, kind)
	assert.Equal(t, int64(3), id)

	for _, bad := range []string{"/topic/chat/x", "/user/0/queue/messages", "/topic/other/1", ""} {
		_, _, ok := realtime.ParseTopic(bad)
		assert.False(t, ok, bad)
	}

	wid, ok := realtime.ParseLocationDestination(realtime.LocationDestination(8))
	assert.True(t, ok)
	assert.Equal(t, int64(8), wid)
	_, ok = realtime.ParseLocationDestination(realtime.DestinationChat)
	assert.False(t, ok)
}
