package ws_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"shramsaathi-backend/internal/delivery/http/middleware"
	"shramsaathi-backend/internal/delivery/ws"
	"shramsaathi-backend/internal/domain"
	"shramsaathi-backend/internal/repository/memory"
	"shramsaathi-backend/internal/usecase"
	"shramsaathi-backend/pkg/auth"
	"shramsaathi-backend/pkg/realtime"
	"shramsaathi-backend/pkg/validation"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	goleak.VerifyTestMain(m)
}

const wait = 2 * time.Second
const tick = 5 * time.Millisecond

// fixture is one accepted application between an owner and a worker, plus an
// unrelated worker.
type fixture struct {
	store    *memory.Store
	tokens   *auth.HMACIssuer
	chatUC   domain.ChatUsecase
	authUC   domain.AuthUsecase
	owner    *domain.Profile
	worker   *domain.Profile
	outsider *domain.Profile
	app      *domain.Application
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	store := memory.NewStore()
	v := validation.New()

	f := &fixture{
		store:    store,
		tokens:   auth.NewHMACIssuer("test-secret", time.Hour),
		owner:    &domain.Profile{Name: "Lakshmi", Phone: "9000000001", Role: domain.RoleOwner},
		worker:   &domain.Profile{Name: "Ravi", Phone: "9000000002", Role: domain.RoleWorker},
		outsider: &domain.Profile{Name: "Suresh", Phone: "9000000003", Role: domain.RoleWorker},
	}
	for _, p := range []*domain.Profile{f.owner, f.worker, f.outsider} {
		require.NoError(t, store.Profiles().Create(ctx, p))
	}

	job := &domain.Job{OwnerID: f.owner.ID, Title: "Wall painting", Status: domain.JobStatusActive}
	require.NoError(t, store.Jobs().Create(ctx, job))
	f.app = &domain.Application{JobID: job.ID, WorkerID: f.worker.ID, WorkerName: f.worker.Name}
	require.NoError(t, store.Applications().Create(ctx, f.app))
	_, err := store.Applications().Accept(ctx, f.app.ID, false)
	require.NoError(t, err)

	f.chatUC = usecase.NewChatUsecase(store.Chats(), store.Applications(), store.Jobs(), v, nil)
	f.authUC = usecase.NewAuthUsecase(store.Profiles(), f.tokens, v, nil, nil)
	return f
}

func (f *fixture) token(t *testing.T, p *domain.Profile) string {
	t.Helper()
	tok, err := f.tokens.Issue(domain.Claims{UserID: p.ID, Phone: p.Phone, Role: p.Role})
	require.NoError(t, err)
	return tok
}

// serve runs a hub behind the authenticated /api/ws route and returns the
// websocket URL. Everything is torn down when the test ends.
func (f *fixture) serve(t *testing.T, opts ...ws.Option) (*ws.Hub, string) {
	t.Helper()
	hub := ws.NewHub(f.chatUC, opts...)

	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		hub.Run(ctx)
	}()

	r := gin.New()
	r.GET("/api/ws", middleware.AuthMiddleware(f.tokens, f.authUC), ws.Handler(hub, nil, false))
	srv := httptest.NewServer(r)

	t.Cleanup(func() {
		srv.Close()
		cancel()
		<-stopped
	})
	return hub, "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/ws"
}

func (f *fixture) channel(t *testing.T, url string, p *domain.Profile) *realtime.Channel {
	t.Helper()
	ch := realtime.NewChannel(
		realtime.NewWebsocketTransport(url+"?token="+f.token(t, p), nil),
		realtime.WithReconnectDelay(50*time.Millisecond),
	)
	t.Cleanup(ch.Disconnect)
	return ch
}

// raw dials without the client library so ERROR frames can be read directly.
func (f *fixture) raw(t *testing.T, url string, p *domain.Profile) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url+"?token="+f.token(t, p), nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) realtime.Frame {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(wait)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	f, err := realtime.Decode(data)
	require.NoError(t, err)
	return f
}

type inbox struct {
	mu   sync.Mutex
	msgs []json.RawMessage
}

func (in *inbox) handle(body json.RawMessage) {
	in.mu.Lock()
	defer in.mu.Unlock()
	in.msgs = append(in.msgs, body)
}

func (in *inbox) len() int {
	in.mu.Lock()
	defer in.mu.Unlock()
	return len(in.msgs)
}

func (in *inbox) chat(t *testing.T, i int) domain.ChatMessage {
	t.Helper()
	in.mu.Lock()
	defer in.mu.Unlock()
	var msg domain.ChatMessage
	require.NoError(t, json.Unmarshal(in.msgs[i], &msg))
	return msg
}

func TestChatRelayReachesBothParties(t *testing.T) {
	f := newFixture(t)
	hub, url := f.serve(t)

	workerCh := f.channel(t, url, f.worker)
	ownerCh := f.channel(t, url, f.owner)
	workerInbox, ownerInbox := &inbox{}, &inbox{}
	workerCh.Subscribe(realtime.ChatQueue(f.app.ID), workerInbox.handle)
	ownerCh.Subscribe(realtime.ChatQueue(f.app.ID), ownerInbox.handle)
	require.Eventually(t, func() bool { return hub.Subscribers(realtime.ChatQueue(f.app.ID)) == 2 }, wait, tick)

	// the sender id is taken from the session, not the payload
	err := workerCh.Send(realtime.DestinationChat, map[string]any{
		"applicationId": f.app.ID,
		"senderId":      f.owner.ID,
		"message":       "  I can start tomorrow  ",
	})
	require.NoError(t, err)

	require.Eventually(t, func() bool { return ownerInbox.len() == 1 && workerInbox.len() == 1 }, wait, tick)
	got := ownerInbox.chat(t, 0)
	assert.Equal(t, f.app.ID, got.ApplicationID)
	assert.Equal(t, f.worker.ID, got.SenderID)
	require.NotNil(t, got.ReceiverID)
	assert.Equal(t, f.owner.ID, *got.ReceiverID)
	assert.Equal(t, "I can start tomorrow", got.Message)
	assert.False(t, got.SentAt.IsZero())
}

func TestOutsiderCannotSubscribeToChat(t *testing.T) {
	f := newFixture(t)
	hub, url := f.serve(t)
	conn := f.raw(t, url, f.outsider)

	require.NoError(t, conn.WriteJSON(realtime.Frame{
		Command:     realtime.CommandSubscribe,
		Destination: realtime.ChatQueue(f.app.ID),
		ID:          "sub-1",
	}))

	frame := readFrame(t, conn)
	assert.Equal(t, realtime.CommandError, frame.Command)
	assert.Equal(t, "sub-1", frame.ID)
	assert.Equal(t, "You are not part of this conversation", frame.Message)
	assert.Equal(t, 0, hub.Subscribers(realtime.ChatQueue(f.app.ID)))
}

func TestOutsiderCannotPublishChat(t *testing.T) {
	f := newFixture(t)
	_, url := f.serve(t)
	conn := f.raw(t, url, f.outsider)

	require.NoError(t, conn.WriteJSON(realtime.Frame{
		Command:     realtime.CommandSend,
		Destination: realtime.DestinationChat,
		Body:        json.RawMessage(`{"applicationId":` + itoa(f.app.ID) + `,"message":"hello"}`),
	}))

	frame := readFrame(t, conn)
	assert.Equal(t, realtime.CommandError, frame.Command)
	assert.Equal(t, realtime.DestinationChat, frame.Destination)
}

func TestChatBeforeAcceptanceIsRefused(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	pending := &domain.Application{JobID: f.app.JobID, WorkerID: f.outsider.ID}
	require.NoError(t, f.store.Applications().Create(ctx, pending))

	_, url := f.serve(t)
	conn := f.raw(t, url, f.outsider)
	require.NoError(t, conn.WriteJSON(realtime.Frame{
		Command:     realtime.CommandSubscribe,
		Destination: realtime.ChatTopic(pending.ID),
		ID:          "s",
	}))

	frame := readFrame(t, conn)
	assert.Equal(t, realtime.CommandError, frame.Command)
	assert.Equal(t, "Chat opens once the application is accepted", frame.Message)
}

func TestLocationPingsReachAcceptingOwner(t *testing.T) {
	f := newFixture(t)
	hub, url := f.serve(t)

	ownerCh := f.channel(t, url, f.owner)
	pings := &inbox{}
	ownerCh.Subscribe(realtime.LocationTopic(f.worker.ID), pings.handle)
	require.Eventually(t, func() bool { return hub.Subscribers(realtime.LocationTopic(f.worker.ID)) == 1 }, wait, tick)

	workerCh := f.channel(t, url, f.worker)
	require.NoError(t, workerCh.Connect(context.Background()))
	require.NoError(t, workerCh.Send(realtime.LocationDestination(f.worker.ID), domain.LocationPing{Lat: 17.385, Lon: 78.4867}))

	require.Eventually(t, func() bool { return pings.len() == 1 }, wait, tick)
	var ping domain.LocationPing
	pings.mu.Lock()
	require.NoError(t, json.Unmarshal(pings.msgs[0], &ping))
	pings.mu.Unlock()
	assert.Equal(t, f.worker.ID, ping.WorkerID)
	assert.InDelta(t, 17.385, ping.Lat, 1e-9)
	assert.NotZero(t, ping.Timestamp)
}

func TestLocationRules(t *testing.T) {
	f := newFixture(t)
	hub, url := f.serve(t)

	t.Run("other workers cannot follow", func(t *testing.T) {
		conn := f.raw(t, url, f.outsider)
		require.NoError(t, conn.WriteJSON(realtime.Frame{
			Command:     realtime.CommandSubscribe,
			Destination: realtime.LocationTopic(f.worker.ID),
			ID:          "loc",
		}))
		frame := readFrame(t, conn)
		assert.Equal(t, realtime.CommandError, frame.Command)
		assert.Equal(t, "You cannot follow this worker's location", frame.Message)
		assert.Equal(t, 0, hub.Subscribers(realtime.LocationTopic(f.worker.ID)))
	})

	t.Run("workers publish only their own pings", func(t *testing.T) {
		conn := f.raw(t, url, f.outsider)
		require.NoError(t, conn.WriteJSON(realtime.Frame{
			Command:     realtime.CommandSend,
			Destination: realtime.LocationDestination(f.worker.ID),
			Body:        json.RawMessage(`{"lat":1,"lon":2}`),
		}))
		frame := readFrame(t, conn)
		assert.Equal(t, realtime.CommandError, frame.Command)
		assert.Equal(t, "You can only publish your own location", frame.Message)
	})

	t.Run("a worker follows themself", func(t *testing.T) {
		conn := f.raw(t, url, f.worker)
		require.NoError(t, conn.WriteJSON(realtime.Frame{
			Command:     realtime.CommandSubscribe,
			Destination: realtime.LocationTopic(f.worker.ID),
			ID:          "self",
		}))
		require.Eventually(t, func() bool { return hub.Subscribers(realtime.LocationTopic(f.worker.ID)) == 1 }, wait, tick)
	})
}

func TestMalformedFrameKeepsConnection(t *testing.T) {
	f := newFixture(t)
	hub, url := f.serve(t)
	conn := f.raw(t, url, f.worker)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("{not json")))
	frame := readFrame(t, conn)
	assert.Equal(t, realtime.CommandError, frame.Command)
	assert.Equal(t, "Malformed frame", frame.Message)

	require.NoError(t, conn.WriteJSON(realtime.Frame{
		Command:     realtime.CommandSubscribe,
		Destination: realtime.ChatQueue(f.app.ID),
		ID:          "after",
	}))
	require.Eventually(t, func() bool { return hub.Subscribers(realtime.ChatQueue(f.app.ID)) == 1 }, wait, tick)

	require.NoError(t, conn.WriteJSON(realtime.Frame{Command: realtime.CommandUnsubscribe, ID: "after"}))
	require.Eventually(t, func() bool { return hub.Subscribers(realtime.ChatQueue(f.app.ID)) == 0 }, wait, tick)
}

func TestInvalidBodyIsDroppedForEverySubscriber(t *testing.T) {
	f := newFixture(t)
	hub, url := f.serve(t)
	dest := realtime.ChatQueue(f.app.ID)

	var owner, worker inbox
	f.channel(t, url, f.owner).Subscribe(dest, owner.handle)
	f.channel(t, url, f.worker).Subscribe(dest, worker.handle)
	require.Eventually(t, func() bool { return hub.Subscribers(dest) == 2 }, wait, tick)

	hub.Publish(context.Background(), "chat", json.RawMessage(`{broken`), dest)
	hub.Publish(context.Background(), "chat", json.RawMessage(`{"applicationId":1,"message":"fine"}`), dest)

	require.Eventually(t, func() bool { return owner.len() == 1 && worker.len() == 1 }, wait, tick)
	assert.Equal(t, "fine", owner.chat(t, 0).Message)
	assert.Equal(t, "fine", worker.chat(t, 0).Message)
}

func TestUnauthenticatedUpgradeIsRejected(t *testing.T) {
	f := newFixture(t)
	_, url := f.serve(t)

	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestDisconnectDropsSubscriptions(t *testing.T) {
	f := newFixture(t)
	hub, url := f.serve(t)

	ch := f.channel(t, url, f.worker)
	ch.Subscribe(realtime.ChatQueue(f.app.ID), func(json.RawMessage) {})
	require.Eventually(t, func() bool { return hub.Subscribers(realtime.ChatQueue(f.app.ID)) == 1 }, wait, tick)

	ch.Disconnect()
	require.Eventually(t, func() bool { return hub.Subscribers(realtime.ChatQueue(f.app.ID)) == 0 }, wait, tick)
}

// bus links backplanes of several hubs in one process.
type bus struct {
	mu    sync.Mutex
	peers map[*peer]func(string, json.RawMessage)
}

type peer struct{ b *bus }

func (b *bus) join() *peer { return &peer{b: b} }

func (p *peer) Publish(_ context.Context, dest string, body json.RawMessage) error {
	p.b.mu.Lock()
	var targets []func(string, json.RawMessage)
	for other, fn := range p.b.peers {
		if other != p {
			targets = append(targets, fn)
		}
	}
	p.b.mu.Unlock()
	for _, fn := range targets {
		fn(dest, body)
	}
	return nil
}

func (p *peer) Subscribe(ctx context.Context, fn func(string, json.RawMessage)) error {
	p.b.mu.Lock()
	p.b.peers[p] = fn
	p.b.mu.Unlock()

	<-ctx.Done()

	p.b.mu.Lock()
	delete(p.b.peers, p)
	p.b.mu.Unlock()
	return ctx.Err()
}

func TestBackplaneFansOutAcrossInstances(t *testing.T) {
	f := newFixture(t)
	b := &bus{peers: make(map[*peer]func(string, json.RawMessage))}
	_, urlA := f.serve(t, ws.WithBackplane(b.join()))
	hubB, urlB := f.serve(t, ws.WithBackplane(b.join()))

	ownerInbox := &inbox{}
	ownerCh := f.channel(t, urlB, f.owner)
	ownerCh.Subscribe(realtime.ChatQueue(f.app.ID), ownerInbox.handle)
	require.Eventually(t, func() bool { return hubB.Subscribers(realtime.ChatQueue(f.app.ID)) == 1 }, wait, tick)
	require.Eventually(t, func() bool {
		b.mu.Lock()
		defer b.mu.Unlock()
		return len(b.peers) == 2
	}, wait, tick)

	workerCh := f.channel(t, urlA, f.worker)
	require.NoError(t, workerCh.Connect(context.Background()))
	require.NoError(t, workerCh.Send(realtime.DestinationChat, map[string]any{"applicationId": f.app.ID, "message": "on my way"}))

	require.Eventually(t, func() bool { return ownerInbox.len() == 1 }, wait, tick)
	assert.Equal(t, "on my way", ownerInbox.chat(t, 0).Message)
}

func TestHubShutdownClosesClients(t *testing.T) {
	f := newFixture(t)
	hub := ws.NewHub(f.chatUC)
	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		hub.Run(ctx)
	}()

	r := gin.New()
	r.GET("/api/ws", middleware.AuthMiddleware(f.tokens, f.authUC), ws.Handler(hub, nil, false))
	srv := httptest.NewServer(r)
	defer srv.Close()

	conn := f.raw(t, "ws"+strings.TrimPrefix(srv.URL, "http")+"/api/ws", f.worker)
	require.NoError(t, conn.WriteJSON(realtime.Frame{
		Command:     realtime.CommandSubscribe,
		Destination: realtime.ChatQueue(f.app.ID),
		ID:          "s",
	}))
	require.Eventually(t, func() bool { return hub.Subscribers(realtime.ChatQueue(f.app.ID)) == 1 }, wait, tick)

	cancel()
	<-stopped

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(wait)))
	_, _, err := conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), "got %v", err)
	assert.Equal(t, 0, hub.Subscribers(realtime.ChatQueue(f.app.ID)))
}

func itoa(v int64) string {
	b, _ := json.Marshal(v)
	return string(b)
}
