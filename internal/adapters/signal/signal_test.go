package signal

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parleychat/parley/internal/app"
	"github.com/parleychat/parley/internal/core"
	"github.com/parleychat/parley/internal/domain"
)

type memSeq struct {
	mu   sync.Mutex
	next uint64
}

func (s *memSeq) NextID(ctx context.Context) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.next++
	return s.next, nil
}

type memStore struct {
	mu       sync.Mutex
	messages []domain.Message
}

func (s *memStore) Insert(ctx context.Context, msg *domain.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(s.messages, *msg)
	return nil
}

func (s *memStore) FindMissed(ctx context.Context, roomIDs []string, afterID uint64) ([]domain.Message, error) {
	return nil, nil
}

func (s *memStore) DistinctRoomIDs(ctx context.Context) ([]string, error) { return nil, nil }

func (s *memStore) stored() []domain.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Message, len(s.messages))
	copy(out, s.messages)
	return out
}

type testEvent struct {
	Type    string   `json:"type"`
	User    string   `json:"user"`
	Message string   `json:"message"`
	Rooms   []string `json:"rooms"`
	Room    string   `json:"room"`
	Users   []string `json:"users"`
	Error   string   `json:"error"`
}

func newWSServer(t *testing.T) (*httptest.Server, *app.Coordinator, *memStore) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	st := &memStore{}
	coord := app.NewCoordinator(&memSeq{}, st)
	ctl := NewChatWSController(coord, Options{
		ReadLimit:    32768,
		PingPeriod:   54 * time.Second,
		RateBurst:    100,
		RateInterval: time.Second,
	})

	r := gin.New()
	r.GET("/ws", func(c *gin.Context) {
		// The HTTP layer normally pins this via the uuid cookie.
		c.Set("client_token", c.Query("sid"))
		// Pumps outlive the handler, so they get the server context, not
		// the request context.
		ctl.HandleSignal(context.Background(), c)
	})

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv, coord, st
}

func dial(t *testing.T, srv *httptest.Server, sid string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?sid=" + sid
	ws, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	if resp != nil {
		_ = resp.Body.Close()
	}
	t.Cleanup(func() { _ = ws.Close() })
	return ws
}

func send(t *testing.T, ws *websocket.Conn, v any) {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	require.NoError(t, ws.WriteMessage(websocket.TextMessage, b))
}

// readUntil reads events until one of the wanted type arrives.
func readUntil(t *testing.T, ws *websocket.Conn, wantType string) testEvent {
	t.Helper()
	require.NoError(t, ws.SetReadDeadline(time.Now().Add(2*time.Second)))
	for {
		_, data, err := ws.ReadMessage()
		require.NoError(t, err, "waiting for %q", wantType)
		var ev testEvent
		require.NoError(t, json.Unmarshal(data, &ev))
		if ev.Type == wantType {
			return ev
		}
	}
}

func TestSignalRoundTrip(t *testing.T) {
	srv, _, st := newWSServer(t)

	alice := dial(t, srv, "s1")
	send(t, alice, map[string]string{"type": "adduser", "username": "alice", "room": "lobby"})

	ev := readUntil(t, alice, "updatechat")
	assert.Equal(t, app.ServerUser, ev.User)
	assert.Equal(t, "you have connected to lobby", ev.Message)

	ev = readUntil(t, alice, "updaterooms")
	assert.Equal(t, []string{"lobby"}, ev.Rooms)
	assert.Equal(t, "lobby", ev.Room)

	ev = readUntil(t, alice, "updateusers")
	assert.Equal(t, []string{"alice"}, ev.Users)

	send(t, alice, map[string]string{"type": "sendchat", "message": "hi"})
	ev = readUntil(t, alice, "updatechat")
	assert.Equal(t, "alice", ev.User)
	assert.Equal(t, "hi", ev.Message)

	require.Eventually(t, func() bool {
		return len(st.stored()) == 1
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, domain.Message{MessageID: 1, RoomID: "lobby", Username: "alice", Content: "hi"}, st.stored()[0])
}

func TestSignalChatBeforeJoin(t *testing.T) {
	srv, _, _ := newWSServer(t)

	ws := dial(t, srv, "s1")
	send(t, ws, map[string]string{"type": "sendchat", "message": "hi"})

	ev := readUntil(t, ws, "error")
	assert.Equal(t, "join a room first", ev.Error)
}

func TestSignalBadPayload(t *testing.T) {
	srv, _, _ := newWSServer(t)

	ws := dial(t, srv, "s1")
	require.NoError(t, ws.WriteMessage(websocket.TextMessage, []byte("{nope")))

	ev := readUntil(t, ws, "error")
	assert.Equal(t, "bad_payload", ev.Error)
}

func TestSignalDisconnectCleansUp(t *testing.T) {
	srv, coord, _ := newWSServer(t)

	ws := dial(t, srv, "s1")
	send(t, ws, map[string]string{"type": "adduser", "username": "alice", "room": "lobby"})
	readUntil(t, ws, "updateusers")

	require.NoError(t, ws.Close())

	require.Eventually(t, func() bool {
		return len(coord.Registry.Usernames()) == 0
	}, 2*time.Second, 10*time.Millisecond)
}

func TestSignalPing(t *testing.T) {
	srv, _, _ := newWSServer(t)

	ws := dial(t, srv, "s1")
	send(t, ws, map[string]string{"type": "ping"})
	readUntil(t, ws, "pong")
}

func TestTrySend(t *testing.T) {
	t.Run("backpressure on a full buffer", func(t *testing.T) {
		c := &WsConn{send: make(chan core.Frame, 1)}
		require.NoError(t, c.TrySend(core.Frame("one")))
		assert.ErrorIs(t, c.TrySend(core.Frame("two")), ErrBackpressure)
	})

	t.Run("closed connection rejects sends", func(t *testing.T) {
		c := &WsConn{send: make(chan core.Frame, 1), closed: true}
		assert.ErrorIs(t, c.TrySend(core.Frame("one")), ErrConnClosed)
	})
}
