package signal

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/parleychat/parley/internal/app"
	"github.com/parleychat/parley/internal/core"
)

var (
	ErrBackpressure = errors.New("backpressure")
	ErrConnClosed   = errors.New("connection closed")
)

// Options carries the transport tunables from config.
type Options struct {
	ReadLimit    int64
	PingPeriod   time.Duration
	RateBurst    int
	RateInterval time.Duration
}

// ChatWSController accepts signal connections and feeds their events into
// the coordinator.
type ChatWSController struct {
	Coord   *app.Coordinator
	Opts    Options
	limiter *RateLimiter
}

func NewChatWSController(coord *app.Coordinator, opts Options) *ChatWSController {
	return &ChatWSController{
		Coord:   coord,
		Opts:    opts,
		limiter: NewRateLimiter(opts.RateBurst, opts.RateInterval),
	}
}

// WsConn wraps one websocket with a bounded send buffer. TrySend never
// blocks: a full buffer drops the frame with ErrBackpressure.
type WsConn struct {
	conn *websocket.Conn
	send chan core.Frame

	mu     sync.RWMutex
	closed bool
}

func (c *WsConn) TrySend(f core.Frame) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return ErrConnClosed
	}
	select {
	case c.send <- f:
	default:
		return ErrBackpressure
	}
	return nil
}

func (c *WsConn) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.send)
	_ = c.conn.Close()
	c.mu.Unlock()
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// HandleSignal upgrades the request and runs the connection's pumps. The
// session id is the client token set by the HTTP layer.
func (ctl *ChatWSController) HandleSignal(ctx context.Context, c *gin.Context) {
	sid := core.SessionID(c.GetString("client_token"))
	log.Info().Str("module", "signal").Str("sid", string(sid)).Msg("new WS connection")

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("ws upgrade")
		return
	}

	conn := &WsConn{
		conn: ws,
		send: make(chan core.Frame, 32),
	}

	ctx, cancel := context.WithCancel(ctx)
	go ctl.writePump(ctx, conn)
	go func() {
		defer cancel()
		ctl.readPump(ctx, sid, conn)
	}()
}
