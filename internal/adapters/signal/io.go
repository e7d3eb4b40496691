package signal

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/parleychat/parley/internal/app"
	"github.com/parleychat/parley/internal/core"
)

const writeWait = 5 * time.Second

func (ctl *ChatWSController) writePump(ctx context.Context, c *WsConn) {
	ticker := time.NewTicker(ctl.Opts.PingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			log.Info().Str("module", "signal").Msg("writePump ctx done")
			return
		case data, ok := <-c.send:
			if !ok {
				log.Warn().Str("module", "signal").Msg("writePump channel closed")
				return
			}
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump set deadline")
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump write error")
				return
			}
		case <-ticker.C:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				return
			}
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (ctl *ChatWSController) readPump(ctx context.Context, sid core.SessionID, c *WsConn) {
	defer func() {
		log.Info().Str("module", "signal").Str("sid", string(sid)).Msg("readPump closing")
		c.Close()
		ctl.Coord.Disconnect(sid)
		ctl.limiter.Forget(sid)
	}()

	pongWait := ctl.Opts.PingPeriod * 10 / 9
	c.conn.SetReadLimit(ctl.Opts.ReadLimit)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		select {
		case <-ctx.Done():
			log.Info().Str("module", "signal").Str("sid", string(sid)).Msg("readPump ctx done")
			return
		default:
			_, data, err := c.conn.ReadMessage()
			if err != nil {
				log.Info().Err(err).Str("module", "signal").Str("sid", string(sid)).Msg("readPump read error")
				return
			}
			ctl.handleEvent(ctx, sid, c, data)
		}
	}
}

func (ctl *ChatWSController) handleEvent(ctx context.Context, sid core.SessionID, c *WsConn, data []byte) {
	var env struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad json")
		ctl.sendError(c, "bad_payload")
		return
	}

	switch env.Type {
	case "adduser":
		ctl.handleAddUser(sid, c, data)
	case "sendchat":
		ctl.handleSendChat(ctx, sid, c, data)
	case "switchRoom":
		ctl.handleSwitchRoom(sid, c, data)
	case "ping":
		ctl.handlePing(c)
	default:
		log.Warn().Str("module", "signal").Str("type", env.Type).Msg("unknown event")
	}
}

func (ctl *ChatWSController) handlePing(c *WsConn) {
	ctl.sendJSON(c, map[string]any{"type": "pong"})
}

func (ctl *ChatWSController) sendJSON(c *WsConn, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("sendJSON marshal")
		return
	}
	_ = c.TrySend(b)
}

func (ctl *ChatWSController) sendError(c *WsConn, msg string) {
	ctl.sendJSON(c, app.ErrorEvent{Type: "error", Error: msg})
}
