package signal

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/rs/zerolog/log"

	"github.com/parleychat/parley/internal/app"
	"github.com/parleychat/parley/internal/core"
	"github.com/parleychat/parley/internal/domain"
)

func (ctl *ChatWSController) handleAddUser(sid core.SessionID, conn *WsConn, data []byte) {
	var p struct {
		Type     string `json:"type"`
		Username string `json:"username"`
		Room     string `json:"room"`
	}
	if err := json.Unmarshal(data, &p); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad adduser payload")
		ctl.sendError(conn, "bad_payload")
		return
	}

	room, err := domain.NewRoomName(p.Room)
	if err != nil {
		ctl.sendError(conn, err.Error())
		return
	}

	log.Info().Str("module", "signal").Str("sid", string(sid)).Str("username", p.Username).Str("room", p.Room).Msg("adduser")
	if err := ctl.Coord.Join(sid, conn, p.Username, room); err != nil {
		log.Warn().Err(err).Str("module", "signal").Str("sid", string(sid)).Msg("join rejected")
		ctl.sendError(conn, err.Error())
	}
}

func (ctl *ChatWSController) handleSendChat(ctx context.Context, sid core.SessionID, conn *WsConn, data []byte) {
	if !ctl.limiter.Allow(sid) {
		ctl.sendError(conn, "rate limit exceeded")
		return
	}

	var p struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(data, &p); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad sendchat payload")
		ctl.sendError(conn, "bad_payload")
		return
	}
	if err := domain.ValidateContent(p.Message); err != nil {
		ctl.sendError(conn, err.Error())
		return
	}

	if err := ctl.Coord.Chat(ctx, sid, p.Message); err != nil {
		log.Error().Err(err).Str("module", "signal").Str("sid", string(sid)).Msg("chat failed")
		if errors.Is(err, app.ErrUnknownSession) {
			ctl.sendError(conn, "join a room first")
			return
		}
		ctl.sendError(conn, "message not sent")
	}
}

func (ctl *ChatWSController) handleSwitchRoom(sid core.SessionID, conn *WsConn, data []byte) {
	var p struct {
		Type string `json:"type"`
		Room string `json:"room"`
	}
	if err := json.Unmarshal(data, &p); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad switchRoom payload")
		ctl.sendError(conn, "bad_payload")
		return
	}

	room, err := domain.NewRoomName(p.Room)
	if err != nil {
		ctl.sendError(conn, err.Error())
		return
	}

	log.Info().Str("module", "signal").Str("sid", string(sid)).Str("room", p.Room).Msg("switchRoom")
	if err := ctl.Coord.SwitchRoom(sid, room); err != nil {
		log.Warn().Err(err).Str("module", "signal").Str("sid", string(sid)).Msg("switch rejected")
		if errors.Is(err, app.ErrUnknownSession) {
			ctl.sendError(conn, "join a room first")
			return
		}
		ctl.sendError(conn, "switch failed")
	}
}
