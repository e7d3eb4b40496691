package app

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/parleychat/parley/internal/core"
	"github.com/parleychat/parley/internal/domain"
)

// Coordinator binds connection events to registry and directory mutations
// and to sequencer/store calls, and drives outbound broadcasts. Every
// accepted chat message passes through the same broadcast point after id
// assignment, so all room members observe one consistent ordering.
type Coordinator struct {
	Registry *Registry
	Rooms    *Directory
	Seq      core.Sequencer
	Store    core.MessageStore
}

func NewCoordinator(seq core.Sequencer, store core.MessageStore) *Coordinator {
	return &Coordinator{
		Registry: NewRegistry(),
		Rooms:    NewDirectory(),
		Seq:      seq,
		Store:    store,
	}
}

// SeedRooms loads the distinct room ids present in the store into the
// directory. A store failure leaves the directory empty; rooms reappear
// as they are joined.
func (c *Coordinator) SeedRooms(ctx context.Context) {
	names, err := c.Store.DistinctRoomIDs(ctx)
	if err != nil {
		log.Error().Err(err).Str("module", "app.coordinator").Msg("room seed failed")
		return
	}
	c.Rooms.Seed(names)
	log.Info().Str("module", "app.coordinator").Int("rooms", len(names)).Msg("rooms seeded")
}

// Join opens a session for sid on conn. The username must be free and the
// session must not have joined before. On success the joiner gets a
// connect confirmation and the room list, the room is told about the new
// member, and everyone gets a fresh user list.
func (c *Coordinator) Join(sid core.SessionID, conn core.SignalConnection, username string, room domain.RoomName) error {
	if _, err := domain.NewUser(username); err != nil {
		return err
	}
	if err := c.Registry.Open(sid, conn, username, room); err != nil {
		return err
	}
	c.Rooms.Ensure(room)

	c.sendTo(conn, chatEvent(ServerUser, "you have connected to "+string(room)))
	c.sendTo(conn, roomsEvent(c.Rooms.Known(), room))
	c.broadcastRoom(room, chatEvent(ServerUser, username+" has connected to this room"), sid)
	c.broadcastAll(usersEvent(c.Registry.Usernames()))
	return nil
}

// Chat sequences, broadcasts and persists one message from sid's session.
// The id must be durably allocated before anything is sent; a sequencer
// failure aborts the send entirely. A store insert failure is logged and
// swallowed: the room already saw the message live, it is only absent
// from future catch-up results.
func (c *Coordinator) Chat(ctx context.Context, sid core.SessionID, content string) error {
	sess, ok := c.Registry.Get(sid)
	if !ok {
		return ErrUnknownSession
	}

	id, err := c.Seq.NextID(ctx)
	if err != nil {
		return fmt.Errorf("allocate message id: %w", err)
	}

	msg := domain.Message{
		MessageID: id,
		RoomID:    sess.Room,
		Username:  sess.Username,
		Content:   content,
	}
	c.broadcastRoom(sess.Room, chatEvent(sess.Username, content))

	if err := c.Store.Insert(ctx, &msg); err != nil {
		log.Error().Err(err).Str("module", "app.coordinator").Uint64("message_id", id).Str("room", string(sess.Room)).Msg("message not persisted")
	}
	return nil
}

// SwitchRoom moves sid's session to newRoom. The old room is told the
// member left, the new room that it joined, and the mover gets a connect
// confirmation plus the updated room list.
func (c *Coordinator) SwitchRoom(sid core.SessionID, newRoom domain.RoomName) error {
	sess, ok := c.Registry.Get(sid)
	if !ok {
		return ErrUnknownSession
	}
	if err := c.Registry.SetRoom(sid, newRoom); err != nil {
		return err
	}
	c.Rooms.Ensure(newRoom)

	c.broadcastRoom(sess.Room, chatEvent(ServerUser, sess.Username+" has left this room"), sid)
	c.broadcastRoom(newRoom, chatEvent(ServerUser, sess.Username+" has joined this room"), sid)
	c.sendTo(sess.Conn, chatEvent(ServerUser, "you have connected to "+string(newRoom)))
	c.sendTo(sess.Conn, roomsEvent(c.Rooms.Known(), newRoom))
	return nil
}

// Disconnect closes sid's session, if any, and tells everyone. Safe to
// call more than once per connection.
func (c *Coordinator) Disconnect(sid core.SessionID) {
	username, _, ok := c.Registry.Close(sid)
	if !ok {
		return
	}
	c.broadcastAll(usersEvent(c.Registry.Usernames()))
	c.broadcastAll(chatEvent(ServerUser, username+" has disconnected"))
}

// CatchUp returns every persisted message in the given rooms with an id
// greater than lastSeenID. Membership is not checked: a reconnecting
// client may query any room list. Errors surface to the requester, never
// a silently truncated result.
func (c *Coordinator) CatchUp(ctx context.Context, roomIDs []string, lastSeenID uint64) ([]domain.Message, error) {
	msgs, err := c.Store.FindMissed(ctx, roomIDs, lastSeenID)
	if err != nil {
		return nil, fmt.Errorf("find missed messages: %w", err)
	}
	return msgs, nil
}

func (c *Coordinator) sendTo(conn core.SignalConnection, v any) {
	frame, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Str("module", "app.coordinator").Msg("encode event")
		return
	}
	if err := conn.TrySend(frame); err != nil {
		log.Warn().Err(err).Str("module", "app.coordinator").Msg("send dropped")
	}
}

// broadcastRoom fans a frame out to every member of room, skipping the
// sids in except. Slow consumers drop the frame instead of blocking the
// event that produced it.
func (c *Coordinator) broadcastRoom(room domain.RoomName, v any, except ...core.SessionID) {
	frame, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Str("module", "app.coordinator").Msg("encode event")
		return
	}
	skip := make(map[core.SessionID]struct{}, len(except))
	for _, sid := range except {
		skip[sid] = struct{}{}
	}
	for _, m := range c.Registry.MembersOfRoom(room) {
		if _, ok := skip[m.SID]; ok {
			continue
		}
		if err := m.Conn.TrySend(frame); err != nil {
			log.Warn().Err(err).Str("module", "app.coordinator").Str("sid", string(m.SID)).Str("room", string(room)).Msg("broadcast dropped for member")
		}
	}
}

func (c *Coordinator) broadcastAll(v any) {
	frame, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Str("module", "app.coordinator").Msg("encode event")
		return
	}
	for _, m := range c.Registry.All() {
		if err := m.Conn.TrySend(frame); err != nil {
			log.Warn().Err(err).Str("module", "app.coordinator").Str("sid", string(m.SID)).Msg("broadcast dropped for member")
		}
	}
}
