package app

import (
	"sort"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/parleychat/parley/internal/core"
	"github.com/parleychat/parley/internal/domain"
)

type sessionEntry struct {
	Conn     core.SignalConnection
	Username string
	Room     domain.RoomName
}

// MemberSnap is a read-only view of one live session, safe to use after
// the registry lock is released.
type MemberSnap struct {
	SID      core.SessionID
	Conn     core.SignalConnection
	Username string
	Room     domain.RoomName
}

// Registry tracks live sessions and username presence. Room membership is
// never stored separately: it is always derived from the sessions' current
// room, so there is nothing to drift out of sync.
type Registry struct {
	mu       sync.RWMutex
	sessions map[core.SessionID]*sessionEntry
	present  map[string]core.SessionID // username -> owning session
}

func NewRegistry() *Registry {
	return &Registry{
		sessions: make(map[core.SessionID]*sessionEntry),
		present:  make(map[string]core.SessionID),
	}
}

// Open creates the session for sid and claims the username. A second join
// on a live session or a username held by another session is rejected.
func (r *Registry) Open(sid core.SessionID, conn core.SignalConnection, username string, room domain.RoomName) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[sid]; ok {
		return ErrAlreadyJoined
	}
	if owner, ok := r.present[username]; ok && owner != sid {
		return ErrDuplicateUsername
	}
	r.sessions[sid] = &sessionEntry{Conn: conn, Username: username, Room: room}
	r.present[username] = sid
	log.Info().Str("module", "app.registry").Str("sid", string(sid)).Str("username", username).Str("room", string(room)).Msg("session opened")
	return nil
}

// SetRoom moves the session to a new current room.
func (r *Registry) SetRoom(sid core.SessionID, room domain.RoomName) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.sessions[sid]
	if !ok {
		return ErrUnknownSession
	}
	e.Room = room
	log.Info().Str("module", "app.registry").Str("sid", string(sid)).Str("room", string(room)).Msg("session moved")
	return nil
}

// Close removes the session and releases its username. Safe to call for a
// sid that never joined or already closed.
func (r *Registry) Close(sid core.SessionID) (username string, room domain.RoomName, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.sessions[sid]
	if !ok {
		return "", "", false
	}
	delete(r.sessions, sid)
	if owner, held := r.present[e.Username]; held && owner == sid {
		delete(r.present, e.Username)
	}
	log.Info().Str("module", "app.registry").Str("sid", string(sid)).Str("username", e.Username).Msg("session closed")
	return e.Username, e.Room, true
}

// Get returns a snapshot of the session for sid.
func (r *Registry) Get(sid core.SessionID) (MemberSnap, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.sessions[sid]
	if !ok {
		return MemberSnap{}, false
	}
	return MemberSnap{SID: sid, Conn: e.Conn, Username: e.Username, Room: e.Room}, true
}

// RoomOf reports the current room of the session, if any.
func (r *Registry) RoomOf(sid core.SessionID) (domain.RoomName, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.sessions[sid]
	if !ok {
		return "", false
	}
	return e.Room, true
}

// MembersOfRoom snapshots every session currently in room.
func (r *Registry) MembersOfRoom(room domain.RoomName) []MemberSnap {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []MemberSnap
	for sid, e := range r.sessions {
		if e.Room == room {
			out = append(out, MemberSnap{SID: sid, Conn: e.Conn, Username: e.Username, Room: e.Room})
		}
	}
	return out
}

// All snapshots every live session.
func (r *Registry) All() []MemberSnap {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]MemberSnap, 0, len(r.sessions))
	for sid, e := range r.sessions {
		out = append(out, MemberSnap{SID: sid, Conn: e.Conn, Username: e.Username, Room: e.Room})
	}
	return out
}

// Usernames returns the present usernames, sorted for stable client display.
func (r *Registry) Usernames() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.present))
	for name := range r.present {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
