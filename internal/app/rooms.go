package app

import (
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/parleychat/parley/internal/domain"
)

// Directory is the append-only registry of room names known to this
// process. Insertion order is preserved so clients see a stable list.
// Rooms are never removed at runtime.
type Directory struct {
	mu    sync.RWMutex
	order []domain.RoomName
	seen  map[domain.RoomName]struct{}
}

func NewDirectory() *Directory {
	return &Directory{seen: make(map[domain.RoomName]struct{})}
}

// Ensure registers the room if it is not known yet and reports whether
// this call was the first to see it. Idempotent.
func (d *Directory) Ensure(name domain.RoomName) bool {
	d.mu.RLock()
	_, ok := d.seen[name]
	d.mu.RUnlock()
	if ok {
		return false
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok = d.seen[name]; ok {
		return false
	}
	d.seen[name] = struct{}{}
	d.order = append(d.order, name)
	log.Info().Str("module", "app.rooms").Str("room", string(name)).Msg("room registered")
	return true
}

// Known returns all room names in insertion order.
func (d *Directory) Known() []domain.RoomName {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]domain.RoomName, len(d.order))
	copy(out, d.order)
	return out
}

// Seed loads room names recovered from persisted messages at startup.
func (d *Directory) Seed(names []string) {
	for _, n := range names {
		d.Ensure(domain.RoomName(n))
	}
}
