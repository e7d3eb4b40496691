package core

import (
	"context"

	"github.com/parleychat/parley/internal/domain"
)

// Frame is a raw wire payload, already encoded for the client.
type Frame []byte

// SessionID identifies one client connection for its whole lifetime.
type SessionID string

// SignalConnection abstracts a system messaging transport.
// Owned by the adapter; the adapter must Close() it.
type SignalConnection interface {
	TrySend(Frame) error
	Close()
}

// Sequencer issues globally unique, strictly increasing message ids
// backed by a durable counter. On error no id was allocated and the
// caller must abort the send.
type Sequencer interface {
	NextID(ctx context.Context) (uint64, error)
}

// MessageStore durably persists issued messages and answers the
// catch-up range query. Result order of FindMissed is unspecified.
type MessageStore interface {
	Insert(ctx context.Context, msg *domain.Message) error
	FindMissed(ctx context.Context, roomIDs []string, afterID uint64) ([]domain.Message, error)
	DistinctRoomIDs(ctx context.Context) ([]string, error)
}
