// Package store persists messages and the message-id counter in SQLite.
//
// All writes funnel through a single goroutine: SQLite allows one writer
// at a time and serializing here keeps the counter increment a single
// atomic round trip, so no two events can ever observe the same id.
// Reads run concurrently against the connection pool.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog/log"

	"github.com/parleychat/parley/internal/core"
	"github.com/parleychat/parley/internal/domain"
)

var (
	_ core.Sequencer    = (*Store)(nil)
	_ core.MessageStore = (*Store)(nil)
)

// counterKey is the id of the singleton row in the counters table.
const counterKey = "counterSequence"

var ErrClosed = errors.New("store closed")

type writeOp struct {
	fn     func(db *sql.DB) error
	result chan error
}

// Store implements core.Sequencer and core.MessageStore on one SQLite
// database file.
type Store struct {
	db           *sql.DB
	writes       chan writeOp
	shutdown     chan struct{}
	wg           sync.WaitGroup
	writeTimeout time.Duration

	mu     sync.RWMutex
	closed bool
}

// Open opens (creating if needed) the database at path and starts the
// writer goroutine.
func Open(path string, writeTimeout time.Duration) (*Store, error) {
	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := migrate(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &Store{
		db:           db,
		writes:       make(chan writeOp, 100),
		shutdown:     make(chan struct{}),
		writeTimeout: writeTimeout,
	}
	s.wg.Add(1)
	go s.writeLoop()

	log.Info().Str("module", "store").Str("path", path).Msg("store opened")
	return s, nil
}

func migrate(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS messages (
			message_id INTEGER PRIMARY KEY,
			room_id    TEXT NOT NULL,
			username   TEXT NOT NULL,
			content    TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_messages_room_id ON messages(room_id, message_id)`,
		`CREATE TABLE IF NOT EXISTS counters (
			id  TEXT PRIMARY KEY,
			seq INTEGER NOT NULL
		)`,
	}
	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

func (s *Store) writeLoop() {
	defer s.wg.Done()
	for {
		select {
		case op := <-s.writes:
			op.result <- op.fn(s.db)
		case <-s.shutdown:
			log.Info().Str("module", "store").Msg("write loop shutting down")
			return
		}
	}
}

// execWrite queues fn on the writer goroutine and waits for it.
func (s *Store) execWrite(ctx context.Context, fn func(db *sql.DB) error) error {
	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return ErrClosed
	}
	s.mu.RUnlock()

	op := writeOp{fn: fn, result: make(chan error, 1)}
	timer := time.NewTimer(s.writeTimeout)
	defer timer.Stop()

	select {
	case s.writes <- op:
	case <-timer.C:
		return errors.New("write queue timeout")
	case <-ctx.Done():
		return ctx.Err()
	case <-s.shutdown:
		return ErrClosed
	}

	select {
	case err := <-op.result:
		return err
	case <-timer.C:
		return errors.New("write timeout")
	}
}

// NextID atomically increments and returns the durable message counter.
// The row is created on first use, so the first id issued is 1. The
// upsert-and-return is one statement: two concurrent calls can never see
// the same value.
func (s *Store) NextID(ctx context.Context) (uint64, error) {
	var id int64
	err := s.execWrite(ctx, func(db *sql.DB) error {
		return db.QueryRowContext(ctx,
			`INSERT INTO counters (id, seq) VALUES (?, 1)
			 ON CONFLICT(id) DO UPDATE SET seq = seq + 1
			 RETURNING seq`, counterKey).Scan(&id)
	})
	if err != nil {
		return 0, fmt.Errorf("increment counter: %w", err)
	}
	return uint64(id), nil
}

// Insert durably appends one message.
func (s *Store) Insert(ctx context.Context, msg *domain.Message) error {
	err := s.execWrite(ctx, func(db *sql.DB) error {
		_, err := db.ExecContext(ctx,
			`INSERT INTO messages (message_id, room_id, username, content) VALUES (?, ?, ?, ?)`,
			int64(msg.MessageID), string(msg.RoomID), msg.Username, msg.Content)
		return err
	})
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	return nil
}

// FindMissed returns every message in the given rooms with an id greater
// than afterID. Order is unspecified.
func (s *Store) FindMissed(ctx context.Context, roomIDs []string, afterID uint64) ([]domain.Message, error) {
	if len(roomIDs) == 0 {
		return nil, nil
	}

	placeholders := strings.Repeat("?,", len(roomIDs)-1) + "?"
	args := make([]any, 0, len(roomIDs)+1)
	args = append(args, int64(afterID))
	for _, id := range roomIDs {
		args = append(args, id)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT message_id, room_id, username, content FROM messages
		 WHERE message_id > ? AND room_id IN (`+placeholders+`)`, args...)
	if err != nil {
		return nil, fmt.Errorf("query missed messages: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []domain.Message
	for rows.Next() {
		var (
			id     int64
			roomID string
			msg    domain.Message
		)
		if err := rows.Scan(&id, &roomID, &msg.Username, &msg.Content); err != nil {
			return nil, fmt.Errorf("scan message row: %w", err)
		}
		msg.MessageID = uint64(id)
		msg.RoomID = domain.RoomName(roomID)
		out = append(out, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate message rows: %w", err)
	}
	return out, nil
}

// DistinctRoomIDs lists every room id that appears in persisted messages.
// Used once at startup to seed the room directory.
func (s *Store) DistinctRoomIDs(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT room_id FROM messages`)
	if err != nil {
		return nil, fmt.Errorf("query distinct rooms: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan room id: %w", err)
		}
		out = append(out, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate room ids: %w", err)
	}
	return out, nil
}

// Close drains the writer goroutine and closes the database.
func (s *Store) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	close(s.shutdown)
	s.wg.Wait()

	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}
