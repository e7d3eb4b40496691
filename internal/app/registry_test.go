package app

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parleychat/parley/internal/core"
)

func TestRegistry(t *testing.T) {
	t.Run("open and get", func(t *testing.T) {
		r := NewRegistry()
		conn := &fakeConn{}
		require.NoError(t, r.Open("s1", conn, "alice", "lobby"))

		snap, ok := r.Get("s1")
		require.True(t, ok)
		assert.Equal(t, "alice", snap.Username)
		assert.Equal(t, core.SessionID("s1"), snap.SID)
		assert.Equal(t, "lobby", string(snap.Room))
	})

	t.Run("duplicate username rejected across sessions", func(t *testing.T) {
		r := NewRegistry()
		require.NoError(t, r.Open("s1", &fakeConn{}, "alice", "lobby"))
		require.ErrorIs(t, r.Open("s2", &fakeConn{}, "alice", "den"), ErrDuplicateUsername)
	})

	t.Run("set room", func(t *testing.T) {
		r := NewRegistry()
		require.NoError(t, r.Open("s1", &fakeConn{}, "alice", "lobby"))
		require.NoError(t, r.SetRoom("s1", "den"))

		room, ok := r.RoomOf("s1")
		require.True(t, ok)
		assert.Equal(t, "den", string(room))

		require.ErrorIs(t, r.SetRoom("nope", "den"), ErrUnknownSession)
	})

	t.Run("close releases username and is idempotent", func(t *testing.T) {
		r := NewRegistry()
		require.NoError(t, r.Open("s1", &fakeConn{}, "alice", "lobby"))

		username, room, ok := r.Close("s1")
		require.True(t, ok)
		assert.Equal(t, "alice", username)
		assert.Equal(t, "lobby", string(room))
		assert.Empty(t, r.Usernames())

		_, _, ok = r.Close("s1")
		assert.False(t, ok)
	})

	t.Run("members of room reflects current rooms only", func(t *testing.T) {
		r := NewRegistry()
		require.NoError(t, r.Open("s1", &fakeConn{}, "alice", "lobby"))
		require.NoError(t, r.Open("s2", &fakeConn{}, "bob", "lobby"))
		require.NoError(t, r.Open("s3", &fakeConn{}, "carol", "den"))

		require.Len(t, r.MembersOfRoom("lobby"), 2)
		require.Len(t, r.MembersOfRoom("den"), 1)
		require.NoError(t, r.SetRoom("s2", "den"))
		require.Len(t, r.MembersOfRoom("lobby"), 1)
		require.Len(t, r.MembersOfRoom("den"), 2)
	})

	t.Run("usernames are sorted", func(t *testing.T) {
		r := NewRegistry()
		require.NoError(t, r.Open("s1", &fakeConn{}, "zed", "lobby"))
		require.NoError(t, r.Open("s2", &fakeConn{}, "amy", "lobby"))
		require.NoError(t, r.Open("s3", &fakeConn{}, "moe", "lobby"))
		assert.Equal(t, []string{"amy", "moe", "zed"}, r.Usernames())
	})

	t.Run("concurrent opens never double-claim a username", func(t *testing.T) {
		r := NewRegistry()
		const n = 50
		var wg sync.WaitGroup
		errs := make(chan error, n)
		for i := 0; i < n; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				errs <- r.Open(core.SessionID(fmt.Sprintf("s%d", i)), &fakeConn{}, "highlander", "lobby")
			}(i)
		}
		wg.Wait()
		close(errs)

		var okCount int
		for err := range errs {
			if err == nil {
				okCount++
			} else {
				require.ErrorIs(t, err, ErrDuplicateUsername)
			}
		}
		assert.Equal(t, 1, okCount)
	})
}
