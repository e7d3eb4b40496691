package app

import "errors"

var (
	// ErrDuplicateUsername rejects a join claiming a name another live
	// session already holds. Rejection keeps the presence set honest: a
	// username is listed iff exactly one session owns it.
	ErrDuplicateUsername = errors.New("username already taken")

	// ErrUnknownSession means a chat or room switch arrived before join,
	// or after disconnect.
	ErrUnknownSession = errors.New("no session for connection")

	// ErrAlreadyJoined rejects a second join on a live session.
	ErrAlreadyJoined = errors.New("session already joined")
)
