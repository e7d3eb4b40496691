package domain

import "errors"

const MaxRoomNameLen = 36

var (
	ErrRoomNameEmpty   = errors.New("room name empty")
	ErrRoomNameTooLong = errors.New("room name too long")
)

type RoomName string

// NewRoomName validates a raw room identifier from the wire.
func NewRoomName(raw string) (RoomName, error) {
	if len(raw) == 0 {
		return "", ErrRoomNameEmpty
	}
	if len(raw) > MaxRoomNameLen {
		return "", ErrRoomNameTooLong
	}
	return RoomName(raw), nil
}
