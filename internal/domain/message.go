package domain

import "errors"

const MaxContentLen = 2048

var (
	ErrContentEmpty   = errors.New("message content empty")
	ErrContentTooLong = errors.New("message content too long")
)

// Message is immutable once issued. MessageID is globally unique and
// strictly increasing in issuance order across all rooms. JSON names match
// the persisted record layout served by the catch-up endpoint.
type Message struct {
	MessageID uint64   `json:"messageId"`
	RoomID    RoomName `json:"roomId"`
	Username  string   `json:"messageUserName"`
	Content   string   `json:"messageContent"`
}

// ValidateContent checks a raw chat payload before it is sequenced.
func ValidateContent(content string) error {
	if len(content) == 0 {
		return ErrContentEmpty
	}
	if len(content) > MaxContentLen {
		return ErrContentTooLong
	}
	return nil
}
