package app

import "github.com/parleychat/parley/internal/domain"

// Outbound wire events. Every frame pushed to a client is one of these,
// tagged by Type.

const ServerUser = "SERVER"

type ChatEvent struct {
	Type    string `json:"type"`
	User    string `json:"user"`
	Message string `json:"message"`
}

type RoomsEvent struct {
	Type  string            `json:"type"`
	Rooms []domain.RoomName `json:"rooms"`
	Room  domain.RoomName   `json:"room"`
}

type UsersEvent struct {
	Type  string   `json:"type"`
	Users []string `json:"users"`
}

type ErrorEvent struct {
	Type  string `json:"type"`
	Error string `json:"error"`
}

func chatEvent(user, message string) ChatEvent {
	return ChatEvent{Type: "updatechat", User: user, Message: message}
}

func roomsEvent(rooms []domain.RoomName, current domain.RoomName) RoomsEvent {
	return RoomsEvent{Type: "updaterooms", Rooms: rooms, Room: current}
}

func usersEvent(users []string) UsersEvent {
	return UsersEvent{Type: "updateusers", Users: users}
}
