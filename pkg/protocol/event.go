package protocol

import "google.golang.org/protobuf/types/known/structpb"

// Realtime event names as they appear on the wire.
const (
	EventNewMessage       = "new_message"
	EventUserStatusChange = "user_status_change"
	EventUserTyping       = "user_typing"
	EventUserJoinedRoom   = "user_joined_room"
	EventUserLeftRoom     = "user_left_room"
	EventError            = "error"

	EventJoinRoom    = "join_room_socket"
	EventLeaveRoom   = "leave_room_socket"
	EventSendMessage = "send_message"
	EventTypingStart = "typing_start"
	EventTypingStop  = "typing_stop"
)

// Payload is an event that travels over the realtime channel.
type Payload interface {
	EventName() string
	fields() map[string]*structpb.Value
}

// Event is an inbound event delivered to the session, in channel order.
// Connected and Disconnected are synthesized by the transport itself.
type Event interface {
	isEvent()
}

// NewMessage is broadcast for every message posted to a room the user is in.
type NewMessage struct {
	Message Message
}

// UserStatusChange reports a user going online or offline.
type UserStatusChange struct {
	UserID   int64
	Username string
	IsOnline bool
}

// UserTyping reports a change of another user's typing flag in a room.
type UserTyping struct {
	UserID   int64
	Username string
	RoomID   int64
	Typing   bool
}

// UserJoinedRoom is sent when a user subscribes to a room.
type UserJoinedRoom struct {
	UserID   int64
	Username string
	RoomID   int64
}

// UserLeftRoom is sent when a user unsubscribes from a room.
type UserLeftRoom struct {
	UserID   int64
	Username string
	RoomID   int64
}

// ServerError carries an error reported by the server over the channel.
type ServerError struct {
	Message string
}

// Connected is emitted by the transport each time a connection is established.
type Connected struct {
	ConnectionID string
	Reconnect    bool
}

// Disconnected is emitted by the transport when an established connection drops.
type Disconnected struct {
	Err error
}

func (NewMessage) isEvent()       {}
func (UserStatusChange) isEvent() {}
func (UserTyping) isEvent()       {}
func (UserJoinedRoom) isEvent()   {}
func (UserLeftRoom) isEvent()     {}
func (ServerError) isEvent()      {}
func (Connected) isEvent()        {}
func (Disconnected) isEvent()     {}

// JoinRoom subscribes the connection to a room.
type JoinRoom struct {
	RoomID int64
}

// LeaveRoom unsubscribes the connection from a room.
type LeaveRoom struct {
	RoomID int64
}

// SendMessage posts a message to a room.
type SendMessage struct {
	RoomID      int64
	Content     string
	MessageType string
}

// TypingStart announces that the local user started typing.
type TypingStart struct {
	RoomID int64
}

// TypingStop announces that the local user stopped typing.
type TypingStop struct {
	RoomID int64
}

func (NewMessage) EventName() string       { return EventNewMessage }
func (UserStatusChange) EventName() string { return EventUserStatusChange }
func (UserTyping) EventName() string       { return EventUserTyping }
func (UserJoinedRoom) EventName() string   { return EventUserJoinedRoom }
func (UserLeftRoom) EventName() string     { return EventUserLeftRoom }
func (ServerError) EventName() string      { return EventError }
func (JoinRoom) EventName() string         { return EventJoinRoom }
func (LeaveRoom) EventName() string        { return EventLeaveRoom }
func (SendMessage) EventName() string      { return EventSendMessage }
func (TypingStart) EventName() string      { return EventTypingStart }
func (TypingStop) EventName() string       { return EventTypingStop }
