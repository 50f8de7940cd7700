// Package protocol defines the chat data model and the realtime wire format
// shared by the session core, the transport and the reference server.
package protocol

// Identity is the authenticated user as reported by the server.
type Identity struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
}

// Message is a single chat message. It is immutable once received.
type Message struct {
	ID             int64  `json:"id"`
	RoomID         int64  `json:"room_id"`
	SenderID       int64  `json:"sender_id"`
	SenderUsername string `json:"sender_username"`
	Content        string `json:"content"`
	Timestamp      string `json:"timestamp"`
	Type           string `json:"message_type"`
}

// MessageTypeText is the only message type the client produces.
const MessageTypeText = "text"

// Own reports whether the message was sent by id.
func (m Message) Own(id Identity) bool {
	return m.SenderID == id.ID
}

// Author returns the display name of the sender.
// Messages from deleted users carry no username.
func (m Message) Author() string {
	if m.SenderUsername == "" {
		return "Unknown"
	}
	return m.SenderUsername
}

// Room is a chat room as listed by the server.
type Room struct {
	ID            int64    `json:"id"`
	Name          string   `json:"name"`
	Description   string   `json:"description"`
	IsPrivate     bool     `json:"is_private"`
	CreatedBy     int64    `json:"created_by,omitempty"`
	CreatedAt     string   `json:"created_at,omitempty"`
	MemberCount   int      `json:"member_count,omitempty"`
	LatestMessage *Message `json:"latest_message,omitempty"`
}

// Preview returns the text shown under the room name in a room list.
func (r Room) Preview() string {
	if r.LatestMessage == nil {
		return "No messages yet"
	}
	return r.LatestMessage.Content
}

// NewRoom is the request body for room creation.
type NewRoom struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	IsPrivate   bool   `json:"is_private"`
}
