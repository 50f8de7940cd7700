package chat

import (
	"slices"

	"github.com/omochice/talkwave/pkg/protocol"
)

// MessageFeed is the ordered, duplicate-free message list of one room.
// Arrival order is authoritative; messages are never re-sorted.
type MessageFeed struct {
	roomID   int64
	messages []protocol.Message
	ids      map[int64]struct{}
}

// NewMessageFeed creates an empty feed not bound to any room.
func NewMessageFeed() *MessageFeed {
	return &MessageFeed{ids: make(map[int64]struct{})}
}

// Reset discards the content and scopes the feed to roomID.
func (f *MessageFeed) Reset(roomID int64) {
	f.roomID = roomID
	f.messages = nil
	clear(f.ids)
}

// RoomID returns the room the feed is scoped to, 0 if none.
func (f *MessageFeed) RoomID() int64 {
	return f.roomID
}

// ReplaceAll replaces the content with history, oldest first. History was
// requested for the feed's room, so only repeated ids are skipped.
func (f *MessageFeed) ReplaceAll(history []protocol.Message) {
	f.messages = make([]protocol.Message, 0, len(history))
	clear(f.ids)
	for _, m := range history {
		f.add(m)
	}
}

// Append adds m at the end. It is a no-op for a known id or another room.
func (f *MessageFeed) Append(m protocol.Message) bool {
	if m.RoomID != f.roomID {
		return false
	}
	return f.add(m)
}

func (f *MessageFeed) add(m protocol.Message) bool {
	if _, ok := f.ids[m.ID]; ok {
		return false
	}
	f.ids[m.ID] = struct{}{}
	f.messages = append(f.messages, m)
	return true
}

// Messages returns a copy of the feed in arrival order.
func (f *MessageFeed) Messages() []protocol.Message {
	return slices.Clone(f.messages)
}

// Len returns the number of messages.
func (f *MessageFeed) Len() int {
	return len(f.messages)
}
