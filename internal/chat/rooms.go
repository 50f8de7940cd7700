package chat

import (
	"context"
	"log"
	"strings"
	"time"

	"github.com/omochice/talkwave/pkg/protocol"
)

// RoomState is the state of the RoomManager.
type RoomState int

const (
	NoActiveRoom RoomState = iota
	SwitchingRoom
	RoomActive
)

// String returns the string representation of RoomState
func (s RoomState) String() string {
	switch s {
	case NoActiveRoom:
		return "NO_ACTIVE_ROOM"
	case SwitchingRoom:
		return "SWITCHING_ROOM"
	case RoomActive:
		return "ROOM_ACTIVE"
	default:
		return "UNKNOWN"
	}
}

// ActiveRoom is the single room subscribed to on the realtime channel.
type ActiveRoom struct {
	Room     protocol.Room
	JoinedAt time.Time
}

// Emitter is the outbound half of the realtime transport.
type Emitter interface {
	Emit(p protocol.Payload)
}

// RoomManager owns the active room. It pairs leave/join emissions and
// guarantees that a history response only lands in the feed if no newer
// switch happened while it was in flight.
type RoomManager struct {
	session *Context
	emitter Emitter
	api     RoomAPI
	sched   Scheduler
	feed    *MessageFeed
	typing  *TypingTracker
	dir     *RoomDirectory
	now     func() time.Time

	state RoomState
	// switches counts selectRoom calls; a history response carries the
	// value current when it was requested.
	switches uint64
	// live buffers messages for the target room that arrive while its
	// history is loading.
	live      []protocol.Message
	countdown countdown
}

// NewRoomManager wires a RoomManager. typingTimeout is the sender-side
// countdown after which "typing stop" is emitted.
func NewRoomManager(session *Context, emitter Emitter, api RoomAPI, sched Scheduler, feed *MessageFeed, typing *TypingTracker, dir *RoomDirectory, typingTimeout time.Duration) *RoomManager {
	return &RoomManager{
		session:   session,
		emitter:   emitter,
		api:       api,
		sched:     sched,
		feed:      feed,
		typing:    typing,
		dir:       dir,
		now:       time.Now,
		countdown: countdown{sched: sched, d: typingTimeout},
	}
}

// State returns the current state.
func (m *RoomManager) State() RoomState {
	return m.state
}

// SelectRoom makes room the active room.
func (m *RoomManager) SelectRoom(room protocol.Room) {
	if prev := m.session.active; prev != nil {
		if prev.Room.ID == room.ID {
			return
		}
		if m.countdown.Disarm() {
			m.emitter.Emit(protocol.TypingStop{RoomID: prev.Room.ID})
		}
		m.emitter.Emit(protocol.LeaveRoom{RoomID: prev.Room.ID})
		// No user_typing updates arrive for a room we left.
		m.typing.Clear(prev.Room.ID)
	}

	m.switches++
	seq := m.switches
	m.session.active = &ActiveRoom{Room: room, JoinedAt: m.now()}
	m.state = SwitchingRoom
	m.live = nil
	m.feed.Reset(room.ID)

	m.emitter.Emit(protocol.JoinRoom{RoomID: room.ID})

	m.sched.Go(func(ctx context.Context) func() {
		history, err := m.api.LoadMessages(ctx, room.ID)
		return func() { m.historyLoaded(seq, room.ID, history, err) }
	})
}

func (m *RoomManager) historyLoaded(seq uint64, roomID int64, history []protocol.Message, err error) {
	if seq != m.switches {
		log.Printf("[rooms] discarding stale history for room %d", roomID)
		return
	}
	if err != nil {
		log.Printf("[rooms] failed to load messages for room %d: %v", roomID, err)
		history = nil
	}

	m.feed.ReplaceAll(history)
	for _, msg := range m.live {
		m.feed.Append(msg)
	}
	m.live = nil
	m.state = RoomActive
}

// HandleMessage applies an inbound new_message. Only the active room's feed
// is touched; every room's preview is updated.
func (m *RoomManager) HandleMessage(msg protocol.Message) {
	m.dir.UpdatePreview(msg)

	active := m.session.active
	if active == nil || active.Room.ID != msg.RoomID {
		return
	}
	switch m.state {
	case SwitchingRoom:
		m.live = append(m.live, msg)
	case RoomActive:
		m.feed.Append(msg)
	}
}

// Resync re-asserts the active room after the channel (re)connects.
func (m *RoomManager) Resync() {
	if active := m.session.active; active != nil {
		m.emitter.Emit(protocol.JoinRoom{RoomID: active.Room.ID})
	}
}

// SendMessage posts content to the active room and stops typing.
func (m *RoomManager) SendMessage(content string) error {
	active := m.session.active
	if active == nil {
		return ErrNoActiveRoom
	}
	content = strings.TrimSpace(content)
	if content == "" {
		return nil
	}

	m.emitter.Emit(protocol.SendMessage{
		RoomID:      active.Room.ID,
		Content:     content,
		MessageType: protocol.MessageTypeText,
	})
	m.stopTyping(active.Room.ID)
	return nil
}

// NotifyTyping is called on every non-submitting keystroke.
func (m *RoomManager) NotifyTyping() {
	active := m.session.active
	if active == nil {
		return
	}
	roomID := active.Room.ID
	m.emitter.Emit(protocol.TypingStart{RoomID: roomID})
	m.countdown.Arm(func() {
		m.emitter.Emit(protocol.TypingStop{RoomID: roomID})
	})
}

// StopTyping is called when the input loses focus.
func (m *RoomManager) StopTyping() {
	if active := m.session.active; active != nil {
		m.stopTyping(active.Room.ID)
	}
}

func (m *RoomManager) stopTyping(roomID int64) {
	m.countdown.Disarm()
	m.emitter.Emit(protocol.TypingStop{RoomID: roomID})
}

// Reset drops the active room without emitting anything; the channel is
// going away. In-flight history responses are invalidated.
func (m *RoomManager) Reset() {
	m.countdown.Disarm()
	m.switches++
	m.session.active = nil
	m.state = NoActiveRoom
	m.live = nil
	m.feed.Reset(0)
	m.typing.Reset()
}
