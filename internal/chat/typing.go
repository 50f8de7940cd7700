package chat

import (
	"fmt"
	"slices"
	"time"
)

// TypingTracker keeps, per room, the users currently typing in the order
// they started. It is driven purely by user_typing events; the receiving
// side never times entries out.
type TypingTracker struct {
	rooms map[int64][]string
}

// NewTypingTracker creates an empty tracker.
func NewTypingTracker() *TypingTracker {
	return &TypingTracker{rooms: make(map[int64][]string)}
}

// Apply records a typing flag. It reports whether the set changed.
func (t *TypingTracker) Apply(roomID int64, username string, typing bool) bool {
	users := t.rooms[roomID]
	i := slices.Index(users, username)

	switch {
	case typing && i < 0:
		t.rooms[roomID] = append(users, username)
		return true
	case !typing && i >= 0:
		users = slices.Delete(users, i, i+1)
		if len(users) == 0 {
			delete(t.rooms, roomID)
		} else {
			t.rooms[roomID] = users
		}
		return true
	}
	return false
}

// Typing returns the users typing in roomID in insertion order.
func (t *TypingTracker) Typing(roomID int64) []string {
	return slices.Clone(t.rooms[roomID])
}

// Clear forgets the typing users of one room.
func (t *TypingTracker) Clear(roomID int64) {
	delete(t.rooms, roomID)
}

// Reset forgets every room.
func (t *TypingTracker) Reset() {
	clear(t.rooms)
}

// TypingIndicator renders the typing line for a set of users.
func TypingIndicator(users []string) string {
	switch len(users) {
	case 0:
		return ""
	case 1:
		return fmt.Sprintf("%s is typing...", users[0])
	case 2:
		return fmt.Sprintf("%s and %s are typing...", users[0], users[1])
	default:
		return fmt.Sprintf("%s and %d others are typing...", users[0], len(users)-1)
	}
}

// countdown is a single-shot timer that is always disarmed before it is
// rearmed. A callback from a timer that was stopped too late is dropped by
// comparing generations.
type countdown struct {
	sched Scheduler
	d     time.Duration
	timer Timer
	gen   uint64
}

// Arm (re)starts the countdown. fn runs on the loop when it elapses.
func (c *countdown) Arm(fn func()) {
	c.Disarm()
	gen := c.gen
	c.timer = c.sched.AfterFunc(c.d, func() {
		if gen != c.gen {
			return
		}
		c.timer = nil
		c.gen++
		fn()
	})
}

// Disarm cancels a pending countdown. It reports whether one was pending.
func (c *countdown) Disarm() bool {
	if c.timer == nil {
		return false
	}
	c.timer.Stop()
	c.timer = nil
	c.gen++
	return true
}

// Armed reports whether the countdown is pending.
func (c *countdown) Armed() bool {
	return c.timer != nil
}
