package chat

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/omochice/talkwave/pkg/protocol"
)

// ErrClosed is returned by Session methods once Run has returned.
var ErrClosed = errors.New("session closed")

// Context is the process-wide session state shared by the components.
// Each field has exactly one writer: identity is written by the
// AuthController, active by the RoomManager.
type Context struct {
	identity *protocol.Identity
	active   *ActiveRoom
}

// Identity returns the signed-in user.
func (c *Context) Identity() (protocol.Identity, bool) {
	if c.identity == nil {
		return protocol.Identity{}, false
	}
	return *c.identity, true
}

// Active returns the active room session.
func (c *Context) Active() (ActiveRoom, bool) {
	if c.active == nil {
		return ActiveRoom{}, false
	}
	return *c.active, true
}

// API is the full request/response surface.
type API interface {
	AuthAPI
	RoomAPI
}

// Options tunes the session timers.
type Options struct {
	TypingTimeout time.Duration
	NoticeTTL     time.Duration
}

func (o Options) withDefaults() Options {
	if o.TypingTimeout <= 0 {
		o.TypingTimeout = 3 * time.Second
	}
	if o.NoticeTTL <= 0 {
		o.NoticeTTL = 5 * time.Second
	}
	return o
}

// Observer receives a fresh Snapshot after every processed task.
type Observer interface {
	Render(Snapshot)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(Snapshot)

// Render implements Observer.
func (f ObserverFunc) Render(s Snapshot) { f(s) }

// Snapshot is a read-only projection of the whole session for rendering.
type Snapshot struct {
	Auth             AuthState
	Identity         protocol.Identity
	Connected        bool
	Room             RoomState
	ActiveRoomID     int64
	ActiveRoom       string
	Messages         []protocol.Message
	TypingUsers      []string
	Typing           string
	MyRooms          []protocol.Room
	PublicRooms      []protocol.Room
	// MyRoomsLoads and PublicRoomsLoads count completed list loads.
	MyRoomsLoads     uint64
	PublicRoomsLoads uint64
	Online           []string
	Notice           *Notice
}

// IsActive reports whether roomID should be highlighted as the active room.
func (s Snapshot) IsActive(roomID int64) bool {
	return s.ActiveRoomID != 0 && s.ActiveRoomID == roomID
}

// Session is the composition root. It owns the loop, dispatches inbound
// events to the components and exposes goroutine-safe commands.
type Session struct {
	loop      *Loop
	transport Transport
	observer  Observer

	ctx       Context
	connected bool
	notices   *Notices
	feed      *MessageFeed
	typing    *TypingTracker
	dir       *RoomDirectory
	rooms     *RoomManager
	auth      *AuthController
}

// NewSession builds a session. Run must be running for commands to be
// processed.
func NewSession(api API, transport Transport, opts Options, observer Observer) *Session {
	s := &Session{}
	s.loop = NewLoop(s.render)
	s.init(api, transport, s.loop, opts)
	s.observer = observer
	return s
}

func (s *Session) init(api API, transport Transport, sched Scheduler, opts Options) {
	opts = opts.withDefaults()
	s.transport = transport
	s.notices = newNotices(sched, opts.NoticeTTL)
	s.feed = NewMessageFeed()
	s.typing = NewTypingTracker()
	s.dir = NewRoomDirectory(api, sched, s.notices)
	s.rooms = NewRoomManager(&s.ctx, transport, api, sched, s.feed, s.typing, s.dir, opts.TypingTimeout)
	s.auth = NewAuthController(&s.ctx, api, transport, s.rooms, s.dir, sched, s.notices)
	s.auth.teardown = func() { s.connected = false }
}

// Run processes commands and events until ctx is done.
func (s *Session) Run(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		s.pump(ctx)
	}()

	s.loop.Run(ctx)
	cancel()
	wg.Wait()
	s.transport.Disconnect()
	s.loop.Stop()
}

// pump moves inbound events onto the loop, preserving channel order.
func (s *Session) pump(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-s.transport.Events():
			if !s.loop.Post(func() { s.dispatch(ev) }) {
				return
			}
		}
	}
}

func (s *Session) dispatch(ev protocol.Event) {
	if s.auth.State() != Authenticated {
		return
	}
	self, _ := s.ctx.Identity()

	switch e := ev.(type) {
	case protocol.Connected:
		s.connected = true
		s.rooms.Resync()
	case protocol.Disconnected:
		s.connected = false
	case protocol.NewMessage:
		s.rooms.HandleMessage(e.Message)
	case protocol.UserTyping:
		if e.Username != self.Username {
			s.typing.Apply(e.RoomID, e.Username, e.Typing)
		}
	case protocol.UserStatusChange:
		s.dir.SetOnline(e.Username, e.IsOnline)
	case protocol.UserJoinedRoom:
		if e.Username != self.Username && s.viewing(e.RoomID) {
			s.notices.Info(fmt.Sprintf("%s joined the room", e.Username))
		}
	case protocol.UserLeftRoom:
		if e.Username != self.Username && s.viewing(e.RoomID) {
			s.notices.Info(fmt.Sprintf("%s left the room", e.Username))
		}
	case protocol.ServerError:
		s.notices.show(NoticeError, e.Message)
	}
}

// viewing reports whether roomID is the active room. Membership events of
// the user's other rooms are not shown.
func (s *Session) viewing(roomID int64) bool {
	active, ok := s.ctx.Active()
	return ok && active.Room.ID == roomID
}

func (s *Session) render() {
	if s.observer != nil {
		s.observer.Render(s.snapshot())
	}
}

func (s *Session) snapshot() Snapshot {
	snap := Snapshot{
		Auth:        s.auth.State(),
		Connected:   s.connected,
		Room:        s.rooms.State(),
		Messages:    s.feed.Messages(),
		MyRooms:     s.dir.Mine(),
		PublicRooms: s.dir.Public(),
		Online:      s.dir.Online(),
	}
	snap.Identity, _ = s.ctx.Identity()
	snap.MyRoomsLoads, snap.PublicRoomsLoads = s.dir.Loads()
	if active, ok := s.ctx.Active(); ok {
		snap.ActiveRoomID = active.Room.ID
		snap.ActiveRoom = active.Room.Name
		snap.TypingUsers = s.typing.Typing(active.Room.ID)
		snap.Typing = TypingIndicator(snap.TypingUsers)
	}
	if n, ok := s.notices.Current(); ok {
		snap.Notice = &n
	}
	return snap
}

// do runs fn on the loop and returns its error.
func (s *Session) do(fn func() error) error {
	var err error
	if !s.loop.Do(func() { err = fn() }) {
		return ErrClosed
	}
	return err
}

// Snapshot returns the current state.
func (s *Session) Snapshot() (Snapshot, error) {
	var snap Snapshot
	err := s.do(func() error {
		snap = s.snapshot()
		return nil
	})
	return snap, err
}

// RestoreSession resumes a prior session if the server still knows it.
func (s *Session) RestoreSession() error {
	return s.do(s.auth.RestoreSession)
}

// Login signs in. The outcome is reported through the observer.
func (s *Session) Login(username, password string) error {
	return s.do(func() error {
		return s.auth.Authenticate(ModeLogin, Credentials{Username: username, Password: password})
	})
}

// Register creates an account and signs in.
func (s *Session) Register(username, email, password string) error {
	return s.do(func() error {
		return s.auth.Authenticate(ModeRegister, Credentials{Username: username, Email: email, Password: password})
	})
}

// Logout ends the session.
func (s *Session) Logout() error {
	return s.do(func() error {
		s.auth.Logout()
		return nil
	})
}

// SelectRoom activates one of the user's rooms by id.
func (s *Session) SelectRoom(roomID int64) error {
	return s.do(func() error {
		if s.auth.State() != Authenticated {
			return ErrBusy
		}
		room, ok := s.dir.Room(roomID)
		if !ok {
			err := &RoomError{Message: fmt.Sprintf("Room %d not found", roomID)}
			s.notices.Error(err)
			return err
		}
		s.rooms.SelectRoom(room)
		return nil
	})
}

// SendMessage posts to the active room.
func (s *Session) SendMessage(content string) error {
	return s.do(func() error { return s.rooms.SendMessage(content) })
}

// NotifyTyping reports a keystroke in the message input.
func (s *Session) NotifyTyping() error {
	return s.do(func() error {
		s.rooms.NotifyTyping()
		return nil
	})
}

// StopTyping reports that the message input lost focus.
func (s *Session) StopTyping() error {
	return s.do(func() error {
		s.rooms.StopTyping()
		return nil
	})
}

// CreateRoom creates a room owned by the user.
func (s *Session) CreateRoom(name, description string, private bool) error {
	return s.do(func() error {
		if s.auth.State() != Authenticated {
			return ErrBusy
		}
		return s.dir.CreateRoom(protocol.NewRoom{Name: name, Description: description, IsPrivate: private})
	})
}

// JoinPublicRoom joins a public room.
func (s *Session) JoinPublicRoom(roomID int64) error {
	return s.do(func() error {
		if s.auth.State() != Authenticated {
			return ErrBusy
		}
		s.dir.JoinPublicRoom(roomID)
		return nil
	})
}

// ShowMyRooms reloads the user's rooms.
func (s *Session) ShowMyRooms() error {
	return s.do(func() error {
		if s.auth.State() == Authenticated {
			s.dir.RefreshMine()
		}
		return nil
	})
}

// ShowPublicRooms reloads the joinable public rooms.
func (s *Session) ShowPublicRooms() error {
	return s.do(func() error {
		if s.auth.State() == Authenticated {
			s.dir.RefreshPublic()
		}
		return nil
	})
}

// DismissNotice hides the visible notice.
func (s *Session) DismissNotice() error {
	return s.do(func() error {
		s.notices.Dismiss()
		return nil
	})
}
