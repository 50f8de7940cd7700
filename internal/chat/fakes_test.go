package chat

import (
	"context"
	"slices"
	"time"

	"github.com/omochice/talkwave/pkg/protocol"
)

// fakeScheduler queues work and timers until the test releases them.
type fakeScheduler struct {
	pending []func(ctx context.Context) func()
	timers  []*fakeTimer
}

func (f *fakeScheduler) Go(work func(ctx context.Context) func()) {
	f.pending = append(f.pending, work)
}

func (f *fakeScheduler) AfterFunc(d time.Duration, fn func()) Timer {
	t := &fakeTimer{d: d, fn: fn}
	f.timers = append(f.timers, t)
	return t
}

// resolve runs the i-th pending work item and its continuation.
func (f *fakeScheduler) resolve(i int) {
	work := f.pending[i]
	f.pending = slices.Delete(f.pending, i, i+1)
	if cont := work(context.Background()); cont != nil {
		cont()
	}
}

func (f *fakeScheduler) resolveAll() {
	for len(f.pending) > 0 {
		f.resolve(0)
	}
}

// fire runs every timer that is still armed.
func (f *fakeScheduler) fire() {
	for _, t := range slices.Clone(f.timers) {
		if t.armed() {
			t.fired = true
			t.fn()
		}
	}
}

func (f *fakeScheduler) armed() int {
	n := 0
	for _, t := range f.timers {
		if t.armed() {
			n++
		}
	}
	return n
}

type fakeTimer struct {
	d       time.Duration
	fn      func()
	stopped bool
	fired   bool
}

func (t *fakeTimer) Stop() bool {
	was := t.armed()
	t.stopped = true
	return was
}

func (t *fakeTimer) armed() bool {
	return !t.stopped && !t.fired
}

type fakeTransport struct {
	emitted     []protocol.Payload
	connects    []protocol.Identity
	disconnects int
	events      chan protocol.Event
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{events: make(chan protocol.Event, 16)}
}

func (f *fakeTransport) Emit(p protocol.Payload)            { f.emitted = append(f.emitted, p) }
func (f *fakeTransport) Connect(identity protocol.Identity) { f.connects = append(f.connects, identity) }
func (f *fakeTransport) Disconnect()                        { f.disconnects++ }
func (f *fakeTransport) Events() <-chan protocol.Event      { return f.events }

// take returns and clears the recorded emissions.
func (f *fakeTransport) take() []protocol.Payload {
	out := f.emitted
	f.emitted = nil
	return out
}

type fakeAPI struct {
	identity   protocol.Identity
	checkOK    bool
	checkErr   error
	loginErr   error
	logoutErr  error
	logins     int
	registered []string

	rooms      []protocol.Room
	roomsErr   error
	public     []protocol.Room
	roomLoads  int
	created    []protocol.NewRoom
	createErr  error
	joined     []int64
	joinErr    error
	messages   map[int64][]protocol.Message
	loadErr    error
	loadedFrom []int64
}

func (f *fakeAPI) CheckSession(ctx context.Context) (protocol.Identity, bool, error) {
	return f.identity, f.checkOK, f.checkErr
}

func (f *fakeAPI) Login(ctx context.Context, username, password string) (protocol.Identity, error) {
	f.logins++
	if f.loginErr != nil {
		return protocol.Identity{}, f.loginErr
	}
	return f.identity, nil
}

func (f *fakeAPI) Register(ctx context.Context, username, email, password string) (protocol.Identity, error) {
	f.registered = append(f.registered, username)
	if f.loginErr != nil {
		return protocol.Identity{}, f.loginErr
	}
	return f.identity, nil
}

func (f *fakeAPI) Logout(ctx context.Context) error {
	return f.logoutErr
}

func (f *fakeAPI) ListRooms(ctx context.Context) ([]protocol.Room, error) {
	f.roomLoads++
	return slices.Clone(f.rooms), f.roomsErr
}

func (f *fakeAPI) ListPublicRooms(ctx context.Context) ([]protocol.Room, error) {
	return slices.Clone(f.public), nil
}

func (f *fakeAPI) CreateRoom(ctx context.Context, room protocol.NewRoom) (protocol.Room, error) {
	f.created = append(f.created, room)
	if f.createErr != nil {
		return protocol.Room{}, f.createErr
	}
	return protocol.Room{ID: 99, Name: room.Name}, nil
}

func (f *fakeAPI) JoinRoom(ctx context.Context, roomID int64) error {
	f.joined = append(f.joined, roomID)
	return f.joinErr
}

func (f *fakeAPI) LoadMessages(ctx context.Context, roomID int64) ([]protocol.Message, error) {
	f.loadedFrom = append(f.loadedFrom, roomID)
	return slices.Clone(f.messages[roomID]), f.loadErr
}

type harness struct {
	*Session
	sched     *fakeScheduler
	transport *fakeTransport
	api       *fakeAPI
}

func newHarness(api *fakeAPI) *harness {
	h := &harness{
		Session:   &Session{},
		sched:     &fakeScheduler{},
		transport: newFakeTransport(),
		api:       api,
	}
	h.init(api, h.transport, h.sched, Options{})
	return h
}

var (
	roomA = protocol.Room{ID: 1, Name: "general"}
	roomB = protocol.Room{ID: 2, Name: "random"}
)

// signIn logs alice in and loads her rooms.
func (h *harness) signIn() {
	h.api.identity = protocol.Identity{ID: 1, Username: "alice"}
	if len(h.api.rooms) == 0 {
		h.api.rooms = []protocol.Room{roomA, roomB}
	}
	if err := h.auth.Authenticate(ModeLogin, Credentials{Username: "alice", Password: "pw"}); err != nil {
		panic(err)
	}
	h.sched.resolveAll()
	h.transport.take()
}

func msg(id, roomID int64, content string) protocol.Message {
	return protocol.Message{ID: id, RoomID: roomID, SenderID: 2, SenderUsername: "bob", Content: content, Type: protocol.MessageTypeText}
}

func ids(msgs []protocol.Message) []int64 {
	out := make([]int64, len(msgs))
	for i, m := range msgs {
		out[i] = m.ID
	}
	return out
}
