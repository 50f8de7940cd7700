package chat

import (
	"context"
	"errors"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/omochice/talkwave/internal/api"
	"github.com/omochice/talkwave/pkg/protocol"
)

func roomIDs(rooms []protocol.Room) []int64 {
	out := make([]int64, len(rooms))
	for i, r := range rooms {
		out[i] = r.ID
	}
	return out
}

func TestRoomDirectory_JoinFailureIsSurfaced(t *testing.T) {
	h := newHarness(&fakeAPI{joinErr: &api.StatusError{Code: 400, Message: "already a member"}})
	h.signIn()
	loads := h.api.roomLoads

	h.dir.JoinPublicRoom(7)
	h.sched.resolveAll()

	if got := roomIDs(h.dir.Mine()); !slices.Equal(got, []int64{1, 2}) {
		t.Errorf("mine = %v", got)
	}
	if h.api.roomLoads != loads {
		t.Error("rooms reloaded after failed join")
	}
	var roomErr *RoomError
	n, ok := h.notices.Current()
	if !ok || n.Text != "already a member" {
		t.Errorf("notice = %+v, %v", n, ok)
	}
	if err := roomFailure(h.api.joinErr); !errors.As(err, &roomErr) {
		t.Errorf("roomFailure() = %T", err)
	}
}

func TestRoomDirectory_JoinRefreshesBothLists(t *testing.T) {
	room7 := protocol.Room{ID: 7, Name: "go", IsPrivate: false}
	h := newHarness(&fakeAPI{public: []protocol.Room{room7}})
	h.signIn()
	h.dir.RefreshPublic()
	h.sched.resolveAll()

	h.dir.JoinPublicRoom(7)
	h.api.rooms = append(h.api.rooms, room7)
	h.api.public = nil
	h.sched.resolveAll()

	if got := roomIDs(h.dir.Mine()); !slices.Equal(got, []int64{1, 2, 7}) {
		t.Errorf("mine = %v", got)
	}
	if got := h.dir.Public(); len(got) != 0 {
		t.Errorf("public = %v", roomIDs(got))
	}
	if !slices.Equal(h.api.joined, []int64{7}) {
		t.Errorf("joined = %v", h.api.joined)
	}
}

func TestRoomDirectory_CreateRoom(t *testing.T) {
	t.Run("blank name", func(t *testing.T) {
		h := newHarness(&fakeAPI{})
		h.signIn()

		err := h.dir.CreateRoom(protocol.NewRoom{Name: "   "})
		var roomErr *RoomError
		if !errors.As(err, &roomErr) || roomErr.Message != "Room name is required" {
			t.Fatalf("CreateRoom() error = %v", err)
		}
		if len(h.sched.pending) != 0 || len(h.api.created) != 0 {
			t.Error("request issued for blank name")
		}
		if n, ok := h.notices.Current(); !ok || n.Text != "Room name is required" {
			t.Errorf("notice = %+v, %v", n, ok)
		}
	})

	t.Run("created", func(t *testing.T) {
		h := newHarness(&fakeAPI{})
		h.signIn()

		if err := h.dir.CreateRoom(protocol.NewRoom{Name: " lounge ", Description: "chill", IsPrivate: true}); err != nil {
			t.Fatalf("CreateRoom() error = %v", err)
		}
		h.api.rooms = append(h.api.rooms, protocol.Room{ID: 99, Name: "lounge", IsPrivate: true})
		h.sched.resolveAll()

		want := protocol.NewRoom{Name: "lounge", Description: "chill", IsPrivate: true}
		if len(h.api.created) != 1 || h.api.created[0] != want {
			t.Errorf("created = %+v", h.api.created)
		}
		if got := roomIDs(h.dir.Mine()); !slices.Equal(got, []int64{1, 2, 99}) {
			t.Errorf("mine = %v", got)
		}
	})

	t.Run("server rejects", func(t *testing.T) {
		h := newHarness(&fakeAPI{createErr: &api.StatusError{Code: 400, Message: "Room name already taken"}})
		h.signIn()

		if err := h.dir.CreateRoom(protocol.NewRoom{Name: "general"}); err != nil {
			t.Fatalf("CreateRoom() error = %v", err)
		}
		h.sched.resolveAll()

		if n, ok := h.notices.Current(); !ok || n.Text != "Room name already taken" {
			t.Errorf("notice = %+v, %v", n, ok)
		}
	})
}

func TestRoomDirectory_StaleListIsDiscarded(t *testing.T) {
	h := newHarness(&fakeAPI{})
	h.signIn()

	h.dir.RefreshMine()
	h.dir.RefreshMine()

	h.api.rooms = []protocol.Room{roomA, roomB, {ID: 3, Name: "new"}}
	h.sched.resolve(1)
	h.api.rooms = []protocol.Room{roomA}
	h.sched.resolve(0)

	if got := roomIDs(h.dir.Mine()); !slices.Equal(got, []int64{1, 2, 3}) {
		t.Errorf("mine = %v, want the latest response", got)
	}
	if mine, public := h.dir.Loads(); mine != 2 || public != 0 {
		t.Errorf("Loads() = %d, %d, want the discarded response uncounted", mine, public)
	}
}

func TestRoomDirectory_LoadFailureKeepsList(t *testing.T) {
	h := newHarness(&fakeAPI{})
	h.signIn()

	h.api.roomsErr = errors.New("connection refused")
	h.dir.RefreshMine()
	h.sched.resolveAll()

	if got := roomIDs(h.dir.Mine()); !slices.Equal(got, []int64{1, 2}) {
		t.Errorf("mine = %v", got)
	}
	if _, ok := h.notices.Current(); ok {
		t.Error("list failures are only logged")
	}
	if mine, _ := h.dir.Loads(); mine != 1 {
		t.Errorf("Loads() mine = %d, want 1", mine)
	}
}

func TestRoomDirectory_Online(t *testing.T) {
	d := NewRoomDirectory(&fakeAPI{}, &fakeScheduler{}, newNotices(&fakeScheduler{}, 0))

	d.SetOnline("carol", true)
	d.SetOnline("bob", true)
	d.SetOnline("dave", true)
	d.SetOnline("dave", false)
	d.SetOnline("erin", false)

	if got := d.Online(); !slices.Equal(got, []string{"bob", "carol"}) {
		t.Errorf("Online() = %v", got)
	}
}

func TestRoomDirectory_ResetDiscardsInflight(t *testing.T) {
	h := newHarness(&fakeAPI{})
	h.signIn()

	h.dir.RefreshMine()
	h.dir.Reset()
	h.sched.resolveAll()

	if got := h.dir.Mine(); len(got) != 0 {
		t.Errorf("mine = %v", roomIDs(got))
	}
}

// asyncScheduler runs work on its own goroutine and hands continuations
// back to the test, which plays the loop.
type asyncScheduler struct {
	conts chan func()
}

func (s *asyncScheduler) Go(work func(ctx context.Context) func()) {
	go func() { s.conts <- work(context.Background()) }()
}

func (s *asyncScheduler) AfterFunc(d time.Duration, fn func()) Timer {
	return &fakeTimer{d: d, fn: fn}
}

// sessionAPI answers ListRooms for whoever was signed in when the request
// was sent, and holds every response until release is closed.
type sessionAPI struct {
	*fakeAPI
	mu      sync.Mutex
	user    string
	rooms   map[string][]protocol.Room
	calls   int
	started chan struct{}
	release chan struct{}
}

func (a *sessionAPI) signIn(user string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.user = user
}

func (a *sessionAPI) ListRooms(ctx context.Context) ([]protocol.Room, error) {
	a.mu.Lock()
	a.calls++
	rooms := a.rooms[a.user]
	a.mu.Unlock()
	a.started <- struct{}{}
	<-a.release
	return slices.Clone(rooms), nil
}

func TestRoomDirectory_ResetDetachesInflightLoad(t *testing.T) {
	backend := &sessionAPI{
		fakeAPI: &fakeAPI{},
		user:    "alice",
		rooms: map[string][]protocol.Room{
			"alice": {{ID: 1, Name: "alice-room"}},
			"bob":   {{ID: 2, Name: "bob-room"}},
		},
		started: make(chan struct{}, 2),
		release: make(chan struct{}),
	}
	sched := &asyncScheduler{conts: make(chan func(), 2)}
	d := NewRoomDirectory(backend, sched, newNotices(&fakeScheduler{}, 0))

	wait := func(ch <-chan struct{}, what string) {
		t.Helper()
		select {
		case <-ch:
		case <-time.After(2 * time.Second):
			t.Fatalf("timeout waiting for %s", what)
		}
	}

	d.RefreshMine()
	wait(backend.started, "alice's request")

	d.Reset()
	backend.signIn("bob")
	d.RefreshMine()
	wait(backend.started, "bob's request")
	close(backend.release)

	for range 2 {
		select {
		case cont := <-sched.conts:
			cont()
		case <-time.After(2 * time.Second):
			t.Fatal("timeout waiting for list response")
		}
	}

	if got := roomIDs(d.Mine()); !slices.Equal(got, []int64{2}) {
		t.Errorf("mine = %v, want bob's rooms", got)
	}
	if backend.calls != 2 {
		t.Errorf("ListRooms calls = %d, want 2", backend.calls)
	}
}
