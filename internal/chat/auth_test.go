package chat

import (
	"errors"
	"fmt"
	"net"
	"testing"

	"github.com/omochice/talkwave/internal/api"
	"github.com/omochice/talkwave/pkg/protocol"
)

func TestAuthController_InvalidCredentials(t *testing.T) {
	h := newHarness(&fakeAPI{loginErr: &api.StatusError{Code: 401, Message: "Invalid credentials"}})

	if err := h.auth.Authenticate(ModeLogin, Credentials{Username: "alice", Password: "wrong"}); err != nil {
		t.Fatalf("Authenticate() error = %v", err)
	}
	if h.auth.State() != Authenticating {
		t.Fatalf("state = %v, want %v", h.auth.State(), Authenticating)
	}
	h.sched.resolveAll()

	if h.auth.State() != Unauthenticated {
		t.Errorf("state = %v, want %v", h.auth.State(), Unauthenticated)
	}
	if _, ok := h.ctx.Identity(); ok {
		t.Error("identity set after failed login")
	}
	n, ok := h.notices.Current()
	if !ok || n.Kind != NoticeError || n.Text != "Invalid credentials" {
		t.Errorf("notice = %+v, %v", n, ok)
	}
	if len(h.transport.connects) != 0 {
		t.Errorf("transport connected %d times", len(h.transport.connects))
	}
}

func TestAuthController_LoginLoadsRooms(t *testing.T) {
	h := newHarness(&fakeAPI{})
	h.signIn()

	if h.auth.State() != Authenticated {
		t.Fatalf("state = %v, want %v", h.auth.State(), Authenticated)
	}
	alice := protocol.Identity{ID: 1, Username: "alice"}
	if id, ok := h.ctx.Identity(); !ok || id != alice {
		t.Errorf("identity = %+v, %v", id, ok)
	}
	if len(h.transport.connects) != 1 || h.transport.connects[0] != alice {
		t.Errorf("connects = %v", h.transport.connects)
	}
	if got := h.dir.Mine(); len(got) != 2 || got[0].Name != "general" || got[1].Name != "random" {
		t.Errorf("rooms = %+v", got)
	}
}

func TestAuthController_Validation(t *testing.T) {
	tests := []struct {
		name  string
		mode  Mode
		creds Credentials
		want  string
	}{
		{
			name:  "missing password",
			mode:  ModeLogin,
			creds: Credentials{Username: "alice"},
			want:  "Username and password are required",
		},
		{
			name:  "missing username",
			mode:  ModeRegister,
			creds: Credentials{Email: "a@example.com", Password: "pw"},
			want:  "Username and password are required",
		},
		{
			name:  "register without email",
			mode:  ModeRegister,
			creds: Credentials{Username: "alice", Password: "pw"},
			want:  "Email is required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(&fakeAPI{})

			err := h.auth.Authenticate(tt.mode, tt.creds)
			var authErr *AuthError
			if !errors.As(err, &authErr) || authErr.Message != tt.want {
				t.Fatalf("Authenticate() error = %v, want %q", err, tt.want)
			}
			if h.auth.State() != Unauthenticated {
				t.Errorf("state = %v", h.auth.State())
			}
			if len(h.sched.pending) != 0 {
				t.Error("request issued for invalid form")
			}
		})
	}
}

func TestAuthController_NetworkFailure(t *testing.T) {
	netErr := fmt.Errorf("failed to POST /api/auth/login: %w", &net.OpError{Op: "dial", Err: errors.New("connection refused")})
	h := newHarness(&fakeAPI{loginErr: netErr})

	if err := h.auth.Authenticate(ModeLogin, Credentials{Username: "alice", Password: "pw"}); err != nil {
		t.Fatalf("Authenticate() error = %v", err)
	}
	h.sched.resolveAll()

	n, ok := h.notices.Current()
	if !ok || n.Text != ErrNetwork.Error() {
		t.Errorf("notice = %+v, %v", n, ok)
	}
	if h.auth.State() != Unauthenticated {
		t.Errorf("state = %v", h.auth.State())
	}
}

func TestAuthController_Register(t *testing.T) {
	h := newHarness(&fakeAPI{identity: protocol.Identity{ID: 5, Username: "carol"}})

	err := h.auth.Authenticate(ModeRegister, Credentials{Username: "carol", Email: "c@example.com", Password: "pw"})
	if err != nil {
		t.Fatalf("Authenticate() error = %v", err)
	}
	h.sched.resolveAll()

	if len(h.api.registered) != 1 || h.api.registered[0] != "carol" {
		t.Errorf("registered = %v", h.api.registered)
	}
	if h.api.logins != 0 {
		t.Errorf("login called %d times", h.api.logins)
	}
	if h.auth.State() != Authenticated {
		t.Errorf("state = %v", h.auth.State())
	}
}

func TestAuthController_RestoreSession(t *testing.T) {
	tests := []struct {
		name string
		api  *fakeAPI
		want AuthState
	}{
		{
			name: "valid session",
			api:  &fakeAPI{identity: protocol.Identity{ID: 1, Username: "alice"}, checkOK: true},
			want: Authenticated,
		},
		{
			name: "no session",
			api:  &fakeAPI{},
			want: Unauthenticated,
		},
		{
			name: "server unreachable",
			api:  &fakeAPI{checkErr: errors.New("connection refused")},
			want: Unauthenticated,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(tt.api)

			if err := h.auth.RestoreSession(); err != nil {
				t.Fatalf("RestoreSession() error = %v", err)
			}
			h.sched.resolveAll()

			if h.auth.State() != tt.want {
				t.Errorf("state = %v, want %v", h.auth.State(), tt.want)
			}
			if _, ok := h.notices.Current(); ok {
				t.Error("restore must not surface a notice")
			}
			wantConnects := 0
			if tt.want == Authenticated {
				wantConnects = 1
			}
			if len(h.transport.connects) != wantConnects {
				t.Errorf("connects = %d, want %d", len(h.transport.connects), wantConnects)
			}
		})
	}
}

func TestAuthController_Busy(t *testing.T) {
	h := newHarness(&fakeAPI{})
	creds := Credentials{Username: "alice", Password: "pw"}

	if err := h.auth.Authenticate(ModeLogin, creds); err != nil {
		t.Fatalf("Authenticate() error = %v", err)
	}
	if err := h.auth.Authenticate(ModeLogin, creds); !errors.Is(err, ErrBusy) {
		t.Errorf("second Authenticate() error = %v, want ErrBusy", err)
	}
	if err := h.auth.RestoreSession(); !errors.Is(err, ErrBusy) {
		t.Errorf("RestoreSession() error = %v, want ErrBusy", err)
	}
}

func TestAuthController_LogoutIsBestEffort(t *testing.T) {
	h := newHarness(&fakeAPI{logoutErr: errors.New("connection reset")})
	h.signIn()
	h.connected = true
	h.rooms.SelectRoom(roomA)
	h.sched.resolveAll()
	h.dir.SetOnline("bob", true)

	h.auth.Logout()
	if h.auth.State() != LoggingOut {
		t.Fatalf("state = %v, want %v", h.auth.State(), LoggingOut)
	}
	if err := h.auth.Authenticate(ModeLogin, Credentials{Username: "alice", Password: "pw"}); !errors.Is(err, ErrBusy) {
		t.Errorf("Authenticate() while logging out error = %v", err)
	}
	h.sched.resolveAll()

	if h.auth.State() != Unauthenticated {
		t.Errorf("state = %v", h.auth.State())
	}
	if _, ok := h.ctx.Identity(); ok {
		t.Error("identity kept after logout")
	}
	if _, ok := h.ctx.Active(); ok {
		t.Error("active room kept after logout")
	}
	if h.transport.disconnects != 1 {
		t.Errorf("disconnects = %d", h.transport.disconnects)
	}
	if len(h.dir.Mine()) != 0 || len(h.dir.Online()) != 0 {
		t.Errorf("directory not reset: %v %v", h.dir.Mine(), h.dir.Online())
	}
	if h.connected {
		t.Error("still marked connected")
	}
}

func TestAuthController_LogoutDiscardsInflightHistory(t *testing.T) {
	h := newHarness(&fakeAPI{messages: map[int64][]protocol.Message{roomA.ID: {msg(1, roomA.ID, "a1")}}})
	h.signIn()
	h.rooms.SelectRoom(roomA)

	h.auth.Logout()
	h.sched.resolve(1) // logout
	h.sched.resolve(0) // history

	if h.feed.Len() != 0 {
		t.Errorf("feed = %v", ids(h.feed.Messages()))
	}
	if h.rooms.State() != NoActiveRoom {
		t.Errorf("room state = %v", h.rooms.State())
	}
}

func TestAuthController_LogoutAbandonsAttempt(t *testing.T) {
	h := newHarness(&fakeAPI{identity: protocol.Identity{ID: 1, Username: "alice"}})

	if err := h.auth.Authenticate(ModeLogin, Credentials{Username: "alice", Password: "pw"}); err != nil {
		t.Fatalf("Authenticate() error = %v", err)
	}
	h.auth.Logout()
	h.sched.resolveAll()

	if h.auth.State() != Unauthenticated {
		t.Errorf("state = %v", h.auth.State())
	}
	if len(h.transport.connects) != 0 {
		t.Error("abandoned login connected the transport")
	}
}
