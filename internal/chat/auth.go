package chat

import (
	"context"
	"log"

	"github.com/omochice/talkwave/pkg/protocol"
)

// AuthState is the state of the AuthController.
type AuthState int

const (
	Unauthenticated AuthState = iota
	Authenticating
	Authenticated
	LoggingOut
)

// String returns the string representation of AuthState
func (s AuthState) String() string {
	switch s {
	case Unauthenticated:
		return "UNAUTHENTICATED"
	case Authenticating:
		return "AUTHENTICATING"
	case Authenticated:
		return "AUTHENTICATED"
	case LoggingOut:
		return "LOGGING_OUT"
	default:
		return "UNKNOWN"
	}
}

// AuthAPI is the request/response surface used for authentication.
type AuthAPI interface {
	CheckSession(ctx context.Context) (protocol.Identity, bool, error)
	Login(ctx context.Context, username, password string) (protocol.Identity, error)
	Register(ctx context.Context, username, email, password string) (protocol.Identity, error)
	Logout(ctx context.Context) error
}

// Transport is the realtime channel as seen by the session.
type Transport interface {
	Emitter
	Connect(identity protocol.Identity)
	Disconnect()
	Events() <-chan protocol.Event
}

// Mode selects between signing in and signing up.
type Mode int

const (
	ModeLogin Mode = iota
	ModeRegister
)

// Credentials are the fields of the entry form. Email is only used by
// ModeRegister.
type Credentials struct {
	Username string
	Email    string
	Password string
}

// AuthController owns the identity and the top-level session lifecycle.
type AuthController struct {
	session   *Context
	api       AuthAPI
	transport Transport
	rooms     *RoomManager
	dir       *RoomDirectory
	sched     Scheduler
	notices   *Notices
	// teardown runs after logout has reset every component.
	teardown func()

	state AuthState
	// attempts invalidates in-flight auth responses once they no longer
	// belong to the current Authenticating phase.
	attempts uint64
}

// NewAuthController wires an AuthController.
func NewAuthController(session *Context, api AuthAPI, transport Transport, rooms *RoomManager, dir *RoomDirectory, sched Scheduler, notices *Notices) *AuthController {
	return &AuthController{
		session:   session,
		api:       api,
		transport: transport,
		rooms:     rooms,
		dir:       dir,
		sched:     sched,
		notices:   notices,
	}
}

// State returns the current state.
func (a *AuthController) State() AuthState {
	return a.state
}

// RestoreSession checks for a prior valid session. Any failure leaves the
// controller Unauthenticated.
func (a *AuthController) RestoreSession() error {
	if a.state != Unauthenticated {
		return ErrBusy
	}
	seq := a.begin()

	a.sched.Go(func(ctx context.Context) func() {
		id, ok, err := a.api.CheckSession(ctx)
		return func() {
			if seq != a.attempts {
				return
			}
			if err != nil {
				log.Printf("[auth] session check failed: %v", err)
			}
			if err != nil || !ok {
				a.state = Unauthenticated
				return
			}
			a.enter(id)
		}
	})
	return nil
}

// Authenticate signs in or signs up with creds.
func (a *AuthController) Authenticate(mode Mode, creds Credentials) error {
	if a.state != Unauthenticated {
		return ErrBusy
	}
	if err := validate(mode, creds); err != nil {
		a.notices.Error(err)
		return err
	}
	seq := a.begin()

	a.sched.Go(func(ctx context.Context) func() {
		var (
			id  protocol.Identity
			err error
		)
		if mode == ModeRegister {
			id, err = a.api.Register(ctx, creds.Username, creds.Email, creds.Password)
		} else {
			id, err = a.api.Login(ctx, creds.Username, creds.Password)
		}
		return func() {
			if seq != a.attempts {
				return
			}
			if err != nil {
				a.state = Unauthenticated
				a.notices.Error(authFailure(err))
				return
			}
			a.enter(id)
		}
	})
	return nil
}

func validate(mode Mode, creds Credentials) error {
	if creds.Username == "" || creds.Password == "" {
		return &AuthError{Message: "Username and password are required"}
	}
	if mode == ModeRegister && creds.Email == "" {
		return &AuthError{Message: "Email is required"}
	}
	return nil
}

func (a *AuthController) begin() uint64 {
	a.attempts++
	a.state = Authenticating
	return a.attempts
}

func (a *AuthController) enter(id protocol.Identity) {
	a.session.identity = &id
	a.state = Authenticated
	log.Printf("[auth] signed in as %s", id.Username)
	a.transport.Connect(id)
	a.dir.RefreshMine()
}

// Logout notifies the server, then tears the session down regardless of
// the outcome. Logging out while authenticating abandons the attempt.
func (a *AuthController) Logout() {
	switch a.state {
	case Authenticating:
		a.attempts++
		a.state = Unauthenticated
		return
	case Authenticated:
	default:
		return
	}

	a.state = LoggingOut
	a.sched.Go(func(ctx context.Context) func() {
		err := a.api.Logout(ctx)
		return func() {
			if err != nil {
				log.Printf("[auth] logout failed: %v", err)
			}
			a.transport.Disconnect()
			a.rooms.Reset()
			a.dir.Reset()
			a.session.identity = nil
			a.state = Unauthenticated
			if a.teardown != nil {
				a.teardown()
			}
		}
	})
}
