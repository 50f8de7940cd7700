package chat

import (
	"errors"

	"github.com/omochice/talkwave/internal/api"
)

// ErrNetwork is surfaced when a request could not reach the server.
var ErrNetwork = errors.New("network error, try again")

// ErrNoActiveRoom is returned by operations that need an active room.
var ErrNoActiveRoom = errors.New("no active room")

// ErrBusy is returned when an auth operation arrives in a state that
// cannot accept it, e.g. a login while one is already in flight.
var ErrBusy = errors.New("session is busy")

// AuthError is an invalid credentials or validation failure.
type AuthError struct {
	Message string
}

func (e *AuthError) Error() string { return e.Message }

// RoomError is a failed room creation or join.
type RoomError struct {
	Message string
}

func (e *RoomError) Error() string { return e.Message }

// authFailure classifies an error returned by the api client.
func authFailure(err error) error {
	if msg, ok := api.ServerMessage(err); ok {
		return &AuthError{Message: msg}
	}
	return ErrNetwork
}

func roomFailure(err error) error {
	if msg, ok := api.ServerMessage(err); ok {
		return &RoomError{Message: msg}
	}
	return ErrNetwork
}
