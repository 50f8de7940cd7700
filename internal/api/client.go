// Package api implements the request/response half of the chat contract.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strconv"
	"time"

	"github.com/omochice/talkwave/pkg/protocol"
)

// StatusError is a non-2xx response. Message holds the server's {error} text.
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("server returned %d", e.Code)
	}
	return e.Message
}

// ServerMessage returns the server-provided text of err if it is a StatusError.
func ServerMessage(err error) (string, bool) {
	var se *StatusError
	if errors.As(err, &se) {
		return se.Error(), true
	}
	return "", false
}

// Client talks to the chat HTTP API. The session cookie set by login is
// kept in a cookie jar and replayed on every request, including the
// realtime handshake via SessionHeader.
type Client struct {
	base *url.URL
	http *http.Client
}

// New creates a Client for the server at baseURL.
func New(baseURL string, timeout time.Duration) (*Client, error) {
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse server url: %w", err)
	}
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create cookie jar: %w", err)
	}
	return &Client{
		base: base,
		http: &http.Client{Jar: jar, Timeout: timeout},
	}, nil
}

// SessionHeader returns the headers that authenticate a realtime handshake.
func (c *Client) SessionHeader() http.Header {
	h := http.Header{}
	for _, cookie := range c.http.Jar.Cookies(c.base) {
		h.Add("Cookie", cookie.String())
	}
	return h
}

type userResponse struct {
	User protocol.Identity `json:"user"`
}

type checkResponse struct {
	Authenticated bool               `json:"authenticated"`
	User          *protocol.Identity `json:"user"`
}

type roomsResponse struct {
	Rooms []protocol.Room `json:"rooms"`
}

type roomResponse struct {
	Room protocol.Room `json:"room"`
}

type messagesResponse struct {
	Messages []protocol.Message `json:"messages"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// CheckSession reports whether the stored cookie still identifies a user.
func (c *Client) CheckSession(ctx context.Context) (protocol.Identity, bool, error) {
	var resp checkResponse
	if err := c.do(ctx, http.MethodGet, "/api/auth/check", nil, &resp); err != nil {
		return protocol.Identity{}, false, err
	}
	if !resp.Authenticated || resp.User == nil {
		return protocol.Identity{}, false, nil
	}
	return *resp.User, true, nil
}

// Login authenticates with username and password.
func (c *Client) Login(ctx context.Context, username, password string) (protocol.Identity, error) {
	body := map[string]string{"username": username, "password": password}
	var resp userResponse
	if err := c.do(ctx, http.MethodPost, "/api/auth/login", body, &resp); err != nil {
		return protocol.Identity{}, err
	}
	return resp.User, nil
}

// Register creates an account and signs it in.
func (c *Client) Register(ctx context.Context, username, email, password string) (protocol.Identity, error) {
	body := map[string]string{"username": username, "email": email, "password": password}
	var resp userResponse
	if err := c.do(ctx, http.MethodPost, "/api/auth/register", body, &resp); err != nil {
		return protocol.Identity{}, err
	}
	return resp.User, nil
}

// Logout ends the server-side session.
func (c *Client) Logout(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "/api/auth/logout", nil, nil)
}

// ListRooms returns the rooms the user belongs to.
func (c *Client) ListRooms(ctx context.Context) ([]protocol.Room, error) {
	var resp roomsResponse
	if err := c.do(ctx, http.MethodGet, "/api/chat/rooms", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Rooms, nil
}

// ListPublicRooms returns public rooms the user has not joined.
func (c *Client) ListPublicRooms(ctx context.Context) ([]protocol.Room, error) {
	var resp roomsResponse
	if err := c.do(ctx, http.MethodGet, "/api/chat/rooms/public", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Rooms, nil
}

// CreateRoom creates a room owned by the user.
func (c *Client) CreateRoom(ctx context.Context, room protocol.NewRoom) (protocol.Room, error) {
	var resp roomResponse
	if err := c.do(ctx, http.MethodPost, "/api/chat/rooms", room, &resp); err != nil {
		return protocol.Room{}, err
	}
	return resp.Room, nil
}

// JoinRoom joins a public room.
func (c *Client) JoinRoom(ctx context.Context, roomID int64) error {
	return c.do(ctx, http.MethodPost, "/api/chat/rooms/"+strconv.FormatInt(roomID, 10)+"/join", nil, nil)
}

// LoadMessages returns the history of a room, oldest first.
func (c *Client) LoadMessages(ctx context.Context, roomID int64) ([]protocol.Message, error) {
	var resp messagesResponse
	if err := c.do(ctx, http.MethodGet, "/api/chat/rooms/"+strconv.FormatInt(roomID, 10)+"/messages", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Messages, nil
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base.JoinPath(path).String(), body)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("failed to %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var e errorResponse
		_ = json.Unmarshal(data, &e)
		return &StatusError{Code: resp.StatusCode, Message: e.Error}
	}

	if out == nil || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
