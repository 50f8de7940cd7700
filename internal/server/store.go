package server

import (
	"net/http"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/omochice/talkwave/pkg/protocol"
	"golang.org/x/crypto/bcrypt"
)

const (
	timestampLayout = "2006-01-02T15:04:05.000000"
	historyLimit    = 50
)

// Error is a request failure whose Message is reported to the client as is.
type Error struct {
	Status  int
	Message string
}

func (e *Error) Error() string { return e.Message }

var (
	errMissingFields      = &Error{Status: http.StatusBadRequest, Message: "Username, email and password are required"}
	errMissingCredentials = &Error{Status: http.StatusBadRequest, Message: "Username and password are required"}
	errUsernameTaken      = &Error{Status: http.StatusConflict, Message: "Username already exists"}
	errEmailTaken         = &Error{Status: http.StatusConflict, Message: "Email already exists"}
	errInvalidCredentials = &Error{Status: http.StatusUnauthorized, Message: "Invalid username or password"}
	errRoomNameRequired   = &Error{Status: http.StatusBadRequest, Message: "Room name is required"}
	errRoomNotFound       = &Error{Status: http.StatusNotFound, Message: "Room not found"}
	errRoomPrivate        = &Error{Status: http.StatusForbidden, Message: "Cannot join private room"}
	errAlreadyMember      = &Error{Status: http.StatusBadRequest, Message: "already a member"}
	errNotMember          = &Error{Status: http.StatusForbidden, Message: "Not a member of this room"}
	errContentRequired    = &Error{Status: http.StatusBadRequest, Message: "Room ID and content are required"}
)

type user struct {
	id       int64
	username string
	email    string
	hash     []byte
}

type room struct {
	info     protocol.Room
	members  map[int64]bool
	messages []protocol.Message
}

// Store keeps users, sessions, rooms and messages in memory.
type Store struct {
	mu   sync.RWMutex
	cost int
	now  func() time.Time

	users    map[int64]*user
	byName   map[string]*user
	byEmail  map[string]*user
	sessions map[string]int64
	rooms    map[int64]*room
	order    []int64

	lastUser    int64
	lastRoom    int64
	lastMessage int64
}

// NewStore creates an empty store hashing passwords with the given bcrypt
// cost. A cost outside bcrypt's range falls back to bcrypt.DefaultCost.
func NewStore(cost int) *Store {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	return &Store{
		cost:     cost,
		now:      time.Now,
		users:    make(map[int64]*user),
		byName:   make(map[string]*user),
		byEmail:  make(map[string]*user),
		sessions: make(map[string]int64),
		rooms:    make(map[int64]*room),
	}
}

// Register creates a user.
func (s *Store) Register(username, email, password string) (protocol.Identity, error) {
	username = strings.TrimSpace(username)
	email = strings.TrimSpace(email)
	if username == "" || email == "" || password == "" {
		return protocol.Identity{}, errMissingFields
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return protocol.Identity{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byName[username]; ok {
		return protocol.Identity{}, errUsernameTaken
	}
	if _, ok := s.byEmail[email]; ok {
		return protocol.Identity{}, errEmailTaken
	}

	s.lastUser++
	u := &user{id: s.lastUser, username: username, email: email, hash: hash}
	s.users[u.id] = u
	s.byName[username] = u
	s.byEmail[email] = u
	return identity(u), nil
}

// Authenticate checks a username and password.
func (s *Store) Authenticate(username, password string) (protocol.Identity, error) {
	if username == "" || password == "" {
		return protocol.Identity{}, errMissingCredentials
	}

	s.mu.RLock()
	u, ok := s.byName[username]
	s.mu.RUnlock()
	if !ok {
		return protocol.Identity{}, errInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword(u.hash, []byte(password)); err != nil {
		return protocol.Identity{}, errInvalidCredentials
	}
	return identity(u), nil
}

// NewSession issues a session token for userID.
func (s *Store) NewSession(userID int64) string {
	token := uuid.NewString()
	s.mu.Lock()
	s.sessions[token] = userID
	s.mu.Unlock()
	return token
}

// SessionUser resolves a session token.
func (s *Store) SessionUser(token string) (protocol.Identity, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[s.sessions[token]]
	if !ok {
		return protocol.Identity{}, false
	}
	return identity(u), true
}

// EndSession revokes a session token.
func (s *Store) EndSession(token string) {
	s.mu.Lock()
	delete(s.sessions, token)
	s.mu.Unlock()
}

// CreateRoom creates a room with its creator as first member.
func (s *Store) CreateRoom(owner int64, req protocol.NewRoom) (protocol.Room, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return protocol.Room{}, errRoomNameRequired
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastRoom++
	r := &room{
		info: protocol.Room{
			ID:          s.lastRoom,
			Name:        name,
			Description: strings.TrimSpace(req.Description),
			IsPrivate:   req.IsPrivate,
			CreatedBy:   owner,
			CreatedAt:   s.now().UTC().Format(timestampLayout),
		},
		members: map[int64]bool{owner: true},
	}
	s.rooms[r.info.ID] = r
	s.order = append(s.order, r.info.ID)
	return r.view(), nil
}

// Rooms lists the rooms userID belongs to, in creation order.
func (s *Store) Rooms(userID int64) []protocol.Room {
	return s.list(func(r *room) bool { return r.members[userID] })
}

// PublicRooms lists public rooms userID has not joined.
func (s *Store) PublicRooms(userID int64) []protocol.Room {
	return s.list(func(r *room) bool { return !r.info.IsPrivate && !r.members[userID] })
}

func (s *Store) list(keep func(*room) bool) []protocol.Room {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rooms := []protocol.Room{}
	for _, id := range s.order {
		if r := s.rooms[id]; keep(r) {
			rooms = append(rooms, r.view())
		}
	}
	return rooms
}

// JoinRoom adds userID to a public room.
func (s *Store) JoinRoom(userID, roomID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rooms[roomID]
	switch {
	case !ok:
		return errRoomNotFound
	case r.members[userID]:
		return errAlreadyMember
	case r.info.IsPrivate:
		return errRoomPrivate
	}
	r.members[userID] = true
	return nil
}

// IsMember reports whether userID belongs to roomID.
func (s *Store) IsMember(userID, roomID int64) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.rooms[roomID]
	return ok && r.members[userID]
}

// AddMessage stores a message posted by userID.
func (s *Store) AddMessage(userID, roomID int64, content, messageType string) (protocol.Message, error) {
	content = strings.TrimSpace(content)
	if roomID == 0 || content == "" {
		return protocol.Message{}, errContentRequired
	}
	if messageType == "" {
		messageType = protocol.MessageTypeText
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rooms[roomID]
	if !ok || !r.members[userID] {
		return protocol.Message{}, errNotMember
	}

	s.lastMessage++
	m := protocol.Message{
		ID:        s.lastMessage,
		RoomID:    roomID,
		SenderID:  userID,
		Content:   content,
		Timestamp: s.now().UTC().Format(timestampLayout),
		Type:      messageType,
	}
	if u, ok := s.users[userID]; ok {
		m.SenderUsername = u.username
	}
	r.messages = append(r.messages, m)
	return m, nil
}

// Messages returns the most recent history of roomID, oldest first.
func (s *Store) Messages(userID, roomID int64) ([]protocol.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.rooms[roomID]
	if !ok {
		return nil, errRoomNotFound
	}
	if !r.members[userID] {
		return nil, errNotMember
	}
	from := max(0, len(r.messages)-historyLimit)
	return slices.Clone(r.messages[from:]), nil
}

func (r *room) view() protocol.Room {
	info := r.info
	info.MemberCount = len(r.members)
	if n := len(r.messages); n > 0 {
		latest := r.messages[n-1]
		info.LatestMessage = &latest
	}
	return info
}

func identity(u *user) protocol.Identity {
	return protocol.Identity{ID: u.id, Username: u.username}
}
