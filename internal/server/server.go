// Package server is an in-memory chat server speaking the HTTP and realtime
// contract the client expects. It backs local development and tests.
package server

import (
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"sync"

	"github.com/omochice/talkwave/pkg/protocol"
)

// ErrStopped is returned by Start after Stop.
var ErrStopped = errors.New("server stopped")

// SessionCookie is the name of the cookie carrying the session token.
const SessionCookie = "session"

// Options configures a Server.
type Options struct {
	// Format is used for every frame the server sends.
	Format protocol.Format
	// PasswordCost is the bcrypt cost for stored passwords.
	PasswordCost int
}

// Server represents a chat server
type Server struct {
	address  string
	mu       sync.Mutex
	listener net.Listener
	server   *http.Server
	store    *Store
	hub      *Hub
	quit     chan struct{}
	stop     sync.Once
	wg       sync.WaitGroup
}

// New creates a new Server instance
func New(address string, opts Options) *Server {
	return &Server{
		address: address,
		store:   NewStore(opts.PasswordCost),
		hub:     NewHub(opts.Format),
		quit:    make(chan struct{}),
	}
}

// Store exposes the server's data for seeding.
func (s *Server) Store() *Store {
	return s.store
}

// Handler returns the HTTP handler serving the API and the socket.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/auth/check", s.handleCheck)
	mux.HandleFunc("POST /api/auth/login", s.handleLogin)
	mux.HandleFunc("POST /api/auth/register", s.handleRegister)
	mux.HandleFunc("POST /api/auth/logout", s.handleLogout)
	mux.HandleFunc("GET /api/chat/rooms", s.authed(s.handleRooms))
	mux.HandleFunc("GET /api/chat/rooms/public", s.authed(s.handlePublicRooms))
	mux.HandleFunc("POST /api/chat/rooms", s.authed(s.handleCreateRoom))
	mux.HandleFunc("POST /api/chat/rooms/{id}/join", s.authed(s.handleJoinRoom))
	mux.HandleFunc("GET /api/chat/rooms/{id}/messages", s.authed(s.handleMessages))
	mux.HandleFunc("GET /socket", s.handleSocket)
	return mux
}

// Start listens on the configured address and serves until Stop.
func (s *Server) Start() error {
	listener, err := net.Listen("tcp", s.address)
	if err != nil {
		return fmt.Errorf("failed to start server: %w", err)
	}
	srv := &http.Server{Handler: s.Handler()}
	s.mu.Lock()
	s.listener = listener
	s.server = srv
	s.mu.Unlock()

	log.Printf("Server started on %s", listener.Addr().String())

	errChan := make(chan error, 1)
	go func() {
		if err := srv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	// Wait for either error or quit signal
	select {
	case err := <-errChan:
		return fmt.Errorf("failed to serve: %w", err)
	case <-s.quit:
		return ErrStopped
	}
}

// Stop stops the server and closes every realtime connection
func (s *Server) Stop() {
	s.stop.Do(func() {
		close(s.quit)
		s.mu.Lock()
		if s.server != nil {
			s.server.Close()
		}
		s.mu.Unlock()
		s.hub.CloseAll()
		s.wg.Wait()
	})
}

// Addr returns the server's listening address
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return ""
}

// ClientCount returns the number of connected realtime clients
func (s *Server) ClientCount() int {
	return s.hub.ClientCount()
}
