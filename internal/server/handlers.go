package server

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/omochice/talkwave/pkg/protocol"
)

var errAuthRequired = &Error{Status: http.StatusUnauthorized, Message: "Authentication required"}

type credentials struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("Failed to write response: %v", err)
	}
}

func writeError(w http.ResponseWriter, err error) {
	var e *Error
	if !errors.As(err, &e) {
		log.Printf("Request failed: %v", err)
		e = &Error{Status: http.StatusInternalServerError, Message: "Internal server error"}
	}
	writeJSON(w, e.Status, map[string]string{"error": e.Message})
}

func decode(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return &Error{Status: http.StatusBadRequest, Message: "Invalid request body"}
	}
	return nil
}

func (s *Server) sessionUser(r *http.Request) (protocol.Identity, bool) {
	cookie, err := r.Cookie(SessionCookie)
	if err != nil {
		return protocol.Identity{}, false
	}
	return s.store.SessionUser(cookie.Value)
}

func (s *Server) startSession(w http.ResponseWriter, id protocol.Identity) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookie,
		Value:    s.store.NewSession(id.ID),
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

// authed rejects requests without a valid session.
func (s *Server) authed(next func(http.ResponseWriter, *http.Request, protocol.Identity)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := s.sessionUser(r)
		if !ok {
			writeError(w, errAuthRequired)
			return
		}
		next(w, r, id)
	}
}

func roomID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		return 0, errRoomNotFound
	}
	return id, nil
}

func (s *Server) handleCheck(w http.ResponseWriter, r *http.Request) {
	id, ok := s.sessionUser(r)
	if !ok {
		writeJSON(w, http.StatusOK, map[string]any{"authenticated": false})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"authenticated": true, "user": id})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req credentials
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	id, err := s.store.Authenticate(req.Username, req.Password)
	if err != nil {
		writeError(w, err)
		return
	}
	s.startSession(w, id)
	log.Printf("User %s logged in", id.Username)
	writeJSON(w, http.StatusOK, map[string]any{"message": "Login successful", "user": id})
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req credentials
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	id, err := s.store.Register(req.Username, req.Email, req.Password)
	if err != nil {
		writeError(w, err)
		return
	}
	s.startSession(w, id)
	log.Printf("User %s registered", id.Username)
	writeJSON(w, http.StatusCreated, map[string]any{"message": "User registered successfully", "user": id})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if cookie, err := r.Cookie(SessionCookie); err == nil {
		s.store.EndSession(cookie.Value)
	}
	http.SetCookie(w, &http.Cookie{Name: SessionCookie, Path: "/", MaxAge: -1})
	writeJSON(w, http.StatusOK, map[string]string{"message": "Logout successful"})
}

func (s *Server) handleRooms(w http.ResponseWriter, r *http.Request, id protocol.Identity) {
	writeJSON(w, http.StatusOK, map[string]any{"rooms": s.store.Rooms(id.ID)})
}

func (s *Server) handlePublicRooms(w http.ResponseWriter, r *http.Request, id protocol.Identity) {
	writeJSON(w, http.StatusOK, map[string]any{"rooms": s.store.PublicRooms(id.ID)})
}

func (s *Server) handleCreateRoom(w http.ResponseWriter, r *http.Request, id protocol.Identity) {
	var req protocol.NewRoom
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	room, err := s.store.CreateRoom(id.ID, req)
	if err != nil {
		writeError(w, err)
		return
	}
	log.Printf("User %s created room %d", id.Username, room.ID)
	writeJSON(w, http.StatusCreated, map[string]any{"message": "Room created successfully", "room": room})
}

func (s *Server) handleJoinRoom(w http.ResponseWriter, r *http.Request, id protocol.Identity) {
	rid, err := roomID(r)
	if err == nil {
		err = s.store.JoinRoom(id.ID, rid)
	}
	if err != nil {
		writeError(w, err)
		return
	}
	log.Printf("User %s joined room %d", id.Username, rid)
	writeJSON(w, http.StatusOK, map[string]string{"message": "Joined room successfully"})
}

func (s *Server) handleMessages(w http.ResponseWriter, r *http.Request, id protocol.Identity) {
	rid, err := roomID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	messages, err := s.store.Messages(id.ID, rid)
	if err != nil {
		writeError(w, err)
		return
	}
	if messages == nil {
		messages = []protocol.Message{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"messages": messages})
}
