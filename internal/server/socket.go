package server

import (
	"errors"
	"io"
	"log"
	"net"
	"net/http"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
	"github.com/omochice/talkwave/pkg/protocol"
)

// handleSocket upgrades a signed-in request to the realtime channel. The
// connection is subscribed to every room the user belongs to.
func (s *Server) handleSocket(w http.ResponseWriter, r *http.Request) {
	id, ok := s.sessionUser(r)
	if !ok {
		writeError(w, errAuthRequired)
		return
	}

	conn, rw, _, err := ws.UpgradeHTTP(r, w)
	if err != nil {
		log.Printf("Failed to upgrade connection: %v", err)
		return
	}

	client := &Client{
		Conn:     NewConnection(conn, rw.Reader),
		UserID:   id.ID,
		Username: id.Username,
		Outgoing: make(chan []byte, 32),
	}
	s.hub.Register(client)
	for _, room := range s.store.Rooms(id.ID) {
		s.hub.Subscribe(client, room.ID)
	}

	s.wg.Add(2)
	go s.writeLoop(client)
	go s.handleClient(client)

	s.hub.Broadcast(protocol.UserStatusChange{UserID: id.ID, Username: id.Username, IsOnline: true})
	log.Printf("User %s connected from %s", id.Username, conn.RemoteAddr())
}

func (s *Server) writeLoop(client *Client) {
	defer s.wg.Done()
	for data := range client.Outgoing {
		if err := client.Conn.WriteFrame(s.hub.Opcode(), data); err != nil {
			log.Printf("Failed to send message to %s: %v", client.Username, err)
			return
		}
	}
}

func (s *Server) handleClient(client *Client) {
	defer s.wg.Done()
	defer func() {
		s.hub.Unregister(client)
		client.Conn.Close()
		s.hub.Broadcast(protocol.UserStatusChange{UserID: client.UserID, Username: client.Username, IsOnline: false})
		log.Printf("User %s disconnected", client.Username)
	}()

	for {
		data, op, err := client.Conn.ReadFrame()
		if err != nil {
			if !closed(err) {
				log.Printf("Error reading from %s: %v", client.Username, err)
			}
			return
		}

		format := protocol.FormatJSON
		if op == ws.OpBinary {
			format = protocol.FormatProto
		}
		p, err := protocol.Decode(data, format)
		if err != nil {
			log.Printf("Failed to decode message: %v", err)
			continue
		}
		s.handleEvent(client, p)
	}
}

func (s *Server) handleEvent(client *Client, p protocol.Payload) {
	switch e := p.(type) {
	case protocol.SendMessage:
		msg, err := s.store.AddMessage(client.UserID, e.RoomID, e.Content, e.MessageType)
		if err != nil {
			s.hub.Send(client, protocol.ServerError{Message: err.Error()})
			return
		}
		s.hub.BroadcastRoom(e.RoomID, protocol.NewMessage{Message: msg}, nil)
		log.Printf("Message sent by %s to room %d", client.Username, e.RoomID)

	case protocol.JoinRoom:
		if e.RoomID == 0 {
			s.hub.Send(client, protocol.ServerError{Message: "Room ID is required"})
			return
		}
		if !s.store.IsMember(client.UserID, e.RoomID) {
			s.hub.Send(client, protocol.ServerError{Message: errNotMember.Message})
			return
		}
		s.hub.Subscribe(client, e.RoomID)
		s.hub.BroadcastRoom(e.RoomID, protocol.UserJoinedRoom{UserID: client.UserID, Username: client.Username, RoomID: e.RoomID}, nil)
		log.Printf("User %s joined room %d", client.Username, e.RoomID)

	case protocol.LeaveRoom:
		if e.RoomID == 0 {
			s.hub.Send(client, protocol.ServerError{Message: "Room ID is required"})
			return
		}
		s.hub.Unsubscribe(client, e.RoomID)
		s.hub.BroadcastRoom(e.RoomID, protocol.UserLeftRoom{UserID: client.UserID, Username: client.Username, RoomID: e.RoomID}, nil)
		log.Printf("User %s left room %d", client.Username, e.RoomID)

	case protocol.TypingStart:
		s.typing(client, e.RoomID, true)
	case protocol.TypingStop:
		s.typing(client, e.RoomID, false)

	default:
		log.Printf("Ignoring %s from %s", p.EventName(), client.Username)
	}
}

func (s *Server) typing(client *Client, roomID int64, typing bool) {
	if roomID == 0 {
		return
	}
	s.hub.BroadcastRoom(roomID, protocol.UserTyping{
		UserID:   client.UserID,
		Username: client.Username,
		RoomID:   roomID,
		Typing:   typing,
	}, client)
}

func closed(err error) bool {
	var closeErr wsutil.ClosedError
	return errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) || errors.As(err, &closeErr)
}
