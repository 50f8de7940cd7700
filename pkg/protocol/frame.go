package protocol

import (
	"errors"
	"fmt"

	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

// Format selects how frames are serialized on the realtime channel.
type Format int

const (
	// FormatJSON sends frames as JSON text: {"event": name, "data": {...}}.
	FormatJSON Format = iota
	// FormatProto sends the same envelope as a binary google.protobuf.Struct.
	FormatProto
)

// String returns the string representation of Format
func (f Format) String() string {
	switch f {
	case FormatJSON:
		return "json"
	case FormatProto:
		return "proto"
	default:
		return "unknown"
	}
}

// ParseFormat parses the configuration spelling of a Format.
func ParseFormat(s string) (Format, error) {
	switch s {
	case "", "json":
		return FormatJSON, nil
	case "proto":
		return FormatProto, nil
	default:
		return FormatJSON, fmt.Errorf("unknown wire format %q", s)
	}
}

// ErrUnknownEvent is returned by Decode for event names outside the catalog.
var ErrUnknownEvent = errors.New("unknown event")

const (
	envelopeEvent = "event"
	envelopeData  = "data"
)

// Encode serializes p into a single frame.
func Encode(p Payload, f Format) ([]byte, error) {
	env := &structpb.Struct{Fields: map[string]*structpb.Value{
		envelopeEvent: structpb.NewStringValue(p.EventName()),
		envelopeData:  structpb.NewStructValue(&structpb.Struct{Fields: p.fields()}),
	}}

	var (
		data []byte
		err  error
	)
	switch f {
	case FormatProto:
		data, err = proto.Marshal(env)
	default:
		data, err = protojson.Marshal(env)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s: %w", p.EventName(), err)
	}
	return data, nil
}

// Decode parses a single frame. Inbound events additionally satisfy Event.
func Decode(data []byte, f Format) (Payload, error) {
	env := &structpb.Struct{}
	var err error
	switch f {
	case FormatProto:
		err = proto.Unmarshal(data, env)
	default:
		err = protojson.Unmarshal(data, env)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to decode frame: %w", err)
	}

	name := env.GetFields()[envelopeEvent].GetStringValue()
	decode, ok := decoders[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownEvent, name)
	}
	body := env.GetFields()[envelopeData].GetStructValue()
	if body == nil {
		body = &structpb.Struct{}
	}
	return decode(body), nil
}

var decoders = map[string]func(*structpb.Struct) Payload{
	EventNewMessage: func(s *structpb.Struct) Payload {
		return NewMessage{Message: messageFromStruct(s)}
	},
	EventUserStatusChange: func(s *structpb.Struct) Payload {
		return UserStatusChange{UserID: num(s, "user_id"), Username: str(s, "username"), IsOnline: flag(s, "is_online")}
	},
	EventUserTyping: func(s *structpb.Struct) Payload {
		return UserTyping{UserID: num(s, "user_id"), Username: str(s, "username"), RoomID: num(s, "room_id"), Typing: flag(s, "typing")}
	},
	EventUserJoinedRoom: func(s *structpb.Struct) Payload {
		return UserJoinedRoom{UserID: num(s, "user_id"), Username: str(s, "username"), RoomID: num(s, "room_id")}
	},
	EventUserLeftRoom: func(s *structpb.Struct) Payload {
		return UserLeftRoom{UserID: num(s, "user_id"), Username: str(s, "username"), RoomID: num(s, "room_id")}
	},
	EventError: func(s *structpb.Struct) Payload {
		return ServerError{Message: str(s, "message")}
	},
	EventJoinRoom: func(s *structpb.Struct) Payload {
		return JoinRoom{RoomID: num(s, "room_id")}
	},
	EventLeaveRoom: func(s *structpb.Struct) Payload {
		return LeaveRoom{RoomID: num(s, "room_id")}
	},
	EventSendMessage: func(s *structpb.Struct) Payload {
		return SendMessage{RoomID: num(s, "room_id"), Content: str(s, "content"), MessageType: str(s, "message_type")}
	},
	EventTypingStart: func(s *structpb.Struct) Payload {
		return TypingStart{RoomID: num(s, "room_id")}
	},
	EventTypingStop: func(s *structpb.Struct) Payload {
		return TypingStop{RoomID: num(s, "room_id")}
	},
}

func (e NewMessage) fields() map[string]*structpb.Value {
	return messageFields(e.Message)
}

func (e UserStatusChange) fields() map[string]*structpb.Value {
	return map[string]*structpb.Value{
		"user_id":   numValue(e.UserID),
		"username":  structpb.NewStringValue(e.Username),
		"is_online": structpb.NewBoolValue(e.IsOnline),
	}
}

func (e UserTyping) fields() map[string]*structpb.Value {
	return map[string]*structpb.Value{
		"user_id":  numValue(e.UserID),
		"username": structpb.NewStringValue(e.Username),
		"room_id":  numValue(e.RoomID),
		"typing":   structpb.NewBoolValue(e.Typing),
	}
}

func (e UserJoinedRoom) fields() map[string]*structpb.Value {
	return membershipFields(e.UserID, e.Username, e.RoomID)
}

func (e UserLeftRoom) fields() map[string]*structpb.Value {
	return membershipFields(e.UserID, e.Username, e.RoomID)
}

func (e ServerError) fields() map[string]*structpb.Value {
	return map[string]*structpb.Value{"message": structpb.NewStringValue(e.Message)}
}

func (e JoinRoom) fields() map[string]*structpb.Value    { return roomFields(e.RoomID) }
func (e LeaveRoom) fields() map[string]*structpb.Value   { return roomFields(e.RoomID) }
func (e TypingStart) fields() map[string]*structpb.Value { return roomFields(e.RoomID) }
func (e TypingStop) fields() map[string]*structpb.Value  { return roomFields(e.RoomID) }

func (e SendMessage) fields() map[string]*structpb.Value {
	return map[string]*structpb.Value{
		"room_id":      numValue(e.RoomID),
		"content":      structpb.NewStringValue(e.Content),
		"message_type": structpb.NewStringValue(e.MessageType),
	}
}

func roomFields(roomID int64) map[string]*structpb.Value {
	return map[string]*structpb.Value{"room_id": numValue(roomID)}
}

func membershipFields(userID int64, username string, roomID int64) map[string]*structpb.Value {
	return map[string]*structpb.Value{
		"user_id":  numValue(userID),
		"username": structpb.NewStringValue(username),
		"room_id":  numValue(roomID),
	}
}

func messageFields(m Message) map[string]*structpb.Value {
	return map[string]*structpb.Value{
		"id":              numValue(m.ID),
		"room_id":         numValue(m.RoomID),
		"sender_id":       numValue(m.SenderID),
		"sender_username": structpb.NewStringValue(m.SenderUsername),
		"content":         structpb.NewStringValue(m.Content),
		"timestamp":       structpb.NewStringValue(m.Timestamp),
		"message_type":    structpb.NewStringValue(m.Type),
	}
}

func messageFromStruct(s *structpb.Struct) Message {
	return Message{
		ID:             num(s, "id"),
		RoomID:         num(s, "room_id"),
		SenderID:       num(s, "sender_id"),
		SenderUsername: str(s, "sender_username"),
		Content:        str(s, "content"),
		Timestamp:      str(s, "timestamp"),
		Type:           str(s, "message_type"),
	}
}

func numValue(n int64) *structpb.Value {
	return structpb.NewNumberValue(float64(n))
}

// Missing or null fields decode to the zero value; the server omits
// sender_username for deleted users.
func num(s *structpb.Struct, key string) int64 {
	return int64(s.GetFields()[key].GetNumberValue())
}

func str(s *structpb.Struct, key string) string {
	return s.GetFields()[key].GetStringValue()
}

func flag(s *structpb.Struct, key string) bool {
	return s.GetFields()[key].GetBoolValue()
}
