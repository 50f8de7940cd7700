package server

import (
	"testing"

	"github.com/gobwas/ws"
	"github.com/omochice/talkwave/pkg/protocol"
)

func newTestClient(name string) *Client {
	return &Client{Username: name, Outgoing: make(chan []byte, 10)}
}

func received(t *testing.T, c *Client) []protocol.Payload {
	t.Helper()
	var out []protocol.Payload
	for {
		select {
		case data, ok := <-c.Outgoing:
			if !ok {
				return out
			}
			p, err := protocol.Decode(data, protocol.FormatJSON)
			if err != nil {
				t.Fatalf("Decode() error = %v", err)
			}
			out = append(out, p)
		default:
			return out
		}
	}
}

func TestHub_Register(t *testing.T) {
	hub := NewHub(protocol.FormatJSON)
	for _, name := range []string{"alice", "bob", "carol"} {
		hub.Register(newTestClient(name))
	}

	if got := hub.ClientCount(); got != 3 {
		t.Errorf("ClientCount() = %d, want 3", got)
	}
}

func TestHub_Unregister(t *testing.T) {
	hub := NewHub(protocol.FormatJSON)
	client := newTestClient("alice")
	hub.Register(client)
	hub.Subscribe(client, 1)

	hub.Unregister(client)
	hub.Unregister(client)

	if got := hub.ClientCount(); got != 0 {
		t.Errorf("ClientCount() = %d, want 0", got)
	}
	if hub.Subscribed(client, 1) {
		t.Error("unregistered client still subscribed")
	}
	if _, ok := <-client.Outgoing; ok {
		t.Error("outgoing channel not closed")
	}
	// Sending to a gone client must not panic on the closed channel.
	hub.Send(client, protocol.ServerError{Message: "late"})
}

func TestHub_BroadcastRoom(t *testing.T) {
	hub := NewHub(protocol.FormatJSON)
	alice, bob, carol := newTestClient("alice"), newTestClient("bob"), newTestClient("carol")
	for _, c := range []*Client{alice, bob, carol} {
		hub.Register(c)
	}
	hub.Subscribe(alice, 1)
	hub.Subscribe(bob, 1)
	hub.Subscribe(carol, 2)

	hub.BroadcastRoom(1, protocol.UserTyping{Username: "alice", RoomID: 1, Typing: true}, alice)

	if got := received(t, alice); len(got) != 0 {
		t.Errorf("excluded sender received %v", got)
	}
	if got := received(t, bob); len(got) != 1 || got[0] != (protocol.UserTyping{Username: "alice", RoomID: 1, Typing: true}) {
		t.Errorf("bob received %v", got)
	}
	if got := received(t, carol); len(got) != 0 {
		t.Errorf("other room received %v", got)
	}

	hub.Unsubscribe(bob, 1)
	hub.BroadcastRoom(1, protocol.UserLeftRoom{Username: "bob", RoomID: 1}, nil)
	if got := received(t, bob); len(got) != 0 {
		t.Errorf("unsubscribed client received %v", got)
	}
	if got := received(t, alice); len(got) != 1 {
		t.Errorf("alice received %v", got)
	}
}

func TestHub_Broadcast(t *testing.T) {
	hub := NewHub(protocol.FormatJSON)
	alice, bob := newTestClient("alice"), newTestClient("bob")
	hub.Register(alice)
	hub.Register(bob)

	hub.Broadcast(protocol.UserStatusChange{Username: "alice", IsOnline: true})

	for _, c := range []*Client{alice, bob} {
		if got := received(t, c); len(got) != 1 {
			t.Errorf("%s received %v", c.Username, got)
		}
	}
}

func TestHub_FullChannelIsSkipped(t *testing.T) {
	hub := NewHub(protocol.FormatJSON)
	slow := &Client{Username: "slow", Outgoing: make(chan []byte, 1)}
	hub.Register(slow)

	hub.Broadcast(protocol.ServerError{Message: "one"})
	hub.Broadcast(protocol.ServerError{Message: "two"})

	if got := received(t, slow); len(got) != 1 || got[0] != (protocol.ServerError{Message: "one"}) {
		t.Errorf("received %v", got)
	}
}

func TestHub_Opcode(t *testing.T) {
	if op := NewHub(protocol.FormatJSON).Opcode(); op != ws.OpText {
		t.Errorf("json opcode = %v", op)
	}
	if op := NewHub(protocol.FormatProto).Opcode(); op != ws.OpBinary {
		t.Errorf("proto opcode = %v", op)
	}
}
