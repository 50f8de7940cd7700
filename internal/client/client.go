// Package client implements the realtime channel used by the chat session.
package client

import "github.com/omochice/talkwave/pkg/protocol"

// Client defines the realtime transport consumed by the session core.
type Client interface {
	// Connect starts connecting in the background. It is a no-op while
	// already connected or connecting.
	Connect(identity protocol.Identity)
	// Emit sends an outbound event without blocking. While disconnected it
	// is a no-op.
	Emit(p protocol.Payload)
	// Disconnect tears down the channel and stops reconnecting.
	Disconnect()
	IsConnected() bool
	// Events delivers inbound events in the order the channel produced them.
	// The channel is never closed and survives reconnects.
	Events() <-chan protocol.Event
}

var _ Client = (*WebSocketClient)(nil)
