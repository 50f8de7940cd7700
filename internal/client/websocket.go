package client

import (
	"context"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/gobwas/ws"
	"github.com/google/uuid"
	"github.com/omochice/talkwave/pkg/protocol"
)

// Options configures a WebSocketClient.
type Options struct {
	URL string
	// Header is evaluated on every dial so a refreshed session cookie is
	// picked up by reconnects.
	Header           func() http.Header
	Format           protocol.Format
	DialTimeout      time.Duration
	ReconnectInitial time.Duration
	ReconnectMax     time.Duration
}

// WebSocketClient is a reconnecting realtime channel. A dropped connection
// is redialed with exponential backoff until Disconnect is called.
type WebSocketClient struct {
	opts     Options
	events   chan protocol.Event
	mu       sync.RWMutex
	conn     *WebSocketClientConnection
	outgoing chan []byte
	cancel   context.CancelFunc
	username string
	wg       sync.WaitGroup
}

// NewWebSocketClient creates a new WebSocketClient instance
func NewWebSocketClient(opts Options) *WebSocketClient {
	if opts.ReconnectInitial <= 0 {
		opts.ReconnectInitial = 500 * time.Millisecond
	}
	if opts.ReconnectMax <= 0 {
		opts.ReconnectMax = 30 * time.Second
	}
	return &WebSocketClient{
		opts:   opts,
		events: make(chan protocol.Event, 64),
	}
}

// Connect starts the connection loop for identity
func (c *WebSocketClient) Connect(identity protocol.Identity) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancel != nil {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	c.username = identity.Username
	out := make(chan []byte, 64)
	c.outgoing = out

	c.wg.Add(2)
	go c.run(ctx)
	go c.writeMessages(ctx, out)
}

// Disconnect closes the connection and stops reconnecting
func (c *WebSocketClient) Disconnect() {
	c.mu.Lock()
	if c.cancel == nil {
		c.mu.Unlock()
		return
	}
	c.cancel()
	c.cancel = nil
	c.outgoing = nil
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
	c.mu.Unlock()

	c.wg.Wait()
}

// IsConnected returns whether a connection is currently established
func (c *WebSocketClient) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.conn != nil
}

// Events returns the channel for receiving inbound events
func (c *WebSocketClient) Events() <-chan protocol.Event {
	return c.events
}

// Emit queues an outbound event for the writer goroutine
func (c *WebSocketClient) Emit(p protocol.Payload) {
	data, err := protocol.Encode(p, c.opts.Format)
	if err != nil {
		log.Printf("[transport] %v", err)
		return
	}

	c.mu.RLock()
	out := c.outgoing
	connected := c.conn != nil
	c.mu.RUnlock()

	if out == nil || !connected {
		log.Printf("[transport] not connected, dropping %s", p.EventName())
		return
	}

	select {
	case out <- data:
	default:
		log.Printf("[transport] outgoing queue full, dropping %s", p.EventName())
	}
}

func (c *WebSocketClient) opcode() ws.OpCode {
	if c.opts.Format == protocol.FormatProto {
		return ws.OpBinary
	}
	return ws.OpText
}

// run dials, reads until the connection drops, and redials
func (c *WebSocketClient) run(ctx context.Context) {
	defer c.wg.Done()

	reconnect := false
	for {
		conn, err := c.dial(ctx)
		if err != nil {
			return
		}

		c.mu.Lock()
		if ctx.Err() != nil {
			c.mu.Unlock()
			conn.Close()
			return
		}
		c.conn = conn
		c.mu.Unlock()

		id := uuid.NewString()
		log.Printf("[transport] connection %s established to %s as %s", id, conn.RemoteAddr(), c.username)
		c.publish(ctx, protocol.Connected{ConnectionID: id, Reconnect: reconnect})

		err = c.receiveMessages(ctx, conn)

		c.mu.Lock()
		if c.conn == conn {
			c.conn = nil
		}
		c.mu.Unlock()
		conn.Close()

		if ctx.Err() != nil {
			return
		}
		log.Printf("[transport] connection %s lost: %v", id, err)
		c.publish(ctx, protocol.Disconnected{Err: err})
		reconnect = true
	}
}

// dial retries until a connection is established or ctx is cancelled
func (c *WebSocketClient) dial(ctx context.Context) (*WebSocketClientConnection, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.opts.ReconnectInitial
	b.MaxInterval = c.opts.ReconnectMax

	operation := func() (*WebSocketClientConnection, error) {
		dialer := ws.Dialer{Timeout: c.opts.DialTimeout}
		if c.opts.Header != nil {
			dialer.Header = ws.HandshakeHeaderHTTP(c.opts.Header())
		}
		conn, br, _, err := dialer.Dial(ctx, c.opts.URL)
		if err != nil {
			return nil, err
		}
		return NewWebSocketClientConnection(conn, br), nil
	}
	notify := func(err error, next time.Duration) {
		log.Printf("[transport] failed to connect, retrying in %v: %v", next, err)
	}

	for {
		conn, err := backoff.Retry(ctx, operation, backoff.WithBackOff(b), backoff.WithNotify(notify))
		if err == nil {
			return conn, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
	}
}

// writeMessages serializes outbound frames onto the current connection
func (c *WebSocketClient) writeMessages(ctx context.Context, out <-chan []byte) {
	defer c.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case data := <-out:
			c.mu.RLock()
			conn := c.conn
			c.mu.RUnlock()

			if conn == nil {
				log.Printf("[transport] connection lost, dropping frame")
				continue
			}
			if err := conn.WriteFrame(c.opcode(), data); err != nil {
				log.Printf("Failed to send message: %v", err)
			}
		}
	}
}

// receiveMessages decodes frames into events until the connection fails
func (c *WebSocketClient) receiveMessages(ctx context.Context, conn *WebSocketClientConnection) error {
	for {
		data, op, err := conn.ReadFrame()
		if err != nil {
			return err
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
		ev, ok := p.(protocol.Event)
		if !ok {
			log.Printf("[transport] ignoring outbound event %s from server", p.EventName())
			continue
		}
		if !c.publish(ctx, ev) {
			return ctx.Err()
		}
	}
}

func (c *WebSocketClient) publish(ctx context.Context, ev protocol.Event) bool {
	select {
	case c.events <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}
