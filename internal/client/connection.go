package client

import (
	"bufio"
	"io"
	"net"
	"sync"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
)

// ClientConnection represents a frame-oriented connection to the server
type ClientConnection interface {
	// WriteFrame sends one frame with the given opcode
	WriteFrame(op ws.OpCode, data []byte) error

	// ReadFrame receives the next data frame, answering control frames
	ReadFrame() ([]byte, ws.OpCode, error)

	// Close closes the connection
	Close() error

	// RemoteAddr returns the server address
	RemoteAddr() net.Addr
}

// WebSocketClientConnection wraps net.Conn for WebSocket connections using gobwas/ws
type WebSocketClientConnection struct {
	conn net.Conn
	r    io.Reader
	mu   sync.Mutex
}

// NewWebSocketClientConnection creates a new WebSocket connection wrapper.
// br is the reader returned by the handshake; it may hold frames the
// server sent before the handshake response was fully consumed.
func NewWebSocketClientConnection(conn net.Conn, br *bufio.Reader) *WebSocketClientConnection {
	wc := &WebSocketClientConnection{conn: conn, r: conn}
	if br != nil {
		wc.r = br
	}
	return wc
}

func (wc *WebSocketClientConnection) WriteFrame(op ws.OpCode, data []byte) error {
	wc.mu.Lock()
	defer wc.mu.Unlock()
	return wsutil.WriteClientMessage(wc.conn, op, data)
}

// ReadFrame must only be called from a single goroutine. Pong replies to
// server pings share the write lock with WriteFrame.
func (wc *WebSocketClientConnection) ReadFrame() ([]byte, ws.OpCode, error) {
	return wsutil.ReadServerData(readWriter{Reader: wc.r, Writer: lockedWriter{wc}})
}

func (wc *WebSocketClientConnection) Close() error {
	wc.mu.Lock()
	_ = wsutil.WriteClientMessage(wc.conn, ws.OpClose, nil)
	wc.mu.Unlock()
	return wc.conn.Close()
}

func (wc *WebSocketClientConnection) RemoteAddr() net.Addr {
	return wc.conn.RemoteAddr()
}

type readWriter struct {
	io.Reader
	io.Writer
}

type lockedWriter struct {
	wc *WebSocketClientConnection
}

func (w lockedWriter) Write(p []byte) (int, error) {
	w.wc.mu.Lock()
	defer w.wc.mu.Unlock()
	return w.wc.conn.Write(p)
}
