package server

import (
	"bufio"
	"io"
	"net"
	"sync"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
)

// Connection wraps a net.Conn upgraded with gobwas/ws. Writes are
// serialized; ReadFrame must only be called from one goroutine.
type Connection struct {
	conn net.Conn
	r    io.Reader
	mu   sync.Mutex
}

// NewConnection creates a new Connection. br is the reader returned by the
// upgrade and may already hold the client's first frames.
func NewConnection(conn net.Conn, br *bufio.Reader) *Connection {
	c := &Connection{conn: conn, r: conn}
	if br != nil {
		c.r = br
	}
	return c
}

func (c *Connection) RemoteAddr() net.Addr {
	return c.conn.RemoteAddr()
}

func (c *Connection) WriteFrame(op ws.OpCode, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return wsutil.WriteServerMessage(c.conn, op, data)
}

// ReadFrame returns the next text or binary frame, answering pings.
func (c *Connection) ReadFrame() ([]byte, ws.OpCode, error) {
	return wsutil.ReadClientData(struct {
		io.Reader
		io.Writer
	}{c.r, lockedWriter{c}})
}

func (c *Connection) Close() error {
	c.mu.Lock()
	// Send close frame
	_ = wsutil.WriteServerMessage(c.conn, ws.OpClose, nil)
	c.mu.Unlock()
	return c.conn.Close()
}

type lockedWriter struct {
	c *Connection
}

func (w lockedWriter) Write(p []byte) (int, error) {
	w.c.mu.Lock()
	defer w.c.mu.Unlock()
	return w.c.conn.Write(p)
}
