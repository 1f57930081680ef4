/*
Package wsconn adapts a gorilla WebSocket connection to a plain byte stream.

Binary messages are concatenated on the read side, so a length-prefixed frame may span
several WebSocket messages or share one with other frames. Each Write is sent as one binary message.
*/
package wsconn

import (
	"errors"
	"io"
	"net"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// closeGracePeriod bounds the time spent sending the close control frame.
const closeGracePeriod = time.Second

// Conn is a byte stream over a WebSocket connection.
// Read and Write may be used by one goroutine each; Close may be called from any goroutine.
type Conn struct {
	// ws is the underlying WebSocket connection.
	ws *websocket.Conn

	// cur is the reader of the message being consumed, nil between messages.
	cur io.Reader

	// remote overrides ws.RemoteAddr, e.g. with the address resolved by a proxy-aware middleware.
	remote net.Addr

	// closeOnce guards the close handshake.
	closeOnce sync.Once
	closeErr  error
}

// New wraps ws. A nil remote uses the address of the underlying network connection.
func New(ws *websocket.Conn, remote net.Addr) *Conn {
	return &Conn{ws: ws, remote: remote}
}

// Read reads from the current binary message, moving to the next one when it is exhausted.
// A close frame from the peer is reported as io.EOF.
func (c *Conn) Read(p []byte) (int, error) {
	for {
		if c.cur == nil {
			mt, r, err := c.ws.NextReader()
			if err != nil {
				return 0, translate(err)
			}
			if mt != websocket.BinaryMessage {
				continue
			}
			c.cur = r
		}

		n, err := c.cur.Read(p)
		if errors.Is(err, io.EOF) {
			c.cur = nil
			if n > 0 {
				return n, nil
			}
			continue
		}
		if err != nil {
			return n, translate(err)
		}
		return n, nil
	}
}

// Write sends p as a single binary message.
func (c *Conn) Write(p []byte) (int, error) {
	if err := c.ws.WriteMessage(websocket.BinaryMessage, p); err != nil {
		return 0, translate(err)
	}
	return len(p), nil
}

// Close sends a normal-closure control frame and closes the underlying connection.
func (c *Conn) Close() error {
	c.closeOnce.Do(func() {
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		_ = c.ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(closeGracePeriod))
		c.closeErr = c.ws.Close()
	})
	return c.closeErr
}

// SetWriteDeadline sets the deadline for future Write calls.
func (c *Conn) SetWriteDeadline(t time.Time) error {
	return c.ws.SetWriteDeadline(t)
}

// RemoteAddr returns the peer address.
func (c *Conn) RemoteAddr() net.Addr {
	if c.remote != nil {
		return c.remote
	}
	return c.ws.RemoteAddr()
}

func translate(err error) error {
	var closeErr *websocket.CloseError
	if errors.As(err, &closeErr) || errors.Is(err, io.ErrUnexpectedEOF) {
		return io.EOF
	}
	if errors.Is(err, websocket.ErrCloseSent) {
		return net.ErrClosed
	}
	return err
}
