/*
Package chat contains the relay engine: the participant registry, message routing, the
per-connection session state machine, and the supervisor accepting connections.

This file defines the connection handler. It owns one transport connection, reads frames
from it, and feeds them to a Session. After an explicit leave the connection stays open
and a fresh Session takes over, so the client may join again without reconnecting.
*/
package chat

import (
	"errors"
	"io"
	"net"
	"time"

	"github.com/rs/zerolog"

	"relaychat/internal/app/user"
	"relaychat/internal/pkg/frame"
	"relaychat/internal/pkg/logx"
	"relaychat/internal/pkg/randx"
)

// flushTimeout bounds how long a closing connection waits for its queued payloads to be written.
const flushTimeout = 250 * time.Millisecond

// Conn is the duplex byte stream a connection handler owns.
// *net.TCPConn satisfies it, and so does the WebSocket stream adapter.
type Conn interface {
	io.ReadWriteCloser
	RemoteAddr() net.Addr
}

// connection binds one Conn to its frame reader, outbound queue, and current Session.
type connection struct {
	// id tags every log line of this connection.
	id string

	// conn is the underlying transport.
	conn Conn

	// addr is the registry key derived from the remote address.
	addr user.Address

	// reader decodes inbound frames.
	reader *frame.Reader

	// out is the outbound queue shared by every Session on this connection.
	out *outbox

	// router is handed to each new Session.
	router *Router

	// session is the Session currently driven by serve.
	session *Session

	// structured logger with connection context.
	logger zerolog.Logger
}

func newConnection(conn Conn, router *Router, opts Options) *connection {
	addr := user.AddressFromNet(conn.RemoteAddr())
	id := randx.SessionID()

	logger := logx.Logger().With().
		Str("component", "connection").
		Str("session_id", id).
		Str("remote_addr", addr.String()).
		Logger()

	return &connection{
		id:     id,
		conn:   conn,
		addr:   addr,
		reader: frame.NewReader(conn, opts.MaxFrameSize),
		out:    newOutbox(conn, opts.QueueSize, opts.Policy, opts.WriteTimeout, logger),
		router: router,
		logger: logger,
	}
}

// serve runs Sessions on the connection until the stream ends, then releases everything
// the connection holds. A panic in a handler is recovered and cleanup still runs.
func (c *connection) serve() {
	go c.out.writePump()

	defer c.cleanup()
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error().
				Interface("panic", r).
				Msg("Recovered from panic in connection handler.")
		}
	}()

	c.logger.Info().Msg("Connection accepted.")

	for {
		c.session = NewSession(c.addr, c.router, c.out, c.logger)
		if !c.runSession() {
			return
		}
		c.logger.Debug().Msg("Session closed by request, awaiting a new join on the same connection.")
	}
}

// runSession reads frames into the current Session. It returns true when the Session was
// closed by request and the connection can host another one.
func (c *connection) runSession() bool {
	for {
		payload, err := c.reader.Next()
		if err != nil {
			c.logReadError(err)
			return false
		}

		c.session.Handle(payload)

		if c.session.State() == StateClosed {
			return true
		}
	}
}

// cleanup drains what can still be written, releases the registry entry, and closes the transport.
func (c *connection) cleanup() {
	c.out.flush(flushTimeout)
	c.out.stop()

	if c.session != nil {
		c.session.Close()
	}

	if err := c.conn.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
		c.logger.Debug().Err(err).Msg("Connection close error.")
	}

	<-c.out.done

	c.logger.Info().Msg("Connection closed.")
}

func (c *connection) logReadError(err error) {
	switch {
	case errors.Is(err, frame.ErrEndOfStream):
		c.logger.Debug().Msg("Peer closed the stream.")
	case errors.Is(err, frame.ErrFrameTooLarge):
		c.logger.Warn().Err(err).Msg("Oversized frame, disconnecting.")
	case errors.Is(err, net.ErrClosed):
		c.logger.Debug().Err(err).Msg("Connection closed locally.")
	default:
		c.logger.Info().Err(err).Msg("Error reading frame, disconnecting.")
	}
}
