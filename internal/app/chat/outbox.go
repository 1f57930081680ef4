/*
Package chat contains the relay engine: the participant registry, message routing, the
per-connection session state machine, and the supervisor accepting connections.

This file defines the outbox, the per-connection outbound queue drained by a write pump.
*/
package chat

import (
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"relaychat/internal/pkg/frame"
)

// OverflowPolicy selects what Deliver does when a connection's outbound queue is full.
type OverflowPolicy string

const (
	// PolicyBlock makes the sender wait until the receiver's queue has room or the receiver is gone.
	PolicyBlock OverflowPolicy = "block"

	// PolicyDisconnect closes the receiving connection when its queue is full.
	PolicyDisconnect OverflowPolicy = "disconnect"
)

// ParseOverflowPolicy validates a policy name.
func ParseOverflowPolicy(s string) (OverflowPolicy, error) {
	switch p := OverflowPolicy(s); p {
	case PolicyBlock, PolicyDisconnect:
		return p, nil
	}
	return "", fmt.Errorf("unknown overflow policy %q", s)
}

// writeDeadliner is implemented by connections that support write deadlines, such as net.Conn.
type writeDeadliner interface {
	SetWriteDeadline(t time.Time) error
}

// outbox queues payloads for one connection and writes them as frames from a single goroutine.
type outbox struct {
	// conn is the connection frames are written to.
	conn Conn

	// send queues serialized payloads waiting to be written.
	send chan []byte

	// quit is closed when the outbox stops accepting and writing payloads.
	quit chan struct{}

	// done is closed when writePump has returned.
	done chan struct{}

	// stopOnce guards closing quit.
	stopOnce sync.Once

	// policy applies when send is full.
	policy OverflowPolicy

	// writeTimeout bounds each frame write. Zero disables the deadline.
	writeTimeout time.Duration

	// structured logger with connection context.
	logger zerolog.Logger
}

func newOutbox(conn Conn, queueSize int, policy OverflowPolicy, writeTimeout time.Duration, logger zerolog.Logger) *outbox {
	if queueSize < 1 {
		queueSize = 1
	}

	return &outbox{
		conn:         conn,
		send:         make(chan []byte, queueSize),
		quit:         make(chan struct{}),
		done:         make(chan struct{}),
		policy:       policy,
		writeTimeout: writeTimeout,
		logger:       logger,
	}
}

// Deliver queues payload for writing. Payloads delivered after the outbox stopped are dropped.
func (o *outbox) Deliver(payload []byte) {
	if o.policy == PolicyDisconnect {
		select {
		case o.send <- payload:
		case <-o.quit:
		default:
			o.logger.Warn().
				Int("queue_len", len(o.send)).
				Msg("Outbound queue full, disconnecting slow receiver.")
			o.stop()
			if err := o.conn.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
				o.logger.Error().Err(err).Msg("Connection close error after queue overflow")
			}
		}
		return
	}

	select {
	case o.send <- payload:
	case <-o.quit:
	}
}

// writePump writes queued payloads until the outbox is stopped or a write fails.
// A failed write closes the connection, which ends the read side as well.
func (o *outbox) writePump() {
	defer close(o.done)

	for {
		select {
		case payload := <-o.send:
			if err := o.write(payload); err != nil {
				o.logger.Info().Err(err).Msg("Error writing frame, closing connection.")
				o.stop()
				if err := o.conn.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
					o.logger.Error().Err(err).Msg("Connection close error in writePump")
				}
				return
			}

		case <-o.quit:
			return
		}
	}
}

func (o *outbox) write(payload []byte) error {
	if o.writeTimeout > 0 {
		if d, ok := o.conn.(writeDeadliner); ok {
			if err := d.SetWriteDeadline(time.Now().Add(o.writeTimeout)); err != nil {
				return fmt.Errorf("set write deadline: %w", err)
			}
		}
	}

	return frame.Write(o.conn, payload)
}

// flush waits until every payload queued so far has been written, the outbox stopped, or timeout elapsed.
func (o *outbox) flush(timeout time.Duration) {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()

	ticker := time.NewTicker(5 * time.Millisecond)
	defer ticker.Stop()

	for len(o.send) > 0 {
		select {
		case <-o.quit:
			return
		case <-deadline.C:
			return
		case <-ticker.C:
		}
	}
}

// stop makes the outbox refuse further payloads and ends writePump.
func (o *outbox) stop() {
	o.stopOnce.Do(func() {
		close(o.quit)
	})
}
