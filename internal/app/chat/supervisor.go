/*
Package chat contains the relay engine: the participant registry, message routing, the
per-connection session state machine, and the supervisor accepting connections.

This file defines the Supervisor, which accepts connections, runs one connection handler
per connection, and coordinates an orderly shutdown: once its context is cancelled it stops
accepting and waits for every active connection to end on its own.
*/
package chat

import (
	"context"
	"errors"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"relaychat/internal/pkg/logx"
)

const (
	// DefaultQueueSize is the outbound queue capacity used when Options.QueueSize is zero.
	DefaultQueueSize = 256

	// maxAcceptBackoff caps the delay between retries after a temporary accept failure.
	maxAcceptBackoff = time.Second
)

// Options configures the connections started by a Supervisor.
type Options struct {
	// MaxFrameSize is the largest accepted inbound payload in bytes. Zero means unbounded.
	MaxFrameSize uint32

	// QueueSize is the capacity of each connection's outbound queue.
	QueueSize int

	// Policy applies when an outbound queue is full.
	Policy OverflowPolicy

	// WriteTimeout bounds each frame write. Zero disables the deadline.
	WriteTimeout time.Duration
}

// Supervisor owns every active connection handler.
type Supervisor struct {
	// router is shared by all connections.
	router *Router

	// opts is applied to every new connection.
	opts Options

	// mu guards closing, which makes wg.Add safe against a concurrent Wait.
	mu sync.Mutex

	// closing is set once shutdown started; Handle refuses new connections afterwards.
	closing bool

	// wg tracks active connection handlers.
	wg sync.WaitGroup

	// active counts open connections.
	active atomic.Int64

	// structured logger with Supervisor context.
	logger zerolog.Logger
}

// NewSupervisor constructs a Supervisor delivering through router.
func NewSupervisor(router *Router, opts Options) *Supervisor {
	if opts.QueueSize <= 0 {
		opts.QueueSize = DefaultQueueSize
	}
	if opts.Policy == "" {
		opts.Policy = PolicyBlock
	}

	return &Supervisor{
		router: router,
		opts:   opts,
		logger: logx.Component("supervisor"),
	}
}

// Router returns the router shared by the supervised connections.
func (s *Supervisor) Router() *Router {
	return s.router
}

// ActiveConnections returns the number of connections currently being served.
func (s *Supervisor) ActiveConnections() int {
	return int(s.active.Load())
}

// Serve accepts connections from ln until ctx is cancelled or ln fails permanently.
// It closes ln and returns only after every connection it started has ended.
// A nil error means the shutdown was requested through ctx.
func (s *Supervisor) Serve(ctx context.Context, ln net.Listener) error {
	stop := context.AfterFunc(ctx, func() {
		if err := ln.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			s.logger.Error().Err(err).Msg("Listener close error")
		}
	})
	defer stop()

	s.logger.Info().Str("addr", ln.Addr().String()).Msg("Accepting connections.")

	var (
		acceptErr error
		backoff   time.Duration
	)

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				break
			}

			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				backoff = nextBackoff(backoff)
				s.logger.Warn().Err(err).Dur("retry_in", backoff).Msg("Temporary accept error.")
				time.Sleep(backoff)
				continue
			}

			acceptErr = err
			s.logger.Error().Err(err).Msg("Accept failed, no longer accepting connections.")
			break
		}

		backoff = 0
		s.Handle(conn)
	}

	s.logger.Info().Int("active_connections", s.ActiveConnections()).Msg("Waiting for active connections to end.")
	s.Wait()
	s.logger.Info().Msg("All connections ended.")

	return acceptErr
}

// Handle starts a connection handler for conn. It returns false, closing conn,
// when the Supervisor is already shutting down.
func (s *Supervisor) Handle(conn Conn) bool {
	s.mu.Lock()
	if s.closing {
		s.mu.Unlock()
		if err := conn.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			s.logger.Debug().Err(err).Msg("Close of refused connection failed.")
		}
		return false
	}
	s.wg.Add(1)
	s.mu.Unlock()

	s.active.Add(1)
	c := newConnection(conn, s.router, s.opts)

	go func() {
		defer s.wg.Done()
		defer s.active.Add(-1)
		c.serve()
	}()

	return true
}

// Wait refuses new connections and blocks until every active connection handler has returned.
func (s *Supervisor) Wait() {
	s.mu.Lock()
	s.closing = true
	s.mu.Unlock()

	s.wg.Wait()
}

func nextBackoff(d time.Duration) time.Duration {
	if d == 0 {
		return 5 * time.Millisecond
	}
	d *= 2
	if d > maxAcceptBackoff {
		d = maxAcceptBackoff
	}
	return d
}
