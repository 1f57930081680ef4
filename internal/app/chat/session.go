/*
Package chat contains the relay engine: the participant registry, message routing, the
per-connection session state machine, and the supervisor accepting connections.

This file defines the Session, the state machine driving one membership of one connection.
A Session starts Pending, becomes Joined once its display name is accepted, and ends Closed.
It never writes to the connection directly; everything it sends goes through its Sink.
*/
package chat

import (
	"errors"

	"github.com/rs/zerolog"

	"relaychat/internal/app/protocol"
	"relaychat/internal/app/user"
	"relaychat/internal/pkg/errs"
)

// State is the lifecycle position of a Session.
type State int

const (
	// StatePending means the connection has not joined the room yet.
	StatePending State = iota

	// StateJoined means the connection holds a display name in the registry.
	StateJoined

	// StateClosed is terminal. A Closed session holds nothing in the registry.
	StateClosed
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateJoined:
		return "joined"
	case StateClosed:
		return "closed"
	}
	return "unknown"
}

// Session applies inbound protocol messages from one connection to the shared room.
// A Session is driven by a single goroutine and is not safe for concurrent use.
type Session struct {
	// addr is the registry key of this connection.
	addr user.Address

	// router performs every operation touching other participants.
	router *Router

	// out queues payloads for this connection.
	out Sink

	// state is the current lifecycle position.
	state State

	// name is the display name held while Joined.
	name string

	// structured logger with connection context.
	logger zerolog.Logger
}

// NewSession creates a Pending session for the connection at addr.
func NewSession(addr user.Address, router *Router, out Sink, logger zerolog.Logger) *Session {
	return &Session{
		addr:   addr,
		router: router,
		out:    out,
		state:  StatePending,
		logger: logger,
	}
}

// State returns the current lifecycle position.
func (s *Session) State() State {
	return s.state
}

// Name returns the display name held while Joined, or "" otherwise.
func (s *Session) Name() string {
	return s.name
}

// Handle parses one inbound payload and applies it. Malformed payloads and messages that are
// not valid in the current state are logged and dropped without a state change.
func (s *Session) Handle(payload []byte) {
	if s.state == StateClosed {
		s.logger.Warn().Msg("Payload received by a closed session, dropped.")
		return
	}

	s.logger.Debug().Bytes("payload", payload).Str("state", s.state.String()).Msg("Payload received.")

	msg, err := protocol.Parse(payload)
	if err != nil {
		s.logger.Warn().Err(err).Msg("Discarding unparsable payload.")
		return
	}

	switch m := msg.(type) {
	case protocol.JoinRequest:
		s.handleJoin(m)
	case protocol.ChatMessage:
		s.handleChat(m)
	case protocol.LeaveRequest:
		s.handleLeave()
	default:
		s.logger.Warn().
			Str("type", string(msg.Type())).
			Str("state", s.state.String()).
			Msg("Ignoring message not accepted from clients.")
	}
}

// Close ends the session. A Joined session leaves the room, which announces UserLeft to the
// remaining participants. Close is idempotent.
func (s *Session) Close() {
	if s.state == StateJoined {
		s.router.Leave(s.addr)
		s.logger.Info().Str("name", s.name).Msg("Implicit leave on connection end.")
	}

	s.state = StateClosed
	s.name = ""
}

func (s *Session) handleJoin(m protocol.JoinRequest) {
	if s.state != StatePending {
		s.logger.Warn().Str("name", m.Name).Msg("Ignoring join request from a joined session.")
		return
	}

	_, err := s.router.Join(s.addr, m.Name, s.out)
	switch {
	case err == nil:
		s.state = StateJoined
		s.name = m.Name

	case errors.Is(err, ErrNameTaken):
		s.logger.Info().Str("name", m.Name).Msg("Join rejected, display name in use.")
		s.reply(protocol.JoinResponse{
			Success: false,
			Error:   errs.NewError(errs.ErrNameTaken).Message,
		})

	default:
		s.logger.Error().Err(err).Str("name", m.Name).Msg("Join failed.")
		s.reply(protocol.JoinResponse{
			Success: false,
			Error:   errs.NewError(errs.CodeOf(err)).Message,
		})
	}
}

func (s *Session) handleChat(m protocol.ChatMessage) {
	if s.state != StateJoined {
		s.logger.Warn().Msg("Ignoring chat message from a session that has not joined.")
		return
	}

	err := s.router.Relay(s.addr, m)
	switch {
	case err == nil:
	case errors.Is(err, ErrRecipientNotFound):
		s.logger.Info().
			Str("name", s.name).
			Str("receiver", m.Receiver).
			Msg("Private message to unknown recipient dropped.")
	default:
		s.logger.Error().Err(err).Str("name", s.name).Msg("Relaying chat message failed.")
	}
}

// handleLeave removes the participant before acknowledging, so nothing routed to it
// can be queued behind the disconnection-response.
func (s *Session) handleLeave() {
	if s.state == StateJoined {
		s.router.Leave(s.addr)
		s.logger.Info().Str("name", s.name).Msg("Participant left on request.")
	}

	s.reply(protocol.LeaveResponse{})

	s.state = StateClosed
	s.name = ""
}

func (s *Session) reply(msg protocol.Message) {
	payload, err := protocol.Serialize(msg)
	if err != nil {
		s.logger.Error().Err(err).Str("type", string(msg.Type())).Msg("Failed to serialize reply.")
		return
	}
	s.out.Deliver(payload)
}
