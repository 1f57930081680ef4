/*
Package chat contains the relay engine: the participant registry, message routing, the
per-connection session state machine, and the supervisor accepting connections.

This file defines the Router, which delivers messages to joined participants. Join and leave
run the registry mutation and the fan-out of their notifications inside one exclusion scope,
so no participant can observe a notification that disagrees with the registry.
*/
package chat

import (
	"fmt"

	"github.com/rs/zerolog"

	"relaychat/internal/app/protocol"
	"relaychat/internal/app/user"
	"relaychat/internal/pkg/errs"
	"relaychat/internal/pkg/logx"
)

// ErrRecipientNotFound is returned when a private message names a participant who is not in the room.
var ErrRecipientNotFound = errs.NewError(errs.ErrRecipientNotFound)

// Observer is notified of committed membership changes.
// It is called while the registry lock is held and must not block.
type Observer interface {
	ParticipantJoined(p user.Participant)
	ParticipantLeft(p user.Participant)
}

type nopObserver struct{}

func (nopObserver) ParticipantJoined(user.Participant) {}
func (nopObserver) ParticipantLeft(user.Participant)   {}

// Router implements join, leave, broadcast, and private delivery on top of a Registry.
type Router struct {
	// registry holds the membership; its mutex is the router's exclusion scope.
	registry *Registry

	// observer receives membership changes after they are committed.
	observer Observer

	// structured logger with router context.
	logger zerolog.Logger
}

// NewRouter creates a Router over registry. A nil observer disables notifications.
func NewRouter(registry *Registry, observer Observer) *Router {
	if observer == nil {
		observer = nopObserver{}
	}

	return &Router{
		registry: registry,
		observer: observer,
		logger:   logx.Component("router"),
	}
}

// Registry returns the registry the router delivers through.
func (rt *Router) Registry() *Registry {
	return rt.registry
}

// Join registers name for addr. On success the accepting JoinResponse is queued on sink and
// a UserJoined notification on every other participant before the lock is released, so a
// participant who joins later is always announced after this one's acceptance.
// On ErrNameTaken nothing is queued and the registry is unchanged.
func (rt *Router) Join(addr user.Address, name string, sink Sink) ([]user.Participant, error) {
	rt.registry.mu.Lock()
	defer rt.registry.mu.Unlock()

	roster, peers, err := rt.registry.tryJoinLocked(addr, name, sink)
	if err != nil {
		return nil, err
	}

	p := user.Participant{Address: addr, Name: name}

	accepted, err := protocol.Serialize(protocol.JoinResponse{Success: true, Roster: roster})
	if err != nil {
		rt.registry.leaveLocked(addr)
		return nil, fmt.Errorf("join %q: %w", name, err)
	}

	announcement, err := protocol.Serialize(protocol.UserJoined{Participant: p})
	if err != nil {
		rt.registry.leaveLocked(addr)
		return nil, fmt.Errorf("join %q: %w", name, err)
	}

	if sink != nil {
		sink.Deliver(accepted)
	}
	deliverAll(peers, announcement)

	rt.observer.ParticipantJoined(p)

	rt.logger.Info().
		Str("name", name).
		Str("addr", addr.String()).
		Int("total_users", len(rt.registry.byAddr)).
		Msg("Participant joined.")

	return roster, nil
}

// Leave removes addr from the room and announces UserLeft to the remaining participants.
// It is idempotent: leaving twice announces once.
func (rt *Router) Leave(addr user.Address) (user.Participant, bool) {
	rt.registry.mu.Lock()
	defer rt.registry.mu.Unlock()

	p, remaining, ok := rt.registry.leaveLocked(addr)
	if !ok {
		return user.Participant{}, false
	}

	announcement, err := protocol.Serialize(protocol.UserLeft{Participant: p})
	if err != nil {
		rt.logger.Error().Err(err).Str("name", p.Name).Msg("Failed to build USER_LEFT message.")
	} else {
		deliverAll(remaining, announcement)
	}

	rt.observer.ParticipantLeft(p)

	rt.logger.Info().
		Str("name", p.Name).
		Str("addr", addr.String()).
		Int("total_users", len(rt.registry.byAddr)).
		Msg("Participant left.")

	return p, true
}

// Broadcast delivers msg to every joined participant except from.
func (rt *Router) Broadcast(from user.Address, msg protocol.Message) error {
	payload, err := protocol.Serialize(msg)
	if err != nil {
		return fmt.Errorf("broadcast: %w", err)
	}

	rt.registry.mu.RLock()
	defer rt.registry.mu.RUnlock()

	rt.broadcastLocked(from, payload)
	return nil
}

// SendPrivate delivers msg to the participant named toName only.
// It returns ErrRecipientNotFound when nobody uses that name; nothing is delivered in that case.
// A message addressed to the sender's own name is dropped.
func (rt *Router) SendPrivate(from user.Address, toName string, msg protocol.Message) error {
	payload, err := protocol.Serialize(msg)
	if err != nil {
		return fmt.Errorf("send private: %w", err)
	}

	rt.registry.mu.RLock()
	defer rt.registry.mu.RUnlock()

	return rt.sendPrivateLocked(from, toName, payload)
}

// Relay routes a chat message received from addr. The sender name is taken from the
// registry, never from the client, and forwarded messages carry no receiver.
func (rt *Router) Relay(from user.Address, msg protocol.ChatMessage) error {
	rt.registry.mu.RLock()
	defer rt.registry.mu.RUnlock()

	sender, ok := rt.registry.byAddr[from]
	if !ok {
		return ErrNotJoined
	}

	out := protocol.ChatMessage{
		Private: msg.Private,
		Sender:  sender.participant.Name,
		Text:    msg.Text,
	}

	payload, err := protocol.Serialize(out)
	if err != nil {
		return fmt.Errorf("relay: %w", err)
	}

	if msg.Private {
		return rt.sendPrivateLocked(from, msg.Receiver, payload)
	}

	rt.broadcastLocked(from, payload)
	return nil
}

func (rt *Router) broadcastLocked(from user.Address, payload []byte) {
	for addr, e := range rt.registry.byAddr {
		if addr == from || e.sink == nil {
			continue
		}
		e.sink.Deliver(payload)
	}
}

func (rt *Router) sendPrivateLocked(from user.Address, toName string, payload []byte) error {
	// a missing receiver never addresses a participant, not even one joined under ""
	if toName == "" {
		return errs.NewError(errs.ErrRecipientNotFound, toName)
	}

	to, ok := rt.registry.byName[toName]
	if !ok {
		return errs.NewError(errs.ErrRecipientNotFound, toName)
	}

	if to == from {
		rt.logger.Debug().Str("name", toName).Msg("Dropping private message addressed to its sender.")
		return nil
	}

	if e := rt.registry.byAddr[to]; e.sink != nil {
		e.sink.Deliver(payload)
	}
	return nil
}

func deliverAll(sinks []Sink, payload []byte) {
	for _, s := range sinks {
		s.Deliver(payload)
	}
}
