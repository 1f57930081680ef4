/*
Package chat contains the relay engine: the participant registry, message routing, the
per-connection session state machine, and the supervisor accepting connections.

This file defines the Registry, the single source of truth for who is currently in the room.
Entries are keyed by connection address and indexed by display name, which is unique.
*/
package chat

import (
	"slices"
	"sync"

	"github.com/samber/lo"

	"relaychat/internal/app/user"
	"relaychat/internal/pkg/errs"
)

var (
	// ErrNameTaken is returned when a display name is already used by a joined participant.
	ErrNameTaken = errs.NewError(errs.ErrNameTaken)

	// ErrAlreadyJoined is returned when an address that is already in the room tries to join again.
	ErrAlreadyJoined = errs.NewError(errs.ErrAlreadyJoined)

	// ErrNotJoined is returned when a routing request comes from an address that is not in the room.
	ErrNotJoined = errs.NewError(errs.ErrNotJoined)
)

// Sink is the outbound path of one connection. Deliver queues one serialized payload.
type Sink interface {
	Deliver(payload []byte)
}

// entry is one joined participant together with its outbound path.
type entry struct {
	participant user.Participant
	sink        Sink

	// seq orders entries by join time.
	seq uint64
}

// Registry tracks joined participants. All methods are safe for concurrent use.
// The Router shares the registry's mutex so that membership changes and their
// notifications are observed atomically.
type Registry struct {
	// mu guards every field below.
	mu sync.RWMutex

	// byAddr maps a connection address to its participant entry.
	byAddr map[user.Address]*entry

	// byName maps a display name to the address currently holding it.
	byName map[string]user.Address

	// nextSeq is the sequence number given to the next joiner.
	nextSeq uint64
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		byAddr: make(map[user.Address]*entry),
		byName: make(map[string]user.Address),
	}
}

// TryJoin atomically checks that name is free and, if so, inserts the participant.
// It returns the participants that were already joined, in join order.
// sink may be nil for entries that never receive deliveries.
func (r *Registry) TryJoin(addr user.Address, name string, sink Sink) ([]user.Participant, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	roster, _, err := r.tryJoinLocked(addr, name, sink)
	return roster, err
}

// Leave atomically removes the participant at addr. A second Leave for the same address is a no-op.
func (r *Registry) Leave(addr user.Address) (user.Participant, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, _, ok := r.leaveLocked(addr)
	return p, ok
}

// LookupByName returns the address of the participant using name.
func (r *Registry) LookupByName(name string) (user.Address, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	addr, ok := r.byName[name]
	return addr, ok
}

// Lookup returns the participant joined from addr.
func (r *Registry) Lookup(addr user.Address) (user.Participant, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.byAddr[addr]
	if !ok {
		return user.Participant{}, false
	}
	return e.participant, true
}

// Snapshot returns all joined participants in join order.
func (r *Registry) Snapshot() []user.Participant {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return participantsOf(r.orderedLocked())
}

// Len returns the number of joined participants.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.byAddr)
}

// tryJoinLocked inserts a participant and returns the previous roster and the peers' sinks.
// The caller must hold the write lock.
func (r *Registry) tryJoinLocked(addr user.Address, name string, sink Sink) ([]user.Participant, []Sink, error) {
	if _, ok := r.byAddr[addr]; ok {
		return nil, nil, ErrAlreadyJoined
	}

	if _, taken := r.byName[name]; taken {
		return nil, nil, ErrNameTaken
	}

	existing := r.orderedLocked()

	r.nextSeq++
	r.byAddr[addr] = &entry{
		participant: user.Participant{Address: addr, Name: name},
		sink:        sink,
		seq:         r.nextSeq,
	}
	r.byName[name] = addr

	return participantsOf(existing), sinksOf(existing), nil
}

// leaveLocked removes the participant at addr and returns it with the sinks of those remaining.
// The caller must hold the write lock.
func (r *Registry) leaveLocked(addr user.Address) (user.Participant, []Sink, bool) {
	e, ok := r.byAddr[addr]
	if !ok {
		return user.Participant{}, nil, false
	}

	delete(r.byAddr, addr)
	delete(r.byName, e.participant.Name)

	return e.participant, sinksOf(r.orderedLocked()), true
}

// orderedLocked returns all entries sorted by join order. The caller must hold a lock.
func (r *Registry) orderedLocked() []*entry {
	entries := lo.Values(r.byAddr)
	slices.SortFunc(entries, func(a, b *entry) int {
		switch {
		case a.seq < b.seq:
			return -1
		case a.seq > b.seq:
			return 1
		}
		return 0
	})
	return entries
}

func participantsOf(entries []*entry) []user.Participant {
	return lo.Map(entries, func(e *entry, _ int) user.Participant {
		return e.participant
	})
}

func sinksOf(entries []*entry) []Sink {
	return lo.FilterMap(entries, func(e *entry, _ int) (Sink, bool) {
		return e.sink, e.sink != nil
	})
}
