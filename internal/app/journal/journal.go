/*
Package journal records participant join and leave events.

The Journal implements the router's Observer: it turns committed membership changes into
Events and hands them to a Store from a single background goroutine, so the routing path
never waits on the database. When the buffer is full, events are dropped and counted.
*/
package journal

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"relaychat/internal/app/db"
	"relaychat/internal/app/user"
	"relaychat/internal/pkg/logx"
	"relaychat/internal/pkg/randx"
)

const (
	// DefaultBuffer is the event buffer capacity used when New receives a non-positive size.
	DefaultBuffer = 1024

	// DefaultLimit is the number of events Recent returns when no limit is given.
	DefaultLimit = 50

	// MaxLimit caps the number of events Recent returns.
	MaxLimit = 500

	// insertTimeout bounds each attempt to store an event.
	insertTimeout = 5 * time.Second
)

// ErrClosed is returned by Close when the journal was already closed.
var ErrClosed = errors.New("journal closed")

// Kind tells whether an event is a join or a leave.
type Kind string

const (
	KindJoined Kind = "joined"
	KindLeft   Kind = "left"
)

// Event is one committed membership change.
type Event struct {
	ID   uuid.UUID `json:"id"`
	Kind Kind      `json:"kind"`
	Name string    `json:"name"`
	Host string    `json:"host"`
	Port int       `json:"port"`
	At   time.Time `json:"at"`
}

// Store persists events.
type Store interface {
	// Insert stores one event. Inserting an ID twice must fail with a unique violation.
	Insert(ctx context.Context, ev Event) error

	// Recent returns at most limit events, newest first.
	Recent(ctx context.Context, limit int) ([]Event, error)
}

// Journal buffers membership changes and writes them to a Store in order.
type Journal struct {
	store  Store
	events chan Event

	// mu guards closed against a concurrent record.
	mu     sync.Mutex
	closed bool

	// done is closed when the writer goroutine has drained the buffer.
	done chan struct{}

	dropped atomic.Uint64
	now     func() time.Time
	logger  zerolog.Logger
}

// New starts a Journal writing to store with a buffer of the given capacity.
func New(store Store, buffer int) *Journal {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}

	j := &Journal{
		store:  store,
		events: make(chan Event, buffer),
		done:   make(chan struct{}),
		now:    time.Now,
		logger: logx.Component("journal"),
	}

	go j.run()

	return j
}

// ParticipantJoined records a join. It never blocks.
func (j *Journal) ParticipantJoined(p user.Participant) {
	j.record(KindJoined, p)
}

// ParticipantLeft records a leave. It never blocks.
func (j *Journal) ParticipantLeft(p user.Participant) {
	j.record(KindLeft, p)
}

// Dropped returns how many events were discarded because the buffer was full or the journal closed.
func (j *Journal) Dropped() uint64 {
	return j.dropped.Load()
}

// Recent returns the newest events. A limit outside 1..MaxLimit is clamped.
func (j *Journal) Recent(ctx context.Context, limit int) ([]Event, error) {
	switch {
	case limit <= 0:
		limit = DefaultLimit
	case limit > MaxLimit:
		limit = MaxLimit
	}

	events, err := j.store.Recent(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("recent journal events: %w", err)
	}
	return events, nil
}

// Close stops accepting events and waits until the buffered ones are stored or ctx ends.
func (j *Journal) Close(ctx context.Context) error {
	j.mu.Lock()
	if j.closed {
		j.mu.Unlock()
		return ErrClosed
	}
	j.closed = true
	close(j.events)
	j.mu.Unlock()

	select {
	case <-j.done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("journal drain: %w", ctx.Err())
	}
}

func (j *Journal) record(kind Kind, p user.Participant) {
	ev := Event{
		ID:   randx.EventID(),
		Kind: kind,
		Name: p.Name,
		Host: p.Host,
		Port: p.Port,
		At:   j.now().UTC(),
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	if j.closed {
		j.dropped.Add(1)
		return
	}

	select {
	case j.events <- ev:
	default:
		n := j.dropped.Add(1)
		j.logger.Warn().Uint64("dropped_total", n).Str("kind", string(kind)).Msg("Journal buffer full, event dropped.")
	}
}

func (j *Journal) run() {
	defer close(j.done)

	for ev := range j.events {
		if err := j.insert(ev); err != nil {
			j.logger.Error().
				Err(err).
				Str("event_id", ev.ID.String()).
				Str("sqlstate", db.SQLState(err)).
				Msg("Failed to store journal event.")
		}
	}
}

// insert stores ev, retrying once. A unique violation on the retry means the first attempt committed.
func (j *Journal) insert(ev Event) error {
	err := j.insertOnce(ev)
	if err == nil {
		return nil
	}

	j.logger.Warn().Err(err).Str("event_id", ev.ID.String()).Msg("Journal insert failed, retrying once.")

	err = j.insertOnce(ev)
	if err == nil || db.IsUniqueViolation(err) {
		return nil
	}
	return err
}

func (j *Journal) insertOnce(ev Event) error {
	ctx, cancel := context.WithTimeout(context.Background(), insertTimeout)
	defer cancel()

	return j.store.Insert(ctx, ev)
}
