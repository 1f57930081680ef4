/*
Package journal records participant join and leave events.

This file implements the Store on PostgreSQL through a pgx connection pool. Events go to
the participant_events table created by the db migrations.
*/
package journal

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	insertEventSQL = `
INSERT INTO participant_events (id, kind, name, host, port, occurred_at)
VALUES ($1, $2, $3, $4, $5, $6)`

	recentEventsSQL = `
SELECT id, kind, name, host, port, occurred_at
FROM participant_events
ORDER BY occurred_at DESC, id
LIMIT $1`
)

// PostgresStore keeps events in the participant_events table.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore returns a Store backed by pool. The schema is created by db.NewPool.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Insert implements Store.
func (s *PostgresStore) Insert(ctx context.Context, ev Event) error {
	if _, err := s.pool.Exec(ctx, insertEventSQL, ev.ID, string(ev.Kind), ev.Name, ev.Host, ev.Port, ev.At); err != nil {
		return fmt.Errorf("insert participant event: %w", err)
	}
	return nil
}

// Recent implements Store.
func (s *PostgresStore) Recent(ctx context.Context, limit int) ([]Event, error) {
	rows, err := s.pool.Query(ctx, recentEventsSQL, limit)
	if err != nil {
		return nil, fmt.Errorf("query participant events: %w", err)
	}

	events, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Event, error) {
		var (
			ev   Event
			kind string
		)
		if err := row.Scan(&ev.ID, &kind, &ev.Name, &ev.Host, &ev.Port, &ev.At); err != nil {
			return Event{}, err
		}
		ev.Kind = Kind(kind)
		ev.At = ev.At.UTC()
		return ev, nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan participant events: %w", err)
	}

	return events, nil
}
