// Package cache implements the versioned, ticketed cache contract from
// spec §4.1: at-most-one-writer-per-key semantics, supersession detection,
// and status-indexed queries. Backends (memory, Redis, SQL) all satisfy
// the same Cache interface.
package cache

import (
	"context"
	"time"

	"orchestrator/job"
)

// Ticket is a short-lived, exclusive lease over a cache key at a given
// revision (spec §3 "Ticket").
type Ticket struct {
	Key        string
	Revision   int64
	GrantTime  time.Time
	Expiry     time.Time
	Superseded bool
	Missing    bool
}

// Valid reports whether the ticket is still honored: unexpired and not
// superseded (spec §3 invariants).
func (t *Ticket) Valid(now time.Time) bool {
	return t != nil && !t.Superseded && !t.Missing && now.Before(t.Expiry)
}

// Entry is one versioned cache record (spec §3 "Cache entry").
type Entry struct {
	Key         string
	Revision    int64
	CacheStatus job.CacheStatus
	Value       *job.State
}

// Cache is the contract every backend (memory, Redis, SQL) implements;
// see spec §4.1.
type Cache interface {
	OpenNewTicket(ctx context.Context, key string, duration time.Duration) (*Ticket, error)
	OpenTicket(ctx context.Context, key string, revision int64, duration time.Duration) (*Ticket, error)
	CloseTicket(ctx context.Context, ticket *Ticket) error

	AddEntry(ctx context.Context, ticket *Ticket, status job.CacheStatus, value *job.State) error
	GetEntry(ctx context.Context, ticket *Ticket) (*Entry, error)
	GetLatestEntry(ctx context.Context, key string) (*Entry, error)
	UpdateEntry(ctx context.Context, ticket *Ticket, status job.CacheStatus, value *job.State) (int64, error)
	RemoveEntry(ctx context.Context, ticket *Ticket) error

	QueryState(ctx context.Context, statuses []job.CacheStatus, includeActiveTickets bool) ([]*Entry, error)
}

// WithTicket runs fn under a ticket acquired via open, guaranteeing the
// ticket is released on every exit path (spec §3 "scoped acquisition").
func WithTicket(ctx context.Context, c Cache, open func(context.Context) (*Ticket, error), fn func(*Ticket) error) error {
	ticket, err := open(ctx)
	if err != nil {
		return err
	}
	defer func() {
		_ = c.CloseTicket(ctx, ticket)
	}()
	return fn(ticket)
}
