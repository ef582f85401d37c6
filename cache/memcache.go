package cache

import (
	"context"
	"sync"
	"time"

	"orchestrator/job"
)

// record is the per-key bookkeeping: current entry plus at most one
// outstanding ticket (spec §3 "A key has at most one ticket held at a
// time").
type record struct {
	mu       sync.Mutex
	revision int64
	status   job.CacheStatus
	value    *job.State
	exists   bool
	ticket   *Ticket
}

// MemCache is an in-memory Cache backend, the default for a single
// orchestrator replica or for tests. It is the simplest legal
// implementation of the contract in spec §4.1: a per-key mutex stands in
// for compare-and-swap on (key, revision).
type MemCache struct {
	mu      sync.RWMutex
	records map[string]*record
}

// NewMemCache builds an empty in-memory cache.
func NewMemCache() *MemCache {
	return &MemCache{records: make(map[string]*record)}
}

func (m *MemCache) getOrCreate(key string) *record {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.records[key]
	if !ok {
		r = &record{}
		m.records[key] = r
	}
	return r
}

func (m *MemCache) get(key string) (*record, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.records[key]
	return r, ok
}

func (m *MemCache) OpenNewTicket(_ context.Context, key string, duration time.Duration) (*Ticket, error) {
	r := m.getOrCreate(key)
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	if r.exists {
		return &Ticket{Key: key, Superseded: true}, nil
	}
	t := &Ticket{Key: key, Revision: 0, GrantTime: now, Expiry: now.Add(duration)}
	r.ticket = t
	return t, nil
}

func (m *MemCache) OpenTicket(_ context.Context, key string, revision int64, duration time.Duration) (*Ticket, error) {
	r, ok := m.get(key)
	if !ok {
		return &Ticket{Key: key, Missing: true}, nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.exists {
		return &Ticket{Key: key, Missing: true}, nil
	}
	now := time.Now()
	if r.revision != revision {
		return &Ticket{Key: key, Revision: revision, Superseded: true}, nil
	}
	if r.ticket != nil && r.ticket.Valid(now) {
		return &Ticket{Key: key, Revision: revision, Superseded: true}, nil
	}
	t := &Ticket{Key: key, Revision: revision, GrantTime: now, Expiry: now.Add(duration)}
	r.ticket = t
	return t, nil
}

func (m *MemCache) CloseTicket(_ context.Context, ticket *Ticket) error {
	if ticket == nil {
		return nil
	}
	r, ok := m.get(ticket.Key)
	if !ok {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.ticket == ticket {
		r.ticket = nil
	}
	return nil
}

func (m *MemCache) checkTicket(r *record, ticket *Ticket) error {
	if ticket == nil || ticket.Missing || ticket.Superseded {
		return job.ErrTicketSuperseded
	}
	if r.ticket != ticket {
		return job.ErrTicketSuperseded
	}
	if !time.Now().Before(ticket.Expiry) {
		return job.ErrTicketExpired
	}
	return nil
}

func (m *MemCache) AddEntry(_ context.Context, ticket *Ticket, status job.CacheStatus, value *job.State) error {
	r := m.getOrCreate(ticket.Key)
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := m.checkTicket(r, ticket); err != nil {
		return err
	}
	if r.exists {
		return job.ErrDuplicateJob
	}
	r.exists = true
	r.revision = 0
	r.status = status
	r.value = value
	return nil
}

func (m *MemCache) GetEntry(_ context.Context, ticket *Ticket) (*Entry, error) {
	r, ok := m.get(ticket.Key)
	if !ok || !r.exists {
		return nil, job.ErrCacheMissing
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return &Entry{Key: ticket.Key, Revision: r.revision, CacheStatus: r.status, Value: r.value}, nil
}

func (m *MemCache) GetLatestEntry(_ context.Context, key string) (*Entry, error) {
	r, ok := m.get(key)
	if !ok {
		return nil, job.ErrCacheMissing
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.exists {
		return nil, job.ErrCacheMissing
	}
	return &Entry{Key: key, Revision: r.revision, CacheStatus: r.status, Value: r.value}, nil
}

func (m *MemCache) UpdateEntry(_ context.Context, ticket *Ticket, status job.CacheStatus, value *job.State) (int64, error) {
	r := m.getOrCreate(ticket.Key)
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := m.checkTicket(r, ticket); err != nil {
		return 0, err
	}
	if ticket.Revision != r.revision {
		return 0, job.ErrTicketSuperseded
	}
	r.revision++
	r.status = status
	r.value = value
	ticket.Revision = r.revision
	return r.revision, nil
}

func (m *MemCache) RemoveEntry(_ context.Context, ticket *Ticket) error {
	r := m.getOrCreate(ticket.Key)
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := m.checkTicket(r, ticket); err != nil {
		return err
	}
	r.exists = false
	r.value = nil

	m.mu.Lock()
	delete(m.records, ticket.Key)
	m.mu.Unlock()
	return nil
}

func (m *MemCache) QueryState(_ context.Context, statuses []job.CacheStatus, includeActiveTickets bool) ([]*Entry, error) {
	want := make(map[job.CacheStatus]bool, len(statuses))
	for _, s := range statuses {
		want[s] = true
	}

	m.mu.RLock()
	keys := make([]string, 0, len(m.records))
	for k := range m.records {
		keys = append(keys, k)
	}
	m.mu.RUnlock()

	out := make([]*Entry, 0)
	for _, k := range keys {
		r, ok := m.get(k)
		if !ok {
			continue
		}
		r.mu.Lock()
		if r.exists && want[r.status] {
			if includeActiveTickets || r.ticket == nil || !r.ticket.Valid(time.Now()) {
				out = append(out, &Entry{Key: k, Revision: r.revision, CacheStatus: r.status, Value: r.value})
			}
		}
		r.mu.Unlock()
	}
	return out, nil
}
