package cache

import (
	"context"
	"testing"
	"time"

	"orchestrator/job"
)

func TestMemCache_OpenNewTicket_DuplicateIsSuperseded(t *testing.T) {
	ctx := context.Background()
	c := NewMemCache()

	t1, err := c.OpenNewTicket(ctx, "job-1", time.Second)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if t1.Superseded {
		t.Fatalf("first ticket should not be superseded")
	}

	if err := c.AddEntry(ctx, t1, job.CacheQueuedInTrac, &job.State{JobKey: "job-1"}); err != nil {
		t.Fatalf("AddEntry: %v", err)
	}

	t2, err := c.OpenNewTicket(ctx, "job-1", time.Second)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !t2.Superseded {
		t.Fatalf("second openNewTicket on existing key must be superseded")
	}
}

func TestMemCache_UpdateEntry_IncrementsRevision(t *testing.T) {
	ctx := context.Background()
	c := NewMemCache()

	ticket, _ := c.OpenNewTicket(ctx, "job-2", time.Second)
	if err := c.AddEntry(ctx, ticket, job.CacheQueuedInTrac, &job.State{JobKey: "job-2"}); err != nil {
		t.Fatalf("AddEntry: %v", err)
	}
	if err := c.CloseTicket(ctx, ticket); err != nil {
		t.Fatalf("CloseTicket: %v", err)
	}

	ticket2, err := c.OpenTicket(ctx, "job-2", 0, time.Second)
	if err != nil || ticket2.Superseded {
		t.Fatalf("expected fresh ticket at revision 0, got %+v err=%v", ticket2, err)
	}

	rev, err := c.UpdateEntry(ctx, ticket2, job.CacheLaunchScheduled, &job.State{JobKey: "job-2"})
	if err != nil {
		t.Fatalf("UpdateEntry: %v", err)
	}
	if rev != 1 {
		t.Fatalf("expected revision 1, got %d", rev)
	}
}

func TestMemCache_ConcurrentOpenTicket_OneWinner(t *testing.T) {
	ctx := context.Background()
	c := NewMemCache()

	ticket, _ := c.OpenNewTicket(ctx, "job-3", time.Second)
	_ = c.AddEntry(ctx, ticket, job.CacheQueuedInTrac, &job.State{JobKey: "job-3"})
	_ = c.CloseTicket(ctx, ticket)

	results := make(chan *Ticket, 2)
	for i := 0; i < 2; i++ {
		go func() {
			tk, err := c.OpenTicket(ctx, "job-3", 0, time.Second)
			if err != nil {
				t.Error(err)
				return
			}
			results <- tk
		}()
	}

	a := <-results
	b := <-results

	if a.Superseded == b.Superseded {
		t.Fatalf("expected exactly one winner, got a.Superseded=%v b.Superseded=%v", a.Superseded, b.Superseded)
	}
}

func TestMemCache_QueryState_ExcludesActiveTicketsByDefault(t *testing.T) {
	ctx := context.Background()
	c := NewMemCache()

	ticket, _ := c.OpenNewTicket(ctx, "job-4", time.Minute)
	_ = c.AddEntry(ctx, ticket, job.CacheQueuedInTrac, &job.State{JobKey: "job-4"})

	entries, err := c.QueryState(ctx, []job.CacheStatus{job.CacheQueuedInTrac}, false)
	if err != nil {
		t.Fatalf("QueryState: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("expected 0 entries while ticket is active, got %d", len(entries))
	}

	entries, err = c.QueryState(ctx, []job.CacheStatus{job.CacheQueuedInTrac}, true)
	if err != nil {
		t.Fatalf("QueryState: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry with includeActiveTickets=true, got %d", len(entries))
	}
}
