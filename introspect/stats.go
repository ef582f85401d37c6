// Package introspect implements the debug-only admin surface operators use
// to inspect cache occupancy and replica liveness. It carries no
// job-mutating operation: everything here reads the cache, never writes it.
package introspect

import (
	"context"
	"sort"

	"github.com/cockroachdb/errors"

	"orchestrator/cache"
	"orchestrator/job"
)

// Snapshot reports how many cache entries sit in each CacheStatus at the
// moment it was taken.
type Snapshot struct {
	Counts map[job.CacheStatus]int `json:"counts"`
	Total  int                     `json:"total"`
}

// TakeSnapshot queries every known CacheStatus and tallies occupancy.
func TakeSnapshot(ctx context.Context, c cache.Cache) (Snapshot, error) {
	entries, err := c.QueryState(ctx, job.AllCacheStatuses, true)
	if err != nil {
		return Snapshot{}, errors.Errorf("introspect: query cache state: %w", err)
	}

	snap := Snapshot{Counts: make(map[job.CacheStatus]int, len(job.AllCacheStatuses))}
	for _, status := range job.AllCacheStatuses {
		snap.Counts[status] = 0
	}
	for _, e := range entries {
		snap.Counts[e.CacheStatus]++
		snap.Total++
	}
	return snap, nil
}

// JobTags fetches the tag map held against a single job key, for the admin
// TCP protocol's job-tag lookup operation.
func JobTags(ctx context.Context, c cache.Cache, jobKey string) (map[string]string, error) {
	entry, err := c.GetLatestEntry(ctx, jobKey)
	if err != nil {
		return nil, errors.Errorf("introspect: get latest entry for %q: %w", jobKey, err)
	}
	if entry.Value == nil {
		return nil, errors.Errorf("introspect: job %q has no recorded state", jobKey)
	}
	return entry.Value.Tags, nil
}

// sortedStatuses returns the statuses present in counts sorted by name (a
// stable display order, not the FSM order of job.AllCacheStatuses); it is
// safe to call on a map with missing entries (e.g. a beacon payload
// round-tripped through JSON).
func sortedStatuses(counts map[job.CacheStatus]int) []job.CacheStatus {
	out := make([]job.CacheStatus, 0, len(counts))
	for s := range counts {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
