package manager

import (
	"context"

	"github.com/sirupsen/logrus"

	"orchestrator/executor"
	"orchestrator/job"
	"orchestrator/rand"
)

// cacheUpdateTick is poller step 1 (spec §4.4.1): query every cache status
// StatusForUpdate names and submit a processJobUpdate task for each.
func (m *Manager) cacheUpdateTick(ctx context.Context) {
	entries, err := m.Cache.QueryState(ctx, job.Set(job.StatusForUpdate), false)
	if err != nil {
		managerLogger.WithFields(logrus.Fields{"error": err}).Warn("cache update tick: query failed")
		return
	}
	for _, e := range entries {
		e := e
		m.submit(ctx, func() { m.processJobUpdate(ctx, e.Key, e.Revision, nil) })
	}
}

// launchTick is poller step 2 (spec §4.4.1): compute remaining launch
// capacity against MaxRunningJobs and dispatch QUEUED_IN_TRAC jobs up to
// that capacity (spec S5 "capacity cap").
func (m *Manager) launchTick(ctx context.Context) {
	candidates, err := m.Cache.QueryState(ctx, job.Set(job.StatusForLaunch), false)
	if err != nil {
		managerLogger.WithFields(logrus.Fields{"error": err}).Warn("launch tick: query launch candidates failed")
		return
	}
	if len(candidates) == 0 {
		return
	}

	running, err := m.Cache.QueryState(ctx, job.Set(job.StatusForRunningJobs), true)
	if err != nil {
		managerLogger.WithFields(logrus.Fields{"error": err}).Warn("launch tick: query running jobs failed")
		return
	}

	capacity := m.Config.MaxRunningJobs - len(running)
	if capacity <= 0 {
		return
	}
	if capacity > len(candidates) {
		capacity = len(candidates)
	}

	// A small jitter on which candidates get picked first avoids the same
	// replica always winning ties when several orchestrator instances
	// observe the same queue at once.
	start := 0
	if len(candidates) > 1 {
		start = rand.RandomIntBetweenInclusive(0, len(candidates)-1, true, true)
	}

	dispatched := 0
	for i := 0; i < len(candidates) && dispatched < capacity; i++ {
		e := candidates[(start+i)%len(candidates)]
		m.submit(ctx, func() { m.processJobUpdate(ctx, e.Key, e.Revision, nil) })
		dispatched++
	}

	m.statsMu.Lock()
	m.stats.LaunchesQueued += int64(dispatched)
	m.statsMu.Unlock()
}

// executorTick is the executor poller (spec §4.4.1): batch-poll every job
// with live executor state, and for each one whose status changed, submit
// a processJobUpdate task that records the new status directly instead of
// going through the cache-status dispatch table.
func (m *Manager) executorTick(ctx context.Context) {
	running, err := m.Cache.QueryState(ctx, job.Set(job.StatusForRunningJobs), true)
	if err != nil {
		managerLogger.WithFields(logrus.Fields{"error": err}).Warn("executor tick: query running jobs failed")
		return
	}

	type candidate struct {
		key      string
		revision int64
		status   job.ExecutorStatus
	}
	candidates := make([]candidate, 0, len(running))
	reqs := make([]executor.PollRequest, 0, len(running))
	for _, e := range running {
		if e.Value == nil || len(e.Value.ExecutorState) == 0 {
			continue
		}
		candidates = append(candidates, candidate{key: e.Key, revision: e.Revision, status: e.Value.ExecutorStatus})
		reqs = append(reqs, executor.PollRequest{JobKey: e.Key, State: e.Value.ExecutorState})
	}
	if len(reqs) == 0 {
		return
	}

	infos, err := m.Processor.Executor.PollBatches(ctx, reqs)
	if err != nil {
		managerLogger.WithFields(logrus.Fields{"error": err}).Warn("executor tick: poll batches failed")
		return
	}
	if len(infos) != len(candidates) {
		managerLogger.WithFields(logrus.Fields{"expected": len(candidates), "got": len(infos)}).Warn("executor tick: poll batches returned mismatched count")
		return
	}

	for i, info := range infos {
		c := candidates[i]
		if job.ExecutorStatus(info.Status) == c.status {
			continue
		}
		info := info
		m.submit(ctx, func() {
			m.processJobUpdate(ctx, c.key, c.revision, func(ctx context.Context, state *job.State) error {
				return m.Processor.RecordJobStatus(ctx, state, info)
			})
		})
	}
}
