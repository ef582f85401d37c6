package manager

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"orchestrator/job"
)

// override lets the executor poller record a polled status directly
// instead of going through the cache-status dispatch table (spec §4.4.2
// step 4, op=recordPollStatus).
type override func(ctx context.Context, state *job.State) error

// processJobUpdate is the per-update task described in spec §4.4.2: open a
// ticket, restore credentials, run one processor operation chosen either
// by override or by the current cache status, apply the retry/fail policy
// to its outcome, persist the result, and re-chain immediately if the new
// status still needs attention.
func (m *Manager) processJobUpdate(ctx context.Context, key string, revision int64, op override) {
	entry, err := m.Cache.GetLatestEntry(ctx, key)
	if err != nil {
		managerLogger.WithFields(logrus.Fields{"jobKey": key, "error": err}).Warn("process job update: get latest entry failed")
		return
	}
	if entry.Value == nil {
		return
	}

	lease := m.cacheLeaseFor(entry.CacheStatus)
	ticket, err := m.Cache.OpenTicket(ctx, key, revision, lease)
	if err != nil {
		managerLogger.WithFields(logrus.Fields{"jobKey": key, "error": err}).Warn("process job update: open ticket failed")
		return
	}
	defer func() { _ = m.Cache.CloseTicket(ctx, ticket) }()
	if ticket.Superseded || ticket.Missing {
		return
	}

	state := entry.Value
	if err := state.Restore(m.Auth.RestoreFunc()); err != nil {
		managerLogger.WithFields(logrus.Fields{"jobKey": key, "error": err}).Warn("process job update: restore credentials failed")
		return
	}

	prevStatus := state.CacheStatus
	var opErr error
	if op != nil {
		opErr = op(ctx, state)
	} else {
		opErr = m.dispatch(ctx, state)
	}
	if opErr != nil {
		m.applyRetryPolicy(ctx, state, opErr)
	} else if state.CacheStatus != prevStatus {
		// The retry budget is per cache status (spec §4.4.3 S6): a
		// successful operation that advances the FSM clears whatever
		// retries were spent getting here.
		state.Retries = 0
	}

	newRevision, err := m.Cache.UpdateEntry(ctx, ticket, state.CacheStatus, state)
	if err != nil {
		managerLogger.WithFields(logrus.Fields{"jobKey": key, "error": err}).Warn("process job update: update entry failed")
		return
	}

	if state.CacheStatus == job.CacheRemovalScheduled {
		delay := m.Config.RetentionDelay
		if state.TracStatus == job.StatusFailed {
			delay = m.Config.RetentionDelayOnFailure
		}
		m.scheduleRemovalTask(ctx, key, newRevision, delay)
	}

	if job.StatusForUpdate[state.CacheStatus] {
		m.submit(ctx, func() { m.processJobUpdate(ctx, key, newRevision, nil) })
	}
}

// dispatch picks the processor operation for a job's current cache status
// (spec §4.3 FSM table / §4.4.2 step 4 dispatch table).
func (m *Manager) dispatch(ctx context.Context, state *job.State) error {
	switch state.CacheStatus {
	case job.CacheQueuedInTrac:
		return m.Processor.ScheduleLaunch(ctx, state)
	case job.CacheLaunchScheduled:
		return m.launchJobWithBackoff(ctx, state)
	case job.CacheExecutorComplete, job.CacheExecutorSucceeded:
		return m.Processor.FetchJobResult(ctx, state)
	case job.CacheExecutorFailed, job.CacheResultsReceived, job.CacheResultsInvalid:
		return m.Processor.SaveResultMetadata(ctx, state)
	case job.CacheResultsSaved:
		return m.Processor.CleanUpJob(ctx, state)
	case job.CacheReadyToRemove:
		return m.Processor.ScheduleRemoval(ctx, state)
	default:
		return nil
	}
}

// cacheLeaseFor selects the lease duration for an operation by the status
// it is about to act on: operations that touch the executor use the
// (longer) executor lease, everything else uses the cache lease (spec
// §4.4.1 step 3, §4.4.2 "Lease-duration selector"). CacheSentToExecutor /
// CacheQueuedInExecutor / CacheRunningInExecutor are the statuses the
// executor poller's recordPollStatus override acts on, so they take the
// executor lease too, not just the statuses the cache poller dispatches
// launch/fetch/save operations against.
func (m *Manager) cacheLeaseFor(status job.CacheStatus) time.Duration {
	switch status {
	case job.CacheLaunchScheduled,
		job.CacheSentToExecutor,
		job.CacheQueuedInExecutor,
		job.CacheRunningInExecutor,
		job.CacheExecutorComplete,
		job.CacheExecutorSucceeded:
		return m.Config.ExecutorLease
	default:
		return m.Config.CacheLease
	}
}

// applyRetryPolicy classifies opErr per spec §4.4.3: non-retriable errors
// and retriable errors that have exhausted the retry limit both converge
// on HandleProcessingFailed; retriable errors under the limit just bump
// the retry counter and leave the cache status unchanged so the next
// cache tick retries the same operation.
func (m *Manager) applyRetryPolicy(ctx context.Context, state *job.State, opErr error) {
	if job.Retriable(opErr) && state.Retries < m.Config.RetryLimit {
		state.Retries++
		managerLogger.WithFields(logrus.Fields{
			"jobKey":  state.JobKey,
			"retries": state.Retries,
			"error":   opErr,
		}).Warn("process job update: retriable error, will retry")
		return
	}

	if err := m.Processor.HandleProcessingFailed(ctx, state, opErr); err != nil {
		managerLogger.WithFields(logrus.Fields{"jobKey": state.JobKey, "error": err}).Error("process job update: handle processing failed also failed")
	}
}

// scheduleRemovalTask waits out the retention delay, then removes the
// entry under a fresh ticket — the last step of a job's life in the cache
// (spec §4.4.2 step 7, §4.3 "REMOVAL_SCHEDULED").
func (m *Manager) scheduleRemovalTask(ctx context.Context, key string, revision int64, delay time.Duration) {
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return
		}
		m.removeEntry(ctx, key, revision)
	}()
}

func (m *Manager) removeEntry(ctx context.Context, key string, revision int64) {
	ticket, err := m.Cache.OpenTicket(ctx, key, revision, m.Config.CacheLease)
	if err != nil {
		managerLogger.WithFields(logrus.Fields{"jobKey": key, "error": err}).Warn("remove entry: open ticket failed")
		return
	}
	defer func() { _ = m.Cache.CloseTicket(ctx, ticket) }()
	if ticket.Superseded || ticket.Missing {
		return
	}
	if err := m.Cache.RemoveEntry(ctx, ticket); err != nil {
		managerLogger.WithFields(logrus.Fields{"jobKey": key, "error": err}).Warn("remove entry: failed")
	}
}
