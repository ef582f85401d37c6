package manager

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"orchestrator/auth"
	"orchestrator/cache"
	"orchestrator/executor"
	"orchestrator/job"
	"orchestrator/metadata"
	"orchestrator/processor"
)

// stubMetadata is a minimal metadata.Service test double shared by every
// manager test: it hands out sequential IDs and records every call it
// receives, without ever failing.
type stubMetadata struct {
	tagCalls   []metadata.TagWrite
	batchCalls []metadata.WriteBatchRequest
}

func (s *stubMetadata) ReadBatch(_ context.Context, reqs []metadata.ReadRequest) ([]job.ObjectHeader, error) {
	out := make([]job.ObjectHeader, len(reqs))
	for i, r := range reqs {
		out[i] = job.ObjectHeader{ObjectType: "DATA", ObjectID: r.Selector, ObjectVersion: 1}
	}
	return out, nil
}

func (s *stubMetadata) PreallocateIDBatch(_ context.Context, objectTypes []string) ([]string, error) {
	out := make([]string, len(objectTypes))
	for i := range objectTypes {
		out[i] = "result-id"
	}
	return out, nil
}

func (s *stubMetadata) CreateObject(_ context.Context, w metadata.ObjectWrite) (job.ObjectHeader, error) {
	return job.ObjectHeader{ObjectType: "JOB", ObjectID: "job-1", ObjectVersion: 1}, nil
}

func (s *stubMetadata) UpdateTag(_ context.Context, w metadata.TagWrite) error {
	s.tagCalls = append(s.tagCalls, w)
	return nil
}

func (s *stubMetadata) WriteBatch(_ context.Context, b metadata.WriteBatchRequest) error {
	s.batchCalls = append(s.batchCalls, b)
	return nil
}

func newTestManager(t *testing.T, c cache.Cache, exec executor.Executor) (*Manager, *stubMetadata) {
	t.Helper()
	meta := &stubMetadata{}
	deps := processor.New(exec, meta)
	issuer, err := auth.NewIssuer("0123456789abcdef", "abcdef0123456789", time.Hour)
	require.NoError(t, err)

	m := New(c, deps, issuer, Config{
		CachePollInterval:    20 * time.Millisecond,
		ExecutorPollInterval: 20 * time.Millisecond,
		CacheLease:           time.Second,
		ExecutorLease:        time.Second,
		MaxRunningJobs:       6,
		StartupDelay:         time.Millisecond,
		RetentionDelay:       20 * time.Millisecond,
		RetryLimit:           2,
	})
	return m, meta
}

func openAndAdd(t *testing.T, c cache.Cache, key string, status job.CacheStatus, state *job.State) {
	t.Helper()
	ticket, err := c.OpenNewTicket(context.Background(), key, time.Second)
	require.NoError(t, err)
	require.NoError(t, c.AddEntry(context.Background(), ticket, status, state))
	require.NoError(t, c.CloseTicket(context.Background(), ticket))
}

// TestDispatch_QueuedInTrac exercises the self-re-chaining behavior: a job
// queued in TRAC should cascade straight through LAUNCH_SCHEDULED to
// SENT_TO_EXECUTOR in one call chain, since every intermediate status stays
// in StatusForUpdate and the fake executor never fails.
func TestDispatch_QueuedInTrac(t *testing.T) {
	c := cache.NewMemCache()
	m, _ := newTestManager(t, c, executor.NewFake())

	state := &job.State{JobKey: "job-1", TracStatus: job.StatusQueued, CacheStatus: job.CacheQueuedInTrac}
	openAndAdd(t, c, "job-1", job.CacheQueuedInTrac, state)

	m.processJobUpdate(context.Background(), "job-1", 0, nil)
	m.wg.Wait()

	entry, err := c.GetLatestEntry(context.Background(), "job-1")
	require.NoError(t, err)
	assert.Equal(t, job.CacheSentToExecutor, entry.CacheStatus)
	assert.NotEmpty(t, entry.Value.ExecutorState)
}

func TestDispatch_LaunchSchedule_Succeeds(t *testing.T) {
	c := cache.NewMemCache()
	m, _ := newTestManager(t, c, executor.NewFake())

	state := &job.State{JobKey: "job-2", TracStatus: job.StatusPending, CacheStatus: job.CacheLaunchScheduled}
	openAndAdd(t, c, "job-2", job.CacheLaunchScheduled, state)

	m.processJobUpdate(context.Background(), "job-2", 0, nil)

	entry, err := c.GetLatestEntry(context.Background(), "job-2")
	require.NoError(t, err)
	assert.Equal(t, job.CacheSentToExecutor, entry.CacheStatus)
	assert.NotEmpty(t, entry.Value.ExecutorState)
}

func TestApplyRetryPolicy_NonRetriableGoesToProcessingFailed(t *testing.T) {
	c := cache.NewMemCache()
	m, meta := newTestManager(t, c, executor.NewFake())

	state := &job.State{JobID: "job-3", JobKey: "job-3", TracStatus: job.StatusValidated, CacheStatus: job.CacheQueuedInTrac}
	ctx := context.Background()
	m.applyRetryPolicy(ctx, state, job.ErrConsistencyValidation)

	assert.Equal(t, job.StatusFailed, state.TracStatus)
	assert.Equal(t, job.CacheReadyToRemove, state.CacheStatus)
	require.Len(t, meta.batchCalls, 1)
}

func TestApplyRetryPolicy_RetriableUnderLimitIncrementsRetries(t *testing.T) {
	c := cache.NewMemCache()
	m, _ := newTestManager(t, c, executor.NewFake())

	state := &job.State{JobKey: "job-4", CacheStatus: job.CacheLaunchScheduled, Retries: 0}
	m.applyRetryPolicy(context.Background(), state, job.ErrExecutorUnavailable)

	assert.Equal(t, 1, state.Retries)
	assert.Equal(t, job.CacheLaunchScheduled, state.CacheStatus)
}

func TestApplyRetryPolicy_RetriableAtLimitFails(t *testing.T) {
	c := cache.NewMemCache()
	m, _ := newTestManager(t, c, executor.NewFake())

	state := &job.State{JobID: "job-5", JobKey: "job-5", CacheStatus: job.CacheLaunchScheduled, Retries: 2}
	m.applyRetryPolicy(context.Background(), state, job.ErrExecutorUnavailable)

	assert.Equal(t, job.StatusFailed, state.TracStatus)
	assert.Equal(t, job.CacheReadyToRemove, state.CacheStatus)
}

func TestCacheLeaseFor(t *testing.T) {
	m := &Manager{Config: Config{CacheLease: 10 * time.Second, ExecutorLease: 120 * time.Second}}
	assert.Equal(t, 120*time.Second, m.cacheLeaseFor(job.CacheLaunchScheduled))
	assert.Equal(t, 120*time.Second, m.cacheLeaseFor(job.CacheSentToExecutor))
	assert.Equal(t, 120*time.Second, m.cacheLeaseFor(job.CacheQueuedInExecutor))
	assert.Equal(t, 120*time.Second, m.cacheLeaseFor(job.CacheRunningInExecutor))
	assert.Equal(t, 120*time.Second, m.cacheLeaseFor(job.CacheExecutorComplete))
	assert.Equal(t, 10*time.Second, m.cacheLeaseFor(job.CacheQueuedInTrac))
	assert.Equal(t, 10*time.Second, m.cacheLeaseFor(job.CacheResultsSaved))
}

// TestProcessJobUpdate_RetriesResetOnAdvance covers S6: retries spent
// getting a job into SENT_TO_EXECUTOR must not carry over as a smaller
// budget for a later transient error encountered further down the FSM.
func TestProcessJobUpdate_RetriesResetOnAdvance(t *testing.T) {
	c := cache.NewMemCache()
	m, _ := newTestManager(t, c, executor.NewFake())

	state := &job.State{JobID: "job-6", JobKey: "job-6", CacheStatus: job.CacheLaunchScheduled, Retries: 2}
	openAndAdd(t, c, "job-6", job.CacheLaunchScheduled, state)

	m.processJobUpdate(context.Background(), "job-6", 0, func(_ context.Context, s *job.State) error {
		s.CacheStatus = job.CacheSentToExecutor
		return nil
	})

	entry, err := c.GetLatestEntry(context.Background(), "job-6")
	require.NoError(t, err)
	assert.Equal(t, job.CacheSentToExecutor, entry.CacheStatus)
	assert.Equal(t, 0, entry.Value.Retries)
}

func TestLaunchCapacityCap(t *testing.T) {
	c := cache.NewMemCache()
	m, _ := newTestManager(t, c, executor.NewFake())
	m.Config.MaxRunningJobs = 2

	for i, key := range []string{"a", "b", "c"} {
		state := &job.State{JobKey: key, CacheStatus: job.CacheQueuedInTrac}
		openAndAdd(t, c, key, job.CacheQueuedInTrac, state)
		_ = i
	}

	ctx := context.Background()
	m.launchTick(ctx)
	m.wg.Wait()

	launched := 0
	for _, key := range []string{"a", "b", "c"} {
		entry, err := c.GetLatestEntry(ctx, key)
		require.NoError(t, err)
		// A launched job re-chains past LAUNCH_SCHEDULED to SENT_TO_EXECUTOR
		// before wg.Wait returns; the job left behind stays QUEUED_IN_TRAC.
		if entry.CacheStatus != job.CacheQueuedInTrac {
			launched++
		}
	}
	assert.Equal(t, 2, launched)
}

func TestRunStopsOnContextCancel(t *testing.T) {
	c := cache.NewMemCache()
	m, _ := newTestManager(t, c, executor.NewFake())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		m.Run(ctx)
		close(done)
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after context cancellation")
	}
}
