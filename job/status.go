package job

// TracStatus is the externally visible lifecycle code of a job.
type TracStatus string

const (
	StatusPreparing TracStatus = "PREPARING"
	StatusValidated TracStatus = "VALIDATED"
	StatusQueued    TracStatus = "QUEUED"
	StatusPending   TracStatus = "PENDING"
	StatusSubmitted TracStatus = "SUBMITTED"
	StatusRunning   TracStatus = "RUNNING"
	StatusFinishing TracStatus = "FINISHING"
	StatusSucceeded TracStatus = "SUCCEEDED"
	StatusFailed    TracStatus = "FAILED"
	StatusCancelled TracStatus = "CANCELLED"
)

// IsTerminal reports whether a TracStatus never regresses once reached.
func (s TracStatus) IsTerminal() bool {
	switch s {
	case StatusSucceeded, StatusFailed, StatusCancelled:
		return true
	default:
		return false
	}
}

// CacheStatus is the internal sub-state driving the job FSM.
type CacheStatus string

const (
	CacheQueuedInTrac      CacheStatus = "QUEUED_IN_TRAC"
	CacheLaunchScheduled   CacheStatus = "LAUNCH_SCHEDULED"
	CacheSentToExecutor    CacheStatus = "SENT_TO_EXECUTOR"
	CacheQueuedInExecutor  CacheStatus = "QUEUED_IN_EXECUTOR"
	CacheRunningInExecutor CacheStatus = "RUNNING_IN_EXECUTOR"
	CacheExecutorComplete  CacheStatus = "EXECUTOR_COMPLETE"
	CacheExecutorSucceeded CacheStatus = "EXECUTOR_SUCCEEDED"
	CacheExecutorFailed    CacheStatus = "EXECUTOR_FAILED"
	CacheResultsReceived   CacheStatus = "RESULTS_RECEIVED"
	CacheResultsInvalid    CacheStatus = "RESULTS_INVALID"
	CacheResultsSaved      CacheStatus = "RESULTS_SAVED"
	CacheProcessingFailed  CacheStatus = "PROCESSING_FAILED"
	CacheReadyToRemove     CacheStatus = "READY_TO_REMOVE"
	CacheRemovalScheduled  CacheStatus = "REMOVAL_SCHEDULED"
)

// AllCacheStatuses lists every CacheStatus value, in FSM order. Used by the
// introspection stats snapshot to report occupancy broken down per status,
// including statuses with a zero count.
var AllCacheStatuses = []CacheStatus{
	CacheQueuedInTrac,
	CacheLaunchScheduled,
	CacheSentToExecutor,
	CacheQueuedInExecutor,
	CacheRunningInExecutor,
	CacheExecutorComplete,
	CacheExecutorSucceeded,
	CacheExecutorFailed,
	CacheResultsReceived,
	CacheResultsInvalid,
	CacheResultsSaved,
	CacheProcessingFailed,
	CacheReadyToRemove,
	CacheRemovalScheduled,
}

// StatusForUpdate is the set of cache statuses the cache poller treats as
// "needs a processJobUpdate task" (spec §4.4.1, §4.4.2 step 8).
var StatusForUpdate = map[CacheStatus]bool{
	CacheLaunchScheduled:  true,
	CacheExecutorComplete: true,
	CacheExecutorSucceeded: true,
	CacheExecutorFailed:    true,
	CacheResultsReceived:   true,
	CacheResultsInvalid:    true,
	CacheResultsSaved:      true,
	CacheReadyToRemove:     true,
}

// StatusForLaunch is queried by the cache poller to find launch candidates.
var StatusForLaunch = map[CacheStatus]bool{
	CacheQueuedInTrac: true,
}

// StatusForRunningJobs is queried by both pollers: the cache poller to
// compute launch capacity, the executor poller to find jobs to poll.
var StatusForRunningJobs = map[CacheStatus]bool{
	CacheLaunchScheduled:   true,
	CacheSentToExecutor:    true,
	CacheQueuedInExecutor:  true,
	CacheRunningInExecutor: true,
}

// IsExecutorOrResultsPhase reports whether the job is mid result-pipeline;
// used by the status-shaping rule in spec §4.6.
func (s CacheStatus) IsExecutorOrResultsPhase() bool {
	str := string(s)
	return len(str) >= 9 && (str[:9] == "EXECUTOR_" || str[:8] == "RESULTS_")
}

// Set returns the keys of a status-set map, for queryState calls.
func Set(m map[CacheStatus]bool) []CacheStatus {
	out := make([]CacheStatus, 0, len(m))
	for s := range m {
		out = append(out, s)
	}
	return out
}
