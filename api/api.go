// Package api implements the thin surface described in spec §4.6:
// validateJob, submitJob, checkJob. All three delegate to processor for
// the actual job semantics and to cache for persistence — this package
// only assembles the call sequence and shapes the externally visible
// JobStatus.
package api

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/sirupsen/logrus"

	"orchestrator/cache"
	"orchestrator/job"
	"orchestrator/processor"
)

var apiLogger = logrus.WithFields(logrus.Fields{"component": "api"})

// defaultNewTicketDuration is the lease SubmitJob holds while inserting a
// new job's cache entry, used when Surface.NewTicketDuration is unset.
const defaultNewTicketDuration = 5 * time.Second

// ErrDuplicateJob is surfaced by SubmitJob when the cache already holds an
// entry under the freshly assigned job key (spec §8 S2).
var ErrDuplicateJob = errors.New("api: duplicate job")

// ErrJobNotFound is surfaced by CheckJob for an absent or expired job
// (spec §4.6 "if absent, return a not-found error").
var ErrJobNotFound = errors.New("api: job not found")

// JobStatus is the externally visible status report returned by all three
// operations (spec §4.6).
type JobStatus struct {
	JobKey        string
	TracStatus    job.TracStatus
	StatusMessage string
	ErrorDetail   string
}

// Surface wires a processor and a cache into the three API operations.
type Surface struct {
	Processor *processor.Deps
	Cache     cache.Cache

	// NewTicketDuration is the lease SubmitJob holds while inserting the
	// new cache entry.
	NewTicketDuration time.Duration
}

// ValidateJob runs newJob + assembleAndValidate only; it never touches the
// cache (spec §4.6 "never inserts into the cache").
func (s *Surface) ValidateJob(ctx context.Context, req job.RunRequest) (JobStatus, error) {
	state, err := processor.NewJob(req)
	if err != nil {
		return JobStatus{}, errors.Errorf("validate job: %w", err)
	}
	if err := s.Processor.AssembleAndValidate(ctx, state); err != nil {
		return JobStatus{}, errors.Errorf("validate job: %w", err)
	}
	return shapeStatus(state), nil
}

// SubmitJob runs validation, saveInitialMetadata, then inserts the job
// into the cache as QUEUED_IN_TRAC under a new ticket (spec §4.6). A
// superseded new-ticket (the job key already exists) is surfaced as
// ErrDuplicateJob (spec §8 S2).
func (s *Surface) SubmitJob(ctx context.Context, req job.RunRequest) (JobStatus, error) {
	state, err := processor.NewJob(req)
	if err != nil {
		return JobStatus{}, errors.Errorf("submit job: %w", err)
	}
	if err := s.Processor.AssembleAndValidate(ctx, state); err != nil {
		return JobStatus{}, errors.Errorf("submit job: %w", err)
	}
	if err := s.Processor.SaveInitialMetadata(ctx, state); err != nil {
		return JobStatus{}, errors.Errorf("submit job: %w", err)
	}

	ticket, err := s.Cache.OpenNewTicket(ctx, state.JobKey, s.ticketDuration())
	if err != nil {
		return JobStatus{}, errors.Errorf("submit job: open new ticket: %w", err)
	}
	if ticket.Superseded {
		return JobStatus{}, errors.Errorf("submit job: job key %q already exists: %w", state.JobKey, ErrDuplicateJob)
	}
	defer func() { _ = s.Cache.CloseTicket(ctx, ticket) }()

	if err := s.Cache.AddEntry(ctx, ticket, state.CacheStatus, state); err != nil {
		if errors.Is(err, job.ErrDuplicateJob) {
			return JobStatus{}, errors.Errorf("submit job: %w", ErrDuplicateJob)
		}
		return JobStatus{}, errors.Errorf("submit job: add entry: %w", err)
	}

	apiLogger.WithFields(logrus.Fields{"jobKey": state.JobKey, "jobType": state.JobType}).Info("job submitted")
	return shapeStatus(state), nil
}

// CheckJob reads the latest cache entry for selector (the job key) and
// shapes its status for external consumption (spec §4.6).
func (s *Surface) CheckJob(ctx context.Context, selector string) (JobStatus, error) {
	entry, err := s.Cache.GetLatestEntry(ctx, selector)
	if err != nil {
		if errors.Is(err, job.ErrCacheMissing) {
			return JobStatus{}, errors.Errorf("check job: %w", ErrJobNotFound)
		}
		return JobStatus{}, errors.Errorf("check job: %w", err)
	}
	if entry.Value == nil {
		return JobStatus{}, errors.Errorf("check job: %w", ErrJobNotFound)
	}
	return shapeStatus(entry.Value), nil
}

func (s *Surface) ticketDuration() time.Duration {
	if s.NewTicketDuration > 0 {
		return s.NewTicketDuration
	}
	return defaultNewTicketDuration
}

// shapeStatus applies spec §4.6's status-shaping rule: a job mid
// result-pipeline (EXECUTOR_* / RESULTS_* cache status) is reported as
// FINISHING with no message even if tracStatus already reads terminal,
// since the terminal value is only externally meaningful once results are
// fully published (spec §4.3 testable property 5).
func shapeStatus(state *job.State) JobStatus {
	if (state.TracStatus == job.StatusSucceeded || state.TracStatus == job.StatusFailed) &&
		state.CacheStatus.IsExecutorOrResultsPhase() {
		return JobStatus{JobKey: state.JobKey, TracStatus: job.StatusFinishing}
	}
	return JobStatus{
		JobKey:        state.JobKey,
		TracStatus:    state.TracStatus,
		StatusMessage: state.StatusMessage,
		ErrorDetail:   state.ErrorDetail,
	}
}
