package processor

import (
	"context"

	"github.com/cockroachdb/errors"

	"orchestrator/executor"
	"orchestrator/job"
	"orchestrator/metadata"
)

// RecordJobStatus maps an executor poll result onto the TRAC status codes
// (spec §6 "Executor -> TRAC status mapping") and advances cacheStatus.
// QUEUED_IN_EXECUTOR and RUNNING_IN_EXECUTOR transitions emit a metadata tag
// update so external observers can poll status; the terminal states do not
// — metadata is only updated once the result pipeline completes (spec §4.3,
// Open Question resolution in SPEC_FULL.md).
func (d *Deps) RecordJobStatus(ctx context.Context, state *job.State, info executor.JobInfo) error {
	state.ExecutorStatus = job.ExecutorStatus(info.Status)

	switch info.Status {
	case executor.StatusQueued:
		state.CacheStatus = job.CacheQueuedInExecutor
		state.TracStatus = job.StatusSubmitted
		return d.tagStatus(ctx, state)

	case executor.StatusRunning:
		state.CacheStatus = job.CacheRunningInExecutor
		state.TracStatus = job.StatusRunning
		return d.tagStatus(ctx, state)

	case executor.StatusComplete:
		state.CacheStatus = job.CacheExecutorComplete
		state.TracStatus = job.StatusFinishing
		return nil

	case executor.StatusSucceeded:
		state.CacheStatus = job.CacheExecutorSucceeded
		state.TracStatus = job.StatusFinishing
		return nil

	case executor.StatusFailed:
		state.CacheStatus = job.CacheExecutorFailed
		state.TracStatus = job.StatusFailed
		state.StatusMessage = info.StatusMessage
		state.ErrorDetail = info.ErrorDetail
		return nil

	case executor.StatusCancelled:
		// No distinct cache status exists for a cancelled batch (spec §9
		// Open Question — the trigger is left to the executor plugin); it
		// is bucketed with the other terminal-executor-result statuses so
		// the same saveResultMetadata dispatch path picks it up.
		state.CacheStatus = job.CacheExecutorFailed
		state.TracStatus = job.StatusCancelled
		state.StatusMessage = info.StatusMessage
		return nil

	default: // STATUS_UNKNOWN
		state.CacheStatus = job.CacheExecutorFailed
		state.TracStatus = job.StatusFailed
		state.StatusMessage = "Job status could not be determined"
		return nil
	}
}

func (d *Deps) tagStatus(ctx context.Context, state *job.State) error {
	err := d.Metadata.UpdateTag(ctx, metadata.TagWrite{
		ObjectID: state.JobID,
		Attrs:    map[string]string{"status": string(state.TracStatus)},
	})
	if err != nil {
		return errors.Errorf("record job status: update tag: %w", err)
	}
	return nil
}
