package processor

import (
	"context"
	"fmt"

	"github.com/cockroachdb/errors"

	"orchestrator/executor"
	"orchestrator/job"
)

// FetchJobResult reads job_result_<jobKey>.json from the result volume and
// validates it (spec §4.3). A failure to reach the executor is a Go error
// (retriable, per spec §7); a malformed or invalid result is not — it is
// recorded as RESULTS_INVALID with a failed tracStatus and the function
// returns nil, matching the boundary behavior in spec §8 ("fetchJobResult
// with a malformed job_result_*.json => RESULTS_INVALID => FAILED with
// first line of parser error").
func (d *Deps) FetchJobResult(ctx context.Context, state *job.State) error {
	fileName := fmt.Sprintf("job_result_%s.json", state.JobKey)
	raw, err := d.Executor.ReadFile(ctx, state.JobKey, state.ExecutorState, volumeName(executor.VolumeResult), fileName)
	if err != nil {
		return wrapExecutor(err, "read job result")
	}

	var result job.Result
	if err := d.Filer.Decode(raw, &result); err != nil {
		markResultInvalid(state, err)
		return nil
	}

	if err := validateResult(&result); err != nil {
		markResultInvalid(state, err)
		return nil
	}

	state.Result = &result
	state.CacheStatus = job.CacheResultsReceived
	state.TracStatus = job.StatusSucceeded
	return nil
}

func markResultInvalid(state *job.State, err error) {
	state.CacheStatus = job.CacheResultsInvalid
	state.TracStatus = job.StatusFailed
	state.StatusMessage = firstLine(err.Error())
	state.ErrorDetail = err.Error()
}

// validateResult checks the job-result integrity invariant: object IDs are
// unique and every declared ID has a corresponding definition (spec §7
// "Job-result integrity").
func validateResult(r *job.Result) error {
	seen := make(map[string]bool, len(r.ObjectIDs))
	for _, id := range r.ObjectIDs {
		if seen[id] {
			return errors.Errorf("duplicate object id %q: %w", id, job.ErrJobResultIntegrity)
		}
		seen[id] = true
		if _, ok := r.Objects[id]; !ok {
			return errors.Errorf("missing object definition for %q: %w", id, job.ErrJobResultIntegrity)
		}
	}
	return nil
}
