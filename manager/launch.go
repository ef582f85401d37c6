package manager

import (
	"context"

	cenkalti "github.com/cenkalti/backoff/v5"

	"orchestrator/backoff"
	"orchestrator/job"
)

// launchInitialInterval/launchMultiplier/launchMaxTries bound the in-process
// retry window launchJob gets before the manager falls back to the
// poll-driven retry counter (spec: "launchJob raises executor-unavailable
// twice; on the third attempt it succeeds" — a single dispatch absorbs a
// couple of transient failures rather than waiting a full cache-poll cycle
// for each one).
const (
	launchInitialInterval     = 1
	launchRandomizationFactor = 0.2
	launchMultiplier          = 2.0
	launchMaxTries            = 3
)

// launchJobWithBackoff wraps a single LaunchJob dispatch in a short
// exponential backoff: ErrExecutorUnavailable is retried in place, any
// other error is permanent and returned on the first attempt. Exhausting
// the backoff window still leaves the job eligible for the manager's own
// poll-driven retry counter (spec §4.4.3).
func (m *Manager) launchJobWithBackoff(ctx context.Context, state *job.State) error {
	b := backoff.NewBackoff(ctx, launchInitialInterval, launchRandomizationFactor, launchMultiplier, launchMaxTries)
	b.SetDoOperation(func() (any, error) {
		err := m.Processor.LaunchJob(ctx, state)
		if err == nil {
			return nil, nil
		}
		if !job.Retriable(err) {
			return nil, cenkalti.Permanent(err)
		}
		return nil, err
	})
	return b.ExecErr()
}
