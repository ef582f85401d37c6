package job

import (
	"github.com/cockroachdb/errors"
)

// Error kinds (spec §7). These are kinds, not types: a single sentinel per
// kind, wrapped with context via %w, classified with errors.Is.
var (
	// ErrConsistencyValidation: referenced metadata missing or inconsistent,
	// surfaced during assembleAndValidate. Never retried.
	ErrConsistencyValidation = errors.New("consistency validation failed")

	// ErrExecutorUnavailable: retriable executor-side failure.
	ErrExecutorUnavailable = errors.New("executor unavailable")

	// ErrExecutorFailure: terminal failure reported by the executor.
	ErrExecutorFailure = errors.New("executor reported failure")

	// ErrResultParse / ErrResultInvalid: terminal, job_result_*.json could
	// not be parsed or failed validation.
	ErrResultParse   = errors.New("job result could not be parsed")
	ErrResultInvalid = errors.New("job result failed validation")

	// ErrJobResultIntegrity: duplicate object IDs, missing required
	// objects in a JobResult (spec §7 "EJobResult").
	ErrJobResultIntegrity = errors.New("job result integrity error")

	// ErrTransientRPC: UNAVAILABLE / DEADLINE_EXCEEDED class errors from
	// the metadata service or executor RPCs.
	ErrTransientRPC = errors.New("transient rpc error")

	// Cache errors (recovered locally; never surfaced to the caller).
	ErrCacheMissing         = errors.New("cache entry missing")
	ErrTicketSuperseded     = errors.New("ticket superseded")
	ErrTicketExpired        = errors.New("ticket expired")
	ErrDuplicateJob         = errors.New("duplicate job")
	ErrJobNotFound          = errors.New("job not found")
)

// Retriable classifies an error per the retry/fail policy in spec §4.4.3.
func Retriable(err error) bool {
	if err == nil {
		return false
	}
	switch {
	case errors.Is(err, ErrExecutorUnavailable):
		return true
	case errors.Is(err, ErrTransientRPC):
		return true
	default:
		return false
	}
}
