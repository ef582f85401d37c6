package processor

import (
	"strings"

	"github.com/cockroachdb/errors"

	"orchestrator/job"
)

// wrapExecutor classifies a failed executor call as retriable (spec §7
// "Executor-unavailable: retriable; counted against retry limit").
func wrapExecutor(err error, op string) error {
	return errors.Errorf("%s: %s: %w", op, err.Error(), job.ErrExecutorUnavailable)
}

// firstLine is used to produce a short statusMessage from a multi-line
// parser error, keeping the full text in errorDetail (spec §8).
func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
