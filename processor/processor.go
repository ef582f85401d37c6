// Package processor implements the job FSM's per-state transition functions
// (spec §4.3): pure with respect to the cache — callers (the job manager)
// are the only ones that write a new state back; these functions only read
// and mutate the JobState passed to them and talk to the executor and
// metadata collaborators.
package processor

import (
	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"orchestrator/executor"
	"orchestrator/filer"
	"orchestrator/job"
	"orchestrator/metadata"
)

var processorLogger = logrus.WithFields(logrus.Fields{"component": "processor"})

// Deps collects the processor's collaborators. None of them are owned here
// — the job manager wires real (or fake) implementations in.
type Deps struct {
	Executor executor.Executor
	Metadata metadata.Service
	Filer    filer.JsonFiler
}

// New builds a Deps with the standard JSON filer.
func New(exec executor.Executor, meta metadata.Service) *Deps {
	return &Deps{Executor: exec, Metadata: meta, Filer: filer.NewJsonLoader()}
}

// NewJob builds the in-memory job state for a new request. It does not
// touch the cache or the metadata service — AssembleAndValidate does that.
func NewJob(req job.RunRequest) (*job.State, error) {
	if req.JobType == "" {
		return nil, errors.Errorf("new job: job type is required: %w", job.ErrConsistencyValidation)
	}

	id := uuid.New().String()
	return &job.State{
		Owner:      req.Owner,
		JobID:      id,
		JobKey:     id,
		JobType:    req.JobType,
		Request:    req,
		TracStatus: job.StatusPreparing,
		Definition: map[string]any{},
		Tags:       map[string]string{},
	}, nil
}
