package processor

import (
	"context"

	"github.com/cockroachdb/errors"

	"orchestrator/job"
	"orchestrator/metadata"
)

// resultObjectType is the preallocation object type requested for a job's
// result ID (spec §4.3 "preallocates a RESULT ID").
const resultObjectType = "RESULT"

// SaveInitialMetadata preallocates the job's result ID, persists the JOB
// object, and stamps the initial status tag (spec §4.3).
func (d *Deps) SaveInitialMetadata(ctx context.Context, state *job.State) error {
	ids, err := d.Metadata.PreallocateIDBatch(ctx, []string{resultObjectType})
	if err != nil {
		return errors.Errorf("save initial metadata: preallocate result id: %w", err)
	}
	if len(ids) == 0 {
		return errors.Errorf("save initial metadata: preallocate returned no id: %w", job.ErrConsistencyValidation)
	}
	state.ResultID = ids[0]
	state.PreallocatedIDs = append(state.PreallocatedIDs, ids...)

	def := state.Definition
	if def == nil {
		def = map[string]any{}
	}
	def["resultId"] = state.ResultID
	state.Definition = def

	header, err := d.Metadata.CreateObject(ctx, metadata.ObjectWrite{ObjectID: state.JobID, Definition: def})
	if err != nil {
		return errors.Errorf("save initial metadata: create job object: %w", err)
	}
	// jobKey is derived from jobId after the initial save (spec §3).
	state.JobID = header.ObjectID
	state.JobKey = header.ObjectID

	state.TracStatus = job.StatusQueued
	if err := d.Metadata.UpdateTag(ctx, metadata.TagWrite{
		ObjectID: state.JobID,
		Attrs:    map[string]string{"status": string(state.TracStatus)},
	}); err != nil {
		return errors.Errorf("save initial metadata: stamp status tag: %w", err)
	}

	state.CacheStatus = job.CacheQueuedInTrac
	return nil
}

// ScheduleLaunch marks a job eligible for launch. Capacity is the job
// manager's concern (spec §4.4.1); this transition just records the
// decision once the manager has made it.
func (d *Deps) ScheduleLaunch(ctx context.Context, state *job.State) error {
	state.TracStatus = job.StatusPending
	state.CacheStatus = job.CacheLaunchScheduled
	return nil
}
