package processor

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/sirupsen/logrus"

	"orchestrator/job"
	"orchestrator/metadata"
)

// SaveResultMetadata groups every metadata write produced by a job's result
// (or failure) into one writeBatch call, classified by the four-way split
// in metadata.Classifier (spec §4.5). Produced objects are only written when
// the job actually succeeded; either way the job object itself gets a
// status tag update.
func (d *Deps) SaveResultMetadata(ctx context.Context, state *job.State) error {
	classifier := metadata.NewClassifier()

	if state.TracStatus == job.StatusSucceeded && state.Result != nil {
		for _, id := range state.Result.ObjectIDs {
			def, ok := state.Result.Objects[id]
			if !ok {
				continue
			}
			classifier.AddObject(metadata.ObjectWrite{
				ObjectID:     id,
				Definition:   def.Definition,
				PriorVersion: def.PriorVersion,
			})
		}
	}
	classifier.AddTag(state.JobID, map[string]string{"status": string(state.TracStatus)})

	batch := classifier.Batch()
	if !batch.IsEmpty() {
		if err := d.Metadata.WriteBatch(ctx, batch); err != nil {
			return errors.Errorf("save result metadata: write batch: %w", err)
		}
	}

	state.CacheStatus = job.CacheResultsSaved
	return nil
}

// CleanUpJob destroys the executor batch, best-effort, and advances to
// READY_TO_REMOVE regardless of outcome — a missing executor state or a
// failed destroy is logged, never raised (spec §4.3, §8 "cleanUpJob with
// executorState=null => advances to READY_TO_REMOVE").
func (d *Deps) CleanUpJob(ctx context.Context, state *job.State) error {
	if len(state.ExecutorState) == 0 {
		processorLogger.WithFields(logrus.Fields{"jobKey": state.JobKey}).Warn("clean up job: no executor state, skipping destroy")
	} else if err := d.Executor.DestroyBatch(ctx, state.JobKey, state.ExecutorState); err != nil {
		processorLogger.WithFields(logrus.Fields{"jobKey": state.JobKey, "error": err}).Warn("clean up job: destroy batch failed")
	}
	state.CacheStatus = job.CacheReadyToRemove
	return nil
}

// ScheduleRemoval marks a job ready for its removal task (the job manager
// schedules the actual removeEntry call after the retention delay).
func (d *Deps) ScheduleRemoval(ctx context.Context, state *job.State) error {
	state.CacheStatus = job.CacheRemovalScheduled
	return nil
}

// HandleProcessingFailed is invoked by the job manager once retries are
// exhausted or an error was classified non-retriable (spec §4.4.3). It marks
// the job FAILED, publishes the failure via SaveResultMetadata, then
// advances straight to READY_TO_REMOVE.
func (d *Deps) HandleProcessingFailed(ctx context.Context, state *job.State, cause error) error {
	state.TracStatus = job.StatusFailed
	state.StatusMessage = firstLine(cause.Error())
	state.ErrorDetail = cause.Error()

	if err := d.SaveResultMetadata(ctx, state); err != nil {
		return err
	}
	state.CacheStatus = job.CacheReadyToRemove
	return nil
}
