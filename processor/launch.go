package processor

import (
	"context"
	"fmt"
	"strings"

	"github.com/cockroachdb/errors"

	"orchestrator/executor"
	"orchestrator/job"
)

// runtimeEntrypoint is the command started inside a batch. The concrete
// executor plugin owns how this is actually invoked; the orchestrator only
// needs to agree on a name and the standard argument set (spec §6).
const runtimeEntrypoint = "tracdap-runtime"

var launchVolumes = []executor.VolumeKind{
	executor.VolumeConfig,
	executor.VolumeResult,
	executor.VolumeLog,
	executor.VolumeScratch,
}

// LaunchJob creates the batch's volumes, writes job_config.json and
// sys_config.json into the config volume, and starts the runtime with the
// standard argument set (spec §4.3, §6).
func (d *Deps) LaunchJob(ctx context.Context, state *job.State) error {
	execState, err := d.ensureBatch(ctx, state)
	if err != nil {
		return err
	}

	for _, v := range launchVolumes {
		execState, err = d.Executor.CreateVolume(ctx, state.JobKey, execState, volumeName(v), v)
		if err != nil {
			return wrapExecutor(err, fmt.Sprintf("create volume %s", v))
		}
	}

	jobConfig := buildJobConfig(state)
	jobConfigBytes, err := d.Filer.Encode(jobConfig)
	if err != nil {
		return errors.Errorf("launch job: encode job config: %w", err)
	}
	execState, err = d.Executor.WriteFile(ctx, state.JobKey, execState, volumeName(executor.VolumeConfig), "job_config.json", jobConfigBytes)
	if err != nil {
		return wrapExecutor(err, "write job_config.json")
	}

	sysConfig := state.SysConfig
	if sysConfig == nil {
		sysConfig = &job.RuntimeSysConfig{}
	}
	sysConfigBytes, err := d.Filer.Encode(sysConfig)
	if err != nil {
		return errors.Errorf("launch job: encode sys config: %w", err)
	}
	execState, err = d.Executor.WriteFile(ctx, state.JobKey, execState, volumeName(executor.VolumeConfig), "sys_config.json", sysConfigBytes)
	if err != nil {
		return wrapExecutor(err, "write sys_config.json")
	}

	args := job.RunArgs(
		configPath(state.JobKey, "sys_config.json"),
		configPath(state.JobKey, "job_config.json"),
		resultDir(state.JobKey),
		scratchDir(state.JobKey),
	)
	execState, err = d.Executor.StartBatch(ctx, state.JobKey, execState, runtimeEntrypoint, args)
	if err != nil {
		return wrapExecutor(err, "start batch")
	}

	state.ExecutorState = execState
	state.ExecutorClass = d.Executor.StateClass()
	state.CacheStatus = job.CacheSentToExecutor
	return nil
}

// ensureBatch creates the batch if this is the first attempt; a retried
// LaunchJob after an executor-unavailable error reuses whatever state the
// previous attempt produced instead of calling createBatch twice.
func (d *Deps) ensureBatch(ctx context.Context, state *job.State) ([]byte, error) {
	if len(state.ExecutorState) > 0 {
		return state.ExecutorState, nil
	}
	execState, err := d.Executor.CreateBatch(ctx, state.JobKey)
	if err != nil {
		return nil, wrapExecutor(err, "create batch")
	}
	return execState, nil
}

func buildJobConfig(state *job.State) job.RuntimeJobConfig {
	return job.RuntimeJobConfig{
		JobID:           state.JobID,
		Job:             state.Definition,
		ObjectMapping:   state.ObjectMapping,
		Objects:         objectHeadersToAny(state.Objects),
		Tags:            state.Tags,
		ResultID:        state.ResultID,
		PreallocatedIDs: state.PreallocatedIDs,
	}
}

func objectHeadersToAny(m map[string]job.ObjectHeader) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func volumeName(k executor.VolumeKind) string {
	return strings.ToLower(string(k))
}

func configPath(jobKey, fileName string) string {
	return fmt.Sprintf("/volumes/%s/config/%s", jobKey, fileName)
}

func resultDir(jobKey string) string {
	return fmt.Sprintf("/volumes/%s/result", jobKey)
}

func scratchDir(jobKey string) string {
	return fmt.Sprintf("/volumes/%s/scratch", jobKey)
}
