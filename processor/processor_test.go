package processor

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"orchestrator/executor"
	"orchestrator/filer"
	"orchestrator/job"
	"orchestrator/metadata"
)

// fakeMetadata is an in-memory metadata.Service test double.
type fakeMetadata struct {
	nextID    int
	created   []metadata.ObjectWrite
	tags      []metadata.TagWrite
	batches   []metadata.WriteBatchRequest
	readErr   error
	notFound  bool
	headers   []job.ObjectHeader
}

func (f *fakeMetadata) ReadBatch(_ context.Context, reqs []metadata.ReadRequest) ([]job.ObjectHeader, error) {
	if f.notFound {
		return nil, metadata.ErrObjectNotFound
	}
	if f.readErr != nil {
		return nil, f.readErr
	}
	if f.headers != nil {
		return f.headers, nil
	}
	out := make([]job.ObjectHeader, len(reqs))
	for i, r := range reqs {
		out[i] = job.ObjectHeader{ObjectType: "DATA", ObjectID: r.Selector, ObjectVersion: 1}
	}
	return out, nil
}

func (f *fakeMetadata) PreallocateIDBatch(_ context.Context, objectTypes []string) ([]string, error) {
	out := make([]string, len(objectTypes))
	for i := range objectTypes {
		f.nextID++
		out[i] = "result-" + objectTypes[i]
	}
	return out, nil
}

func (f *fakeMetadata) CreateObject(_ context.Context, w metadata.ObjectWrite) (job.ObjectHeader, error) {
	f.created = append(f.created, w)
	return job.ObjectHeader{ObjectType: "JOB", ObjectID: "job-key-1", ObjectVersion: 1}, nil
}

func (f *fakeMetadata) UpdateTag(_ context.Context, w metadata.TagWrite) error {
	f.tags = append(f.tags, w)
	return nil
}

func (f *fakeMetadata) WriteBatch(_ context.Context, b metadata.WriteBatchRequest) error {
	f.batches = append(f.batches, b)
	return nil
}

func newDeps(meta metadata.Service, exec executor.Executor) *Deps {
	return &Deps{Executor: exec, Metadata: meta, Filer: filer.NewJsonLoader()}
}

func TestNewJob(t *testing.T) {
	state, err := NewJob(job.RunRequest{JobType: job.JobRunModel, Owner: job.Identity{UserID: "u1"}})
	require.NoError(t, err)
	assert.Equal(t, job.JobRunModel, state.JobType)
	assert.Equal(t, job.StatusPreparing, state.TracStatus)
	assert.NotEmpty(t, state.JobKey)

	_, err = NewJob(job.RunRequest{})
	assert.ErrorIs(t, err, job.ErrConsistencyValidation)
}

func TestAssembleAndValidate_NoReferences(t *testing.T) {
	state, _ := NewJob(job.RunRequest{JobType: job.JobRunModel})
	d := newDeps(&fakeMetadata{}, executor.NewFake())

	err := d.AssembleAndValidate(context.Background(), state)
	require.NoError(t, err)
	assert.Equal(t, job.StatusValidated, state.TracStatus)
}

func TestAssembleAndValidate_ResolvesSelectors(t *testing.T) {
	state, _ := NewJob(job.RunRequest{
		JobType: job.JobRunModel,
		Items:   map[string]any{"input_a": "selector-a"},
	})
	d := newDeps(&fakeMetadata{}, executor.NewFake())

	err := d.AssembleAndValidate(context.Background(), state)
	require.NoError(t, err)
	assert.Equal(t, "selector-a", state.ObjectMapping["input_a"])
	assert.Equal(t, job.StatusValidated, state.TracStatus)
}

func TestAssembleAndValidate_NotFound(t *testing.T) {
	state, _ := NewJob(job.RunRequest{JobType: job.JobRunModel, Items: map[string]any{"input_a": "missing"}})
	d := newDeps(&fakeMetadata{notFound: true}, executor.NewFake())

	err := d.AssembleAndValidate(context.Background(), state)
	assert.ErrorIs(t, err, job.ErrConsistencyValidation)
}

func TestSaveInitialMetadata(t *testing.T) {
	state, _ := NewJob(job.RunRequest{JobType: job.JobRunModel})
	meta := &fakeMetadata{}
	d := newDeps(meta, executor.NewFake())

	err := d.SaveInitialMetadata(context.Background(), state)
	require.NoError(t, err)
	assert.Equal(t, job.CacheQueuedInTrac, state.CacheStatus)
	assert.Equal(t, job.StatusQueued, state.TracStatus)
	assert.Equal(t, "job-key-1", state.JobKey)
	assert.Len(t, meta.tags, 1)
}

func TestLaunchJob(t *testing.T) {
	state, _ := NewJob(job.RunRequest{JobType: job.JobRunModel})
	state.JobKey = "run-1"
	state.JobID = "run-1"
	d := newDeps(&fakeMetadata{}, executor.NewFake())

	err := d.LaunchJob(context.Background(), state)
	require.NoError(t, err)
	assert.Equal(t, job.CacheSentToExecutor, state.CacheStatus)
	assert.NotEmpty(t, state.ExecutorState)
	assert.Equal(t, "fake.v1", state.ExecutorClass)
}

func TestRecordJobStatus_Running(t *testing.T) {
	state, _ := NewJob(job.RunRequest{JobType: job.JobRunModel})
	state.JobID = "run-1"
	meta := &fakeMetadata{}
	d := newDeps(meta, executor.NewFake())

	err := d.RecordJobStatus(context.Background(), state, executor.JobInfo{Status: executor.StatusRunning})
	require.NoError(t, err)
	assert.Equal(t, job.CacheRunningInExecutor, state.CacheStatus)
	assert.Equal(t, job.StatusRunning, state.TracStatus)
	assert.Len(t, meta.tags, 1)
}

func TestRecordJobStatus_Unknown(t *testing.T) {
	state, _ := NewJob(job.RunRequest{JobType: job.JobRunModel})
	d := newDeps(&fakeMetadata{}, executor.NewFake())

	err := d.RecordJobStatus(context.Background(), state, executor.JobInfo{Status: executor.StatusUnknown})
	require.NoError(t, err)
	assert.Equal(t, job.CacheExecutorFailed, state.CacheStatus)
	assert.Equal(t, job.StatusFailed, state.TracStatus)
	assert.Equal(t, "Job status could not be determined", state.StatusMessage)
}

func TestFetchJobResult_Success(t *testing.T) {
	state, _ := NewJob(job.RunRequest{JobType: job.JobRunModel})
	state.JobKey = "run-1"
	fake := executor.NewFake()
	d := newDeps(&fakeMetadata{}, fake)

	ctx := context.Background()
	execState, err := fake.CreateBatch(ctx, "run-1")
	require.NoError(t, err)
	execState, err = fake.CreateVolume(ctx, "run-1", execState, "result", executor.VolumeResult)
	require.NoError(t, err)

	result := job.Result{
		ObjectIDs: []string{"obj-1"},
		Objects:   map[string]job.ObjectDef{"obj-1": {ObjectType: "DATA", Definition: map[string]any{"x": 1}}},
	}
	raw, err := d.Filer.Encode(result)
	require.NoError(t, err)
	_, err = fake.WriteFile(ctx, "run-1", execState, "result", "job_result_run-1.json", raw)
	require.NoError(t, err)

	state.ExecutorState = execState
	err = d.FetchJobResult(ctx, state)
	require.NoError(t, err)
	assert.Equal(t, job.CacheResultsReceived, state.CacheStatus)
	assert.Equal(t, job.StatusSucceeded, state.TracStatus)
	require.NotNil(t, state.Result)
	assert.Equal(t, []string{"obj-1"}, state.Result.ObjectIDs)
}

func TestFetchJobResult_MalformedJSON(t *testing.T) {
	state, _ := NewJob(job.RunRequest{JobType: job.JobRunModel})
	state.JobKey = "run-2"
	fake := executor.NewFake()
	d := newDeps(&fakeMetadata{}, fake)

	ctx := context.Background()
	execState, err := fake.CreateBatch(ctx, "run-2")
	require.NoError(t, err)
	execState, err = fake.CreateVolume(ctx, "run-2", execState, "result", executor.VolumeResult)
	require.NoError(t, err)
	_, err = fake.WriteFile(ctx, "run-2", execState, "result", "job_result_run-2.json", []byte("{not json"))
	require.NoError(t, err)

	state.ExecutorState = execState
	err = d.FetchJobResult(ctx, state)
	require.NoError(t, err)
	assert.Equal(t, job.CacheResultsInvalid, state.CacheStatus)
	assert.Equal(t, job.StatusFailed, state.TracStatus)
	assert.NotEmpty(t, state.StatusMessage)
}

func TestSaveResultMetadata_Succeeded(t *testing.T) {
	state, _ := NewJob(job.RunRequest{JobType: job.JobRunModel})
	state.JobID = "run-1"
	state.TracStatus = job.StatusSucceeded
	state.Result = &job.Result{
		ObjectIDs: []string{"obj-1"},
		Objects:   map[string]job.ObjectDef{"obj-1": {ObjectType: "DATA", Definition: map[string]any{"x": 1}}},
	}
	meta := &fakeMetadata{}
	d := newDeps(meta, executor.NewFake())

	err := d.SaveResultMetadata(context.Background(), state)
	require.NoError(t, err)
	assert.Equal(t, job.CacheResultsSaved, state.CacheStatus)
	require.Len(t, meta.batches, 1)
	assert.Len(t, meta.batches[0].CreateNew, 1)
}

func TestCleanUpJob_NoExecutorState(t *testing.T) {
	state, _ := NewJob(job.RunRequest{JobType: job.JobRunModel})
	d := newDeps(&fakeMetadata{}, executor.NewFake())

	err := d.CleanUpJob(context.Background(), state)
	require.NoError(t, err)
	assert.Equal(t, job.CacheReadyToRemove, state.CacheStatus)
}

func TestHandleProcessingFailed(t *testing.T) {
	state, _ := NewJob(job.RunRequest{JobType: job.JobRunModel})
	state.JobID = "run-1"
	meta := &fakeMetadata{}
	d := newDeps(meta, executor.NewFake())

	err := d.HandleProcessingFailed(context.Background(), state, job.ErrConsistencyValidation)
	require.NoError(t, err)
	assert.Equal(t, job.StatusFailed, state.TracStatus)
	assert.Equal(t, job.CacheReadyToRemove, state.CacheStatus)
	assert.Len(t, meta.batches, 1)
}
