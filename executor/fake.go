package executor

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/cockroachdb/errors"
)

// Fake is an in-memory Executor used only to drive processor/manager tests
// against the Executor interface. It is not a production batch plugin —
// those remain out of scope (spec §1) — it just gives the test suite
// something real to call CreateBatch/StartBatch/PollBatches/ReadFile
// against without a container runtime or cluster.
type Fake struct {
	mu      sync.Mutex
	volumes map[string]map[string]map[string][]byte // jobKey -> volume -> file -> bytes
	started map[string]bool
	status  map[string]JobInfo
	destroyed map[string]bool
}

type fakeState struct {
	JobKey string `json:"jobKey"`
}

// NewFake builds an empty fake executor. SetStatus lets a test script the
// status PollBatches will report for a job key.
func NewFake() *Fake {
	return &Fake{
		volumes:   make(map[string]map[string]map[string][]byte),
		started:   make(map[string]bool),
		status:    make(map[string]JobInfo),
		destroyed: make(map[string]bool),
	}
}

func (f *Fake) CreateBatch(_ context.Context, jobKey string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.volumes[jobKey] = make(map[string]map[string][]byte)
	f.status[jobKey] = JobInfo{Status: StatusQueued}
	return json.Marshal(fakeState{JobKey: jobKey})
}

func (f *Fake) CreateVolume(_ context.Context, jobKey string, state []byte, name string, _ VolumeKind) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	vols, ok := f.volumes[jobKey]
	if !ok {
		return nil, errors.Errorf("fake executor: unknown batch %s", jobKey)
	}
	vols[name] = make(map[string][]byte)
	return state, nil
}

func (f *Fake) WriteFile(_ context.Context, jobKey string, state []byte, volume, fileName string, content []byte) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	vols, ok := f.volumes[jobKey]
	if !ok {
		return nil, errors.Errorf("fake executor: unknown batch %s", jobKey)
	}
	files, ok := vols[volume]
	if !ok {
		return nil, errors.Errorf("fake executor: unknown volume %s/%s", jobKey, volume)
	}
	files[fileName] = content
	return state, nil
}

func (f *Fake) StartBatch(_ context.Context, jobKey string, state []byte, _ string, _ []string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.started[jobKey] = true
	f.status[jobKey] = JobInfo{Status: StatusRunning}
	return state, nil
}

// SetStatus lets a test script the status a subsequent PollBatches call
// will report for jobKey.
func (f *Fake) SetStatus(jobKey string, info JobInfo) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.status[jobKey] = info
}

func (f *Fake) PollBatches(_ context.Context, requests []PollRequest) ([]JobInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]JobInfo, len(requests))
	for i, r := range requests {
		info, ok := f.status[r.JobKey]
		if !ok {
			info = JobInfo{Status: StatusUnknown}
		}
		out[i] = info
	}
	return out, nil
}

func (f *Fake) ReadFile(_ context.Context, jobKey string, _ []byte, volume, fileName string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	vols, ok := f.volumes[jobKey]
	if !ok {
		return nil, errors.Errorf("fake executor: unknown batch %s", jobKey)
	}
	files, ok := vols[volume]
	if !ok {
		return nil, errors.Errorf("fake executor: unknown volume %s/%s", jobKey, volume)
	}
	content, ok := files[fileName]
	if !ok {
		return nil, errors.Errorf("fake executor: file not found %s/%s/%s", jobKey, volume, fileName)
	}
	return content, nil
}

func (f *Fake) DestroyBatch(_ context.Context, jobKey string, _ []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.destroyed[jobKey] = true
	delete(f.volumes, jobKey)
	return nil
}

func (f *Fake) StateClass() string { return "fake.v1" }

func (f *Fake) Capabilities() []Capability {
	return []Capability{CapabilityOutputVolumes}
}
