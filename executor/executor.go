// Package executor specifies the pluggable batch executor contract
// (spec §4.2). No concrete plugin (local process, Kubernetes, ...) is
// implemented here — those are out of scope (spec §1); this package only
// defines the interface the job processor drives, plus a minimal fake used
// by tests.
package executor

import "context"

// VolumeKind is one of the volume kinds a batch can mount.
type VolumeKind string

const (
	VolumeConfig  VolumeKind = "CONFIG"
	VolumeResult  VolumeKind = "RESULT"
	VolumeLog     VolumeKind = "LOG"
	VolumeScratch VolumeKind = "SCRATCH"
)

// Capability is a feature flag an executor plugin may advertise.
type Capability string

const (
	CapabilityExposePort      Capability = "EXPOSE_PORT"
	CapabilityStorageMapping  Capability = "STORAGE_MAPPING"
	CapabilityOutputVolumes   Capability = "OUTPUT_VOLUMES"
)

// Status is the executor's own status enum (spec §4.2).
type Status string

const (
	StatusUnknown   Status = "STATUS_UNKNOWN"
	StatusQueued    Status = "QUEUED"
	StatusRunning   Status = "RUNNING"
	StatusComplete  Status = "COMPLETE"
	StatusSucceeded Status = "SUCCEEDED"
	StatusFailed    Status = "FAILED"
	StatusCancelled Status = "CANCELLED"
)

// JobInfo is the per-job result of a poll (spec §4.2).
type JobInfo struct {
	Status        Status
	StatusMessage string
	ErrorDetail   string
}

// PollRequest pairs a job key with its last known opaque executor state.
type PollRequest struct {
	JobKey string
	State  []byte
}

// Executor is the contract a batch executor plugin implements. State is
// opaque to the caller: the plugin produces it, the processor only stores
// and passes it back (spec §3, §9 "Executor state is opaque").
type Executor interface {
	CreateBatch(ctx context.Context, jobKey string) ([]byte, error)
	CreateVolume(ctx context.Context, jobKey string, state []byte, name string, kind VolumeKind) ([]byte, error)
	WriteFile(ctx context.Context, jobKey string, state []byte, volume, fileName string, content []byte) ([]byte, error)
	StartBatch(ctx context.Context, jobKey string, state []byte, cmd string, args []string) ([]byte, error)
	PollBatches(ctx context.Context, requests []PollRequest) ([]JobInfo, error)
	ReadFile(ctx context.Context, jobKey string, state []byte, volume, fileName string) ([]byte, error)
	DestroyBatch(ctx context.Context, jobKey string, state []byte) error

	StateClass() string
	Capabilities() []Capability
}
