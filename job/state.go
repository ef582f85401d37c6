package job

import "time"

// JobType identifies the kind of work a job performs.
type JobType string

const (
	JobRunModel  JobType = "RUN_MODEL"
	JobRunFlow   JobType = "RUN_FLOW"
	JobImport    JobType = "IMPORT_MODEL"
	JobExportObj JobType = "EXPORT_OBJECT"
)

// ObjectHeader is a minimal stand-in for a metadata service object header
// (the metadata service's own wire format is out of scope; the orchestrator
// only needs enough of it to drive the job processor's decisions).
type ObjectHeader struct {
	ObjectType     string `json:"objectType"`
	ObjectID       string `json:"objectId"`
	ObjectVersion  int    `json:"objectVersion"`
	TenantCode     string `json:"tenantCode"`
}

// FirstVersion is the sentinel objectVersion meaning "not yet created";
// see spec §4.5.
const FirstVersion = 0

// Identity names the owner of a job for delegate credential issuance.
type Identity struct {
	UserID string
	Tenant string
}

// Credentials is a short-lived delegate credential. It must never be
// serialized across a cache write/read boundary; the `json:"-"` tag
// enforces that, and callers must call Restore() after loading a JobState
// from the cache (spec §9 "Transient credentials").
type Credentials struct {
	Token     string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// Expired reports whether the delegate session needs to be reissued.
func (c *Credentials) Expired(now time.Time) bool {
	return c == nil || now.After(c.ExpiresAt)
}

// State is the full, serializable job record that lives in the cache
// (spec §3 "Job state").
type State struct {
	// Identity
	Owner    Identity `json:"owner"`
	JobKey   string   `json:"jobKey"`
	JobID    string   `json:"jobId"`
	JobType  JobType  `json:"jobType"`

	// Request
	Request RunRequest `json:"request"`

	// Credentials: transient, never serialized.
	Credentials *Credentials `json:"-"`

	// Status
	TracStatus    TracStatus  `json:"tracStatus"`
	CacheStatus   CacheStatus `json:"cacheStatus"`
	StatusMessage string      `json:"statusMessage,omitempty"`
	ErrorDetail   string      `json:"errorDetail,omitempty"`
	Retries       int         `json:"retries"`

	// Definition and collaterals
	Definition       map[string]any          `json:"definition,omitempty"`
	Objects          map[string]ObjectHeader `json:"objects,omitempty"`
	ObjectMapping    map[string]string       `json:"objectMapping,omitempty"`
	Tags             map[string]string       `json:"tags,omitempty"`
	PreallocatedIDs  []string                `json:"preallocatedIds,omitempty"`
	ResultID         string                  `json:"resultId,omitempty"`
	JobConfig        *RuntimeJobConfig       `json:"jobConfig,omitempty"`
	SysConfig        *RuntimeSysConfig       `json:"sysConfig,omitempty"`

	// Executor data: the executor plugin produces ExecutorState, the
	// processor only stores it opaquely (spec §3).
	ExecutorStatus  ExecutorStatus `json:"executorStatus,omitempty"`
	ExecutorState   []byte         `json:"executorState,omitempty"`
	ExecutorClass   string         `json:"executorClass,omitempty"`

	// Result pipeline
	Result *Result `json:"result,omitempty"`
}

// ExecutorStatus mirrors the executor's own status enum (spec §4.2).
type ExecutorStatus string

const (
	ExecutorUnknown   ExecutorStatus = "STATUS_UNKNOWN"
	ExecutorQueued    ExecutorStatus = "QUEUED"
	ExecutorRunning   ExecutorStatus = "RUNNING"
	ExecutorComplete  ExecutorStatus = "COMPLETE"
	ExecutorSucceeded ExecutorStatus = "SUCCEEDED"
	ExecutorFailed    ExecutorStatus = "FAILED"
	ExecutorCancelled ExecutorStatus = "CANCELLED"
)

// RunRequest is the original client request, as submitted.
type RunRequest struct {
	JobType JobType        `json:"jobType"`
	Owner   Identity       `json:"owner"`
	Items   map[string]any `json:"items"`
}

// Restore re-issues the job's delegate credentials from the stored owner
// identity. Called in the per-task prologue (spec §4.4.2 step 3); never
// persisted, always rebuilt.
func (s *State) Restore(issue func(Identity) (*Credentials, error)) error {
	if !s.Credentials.Expired(time.Now()) {
		return nil
	}
	creds, err := issue(s.Owner)
	if err != nil {
		return err
	}
	s.Credentials = creds
	return nil
}
