// Package metadata specifies the metadata service collaborator contract
// (spec §1, §6) and the batching logic the orchestrator applies on top of
// it (spec §4.5). The metadata service itself — and its wire protocol —
// are out of scope; only the client-side shape the job processor needs is
// defined here.
package metadata

import (
	"context"

	"github.com/cockroachdb/errors"

	"orchestrator/job"
)

// ErrObjectNotFound is returned by ReadBatch when a selector resolves to no
// object. assembleAndValidate maps it to a consistency-validation failure
// (spec §4.3).
var ErrObjectNotFound = errors.New("metadata: object not found")

// ReadRequest asks the metadata service to resolve one object, optionally
// following DATA -> STORAGE / DATA -> SCHEMA references (spec §4.3).
type ReadRequest struct {
	Selector        string
	FollowReferences bool
}

// WriteBatchRequest groups every metadata write issued by a single
// saveResultMetadata call (spec §4.5).
type WriteBatchRequest struct {
	CreatePreallocated []ObjectWrite
	CreateNew          []ObjectWrite
	UpdateVersions     []ObjectWrite
	UpdateTags         []TagWrite
}

// IsEmpty reports whether the batch has nothing to send, in which case
// Service.WriteBatch must not be called (spec §4.5).
func (r WriteBatchRequest) IsEmpty() bool {
	return len(r.CreatePreallocated) == 0 && len(r.CreateNew) == 0 &&
		len(r.UpdateVersions) == 0 && len(r.UpdateTags) == 0
}

// ObjectWrite is one create/update entry within a WriteBatchRequest.
type ObjectWrite struct {
	ObjectID     string
	Definition   map[string]any
	PriorVersion *job.ObjectHeader
}

// TagWrite is one tag-only update (no definition change).
type TagWrite struct {
	ObjectID string
	Attrs    map[string]string
}

// Service is the remote metadata store's client contract (spec §6
// "Metadata service operations consumed").
type Service interface {
	ReadBatch(ctx context.Context, requests []ReadRequest) ([]job.ObjectHeader, error)
	PreallocateIDBatch(ctx context.Context, objectTypes []string) ([]string, error)
	CreateObject(ctx context.Context, write ObjectWrite) (job.ObjectHeader, error)
	UpdateTag(ctx context.Context, write TagWrite) error
	WriteBatch(ctx context.Context, batch WriteBatchRequest) error
}
