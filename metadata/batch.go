package metadata

import "orchestrator/job"

// Classifier accumulates metadata writes across a job's lifecycle and
// groups them into one WriteBatchRequest per the rules in spec §4.5:
//
//   - no definition                                  => tag update
//   - definition, no priorVersion                    => create new
//   - priorVersion.objectVersion < FIRST_VERSION (0)  => create preallocated
//   - otherwise                                       => update object
type Classifier struct {
	batch WriteBatchRequest
}

// NewClassifier returns an empty classifier.
func NewClassifier() *Classifier {
	return &Classifier{}
}

// AddTag records a tag-only update.
func (c *Classifier) AddTag(objectID string, attrs map[string]string) {
	c.batch.UpdateTags = append(c.batch.UpdateTags, TagWrite{ObjectID: objectID, Attrs: attrs})
}

// AddObject classifies and records a definition write.
func (c *Classifier) AddObject(w ObjectWrite) {
	switch {
	case w.Definition == nil:
		c.batch.UpdateTags = append(c.batch.UpdateTags, TagWrite{ObjectID: w.ObjectID})
	case w.PriorVersion == nil:
		c.batch.CreateNew = append(c.batch.CreateNew, w)
	case w.PriorVersion.ObjectVersion < job.FirstVersion:
		c.batch.CreatePreallocated = append(c.batch.CreatePreallocated, w)
	default:
		c.batch.UpdateVersions = append(c.batch.UpdateVersions, w)
	}
}

// Batch returns the accumulated request, ready for Service.WriteBatch.
func (c *Classifier) Batch() WriteBatchRequest {
	return c.batch
}
