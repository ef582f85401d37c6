package processor

import (
	"context"
	"sort"

	"github.com/cockroachdb/errors"

	"orchestrator/job"
	"orchestrator/metadata"
)

// AssembleAndValidate resolves every object selector referenced by the
// request via one readBatch call (following DATA -> STORAGE / DATA -> SCHEMA
// references) and runs the consistency checks the launch config depends on
// (spec §4.3). A NOT_FOUND from the metadata service is mapped to
// ErrConsistencyValidation.
func (d *Deps) AssembleAndValidate(ctx context.Context, state *job.State) error {
	names, selectors := collectSelectors(state.Request.Items)
	if len(selectors) == 0 {
		state.TracStatus = job.StatusValidated
		return nil
	}

	reqs := make([]metadata.ReadRequest, len(selectors))
	for i, sel := range selectors {
		reqs[i] = metadata.ReadRequest{Selector: sel, FollowReferences: true}
	}

	headers, err := d.Metadata.ReadBatch(ctx, reqs)
	if err != nil {
		if errors.Is(err, metadata.ErrObjectNotFound) {
			return errors.Errorf("assemble and validate: %s: %w", err.Error(), job.ErrConsistencyValidation)
		}
		return errors.Errorf("assemble and validate: read batch: %w", err)
	}
	if len(headers) != len(selectors) {
		return errors.Errorf("assemble and validate: expected %d resolved objects, got %d: %w",
			len(selectors), len(headers), job.ErrConsistencyValidation)
	}

	objects := make(map[string]job.ObjectHeader, len(headers))
	mapping := make(map[string]string, len(headers))
	for i, h := range headers {
		name := names[i]
		objects[name] = h
		mapping[name] = h.ObjectID
	}

	state.Objects = objects
	state.ObjectMapping = mapping
	state.TracStatus = job.StatusValidated
	return nil
}

// collectSelectors pulls the string-valued request items out in a
// deterministic order (map iteration order isn't) and returns the item name
// alongside the selector it names.
func collectSelectors(items map[string]any) (names []string, selectors []string) {
	keys := make([]string, 0, len(items))
	for k := range items {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		if sel, ok := items[k].(string); ok {
			names = append(names, k)
			selectors = append(selectors, sel)
		}
	}
	return names, selectors
}
