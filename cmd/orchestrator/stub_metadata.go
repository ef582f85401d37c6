package main

import (
	"context"

	"github.com/sirupsen/logrus"

	"orchestrator/job"
	"orchestrator/metadata"
)

// loggingMetadata is a stand-in for the metadata service, which is an
// external collaborator specified only by its interface: readBatch,
// preallocateIdBatch, createObject, updateTag, writeBatch. A real
// deployment wires metadata.Service to that remote store's client instead.
type loggingMetadata struct {
	logger *logrus.Entry
}

func newLoggingMetadata() metadata.Service {
	return &loggingMetadata{logger: logrus.WithField("component", "metadata.stub")}
}

func (m *loggingMetadata) ReadBatch(_ context.Context, reqs []metadata.ReadRequest) ([]job.ObjectHeader, error) {
	out := make([]job.ObjectHeader, len(reqs))
	for i, r := range reqs {
		out[i] = job.ObjectHeader{ObjectType: "OBJECT", ObjectID: r.Selector, ObjectVersion: 1}
	}
	m.logger.WithField("count", len(reqs)).Debug("readBatch")
	return out, nil
}

func (m *loggingMetadata) PreallocateIDBatch(_ context.Context, objectTypes []string) ([]string, error) {
	out := make([]string, len(objectTypes))
	for i, t := range objectTypes {
		out[i] = t + "-preallocated"
	}
	m.logger.WithField("count", len(objectTypes)).Debug("preallocateIDBatch")
	return out, nil
}

func (m *loggingMetadata) CreateObject(_ context.Context, w metadata.ObjectWrite) (job.ObjectHeader, error) {
	m.logger.WithField("objectId", w.ObjectID).Debug("createObject")
	return job.ObjectHeader{ObjectType: "OBJECT", ObjectID: w.ObjectID, ObjectVersion: 1}, nil
}

func (m *loggingMetadata) UpdateTag(_ context.Context, w metadata.TagWrite) error {
	m.logger.WithField("objectId", w.ObjectID).Debug("updateTag")
	return nil
}

func (m *loggingMetadata) WriteBatch(_ context.Context, b metadata.WriteBatchRequest) error {
	m.logger.Debug("writeBatch")
	return nil
}
