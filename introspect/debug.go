package introspect

import (
	"bytes"
	"encoding/json"
	"net/http"

	"github.com/sirupsen/logrus"

	"orchestrator/cache"
	"orchestrator/stream"
)

var debugLogger = logrus.WithFields(logrus.Fields{"component": "introspect.debug"})

// DebugHandler serves a JSON cache-occupancy dump over plain HTTP, for
// operators without admin-protocol tooling on hand.
type DebugHandler struct {
	Cache cache.Cache
}

// NewDebugHandler builds a handler dumping c's occupancy.
func NewDebugHandler(c cache.Cache) *DebugHandler {
	return &DebugHandler{Cache: c}
}

func (h *DebugHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	snap, err := TakeSnapshot(r.Context(), h.Cache)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	body, err := json.Marshal(dumpView(snap))
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := stream.CopyBody(w, bytes.NewReader(body)); err != nil {
		debugLogger.WithError(err).Warn("cache dump write failed")
	}
}

func dumpView(snap Snapshot) map[string]any {
	view := make(map[string]any, len(snap.Counts)+1)
	for _, status := range sortedStatuses(snap.Counts) {
		view[string(status)] = snap.Counts[status]
	}
	view["total"] = snap.Total
	return view
}
