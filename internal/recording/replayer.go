package recording

import (
	"errors"
	"strings"
)

// Replayer loads recorded traces for read-only display. No adapter is
// ever constructed on this path.
type Replayer struct {
	store TraceStore
}

// NewReplayer wraps a trace store.
func NewReplayer(store TraceStore) *Replayer {
	return &Replayer{store: store}
}

// Load returns a recorded trace by id, or the latest recording when the
// id is empty or "latest".
func (r *Replayer) Load(traceID string) (*RecordedTrace, error) {
	if r == nil || r.store == nil {
		return nil, errors.New("recording: nil replayer")
	}

	traceID = strings.TrimSpace(traceID)
	if traceID == "" || traceID == "latest" {
		latest, err := r.store.LatestRecordedID()
		if err != nil {
			return nil, err
		}
		traceID = latest
	}

	recorded, err := r.store.LoadRecordedTrace(traceID)
	if err != nil {
		return nil, err
	}
	if err := ValidateSchemaVersion(recorded.Metadata); err != nil {
		return nil, err
	}
	return recorded, nil
}
