package recording

import (
	"errors"
	"fmt"
	"time"

	"github.com/jherleth/salvo-ai/internal/runner"
	"github.com/jherleth/salvo-ai/internal/scenario"
)

// TraceStore is what the recorder and replayer need from storage.
type TraceStore interface {
	SaveRecordedTrace(rt *RecordedTrace) error
	LoadRecordedTrace(traceID string) (*RecordedTrace, error)
	LatestRecordedID() (string, error)
	SetLatestRecorded(traceID string) error
}

// Recorder redacts traces and persists them as RecordedTrace files.
type Recorder struct {
	store    TraceStore
	mode     string
	redactor *Redactor
}

// NewRecorder builds a recorder for the given mode ("full" or
// "metadata_only") with custom redaction patterns layered on top of the
// built-ins.
func NewRecorder(store TraceStore, mode string, customPatterns []string) (*Recorder, error) {
	if store == nil {
		return nil, errors.New("recording: nil trace store")
	}
	switch mode {
	case "", ModeFull:
		mode = ModeFull
	case ModeMetadataOnly:
	default:
		return nil, fmt.Errorf("recording: unknown recording mode %q", mode)
	}

	redactor, err := NewRedactor(customPatterns)
	if err != nil {
		return nil, err
	}

	return &Recorder{store: store, mode: mode, redactor: redactor}, nil
}

// RecordTrial redacts and persists one trial's trace, then moves the
// latest pointer to it.
func (r *Recorder) RecordTrial(tr *runner.Trace, scn *scenario.Scenario, runID, scenarioFile string) error {
	if r == nil || r.store == nil {
		return errors.New("recording: nil recorder")
	}
	if tr == nil {
		return errors.New("recording: nil trace")
	}

	redacted := r.redactor.RedactTrace(tr)
	if r.mode == ModeMetadataOnly {
		redacted = StripContent(redacted)
	}

	recorded := &RecordedTrace{
		Metadata: TraceMetadata{
			SchemaVersion: CurrentSchemaVersion,
			RecordingMode: r.mode,
			RecordedAt:    time.Now().UTC(),
			SourceRunID:   runID,
			ScenarioHash:  tr.ScenarioHash,
			ScenarioFile:  scenarioFile,
		},
		Trace:            *redacted,
		ScenarioSnapshot: scn,
	}
	if scn != nil {
		recorded.Metadata.ScenarioName = scn.Name
	}

	if err := r.store.SaveRecordedTrace(recorded); err != nil {
		return err
	}
	return r.store.SetLatestRecorded(tr.TraceID)
}
