package recording

import (
	"fmt"
	"time"

	"github.com/jherleth/salvo-ai/internal/evaluation"
	"github.com/jherleth/salvo-ai/internal/runner"
	"github.com/jherleth/salvo-ai/internal/scenario"
)

// CurrentSchemaVersion is the recorded-trace schema this build writes.
const CurrentSchemaVersion = 1

// Recording modes.
const (
	ModeFull         = "full"
	ModeMetadataOnly = "metadata_only"
)

// TraceMetadata captures the recording context of a trace.
type TraceMetadata struct {
	SchemaVersion int       `json:"schema_version"`
	RecordingMode string    `json:"recording_mode"`
	RecordedAt    time.Time `json:"recorded_at"`
	SourceRunID   string    `json:"source_run_id"`
	ScenarioName  string    `json:"scenario_name"`
	ScenarioFile  string    `json:"scenario_file,omitempty"`
	ScenarioHash  string    `json:"scenario_hash"`
}

// RecordedTrace wraps a redacted trace with metadata and a snapshot of
// the scenario it ran against, enabling replay and re-evaluation without
// the original file.
type RecordedTrace struct {
	Metadata         TraceMetadata      `json:"metadata"`
	Trace            runner.Trace       `json:"trace"`
	ScenarioSnapshot *scenario.Scenario `json:"scenario_snapshot,omitempty"`
}

// RevalResult is the output of re-evaluating a recorded trace against
// (possibly updated) assertions.
type RevalResult struct {
	RevalID              string                  `json:"reval_id"`
	OriginalTraceID      string                  `json:"original_trace_id"`
	ScenarioHashAtReeval string                  `json:"scenario_hash_at_reeval"`
	EvalResults          []evaluation.EvalResult `json:"eval_results"`
	Score                float64                 `json:"score"`
	Passed               bool                    `json:"passed"`
	Threshold            float64                 `json:"threshold"`
	EvaluatedAt          time.Time               `json:"evaluated_at"`
	AssertionsUsed       int                     `json:"assertions_used"`
	AssertionsSkipped    int                     `json:"assertions_skipped"`
}

// ValidateSchemaVersion rejects traces written by a newer schema.
func ValidateSchemaVersion(meta TraceMetadata) error {
	if meta.SchemaVersion > CurrentSchemaVersion {
		return fmt.Errorf("recording: trace schema version %d is newer than supported version %d", meta.SchemaVersion, CurrentSchemaVersion)
	}
	return nil
}

// IsMetadataOnly reports whether the recording scrubbed content.
func (rt *RecordedTrace) IsMetadataOnly() bool {
	return rt != nil && rt.Metadata.RecordingMode == ModeMetadataOnly
}
