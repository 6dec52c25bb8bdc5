package recording

import (
	"errors"
	"strings"
	"testing"

	"github.com/jherleth/salvo-ai/internal/scenario"
)

// memStore is an in-memory TraceStore for tests.
type memStore struct {
	recorded map[string]*RecordedTrace
	latest   string
}

func newMemStore() *memStore {
	return &memStore{recorded: make(map[string]*RecordedTrace)}
}

func (m *memStore) SaveRecordedTrace(rt *RecordedTrace) error {
	m.recorded[rt.Trace.TraceID] = rt
	return nil
}

func (m *memStore) LoadRecordedTrace(traceID string) (*RecordedTrace, error) {
	rt, ok := m.recorded[traceID]
	if !ok {
		return nil, errors.New("recording: trace not found: " + traceID)
	}
	return rt, nil
}

func (m *memStore) LatestRecordedID() (string, error) {
	if m.latest == "" {
		return "", errors.New("recording: no latest recording")
	}
	return m.latest, nil
}

func (m *memStore) SetLatestRecorded(traceID string) error {
	m.latest = traceID
	return nil
}

func recordScenario() *scenario.Scenario {
	scn := &scenario.Scenario{Name: "rec", Adapter: "openai", Model: "gpt-4o-mini", Prompt: "go", MaxTurns: 5, Threshold: 0.8}
	scn.Hash = scenario.ComputeHash(scn)
	return scn
}

func TestRecorder_FullMode(t *testing.T) {
	t.Parallel()

	st := newMemStore()
	rec, err := NewRecorder(st, ModeFull, nil)
	if err != nil {
		t.Fatalf("NewRecorder: %v", err)
	}

	tr := redactionTrace()
	scn := recordScenario()
	tr.ScenarioHash = scn.Hash

	if err := rec.RecordTrial(tr, scn, "run-1", "scenarios/rec.yaml"); err != nil {
		t.Fatalf("RecordTrial: %v", err)
	}

	got, ok := st.recorded["t1"]
	if !ok {
		t.Fatalf("trace not saved")
	}
	if got.Metadata.SchemaVersion != CurrentSchemaVersion || got.Metadata.RecordingMode != ModeFull {
		t.Fatalf("metadata: %+v", got.Metadata)
	}
	if got.Metadata.SourceRunID != "run-1" || got.Metadata.ScenarioHash != scn.Hash {
		t.Fatalf("metadata: %+v", got.Metadata)
	}
	if got.ScenarioSnapshot == nil || got.ScenarioSnapshot.Name != "rec" {
		t.Fatalf("snapshot: %+v", got.ScenarioSnapshot)
	}
	if st.latest != "t1" {
		t.Fatalf("latest pointer: %q", st.latest)
	}

	// Redaction applied: the bearer token from the fixture is gone.
	if strings.Contains(got.Trace.Messages[0].Content, "eyJabc123xyz") {
		t.Fatalf("stored content not redacted: %q", got.Trace.Messages[0].Content)
	}
	if !strings.Contains(got.Trace.Messages[0].Content, RedactedPlaceholder) {
		t.Fatalf("placeholder missing: %q", got.Trace.Messages[0].Content)
	}
}

func TestRecorder_MetadataOnlyMode(t *testing.T) {
	t.Parallel()

	st := newMemStore()
	rec, err := NewRecorder(st, ModeMetadataOnly, nil)
	if err != nil {
		t.Fatalf("NewRecorder: %v", err)
	}

	if err := rec.RecordTrial(redactionTrace(), recordScenario(), "run-1", ""); err != nil {
		t.Fatalf("RecordTrial: %v", err)
	}

	got := st.recorded["t1"]
	if !got.IsMetadataOnly() {
		t.Fatalf("mode: %+v", got.Metadata)
	}
	for _, msg := range got.Trace.Messages {
		if msg.Content != "" && msg.Content != ContentExcludedPlaceholder {
			t.Fatalf("content survived metadata_only: %q", msg.Content)
		}
	}
}

func TestRecorder_UnknownMode(t *testing.T) {
	t.Parallel()

	if _, err := NewRecorder(newMemStore(), "partial", nil); err == nil {
		t.Fatalf("expected error for unknown mode")
	}
}

func TestReplayer_LoadLatestAndByID(t *testing.T) {
	t.Parallel()

	st := newMemStore()
	rec, _ := NewRecorder(st, ModeFull, nil)
	_ = rec.RecordTrial(redactionTrace(), recordScenario(), "run-1", "")

	rp := NewReplayer(st)

	byID, err := rp.Load("t1")
	if err != nil {
		t.Fatalf("Load by id: %v", err)
	}
	if byID.Trace.TraceID != "t1" {
		t.Fatalf("Load: got %q", byID.Trace.TraceID)
	}

	latest, err := rp.Load("")
	if err != nil {
		t.Fatalf("Load latest: %v", err)
	}
	if latest.Trace.TraceID != "t1" {
		t.Fatalf("latest: got %q", latest.Trace.TraceID)
	}

	if _, err := rp.Load("missing"); err == nil {
		t.Fatalf("expected error for missing trace")
	}
}

func TestReplayer_NewerSchemaRejected(t *testing.T) {
	t.Parallel()

	st := newMemStore()
	st.recorded["t9"] = &RecordedTrace{
		Metadata: TraceMetadata{SchemaVersion: CurrentSchemaVersion + 1},
		Trace:    *redactionTrace(),
	}

	rp := NewReplayer(st)
	if _, err := rp.Load("t9"); err == nil {
		t.Fatalf("expected schema version error")
	}
}
