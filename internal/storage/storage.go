package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/jherleth/salvo-ai/internal/orchestrator"
	"github.com/jherleth/salvo-ai/internal/recording"
	"github.com/jherleth/salvo-ai/internal/runner"
)

// Store persists runs, traces, and re-evaluations as human-readable JSON
// under a project's storage root. Every write is atomic (tmp then
// rename); the manifest and index are guarded by the Store's own mutex, so
// concurrent trial finalizers sharing one Store never interleave. Separate
// Store values over the same root do not share that mutex.
//
// Layout under root:
//
//	runs/<run_id>.json
//	traces/<trace_id>.json
//	traces/<trace_id>.recorded.json
//	traces/manifest.json
//	traces/latest
//	revals/<reval_id>.json
//	index.json
type Store struct {
	root string
	mu   sync.Mutex
}

// NewStore creates a store rooted at dir (usually <project>/.salvo).
func NewStore(dir string) *Store {
	return &Store{root: dir}
}

// Root returns the storage root directory.
func (s *Store) Root() string {
	if s == nil {
		return ""
	}
	return s.root
}

// EnsureDirs creates the directory structure.
func (s *Store) EnsureDirs() error {
	if s == nil || strings.TrimSpace(s.root) == "" {
		return errors.New("storage: empty root")
	}
	for _, dir := range []string{s.runsDir(), s.tracesDir(), s.revalsDir()} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("storage: mkdir %q: %w", dir, err)
		}
	}
	return nil
}

func (s *Store) runsDir() string   { return filepath.Join(s.root, "runs") }
func (s *Store) tracesDir() string { return filepath.Join(s.root, "traces") }
func (s *Store) revalsDir() string { return filepath.Join(s.root, "revals") }
func (s *Store) indexPath() string { return filepath.Join(s.root, "index.json") }

func (s *Store) manifestPath() string { return filepath.Join(s.tracesDir(), "manifest.json") }
func (s *Store) latestPath() string   { return filepath.Join(s.tracesDir(), "latest") }

// writeJSONAtomic marshals v with 2-space indent and writes it via a
// temp file rename so readers never observe partial content.
func writeJSONAtomic(path string, v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("storage: marshal %q: %w", path, err)
	}
	b = append(b, '\n')

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return fmt.Errorf("storage: write %q: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("storage: rename %q: %w", path, err)
	}
	return nil
}

func readJSON(path string, v any) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("storage: read %q: %w", path, err)
	}
	if err := json.Unmarshal(b, v); err != nil {
		return fmt.Errorf("storage: parse %q: %w", path, err)
	}
	return nil
}

// SaveSuiteResult persists a run and indexes it under its scenario id.
func (s *Store) SaveSuiteResult(suite *orchestrator.SuiteResult) error {
	if s == nil || suite == nil {
		return errors.New("storage: nil suite result")
	}
	if err := s.EnsureDirs(); err != nil {
		return err
	}

	path := filepath.Join(s.runsDir(), suite.RunID+".json")
	if err := writeJSONAtomic(path, suite); err != nil {
		return err
	}
	return s.appendIndex(suite.ScenarioID, suite.RunID)
}

// LoadSuiteResult reads a run by id.
func (s *Store) LoadSuiteResult(runID string) (*orchestrator.SuiteResult, error) {
	var out orchestrator.SuiteResult
	if err := readJSON(filepath.Join(s.runsDir(), runID+".json"), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListRuns returns run ids, optionally filtered by scenario. Ids are
// time-sortable UUIDs, so lexicographic order is chronological.
func (s *Store) ListRuns(scenarioID string) ([]string, error) {
	if strings.TrimSpace(scenarioID) != "" {
		index, err := s.loadIndex()
		if err != nil {
			return nil, err
		}
		return index[scenarioID], nil
	}

	entries, err := os.ReadDir(s.runsDir())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("storage: list runs: %w", err)
	}
	var out []string
	for _, e := range entries {
		name := e.Name()
		if strings.HasSuffix(name, ".json") && !strings.HasSuffix(name, ".tmp") {
			out = append(out, strings.TrimSuffix(name, ".json"))
		}
	}
	sort.Strings(out)
	return out, nil
}

func (s *Store) loadIndex() (map[string][]string, error) {
	index := make(map[string][]string)
	if err := readJSON(s.indexPath(), &index); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return index, nil
		}
		return nil, err
	}
	return index, nil
}

func (s *Store) appendIndex(scenarioID, runID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	index, err := s.loadIndex()
	if err != nil {
		return err
	}
	for _, existing := range index[scenarioID] {
		if existing == runID {
			return nil
		}
	}
	index[scenarioID] = append(index[scenarioID], runID)
	return writeJSONAtomic(s.indexPath(), index)
}

// SaveTrace writes a raw (non-recorded) trace.
func (s *Store) SaveTrace(tr *runner.Trace) error {
	if s == nil || tr == nil || strings.TrimSpace(tr.TraceID) == "" {
		return errors.New("storage: nil trace or empty trace id")
	}
	if err := s.EnsureDirs(); err != nil {
		return err
	}
	return writeJSONAtomic(filepath.Join(s.tracesDir(), tr.TraceID+".json"), tr)
}

// LoadTrace reads a raw trace by id.
func (s *Store) LoadTrace(traceID string) (*runner.Trace, error) {
	var out runner.Trace
	if err := readJSON(filepath.Join(s.tracesDir(), traceID+".json"), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// AppendManifest adds a trial's trace entry to the run manifest. The
// mutex serializes concurrent finalizers.
func (s *Store) AppendManifest(runID string, entry orchestrator.ManifestEntry) error {
	if s == nil || strings.TrimSpace(runID) == "" {
		return errors.New("storage: empty run id")
	}
	if err := s.EnsureDirs(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	manifest, err := s.loadManifestLocked()
	if err != nil {
		return err
	}
	manifest[runID] = append(manifest[runID], entry)
	return writeJSONAtomic(s.manifestPath(), manifest)
}

// LoadManifest returns the run manifest: run id to trace entries.
func (s *Store) LoadManifest() (map[string][]orchestrator.ManifestEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadManifestLocked()
}

func (s *Store) loadManifestLocked() (map[string][]orchestrator.ManifestEntry, error) {
	manifest := make(map[string][]orchestrator.ManifestEntry)
	if err := readJSON(s.manifestPath(), &manifest); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return manifest, nil
		}
		return nil, err
	}
	return manifest, nil
}

// SaveRecordedTrace writes a redacted recording.
func (s *Store) SaveRecordedTrace(rt *recording.RecordedTrace) error {
	if s == nil || rt == nil || strings.TrimSpace(rt.Trace.TraceID) == "" {
		return errors.New("storage: nil recorded trace or empty trace id")
	}
	if err := s.EnsureDirs(); err != nil {
		return err
	}
	return writeJSONAtomic(filepath.Join(s.tracesDir(), rt.Trace.TraceID+".recorded.json"), rt)
}

// LoadRecordedTrace reads a recording by trace id.
func (s *Store) LoadRecordedTrace(traceID string) (*recording.RecordedTrace, error) {
	var out recording.RecordedTrace
	if err := readJSON(filepath.Join(s.tracesDir(), traceID+".recorded.json"), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// SetLatestRecorded atomically moves the latest pointer.
func (s *Store) SetLatestRecorded(traceID string) error {
	if s == nil || strings.TrimSpace(traceID) == "" {
		return errors.New("storage: empty trace id")
	}
	if err := s.EnsureDirs(); err != nil {
		return err
	}

	tmp := s.latestPath() + ".tmp"
	if err := os.WriteFile(tmp, []byte(traceID+"\n"), 0o644); err != nil {
		return fmt.Errorf("storage: write latest pointer: %w", err)
	}
	if err := os.Rename(tmp, s.latestPath()); err != nil {
		return fmt.Errorf("storage: update latest pointer: %w", err)
	}
	return nil
}

// LatestRecordedID reads the latest pointer.
func (s *Store) LatestRecordedID() (string, error) {
	b, err := os.ReadFile(s.latestPath())
	if err != nil {
		return "", fmt.Errorf("storage: no latest recording: %w", err)
	}
	return strings.TrimSpace(string(b)), nil
}

// SaveRevalResult writes a re-evaluation result under revals/, a
// separate directory so re-evaluations never pollute the run index.
func (s *Store) SaveRevalResult(rv *recording.RevalResult) error {
	if s == nil || rv == nil || strings.TrimSpace(rv.RevalID) == "" {
		return errors.New("storage: nil reval result or empty id")
	}
	if err := s.EnsureDirs(); err != nil {
		return err
	}
	return writeJSONAtomic(filepath.Join(s.revalsDir(), rv.RevalID+".json"), rv)
}

// LoadRevalResult reads a re-evaluation by id.
func (s *Store) LoadRevalResult(revalID string) (*recording.RevalResult, error) {
	var out recording.RevalResult
	if err := readJSON(filepath.Join(s.revalsDir(), revalID+".json"), &out); err != nil {
		return nil, err
	}
	return &out, nil
}
