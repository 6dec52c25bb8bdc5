package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/jherleth/salvo-ai/internal/orchestrator"
)

const defaultHistoryLimit = 50

// RunSummary is one row of the run-history index. The JSON store under
// .salvo/ remains the source of truth; this table exists so history and
// API queries do not have to scan every run file.
type RunSummary struct {
	RunID        string    `json:"run_id"`
	ScenarioID   string    `json:"scenario_id"`
	ScenarioHash string    `json:"scenario_hash"`
	Adapter      string    `json:"adapter"`
	Model        string    `json:"model"`
	Verdict      string    `json:"verdict"`
	PassRate     float64   `json:"pass_rate"`
	MeanScore    float64   `json:"mean_score"`
	TrialsTotal  int       `json:"trials_total"`
	CostTotal    *float64  `json:"cost_total,omitempty"`
	StartedAt    time.Time `json:"started_at"`
	FinishedAt   time.Time `json:"finished_at"`
}

// HistoryStore is the run-history index backed by SQLite.
type HistoryStore struct {
	db *sql.DB

	insertRunStmt *sql.Stmt
	getRunStmt    *sql.Stmt
	historyStmt   *sql.Stmt
	allRunsStmt   *sql.Stmt
}

// Open opens or creates the history database at the given path.
// ":memory:" is accepted for tests.
func Open(path string) (*HistoryStore, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errors.New("store: empty sqlite path")
	}
	if path != ":memory:" {
		dir := filepath.Dir(path)
		if dir != "." && dir != "" {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("store: create sqlite dir: %w", err)
			}
		}
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("store: open sqlite: %w", err)
	}
	db.SetMaxOpenConns(5)
	db.SetMaxIdleConns(2)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("store: ping sqlite: %w", err)
	}

	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	st := &HistoryStore{db: db}
	if err := st.prepareStatements(); err != nil {
		_ = st.Close()
		return nil, err
	}
	return st, nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`PRAGMA journal_mode = WAL`,
		`CREATE TABLE IF NOT EXISTS runs (
			run_id TEXT PRIMARY KEY,
			scenario_id TEXT NOT NULL,
			scenario_hash TEXT NOT NULL,
			adapter TEXT NOT NULL,
			model TEXT NOT NULL,
			verdict TEXT NOT NULL,
			pass_rate REAL NOT NULL,
			mean_score REAL NOT NULL,
			trials_total INTEGER NOT NULL,
			cost_total REAL,
			started_at INTEGER NOT NULL,
			finished_at INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_runs_scenario ON runs(scenario_id, started_at)`,
	}

	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("store: init schema: %w", err)
		}
	}
	return nil
}

func (s *HistoryStore) prepareStatements() error {
	if s == nil || s.db == nil {
		return errors.New("store: nil db")
	}

	var err error
	s.insertRunStmt, err = s.db.Prepare(`INSERT OR REPLACE INTO runs
		(run_id, scenario_id, scenario_hash, adapter, model, verdict, pass_rate, mean_score, trials_total, cost_total, started_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("store: prepare insert: %w", err)
	}

	const selectCols = `SELECT run_id, scenario_id, scenario_hash, adapter, model, verdict, pass_rate, mean_score, trials_total, cost_total, started_at, finished_at FROM runs`

	s.getRunStmt, err = s.db.Prepare(selectCols + ` WHERE run_id = ?`)
	if err != nil {
		return fmt.Errorf("store: prepare get: %w", err)
	}

	s.historyStmt, err = s.db.Prepare(selectCols + ` WHERE scenario_id = ? ORDER BY started_at DESC LIMIT ?`)
	if err != nil {
		return fmt.Errorf("store: prepare history: %w", err)
	}

	s.allRunsStmt, err = s.db.Prepare(selectCols + ` ORDER BY started_at DESC LIMIT ?`)
	if err != nil {
		return fmt.Errorf("store: prepare list: %w", err)
	}

	return nil
}

// SaveRun indexes one completed suite result.
func (s *HistoryStore) SaveRun(ctx context.Context, suite *orchestrator.SuiteResult) error {
	if s == nil || s.insertRunStmt == nil {
		return errors.New("store: not open")
	}
	if suite == nil {
		return errors.New("store: nil suite result")
	}

	var costTotal any
	if suite.CostTotal != nil {
		costTotal = *suite.CostTotal
	}

	_, err := s.insertRunStmt.ExecContext(ctx,
		suite.RunID,
		suite.ScenarioID,
		suite.ScenarioHash,
		suite.Adapter,
		suite.Model,
		suite.Verdict,
		suite.PassRate,
		suite.MeanScore,
		len(suite.Trials),
		costTotal,
		suite.StartedAt.UnixMilli(),
		suite.FinishedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("store: save run: %w", err)
	}
	return nil
}

// GetRun returns one indexed run, or nil when absent.
func (s *HistoryStore) GetRun(ctx context.Context, runID string) (*RunSummary, error) {
	if s == nil || s.getRunStmt == nil {
		return nil, errors.New("store: not open")
	}

	row := s.getRunStmt.QueryRowContext(ctx, runID)
	summary, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: get run: %w", err)
	}
	return summary, nil
}

// History lists indexed runs for a scenario, newest first.
func (s *HistoryStore) History(ctx context.Context, scenarioID string, limit int) ([]*RunSummary, error) {
	if s == nil || s.historyStmt == nil {
		return nil, errors.New("store: not open")
	}
	if limit <= 0 {
		limit = defaultHistoryLimit
	}

	rows, err := s.historyStmt.QueryContext(ctx, scenarioID, limit)
	if err != nil {
		return nil, fmt.Errorf("store: history: %w", err)
	}
	defer rows.Close()
	return scanRuns(rows)
}

// ListRuns lists all indexed runs, newest first.
func (s *HistoryStore) ListRuns(ctx context.Context, limit int) ([]*RunSummary, error) {
	if s == nil || s.allRunsStmt == nil {
		return nil, errors.New("store: not open")
	}
	if limit <= 0 {
		limit = defaultHistoryLimit
	}

	rows, err := s.allRunsStmt.QueryContext(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("store: list runs: %w", err)
	}
	defer rows.Close()
	return scanRuns(rows)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*RunSummary, error) {
	var (
		out                 RunSummary
		costTotal           sql.NullFloat64
		startedAt, finished int64
	)
	err := row.Scan(
		&out.RunID,
		&out.ScenarioID,
		&out.ScenarioHash,
		&out.Adapter,
		&out.Model,
		&out.Verdict,
		&out.PassRate,
		&out.MeanScore,
		&out.TrialsTotal,
		&costTotal,
		&startedAt,
		&finished,
	)
	if err != nil {
		return nil, err
	}
	if costTotal.Valid {
		out.CostTotal = &costTotal.Float64
	}
	out.StartedAt = time.UnixMilli(startedAt).UTC()
	out.FinishedAt = time.UnixMilli(finished).UTC()
	return &out, nil
}

func scanRuns(rows *sql.Rows) ([]*RunSummary, error) {
	var out []*RunSummary
	for rows.Next() {
		summary, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("store: scan run: %w", err)
		}
		out = append(out, summary)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: iterate runs: %w", err)
	}
	return out, nil
}

// Close releases prepared statements and the database handle.
func (s *HistoryStore) Close() error {
	if s == nil {
		return nil
	}
	for _, stmt := range []*sql.Stmt{s.insertRunStmt, s.getRunStmt, s.historyStmt, s.allRunsStmt} {
		if stmt != nil {
			_ = stmt.Close()
		}
	}
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}
