package orchestrator

import (
	"time"

	"github.com/jherleth/salvo-ai/internal/evaluation"
	"github.com/jherleth/salvo-ai/internal/runner"
)

// Trial statuses.
const (
	StatusOK         = "ok"
	StatusInfraError = "infra_error"
)

// Suite verdicts.
const (
	VerdictPass       = "PASS"
	VerdictFail       = "FAIL"
	VerdictHardFail   = "HARD_FAIL"
	VerdictPartial    = "PARTIAL"
	VerdictInfraError = "INFRA_ERROR"
)

// TrialResult is the outcome of one trial: the trace, per-assertion
// results, and the scored verdict.
type TrialResult struct {
	TrialIndex  int                     `json:"trial_index"`
	RunID       string                  `json:"run_id"`
	TraceID     string                  `json:"trace_id"`
	Status      string                  `json:"status"`
	Trace       *runner.Trace           `json:"trace,omitempty"`
	EvalResults []evaluation.EvalResult `json:"eval_results,omitempty"`
	Score       float64                 `json:"score"`
	Passed      bool                    `json:"passed"`
	HardFailed  bool                    `json:"hard_failed"`
	RetryCount  int                     `json:"retry_count"`
	Error       string                  `json:"error,omitempty"`
}

// AssertionFailure is one row of the cross-trial failure ranking.
type AssertionFailure struct {
	AssertionIndex  int      `json:"assertion_index"`
	AssertionType   string   `json:"assertion_type"`
	FailCount       int      `json:"fail_count"`
	FailRate        float64  `json:"fail_rate"`
	TotalWeightLost float64  `json:"total_weight_lost"`
	SampleDetails   []string `json:"sample_details,omitempty"`
}

// SuiteResult aggregates all trials of one run.
type SuiteResult struct {
	RunID           string             `json:"run_id"`
	ScenarioID      string             `json:"scenario_id"`
	ScenarioHash    string             `json:"scenario_hash"`
	Adapter         string             `json:"adapter"`
	Model           string             `json:"model"`
	StartedAt       time.Time          `json:"started_at"`
	FinishedAt      time.Time          `json:"finished_at"`
	Trials          []TrialResult      `json:"trials"`
	TrialsRequested int                `json:"trials_requested"`
	Threshold       float64            `json:"threshold"`
	Verdict         string             `json:"verdict"`
	PassRate        float64            `json:"pass_rate"`
	MeanScore       float64            `json:"mean_score"`
	LatencyP50      float64            `json:"latency_p50"`
	LatencyP95      float64            `json:"latency_p95"`
	CostTotal       *float64           `json:"cost_total,omitempty"`
	JudgeCostTotal  *float64           `json:"judge_cost_total,omitempty"`
	FailureRanking  []AssertionFailure `json:"failure_ranking,omitempty"`
	EarlyStopped    bool               `json:"early_stopped,omitempty"`
	EarlyStopReason string             `json:"early_stop_reason,omitempty"`
	TotalRetries    int                `json:"total_retries"`
}

// ManifestEntry records one trial's trace in the run manifest.
type ManifestEntry struct {
	TraceID    string `json:"trace_id"`
	TrialIndex int    `json:"trial_index"`
	Status     string `json:"status"`
}

// TraceWriter is what the orchestrator needs from storage: immediate
// per-trial trace persistence plus serialized manifest updates. Optional;
// a nil writer disables persistence.
type TraceWriter interface {
	SaveTrace(tr *runner.Trace) error
	AppendManifest(runID string, entry ManifestEntry) error
}
