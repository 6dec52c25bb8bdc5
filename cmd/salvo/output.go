package main

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/jherleth/salvo-ai/internal/config"
	"github.com/jherleth/salvo-ai/internal/evaluation"
	"github.com/jherleth/salvo-ai/internal/orchestrator"
	"github.com/jherleth/salvo-ai/internal/recording"
)

const (
	ansiReset  = "\033[0m"
	ansiGreen  = "\033[32m"
	ansiRed    = "\033[31m"
	ansiYellow = "\033[33m"
)

func useColor() bool {
	return !config.CI()
}

func colorize(s, color string) string {
	if !useColor() {
		return s
	}
	return color + s + ansiReset
}

func verdictLabel(verdict string) string {
	switch verdict {
	case orchestrator.VerdictPass:
		return colorize(verdict, ansiGreen)
	case orchestrator.VerdictPartial:
		return colorize(verdict, ansiYellow)
	default:
		return colorize(verdict, ansiRed)
	}
}

func formatCost(cost *float64) string {
	if cost == nil {
		return "n/a"
	}
	return fmt.Sprintf("$%.6f", *cost)
}

func printJSON(w io.Writer, v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("salvo: marshal json: %w", err)
	}
	_, err = fmt.Fprintln(w, string(b))
	return err
}

func renderSuiteResult(w io.Writer, suite *orchestrator.SuiteResult) {
	fmt.Fprintf(w, "Run %s  scenario=%s  model=%s/%s\n", suite.RunID, suite.ScenarioID, suite.Adapter, suite.Model)
	fmt.Fprintf(w, "Verdict: %s  pass_rate=%.2f  mean_score=%.3f  threshold=%.2f\n",
		verdictLabel(suite.Verdict), suite.PassRate, suite.MeanScore, suite.Threshold)
	fmt.Fprintf(w, "Trials: %d/%d  latency_p50=%.3fs  latency_p95=%.3fs  cost=%s  judge_cost=%s\n",
		len(suite.Trials), suite.TrialsRequested, suite.LatencyP50, suite.LatencyP95,
		formatCost(suite.CostTotal), formatCost(suite.JudgeCostTotal))
	if suite.EarlyStopped {
		reason := suite.EarlyStopReason
		if reason == "" {
			reason = "early stop"
		}
		fmt.Fprintf(w, "Early stop: %s\n", reason)
	}

	for _, trial := range suite.Trials {
		renderTrial(w, &trial)
	}

	if len(suite.FailureRanking) > 0 {
		fmt.Fprintln(w, "\nTop failures:")
		for _, f := range suite.FailureRanking {
			fmt.Fprintf(w, "  assertion %d (%s): failed %d time(s), fail_rate=%.2f, weight_lost=%.2f\n",
				f.AssertionIndex, f.AssertionType, f.FailCount, f.FailRate, f.TotalWeightLost)
			for _, d := range f.SampleDetails {
				fmt.Fprintf(w, "    - %s\n", d)
			}
		}
	}
}

func renderTrial(w io.Writer, trial *orchestrator.TrialResult) {
	status := colorize("PASS", ansiGreen)
	switch {
	case trial.Status == orchestrator.StatusInfraError:
		status = colorize("INFRA", ansiRed)
	case trial.HardFailed:
		status = colorize("HARD FAIL", ansiRed)
	case !trial.Passed:
		status = colorize("FAIL", ansiRed)
	}

	fmt.Fprintf(w, "\n  trial %d [%s] score=%.3f retries=%d", trial.TrialIndex, status, trial.Score, trial.RetryCount)
	if trial.Trace != nil {
		fmt.Fprintf(w, " turns=%d cost=%s latency=%.3fs", trial.Trace.TurnCount, formatCost(trial.Trace.CostUSD), trial.Trace.LatencySeconds)
	}
	fmt.Fprintln(w)
	if trial.Error != "" {
		fmt.Fprintf(w, "    error: %s\n", trial.Error)
	}

	for _, er := range sortBySeverity(trial.EvalResults) {
		marker := colorize("ok", ansiGreen)
		if !er.Passed {
			if er.Required {
				marker = colorize("HARD FAIL", ansiRed)
			} else {
				marker = colorize("fail", ansiRed)
			}
		}
		fmt.Fprintf(w, "    [%s] %s #%d: %s\n", marker, er.AssertionType, er.AssertionIndex, er.Details)
	}
}

// sortBySeverity orders assertion results hard-fail first, soft-fail
// second, pass last, preserving assertion order within each band.
func sortBySeverity(results []evaluation.EvalResult) []evaluation.EvalResult {
	out := append([]evaluation.EvalResult(nil), results...)
	rank := func(er evaluation.EvalResult) int {
		switch {
		case !er.Passed && er.Required:
			return 0
		case !er.Passed:
			return 1
		default:
			return 2
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return rank(out[i]) < rank(out[j]) })
	return out
}

func renderRecordedTrace(w io.Writer, recorded *recording.RecordedTrace) {
	tr := &recorded.Trace

	fmt.Fprintln(w, colorize("[REPLAY]", ansiYellow)+" recorded trace, no provider calls")
	fmt.Fprintf(w, "Trace %s  scenario=%s  model=%s/%s  recorded_at=%s\n",
		tr.TraceID, recorded.Metadata.ScenarioName, tr.Provider, tr.Model,
		recorded.Metadata.RecordedAt.Format("2006-01-02 15:04:05 MST"))
	fmt.Fprintf(w, "Mode: %s  scenario_hash=%s\n", recorded.Metadata.RecordingMode, shortHash(recorded.Metadata.ScenarioHash))
	fmt.Fprintf(w, "Turns: %d  tool_calls: %d  tokens: %d\n", tr.TurnCount, len(tr.ToolCalls), tr.Usage.TotalTokens)
	fmt.Fprintf(w, "Cost: %s (recorded)  Latency: %.3fs (recorded)\n", formatCost(tr.CostUSD), tr.LatencySeconds)

	for _, msg := range tr.Messages {
		content := msg.Content
		if len(content) > 200 {
			content = content[:200] + "..."
		}
		fmt.Fprintf(w, "  %-11s %s\n", msg.Role+":", strings.ReplaceAll(content, "\n", " "))
		for _, tc := range msg.ToolCalls {
			fmt.Fprintf(w, "    tool_call: %s\n", tc.Name)
		}
	}
}

func shortHash(hash string) string {
	if len(hash) > 12 {
		return hash[:12]
	}
	return hash
}

func renderRevalResult(w io.Writer, rv *recording.RevalResult) {
	status := colorize("PASS", ansiGreen)
	if !rv.Passed {
		status = colorize("FAIL", ansiRed)
	}
	fmt.Fprintf(w, "Reval %s  trace=%s\n", rv.RevalID, rv.OriginalTraceID)
	fmt.Fprintf(w, "Result: %s  score=%.3f  threshold=%.2f  assertions=%d (skipped %d)\n",
		status, rv.Score, rv.Threshold, rv.AssertionsUsed, rv.AssertionsSkipped)

	for _, er := range sortBySeverity(rv.EvalResults) {
		marker := colorize("ok", ansiGreen)
		if !er.Passed {
			marker = colorize("fail", ansiRed)
		}
		fmt.Fprintf(w, "  [%s] %s #%d: %s\n", marker, er.AssertionType, er.AssertionIndex, er.Details)
	}
}
