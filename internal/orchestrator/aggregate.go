package orchestrator

import (
	"sort"
	"time"

	"github.com/jherleth/salvo-ai/internal/scenario"
)

// aggregate folds completed trials into a SuiteResult.
func aggregate(trials []TrialResult, opts Options, scn *scenario.Scenario, runID string, startedAt, finishedAt time.Time) *SuiteResult {
	sort.Slice(trials, func(i, j int) bool { return trials[i].TrialIndex < trials[j].TrialIndex })

	out := &SuiteResult{
		RunID:           runID,
		ScenarioID:      scn.Name,
		ScenarioHash:    scn.Hash,
		Adapter:         scn.Adapter,
		Model:           scn.Model,
		StartedAt:       startedAt,
		FinishedAt:      finishedAt,
		Trials:          trials,
		TrialsRequested: opts.Trials,
		Threshold:       opts.Threshold,
	}

	infraCount := 0
	for _, t := range trials {
		out.TotalRetries += t.RetryCount
		if t.Status == StatusInfraError {
			infraCount++
		}
	}

	// Infra-errored trials leave the base set only when allow_infra is on;
	// otherwise they count as failures unless every trial errored.
	base := trials
	if opts.AllowInfra {
		base = base[:0:0]
		for _, t := range trials {
			if t.Status != StatusInfraError {
				base = append(base, t)
			}
		}
	}

	switch {
	case len(trials) == 0, len(base) == 0, infraCount == len(trials) && !opts.AllowInfra:
		out.Verdict = VerdictInfraError
		return out
	}

	passed := 0
	hardFailed := false
	var scoreSum float64
	for _, t := range base {
		scoreSum += t.Score
		if t.Passed {
			passed++
		}
		if t.HardFailed {
			hardFailed = true
		}
	}
	out.PassRate = float64(passed) / float64(len(base))
	out.MeanScore = scoreSum / float64(len(base))

	switch {
	case hardFailed:
		out.Verdict = VerdictHardFail
	case passed == len(base):
		out.Verdict = VerdictPass
	case passed > 0:
		out.Verdict = VerdictPartial
	default:
		out.Verdict = VerdictFail
	}

	// Percentiles run over successful-trial latencies; a single trial's
	// value stands for both.
	var latencies []float64
	for _, t := range trials {
		if t.Status == StatusOK && t.Trace != nil {
			latencies = append(latencies, t.Trace.LatencySeconds)
		}
	}
	out.LatencyP50 = percentile(latencies, 50)
	out.LatencyP95 = percentile(latencies, 95)

	// cost_total sums only agent costs; judge LLM spend is tracked apart.
	var costTotal float64
	costKnown := false
	var judgeTotal float64
	judgeKnown := false
	for _, t := range trials {
		if t.Trace != nil && t.Trace.CostUSD != nil {
			costTotal += *t.Trace.CostUSD
			costKnown = true
		}
		for _, er := range t.EvalResults {
			if er.Metadata == nil {
				continue
			}
			if v, ok := er.Metadata["judge_cost_usd"].(float64); ok {
				judgeTotal += v
				judgeKnown = true
			}
		}
	}
	if costKnown {
		out.CostTotal = &costTotal
	}
	if judgeKnown {
		out.JudgeCostTotal = &judgeTotal
	}

	out.FailureRanking = rankFailures(trials)
	return out
}

func percentile(values []float64, p float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	if len(sorted) == 1 {
		return sorted[0]
	}

	rank := p / 100 * float64(len(sorted)-1)
	lo := int(rank)
	hi := lo + 1
	if hi >= len(sorted) {
		return sorted[len(sorted)-1]
	}
	frac := rank - float64(lo)
	return sorted[lo]*(1-frac) + sorted[hi]*frac
}

// rankFailures groups failing assertion results by assertion index across
// trials and orders them by frequency times average weight lost, keeping
// up to three sample details per row.
func rankFailures(trials []TrialResult) []AssertionFailure {
	byIndex := make(map[int]*AssertionFailure)

	for _, t := range trials {
		for _, er := range t.EvalResults {
			if er.Passed {
				continue
			}
			entry, ok := byIndex[er.AssertionIndex]
			if !ok {
				entry = &AssertionFailure{
					AssertionIndex: er.AssertionIndex,
					AssertionType:  er.AssertionType,
				}
				byIndex[er.AssertionIndex] = entry
			}
			entry.FailCount++
			entry.TotalWeightLost += (1 - er.Score) * er.Weight
			if len(entry.SampleDetails) < 3 && er.Details != "" {
				entry.SampleDetails = append(entry.SampleDetails, er.Details)
			}
		}
	}

	if len(byIndex) == 0 {
		return nil
	}

	out := make([]AssertionFailure, 0, len(byIndex))
	for _, entry := range byIndex {
		entry.FailRate = float64(entry.FailCount) / float64(len(trials))
		out = append(out, *entry)
	}

	impact := func(f AssertionFailure) float64 {
		avgLost := f.TotalWeightLost / float64(f.FailCount)
		return float64(f.FailCount) * avgLost
	}
	sort.Slice(out, func(i, j int) bool {
		ii, jj := impact(out[i]), impact(out[j])
		if ii != jj {
			return ii > jj
		}
		return out[i].AssertionIndex < out[j].AssertionIndex
	})
	return out
}
