package evaluation

import (
	"context"
	"fmt"

	"github.com/jherleth/salvo-ai/internal/runner"
	"github.com/jherleth/salvo-ai/internal/scenario"
)

// CostLimitEvaluator passes when the trial's estimated cost is at or
// under the cap. Unknown cost fails closed: a model with no pricing entry
// can never satisfy a cost limit.
type CostLimitEvaluator struct{}

func (CostLimitEvaluator) Type() string {
	return "cost_limit"
}

func (CostLimitEvaluator) Evaluate(_ context.Context, tr *runner.Trace, a *scenario.Assertion, _ *Context) (*EvalResult, error) {
	if tr == nil {
		return nil, fmt.Errorf("cost_limit: nil trace")
	}
	if a == nil || a.MaxUSD == nil {
		return nil, fmt.Errorf("cost_limit: missing max_usd")
	}

	out := &EvalResult{
		AssertionType: "cost_limit",
		Weight:        a.Weight,
		Required:      a.Required,
	}

	if tr.CostUSD == nil {
		out.Details = fmt.Sprintf("unknown cost (no pricing for model %q), cannot verify limit of $%.4f", tr.Model, *a.MaxUSD)
		return out, nil
	}

	out.Passed = *tr.CostUSD <= *a.MaxUSD
	if out.Passed {
		out.Score = 1.0
	}
	out.Details = fmt.Sprintf("cost $%.6f vs limit $%.4f", *tr.CostUSD, *a.MaxUSD)
	return out, nil
}

// LatencyLimitEvaluator passes when total trial latency is at or under
// the cap.
type LatencyLimitEvaluator struct{}

func (LatencyLimitEvaluator) Type() string {
	return "latency_limit"
}

func (LatencyLimitEvaluator) Evaluate(_ context.Context, tr *runner.Trace, a *scenario.Assertion, _ *Context) (*EvalResult, error) {
	if tr == nil {
		return nil, fmt.Errorf("latency_limit: nil trace")
	}
	if a == nil || a.MaxSeconds == nil {
		return nil, fmt.Errorf("latency_limit: missing max_seconds")
	}

	out := &EvalResult{
		AssertionType: "latency_limit",
		Weight:        a.Weight,
		Required:      a.Required,
	}

	out.Passed = tr.LatencySeconds <= *a.MaxSeconds
	if out.Passed {
		out.Score = 1.0
	}
	out.Details = fmt.Sprintf("latency %.3fs vs limit %.3fs", tr.LatencySeconds, *a.MaxSeconds)
	return out, nil
}
