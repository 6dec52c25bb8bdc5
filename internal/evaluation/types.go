package evaluation

import (
	"context"
	"io"
	"strings"

	"github.com/jherleth/salvo-ai/internal/adapter"
	"github.com/jherleth/salvo-ai/internal/config"
	"github.com/jherleth/salvo-ai/internal/runner"
	"github.com/jherleth/salvo-ai/internal/scenario"
)

// EvalResult is the outcome of one assertion against one trace.
type EvalResult struct {
	AssertionIndex int            `json:"assertion_index"`
	AssertionType  string         `json:"assertion_type"`
	Passed         bool           `json:"passed"`
	Score          float64        `json:"score"`
	Weight         float64        `json:"weight"`
	Required       bool           `json:"required"`
	Details        string         `json:"details,omitempty"`
	Metadata       map[string]any `json:"metadata,omitempty"`
}

// Context carries read-only evaluation state into evaluators. Evaluators
// that need project-level configuration (the judge) read it from here
// instead of smuggling it through the assertion.
type Context struct {
	Scenario    *scenario.Scenario
	JudgeConfig *config.JudgeConfig
	Adapters    *adapter.Registry
	Verbose     bool
	LogWriter   io.Writer
}

// Evaluator checks one assertion type against a trace. Evaluators report
// failures through the EvalResult; an error return is reserved for
// programming mistakes (nil inputs), never model behavior.
type Evaluator interface {
	Type() string
	Evaluate(ctx context.Context, tr *runner.Trace, a *scenario.Assertion, ec *Context) (*EvalResult, error)
}

// Registry dispatches assertion type strings to evaluators.
type Registry struct {
	evaluators map[string]Evaluator
}

// NewRegistry returns a registry with every built-in evaluator registered.
func NewRegistry() *Registry {
	r := &Registry{evaluators: make(map[string]Evaluator)}
	r.Register(&JMESPathEvaluator{})
	r.Register(&ToolSequenceEvaluator{})
	r.Register(&CostLimitEvaluator{})
	r.Register(&LatencyLimitEvaluator{})
	r.Register(&JudgeEvaluator{})
	return r
}

// Register adds an evaluator to the registry.
func (r *Registry) Register(e Evaluator) {
	if r == nil {
		panic("evaluation: register on nil registry")
	}
	if e == nil {
		panic("evaluation: register nil evaluator")
	}
	typ := strings.TrimSpace(e.Type())
	if typ == "" {
		panic("evaluation: evaluator has empty type")
	}
	if r.evaluators == nil {
		r.evaluators = make(map[string]Evaluator)
	}
	r.evaluators[typ] = e
}

// Get returns the evaluator for an assertion type.
func (r *Registry) Get(typ string) (Evaluator, bool) {
	if r == nil || r.evaluators == nil {
		return nil, false
	}
	e, ok := r.evaluators[typ]
	return e, ok
}

// EvaluateAll runs every assertion through its evaluator in order. An
// unknown assertion type produces a failing result and the trial
// continues.
func (r *Registry) EvaluateAll(ctx context.Context, tr *runner.Trace, assertions []scenario.Assertion, ec *Context) ([]EvalResult, error) {
	out := make([]EvalResult, 0, len(assertions))
	for i := range assertions {
		a := &assertions[i]

		e, ok := r.Get(a.Type)
		if !ok {
			out = append(out, EvalResult{
				AssertionIndex: i,
				AssertionType:  a.Type,
				Passed:         false,
				Score:          0,
				Weight:         a.Weight,
				Required:       a.Required,
				Details:        "no evaluator registered for type " + a.Type,
			})
			continue
		}

		res, err := e.Evaluate(ctx, tr, a, ec)
		if err != nil {
			return nil, err
		}
		res.AssertionIndex = i
		out = append(out, *res)
	}
	return out, nil
}
