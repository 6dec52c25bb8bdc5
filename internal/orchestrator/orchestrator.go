package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"os"
	"runtime"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jherleth/salvo-ai/internal/adapter"
	"github.com/jherleth/salvo-ai/internal/evaluation"
	"github.com/jherleth/salvo-ai/internal/runner"
	"github.com/jherleth/salvo-ai/internal/scenario"
)

const (
	defaultSendTimeout  = 120 * time.Second
	defaultMaxRetries   = 3
	maxDefaultParallel  = 4
	cancelledTrialError = "cancelled"
)

// Options configure one suite run.
type Options struct {
	Trials      int
	Parallel    int           // 0 means min(Trials, CPU count, 4)
	MaxRetries  int           // transient-error retries per trial
	EarlyStop   bool          // stop once the outcome is determined
	AllowInfra  bool          // exclude infra-errored trials from the verdict base
	Threshold   float64       // pass threshold; <0 means use the scenario's
	SendTimeout time.Duration // per-SendTurn timeout
}

// Orchestrator runs a scenario N times with bounded concurrency, retry,
// and optional early-stop, then folds the trials into a SuiteResult.
type Orchestrator struct {
	factory    adapter.Factory
	scn        *scenario.Scenario
	evaluators *evaluation.Registry
	evalCtx    *evaluation.Context
	traces     TraceWriter
	opts       Options
}

// New builds an orchestrator. traces may be nil to disable persistence.
func New(factory adapter.Factory, scn *scenario.Scenario, evaluators *evaluation.Registry, evalCtx *evaluation.Context, traces TraceWriter, opts Options) (*Orchestrator, error) {
	if factory == nil {
		return nil, errors.New("orchestrator: nil adapter factory")
	}
	if scn == nil {
		return nil, errors.New("orchestrator: nil scenario")
	}
	if evaluators == nil {
		return nil, errors.New("orchestrator: nil evaluator registry")
	}

	if opts.Trials <= 0 {
		opts.Trials = 1
	}
	if opts.Parallel <= 0 {
		opts.Parallel = defaultParallel(opts.Trials)
	}
	if opts.MaxRetries < 0 {
		opts.MaxRetries = defaultMaxRetries
	}
	if opts.Threshold < 0 {
		opts.Threshold = scn.Threshold
	}
	if opts.SendTimeout <= 0 {
		opts.SendTimeout = defaultSendTimeout
	}

	return &Orchestrator{
		factory:    factory,
		scn:        scn,
		evaluators: evaluators,
		evalCtx:    evalCtx,
		traces:     traces,
		opts:       opts,
	}, nil
}

func defaultParallel(trials int) int {
	p := runtime.NumCPU()
	if p > maxDefaultParallel {
		p = maxDefaultParallel
	}
	if p > trials {
		p = trials
	}
	if p < 1 {
		p = 1
	}
	return p
}

// Run executes all trials and returns the aggregated suite result.
// Extras are validated before any trial starts; a rejection aborts the
// whole suite.
func (o *Orchestrator) Run(ctx context.Context) (*SuiteResult, error) {
	if o == nil {
		return nil, errors.New("orchestrator: nil orchestrator")
	}
	if ctx == nil {
		return nil, errors.New("orchestrator: nil context")
	}

	if err := adapter.ValidateExtras(o.scn.Extras); err != nil {
		return nil, err
	}

	runID, err := newID()
	if err != nil {
		return nil, fmt.Errorf("orchestrator: generate run id: %w", err)
	}

	mocks := runner.NewMockRegistry(o.scn.Tools)
	startedAt := time.Now().UTC()

	trialCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		mu              sync.Mutex
		wg              sync.WaitGroup
		results         = make([]*TrialResult, o.opts.Trials)
		completed       int
		scoreSum        float64
		earlyStopReason string
	)

	sem := make(chan struct{}, o.opts.Parallel)

	for i := 0; i < o.opts.Trials; i++ {
		if trialCtx.Err() != nil {
			break
		}

		idx := i
		wg.Add(1)
		go func() {
			defer wg.Done()

			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-trialCtx.Done():
				return
			}
			if trialCtx.Err() != nil {
				return
			}

			tr := o.runTrial(trialCtx, runID, idx, mocks)

			mu.Lock()
			defer mu.Unlock()
			results[idx] = tr
			completed++
			scoreSum += tr.Score

			if !o.opts.EarlyStop {
				return
			}
			if tr.HardFailed {
				earlyStopReason = fmt.Sprintf("hard fail on trial %d", idx)
				cancel()
				return
			}
			// Mathematical impossibility: even if every remaining trial
			// scores a perfect 1.0, the mean cannot reach the threshold.
			remaining := o.opts.Trials - completed
			if remaining > 0 {
				bestPossible := (scoreSum + float64(remaining)) / float64(o.opts.Trials)
				if bestPossible < o.opts.Threshold {
					earlyStopReason = "threshold mathematically unreachable"
					cancel()
				}
			}
		}()
	}

	wg.Wait()
	finishedAt := time.Now().UTC()

	trials := make([]TrialResult, 0, o.opts.Trials)
	for _, tr := range results {
		if tr != nil {
			trials = append(trials, *tr)
		}
	}

	suite := aggregate(trials, o.opts, o.scn, runID, startedAt, finishedAt)
	suite.EarlyStopped = len(trials) < o.opts.Trials
	suite.EarlyStopReason = earlyStopReason
	return suite, nil
}

// runTrial executes one isolated trial. The trace id is minted before
// anything can fail so error paths still have one to persist under.
func (o *Orchestrator) runTrial(ctx context.Context, runID string, idx int, mocks *runner.MockRegistry) *TrialResult {
	out := &TrialResult{
		TrialIndex: idx,
		RunID:      runID,
		Status:     StatusInfraError,
	}

	traceID, err := newID()
	if err != nil {
		out.Error = fmt.Sprintf("generate trace id: %v", err)
		return out
	}
	out.TraceID = traceID

	// Per-trial scratch directory so file-touching mocks cannot leak
	// state into sibling trials.
	scratch, err := os.MkdirTemp("", fmt.Sprintf("salvo_trial_%d_", idx))
	if err == nil {
		defer os.RemoveAll(scratch)
	}

	a, err := o.factory()
	if err != nil {
		out.Error = err.Error()
		o.persistStub(runID, out)
		return out
	}

	cfg := &adapter.Config{
		Model:       o.scn.Model,
		Temperature: o.scn.Temperature,
		Seed:        o.scn.Seed,
		Timeout:     o.opts.SendTimeout,
		Extras:      o.scn.Extras,
	}

	run := runner.NewRunner(a, mocks)
	trace, retries, err := retryWithBackoff(ctx, o.opts.MaxRetries, func() (*runner.Trace, error) {
		return run.Run(ctx, o.scn, cfg, traceID)
	})
	out.RetryCount = retries

	if err != nil {
		if errors.Is(err, context.Canceled) {
			out.Error = cancelledTrialError
		} else {
			out.Error = err.Error()
		}
		o.persistStub(runID, out)
		return out
	}

	out.Trace = trace
	out.Status = StatusOK

	evalResults, err := o.evaluators.EvaluateAll(ctx, trace, o.scn.Assertions, o.evalCtx)
	if err != nil {
		out.Status = StatusInfraError
		out.Error = err.Error()
		o.persist(runID, out)
		return out
	}
	out.EvalResults = evalResults

	score := evaluation.ComputeScore(evalResults, o.opts.Threshold)
	out.Score = score.Value
	out.Passed = score.Passed
	out.HardFailed = score.HardFailed

	o.persist(runID, out)
	return out
}

func (o *Orchestrator) persist(runID string, tr *TrialResult) {
	if o.traces == nil || tr.Trace == nil {
		return
	}
	_ = o.traces.SaveTrace(tr.Trace)
	_ = o.traces.AppendManifest(runID, ManifestEntry{
		TraceID:    tr.TraceID,
		TrialIndex: tr.TrialIndex,
		Status:     tr.Status,
	})
}

// persistStub writes a minimal error trace so the manifest still lists
// the failed trial.
func (o *Orchestrator) persistStub(runID string, tr *TrialResult) {
	if o.traces == nil || tr.TraceID == "" {
		return
	}
	stub := &runner.Trace{
		TraceID:      tr.TraceID,
		ScenarioHash: o.scn.Hash,
		Provider:     o.scn.Adapter,
		Model:        o.scn.Model,
		FinishReason: adapter.FinishError,
		Timestamp:    time.Now().UTC(),
	}
	_ = o.traces.SaveTrace(stub)
	_ = o.traces.AppendManifest(runID, ManifestEntry{
		TraceID:    tr.TraceID,
		TrialIndex: tr.TrialIndex,
		Status:     tr.Status,
	})
}

func newID() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", err
	}
	return id.String(), nil
}
