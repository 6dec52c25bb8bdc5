package recording

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"

	"github.com/jherleth/salvo-ai/internal/evaluation"
	"github.com/jherleth/salvo-ai/internal/scenario"
)

// ErrScenarioDrift means the supplied scenario no longer matches the one
// the trace was recorded against and strict checking is on.
var ErrScenarioDrift = errors.New("recording: scenario hash does not match recorded trace")

// ErrContentUnavailable means a metadata_only recording cannot satisfy
// content-dependent assertions and partial re-evaluation was not allowed.
var ErrContentUnavailable = errors.New("recording: trace is metadata_only and has content-dependent assertions")

// contentDependentTypes need message or response content, which
// metadata_only recordings scrub. Sequence and limit checks survive on
// structure alone. Sugar types normalize to jmespath before this check.
var contentDependentTypes = map[string]struct{}{
	"jmespath": {},
	"judge":    {},
}

// ReevalOptions control scenario drift handling and partial evaluation.
type ReevalOptions struct {
	StrictScenario bool
	AllowPartial   bool
}

// Reevaluate runs assertions against a recorded trace without any
// provider call for the agent itself (a judge assertion still calls its
// judge model). A fresh scenario overrides the embedded snapshot; drift
// between its hash and the recorded one refuses under StrictScenario and
// warns otherwise.
func Reevaluate(ctx context.Context, recorded *RecordedTrace, fresh *scenario.Scenario, evaluators *evaluation.Registry, ec *evaluation.Context, opts ReevalOptions, warn io.Writer) (*RevalResult, error) {
	if recorded == nil {
		return nil, errors.New("recording: nil recorded trace")
	}
	if evaluators == nil {
		return nil, errors.New("recording: nil evaluator registry")
	}
	if err := ValidateSchemaVersion(recorded.Metadata); err != nil {
		return nil, err
	}

	scn := fresh
	if scn == nil {
		scn = recorded.ScenarioSnapshot
	}
	if scn == nil {
		return nil, errors.New("recording: no scenario available: trace has no snapshot and none was supplied")
	}

	if fresh != nil && fresh.Hash != recorded.Metadata.ScenarioHash {
		if opts.StrictScenario {
			return nil, fmt.Errorf("%w: recorded %s, scenario %s", ErrScenarioDrift, recorded.Metadata.ScenarioHash, fresh.Hash)
		}
		if warn != nil {
			fmt.Fprintf(warn, "warning: scenario hash drift (recorded %s, now %s)\n", recorded.Metadata.ScenarioHash, fresh.Hash)
		}
	}

	assertions := scn.Assertions
	usable := assertions
	skipped := 0

	if recorded.IsMetadataOnly() {
		usable = nil
		for _, a := range assertions {
			if _, dependent := contentDependentTypes[a.Type]; dependent {
				skipped++
				continue
			}
			usable = append(usable, a)
		}
		if skipped > 0 {
			if !opts.AllowPartial {
				return nil, fmt.Errorf("%w: %d of %d assertions need content", ErrContentUnavailable, skipped, len(assertions))
			}
			if warn != nil {
				fmt.Fprintf(warn, "notice: skipping %d content-dependent assertion(s) on metadata_only trace\n", skipped)
			}
		}
	}

	results, err := evaluators.EvaluateAll(ctx, &recorded.Trace, usable, ec)
	if err != nil {
		return nil, err
	}

	score := evaluation.ComputeScore(results, scn.Threshold)

	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("recording: generate reval id: %w", err)
	}

	return &RevalResult{
		RevalID:              id.String(),
		OriginalTraceID:      recorded.Trace.TraceID,
		ScenarioHashAtReeval: scn.Hash,
		EvalResults:          results,
		Score:                score.Value,
		Passed:               score.Passed,
		Threshold:            scn.Threshold,
		EvaluatedAt:          time.Now().UTC(),
		AssertionsUsed:       len(usable),
		AssertionsSkipped:    skipped,
	}, nil
}
