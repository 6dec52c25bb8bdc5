package main

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/jherleth/salvo-ai/internal/adapter"
	"github.com/jherleth/salvo-ai/internal/evaluation"
	"github.com/jherleth/salvo-ai/internal/recording"
	"github.com/jherleth/salvo-ai/internal/scenario"
	"github.com/jherleth/salvo-ai/internal/storage"
)

type reevalOptions struct {
	scenarioPath   string
	allowPartial   bool
	strictScenario bool
}

func newReevalCmd(st *cliState) *cobra.Command {
	var opts reevalOptions

	cmd := &cobra.Command{
		Use:   "reeval [trace-id]",
		Short: "Re-evaluate a recorded trace against current assertions",
		Args:  cobra.MaximumNArgs(1),
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return loadConfig(st)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			traceID := ""
			if len(args) == 1 {
				traceID = args[0]
			}
			return runReeval(cmd, st, traceID, &opts)
		},
	}

	cmd.Flags().StringVar(&opts.scenarioPath, "scenario", "", "fresh scenario file to evaluate against")
	cmd.Flags().BoolVar(&opts.allowPartial, "allow-partial-reeval", false, "skip content-dependent assertions on metadata_only traces")
	cmd.Flags().BoolVar(&opts.strictScenario, "strict-scenario", false, "refuse when the scenario hash differs from the recording")

	return cmd
}

func runReeval(cmd *cobra.Command, st *cliState, traceID string, opts *reevalOptions) error {
	stor := storage.NewStore(st.cfg.StorageDir)
	replayer := recording.NewReplayer(stor)

	recorded, err := replayer.Load(traceID)
	if err != nil {
		return err
	}

	var fresh *scenario.Scenario
	if path := strings.TrimSpace(opts.scenarioPath); path != "" {
		fresh, err = scenario.Load(path)
		if err != nil {
			return err
		}
	}

	scn := fresh
	if scn == nil {
		scn = recorded.ScenarioSnapshot
	}

	evaluators := evaluation.NewRegistry()
	evalCtx := &evaluation.Context{
		Scenario:    scn,
		JudgeConfig: &st.cfg.Judge,
		Adapters:    adapter.NewRegistry(),
		LogWriter:   cmd.ErrOrStderr(),
	}

	rv, err := recording.Reevaluate(cmd.Context(), recorded, fresh, evaluators, evalCtx, recording.ReevalOptions{
		StrictScenario: opts.strictScenario,
		AllowPartial:   opts.allowPartial,
	}, cmd.ErrOrStderr())
	if err != nil {
		return err
	}

	if err := stor.SaveRevalResult(rv); err != nil {
		return err
	}

	renderRevalResult(cmd.OutOrStdout(), rv)

	if !rv.Passed {
		return errSuiteFailed
	}
	return nil
}
