package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/jherleth/salvo-ai/internal/adapter"
	"github.com/jherleth/salvo-ai/internal/evaluation"
	"github.com/jherleth/salvo-ai/internal/orchestrator"
	"github.com/jherleth/salvo-ai/internal/recording"
	"github.com/jherleth/salvo-ai/internal/scenario"
	"github.com/jherleth/salvo-ai/internal/storage"
	"github.com/jherleth/salvo-ai/internal/store"
)

type runOptions struct {
	trials     int
	parallel   int
	record     bool
	earlyStop  bool
	allowInfra bool
	threshold  float64
	jsonOut    bool
}

func newRunCmd(st *cliState) *cobra.Command {
	var opts runOptions

	cmd := &cobra.Command{
		Use:   "run <scenario-file>",
		Short: "Run a scenario N times and report the aggregate verdict",
		Args:  cobra.ExactArgs(1),
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return loadConfig(st)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScenario(cmd, st, args[0], &opts)
		},
	}

	cmd.Flags().IntVarP(&opts.trials, "trials", "n", 1, "number of trials")
	cmd.Flags().IntVar(&opts.parallel, "parallel", 0, "max concurrent trials (default min(n, cpu, 4))")
	cmd.Flags().BoolVar(&opts.record, "record", false, "record redacted traces for replay")
	cmd.Flags().BoolVar(&opts.earlyStop, "early-stop", false, "stop once the outcome is determined")
	cmd.Flags().BoolVar(&opts.allowInfra, "allow-infra", false, "exclude infra-errored trials from the verdict")
	cmd.Flags().Float64Var(&opts.threshold, "threshold", -1, "pass threshold override between 0 and 1")
	cmd.Flags().BoolVar(&opts.jsonOut, "json", false, "emit the suite result as JSON")

	return cmd
}

func runScenario(cmd *cobra.Command, st *cliState, path string, opts *runOptions) error {
	if st == nil || st.cfg == nil {
		return fmt.Errorf("run: missing config (internal error)")
	}
	if opts.threshold > 1 {
		return fmt.Errorf("run: threshold must be between 0 and 1 (got %v)", opts.threshold)
	}

	scn, err := scenario.Load(path)
	if err != nil {
		return err
	}
	if scn.Adapter == "" {
		scn.Adapter = st.cfg.DefaultAdapter
	}

	adapters := adapter.NewRegistry()
	factory, err := adapters.Factory(scn.Adapter)
	if err != nil {
		return fmt.Errorf("run: %w", err)
	}

	stor := storage.NewStore(st.cfg.StorageDir)

	evaluators := evaluation.NewRegistry()
	evalCtx := &evaluation.Context{
		Scenario:    scn,
		JudgeConfig: &st.cfg.Judge,
		Adapters:    adapters,
		LogWriter:   cmd.ErrOrStderr(),
	}

	orc, err := orchestrator.New(factory, scn, evaluators, evalCtx, stor, orchestrator.Options{
		Trials:     opts.trials,
		Parallel:   opts.parallel,
		MaxRetries: 3,
		EarlyStop:  opts.earlyStop,
		AllowInfra: opts.allowInfra,
		Threshold:  opts.threshold,
	})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	suite, err := orc.Run(ctx)
	if err != nil {
		return err
	}

	if err := stor.SaveSuiteResult(suite); err != nil {
		return err
	}
	saveRunHistory(ctx, st, suite, cmd)

	if opts.record {
		if err := recordSuite(stor, suite, scn, path, st); err != nil {
			return err
		}
	}

	if opts.jsonOut {
		if err := printJSON(cmd.OutOrStdout(), suite); err != nil {
			return err
		}
	} else {
		renderSuiteResult(cmd.OutOrStdout(), suite)
	}

	switch suite.Verdict {
	case orchestrator.VerdictPass:
		return nil
	case orchestrator.VerdictHardFail:
		return errSuiteHardFail
	case orchestrator.VerdictInfraError:
		return errSuiteInfra
	default:
		return errSuiteFailed
	}
}

func recordSuite(stor *storage.Store, suite *orchestrator.SuiteResult, scn *scenario.Scenario, scenarioFile string, st *cliState) error {
	recorder, err := recording.NewRecorder(stor, st.cfg.Recording.Mode, st.cfg.Recording.CustomPatterns)
	if err != nil {
		return err
	}
	for _, trial := range suite.Trials {
		if trial.Trace == nil {
			continue
		}
		if err := recorder.RecordTrial(trial.Trace, scn, suite.RunID, scenarioFile); err != nil {
			return err
		}
	}
	return nil
}

// saveRunHistory best-effort indexes the run in the sqlite history store;
// the JSON files remain the source of truth, so failures only warn.
func saveRunHistory(ctx context.Context, st *cliState, suite *orchestrator.SuiteResult, cmd *cobra.Command) {
	hist, err := store.Open(historyDBPath(st))
	if err != nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "warning: history index unavailable: %v\n", err)
		return
	}
	defer hist.Close()

	if err := hist.SaveRun(ctx, suite); err != nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "warning: history index update failed: %v\n", err)
	}
}

func historyDBPath(st *cliState) string {
	return filepath.Join(st.cfg.StorageDir, "history.db")
}
