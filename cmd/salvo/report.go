package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jherleth/salvo-ai/internal/storage"
	"github.com/jherleth/salvo-ai/internal/store"
)

type reportOptions struct {
	history  bool
	failures bool
	scenario string
	limit    int
	jsonOut  bool
}

func newReportCmd(st *cliState) *cobra.Command {
	var opts reportOptions

	cmd := &cobra.Command{
		Use:   "report [run-id]",
		Short: "Show results of past runs from storage",
		Args:  cobra.MaximumNArgs(1),
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return loadConfig(st)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			runID := ""
			if len(args) == 1 {
				runID = strings.TrimSpace(args[0])
			}
			return runReport(cmd, st, runID, &opts)
		},
	}

	cmd.Flags().BoolVar(&opts.history, "history", false, "list run history instead of a single run")
	cmd.Flags().BoolVar(&opts.failures, "failures", false, "show only the failure ranking")
	cmd.Flags().StringVar(&opts.scenario, "scenario", "", "filter by scenario id")
	cmd.Flags().IntVar(&opts.limit, "limit", 0, "maximum history rows")
	cmd.Flags().BoolVar(&opts.jsonOut, "json", false, "emit JSON")

	return cmd
}

func runReport(cmd *cobra.Command, st *cliState, runID string, opts *reportOptions) error {
	if st == nil || st.cfg == nil {
		return fmt.Errorf("report: missing config (internal error)")
	}
	out := cmd.OutOrStdout()

	if opts.history {
		hist, err := store.Open(historyDBPath(st))
		if err != nil {
			return err
		}
		defer hist.Close()

		var rows []*store.RunSummary
		if strings.TrimSpace(opts.scenario) != "" {
			rows, err = hist.History(cmd.Context(), opts.scenario, opts.limit)
		} else {
			rows, err = hist.ListRuns(cmd.Context(), opts.limit)
		}
		if err != nil {
			return err
		}

		if opts.jsonOut {
			return printJSON(out, rows)
		}
		if len(rows) == 0 {
			fmt.Fprintln(out, "no runs recorded")
			return nil
		}
		for _, r := range rows {
			fmt.Fprintf(out, "%s  %-10s %-24s pass_rate=%.2f score=%.3f trials=%d cost=%s\n",
				r.StartedAt.Format("2006-01-02 15:04:05"), r.Verdict, r.ScenarioID,
				r.PassRate, r.MeanScore, r.TrialsTotal, formatCost(r.CostTotal))
		}
		return nil
	}

	stor := storage.NewStore(st.cfg.StorageDir)

	if runID == "" {
		ids, err := stor.ListRuns(opts.scenario)
		if err != nil {
			return err
		}
		if len(ids) == 0 {
			return fmt.Errorf("report: no runs found, run a scenario first")
		}
		// Run ids are time-sortable, so the last one is the newest.
		runID = ids[len(ids)-1]
	}

	suite, err := stor.LoadSuiteResult(runID)
	if err != nil {
		return err
	}

	if opts.jsonOut {
		return printJSON(out, suite)
	}
	if opts.failures {
		if len(suite.FailureRanking) == 0 {
			fmt.Fprintln(out, "no assertion failures recorded")
			return nil
		}
		for _, f := range suite.FailureRanking {
			fmt.Fprintf(out, "assertion %d (%s): failed %d time(s), fail_rate=%.2f, weight_lost=%.2f\n",
				f.AssertionIndex, f.AssertionType, f.FailCount, f.FailRate, f.TotalWeightLost)
			for _, d := range f.SampleDetails {
				fmt.Fprintf(out, "  - %s\n", d)
			}
		}
		return nil
	}

	renderSuiteResult(out, suite)
	return nil
}
