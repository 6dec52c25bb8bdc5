package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jherleth/salvo-ai/internal/adapter"
	"github.com/jherleth/salvo-ai/internal/scenario"
)

func newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <scenario-file>",
		Short: "Load and validate a scenario file without running it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			scn, err := scenario.Load(args[0])
			if err != nil {
				return err
			}
			if err := adapter.ValidateExtras(scn.Extras); err != nil {
				return err
			}

			adapterName := scn.Adapter
			if adapterName == "" {
				adapterName = "(project default)"
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s: valid\n", args[0])
			fmt.Fprintf(out, "  scenario=%s adapter=%s model=%s\n", scn.Name, adapterName, scn.Model)
			fmt.Fprintf(out, "  tools=%d assertions=%d max_turns=%d threshold=%.2f\n",
				len(scn.Tools), len(scn.Assertions), scn.MaxTurns, scn.Threshold)
			fmt.Fprintf(out, "  hash=%s\n", shortHash(scn.Hash))
			return nil
		},
	}
}
