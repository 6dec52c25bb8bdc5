package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jherleth/salvo-ai/internal/recording"
	"github.com/jherleth/salvo-ai/internal/storage"
)

func newReplayCmd(st *cliState) *cobra.Command {
	var allowPartial bool

	cmd := &cobra.Command{
		Use:   "replay [trace-id]",
		Short: "Render a recorded trace without any provider calls",
		Args:  cobra.MaximumNArgs(1),
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return loadConfig(st)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			traceID := ""
			if len(args) == 1 {
				traceID = args[0]
			}

			stor := storage.NewStore(st.cfg.StorageDir)
			replayer := recording.NewReplayer(stor)

			recorded, err := replayer.Load(traceID)
			if err != nil {
				if allowPartial {
					fmt.Fprintf(cmd.OutOrStdout(), "no recorded trace available: %v\n", err)
					return nil
				}
				return fmt.Errorf("replay: %w", err)
			}

			renderRecordedTrace(cmd.OutOrStdout(), recorded)
			return nil
		},
	}

	cmd.Flags().BoolVar(&allowPartial, "allow-partial", false, "exit zero when the trace is missing")
	return cmd
}
