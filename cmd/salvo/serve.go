package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jherleth/salvo-ai/api"
	"github.com/jherleth/salvo-ai/internal/storage"
	"github.com/jherleth/salvo-ai/internal/store"
)

func newServeCmd(st *cliState) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve a read-only HTTP report API over recorded runs",
		Args:  cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return loadConfig(st)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			stor := storage.NewStore(st.cfg.StorageDir)

			hist, err := store.Open(historyDBPath(st))
			if err != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "warning: history index unavailable: %v\n", err)
				hist = nil
			}
			if hist != nil {
				defer hist.Close()
			}

			srv, err := api.NewServer(stor, hist)
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "serving report API on %s\n", addr)
			return srv.Run(addr)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", ":8080", "listen address")
	return cmd
}
