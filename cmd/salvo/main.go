package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/jherleth/salvo-ai/internal/config"
)

// Sentinel errors mapped to exit codes: 1 FAIL/PARTIAL, 2 HARD_FAIL,
// 3 INFRA_ERROR. Anything else exits 1 with the message printed.
var (
	errSuiteFailed   = errors.New("salvo: suite failed")
	errSuiteHardFail = errors.New("salvo: suite hard-failed")
	errSuiteInfra    = errors.New("salvo: suite hit infrastructure errors")
)

type cliState struct {
	configPath string
	cfg        *config.Config
}

var (
	osExit                 = os.Exit
	stderrWriter io.Writer = os.Stderr
)

func main() {
	cmd := newRootCmd()
	if err := cmd.Execute(); err != nil {
		switch {
		case errors.Is(err, errSuiteHardFail):
			osExit(2)
		case errors.Is(err, errSuiteInfra):
			osExit(3)
		case errors.Is(err, errSuiteFailed):
			osExit(1)
		default:
			fmt.Fprintln(stderrWriter, err)
			osExit(1)
		}
		return
	}
}

func newRootCmd() *cobra.Command {
	st := &cliState{configPath: config.DefaultPath}

	root := &cobra.Command{
		Use:           "salvo",
		Short:         "Reliability testing for tool-using LLM agents",
		SilenceErrors: true,
		SilenceUsage:  true,
	}
	root.PersistentFlags().StringVar(&st.configPath, "config", st.configPath, "path to project config file")

	root.AddCommand(newInitCmd())
	root.AddCommand(newValidateCmd())
	root.AddCommand(newRunCmd(st))
	root.AddCommand(newReportCmd(st))
	root.AddCommand(newReplayCmd(st))
	root.AddCommand(newReevalCmd(st))
	root.AddCommand(newServeCmd(st))
	return root
}

func loadConfig(st *cliState) error {
	if st == nil {
		return fmt.Errorf("salvo: nil state")
	}
	cfg, err := config.Load(st.configPath)
	if err != nil {
		return err
	}
	st.cfg = cfg
	return nil
}
