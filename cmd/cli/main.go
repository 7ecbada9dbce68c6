package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "cli",
		Short: "Ethereum validator economy simulation",
		Long: `cli runs parameter sweeps and Monte Carlo experiments over the
Ethereum proof-of-stake validator economy.

Experiments are registered templates; a YAML config file or flags override
their runs, timesteps, seed, parameters and initial state.`,
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().Bool("json", false, "Output as JSON")

	rootCmd.AddCommand(
		newRunCmd(),
		newExperimentsCmd(),
		newParametersCmd(),
	)
	return rootCmd
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
