package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"eth-economic-model/internal/config"
	"eth-economic-model/internal/data"
	"eth-economic-model/internal/engine"
	"eth-economic-model/internal/experiment"
	"eth-economic-model/internal/logging"
)

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run an experiment and print per-subset summaries",
		Example: `  cli run --experiment eth_price_sweep --timesteps 90
  cli run --config configs/stochastic.yaml --csv results/trajectory.csv`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := runConfig(cmd)
			if err != nil {
				return err
			}
			jsonOut, _ := cmd.Flags().GetBool("json")

			logger := logging.New(cfg.Logging.Level, cmd.ErrOrStderr())
			log := logging.Component(logger, "cli")

			exp, err := cfg.Build()
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if err := seedInitialState(ctx, cfg, exp, logging.Component(logger, "data")); err != nil {
				return err
			}

			eng := engine.New(engine.WithWorkers(cfg.Workers), engine.WithLogger(logrus.NewEntry(logger)))
			out, err := experiment.NewRunner(eng, logrus.NewEntry(logger)).Run(ctx, exp)
			if err != nil {
				return err
			}

			if raw, _ := cmd.Flags().GetString("raw-csv"); raw != "" {
				if err := engine.WriteTrajectoryCSV(raw, out.Result); err != nil {
					return fmt.Errorf("write %s: %w", raw, err)
				}
			}
			outputs := []struct {
				path  string
				write func(io.Writer) error
			}{
				{cfg.Output.CSV, out.Table.WriteCSV},
				{cfg.Output.Arrow, out.Table.WriteArrow},
			}
			for _, o := range outputs {
				if o.path == "" {
					continue
				}
				if err := writeOutput(o.path, o.write); err != nil {
					return fmt.Errorf("write %s: %w", o.path, err)
				}
				log.WithFields(logrus.Fields{"path": o.path, "rows": out.Table.NumRows()}).Info("wrote trajectory")
			}

			if jsonOut {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(map[string]interface{}{
					"experiment": exp.Name,
					"failures":   len(out.Result.Failures),
					"summaries":  out.Summaries,
				})
			}
			renderSummaries(cmd.OutOrStdout(), out)
			return nil
		},
	}

	cmd.Flags().String("config", "", "Path to YAML config")
	cmd.Flags().String("experiment", "", "Experiment template (see 'cli experiments')")
	cmd.Flags().Int("runs", 0, "Monte Carlo runs per subset")
	cmd.Flags().Int("timesteps", 0, "Timesteps per run")
	cmd.Flags().Uint64("seed", 0, "Master seed for stochastic inputs")
	cmd.Flags().Int("workers", 0, "Concurrent trajectories (0 = GOMAXPROCS)")
	cmd.Flags().String("csv", "", "Write the post-processed trajectory table as CSV")
	cmd.Flags().String("arrow", "", "Write the post-processed trajectory table as Arrow IPC")
	cmd.Flags().String("raw-csv", "", "Write the raw engine trajectory, before post-processing, as CSV")
	cmd.Flags().String("snapshot", "", "Seed the initial state from a snapshot file")
	cmd.Flags().Bool("live", false, "Seed the initial state from the live data feeds")
	cmd.Flags().String("log-level", "", "Log level (debug, info, warn, error)")
	return cmd
}

// runConfig loads --config, or the defaults, and applies the flags on top.
func runConfig(cmd *cobra.Command) (*config.Config, error) {
	flags := cmd.Flags()
	cfg := config.Default()
	if path, _ := flags.GetString("config"); path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	if flags.Changed("experiment") {
		cfg.Experiment, _ = flags.GetString("experiment")
	}
	if flags.Changed("runs") {
		cfg.Scenario.Runs, _ = flags.GetInt("runs")
	}
	if flags.Changed("timesteps") {
		cfg.Scenario.Timesteps, _ = flags.GetInt("timesteps")
	}
	if flags.Changed("seed") {
		seed, _ := flags.GetUint64("seed")
		cfg.Scenario.Seed = &seed
	}
	if flags.Changed("workers") {
		cfg.Workers, _ = flags.GetInt("workers")
	}
	if flags.Changed("csv") {
		cfg.Output.CSV, _ = flags.GetString("csv")
	}
	if flags.Changed("arrow") {
		cfg.Output.Arrow, _ = flags.GetString("arrow")
	}
	if flags.Changed("snapshot") {
		cfg.Data.SnapshotFile, _ = flags.GetString("snapshot")
	}
	if live, _ := flags.GetBool("live"); live {
		cfg.Data.Enabled = true
	}
	if flags.Changed("log-level") {
		cfg.Logging.Level, _ = flags.GetString("log-level")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// seedInitialState fills the initial state from a snapshot file and, when
// enabled, the live feeds. Values set by the experiment or scenario win.
func seedInitialState(ctx context.Context, cfg *config.Config, exp *experiment.Experiment, log *logrus.Entry) error {
	if cfg.Data.SnapshotFile == "" && !cfg.Data.Enabled {
		return nil
	}
	snap := data.DefaultSnapshot()
	if cfg.Data.SnapshotFile != "" {
		loaded, err := data.LoadSnapshot(cfg.Data.SnapshotFile)
		if err != nil {
			return err
		}
		snap = *loaded
	}
	if cfg.Data.Enabled {
		feeds := data.NewFeeds(data.FeedConfig{
			EtherscanURL:    cfg.Data.EtherscanURL,
			EtherscanAPIKey: cfg.Data.EtherscanAPIKey,
			BeaconchainURL:  cfg.Data.BeaconchainURL,
			CacheTTL:        cfg.Data.CacheTTL,
		}, log)
		defer feeds.Close()
		snap = feeds.Collect(ctx, snap)
	}
	log.WithFields(logrus.Fields{
		"eth_price":         snap.ETHPrice,
		"eth_supply":        snap.ETHSupply,
		"active_validators": snap.ActiveValidators,
		"updated_at":        snap.UpdatedAt,
	}).Info("seeding initial state")
	exp.Initial = snap.InitialOptions().Overlay(exp.Initial)
	return nil
}

func writeOutput(path string, write func(io.Writer) error) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := write(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
