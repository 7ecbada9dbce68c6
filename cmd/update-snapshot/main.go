package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"eth-economic-model/internal/data"
	"eth-economic-model/internal/logging"
)

func newSnapshotCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "update-snapshot",
		Short: "Refresh the live network snapshot",
		Long: `update-snapshot queries Etherscan and beaconcha.in for the ETH price,
supply, active validator count and latest epoch, and writes them to the
snapshot file used to seed simulations.

A feed that fails keeps the value from the previous snapshot.`,
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE:         runSnapshot,
	}
	cmd.Flags().String("output", "", "Output file path (default: ./data/snapshot.json)")
	cmd.Flags().String("seed", "", "Existing snapshot whose values are used when a feed fails")
	cmd.Flags().Duration("timeout", time.Minute, "Overall timeout for the feed requests")
	cmd.Flags().String("log-level", "info", "Log level")
	cmd.Flags().String("etherscan-url", os.Getenv("ETHERSCAN_URL"), "Etherscan API base URL")
	cmd.Flags().String("beaconchain-url", os.Getenv("BEACONCHAIN_URL"), "beaconcha.in API base URL")
	return cmd
}

func runSnapshot(cmd *cobra.Command, _ []string) error {
	outputPath, _ := cmd.Flags().GetString("output")
	seedPath, _ := cmd.Flags().GetString("seed")
	timeout, _ := cmd.Flags().GetDuration("timeout")
	logLevel, _ := cmd.Flags().GetString("log-level")
	etherscanURL, _ := cmd.Flags().GetString("etherscan-url")
	beaconchainURL, _ := cmd.Flags().GetString("beaconchain-url")

	logger := logging.New(logLevel, cmd.ErrOrStderr())
	log := logging.Component(logger, "update-snapshot")
	out := cmd.OutOrStdout()

	if outputPath == "" {
		outputPath = data.DefaultSnapshotPath()
	}

	apiKey := os.Getenv("ETHERSCAN_API_KEY")
	if apiKey == "" {
		log.Warn("ETHERSCAN_API_KEY is not set, Etherscan requests may be rate limited")
	}

	// Previous values fall back to the model defaults.
	fallback := data.DefaultSnapshot()
	if seedPath == "" {
		seedPath = outputPath
	}
	if prev, err := data.LoadSnapshot(seedPath); err == nil {
		fallback = *prev
		fmt.Fprintf(out, "Loaded previous snapshot from %s (updated %s)\n", seedPath, prev.UpdatedAt)
	}

	feeds := data.NewFeeds(data.FeedConfig{
		EtherscanURL:    etherscanURL,
		EtherscanAPIKey: apiKey,
		BeaconchainURL:  beaconchainURL,
		CacheTTL:        data.DefaultCacheTTL,
	}, logging.Component(logger, "data"))
	defer feeds.Close()

	ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
	defer cancel()
	snap := feeds.Collect(ctx, fallback)

	if err := data.SaveSnapshot(&snap, outputPath); err != nil {
		return err
	}

	fmt.Fprintf(out, "ETH price:          $%.2f\n", snap.ETHPrice)
	fmt.Fprintf(out, "ETH supply:         %.0f ETH\n", snap.ETHSupply)
	fmt.Fprintf(out, "Active validators:  %.0f\n", snap.ActiveValidators)
	fmt.Fprintf(out, "Epoch:              %.0f\n", snap.Epoch)
	fmt.Fprintf(out, "Saved snapshot to %s\n", outputPath)
	return nil
}

func main() {
	if err := newSnapshotCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
