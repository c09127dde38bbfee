package main

import (
	"fmt"
	"os"

	"github.com/nvandessel/resonet/internal/config"
	"github.com/spf13/cobra"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "resonet",
		Short: "Resonet - lattices of self-tuning resonant oscillators",
		Long: `resonet runs cubic lattices of resonant oscillator nodes.

Each node filters its neighbors through a Gaussian resonance, pulls its own
frequency toward what it hears, tires when it sits in steady resonance, and
is reborn at a random frequency when exhausted or idle for too long.`,
		SilenceUsage: true,
	}

	// Global flags
	rootCmd.PersistentFlags().Bool("json", false, "Output as JSON")
	rootCmd.PersistentFlags().String("config", "", "Config file (default ~/.resonet/config.yaml)")

	rootCmd.AddCommand(
		newVersionCmd(),
		newRunCmd(),
		newScenariosCmd(),
		newConfigCmd(),
	)

	return rootCmd
}

// loadConfig loads the config selected by --config, with env overrides.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadPath(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}
