package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mbtestgen/mbtestgen/cmd/mbtestgen/config"
)

// NewRootCommand assembles the mbtestgen command tree
func NewRootCommand(version, buildTime, gitCommit string) *cobra.Command {
	Version = version

	rootCmd := &cobra.Command{
		Use:   "mbtestgen",
		Short: "MusicBrainz client test generator",
		Long: `mbtestgen samples entity MBIDs from a MusicBrainz database dump and generates
Rust integration tests that look each sampled entity up with the client.`,
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, gitCommit, buildTime),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Global flags
	rootCmd.PersistentFlags().String("config", "", "Config file path (default: $HOME/.mbtestgen/config.yaml)")
	rootCmd.PersistentFlags().String("log-level", "info", "Log level: debug, info, warn, error")
	rootCmd.PersistentFlags().String("output", "table", "Output format: table, json, yaml")
	rootCmd.PersistentFlags().String("metrics-file", "", "Write Prometheus metrics to this file when done")
	rootCmd.PersistentFlags().Uint64("seed", 0, "Random seed (default: random, logged)")

	rootCmd.SetFlagErrorFunc(func(cmd *cobra.Command, err error) error {
		return fmt.Errorf("%w: %w", config.ErrInvalid, err)
	})

	rootCmd.AddCommand(NewExtractCommand())
	rootCmd.AddCommand(NewGenerateCommand())
	rootCmd.AddCommand(NewFetchCommand())
	rootCmd.AddCommand(NewRunCommand())
	rootCmd.AddCommand(NewEntitiesCommand())
	rootCmd.AddCommand(NewVersionCommand(version, buildTime, gitCommit))

	return rootCmd
}
