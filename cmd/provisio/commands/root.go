package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var (
	// Global flags
	cfgPath string
	verbose bool

	// Version information, carried for the version command.
	toolVersion   string
	toolCommit    string
	toolBuildDate string
)

// Execute runs the root command
func Execute(ctx context.Context, version, commit, buildDate string) error {
	toolVersion = version
	toolCommit = commit
	toolBuildDate = buildDate

	rootCmd := newRootCommand(version, commit, buildDate)
	return rootCmd.ExecuteContext(ctx)
}

func newRootCommand(version, commit, buildDate string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "provisio",
		Short: "Provisio - package provisioning decision engine",
		Long: `Provisio decides, package by package, whether a source tree should rely
on a copy already installed on the host or build its own bundled copy.

Features:
  - Ordered package catalogs via CUE or YAML
  - Host probing: executables, pkg-config modules, files, platforms
  - Scriptable probes via Starlark, Rego policies, and WASM modules
  - Prior-build markers short-circuit repeat configuration
  - Pass history in SQLite for auditing
  - Catalog watching with automatic re-evaluation`,
		Version:      fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, buildDate),
		SilenceUsage: true,
	}

	// Persistent flags available to all commands
	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "tool config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")

	// Add subcommands
	rootCmd.AddCommand(newConfigureCommand())
	rootCmd.AddCommand(newCatalogCommand())
	rootCmd.AddCommand(newMarkersCommand())
	rootCmd.AddCommand(newHistoryCommand())
	rootCmd.AddCommand(newWatchCommand())
	rootCmd.AddCommand(newVersionCommand())

	return rootCmd
}
