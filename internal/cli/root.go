// Package cli implements the admiral command line: building an index from a
// folder, serving it over HTTP, querying and inspecting saved indexes, and
// running the analytics aggregator.
package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/mrtazz/admiral/pkg/config"
	"github.com/mrtazz/admiral/pkg/logger"
)

// app carries state shared by all subcommands once the root command has
// loaded configuration.
type app struct {
	cfgFile  string
	logLevel string
	cfg      *config.Config
}

// NewRootCommand builds the full command tree.
func NewRootCommand() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:   "admiral",
		Short: "Inverted index and tf-idf search over a folder of text files",
		Long: `admiral indexes the text files below a folder into a term to document index
weighted by tf-idf and answers boolean, ranked and prefix keyword queries.

Example usage:
  admiral build ./corpus -o index.admx   # Build and save an index
  admiral query index.admx cat sat       # Documents containing both words
  admiral serve --index index.admx       # Serve the HTTP query API`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(a.cfgFile)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			if a.logLevel != "" {
				cfg.Logging.Level = a.logLevel
			}
			logger.SetupWriter(cmd.ErrOrStderr(), cfg.Logging.Level, cfg.Logging.Format)
			a.cfg = cfg
			return nil
		},
	}
	root.PersistentFlags().StringVar(&a.cfgFile, "config", "", "YAML config file (defaults apply when empty)")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "override logging.level (debug, info, warn, error)")

	root.AddCommand(
		newBuildCmd(a),
		newServeCmd(a),
		newQueryCmd(a),
		newInspectCmd(a),
		newSnapshotCmd(a),
		newBuildsCmd(a),
		newAnalyticsCmd(a),
	)
	return root
}

// Execute runs the command line and exits non-zero on failure.
func Execute() {
	if err := NewRootCommand().ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}
