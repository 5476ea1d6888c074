package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/nao1215/snapcrawl/internal/config"
)

// NewRootCmd creates the root command for snapcrawl.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "snapcrawl",
		Short: "Capture websites into a browsable offline archive",
		Long: `snapcrawl crawls a website breadth-first from a seed URL and stores every
page it reaches as a timestamped snapshot. Links between captured pages are
rewritten to point at their snapshots, so the archive can be browsed offline.

The archive lives in the XDG data directory by default
(~/.local/share/snapcrawl/archive on Linux). Use --archive to choose another.`,
		Version:       getVersion(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Global flags that apply to all commands
	cmd.PersistentFlags().BoolP("verbose", "v", false, "Enable verbose logging")
	cmd.PersistentFlags().StringP("archive", "a", "",
		"Archive directory (default: "+config.DefaultArchiveDir()+")")
	cmd.PersistentFlags().String("index-format", config.DefaultIndexFormat,
		"Snapshot index backend: json or sqlite")

	// Add subcommands
	cmd.AddCommand(NewCrawlCmd())
	cmd.AddCommand(NewListCmd())
	cmd.AddCommand(NewRenderCmd())
	cmd.AddCommand(NewReportCmd())
	cmd.AddCommand(NewServeCmd())
	cmd.AddCommand(NewInitCmd())
	cmd.AddCommand(NewVersionCmd())

	return cmd
}

// Execute runs the root command.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
