package main

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/nao1215/snapcrawl/internal/report"
)

// NewReportCmd creates the report command.
func NewReportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Summarize the archive",
		Long: `Report prints statistics about the archive: the number of snapshots, the
domains they belong to and how many of the discovered links were captured.

Examples:
  # Print a text summary
  snapcrawl report

  # Write a Markdown summary with a coverage chart
  snapcrawl report -m -o archive.md`,
		Args: cobra.NoArgs,
		RunE: runReportCmd,
	}

	addReportFlags(cmd)

	return cmd
}

// runReportCmd executes the report command.
func runReportCmd(cmd *cobra.Command, _ []string) error {
	cfg, err := archiveConfig(cmd)
	if err != nil {
		return err
	}
	if err := readReportFlags(cmd, cfg); err != nil {
		return err
	}

	logger := setupLogger(cmd, cfg.Verbose)
	st, err := openExistingArchive(cmd.Context(), cfg, logger)
	if err != nil {
		return err
	}
	defer st.Close()

	summary := report.NewSummary(getVersion(), cfg.ArchiveDir, nil, st.Stats(), time.Now())
	return outputReport(cmd, cfg, summary)
}
