package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/nao1215/snapcrawl/internal/model"
)

// NewListCmd creates the list command.
func NewListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the snapshots in the archive",
		Long: `List prints every snapshot in the archive, oldest first.

Examples:
  # List all snapshots
  snapcrawl list

  # List the snapshots of one host as JSON
  snapcrawl list --domain example.com --json`,
		Args: cobra.NoArgs,
		RunE: runListCmd,
	}

	cmd.Flags().String("domain", "", "Only list snapshots of this host")
	cmd.Flags().BoolP("json", "j", false, "Output the snapshot records as JSON")

	return cmd
}

// runListCmd executes the list command.
func runListCmd(cmd *cobra.Command, _ []string) error {
	cfg, err := archiveConfig(cmd)
	if err != nil {
		return err
	}
	domain, err := cmd.Flags().GetString("domain")
	if err != nil {
		return err
	}
	asJSON, err := cmd.Flags().GetBool("json")
	if err != nil {
		return err
	}

	logger := setupLogger(cmd, cfg.Verbose)
	st, err := openExistingArchive(cmd.Context(), cfg, logger)
	if err != nil {
		return err
	}
	defer st.Close()

	snapshots := []*model.Snapshot{}
	for _, snap := range st.All() {
		if domain != "" && !strings.EqualFold(snap.Domain, domain) {
			continue
		}
		snapshots = append(snapshots, snap)
	}

	out := cmd.OutOrStdout()
	if asJSON {
		encoder := json.NewEncoder(out)
		encoder.SetIndent("", "  ")
		return encoder.Encode(snapshots)
	}

	if len(snapshots) == 0 {
		fmt.Fprintln(out, "No snapshots found.")
		return nil
	}
	for _, snap := range snapshots {
		fmt.Fprintf(out, "%s  %s  %d/%d  %s\n",
			snap.CapturedAt.UTC().Format("2006-01-02 15:04:05"),
			snap.ID,
			len(snap.LinksCaptured),
			len(snap.LinksFound),
			snap.URL,
		)
	}
	fmt.Fprintf(out, "\n%d snapshot(s)\n", len(snapshots))
	return nil
}
