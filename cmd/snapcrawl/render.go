package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nao1215/snapcrawl/internal/render"
)

// NewRenderCmd creates the render command.
func NewRenderCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "render",
		Short: "Rebuild the archive index and wrapper pages",
		Long: `Render resolves the links between all snapshots again and rewrites the
archive index page and the wrapper page of every snapshot.

crawl does this automatically at the end of every run. Use render after
copying snapshots between archives or upgrading snapcrawl.`,
		Args: cobra.NoArgs,
		RunE: runRenderCmd,
	}
}

// runRenderCmd executes the render command.
func runRenderCmd(cmd *cobra.Command, _ []string) error {
	cfg, err := archiveConfig(cmd)
	if err != nil {
		return err
	}

	logger := setupLogger(cmd, cfg.Verbose)
	ctx, cancel := signalContext(logger)
	defer cancel()

	st, err := openExistingArchive(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer st.Close()

	if err := st.RecomputeAllCrossReferences(ctx); err != nil {
		return err
	}
	if err := render.New(cfg.ArchiveDir, render.WithLogger(logger)).Render(ctx, st.All(), st.Stats()); err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Rendered %d snapshot(s) into %s\n", st.Len(), cfg.ArchiveDir)
	return nil
}
