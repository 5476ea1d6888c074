package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nao1215/snapcrawl/internal/server"
	"github.com/nao1215/snapcrawl/internal/store"
)

// NewServeCmd creates the serve command.
func NewServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Browse the archive over HTTP",
		Long: `Serve starts a local web server for the archive. The archive index is
served at / and each snapshot at /<snapshot-id>/. A JSON API is available
under /api (/api/snapshots, /api/snapshots/<id>, /api/stats).

Examples:
  # Serve on the default address
  snapcrawl serve

  # Listen on every interface
  snapcrawl serve --addr :8080`,
		Args: cobra.NoArgs,
		RunE: runServeCmd,
	}

	cmd.Flags().String("addr", server.DefaultAddr, "Listen address")

	return cmd
}

// runServeCmd executes the serve command.
func runServeCmd(cmd *cobra.Command, _ []string) error {
	cfg, err := archiveConfig(cmd)
	if err != nil {
		return err
	}
	addr, err := cmd.Flags().GetString("addr")
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

	srv := server.New(cfg.ArchiveDir, st,
		server.WithLogger(logger),
		server.WithContentReader(store.NewFileContentWriter(cfg.ArchiveDir)),
	)

	fmt.Fprintf(cmd.OutOrStdout(), "Serving %s on http://%s/ (Ctrl+C to stop)\n", cfg.ArchiveDir, addr)
	return srv.ListenAndServe(ctx, addr)
}
